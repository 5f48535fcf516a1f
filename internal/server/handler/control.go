package handler

import (
	"log/slog"
	"net/http"
)

// Controller accepts operator commands for the watcher loop.
type Controller interface {
	Stop()
	Restart()
}

// ControlHandler serves the restart and stop operator endpoints.
type ControlHandler struct {
	controller Controller
	logger     *slog.Logger
}

// NewControlHandler creates a ControlHandler for the given controller.
func NewControlHandler(controller Controller, logger *slog.Logger) *ControlHandler {
	return &ControlHandler{controller: controller, logger: logger}
}

// Restart asks the watcher to tear down and start a fresh run.
// POST /api/restart
func (h *ControlHandler) Restart(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "restart requested")
	h.controller.Restart()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "restarting"})
}

// Stop asks the watcher to shut down cleanly.
// POST /api/stop
func (h *ControlHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "stop requested")
	h.controller.Stop()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}
