package handler

import (
	"net/http"

	"github.com/mkarpenko/futurestrack/internal/watch"
)

// StatusSource exposes the watcher's current status snapshot.
type StatusSource interface {
	Status() watch.Status
}

// StatusHandler serves the watcher status for the operator dashboard.
type StatusHandler struct {
	source StatusSource
}

// NewStatusHandler creates a StatusHandler backed by the given source.
func NewStatusHandler(source StatusSource) *StatusHandler {
	return &StatusHandler{source: source}
}

// GetStatus responds with the watcher state and the last cycle outcome.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st := h.source.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"state":      st.State,
		"exchange":   st.Exchange,
		"started_at": st.StartedAt,
		"interval":   st.Interval.String(),
		"last_cycle": st.LastCycle,
	})
}
