package handler

import (
	"net/http"
	"time"
)

// HealthHandler serves the liveness endpoint. Beyond process liveness it
// surfaces the watcher state and exchange, so a probe can tell a stopped
// poll loop apart from a live one without parsing the full status payload.
type HealthHandler struct {
	source StatusSource
}

// NewHealthHandler creates a HealthHandler reading from the given source.
func NewHealthHandler(source StatusSource) *HealthHandler {
	return &HealthHandler{source: source}
}

// HealthCheck responds 200 whenever the server is up.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	st := h.source.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"state":     st.State,
		"exchange":  st.Exchange,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
