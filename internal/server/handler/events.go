package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/mkarpenko/futurestrack/internal/domain"
)

// EventsHandler serves the recent lifecycle events from the journal.
type EventsHandler struct {
	journal domain.EventJournal
	logger  *slog.Logger
}

// NewEventsHandler creates an EventsHandler. journal may be nil when no
// journal backend is configured; the endpoint then reports 404.
func NewEventsHandler(journal domain.EventJournal, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{journal: journal, logger: logger}
}

// eventView is the JSON shape of one journaled event.
type eventView struct {
	ID              string    `json:"id"`
	Kind            string    `json:"kind"`
	Symbol          string    `json:"symbol"`
	Side            string    `json:"side"`
	Cycle           uint64    `json:"cycle"`
	Size            float64   `json:"size"`
	PnlPercent      float64   `json:"pnl_percent"`
	DeltaSize       float64   `json:"delta_size,omitempty"`
	FinalPnlPercent float64   `json:"final_pnl_percent,omitempty"`
	Duration        string    `json:"duration,omitempty"`
	At              time.Time `json:"at"`
}

// ListRecent returns the most recent journaled events, newest last.
// GET /api/events?limit=50
func (h *EventsHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, http.StatusNotFound, "event journal not configured")
		return
	}

	limit := parseLimit(r, 50, 500)
	events, err := h.journal.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list events failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	views := make([]eventView, 0, len(events))
	for _, ev := range events {
		view := eventView{
			ID:         ev.ID,
			Kind:       string(ev.Kind),
			Symbol:     ev.Key.Symbol,
			Side:       string(ev.Key.Side),
			Cycle:      ev.Cycle,
			Size:       ev.Position.Last.Size,
			PnlPercent: ev.Position.Last.PnlPercent,
			DeltaSize:  ev.DeltaSize,
			At:         ev.At,
		}
		if ev.Kind == domain.EventClosed {
			view.FinalPnlPercent = ev.FinalPnlPercent
			view.Duration = ev.Duration.String()
		}
		views = append(views, view)
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": views})
}
