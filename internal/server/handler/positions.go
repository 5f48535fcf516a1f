package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/mkarpenko/futurestrack/internal/domain"
)

// PositionSource lists the positions currently tracked across cycles.
type PositionSource interface {
	Positions(ctx context.Context) ([]domain.TrackedPosition, error)
}

// PositionsHandler serves the tracked-position table.
type PositionsHandler struct {
	source PositionSource
	logger *slog.Logger
}

// NewPositionsHandler creates a PositionsHandler with the given source and logger.
func NewPositionsHandler(source PositionSource, logger *slog.Logger) *PositionsHandler {
	return &PositionsHandler{source: source, logger: logger}
}

// trackedPositionView is the JSON shape of one tracked position.
type trackedPositionView struct {
	Symbol             string    `json:"symbol"`
	Side               string    `json:"side"`
	Size               float64   `json:"size"`
	EntryPrice         float64   `json:"entry_price"`
	MarkPrice          float64   `json:"mark_price"`
	Leverage           int       `json:"leverage"`
	PnlPercent         float64   `json:"pnl_percent"`
	MaxProfitPercent   float64   `json:"max_profit_percent"`
	MaxDrawdownPercent float64   `json:"max_drawdown_percent"`
	HasBeenScaled      bool      `json:"has_been_scaled"`
	OpenedAt           time.Time `json:"opened_at"`
	OpenObserved       bool      `json:"open_observed"`
}

// ListPositions returns the tracked positions sorted by key.
// GET /api/positions
func (h *PositionsHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.source.Positions(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list positions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	views := make([]trackedPositionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, trackedPositionView{
			Symbol:             p.Key.Symbol,
			Side:               string(p.Key.Side),
			Size:               p.Last.Size,
			EntryPrice:         p.Last.EntryPrice,
			MarkPrice:          p.Last.MarkPrice,
			Leverage:           p.Last.Leverage,
			PnlPercent:         p.Last.PnlPercent,
			MaxProfitPercent:   p.MaxProfitPercent,
			MaxDrawdownPercent: p.MaxDrawdownPercent,
			HasBeenScaled:      p.HasBeenScaled,
			OpenedAt:           p.OpenedAt,
			OpenObserved:       p.OpenObserved,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"positions": views})
}
