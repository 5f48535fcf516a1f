package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkarpenko/futurestrack/internal/domain"
)

// EventJournal implements domain.EventJournal using PostgreSQL.
type EventJournal struct {
	pool *pgxpool.Pool
}

// NewEventJournal creates an EventJournal backed by the given connection pool.
func NewEventJournal(pool *pgxpool.Pool) *EventJournal {
	return &EventJournal{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS lifecycle_events (
	id                TEXT PRIMARY KEY,
	kind              TEXT NOT NULL,
	symbol            TEXT NOT NULL,
	side              TEXT NOT NULL,
	cycle             BIGINT NOT NULL,
	size              DOUBLE PRECISION NOT NULL,
	entry_price       DOUBLE PRECISION NOT NULL,
	mark_price        DOUBLE PRECISION NOT NULL,
	leverage          INT NOT NULL,
	pnl_percent       DOUBLE PRECISION NOT NULL,
	delta_size        DOUBLE PRECISION NOT NULL DEFAULT 0,
	final_pnl_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
	duration_ms       BIGINT NOT NULL DEFAULT 0,
	occurred_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_lifecycle_events_occurred_at
	ON lifecycle_events (occurred_at DESC);
`

// EnsureSchema creates the journal table and index when they do not exist.
func (j *EventJournal) EnsureSchema(ctx context.Context) error {
	if _, err := j.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

// Append inserts one lifecycle event into the journal.
func (j *EventJournal) Append(ctx context.Context, ev domain.LifecycleEvent) error {
	const query = `
		INSERT INTO lifecycle_events (
			id, kind, symbol, side, cycle, size, entry_price, mark_price,
			leverage, pnl_percent, delta_size, final_pnl_percent, duration_ms,
			occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := j.pool.Exec(ctx, query,
		ev.ID,
		string(ev.Kind),
		ev.Key.Symbol,
		string(ev.Key.Side),
		int64(ev.Cycle),
		ev.Position.Last.Size,
		ev.Position.Last.EntryPrice,
		ev.Position.Last.MarkPrice,
		ev.Position.Last.Leverage,
		ev.Position.Last.PnlPercent,
		ev.DeltaSize,
		ev.FinalPnlPercent,
		ev.Duration.Milliseconds(),
		ev.At,
	)
	if err != nil {
		return fmt.Errorf("postgres: append event %s: %w", ev.ID, err)
	}
	return nil
}

// ListRecent returns the most recent events ordered oldest first.
func (j *EventJournal) ListRecent(ctx context.Context, limit int) ([]domain.LifecycleEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT id, kind, symbol, side, cycle, size, entry_price, mark_price,
			leverage, pnl_percent, delta_size, final_pnl_percent, duration_ms,
			occurred_at
		FROM lifecycle_events
		ORDER BY occurred_at DESC
		LIMIT $1`

	rows, err := j.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var events []domain.LifecycleEvent
	for rows.Next() {
		var (
			ev         domain.LifecycleEvent
			kind       string
			symbol     string
			side       string
			cycle      int64
			durationMS int64
		)
		err := rows.Scan(
			&ev.ID, &kind, &symbol, &side, &cycle,
			&ev.Position.Last.Size,
			&ev.Position.Last.EntryPrice,
			&ev.Position.Last.MarkPrice,
			&ev.Position.Last.Leverage,
			&ev.Position.Last.PnlPercent,
			&ev.DeltaSize,
			&ev.FinalPnlPercent,
			&durationMS,
			&ev.At,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}

		ev.Kind = domain.EventKind(kind)
		ev.Key = domain.PositionKey{Symbol: symbol, Side: domain.Side(side)}
		ev.Position.Key = ev.Key
		ev.Position.Last.Symbol = symbol
		ev.Position.Last.Side = ev.Key.Side
		ev.Cycle = uint64(cycle)
		ev.Duration = time.Duration(durationMS) * time.Millisecond
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate events: %w", err)
	}

	// Oldest first for display.
	for lo, hi := 0, len(events)-1; lo < hi; lo, hi = lo+1, hi-1 {
		events[lo], events[hi] = events[hi], events[lo]
	}
	return events, nil
}
