// Package tracker implements the position state-tracking engine: it diffs
// each poll's snapshot set against the previous one, classifies lifecycle
// events, and accumulates running performance extrema per open position.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mkarpenko/futurestrack/internal/domain"
)

// Tracker holds the previous snapshot table (via an injected store) and
// turns each new snapshot set into an ordered sequence of lifecycle events.
// It is driven from the single watcher goroutine; the store is the only
// shared state.
type Tracker struct {
	store  domain.PositionStateStore
	noise  float64 // minimum size delta classified as Scaled/Reduced
	logger *slog.Logger
	cycle  uint64
}

// New creates a Tracker. noiseThreshold is the minimum absolute size change
// required to classify Scaled/Reduced instead of Unchanged.
func New(store domain.PositionStateStore, noiseThreshold float64, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:  store,
		noise:  noiseThreshold,
		logger: logger.With(slog.String("component", "tracker")),
	}
}

// Reconcile diffs the new snapshot set against the stored table and returns
// the cycle's lifecycle events ordered Closed, Opened, then Scaled/Reduced
// and Unchanged. The stored table is replaced only after the whole diff is
// computed, so an error leaves the previous state untouched and the same
// snapshots can be reconciled again safely.
func (t *Tracker) Reconcile(ctx context.Context, snapshots []domain.PositionSnapshot) ([]domain.LifecycleEvent, error) {
	prev, err := t.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("tracker: load state: %w", err)
	}

	cycle := t.cycle + 1
	now := cycleTime(snapshots)

	next := make(map[domain.PositionKey]domain.TrackedPosition, len(snapshots))

	var closed, opened, changed []domain.LifecycleEvent

	for _, snap := range snapshots {
		key := snap.Key()
		if _, dup := next[key]; dup {
			t.logger.WarnContext(ctx, "duplicate snapshot for key, keeping first",
				slog.String("key", key.String()),
			)
			continue
		}

		tracked, known := prev[key]
		if !known {
			tracked = domain.TrackedPosition{
				Key:                key,
				OpenedAt:           snap.ObservedAt,
				OpenObserved:       true,
				Last:               snap,
				MaxProfitPercent:   snap.PnlPercent,
				MaxDrawdownPercent: snap.PnlPercent,
			}
			next[key] = tracked
			opened = append(opened, t.newEvent(domain.EventOpened, tracked, cycle, snap.ObservedAt))
			continue
		}

		// Accumulate extrema on every cycle the position is still open,
		// before classification, so even an Unchanged tick moves them.
		oldSize := tracked.Last.Size
		tracked = accumulate(tracked, snap)

		ev := t.newEvent(domain.EventUnchanged, tracked, cycle, snap.ObservedAt)
		switch {
		case snap.Size-oldSize > t.noise:
			tracked.HasBeenScaled = true
			ev.Kind = domain.EventScaled
			ev.DeltaSize = snap.Size - oldSize
			ev.Position = tracked
		case oldSize-snap.Size > t.noise:
			ev.Kind = domain.EventReduced
			ev.DeltaSize = oldSize - snap.Size
		}
		next[key] = tracked
		changed = append(changed, ev)
	}

	// Keys present before but absent now closed since the last poll. The
	// last known snapshot supplies the final figures.
	for key, tracked := range prev {
		if _, stillOpen := next[key]; stillOpen {
			continue
		}
		ev := t.newEvent(domain.EventClosed, tracked, cycle, now)
		ev.FinalPnlPercent = tracked.Last.PnlPercent
		ev.Duration = tracked.Duration(now)
		closed = append(closed, ev)
	}

	sortByKey(closed)
	sortByKey(opened)
	sortByKey(changed)

	events := make([]domain.LifecycleEvent, 0, len(closed)+len(opened)+len(changed))
	events = append(events, closed...)
	events = append(events, opened...)
	events = append(events, changed...)

	if err := t.store.Replace(ctx, next); err != nil {
		return nil, fmt.Errorf("tracker: replace state: %w", err)
	}
	t.cycle = cycle

	return events, nil
}

// Positions returns the currently tracked positions, sorted by key, for the
// operator status surface.
func (t *Tracker) Positions(ctx context.Context) ([]domain.TrackedPosition, error) {
	table, err := t.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("tracker: load state: %w", err)
	}
	out := make([]domain.TrackedPosition, 0, len(table))
	for _, p := range table {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out, nil
}

// Cycle returns the sequence number of the last completed reconcile.
func (t *Tracker) Cycle() uint64 {
	return t.cycle
}

func (t *Tracker) newEvent(kind domain.EventKind, pos domain.TrackedPosition, cycle uint64, at time.Time) domain.LifecycleEvent {
	return domain.LifecycleEvent{
		ID:       uuid.NewString(),
		Kind:     kind,
		Key:      pos.Key,
		Position: pos,
		Cycle:    cycle,
		At:       at,
	}
}

// accumulate folds a new snapshot into the tracked extrema. MaxProfitPercent
// never decreases and MaxDrawdownPercent never increases.
func accumulate(tracked domain.TrackedPosition, snap domain.PositionSnapshot) domain.TrackedPosition {
	if snap.PnlPercent > tracked.MaxProfitPercent {
		tracked.MaxProfitPercent = snap.PnlPercent
	}
	if snap.PnlPercent < tracked.MaxDrawdownPercent {
		tracked.MaxDrawdownPercent = snap.PnlPercent
	}
	tracked.Last = snap
	return tracked
}

// cycleTime is the observation instant attributed to the cycle: the latest
// snapshot timestamp, or the wall clock when the snapshot set is empty (all
// positions closed).
func cycleTime(snapshots []domain.PositionSnapshot) time.Time {
	var latest time.Time
	for _, s := range snapshots {
		if s.ObservedAt.After(latest) {
			latest = s.ObservedAt
		}
	}
	if latest.IsZero() {
		return time.Now().UTC()
	}
	return latest
}

func sortByKey(events []domain.LifecycleEvent) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].Key.String() < events[j].Key.String()
	})
}
