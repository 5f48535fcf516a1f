package domain

import "time"

// EventKind classifies a position state transition between two consecutive
// snapshots.
type EventKind string

const (
	EventOpened    EventKind = "opened"
	EventScaled    EventKind = "scaled"
	EventReduced   EventKind = "reduced"
	EventClosed    EventKind = "closed"
	EventUnchanged EventKind = "unchanged"
)

// LifecycleEvent is one classified transition of a single position. Events
// within a cycle are ordered Closed, Opened, then Scaled/Reduced, and carry
// the tracked state as it was at emission time.
type LifecycleEvent struct {
	ID       string
	Kind     EventKind
	Key      PositionKey
	Position TrackedPosition

	// Cycle is the poll sequence number the event was produced in. Events
	// are strictly ordered by (Cycle, position within cycle).
	Cycle uint64

	// DeltaSize is the absolute size change for Scaled and Reduced events.
	DeltaSize float64

	// Closed-only fields.
	FinalPnlPercent float64
	Duration        time.Duration

	At time.Time
}

// Notifiable reports whether the event is forwarded to formatting and
// dispatch. Unchanged events only drive extrema accumulation.
func (e LifecycleEvent) Notifiable() bool {
	return e.Kind != EventUnchanged
}
