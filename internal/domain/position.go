// Package domain defines the core types shared by every component of the
// position tracker: snapshots, tracked positions, lifecycle events, message
// payloads, notification targets, and the collaborator interfaces.
package domain

import (
	"fmt"
	"time"
)

// Side is the direction of a futures position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// PositionKey uniquely identifies a trackable position on one account.
// Hedge-mode accounts can hold both sides of the same symbol simultaneously,
// so the side is part of the key.
type PositionKey struct {
	Symbol string
	Side   Side
}

// String renders the key as "SYMBOL/SIDE" for logs and journal rows.
func (k PositionKey) String() string {
	return fmt.Sprintf("%s/%s", k.Symbol, k.Side)
}

// PositionSnapshot is one poll's normalized view of a single open position.
// Snapshots are immutable once produced; the exchange client emits at most
// one per PositionKey per poll.
type PositionSnapshot struct {
	Symbol     string
	Side       Side
	Size       float64 // contract magnitude, always > 0 for an open position
	EntryPrice float64
	MarkPrice  float64
	Leverage   int
	PnlPercent float64 // unrealized pnl percent, leverage applied
	ObservedAt time.Time
}

// Key returns the PositionKey this snapshot belongs to.
func (s PositionSnapshot) Key() PositionKey {
	return PositionKey{Symbol: s.Symbol, Side: s.Side}
}

// TrackedPosition carries per-position state across polls. It is owned
// exclusively by the tracker: created on first observation of a key,
// destroyed in the same cycle a Closed event is emitted.
type TrackedPosition struct {
	Key      PositionKey
	OpenedAt time.Time

	// OpenObserved is false when the position already existed before
	// tracking started (for example after a restart with a fresh state
	// store). Close alerts carry a note in that case because OpenedAt is
	// only the first time the tracker saw the position.
	OpenObserved bool

	// Last is the most recent snapshot observed for this key.
	Last PositionSnapshot

	// MaxProfitPercent is the highest pnl percent seen over the position's
	// lifetime; it never decreases. MaxDrawdownPercent is the lowest seen
	// and never increases.
	MaxProfitPercent   float64
	MaxDrawdownPercent float64

	// HasBeenScaled becomes true once a size increase beyond the noise
	// threshold is observed after open.
	HasBeenScaled bool
}

// Duration returns the elapsed lifetime of the position as of t.
func (p TrackedPosition) Duration(t time.Time) time.Duration {
	if t.Before(p.OpenedAt) {
		return 0
	}
	return t.Sub(p.OpenedAt)
}
