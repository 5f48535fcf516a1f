package domain

import "context"

// ExchangeClient supplies, on demand, the current set of open positions for
// the account, normalized to PositionSnapshot. Implementations map their
// transport failures onto the error taxonomy in errors.go.
type ExchangeClient interface {
	FetchPositions(ctx context.Context) ([]PositionSnapshot, error)
	Name() string
}

// PositionStateStore owns the tracked-position table between reconciles. The
// tracker loads the whole table, computes the next one, and replaces it in a
// single call, so a failed reconcile never leaves partially-applied state.
type PositionStateStore interface {
	Load(ctx context.Context) (map[PositionKey]TrackedPosition, error)
	Replace(ctx context.Context, table map[PositionKey]TrackedPosition) error
}

// EventJournal is an append-only record of emitted lifecycle events, used by
// the status API. Journaling is best-effort: a journal failure never blocks
// dispatch.
type EventJournal interface {
	Append(ctx context.Context, event LifecycleEvent) error
	ListRecent(ctx context.Context, limit int) ([]LifecycleEvent, error)
}

// Sender delivers one payload to a single target on its platform. Rendering
// the payload into the platform's dialect is the sender's concern.
type Sender interface {
	Send(ctx context.Context, target NotificationTarget, payload MessagePayload) error
	Platform() Platform
}
