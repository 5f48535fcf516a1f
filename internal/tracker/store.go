package tracker

import (
	"context"
	"sync"

	"github.com/mkarpenko/futurestrack/internal/domain"
)

// MemoryStore is the default PositionStateStore: an in-process table that
// lives for the run's lifetime. Load and Replace copy the table so callers
// never alias internal state.
type MemoryStore struct {
	mu    sync.RWMutex
	table map[domain.PositionKey]domain.TrackedPosition
}

// NewMemoryStore creates an empty in-memory state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{table: make(map[domain.PositionKey]domain.TrackedPosition)}
}

// Load returns a copy of the current table.
func (s *MemoryStore) Load(_ context.Context) (map[domain.PositionKey]domain.TrackedPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.PositionKey]domain.TrackedPosition, len(s.table))
	for k, v := range s.table {
		out[k] = v
	}
	return out, nil
}

// Replace swaps in the new table wholesale.
func (s *MemoryStore) Replace(_ context.Context, table map[domain.PositionKey]domain.TrackedPosition) error {
	next := make(map[domain.PositionKey]domain.TrackedPosition, len(table))
	for k, v := range table {
		next[k] = v
	}
	s.mu.Lock()
	s.table = next
	s.mu.Unlock()
	return nil
}
