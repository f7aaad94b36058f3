package driven

import (
	"context"

	"github.com/custodia-labs/driftsync/internal/core/domain"
)

// StateStore persists the operation queue and the sync history across
// process restarts. Durability is best effort: the in-memory queue is
// authoritative, the store is a mirror for restart recovery. Load
// failures during engine initialization are fatal; save failures after
// that are reported through events, never to the caller that mutated
// the queue.
type StateStore interface {
	// LoadOperations returns the persisted pending operations.
	LoadOperations(ctx context.Context) ([]*domain.Operation, error)

	// SaveOperations replaces the persisted pending set with a snapshot.
	SaveOperations(ctx context.Context, ops []*domain.Operation) error

	// LoadHistory returns the persisted sync history, oldest first.
	LoadHistory(ctx context.Context) ([]*domain.HistoryEntry, error)

	// SaveHistory replaces the persisted history with a snapshot.
	SaveHistory(ctx context.Context, entries []*domain.HistoryEntry) error

	// Ping checks if the storage backend is healthy.
	Ping(ctx context.Context) error

	// Close cleans up resources.
	Close() error
}
