package driving

import (
	"context"
	"encoding/json"

	"github.com/custodia-labs/driftsync/internal/core/domain"
)

// AddOperationRequest describes a local mutation to enqueue.
type AddOperationRequest struct {
	Entity   string               `json:"entity"`
	EntityID string               `json:"entity_id"`
	Type     domain.OperationType `json:"type"`
	Data     json.RawMessage      `json:"data,omitempty"`
	Priority domain.Priority      `json:"priority,omitempty"`
}

// SyncEngine is the public facade of the offline sync engine.
type SyncEngine interface {
	// Initialize loads persisted state and arms background sync.
	// A storage load failure here is fatal and returned.
	Initialize(ctx context.Context) error

	// AddOperation enqueues a local mutation for eventual delivery.
	AddOperation(ctx context.Context, req AddOperationRequest) (*domain.Operation, error)

	// RemoveOperation drops a queued operation without delivering it.
	RemoveOperation(ctx context.Context, id string) error

	// Operations returns a snapshot of the queued operations.
	Operations() []*domain.Operation

	// SyncAll runs one sync cycle over the eligible batch.
	SyncAll(ctx context.Context) (*domain.SyncResult, error)

	// SyncEntity runs one sync cycle restricted to a single entity type,
	// optionally to a single record.
	SyncEntity(ctx context.Context, entity, entityID string) (*domain.SyncResult, error)

	// ForceSync runs one sync cycle ignoring selective-sync filtering
	// and strategy conditions.
	ForceSync(ctx context.Context) (*domain.SyncResult, error)

	// PauseSync stops the periodic timer and rejects new cycles.
	// An in-flight cycle is allowed to finish.
	PauseSync()

	// ResumeSync re-arms the periodic timer if background sync is enabled.
	ResumeSync()

	// ResolveConflict re-injects a manually resolved payload for a parked
	// operation and attempts delivery.
	ResolveConflict(ctx context.Context, operationID string, resolved json.RawMessage) error

	// Status returns a live engine snapshot.
	Status() domain.SyncStatus

	// Health computes the current health verdict.
	Health() domain.Health

	// History returns the recorded sync runs, oldest first.
	History() []*domain.HistoryEntry

	// ClearHistory removes all recorded sync runs.
	ClearHistory(ctx context.Context) error

	// Events exposes the typed outbound event stream.
	Events() <-chan domain.Event

	// Destroy stops background work and flushes state.
	Destroy(ctx context.Context) error
}
