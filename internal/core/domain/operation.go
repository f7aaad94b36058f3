package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OperationType identifies the kind of local mutation awaiting delivery
type OperationType string

const (
	OperationCreate OperationType = "create"
	OperationUpdate OperationType = "update"
	OperationDelete OperationType = "delete"
)

// OperationStatus represents the current state of a queued operation.
// There is no terminal "completed" status: a successfully delivered
// operation is removed from the queue rather than marked.
type OperationStatus string

const (
	OperationStatusPending  OperationStatus = "pending"
	OperationStatusRetrying OperationStatus = "retrying"
	OperationStatusFailed   OperationStatus = "failed"
)

// Priority determines batch ordering. It never affects correctness,
// only which operations are delivered first.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank returns the numeric ordering weight (critical=4 ... low=1).
// Unknown values rank lowest.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Operation is a single pending local mutation awaiting remote delivery.
// It exists in the queue if and only if it has not yet been durably
// acknowledged by the remote.
type Operation struct {
	// ID is assigned at enqueue time and stable for the life of the operation
	ID string `json:"id"`

	// Entity is the logical entity-type name. It maps to a sync strategy
	// and a remote endpoint.
	Entity string `json:"entity"`

	// EntityID identifies the affected record
	EntityID string `json:"entity_id"`

	// Type is the mutation kind (create, update, delete)
	Type OperationType `json:"type"`

	// Data is the opaque payload to deliver
	Data json.RawMessage `json:"data,omitempty"`

	// Priority orders the operation within a batch
	Priority Priority `json:"priority"`

	// Timestamp is the creation time, used as a tie-breaker within a
	// priority tier and for staleness checks
	Timestamp time.Time `json:"timestamp"`

	// RetryCount is incremented on each failed delivery attempt
	RetryCount int `json:"retry_count"`

	// Status is the current queue state
	Status OperationStatus `json:"status"`

	// Error holds the last failure message when Status is failed
	Error string `json:"error,omitempty"`

	// ConflictPending marks an operation held back for manual conflict
	// resolution. Such operations are excluded from automatic retry until
	// the host resolves them.
	ConflictPending bool `json:"conflict_pending,omitempty"`
}

// NewOperation creates a pending operation with a fresh ID.
func NewOperation(entity, entityID string, opType OperationType, data json.RawMessage, priority Priority) *Operation {
	if priority == "" {
		priority = PriorityMedium
	}
	return &Operation{
		ID:        uuid.NewString(),
		Entity:    entity,
		EntityID:  entityID,
		Type:      opType,
		Data:      data,
		Priority:  priority,
		Timestamp: time.Now(),
		Status:    OperationStatusPending,
	}
}

// MarkRetrying records a transient failure and counts the attempt.
func (o *Operation) MarkRetrying(errMsg string) {
	o.RetryCount++
	o.Status = OperationStatusRetrying
	o.Error = errMsg
}

// MarkFailed records that the operation exhausted its retries this cycle.
// It stays in the queue with its accumulated retry count so the next
// cycle does not restart the retry budget from zero.
func (o *Operation) MarkFailed(errMsg string) {
	o.Status = OperationStatusFailed
	o.Error = errMsg
}

// MarkConflictPending parks the operation for manual resolution.
func (o *Operation) MarkConflictPending() {
	o.ConflictPending = true
	o.Status = OperationStatusPending
	o.Error = ""
}

// Reinject replaces the payload with a resolved one and makes the
// operation eligible for delivery again as a fresh attempt.
func (o *Operation) Reinject(data json.RawMessage) {
	o.Data = data
	o.ConflictPending = false
	o.Status = OperationStatusPending
	o.RetryCount = 0
	o.Error = ""
}

// Clone returns a deep-enough copy for read-only callers.
func (o *Operation) Clone() *Operation {
	cp := *o
	if o.Data != nil {
		cp.Data = append(json.RawMessage(nil), o.Data...)
	}
	return &cp
}
