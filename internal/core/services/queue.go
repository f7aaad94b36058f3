package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/driftsync/internal/core/domain"
	"github.com/custodia-labs/driftsync/internal/core/ports/driven"
)

const defaultPersistDebounce = 200 * time.Millisecond

// OperationQueue holds the pending operations. The in-memory set is
// authoritative; the state store is a best-effort mirror written on a
// debounced schedule after every mutation. Persistence failures are
// reported through the error callback, never to the caller that
// performed the mutation.
type OperationQueue struct {
	store    driven.StateStore
	logger   *slog.Logger
	debounce time.Duration

	// onPersistError is invoked outside the queue lock
	onPersistError func(error)

	// onStatusChange observes operation status transitions, invoked
	// outside the queue lock with a copy
	onStatusChange func(*domain.Operation)

	mu  sync.RWMutex
	ops map[string]*domain.Operation

	persistCh chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
}

// QueueConfig holds dependencies for OperationQueue.
type QueueConfig struct {
	Store          driven.StateStore
	Logger         *slog.Logger
	Debounce       time.Duration           // Delay between a mutation and its persist (default: 200ms)
	OnPersistError func(error)             // Optional: notified when a background persist fails
	OnStatusChange func(*domain.Operation) // Optional: notified after an operation's status changes
}

// NewOperationQueue creates an operation queue and starts its persist
// loop. Call Close to stop it and flush outstanding state.
func NewOperationQueue(cfg QueueConfig) *OperationQueue {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultPersistDebounce
	}

	q := &OperationQueue{
		store:          cfg.Store,
		logger:         logger,
		debounce:       debounce,
		onPersistError: cfg.OnPersistError,
		onStatusChange: cfg.OnStatusChange,
		ops:            make(map[string]*domain.Operation),
		persistCh:      make(chan struct{}, 1),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}

	go q.persistLoop()

	return q
}

// Load replaces the in-memory set with the persisted one. A load error
// is returned as-is; the caller decides whether it is fatal.
func (q *OperationQueue) Load(ctx context.Context) error {
	ops, err := q.store.LoadOperations(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pending operations: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = make(map[string]*domain.Operation, len(ops))
	for _, op := range ops {
		q.ops[op.ID] = op
	}

	q.logger.Info("operation queue loaded", "pending", len(ops))
	return nil
}

// Add enqueues an operation.
func (q *OperationQueue) Add(op *domain.Operation) {
	q.mu.Lock()
	q.ops[op.ID] = op
	q.mu.Unlock()

	q.schedulePersist()
}

// Remove drops an operation from the queue.
func (q *OperationQueue) Remove(id string) error {
	q.mu.Lock()
	_, ok := q.ops[id]
	if ok {
		delete(q.ops, id)
	}
	q.mu.Unlock()

	if !ok {
		return domain.ErrOperationNotFound
	}
	q.schedulePersist()
	return nil
}

// Get returns a read-only copy of an operation.
func (q *OperationQueue) Get(id string) (*domain.Operation, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	op, ok := q.ops[id]
	if !ok {
		return nil, domain.ErrOperationNotFound
	}
	return op.Clone(), nil
}

// UpdateStatus changes an operation's status and error message.
func (q *OperationQueue) UpdateStatus(id string, status domain.OperationStatus, errMsg string) error {
	q.mu.Lock()
	op, ok := q.ops[id]
	var changed *domain.Operation
	if ok {
		op.Status = status
		op.Error = errMsg
		changed = q.snapshotForNotify(op)
	}
	q.mu.Unlock()

	if !ok {
		return domain.ErrOperationNotFound
	}
	q.notifyStatusChange(changed)
	q.schedulePersist()
	return nil
}

// MarkRetrying counts a failed delivery attempt and returns the new
// retry count. All operation mutations go through the queue so writes
// stay under its lock.
func (q *OperationQueue) MarkRetrying(id, errMsg string) (int, error) {
	q.mu.Lock()
	op, ok := q.ops[id]
	var count int
	var changed *domain.Operation
	if ok {
		op.MarkRetrying(errMsg)
		count = op.RetryCount
		changed = q.snapshotForNotify(op)
	}
	q.mu.Unlock()

	if !ok {
		return 0, domain.ErrOperationNotFound
	}
	q.notifyStatusChange(changed)
	q.schedulePersist()
	return count, nil
}

// MarkFailed records that the operation exhausted its retries this cycle.
func (q *OperationQueue) MarkFailed(id, errMsg string) error {
	q.mu.Lock()
	op, ok := q.ops[id]
	var changed *domain.Operation
	if ok {
		op.MarkFailed(errMsg)
		changed = q.snapshotForNotify(op)
	}
	q.mu.Unlock()

	if !ok {
		return domain.ErrOperationNotFound
	}
	q.notifyStatusChange(changed)
	q.schedulePersist()
	return nil
}

// MarkConflictPending parks an operation for manual resolution.
func (q *OperationQueue) MarkConflictPending(id string) error {
	q.mu.Lock()
	op, ok := q.ops[id]
	var changed *domain.Operation
	if ok {
		op.MarkConflictPending()
		changed = q.snapshotForNotify(op)
	}
	q.mu.Unlock()

	if !ok {
		return domain.ErrOperationNotFound
	}
	q.notifyStatusChange(changed)
	q.schedulePersist()
	return nil
}

// Reinject replaces a parked operation's payload with a resolved one and
// makes it deliverable again.
func (q *OperationQueue) Reinject(id string, data json.RawMessage) (*domain.Operation, error) {
	q.mu.Lock()
	op, ok := q.ops[id]
	var changed *domain.Operation
	if ok {
		op.Reinject(data)
		changed = q.snapshotForNotify(op)
	}
	q.mu.Unlock()

	if !ok {
		return nil, domain.ErrOperationNotFound
	}
	q.notifyStatusChange(changed)
	q.schedulePersist()
	return op, nil
}

// snapshotForNotify clones an operation for the status callback; called
// under the queue lock.
func (q *OperationQueue) snapshotForNotify(op *domain.Operation) *domain.Operation {
	if q.onStatusChange == nil {
		return nil
	}
	return op.Clone()
}

func (q *OperationQueue) notifyStatusChange(op *domain.Operation) {
	if q.onStatusChange != nil && op != nil {
		q.onStatusChange(op)
	}
}

// All returns a snapshot of the queue, ordered like a batch would be.
func (q *OperationQueue) All() []*domain.Operation {
	q.mu.RLock()
	out := make([]*domain.Operation, 0, len(q.ops))
	for _, op := range q.ops {
		out = append(out, op.Clone())
	}
	q.mu.RUnlock()

	sortOperations(out)
	return out
}

// Len returns the number of queued operations.
func (q *OperationQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.ops)
}

// FailedCount returns how many operations have exhausted their retries.
func (q *OperationQueue) FailedCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	n := 0
	for _, op := range q.ops {
		if op.Status == domain.OperationStatusFailed {
			n++
		}
	}
	return n
}

// BatchFilter narrows which operations are eligible for a cycle.
type BatchFilter struct {
	// Entity restricts the batch to one entity type when non-empty
	Entity string

	// EntityID further restricts to a single record when non-empty
	EntityID string

	// Selective is the entity allow-list; nil disables selective sync
	Selective []string

	// IgnoreConditions skips strategy condition checks (force sync)
	IgnoreConditions bool
}

// EligibleBatch selects up to batchSize operations for delivery:
// filter by allow-list and strategy conditions, order by priority
// descending with FIFO (oldest timestamp first) within a tier, then
// truncate. Operations parked for manual conflict resolution are never
// selected. The returned operations are the queue's own records: the
// executor mutates them in place.
func (q *OperationQueue) EligibleBatch(
	table domain.StrategyTable,
	fallback domain.SyncStrategy,
	state domain.NetworkState,
	batchSize int,
	filter BatchFilter,
) []*domain.Operation {
	var allowed map[string]bool
	if filter.Selective != nil {
		allowed = make(map[string]bool, len(filter.Selective))
		for _, entity := range filter.Selective {
			allowed[entity] = true
		}
	}

	q.mu.RLock()
	eligible := make([]*domain.Operation, 0, len(q.ops))
	for _, op := range q.ops {
		if op.ConflictPending {
			continue
		}
		if filter.Entity != "" && op.Entity != filter.Entity {
			continue
		}
		if filter.EntityID != "" && op.EntityID != filter.EntityID {
			continue
		}
		if allowed != nil && !allowed[op.Entity] {
			continue
		}
		if !filter.IgnoreConditions {
			strategy := table.For(op.Entity, fallback)
			if !strategy.Eligible(op, state) {
				continue
			}
		}
		eligible = append(eligible, op)
	}
	q.mu.RUnlock()

	sortOperations(eligible)

	if batchSize > 0 && len(eligible) > batchSize {
		eligible = eligible[:batchSize]
	}
	return eligible
}

// sortOperations orders by priority rank descending, then timestamp
// ascending, then ID. The ID tie-break keeps the order fully
// deterministic regardless of map iteration.
func sortOperations(ops []*domain.Operation) {
	sort.Slice(ops, func(i, j int) bool {
		ri, rj := ops[i].Priority.Rank(), ops[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		if !ops[i].Timestamp.Equal(ops[j].Timestamp) {
			return ops[i].Timestamp.Before(ops[j].Timestamp)
		}
		return ops[i].ID < ops[j].ID
	})
}

// Persist writes a snapshot of the queue to the store synchronously.
func (q *OperationQueue) Persist(ctx context.Context) error {
	q.mu.RLock()
	snapshot := make([]*domain.Operation, 0, len(q.ops))
	for _, op := range q.ops {
		snapshot = append(snapshot, op.Clone())
	}
	q.mu.RUnlock()

	sortOperations(snapshot)

	if err := q.store.SaveOperations(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to save pending operations: %w", err)
	}
	return nil
}

// Close stops the persist loop after a final flush.
func (q *OperationQueue) Close(ctx context.Context) error {
	q.stopOnce.Do(func() { close(q.stopCh) })
	<-q.doneCh
	return q.Persist(ctx)
}

// schedulePersist requests a debounced background persist. The channel
// has capacity one, so bursts of mutations collapse into a single write.
func (q *OperationQueue) schedulePersist() {
	select {
	case q.persistCh <- struct{}{}:
	default:
	}
}

func (q *OperationQueue) persistLoop() {
	defer close(q.doneCh)

	for {
		select {
		case <-q.stopCh:
			return
		case <-q.persistCh:
			timer := time.NewTimer(q.debounce)
			select {
			case <-q.stopCh:
				timer.Stop()
				return
			case <-timer.C:
			}

			// Collapse signals that arrived during the debounce window
			select {
			case <-q.persistCh:
			default:
			}

			if err := q.Persist(context.Background()); err != nil {
				q.logger.Warn("background persist failed", "error", err)
				if q.onPersistError != nil {
					q.onPersistError(err)
				}
			}
		}
	}
}
