package services

import (
	"context"
	"log/slog"

	"github.com/custodia-labs/driftsync/internal/core/domain"
	"github.com/custodia-labs/driftsync/internal/core/ports/driven"
)

// ConflictResolver routes a reported conflict through the entity's
// configured resolution strategy. Conflicts are never silently dropped:
// every one is returned as a record for the cycle result, auto-resolved
// or not, so the host keeps an audit trail.
type ConflictResolver struct {
	queue    *OperationQueue
	executor *Executor
	merger   driven.Merger
	logger   *slog.Logger
}

// ResolverConfig holds dependencies for ConflictResolver.
type ResolverConfig struct {
	Queue    *OperationQueue
	Executor *Executor
	Merger   driven.Merger // Optional: required only for the merge strategy
	Logger   *slog.Logger
}

// NewConflictResolver creates a conflict resolver.
func NewConflictResolver(cfg ResolverConfig) *ConflictResolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ConflictResolver{
		queue:    cfg.Queue,
		executor: cfg.Executor,
		merger:   cfg.Merger,
		logger:   logger,
	}
}

// Resolve applies the strategy to one conflicted delivery and returns
// the audit record plus any bytes transferred by a redelivery.
func (r *ConflictResolver) Resolve(ctx context.Context, delivered ConflictedDelivery, strategy domain.SyncStrategy) (domain.SyncConflict, int64) {
	op := delivered.Op
	record := domain.SyncConflict{
		OperationID: op.ID,
		Entity:      op.Entity,
		EntityID:    op.EntityID,
		Resolution:  strategy.ConflictResolution,
		Remote:      delivered.Conflict.Remote,
		Message:     delivered.Conflict.Message,
	}

	r.logger.Info("resolving conflict",
		"operation_id", op.ID,
		"entity", op.Entity,
		"resolution", strategy.ConflictResolution,
	)

	switch strategy.ConflictResolution {
	case domain.ResolutionServerWins:
		// The remote state stands; the local operation is discarded.
		if err := r.queue.Remove(op.ID); err != nil {
			r.logger.Warn("failed to discard conflicted operation", "operation_id", op.ID, "error", err)
		}
		record.Resolved = true
		return record, 0

	case domain.ResolutionLocalWins:
		// Re-deliver with a forced overwrite so the local payload
		// replaces the divergent remote state.
		bytes, conflict, err := r.executor.Redeliver(ctx, op, true)
		if err != nil || conflict != nil {
			r.logger.Warn("forced redelivery failed", "operation_id", op.ID, "error", err)
			_ = r.queue.MarkConflictPending(op.ID)
			return record, 0
		}
		if err := r.queue.Remove(op.ID); err != nil {
			r.logger.Warn("failed to remove redelivered operation", "operation_id", op.ID, "error", err)
		}
		record.Resolved = true
		return record, bytes

	case domain.ResolutionMerge:
		if r.merger == nil {
			// No merge function supplied; fall back to manual handling.
			_ = r.queue.MarkConflictPending(op.ID)
			return record, 0
		}
		merged, err := r.merger.Merge(ctx, op, delivered.Conflict.Remote)
		if err != nil {
			r.logger.Warn("merge failed", "operation_id", op.ID, "error", err)
			_ = r.queue.MarkConflictPending(op.ID)
			return record, 0
		}
		mergedOp, err := r.queue.Reinject(op.ID, merged)
		if err != nil {
			return record, 0
		}
		bytes, conflict, err := r.executor.Redeliver(ctx, mergedOp, false)
		if err != nil || conflict != nil {
			r.logger.Warn("merged redelivery failed", "operation_id", op.ID, "error", err)
			_ = r.queue.MarkConflictPending(op.ID)
			return record, 0
		}
		if err := r.queue.Remove(op.ID); err != nil {
			r.logger.Warn("failed to remove merged operation", "operation_id", op.ID, "error", err)
		}
		record.Resolved = true
		return record, bytes

	default:
		// Manual: park the operation, excluded from auto-retry, until
		// the host resolves it explicitly.
		if err := r.queue.MarkConflictPending(op.ID); err != nil {
			r.logger.Warn("failed to park conflicted operation", "operation_id", op.ID, "error", err)
		}
		return record, 0
	}
}
