package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/custodia-labs/driftsync/internal/core/domain"
	"github.com/custodia-labs/driftsync/internal/core/ports/driven"
)

const (
	// Ceilings for network-adaptive growth
	maxAdaptiveTimeout    = 2 * time.Minute
	maxAdaptiveRetryDelay = 30 * time.Second
)

// Executor drains a batch of operations, delivering each to its
// configured remote endpoint sequentially. Retry backoff for one
// operation therefore never races persistence writes for another.
type Executor struct {
	queue     *OperationQueue
	transport driven.Transport
	clock     driven.Clock
	logger    *slog.Logger
	cfg       domain.Config

	// Network-adaptive parameters, guarded separately from delivery
	mu         sync.Mutex
	batchSize  int
	timeout    time.Duration
	retryDelay time.Duration
}

// ExecutorConfig holds dependencies for Executor.
type ExecutorConfig struct {
	Queue     *OperationQueue
	Transport driven.Transport
	Clock     driven.Clock
	Logger    *slog.Logger
	Config    domain.Config
}

// NewExecutor creates a batch executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = driven.SystemClock{}
	}
	conf := cfg.Config.Normalize()

	return &Executor{
		queue:      cfg.Queue,
		transport:  cfg.Transport,
		clock:      clock,
		logger:     logger,
		cfg:        conf,
		batchSize:  conf.BatchSize,
		timeout:    conf.Timeout,
		retryDelay: conf.RetryDelay,
	}
}

// BatchSize returns the current, possibly network-adapted, batch size.
func (e *Executor) BatchSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.batchSize
}

// RequestTimeout returns the current per-request timeout.
func (e *Executor) RequestTimeout() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timeout
}

// RetryDelay returns the current base retry delay.
func (e *Executor) RetryDelay() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retryDelay
}

// ApplyNetworkState adapts delivery parameters to link quality: on a
// poor-network signal the batch size halves (minimum 1) and the request
// timeout and retry delay double up to their ceilings. A healthy signal
// restores the configured values.
func (e *Executor) ApplyNetworkState(state domain.NetworkState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if state.Poor() {
		e.batchSize = e.batchSize / 2
		if e.batchSize < 1 {
			e.batchSize = 1
		}
		e.timeout = min(e.timeout*2, maxAdaptiveTimeout)
		e.retryDelay = min(e.retryDelay*2, maxAdaptiveRetryDelay)

		e.logger.Info("adapted to poor network",
			"batch_size", e.batchSize,
			"timeout", e.timeout,
			"retry_delay", e.retryDelay,
		)
		return
	}

	if state.Online {
		e.batchSize = e.cfg.BatchSize
		e.timeout = e.cfg.Timeout
		e.retryDelay = e.cfg.RetryDelay
	}
}

// FailedDelivery pairs an operation with its terminal error for the cycle.
type FailedDelivery struct {
	Op  *domain.Operation
	Err error
}

// ConflictedDelivery pairs an operation with the conflict the remote
// reported.
type ConflictedDelivery struct {
	Op       *domain.Operation
	Conflict *driven.DeliveryConflict
}

// BatchOutcome aggregates per-operation outcomes of one cycle. Failures
// of individual operations never abort the batch.
type BatchOutcome struct {
	Synced    []*domain.Operation
	Failed    []FailedDelivery
	Conflicts []ConflictedDelivery
	Bytes     int64
}

// RunBatch delivers each operation in order. Successfully acknowledged
// operations are removed from the queue; conflicted operations are
// handed back for resolution; failed operations stay queued with their
// accumulated retry counts.
func (e *Executor) RunBatch(ctx context.Context, ops []*domain.Operation, table domain.StrategyTable) *BatchOutcome {
	outcome := &BatchOutcome{}
	fallback := e.cfg.DefaultStrategy()

	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			outcome.Failed = append(outcome.Failed, FailedDelivery{Op: op, Err: err})
			continue
		}

		policy := table.For(op.Entity, fallback).Retry
		bytes, conflict, err := e.deliver(ctx, op, policy)

		switch {
		case err != nil:
			outcome.Failed = append(outcome.Failed, FailedDelivery{Op: op, Err: err})
		case conflict != nil:
			outcome.Conflicts = append(outcome.Conflicts, ConflictedDelivery{Op: op, Conflict: conflict})
		default:
			outcome.Bytes += bytes
			outcome.Synced = append(outcome.Synced, op)
			if rmErr := e.queue.Remove(op.ID); rmErr != nil && !errors.Is(rmErr, domain.ErrOperationNotFound) {
				e.logger.Warn("failed to remove synced operation", "operation_id", op.ID, "error", rmErr)
			}
		}
	}

	return outcome
}

// deliver attempts one operation with bounded, exponentially backed-off
// retries. The loop is explicit: retry chains never grow the call stack.
// A conflict short-circuits immediately; conflicts need resolution, not
// resending.
func (e *Executor) deliver(ctx context.Context, op *domain.Operation, policy domain.RetryPolicy) (int64, *driven.DeliveryConflict, error) {
	endpoint, ok := e.cfg.Endpoints[op.Entity]
	if !ok {
		err := fmt.Errorf("%w for entity %q", domain.ErrNoEndpoint, op.Entity)
		if mErr := e.queue.MarkFailed(op.ID, err.Error()); mErr != nil {
			return 0, nil, err
		}
		return 0, nil, err
	}

	opts := e.deliveryOptions()

	// A poor-network signal stretches the base delay beyond what the
	// strategy configured.
	if adapted := e.RetryDelay(); adapted > e.cfg.RetryDelay && adapted > policy.RetryDelay {
		policy.RetryDelay = adapted
	}

	for {
		res, err := e.transport.Deliver(ctx, endpoint, op, opts)
		if err == nil {
			if res.Conflict != nil && e.cfg.EnableConflictDetection {
				return 0, res.Conflict, nil
			}
			return res.BytesTransferred, nil, nil
		}

		if op.RetryCount >= policy.MaxRetries {
			_ = e.queue.MarkFailed(op.ID, err.Error())
			e.logger.Warn("operation exhausted retries",
				"operation_id", op.ID,
				"entity", op.Entity,
				"retry_count", op.RetryCount,
				"error", err,
			)
			return 0, nil, err
		}

		attempt, mErr := e.queue.MarkRetrying(op.ID, err.Error())
		if mErr != nil {
			return 0, nil, err
		}

		wait := policy.BackoffFor(attempt)
		if policy.Jitter {
			wait = jitter(wait)
		}

		e.logger.Debug("retrying operation",
			"operation_id", op.ID,
			"attempt", attempt,
			"max_retries", policy.MaxRetries,
			"wait", wait,
		)

		if sErr := e.clock.Sleep(ctx, wait); sErr != nil {
			_ = e.queue.MarkFailed(op.ID, sErr.Error())
			return 0, nil, sErr
		}
	}
}

// Redeliver attempts a single delivery outside the retry loop, used when
// re-sending after conflict resolution. ForceOverwrite asks the remote
// to apply the payload over its divergent state.
func (e *Executor) Redeliver(ctx context.Context, op *domain.Operation, forceOverwrite bool) (int64, *driven.DeliveryConflict, error) {
	endpoint, ok := e.cfg.Endpoints[op.Entity]
	if !ok {
		return 0, nil, fmt.Errorf("%w for entity %q", domain.ErrNoEndpoint, op.Entity)
	}

	opts := e.deliveryOptions()
	opts.ForceOverwrite = forceOverwrite

	res, err := e.transport.Deliver(ctx, endpoint, op, opts)
	if err != nil {
		return 0, nil, err
	}
	if res.Conflict != nil && e.cfg.EnableConflictDetection {
		return 0, res.Conflict, nil
	}
	return res.BytesTransferred, nil, nil
}

func (e *Executor) deliveryOptions() driven.DeliveryOptions {
	e.mu.Lock()
	timeout := e.timeout
	e.mu.Unlock()

	return driven.DeliveryOptions{
		Timeout:  timeout,
		Compress: e.cfg.EnableCompression,
		Headers:  e.cfg.Headers,
	}
}

// jitter spreads a wait over [wait/2, wait) to avoid synchronized
// retries across instances.
func jitter(wait time.Duration) time.Duration {
	if wait <= 1 {
		return wait
	}
	half := wait / 2
	return half + time.Duration(rand.Int63n(int64(half)))
}
