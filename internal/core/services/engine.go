package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/driftsync/internal/core/domain"
	"github.com/custodia-labs/driftsync/internal/core/ports/driven"
	"github.com/custodia-labs/driftsync/internal/core/ports/driving"
)

const defaultEventBuffer = 64

// Verify interface compliance
var _ driving.SyncEngine = (*Engine)(nil)

// Engine is the sync facade. It composes the operation queue, executor,
// conflict resolver, scheduler, health monitor and history log behind
// the public operations, and owns the typed outbound event stream.
//
// All collaborators are injected; there is no ambient global state, so
// tests run against fake clocks, stores and networks.
type Engine struct {
	cfg     domain.Config
	store   driven.StateStore
	network driven.NetworkMonitor
	clock   driven.Clock
	logger  *slog.Logger

	queue     *OperationQueue
	executor  *Executor
	resolver  *ConflictResolver
	scheduler *Scheduler
	health    *HealthMonitor
	history   *HistoryLog

	events       chan domain.Event
	eventMu      sync.RWMutex
	eventsClosed bool

	mu          sync.Mutex
	initialized bool
	destroyed   bool
}

// EngineConfig holds dependencies for Engine.
type EngineConfig struct {
	Config          domain.Config
	Store           driven.StateStore
	Network         driven.NetworkMonitor
	Transport       driven.Transport
	Clock           driven.Clock          // Optional: defaults to the system clock
	Merger          driven.Merger         // Optional: required only for merge conflict strategies
	Logger          *slog.Logger          // Optional: defaults to slog.Default()
	EventBuffer     int                   // Optional: outbound event channel capacity (default: 64)
	PersistDebounce time.Duration         // Optional: delay before background persists (default: 200ms)
}

// NewEngine creates a sync engine. Call Initialize before use and
// Destroy when done; the caller remains responsible for closing the
// injected store and network monitor afterwards.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = driven.SystemClock{}
	}
	conf := cfg.Config.Normalize()

	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}

	e := &Engine{
		cfg:     conf,
		store:   cfg.Store,
		network: cfg.Network,
		clock:   clock,
		logger:  logger,
		events:  make(chan domain.Event, buffer),
	}

	e.queue = NewOperationQueue(QueueConfig{
		Store:          cfg.Store,
		Logger:         logger,
		Debounce:       cfg.PersistDebounce,
		OnPersistError: e.persistErrorHandler("operations"),
		OnStatusChange: func(op *domain.Operation) {
			e.emit(domain.Event{Kind: domain.EventOperationUpdated, OperationID: op.ID, Entity: op.Entity})
		},
	})
	e.executor = NewExecutor(ExecutorConfig{
		Queue:     e.queue,
		Transport: cfg.Transport,
		Clock:     clock,
		Logger:    logger,
		Config:    conf,
	})
	e.resolver = NewConflictResolver(ResolverConfig{
		Queue:    e.queue,
		Executor: e.executor,
		Merger:   cfg.Merger,
		Logger:   logger,
	})
	e.history = NewHistoryLog(HistoryConfig{
		Store:          cfg.Store,
		Logger:         logger,
		OnPersistError: e.persistErrorHandler("history"),
	})
	e.health = NewHealthMonitor(e.queue, clock)
	e.scheduler = NewScheduler(SchedulerConfig{
		Network:    cfg.Network,
		Clock:      clock,
		Logger:     logger,
		Interval:   conf.SyncInterval,
		Background: conf.EnableBackgroundSync,
		Run:        e.backgroundSync,
		OnNetwork:  e.handleNetworkChange,
	})

	return e
}

// Initialize loads persisted state and starts the background loop.
// A failure to load the operation queue is fatal and returned; a
// failure to load history is tolerated.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return domain.ErrDestroyed
	}
	if e.initialized {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	if err := e.queue.Load(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if err := e.history.Load(ctx); err != nil {
		e.logger.Warn("failed to load sync history", "error", err)
		e.emit(domain.Event{Kind: domain.EventPersistenceError, Err: err.Error()})
	}

	if e.network != nil {
		e.executor.ApplyNetworkState(e.network.State())
	}

	if err := e.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	e.mu.Lock()
	e.initialized = true
	e.mu.Unlock()

	e.logger.Info("sync engine initialized",
		"pending", e.queue.Len(),
		"history", e.history.Len(),
		"background", e.cfg.EnableBackgroundSync,
	)
	e.emit(domain.Event{Kind: domain.EventInitialized})
	return nil
}

// AddOperation enqueues a local mutation for eventual delivery. The
// operation is durably mirrored on a debounced schedule; a persistence
// failure is reported as an event, never returned here.
func (e *Engine) AddOperation(ctx context.Context, req driving.AddOperationRequest) (*domain.Operation, error) {
	if err := e.usable(); err != nil {
		return nil, err
	}
	if req.Entity == "" {
		return nil, fmt.Errorf("entity is required")
	}
	// Offline mode queues mutations while disconnected; with it disabled
	// the caller handles the outage itself.
	if !e.cfg.EnableOfflineMode && !e.online() {
		return nil, domain.ErrOffline
	}

	op := domain.NewOperation(req.Entity, req.EntityID, req.Type, req.Data, req.Priority)
	op.Timestamp = e.clock.Now()
	e.queue.Add(op)

	e.logger.Debug("operation added",
		"operation_id", op.ID,
		"entity", op.Entity,
		"type", op.Type,
		"priority", op.Priority,
	)
	e.emit(domain.Event{Kind: domain.EventOperationAdded, OperationID: op.ID, Entity: op.Entity})

	// Realtime mode pushes changes as they arrive instead of waiting
	// for the next tick. The single-flight guard absorbs bursts.
	if e.cfg.EnableRealtimeSync && e.online() && !e.scheduler.IsSyncing() && !e.scheduler.IsPaused() {
		go func() {
			if _, err := e.SyncAll(context.Background()); err != nil {
				e.logger.Debug("realtime sync skipped", "error", err)
			}
		}()
	}

	return op.Clone(), nil
}

// RemoveOperation drops a queued operation without delivering it.
func (e *Engine) RemoveOperation(ctx context.Context, id string) error {
	if err := e.usable(); err != nil {
		return err
	}
	if err := e.queue.Remove(id); err != nil {
		return err
	}
	e.emit(domain.Event{Kind: domain.EventOperationRemoved, OperationID: id})
	return nil
}

// Operations returns a snapshot of the queue in batch order.
func (e *Engine) Operations() []*domain.Operation {
	return e.queue.All()
}

// SyncAll runs one sync cycle over the eligible batch.
func (e *Engine) SyncAll(ctx context.Context) (*domain.SyncResult, error) {
	filter := BatchFilter{}
	if e.cfg.EnableSelectiveSync {
		filter.Selective = e.cfg.PrioritySync
	}
	return e.syncCycle(ctx, filter)
}

// SyncEntity runs one sync cycle restricted to a single entity type,
// optionally to a single record. The explicit intent bypasses the
// selective-sync allow-list.
func (e *Engine) SyncEntity(ctx context.Context, entity, entityID string) (*domain.SyncResult, error) {
	return e.syncCycle(ctx, BatchFilter{Entity: entity, EntityID: entityID})
}

// ForceSync runs one sync cycle ignoring selective-sync filtering and
// strategy conditions. It still honors pause and the single-flight
// guard, and cannot deliver while offline.
func (e *Engine) ForceSync(ctx context.Context) (*domain.SyncResult, error) {
	return e.syncCycle(ctx, BatchFilter{IgnoreConditions: true})
}

// syncCycle is the single path every sync trigger funnels through.
func (e *Engine) syncCycle(ctx context.Context, filter BatchFilter) (*domain.SyncResult, error) {
	if err := e.usable(); err != nil {
		return domain.FailedResult(e.clock.Now(), err.Error()), err
	}

	if err := e.scheduler.TryBegin(); err != nil {
		e.logger.Debug("sync rejected", "error", err)
		e.emit(domain.Event{Kind: domain.EventSyncError, Err: err.Error()})
		return domain.FailedResult(e.clock.Now(), err.Error()), err
	}

	if !e.online() {
		e.scheduler.End(false)
		e.emit(domain.Event{Kind: domain.EventSyncError, Err: domain.ErrOffline.Error()})
		return domain.FailedResult(e.clock.Now(), domain.ErrOffline.Error()), domain.ErrOffline
	}

	state := domain.NetworkState{Online: true}
	if e.network != nil {
		state = e.network.State()
	}

	batch := e.queue.EligibleBatch(
		e.cfg.Strategies,
		e.cfg.DefaultStrategy(),
		state,
		e.executor.BatchSize(),
		filter,
	)

	// An empty cycle is a no-op: success, and no queue, history or
	// health state is touched.
	if len(batch) == 0 {
		e.scheduler.End(false)
		return &domain.SyncResult{Success: true, Timestamp: e.clock.Now()}, nil
	}

	e.logger.Info("starting sync", "batch", len(batch))
	e.emit(domain.Event{Kind: domain.EventSyncStart})

	start := e.clock.Now()
	outcome := e.executor.RunBatch(ctx, batch, e.cfg.Strategies)

	result := &domain.SyncResult{
		OperationsSynced: len(outcome.Synced),
		OperationsFailed: len(outcome.Failed),
		BytesTransferred: outcome.Bytes,
	}
	for _, failed := range outcome.Failed {
		result.Errors = append(result.Errors, domain.SyncError{
			OperationID: failed.Op.ID,
			Entity:      failed.Op.Entity,
			Message:     failed.Err.Error(),
		})
	}

	fallback := e.cfg.DefaultStrategy()
	for _, conflicted := range outcome.Conflicts {
		strategy := e.cfg.Strategies.For(conflicted.Op.Entity, fallback)
		record, bytes := e.resolver.Resolve(ctx, conflicted, strategy)
		result.Conflicts = append(result.Conflicts, record)
		result.BytesTransferred += bytes
	}

	end := e.clock.Now()
	result.Duration = end.Sub(start)
	result.Timestamp = end
	result.Success = result.OperationsFailed == 0 && len(result.Conflicts) == 0

	e.history.Append(ctx, domain.NewHistoryEntry(result))
	e.scheduler.End(true)

	e.logger.Info("sync completed",
		"synced", result.OperationsSynced,
		"failed", result.OperationsFailed,
		"conflicts", len(result.Conflicts),
		"bytes", result.BytesTransferred,
		"duration", result.Duration,
	)
	e.emit(domain.Event{Kind: domain.EventSyncComplete, Result: result})

	return result, nil
}

// ResolveConflict re-injects a manually resolved payload for a parked
// operation and attempts delivery immediately. On a transient failure
// the operation stays queued for the next cycle; the error is returned
// so the host knows the immediate attempt did not land.
func (e *Engine) ResolveConflict(ctx context.Context, operationID string, resolved json.RawMessage) error {
	if err := e.usable(); err != nil {
		return err
	}

	op, err := e.queue.Get(operationID)
	if err != nil {
		return err
	}
	if !op.ConflictPending {
		return fmt.Errorf("operation %s has no pending conflict", operationID)
	}

	// Reinject reports the status transition through the queue's change
	// hook, which the engine surfaces as an operation_updated event.
	reinjected, err := e.queue.Reinject(operationID, resolved)
	if err != nil {
		return err
	}

	bytes, conflict, err := e.executor.Redeliver(ctx, reinjected, false)
	if err != nil {
		return fmt.Errorf("resolved operation re-queued after delivery failure: %w", err)
	}
	if conflict != nil {
		_ = e.queue.MarkConflictPending(operationID)
		return fmt.Errorf("remote reported another conflict for operation %s", operationID)
	}

	if err := e.queue.Remove(operationID); err != nil {
		return err
	}
	e.logger.Info("conflict resolved", "operation_id", operationID, "bytes", bytes)
	e.emit(domain.Event{Kind: domain.EventOperationRemoved, OperationID: operationID})
	return nil
}

// PauseSync stops the periodic timer and rejects new cycles. An
// in-flight cycle finishes.
func (e *Engine) PauseSync() {
	e.scheduler.Pause()
	e.logger.Info("sync paused")
	e.emit(domain.Event{Kind: domain.EventSyncPaused})
}

// ResumeSync re-arms the scheduler.
func (e *Engine) ResumeSync() {
	e.scheduler.Resume()
	e.logger.Info("sync resumed")
	e.emit(domain.Event{Kind: domain.EventSyncResumed})
}

// Status returns a live, derived snapshot. Nothing here is persisted.
func (e *Engine) Status() domain.SyncStatus {
	return domain.SyncStatus{
		IsSyncing:         e.scheduler.IsSyncing(),
		IsPaused:          e.scheduler.IsPaused(),
		Online:            e.online(),
		LastSyncTime:      e.scheduler.LastSyncTime(),
		NextSyncTime:      e.scheduler.NextSyncTime(),
		PendingOperations: e.queue.Len(),
		FailedOperations:  e.queue.FailedCount(),
	}
}

// Health recomputes the health verdict from current state.
func (e *Engine) Health() domain.Health {
	return e.health.Compute(e.scheduler.LastSyncTime())
}

// History returns the recorded sync runs, oldest first.
func (e *Engine) History() []*domain.HistoryEntry {
	return e.history.All()
}

// ClearHistory removes all recorded sync runs.
func (e *Engine) ClearHistory(ctx context.Context) error {
	if err := e.usable(); err != nil {
		return err
	}
	e.history.Clear(ctx)
	e.emit(domain.Event{Kind: domain.EventHistoryCleared})
	return nil
}

// Events exposes the typed outbound event stream. Events are dropped,
// not queued, when the consumer falls behind; the channel closes on
// Destroy.
func (e *Engine) Events() <-chan domain.Event {
	return e.events
}

// Destroy stops background work and flushes state. The injected store
// and network monitor stay open; the host closes them.
func (e *Engine) Destroy(ctx context.Context) error {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return nil
	}
	e.destroyed = true
	e.mu.Unlock()

	e.scheduler.Stop()

	if err := e.queue.Close(ctx); err != nil {
		e.logger.Warn("final queue flush failed", "error", err)
	}

	e.emit(domain.Event{Kind: domain.EventDestroyed})

	e.eventMu.Lock()
	e.eventsClosed = true
	close(e.events)
	e.eventMu.Unlock()

	e.logger.Info("sync engine destroyed")
	return nil
}

// backgroundSync is the scheduler's cycle trigger. Guard rejections and
// delivery failures are already folded into results and events.
func (e *Engine) backgroundSync(ctx context.Context) {
	if _, err := e.SyncAll(ctx); err != nil {
		e.logger.Debug("scheduled sync did not run", "error", err)
	}
}

// handleNetworkChange reacts to connectivity transitions: adapt the
// executor's delivery parameters and surface the transition as events.
func (e *Engine) handleNetworkChange(state domain.NetworkState) {
	e.executor.ApplyNetworkState(state)

	e.logger.Info("network changed",
		"online", state.Online,
		"effective_type", state.EffectiveType,
		"rtt", state.RTT,
	)

	e.emit(domain.Event{Kind: domain.EventNetworkChange, Network: &state})
	if state.Online {
		e.emit(domain.Event{Kind: domain.EventOnline, Network: &state})
	} else {
		e.emit(domain.Event{Kind: domain.EventOffline, Network: &state})
	}
}

func (e *Engine) online() bool {
	if e.network == nil {
		return true
	}
	return e.network.State().Online
}

func (e *Engine) usable() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return domain.ErrDestroyed
	}
	if !e.initialized {
		return domain.ErrNotInitialized
	}
	return nil
}

// persistErrorHandler builds the callback that turns background persist
// failures into events.
func (e *Engine) persistErrorHandler(what string) func(error) {
	return func(err error) {
		e.emit(domain.Event{
			Kind: domain.EventPersistenceError,
			Err:  fmt.Sprintf("%s: %s", what, err),
		})
	}
}

// emit publishes an event without blocking. Timestamp is stamped here
// so call sites stay terse.
func (e *Engine) emit(ev domain.Event) {
	ev.Timestamp = e.clock.Now()

	e.eventMu.RLock()
	defer e.eventMu.RUnlock()
	if e.eventsClosed {
		return
	}
	select {
	case e.events <- ev:
	default:
		e.logger.Debug("event dropped, consumer behind", "kind", ev.Kind)
	}
}
