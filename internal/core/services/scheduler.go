package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/driftsync/internal/core/domain"
	"github.com/custodia-labs/driftsync/internal/core/ports/driven"
)

// Scheduler drives background and on-demand sync cycles and enforces
// "at most one sync in flight". It is a state machine over
// {idle, syncing, paused}: a cycle may start only from idle; completion
// always returns to idle (or paused when a pause arrived mid-cycle);
// concurrent start requests lose and are dropped, not queued — the next
// tick or trigger naturally retries.
type Scheduler struct {
	network driven.NetworkMonitor
	clock   driven.Clock
	logger  *slog.Logger

	interval   time.Duration
	background bool

	// run executes one background-triggered cycle. The engine supplies
	// it; errors are handled there.
	run func(ctx context.Context)

	// onNetwork observes every connectivity transition.
	onNetwork func(domain.NetworkState)

	mu       sync.RWMutex
	syncing  bool
	paused   bool
	lastSync time.Time
	nextSync time.Time

	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// SchedulerConfig holds dependencies for Scheduler.
type SchedulerConfig struct {
	Network    driven.NetworkMonitor
	Clock      driven.Clock
	Logger     *slog.Logger
	Interval   time.Duration // Period between background cycles (default: 30s)
	Background bool          // Arm the periodic timer
	Run        func(ctx context.Context)
	OnNetwork  func(domain.NetworkState)
}

// NewScheduler creates a sync scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = driven.SystemClock{}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &Scheduler{
		network:    cfg.Network,
		clock:      clock,
		logger:     logger,
		interval:   interval,
		background: cfg.Background,
		run:        cfg.Run,
		onNetwork:  cfg.OnNetwork,
	}
}

// Start begins the background loop: the periodic timer plus network
// transition watching. It runs until Stop is called or the context is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.stopOnce = sync.Once{}
	if s.background {
		s.nextSync = s.clock.Now().Add(s.interval)
	}
	s.mu.Unlock()

	s.logger.Info("sync scheduler starting", "interval", s.interval, "background", s.background)

	// Snapshot connectivity here, before the loop can consume updates.
	// Only an offline snapshot is trusted: an online one may already have
	// a transition buffered on the updates channel, and taking it at face
	// value would turn that edge into online→online. Unknown means the
	// first online update counts as an edge.
	knownOffline := s.network != nil && !s.network.State().Online

	go s.loop(ctx, knownOffline)

	return nil
}

// Stop gracefully stops the background loop. An in-flight cycle is not
// aborted; stopping only prevents new cycles from being triggered.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(stopCh) })
	<-doneCh

	s.logger.Info("sync scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, knownOffline bool) {
	s.mu.RLock()
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.mu.RUnlock()

	defer close(doneCh)

	var tickCh <-chan time.Time
	if s.background {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tickCh = ticker.C
	}

	var updates <-chan domain.NetworkState
	if s.network != nil {
		updates = s.network.Updates()
	}
	// wasOnline is meaningful only once known: either the Start snapshot
	// saw offline, or an update has been observed.
	wasOnline, known := false, knownOffline

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return

		case <-tickCh:
			s.mu.Lock()
			s.nextSync = s.clock.Now().Add(s.interval)
			paused := s.paused
			s.mu.Unlock()

			if paused {
				continue
			}
			if s.network != nil && !s.network.State().Online {
				s.logger.Debug("skipping scheduled sync, offline")
				continue
			}
			if s.run != nil {
				s.run(ctx)
			}

		case state, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if s.onNetwork != nil {
				s.onNetwork(state)
			}

			// The online edge triggers an immediate cycle rather than
			// waiting for the next tick; this bounds propagation delay
			// after an outage. With no prior observation, an online
			// update is treated as an edge.
			if state.Online && (!known || !wasOnline) {
				s.mu.RLock()
				paused := s.paused
				s.mu.RUnlock()
				if !paused && s.run != nil {
					s.logger.Info("back online, triggering sync")
					s.run(ctx)
				}
			}
			wasOnline, known = state.Online, true
		}
	}
}

// TryBegin atomically claims the single sync slot. It fails with
// ErrSyncPaused while paused and ErrSyncInProgress when a cycle is
// already in flight; callers receive a failed result and retry later.
func (s *Scheduler) TryBegin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return domain.ErrSyncPaused
	}
	if s.syncing {
		return domain.ErrSyncInProgress
	}
	s.syncing = true
	return nil
}

// End releases the sync slot. Completion always returns to idle (or
// paused, if a pause arrived mid-cycle); the scheduler never sticks in
// syncing.
func (s *Scheduler) End(completed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.syncing = false
	if completed {
		s.lastSync = s.clock.Now()
	}
}

// Pause stops new cycles from starting. An in-flight cycle finishes to
// avoid leaving operations in an indeterminate retrying state.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume re-enables cycles.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	if s.background && s.running {
		s.nextSync = s.clock.Now().Add(s.interval)
	}
}

// IsSyncing reports whether a cycle is in flight.
func (s *Scheduler) IsSyncing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.syncing
}

// IsPaused reports whether the scheduler is paused.
func (s *Scheduler) IsPaused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// LastSyncTime returns when the last completed cycle finished, or nil.
func (s *Scheduler) LastSyncTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastSync.IsZero() {
		return nil
	}
	t := s.lastSync
	return &t
}

// NextSyncTime returns when the next background cycle is due, or nil
// when background sync is off or paused.
func (s *Scheduler) NextSyncTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.background || s.paused || s.nextSync.IsZero() {
		return nil
	}
	t := s.nextSync
	return &t
}
