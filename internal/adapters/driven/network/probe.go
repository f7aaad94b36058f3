package network

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/custodia-labs/driftsync/internal/core/domain"
	"github.com/custodia-labs/driftsync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.NetworkMonitor = (*ProbeMonitor)(nil)

const (
	defaultProbeInterval = 15 * time.Second
	defaultProbeTimeout  = 5 * time.Second
)

// RTT thresholds mapping a measured round trip to the browser-style
// effective connection types.
const (
	rtt3G     = 300 * time.Millisecond
	rtt2G     = 1 * time.Second
	rttSlow2G = 2 * time.Second
)

// ProbeMonitor implements driven.NetworkMonitor by periodically issuing
// a HEAD request against a probe URL and classifying link quality from
// the measured round-trip time. Transitions are fanned out on Updates.
type ProbeMonitor struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger

	mu      sync.RWMutex
	state   domain.NetworkState
	updates chan domain.NetworkState

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// ProbeConfig holds dependencies for ProbeMonitor.
type ProbeConfig struct {
	// URL receives the HEAD probes. Typically the sync server's health
	// endpoint so reachability matches deliverability.
	URL string

	Interval time.Duration // Time between probes (default: 15s)
	Timeout  time.Duration // Per-probe timeout (default: 5s)
	Client   *http.Client  // Optional: custom transport
	Logger   *slog.Logger
}

// NewProbeMonitor creates a probe monitor and runs an immediate first
// probe so State is meaningful before the first tick.
func NewProbeMonitor(cfg ProbeConfig) *ProbeMonitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	m := &ProbeMonitor{
		url:      cfg.URL,
		interval: interval,
		client:   client,
		logger:   logger,
		updates:  make(chan domain.NetworkState, 16),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	m.state = m.probe(context.Background())

	go m.loop()

	return m
}

// State returns the current connectivity snapshot.
func (m *ProbeMonitor) State() domain.NetworkState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Updates delivers a snapshot on every transition.
func (m *ProbeMonitor) Updates() <-chan domain.NetworkState {
	return m.updates
}

// Close stops probing and closes the updates channel.
func (m *ProbeMonitor) Close() error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.doneCh
	return nil
}

func (m *ProbeMonitor) loop() {
	defer close(m.doneCh)
	defer close(m.updates)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			next := m.probe(context.Background())

			m.mu.Lock()
			prev := m.state
			m.state = next
			m.mu.Unlock()

			if !transitioned(prev, next) {
				continue
			}

			m.logger.Debug("network state changed",
				"online", next.Online,
				"effective_type", next.EffectiveType,
				"rtt", next.RTT,
			)

			// Drop rather than block: a slow consumer must not stall probing.
			select {
			case m.updates <- next:
			default:
			}
		}
	}
}

// probe measures one round trip and classifies it.
func (m *ProbeMonitor) probe(ctx context.Context) domain.NetworkState {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.url, nil)
	if err != nil {
		return domain.NetworkState{Online: false}
	}

	start := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		return domain.NetworkState{Online: false}
	}
	resp.Body.Close()
	rtt := time.Since(start)

	return domain.NetworkState{
		Online:        true,
		EffectiveType: classify(rtt),
		RTT:           rtt,
	}
}

// transitioned reports whether the link materially changed between two
// probes. The measured RTT differs on virtually every probe, so it never
// counts as a transition by itself; only connectivity or a
// classification change does.
func transitioned(prev, next domain.NetworkState) bool {
	return prev.Online != next.Online || prev.EffectiveType != next.EffectiveType
}

// classify maps a round-trip time to an effective connection type.
func classify(rtt time.Duration) string {
	switch {
	case rtt >= rttSlow2G:
		return domain.EffectiveTypeSlow2G
	case rtt >= rtt2G:
		return domain.EffectiveType2G
	case rtt >= rtt3G:
		return domain.EffectiveType3G
	default:
		return domain.EffectiveType4G
	}
}
