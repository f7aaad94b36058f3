package mocks

import (
	"sync"

	"github.com/custodia-labs/driftsync/internal/core/domain"
)

// MockNetworkMonitor is a controllable NetworkMonitor for testing.
type MockNetworkMonitor struct {
	mu      sync.RWMutex
	state   domain.NetworkState
	updates chan domain.NetworkState
	closed  bool
}

// NewMockNetworkMonitor creates a monitor that starts online with a
// good link.
func NewMockNetworkMonitor() *MockNetworkMonitor {
	return &MockNetworkMonitor{
		state:   domain.NetworkState{Online: true, EffectiveType: domain.EffectiveType4G},
		updates: make(chan domain.NetworkState, 16),
	}
}

func (m *MockNetworkMonitor) State() domain.NetworkState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *MockNetworkMonitor) Updates() <-chan domain.NetworkState {
	return m.updates
}

func (m *MockNetworkMonitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.updates)
	}
	return nil
}

// SetState changes the state and publishes a transition.
func (m *MockNetworkMonitor) SetState(state domain.NetworkState) {
	m.mu.Lock()
	m.state = state
	closed := m.closed
	m.mu.Unlock()
	if !closed {
		m.updates <- state
	}
}

// SetOnline toggles connectivity, keeping the quality hints.
func (m *MockNetworkMonitor) SetOnline(online bool) {
	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()
	state.Online = online
	m.SetState(state)
}
