package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/driftsync/internal/core/domain"
)

// MockStateStore is an in-memory StateStore for testing. Errors can be
// injected per call site to exercise failure paths.
type MockStateStore struct {
	mu      sync.RWMutex
	ops     []*domain.Operation
	history []*domain.HistoryEntry

	LoadOpsErr     error
	SaveOpsErr     error
	LoadHistoryErr error
	SaveHistoryErr error
	PingErr        error

	saveOpsCalls     int
	saveHistoryCalls int
}

// NewMockStateStore creates a new MockStateStore
func NewMockStateStore() *MockStateStore {
	return &MockStateStore{}
}

func (m *MockStateStore) LoadOperations(ctx context.Context) ([]*domain.Operation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.LoadOpsErr != nil {
		return nil, m.LoadOpsErr
	}
	out := make([]*domain.Operation, len(m.ops))
	for i, op := range m.ops {
		out[i] = op.Clone()
	}
	return out, nil
}

func (m *MockStateStore) SaveOperations(ctx context.Context, ops []*domain.Operation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveOpsCalls++
	if m.SaveOpsErr != nil {
		return m.SaveOpsErr
	}
	m.ops = make([]*domain.Operation, len(ops))
	for i, op := range ops {
		m.ops[i] = op.Clone()
	}
	return nil
}

func (m *MockStateStore) LoadHistory(ctx context.Context) ([]*domain.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.LoadHistoryErr != nil {
		return nil, m.LoadHistoryErr
	}
	out := make([]*domain.HistoryEntry, len(m.history))
	copy(out, m.history)
	return out, nil
}

func (m *MockStateStore) SaveHistory(ctx context.Context, entries []*domain.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveHistoryCalls++
	if m.SaveHistoryErr != nil {
		return m.SaveHistoryErr
	}
	m.history = make([]*domain.HistoryEntry, len(entries))
	copy(m.history, entries)
	return nil
}

func (m *MockStateStore) Ping(ctx context.Context) error { return m.PingErr }

func (m *MockStateStore) Close() error { return nil }

// Helper methods for testing

// Seed replaces the persisted operations directly.
func (m *MockStateStore) Seed(ops ...*domain.Operation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = ops
}

// SavedOperations returns the last persisted snapshot.
func (m *MockStateStore) SavedOperations() []*domain.Operation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Operation, len(m.ops))
	copy(out, m.ops)
	return out
}

// SavedHistory returns the last persisted history snapshot.
func (m *MockStateStore) SavedHistory() []*domain.HistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.HistoryEntry, len(m.history))
	copy(out, m.history)
	return out
}

// SaveOperationsCalls counts SaveOperations invocations.
func (m *MockStateStore) SaveOperationsCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveOpsCalls
}
