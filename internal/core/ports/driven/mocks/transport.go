package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/custodia-labs/driftsync/internal/core/domain"
	"github.com/custodia-labs/driftsync/internal/core/ports/driven"
)

// DeliveryCall records one Deliver invocation for assertions.
type DeliveryCall struct {
	Endpoint    string
	OperationID string
	Opts        driven.DeliveryOptions
}

// MockTransport scripts per-operation delivery outcomes.
type MockTransport struct {
	mu    sync.Mutex
	calls []DeliveryCall

	// Handler, when set, decides every outcome.
	Handler func(op *domain.Operation, opts driven.DeliveryOptions) (*driven.DeliveryResult, error)

	// FailTimes makes the first N deliveries per operation fail with
	// Err before succeeding.
	FailTimes int
	Err       error

	// Conflict is returned for every delivery when set (unless the
	// delivery carries ForceOverwrite).
	Conflict *driven.DeliveryConflict

	// Bytes is reported as transferred on success.
	Bytes int64

	failures map[string]int
}

// NewMockTransport creates a transport that acknowledges everything.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		Err:      errors.New("connection refused"),
		Bytes:    64,
		failures: make(map[string]int),
	}
}

func (m *MockTransport) Deliver(ctx context.Context, endpoint string, op *domain.Operation, opts driven.DeliveryOptions) (*driven.DeliveryResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, DeliveryCall{Endpoint: endpoint, OperationID: op.ID, Opts: opts})
	handler := m.Handler
	if handler == nil {
		if m.FailTimes > 0 && m.failures[op.ID] < m.FailTimes {
			m.failures[op.ID]++
			err := m.Err
			m.mu.Unlock()
			return nil, err
		}
		if m.Conflict != nil && !opts.ForceOverwrite {
			conflict := m.Conflict
			m.mu.Unlock()
			return &driven.DeliveryResult{StatusCode: 409, Conflict: conflict}, nil
		}
		bytes := m.Bytes
		m.mu.Unlock()
		return &driven.DeliveryResult{StatusCode: 200, BytesTransferred: bytes}, nil
	}
	m.mu.Unlock()
	return handler(op, opts)
}

// Calls returns the recorded deliveries in order.
func (m *MockTransport) Calls() []DeliveryCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DeliveryCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsFor counts deliveries attempted for one operation.
func (m *MockTransport) CallsFor(operationID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.OperationID == operationID {
			n++
		}
	}
	return n
}
