package domain

import (
	"encoding/json"
	"testing"
)

func TestPriorityRank(t *testing.T) {
	tests := []struct {
		priority Priority
		want     int
	}{
		{PriorityCritical, 4},
		{PriorityHigh, 3},
		{PriorityMedium, 2},
		{PriorityLow, 1},
		{Priority("bogus"), 0},
		{Priority(""), 0},
	}
	for _, tt := range tests {
		if got := tt.priority.Rank(); got != tt.want {
			t.Errorf("Rank(%q) = %d, want %d", tt.priority, got, tt.want)
		}
	}
}

func TestNewOperation_Defaults(t *testing.T) {
	op := NewOperation("notes", "n-1", OperationCreate, json.RawMessage(`{}`), "")

	if op.ID == "" {
		t.Error("expected generated ID")
	}
	if op.Priority != PriorityMedium {
		t.Errorf("expected medium default priority, got %s", op.Priority)
	}
	if op.Status != OperationStatusPending {
		t.Errorf("expected pending status, got %s", op.Status)
	}
	if op.Timestamp.IsZero() {
		t.Error("expected timestamp set")
	}
	if op.RetryCount != 0 {
		t.Errorf("expected zero retries, got %d", op.RetryCount)
	}
}

func TestNewOperation_UniqueIDs(t *testing.T) {
	a := NewOperation("notes", "", OperationCreate, nil, PriorityLow)
	b := NewOperation("notes", "", OperationCreate, nil, PriorityLow)
	if a.ID == b.ID {
		t.Error("expected unique IDs")
	}
}

func TestOperation_MarkRetrying(t *testing.T) {
	op := NewOperation("notes", "", OperationUpdate, nil, PriorityMedium)

	op.MarkRetrying("timeout")
	op.MarkRetrying("timeout again")

	if op.RetryCount != 2 {
		t.Errorf("expected 2 retries counted, got %d", op.RetryCount)
	}
	if op.Status != OperationStatusRetrying {
		t.Errorf("expected retrying status, got %s", op.Status)
	}
	if op.Error != "timeout again" {
		t.Errorf("expected latest error kept, got %q", op.Error)
	}
}

func TestOperation_MarkFailedKeepsRetryCount(t *testing.T) {
	op := NewOperation("notes", "", OperationUpdate, nil, PriorityMedium)
	op.MarkRetrying("transient")
	op.MarkRetrying("transient")

	op.MarkFailed("gave up")

	if op.Status != OperationStatusFailed {
		t.Errorf("expected failed status, got %s", op.Status)
	}
	if op.RetryCount != 2 {
		t.Errorf("retry count must survive failure, got %d", op.RetryCount)
	}
}

func TestOperation_Reinject(t *testing.T) {
	op := NewOperation("notes", "", OperationUpdate, json.RawMessage(`{"v":1}`), PriorityMedium)
	op.MarkRetrying("conflict")
	op.MarkConflictPending()

	op.Reinject(json.RawMessage(`{"v":"resolved"}`))

	if op.ConflictPending {
		t.Error("expected conflict flag cleared")
	}
	if op.RetryCount != 0 {
		t.Errorf("expected retry budget reset, got %d", op.RetryCount)
	}
	if op.Status != OperationStatusPending {
		t.Errorf("expected pending status, got %s", op.Status)
	}
	if string(op.Data) != `{"v":"resolved"}` {
		t.Errorf("expected resolved payload, got %s", op.Data)
	}
}

func TestOperation_CloneIsIndependent(t *testing.T) {
	op := NewOperation("notes", "n-1", OperationUpdate, json.RawMessage(`{"v":1}`), PriorityHigh)

	cp := op.Clone()
	cp.Entity = "tasks"
	cp.Data[1] = 'x'

	if op.Entity != "notes" {
		t.Error("clone must not share scalar fields")
	}
	if string(op.Data) != `{"v":1}` {
		t.Error("clone must not share the payload slice")
	}
}
