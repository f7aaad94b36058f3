package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/custodia-labs/driftsync/internal/core/domain"
	"github.com/redis/go-redis/v9"
)

// setupTestStateStore creates a miniredis-backed StateStore
func setupTestStateStore(t *testing.T) (*StateStore, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	store := NewStateStore(client)

	return store, mr, func() {
		client.Close()
		mr.Close()
	}
}

func testOperation(id string, entity string) *domain.Operation {
	return &domain.Operation{
		ID:        id,
		Entity:    entity,
		EntityID:  "record-1",
		Type:      domain.OperationUpdate,
		Data:      json.RawMessage(`{"title":"hello"}`),
		Priority:  domain.PriorityHigh,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Status:    domain.OperationStatusPending,
	}
}

func TestStateStore_LoadOperations_Empty(t *testing.T) {
	store, _, cleanup := setupTestStateStore(t)
	defer cleanup()

	ops, err := store.LoadOperations(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ops) != 0 {
		t.Errorf("expected empty queue on fresh store, got %d", len(ops))
	}
}

func TestStateStore_SaveAndLoadOperations(t *testing.T) {
	store, _, cleanup := setupTestStateStore(t)
	defer cleanup()

	ctx := context.Background()
	ops := []*domain.Operation{
		testOperation("op-1", "notes"),
		testOperation("op-2", "tasks"),
	}

	if err := store.SaveOperations(ctx, ops); err != nil {
		t.Fatalf("unexpected error saving operations: %v", err)
	}

	loaded, err := store.LoadOperations(ctx)
	if err != nil {
		t.Fatalf("unexpected error loading operations: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(loaded))
	}
	if loaded[0].ID != "op-1" || loaded[1].ID != "op-2" {
		t.Errorf("operation order not preserved: %s, %s", loaded[0].ID, loaded[1].ID)
	}
	if loaded[0].Entity != "notes" {
		t.Errorf("expected entity notes, got %s", loaded[0].Entity)
	}
	if !loaded[0].Timestamp.Equal(ops[0].Timestamp) {
		t.Errorf("timestamp not round-tripped: %v", loaded[0].Timestamp)
	}
}

func TestStateStore_SaveOperations_EmptyClearsKey(t *testing.T) {
	store, mr, cleanup := setupTestStateStore(t)
	defer cleanup()

	ctx := context.Background()
	if err := store.SaveOperations(ctx, []*domain.Operation{testOperation("op-1", "notes")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.SaveOperations(ctx, nil); err != nil {
		t.Fatalf("unexpected error clearing operations: %v", err)
	}

	if mr.Exists(operationsKey) {
		t.Error("expected operations key to be deleted")
	}
}

func TestStateStore_SaveAndLoadHistory(t *testing.T) {
	store, _, cleanup := setupTestStateStore(t)
	defer cleanup()

	ctx := context.Background()
	entries := []*domain.HistoryEntry{
		{ID: "h-1", Timestamp: time.Now().UTC(), Success: true, OperationsSynced: 3},
		{ID: "h-2", Timestamp: time.Now().UTC(), Success: false, OperationsFailed: 1},
	}

	if err := store.SaveHistory(ctx, entries); err != nil {
		t.Fatalf("unexpected error saving history: %v", err)
	}

	loaded, err := store.LoadHistory(ctx)
	if err != nil {
		t.Fatalf("unexpected error loading history: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(loaded))
	}
	if loaded[0].ID != "h-1" || !loaded[0].Success {
		t.Errorf("unexpected first entry: %+v", loaded[0])
	}
}

func TestStateStore_LoadOperations_CorruptData(t *testing.T) {
	store, mr, cleanup := setupTestStateStore(t)
	defer cleanup()

	mr.Set(operationsKey, "not json")

	if _, err := store.LoadOperations(context.Background()); err == nil {
		t.Error("expected error for corrupt payload")
	}
}

func TestStateStore_Ping(t *testing.T) {
	store, mr, cleanup := setupTestStateStore(t)
	defer cleanup()

	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}

	mr.Close()
	if err := store.Ping(context.Background()); err == nil {
		t.Error("expected ping error after server shutdown")
	}
}
