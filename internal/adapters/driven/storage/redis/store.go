package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/custodia-labs/driftsync/internal/core/domain"
	"github.com/custodia-labs/driftsync/internal/core/ports/driven"
	"github.com/redis/go-redis/v9"
)

// Verify interface compliance
var _ driven.StateStore = (*StateStore)(nil)

const (
	// Keys for persisted sync state
	operationsKey = "driftsync:operations"
	historyKey    = "driftsync:history"
)

// StateStore implements driven.StateStore using Redis. The queue and
// history are each stored as a single JSON blob: snapshots are small
// (bounded batch sizes, capped history) and whole-value replacement
// keeps saves atomic without transactions.
type StateStore struct {
	client *redis.Client
}

// NewStateStore creates a new Redis-backed StateStore
func NewStateStore(client *redis.Client) *StateStore {
	return &StateStore{client: client}
}

// LoadOperations returns the persisted operation queue. A missing key
// means a fresh install: an empty queue, not an error.
func (s *StateStore) LoadOperations(ctx context.Context) ([]*domain.Operation, error) {
	data, err := s.client.Get(ctx, operationsKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load operations: %w", err)
	}

	var ops []*domain.Operation
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("failed to unmarshal operations: %w", err)
	}
	return ops, nil
}

// SaveOperations replaces the persisted operation queue with the given
// snapshot.
func (s *StateStore) SaveOperations(ctx context.Context, ops []*domain.Operation) error {
	if len(ops) == 0 {
		if err := s.client.Del(ctx, operationsKey).Err(); err != nil {
			return fmt.Errorf("failed to clear operations: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("failed to marshal operations: %w", err)
	}
	if err := s.client.Set(ctx, operationsKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save operations: %w", err)
	}
	return nil
}

// LoadHistory returns the persisted sync history, oldest first.
func (s *StateStore) LoadHistory(ctx context.Context) ([]*domain.HistoryEntry, error) {
	data, err := s.client.Get(ctx, historyKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	var entries []*domain.HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	return entries, nil
}

// SaveHistory replaces the persisted sync history with the given
// snapshot.
func (s *StateStore) SaveHistory(ctx context.Context, entries []*domain.HistoryEntry) error {
	if len(entries) == 0 {
		if err := s.client.Del(ctx, historyKey).Err(); err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := s.client.Set(ctx, historyKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable
func (s *StateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (s *StateStore) Close() error {
	return s.client.Close()
}
