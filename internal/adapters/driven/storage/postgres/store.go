package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/custodia-labs/driftsync/internal/core/domain"
	"github.com/custodia-labs/driftsync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.StateStore = (*StateStore)(nil)

// StateStore implements driven.StateStore on Postgres. Saves replace
// the whole table inside a transaction: the engine always persists the
// full snapshot, so delete-then-insert is simpler and never leaves a
// partial queue behind.
type StateStore struct {
	db *DB
}

// NewStateStore creates a Postgres-backed StateStore
func NewStateStore(db *DB) *StateStore {
	return &StateStore{db: db}
}

// LoadOperations returns the persisted operation queue in snapshot order.
func (s *StateStore) LoadOperations(ctx context.Context) ([]*domain.Operation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity, entity_id, op_type, data, priority, created_at,
		       retry_count, status, last_error, conflict_pending
		FROM sync_operations
		ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load operations: %w", err)
	}
	defer rows.Close()

	var ops []*domain.Operation
	for rows.Next() {
		var op domain.Operation
		var data []byte
		if err := rows.Scan(
			&op.ID, &op.Entity, &op.EntityID, &op.Type, &data, &op.Priority,
			&op.Timestamp, &op.RetryCount, &op.Status, &op.Error, &op.ConflictPending,
		); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		if len(data) > 0 {
			op.Data = json.RawMessage(data)
		}
		ops = append(ops, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load operations: %w", err)
	}
	return ops, nil
}

// SaveOperations replaces the persisted queue with the given snapshot.
func (s *StateStore) SaveOperations(ctx context.Context, ops []*domain.Operation) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sync_operations`); err != nil {
			return fmt.Errorf("failed to clear operations: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO sync_operations
				(id, entity, entity_id, op_type, data, priority, created_at,
				 retry_count, status, last_error, conflict_pending, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, op := range ops {
			var data interface{}
			if len(op.Data) > 0 {
				data = []byte(op.Data)
			}
			if _, err := stmt.ExecContext(ctx,
				op.ID, op.Entity, op.EntityID, op.Type, data, op.Priority,
				op.Timestamp, op.RetryCount, op.Status, op.Error, op.ConflictPending, i,
			); err != nil {
				return fmt.Errorf("failed to insert operation %s: %w", op.ID, err)
			}
		}
		return nil
	})
}

// LoadHistory returns the persisted sync history, oldest first.
func (s *StateStore) LoadHistory(ctx context.Context) ([]*domain.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, duration_ms, operations_synced, operations_failed,
		       bytes_transferred, success, errors
		FROM sync_history
		ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var entries []*domain.HistoryEntry
	for rows.Next() {
		var entry domain.HistoryEntry
		var durationMs int64
		var errorsJSON []byte
		if err := rows.Scan(
			&entry.ID, &entry.Timestamp, &durationMs, &entry.OperationsSynced,
			&entry.OperationsFailed, &entry.BytesTransferred, &entry.Success, &errorsJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entry.Duration = time.Duration(durationMs) * time.Millisecond
		if len(errorsJSON) > 0 {
			if err := json.Unmarshal(errorsJSON, &entry.Errors); err != nil {
				return nil, fmt.Errorf("failed to unmarshal history errors: %w", err)
			}
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return entries, nil
}

// SaveHistory replaces the persisted history with the given snapshot.
func (s *StateStore) SaveHistory(ctx context.Context, entries []*domain.HistoryEntry) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sync_history`); err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO sync_history
				(id, created_at, duration_ms, operations_synced, operations_failed,
				 bytes_transferred, success, errors, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, entry := range entries {
			var errorsJSON interface{}
			if len(entry.Errors) > 0 {
				data, err := json.Marshal(entry.Errors)
				if err != nil {
					return fmt.Errorf("failed to marshal history errors: %w", err)
				}
				errorsJSON = data
			}
			if _, err := stmt.ExecContext(ctx,
				entry.ID, entry.Timestamp, entry.Duration.Milliseconds(),
				entry.OperationsSynced, entry.OperationsFailed,
				entry.BytesTransferred, entry.Success, errorsJSON, i,
			); err != nil {
				return fmt.Errorf("failed to insert history entry %s: %w", entry.ID, err)
			}
		}
		return nil
	})
}

// Ping checks if the database is reachable
func (s *StateStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the underlying database connection
func (s *StateStore) Close() error {
	return s.db.Close()
}
