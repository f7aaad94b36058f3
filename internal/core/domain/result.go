package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SyncConflict records a delivery outcome where the remote signalled
// divergent state. Conflicts are never silently dropped: every conflict
// appears in the cycle result even when auto-resolved.
type SyncConflict struct {
	OperationID string             `json:"operation_id"`
	Entity      string             `json:"entity"`
	EntityID    string             `json:"entity_id"`
	Resolution  ConflictResolution `json:"resolution"`
	Resolved    bool               `json:"resolved"`
	Remote      json.RawMessage    `json:"remote,omitempty"`
	Message     string             `json:"message,omitempty"`
}

// SyncError records a per-operation delivery failure within a cycle.
type SyncError struct {
	OperationID string `json:"operation_id"`
	Entity      string `json:"entity"`
	Message     string `json:"message"`
}

// SyncResult is the immutable outcome of one sync cycle.
// A cycle is successful iff no operation failed; conflicts count as
// failures for the success flag but are reported separately.
type SyncResult struct {
	Success          bool           `json:"success"`
	OperationsSynced int            `json:"operations_synced"`
	OperationsFailed int            `json:"operations_failed"`
	BytesTransferred int64          `json:"bytes_transferred"`
	Duration         time.Duration  `json:"duration"`
	Conflicts        []SyncConflict `json:"conflicts,omitempty"`
	Errors           []SyncError    `json:"errors,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
}

// FailedResult builds a cycle result for a sync that could not start.
func FailedResult(now time.Time, reason string) *SyncResult {
	return &SyncResult{
		Success:   false,
		Errors:    []SyncError{{Message: reason}},
		Timestamp: now,
	}
}

// SyncStatus is a live, derived snapshot of the engine. It is never
// persisted.
type SyncStatus struct {
	IsSyncing         bool       `json:"is_syncing"`
	IsPaused          bool       `json:"is_paused"`
	Online            bool       `json:"online"`
	LastSyncTime      *time.Time `json:"last_sync_time,omitempty"`
	NextSyncTime      *time.Time `json:"next_sync_time,omitempty"`
	PendingOperations int        `json:"pending_operations"`
	FailedOperations  int        `json:"failed_operations"`
}

// HistoryEntry is the persisted compression of a SyncResult.
type HistoryEntry struct {
	ID               string        `json:"id"`
	Timestamp        time.Time     `json:"timestamp"`
	Duration         time.Duration `json:"duration"`
	OperationsSynced int           `json:"operations_synced"`
	OperationsFailed int           `json:"operations_failed"`
	BytesTransferred int64         `json:"bytes_transferred"`
	Success          bool          `json:"success"`
	Errors           []string      `json:"errors,omitempty"`
}

// NewHistoryEntry compresses a cycle result into an audit entry.
func NewHistoryEntry(result *SyncResult) *HistoryEntry {
	entry := &HistoryEntry{
		ID:               uuid.NewString(),
		Timestamp:        result.Timestamp,
		Duration:         result.Duration,
		OperationsSynced: result.OperationsSynced,
		OperationsFailed: result.OperationsFailed,
		BytesTransferred: result.BytesTransferred,
		Success:          result.Success,
	}
	for _, e := range result.Errors {
		msg := e.Message
		if e.OperationID != "" {
			msg = e.OperationID + ": " + msg
		}
		entry.Errors = append(entry.Errors, msg)
	}
	return entry
}
