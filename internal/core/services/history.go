package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/custodia-labs/driftsync/internal/core/domain"
	"github.com/custodia-labs/driftsync/internal/core/ports/driven"
)

// historyLimit caps the audit trail at the most recent runs; the oldest
// entries are evicted first.
const historyLimit = 100

// HistoryLog is the bounded, persisted audit trail of past sync runs.
type HistoryLog struct {
	store  driven.StateStore
	logger *slog.Logger
	limit  int

	onPersistError func(error)

	mu      sync.RWMutex
	entries []*domain.HistoryEntry
}

// HistoryConfig holds dependencies for HistoryLog.
type HistoryConfig struct {
	Store          driven.StateStore
	Logger         *slog.Logger
	Limit          int         // Maximum retained entries (default: 100)
	OnPersistError func(error) // Optional: notified when a persist fails
}

// NewHistoryLog creates a history log.
func NewHistoryLog(cfg HistoryConfig) *HistoryLog {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = historyLimit
	}
	return &HistoryLog{
		store:          cfg.Store,
		logger:         logger,
		limit:          limit,
		onPersistError: cfg.OnPersistError,
	}
}

// Load replaces the in-memory log with the persisted one.
func (h *HistoryLog) Load(ctx context.Context) error {
	entries, err := h.store.LoadHistory(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sync history: %w", err)
	}
	if len(entries) > h.limit {
		entries = entries[len(entries)-h.limit:]
	}

	h.mu.Lock()
	h.entries = entries
	h.mu.Unlock()
	return nil
}

// Append records a sync run, evicting the oldest entry beyond the cap.
// Persistence is best effort: a failure is logged and reported, the
// in-memory log keeps the entry either way.
func (h *HistoryLog) Append(ctx context.Context, entry *domain.HistoryEntry) {
	h.mu.Lock()
	h.entries = append(h.entries, entry)
	if len(h.entries) > h.limit {
		h.entries = h.entries[len(h.entries)-h.limit:]
	}
	h.mu.Unlock()

	h.persist(ctx)
}

// All returns the recorded runs, oldest first.
func (h *HistoryLog) All() []*domain.HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*domain.HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of recorded runs.
func (h *HistoryLog) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Last returns the most recent run, or nil.
func (h *HistoryLog) Last() *domain.HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.entries) == 0 {
		return nil
	}
	return h.entries[len(h.entries)-1]
}

// Clear removes all recorded runs.
func (h *HistoryLog) Clear(ctx context.Context) {
	h.mu.Lock()
	h.entries = nil
	h.mu.Unlock()

	h.persist(ctx)
}

func (h *HistoryLog) persist(ctx context.Context) {
	h.mu.RLock()
	snapshot := make([]*domain.HistoryEntry, len(h.entries))
	copy(snapshot, h.entries)
	h.mu.RUnlock()

	if err := h.store.SaveHistory(ctx, snapshot); err != nil {
		h.logger.Warn("failed to persist sync history", "error", err)
		if h.onPersistError != nil {
			h.onPersistError(err)
		}
	}
}
