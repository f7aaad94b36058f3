package domain

import "time"

// SyncMode selects how an entity type is synchronized
type SyncMode string

const (
	SyncModeFull        SyncMode = "full"
	SyncModeDelta       SyncMode = "delta"
	SyncModeIncremental SyncMode = "incremental"
	SyncModeBatch       SyncMode = "batch"
)

// ConflictResolution selects how a reported conflict is handled
type ConflictResolution string

const (
	// ResolutionServerWins discards the local operation
	ResolutionServerWins ConflictResolution = "server_wins"
	// ResolutionLocalWins re-delivers the operation with a forced overwrite
	ResolutionLocalWins ConflictResolution = "local_wins"
	// ResolutionMerge applies a caller-supplied field merge and re-delivers
	ResolutionMerge ConflictResolution = "merge"
	// ResolutionManual parks the operation until the host resolves it
	ResolutionManual ConflictResolution = "manual"
)

// RetryPolicy governs redelivery of a transiently failed operation.
type RetryPolicy struct {
	// MaxRetries is the retry budget per operation, carried across cycles
	MaxRetries int `json:"max_retries"`

	// RetryDelay is the base wait before the first retry
	RetryDelay time.Duration `json:"retry_delay"`

	// BackoffMultiplier grows the wait exponentially per attempt
	BackoffMultiplier float64 `json:"backoff_multiplier"`

	// Jitter randomizes waits to avoid synchronized retries
	Jitter bool `json:"jitter"`
}

// BackoffFor returns the wait before retry attempt k (1-based):
// RetryDelay * BackoffMultiplier^(k-1). Jitter, when enabled, is applied
// by the executor on top of this deterministic base.
func (p RetryPolicy) BackoffFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	wait := float64(p.RetryDelay)
	for i := 1; i < attempt; i++ {
		wait *= mult
	}
	return time.Duration(wait)
}

// SyncCondition gates whether an operation is eligible for the current
// cycle. All conditions of a strategy must pass.
type SyncCondition func(op *Operation, state NetworkState) bool

// SyncStrategy holds the per-entity-type sync rules.
type SyncStrategy struct {
	Mode               SyncMode           `json:"mode"`
	Priority           Priority           `json:"priority"`
	ConflictResolution ConflictResolution `json:"conflict_resolution"`
	Retry              RetryPolicy        `json:"retry"`
	Conditions         []SyncCondition    `json:"-"`
}

// Eligible reports whether the operation passes every strategy condition.
func (s SyncStrategy) Eligible(op *Operation, state NetworkState) bool {
	for _, cond := range s.Conditions {
		if cond != nil && !cond(op, state) {
			return false
		}
	}
	return true
}

// StrategyTable maps entity-type names to their sync strategies.
type StrategyTable map[string]SyncStrategy

// For returns the strategy for an entity, falling back to the given
// default for entities without an explicit entry.
func (t StrategyTable) For(entity string, fallback SyncStrategy) SyncStrategy {
	if t != nil {
		if s, ok := t[entity]; ok {
			if s.Retry.MaxRetries == 0 {
				s.Retry = fallback.Retry
			}
			return s
		}
	}
	return fallback
}
