package domain

import "time"

// Config holds the recognized engine options. Zero values are replaced
// with defaults by DefaultConfig / Normalize; constructors accept the
// struct by value so callers can set only what they need.
type Config struct {
	// SyncInterval is the period between background sync cycles
	SyncInterval time.Duration `json:"sync_interval"`

	// MaxRetries is the default per-operation retry budget
	MaxRetries int `json:"max_retries"`

	// RetryDelay is the default base wait before the first retry
	RetryDelay time.Duration `json:"retry_delay"`

	// BackoffMultiplier is the default exponential backoff factor
	BackoffMultiplier float64 `json:"backoff_multiplier"`

	// BatchSize caps how many operations one cycle drains
	BatchSize int `json:"batch_size"`

	// Timeout is the per-request delivery timeout
	Timeout time.Duration `json:"timeout"`

	// Endpoints maps entity-type names to remote sync URLs
	Endpoints map[string]string `json:"endpoints"`

	// Headers are added to every delivery request
	Headers map[string]string `json:"headers,omitempty"`

	// Strategies holds per-entity sync rules
	Strategies StrategyTable `json:"-"`

	// PrioritySync is the entity allow-list used when selective sync
	// is enabled
	PrioritySync []string `json:"priority_sync,omitempty"`

	EnableRealtimeSync      bool `json:"enable_realtime_sync"`
	EnableDeltaSync         bool `json:"enable_delta_sync"`
	EnableCompression       bool `json:"enable_compression"`
	EnableConflictDetection bool `json:"enable_conflict_detection"`
	EnableSelectiveSync     bool `json:"enable_selective_sync"`
	EnableOfflineMode       bool `json:"enable_offline_mode"`
	EnableOptimisticUpdates bool `json:"enable_optimistic_updates"`
	EnableBackgroundSync    bool `json:"enable_background_sync"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		SyncInterval:            30 * time.Second,
		MaxRetries:              3,
		RetryDelay:              time.Second,
		BackoffMultiplier:       2,
		BatchSize:               50,
		Timeout:                 30 * time.Second,
		Endpoints:               map[string]string{},
		EnableConflictDetection: true,
		EnableOfflineMode:       true,
		EnableBackgroundSync:    true,
	}
}

// Normalize fills zero values with defaults.
func (c Config) Normalize() Config {
	def := DefaultConfig()
	if c.SyncInterval <= 0 {
		c.SyncInterval = def.SyncInterval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = def.RetryDelay
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = def.BackoffMultiplier
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.Endpoints == nil {
		c.Endpoints = map[string]string{}
	}
	return c
}

// DefaultStrategy derives the fallback strategy from the config-level
// retry settings.
func (c Config) DefaultStrategy() SyncStrategy {
	return SyncStrategy{
		Mode:               SyncModeIncremental,
		Priority:           PriorityMedium,
		ConflictResolution: ResolutionServerWins,
		Retry: RetryPolicy{
			MaxRetries:        c.MaxRetries,
			RetryDelay:        c.RetryDelay,
			BackoffMultiplier: c.BackoffMultiplier,
		},
	}
}
