package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrSyncInProgress indicates a sync cycle is already in flight
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrSyncPaused indicates sync was rejected because the engine is paused
	ErrSyncPaused = errors.New("sync is paused")

	// ErrOffline indicates sync was rejected because the network is offline
	ErrOffline = errors.New("network is offline")

	// ErrNoEndpoint indicates no remote endpoint is configured for the
	// entity type. This is a configuration error and is never retried.
	ErrNoEndpoint = errors.New("no sync endpoint configured")

	// ErrOperationNotFound indicates the operation is not in the queue
	ErrOperationNotFound = errors.New("operation not found")

	// ErrConflictPending indicates the operation is parked for manual
	// conflict resolution and cannot be auto-retried
	ErrConflictPending = errors.New("operation has an unresolved conflict")

	// ErrNotInitialized indicates the engine was used before Initialize
	ErrNotInitialized = errors.New("engine not initialized")

	// ErrDestroyed indicates the engine has been shut down
	ErrDestroyed = errors.New("engine destroyed")
)
