package driven

import "github.com/custodia-labs/driftsync/internal/core/domain"

// NetworkMonitor observes connectivity and link quality. Production
// adapters probe the network per platform; tests drive a fake.
type NetworkMonitor interface {
	// State returns the current connectivity snapshot.
	State() domain.NetworkState

	// Updates delivers a state snapshot on every transition. The channel
	// is closed by Close.
	Updates() <-chan domain.NetworkState

	// Close stops the monitor and releases resources.
	Close() error
}
