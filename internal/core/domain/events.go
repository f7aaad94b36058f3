package domain

import "time"

// EventKind names one of the closed set of outbound engine events.
type EventKind string

const (
	EventInitialized      EventKind = "initialized"
	EventSyncStart        EventKind = "sync_start"
	EventSyncComplete     EventKind = "sync_complete"
	EventSyncError        EventKind = "sync_error"
	EventNetworkChange    EventKind = "network_change"
	EventOnline           EventKind = "online"
	EventOffline          EventKind = "offline"
	EventOperationAdded   EventKind = "operation_added"
	EventOperationRemoved EventKind = "operation_removed"
	EventOperationUpdated EventKind = "operation_updated"
	EventSyncPaused       EventKind = "sync_paused"
	EventSyncResumed      EventKind = "sync_resumed"
	EventHistoryCleared   EventKind = "history_cleared"
	EventPersistenceError EventKind = "persistence_error"
	EventDestroyed        EventKind = "destroyed"
)

// Event is a typed outbound notification for host observability.
// Only the fields relevant to the kind are set.
type Event struct {
	Kind        EventKind     `json:"kind"`
	Timestamp   time.Time     `json:"timestamp"`
	OperationID string        `json:"operation_id,omitempty"`
	Entity      string        `json:"entity,omitempty"`
	Result      *SyncResult   `json:"result,omitempty"`
	Network     *NetworkState `json:"network,omitempty"`
	Err         string        `json:"error,omitempty"`
}
