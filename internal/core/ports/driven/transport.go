package driven

import (
	"context"
	"encoding/json"
	"time"

	"github.com/custodia-labs/driftsync/internal/core/domain"
)

// DeliveryOptions tunes a single delivery request.
type DeliveryOptions struct {
	// Timeout bounds the whole request
	Timeout time.Duration

	// Compress gzips the request body
	Compress bool

	// Headers are added to the request
	Headers map[string]string

	// ForceOverwrite asks the remote to apply the payload even over
	// divergent state. Used when re-delivering under local_wins.
	ForceOverwrite bool
}

// DeliveryConflict is the structured conflict signal a remote may return
// instead of acknowledging an operation.
type DeliveryConflict struct {
	// Remote carries the server's current state for the record
	Remote json.RawMessage `json:"remote,omitempty"`

	// Message is the server's description of the divergence
	Message string `json:"message,omitempty"`
}

// DeliveryResult is the outcome of one delivery attempt. A nil Conflict
// with a nil error means the remote durably acknowledged the operation.
type DeliveryResult struct {
	StatusCode       int
	BytesTransferred int64
	Conflict         *DeliveryConflict
}

// Transport delivers a single operation to its remote endpoint.
// A returned error is a transient delivery failure and retryable; a
// conflict is reported in the result, not as an error.
type Transport interface {
	Deliver(ctx context.Context, endpoint string, op *domain.Operation, opts DeliveryOptions) (*DeliveryResult, error)
}
