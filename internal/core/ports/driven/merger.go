package driven

import (
	"context"
	"encoding/json"

	"github.com/custodia-labs/driftsync/internal/core/domain"
)

// Merger performs the entity-specific field-level merge used by the
// merge conflict strategy. The engine only invokes it; the host
// application supplies the implementation.
type Merger interface {
	Merge(ctx context.Context, op *domain.Operation, remote json.RawMessage) (json.RawMessage, error)
}

// MergerFunc adapts a function to the Merger interface.
type MergerFunc func(ctx context.Context, op *domain.Operation, remote json.RawMessage) (json.RawMessage, error)

func (f MergerFunc) Merge(ctx context.Context, op *domain.Operation, remote json.RawMessage) (json.RawMessage, error) {
	return f(ctx, op, remote)
}
