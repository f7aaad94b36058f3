package transport

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/custodia-labs/driftsync/internal/core/domain"
	"github.com/custodia-labs/driftsync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Transport = (*HTTPTransport)(nil)

// ForceOverwriteHeader asks the remote to apply the payload even over
// divergent state. Sent when re-delivering under local_wins.
const ForceOverwriteHeader = "X-Sync-Force-Overwrite"

// deliveryEnvelope is the wire format for one operation.
type deliveryEnvelope struct {
	ID        string          `json:"id"`
	Entity    string          `json:"entity"`
	EntityID  string          `json:"entity_id,omitempty"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// HTTPTransport implements driven.Transport over HTTP. Creates and
// updates POST the operation envelope to the entity endpoint; deletes
// issue DELETE against the record URL. A 409 response carries the
// remote's conflict payload and is reported as a conflict, not an
// error; any other non-2xx status is a retryable failure.
type HTTPTransport struct {
	client *http.Client
	logger *slog.Logger
}

// HTTPConfig holds dependencies for HTTPTransport.
type HTTPConfig struct {
	Client *http.Client // Optional: custom transport
	Logger *slog.Logger
}

// NewHTTPTransport creates an HTTP delivery transport.
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{client: client, logger: logger}
}

// Deliver sends one operation to its endpoint.
func (t *HTTPTransport) Deliver(ctx context.Context, endpoint string, op *domain.Operation, opts driven.DeliveryOptions) (*driven.DeliveryResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, written, err := t.buildRequest(ctx, endpoint, op, opts)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("delivery request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read delivery response: %w", err)
	}

	result := &driven.DeliveryResult{
		StatusCode:       resp.StatusCode,
		BytesTransferred: written + int64(len(body)),
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return result, nil

	case resp.StatusCode == http.StatusConflict:
		conflict := &driven.DeliveryConflict{}
		if len(body) > 0 {
			if err := json.Unmarshal(body, conflict); err != nil {
				// Unstructured conflict body; keep it as the message.
				conflict.Message = string(body)
			}
		}
		result.Conflict = conflict
		return result, nil

	default:
		return nil, fmt.Errorf("remote rejected operation %s: status %d", op.ID, resp.StatusCode)
	}
}

// buildRequest assembles the HTTP request and returns the request body
// size for byte accounting.
func (t *HTTPTransport) buildRequest(ctx context.Context, endpoint string, op *domain.Operation, opts driven.DeliveryOptions) (*http.Request, int64, error) {
	var (
		req *http.Request
		err error
	)
	written := int64(0)

	if op.Type == domain.OperationDelete {
		url := endpoint
		if op.EntityID != "" {
			url = endpoint + "/" + op.EntityID
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to build delete request: %w", err)
		}
	} else {
		envelope := deliveryEnvelope{
			ID:        op.ID,
			Entity:    op.Entity,
			EntityID:  op.EntityID,
			Type:      string(op.Type),
			Data:      op.Data,
			Timestamp: op.Timestamp,
		}
		payload, err := json.Marshal(envelope)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal operation %s: %w", op.ID, err)
		}

		body := payload
		if opts.Compress {
			var buf bytes.Buffer
			zw := gzip.NewWriter(&buf)
			if _, err := zw.Write(payload); err != nil {
				return nil, 0, fmt.Errorf("failed to compress payload: %w", err)
			}
			if err := zw.Close(); err != nil {
				return nil, 0, fmt.Errorf("failed to compress payload: %w", err)
			}
			body = buf.Bytes()
		}
		written = int64(len(body))

		req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, 0, fmt.Errorf("failed to build delivery request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if opts.Compress {
			req.Header.Set("Content-Encoding", "gzip")
		}
	}

	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if opts.ForceOverwrite {
		req.Header.Set(ForceOverwriteHeader, "true")
	}

	return req, written, nil
}
