package transport

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/custodia-labs/driftsync/internal/core/domain"
	"github.com/custodia-labs/driftsync/internal/core/ports/driven"
)

func newTestOperation(opType domain.OperationType) *domain.Operation {
	return &domain.Operation{
		ID:        "op-1",
		Entity:    "notes",
		EntityID:  "note-42",
		Type:      opType,
		Data:      json.RawMessage(`{"title":"hello"}`),
		Priority:  domain.PriorityMedium,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Status:    domain.OperationStatusPending,
	}
}

func TestHTTPTransport_DeliverCreate(t *testing.T) {
	var got deliveryEnvelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode envelope: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{})
	result, err := tr.Deliver(context.Background(), srv.URL, newTestOperation(domain.OperationCreate), driven.DeliveryOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", result.StatusCode)
	}
	if result.Conflict != nil {
		t.Error("expected no conflict")
	}
	if result.BytesTransferred <= 0 {
		t.Error("expected bytes accounting")
	}
	if got.ID != "op-1" || got.Entity != "notes" || got.Type != "create" {
		t.Errorf("unexpected envelope: %+v", got)
	}
}

func TestHTTPTransport_DeliverDelete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		if r.URL.Path != "/notes/note-42" {
			t.Errorf("expected record path, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{})
	result, err := tr.Deliver(context.Background(), srv.URL+"/notes", newTestOperation(domain.OperationDelete), driven.DeliveryOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", result.StatusCode)
	}
}

func TestHTTPTransport_Compression(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if enc := r.Header.Get("Content-Encoding"); enc != "gzip" {
			t.Fatalf("expected gzip encoding, got %q", enc)
		}
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			t.Fatalf("failed to open gzip body: %v", err)
		}
		defer zr.Close()
		body, err := io.ReadAll(zr)
		if err != nil {
			t.Fatalf("failed to decompress body: %v", err)
		}
		var envelope deliveryEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			t.Fatalf("decompressed body is not the envelope: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{})
	if _, err := tr.Deliver(context.Background(), srv.URL, newTestOperation(domain.OperationUpdate), driven.DeliveryOptions{Compress: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHTTPTransport_HeadersAndForceOverwrite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Error("expected configured header")
		}
		if r.Header.Get(ForceOverwriteHeader) != "true" {
			t.Error("expected force overwrite header")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{})
	opts := driven.DeliveryOptions{
		Headers:        map[string]string{"Authorization": "Bearer token"},
		ForceOverwrite: true,
	}
	if _, err := tr.Deliver(context.Background(), srv.URL, newTestOperation(domain.OperationUpdate), opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHTTPTransport_ConflictResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(driven.DeliveryConflict{
			Remote:  json.RawMessage(`{"title":"server version"}`),
			Message: "version mismatch",
		})
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{})
	result, err := tr.Deliver(context.Background(), srv.URL, newTestOperation(domain.OperationUpdate), driven.DeliveryOptions{})
	if err != nil {
		t.Fatalf("conflict must not be an error: %v", err)
	}
	if result.Conflict == nil {
		t.Fatal("expected conflict in result")
	}
	if result.Conflict.Message != "version mismatch" {
		t.Errorf("unexpected conflict message: %s", result.Conflict.Message)
	}
	if string(result.Conflict.Remote) != `{"title":"server version"}` {
		t.Errorf("unexpected remote payload: %s", result.Conflict.Remote)
	}
}

func TestHTTPTransport_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{})
	if _, err := tr.Deliver(context.Background(), srv.URL, newTestOperation(domain.OperationUpdate), driven.DeliveryOptions{}); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestHTTPTransport_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{})
	start := time.Now()
	_, err := tr.Deliver(context.Background(), srv.URL, newTestOperation(domain.OperationUpdate), driven.DeliveryOptions{Timeout: 50 * time.Millisecond})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout not enforced, took %v", elapsed)
	}
}
