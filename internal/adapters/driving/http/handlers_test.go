package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/custodia-labs/driftsync/internal/core/domain"
	"github.com/custodia-labs/driftsync/internal/core/ports/driving"
)

// fakeEngine is a scriptable driving.SyncEngine for handler tests.
type fakeEngine struct {
	ops        []*domain.Operation
	history    []*domain.HistoryEntry
	status     domain.SyncStatus
	health     domain.Health
	syncResult *domain.SyncResult
	syncErr    error
	resolveErr error
	removeErr  error
	paused     bool

	lastAdd     driving.AddOperationRequest
	lastEntity  string
	lastRecord  string
	lastResolve string
}

var _ driving.SyncEngine = (*fakeEngine)(nil)

func (f *fakeEngine) Initialize(ctx context.Context) error { return nil }

func (f *fakeEngine) AddOperation(ctx context.Context, req driving.AddOperationRequest) (*domain.Operation, error) {
	f.lastAdd = req
	op := domain.NewOperation(req.Entity, req.EntityID, req.Type, req.Data, req.Priority)
	return op, nil
}

func (f *fakeEngine) RemoveOperation(ctx context.Context, id string) error { return f.removeErr }
func (f *fakeEngine) Operations() []*domain.Operation                      { return f.ops }

func (f *fakeEngine) SyncAll(ctx context.Context) (*domain.SyncResult, error) {
	return f.syncResult, f.syncErr
}

func (f *fakeEngine) SyncEntity(ctx context.Context, entity, entityID string) (*domain.SyncResult, error) {
	f.lastEntity = entity
	f.lastRecord = entityID
	return f.syncResult, f.syncErr
}

func (f *fakeEngine) ForceSync(ctx context.Context) (*domain.SyncResult, error) {
	return f.syncResult, f.syncErr
}

func (f *fakeEngine) PauseSync()  { f.paused = true }
func (f *fakeEngine) ResumeSync() { f.paused = false }

func (f *fakeEngine) ResolveConflict(ctx context.Context, operationID string, resolved json.RawMessage) error {
	f.lastResolve = operationID
	return f.resolveErr
}

func (f *fakeEngine) Status() domain.SyncStatus         { return f.status }
func (f *fakeEngine) Health() domain.Health             { return f.health }
func (f *fakeEngine) History() []*domain.HistoryEntry   { return f.history }
func (f *fakeEngine) ClearHistory(ctx context.Context) error {
	f.history = nil
	return nil
}
func (f *fakeEngine) Events() <-chan domain.Event        { return nil }
func (f *fakeEngine) Destroy(ctx context.Context) error  { return nil }

func newTestServer(engine *fakeEngine) *Server {
	return NewServer(Config{Version: "test"}, engine, nil)
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(&fakeEngine{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	engine := &fakeEngine{
		status: domain.SyncStatus{Online: true, PendingOperations: 3},
	}
	srv := newTestServer(engine)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var status domain.SyncStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !status.Online || status.PendingOperations != 3 {
		t.Errorf("unexpected status: %+v", status)
	}
}

func TestHandleAddOperation(t *testing.T) {
	engine := &fakeEngine{}
	srv := newTestServer(engine)

	body, _ := json.Marshal(driving.AddOperationRequest{
		Entity: "notes",
		Type:   domain.OperationCreate,
		Data:   json.RawMessage(`{"title":"hello"}`),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/operations", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if engine.lastAdd.Entity != "notes" {
		t.Errorf("expected entity forwarded, got %q", engine.lastAdd.Entity)
	}
}

func TestHandleAddOperation_InvalidBody(t *testing.T) {
	srv := newTestServer(&fakeEngine{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/operations", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleRemoveOperation_NotFound(t *testing.T) {
	engine := &fakeEngine{removeErr: domain.ErrOperationNotFound}
	srv := newTestServer(engine)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sync/operations/missing", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleTriggerSync(t *testing.T) {
	engine := &fakeEngine{
		syncResult: &domain.SyncResult{Success: true, OperationsSynced: 2, Timestamp: time.Now()},
	}
	srv := newTestServer(engine)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/trigger", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var result domain.SyncResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if !result.Success || result.OperationsSynced != 2 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestHandleTriggerSync_InProgress(t *testing.T) {
	engine := &fakeEngine{
		syncResult: domain.FailedResult(time.Now(), domain.ErrSyncInProgress.Error()),
		syncErr:    domain.ErrSyncInProgress,
	}
	srv := newTestServer(engine)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/trigger", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleSyncEntity(t *testing.T) {
	engine := &fakeEngine{
		syncResult: &domain.SyncResult{Success: true},
	}
	srv := newTestServer(engine)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/entities/notes?entity_id=n-1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if engine.lastEntity != "notes" || engine.lastRecord != "n-1" {
		t.Errorf("entity filter not forwarded: %q %q", engine.lastEntity, engine.lastRecord)
	}
}

func TestHandleResolveConflict(t *testing.T) {
	engine := &fakeEngine{}
	srv := newTestServer(engine)

	body := []byte(`{"resolved":{"title":"merged"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/operations/op-1/resolve", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if engine.lastResolve != "op-1" {
		t.Errorf("expected resolve forwarded, got %q", engine.lastResolve)
	}
}

func TestHandleResolveConflict_MissingPayload(t *testing.T) {
	srv := newTestServer(&fakeEngine{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/operations/op-1/resolve", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandlePauseResume(t *testing.T) {
	engine := &fakeEngine{}
	srv := newTestServer(engine)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/pause", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !engine.paused {
		t.Error("expected engine paused")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/sync/resume", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if engine.paused {
		t.Error("expected engine resumed")
	}
}

func TestHandleHistory(t *testing.T) {
	engine := &fakeEngine{
		history: []*domain.HistoryEntry{{ID: "h-1", Success: true}},
	}
	srv := newTestServer(engine)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/history", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 1 {
		t.Errorf("expected 1 entry, got %d", resp.Count)
	}
}
