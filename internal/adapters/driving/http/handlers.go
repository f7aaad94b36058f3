package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/custodia-labs/driftsync/internal/core/domain"
	"github.com/custodia-labs/driftsync/internal/core/ports/driving"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse represents a simple status response
type StatusResponse struct {
	Status string `json:"status"`
}

// Health endpoints

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "state store unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// Engine status endpoints

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleSyncHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Health())
}

// Queue endpoints

func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	ops := s.engine.Operations()
	writeJSON(w, http.StatusOK, map[string]any{
		"operations": ops,
		"count":      len(ops),
	})
}

func (s *Server) handleAddOperation(w http.ResponseWriter, r *http.Request) {
	var req driving.AddOperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	op, err := s.engine.AddOperation(r.Context(), req)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, op)
}

func (s *Server) handleRemoveOperation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.engine.RemoveOperation(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

type resolveRequest struct {
	Resolved json.RawMessage `json:"resolved"`
}

func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Resolved) == 0 {
		writeError(w, http.StatusBadRequest, "resolved payload is required")
		return
	}

	if err := s.engine.ResolveConflict(r.Context(), id, req.Resolved); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// Sync trigger endpoints

func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.SyncAll(r.Context())
	writeSyncResult(w, result, err)
}

func (s *Server) handleForceSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.ForceSync(r.Context())
	writeSyncResult(w, result, err)
}

func (s *Server) handleSyncEntity(w http.ResponseWriter, r *http.Request) {
	entity := r.PathValue("entity")
	entityID := r.URL.Query().Get("entity_id")

	result, err := s.engine.SyncEntity(r.Context(), entity, entityID)
	writeSyncResult(w, result, err)
}

// Pause endpoints

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.engine.PauseSync()
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.engine.ResumeSync()
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

// History endpoints

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries := s.engine.History()
	writeJSON(w, http.StatusOK, map[string]any{
		"history": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ClearHistory(r.Context()); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// Response helpers

// writeSyncResult maps a cycle outcome onto HTTP. Guard rejections
// (paused, in flight, offline) are expected operational states, not
// server errors, so they come back as 409 with the failed result body.
func writeSyncResult(w http.ResponseWriter, result *domain.SyncResult, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, domain.ErrSyncInProgress),
		errors.Is(err, domain.ErrSyncPaused),
		errors.Is(err, domain.ErrOffline):
		writeJSON(w, http.StatusConflict, result)
	case errors.Is(err, domain.ErrNotInitialized), errors.Is(err, domain.ErrDestroyed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrOperationNotFound), errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNotInitialized), errors.Is(err, domain.ErrDestroyed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
