package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/custodia-labs/driftsync/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes the sync engine over an HTTP admin API.
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger

	engine driving.SyncEngine
	store  Pinger // State store health check (optional)
}

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	Version string
	Logger  *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:    "0.0.0.0",
		Port:    8080,
		Version: "dev",
	}
}

// NewServer creates a new HTTP server over the sync engine.
func NewServer(cfg Config, engine driving.SyncEngine, store Pinger) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:  http.NewServeMux(),
		version: cfg.Version,
		logger:  logger,
		engine:  engine,
		store:   store,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      RequestLogger(logger)(s.router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health endpoints
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Engine status
	s.router.HandleFunc("GET /api/v1/sync/status", s.handleStatus)
	s.router.HandleFunc("GET /api/v1/sync/health", s.handleSyncHealth)

	// Queue management
	s.router.HandleFunc("GET /api/v1/sync/operations", s.handleListOperations)
	s.router.HandleFunc("POST /api/v1/sync/operations", s.handleAddOperation)
	s.router.HandleFunc("DELETE /api/v1/sync/operations/{id}", s.handleRemoveOperation)
	s.router.HandleFunc("POST /api/v1/sync/operations/{id}/resolve", s.handleResolveConflict)

	// Sync triggers
	s.router.HandleFunc("POST /api/v1/sync/trigger", s.handleTriggerSync)
	s.router.HandleFunc("POST /api/v1/sync/force", s.handleForceSync)
	s.router.HandleFunc("POST /api/v1/sync/entities/{entity}", s.handleSyncEntity)

	// Pause control
	s.router.HandleFunc("POST /api/v1/sync/pause", s.handlePause)
	s.router.HandleFunc("POST /api/v1/sync/resume", s.handleResume)

	// History
	s.router.HandleFunc("GET /api/v1/sync/history", s.handleHistory)
	s.router.HandleFunc("DELETE /api/v1/sync/history", s.handleClearHistory)
}

// Start starts the HTTP server. It blocks until the listener fails or
// Stop is called.
func (s *Server) Start() error {
	s.logger.Info("starting http server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
