package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custodia-labs/driftsync/internal/adapters/driven/network"
	"github.com/custodia-labs/driftsync/internal/adapters/driven/storage/postgres"
	redisstore "github.com/custodia-labs/driftsync/internal/adapters/driven/storage/redis"
	"github.com/custodia-labs/driftsync/internal/adapters/driven/transport"
	"github.com/custodia-labs/driftsync/internal/adapters/driving/http"
	"github.com/custodia-labs/driftsync/internal/core/domain"
	"github.com/custodia-labs/driftsync/internal/core/ports/driven"
	"github.com/custodia-labs/driftsync/internal/core/services"
	"github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	log.Printf("driftsync %s starting", version)

	// Configuration from environment
	port := getEnvInt("PORT", 8080)
	redisURL := getEnv("REDIS_URL", "")
	databaseURL := getEnv("DATABASE_URL", "")
	probeURL := getEnv("PROBE_URL", "")
	endpointsJSON := getEnv("SYNC_ENDPOINTS", "{}")

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutdown signal received, stopping...")
		cancel()
	}()

	logger := slog.Default()

	// ===== State store (Redis preferred, PostgreSQL fallback) =====
	var store driven.StateStore
	switch {
	case redisURL != "":
		log.Println("Connecting to Redis...")
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		store = redisstore.NewStateStore(client)
		log.Println("Using Redis state store")

	case databaseURL != "":
		log.Println("Connecting to PostgreSQL...")
		db, err := postgres.Connect(ctx, postgres.Config{
			URL:             databaseURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300)) * time.Second,
			ConnMaxIdleTime: time.Duration(getEnvInt("DB_CONN_MAX_IDLE_SEC", 60)) * time.Second,
		})
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if err := db.InitSchema(ctx); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
		store = postgres.NewStateStore(db)
		log.Println("Using PostgreSQL state store")

	default:
		log.Fatal("Either REDIS_URL or DATABASE_URL must be set")
	}
	defer store.Close()

	// ===== Sync endpoints =====
	endpoints := map[string]string{}
	if err := json.Unmarshal([]byte(endpointsJSON), &endpoints); err != nil {
		log.Fatalf("Failed to parse SYNC_ENDPOINTS: %v", err)
	}
	if len(endpoints) == 0 {
		log.Println("Warning: no sync endpoints configured, deliveries will fail")
	}
	if probeURL == "" {
		// Probe the first configured endpoint when none is given.
		for _, url := range endpoints {
			probeURL = url
			break
		}
	}

	// ===== Network monitor =====
	monitor := network.NewProbeMonitor(network.ProbeConfig{
		URL:      probeURL,
		Interval: time.Duration(getEnvInt("PROBE_INTERVAL_SEC", 15)) * time.Second,
		Logger:   logger,
	})
	defer monitor.Close()

	// ===== Engine =====
	cfg := domain.DefaultConfig()
	cfg.Endpoints = endpoints
	cfg.SyncInterval = time.Duration(getEnvInt("SYNC_INTERVAL_SEC", 30)) * time.Second
	cfg.MaxRetries = getEnvInt("SYNC_MAX_RETRIES", cfg.MaxRetries)
	cfg.BatchSize = getEnvInt("SYNC_BATCH_SIZE", cfg.BatchSize)
	cfg.EnableBackgroundSync = getEnvBool("SYNC_BACKGROUND", true)
	cfg.EnableRealtimeSync = getEnvBool("SYNC_REALTIME", false)
	cfg.EnableCompression = getEnvBool("SYNC_COMPRESSION", cfg.EnableCompression)

	engine := services.NewEngine(services.EngineConfig{
		Config:    cfg,
		Store:     store,
		Network:   monitor,
		Transport: transport.NewHTTPTransport(transport.HTTPConfig{Logger: logger}),
		Logger:    logger,
	})

	if err := engine.Initialize(ctx); err != nil {
		log.Fatalf("Failed to initialize sync engine: %v", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := engine.Destroy(shutdownCtx); err != nil {
			log.Printf("Engine shutdown error: %v", err)
		}
	}()

	// Drain the event stream into the log.
	go func() {
		for ev := range engine.Events() {
			logger.Debug("sync event", "kind", ev.Kind, "operation_id", ev.OperationID, "error", ev.Err)
		}
	}()

	// ===== HTTP admin API =====
	server := http.NewServer(http.Config{
		Host:    "0.0.0.0",
		Port:    port,
		Version: version,
		Logger:  logger,
	}, engine, store)

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Stop(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("Admin API listening on :%d", port)
	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("driftsync stopped")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}
