package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/iskralabs/calibra/internal/api"
	"github.com/iskralabs/calibra/internal/config"
	"github.com/iskralabs/calibra/internal/database"
	"github.com/iskralabs/calibra/internal/engine"
	"github.com/iskralabs/calibra/internal/logging"
	"github.com/iskralabs/calibra/internal/metrics"
)

const serviceName = "calibra"

var version = "dev"

// main serves as the entry point for the application. It delegates
// execution to the run function and exits non-zero on failure.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

// run orchestrates the startup sequence of the server: configuration,
// logging, storage backends, state restore, background loops, and the HTTP
// server with graceful shutdown.
//
// Returns:
//   - An error if initialization fails at any critical step.
func run() error {
	// Load .env if present; real env vars win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewStandardLogger(cfg.LogLevel, cfg.Environment)
	logger.LogStartup(serviceName, version, cfg.Server.Port)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mset := metrics.NewSet(registry)

	// Postgres is optional; the service degrades to Redis-only persistence.
	var db *database.PostgresDB
	if cfg.Database.Enabled {
		db, err = database.NewPostgresConnection(cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := db.EnsureSchema(context.Background()); err != nil {
			return err
		}
	}

	redisClient, err := database.NewRedisConnection(cfg.Redis, logger)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, snapshot caching disabled")
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	eng := engine.New(cfg, logger, mset)

	var store *database.SnapshotStore
	if db != nil || redisClient != nil {
		store = database.NewSnapshotStore(db, redisClient, cfg.Snapshot, logger)

		// Best-effort restore of the previous process state.
		restoreCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		snapshot, loadErr := store.LoadLatest(restoreCtx)
		cancel()
		switch {
		case loadErr == nil:
			eng.Restore(*snapshot, logger)
		case errors.Is(loadErr, database.ErrNoSnapshot):
			logger.Info("No previous snapshot, starting fresh")
		default:
			logger.WithError(loadErr).Warn("Failed to restore snapshot, starting fresh")
		}
	}

	// Background maintenance loops.
	loopCtx, stopLoops := context.WithCancel(context.Background())
	defer stopLoops()
	go decayLoop(loopCtx, eng, cfg.Calibration.DecayInterval)
	if store != nil {
		go snapshotLoop(loopCtx, eng, store, mset, logger, cfg.Snapshot.Interval)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	api.SetupRoutes(router, eng, store, db, redisClient, registry, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.LogShutdown(serviceName, sig.String())
	}

	stopLoops()

	// Final snapshot before the process exits.
	if store != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := store.Save(saveCtx, eng.Snapshot()); err != nil {
			logger.WithError(err).Warn("Failed to save final snapshot")
		}
		cancel()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}

// decayLoop runs the periodic baseline decay maintenance pass.
func decayLoop(ctx context.Context, eng *engine.Engine, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eng.ApplyDecay()
		}
	}
}

// snapshotLoop persists the engine state at a fixed interval.
func snapshotLoop(ctx context.Context, eng *engine.Engine, store *database.SnapshotStore, mset *metrics.Set, logger logging.Logger, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			saveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := store.Save(saveCtx, eng.Snapshot())
			cancel()
			mset.ObserveSnapshot(err)
			if err != nil {
				logger.WithError(err).Warn("Periodic snapshot failed")
			}
		}
	}
}
