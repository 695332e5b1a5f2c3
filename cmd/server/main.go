// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

// Package main is the entry point for the Vigil observability server.
//
// Vigil records entity change audit trails and request observability events
// for a clinical platform. Reporting processes post entity mutations to the
// ingest endpoint; Vigil diffs them against the last reported state, appends
// sparse audit records to DuckDB, and writes categorized event sinks. The
// read API serves audit queries, aggregate statistics, endpoint latency
// percentiles, and log maintenance views.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered loading from defaults, YAML file, and
//     environment variables (Koanf v2)
//  2. Logging: zerolog process logger
//  3. Event loggers: per-category JSON line sinks
//  4. Database: DuckDB audit record store with schema migration
//  5. Change detector: state cache, sparse diff, store circuit breaker
//  6. HTTP API: chi router with request instrumentation and Prometheus
//     metrics
//  7. Supervisor tree: HTTP service plus retention and memory monitor
//     services (suture v4)
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (VIGIL_ prefix, e.g. VIGIL_SERVER_PORT)
//   - Config file (config.yaml, or the path in VIGIL_CONFIG)
//   - Built-in defaults
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Waits for in-flight requests to complete
//   - Closes the audit store and database
//   - Closes the event sinks last so shutdown itself is recorded
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinicore/vigil/internal/api"
	"github.com/clinicore/vigil/internal/audit"
	"github.com/clinicore/vigil/internal/config"
	"github.com/clinicore/vigil/internal/database"
	"github.com/clinicore/vigil/internal/events"
	"github.com/clinicore/vigil/internal/logging"
	"github.com/clinicore/vigil/internal/middleware"
	"github.com/clinicore/vigil/internal/supervisor"
	"github.com/clinicore/vigil/internal/supervisor/services"
)

func main() {
	// Load configuration first to get logging settings.
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("event_dir", cfg.Events.Dir).
		Str("environment", cfg.Server.Environment).
		Bool("audit_enabled", cfg.Audit.Enabled).
		Msg("Configuration loaded")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Event sinks open before anything that emits into them. They close
	// last so late shutdown events still land.
	loggers, err := events.New(events.Config{
		Dir:                  cfg.Events.Dir,
		SlowQueryThreshold:   cfg.Events.SlowQueryThreshold,
		SlowRequestThreshold: cfg.Events.SlowRequestThreshold,
		MemoryThresholdMB:    cfg.Events.MemoryThresholdMB,
		SuspiciousRatePerSec: cfg.Events.SuspiciousRatePerSec,
		SuspiciousBurst:      cfg.Events.SuspiciousBurst,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open event sinks")
	}
	defer func() {
		if err := loggers.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event sinks")
		}
	}()
	logging.Info().Str("dir", cfg.Events.Dir).Msg("Event sinks opened")

	db, err := database.New(&cfg.Database, loggers.Performance, loggers.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	store, err := audit.NewDuckDBStore(ctx, db)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize audit store")
	}
	logging.Info().Msg("Audit store initialized")

	states := audit.NewStateCache()
	detector := audit.NewDetector(states, store, loggers.Database, audit.DetectorConfig{
		Filter: audit.Filter{
			Enabled: cfg.Audit.Enabled,
			Include: cfg.Audit.Include,
			Exclude: cfg.Audit.Exclude,
		},
		AppendTimeout:           cfg.Audit.AppendTimeout,
		BreakerFailureThreshold: cfg.Audit.BreakerFailureThreshold,
		BreakerTimeout:          cfg.Audit.BreakerTimeout,
	})

	monitor := middleware.NewEndpointMonitor(1000)
	handlers := api.NewHandlers(store, detector, states, monitor, cfg.API, cfg.Events.Dir)
	router := api.NewRouter(handlers, loggers, monitor, api.RouterConfig{
		CORSOrigins:     cfg.Server.CORSOrigins,
		RateLimitReqs:   cfg.Server.RateLimitReqs,
		RateLimitWindow: cfg.Server.RateLimitWindow,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	if cfg.Retention.Enabled {
		tree.AddMaintenanceService(services.NewRetentionService(store, services.RetentionConfig{
			Interval:       cfg.Retention.Interval,
			AuditRetention: time.Duration(cfg.Retention.AuditDays) * 24 * time.Hour,
			EventRetention: time.Duration(cfg.Retention.EventDays) * 24 * time.Hour,
			EventDir:       cfg.Events.Dir,
		}))
		logging.Info().
			Int("audit_days", cfg.Retention.AuditDays).
			Int("event_days", cfg.Retention.EventDays).
			Msg("Retention service added")
	}
	tree.AddMaintenanceService(services.NewMonitorService(loggers.Performance, cfg.Monitor.MemoryCheckInterval))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish")
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error during shutdown")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	logging.Info().Msg("Shutdown complete")
}
