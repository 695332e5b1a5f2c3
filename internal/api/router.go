// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinicore/vigil/internal/events"
	"github.com/clinicore/vigil/internal/middleware"
)

// RouterConfig tunes the global middleware stack.
type RouterConfig struct {
	// CORSOrigins lists allowed origins; "*" allows all.
	CORSOrigins []string

	// RateLimitReqs caps requests per client IP per window. 0 disables
	// rate limiting.
	RateLimitReqs int

	// RateLimitWindow is the rate limit window.
	RateLimitWindow time.Duration
}

// NewRouter assembles the chi router with the full observability stack.
// Instrumentation wraps everything below the operational endpoints, so
// health checks and metrics scrapes never pollute the request sinks.
func NewRouter(h *Handlers, loggers *events.Loggers, monitor *middleware.EndpointMonitor, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(middleware.Instrument(loggers, middleware.DefaultInstrumentConfig()))
	r.Use(middleware.PrometheusMetrics)
	r.Use(monitor.Middleware)
	r.Use(chimiddleware.Compress(5))

	// Operational endpoints, excluded from sinks by the skip prefixes.
	r.Get("/healthz/live", h.HealthLive)
	r.Get("/healthz/ready", h.HealthReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitReqs > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimitReqs, cfg.RateLimitWindow))
		}

		r.Route("/audit", func(r chi.Router) {
			r.Get("/records", h.ListRecords)
			r.Get("/stats", h.RecordStats)
			r.Post("/mutations", h.IngestMutation)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/endpoints", h.EndpointStats)
			r.Get("/logs/stats", h.LogStats)
			r.Get("/logs/analyze", h.LogAnalysis)
		})
	})

	return r
}
