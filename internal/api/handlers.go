// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

package api

import (
	"net/http"
	"time"

	"github.com/clinicore/vigil/internal/audit"
	"github.com/clinicore/vigil/internal/config"
	"github.com/clinicore/vigil/internal/logging"
	"github.com/clinicore/vigil/internal/logops"
	"github.com/clinicore/vigil/internal/middleware"
)

// Handlers holds the dependencies of the HTTP handlers.
type Handlers struct {
	store    audit.Store
	detector *audit.Detector
	states   *audit.StateCache
	monitor  *middleware.EndpointMonitor
	cfg      config.APIConfig
	eventDir string
	started  time.Time
}

// NewHandlers creates the handler set. The detector and state cache back
// the mutation ingest endpoint.
func NewHandlers(store audit.Store, detector *audit.Detector, states *audit.StateCache, monitor *middleware.EndpointMonitor, cfg config.APIConfig, eventDir string) *Handlers {
	return &Handlers{
		store:    store,
		detector: detector,
		states:   states,
		monitor:  monitor,
		cfg:      cfg,
		eventDir: eventDir,
		started:  time.Now().UTC(),
	}
}

// HealthLive handles GET /healthz/live. Always succeeds while the process
// can serve requests.
func (h *Handlers) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondData(w, map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(h.started).String(),
	})
}

// HealthReady handles GET /healthz/ready. Fails while the audit store is
// unreachable.
func (h *Handlers) HealthReady(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.Count(r.Context(), audit.QueryFilter{Limit: 1}); err != nil {
		respondError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Audit store is not reachable", err)
		return
	}
	respondData(w, map[string]interface{}{"status": "ready"})
}

// recordsRequest carries the validated query parameters for ListRecords.
type recordsRequest struct {
	Limit  int    `validate:"min=1"`
	Offset int    `validate:"min=0"`
	Action string `validate:"omitempty,oneof=create update delete"`
}

// ListRecords handles GET /api/v1/audit/records. Returns a paginated list
// of audit records with optional filtering.
func (h *Handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := recordsRequest{
		Limit:  getIntParam(r, "limit", h.cfg.DefaultPageSize),
		Offset: getIntParam(r, "offset", 0),
		Action: r.URL.Query().Get("action"),
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}
	if req.Limit > h.cfg.MaxPageSize {
		req.Limit = h.cfg.MaxPageSize
	}

	filter := audit.QueryFilter{
		EntityType: r.URL.Query().Get("entity_type"),
		EntityID:   getInt64Param(r, "entity_id", 0),
		ActorID:    getInt64Param(r, "actor_id", 0),
		SourceIP:   r.URL.Query().Get("source_ip"),
		StartTime:  getTimeParam(r, "start_time"),
		EndTime:    getTimeParam(r, "end_time"),
		Limit:      req.Limit,
		Offset:     req.Offset,
		OrderDesc:  r.URL.Query().Get("order") != "asc",
	}
	if req.Action != "" {
		filter.Actions = []audit.Action{audit.Action(req.Action)}
	}

	records, err := h.store.Query(ctx, filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "AUDIT_ERROR", "Failed to fetch audit records", err)
		return
	}

	total, err := h.store.Count(ctx, filter)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to count audit records")
		total = int64(len(records))
	}

	if records == nil {
		records = []audit.Record{}
	}
	respondJSON(w, http.StatusOK, &APIResponse{
		Status: "ok",
		Data:   records,
		Metadata: Metadata{
			Timestamp: time.Now().UTC(),
			Count:     len(records),
			Total:     total,
			Limit:     filter.Limit,
			Offset:    filter.Offset,
		},
	})
}

// RecordStats handles GET /api/v1/audit/stats. Returns aggregate counts
// over the audit store.
func (h *Handlers) RecordStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "AUDIT_ERROR", "Failed to get audit statistics", err)
		return
	}
	respondData(w, stats)
}

// EndpointStats handles GET /api/v1/admin/endpoints. Returns per-endpoint
// latency percentiles from the sliding-window monitor.
func (h *Handlers) EndpointStats(w http.ResponseWriter, _ *http.Request) {
	respondData(w, h.monitor.Stats())
}

// LogStats handles GET /api/v1/admin/logs/stats. Returns per-sink file
// statistics, optionally restricted to one log type and to lines from the
// last N days (0 or absent counts everything).
func (h *Handlers) LogStats(w http.ResponseWriter, r *http.Request) {
	days := getIntParam(r, "days", 0)
	if days < 0 {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "days must not be negative", nil)
		return
	}
	var since time.Time
	if days > 0 {
		since = time.Now().UTC().AddDate(0, 0, -days)
	}

	stats, err := logops.Stats(h.eventDir, r.URL.Query().Get("log_type"), since)
	if err != nil {
		respondError(w, http.StatusBadRequest, "LOG_ERROR", err.Error(), nil)
		return
	}
	respondData(w, stats)
}

// LogAnalysis handles GET /api/v1/admin/logs/analyze. Aggregates sink
// content over the last N days (default 7).
func (h *Handlers) LogAnalysis(w http.ResponseWriter, r *http.Request) {
	days := getIntParam(r, "days", 7)
	if days < 1 {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "days must be at least 1", nil)
		return
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	analysis, err := logops.Analyze(h.eventDir, r.URL.Query().Get("log_type"), since)
	if err != nil {
		respondError(w, http.StatusBadRequest, "LOG_ERROR", err.Error(), nil)
		return
	}
	respondData(w, analysis)
}
