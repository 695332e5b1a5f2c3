// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clinicore/vigil/internal/audit"
	"github.com/clinicore/vigil/internal/config"
	"github.com/clinicore/vigil/internal/events"
	"github.com/clinicore/vigil/internal/middleware"
)

func newTestRouter(t *testing.T, rcfg RouterConfig) http.Handler {
	t.Helper()

	loggers, err := events.New(events.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("events.New: %v", err)
	}
	t.Cleanup(func() { _ = loggers.Close() })

	store := audit.NewMemoryStore()
	seedRecords(t, store, 3)
	monitor := middleware.NewEndpointMonitor(100)
	states := audit.NewStateCache()
	detector := audit.NewDetector(states, store, nil, audit.DefaultDetectorConfig())
	h := NewHandlers(store, detector, states, monitor, config.APIConfig{DefaultPageSize: 20, MaxPageSize: 100}, t.TempDir())
	return NewRouter(h, loggers, monitor, rcfg)
}

func TestRouterRoutes(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	tests := []struct {
		path     string
		wantCode int
	}{
		{"/healthz/live", http.StatusOK},
		{"/healthz/ready", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/api/v1/audit/records", http.StatusOK},
		{"/api/v1/audit/stats", http.StatusOK},
		{"/api/v1/admin/endpoints", http.StatusOK},
		{"/api/v1/admin/logs/stats", http.StatusOK},
		{"/api/v1/admin/logs/analyze", http.StatusOK},
		{"/api/v1/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rr.Code != tt.wantCode {
				t.Errorf("GET %s = %d, want %d", tt.path, rr.Code, tt.wantCode)
			}
		})
	}
}

func TestRouterCORSPreflightPost(t *testing.T) {
	router := newTestRouter(t, RouterConfig{CORSOrigins: []string{"https://app.example.com"}})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/audit/mutations", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("preflight status = %d, want %d", rr.Code, http.StatusOK)
	}
	allowed := rr.Header().Get("Access-Control-Allow-Methods")
	if !strings.Contains(allowed, http.MethodPost) {
		t.Errorf("Allow-Methods = %q, want POST", allowed)
	}
}

func TestRouterRequestIDPropagation(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/records", nil)
	req.Header.Set("X-Request-ID", "req-router-1")
	router.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Request-ID"); got != "req-router-1" {
		t.Errorf("X-Request-ID = %q, want req-router-1", got)
	}
}

func TestRouterMetricsContent(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	// Generate one API request so the counters exist.
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/audit/stats", nil))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Error("metrics output missing runtime collectors")
	}
}

func TestRouterRateLimit(t *testing.T) {
	router := newTestRouter(t, RouterConfig{
		RateLimitReqs:   2,
		RateLimitWindow: time.Minute,
	})

	var last int
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/stats", nil)
		req.RemoteAddr = "198.51.100.7:40000"
		router.ServeHTTP(rr, req)
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want %d", last, http.StatusTooManyRequests)
	}

	// Health checks sit outside the limited group.
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz/live", nil)
	req.RemoteAddr = "198.51.100.7:40000"
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("health check limited: %d", rr.Code)
	}
}
