// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/clinicore/vigil/internal/audit"
	"github.com/clinicore/vigil/internal/config"
	"github.com/clinicore/vigil/internal/middleware"
)

func newTestHandlers(t *testing.T, store audit.Store) *Handlers {
	t.Helper()
	cfg := config.APIConfig{DefaultPageSize: 20, MaxPageSize: 100}
	states := audit.NewStateCache()
	detector := audit.NewDetector(states, store, nil, audit.DefaultDetectorConfig())
	return NewHandlers(store, detector, states, middleware.NewEndpointMonitor(100), cfg, t.TempDir())
}

func seedRecords(t *testing.T, store audit.Store, n int) {
	t.Helper()
	base := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	actions := []audit.Action{audit.ActionCreate, audit.ActionUpdate, audit.ActionDelete}
	for i := 0; i < n; i++ {
		rec := audit.Record{
			ID:         fmt.Sprintf("rec-%03d", i),
			Action:     actions[i%len(actions)],
			EntityType: "clinic.Patient",
			EntityID:   int64(i + 1),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Append(context.Background(), &rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestHealthLive(t *testing.T) {
	h := newTestHandlers(t, audit.NewMemoryStore())

	rr := httptest.NewRecorder()
	h.HealthLive(rr, httptest.NewRequest(http.MethodGet, "/healthz/live", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	resp := decodeResponse(t, rr)
	if resp.Status != "ok" {
		t.Errorf("Status = %q, want ok", resp.Status)
	}
}

// brokenStore fails every operation.
type brokenStore struct {
	audit.MemoryStore
}

func (s *brokenStore) Count(context.Context, audit.QueryFilter) (int64, error) {
	return 0, errors.New("store offline")
}

func (s *brokenStore) Stats(context.Context) (*audit.Stats, error) {
	return nil, errors.New("store offline")
}

func TestHealthReadyStoreDown(t *testing.T) {
	h := newTestHandlers(t, &brokenStore{})

	rr := httptest.NewRecorder()
	h.HealthReady(rr, httptest.NewRequest(http.MethodGet, "/healthz/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
	resp := decodeResponse(t, rr)
	if resp.Error == nil || resp.Error.Code != "STORE_UNAVAILABLE" {
		t.Errorf("error = %+v, want STORE_UNAVAILABLE", resp.Error)
	}
}

func TestListRecords(t *testing.T) {
	store := audit.NewMemoryStore()
	seedRecords(t, store, 9)
	h := newTestHandlers(t, store)

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantCount int
		wantTotal int64
	}{
		{
			name:      "default page",
			query:     "",
			wantCode:  http.StatusOK,
			wantCount: 9,
			wantTotal: 9,
		},
		{
			name:      "limit and offset",
			query:     "?limit=3&offset=6",
			wantCode:  http.StatusOK,
			wantCount: 3,
			wantTotal: 9,
		},
		{
			name:      "action filter",
			query:     "?action=create",
			wantCode:  http.StatusOK,
			wantCount: 3,
			wantTotal: 3,
		},
		{
			name:      "entity id filter",
			query:     "?entity_id=4",
			wantCode:  http.StatusOK,
			wantCount: 1,
			wantTotal: 1,
		},
		{
			name:      "time range",
			query:     "?start_time=2026-02-10T12:00:00Z&end_time=2026-02-10T12:02:00Z",
			wantCode:  http.StatusOK,
			wantCount: 3,
			wantTotal: 3,
		},
		{
			name:     "invalid action",
			query:    "?action=merge",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "zero limit",
			query:    "?limit=0",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "negative offset",
			query:    "?offset=-1",
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ListRecords(rr, httptest.NewRequest(http.MethodGet, "/api/v1/audit/records"+tt.query, nil))

			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.wantCode, rr.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			resp := decodeResponse(t, rr)
			if resp.Metadata.Count != tt.wantCount {
				t.Errorf("Count = %d, want %d", resp.Metadata.Count, tt.wantCount)
			}
			if resp.Metadata.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", resp.Metadata.Total, tt.wantTotal)
			}
		})
	}
}

func TestListRecordsOrdering(t *testing.T) {
	store := audit.NewMemoryStore()
	seedRecords(t, store, 3)
	h := newTestHandlers(t, store)

	rr := httptest.NewRecorder()
	h.ListRecords(rr, httptest.NewRequest(http.MethodGet, "/api/v1/audit/records?order=asc", nil))

	resp := decodeResponse(t, rr)
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("remarshal data: %v", err)
	}
	var records []audit.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[0].ID != "rec-000" || records[2].ID != "rec-002" {
		t.Errorf("ascending order broken: first=%s last=%s", records[0].ID, records[2].ID)
	}
}

func TestListRecordsLimitCapped(t *testing.T) {
	store := audit.NewMemoryStore()
	seedRecords(t, store, 5)
	h := newTestHandlers(t, store)

	rr := httptest.NewRecorder()
	h.ListRecords(rr, httptest.NewRequest(http.MethodGet, "/api/v1/audit/records?limit=9999", nil))

	resp := decodeResponse(t, rr)
	if resp.Metadata.Limit != 100 {
		t.Errorf("Limit = %d, want capped at 100", resp.Metadata.Limit)
	}
}

func TestRecordStats(t *testing.T) {
	store := audit.NewMemoryStore()
	seedRecords(t, store, 6)
	h := newTestHandlers(t, store)

	rr := httptest.NewRecorder()
	h.RecordStats(rr, httptest.NewRequest(http.MethodGet, "/api/v1/audit/stats", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	resp := decodeResponse(t, rr)
	raw, _ := json.Marshal(resp.Data)
	var stats audit.Stats
	if err := json.Unmarshal(raw, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalRecords != 6 {
		t.Errorf("TotalRecords = %d, want 6", stats.TotalRecords)
	}
	if stats.ByAction["create"] != 2 {
		t.Errorf("ByAction[create] = %d, want 2", stats.ByAction["create"])
	}
}

func TestRecordStatsError(t *testing.T) {
	h := newTestHandlers(t, &brokenStore{})

	rr := httptest.NewRecorder()
	h.RecordStats(rr, httptest.NewRequest(http.MethodGet, "/api/v1/audit/stats", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestLogStats(t *testing.T) {
	h := newTestHandlers(t, audit.NewMemoryStore())
	line := `{"level":"warn","time":"2026-02-10T12:00:00Z","event":"SUSPICIOUS_ACTIVITY"}` + "\n"
	if err := os.WriteFile(filepath.Join(h.eventDir, "security.log"), []byte(line), 0o600); err != nil {
		t.Fatalf("write sink: %v", err)
	}

	rr := httptest.NewRecorder()
	h.LogStats(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/logs/stats?log_type=security", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.LogStats(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/logs/stats?log_type=bogus", nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("unknown log type: status = %d, want %d", rr.Code, http.StatusBadRequest)
	}

	rr = httptest.NewRecorder()
	h.LogStats(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/logs/stats?days=-1", nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("negative days: status = %d, want %d", rr.Code, http.StatusBadRequest)
	}

	// An old line falls outside a one-day window.
	rr = httptest.NewRecorder()
	h.LogStats(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/logs/stats?log_type=security&days=1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("windowed status = %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"lines":0`) {
		t.Errorf("windowed body = %s, want zero counted lines", rr.Body.String())
	}
}

func TestLogAnalysisRejectsBadDays(t *testing.T) {
	h := newTestHandlers(t, audit.NewMemoryStore())

	rr := httptest.NewRecorder()
	h.LogAnalysis(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/logs/analyze?days=0", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
