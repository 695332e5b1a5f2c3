// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/clinicore/vigil/internal/events"
)

func newTestLoggers(t *testing.T) (*events.Loggers, string) {
	t.Helper()
	dir := t.TempDir()
	loggers, err := events.New(events.DefaultConfig(dir))
	if err != nil {
		t.Fatalf("events.New() error = %v", err)
	}
	t.Cleanup(func() { loggers.Close() })
	return loggers, dir
}

func sinkContent(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name+".log"))
	if err != nil {
		t.Fatalf("read sink %s: %v", name, err)
	}
	return string(data)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestInstrumentEmitsStartAndPerformance(t *testing.T) {
	loggers, dir := newTestLoggers(t)
	handler := Instrument(loggers, DefaultInstrumentConfig())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/patients/17", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	requests := sinkContent(t, dir, events.SinkRequests)
	if !strings.Contains(requests, events.KindRequestStart) {
		t.Error("requests sink missing start event")
	}
	perf := sinkContent(t, dir, events.SinkPerformance)
	if !strings.Contains(perf, events.KindRequestPerformance) {
		t.Error("performance sink missing request performance event")
	}
}

func TestInstrumentSkipsConfiguredPrefixes(t *testing.T) {
	loggers, dir := newTestLoggers(t)
	handler := Instrument(loggers, DefaultInstrumentConfig())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if requests := sinkContent(t, dir, events.SinkRequests); strings.Contains(requests, "/metrics") {
		t.Error("skipped path produced a request event")
	}
}

func TestInstrumentNotFoundResponse(t *testing.T) {
	loggers, dir := newTestLoggers(t)
	handler := Instrument(loggers, DefaultInstrumentConfig())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

	req := httptest.NewRequest(http.MethodGet, "/patients/999", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	// A 404 response classifies like any other error status; the
	// not-found event is reserved for the panic path.
	errs := sinkContent(t, dir, events.SinkErrors)
	if !strings.Contains(errs, events.KindHTTPError) {
		t.Error("errors sink missing HTTP error event for 404 response")
	}
	if !strings.Contains(errs, "404") {
		t.Errorf("errors sink missing status 404: %s", errs)
	}
	if requests := sinkContent(t, dir, events.SinkRequests); strings.Contains(requests, events.KindNotFound) {
		t.Error("plain 404 response emitted a not-found event")
	}
}

func TestInstrumentHTTPErrorEvent(t *testing.T) {
	loggers, dir := newTestLoggers(t)
	handler := Instrument(loggers, DefaultInstrumentConfig())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))

	req := httptest.NewRequest(http.MethodGet, "/patients", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if errs := sinkContent(t, dir, events.SinkErrors); !strings.Contains(errs, events.KindHTTPError) {
		t.Error("errors sink missing HTTP error event")
	}
}

func TestInstrumentInjectionScan(t *testing.T) {
	tests := []struct {
		name         string
		target       string
		activityType string
	}{
		{"sql union select", "/patients?q=1%20union%20select%20*", "sql_injection_attempt"},
		{"sql drop table", "/patients?q=x;drop%20table%20users", "sql_injection_attempt"},
		{"xss script tag", "/search?q=%3Cscript%3Ealert(1)%3C/script%3E", "xss_attempt"},
		{"xss javascript scheme", "/search?next=javascript:alert(1)", "xss_attempt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loggers, dir := newTestLoggers(t)
			handler := Instrument(loggers, DefaultInstrumentConfig())(okHandler())

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			// Detection is observational only.
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", rec.Code)
			}
			sec := sinkContent(t, dir, events.SinkSecurity)
			if !strings.Contains(sec, tt.activityType) {
				t.Errorf("security sink missing %s event", tt.activityType)
			}
		})
	}
}

func TestInstrumentCleanURLNoSecurityEvent(t *testing.T) {
	loggers, dir := newTestLoggers(t)
	handler := Instrument(loggers, DefaultInstrumentConfig())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/patients?status=active&page=2", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	sec := sinkContent(t, dir, events.SinkSecurity)
	if strings.Contains(sec, events.KindSuspiciousActivity) {
		t.Error("clean URL produced a suspicious-activity event")
	}
}

func TestInstrumentPanicClassification(t *testing.T) {
	tests := []struct {
		name       string
		panicValue any
		wantStatus int
		wantSink   string
		wantKind   string
	}{
		{"not found sentinel", ErrNotFound, http.StatusNotFound, events.SinkRequests, events.KindNotFound},
		{"permission sentinel", ErrPermissionDenied, http.StatusForbidden, events.SinkSecurity, events.KindPermissionDenied},
		{"generic error", os.ErrClosed, http.StatusInternalServerError, events.SinkErrors, events.KindException},
		{"non-error panic", "boom", http.StatusInternalServerError, events.SinkErrors, events.KindException},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loggers, dir := newTestLoggers(t)
			handler := Instrument(loggers, DefaultInstrumentConfig())(
				http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
					panic(tt.panicValue)
				}))

			req := httptest.NewRequest(http.MethodGet, "/patients/1", nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req) // must not panic through

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if content := sinkContent(t, dir, tt.wantSink); !strings.Contains(content, tt.wantKind) {
				t.Errorf("%s sink missing %s event", tt.wantSink, tt.wantKind)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	var gotCtxID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCtxID = GetRequestID(r.Context())
	}))

	t.Run("generates id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		header := rec.Header().Get("X-Request-ID")
		if header == "" {
			t.Fatal("missing X-Request-ID header")
		}
		if gotCtxID != header {
			t.Errorf("context id %q != header %q", gotCtxID, header)
		}
	})

	t.Run("honors upstream id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "upstream-id-7")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get("X-Request-ID"); got != "upstream-id-7" {
			t.Errorf("X-Request-ID = %q, want upstream-id-7", got)
		}
	})
}

func TestEndpointMonitor(t *testing.T) {
	m := NewEndpointMonitor(100)
	for i := 0; i < 10; i++ {
		m.Record(RequestSample{
			Path:       "/patients",
			Method:     http.MethodGet,
			DurationMS: int64(i + 1) * 10,
			StatusCode: http.StatusOK,
		})
	}

	stats := m.Stats()
	if len(stats) != 1 {
		t.Fatalf("got %d endpoints, want 1", len(stats))
	}
	s := stats[0]
	if s.Endpoint != "GET /patients" {
		t.Errorf("Endpoint = %q", s.Endpoint)
	}
	if s.RequestCount != 10 {
		t.Errorf("RequestCount = %d, want 10", s.RequestCount)
	}
	if s.MinDuration != 10 || s.MaxDuration != 100 {
		t.Errorf("min/max = %d/%d, want 10/100", s.MinDuration, s.MaxDuration)
	}
	if s.P50Duration != 50 {
		t.Errorf("P50 = %d, want 50", s.P50Duration)
	}

	if recent := m.Recent(3); len(recent) != 3 || recent[2].DurationMS != 100 {
		t.Errorf("Recent(3) = %+v", recent)
	}
}

func TestEndpointMonitorWindowEviction(t *testing.T) {
	m := NewEndpointMonitor(5)
	for i := 0; i < 8; i++ {
		m.Record(RequestSample{Path: "/x", Method: "GET", DurationMS: int64(i)})
	}
	if stats := m.Stats(); stats[0].RequestCount != 5 {
		t.Errorf("window holds %d samples, want 5", stats[0].RequestCount)
	}
	if recent := m.Recent(10); len(recent) != 5 {
		t.Errorf("Recent(10) returned %d, want 5", len(recent))
	}
}
