// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

package events

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/clinicore/vigil/internal/requestctx"
)

// decodeLine parses a single sink line into a map.
func decodeLine(t *testing.T, line string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("line is not valid JSON: %v\n%s", err, line)
	}
	return m
}

// lines splits buffered sink output into individual event lines.
func lines(buf *bytes.Buffer) []string {
	out := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(out) == 1 && out[0] == "" {
		return nil
	}
	return out
}

func testCtx() context.Context {
	ctx := requestctx.WithActor(context.Background(), requestctx.Actor{ID: 7, Username: "nadia"})
	return requestctx.WithSourceIP(ctx, "10.0.0.9")
}

func TestBusinessLogger_UserAction(t *testing.T) {
	var buf bytes.Buffer
	l := NewBusinessLogger(&buf)

	l.UserAction(testCtx(), "login", map[string]any{"method": "form"})

	got := lines(&buf)
	if len(got) != 1 {
		t.Fatalf("expected 1 line, got %d", len(got))
	}
	m := decodeLine(t, got[0])
	if m["event"] != KindUserAction {
		t.Errorf("event = %v", m["event"])
	}
	if m["action"] != "login" {
		t.Errorf("action = %v", m["action"])
	}
	if m["username"] != "nadia" {
		t.Errorf("username = %v", m["username"])
	}
	if m["ip_address"] != "10.0.0.9" {
		t.Errorf("ip_address = %v", m["ip_address"])
	}
	if m["level"] != "info" {
		t.Errorf("level = %v", m["level"])
	}
}

func TestBusinessLogger_AnonymousActor(t *testing.T) {
	var buf bytes.Buffer
	l := NewBusinessLogger(&buf)

	l.UserAction(context.Background(), "view", nil)

	m := decodeLine(t, lines(&buf)[0])
	if m["username"] != "anonymous" {
		t.Errorf("username = %v, want anonymous", m["username"])
	}
	if _, ok := m["actor_id"]; ok {
		t.Error("actor_id should be absent for anonymous events")
	}
}

func TestSecurityLogger_LoginAttempt_Levels(t *testing.T) {
	tests := []struct {
		name      string
		success   bool
		wantLevel string
	}{
		{"success is info", true, "info"},
		{"failure is warn", false, "warn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewSecurityLogger(&buf, 0, 0)

			l.LoginAttempt(testCtx(), "nadia", tt.success, "curl/8.0")

			m := decodeLine(t, lines(&buf)[0])
			if m["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %v", m["level"], tt.wantLevel)
			}
			if m["event"] != KindLoginAttempt {
				t.Errorf("event = %v", m["event"])
			}
		})
	}
}

func TestSecurityLogger_SuspiciousActivity(t *testing.T) {
	var buf bytes.Buffer
	l := NewSecurityLogger(&buf, 0, 0)

	l.SuspiciousActivity(testCtx(), "xss_attempt", map[string]any{"pattern": "<script"})

	m := decodeLine(t, lines(&buf)[0])
	if m["activity_type"] != "xss_attempt" {
		t.Errorf("activity_type = %v", m["activity_type"])
	}
	if m["level"] != "warn" {
		t.Errorf("level = %v", m["level"])
	}
}

func TestSecurityLogger_SuspiciousActivity_RateLimited(t *testing.T) {
	var buf bytes.Buffer
	l := NewSecurityLogger(&buf, 1, 1)

	for i := 0; i < 10; i++ {
		l.SuspiciousActivity(context.Background(), "sql_injection_attempt", nil)
	}

	if got := len(lines(&buf)); got != 1 {
		t.Errorf("expected 1 line under rate limit, got %d", got)
	}
}

func TestPerformanceLogger_SlowQuery_Gating(t *testing.T) {
	tests := []struct {
		name      string
		duration  time.Duration
		wantLines int
	}{
		{"over threshold emits", 1500 * time.Millisecond, 1},
		{"under threshold is no-op", 500 * time.Millisecond, 0},
		{"at threshold is no-op", time.Second, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewPerformanceLogger(&buf, time.Second, 100)

			l.SlowQuery("SELECT * FROM clinics", tt.duration)

			if got := len(lines(&buf)); got != tt.wantLines {
				t.Errorf("got %d lines, want %d", got, tt.wantLines)
			}
		})
	}
}

func TestPerformanceLogger_RequestPerformance_AlwaysEmits(t *testing.T) {
	var buf bytes.Buffer
	l := NewPerformanceLogger(&buf, time.Second, 100)

	l.RequestPerformance(testCtx(), "/clinics", "GET", 5*time.Millisecond, 200)

	m := decodeLine(t, lines(&buf)[0])
	if m["event"] != KindRequestPerformance {
		t.Errorf("event = %v", m["event"])
	}
	if m["status_code"] != float64(200) {
		t.Errorf("status_code = %v", m["status_code"])
	}
}

func TestPerformanceLogger_HighMemoryUsage_Gating(t *testing.T) {
	var buf bytes.Buffer
	l := NewPerformanceLogger(&buf, time.Second, 100)

	l.HighMemoryUsage(90)
	if len(lines(&buf)) != 0 {
		t.Error("sub-threshold memory reading should be a no-op")
	}

	l.HighMemoryUsage(150)
	if len(lines(&buf)) != 1 {
		t.Error("over-threshold memory reading should emit")
	}
}

func TestErrorLogger_HTTPError_Levels(t *testing.T) {
	tests := []struct {
		status    int
		wantLevel string
	}{
		{404, "warn"},
		{403, "warn"},
		{500, "error"},
		{503, "error"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		l := NewErrorLogger(&buf)

		l.HTTPError(testCtx(), tt.status, "/admin", "POST")

		m := decodeLine(t, lines(&buf)[0])
		if m["level"] != tt.wantLevel {
			t.Errorf("status %d: level = %v, want %v", tt.status, m["level"], tt.wantLevel)
		}
	}
}

func TestRequestLogger_SlowRequest_Gating(t *testing.T) {
	var buf bytes.Buffer
	l := NewRequestLogger(&buf, 2*time.Second)

	l.SlowRequest(testCtx(), "GET", "/clinics", 500*time.Millisecond, 200)
	if len(lines(&buf)) != 0 {
		t.Error("0.5s request should not produce a slow-request warning")
	}

	l.SlowRequest(testCtx(), "GET", "/clinics", 2500*time.Millisecond, 200)
	got := lines(&buf)
	if len(got) != 1 {
		t.Fatalf("2.5s request should produce exactly one warning, got %d", len(got))
	}
	m := decodeLine(t, got[0])
	if m["level"] != "warn" {
		t.Errorf("level = %v", m["level"])
	}
}

func TestDatabaseLogger_ModelChange(t *testing.T) {
	var buf bytes.Buffer
	l := NewDatabaseLogger(&buf)

	l.ModelChange(testCtx(), "facilities.clinic", "update", 42)

	m := decodeLine(t, lines(&buf)[0])
	if m["model"] != "facilities.clinic" {
		t.Errorf("model = %v", m["model"])
	}
	if m["action"] != "update" {
		t.Errorf("action = %v", m["action"])
	}
	if m["object_id"] != float64(42) {
		t.Errorf("object_id = %v", m["object_id"])
	}
}

func TestNew_CreatesSinkFiles(t *testing.T) {
	dir := t.TempDir()
	l, err := New(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer l.Close()

	l.Business.UserAction(context.Background(), "login", nil)
	l.Security.LoginAttempt(context.Background(), "x", true, "")
	l.Performance.RequestPerformance(context.Background(), "/", "GET", time.Millisecond, 200)
	l.Errors.HTTPError(context.Background(), 500, "/", "GET")
	l.Database.ModelChange(context.Background(), "blog.post", "create", 1)
	l.Requests.RequestStart(context.Background(), "GET", "/", "")

	for _, name := range SinkNames {
		path := filepath.Join(dir, name+".log")
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("sink file %s missing: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("sink file %s is empty", name)
		}
	}
}

func TestSink_WriteFailureIsSwallowed(t *testing.T) {
	dir := t.TempDir()
	sink, err := OpenSink(dir, "business")
	if err != nil {
		t.Fatalf("OpenSink failed: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Writing to a closed sink must not surface an error to the logger.
	n, err := sink.Write([]byte("{}\n"))
	if err != nil {
		t.Errorf("closed sink write returned error: %v", err)
	}
	if n != 3 {
		t.Errorf("closed sink write returned n=%d, want 3", n)
	}
}
