// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clinicore/vigil/internal/events"
	"github.com/clinicore/vigil/internal/logging"
)

// Panic sentinels. A handler that panics with one of these (possibly
// wrapped) gets a classified response and event instead of a generic 500.
var (
	// ErrNotFound converts to a 404 and a not-found request event.
	ErrNotFound = errors.New("resource not found")

	// ErrPermissionDenied converts to a 403 and a security event.
	ErrPermissionDenied = errors.New("permission denied")
)

// InstrumentConfig tunes the request instrumentation middleware.
type InstrumentConfig struct {
	// SkipPrefixes lists path prefixes excluded from request events,
	// typically health checks, metrics scrapes, and static assets.
	SkipPrefixes []string
}

// DefaultInstrumentConfig excludes the operational endpoints.
func DefaultInstrumentConfig() InstrumentConfig {
	return InstrumentConfig{
		SkipPrefixes: []string{"/metrics", "/healthz", "/static/", "/media/", "/favicon.ico"},
	}
}

// Instrument observes the full request lifecycle: a start event, a passive
// injection-pattern scan of the URL, timing with slow-request detection,
// error events for 4xx/5xx responses, and panic classification. It never
// changes the outcome of a healthy request.
func Instrument(loggers *events.Loggers, cfg InstrumentConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipPath(r.URL.Path, cfg.SkipPrefixes) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			start := time.Now()

			loggers.Requests.RequestStart(ctx, r.Method, r.URL.Path, r.UserAgent())
			scanForInjection(loggers, r)

			wrapper := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				panicked := false
				if rec := recover(); rec != nil {
					handlePanic(loggers, wrapper, r, rec)
					panicked = true
				}

				duration := time.Since(start)
				status := wrapper.status

				loggers.Performance.RequestPerformance(ctx, r.URL.Path, r.Method, duration, status)
				loggers.Requests.SlowRequest(ctx, r.Method, r.URL.Path, duration, status)

				if panicked {
					// handlePanic already emitted the classified event.
					return
				}
				// Every error response is classified, 404s included; the
				// not-found event belongs to the panic path only.
				if status >= http.StatusBadRequest {
					loggers.Errors.HTTPError(ctx, status, r.URL.Path, r.Method)
				}
			}()

			next.ServeHTTP(wrapper, r)
		})
	}
}

func skipPath(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// handlePanic classifies a handler panic and writes the matching response.
// The panic never propagates.
func handlePanic(loggers *events.Loggers, w *statusWriter, r *http.Request, rec any) {
	ctx := r.Context()

	err, ok := rec.(error)
	switch {
	case ok && errors.Is(err, ErrNotFound):
		loggers.Requests.NotFound(ctx, r.Method, r.URL.Path)
		writeStatus(w, http.StatusNotFound)
	case ok && errors.Is(err, ErrPermissionDenied):
		loggers.Security.PermissionDenied(ctx, r.Method, r.URL.Path)
		writeStatus(w, http.StatusForbidden)
	default:
		if !ok {
			err = fmt.Errorf("panic: %v", rec)
		}
		loggers.Errors.Exception(ctx, err, map[string]any{
			"path":   r.URL.Path,
			"method": r.Method,
		})
		logging.Err(err).
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Msg("Recovered from handler panic")
		writeStatus(w, http.StatusInternalServerError)
	}
}

// writeStatus sends an error status unless the handler already wrote one.
func writeStatus(w *statusWriter, status int) {
	if w.wroteHeader {
		w.status = status // classify correctly in the trailing events
		return
	}
	http.Error(w, http.StatusText(status), status)
}

// Injection probe patterns, matched case-insensitively against the request
// URL. Detection is observational: the request proceeds regardless.
var (
	sqlPatterns = []string{
		"union select",
		"union all select",
		"drop table",
		"truncate table",
		"insert into",
		"delete from",
		"or 1=1",
		"' or '",
		"sleep(",
		"benchmark(",
	}
	xssPatterns = []string{
		"<script",
		"javascript:",
		"onerror=",
		"onload=",
		"<iframe",
		"document.cookie",
		"alert(",
	}
)

// scanForInjection checks the decoded request URL for SQL injection and XSS
// probe patterns and emits a suspicious-activity event per category hit.
func scanForInjection(loggers *events.Loggers, r *http.Request) {
	target := r.URL.Path + "?" + r.URL.RawQuery
	if decoded, err := url.QueryUnescape(target); err == nil {
		target = decoded
	}
	target = strings.ToLower(target)

	if pat := firstMatch(target, sqlPatterns); pat != "" {
		loggers.Security.SuspiciousActivity(r.Context(), "sql_injection_attempt", map[string]any{
			"path":    r.URL.Path,
			"pattern": pat,
			"method":  r.Method,
		})
	}
	if pat := firstMatch(target, xssPatterns); pat != "" {
		loggers.Security.SuspiciousActivity(r.Context(), "xss_attempt", map[string]any{
			"path":    r.URL.Path,
			"pattern": pat,
			"method":  r.Method,
		})
	}
}

func firstMatch(target string, patterns []string) string {
	for _, pat := range patterns {
		if strings.Contains(target, pat) {
			return pat
		}
	}
	return ""
}
