// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

package events

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicore/vigil/internal/metrics"
)

// RequestLogger records the request sink: one line per instrumented request
// start, plus slow-request and not-found lines emitted by the middleware.
type RequestLogger struct {
	logger        zerolog.Logger
	slowThreshold time.Duration
}

// NewRequestLogger creates a request event logger writing to w.
func NewRequestLogger(w io.Writer, slowThreshold time.Duration) *RequestLogger {
	if slowThreshold <= 0 {
		slowThreshold = 2 * time.Second
	}
	return &RequestLogger{
		logger:        sinkLogger(w),
		slowThreshold: slowThreshold,
	}
}

// SlowThreshold returns the configured slow-request threshold.
func (l *RequestLogger) SlowThreshold() time.Duration {
	return l.slowThreshold
}

// RequestStart records an inbound request before handling.
func (l *RequestLogger) RequestStart(ctx context.Context, method, path, userAgent string) {
	metrics.EventsTotal.WithLabelValues(SinkRequests).Inc()
	e := l.logger.Info().
		Str("event", KindRequestStart).
		Str("method", method).
		Str("path", path)
	if userAgent != "" {
		e = e.Str("user_agent", userAgent)
	}
	requestFields(e, ctx).Msg("")
}

// SlowRequest records a request whose elapsed time exceeded the threshold.
// Requests at or under the threshold are no-ops.
func (l *RequestLogger) SlowRequest(ctx context.Context, method, path string, duration time.Duration, status int) {
	if duration <= l.slowThreshold {
		return
	}
	metrics.SlowRequestsTotal.Inc()
	metrics.EventsTotal.WithLabelValues(SinkRequests).Inc()
	e := l.logger.Warn().
		Str("event", KindSlowRequest).
		Str("method", method).
		Str("path", path).
		Float64("response_time", duration.Seconds()).
		Int("status_code", status)
	requestFields(e, ctx).Msg("")
}

// NotFound records a request that resolved to a missing resource. These are
// informational; a 404 is not an application fault.
func (l *RequestLogger) NotFound(ctx context.Context, method, path string) {
	metrics.EventsTotal.WithLabelValues(SinkRequests).Inc()
	e := l.logger.Info().
		Str("event", KindNotFound).
		Str("method", method).
		Str("path", path)
	requestFields(e, ctx).Msg("")
}
