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

// PerformanceLogger records latency measurements. Threshold-gated events are
// dropped entirely below their threshold, not demoted to a lower level.
type PerformanceLogger struct {
	logger             zerolog.Logger
	slowQueryThreshold time.Duration
	memoryThresholdMB  float64
}

// NewPerformanceLogger creates a performance event logger writing to w.
func NewPerformanceLogger(w io.Writer, slowQueryThreshold time.Duration, memoryThresholdMB float64) *PerformanceLogger {
	if slowQueryThreshold <= 0 {
		slowQueryThreshold = time.Second
	}
	if memoryThresholdMB <= 0 {
		memoryThresholdMB = 100
	}
	return &PerformanceLogger{
		logger:             sinkLogger(w),
		slowQueryThreshold: slowQueryThreshold,
		memoryThresholdMB:  memoryThresholdMB,
	}
}

// SlowQuery records a database query that exceeded the threshold. Queries at
// or under the threshold are no-ops.
func (l *PerformanceLogger) SlowQuery(query string, duration time.Duration) {
	if duration <= l.slowQueryThreshold {
		return
	}
	metrics.EventsTotal.WithLabelValues(SinkPerformance).Inc()
	l.logger.Warn().
		Str("event", KindSlowQuery).
		Str("query", query).
		Float64("execution_time", duration.Seconds()).
		Float64("threshold", l.slowQueryThreshold.Seconds()).
		Msg("")
}

// RequestPerformance records the latency of a completed HTTP request.
// Emitted for every instrumented request regardless of duration.
func (l *PerformanceLogger) RequestPerformance(ctx context.Context, path, method string, duration time.Duration, status int) {
	metrics.EventsTotal.WithLabelValues(SinkPerformance).Inc()
	e := l.logger.Info().
		Str("event", KindRequestPerformance).
		Str("path", path).
		Str("method", method).
		Float64("response_time", duration.Seconds()).
		Int("status_code", status)
	requestFields(e, ctx).Msg("")
}

// HighMemoryUsage records process memory above the threshold. Readings at or
// under the threshold are no-ops.
func (l *PerformanceLogger) HighMemoryUsage(memoryMB float64) {
	if memoryMB <= l.memoryThresholdMB {
		return
	}
	metrics.EventsTotal.WithLabelValues(SinkPerformance).Inc()
	l.logger.Warn().
		Str("event", KindHighMemoryUsage).
		Float64("memory_usage_mb", memoryMB).
		Float64("threshold_mb", l.memoryThresholdMB).
		Msg("")
}
