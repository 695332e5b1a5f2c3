// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

// Package metrics provides Prometheus instrumentation for the audit and
// observability pipeline: HTTP request latency, audit record throughput,
// sink health, and security scanner activity.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_requests",
			Help: "Current number of in-flight HTTP requests",
		},
	)

	SlowRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "http_slow_requests_total",
			Help: "Total number of requests exceeding the slow-request threshold",
		},
	)

	// Audit pipeline metrics
	AuditRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_records_total",
			Help: "Total number of audit records appended",
		},
		[]string{"action"},
	)

	AuditAppendErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_append_errors_total",
			Help: "Total number of failed audit record appends",
		},
	)

	AuditFilteredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_filtered_total",
			Help: "Total number of mutations skipped by the entity type filter",
		},
	)

	// Event sink metrics
	SinkWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_sink_write_errors_total",
			Help: "Total number of failed event sink writes",
		},
		[]string{"sink"},
	)

	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_total",
			Help: "Total number of events written per category",
		},
		[]string{"category"},
	)

	// Security scanner metrics
	SuspiciousActivityTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suspicious_activity_total",
			Help: "Total number of suspicious request signatures detected",
		},
		[]string{"activity_type"},
	)
)

// RecordRequest records latency and count for a completed HTTP request.
func RecordRequest(method, path string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	RequestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	RequestsTotal.WithLabelValues(method, path, code).Inc()
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(start bool) {
	if start {
		ActiveRequests.Inc()
	} else {
		ActiveRequests.Dec()
	}
}
