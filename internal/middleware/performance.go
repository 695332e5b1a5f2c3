// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

package middleware

import (
	"net/http"
	"sort"
	"sync"
	"time"
)

// RequestSample is one observed request, kept in the monitor's sliding
// window for percentile calculations.
type RequestSample struct {
	Path       string
	Method     string
	DurationMS int64
	StatusCode int
	Timestamp  time.Time
}

// EndpointMonitor aggregates per-endpoint latency over a sliding window of
// recent requests. It backs the admin stats endpoint; durable per-request
// data lives in the request event sink.
type EndpointMonitor struct {
	mu         sync.RWMutex
	samples    []RequestSample
	maxSamples int
}

// EndpointStats contains aggregated latency statistics for one endpoint.
type EndpointStats struct {
	Endpoint     string  `json:"endpoint"`
	RequestCount int64   `json:"request_count"`
	AvgDuration  float64 `json:"avg_duration_ms"`
	P50Duration  int64   `json:"p50_duration_ms"`
	P95Duration  int64   `json:"p95_duration_ms"`
	P99Duration  int64   `json:"p99_duration_ms"`
	MinDuration  int64   `json:"min_duration_ms"`
	MaxDuration  int64   `json:"max_duration_ms"`
}

// NewEndpointMonitor creates a monitor holding at most maxSamples requests.
func NewEndpointMonitor(maxSamples int) *EndpointMonitor {
	return &EndpointMonitor{
		samples:    make([]RequestSample, 0, maxSamples),
		maxSamples: maxSamples,
	}
}

// Record adds a sample to the sliding window, evicting the oldest.
func (m *EndpointMonitor) Record(sample RequestSample) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.samples = append(m.samples, sample)
	if len(m.samples) > m.maxSamples {
		m.samples = m.samples[1:]
	}
}

// Stats returns aggregated statistics per endpoint, busiest first.
func (m *EndpointMonitor) Stats() []EndpointStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byEndpoint := make(map[string][]int64)
	for _, s := range m.samples {
		key := s.Method + " " + s.Path
		byEndpoint[key] = append(byEndpoint[key], s.DurationMS)
	}

	stats := make([]EndpointStats, 0, len(byEndpoint))
	for endpoint, durations := range byEndpoint {
		sorted := make([]int64, len(durations))
		copy(sorted, durations)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, d := range sorted {
			sum += d
		}

		stats = append(stats, EndpointStats{
			Endpoint:     endpoint,
			RequestCount: int64(len(sorted)),
			AvgDuration:  float64(sum) / float64(len(sorted)),
			P50Duration:  percentile(sorted, 0.50),
			P95Duration:  percentile(sorted, 0.95),
			P99Duration:  percentile(sorted, 0.99),
			MinDuration:  sorted[0],
			MaxDuration:  sorted[len(sorted)-1],
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].RequestCount > stats[j].RequestCount
	})
	return stats
}

// Recent returns the most recent n samples, oldest first.
func (m *EndpointMonitor) Recent(n int) []RequestSample {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n > len(m.samples) {
		n = len(m.samples)
	}
	recent := make([]RequestSample, n)
	copy(recent, m.samples[len(m.samples)-n:])
	return recent
}

// Middleware records every request into the sliding window.
func (m *EndpointMonitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		m.Record(RequestSample{
			Path:       r.URL.Path,
			Method:     r.Method,
			DurationMS: time.Since(start).Milliseconds(),
			StatusCode: wrapper.status,
			Timestamp:  time.Now(),
		})
	})
}

// percentile calculates the percentile value from a sorted slice.
func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	index := int(float64(len(sorted)-1) * p)
	return sorted[index]
}
