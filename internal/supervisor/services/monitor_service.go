// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

package services

import (
	"context"
	"runtime"
	"time"

	"github.com/clinicore/vigil/internal/events"
)

// MonitorService samples process memory usage on an interval and feeds the
// performance logger, which emits a high-memory event only above its
// configured threshold.
type MonitorService struct {
	perf     *events.PerformanceLogger
	interval time.Duration
	name     string
}

// NewMonitorService creates a memory monitor sampling every interval.
func NewMonitorService(perf *events.PerformanceLogger, interval time.Duration) *MonitorService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &MonitorService{
		perf:     perf,
		interval: interval,
		name:     "memory-monitor",
	}
}

// Serve implements suture.Service.
func (s *MonitorService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			s.perf.HighMemoryUsage(float64(m.HeapAlloc) / (1024 * 1024))
		}
	}
}

// String implements fmt.Stringer; suture uses it in log messages.
func (s *MonitorService) String() string {
	return s.name
}
