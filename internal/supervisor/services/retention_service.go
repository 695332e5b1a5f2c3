// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

package services

import (
	"context"
	"time"

	"github.com/clinicore/vigil/internal/audit"
	"github.com/clinicore/vigil/internal/logging"
	"github.com/clinicore/vigil/internal/logops"
)

// RetentionConfig tunes the retention service.
type RetentionConfig struct {
	// Interval is how often a retention pass runs.
	Interval time.Duration

	// AuditRetention is how long audit records are kept.
	AuditRetention time.Duration

	// EventRetention is how long event log lines are kept.
	EventRetention time.Duration

	// EventDir is the directory holding the event sinks.
	EventDir string
}

// RetentionService periodically prunes audit records past their retention
// window and deletes event sink files whose mtime is past theirs. A failed
// pass is logged and retried on the next tick; it never crashes the service.
type RetentionService struct {
	store auditStore
	cfg   RetentionConfig
	name  string
}

// auditStore is the slice of audit.Store the retention service needs.
type auditStore interface {
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

var _ auditStore = (audit.Store)(nil)

// NewRetentionService creates a retention service over the given store and
// event directory.
func NewRetentionService(store auditStore, cfg RetentionConfig) *RetentionService {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	return &RetentionService{
		store: store,
		cfg:   cfg,
		name:  "retention",
	}
}

// Serve implements suture.Service. The first pass runs one interval after
// startup, not immediately, so a crash-looping process does not hammer the
// store.
func (s *RetentionService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

// runPass executes one retention pass.
func (s *RetentionService) runPass(ctx context.Context) {
	now := time.Now().UTC()

	if s.cfg.AuditRetention > 0 {
		cutoff := now.Add(-s.cfg.AuditRetention)
		removed, err := s.store.Prune(ctx, cutoff)
		if err != nil {
			logging.Err(err).Msg("Audit record pruning failed")
		} else if removed > 0 {
			logging.Info().
				Int64("removed", removed).
				Time("cutoff", cutoff).
				Msg("Pruned audit records")
		}
	}

	if s.cfg.EventRetention > 0 && s.cfg.EventDir != "" {
		cutoff := now.Add(-s.cfg.EventRetention)
		results, err := logops.Clean(s.cfg.EventDir, "", cutoff)
		if err != nil {
			logging.Err(err).Msg("Event log cleaning failed")
			return
		}
		var removed int
		for _, res := range results {
			if res.Warning != "" {
				logging.Warn().
					Str("sink", res.Name).
					Str("warning", res.Warning).
					Msg("Event log cleaning skipped a sink")
			}
			if res.Removed {
				removed++
			}
		}
		if removed > 0 {
			logging.Info().
				Int("removed", removed).
				Time("cutoff", cutoff).
				Msg("Removed expired event log files")
		}
	}
}

// String implements fmt.Stringer; suture uses it in log messages.
func (s *RetentionService) String() string {
	return s.name
}
