// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingStore struct {
	prunes  atomic.Int64
	cutoffs chan time.Time
}

func (s *countingStore) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	s.prunes.Add(1)
	select {
	case s.cutoffs <- olderThan:
	default:
	}
	return 3, nil
}

func TestRetentionServicePrunesOnTick(t *testing.T) {
	store := &countingStore{cutoffs: make(chan time.Time, 1)}
	svc := NewRetentionService(store, RetentionConfig{
		Interval:       10 * time.Millisecond,
		AuditRetention: 30 * 24 * time.Hour,
		EventRetention: 0, // no event dir in this test
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	select {
	case cutoff := <-store.cutoffs:
		wantAfter := time.Now().UTC().Add(-31 * 24 * time.Hour)
		if cutoff.Before(wantAfter) {
			t.Errorf("cutoff %v older than expected window", cutoff)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Prune was never called")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}

func TestRetentionServiceDefaults(t *testing.T) {
	svc := NewRetentionService(&countingStore{cutoffs: make(chan time.Time, 1)}, RetentionConfig{})
	if svc.cfg.Interval != 24*time.Hour {
		t.Errorf("Interval default = %v, want 24h", svc.cfg.Interval)
	}
	if svc.String() != "retention" {
		t.Errorf("String() = %q", svc.String())
	}
}
