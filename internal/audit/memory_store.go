// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and single-process setups
// where durability is not required. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	nextSeq int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append stores a copy of the record and assigns its sequence number.
func (s *MemoryStore) Append(_ context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSeq++
	rec.Seq = s.nextSeq
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.records = append(s.records, *rec)
	return nil
}

// Query returns records matching the filter, ordered by CreatedAt then Seq.
func (s *MemoryStore) Query(_ context.Context, filter QueryFilter) ([]Record, error) {
	s.mu.RLock()
	matched := make([]Record, 0)
	for _, rec := range s.records {
		if matches(rec, filter) {
			matched = append(matched, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if filter.OrderDesc {
			a, b = b, a
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Seq < b.Seq
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []Record{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// Count returns the number of records matching the filter.
func (s *MemoryStore) Count(_ context.Context, filter QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, rec := range s.records {
		if matches(rec, filter) {
			n++
		}
	}
	return n, nil
}

// Prune removes records created before the cutoff and returns how many
// were removed.
func (s *MemoryStore) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	var removed int64
	for _, rec := range s.records {
		if rec.CreatedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return removed, nil
}

// Stats returns aggregate counts over all stored records.
func (s *MemoryStore) Stats(_ context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{
		TotalRecords: int64(len(s.records)),
		ByAction:     make(map[string]int64),
		ByEntityType: make(map[string]int64),
	}
	for _, rec := range s.records {
		stats.ByAction[string(rec.Action)]++
		stats.ByEntityType[rec.EntityType]++
		if stats.OldestRecord == nil || rec.CreatedAt.Before(*stats.OldestRecord) {
			t := rec.CreatedAt
			stats.OldestRecord = &t
		}
		if stats.NewestRecord == nil || rec.CreatedAt.After(*stats.NewestRecord) {
			t := rec.CreatedAt
			stats.NewestRecord = &t
		}
	}
	return stats, nil
}

// matches reports whether a record satisfies all set filter fields.
func matches(rec Record, filter QueryFilter) bool {
	if filter.EntityType != "" && rec.EntityType != filter.EntityType {
		return false
	}
	if filter.EntityID != 0 && rec.EntityID != filter.EntityID {
		return false
	}
	if filter.ActorID != 0 && (rec.Actor == nil || rec.Actor.ID != filter.ActorID) {
		return false
	}
	if filter.SourceIP != "" && rec.SourceIP != filter.SourceIP {
		return false
	}
	if len(filter.Actions) > 0 {
		found := false
		for _, a := range filter.Actions {
			if rec.Action == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.StartTime != nil && rec.CreatedAt.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && rec.CreatedAt.After(*filter.EndTime) {
		return false
	}
	return true
}
