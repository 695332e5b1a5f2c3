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

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/clinicore/vigil/internal/events"
	"github.com/clinicore/vigil/internal/logging"
	"github.com/clinicore/vigil/internal/metrics"
	"github.com/clinicore/vigil/internal/requestctx"
	"github.com/clinicore/vigil/internal/serialize"
)

// StateReader reads an entity's current persisted state as a flat field map.
// A miss (entity not yet persisted) is reported as an error or a nil map;
// the detector treats both as "no prior state".
type StateReader interface {
	ReadState(ctx context.Context, entityType string, entityID int64) (map[string]any, error)
}

// DetectorConfig tunes the change detector.
type DetectorConfig struct {
	// Filter decides which entity types are audited.
	Filter Filter

	// AppendTimeout bounds a single store append.
	AppendTimeout time.Duration

	// BreakerFailureThreshold is the consecutive append failures that
	// open the store circuit.
	BreakerFailureThreshold uint32

	// BreakerTimeout is how long the circuit stays open before probing.
	BreakerTimeout time.Duration
}

// DefaultDetectorConfig returns production defaults.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Filter:                  DefaultFilter(),
		AppendTimeout:           5 * time.Second,
		BreakerFailureThreshold: 5,
		BreakerTimeout:          30 * time.Second,
	}
}

type snapshotKey struct {
	entityType string
	entityID   int64
}

// Detector observes entity mutations and produces at most one audit record
// per mutation. A failure anywhere in the pipeline (snapshot read, diff,
// store append) never propagates to the caller: the mutation itself must
// not be affected by auditing.
type Detector struct {
	reader  StateReader
	store   Store
	cfg     DetectorConfig
	db      *events.DatabaseLogger
	breaker *gobreaker.CircuitBreaker[struct{}]

	mu      sync.Mutex
	pending map[snapshotKey]map[string]any
}

// NewDetector creates a detector over the given state reader and record
// store. db may be nil to disable the coarse mutation trail.
func NewDetector(reader StateReader, store Store, db *events.DatabaseLogger, cfg DetectorConfig) *Detector {
	d := &Detector{
		reader:  reader,
		store:   store,
		cfg:     cfg,
		db:      db,
		pending: make(map[snapshotKey]map[string]any),
	}

	d.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "audit-store",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Audit store circuit state changed")
		},
	})

	return d
}

// BeforeMutate stages a snapshot of the entity's current state ahead of an
// update or delete. A read failure or a missing entity stages an empty
// snapshot, which downgrades a later update to a create-shaped record.
// Always returns without error effects on the caller.
func (d *Detector) BeforeMutate(ctx context.Context, entityType string, entityID int64) {
	if !d.cfg.Filter.ShouldAudit(entityType) || entityID == 0 {
		return
	}

	state, err := d.reader.ReadState(ctx, entityType, entityID)
	if err != nil || state == nil {
		state = map[string]any{}
	}

	d.mu.Lock()
	d.pending[snapshotKey{entityType, entityID}] = state
	d.mu.Unlock()
}

// AfterMutate records the mutation. For updates it diffs the staged
// snapshot against the post-mutation state and stores only changed fields;
// creates and deletes carry an empty change set. When an update has no
// staged snapshot the mutation is recorded as a create. Errors are
// swallowed and logged.
func (d *Detector) AfterMutate(ctx context.Context, entityType string, entityID int64, action Action, state map[string]any) {
	if entityID == 0 {
		return
	}
	if !d.cfg.Filter.ShouldAudit(entityType) {
		metrics.AuditFilteredTotal.Inc()
		return
	}

	before := d.takePending(entityType, entityID)

	if action == ActionUpdate && len(before) == 0 {
		// No staged state means the entity was not persisted when
		// BeforeMutate ran, so this mutation brought it into being.
		action = ActionCreate
	}

	rec := &Record{
		ID:         uuid.NewString(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Changes:    ChangeSet{},
		CreatedAt:  time.Now().UTC(),
	}

	if action == ActionUpdate {
		if diff := Diff(before, state); diff != nil {
			rec.Changes = diff
		}
	}

	if actor, ok := requestctx.ActorFrom(ctx); ok {
		rec.Actor = &ActorRef{ID: actor.ID, Username: actor.Username}
	}
	if access, ok := requestctx.AccessFrom(ctx); ok {
		rec.AccessContext = &AccessRef{ID: access.ID, Code: access.Code}
	}
	rec.SourceIP = requestctx.SourceIPFrom(ctx)

	d.append(ctx, rec)

	if d.db != nil {
		d.db.ModelChange(ctx, entityType, string(action), entityID)
	}
}

// takePending consumes the staged snapshot for an entity, if any.
func (d *Detector) takePending(entityType string, entityID int64) map[string]any {
	key := snapshotKey{entityType, entityID}
	d.mu.Lock()
	defer d.mu.Unlock()
	state, ok := d.pending[key]
	if !ok {
		return nil
	}
	delete(d.pending, key)
	return state
}

// append persists the record through the store circuit breaker. Failures
// are counted and logged, never returned.
func (d *Detector) append(ctx context.Context, rec *Record) {
	appendCtx, cancel := context.WithTimeout(ctx, d.cfg.AppendTimeout)
	defer cancel()

	_, err := d.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, d.store.Append(appendCtx, rec)
	})
	if err != nil {
		metrics.AuditAppendErrors.Inc()
		logging.Err(err).
			Str("entity_type", rec.EntityType).
			Int64("entity_id", rec.EntityID).
			Str("action", string(rec.Action)).
			Msg("Failed to append audit record")
		return
	}

	metrics.AuditRecordsTotal.WithLabelValues(string(rec.Action)).Inc()
}

// Diff computes the sparse field diff between two flat state maps. Values
// are normalized through the serializer before comparison and storage, so
// a field counts as changed only when its serialized forms differ. The
// result is ordered by field name.
func Diff(before, after map[string]any) ChangeSet {
	fields := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		fields[k] = struct{}{}
	}
	for k := range after {
		fields[k] = struct{}{}
	}

	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)

	var cs ChangeSet
	for _, name := range names {
		oldVal, oldOK := before[name]
		newVal, newOK := after[name]
		if oldOK && newOK && serialize.Equal(oldVal, newVal) {
			continue
		}
		fc := FieldChange{Field: name}
		if oldOK {
			fc.Old = serialize.Value(oldVal)
		}
		if newOK {
			fc.New = serialize.Value(newVal)
		}
		cs = append(cs, fc)
	}
	return cs
}
