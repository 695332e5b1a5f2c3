// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

// Package audit records field-level change history for arbitrary domain
// entities. The change detector snapshots an entity before a mutation,
// diffs it afterwards, and appends one durable record per mutation to the
// record store. Records are append-only: nothing in the pipeline updates or
// deletes them; retention pruning runs out-of-band.
package audit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
)

// Action categorizes a mutation.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ActorRef identifies the acting principal by identifier only. Nil on a
// record means the mutation was performed by the system or a background job.
type ActorRef struct {
	// ID is the principal's numeric identifier.
	ID int64 `json:"id"`

	// Username is recorded for display; the ID is authoritative.
	Username string `json:"username,omitempty"`
}

// AccessRef identifies the permission context active during a mutation.
// Opaque to the audit layer.
type AccessRef struct {
	ID   int64  `json:"id"`
	Code string `json:"code,omitempty"`
}

// FieldChange holds the serialized before/after values of one field.
type FieldChange struct {
	Field string `json:"-"`
	Old   any    `json:"old"`
	New   any    `json:"new"`
}

// ChangeSet is the sparse set of fields that differ between an entity's
// pre- and post-mutation state, ordered by field name. Unchanged fields are
// omitted entirely.
type ChangeSet []FieldChange

// MarshalJSON encodes the change set as an object keyed by field name,
// preserving the set's order.
func (cs ChangeSet) MarshalJSON() ([]byte, error) {
	if len(cs) == 0 {
		return []byte("{}"), nil
	}

	buf := []byte{'{'}
	for i, fc := range cs {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(fc.Field)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(fc)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	return append(buf, '}'), nil
}

// UnmarshalJSON decodes a stored change set. Field order is restored by
// sorting on field name, which is the order the detector emits.
func (cs *ChangeSet) UnmarshalJSON(data []byte) error {
	var raw map[string]struct {
		Old any `json:"old"`
		New any `json:"new"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(ChangeSet, 0, len(raw))
	for field, change := range raw {
		out = append(out, FieldChange{Field: field, Old: change.Old, New: change.New})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })

	*cs = out
	return nil
}

// Get returns the change for a field, if present.
func (cs ChangeSet) Get(field string) (FieldChange, bool) {
	for _, fc := range cs {
		if fc.Field == field {
			return fc, true
		}
	}
	return FieldChange{}, false
}

// Record is one durable audit entry describing a single entity mutation.
// Records for the same entity are totally ordered by CreatedAt, then Seq.
type Record struct {
	// ID is a unique identifier for this record.
	ID string `json:"id"`

	// Actor is the acting principal, nil for system mutations.
	Actor *ActorRef `json:"actor,omitempty"`

	// Action is the mutation kind.
	Action Action `json:"action"`

	// EntityType is the stable type discriminator, "namespace.type"
	// (e.g. "facilities.clinic").
	EntityType string `json:"entity_type"`

	// EntityID is the entity's numeric identifier.
	EntityID int64 `json:"entity_id"`

	// Changes is the sparse field diff. Empty for creates and deletes
	// unless explicitly populated.
	Changes ChangeSet `json:"changes"`

	// AccessContext is the permission context active during the mutation,
	// nil when unknown.
	AccessContext *AccessRef `json:"access_context,omitempty"`

	// SourceIP is the client address behind the mutation, if any.
	SourceIP string `json:"source_ip,omitempty"`

	// CreatedAt is set when the record is appended and never changes.
	CreatedAt time.Time `json:"created_at"`

	// Seq is the store's insertion sequence, breaking CreatedAt ties.
	Seq int64 `json:"seq"`
}

// Store persists audit records. Append and Query are the only operations on
// the write path; Prune exists for the out-of-band retention job and is
// never called while handling a mutation.
type Store interface {
	// Append persists a record. Bounded by the caller's context deadline.
	Append(ctx context.Context, rec *Record) error

	// Query retrieves records matching the filter, ordered by CreatedAt
	// then Seq.
	Query(ctx context.Context, filter QueryFilter) ([]Record, error)

	// Count returns the number of records matching the filter.
	Count(ctx context.Context, filter QueryFilter) (int64, error)

	// Prune removes records older than the cutoff. Retention use only.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)

	// Stats returns aggregate counts for operator tooling.
	Stats(ctx context.Context) (*Stats, error)
}

// QueryFilter selects audit records. Zero values mean "any".
type QueryFilter struct {
	// EntityType filters by exact type discriminator.
	EntityType string `json:"entity_type,omitempty"`

	// EntityID filters by entity identifier (0 = any).
	EntityID int64 `json:"entity_id,omitempty"`

	// Actions filters by mutation kind.
	Actions []Action `json:"actions,omitempty"`

	// ActorID filters by acting principal (0 = any).
	ActorID int64 `json:"actor_id,omitempty"`

	// SourceIP filters by client address.
	SourceIP string `json:"source_ip,omitempty"`

	// StartTime is the inclusive beginning of the time range.
	StartTime *time.Time `json:"start_time,omitempty"`

	// EndTime is the inclusive end of the time range.
	EndTime *time.Time `json:"end_time,omitempty"`

	// Limit caps the number of results (0 = store default).
	Limit int `json:"limit,omitempty"`

	// Offset for pagination.
	Offset int `json:"offset,omitempty"`

	// OrderDesc returns newest records first.
	OrderDesc bool `json:"order_desc,omitempty"`
}

// DefaultQueryFilter returns a sensible default filter.
func DefaultQueryFilter() QueryFilter {
	return QueryFilter{
		Limit:     100,
		OrderDesc: true,
	}
}

// Stats holds aggregate record counts.
type Stats struct {
	TotalRecords int64            `json:"total_records"`
	ByAction     map[string]int64 `json:"by_action"`
	ByEntityType map[string]int64 `json:"by_entity_type"`
	OldestRecord *time.Time       `json:"oldest_record,omitempty"`
	NewestRecord *time.Time       `json:"newest_record,omitempty"`
}

// Validate checks that a record is well-formed before persistence.
func (r *Record) Validate() error {
	if r.EntityType == "" {
		return fmt.Errorf("record entity type is empty")
	}
	if r.EntityID == 0 {
		return fmt.Errorf("record entity id is zero")
	}
	switch r.Action {
	case ActionCreate, ActionUpdate, ActionDelete:
	default:
		return fmt.Errorf("unknown action %q", r.Action)
	}
	return nil
}
