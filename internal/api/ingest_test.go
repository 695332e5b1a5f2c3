// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/clinicore/vigil/internal/audit"
)

func postMutation(t *testing.T, h *Handlers, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/audit/mutations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.IngestMutation(rr, req)
	return rr
}

func TestIngestMutationCreateThenUpdate(t *testing.T) {
	store := audit.NewMemoryStore()
	h := newTestHandlers(t, store)

	rr := postMutation(t, h, `{
		"entity_type": "clinic.Patient",
		"entity_id": 7,
		"action": "create",
		"state": {"name": "Jordan", "status": "active"},
		"actor": {"id": 42, "username": "drsmith"}
	}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("create status = %d: %s", rr.Code, rr.Body.String())
	}

	rr = postMutation(t, h, `{
		"entity_type": "clinic.Patient",
		"entity_id": 7,
		"action": "update",
		"state": {"name": "Jordan", "status": "discharged"}
	}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("update status = %d: %s", rr.Code, rr.Body.String())
	}

	records, err := store.Query(context.Background(), audit.QueryFilter{Limit: 10})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	// Newest first: the update with its sparse diff.
	upd := records[0]
	if upd.Action != audit.ActionUpdate {
		t.Errorf("Action = %s, want update", upd.Action)
	}
	if len(upd.Changes) != 1 {
		t.Fatalf("Changes = %d fields, want 1", len(upd.Changes))
	}
	if fc, ok := upd.Changes.Get("status"); !ok || fc.Old != "active" || fc.New != "discharged" {
		t.Errorf("status change = %+v", upd.Changes)
	}

	cre := records[1]
	if cre.Action != audit.ActionCreate {
		t.Errorf("Action = %s, want create", cre.Action)
	}
	if cre.Actor == nil || cre.Actor.Username != "drsmith" {
		t.Errorf("Actor = %+v", cre.Actor)
	}
}

func TestIngestMutationDeleteClearsState(t *testing.T) {
	store := audit.NewMemoryStore()
	h := newTestHandlers(t, store)

	postMutation(t, h, `{"entity_type":"clinic.Clinic","entity_id":3,"action":"create","state":{"name":"Northside"}}`)
	postMutation(t, h, `{"entity_type":"clinic.Clinic","entity_id":3,"action":"delete"}`)

	if h.states.Len() != 0 {
		t.Errorf("state cache has %d entries after delete, want 0", h.states.Len())
	}

	// Re-creating the same entity diffs against nothing, not the old state.
	rr := postMutation(t, h, `{"entity_type":"clinic.Clinic","entity_id":3,"action":"update","state":{"name":"Southside"}}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rr.Code)
	}
	records, _ := store.Query(context.Background(), audit.QueryFilter{Limit: 1})
	if records[0].Action != audit.ActionCreate {
		t.Errorf("post-delete update recorded as %s, want create", records[0].Action)
	}
}

func TestIngestMutationValidation(t *testing.T) {
	h := newTestHandlers(t, audit.NewMemoryStore())

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"missing entity type", `{"entity_id":1,"action":"create"}`},
		{"zero entity id", `{"entity_type":"clinic.Patient","entity_id":0,"action":"create"}`},
		{"bad action", `{"entity_type":"clinic.Patient","entity_id":1,"action":"merge"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postMutation(t, h, tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
			}
		})
	}
}
