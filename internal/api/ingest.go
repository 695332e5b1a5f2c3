// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/clinicore/vigil/internal/audit"
	"github.com/clinicore/vigil/internal/requestctx"
)

// maxMutationBody bounds an ingested mutation payload.
const maxMutationBody = 1 << 20

// mutationRequest is a reported entity mutation.
type mutationRequest struct {
	EntityType string         `json:"entity_type" validate:"required"`
	EntityID   int64          `json:"entity_id" validate:"required,gt=0"`
	Action     string         `json:"action" validate:"required,oneof=create update delete"`
	State      map[string]any `json:"state"`
	Actor      *actorPayload  `json:"actor,omitempty"`
	Access     *accessPayload `json:"access,omitempty"`
}

type actorPayload struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type accessPayload struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
}

// IngestMutation handles POST /api/v1/audit/mutations. A reporting process
// posts the post-mutation state of an entity; the detector diffs it against
// the last state reported for that entity and appends at most one audit
// record. Responds 202 regardless of audit outcome: detector failures never
// surface to the reporter.
func (h *Handlers) IngestMutation(w http.ResponseWriter, r *http.Request) {
	var req mutationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMutationBody))
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON", nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	ctx := r.Context()
	if req.Actor != nil {
		ctx = requestctx.WithActor(ctx, requestctx.Actor{ID: req.Actor.ID, Username: req.Actor.Username})
	}
	if req.Access != nil {
		ctx = requestctx.WithAccess(ctx, requestctx.Access{ID: req.Access.ID, Code: req.Access.Code})
	}

	action := audit.Action(req.Action)
	if action != audit.ActionCreate {
		h.detector.BeforeMutate(ctx, req.EntityType, req.EntityID)
	}
	h.detector.AfterMutate(ctx, req.EntityType, req.EntityID, action, req.State)

	switch action {
	case audit.ActionDelete:
		h.states.Remove(req.EntityType, req.EntityID)
	default:
		h.states.Put(req.EntityType, req.EntityID, req.State)
	}

	respondJSON(w, http.StatusAccepted, &APIResponse{
		Status:   "accepted",
		Metadata: Metadata{Timestamp: time.Now().UTC()},
	})
}
