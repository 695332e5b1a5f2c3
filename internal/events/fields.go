// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/clinicore/vigil/internal/requestctx"
)

// requestFields adds the ambient actor and source IP from the request
// context to an event. Absent values are omitted, not written as nulls,
// except username which records "anonymous" to match the sink line shape
// the analyzers expect.
func requestFields(e *zerolog.Event, ctx context.Context) *zerolog.Event {
	if actor, ok := requestctx.ActorFrom(ctx); ok && actor.ID != 0 {
		e = e.Int64("actor_id", actor.ID).Str("username", actor.Username)
	} else {
		e = e.Str("username", "anonymous")
	}
	if ip := requestctx.SourceIPFrom(ctx); ip != "" {
		e = e.Str("ip_address", ip)
	}
	return e
}
