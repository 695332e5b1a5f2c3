// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

// Package requestctx carries per-request ambient state: the acting principal,
// the active access context, and the client source IP. The request context is
// threaded explicitly as a context.Context parameter into the change detector
// and event loggers; nothing in the pipeline reads global state.
package requestctx

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// Actor identifies the acting principal for a mutation or event.
// Zero ID means system or background work; event payloads reference actors
// by identifier only.
type Actor struct {
	ID       int64
	Username string
}

// Access identifies the permission/role context active during a mutation.
// Opaque to the pipeline; only the identifier and code are recorded.
type Access struct {
	ID   int64
	Code string
}

type contextKey string

const (
	actorKey    contextKey = "actor"
	accessKey   contextKey = "access"
	sourceIPKey contextKey = "source_ip"
)

// WithActor returns a context carrying the acting principal.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns the acting principal, if any.
func ActorFrom(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// WithAccess returns a context carrying the active access context.
func WithAccess(ctx context.Context, access Access) context.Context {
	return context.WithValue(ctx, accessKey, access)
}

// AccessFrom returns the active access context, if any.
func AccessFrom(ctx context.Context) (Access, bool) {
	access, ok := ctx.Value(accessKey).(Access)
	return access, ok
}

// WithSourceIP returns a context carrying the client source IP.
func WithSourceIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, sourceIPKey, ip)
}

// SourceIPFrom returns the client source IP, or empty string.
func SourceIPFrom(ctx context.Context) string {
	if ip, ok := ctx.Value(sourceIPKey).(string); ok {
		return ip
	}
	return ""
}

// ClientIP extracts the client IP from a request, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First address is the originating client.
		if idx := strings.Index(xff, ","); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
