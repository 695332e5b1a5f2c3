// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

package events

import (
	"context"
	"io"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/clinicore/vigil/internal/metrics"
)

// SecurityLogger records authentication activity, access denials, and
// signatures matched by the request scanner.
type SecurityLogger struct {
	logger  zerolog.Logger
	limiter *rate.Limiter
}

// NewSecurityLogger creates a security event logger writing to w.
// SuspiciousActivity emission is bounded to perSec events (burst allowance
// included); a perSec of zero disables the limit.
func NewSecurityLogger(w io.Writer, perSec float64, burst int) *SecurityLogger {
	return &SecurityLogger{
		logger:  sinkLogger(w),
		limiter: newLimiter(perSec, burst),
	}
}

// LoginAttempt records an authentication attempt. Failures are warnings,
// successes informational.
func (l *SecurityLogger) LoginAttempt(ctx context.Context, username string, success bool, userAgent string) {
	metrics.EventsTotal.WithLabelValues(SinkSecurity).Inc()

	e := l.logger.Info()
	if !success {
		e = l.logger.Warn()
	}
	e = e.Str("event", KindLoginAttempt).
		Str("login", username).
		Bool("success", success)
	if userAgent != "" {
		e = e.Str("user_agent", userAgent)
	}
	requestFields(e, ctx).Msg("")
}

// SuspiciousActivity records a matched attack signature (injection attempt,
// XSS probe, ...). Detection is observational: the caller continues
// processing the request. Emission is rate-limited so scan floods cannot
// drown the sink.
func (l *SecurityLogger) SuspiciousActivity(ctx context.Context, activityType string, details map[string]any) {
	metrics.SuspiciousActivityTotal.WithLabelValues(activityType).Inc()

	if !l.limiter.Allow() {
		return
	}

	metrics.EventsTotal.WithLabelValues(SinkSecurity).Inc()
	e := l.logger.Warn().
		Str("event", KindSuspiciousActivity).
		Str("activity_type", activityType)
	if details != nil {
		e = e.Interface("details", details)
	}
	requestFields(e, ctx).Msg("")
}

// PermissionDenied records a rejected access attempt on a resource.
func (l *SecurityLogger) PermissionDenied(ctx context.Context, action, resource string) {
	metrics.EventsTotal.WithLabelValues(SinkSecurity).Inc()
	e := l.logger.Warn().
		Str("event", KindPermissionDenied).
		Str("action", action).
		Str("resource", resource)
	requestFields(e, ctx).Msg("")
}
