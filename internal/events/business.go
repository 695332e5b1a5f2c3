// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

package events

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/clinicore/vigil/internal/metrics"
)

// BusinessLogger records business-level events: user actions, entity
// creation, and payment activity.
type BusinessLogger struct {
	logger zerolog.Logger
}

// NewBusinessLogger creates a business event logger writing to w.
func NewBusinessLogger(w io.Writer) *BusinessLogger {
	return &BusinessLogger{logger: sinkLogger(w)}
}

// UserAction records an action performed by a user (login, logout, profile
// update, ...). Details carries action-specific payload.
func (l *BusinessLogger) UserAction(ctx context.Context, action string, details map[string]any) {
	metrics.EventsTotal.WithLabelValues(SinkBusiness).Inc()
	e := l.logger.Info().Str("event", KindUserAction).Str("action", action)
	if details != nil {
		e = e.Interface("details", details)
	}
	requestFields(e, ctx).Msg("")
}

// EntityCreated records the creation of a domain entity (a lead request, a
// review, ...) with its post-creation status.
func (l *BusinessLogger) EntityCreated(ctx context.Context, entityType string, entityID int64, status string) {
	metrics.EventsTotal.WithLabelValues(SinkBusiness).Inc()
	e := l.logger.Info().
		Str("event", KindEntityCreated).
		Str("entity_type", entityType).
		Int64("entity_id", entityID)
	if status != "" {
		e = e.Str("status", status)
	}
	requestFields(e, ctx).Msg("")
}

// PaymentEvent records a payment lifecycle event. The payload is recorded
// as-is; the caller is responsible for stripping card data beforehand.
func (l *BusinessLogger) PaymentEvent(ctx context.Context, payment map[string]any) {
	metrics.EventsTotal.WithLabelValues(SinkBusiness).Inc()
	e := l.logger.Info().Str("event", KindPaymentEvent).Interface("payment", payment)
	requestFields(e, ctx).Msg("")
}
