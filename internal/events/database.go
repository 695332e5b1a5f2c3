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

// DatabaseLogger records entity persistence activity at coarse granularity.
// The full field-level diff lives in the audit record store; this sink gives
// operators a greppable mutation trail.
type DatabaseLogger struct {
	logger zerolog.Logger
}

// NewDatabaseLogger creates a database event logger writing to w.
func NewDatabaseLogger(w io.Writer) *DatabaseLogger {
	return &DatabaseLogger{logger: sinkLogger(w)}
}

// ModelChange records a create, update, or delete of a domain entity.
func (l *DatabaseLogger) ModelChange(ctx context.Context, entityType, action string, entityID int64) {
	metrics.EventsTotal.WithLabelValues(SinkDatabase).Inc()
	e := l.logger.Info().
		Str("event", KindModelChange).
		Str("model", entityType).
		Str("action", action).
		Int64("object_id", entityID)
	requestFields(e, ctx).Msg("")
}

// ConnectionError records a database connectivity failure.
func (l *DatabaseLogger) ConnectionError(err error, database string) {
	metrics.EventsTotal.WithLabelValues(SinkDatabase).Inc()
	l.logger.Error().
		Str("event", KindDBConnectionError).
		Str("database", database).
		Str("error_message", err.Error()).
		Msg("")
}
