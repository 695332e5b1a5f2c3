// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

package events

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/clinicore/vigil/internal/metrics"
)

// ErrorLogger records handler exceptions and HTTP error responses.
type ErrorLogger struct {
	logger zerolog.Logger
}

// NewErrorLogger creates an error event logger writing to w.
func NewErrorLogger(w io.Writer) *ErrorLogger {
	return &ErrorLogger{logger: sinkLogger(w)}
}

// Exception records an unhandled error with its surrounding context
// (path, method, and whatever else the caller attaches).
func (l *ErrorLogger) Exception(ctx context.Context, err error, extra map[string]any) {
	metrics.EventsTotal.WithLabelValues(SinkErrors).Inc()
	e := l.logger.Error().
		Str("event", KindException).
		Str("error_type", fmt.Sprintf("%T", err)).
		Str("error_message", err.Error())
	if extra != nil {
		e = e.Interface("context", extra)
	}
	requestFields(e, ctx).Msg("")
}

// HTTPError records an error response. Server errors (>=500) log at error
// level, client errors at warning.
func (l *ErrorLogger) HTTPError(ctx context.Context, status int, path, method string) {
	metrics.EventsTotal.WithLabelValues(SinkErrors).Inc()

	e := l.logger.Warn()
	if status >= 500 {
		e = l.logger.Error()
	}
	e = e.Str("event", KindHTTPError).
		Int("status_code", status).
		Str("path", path).
		Str("method", method)
	requestFields(e, ctx).Msg("")
}
