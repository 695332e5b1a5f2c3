// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

// Package events provides categorized structured event loggers: business,
// security, performance, errors, database, and requests. Each category
// appends one JSON line per event to its own sink file.
//
// Loggers are constructed once at process start and passed explicitly to the
// components that emit through them; there are no package-level logger
// singletons. Event payloads reference actors by identifier only; the acting
// principal and source IP are read from the request context passed to each
// call.
//
// Threshold-gated events (slow queries, slow requests, high memory usage)
// are no-ops when the measured value does not exceed the configured
// threshold.
package events

import (
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Event kind markers, one per structured event. These appear as the "event"
// field of every line and are what the log tooling keys on.
const (
	KindUserAction         = "USER_ACTION"
	KindEntityCreated      = "ENTITY_CREATED"
	KindPaymentEvent       = "PAYMENT_EVENT"
	KindLoginAttempt       = "LOGIN_ATTEMPT"
	KindSuspiciousActivity = "SUSPICIOUS_ACTIVITY"
	KindPermissionDenied   = "PERMISSION_DENIED"
	KindSlowQuery          = "SLOW_QUERY"
	KindRequestPerformance = "REQUEST_PERFORMANCE"
	KindHighMemoryUsage    = "HIGH_MEMORY_USAGE"
	KindException          = "EXCEPTION"
	KindHTTPError          = "HTTP_ERROR"
	KindModelChange        = "MODEL_CHANGE"
	KindDBConnectionError  = "DB_CONNECTION_ERROR"
	KindRequestStart       = "REQUEST_START"
	KindSlowRequest        = "SLOW_REQUEST"
	KindNotFound           = "NOT_FOUND"
)

// Sink file names, one per category.
const (
	SinkBusiness    = "business"
	SinkSecurity    = "security"
	SinkPerformance = "performance"
	SinkErrors      = "errors"
	SinkDatabase    = "database"
	SinkRequests    = "requests"
)

// SinkNames lists all category sink names in display order.
var SinkNames = []string{
	SinkBusiness,
	SinkSecurity,
	SinkPerformance,
	SinkErrors,
	SinkDatabase,
	SinkRequests,
}

// Config holds event logger configuration.
type Config struct {
	// Dir is the directory holding the per-category sink files.
	Dir string

	// SlowQueryThreshold gates SLOW_QUERY emission.
	SlowQueryThreshold time.Duration

	// SlowRequestThreshold gates SLOW_REQUEST emission.
	SlowRequestThreshold time.Duration

	// MemoryThresholdMB gates HIGH_MEMORY_USAGE emission.
	MemoryThresholdMB float64

	// SuspiciousRatePerSec bounds SUSPICIOUS_ACTIVITY emission so attack
	// scans cannot flood the security sink. Zero disables the limit.
	SuspiciousRatePerSec float64

	// SuspiciousBurst is the rate limiter burst size.
	SuspiciousBurst int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:                  dir,
		SlowQueryThreshold:   time.Second,
		SlowRequestThreshold: 2 * time.Second,
		MemoryThresholdMB:    100,
		SuspiciousRatePerSec: 10,
		SuspiciousBurst:      20,
	}
}

// Loggers bundles the category loggers. Construct with New and pass handles
// to the components that emit events.
type Loggers struct {
	Business    *BusinessLogger
	Security    *SecurityLogger
	Performance *PerformanceLogger
	Errors      *ErrorLogger
	Database    *DatabaseLogger
	Requests    *RequestLogger

	sinks []*Sink
}

// New opens one sink per category under cfg.Dir and returns the logger
// bundle. The directory is created if missing.
func New(cfg Config) (*Loggers, error) {
	if err := ensureDir(cfg.Dir); err != nil {
		return nil, err
	}

	l := &Loggers{}
	for _, name := range SinkNames {
		sink, err := OpenSink(cfg.Dir, name)
		if err != nil {
			l.Close()
			return nil, err
		}
		l.sinks = append(l.sinks, sink)

		switch name {
		case SinkBusiness:
			l.Business = NewBusinessLogger(sink)
		case SinkSecurity:
			l.Security = NewSecurityLogger(sink, cfg.SuspiciousRatePerSec, cfg.SuspiciousBurst)
		case SinkPerformance:
			l.Performance = NewPerformanceLogger(sink, cfg.SlowQueryThreshold, cfg.MemoryThresholdMB)
		case SinkErrors:
			l.Errors = NewErrorLogger(sink)
		case SinkDatabase:
			l.Database = NewDatabaseLogger(sink)
		case SinkRequests:
			l.Requests = NewRequestLogger(sink, cfg.SlowRequestThreshold)
		}
	}

	return l, nil
}

// Close closes all sinks. Loggers must not be used after Close.
func (l *Loggers) Close() error {
	var firstErr error
	for _, s := range l.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// sinkLogger builds the zerolog logger a category writes through.
func sinkLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// newLimiter builds the suspicious-activity rate limiter. A zero rate means
// unlimited.
func newLimiter(perSec float64, burst int) *rate.Limiter {
	if perSec <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSec), burst)
}
