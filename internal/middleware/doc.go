// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

/*
Package middleware provides HTTP middleware for request observability.

This package implements the observational side of the pipeline: request ID
propagation, request/response timing with slow-request detection, Prometheus
instrumentation, panic classification, endpoint latency aggregation, and a
passive injection-pattern scanner that flags suspicious query strings without
ever blocking a request.

Key Components:

  - RequestID: UUID-based request tracking for distributed tracing
  - Instrument: request lifecycle events, timing thresholds, panic recovery
  - PrometheusMetrics: HTTP request/response instrumentation
  - EndpointMonitor: per-endpoint latency percentiles for operator tooling
  - Injection scan: observational detection of SQL/XSS probe patterns

All middleware is observational. A failure inside the observability path is
logged and swallowed; the wrapped handler's outcome is never altered except
when it panics, in which case the panic is classified and converted to a
response.
*/
package middleware
