// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

// Package api exposes the read-only HTTP surface: audit record queries,
// aggregate statistics, endpoint performance snapshots, and log file
// maintenance views. All responses use a uniform JSON envelope with a
// status, optional metadata, and a structured error payload on failure.
//
// The router layers the observability middleware so every API request is
// itself recorded: request IDs, Prometheus metrics, the event sinks, and
// the in-memory endpoint monitor all see the same traffic.
package api
