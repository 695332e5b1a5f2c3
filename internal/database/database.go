// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

// Package database manages the DuckDB connection backing the audit record
// store. Every statement goes through timing wrappers that feed the
// slow-query event logger, and connection failures are reported to the
// database event sink.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/clinicore/vigil/internal/config"
	"github.com/clinicore/vigil/internal/events"
	"github.com/clinicore/vigil/internal/logging"
)

// pingTimeout bounds the connectivity check at startup.
const pingTimeout = 10 * time.Second

// DB wraps the DuckDB connection with query timing. All statement methods
// mirror database/sql and additionally emit a slow-query event when a
// statement exceeds the performance logger's threshold.
type DB struct {
	conn *sql.DB
	perf *events.PerformanceLogger
	dbl  *events.DatabaseLogger
	path string
}

// New opens the DuckDB database at cfg.Path, creating the parent directory
// if needed. perf and dbl may be nil in tests.
func New(cfg *config.DatabaseConfig, perf *events.PerformanceLogger, dbl *events.DatabaseLogger) (*DB, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." && cfg.Path != ":memory:" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// Auto-install/auto-load stay off so startup never hangs on a
	// network fetch in restricted environments.
	connStr := fmt.Sprintf(
		"%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, threads, cfg.MaxMemory,
	)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn, perf: perf, dbl: dbl, path: cfg.Path}

	// DuckDB is in-process; a small pool avoids writer contention.
	conn.SetMaxOpenConns(threads)
	conn.SetMaxIdleConns(threads)
	conn.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		db.reportConnectionError(err)
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Int("threads", threads).
		Str("max_memory", cfg.MaxMemory).
		Msg("Database opened")
	return db, nil
}

// ExecContext runs a statement with slow-query timing.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := db.conn.ExecContext(ctx, query, args...)
	db.observe(query, start, err)
	return res, err
}

// QueryContext runs a query with slow-query timing.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	db.observe(query, start, err)
	return rows, err
}

// QueryRowContext runs a single-row query with slow-query timing.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx, query, args...)
	db.observe(query, start, nil)
	return row
}

// observe feeds the timing into the performance logger. Statement errors
// are the caller's to handle; only connectivity failures go to the
// database sink.
func (db *DB) observe(query string, start time.Time, err error) {
	if db.perf != nil {
		db.perf.SlowQuery(query, time.Since(start))
	}
	if err != nil && db.conn.Ping() != nil {
		db.reportConnectionError(err)
	}
}

func (db *DB) reportConnectionError(err error) {
	if db.dbl != nil {
		db.dbl.ConnectionError(err, db.path)
	}
}

// Conn exposes the raw connection for code that manages its own timing.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func closeQuietly(conn *sql.DB) {
	if err := conn.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close database connection")
	}
}
