// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

// Package config loads the application configuration from layered sources
// with the precedence ENV > file > defaults. Configuration is validated
// before use; the server refuses to start on an invalid config.
package config

import (
	"fmt"
	"time"

	"github.com/clinicore/vigil/internal/validation"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Audit     AuditConfig     `koanf:"audit"`
	Events    EventsConfig    `koanf:"events"`
	Logging   LoggingConfig   `koanf:"logging"`
	API       APIConfig       `koanf:"api"`
	Retention RetentionConfig `koanf:"retention"`
	Monitor   MonitorConfig   `koanf:"monitor"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gte=1,lte=65535"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gte=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	Environment     string        `koanf:"environment" validate:"oneof=development production"`
}

// DatabaseConfig configures the DuckDB store backing audit records.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads" validate:"gte=0"`
}

// AuditConfig configures the change-auditing pipeline.
type AuditConfig struct {
	// Enabled gates the whole pipeline.
	Enabled bool `koanf:"enabled"`

	// Include lists entity type patterns to audit. Empty means all.
	Include []string `koanf:"include"`

	// Exclude lists entity type patterns to skip. Wins over Include.
	Exclude []string `koanf:"exclude"`

	// AppendTimeout bounds a single record append.
	AppendTimeout time.Duration `koanf:"append_timeout"`

	// BreakerFailureThreshold is the consecutive append failures that
	// open the store circuit.
	BreakerFailureThreshold uint32 `koanf:"breaker_failure_threshold" validate:"gte=1"`

	// BreakerTimeout is how long the circuit stays open before probing.
	BreakerTimeout time.Duration `koanf:"breaker_timeout"`
}

// EventsConfig configures the category event sinks.
type EventsConfig struct {
	// Dir is the directory holding the category log files.
	Dir string `koanf:"dir" validate:"required"`

	// SlowQueryThreshold gates slow-query events.
	SlowQueryThreshold time.Duration `koanf:"slow_query_threshold"`

	// SlowRequestThreshold gates slow-request events.
	SlowRequestThreshold time.Duration `koanf:"slow_request_threshold"`

	// MemoryThresholdMB gates high-memory events.
	MemoryThresholdMB float64 `koanf:"memory_threshold_mb" validate:"gt=0"`

	// SuspiciousRatePerSec caps suspicious-activity events per second.
	SuspiciousRatePerSec float64 `koanf:"suspicious_rate_per_sec" validate:"gt=0"`

	// SuspiciousBurst is the burst allowance on top of the rate.
	SuspiciousBurst int `koanf:"suspicious_burst" validate:"gte=1"`
}

// LoggingConfig configures application (not event) logging.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// APIConfig configures pagination limits for the query API.
type APIConfig struct {
	DefaultPageSize int `koanf:"default_page_size" validate:"gte=1"`
	MaxPageSize     int `koanf:"max_page_size" validate:"gte=1"`
}

// RetentionConfig configures background pruning of old records and logs.
type RetentionConfig struct {
	// Enabled turns the retention service on.
	Enabled bool `koanf:"enabled"`

	// AuditDays is how long audit records are kept.
	AuditDays int `koanf:"audit_days" validate:"gte=1"`

	// EventDays is how long event log lines are kept.
	EventDays int `koanf:"event_days" validate:"gte=1"`

	// Interval is how often the retention pass runs.
	Interval time.Duration `koanf:"interval"`
}

// MonitorConfig configures the process self-monitoring service.
type MonitorConfig struct {
	// MemoryCheckInterval is how often heap usage is sampled.
	MemoryCheckInterval time.Duration `koanf:"memory_check_interval"`
}

// Default returns a Config with production-sensible defaults. These are
// applied first, then overridden by config file and env vars.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8972,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			Environment:     "development",
		},
		Database: DatabaseConfig{
			Path:      "/data/vigil.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Audit: AuditConfig{
			Enabled:                 true,
			AppendTimeout:           5 * time.Second,
			BreakerFailureThreshold: 5,
			BreakerTimeout:          30 * time.Second,
		},
		Events: EventsConfig{
			Dir:                  "/data/logs",
			SlowQueryThreshold:   time.Second,
			SlowRequestThreshold: 2 * time.Second,
			MemoryThresholdMB:    100,
			SuspiciousRatePerSec: 10,
			SuspiciousBurst:      20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		API: APIConfig{
			DefaultPageSize: 20,
			MaxPageSize:     1000,
		},
		Retention: RetentionConfig{
			Enabled:   true,
			AuditDays: 365,
			EventDays: 90,
			Interval:  24 * time.Hour,
		},
		Monitor: MonitorConfig{
			MemoryCheckInterval: 30 * time.Second,
		},
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.API.DefaultPageSize > c.API.MaxPageSize {
		return fmt.Errorf("api.default_page_size %d exceeds api.max_page_size %d",
			c.API.DefaultPageSize, c.API.MaxPageSize)
	}
	if c.Events.SlowQueryThreshold <= 0 {
		return fmt.Errorf("events.slow_query_threshold must be positive")
	}
	if c.Events.SlowRequestThreshold <= 0 {
		return fmt.Errorf("events.slow_request_threshold must be positive")
	}
	if c.Retention.Enabled && c.Retention.Interval <= 0 {
		return fmt.Errorf("retention.interval must be positive when retention is enabled")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive")
	}
	return nil
}
