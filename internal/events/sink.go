// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

package events

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/clinicore/vigil/internal/logging"
	"github.com/clinicore/vigil/internal/metrics"
)

// Sink is an append-only line destination for one event category.
//
// Writes are serialized internally so multiple request goroutines can emit
// into the same sink. A write failure is never propagated to the caller: the
// line is dropped, a single fallback notice goes to the process logger, and
// the counter in internal/metrics is incremented. Subsequent failures stay
// silent until a write succeeds again.
type Sink struct {
	name string
	path string

	mu      sync.Mutex
	f       *os.File
	failing bool
}

// OpenSink opens (creating if needed) the append-only file for a category
// inside dir. The file is named "<name>.log".
func OpenSink(dir, name string) (*Sink, error) {
	path := filepath.Join(dir, name+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open sink %s: %w", path, err)
	}
	return &Sink{name: name, path: path, f: f}, nil
}

// Write implements io.Writer for use as a zerolog output. It always reports
// success to the caller; sink failures must not turn into logger errors.
func (s *Sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		s.fail(fmt.Errorf("sink %s is closed", s.name))
		return len(p), nil
	}

	if _, err := s.f.Write(p); err != nil {
		s.fail(err)
		return len(p), nil
	}

	s.failing = false
	return len(p), nil
}

// fail records a write failure, emitting the fallback notice only on the
// transition into the failing state.
func (s *Sink) fail(err error) {
	metrics.SinkWriteErrors.WithLabelValues(s.name).Inc()
	if !s.failing {
		s.failing = true
		logging.Error().Err(err).Str("sink", s.name).Msg("Event sink write failed, dropping events")
	}
}

// Name returns the sink's category name.
func (s *Sink) Name() string {
	return s.name
}

// Path returns the sink file path.
func (s *Sink) Path() string {
	return s.path
}

// ensureDir creates the sink directory if it does not exist.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	return nil
}

// Close closes the underlying file. Further writes are dropped.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
