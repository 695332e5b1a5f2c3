// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

// Package logops implements operator maintenance over the event log sinks:
// size and severity statistics, retention cleaning, error and traffic
// analysis, and tailing. The logctl command and the retention service are
// its consumers.
//
// Sinks hold one JSON object per line as written by the event loggers. A
// line that fails to parse is counted but otherwise ignored; a partially
// corrupt file never aborts an operation.
package logops

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/clinicore/vigil/internal/events"
)

// maxLineSize bounds a single log line during scanning.
const maxLineSize = 1 << 20

// FileStats describes one sink file. Warning carries a per-file read
// problem; the file's counts are whatever was readable.
type FileStats struct {
	Name      string           `json:"name"`
	Path      string           `json:"path"`
	SizeBytes int64            `json:"size_bytes"`
	Lines     int64            `json:"lines"`
	ByLevel   map[string]int64 `json:"by_level"`
	Modified  time.Time        `json:"modified"`
	Warning   string           `json:"warning,omitempty"`
}

// logLine is the subset of fields an event line can carry.
type logLine struct {
	Level     string  `json:"level"`
	Time      string  `json:"time"`
	Event     string  `json:"event"`
	ErrorType string  `json:"error_type"`
	IPAddress string  `json:"ip_address"`
	Path      string  `json:"path"`
	Status    int     `json:"status"`
	Duration  float64 `json:"duration_ms"`
}

// sinkPath returns the file path of a named sink under dir.
func sinkPath(dir, name string) string {
	return filepath.Join(dir, name+".log")
}

// resolveSinks expands an optional log type into concrete sink names.
// An empty logType means all sinks.
func resolveSinks(logType string) ([]string, error) {
	if logType == "" {
		return events.SinkNames, nil
	}
	for _, name := range events.SinkNames {
		if name == logType {
			return []string{name}, nil
		}
	}
	return nil, fmt.Errorf("unknown log type %q (valid: %s)", logType, strings.Join(events.SinkNames, ", "))
}

// scanLines streams the parsed lines of a sink file to fn. Unparseable
// lines are passed with a zero logLine so callers can still count them.
// A missing file is not an error.
func scanLines(path string, fn func(raw string, line logLine)) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		raw := scanner.Text()
		if strings.TrimSpace(raw) == "" {
			continue
		}
		var line logLine
		// Best effort: a corrupt line still counts as a line.
		_ = json.Unmarshal([]byte(raw), &line)
		fn(raw, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan %s: %w", path, err)
	}
	return nil
}

// Stats returns per-sink file statistics for the requested log type, or all
// sinks when logType is empty. Lines stamped before since are not counted;
// a zero since counts everything. A sink that cannot be read is reported in
// its Warning field and never fails the whole call; only an unknown log
// type is an error.
func Stats(dir, logType string, since time.Time) ([]FileStats, error) {
	names, err := resolveSinks(logType)
	if err != nil {
		return nil, err
	}

	stats := make([]FileStats, 0, len(names))
	for _, name := range names {
		path := sinkPath(dir, name)
		fs := FileStats{
			Name:    name,
			Path:    path,
			ByLevel: make(map[string]int64),
		}

		if info, err := os.Stat(path); err == nil {
			fs.SizeBytes = info.Size()
			fs.Modified = info.ModTime()
		}

		err := scanLines(path, func(_ string, line logLine) {
			if !since.IsZero() {
				if ts, err := time.Parse(time.RFC3339, line.Time); err == nil && ts.Before(since) {
					return
				}
			}
			fs.Lines++
			level := line.Level
			if level == "" {
				level = "unknown"
			}
			fs.ByLevel[level]++
		})
		if err != nil {
			fs.Warning = err.Error()
		}
		stats = append(stats, fs)
	}
	return stats, nil
}

// CleanResult reports the outcome of one sink's cleaning pass.
type CleanResult struct {
	Name     string    `json:"name"`
	Removed  bool      `json:"removed"`
	Modified time.Time `json:"modified,omitempty"`
	Warning  string    `json:"warning,omitempty"`
}

// Clean deletes the requested sink files whose last-modified time is older
// than the cutoff. Age is judged by file mtime only, so a sink still being
// written to is never removed. Idempotent: a second run over the same
// cutoff finds nothing left to delete. A sink that cannot be statted or
// removed is reported in its Warning field; the pass continues over the
// remaining sinks.
func Clean(dir, logType string, olderThan time.Time) ([]CleanResult, error) {
	names, err := resolveSinks(logType)
	if err != nil {
		return nil, err
	}

	results := make([]CleanResult, 0, len(names))
	for _, name := range names {
		res := CleanResult{Name: name}
		path := sinkPath(dir, name)

		info, err := os.Stat(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			res.Warning = fmt.Sprintf("failed to stat %s: %v", path, err)
		default:
			res.Modified = info.ModTime()
			if info.ModTime().Before(olderThan) {
				if err := os.Remove(path); err != nil {
					res.Warning = fmt.Sprintf("failed to remove %s: %v", path, err)
				} else {
					res.Removed = true
				}
			}
		}
		results = append(results, res)
	}
	return results, nil
}

// Analysis aggregates the content of one or more sinks over a time window.
// Warnings lists sinks that could not be read; their readable prefix still
// counts.
type Analysis struct {
	Since       time.Time        `json:"since"`
	TotalLines  int64            `json:"total_lines"`
	ByLevel     map[string]int64 `json:"by_level"`
	ByEvent     map[string]int64 `json:"by_event"`
	TopErrors   []CountedKey     `json:"top_errors,omitempty"`
	TopIPs      []CountedKey     `json:"top_ips,omitempty"`
	Unparseable int64            `json:"unparseable"`
	Warnings    []string         `json:"warnings,omitempty"`
}

// CountedKey is a key with its occurrence count, for top-N listings.
type CountedKey struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// topN is how many entries the analysis keeps per ranking.
const topN = 10

// Analyze aggregates sink lines newer than the cutoff: severity and event
// kind distributions, the most frequent error types, and the busiest source
// addresses.
func Analyze(dir, logType string, since time.Time) (*Analysis, error) {
	names, err := resolveSinks(logType)
	if err != nil {
		return nil, err
	}

	a := &Analysis{
		Since:   since,
		ByLevel: make(map[string]int64),
		ByEvent: make(map[string]int64),
	}
	errorTypes := make(map[string]int64)
	ips := make(map[string]int64)

	for _, name := range names {
		err := scanLines(sinkPath(dir, name), func(_ string, line logLine) {
			if line.Level == "" && line.Event == "" {
				a.Unparseable++
				return
			}
			if ts, err := time.Parse(time.RFC3339, line.Time); err == nil && ts.Before(since) {
				return
			}

			a.TotalLines++
			if line.Level != "" {
				a.ByLevel[line.Level]++
			}
			if line.Event != "" {
				a.ByEvent[line.Event]++
			}
			if line.ErrorType != "" {
				errorTypes[line.ErrorType]++
			}
			if line.IPAddress != "" {
				ips[line.IPAddress]++
			}
		})
		if err != nil {
			a.Warnings = append(a.Warnings, err.Error())
		}
	}

	a.TopErrors = topCounts(errorTypes, topN)
	a.TopIPs = topCounts(ips, topN)
	return a, nil
}

// topCounts returns the n highest counts, ties broken by key for stable
// output.
func topCounts(counts map[string]int64, n int) []CountedKey {
	keys := make([]CountedKey, 0, len(counts))
	for k, c := range counts {
		keys = append(keys, CountedKey{Key: k, Count: c})
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Count != keys[j].Count {
			return keys[i].Count > keys[j].Count
		}
		return keys[i].Key < keys[j].Key
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// Show returns the last n raw lines of each matching sink, oldest first
// within a sink. n defaults to 50. An unreadable sink is reported in the
// returned warnings and the other sinks are still tailed.
func Show(dir, logType string, n int) (map[string][]string, []string, error) {
	names, err := resolveSinks(logType)
	if err != nil {
		return nil, nil, err
	}
	if n <= 0 {
		n = 50
	}

	out := make(map[string][]string, len(names))
	var warnings []string
	for _, name := range names {
		// Ring buffer over the file's lines.
		lines := make([]string, 0, n)
		err := scanLines(sinkPath(dir, name), func(raw string, _ logLine) {
			if len(lines) == n {
				copy(lines, lines[1:])
				lines = lines[:n-1]
			}
			lines = append(lines, raw)
		})
		if err != nil {
			warnings = append(warnings, err.Error())
		}
		out[name] = lines
	}
	return out, warnings, nil
}
