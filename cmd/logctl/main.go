// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

// Package main implements logctl, the operator CLI over the event sinks.
//
// Usage:
//
//	logctl <command> [flags]
//
// Commands:
//
//	stats    per-sink file size and line counts by severity
//	clean    delete sink files whose mtime is older than --days
//	analyze  aggregate severities, event kinds, top errors and source IPs
//	show     print the last --lines lines of each matching sink
//
// Common flags:
//
//	--dir       event sink directory (default /data/logs)
//	--log-type  all|business|security|performance|errors|database|requests
//	--days      age window in days (stats, clean, analyze)
//
// A missing or unreadable sink file is reported and skipped; only argument
// errors exit non-zero.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/clinicore/vigil/internal/events"
	"github.com/clinicore/vigil/internal/logops"
)

const defaultEventDir = "/data/logs"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "stats":
		err = runStats(args)
	case "clean":
		err = runClean(args)
	case "analyze":
		err = runAnalyze(args)
	case "show":
		err = runShow(args)
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "logctl: unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "logctl %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: logctl <command> [flags]

Commands:
  stats    per-sink file size and line counts by severity
  clean    delete sink files whose mtime is older than --days
  analyze  aggregate severities, event kinds, top errors and source IPs
  show     print the last --lines lines of each matching sink

Flags (per command):
  --dir       event sink directory (default %s)
  --log-type  all|%s (default all)
  --days      age window in days (stats, clean, analyze; default 7)
  --lines     lines per sink for show (default 50)
`, defaultEventDir, strings.Join(events.SinkNames, "|"))
}

// commonFlags declares the flags shared by every command.
func commonFlags(fs *flag.FlagSet) (dir, logType *string) {
	dir = fs.String("dir", defaultEventDir, "event sink directory")
	logType = fs.String("log-type", "all", "sink to operate on, or all")
	return dir, logType
}

// normalizeType maps the CLI's "all" onto the library's empty selector.
func normalizeType(logType string) string {
	if logType == "all" {
		return ""
	}
	return logType
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	dir, logType := commonFlags(fs)
	days := fs.Int("days", 7, "count lines newer than this many days")
	fs.Parse(args)

	if *days < 1 {
		return fmt.Errorf("--days must be at least 1")
	}

	since := time.Now().Add(-time.Duration(*days) * 24 * time.Hour)
	stats, err := logops.Stats(*dir, normalizeType(*logType), since)
	if err != nil {
		return err
	}

	for _, fi := range stats {
		if fi.Warning != "" {
			fmt.Printf("warning: %s\n", fi.Warning)
		}
		if fi.Lines == 0 && fi.SizeBytes == 0 {
			fmt.Printf("%-12s (missing or empty)\n", fi.Name)
			continue
		}
		fmt.Printf("%-12s %8d lines  %10d bytes  modified %s\n",
			fi.Name, fi.Lines, fi.SizeBytes, fi.Modified.Format(time.RFC3339))
		for _, level := range sortedKeys(fi.ByLevel) {
			fmt.Printf("  %-10s %d\n", level, fi.ByLevel[level])
		}
	}
	return nil
}

func runClean(args []string) error {
	fs := flag.NewFlagSet("clean", flag.ExitOnError)
	dir, logType := commonFlags(fs)
	days := fs.Int("days", 7, "delete sinks older than this many days")
	fs.Parse(args)

	if *days < 1 {
		return fmt.Errorf("--days must be at least 1")
	}

	cutoff := time.Now().Add(-time.Duration(*days) * 24 * time.Hour)
	results, err := logops.Clean(*dir, normalizeType(*logType), cutoff)
	if err != nil {
		return err
	}

	removed := 0
	for _, res := range results {
		if res.Warning != "" {
			fmt.Printf("warning: %s\n", res.Warning)
		}
		if res.Removed {
			fmt.Printf("removed %s.log (last modified %s)\n", res.Name, res.Modified.Format(time.RFC3339))
			removed++
		}
	}
	if removed == 0 {
		fmt.Printf("nothing older than %d days\n", *days)
	}
	return nil
}

func runAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	dir, logType := commonFlags(fs)
	days := fs.Int("days", 7, "analyze lines newer than this many days")
	fs.Parse(args)

	if *days < 1 {
		return fmt.Errorf("--days must be at least 1")
	}

	since := time.Now().Add(-time.Duration(*days) * 24 * time.Hour)
	a, err := logops.Analyze(*dir, normalizeType(*logType), since)
	if err != nil {
		return err
	}

	for _, w := range a.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	fmt.Printf("since %s: %d lines (%d unparseable)\n",
		a.Since.Format(time.RFC3339), a.TotalLines, a.Unparseable)

	if len(a.ByLevel) > 0 {
		fmt.Println("by level:")
		for _, level := range sortedKeys(a.ByLevel) {
			fmt.Printf("  %-10s %d\n", level, a.ByLevel[level])
		}
	}
	if len(a.ByEvent) > 0 {
		fmt.Println("by event:")
		for _, kind := range sortedKeys(a.ByEvent) {
			fmt.Printf("  %-24s %d\n", kind, a.ByEvent[kind])
		}
	}
	if len(a.TopErrors) > 0 {
		fmt.Println("top errors:")
		for _, e := range a.TopErrors {
			fmt.Printf("  %6d  %s\n", e.Count, e.Key)
		}
	}
	if len(a.TopIPs) > 0 {
		fmt.Println("top source IPs:")
		for _, ip := range a.TopIPs {
			fmt.Printf("  %6d  %s\n", ip.Count, ip.Key)
		}
	}
	return nil
}

func runShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	dir, logType := commonFlags(fs)
	lines := fs.Int("lines", 50, "lines to print per sink")
	fs.Parse(args)

	if *lines < 1 {
		return fmt.Errorf("--lines must be at least 1")
	}

	tails, warnings, err := logops.Show(*dir, normalizeType(*logType), *lines)
	if err != nil {
		return err
	}

	for _, w := range warnings {
		fmt.Printf("warning: %s\n", w)
	}
	for _, name := range events.SinkNames {
		tail, ok := tails[name]
		if !ok {
			continue
		}
		fmt.Printf("==> %s.log <==\n", name)
		if len(tail) == 0 {
			fmt.Println("(missing or empty)")
			continue
		}
		for _, line := range tail {
			fmt.Println(line)
		}
	}
	return nil
}

// sortedKeys returns the map's keys in stable order for display.
func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
