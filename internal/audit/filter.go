// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

package audit

import "path"

// Filter decides which entity types are audited. Patterns use path.Match
// syntax against the "namespace.type" discriminator, e.g. "facilities.*"
// or "*.payment". Exclusion always wins over inclusion, and an empty
// include list includes everything.
type Filter struct {
	// Enabled gates the whole pipeline. When false nothing is audited.
	Enabled bool

	// Include lists patterns of entity types to audit. Empty means all.
	Include []string

	// Exclude lists patterns of entity types to skip. Checked first.
	Exclude []string
}

// DefaultFilter audits everything.
func DefaultFilter() Filter {
	return Filter{Enabled: true}
}

// ShouldAudit reports whether mutations of the given entity type produce
// audit records. A pattern that fails to parse never matches.
func (f Filter) ShouldAudit(entityType string) bool {
	if !f.Enabled || entityType == "" {
		return false
	}
	for _, pat := range f.Exclude {
		if ok, err := path.Match(pat, entityType); err == nil && ok {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, pat := range f.Include {
		if ok, err := path.Match(pat, entityType); err == nil && ok {
			return true
		}
	}
	return false
}
