package models

import (
	"strconv"
	"strings"
	"time"
)

// Pointer is a resolved version pointer.
type Pointer struct {
	Version string `json:"version"`
	Build   int64  `json:"build"`
}

// IsZero reports whether no version was resolved.
func (p Pointer) IsZero() bool {
	return p.Version == ""
}

// ParsePointer parses "<version> [<build>]" pointer text.
// A missing or non-numeric build yields 0.
func ParsePointer(text string) (Pointer, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Pointer{}, ErrNoVersion
	}

	v := fields[0]
	if !validVersionText(v) {
		return Pointer{}, ErrNoVersion
	}

	p := Pointer{Version: v}
	if len(fields) > 1 {
		if n, err := strconv.ParseInt(fields[1], 10, 64); err == nil && n > 0 {
			p.Build = n
		}
	}
	return p, nil
}

func validVersionText(v string) bool {
	if v == "" || v[0] < '0' || v[0] > '9' || !strings.Contains(v, ".") {
		return false
	}
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r == '.', r == '-':
		default:
			return false
		}
	}
	return true
}

// Versions holds the active version of every branch.
type Versions struct {
	V6            string `json:"v6"`
	V6Build       int64  `json:"v6_build"`
	V7Fixed       string `json:"v7_fixed"`
	V7FixedBuild  int64  `json:"v7_fixed_build"`
	V7Latest      string `json:"v7_latest"`
	V7LatestBuild int64  `json:"v7_latest_build"`
}

// Get returns the active pointer for a branch.
func (v Versions) Get(b Branch) Pointer {
	switch b {
	case BranchV6:
		return Pointer{Version: v.V6, Build: v.V6Build}
	case BranchV7Fixed:
		return Pointer{Version: v.V7Fixed, Build: v.V7FixedBuild}
	case BranchV7Latest:
		return Pointer{Version: v.V7Latest, Build: v.V7LatestBuild}
	}
	return Pointer{}
}

// Set replaces the active pointer for a branch.
func (v *Versions) Set(b Branch, p Pointer) {
	switch b {
	case BranchV6:
		v.V6, v.V6Build = p.Version, p.Build
	case BranchV7Fixed:
		v.V7Fixed, v.V7FixedBuild = p.Version, p.Build
	case BranchV7Latest:
		v.V7Latest, v.V7LatestBuild = p.Version, p.Build
	}
}

// IsActive reports whether version is active in any branch.
func (v Versions) IsActive(version string) bool {
	return version != "" && (version == v.V6 || version == v.V7Fixed || version == v.V7Latest)
}

// Complete reports whether every branch has a version.
func (v Versions) Complete() bool {
	return v.V6 != "" && v.V7Fixed != "" && v.V7Latest != ""
}

// HistoryEntry is one record of the version history log.
type HistoryEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	V6Stable      string    `json:"v6Stable"`
	V7Fixed       string    `json:"v7Fixed"`
	V7Stable      string    `json:"v7Stable"`
	V6Build       int64     `json:"v6Build,omitempty"`
	V7StableBuild int64     `json:"v7StableBuild,omitempty"`
}

// NewHistoryEntry records the given active versions at time t.
func NewHistoryEntry(t time.Time, v Versions) HistoryEntry {
	return HistoryEntry{
		Timestamp:     t.UTC(),
		V6Stable:      v.V6,
		V7Fixed:       v.V7Fixed,
		V7Stable:      v.V7Latest,
		V6Build:       v.V6Build,
		V7StableBuild: v.V7LatestBuild,
	}
}

// Versions converts the entry back into active versions.
func (e HistoryEntry) Versions() Versions {
	return Versions{
		V6:            e.V6Stable,
		V6Build:       e.V6Build,
		V7Fixed:       e.V7Fixed,
		V7Latest:      e.V7Stable,
		V7LatestBuild: e.V7StableBuild,
	}
}

// HistoryLimit caps the number of retained history entries.
const HistoryLimit = 100

// CapHistory drops the oldest entries so at most limit remain, preserving order.
func CapHistory(entries []HistoryEntry, limit int) []HistoryEntry {
	if limit <= 0 || len(entries) <= limit {
		return entries
	}
	out := make([]HistoryEntry, limit)
	copy(out, entries[len(entries)-limit:])
	return out
}
