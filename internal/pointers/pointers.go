// Package pointers maps vendor pointer-file names onto the active branch versions.
//
// The table built here is the only place that knows which pointer name
// follows which branch. Materializing pointer files on disk and answering
// pointer requests on the fly both go through Build.
package pointers

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/TheMichaelB/rosmirror/internal/models"
)

// Entry is the resolved target of a pointer name.
type Entry struct {
	Name    string        // canonical on-disk spelling
	Branch  models.Branch // branch the pointer follows
	Version string
	Build   int64
}

// Content renders the pointer file body.
func (e Entry) Content() string {
	return fmt.Sprintf("%s %d\n", e.Version, e.Build)
}

// Map is an immutable, case-insensitive pointer table.
type Map struct {
	entries map[string]Entry
}

type alias struct {
	name   string
	branch models.Branch
}

var (
	v6Stable = []string{
		"LATEST.6",
		"LATEST.6fix",
		"NEWEST6.stable",
		"NEWEST6.long-term",
		"NEWESTa6.stable",
		"NEWESTa6.long-term",
	}

	v6Upgrade = []string{
		"NEWEST6.upgrade",
		"NEWESTa6.upgrade",
		"NEWESTa7.upgrade",
	}

	v7Fixed = []string{
		"NEWEST7.long-term",
		"NEWESTa7.long-term",
		"long-term",
	}

	v7Latest = []string{
		"LATEST.7",
		"NEWEST7.stable",
		"NEWESTa7.stable",
		"stable",
	}

	channelPrefixes = []string{"NEWEST6", "NEWESTa6", "NEWEST7", "NEWESTa7"}
	channels        = []string{"development", "testing", "rc"}
)

// aliases expands the table definition into one alias per pointer name.
func aliases() []alias {
	var out []alias
	for _, n := range v6Stable {
		out = append(out, alias{n, models.BranchV6})
	}
	for _, n := range v6Upgrade {
		out = append(out, alias{n, models.BranchV7Latest})
	}
	for _, n := range v7Fixed {
		out = append(out, alias{n, models.BranchV7Fixed})
	}
	for _, n := range v7Latest {
		out = append(out, alias{n, models.BranchV7Latest})
	}
	for _, prefix := range channelPrefixes {
		for _, ch := range channels {
			out = append(out, alias{prefix + "." + ch, models.BranchV7Latest})
		}
	}
	out = append(out,
		alias{"development", models.BranchV7Latest},
		alias{"testing", models.BranchV7Latest},
	)
	return out
}

// Build creates the pointer table for the given active versions.
func Build(v models.Versions) Map {
	all := aliases()
	m := Map{entries: make(map[string]Entry, len(all))}
	for _, a := range all {
		p := v.Get(a.branch)
		m.entries[fold(a.name)] = Entry{
			Name:    a.name,
			Branch:  a.branch,
			Version: p.Version,
			Build:   p.Build,
		}
	}
	return m
}

// Lookup returns the entry for a pointer name, ignoring case.
func (m Map) Lookup(name string) (Entry, bool) {
	e, ok := m.entries[fold(name)]
	return e, ok
}

// Entries returns every entry ordered by canonical name.
func (m Map) Entries() []Entry {
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns every canonical pointer name in sorted order.
func (m Map) Names() []string {
	entries := m.Entries()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

// Files returns the entries that are materialized as pointer files.
// Bare channel names are answered on the fly only.
func (m Map) Files() []Entry {
	var out []Entry
	for _, e := range m.Entries() {
		if strings.Contains(e.Name, ".") {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of known pointer names.
func (m Map) Len() int {
	return len(m.entries)
}

var bareChannels = map[string]bool{
	"stable":      true,
	"long-term":   true,
	"testing":     true,
	"development": true,
	"upgrade":     true,
}

// IsPointerName reports whether a requested file name looks like a pointer file.
func IsPointerName(name string) bool {
	n := fold(name)
	if strings.HasPrefix(n, "latest.") || strings.HasPrefix(n, "newest") {
		return true
	}
	return !strings.Contains(n, ".") && bareChannels[n]
}

func fold(s string) string {
	return cases.Fold().String(s)
}
