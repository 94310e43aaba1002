// Package settings holds the operator-editable lists persisted next to the mirror.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/TheMichaelB/rosmirror/internal/events"
	"github.com/TheMichaelB/rosmirror/internal/models"
)

// DefaultArches is used when no architecture file exists.
var DefaultArches = []string{"arm", "arm64", "mipsbe", "mmips", "smips", "ppc", "tile", "x86"}

var archToken = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Arches is the persisted set of allowed architectures.
type Arches struct {
	mu     sync.RWMutex
	path   string
	list   []string
	logger *events.Logger
}

// LoadArches reads the architecture file. A missing or unreadable file
// yields the defaults.
func LoadArches(path string, logger *events.Logger) *Arches {
	a := &Arches{
		path:   path,
		list:   append([]string(nil), DefaultArches...),
		logger: logger.WithField("component", "arches"),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			a.logger.WithError(err).Warn("Reading allowed architectures failed, using defaults")
		}
		return a
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		a.logger.WithError(err).Warn("Allowed architectures file is corrupt, using defaults")
		return a
	}

	normalized, err := NormalizeArches(list)
	if err != nil {
		a.logger.WithError(err).Warn("Allowed architectures file is invalid, using defaults")
		return a
	}
	a.list = normalized
	return a
}

// List returns a copy of the allowed architectures.
func (a *Arches) List() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.list...)
}

// Update validates, persists and installs a new architecture set.
func (a *Arches) Update(list []string) ([]string, error) {
	normalized, err := NormalizeArches(list)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := writeJSON(a.path, normalized); err != nil {
		return nil, fmt.Errorf("persist allowed architectures: %w", err)
	}
	a.list = normalized

	a.logger.WithField("arches", strings.Join(normalized, ",")).Info("Allowed architectures updated")
	return append([]string(nil), normalized...), nil
}

// NormalizeArches lowercases, trims, dedupes and validates tokens.
func NormalizeArches(list []string) ([]string, error) {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, a := range list {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" || seen[a] {
			continue
		}
		if !archToken.MatchString(a) {
			return nil, fmt.Errorf("%w: %q", models.ErrInvalidArch, a)
		}
		seen[a] = true
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty list", models.ErrInvalidArch)
	}
	sort.Strings(out)
	return out, nil
}

// writeJSON writes v to path through a temp file.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
