package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/TheMichaelB/rosmirror/internal/models"
)

// Status is the last-check record kept in status.json.
type Status struct {
	LastCheck  time.Time           `json:"last_check"`
	LastResult *models.CheckResult `json:"last_result,omitempty"`
}

// StatusFile persists Status next to the history.
type StatusFile struct {
	path string
}

// NewStatusFile creates a status file handle.
func NewStatusFile(path string) *StatusFile {
	return &StatusFile{path: path}
}

// Load reads the status. Missing or corrupt files yield a zero Status.
func (f *StatusFile) Load() Status {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return Status{}
	}

	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		return Status{}
	}
	return st
}

// Save writes the status atomically.
func (f *StatusFile) Save(st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("create status directory: %w", err)
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename status file: %w", err)
	}
	return nil
}
