package state

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/TheMichaelB/rosmirror/internal/events"
	"github.com/TheMichaelB/rosmirror/internal/models"
)

// JSONStore keeps the history as a single JSON array, oldest first.
type JSONStore struct {
	path   string
	limit  int
	logger *events.Logger

	mu sync.Mutex
}

// NewJSONStore creates a JSON history store at path.
func NewJSONStore(path string, logger *events.Logger) (*JSONStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	return &JSONStore{
		path:   path,
		limit:  models.HistoryLimit,
		logger: logger.WithField("component", "json_history_store"),
	}, nil
}

// Path returns the history file location.
func (s *JSONStore) Path() string {
	return s.path
}

// Load reads the history. A missing file yields an empty history; a corrupt
// file falls back to the backup copy, then to an empty history.
func (s *JSONStore) Load() ([]models.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(), nil
}

// Append adds an entry, caps the history, and rewrites the file atomically.
func (s *JSONStore) Append(entry models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := append(s.load(), entry)
	entries = models.CapHistory(entries, s.limit)

	s.logger.WithFields(map[string]interface{}{
		"entries": len(entries),
		"v6":      entry.V6Stable,
		"v7":      entry.V7Stable,
	}).Debug("Appending history entry")

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := copyFile(s.path, s.backupPath()); err != nil {
			s.logger.WithError(err).Warn("Failed to create backup")
		}
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if file, err := os.Open(tmpPath); err == nil {
		_ = file.Sync()
		file.Close()
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename history file: %w", err)
	}

	return nil
}

// Close releases resources.
func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) load() []models.HistoryEntry {
	entries, err := readEntries(s.path)
	if err == nil {
		return entries
	}
	if os.IsNotExist(err) {
		return nil
	}

	s.logger.WithError(err).Warn("History file unreadable, trying backup")
	if entries, err := readEntries(s.backupPath()); err == nil {
		return entries
	}
	return nil
}

func (s *JSONStore) backupPath() string {
	return s.path + ".backup"
}

func readEntries(path string) ([]models.HistoryEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entries []models.HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateCorrupt, err)
	}
	return entries, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
