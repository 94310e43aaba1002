package state

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/TheMichaelB/rosmirror/internal/events"
	"github.com/TheMichaelB/rosmirror/internal/models"
)

// Store persists the version history log.
type Store interface {
	// Load returns the history, oldest first.
	Load() ([]models.HistoryEntry, error)

	// Append adds an entry and drops the oldest beyond the history limit.
	Append(entry models.HistoryEntry) error

	// Close releases resources.
	Close() error
}

// Errors
var (
	ErrStateCorrupt   = errors.New("state file is corrupt")
	ErrUnknownBackend = errors.New("unknown history backend")
)

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Open creates the history store for a backend under the mirror root.
func Open(backend, root string, logger *events.Logger) (Store, error) {
	switch backend {
	case "", BackendJSON:
		return NewJSONStore(filepath.Join(root, "versions.json"), logger)
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(root, "versions.db"), logger)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
}

// Latest returns the newest entry of a store, if any.
func Latest(s Store) (models.HistoryEntry, bool, error) {
	entries, err := s.Load()
	if err != nil {
		return models.HistoryEntry{}, false, err
	}
	if len(entries) == 0 {
		return models.HistoryEntry{}, false, nil
	}
	return entries[len(entries)-1], true, nil
}
