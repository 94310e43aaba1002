package state

import (
	"sync"

	"github.com/TheMichaelB/rosmirror/internal/models"
)

// MockStore provides an in-memory history store for testing.
type MockStore struct {
	mu      sync.RWMutex
	entries []models.HistoryEntry
	err     error
}

// NewMockStore creates a mock history store.
func NewMockStore() *MockStore {
	return &MockStore{}
}

// Load returns a copy of the stored history.
func (m *MockStore) Load() ([]models.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return nil, m.err
	}
	out := make([]models.HistoryEntry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

// Append stores an entry under the history limit.
func (m *MockStore) Append(entry models.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.entries = models.CapHistory(append(m.entries, entry), models.HistoryLimit)
	return nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// Helper methods for testing

// SetError makes every subsequent call fail with err.
func (m *MockStore) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Len returns the number of stored entries.
func (m *MockStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
