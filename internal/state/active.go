package state

import (
	"sync"
	"time"

	"github.com/TheMichaelB/rosmirror/internal/models"
)

// Active holds the active version of every branch plus the last check outcome.
// Readers get value copies and never block on a running check.
type Active struct {
	mu         sync.RWMutex
	versions   models.Versions
	lastCheck  time.Time
	lastResult *models.CheckResult
}

// NewActive creates an empty registry.
func NewActive() *Active {
	return &Active{}
}

// Snapshot returns a copy of the active versions.
func (a *Active) Snapshot() models.Versions {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.versions
}

// SetBranch replaces the active pointer of a branch.
func (a *Active) SetBranch(b models.Branch, p models.Pointer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.versions.Set(b, p)
}

// Seed restores active versions from a history entry.
func (a *Active) Seed(entry models.HistoryEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.versions = entry.Versions()
}

// RecordCheck stores the outcome of a finished check.
func (a *Active) RecordCheck(result models.CheckResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastCheck = result.StartedAt.Add(result.Duration)
	a.lastResult = &result
}

// Restore loads a previously persisted status.
func (a *Active) Restore(st Status) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastCheck = st.LastCheck
	if st.LastResult != nil {
		r := *st.LastResult
		a.lastResult = &r
	}
}

// LastCheck returns when the last check finished.
func (a *Active) LastCheck() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastCheck
}

// LastResult returns the last check result, if any.
func (a *Active) LastResult() (models.CheckResult, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.lastResult == nil {
		return models.CheckResult{}, false
	}
	return *a.lastResult, true
}

// Status returns the persisted form of the last check.
func (a *Active) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	st := Status{LastCheck: a.lastCheck}
	if a.lastResult != nil {
		r := *a.lastResult
		st.LastResult = &r
	}
	return st
}
