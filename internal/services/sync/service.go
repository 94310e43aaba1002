package sync

import (
	"context"
	"fmt"

	"github.com/TheMichaelB/rosmirror/internal/events"
	"github.com/TheMichaelB/rosmirror/internal/models"
	"github.com/TheMichaelB/rosmirror/internal/state"
	"github.com/TheMichaelB/rosmirror/internal/storage"
)

// Service provides high-level mirror operations on top of the engine.
type Service struct {
	engine   *Engine
	runner   *Runner
	versions *storage.VersionStore
	history  state.Store
	active   *state.Active
	keep     int
	logger   *events.Logger
}

// StatusReport is the combined view of the mirror state.
type StatusReport struct {
	Running    bool                `json:"running"`
	Progress   Progress            `json:"progress"`
	Versions   models.Versions     `json:"versions"`
	LastCheck  string              `json:"last_check,omitempty"`
	LastResult *models.CheckResult `json:"last_result,omitempty"`
}

// NewService creates a sync service.
func NewService(engine *Engine, runner *Runner, versions *storage.VersionStore, history state.Store, active *state.Active, keep int, logger *events.Logger) *Service {
	return &Service{
		engine:   engine,
		runner:   runner,
		versions: versions,
		history:  history,
		active:   active,
		keep:     keep,
		logger:   logger.WithField("service", "sync"),
	}
}

// Engine returns the underlying engine.
func (s *Service) Engine() *Engine {
	return s.engine
}

// Check runs a check synchronously.
func (s *Service) Check(ctx context.Context) models.CheckResult {
	return s.engine.Check(ctx)
}

// Trigger queues a background check. It reports false when one is already queued
// or no runner is attached.
func (s *Service) Trigger(reason string) bool {
	if s.runner == nil {
		return false
	}
	return s.runner.Trigger(reason)
}

// Status returns the current state of the mirror.
func (s *Service) Status() StatusReport {
	report := StatusReport{
		Running:  s.engine.Running(),
		Progress: s.engine.Progress(),
		Versions: s.active.Snapshot(),
	}
	if t := s.active.LastCheck(); !t.IsZero() {
		report.LastCheck = t.UTC().Format("2006-01-02T15:04:05Z")
	}
	if r, ok := s.active.LastResult(); ok {
		report.LastResult = &r
	}
	return report
}

// History returns up to limit history entries, newest first. A limit of
// zero or less returns everything.
func (s *Service) History(limit int) ([]models.HistoryEntry, error) {
	entries, err := s.history.Load()
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	out := make([]models.HistoryEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Versions lists the local version directories.
func (s *Service) Versions() []storage.VersionInfo {
	return s.versions.ListVersions()
}

// Activate makes a local version the active version of its branch and
// republishes the pointer files.
func (s *Service) Activate(ctx context.Context, version string) error {
	return s.engine.Exclusive(func() error {
		if !s.versions.SetActive(version) {
			return fmt.Errorf("activate %s: %w", version, models.ErrVersionMissing)
		}
		if err := s.engine.Republish(ctx); err != nil {
			return fmt.Errorf("activate %s: %w", version, err)
		}
		return nil
	})
}

// Remove deletes a local version that is not active on any branch.
func (s *Service) Remove(version string) error {
	return s.engine.Exclusive(func() error {
		if s.active.Snapshot().IsActive(version) {
			return fmt.Errorf("remove %s: %w", version, models.ErrVersionActive)
		}
		if _, ok := s.versions.Locate(version); !ok {
			return fmt.Errorf("remove %s: %w", version, models.ErrVersionMissing)
		}
		if !s.versions.Remove(version) {
			return fmt.Errorf("remove %s: delete failed", version)
		}
		return nil
	})
}

// Cleanup runs retention for v6 and v7 with the configured keep count.
func (s *Service) Cleanup() (map[models.Branch]storage.CleanupResult, error) {
	results := make(map[models.Branch]storage.CleanupResult)
	err := s.engine.Exclusive(func() error {
		snap := s.active.Snapshot()
		for _, b := range []models.Branch{models.BranchV6, models.BranchV7Latest} {
			results[b] = s.versions.CleanupOldVersions(b, s.keep, snap.V6, snap.V7Fixed, snap.V7Latest)
		}
		return nil
	})
	return results, err
}
