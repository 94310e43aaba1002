package storage

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	goversion "github.com/hashicorp/go-version"

	"github.com/TheMichaelB/rosmirror/internal/events"
	"github.com/TheMichaelB/rosmirror/internal/models"
)

// ArchSource supplies the currently allowed architectures.
type ArchSource interface {
	List() []string
}

// Registry holds the active version of every branch.
type Registry interface {
	Snapshot() models.Versions
	SetBranch(b models.Branch, p models.Pointer)
}

// VersionInfo summarizes a local version directory.
type VersionInfo struct {
	Version  string        `json:"version"`
	Major    string        `json:"major"`
	Branch   models.Branch `json:"branch,omitempty"`
	Complete bool          `json:"complete"`
	Size     int64         `json:"size"`
	ModTime  time.Time     `json:"mod_time"`
}

// CleanupResult reports what a retention pass did.
type CleanupResult struct {
	Removed    []string `json:"removed"`
	Kept       []string `json:"kept"`
	Exempt     []string `json:"exempt"`
	BytesFreed int64    `json:"bytes_freed"`
	Failed     []string `json:"failed,omitempty"`
}

// VersionStore manages the versioned directory layout under the mirror root.
type VersionStore struct {
	files        *LocalStore
	arches       ArchSource
	registry     Registry
	fixedVersion string
	logger       *events.Logger
}

// NewVersionStore creates a version store over files.
func NewVersionStore(files *LocalStore, arches ArchSource, registry Registry, fixedVersion string, logger *events.Logger) *VersionStore {
	return &VersionStore{
		files:        files,
		arches:       arches,
		registry:     registry,
		fixedVersion: fixedVersion,
		logger:       logger.WithField("component", "version_store"),
	}
}

// Files returns the underlying file store.
func (s *VersionStore) Files() *LocalStore {
	return s.files
}

// FixedVersion returns the pinned v7 long-term version.
func (s *VersionStore) FixedVersion() string {
	return s.fixedVersion
}

// Arches returns the allowed architectures.
func (s *VersionStore) Arches() []string {
	return s.arches.List()
}

// IsComplete reports whether every allowed architecture has a non-empty
// artifact in the version directory.
func (s *VersionStore) IsComplete(version string, b models.Branch) bool {
	return s.isCompleteFor(version, b, s.arches.List())
}

// IsCompleteFor checks completeness against an explicit architecture set.
func (s *VersionStore) IsCompleteFor(version string, b models.Branch, arches []string) bool {
	return s.isCompleteFor(version, b, arches)
}

func (s *VersionStore) isCompleteFor(version string, b models.Branch, arches []string) bool {
	if version == "" {
		return false
	}

	dir, err := s.files.Stat(VersionDir(b, version))
	if err != nil || !dir.IsDir {
		return false
	}

	for _, arch := range arches {
		info, err := s.files.Stat(ArtifactPath(b, version, arch))
		if err != nil || info.IsDir || info.Size == 0 {
			return false
		}
	}
	return true
}

// MissingArtifacts lists the allowed architectures without a usable artifact.
func (s *VersionStore) MissingArtifacts(version string, b models.Branch) []string {
	var missing []string
	for _, arch := range s.arches.List() {
		info, err := s.files.Stat(ArtifactPath(b, version, arch))
		if err != nil || info.IsDir || info.Size == 0 {
			missing = append(missing, arch)
		}
	}
	return missing
}

// EnsureVersionDir creates the directory of a version.
func (s *VersionStore) EnsureVersionDir(b models.Branch, version string) error {
	return s.files.EnsureDir(VersionDir(b, version))
}

type candidate struct {
	name    string
	version *goversion.Version
}

// CleanupOldVersions keeps the newest keep versions under the major directory
// of b and removes the rest. Protected versions are never removed and do not
// count toward keep. Directory names that do not parse as a version are left
// in place.
func (s *VersionStore) CleanupOldVersions(b models.Branch, keep int, protected ...string) CleanupResult {
	var result CleanupResult
	logger := s.logger.WithFields(map[string]interface{}{
		"major": b.Major(),
		"keep":  keep,
	})

	entries, err := s.files.ListDir(MajorDir(b))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.WithError(err).Warn("List versions for cleanup failed")
		}
		return result
	}

	isProtected := make(map[string]bool, len(protected))
	for _, p := range protected {
		if p != "" {
			isProtected[p] = true
		}
	}

	var candidates []candidate
	for _, e := range entries {
		if !e.IsDir || strings.HasPrefix(e.Name, ".") {
			continue
		}
		if isProtected[e.Name] {
			result.Kept = append(result.Kept, e.Name)
			continue
		}
		v, err := goversion.NewVersion(e.Name)
		if err != nil {
			result.Exempt = append(result.Exempt, e.Name)
			logger.WithField("dir", e.Name).Warn("Skipping unparseable version directory")
			continue
		}
		candidates = append(candidates, candidate{name: e.Name, version: v})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].version.GreaterThan(candidates[j].version)
	})

	if keep < 0 {
		keep = 0
	}
	for i, c := range candidates {
		if i < keep {
			result.Kept = append(result.Kept, c.name)
			continue
		}

		freed, err := s.files.RemoveAll(path.Join(MajorDir(b), c.name))
		if err != nil {
			result.Failed = append(result.Failed, c.name)
			logger.WithError(err).WithField("version", c.name).Warn("Remove old version failed")
			continue
		}
		result.Removed = append(result.Removed, c.name)
		result.BytesFreed += freed
		logger.WithFields(map[string]interface{}{
			"version": c.name,
			"freed":   humanize.Bytes(uint64(freed)),
		}).Info("Removed old version")
	}

	if len(result.Removed) > 0 {
		logger.WithFields(map[string]interface{}{
			"removed": len(result.Removed),
			"freed":   humanize.Bytes(uint64(result.BytesFreed)),
		}).Info("Cleanup finished")
	}

	return result
}

// Locate returns the major directory branch holding version, checking v6 first.
func (s *VersionStore) Locate(version string) (models.Branch, bool) {
	if !validDirName(version) {
		return "", false
	}
	for _, b := range []models.Branch{models.BranchV6, models.BranchV7Latest} {
		if info, err := s.files.Stat(VersionDir(b, version)); err == nil && info.IsDir {
			return b, true
		}
	}
	return "", false
}

// SetActive marks a local version as active for the branch its directory
// belongs to. A v7 version equal to the fixed version becomes v7-fixed.
func (s *VersionStore) SetActive(version string) bool {
	b, ok := s.Locate(version)
	if !ok {
		return false
	}
	if b != models.BranchV6 && version == s.fixedVersion {
		b = models.BranchV7Fixed
	}

	s.registry.SetBranch(b, models.Pointer{Version: version})
	s.logger.WithFields(map[string]interface{}{
		"version": version,
		"branch":  b,
	}).Info("Version activated")
	return true
}

// Remove deletes a version directory unless the version is active anywhere.
func (s *VersionStore) Remove(version string) bool {
	if s.registry.Snapshot().IsActive(version) {
		s.logger.WithField("version", version).Warn("Refusing to remove active version")
		return false
	}

	b, ok := s.Locate(version)
	if !ok {
		return false
	}

	freed, err := s.files.RemoveAll(VersionDir(b, version))
	if err != nil {
		s.logger.WithError(err).WithField("version", version).Warn("Remove version failed")
		return false
	}

	s.logger.WithFields(map[string]interface{}{
		"version": version,
		"freed":   humanize.Bytes(uint64(freed)),
	}).Info("Version removed")
	return true
}

// ListVersions summarizes every local version directory, newest first per major.
func (s *VersionStore) ListVersions() []VersionInfo {
	active := s.registry.Snapshot()
	var out []VersionInfo

	for _, b := range []models.Branch{models.BranchV6, models.BranchV7Latest} {
		entries, err := s.files.ListDir(MajorDir(b))
		if err != nil {
			continue
		}

		var infos []VersionInfo
		for _, e := range entries {
			if !e.IsDir || strings.HasPrefix(e.Name, ".") {
				continue
			}
			info := VersionInfo{
				Version:  e.Name,
				Major:    b.Major(),
				Complete: s.IsComplete(e.Name, b),
				Size:     dirSize(mustPath(s.files, VersionDir(b, e.Name))),
				ModTime:  e.ModTime,
			}
			info.Branch = activeBranch(active, e.Name, b)
			infos = append(infos, info)
		}

		sort.SliceStable(infos, func(i, j int) bool {
			return versionLess(infos[j].Version, infos[i].Version)
		})
		out = append(out, infos...)
	}
	return out
}

// WriteFile writes a mirror-root relative file atomically.
func (s *VersionStore) WriteFile(rel string, data []byte) error {
	if err := s.files.Write(rel, data); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

func activeBranch(active models.Versions, version string, b models.Branch) models.Branch {
	switch {
	case b == models.BranchV6 && version == active.V6:
		return models.BranchV6
	case b != models.BranchV6 && version == active.V7Latest:
		return models.BranchV7Latest
	case b != models.BranchV6 && version == active.V7Fixed:
		return models.BranchV7Fixed
	}
	return ""
}

// versionLess orders parseable versions semantically and places
// unparseable names below them.
func versionLess(a, b string) bool {
	va, errA := goversion.NewVersion(a)
	vb, errB := goversion.NewVersion(b)
	switch {
	case errA != nil && errB != nil:
		return a < b
	case errA != nil:
		return true
	case errB != nil:
		return false
	}
	return va.LessThan(vb)
}

func validDirName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}

func mustPath(files *LocalStore, rel string) string {
	p, err := files.Path(rel)
	if err != nil {
		return ""
	}
	return p
}
