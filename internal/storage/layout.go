package storage

import (
	"path"

	"github.com/TheMichaelB/rosmirror/internal/models"
)

// Mirror-root relative names of the fixed files.
const (
	HistoryFile   = "versions.json"
	StatusFile    = "status.json"
	ChangelogFile = "CHANGELOG"
	PackagesFile  = "packages.csv"
	PackagesDir   = "packages"
)

// MajorDir returns the branch root, "v6" or "v7".
func MajorDir(b models.Branch) string {
	return b.Major()
}

// VersionDir returns the directory of a version.
func VersionDir(b models.Branch, version string) string {
	return path.Join(b.Major(), version)
}

// ArtifactPath returns the expected artifact file for an architecture.
func ArtifactPath(b models.Branch, version, arch string) string {
	return path.Join(VersionDir(b, version), models.ArtifactName(b, version, arch))
}

// ChangelogPath returns the per-version changelog.
func ChangelogPath(b models.Branch, version string) string {
	return path.Join(VersionDir(b, version), ChangelogFile)
}

// PackagesPath returns the shared packages list for a "{major}.{minor}" branch.
func PackagesPath(minor string) string {
	return path.Join(PackagesDir, minor+".csv")
}

// PointerPath returns the materialized pointer file.
func PointerPath(name string) string {
	return name
}
