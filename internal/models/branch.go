package models

import (
	"fmt"
	"strings"
)

// Branch identifies an independently tracked RouterOS release line.
type Branch string

const (
	BranchV6       Branch = "v6"
	BranchV7Fixed  Branch = "v7-fixed"
	BranchV7Latest Branch = "v7-latest"
)

// Branches lists every tracked branch in processing order.
var Branches = []Branch{BranchV6, BranchV7Fixed, BranchV7Latest}

// Major returns the on-disk major directory name for the branch.
func (b Branch) Major() string {
	if b == BranchV6 {
		return "v6"
	}
	return "v7"
}

// Bundled reports whether the branch ships per-arch zip bundles instead of npk files.
func (b Branch) Bundled() bool {
	return b == BranchV6
}

// Valid reports whether b is a known branch.
func (b Branch) Valid() bool {
	switch b {
	case BranchV6, BranchV7Fixed, BranchV7Latest:
		return true
	}
	return false
}

// ArtifactName returns the vendor file name for an architecture of a version.
func ArtifactName(b Branch, version, arch string) string {
	arch = strings.ToLower(arch)
	if b.Bundled() {
		return fmt.Sprintf("all_packages-%s-%s.zip", arch, version)
	}
	return fmt.Sprintf("routeros-%s-%s.npk", version, arch)
}

// MinorBranch returns "{major}.{minor}" for a version string such as "7.20.4".
func MinorBranch(version string) string {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return ""
	}
	minor := parts[1]
	// strip pre-release suffixes like "15rc3"
	for i, r := range minor {
		if r < '0' || r > '9' {
			minor = minor[:i]
			break
		}
	}
	if parts[0] == "" || minor == "" {
		return ""
	}
	return parts[0] + "." + minor
}
