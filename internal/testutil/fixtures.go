package testutil

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zip"

	"github.com/TheMichaelB/rosmirror/internal/models"
)

// Release describes the versions an upstream fixture publishes.
type Release struct {
	V6      string
	V6Build int64
	V7      string
	V7Build int64
	Fixed   string
	Arches  []string

	V6Pointer string
	V7Pointer string

	// Optional files
	Changelogs bool
	Packages   bool
}

// DefaultRelease returns the release used across the test suite.
func DefaultRelease() Release {
	return Release{
		V6:         "6.49.7",
		V6Build:    123,
		V7:         "7.20.4",
		V7Build:    456,
		Fixed:      "7.12.1",
		Arches:     []string{"arm", "x86"},
		V6Pointer:  "NEWEST6.stable",
		V7Pointer:  "NEWESTa7.stable",
		Changelogs: true,
		Packages:   true,
	}
}

// Files returns every upstream file of the release, keyed by its path
// relative to the upstream base URL.
func (r Release) Files() map[string][]byte {
	files := map[string][]byte{
		r.V6Pointer: []byte(fmt.Sprintf("%s %d\n", r.V6, r.V6Build)),
		r.V7Pointer: []byte(fmt.Sprintf("%s %d\n", r.V7, r.V7Build)),
	}

	for _, arch := range r.Arches {
		name := models.ArtifactName(models.BranchV6, r.V6, arch)
		files[r.V6+"/"+name] = BundleZip(r.V6, arch)

		for _, v := range []string{r.V7, r.Fixed} {
			name := models.ArtifactName(models.BranchV7Latest, v, arch)
			files[v+"/"+name] = []byte("npk " + name)
		}
	}

	if r.Changelogs {
		for _, v := range []string{r.V6, r.V7, r.Fixed} {
			files[v+"/CHANGELOG"] = []byte(Changelog(v))
		}
	}
	if r.Packages {
		for _, v := range []string{r.V7, r.Fixed} {
			files[v+"/packages.csv"] = []byte("name,version\nrouteros," + v + "\n")
		}
	}
	return files
}

// ArtifactCount is the number of artifacts a full first sync downloads.
func (r Release) ArtifactCount() int {
	return 3 * len(r.Arches)
}

// Changelog returns the fixture changelog text of a version.
func Changelog(version string) string {
	return fmt.Sprintf("What's new in %s:\n*) system - fixes\n", version)
}

// BundleEntries lists the npk names inside a v6 bundle fixture.
func BundleEntries(version, arch string) []string {
	return []string{
		fmt.Sprintf("routeros-%s-%s.npk", arch, version),
		fmt.Sprintf("ntp-%s-%s.npk", version, arch),
		fmt.Sprintf("ups-%s-%s.npk", version, arch),
	}
}

// BundleZip builds an all_packages bundle holding BundleEntries.
func BundleZip(version, arch string) []byte {
	entries := make(map[string][]byte)
	for _, name := range BundleEntries(version, arch) {
		entries[name] = []byte("npk " + name)
	}
	return Zip(entries)
}

// Zip builds an in-memory zip archive.
func Zip(entries map[string][]byte) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range entries {
		f, err := w.Create(name)
		if err != nil {
			panic(fmt.Errorf("create zip entry %s: %w", name, err))
		}
		if _, err := f.Write(data); err != nil {
			panic(fmt.Errorf("write zip entry %s: %w", name, err))
		}
	}
	if err := w.Close(); err != nil {
		panic(fmt.Errorf("close zip: %w", err))
	}
	return buf.Bytes()
}
