package storage_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/rosmirror/internal/events"
	"github.com/TheMichaelB/rosmirror/internal/models"
	"github.com/TheMichaelB/rosmirror/internal/storage"
)

type staticArches []string

func (a staticArches) List() []string { return a }

type memRegistry struct {
	mu sync.Mutex
	v  models.Versions
}

func (r *memRegistry) Snapshot() models.Versions {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.v
}

func (r *memRegistry) SetBranch(b models.Branch, p models.Pointer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.v.Set(b, p)
}

func newVersionStore(t *testing.T, arches []string) (*storage.VersionStore, *memRegistry) {
	t.Helper()
	files := newLocalStore(t)
	reg := &memRegistry{}
	return storage.NewVersionStore(files, staticArches(arches), reg, "7.12.1", events.Discard()), reg
}

func writeArtifacts(t *testing.T, vs *storage.VersionStore, b models.Branch, version string, arches ...string) {
	t.Helper()
	for _, arch := range arches {
		require.NoError(t, vs.Files().Write(storage.ArtifactPath(b, version, arch), []byte("payload")))
	}
}

func TestIsComplete(t *testing.T) {
	vs, _ := newVersionStore(t, []string{"arm", "arm64", "x86"})

	t.Run("missing directory", func(t *testing.T) {
		assert.False(t, vs.IsComplete("7.20.4", models.BranchV7Latest))
	})

	t.Run("missing artifact", func(t *testing.T) {
		writeArtifacts(t, vs, models.BranchV7Latest, "7.20.4", "arm", "arm64")
		assert.False(t, vs.IsComplete("7.20.4", models.BranchV7Latest))
		assert.Equal(t, []string{"x86"}, vs.MissingArtifacts("7.20.4", models.BranchV7Latest))
	})

	t.Run("zero length artifact", func(t *testing.T) {
		require.NoError(t, vs.Files().Write(storage.ArtifactPath(models.BranchV7Latest, "7.20.4", "x86"), nil))
		assert.False(t, vs.IsComplete("7.20.4", models.BranchV7Latest))
	})

	t.Run("complete", func(t *testing.T) {
		writeArtifacts(t, vs, models.BranchV7Latest, "7.20.4", "x86")
		assert.True(t, vs.IsComplete("7.20.4", models.BranchV7Latest))
	})

	t.Run("v6 bundles", func(t *testing.T) {
		writeArtifacts(t, vs, models.BranchV6, "6.49.7", "arm", "arm64", "x86")
		assert.True(t, vs.IsComplete("6.49.7", models.BranchV6))

		info, err := vs.Files().Stat("v6/6.49.7/all_packages-arm64-6.49.7.zip")
		require.NoError(t, err)
		assert.NotZero(t, info.Size)
	})
}

func TestIsCompleteMonotonic(t *testing.T) {
	vs, _ := newVersionStore(t, []string{"arm", "arm64"})
	writeArtifacts(t, vs, models.BranchV7Latest, "7.20.4", "arm", "arm64")

	large := []string{"arm", "arm64"}
	small := []string{"arm"}
	grown := []string{"arm", "arm64", "mipsbe"}

	require.True(t, vs.IsCompleteFor("7.20.4", models.BranchV7Latest, large))
	assert.True(t, vs.IsCompleteFor("7.20.4", models.BranchV7Latest, small))
	assert.False(t, vs.IsCompleteFor("7.20.4", models.BranchV7Latest, grown))
}

func TestCleanupOldVersions(t *testing.T) {
	t.Run("keeps newest", func(t *testing.T) {
		vs, _ := newVersionStore(t, []string{"arm"})
		for _, v := range []string{"7.9", "7.10", "7.18.2", "7.19", "7.20.4"} {
			writeArtifacts(t, vs, models.BranchV7Latest, v, "arm")
		}

		result := vs.CleanupOldVersions(models.BranchV7Latest, 3)
		assert.ElementsMatch(t, []string{"7.9", "7.10"}, result.Removed)
		assert.ElementsMatch(t, []string{"7.18.2", "7.19", "7.20.4"}, result.Kept)
		assert.Positive(t, result.BytesFreed)

		exists, _ := vs.Files().Exists("v7/7.10")
		assert.False(t, exists)
		exists, _ = vs.Files().Exists("v7/7.20.4")
		assert.True(t, exists)
	})

	t.Run("protects active even with keep zero", func(t *testing.T) {
		vs, _ := newVersionStore(t, []string{"arm"})
		for _, v := range []string{"7.20.4", "7.21", "7.22"} {
			writeArtifacts(t, vs, models.BranchV7Latest, v, "arm")
		}

		result := vs.CleanupOldVersions(models.BranchV7Latest, 0, "7.20.4")
		assert.ElementsMatch(t, []string{"7.21", "7.22"}, result.Removed)

		exists, _ := vs.Files().Exists("v7/7.20.4")
		assert.True(t, exists)
	})

	t.Run("unparseable directories are exempt", func(t *testing.T) {
		vs, _ := newVersionStore(t, []string{"arm"})
		writeArtifacts(t, vs, models.BranchV6, "6.49.7", "arm")
		writeArtifacts(t, vs, models.BranchV6, "6.48", "arm")
		require.NoError(t, vs.Files().EnsureDir("v6/custom-build"))

		result := vs.CleanupOldVersions(models.BranchV6, 1)
		assert.Equal(t, []string{"6.48"}, result.Removed)
		assert.Equal(t, []string{"custom-build"}, result.Exempt)

		exists, _ := vs.Files().Exists("v6/custom-build")
		assert.True(t, exists)
	})

	t.Run("pre-release ordering", func(t *testing.T) {
		vs, _ := newVersionStore(t, []string{"arm"})
		for _, v := range []string{"7.15rc3", "7.15", "7.14.3"} {
			writeArtifacts(t, vs, models.BranchV7Latest, v, "arm")
		}

		result := vs.CleanupOldVersions(models.BranchV7Latest, 1)
		assert.ElementsMatch(t, []string{"7.15rc3", "7.14.3"}, result.Removed)
	})

	t.Run("missing branch root", func(t *testing.T) {
		vs, _ := newVersionStore(t, []string{"arm"})
		result := vs.CleanupOldVersions(models.BranchV6, 3)
		assert.Empty(t, result.Removed)
	})
}

func TestSetActive(t *testing.T) {
	vs, reg := newVersionStore(t, []string{"arm"})
	writeArtifacts(t, vs, models.BranchV6, "6.49.7", "arm")
	writeArtifacts(t, vs, models.BranchV7Latest, "7.12.1", "arm")
	writeArtifacts(t, vs, models.BranchV7Latest, "7.20.4", "arm")

	assert.True(t, vs.SetActive("6.49.7"))
	assert.True(t, vs.SetActive("7.12.1"))
	assert.True(t, vs.SetActive("7.20.4"))
	assert.False(t, vs.SetActive("7.99"))
	assert.False(t, vs.SetActive("../v6"))

	v := reg.Snapshot()
	assert.Equal(t, "6.49.7", v.V6)
	assert.Equal(t, "7.12.1", v.V7Fixed)
	assert.Equal(t, "7.20.4", v.V7Latest)
}

func TestRemove(t *testing.T) {
	vs, reg := newVersionStore(t, []string{"arm"})
	writeArtifacts(t, vs, models.BranchV7Latest, "7.20.4", "arm")
	writeArtifacts(t, vs, models.BranchV7Latest, "7.19", "arm")

	t.Run("refuses active latest", func(t *testing.T) {
		reg.SetBranch(models.BranchV7Latest, models.Pointer{Version: "7.20.4"})
		assert.False(t, vs.Remove("7.20.4"))
		exists, _ := vs.Files().Exists("v7/7.20.4")
		assert.True(t, exists)
	})

	t.Run("refuses active fixed", func(t *testing.T) {
		reg.SetBranch(models.BranchV7Latest, models.Pointer{Version: "7.21"})
		reg.SetBranch(models.BranchV7Fixed, models.Pointer{Version: "7.20.4"})
		assert.False(t, vs.Remove("7.20.4"))
		exists, _ := vs.Files().Exists("v7/7.20.4")
		assert.True(t, exists)
	})

	t.Run("removes inactive", func(t *testing.T) {
		assert.True(t, vs.Remove("7.19"))
		exists, _ := vs.Files().Exists("v7/7.19")
		assert.False(t, exists)
	})

	t.Run("missing version", func(t *testing.T) {
		assert.False(t, vs.Remove("7.1"))
	})
}

func TestListVersions(t *testing.T) {
	vs, reg := newVersionStore(t, []string{"arm", "arm64"})
	writeArtifacts(t, vs, models.BranchV6, "6.49.7", "arm", "arm64")
	writeArtifacts(t, vs, models.BranchV7Latest, "7.19", "arm")
	writeArtifacts(t, vs, models.BranchV7Latest, "7.20.4", "arm", "arm64")
	reg.SetBranch(models.BranchV7Latest, models.Pointer{Version: "7.20.4"})

	list := vs.ListVersions()
	require.Len(t, list, 3)

	assert.Equal(t, "6.49.7", list[0].Version)
	assert.True(t, list[0].Complete)
	assert.Empty(t, list[0].Branch)

	assert.Equal(t, "7.20.4", list[1].Version)
	assert.Equal(t, models.BranchV7Latest, list[1].Branch)
	assert.True(t, list[1].Complete)

	assert.Equal(t, "7.19", list[2].Version)
	assert.False(t, list[2].Complete)
	assert.Positive(t, list[2].Size)
}
