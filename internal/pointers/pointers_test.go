package pointers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/rosmirror/internal/models"
	"github.com/TheMichaelB/rosmirror/internal/pointers"
)

func testVersions() models.Versions {
	return models.Versions{
		V6:            "6.49.7",
		V6Build:       123,
		V7Fixed:       "7.12.1",
		V7Latest:      "7.20.4",
		V7LatestBuild: 456,
	}
}

func TestBuildGroups(t *testing.T) {
	m := pointers.Build(testVersions())

	tests := []struct {
		name    string
		version string
		build   int64
	}{
		{"LATEST.6", "6.49.7", 123},
		{"NEWEST6.stable", "6.49.7", 123},
		{"NEWESTa6.long-term", "6.49.7", 123},
		{"NEWEST6.upgrade", "7.20.4", 456},
		{"NEWESTa7.upgrade", "7.20.4", 456},
		{"NEWESTa7.long-term", "7.12.1", 0},
		{"long-term", "7.12.1", 0},
		{"NEWESTa7.stable", "7.20.4", 456},
		{"LATEST.7", "7.20.4", 456},
		{"NEWEST6.development", "7.20.4", 456},
		{"NEWESTa6.testing", "7.20.4", 456},
		{"NEWEST7.rc", "7.20.4", 456},
		{"NEWESTa7.development", "7.20.4", 456},
		{"testing", "7.20.4", 456},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := m.Lookup(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.version, e.Version)
			assert.Equal(t, tt.build, e.Build)
		})
	}
}

func TestLookupCaseInsensitive(t *testing.T) {
	m := pointers.Build(testVersions())

	for _, name := range []string{"newesta7.stable", "NEWESTA7.STABLE", "NeWeStA7.StAbLe"} {
		e, ok := m.Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, "NEWESTa7.stable", e.Name)
		assert.Equal(t, "7.20.4 456\n", e.Content())
	}

	_, ok := m.Lookup("NEWEST9.stable")
	assert.False(t, ok)
}

func TestBuildTotal(t *testing.T) {
	m := pointers.Build(testVersions())
	require.NotZero(t, m.Len())

	for _, e := range m.Entries() {
		assert.NotEmpty(t, e.Version, e.Name)
		assert.True(t, pointers.IsPointerName(e.Name), e.Name)
	}
}

func TestBuildDeterministic(t *testing.T) {
	a := pointers.Build(testVersions())
	b := pointers.Build(testVersions())
	assert.Equal(t, a.Entries(), b.Entries())
}

func TestFiles(t *testing.T) {
	m := pointers.Build(testVersions())
	for _, e := range m.Files() {
		assert.Contains(t, e.Name, ".")
	}
	assert.Less(t, len(m.Files()), m.Len())
}

func TestContentFormat(t *testing.T) {
	m := pointers.Build(testVersions())

	e, ok := m.Lookup("LATEST.6")
	require.True(t, ok)
	assert.Equal(t, "6.49.7 123\n", e.Content())
}

func TestIsPointerName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"LATEST.6", true},
		{"latest.7", true},
		{"NEWEST6.stable", true},
		{"NEWESTa6.upgrade", true},
		{"newesta7.testing", true},
		{"stable", true},
		{"long-term", true},
		{"development", true},
		{"CHANGELOG", false},
		{"packages.csv", false},
		{"routeros-7.20.4-arm64.npk", false},
		{"stable.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pointers.IsPointerName(tt.name))
		})
	}
}

func TestNames(t *testing.T) {
	m := pointers.Build(testVersions())
	names := m.Names()

	assert.Len(t, names, m.Len())
	assert.Contains(t, names, "LATEST.6")
	assert.Contains(t, names, "NEWESTa7.stable")
	assert.IsIncreasing(t, names)
}
