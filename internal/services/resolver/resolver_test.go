package resolver_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/rosmirror/internal/models"
	"github.com/TheMichaelB/rosmirror/internal/services/resolver"
	"github.com/TheMichaelB/rosmirror/internal/state"
	"github.com/TheMichaelB/rosmirror/internal/storage"
	"github.com/TheMichaelB/rosmirror/internal/testutil"
)

// countingFiles records every filesystem access.
type countingFiles struct {
	*storage.LocalStore
	calls int
}

func (c *countingFiles) Stat(path string) (storage.FileInfo, error) {
	c.calls++
	return c.LocalStore.Stat(path)
}

func (c *countingFiles) Read(path string) ([]byte, error) {
	c.calls++
	return c.LocalStore.Read(path)
}

func (c *countingFiles) Path(path string) (string, error) {
	c.calls++
	return c.LocalStore.Path(path)
}

func setup(t *testing.T) (*resolver.Resolver, *countingFiles, *state.Active) {
	t.Helper()
	logger := testutil.NewTestLogger()

	store, err := storage.NewLocalStore(t.TempDir(), logger)
	require.NoError(t, err)

	seed := map[string]string{
		"v6/6.49.7/all_packages-arm-6.49.7.zip": "zip",
		"v6/6.49.7/routeros-arm-6.49.7.npk":     "npk6",
		"v6/6.49.7/CHANGELOG":                   "v6 changes",
		"v7/7.20.4/routeros-7.20.4-arm.npk":     "npk7",
		"v7/7.20.4/CHANGELOG":                   "v7 changes",
		"packages/7.20.csv":                     "name,version\n",
		"CHANGELOG":                             "all changes",
		"LATEST.7":                              "7.19.0 1\n",
		"notes.txt":                             "hello",
	}
	for rel, content := range seed {
		require.NoError(t, store.Write(rel, []byte(content)))
	}

	active := state.NewActive()
	active.SetBranch(models.BranchV6, models.Pointer{Version: "6.49.7", Build: 123})
	active.SetBranch(models.BranchV7Fixed, models.Pointer{Version: "7.12.1"})
	active.SetBranch(models.BranchV7Latest, models.Pointer{Version: "7.20.4", Build: 456})

	files := &countingFiles{LocalStore: store}
	return resolver.New(files, active, logger), files, active
}

func readBody(t *testing.T, res resolver.Resolution) string {
	t.Helper()
	switch res.Kind {
	case resolver.Synthesized:
		return string(res.Content)
	case resolver.Physical:
		data, err := os.ReadFile(res.Path)
		require.NoError(t, err)
		return string(data)
	}
	t.Fatalf("no body for %s", res.Kind)
	return ""
}

func TestResolve(t *testing.T) {
	r, _, _ := setup(t)

	tests := []struct {
		name     string
		version  string
		file     string
		wantKind resolver.Kind
		wantBody string
		wantType string
	}{
		{"v7 artifact", "7.20.4", "routeros-7.20.4-arm.npk", resolver.Physical, "npk7", resolver.TypeBinary},
		{"v6 bundle", "6.49.7", "all_packages-arm-6.49.7.zip", resolver.Physical, "zip", resolver.TypeZip},
		{"v6 extracted npk", "6.49.7", "routeros-arm-6.49.7.npk", resolver.Physical, "npk6", resolver.TypeBinary},
		{"v6 changelog", "6.49.7", "CHANGELOG", resolver.Physical, "v6 changes", resolver.TypeText},
		{"v7 changelog", "7.20.4", "CHANGELOG", resolver.Physical, "v7 changes", resolver.TypeText},
		{"packages by minor", "7.20.4", "packages.csv", resolver.Physical, "name,version\n", resolver.TypeCSV},
		{"aggregated changelog", "", "CHANGELOG", resolver.Physical, "all changes", resolver.TypeText},
		{"root file", "", "notes.txt", resolver.Physical, "hello", resolver.TypeText},
		{"literal pointer preferred", "", "LATEST.7", resolver.Physical, "7.19.0 1\n", resolver.TypeBinary},
		{"synthesized pointer", "", "NEWEST6.stable", resolver.Synthesized, "6.49.7 123\n", resolver.TypeBinary},
		{"pointer case-insensitive", "", "newesta7.STABLE", resolver.Synthesized, "7.20.4 456\n", resolver.TypeBinary},
		{"pointer under version", "7.20.4", "NEWEST7.long-term", resolver.Synthesized, "7.12.1 0\n", resolver.TypeBinary},
		{"bare channel", "", "stable", resolver.Synthesized, "7.20.4 456\n", resolver.TypeBinary},
		{"unknown pointer", "", "NEWEST9.stable", resolver.NotFound, "", ""},
		{"missing artifact", "7.20.4", "routeros-7.20.4-x86.npk", resolver.NotFound, "", ""},
		{"unknown version", "7.0.0", "CHANGELOG", resolver.NotFound, "", ""},
		{"missing packages", "7.12.1", "packages.csv", resolver.NotFound, "", ""},
		{"missing root file", "", "nothing.npk", resolver.NotFound, "", ""},
		{"version directory", "", "v7", resolver.NotFound, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(tt.version, tt.file)
			require.Equal(t, tt.wantKind, res.Kind, res.Kind.String())
			if tt.wantKind == resolver.NotFound {
				return
			}
			assert.Equal(t, tt.wantBody, readBody(t, res))
			assert.Equal(t, tt.wantType, res.ContentType)
			assert.Equal(t, tt.file, res.Name)
		})
	}
}

func TestResolveForbiddenWithoutFilesystemAccess(t *testing.T) {
	r, files, _ := setup(t)

	tests := []struct {
		name    string
		version string
		file    string
	}{
		{"dotdot file", "", "../../etc/passwd"},
		{"dotdot version", "..", "CHANGELOG"},
		{"nested dotdot", "7.20.4", "../../../etc/passwd"},
		{"slash", "7.20.4", "sub/file.npk"},
		{"backslash", "", `..\secret`},
		{"backslash version", `7.20.4\x`, "file.npk"},
		{"pointer-looking traversal", "", "latest./../x"},
		{"empty file", "7.20.4", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := files.calls
			res := r.Resolve(tt.version, tt.file)
			assert.Equal(t, resolver.Forbidden, res.Kind)
			assert.Equal(t, before, files.calls, "filesystem touched")
		})
	}
}

func TestResolvePointerFollowsActiveVersions(t *testing.T) {
	r, _, active := setup(t)

	active.SetBranch(models.BranchV7Latest, models.Pointer{Version: "7.21.0", Build: 789})
	res := r.Resolve("", "NEWESTa7.stable")
	require.Equal(t, resolver.Synthesized, res.Kind)
	assert.Equal(t, "7.21.0 789\n", string(res.Content))
	assert.Equal(t, int64(len(res.Content)), res.Size)
}

func TestResolvePointerWithoutActiveVersion(t *testing.T) {
	r, _, active := setup(t)
	active.Seed(models.HistoryEntry{})

	assert.Equal(t, resolver.NotFound, r.Resolve("", "NEWEST6.stable").Kind)
}

func TestAttachment(t *testing.T) {
	assert.False(t, resolver.Attachment("CHANGELOG"))
	assert.True(t, resolver.Attachment("routeros-7.20.4.npk"))
	assert.True(t, resolver.Attachment("packages.csv"))
	assert.True(t, resolver.Attachment("NEWEST6.stable"))
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"routeros-7.20.4.npk":         resolver.TypeBinary,
		"all_packages-x86-6.49.7.ZIP": resolver.TypeZip,
		"notes.txt":                   resolver.TypeText,
		"sync.log":                    resolver.TypeText,
		"CHANGELOG":                   resolver.TypeText,
		"packages.csv":                resolver.TypeCSV,
		"NEWEST6.stable":              resolver.TypeBinary,
	}
	for name, want := range tests {
		assert.Equal(t, want, resolver.ContentType(name), name)
	}
}
