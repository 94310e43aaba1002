package diagnostics_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/rosmirror/internal/config"
	"github.com/TheMichaelB/rosmirror/internal/models"
	"github.com/TheMichaelB/rosmirror/internal/services/diagnostics"
	"github.com/TheMichaelB/rosmirror/internal/settings"
	"github.com/TheMichaelB/rosmirror/internal/state"
	"github.com/TheMichaelB/rosmirror/internal/storage"
	"github.com/TheMichaelB/rosmirror/internal/testutil"
	"github.com/TheMichaelB/rosmirror/internal/transport"
)

func TestRun(t *testing.T) {
	logger := testutil.NewTestLogger()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = dir
	cfg.Upstream.BaseURL = "https://upgrade.test/routeros"
	cfg.Upstream.ProbeURL = "https://upgrade.test/routeros/NEWESTa7.stable"

	arches := settings.LoadArches(cfg.Storage.ArchesFile(), logger)
	_, err := arches.Update([]string{"arm"})
	require.NoError(t, err)

	files, err := storage.NewLocalStore(cfg.Storage.MirrorRoot(), logger)
	require.NoError(t, err)
	versions := storage.NewVersionStore(files, arches, state.NewActive(), cfg.Sync.FixedV7Version, logger)

	require.NoError(t, files.Write(storage.ArtifactPath(models.BranchV7Latest, "7.20.4", "arm"), []byte("npk")))
	require.NoError(t, files.EnsureDir(storage.VersionDir(models.BranchV6, "6.49.7")))

	up := transport.NewMockUpstream()
	up.SetText(cfg.Upstream.PointerURL("NEWESTa7.stable"), "7.20.4 456\n")

	report := diagnostics.New(up, cfg.Upstream, versions, logger).Run(context.Background())

	require.Len(t, report.Probes, 3)
	assert.True(t, report.Reachable)
	assert.True(t, report.Probes[0].OK)
	assert.False(t, report.Probes[1].OK, "v6 pointer not published")
	assert.Equal(t, cfg.Upstream.PointerURL("NEWEST6.stable"), report.Probes[1].URL)

	assert.Equal(t, 2, report.Versions)
	assert.Equal(t, []string{"v6/6.49.7"}, report.Incomplete)
	assert.Equal(t, int64(3), report.DiskUsage)
	assert.Equal(t, []string{"arm"}, report.Arches)
	assert.Equal(t, files.BaseDir(), report.MirrorRoot)
}

func TestRunOffline(t *testing.T) {
	logger := testutil.NewTestLogger()
	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = t.TempDir()

	files, err := storage.NewLocalStore(cfg.Storage.MirrorRoot(), logger)
	require.NoError(t, err)
	arches := settings.LoadArches(cfg.Storage.ArchesFile(), logger)
	versions := storage.NewVersionStore(files, arches, state.NewActive(), cfg.Sync.FixedV7Version, logger)

	up := transport.NewMockUpstream()
	up.SetOffline(true)

	report := diagnostics.New(up, cfg.Upstream, versions, logger).Run(context.Background())

	assert.False(t, report.Reachable)
	assert.Zero(t, report.Versions)
	assert.Equal(t, "0 B", report.DiskHuman)
}
