package sync_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/rosmirror/internal/models"
	"github.com/TheMichaelB/rosmirror/internal/services/sync"
	"github.com/TheMichaelB/rosmirror/internal/testutil"
)

func newService(t *testing.T, h *harness) *sync.Service {
	t.Helper()
	runner := sync.NewRunner(h.engine, nil, 0, false, testutil.NewTestLogger())
	return sync.NewService(h.engine, runner, h.versions, h.history, h.active, h.cfg.Sync.KeepVersions, testutil.NewTestLogger())
}

func upgradedHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t)
	require.Equal(t, models.StatusSuccess, h.engine.Check(context.Background()).Status)

	next := h.release
	next.V7 = "7.21.0"
	next.V7Build = 789
	h.publish(next.Files())
	require.Equal(t, models.StatusSuccess, h.engine.Check(context.Background()).Status)
	return h
}

func TestServiceStatus(t *testing.T) {
	h := newHarness(t)
	svc := newService(t, h)

	report := svc.Status()
	assert.False(t, report.Running)
	assert.Nil(t, report.LastResult)
	assert.Empty(t, report.LastCheck)

	svc.Check(context.Background())

	report = svc.Status()
	require.NotNil(t, report.LastResult)
	assert.Equal(t, models.StatusSuccess, report.LastResult.Status)
	assert.NotEmpty(t, report.LastCheck)
	assert.Equal(t, "7.20.4", report.Versions.V7Latest)
	assert.Equal(t, sync.PhaseIdle, report.Progress.Phase)
}

func TestServiceHistory(t *testing.T) {
	h := upgradedHarness(t)
	svc := newService(t, h)

	all, err := svc.History(0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "7.21.0", all[0].V7Stable, "newest first")
	assert.Equal(t, "7.20.4", all[1].V7Stable)

	limited, err := svc.History(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestServiceActivate(t *testing.T) {
	h := upgradedHarness(t)
	svc := newService(t, h)

	require.NoError(t, svc.Activate(context.Background(), "7.20.4"))

	assert.Equal(t, "7.20.4", h.active.Snapshot().V7Latest)
	assert.Equal(t, "7.20.4 0\n", h.read(t, "NEWESTa7.stable"))
	assert.Equal(t, 3, h.history.Len(), "activation is recorded")

	err := svc.Activate(context.Background(), "7.99.0")
	assert.ErrorIs(t, err, models.ErrVersionMissing)
}

func TestServiceActivateFixedVersion(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, models.StatusSuccess, h.engine.Check(context.Background()).Status)
	svc := newService(t, h)

	require.NoError(t, svc.Activate(context.Background(), "7.12.1"))

	snap := h.active.Snapshot()
	assert.Equal(t, "7.12.1", snap.V7Fixed)
	assert.Equal(t, "7.20.4", snap.V7Latest, "latest untouched")
}

func TestServiceRemove(t *testing.T) {
	h := upgradedHarness(t)
	svc := newService(t, h)

	tests := []struct {
		name    string
		version string
		wantErr error
	}{
		{"active latest", "7.21.0", models.ErrVersionActive},
		{"active fixed", "7.12.1", models.ErrVersionActive},
		{"active v6", "6.49.7", models.ErrVersionActive},
		{"unknown", "7.0.0", models.ErrVersionMissing},
		{"traversal", "..", models.ErrVersionMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, svc.Remove(tt.version), tt.wantErr)
		})
	}

	require.NoError(t, svc.Remove("7.20.4"))
	assert.False(t, h.exists("v7/7.20.4"))
}

func TestServiceCleanup(t *testing.T) {
	h := upgradedHarness(t)
	h.cfg.Sync.KeepVersions = 0
	svc := newService(t, h)

	results, err := svc.Cleanup()
	require.NoError(t, err)

	assert.Equal(t, []string{"7.20.4"}, results[models.BranchV7Latest].Removed)
	assert.Empty(t, results[models.BranchV6].Removed)
	assert.True(t, h.exists("v7/7.21.0"))
	assert.True(t, h.exists("v7/7.12.1"))
}

func TestServiceTrigger(t *testing.T) {
	h := newHarness(t)
	svc := newService(t, h)

	assert.True(t, svc.Trigger("api"))
	assert.False(t, svc.Trigger("api"))

	bare := sync.NewService(h.engine, nil, h.versions, h.history, h.active, 3, testutil.NewTestLogger())
	assert.False(t, bare.Trigger("api"))
}
