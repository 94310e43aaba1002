package sync_test

import (
	"context"
	stdsync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/rosmirror/internal/models"
	"github.com/TheMichaelB/rosmirror/internal/services/sync"
	"github.com/TheMichaelB/rosmirror/internal/testutil"
)

type countingChecker struct {
	calls atomic.Int32
	panic bool
}

func (c *countingChecker) Check(context.Context) models.CheckResult {
	c.calls.Add(1)
	if c.panic {
		panic("boom")
	}
	return models.CheckResult{Status: models.StatusSuccess}
}

type gateFunc func(time.Time) bool

func (f gateFunc) ShouldRunNow(now time.Time) bool { return f(now) }

func startRunner(t *testing.T, r *sync.Runner) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg stdsync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.ErrorIs(t, r.Run(ctx), context.Canceled)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return cancel
}

func TestRunnerTriggerDropsWhenQueued(t *testing.T) {
	r := sync.NewRunner(&countingChecker{}, nil, time.Hour, false, testutil.NewTestLogger())

	assert.True(t, r.Trigger("manual"))
	assert.False(t, r.Trigger("manual"), "second trigger dropped while one is queued")
}

func TestRunnerRunsTriggers(t *testing.T) {
	checker := &countingChecker{}
	r := sync.NewRunner(checker, gateFunc(func(time.Time) bool { return false }), time.Hour, false, testutil.NewTestLogger())

	results := make(chan string, 4)
	r.OnResult = func(reason string, result models.CheckResult) {
		results <- reason
	}
	startRunner(t, r)

	require.True(t, r.Trigger("api"))
	select {
	case reason := <-results:
		assert.Equal(t, "api", reason)
	case <-time.After(time.Second):
		t.Fatal("trigger not handled")
	}
	assert.Equal(t, int32(1), checker.calls.Load())
}

func TestRunnerScheduleGate(t *testing.T) {
	checker := &countingChecker{}
	var allow atomic.Bool
	gate := gateFunc(func(time.Time) bool { return allow.Load() })

	r := sync.NewRunner(checker, gate, 5*time.Millisecond, false, testutil.NewTestLogger())
	startRunner(t, r)

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, checker.calls.Load(), "gate closed")

	allow.Store(true)
	assert.Eventually(t, func() bool { return checker.calls.Load() > 0 }, time.Second, 5*time.Millisecond)
}

func TestRunnerRunOnStart(t *testing.T) {
	checker := &countingChecker{}
	r := sync.NewRunner(checker, gateFunc(func(time.Time) bool { return false }), time.Hour, true, testutil.NewTestLogger())
	startRunner(t, r)

	assert.Eventually(t, func() bool { return checker.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRunnerSurvivesPanics(t *testing.T) {
	checker := &countingChecker{panic: true}
	r := sync.NewRunner(checker, nil, time.Hour, false, testutil.NewTestLogger())
	startRunner(t, r)

	require.True(t, r.Trigger("first"))
	assert.Eventually(t, func() bool { return checker.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool { return r.Trigger("second") }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return checker.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestRunnerStopsOnCancel(t *testing.T) {
	r := sync.NewRunner(&countingChecker{}, nil, time.Hour, false, testutil.NewTestLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}
