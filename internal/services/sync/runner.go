package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/TheMichaelB/rosmirror/internal/events"
	"github.com/TheMichaelB/rosmirror/internal/models"
)

// Checker runs one check cycle.
type Checker interface {
	Check(ctx context.Context) models.CheckResult
}

// Gate decides whether a periodic tick should start a check.
type Gate interface {
	ShouldRunNow(now time.Time) bool
}

// Runner drives checks from the poll ticker and from manual triggers.
// Triggers go through a single-slot channel: a trigger that arrives while
// one is already queued is dropped.
type Runner struct {
	checker    Checker
	gate       Gate
	interval   time.Duration
	runOnStart bool
	triggers   chan string
	logger     *events.Logger

	// OnResult, if set, is called after every check the runner starts.
	OnResult func(reason string, result models.CheckResult)
}

// NewRunner creates a runner. A nil gate runs a check on every tick.
func NewRunner(checker Checker, gate Gate, interval time.Duration, runOnStart bool, logger *events.Logger) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Runner{
		checker:    checker,
		gate:       gate,
		interval:   interval,
		runOnStart: runOnStart,
		triggers:   make(chan string, 1),
		logger:     logger.WithField("component", "sync_runner"),
	}
}

// Trigger queues a check. It reports false when a trigger is already queued.
func (r *Runner) Trigger(reason string) bool {
	select {
	case r.triggers <- reason:
		r.logger.WithField("reason", reason).Debug("Check queued")
		return true
	default:
		r.logger.WithField("reason", reason).Debug("Check already queued")
		return false
	}
}

// Run loops until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.WithField("interval", r.interval).Info("Runner started")

	if r.runOnStart {
		r.run(ctx, "startup")
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Runner stopped")
			return ctx.Err()

		case reason := <-r.triggers:
			r.run(ctx, reason)

		case now := <-ticker.C:
			if r.gate == nil || r.gate.ShouldRunNow(now) {
				r.run(ctx, "schedule")
			}
		}
	}
}

func (r *Runner) run(ctx context.Context, reason string) {
	logger := r.logger.WithField("reason", reason)

	defer func() {
		if rec := recover(); rec != nil {
			logger.WithField("panic", fmt.Sprint(rec)).Error("Check crashed")
		}
	}()

	result := r.checker.Check(ctx)
	logger.WithFields(map[string]interface{}{
		"check_id": result.ID,
		"status":   result.Status,
	}).Debug("Runner check finished")

	if r.OnResult != nil {
		r.OnResult(reason, result)
	}
}
