package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"

	"github.com/TheMichaelB/rosmirror/internal/archive"
	"github.com/TheMichaelB/rosmirror/internal/config"
	"github.com/TheMichaelB/rosmirror/internal/events"
	"github.com/TheMichaelB/rosmirror/internal/metrics"
	"github.com/TheMichaelB/rosmirror/internal/models"
	"github.com/TheMichaelB/rosmirror/internal/settings"
	"github.com/TheMichaelB/rosmirror/internal/state"
	"github.com/TheMichaelB/rosmirror/internal/storage"
	"github.com/TheMichaelB/rosmirror/internal/transport"
)

// Phases reported through Progress.
const (
	PhaseIdle         = "idle"
	PhaseConnectivity = "connectivity"
	PhaseResolving    = "resolving"
	PhaseDownloading  = "downloading"
	PhasePublishing   = "publishing"
	PhasePersisting   = "persisting"
)

// Engine runs check cycles against the vendor server.
type Engine struct {
	upstream transport.Upstream
	versions *storage.VersionStore
	history  state.Store
	active   *state.Active
	status   *state.StatusFile
	archive  *archive.Processor
	prefixes *settings.DeletePrefixes
	metrics  metrics.Metrics
	logger   *events.Logger

	upstreamCfg  config.UpstreamConfig
	fixedVersion string
	keepVersions int
	checkTimeout time.Duration

	now func() time.Time

	// Single-flight guard
	running  atomic.Bool
	progress atomic.Value // Progress

	mu       sync.Mutex
	cancelFn context.CancelFunc
}

// Dependencies are the collaborators of an Engine.
type Dependencies struct {
	Upstream transport.Upstream
	Versions *storage.VersionStore
	History  state.Store
	Active   *state.Active
	Status   *state.StatusFile
	Archive  *archive.Processor
	Prefixes *settings.DeletePrefixes
	Metrics  metrics.Metrics
}

// Progress describes the check currently running.
type Progress struct {
	CheckID   string        `json:"check_id,omitempty"`
	Phase     string        `json:"phase"`
	Branch    models.Branch `json:"branch,omitempty"`
	StartTime time.Time     `json:"start_time,omitempty"`
}

type target struct {
	branch  models.Branch
	pointer models.Pointer
}

// NewEngine creates a sync engine.
func NewEngine(deps Dependencies, cfg *config.Config, logger *events.Logger) *Engine {
	m := deps.Metrics
	if m == nil {
		m = metrics.Noop{}
	}

	e := &Engine{
		upstream:     deps.Upstream,
		versions:     deps.Versions,
		history:      deps.History,
		active:       deps.Active,
		status:       deps.Status,
		archive:      deps.Archive,
		prefixes:     deps.Prefixes,
		metrics:      m,
		logger:       logger.WithField("component", "sync_engine"),
		upstreamCfg:  cfg.Upstream,
		fixedVersion: cfg.Sync.FixedV7Version,
		keepVersions: cfg.Sync.KeepVersions,
		checkTimeout: cfg.Sync.CheckTimeout,
		now:          time.Now,
	}
	e.progress.Store(Progress{Phase: PhaseIdle})
	return e
}

// SetClock replaces the time source.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Running reports whether a check is in progress.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Progress returns the state of the running check.
func (e *Engine) Progress() Progress {
	return e.progress.Load().(Progress)
}

// Cancel aborts the running check, if any.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancelFn != nil {
		e.cancelFn()
	}
}

// Check runs one full check cycle. Concurrent calls return
// already_in_progress without touching any state.
func (e *Engine) Check(ctx context.Context) (result models.CheckResult) {
	start := e.now()
	if !e.running.CompareAndSwap(false, true) {
		e.logger.Info("Check already in progress")
		return models.CheckResult{
			Status:    models.StatusInProgress,
			Message:   models.ErrSyncInProgress.Error(),
			Versions:  e.active.Snapshot(),
			StartedAt: start,
		}
	}
	defer e.running.Store(false)

	id := uuid.NewString()
	ctx = events.WithCheckID(events.WithLogger(ctx, e.logger), id)
	logger := events.FromContext(ctx)

	if e.checkTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, e.checkTimeout)
		defer cancelTimeout()
	}

	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancelFn = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.cancelFn = nil
		e.mu.Unlock()
		cancel()
	}()

	result = models.CheckResult{ID: id, StartedAt: start}
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", fmt.Sprint(r)).Error("Check panicked")
			result.Status = models.StatusError
			result.Message = fmt.Sprintf("internal error: %v", r)
		}
		e.finish(logger, &result)
	}()

	e.progress.Store(Progress{CheckID: id, Phase: PhaseConnectivity, StartTime: start})
	logger.Info("Starting check")

	batch, err := e.run(ctx)
	result.Downloaded = batch.Downloaded()
	result.Failed = batch.Failed()
	result.Status = models.Classify(err)
	result.Message = message(result, err)
	return result
}

// Restore seeds the active versions from the newest history entry and the
// last check from status.json. Incomplete active versions are reported and
// left for the next check to repair.
func (e *Engine) Restore() ([]models.Branch, error) {
	e.active.Restore(e.status.Load())

	entry, ok, err := state.Latest(e.history)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if !ok {
		e.logger.Info("No version history, starting empty")
		return nil, nil
	}
	e.active.Seed(entry)

	var incomplete []models.Branch
	snap := e.active.Snapshot()
	for _, b := range models.Branches {
		p := snap.Get(b)
		if p.Version == "" {
			continue
		}
		if !e.versions.IsComplete(p.Version, b) {
			incomplete = append(incomplete, b)
			e.logger.WithFields(map[string]interface{}{
				"branch":  b,
				"version": p.Version,
				"missing": len(e.versions.MissingArtifacts(p.Version, b)),
			}).Warn("Active version is incomplete")
		}
	}

	e.logger.WithFields(map[string]interface{}{
		"v6":        snap.V6,
		"v7_fixed":  snap.V7Fixed,
		"v7_latest": snap.V7Latest,
	}).Info("Restored active versions")

	return incomplete, nil
}

func (e *Engine) run(ctx context.Context) (models.BatchResult, error) {
	var batch models.BatchResult

	if !e.upstream.CheckConnectivity(ctx) {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		return batch, models.ErrUnreachable
	}

	e.setPhase(PhaseResolving, "")
	targets, err := e.resolve(ctx)
	if err != nil {
		return batch, err
	}

	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		branchResult, err := e.syncBranch(ctx, t.branch, t.pointer)
		batch.Merge(branchResult)
		if err != nil {
			return batch, err
		}
	}

	e.setPhase(PhasePublishing, "")
	if err := e.publish(ctx); err != nil {
		return batch, err
	}
	if err := ctx.Err(); err != nil {
		return batch, err
	}

	e.setPhase(PhasePersisting, "")
	entry := models.NewHistoryEntry(e.now(), e.active.Snapshot())
	if err := e.history.Append(entry); err != nil {
		return batch, &models.SyncError{
			Code:  models.ErrCodeState,
			Phase: PhasePersisting,
			Err:   err,
		}
	}

	return batch, nil
}

// resolve reads both pointer files concurrently.
func (e *Engine) resolve(ctx context.Context) ([]target, error) {
	var (
		wg         conc.WaitGroup
		v6, v7     models.Pointer
		err6, err7 error
	)

	wg.Go(func() {
		v6, err6 = e.upstream.ResolveVersion(ctx, e.upstreamCfg.PointerURL(e.upstreamCfg.V6Pointer))
	})
	wg.Go(func() {
		v7, err7 = e.upstream.ResolveVersion(ctx, e.upstreamCfg.PointerURL(e.upstreamCfg.V7Pointer))
	})
	wg.Wait()

	if err6 != nil {
		err6 = fmt.Errorf("resolve %s: %w", models.BranchV6, err6)
	}
	if err7 != nil {
		err7 = fmt.Errorf("resolve %s: %w", models.BranchV7Latest, err7)
	}
	if err := errors.Join(err6, err7); err != nil {
		return nil, err
	}

	events.FromContext(ctx).WithFields(map[string]interface{}{
		"v6":        v6.Version,
		"v7_fixed":  e.fixedVersion,
		"v7_latest": v7.Version,
	}).Info("Resolved upstream versions")

	return []target{
		{branch: models.BranchV6, pointer: v6},
		{branch: models.BranchV7Fixed, pointer: models.Pointer{Version: e.fixedVersion}},
		{branch: models.BranchV7Latest, pointer: v7},
	}, nil
}

func (e *Engine) syncBranch(ctx context.Context, b models.Branch, p models.Pointer) (models.BatchResult, error) {
	var batch models.BatchResult
	ctx = events.WithBranch(ctx, string(b))
	logger := events.FromContext(ctx).WithField("version", p.Version)

	current := e.active.Snapshot().Get(b)
	if current.Version == p.Version && e.versions.IsComplete(p.Version, b) {
		if current.Build != p.Build {
			e.active.SetBranch(b, p)
		}
		logger.Debug("Branch up to date")
		return batch, nil
	}

	e.setPhase(PhaseDownloading, b)
	logger.WithField("previous", current.Version).Info("Syncing branch")

	if err := e.versions.EnsureVersionDir(b, p.Version); err != nil {
		return batch, &models.SyncError{
			Code:   models.ErrCodeStorage,
			Phase:  PhaseDownloading,
			Branch: b,
			Path:   storage.VersionDir(b, p.Version),
			Err:    err,
		}
	}

	batch = e.downloadArtifacts(ctx, b, p.Version)
	e.metrics.AddDownloads(string(b), batch.Downloaded(), batch.Bytes())
	e.metrics.AddDownloadFailures(string(b), batch.Failed())
	if err := ctx.Err(); err != nil {
		return batch, err
	}

	e.fetchChangelog(ctx, b, p.Version)
	e.active.SetBranch(b, p)

	if b != models.BranchV7Fixed {
		snap := e.active.Snapshot()
		cleanup := e.versions.CleanupOldVersions(b, e.keepVersions, snap.V6, snap.V7Fixed, snap.V7Latest)
		e.metrics.AddBytesFreed(cleanup.BytesFreed)
	}

	logger.WithFields(map[string]interface{}{
		"downloaded": batch.Downloaded(),
		"failed":     batch.Failed(),
		"size":       humanize.Bytes(uint64(batch.Bytes())),
	}).Info("Branch synced")

	return batch, nil
}

// downloadArtifacts fetches one artifact per allowed architecture in parallel.
func (e *Engine) downloadArtifacts(ctx context.Context, b models.Branch, version string) models.BatchResult {
	var prefixes []string
	if b.Bundled() {
		var err error
		if prefixes, err = e.prefixes.Load(); err != nil {
			events.FromContext(ctx).WithError(err).Warn("Load delete prefixes failed")
		}
	}

	p := pool.NewWithResults[models.ItemResult]()
	for _, arch := range e.versions.Arches() {
		arch := arch
		p.Go(func() models.ItemResult {
			return e.downloadArtifact(ctx, b, version, arch, prefixes)
		})
	}

	items := p.Wait()
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return models.BatchResult{Items: items}
}

func (e *Engine) downloadArtifact(ctx context.Context, b models.Branch, version, arch string, prefixes []string) models.ItemResult {
	name := models.ArtifactName(b, version, arch)
	rel := storage.ArtifactPath(b, version, arch)
	item := models.ItemResult{Name: name, Path: rel}
	logger := events.FromContext(ctx).WithField("file", name)
	files := e.versions.Files()

	if info, err := files.Stat(rel); err == nil && info.Size > 0 {
		item.Skipped = true
		if b.Bundled() {
			e.postProcess(ctx, b, version, rel, prefixes)
		}
		return item
	}

	url := e.upstreamCfg.FileURL(version, name)
	if !e.upstream.FileExists(ctx, url) {
		if err := ctx.Err(); err != nil {
			item.Err = err
			return item
		}
		logger.Info("Artifact not published upstream")
		item.Missing = true
		return item
	}

	f, err := files.Create(rel)
	if err != nil {
		item.Err = &models.SyncError{Code: models.ErrCodeStorage, Phase: PhaseDownloading, Branch: b, Path: rel, Err: err}
		logger.WithError(err).Error("Create artifact file failed")
		return item
	}

	n, err := e.upstream.Download(ctx, url, f)
	if err == nil && n == 0 {
		err = errors.New("empty response body")
	}
	if err == nil {
		err = f.Commit()
	}
	if err != nil {
		f.Abort()
		item.Err = &models.SyncError{Code: models.ErrCodeNetwork, Phase: PhaseDownloading, Branch: b, Path: rel, Err: err}
		logger.WithError(err).Warn("Download failed")
		return item
	}

	item.Bytes = n
	logger.WithField("size", humanize.Bytes(uint64(n))).Info("Downloaded artifact")

	if b.Bundled() {
		e.postProcess(ctx, b, version, rel, prefixes)
	}
	return item
}

func (e *Engine) postProcess(ctx context.Context, b models.Branch, version, rel string, prefixes []string) {
	logger := events.FromContext(ctx).WithField("file", rel)
	files := e.versions.Files()

	zipPath, err := files.Path(rel)
	if err != nil {
		logger.WithError(err).Warn("Resolve bundle path failed")
		return
	}
	destDir, err := files.Path(storage.VersionDir(b, version))
	if err != nil {
		logger.WithError(err).Warn("Resolve version path failed")
		return
	}

	if res := e.archive.Process(zipPath, destDir, prefixes); !res.OK() {
		logger.WithError(res.Err()).Warn("Bundle post-processing incomplete")
	}
}

func (e *Engine) fetchChangelog(ctx context.Context, b models.Branch, version string) {
	logger := events.FromContext(ctx)
	text, err := e.upstream.DownloadText(ctx, e.upstreamCfg.FileURL(version, storage.ChangelogFile))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			logger.Info("No changelog published")
		} else {
			logger.WithError(err).Warn("Fetch changelog failed")
		}
		return
	}

	if err := e.versions.WriteFile(storage.ChangelogPath(b, version), []byte(text)); err != nil {
		logger.WithError(err).Warn("Save changelog failed")
	}
}

func (e *Engine) finish(logger *events.Logger, result *models.CheckResult) {
	result.Duration = e.now().Sub(result.StartedAt)
	result.Versions = e.active.Snapshot()

	e.active.RecordCheck(*result)
	if err := e.status.Save(e.active.Status()); err != nil {
		logger.WithError(err).Warn("Save check status failed")
	}
	e.metrics.ObserveCheck(string(result.Status), result.Duration.Seconds())
	e.progress.Store(Progress{Phase: PhaseIdle})

	logger = logger.WithFields(map[string]interface{}{
		"status":     result.Status,
		"downloaded": result.Downloaded,
		"failed":     result.Failed,
		"duration":   result.Duration,
	})
	switch {
	case result.Status == models.StatusSuccess:
		logger.Info("Check completed")
	case result.Status.Soft():
		logger.Warn(result.Message)
	default:
		logger.Error(result.Message)
	}
}

func (e *Engine) setPhase(phase string, b models.Branch) {
	p := e.Progress()
	p.Phase = phase
	p.Branch = b
	e.progress.Store(p)
}

func message(result models.CheckResult, err error) string {
	switch result.Status {
	case models.StatusSuccess:
		return fmt.Sprintf("check complete: %d downloaded, %d failed", result.Downloaded, result.Failed)
	case models.StatusNetworkUnavailable:
		return "upstream server is unreachable"
	case models.StatusTimeout:
		return fmt.Sprintf("check timed out: %v", err)
	default:
		return err.Error()
	}
}

// Exclusive runs fn while holding the check guard, so administrative
// changes never interleave with a running check.
func (e *Engine) Exclusive(fn func() error) error {
	if !e.running.CompareAndSwap(false, true) {
		return models.ErrSyncInProgress
	}
	defer e.running.Store(false)
	return fn()
}

// Republish rewrites pointer files and the aggregated changelog from the
// active versions and records them in history. It makes no network calls.
func (e *Engine) Republish(ctx context.Context) error {
	ctx = events.WithLogger(ctx, e.logger)
	snap := e.active.Snapshot()

	if err := e.writePointers(ctx, snap); err != nil {
		return err
	}
	if err := e.writeChangelog(ctx, snap); err != nil {
		e.logger.WithError(err).Warn("Write aggregated changelog failed")
	}
	if err := e.history.Append(models.NewHistoryEntry(e.now(), snap)); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}
