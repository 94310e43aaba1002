package client

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/sourcegraph/conc"

	"github.com/TheMichaelB/rosmirror/internal/archive"
	"github.com/TheMichaelB/rosmirror/internal/config"
	"github.com/TheMichaelB/rosmirror/internal/events"
	"github.com/TheMichaelB/rosmirror/internal/metrics"
	"github.com/TheMichaelB/rosmirror/internal/schedule"
	"github.com/TheMichaelB/rosmirror/internal/server"
	"github.com/TheMichaelB/rosmirror/internal/services/diagnostics"
	"github.com/TheMichaelB/rosmirror/internal/services/resolver"
	"github.com/TheMichaelB/rosmirror/internal/services/sync"
	"github.com/TheMichaelB/rosmirror/internal/settings"
	"github.com/TheMichaelB/rosmirror/internal/state"
	"github.com/TheMichaelB/rosmirror/internal/storage"
	"github.com/TheMichaelB/rosmirror/internal/transport"
)

// Client wires every rosmirror component together.
type Client struct {
	Sync        *sync.Service
	Engine      *sync.Engine
	Runner      *sync.Runner
	Resolver    *resolver.Resolver
	Diagnostics *diagnostics.Service
	Versions    *storage.VersionStore
	Arches      *settings.Arches
	Prefixes    *settings.DeletePrefixes
	Schedule    *schedule.Schedule
	Active      *state.Active
	History     state.Store

	config         *config.Config
	logger         *events.Logger
	logs           *events.Ring
	metrics        metrics.Metrics
	metricsHandler http.Handler
}

// Option customizes a Client.
type Option func(*options)

type options struct {
	upstream transport.Upstream
	prober   transport.Prober
	metrics  metrics.Metrics
	logs     *events.Ring
}

// WithUpstream replaces the vendor HTTP client.
func WithUpstream(up transport.Upstream) Option {
	return func(o *options) { o.upstream = up }
}

// WithProber replaces the diagnostics probe client.
func WithProber(p transport.Prober) Option {
	return func(o *options) { o.prober = p }
}

// WithMetrics replaces the metrics sink.
func WithMetrics(m metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogRing exposes the given ring through the log viewer.
func WithLogRing(r *events.Ring) Option {
	return func(o *options) { o.logs = r }
}

// New creates a new rosmirror client.
func New(cfg *config.Config, logger *events.Logger, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("prepare directories: %w", err)
	}

	// Create transport
	if o.upstream == nil {
		o.upstream = transport.NewHTTPClient(&cfg.Upstream, logger)
	}
	if o.prober == nil {
		o.prober = transport.NewProbeClient(&cfg.Upstream, logger)
	}

	var metricsHandler http.Handler
	if o.metrics == nil {
		if cfg.Server.EnableMetrics {
			o.metrics = metrics.NewProm("rosmirror")
			metricsHandler = metrics.Handler()
		} else {
			o.metrics = metrics.Noop{}
		}
	}

	// Create stores
	files, err := storage.NewLocalStore(cfg.Storage.MirrorRoot(), logger)
	if err != nil {
		return nil, err
	}

	history, err := state.Open(cfg.Storage.HistoryBackend, cfg.Storage.MirrorRoot(), logger)
	if err != nil {
		return nil, err
	}

	active := state.NewActive()
	arches := settings.LoadArches(cfg.Storage.ArchesFile(), logger)
	prefixes := settings.NewDeletePrefixes(cfg.Storage.DeletePrefixesFile())
	sched := schedule.Load(cfg.Storage.ScheduleFile(), logger)
	versions := storage.NewVersionStore(files, arches, active, cfg.Sync.FixedV7Version, logger)

	// Create services
	engine := sync.NewEngine(sync.Dependencies{
		Upstream: o.upstream,
		Versions: versions,
		History:  history,
		Active:   active,
		Status:   state.NewStatusFile(filepath.Join(files.BaseDir(), storage.StatusFile)),
		Archive:  archive.NewProcessor(logger),
		Prefixes: prefixes,
		Metrics:  o.metrics,
	}, cfg, logger)
	runner := sync.NewRunner(engine, sched, cfg.Sync.PollInterval, cfg.Sync.RunOnStart, logger)
	syncService := sync.NewService(engine, runner, versions, history, active, cfg.Sync.KeepVersions, logger)

	return &Client{
		Sync:           syncService,
		Engine:         engine,
		Runner:         runner,
		Resolver:       resolver.New(files, active, logger),
		Diagnostics:    diagnostics.New(o.prober, cfg.Upstream, versions, logger),
		Versions:       versions,
		Arches:         arches,
		Prefixes:       prefixes,
		Schedule:       sched,
		Active:         active,
		History:        history,
		config:         cfg,
		logger:         logger,
		logs:           o.logs,
		metrics:        o.metrics,
		metricsHandler: metricsHandler,
	}, nil
}

// Restore loads the persisted state. It must run before the first check.
func (c *Client) Restore() error {
	incomplete, err := c.Engine.Restore()
	if err != nil {
		return err
	}
	if len(incomplete) > 0 {
		c.logger.WithField("branches", incomplete).Warn("Incomplete active versions will be repaired by the next check")
	}
	return nil
}

// Server builds the HTTP server over this client.
func (c *Client) Server() *server.Server {
	return server.New(server.Deps{
		Sync:           c.Sync,
		Resolver:       c.Resolver,
		Arches:         c.Arches,
		Schedule:       c.Schedule,
		Diagnostics:    c.Diagnostics,
		Logs:           c.logs,
		Metrics:        c.metrics,
		MetricsHandler: c.metricsHandler,
	}, c.config.Server, c.logger)
}

// Serve restores state, then runs the background runner and the HTTP
// server until ctx is cancelled.
func (c *Client) Serve(ctx context.Context) error {
	if err := c.Restore(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg        conc.WaitGroup
		serverErr error
	)
	wg.Go(func() {
		_ = c.Runner.Run(ctx)
	})
	wg.Go(func() {
		serverErr = c.Server().Listen(ctx)
		cancel()
	})
	wg.Wait()

	return serverErr
}

// Close releases the history store.
func (c *Client) Close() error {
	return c.History.Close()
}
