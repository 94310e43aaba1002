// Package server exposes the mirror to devices and the admin API over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/TheMichaelB/rosmirror/internal/config"
	"github.com/TheMichaelB/rosmirror/internal/events"
	"github.com/TheMichaelB/rosmirror/internal/metrics"
	"github.com/TheMichaelB/rosmirror/internal/schedule"
	"github.com/TheMichaelB/rosmirror/internal/services/diagnostics"
	"github.com/TheMichaelB/rosmirror/internal/services/resolver"
	syncsvc "github.com/TheMichaelB/rosmirror/internal/services/sync"
	"github.com/TheMichaelB/rosmirror/internal/settings"
)

// Deps are the services behind the HTTP surface.
type Deps struct {
	Sync        *syncsvc.Service
	Resolver    *resolver.Resolver
	Arches      *settings.Arches
	Schedule    *schedule.Schedule
	Diagnostics *diagnostics.Service
	Logs        *events.Ring
	Metrics     metrics.Metrics

	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
}

// Server owns the fiber application.
type Server struct {
	app    *fiber.App
	deps   Deps
	cfg    config.ServerConfig
	logger *events.Logger
	now    func() time.Time
}

// New creates a server and registers every route.
func New(deps Deps, cfg config.ServerConfig, logger *events.Logger) *Server {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Noop{}
	}

	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logger.WithField("component", "http_server"),
		now:    time.Now,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "rosmirror",
		ServerHeader:          "rosmirror",
		DisableStartupMessage: true,
		Immutable:             true,
		ReadTimeout:           30 * time.Second,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(requestLogger(s.logger))

	s.registerRoutes()
	return s
}

// App returns the fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("listen", s.cfg.Listen).Info("HTTP server listening")
		errCh <- s.app.Listen(s.cfg.Listen)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info("HTTP server stopped")
		return nil
	}
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	if code >= fiber.StatusInternalServerError {
		events.FromContext(c.UserContext()).WithError(err).WithField("path", c.Path()).Error("Request failed")
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
