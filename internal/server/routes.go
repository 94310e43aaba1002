package server

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

func (s *Server) registerRoutes() {
	mount := "/" + strings.Trim(s.cfg.MountPath, "/")
	if mount == "/" {
		mount = "/routeros"
	}

	// Device-facing downloads
	files := s.app.Group(mount)
	files.Get("/:file", s.serveFile)
	files.Get("/:version/:file", s.serveFile)

	// Admin API
	api := s.app.Group("/api")
	api.Post("/check", s.postCheck)
	api.Get("/status", s.getStatus)
	api.Get("/history", s.getHistory)
	api.Get("/versions", s.getVersions)
	api.Post("/versions/:version/activate", s.activateVersion)
	api.Delete("/versions/:version", s.deleteVersion)
	api.Post("/cleanup", s.postCleanup)
	api.Get("/arches", s.getArches)
	api.Put("/arches", s.putArches)
	api.Get("/schedule", s.getSchedule)
	api.Put("/schedule", s.putSchedule)
	api.Post("/schedule/pause", s.pauseSchedule)
	api.Post("/schedule/resume", s.resumeSchedule)
	api.Get("/diagnostics", s.getDiagnostics)
	api.Get("/logs", s.getLogs)

	if s.deps.MetricsHandler != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.deps.MetricsHandler))
	}

	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true, "time": s.now().UTC()})
	})
}
