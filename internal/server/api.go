package server

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/TheMichaelB/rosmirror/internal/models"
	"github.com/TheMichaelB/rosmirror/internal/schedule"
)

// CheckStatusCode maps a check outcome to an HTTP status.
func CheckStatusCode(status models.Status) int {
	switch status {
	case models.StatusSuccess:
		return fiber.StatusOK
	case models.StatusInProgress:
		return fiber.StatusConflict
	case models.StatusNetworkUnavailable, models.StatusNetworkError, models.StatusFetchFailed:
		return fiber.StatusServiceUnavailable
	case models.StatusTimeout:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// postCheck runs a check. With ?async=true the check is queued for the
// background runner instead.
func (s *Server) postCheck(c *fiber.Ctx) error {
	if c.QueryBool("async") {
		if !s.deps.Sync.Trigger("api") {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"status":  models.StatusInProgress,
				"message": "a check is already queued",
			})
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "queued"})
	}

	result := s.deps.Sync.Check(c.UserContext())
	return c.Status(CheckStatusCode(result.Status)).JSON(result)
}

func (s *Server) getStatus(c *fiber.Ctx) error {
	report := s.deps.Sync.Status()
	resp := fiber.Map{
		"running":     report.Running,
		"progress":    report.Progress,
		"versions":    report.Versions,
		"last_check":  report.LastCheck,
		"last_result": report.LastResult,
	}
	if s.deps.Schedule != nil {
		cfg := s.deps.Schedule.Config()
		resp["schedule"] = cfg
		if next := s.deps.Schedule.NextRun(s.now()); !next.IsZero() {
			resp["next_run"] = next
		}
	}
	return c.JSON(resp)
}

func (s *Server) getHistory(c *fiber.Ctx) error {
	entries, err := s.deps.Sync.History(c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return c.JSON(entries)
}

func (s *Server) getVersions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"active":   s.deps.Sync.Status().Versions,
		"versions": s.deps.Sync.Versions(),
	})
}

func (s *Server) activateVersion(c *fiber.Ctx) error {
	// The version outlives the request as active state.
	version := utils.CopyString(c.Params("version"))
	if err := s.deps.Sync.Activate(c.UserContext(), version); err != nil {
		return versionError(err)
	}
	return c.JSON(fiber.Map{"activated": version, "versions": s.deps.Sync.Status().Versions})
}

func (s *Server) deleteVersion(c *fiber.Ctx) error {
	if err := s.deps.Sync.Remove(c.Params("version")); err != nil {
		return versionError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) postCleanup(c *fiber.Ctx) error {
	results, err := s.deps.Sync.Cleanup()
	if err != nil {
		return versionError(err)
	}
	return c.JSON(results)
}

func versionError(err error) error {
	switch {
	case errors.Is(err, models.ErrVersionMissing):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrVersionActive), errors.Is(err, models.ErrSyncInProgress):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}

type archesRequest struct {
	Arches []string `json:"arches"`
}

func (s *Server) getArches(c *fiber.Ctx) error {
	return c.JSON(archesRequest{Arches: s.deps.Arches.List()})
}

func (s *Server) putArches(c *fiber.Ctx) error {
	var req archesRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}

	list, err := s.deps.Arches.Update(req.Arches)
	if err != nil {
		if errors.Is(err, models.ErrInvalidArch) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return err
	}
	return c.JSON(archesRequest{Arches: list})
}

func (s *Server) getSchedule(c *fiber.Ctx) error {
	return c.JSON(s.deps.Schedule.Config())
}

func (s *Server) putSchedule(c *fiber.Ctx) error {
	var cfg schedule.Config
	if err := c.BodyParser(&cfg); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}

	updated, err := s.deps.Schedule.Update(cfg)
	if err != nil {
		if errors.Is(err, schedule.ErrInvalidSchedule) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return err
	}
	return c.JSON(updated)
}

func (s *Server) pauseSchedule(c *fiber.Ctx) error {
	if err := s.deps.Schedule.Pause(); err != nil {
		return err
	}
	return c.JSON(s.deps.Schedule.Config())
}

func (s *Server) resumeSchedule(c *fiber.Ctx) error {
	if err := s.deps.Schedule.Resume(); err != nil {
		return err
	}
	return c.JSON(s.deps.Schedule.Config())
}

func (s *Server) getDiagnostics(c *fiber.Ctx) error {
	return c.JSON(s.deps.Diagnostics.Run(c.UserContext()))
}

func (s *Server) getLogs(c *fiber.Ctx) error {
	n, err := strconv.Atoi(c.Query("lines", "200"))
	if err != nil || n < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "lines must be a non-negative integer")
	}
	var lines []string
	if s.deps.Logs != nil {
		lines = s.deps.Logs.Tail(n)
	}
	return c.JSON(fiber.Map{"lines": lines})
}
