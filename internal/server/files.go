package server

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/gofiber/fiber/v2"

	"github.com/TheMichaelB/rosmirror/internal/events"
	"github.com/TheMichaelB/rosmirror/internal/services/resolver"
)

// serveFile answers GET /routeros/[:version/]:file.
func (s *Server) serveFile(c *fiber.Ctx) error {
	version, err := url.PathUnescape(c.Params("version"))
	if err != nil {
		return fiber.ErrBadRequest
	}
	file, err := url.PathUnescape(c.Params("file"))
	if err != nil {
		return fiber.ErrBadRequest
	}

	res := s.deps.Resolver.Resolve(version, file)
	s.deps.Metrics.IncFileRequest(res.Kind.String())

	switch res.Kind {
	case resolver.Forbidden:
		return fiber.NewError(fiber.StatusForbidden, "forbidden")
	case resolver.NotFound:
		return fiber.NewError(fiber.StatusNotFound, "not found")
	}

	c.Set(fiber.HeaderContentType, res.ContentType)
	if res.Attachment {
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, res.Name))
	}
	if !res.ModTime.IsZero() {
		c.Set(fiber.HeaderLastModified, res.ModTime.UTC().Format(http.TimeFormat))
	}

	if res.Kind == resolver.Synthesized {
		return c.SendStream(bytes.NewReader(res.Content), len(res.Content))
	}

	f, err := os.Open(res.Path)
	if err != nil {
		events.FromContext(c.UserContext()).WithError(err).WithField("file", res.Path).Warn("Open resolved file failed")
		return fiber.NewError(fiber.StatusNotFound, "not found")
	}
	// fasthttp closes the stream after the response is written.
	return c.SendStream(f, int(res.Size))
}
