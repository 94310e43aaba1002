package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/TheMichaelB/rosmirror/internal/events"
)

const headerRequestID = "X-Request-ID"

// requestLogger tags every request with an ID and logs its outcome.
func requestLogger(logger *events.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		id := c.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(headerRequestID, id)

		ctx := events.WithRequestID(events.WithLogger(c.UserContext(), logger), id)
		c.SetUserContext(ctx)

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		events.FromContext(ctx).WithFields(map[string]interface{}{
			"method":   c.Method(),
			"path":     c.Path(),
			"status":   status,
			"duration": time.Since(start),
			"remote":   c.IP(),
		}).Debug("Request handled")

		return err
	}
}
