package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping() error
}

// HealthHandler serves the liveness endpoint.
func HealthHandler(db Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		status, dbState := "healthy", "connected"
		code := fiber.StatusOK
		if err := db.Ping(); err != nil {
			status, dbState = "degraded", "unreachable"
			code = fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(fiber.Map{
			"status":   status,
			"time":     time.Now().Format(time.RFC3339),
			"database": dbState,
		})
	}
}
