package server

import (
	"errors"
	"fmt"
	"strings"

	"secondchance/internal/config"
	"secondchance/internal/handlers"
	"secondchance/internal/logger"
	"secondchance/internal/middleware"
	"secondchance/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Deps are the collaborators the HTTP layer is wired to.
type Deps struct {
	Auth     *services.AuthService
	Items    *services.ItemService
	Health   handlers.Pinger
	Redis    redis.UniversalClient // optional; nil disables login rate limiting
	ImageDir string
	Log      *logrus.Logger
}

// New builds the Fiber app with middleware and all routes registered.
func New(cfg *config.Config, deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "secondchance",
		DisableStartupMessage: !cfg.IsDevelopment(),
		BodyLimit:             bodyLimit(cfg.MaxUploadBytes),
		ErrorHandler:          errorHandler(deps.Log, cfg.MaxUploadBytes),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
		Output: deps.Log.Writer(),
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSAllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, Email",
	}))

	app.Static("/images", deps.ImageDir, fiber.Static{Browse: false})
	app.Get("/health", handlers.HealthHandler(deps.Health))

	protected := middleware.AuthRequired(deps.Auth, deps.Log)
	limiter := middleware.RateLimit(deps.Redis, cfg.LoginRateLimit, cfg.LoginRateWindow, middleware.KeyByIPAndPath("rl"), deps.Log)

	api := app.Group("/api")
	handlers.NewAuthHandler(deps.Auth).RegisterRoutes(api, limiter, protected)
	handlers.NewItemHandler(deps.Items).RegisterRoutes(api, protected)

	return app
}

// bodyLimit lets files several times the upload limit through to the
// upload check, which answers with a JSON 400.
func bodyLimit(maxUploadBytes int64) int {
	return int(4*maxUploadBytes) + 1024*1024
}

// errorHandler turns unhandled errors into a bare 500 and logs the cause.
// Fiber's own errors (unknown routes, oversized bodies) keep their status,
// except multipart bodies over the body limit, which are upload failures.
func errorHandler(log logrus.FieldLogger, maxUploadBytes int64) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			if fe.Code == fiber.StatusRequestEntityTooLarge &&
				strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error":  "File upload failed",
					"reason": fmt.Sprintf("file exceeds %d bytes", maxUploadBytes),
				})
			}
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}

		logger.LogError(log, "Internal Server Error", err, logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"request_id": c.Locals("requestid"),
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
	}
}
