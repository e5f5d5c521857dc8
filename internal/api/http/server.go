package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/i474232898/temperature-etl/internal/metrics"
)

// AppConfig controls the Fiber application built by NewApp.
type AppConfig struct {
	Name      string
	AccessLog bool
	Gatherer  prometheus.Gatherer
}

// NewApp creates the Fiber app with the shared error envelope, middleware,
// health and metrics endpoints. API routes are added by RegisterRoutes.
func NewApp(cfg AppConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               cfg.Name,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success":   false,
				"error":     err.Error(),
				"timestamp": time.Now().UnixMilli(),
			})
		},
	})

	if cfg.AccessLog {
		app.Use(logger.New())
	}
	app.Use(recover.New())
	app.Use("/api", cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": cfg.Name,
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(cfg.Gatherer)))

	return app
}
