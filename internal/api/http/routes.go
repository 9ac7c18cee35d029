package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/weather-collector/internal/status"
)

const serviceName = "weather-collector"

// StatusSource exposes the collector status snapshot.
type StatusSource interface {
	Snapshot() status.Snapshot
}

// NewApp builds the ops Fiber app with the routes registered.
func NewApp(tracker StatusSource) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})
	app.Use(recover.New())

	RegisterRoutes(app, tracker)
	return app
}

// RegisterRoutes wires the ops handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, tracker StatusSource) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": serviceName,
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := app.Group("/api/v1")
	v1.Get("/status", func(c *fiber.Ctx) error {
		if tracker == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "status not available")
		}
		return c.JSON(tracker.Snapshot())
	})
}
