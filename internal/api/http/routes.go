package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/temperature-etl/internal/etl"
)

var validate = validator.New()

// Options tunes the routes that act on the pipeline.
type Options struct {
	// PollingInterval is used to restart ingestion after a reset.
	PollingInterval time.Duration
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *etl.Service, opts Options) {
	app.Get("/dashboard", func(c *fiber.Ctx) error {
		return c.Redirect("/api/v1/temperature", fiber.StatusPermanentRedirect)
	})

	v1 := app.Group("/api/v1")

	v1.Get("/temperature", func(c *fiber.Ctx) error {
		if c.QueryBool("stats") {
			return c.JSON(fiber.Map{
				"success": true,
				"stats":   service.Stats(),
			})
		}

		if c.QueryBool("latest") {
			var data any
			if rec, ok := service.Latest(); ok {
				data = rec
			}
			return c.JSON(fiber.Map{
				"success": true,
				"data":    data,
			})
		}

		data := service.AllRecords(parseLimit(c.Query("limit")))
		return c.JSON(fiber.Map{
			"success":   true,
			"data":      data,
			"count":     len(data),
			"timestamp": time.Now().UnixMilli(),
		})
	})

	v1.Get("/temperature/range", func(c *fiber.Ctx) error {
		var req rangeQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		data := service.Range(req.Start, req.End)
		return c.JSON(fiber.Map{
			"success":   true,
			"start":     req.Start,
			"end":       req.End,
			"data":      data,
			"count":     len(data),
			"timestamp": time.Now().UnixMilli(),
		})
	})

	v1.Post("/pipeline/reset", func(c *fiber.Ctx) error {
		service.Reset()

		running := false
		if opts.PollingInterval > 0 {
			if err := service.Start(opts.PollingInterval); err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "failed to restart pipeline")
			}
			running = true
		}

		return c.JSON(fiber.Map{
			"success":   true,
			"running":   running,
			"timestamp": time.Now().UnixMilli(),
		})
	})
}

// parseLimit returns the requested limit, or 0 (no limit) when it is missing or invalid.
func parseLimit(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

// rangeQuery holds query parameters for the range endpoint, as unix milliseconds.
type rangeQuery struct {
	Start int64 `validate:"gte=0"`
	End   int64 `validate:"gtefield=Start"`
}

func (r *rangeQuery) bind(c *fiber.Ctx) error {
	startStr := c.Query("start")
	endStr := c.Query("end")
	if startStr == "" || endStr == "" {
		return errors.New("start and end query parameters are required")
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return errors.New("invalid start; use unix milliseconds")
	}
	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil {
		return errors.New("invalid end; use unix milliseconds")
	}

	r.Start = start
	r.End = end
	return nil
}
