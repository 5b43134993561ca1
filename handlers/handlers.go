package handlers

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"orderdesk/analytics"
	"orderdesk/apperr"
	"orderdesk/events"
	"orderdesk/lifecycle"
	"orderdesk/middleware"
	"orderdesk/models"
	"orderdesk/reports"
)

// Handler carries the services the HTTP routes call into.
type Handler struct {
	Orders    *lifecycle.Controller
	Analytics *analytics.Aggregator
	Reports   *reports.Service
	Bus       events.Bus

	// Heartbeat is the idle interval between SSE keep-alive comments.
	Heartbeat time.Duration
	// ForecastWait bounds how long a forecast request may wait for its
	// result.
	ForecastWait time.Duration
	Version      string
	StoreDriver  string
	Ping         func(ctx context.Context) error
}

// ErrorHandler turns any error returned by a handler into the JSON
// envelope {"success": false, "error": kind, "message": text}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"success": false, "error": "HTTPError", "message": fe.Message})
	}

	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if status >= fiber.StatusInternalServerError {
		log.Printf("❌ [API] %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   kind,
		"message": apperr.MessageOf(err),
	})
}

func ok(c *fiber.Ctx, data interface{}) error {
	return c.JSON(fiber.Map{"success": true, "data": data})
}

func actor(c *fiber.Ctx) (models.Actor, error) {
	a, found := middleware.ActorFrom(c)
	if !found {
		return models.Actor{}, apperr.Unauthorized("request is not authenticated")
	}
	return a, nil
}

func queryInt(c *fiber.Ctx, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("%s must be an integer", name)
	}
	return v, nil
}

func queryFloat(c *fiber.Ctx, name string) (*float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apperr.Validation("%s must be a number", name)
	}
	return &v, nil
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return apperr.Validation("Invalid request body")
	}
	return nil
}
