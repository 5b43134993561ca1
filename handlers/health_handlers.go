package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	status := fiber.StatusOK
	body := fiber.Map{"success": true, "status": "ok", "store": h.StoreDriver}
	if h.Ping != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()
		if err := h.Ping(ctx); err != nil {
			status = fiber.StatusServiceUnavailable
			body["success"] = false
			body["status"] = "degraded"
			body["message"] = err.Error()
		}
	}
	return c.Status(status).JSON(body)
}

func (h *Handler) HandleVersion(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"success": true, "version": h.Version})
}
