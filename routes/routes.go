package routes

import (
	"github.com/gofiber/fiber/v2"

	"orderdesk/handlers"
	"orderdesk/middleware"
	"orderdesk/models"
)

// SetupRoutes defines all the routes for the application. limiter may be nil
// to disable refresh throttling.
func SetupRoutes(app *fiber.App, h *handlers.Handler, limiter *middleware.RefreshLimiter) {
	app.Get("/healthz", h.HandleHealth)
	app.Get("/version", h.HandleVersion)

	throttle := func(c *fiber.Ctx) error { return c.Next() }
	if limiter != nil {
		throttle = limiter.Middleware()
	}

	api := app.Group("/api/v1", middleware.Authenticate)

	// --- Orders ---
	orders := api.Group("/orders")
	orders.Post("/", middleware.RequireRole(models.RoleCustomer, models.RoleCashier, models.RoleAdmin), h.HandlePlaceOrder)
	orders.Get("/", throttle, h.HandleListOrders)
	orders.Post("/status", h.HandleUpdateStatus)
	orders.Post("/payment", h.HandleUpdatePayment)
	orders.Post("/verify", middleware.RequireRole(models.RoleCashier, models.RoleAdmin), h.HandleVerifyPayment)
	orders.Get("/:orderId", h.HandleGetOrder)

	// --- Analytics ---
	analytics := api.Group("/analytics", throttle)
	analytics.Get("/general", middleware.AdminRequired, h.HandleGeneralStats)
	analytics.Get("/trends", middleware.AdminRequired, h.HandleTrends)
	analytics.Get("/trends-by-date", middleware.AdminRequired, h.HandleTrendsByDate)
	analytics.Get("/order-categories", middleware.AdminRequired, h.HandleOrderCategories)
	analytics.Get("/forecast", middleware.RequireRole(models.RoleAdmin, models.RoleCashier), h.HandleForecast)

	// --- Realtime ---
	api.Get("/events", h.HandleEvents)
}
