package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"orderdesk/analytics"
	"orderdesk/apperr"
	"orderdesk/reports"
	"orderdesk/utils"
)

const defaultForecastWait = 45 * time.Second

func (h *Handler) HandleGeneralStats(c *fiber.Ctx) error {
	var asOf time.Time
	if raw := c.Query("asOf"); raw != "" {
		t, err := utils.ParseDate(raw)
		if err != nil {
			return apperr.Validation("asOf %q is not a valid ISO date", raw)
		}
		asOf = utils.EndOfDay(t)
	}
	stats, err := h.Analytics.GeneralStats(c.UserContext(), asOf)
	if err != nil {
		return err
	}
	return ok(c, stats)
}

func rangeMeta(r analytics.Range) fiber.Map {
	return fiber.Map{
		"startDate": r.Start.Format(utils.DateLayout),
		"endDate":   r.End.Format(utils.DateLayout),
		"days":      r.Days(),
	}
}

// HandleTrends returns paid revenue per period over [startDate, endDate].
func (h *Handler) HandleTrends(c *fiber.Ctx) error {
	g, err := analytics.ParseGranularity(c.Query("period"))
	if err != nil {
		return err
	}
	r, err := h.Analytics.ResolveRange(c.Query("startDate"), c.Query("endDate"))
	if err != nil {
		return err
	}
	points, err := h.Analytics.Trend(c.UserContext(), r, g)
	if err != nil {
		return err
	}
	meta := rangeMeta(r)
	meta["period"] = g
	return c.JSON(fiber.Map{"success": true, "data": points, "meta": meta})
}

func (h *Handler) HandleTrendsByDate(c *fiber.Ctx) error {
	r, err := h.Analytics.ResolveRange(c.Query("startDate"), c.Query("endDate"))
	if err != nil {
		return err
	}
	counts, err := h.Analytics.OrdersByDate(c.UserContext(), r)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": counts, "meta": rangeMeta(r)})
}

func (h *Handler) HandleOrderCategories(c *fiber.Ctx) error {
	cats, err := h.Analytics.CategoryBreakdown(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, cats)
}

// HandleForecast builds a revenue forecast report. fasthttp gives no signal
// when a client hangs up, so the wait is bounded by ForecastWait instead.
func (h *Handler) HandleForecast(c *fiber.Ctx) error {
	horizon, err := queryInt(c, "horizonDays")
	if err != nil {
		return err
	}
	confidence, err := queryFloat(c, "confidence")
	if err != nil {
		return err
	}

	wait := h.ForecastWait
	if wait <= 0 {
		wait = defaultForecastWait
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), wait)
	defer cancel()

	report, err := h.Reports.ForecastReport(ctx, reports.Request{
		StartDate:   c.Query("startDate"),
		EndDate:     c.Query("endDate"),
		HorizonDays: horizon,
		Confidence:  confidence,
	})
	if err != nil {
		return err
	}
	return ok(c, report)
}
