package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"orderdesk/apperr"
	"orderdesk/lifecycle"
	"orderdesk/models"
	"orderdesk/utils"
)

// HandlePlaceOrder creates an order. Customers always order for themselves;
// cashiers and admins may name the customer in userId.
func (h *Handler) HandlePlaceOrder(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req models.PlaceOrderRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if a.Role != models.RoleCustomer && strings.TrimSpace(req.UserID) == "" {
		return apperr.Validation("userId is required when ordering on behalf of a customer")
	}
	order, err := h.Orders.PlaceOrder(c.UserContext(), a, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": order})
}

// HandleListOrders returns a page of orders, newest first.
func (h *Handler) HandleListOrders(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	q := lifecycle.ListQuery{}
	if raw := c.Query("status"); raw != "" {
		status, valid := models.ParseStatus(raw)
		if !valid {
			return apperr.Validation("Unknown status %q", raw)
		}
		q.Status = status
	}
	if q.Page, err = queryInt(c, "page"); err != nil {
		return err
	}
	if q.PageSize, err = queryInt(c, "pageSize"); err != nil {
		return err
	}

	orders, pagination, err := h.Orders.ListOrders(c.UserContext(), a, q)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": orders, "pagination": pagination})
}

type orderView struct {
	*models.Order
	// AllowedTransitions lists what the caller may do next. It is a hint
	// for dashboards; every transition is still checked on submit.
	AllowedTransitions []models.Status `json:"allowedTransitions"`
	CanConfirmPayment  bool            `json:"canConfirmPayment"`
}

func (h *Handler) HandleGetOrder(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	order, err := h.Orders.GetOrder(c.UserContext(), a, c.Params("orderId"))
	if err != nil {
		return err
	}
	next := lifecycle.NextStatuses(a.Role, order.Status)
	if next == nil {
		next = []models.Status{}
	}
	return ok(c, orderView{
		Order:              order,
		AllowedTransitions: next,
		CanConfirmPayment:  !order.Payment && order.Status != models.StatusCancelled && lifecycle.CanConfirmPayment(a.Role),
	})
}

// HandleUpdateStatus applies {orderId, targetStatus, actorRole?}. The role
// always comes from the token; a body actorRole that disagrees is refused.
func (h *Handler) HandleUpdateStatus(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req models.UpdateStatusRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return apperr.Validation("orderId is required")
	}
	target, valid := models.ParseStatus(req.TargetStatus)
	if !valid {
		return apperr.Validation("Unknown targetStatus %q", req.TargetStatus)
	}
	if req.ActorRole != "" {
		claimed, _ := utils.ValidateAndNormalizeRole(req.ActorRole)
		if claimed != a.Role {
			return apperr.Unauthorized("actorRole %q does not match the authenticated role", req.ActorRole)
		}
	}

	order, err := h.Orders.Transition(c.UserContext(), req.OrderID, a, target)
	if err != nil {
		return err
	}
	return ok(c, order)
}

// HandleUpdatePayment confirms payment. The flag never goes back to false.
func (h *Handler) HandleUpdatePayment(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req models.UpdatePaymentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return apperr.Validation("orderId is required")
	}
	if req.Payment == nil || !*req.Payment {
		return apperr.Validation("payment can only be set to true")
	}
	order, err := h.Orders.ConfirmPayment(c.UserContext(), req.OrderID, a)
	if err != nil {
		return err
	}
	return ok(c, order)
}

// HandleVerifyPayment records the payment processor's verdict for an order.
func (h *Handler) HandleVerifyPayment(c *fiber.Ctx) error {
	var req models.VerifyPaymentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return apperr.Validation("orderId is required")
	}
	order, err := h.Orders.VerifyPayment(c.UserContext(), req.OrderID, req.Success)
	if err != nil {
		return err
	}
	message := "Paid"
	if !req.Success {
		message = "Payment failed, order cancelled"
	}
	return c.JSON(fiber.Map{"success": true, "message": message, "data": order})
}
