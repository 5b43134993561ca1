// Package lifecycle enforces the order state machine and the payment gate.
// Every check runs server side; dashboards only hint at what is allowed.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/lucsky/cuid"

	"orderdesk/apperr"
	"orderdesk/models"
	"orderdesk/store"
	"orderdesk/utils"
)

// DefaultDeliveryFee is added to every order's item total.
const DefaultDeliveryFee = 2.0

// Publisher delivers realtime events. Implementations must not block for long;
// a failed publish is logged and never fails the mutation that caused it.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Controller validates and applies order mutations.
type Controller struct {
	store       store.OrderStore
	events      Publisher
	deliveryFee float64
	newID       func() string
	now         func() time.Time
}

type Option func(*Controller)

func WithDeliveryFee(fee float64) Option {
	return func(c *Controller) { c.deliveryFee = fee }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(c *Controller) { c.newID = newID }
}

func NewController(s store.OrderStore, events Publisher, opts ...Option) *Controller {
	c := &Controller{
		store:       s,
		events:      events,
		deliveryFee: DefaultDeliveryFee,
		newID:       cuid.New,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DeliveryFee returns the fee added to new orders.
func (c *Controller) DeliveryFee() float64 { return c.deliveryFee }

// OrderAmount is sum(unitPrice × quantity) + deliveryFee, rounded to cents.
func OrderAmount(items []models.OrderItem, deliveryFee float64) float64 {
	var total float64
	for _, item := range items {
		total += item.Subtotal()
	}
	return roundCents(total + deliveryFee)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// PlaceOrder validates the items and creates the order in Food Processing,
// unpaid. The amount is fixed here and never recomputed.
func (c *Controller) PlaceOrder(ctx context.Context, actor models.Actor, req models.PlaceOrderRequest) (*models.Order, error) {
	if !CanPlaceOrder(actor.Role) {
		return nil, apperr.Unauthorized("role %q may not place orders", actor.Role)
	}
	if len(req.Items) == 0 {
		return nil, apperr.Validation("order must contain at least one item")
	}
	items := make([]models.OrderItem, 0, len(req.Items))
	for i, item := range req.Items {
		item.Name = strings.TrimSpace(item.Name)
		switch {
		case item.Name == "":
			return nil, apperr.Validation("item %d: name is required", i)
		case item.Quantity < 1:
			return nil, apperr.Validation("item %d: quantity must be at least 1", i)
		case item.UnitPrice < 0 || math.IsNaN(item.UnitPrice) || math.IsInf(item.UnitPrice, 0):
			return nil, apperr.Validation("item %d: unit price must be a non-negative number", i)
		}
		items = append(items, item)
	}

	userID := req.UserID
	if actor.Role == models.RoleCustomer {
		userID = actor.ID
	}

	order := &models.Order{
		ID:        c.newID(),
		UserID:    userID,
		Items:     items,
		Amount:    OrderAmount(items, c.deliveryFee),
		Address:   req.Address,
		Status:    models.StatusFoodProcessing,
		Payment:   false,
		CreatedAt: c.now(),
	}
	if err := c.store.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	log.Printf("[LIFECYCLE] order %s placed by %s (%s), amount %.2f", order.ID, actor.ID, actor.Role, order.Amount)
	return order, nil
}

// GetOrder returns an order. Customers only see their own orders.
func (c *Controller) GetOrder(ctx context.Context, actor models.Actor, id string) (*models.Order, error) {
	order, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleCustomer && order.UserID != actor.ID {
		return nil, apperr.NotFound("Order %s not found", id)
	}
	return order, nil
}

// ListQuery selects a page of orders.
type ListQuery struct {
	Status   models.Status
	Page     int
	PageSize int
}

// ListOrders returns one page of orders, newest first.
func (c *Controller) ListOrders(ctx context.Context, actor models.Actor, q ListQuery) ([]*models.Order, *utils.Pagination, error) {
	q.Page, q.PageSize = utils.NormalizePage(q.Page, q.PageSize)
	filter := store.ListFilter{
		Status: q.Status,
		Limit:  q.PageSize,
		Offset: utils.Offset(q.Page, q.PageSize),
	}
	if actor.Role == models.RoleCustomer {
		filter.UserID = actor.ID
	}
	orders, total, err := c.store.List(ctx, filter)
	if err != nil {
		return nil, nil, err
	}
	return orders, utils.CreatePagination(total, q.Page, q.PageSize), nil
}

// Transition moves an order to target on behalf of actor.
//
// Checks run in this order: the order must exist, the edge must be in the
// state graph, the role must be allowed to drive it, and delivery needs a
// confirmed payment. The write itself is a compare-and-swap on the status the
// checks were made against; losing a race yields Conflict.
func (c *Controller) Transition(ctx context.Context, orderID string, actor models.Actor, target models.Status) (*models.Order, error) {
	guard := store.AnyPayment
	if target == models.StatusDelivered {
		guard = store.MustBePaid
	}
	return c.transition(ctx, orderID, actor, target, guard)
}

func (c *Controller) transition(ctx context.Context, orderID string, actor models.Actor, target models.Status, guard store.PaymentGuard) (*models.Order, error) {
	order, err := c.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	from := order.Status

	if !IsEdge(from, target) {
		return nil, apperr.InvalidTransition("order %s cannot move from %q to %q", orderID, from, target)
	}
	if !CanPerform(actor.Role, from, target) {
		return nil, apperr.Unauthorized("role %q may not move an order from %q to %q", actor.Role, from, target)
	}
	if actor.Role == models.RoleCustomer && order.UserID != actor.ID {
		return nil, apperr.Unauthorized("order %s belongs to another customer", orderID)
	}
	if err := paymentError(orderID, guard, order.Payment); err != nil {
		return nil, err
	}

	updated, err := c.store.CompareAndSetStatus(ctx, orderID, from, target, guard)
	if errors.Is(err, store.ErrStale) {
		return nil, c.classifyStale(ctx, orderID, from, guard)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("[LIFECYCLE] order %s: %q -> %q by %s (%s)", orderID, from, target, actor.ID, actor.Role)
	c.publish(models.OrderEvent{
		Type:       models.EventStatusChanged,
		OrderID:    orderID,
		NewStatus:  target,
		OccurredAt: c.now(),
	})
	return updated, nil
}

func paymentError(orderID string, guard store.PaymentGuard, paid bool) error {
	if guard.Holds(paid) {
		return nil
	}
	if guard == store.MustBePaid {
		return apperr.PaymentRequired("order %s must be paid before it is marked delivered", orderID)
	}
	return apperr.Conflict("order %s is already paid", orderID)
}

func (c *Controller) classifyStale(ctx context.Context, orderID string, from models.Status, guard store.PaymentGuard) error {
	current, err := c.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if current.Status != from {
		return apperr.Conflict("order %s was changed concurrently, now %q", orderID, current.Status)
	}
	if err := paymentError(orderID, guard, current.Payment); err != nil {
		return err
	}
	return apperr.Conflict("order %s was changed concurrently", orderID)
}

// ConfirmPayment sets the payment flag. Confirming an already paid order is a
// successful no-op; a cancelled order can never be confirmed.
func (c *Controller) ConfirmPayment(ctx context.Context, orderID string, actor models.Actor) (*models.Order, error) {
	if !CanConfirmPayment(actor.Role) {
		return nil, apperr.Unauthorized("role %q may not confirm payments", actor.Role)
	}
	order, err := c.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == models.StatusCancelled {
		return nil, apperr.InvalidTransition("order %s is cancelled, payment cannot be confirmed", orderID)
	}
	if order.Payment {
		return order, nil
	}

	updated, err := c.store.MarkPaid(ctx, orderID)
	if errors.Is(err, store.ErrStale) {
		current, getErr := c.store.Get(ctx, orderID)
		if getErr != nil {
			return nil, getErr
		}
		switch {
		case current.Status == models.StatusCancelled:
			return nil, apperr.InvalidTransition("order %s is cancelled, payment cannot be confirmed", orderID)
		case current.Payment:
			return current, nil
		default:
			return nil, apperr.InvalidTransition("order %s is %q, payment cannot be confirmed", orderID, current.Status)
		}
	}
	if err != nil {
		return nil, err
	}

	log.Printf("[PAYMENT] order %s confirmed by %s (%s)", orderID, actor.ID, actor.Role)
	c.publish(models.OrderEvent{
		Type:       models.EventPaymentConfirmed,
		OrderID:    orderID,
		OccurredAt: c.now(),
	})
	return updated, nil
}

// VerifyPayment records the outcome reported by the payment processor.
// Success confirms payment; failure cancels the order only while it is still
// unpaid, checked in the same conditional write as the cancel. The order
// record is kept either way.
func (c *Controller) VerifyPayment(ctx context.Context, orderID string, success bool) (*models.Order, error) {
	actor := models.Actor{ID: "payment-processor", Role: models.RolePaymentSystem}
	if success {
		return c.ConfirmPayment(ctx, orderID, actor)
	}
	order, err := c.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Payment {
		return nil, apperr.Conflict("order %s is already paid", orderID)
	}
	return c.transition(ctx, orderID, actor, models.StatusCancelled, store.MustBeUnpaid)
}

func (c *Controller) publish(evt models.OrderEvent) {
	if c.events == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Printf("[LIFECYCLE] encode %s event for order %s: %v", evt.Type, evt.OrderID, err)
		return
	}
	if err := c.events.Publish(context.Background(), models.OrderEventsTopic, payload); err != nil {
		log.Printf("[LIFECYCLE] publish %s for order %s failed: %v", evt.Type, evt.OrderID, err)
	}
}
