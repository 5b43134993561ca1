// Package store holds the durable record of orders. It is the only writer of
// order status and payment flags; every mutation is a conditional update.
package store

import (
	"context"
	"errors"
	"time"

	"orderdesk/apperr"
	"orderdesk/models"
)

// ErrStale is returned by conditional updates whose precondition no longer holds.
var ErrStale = errors.New("store: order changed concurrently")

// PaymentGuard is an extra precondition on the payment flag for
// CompareAndSetStatus.
type PaymentGuard int

const (
	AnyPayment PaymentGuard = iota
	MustBePaid
	MustBeUnpaid
)

// Holds reports whether an order with the given payment flag satisfies g.
func (g PaymentGuard) Holds(paid bool) bool {
	switch g {
	case MustBePaid:
		return paid
	case MustBeUnpaid:
		return !paid
	}
	return true
}

// arg is the payment value the SQL backends compare against, nil for any.
func (g PaymentGuard) arg() any {
	switch g {
	case MustBePaid:
		return true
	case MustBeUnpaid:
		return false
	}
	return nil
}

// ListFilter narrows List. Zero values mean "no filter".
type ListFilter struct {
	Status models.Status
	UserID string
	Limit  int
	Offset int
}

// OrderStore is implemented by the memory, Postgres and SQLite backends.
type OrderStore interface {
	Create(ctx context.Context, order *models.Order) error
	Get(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, filter ListFilter) ([]*models.Order, int, error)
	// Range returns orders created in [from, to]. Zero bounds are open.
	Range(ctx context.Context, from, to time.Time) ([]*models.Order, error)
	// CompareAndSetStatus moves the order from -> to only if it is still in
	// from and its payment flag satisfies guard. It returns ErrStale when the
	// order exists but the condition failed.
	CompareAndSetStatus(ctx context.Context, id string, from, to models.Status, guard PaymentGuard) (*models.Order, error)
	// MarkPaid sets payment=true unless the order is Completed or Cancelled.
	MarkPaid(ctx context.Context, id string) (*models.Order, error)
	CountCustomers(ctx context.Context) (int, error)
}

func notFound(id string) error {
	return apperr.NotFound("Order %s not found", id)
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}
