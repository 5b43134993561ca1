package models

import "time"

// OrderEventsTopic is the realtime topic carrying order lifecycle events.
const OrderEventsTopic = "order-events"

const (
	EventStatusChanged    = "statusChanged"
	EventPaymentConfirmed = "paymentConfirmed"
)

// OrderEvent is the payload published on OrderEventsTopic.
type OrderEvent struct {
	Type       string    `json:"type"`
	OrderID    string    `json:"orderId"`
	NewStatus  Status    `json:"newStatus,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
