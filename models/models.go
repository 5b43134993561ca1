package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// --- Custom JSON Type for database/sql ---

// JSONB allows storing free-form JSON data such as a delivery address.
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case nil:
		*j = JSONB{}
		return nil
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// --- JWT & Auth ---

type JwtClaims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// --- Roles ---

type Role string

const (
	RoleKitchen  Role = "kitchen"
	RoleDelivery Role = "delivery"
	RoleCustomer Role = "customer"
	RoleCashier  Role = "cashier"
	RoleAdmin    Role = "admin"
	// RolePaymentSystem is used for confirmations coming back from the payment processor.
	RolePaymentSystem Role = "payment-system"
)

// Actor is whoever is asking for a change, as established by the auth layer.
type Actor struct {
	ID   string
	Role Role
}

// --- Order lifecycle ---

type Status string

const (
	StatusFoodProcessing Status = "Food Processing"
	StatusOutForDelivery Status = "Out for Delivery"
	StatusDelivered      Status = "Delivered"
	StatusCompleted      Status = "Completed"
	StatusCancelled      Status = "Cancelled"
)

// AllStatuses lists the statuses in lifecycle order.
var AllStatuses = []Status{
	StatusFoodProcessing,
	StatusOutForDelivery,
	StatusDelivered,
	StatusCompleted,
	StatusCancelled,
}

// ParseStatus accepts both the display form ("Out for Delivery") and the
// compact form ("OutForDelivery"), case-insensitively.
func ParseStatus(s string) (Status, bool) {
	key := normalizeStatus(s)
	for _, st := range AllStatuses {
		if normalizeStatus(string(st)) == key {
			return st, true
		}
	}
	return "", false
}

func normalizeStatus(s string) string {
	s = strings.ToLower(s)
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
}

// Terminal reports whether no further status change is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// OrderItem is a single line of an order. Price and name are captured at order time.
type OrderItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Category  string  `json:"category,omitempty"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
}

// Subtotal is unitPrice × quantity.
func (i OrderItem) Subtotal() float64 {
	return i.UnitPrice * float64(i.Quantity)
}

// Order is the durable record owned by the order store.
type Order struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	Items     []OrderItem `json:"items"`
	Amount    float64     `json:"amount"`
	Address   JSONB       `json:"address"`
	Status    Status      `json:"status"`
	Payment   bool        `json:"payment"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	if o.Address != nil {
		c.Address = make(JSONB, len(o.Address))
		for k, v := range o.Address {
			c.Address[k] = v
		}
	}
	return &c
}

// --- API Request/Response Structs ---

// PlaceOrderRequest defines the body for placing a new order.
type PlaceOrderRequest struct {
	UserID  string      `json:"userId,omitempty"`
	Items   []OrderItem `json:"items"`
	Address JSONB       `json:"address"`
}

// UpdateStatusRequest defines the body for a status transition.
type UpdateStatusRequest struct {
	OrderID      string `json:"orderId"`
	TargetStatus string `json:"targetStatus"`
	ActorRole    string `json:"actorRole,omitempty"`
}

// UpdatePaymentRequest defines the body for confirming payment.
type UpdatePaymentRequest struct {
	OrderID string `json:"orderId"`
	Payment *bool  `json:"payment"`
}

// VerifyPaymentRequest is the result reported back by the payment processor redirect.
type VerifyPaymentRequest struct {
	OrderID string `json:"orderId"`
	Success bool   `json:"success"`
}
