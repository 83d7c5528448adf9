package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order as reported by the backend.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is a full order snapshot. Realtime events carry whole orders,
// never deltas, so a later event can always overwrite an earlier one.
type Order struct {
	ID           string          `json:"id"`
	Number       int             `json:"number"`
	RestaurantID string          `json:"restaurantId"`
	Status       OrderStatus     `json:"status"`
	Total        decimal.Decimal `json:"total"`
	CustomerName string          `json:"customerName,omitempty"`
	Note         string          `json:"note,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// EventKind discriminates the two realtime order event variants.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
)

// OrderEvent pairs an order snapshot with how it arrived.
type OrderEvent struct {
	Order Order
	Kind  EventKind
}
