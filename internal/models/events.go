package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types carried on the stage topic
const (
	EventTypePurchaseRequested = "PURCHASE_REQUESTED"
	EventTypeMerchantSelected  = "MERCHANT_SELECTED"
	EventTypeOrderCompleted    = "ORDER_COMPLETED"
	EventTypeOrderFailed       = "ORDER_FAILED"
	EventTypeOrderCancelled    = "ORDER_CANCELLED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event envelope with a unique ID
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// PurchaseRequestedEvent dispatches the discovery+decision stage for an order.
// Delivery is at-least-once; handlers rely on order-status guards.
type PurchaseRequestedEvent struct {
	BaseEvent
	OrderID   int64 `json:"order_id"`
	ProductID int64 `json:"product_id"`
}

// MerchantSelectedEvent dispatches the checkout stage once a merchant is chosen
type MerchantSelectedEvent struct {
	BaseEvent
	OrderID    int64  `json:"order_id"`
	MerchantID int64  `json:"merchant_id"`
	FinalPrice string `json:"final_price"`
}

// OrderCompletedEvent published when checkout confirmed the purchase
type OrderCompletedEvent struct {
	BaseEvent
	OrderID    int64  `json:"order_id"`
	MerchantID int64  `json:"merchant_id"`
	FinalPrice string `json:"final_price"`
}

// OrderFailedEvent published when any stage terminally failed the order
type OrderFailedEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Stage   string `json:"stage"`
	Reason  string `json:"reason"`
}

// OrderCancelledEvent published when an external actor cancelled the order
type OrderCancelledEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"`
}
