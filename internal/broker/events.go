package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"purchase-agent/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing pipeline stage events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

// PublishPurchaseRequested enqueues the discovery+decision stage for an order
func (ep *EventPublisher) PublishPurchaseRequested(ctx context.Context, event *models.PurchaseRequestedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishMerchantSelected enqueues the checkout stage for an order
func (ep *EventPublisher) PublishMerchantSelected(ctx context.Context, event *models.MerchantSelectedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderCompleted publishes the terminal success event
func (ep *EventPublisher) PublishOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderFailed publishes the terminal failure event
func (ep *EventPublisher) PublishOrderFailed(ctx context.Context, event *models.OrderFailedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderCancelled publishes the terminal cancellation event
func (ep *EventPublisher) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// EventHandler routes stage events to the registered stage handlers
type EventHandler struct {
	onPurchaseRequested func(context.Context, *models.PurchaseRequestedEvent) error
	onMerchantSelected  func(context.Context, *models.MerchantSelectedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnPurchaseRequested registers the discovery+decision stage handler
func (eh *EventHandler) OnPurchaseRequested(handler func(context.Context, *models.PurchaseRequestedEvent) error) {
	eh.onPurchaseRequested = handler
}

// OnMerchantSelected registers the checkout stage handler
func (eh *EventHandler) OnMerchantSelected(handler func(context.Context, *models.MerchantSelectedEvent) error) {
	eh.onMerchantSelected = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypePurchaseRequested:
		if eh.onPurchaseRequested != nil {
			var event models.PurchaseRequestedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PurchaseRequested event: %w", err)
			}
			return eh.onPurchaseRequested(ctx, &event)
		}

	case models.EventTypeMerchantSelected:
		if eh.onMerchantSelected != nil {
			var event models.MerchantSelectedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal MerchantSelected event: %w", err)
			}
			return eh.onMerchantSelected(ctx, &event)
		}

	case models.EventTypeOrderCompleted, models.EventTypeOrderFailed, models.EventTypeOrderCancelled:
		// terminal notifications, consumed by external systems

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
