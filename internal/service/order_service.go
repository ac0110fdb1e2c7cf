// Package service holds the business layer: order intake and the
// asynchronous purchase pipeline stages.
package service

import (
	"context"
	"fmt"
	"regexp"

	"purchase-agent/internal/models"
	"purchase-agent/internal/order"
	"purchase-agent/internal/util"

	"go.uber.org/zap"
)

// tunisianPhoneRe matches the supported contact phone formats: a Tunisian
// number with or without the +216 prefix.
var tunisianPhoneRe = regexp.MustCompile(`^(\+216)?\d{8}$`)

var validPaymentMethods = map[string]bool{
	models.PaymentMethodCash:        true,
	models.PaymentMethodCard:        true,
	models.PaymentMethodInstallment: true,
}

// ValidationError rejects an intake request before any order is created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IntakeStore is the persistence surface of order intake.
type IntakeStore interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetRegionByID(ctx context.Context, id int64) (*models.Region, error)
	CreateOrder(ctx context.Context, ord *models.PurchaseOrder) error
	GetOrderByID(ctx context.Context, id int64) (*models.PurchaseOrder, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]models.PurchaseOrder, error)
	GetDecisionRecords(ctx context.Context, orderID int64) ([]models.DecisionRecord, error)
}

// OrderService handles order intake, lookup and cancellation.
type OrderService struct {
	store     IntakeStore
	states    *order.StateMachine
	publisher Publisher
	logger    *zap.Logger
}

// NewOrderService creates the intake service.
func NewOrderService(store IntakeStore, states *order.StateMachine, publisher Publisher) *OrderService {
	return &OrderService{
		store:     store,
		states:    states,
		publisher: publisher,
		logger:    util.NamedLogger("orders"),
	}
}

// CreateOrderRequest is an intake request to buy one product at the best
// available price.
type CreateOrderRequest struct {
	UserID              int64  `json:"user_id" binding:"required"`
	ProductID           int64  `json:"product_id" binding:"required"`
	RegionID            int64  `json:"region_id" binding:"required"`
	ShippingAddress     string `json:"shipping_address" binding:"required"`
	ContactPhone        string `json:"contact_phone" binding:"required"`
	PaymentMethod       string `json:"payment_method" binding:"required"`
	IsBusiness          bool   `json:"is_business"`
	SpecialInstructions string `json:"special_instructions"`
}

// CreateOrderResponse carries the accepted order back to the caller.
type CreateOrderResponse struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

// CreateOrder validates the request, persists a PENDING order and enqueues
// the discovery+decision stage.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if !tunisianPhoneRe.MatchString(req.ContactPhone) {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, ValidationError{Field: "contact_phone", Reason: "not a valid Tunisian phone number"}
	}
	if !validPaymentMethods[req.PaymentMethod] {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, ValidationError{Field: "payment_method", Reason: "unsupported payment method"}
	}

	product, err := s.store.GetProductByID(ctx, req.ProductID)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, ValidationError{Field: "product_id", Reason: "product not found"}
	}
	if !product.IsActive {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, ValidationError{Field: "product_id", Reason: "product is not active"}
	}

	if _, err := s.store.GetRegionByID(ctx, req.RegionID); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, ValidationError{Field: "region_id", Reason: "region not found"}
	}

	ord := &models.PurchaseOrder{
		UserID:              req.UserID,
		ProductID:           req.ProductID,
		Status:              models.OrderStatusPending,
		RegionID:            req.RegionID,
		ShippingAddress:     req.ShippingAddress,
		ContactPhone:        req.ContactPhone,
		PaymentMethod:       req.PaymentMethod,
		IsBusiness:          req.IsBusiness,
		SpecialInstructions: req.SpecialInstructions,
	}
	if err := s.store.CreateOrder(ctx, ord); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("order created",
		zap.Int64("order_id", ord.ID),
		zap.Int64("product_id", ord.ProductID),
		zap.Int64("user_id", ord.UserID))

	event := &models.PurchaseRequestedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypePurchaseRequested),
		OrderID:   ord.ID,
		ProductID: ord.ProductID,
	}
	if err := s.publisher.PublishPurchaseRequested(ctx, event); err != nil {
		// the order stays PENDING; a requeue or manual retry can pick it up
		s.logger.Error("failed to publish PurchaseRequested",
			zap.Int64("order_id", ord.ID),
			zap.Error(err))
	}

	return &CreateOrderResponse{OrderID: ord.ID, Status: ord.Status}, nil
}

// GetOrder returns an order with its decision audit trail.
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.PurchaseOrder, []models.DecisionRecord, error) {
	ord, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	records, err := s.store.GetDecisionRecords(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return ord, records, nil
}

// GetOrdersByUser returns a user's orders, newest first.
func (s *OrderService) GetOrdersByUser(ctx context.Context, userID int64) ([]models.PurchaseOrder, error) {
	return s.store.GetOrdersByUserID(ctx, userID)
}

// CancelOrder cancels a non-terminal order and publishes the cancellation.
// In-flight stages observe it through their compare-and-swap and drop their
// results.
func (s *OrderService) CancelOrder(ctx context.Context, orderID int64, reason string) error {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder")
	defer span.End()

	if err := s.states.Cancel(ctx, orderID); err != nil {
		return err
	}

	event := &models.OrderCancelledEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderCancelled),
		OrderID:   orderID,
		Reason:    reason,
	}
	if err := s.publisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("failed to publish OrderCancelled",
			zap.Int64("order_id", orderID),
			zap.Error(err))
	}
	return nil
}

// RequeueOrder moves a FAILED order back to PENDING and re-enqueues the
// discovery+decision stage.
func (s *OrderService) RequeueOrder(ctx context.Context, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "OrderService.RequeueOrder")
	defer span.End()

	ord, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if err := s.states.Requeue(ctx, orderID); err != nil {
		return err
	}

	event := &models.PurchaseRequestedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypePurchaseRequested),
		OrderID:   ord.ID,
		ProductID: ord.ProductID,
	}
	if err := s.publisher.PublishPurchaseRequested(ctx, event); err != nil {
		s.logger.Error("failed to publish PurchaseRequested on requeue",
			zap.Int64("order_id", orderID),
			zap.Error(err))
	}
	return nil
}
