package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"purchase-agent/config"
	"purchase-agent/internal/checkout"
	"purchase-agent/internal/decision"
	"purchase-agent/internal/models"
	"purchase-agent/internal/order"
	"purchase-agent/internal/retry"
	"purchase-agent/internal/util"

	"go.uber.org/zap"
)

// PipelineStore is the persistence surface of the stage handlers.
type PipelineStore interface {
	GetOrderByID(ctx context.Context, id int64) (*models.PurchaseOrder, error)
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetRegionByID(ctx context.Context, id int64) (*models.Region, error)
	GetMerchantByID(ctx context.Context, id int64) (*models.MerchantSite, error)
	GetFreshQuotes(ctx context.Context, productID int64, window time.Duration) ([]models.PriceQuote, error)
	GetFreshQuoteForMerchant(ctx context.Context, productID, merchantID int64, window time.Duration) (*models.PriceQuote, error)
	CreateDecisionRecord(ctx context.Context, rec *models.DecisionRecord) error
}

// Discoverer refreshes price quotes for a product across merchants.
type Discoverer interface {
	DiscoverPrices(ctx context.Context, productID int64) error
}

// Decider picks a merchant among fresh quotes.
type Decider interface {
	Decide(ctx context.Context, product *models.Product, quotes []models.PriceQuote) (*decision.Decision, error)
}

// Purchaser runs the scripted checkout on the selected merchant.
type Purchaser interface {
	Purchase(ctx context.Context, site *models.MerchantSite, ord *models.PurchaseOrder, quote *models.PriceQuote) error
}

// Publisher emits pipeline stage events. *broker.EventPublisher satisfies it.
type Publisher interface {
	PublishPurchaseRequested(ctx context.Context, event *models.PurchaseRequestedEvent) error
	PublishMerchantSelected(ctx context.Context, event *models.MerchantSelectedEvent) error
	PublishOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error
	PublishOrderFailed(ctx context.Context, event *models.OrderFailedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
}

// Pipeline runs the two asynchronous purchase stages: discovery+decision on
// PURCHASE_REQUESTED and checkout on MERCHANT_SELECTED. Stage delivery is
// at-least-once, so every handler starts with a status guard and all writes
// go through the state machine's compare-and-swap.
type Pipeline struct {
	store      PipelineStore
	states     *order.StateMachine
	discoverer Discoverer
	decider    Decider
	purchaser  Purchaser
	payments   checkout.Provider
	publisher  Publisher
	cfg        *config.Config
	logger     *zap.Logger
}

// NewPipeline wires the purchase pipeline stages together.
func NewPipeline(
	store PipelineStore,
	states *order.StateMachine,
	discoverer Discoverer,
	decider Decider,
	purchaser Purchaser,
	payments checkout.Provider,
	publisher Publisher,
	cfg *config.Config,
) *Pipeline {
	return &Pipeline{
		store:      store,
		states:     states,
		discoverer: discoverer,
		decider:    decider,
		purchaser:  purchaser,
		payments:   payments,
		publisher:  publisher,
		cfg:        cfg,
		logger:     util.NamedLogger("pipeline"),
	}
}

// HandlePurchaseRequested runs price discovery and merchant selection for a
// PENDING order. Redeliveries and cancelled orders fall out at the status
// guard or at the compare-and-swap, never as duplicate work downstream.
func (p *Pipeline) HandlePurchaseRequested(ctx context.Context, event *models.PurchaseRequestedEvent) error {
	ctx, span := util.StartSpan(ctx, "Pipeline.HandlePurchaseRequested")
	defer span.End()

	ord, err := p.store.GetOrderByID(ctx, event.OrderID)
	if err != nil {
		return err
	}
	if ord.Status != models.OrderStatusPending {
		p.logger.Info("skipping purchase request, order not pending",
			zap.Int64("order_id", ord.ID),
			zap.String("status", ord.Status))
		return nil
	}

	product, err := p.store.GetProductByID(ctx, ord.ProductID)
	if err != nil {
		return p.failOrder(ctx, ord.ID, models.OrderStatusPending, "decision", err)
	}

	region, err := p.store.GetRegionByID(ctx, ord.RegionID)
	if err != nil {
		return p.failOrder(ctx, ord.ID, models.OrderStatusPending, "decision", err)
	}

	policy := retry.Policy{
		MaxRetries: p.cfg.Decision.MaxRetries,
		Backoff:    p.cfg.Decision.RetryBackoff,
	}

	var dec *decision.Decision
	err = policy.Do(ctx, func(ctx context.Context) error {
		if err := p.discoverer.DiscoverPrices(ctx, ord.ProductID); err != nil {
			return fmt.Errorf("price discovery failed: %w", err)
		}
		quotes, err := p.store.GetFreshQuotes(ctx, ord.ProductID, p.cfg.Decision.FreshnessWindow)
		if err != nil {
			return fmt.Errorf("failed to load quotes: %w", err)
		}
		// the governorate surcharge is part of the landed cost, so the
		// oracle compares quotes with it folded into shipping
		for i := range quotes {
			quotes[i].ShippingCost = quotes[i].ShippingCost.Add(region.DeliverySurcharge)
		}
		d, err := p.decider.Decide(ctx, product, quotes)
		if err != nil {
			return err
		}
		dec = d
		return nil
	})
	if err != nil {
		return p.failOrder(ctx, ord.ID, models.OrderStatusPending, "decision", err)
	}

	// the CAS rejects this when the order was cancelled mid-stage
	if err := p.states.MarkProcessing(ctx, ord.ID, dec.MerchantID, dec.FinalPrice); err != nil {
		var conflict order.ConflictError
		if errors.As(err, &conflict) {
			p.logger.Info("order left PENDING during decision stage, dropping result",
				zap.Int64("order_id", ord.ID))
			return nil
		}
		return err
	}

	if err := p.store.CreateDecisionRecord(ctx, &models.DecisionRecord{
		OrderID:           ord.ID,
		Reasoning:         dec.Reasoning,
		ConsideredQuotes:  dec.ConsideredQuotes,
		RawResponse:       dec.RawResponse,
		ExecutionSecs:     dec.ExecutionSecs,
		Confidence:        dec.Confidence,
		AlternativesCount: dec.AlternativesCount,
	}); err != nil {
		p.logger.Error("failed to persist decision record",
			zap.Int64("order_id", ord.ID),
			zap.Error(err))
	}

	selected := &models.MerchantSelectedEvent{
		BaseEvent:  models.NewBaseEvent(models.EventTypeMerchantSelected),
		OrderID:    ord.ID,
		MerchantID: dec.MerchantID,
		FinalPrice: dec.FinalPrice.String(),
	}
	if err := p.publisher.PublishMerchantSelected(ctx, selected); err != nil {
		// the next redelivery of PURCHASE_REQUESTED is a no-op, so surface
		// the publish failure instead of losing the checkout stage
		return fmt.Errorf("failed to publish MerchantSelected: %w", err)
	}
	return nil
}

// HandleMerchantSelected runs the checkout stage for a PROCESSING order. The
// quote backing the selection must still be fresh; completion is only ever
// recorded after an observed confirmation.
func (p *Pipeline) HandleMerchantSelected(ctx context.Context, event *models.MerchantSelectedEvent) error {
	ctx, span := util.StartSpan(ctx, "Pipeline.HandleMerchantSelected")
	defer span.End()

	ord, err := p.store.GetOrderByID(ctx, event.OrderID)
	if err != nil {
		return err
	}
	if ord.Status != models.OrderStatusProcessing {
		p.logger.Info("skipping checkout, order not processing",
			zap.Int64("order_id", ord.ID),
			zap.String("status", ord.Status))
		return nil
	}
	if ord.SelectedMerchantID == nil {
		return p.failOrder(ctx, ord.ID, models.OrderStatusProcessing, "checkout",
			fmt.Errorf("order has no selected merchant"))
	}

	quote, err := p.store.GetFreshQuoteForMerchant(ctx, ord.ProductID, *ord.SelectedMerchantID, p.cfg.Decision.FreshnessWindow)
	if err != nil {
		return err
	}
	if quote == nil {
		return p.failOrder(ctx, ord.ID, models.OrderStatusProcessing, "checkout",
			fmt.Errorf("quote for merchant %d expired before checkout", *ord.SelectedMerchantID))
	}

	site, err := p.store.GetMerchantByID(ctx, *ord.SelectedMerchantID)
	if err != nil {
		return p.failOrder(ctx, ord.ID, models.OrderStatusProcessing, "checkout", err)
	}

	policy := retry.Policy{
		MaxRetries: p.cfg.Checkout.MaxRetries,
		Backoff:    p.cfg.Checkout.RetryBackoff,
		// a missing confirmation may still mean a placed order, so never
		// re-run checkout after one; same for a rejected charge
		Retryable: func(err error) bool {
			var cerr checkout.ConfirmationError
			var perr checkout.PaymentError
			return !errors.As(err, &cerr) && !errors.As(err, &perr)
		},
	}

	err = policy.Do(ctx, func(ctx context.Context) error {
		return p.purchaser.Purchase(ctx, site, ord, quote)
	})
	if err != nil {
		return p.failOrder(ctx, ord.ID, models.OrderStatusProcessing, "checkout", err)
	}

	paymentStatus, paymentResponse, err := p.settlePayment(ctx, ord, quote)
	if err != nil {
		return p.failOrder(ctx, ord.ID, models.OrderStatusProcessing, "checkout", err)
	}

	if err := p.states.MarkCompleted(ctx, ord.ID, paymentStatus, paymentResponse); err != nil {
		var conflict order.ConflictError
		if errors.As(err, &conflict) {
			p.logger.Warn("order left PROCESSING before completion could be recorded",
				zap.Int64("order_id", ord.ID))
			return nil
		}
		return err
	}

	completed := &models.OrderCompletedEvent{
		BaseEvent:  models.NewBaseEvent(models.EventTypeOrderCompleted),
		OrderID:    ord.ID,
		MerchantID: *ord.SelectedMerchantID,
		FinalPrice: event.FinalPrice,
	}
	if err := p.publisher.PublishOrderCompleted(ctx, completed); err != nil {
		p.logger.Error("failed to publish OrderCompleted", zap.Error(err))
	}
	return nil
}

// settlePayment charges card and installment orders through the provider.
// Cash on delivery needs no charge and stays PENDING until delivery.
func (p *Pipeline) settlePayment(ctx context.Context, ord *models.PurchaseOrder, quote *models.PriceQuote) (string, []byte, error) {
	if ord.PaymentMethod == models.PaymentMethodCash || p.payments == nil {
		return models.PaymentStatusPending, nil, nil
	}

	res, err := p.payments.Charge(ctx, ord, quote.TotalCost())
	if err != nil {
		return "", nil, err
	}
	return res.Status, res.Raw, nil
}

// failOrder moves the order to FAILED with a bounded reason and publishes the
// terminal failure event. It returns nil so the consumer commits the message;
// requeueing a terminally failed stage would just fail again.
func (p *Pipeline) failOrder(ctx context.Context, orderID int64, from, stage string, cause error) error {
	p.logger.Error("pipeline stage failed",
		zap.Int64("order_id", orderID),
		zap.String("stage", stage),
		zap.Error(cause))

	// a rejected charge carries the provider's raw reply; persist it with
	// the failure so the charge outcome stays auditable
	var perr checkout.PaymentError
	var markErr error
	if errors.As(cause, &perr) {
		markErr = p.states.MarkPaymentFailed(ctx, orderID, from, cause.Error(), perr.Raw)
	} else {
		markErr = p.states.MarkFailed(ctx, orderID, from, cause.Error())
	}
	if markErr != nil {
		var conflict order.ConflictError
		if !errors.As(markErr, &conflict) {
			p.logger.Error("failed to mark order failed",
				zap.Int64("order_id", orderID),
				zap.Error(markErr))
		}
	}

	failed := &models.OrderFailedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderFailed),
		OrderID:   orderID,
		Stage:     stage,
		Reason:    cause.Error(),
	}
	if err := p.publisher.PublishOrderFailed(ctx, failed); err != nil {
		p.logger.Error("failed to publish OrderFailed", zap.Error(err))
	}
	return nil
}
