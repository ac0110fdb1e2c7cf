// Package order owns the purchase order status graph. Every status change in
// the pipeline goes through the state machine, which validates the transition
// and applies it as a compare-and-swap on the current status.
package order

import (
	"context"
	"fmt"
	"time"

	"purchase-agent/internal/models"
	"purchase-agent/internal/store"
	"purchase-agent/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxErrorMessage bounds the persisted failure reason.
const maxErrorMessage = 200

// transitions is the allowed status graph. COMPLETED and CANCELLED are
// terminal; FAILED orders can be requeued back to PENDING.
var transitions = map[string][]string{
	models.OrderStatusPending: {
		models.OrderStatusAwaitingConfirmation,
		models.OrderStatusProcessing,
		models.OrderStatusFailed,
		models.OrderStatusCancelled,
	},
	models.OrderStatusAwaitingConfirmation: {
		models.OrderStatusProcessing,
		models.OrderStatusCompleted,
		models.OrderStatusFailed,
		models.OrderStatusCancelled,
	},
	models.OrderStatusProcessing: {
		models.OrderStatusCompleted,
		models.OrderStatusFailed,
		models.OrderStatusCancelled,
	},
	models.OrderStatusFailed: {
		models.OrderStatusPending,
		models.OrderStatusCancelled,
	},
	models.OrderStatusCompleted: {},
	models.OrderStatusCancelled: {},
}

// InvalidTransitionError reports a status change the graph forbids.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition %s -> %s", e.From, e.To)
}

// ConflictError reports a compare-and-swap miss: the order was not in the
// expected status when the update ran. Redelivered stage events and cancel
// races surface here.
type ConflictError struct {
	OrderID  int64
	Expected string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("order %d is no longer in status %s", e.OrderID, e.Expected)
}

// Store is the persistence surface the state machine needs.
type Store interface {
	GetOrderByID(ctx context.Context, id int64) (*models.PurchaseOrder, error)
	TransitionOrder(ctx context.Context, orderID int64, fromStatus string, upd store.OrderUpdate) (bool, error)
}

// StateMachine applies validated order status transitions.
type StateMachine struct {
	store  Store
	logger *zap.Logger
}

// NewStateMachine creates an order state machine over the given store.
func NewStateMachine(st Store) *StateMachine {
	return &StateMachine{
		store:  st,
		logger: util.NamedLogger("order"),
	}
}

// CanTransition reports whether the graph allows from -> to.
func CanTransition(from, to string) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func IsTerminal(status string) bool {
	return len(transitions[status]) == 0
}

// Transition validates from -> upd.Status against the graph and applies it
// atomically. A compare-and-swap miss comes back as ConflictError.
func (m *StateMachine) Transition(ctx context.Context, orderID int64, from string, upd store.OrderUpdate) error {
	if !CanTransition(from, upd.Status) {
		return InvalidTransitionError{From: from, To: upd.Status}
	}

	ok, err := m.store.TransitionOrder(ctx, orderID, from, upd)
	if err != nil {
		return fmt.Errorf("failed to transition order %d: %w", orderID, err)
	}
	if !ok {
		return ConflictError{OrderID: orderID, Expected: from}
	}

	m.logger.Info("order transitioned",
		zap.Int64("order_id", orderID),
		zap.String("from", from),
		zap.String("to", upd.Status))
	return nil
}

// MarkProcessing records the selected merchant and price and moves the order
// out of PENDING.
func (m *StateMachine) MarkProcessing(ctx context.Context, orderID, merchantID int64, finalPrice decimal.Decimal) error {
	return m.Transition(ctx, orderID, models.OrderStatusPending, store.OrderUpdate{
		Status:             models.OrderStatusProcessing,
		SelectedMerchantID: &merchantID,
		FinalPrice:         &finalPrice,
	})
}

// MarkCompleted finalizes a PROCESSING order with its payment outcome.
func (m *StateMachine) MarkCompleted(ctx context.Context, orderID int64, paymentStatus string, paymentResponse []byte) error {
	now := time.Now()
	util.OrdersCompletedTotal.Inc()
	return m.Transition(ctx, orderID, models.OrderStatusProcessing, store.OrderUpdate{
		Status:          models.OrderStatusCompleted,
		PaymentStatus:   &paymentStatus,
		PaymentResponse: paymentResponse,
		CompletedAt:     &now,
	})
}

// MarkFailed moves the order to FAILED with a truncated reason. Selected
// merchant and price survive the failure for later inspection or requeue.
func (m *StateMachine) MarkFailed(ctx context.Context, orderID int64, from, reason string) error {
	msg := truncateReason(reason)
	err := m.Transition(ctx, orderID, from, store.OrderUpdate{
		Status:       models.OrderStatusFailed,
		ErrorMessage: &msg,
	})
	if err == nil {
		util.OrdersFailedTotal.WithLabelValues(from).Inc()
	}
	return err
}

// MarkPaymentFailed moves the order to FAILED after a rejected charge,
// keeping the provider's raw reply so the outcome can be audited before any
// manual requeue.
func (m *StateMachine) MarkPaymentFailed(ctx context.Context, orderID int64, from, reason string, response []byte) error {
	msg := truncateReason(reason)
	status := models.PaymentStatusFailed
	err := m.Transition(ctx, orderID, from, store.OrderUpdate{
		Status:          models.OrderStatusFailed,
		ErrorMessage:    &msg,
		PaymentStatus:   &status,
		PaymentResponse: response,
	})
	if err == nil {
		util.OrdersFailedTotal.WithLabelValues(from).Inc()
	}
	return err
}

// Cancel moves the order to CANCELLED from whatever non-terminal status it
// currently holds.
func (m *StateMachine) Cancel(ctx context.Context, orderID int64) error {
	o, err := m.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	err = m.Transition(ctx, orderID, o.Status, store.OrderUpdate{
		Status: models.OrderStatusCancelled,
	})
	if err == nil {
		util.OrdersCancelledTotal.Inc()
	}
	return err
}

// Requeue moves a FAILED order back to PENDING, clearing the failure message.
func (m *StateMachine) Requeue(ctx context.Context, orderID int64) error {
	empty := ""
	return m.Transition(ctx, orderID, models.OrderStatusFailed, store.OrderUpdate{
		Status:       models.OrderStatusPending,
		ErrorMessage: &empty,
	})
}

func truncateReason(s string) string {
	if len(s) <= maxErrorMessage {
		return s
	}
	return s[:maxErrorMessage]
}
