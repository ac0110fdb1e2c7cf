package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"purchase-agent/internal/models"

	"github.com/shopspring/decimal"
)

// CreateOrder creates a new purchase order in PENDING status
func (s *Store) CreateOrder(ctx context.Context, order *models.PurchaseOrder) error {
	query := `
		INSERT INTO purchase_orders
			(user_id, product_id, status, region_id, shipping_address, contact_phone,
			 payment_method, is_business, special_instructions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, order, query,
		order.UserID, order.ProductID, order.Status, order.RegionID,
		order.ShippingAddress, order.ContactPhone, order.PaymentMethod,
		order.IsBusiness, order.SpecialInstructions)
}

// GetOrderByID retrieves a purchase order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.PurchaseOrder, error) {
	var order models.PurchaseOrder
	err := s.db.GetContext(ctx, &order, "SELECT * FROM purchase_orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByUserID retrieves orders for a user
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.PurchaseOrder, error) {
	var orders []models.PurchaseOrder
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM purchase_orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// OrderUpdate carries the fields written together with a status transition.
// Nil fields are left untouched.
type OrderUpdate struct {
	Status             string
	SelectedMerchantID *int64
	FinalPrice         *decimal.Decimal
	ErrorMessage       *string
	PaymentStatus      *string
	PaymentResponse    []byte
	CompletedAt        *time.Time
}

// TransitionOrder applies a status transition and its companion fields in a
// single UPDATE guarded by the expected current status. It reports false when
// the order was not in fromStatus, which callers treat as a lost race or a
// redelivered stage. All fields land atomically or not at all.
func (s *Store) TransitionOrder(ctx context.Context, orderID int64, fromStatus string, upd OrderUpdate) (bool, error) {
	sets := []string{"status = $3", "updated_at = NOW()"}
	args := []interface{}{orderID, fromStatus, upd.Status}

	add := func(col string, val interface{}) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if upd.SelectedMerchantID != nil {
		add("selected_merchant_id", *upd.SelectedMerchantID)
	}
	if upd.FinalPrice != nil {
		add("final_price", *upd.FinalPrice)
	}
	if upd.ErrorMessage != nil {
		add("error_message", *upd.ErrorMessage)
	}
	if upd.PaymentStatus != nil {
		add("payment_status", *upd.PaymentStatus)
	}
	if upd.PaymentResponse != nil {
		add("payment_response", upd.PaymentResponse)
	}
	if upd.CompletedAt != nil {
		add("completed_at", *upd.CompletedAt)
	}

	query := fmt.Sprintf(
		"UPDATE purchase_orders SET %s WHERE id = $1 AND status = $2",
		strings.Join(sets, ", "))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CreateDecisionRecord appends one immutable decision audit entry
func (s *Store) CreateDecisionRecord(ctx context.Context, rec *models.DecisionRecord) error {
	query := `
		INSERT INTO decision_records
			(order_id, reasoning, considered_quotes, raw_response, execution_secs,
			 confidence, alternatives_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, rec, query,
		rec.OrderID, rec.Reasoning, rec.ConsideredQuotes, rec.RawResponse,
		rec.ExecutionSecs, rec.Confidence, rec.AlternativesCount)
}

// GetDecisionRecords retrieves the decision audit trail for an order, newest first
func (s *Store) GetDecisionRecords(ctx context.Context, orderID int64) ([]models.DecisionRecord, error) {
	var records []models.DecisionRecord
	err := s.db.SelectContext(ctx, &records,
		"SELECT * FROM decision_records WHERE order_id = $1 ORDER BY created_at DESC", orderID)
	return records, err
}
