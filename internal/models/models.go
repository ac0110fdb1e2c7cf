package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog product the agent can purchase
type Product struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Manufacturer string    `db:"manufacturer" json:"manufacturer,omitempty"`
	ModelNumber  string    `db:"model_number" json:"model_number,omitempty"`
	ImageURL     string    `db:"image_url" json:"image_url,omitempty"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// MerchantSite is one scrapeable merchant website
type MerchantSite struct {
	ID                  int64      `db:"id" json:"id"`
	Name                string     `db:"name" json:"name"`
	Slug                string     `db:"slug" json:"slug"`
	BaseURL             string     `db:"base_url" json:"base_url"`
	Active              bool       `db:"active" json:"active"`
	Priority            int        `db:"priority" json:"priority"`
	SupportsGuest       bool       `db:"supports_guest" json:"supports_guest"`
	LastScrapedAt       *time.Time `db:"last_scraped_at" json:"last_scraped_at,omitempty"`
	ScrapeIntervalSecs  int        `db:"scrape_interval_secs" json:"scrape_interval_secs"`
	ConsecutiveFailures int        `db:"consecutive_failures" json:"consecutive_failures"`
}

// PriceQuote is one merchant's priced, timestamped offer for a product.
// Only the latest quote per (product, merchant) is kept.
type PriceQuote struct {
	ID                 int64            `db:"id" json:"id"`
	ProductID          int64            `db:"product_id" json:"product_id"`
	MerchantID         int64            `db:"merchant_id" json:"merchant_id"`
	MerchantName       string           `db:"merchant_name" json:"merchant_name"`
	Price              decimal.Decimal  `db:"price" json:"price"`
	OriginalPrice      *decimal.Decimal `db:"original_price" json:"original_price,omitempty"`
	DiscountPercentage *decimal.Decimal `db:"discount_percentage" json:"discount_percentage,omitempty"`
	Currency           string           `db:"currency" json:"currency"`
	Available          bool             `db:"available" json:"available"`
	AvailabilityText   string           `db:"availability_text" json:"availability_text,omitempty"`
	DeliveryDays       int              `db:"delivery_days" json:"delivery_days"`
	ShippingCost       decimal.Decimal  `db:"shipping_cost" json:"shipping_cost"`
	ProductURL         string           `db:"product_url" json:"product_url,omitempty"`
	ImageURL           string           `db:"image_url" json:"image_url,omitempty"`
	CapturedAt         time.Time        `db:"captured_at" json:"captured_at"`
}

// TotalCost is the decision-relevant cost: price plus shipping.
func (q *PriceQuote) TotalCost() decimal.Decimal {
	return q.Price.Add(q.ShippingCost)
}

// ComputeDiscount sets DiscountPercentage when a real markdown exists
// (original > price > 0), and clears it otherwise.
func (q *PriceQuote) ComputeDiscount() {
	q.DiscountPercentage = nil
	if q.OriginalPrice == nil {
		return
	}
	orig := *q.OriginalPrice
	if !orig.IsPositive() || !q.Price.IsPositive() || orig.LessThanOrEqual(q.Price) {
		return
	}
	pct := orig.Sub(q.Price).Div(orig).Mul(decimal.NewFromInt(100)).Round(2)
	q.DiscountPercentage = &pct
}

// IsFresh reports whether the quote was captured within the given window.
func (q *PriceQuote) IsFresh(window time.Duration, now time.Time) bool {
	return now.Sub(q.CapturedAt) <= window
}

// Region is a delivery destination with its surcharge
type Region struct {
	ID                int64           `db:"id" json:"id"`
	Name              string          `db:"name" json:"name"`
	Code              string          `db:"code" json:"code"`
	DeliverySurcharge decimal.Decimal `db:"delivery_surcharge" json:"delivery_surcharge"`
}

// PurchaseOrder is a request to buy one product at the best price
type PurchaseOrder struct {
	ID                  int64            `db:"id" json:"id"`
	UserID              int64            `db:"user_id" json:"user_id"`
	ProductID           int64            `db:"product_id" json:"product_id"`
	Status              string           `db:"status" json:"status"`
	SelectedMerchantID  *int64           `db:"selected_merchant_id" json:"selected_merchant_id,omitempty"`
	FinalPrice          *decimal.Decimal `db:"final_price" json:"final_price,omitempty"`
	RegionID            int64            `db:"region_id" json:"region_id"`
	ShippingAddress     string           `db:"shipping_address" json:"shipping_address"`
	ContactPhone        string           `db:"contact_phone" json:"contact_phone"`
	PaymentMethod       string           `db:"payment_method" json:"payment_method"`
	PaymentStatus       string           `db:"payment_status" json:"payment_status,omitempty"`
	PaymentResponse     []byte           `db:"payment_response" json:"payment_response,omitempty"`
	IsBusiness          bool             `db:"is_business" json:"is_business"`
	SpecialInstructions string           `db:"special_instructions" json:"special_instructions,omitempty"`
	ErrorMessage        string           `db:"error_message" json:"error_message,omitempty"`
	CreatedAt           time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time        `db:"updated_at" json:"updated_at"`
	CompletedAt         *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
}

// DecisionRecord is an append-only audit entry for one oracle decision
type DecisionRecord struct {
	ID                int64     `db:"id" json:"id"`
	OrderID           int64     `db:"order_id" json:"order_id"`
	Reasoning         string    `db:"reasoning" json:"reasoning"`
	ConsideredQuotes  []byte    `db:"considered_quotes" json:"considered_quotes"`
	RawResponse       []byte    `db:"raw_response" json:"raw_response"`
	ExecutionSecs     float64   `db:"execution_secs" json:"execution_secs"`
	Confidence        *float64  `db:"confidence" json:"confidence,omitempty"`
	AlternativesCount int       `db:"alternatives_count" json:"alternatives_count"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// Order statuses
const (
	OrderStatusPending              = "PENDING"
	OrderStatusAwaitingConfirmation = "AWAITING_CONFIRMATION"
	OrderStatusProcessing           = "PROCESSING"
	OrderStatusCompleted            = "COMPLETED"
	OrderStatusFailed               = "FAILED"
	OrderStatusCancelled            = "CANCELLED"
)

// Payment methods
const (
	PaymentMethodCash        = "CASH"
	PaymentMethodCard        = "CARD"
	PaymentMethodInstallment = "INSTALLMENT"
)

// Payment statuses
const (
	PaymentStatusPending = "PENDING"
	PaymentStatusSuccess = "SUCCESS"
	PaymentStatusFailed  = "FAILED"
)

// ConvertCurrency converts between supported currencies using fixed rates.
// Unknown pairs pass the amount through unchanged.
func ConvertCurrency(amount decimal.Decimal, from, to string) decimal.Decimal {
	if from == to {
		return amount
	}
	rates := map[string]map[string]string{
		"USD": {"TND": "3.1"},
		"EUR": {"USD": "1.1", "TND": "3.3"},
		"TND": {"USD": "0.3226", "EUR": "0.3030"},
	}
	rate, ok := rates[from][to]
	if !ok {
		return amount
	}
	r, _ := decimal.NewFromString(rate)
	return amount.Mul(r)
}
