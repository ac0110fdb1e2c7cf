package store

import (
	"context"
	"database/sql"
	"time"

	"purchase-agent/internal/models"
)

// UpsertQuote stores the latest quote for a (product, merchant) pair,
// overwriting any prior quote for that pair.
func (s *Store) UpsertQuote(ctx context.Context, quote *models.PriceQuote) error {
	quote.ComputeDiscount()

	query := `
		INSERT INTO price_quotes
			(product_id, merchant_id, price, original_price, discount_percentage,
			 currency, available, availability_text, delivery_days, shipping_cost,
			 product_url, image_url, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (product_id, merchant_id) DO UPDATE SET
			price = EXCLUDED.price,
			original_price = EXCLUDED.original_price,
			discount_percentage = EXCLUDED.discount_percentage,
			currency = EXCLUDED.currency,
			available = EXCLUDED.available,
			availability_text = EXCLUDED.availability_text,
			delivery_days = EXCLUDED.delivery_days,
			shipping_cost = EXCLUDED.shipping_cost,
			product_url = EXCLUDED.product_url,
			image_url = EXCLUDED.image_url,
			captured_at = EXCLUDED.captured_at
		RETURNING id`

	return s.db.GetContext(ctx, &quote.ID, query,
		quote.ProductID, quote.MerchantID, quote.Price, quote.OriginalPrice,
		quote.DiscountPercentage, quote.Currency, quote.Available,
		quote.AvailabilityText, quote.DeliveryDays, quote.ShippingCost,
		quote.ProductURL, quote.ImageURL, quote.CapturedAt)
}

// GetFreshQuotes retrieves quotes for a product captured within the freshness
// window, cheapest total cost first.
func (s *Store) GetFreshQuotes(ctx context.Context, productID int64, window time.Duration) ([]models.PriceQuote, error) {
	var quotes []models.PriceQuote
	err := s.db.SelectContext(ctx, &quotes, `
		SELECT q.*, m.name AS merchant_name
		FROM price_quotes q
		JOIN merchant_sites m ON m.id = q.merchant_id
		WHERE q.product_id = $1 AND q.captured_at >= $2
		ORDER BY q.price + q.shipping_cost ASC`,
		productID, time.Now().Add(-window))
	return quotes, err
}

// GetFreshQuoteForMerchant retrieves the quote backing a selected merchant,
// or nil when it is missing or stale.
func (s *Store) GetFreshQuoteForMerchant(ctx context.Context, productID, merchantID int64, window time.Duration) (*models.PriceQuote, error) {
	var quote models.PriceQuote
	err := s.db.GetContext(ctx, &quote, `
		SELECT q.*, m.name AS merchant_name
		FROM price_quotes q
		JOIN merchant_sites m ON m.id = q.merchant_id
		WHERE q.product_id = $1 AND q.merchant_id = $2 AND q.captured_at >= $3`,
		productID, merchantID, time.Now().Add(-window))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &quote, nil
}
