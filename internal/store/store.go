package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"purchase-agent/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetRegionByID retrieves a delivery region by ID
func (s *Store) GetRegionByID(ctx context.Context, id int64) (*models.Region, error) {
	var region models.Region
	err := s.db.GetContext(ctx, &region, "SELECT * FROM regions WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("region not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &region, nil
}

// GetActiveMerchants retrieves active merchant sites ordered by priority,
// highest first
func (s *Store) GetActiveMerchants(ctx context.Context) ([]models.MerchantSite, error) {
	var merchants []models.MerchantSite
	err := s.db.SelectContext(ctx, &merchants,
		"SELECT * FROM merchant_sites WHERE active = TRUE ORDER BY priority DESC, id")
	return merchants, err
}

// GetMerchantByID retrieves a merchant site by ID
func (s *Store) GetMerchantByID(ctx context.Context, id int64) (*models.MerchantSite, error) {
	var merchant models.MerchantSite
	err := s.db.GetContext(ctx, &merchant, "SELECT * FROM merchant_sites WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("merchant not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &merchant, nil
}

// RecordMerchantSuccess resets the failure counter and stamps the scrape time
func (s *Store) RecordMerchantSuccess(ctx context.Context, merchantID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE merchant_sites SET consecutive_failures = 0, last_scraped_at = NOW() WHERE id = $1",
		merchantID)
	return err
}

// RecordMerchantFailure increments the failure counter and returns the new count
func (s *Store) RecordMerchantFailure(ctx context.Context, merchantID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"UPDATE merchant_sites SET consecutive_failures = consecutive_failures + 1 WHERE id = $1 RETURNING consecutive_failures",
		merchantID)
	return count, err
}

// DeactivateMerchant flips a merchant's active flag off. The site stays
// inactive until manually re-enabled.
func (s *Store) DeactivateMerchant(ctx context.Context, merchantID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE merchant_sites SET active = FALSE WHERE id = $1", merchantID)
	return err
}
