package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"purchase-agent/config"
	"purchase-agent/internal/models"
	"purchase-agent/internal/scraper"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu           sync.Mutex
	product      *models.Product
	merchants    []models.MerchantSite
	quotes       []*models.PriceQuote
	failures     map[int64]int
	deactivated  []int64
	successCalls int
}

func (f *fakeStore) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	return f.product, nil
}

func (f *fakeStore) GetActiveMerchants(ctx context.Context) ([]models.MerchantSite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.MerchantSite, len(f.merchants))
	copy(out, f.merchants)
	return out, nil
}

func (f *fakeStore) UpsertQuote(ctx context.Context, quote *models.PriceQuote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes = append(f.quotes, quote)
	return nil
}

func (f *fakeStore) RecordMerchantSuccess(ctx context.Context, merchantID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successCalls++
	return nil
}

func (f *fakeStore) RecordMerchantFailure(ctx context.Context, merchantID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures == nil {
		f.failures = make(map[int64]int)
	}
	f.failures[merchantID]++
	return f.failures[merchantID], nil
}

func (f *fakeStore) DeactivateMerchant(ctx context.Context, merchantID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated = append(f.deactivated, merchantID)
	return nil
}

type fakeCache struct {
	mu     sync.Mutex
	marked map[string]bool
}

func (f *fakeCache) key(m, p int64) string {
	return fmt.Sprintf("%d:%d", m, p)
}

func (f *fakeCache) IsScrapedFresh(ctx context.Context, merchantID, productID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.marked[f.key(merchantID, productID)], nil
}

func (f *fakeCache) MarkScraped(ctx context.Context, merchantID, productID int64, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.marked == nil {
		f.marked = make(map[string]bool)
	}
	f.marked[f.key(merchantID, productID)] = true
	return nil
}

func (f *fakeCache) AcquireScrapeLock(ctx context.Context, merchantID, productID int64, ttl time.Duration) (bool, error) {
	return true, nil
}

func (f *fakeCache) ReleaseScrapeLock(ctx context.Context, merchantID, productID int64) error {
	return nil
}

type fakeScraper struct {
	mu    sync.Mutex
	slug  string
	calls int
	quote *models.PriceQuote
	err   error
}

func (f *fakeScraper) Slug() string { return f.slug }

func (f *fakeScraper) Scrape(site *models.MerchantSite, product *models.Product) (*models.PriceQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.quote, nil
}

func (f *fakeScraper) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testScrapeConfig() config.ScrapeConfig {
	return config.ScrapeConfig{
		CacheTTL:      time.Hour,
		MaxRetries:    2,
		RetryBackoff:  time.Millisecond,
		Workers:       2,
		FailureCutoff: 2,
	}
}

func testQuote() *models.PriceQuote {
	return &models.PriceQuote{
		ProductID:  42,
		MerchantID: 1,
		Price:      decimal.NewFromInt(100),
		Currency:   "TND",
		CapturedAt: time.Now(),
	}
}

func TestDiscoverPricesUpsertsQuotes(t *testing.T) {
	st := &fakeStore{
		product: &models.Product{ID: 42, Name: "asus laptop"},
		merchants: []models.MerchantSite{
			{ID: 1, Name: "Tunisianet", Slug: "tunisianet", Active: true, Priority: 10},
		},
	}
	sc := &fakeScraper{slug: "tunisianet", quote: testQuote()}
	c := NewCoordinator(st, &fakeCache{}, scraper.NewRegistry(sc), testScrapeConfig())

	require.NoError(t, c.DiscoverPrices(context.Background(), 42))
	assert.Len(t, st.quotes, 1)
	assert.Equal(t, 1, sc.callCount())
}

func TestDiscoverPricesSkipsFreshCacheEntry(t *testing.T) {
	st := &fakeStore{
		product: &models.Product{ID: 42, Name: "asus laptop"},
		merchants: []models.MerchantSite{
			{ID: 1, Name: "Tunisianet", Slug: "tunisianet", Active: true},
		},
	}
	sc := &fakeScraper{slug: "tunisianet", quote: testQuote()}
	c := NewCoordinator(st, &fakeCache{}, scraper.NewRegistry(sc), testScrapeConfig())

	require.NoError(t, c.DiscoverPrices(context.Background(), 42))
	require.NoError(t, c.DiscoverPrices(context.Background(), 42))

	assert.Equal(t, 1, sc.callCount(), "fresh pair must not be re-scraped before TTL expiry")
	assert.Len(t, st.quotes, 1)
}

func TestDiscoverPricesTripsCircuitBreaker(t *testing.T) {
	st := &fakeStore{
		product: &models.Product{ID: 42, Name: "asus laptop"},
		merchants: []models.MerchantSite{
			{ID: 7, Name: "Flaky", Slug: "flaky", Active: true, ConsecutiveFailures: 1},
		},
		failures: map[int64]int{7: 1},
	}
	sc := &fakeScraper{slug: "flaky", err: scraper.TransientError{Err: errors.New("timeout")}}
	c := NewCoordinator(st, &fakeCache{}, scraper.NewRegistry(sc), testScrapeConfig())

	require.NoError(t, c.DiscoverPrices(context.Background(), 42))

	assert.Equal(t, 3, sc.callCount(), "initial attempt plus two retries")
	assert.Contains(t, st.deactivated, int64(7))
}

func TestDiscoverPricesPermanentErrorSkipsWithoutRetry(t *testing.T) {
	st := &fakeStore{
		product: &models.Product{ID: 42, Name: "asus laptop"},
		merchants: []models.MerchantSite{
			{ID: 3, Name: "Broken", Slug: "broken", Active: true},
		},
	}
	sc := &fakeScraper{slug: "broken", err: scraper.PermanentError{Err: errors.New("layout changed")}}
	c := NewCoordinator(st, &fakeCache{}, scraper.NewRegistry(sc), testScrapeConfig())

	require.NoError(t, c.DiscoverPrices(context.Background(), 42))

	assert.Equal(t, 1, sc.callCount(), "permanent failures are not retried")
	assert.Empty(t, st.deactivated)
	assert.Empty(t, st.failures[int64(3)])
}

func TestDiscoverPricesSharedCacheSuppressesScrape(t *testing.T) {
	st := &fakeStore{
		product: &models.Product{ID: 42, Name: "asus laptop"},
		merchants: []models.MerchantSite{
			{ID: 1, Name: "Tunisianet", Slug: "tunisianet", Active: true},
		},
	}
	cache := &fakeCache{}
	require.NoError(t, cache.MarkScraped(context.Background(), 1, 42, time.Hour))

	sc := &fakeScraper{slug: "tunisianet", quote: testQuote()}
	c := NewCoordinator(st, cache, scraper.NewRegistry(sc), testScrapeConfig())

	require.NoError(t, c.DiscoverPrices(context.Background(), 42))
	assert.Equal(t, 0, sc.callCount())
}
