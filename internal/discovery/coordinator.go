// Package discovery fans price scraping out across active merchants,
// caching fresh results and circuit-breaking merchants that keep failing.
package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"purchase-agent/config"
	"purchase-agent/internal/models"
	"purchase-agent/internal/retry"
	"purchase-agent/internal/scraper"
	"purchase-agent/internal/util"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// Store is the persistence surface the coordinator needs. *store.Store
// satisfies it; tests substitute fakes.
type Store interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetActiveMerchants(ctx context.Context) ([]models.MerchantSite, error)
	UpsertQuote(ctx context.Context, quote *models.PriceQuote) error
	RecordMerchantSuccess(ctx context.Context, merchantID int64) error
	RecordMerchantFailure(ctx context.Context, merchantID int64) (int, error)
	DeactivateMerchant(ctx context.Context, merchantID int64) error
}

// SharedCache is the cross-process freshness cache and scrape-lock surface.
// *redisclient.Client satisfies it.
type SharedCache interface {
	IsScrapedFresh(ctx context.Context, merchantID, productID int64) (bool, error)
	MarkScraped(ctx context.Context, merchantID, productID int64, ttl time.Duration) error
	AcquireScrapeLock(ctx context.Context, merchantID, productID int64, ttl time.Duration) (bool, error)
	ReleaseScrapeLock(ctx context.Context, merchantID, productID int64) error
}

// Coordinator dispatches bounded scrape attempts across active merchants
type Coordinator struct {
	store    Store
	redis    SharedCache
	registry *scraper.Registry
	cfg      config.ScrapeConfig
	cache    *expirable.LRU[string, time.Time]
	logger   *zap.Logger
}

// NewCoordinator creates a price discovery coordinator
func NewCoordinator(st Store, redis SharedCache, registry *scraper.Registry, cfg config.ScrapeConfig) *Coordinator {
	return &Coordinator{
		store:    st,
		redis:    redis,
		registry: registry,
		cfg:      cfg,
		cache:    expirable.NewLRU[string, time.Time](1024, nil, cfg.CacheTTL),
		logger:   util.NamedLogger("discovery"),
	}
}

func cacheKey(merchantID, productID int64) string {
	return fmt.Sprintf("%d:%d", merchantID, productID)
}

// DiscoverPrices scrapes every active merchant for the product, skipping
// pairs with a fresh cache entry. Scrapes for different merchants run
// concurrently on a bounded worker pool; per-merchant outcomes never fail the
// whole run, only an empty merchant list does.
func (c *Coordinator) DiscoverPrices(ctx context.Context, productID int64) error {
	ctx, span := util.StartSpan(ctx, "Coordinator.DiscoverPrices")
	defer span.End()

	product, err := c.store.GetProductByID(ctx, productID)
	if err != nil {
		return err
	}

	merchants, err := c.store.GetActiveMerchants(ctx)
	if err != nil {
		return fmt.Errorf("failed to load merchants: %w", err)
	}
	if len(merchants) == 0 {
		return fmt.Errorf("no active merchants")
	}

	jobs := make(chan models.MerchantSite)
	var wg sync.WaitGroup

	workers := c.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for site := range jobs {
				c.scrapeMerchant(ctx, site, product)
			}
		}()
	}

	// merchants arrive ordered by priority descending
	for _, site := range merchants {
		if ctx.Err() != nil {
			break
		}
		jobs <- site
	}
	close(jobs)
	wg.Wait()

	return ctx.Err()
}

func (c *Coordinator) scrapeMerchant(ctx context.Context, site models.MerchantSite, product *models.Product) {
	key := cacheKey(site.ID, product.ID)

	if _, ok := c.cache.Get(key); ok {
		util.ScrapeCacheHitsTotal.Inc()
		return
	}
	if fresh, err := c.redis.IsScrapedFresh(ctx, site.ID, product.ID); err == nil && fresh {
		util.ScrapeCacheHitsTotal.Inc()
		c.cache.Add(key, time.Now())
		return
	}

	impl, ok := c.registry.For(&site)
	if !ok {
		c.logger.Warn("no scraper registered for merchant",
			zap.String("merchant", site.Name),
			zap.String("slug", site.Slug))
		return
	}

	// one scrape per (merchant, product) at a time across all dispatchers
	locked, err := c.redis.AcquireScrapeLock(ctx, site.ID, product.ID, c.cfg.PageLoadTimeout)
	if err != nil {
		c.logger.Warn("scrape lock unavailable", zap.String("merchant", site.Name), zap.Error(err))
	} else if !locked {
		return
	} else {
		defer func() {
			if err := c.redis.ReleaseScrapeLock(context.Background(), site.ID, product.ID); err != nil {
				c.logger.Warn("failed to release scrape lock", zap.Error(err))
			}
		}()
	}

	policy := retry.Policy{
		MaxRetries: c.cfg.MaxRetries,
		Backoff:    c.cfg.RetryBackoff,
		Retryable:  scraper.IsTransient,
	}

	start := time.Now()
	var quote *models.PriceQuote
	err = policy.Do(ctx, func(ctx context.Context) error {
		q, err := impl.Scrape(&site, product)
		if err != nil {
			return err
		}
		quote = q
		return nil
	})
	util.ScrapeLatency.WithLabelValues(site.Slug).Observe(time.Since(start).Seconds())

	switch {
	case err == nil && quote != nil:
		c.recordSuccess(ctx, site, product, quote, key)
	case err == nil:
		// search produced no matching results; not a merchant fault
		util.ScrapesTotal.WithLabelValues(site.Slug, "no_results").Inc()
		if err := c.store.RecordMerchantSuccess(ctx, site.ID); err != nil {
			c.logger.Warn("failed to record scrape outcome", zap.Error(err))
		}
	case scraper.IsTransient(err):
		util.ScrapesTotal.WithLabelValues(site.Slug, "transient_error").Inc()
		c.recordFailure(ctx, site, err)
	default:
		// permanent: skip this merchant for the run, no retry, no breaker
		util.ScrapesTotal.WithLabelValues(site.Slug, "permanent_error").Inc()
		c.logger.Warn("permanent scrape failure, skipping merchant",
			zap.String("merchant", site.Name),
			zap.Error(err))
	}
}

func (c *Coordinator) recordSuccess(ctx context.Context, site models.MerchantSite, product *models.Product, quote *models.PriceQuote, key string) {
	if err := c.store.UpsertQuote(ctx, quote); err != nil {
		c.logger.Error("failed to upsert quote",
			zap.String("merchant", site.Name),
			zap.Int64("product_id", product.ID),
			zap.Error(err))
		return
	}
	if err := c.store.RecordMerchantSuccess(ctx, site.ID); err != nil {
		c.logger.Warn("failed to record scrape outcome", zap.Error(err))
	}
	if err := c.redis.MarkScraped(ctx, site.ID, product.ID, c.cfg.CacheTTL); err != nil {
		c.logger.Warn("failed to mark scrape cache", zap.Error(err))
	}
	c.cache.Add(key, time.Now())
	util.ScrapesTotal.WithLabelValues(site.Slug, "success").Inc()

	c.logger.Info("quote captured",
		zap.String("merchant", site.Name),
		zap.Int64("product_id", product.ID),
		zap.String("price", quote.Price.String()))
}

// recordFailure counts a transient failure and trips the circuit breaker
// once the merchant hits the cutoff. The site stays inactive until manually
// re-enabled.
func (c *Coordinator) recordFailure(ctx context.Context, site models.MerchantSite, scrapeErr error) {
	c.logger.Error("scrape failed after retries",
		zap.String("merchant", site.Name),
		zap.Error(scrapeErr))

	count, err := c.store.RecordMerchantFailure(ctx, site.ID)
	if err != nil {
		c.logger.Warn("failed to count merchant failure", zap.Error(err))
		return
	}
	if count >= c.cfg.FailureCutoff {
		if err := c.store.DeactivateMerchant(ctx, site.ID); err != nil {
			c.logger.Error("failed to deactivate merchant", zap.Error(err))
			return
		}
		util.MerchantsDeactivatedTotal.Inc()
		c.logger.Warn("merchant deactivated after consecutive failures",
			zap.String("merchant", site.Name),
			zap.Int("failures", count))
	}
}
