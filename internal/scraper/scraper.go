// Package scraper extracts normalized price and availability data from
// merchant websites. Each merchant gets its own Scraper implementation with
// its own selector set; the registry picks one by merchant slug.
package scraper

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"purchase-agent/internal/models"

	"github.com/gocolly/colly/v2"
)

// Scraper extracts one normalized quote for a product from one merchant
// site. A nil quote with a nil error means the search produced no matching
// results. Every failure is classified as TransientError or PermanentError.
type Scraper interface {
	Slug() string
	Scrape(site *models.MerchantSite, product *models.Product) (*models.PriceQuote, error)
}

// Options configures the shared HTTP behaviour of all site scrapers.
type Options struct {
	UserAgent string
	// Timeout bounds the whole page fetch.
	Timeout time.Duration
	// WaitTimeout bounds the wait for the server to start responding.
	WaitTimeout time.Duration
	// Transport overrides the HTTP transport; tests inject a mock here.
	Transport http.RoundTripper
}

// Registry selects the scraper implementation for a merchant by slug.
type Registry struct {
	bySlug map[string]Scraper
}

// NewRegistry builds a registry from the given scrapers.
func NewRegistry(scrapers ...Scraper) *Registry {
	bySlug := make(map[string]Scraper, len(scrapers))
	for _, s := range scrapers {
		bySlug[s.Slug()] = s
	}
	return &Registry{bySlug: bySlug}
}

// For returns the scraper for a merchant site, if one is registered.
func (r *Registry) For(site *models.MerchantSite) (Scraper, bool) {
	s, ok := r.bySlug[site.Slug]
	return s, ok
}

// maxListings bounds how many search results are considered per merchant.
const maxListings = 5

func newCollector(baseURL string, opts Options) (*colly.Collector, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return nil, PermanentError{Err: err}
	}

	c := colly.NewCollector(
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(opts.UserAgent),
	)
	c.SetRequestTimeout(opts.Timeout)
	if opts.Transport != nil {
		c.WithTransport(opts.Transport)
		return c, nil
	}
	c.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: opts.WaitTimeout,
	})

	return c, nil
}

func searchURL(baseURL, productName string) string {
	return strings.TrimRight(baseURL, "/") + "/recherche?controller=search&s=" + url.QueryEscape(productName)
}

// newQuote fills the fields shared by all merchant scrapers, including the
// policy-derived delivery and shipping estimates.
func newQuote(site *models.MerchantSite, product *models.Product, slug string) *models.PriceQuote {
	policy := PolicyFor(slug)
	return &models.PriceQuote{
		ProductID:    product.ID,
		MerchantID:   site.ID,
		MerchantName: site.Name,
		Currency:     "TND",
		DeliveryDays: policy.DeliveryDays,
		CapturedAt:   time.Now(),
	}
}
