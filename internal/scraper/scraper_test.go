package scraper

import (
	"net/http"
	"testing"
	"time"

	"purchase-agent/internal/models"

	"github.com/jarcoal/httpmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tunisianetSearchHTML = `
<html><body>
<div class="products row">
  <article class="product-miniature">
    <h3 class="product-title"><a href="/pc-portable-123.html">PC Portable Asus</a></h3>
    <div class="product-price-and-shipping">
      <span class="regular-price">2 599,000 DT</span>
      <span class="price">2 299,000 DT</span>
    </div>
    <div class="product-availability">En stock</div>
    <div class="product-thumbnail"><img src="/img/123.jpg"/></div>
  </article>
</div>
</body></html>`

const megapcSearchHTML = `
<html><body>
<article class="product-miniature">
  <h3 class="product-title"><a href="/produit/456">PC Portable Asus</a></h3>
  <span class="price">2 349,000 DT</span>
  <span class="availability">Disponible</span>
  <div class="product-image"><img src="/img/456.jpg"/></div>
</article>
</body></html>`

func testSite(slug, baseURL string) *models.MerchantSite {
	return &models.MerchantSite{
		ID:      1,
		Name:    slug,
		Slug:    slug,
		BaseURL: baseURL,
		Active:  true,
	}
}

func testProduct() *models.Product {
	return &models.Product{ID: 42, Name: "PC Portable Asus"}
}

// htmlResponder serves body with an HTML content type so colly's OnHTML
// callbacks run, matching what the real merchant sites send.
func htmlResponder(status int, body string) httpmock.Responder {
	return httpmock.NewStringResponder(status, body).
		HeaderSet(http.Header{"Content-Type": []string{"text/html; charset=utf-8"}})
}

func testOptions(transport *httpmock.MockTransport) Options {
	return Options{
		UserAgent: "test-agent",
		Timeout:   5 * time.Second,
		Transport: transport,
	}
}

func TestTunisianetScrapeParsesListing(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `=~^http://tunisianet\.test/recherche`,
		htmlResponder(200, tunisianetSearchHTML))

	s := NewTunisianet(testOptions(transport))
	quote, err := s.Scrape(testSite("tunisianet", "http://tunisianet.test"), testProduct())

	require.NoError(t, err)
	require.NotNil(t, quote)
	assert.True(t, quote.Price.Equal(decimal.NewFromInt(2299)), "price = %s", quote.Price)
	require.NotNil(t, quote.OriginalPrice)
	assert.True(t, quote.OriginalPrice.Equal(decimal.NewFromInt(2599)))
	assert.True(t, quote.Available)
	assert.Equal(t, "En stock", quote.AvailabilityText)
	assert.Equal(t, 3, quote.DeliveryDays)
	assert.True(t, quote.ShippingCost.Equal(decimal.Zero), "free shipping over 500")
	assert.Equal(t, "http://tunisianet.test/pc-portable-123.html", quote.ProductURL)
	assert.Equal(t, int64(42), quote.ProductID)
	assert.WithinDuration(t, time.Now(), quote.CapturedAt, 5*time.Second)
}

func TestMegaPCScrapeParsesListing(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `=~^http://megapc\.test/recherche`,
		htmlResponder(200, megapcSearchHTML))

	s := NewMegaPC(testOptions(transport))
	quote, err := s.Scrape(testSite("megapc", "http://megapc.test"), testProduct())

	require.NoError(t, err)
	require.NotNil(t, quote)
	assert.True(t, quote.Price.Equal(decimal.NewFromInt(2349)), "price = %s", quote.Price)
	assert.Nil(t, quote.OriginalPrice)
	assert.True(t, quote.Available)
}

func TestScrapeNoResultsReturnsNil(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `=~^http://tunisianet\.test/recherche`,
		htmlResponder(200, `<html><body><div class="products row"></div></body></html>`))

	s := NewTunisianet(testOptions(transport))
	quote, err := s.Scrape(testSite("tunisianet", "http://tunisianet.test"), testProduct())

	assert.NoError(t, err)
	assert.Nil(t, quote)
}

func TestScrapeUnparsablePriceIsPermanent(t *testing.T) {
	broken := `
<html><body>
<div class="products row">
  <article class="product-miniature">
    <h3 class="product-title"><a href="/x.html">PC Portable Asus</a></h3>
    <div class="product-price-and-shipping"><span class="price">prix sur demande</span></div>
  </article>
</div>
</body></html>`

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `=~^http://tunisianet\.test/recherche`,
		htmlResponder(200, broken))

	s := NewTunisianet(testOptions(transport))
	quote, err := s.Scrape(testSite("tunisianet", "http://tunisianet.test"), testProduct())

	require.Error(t, err)
	assert.Nil(t, quote)
	assert.False(t, IsTransient(err))
}

func TestScrapeServerErrorIsTransient(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `=~^http://tunisianet\.test/recherche`,
		httpmock.NewStringResponder(503, ""))

	s := NewTunisianet(testOptions(transport))
	quote, err := s.Scrape(testSite("tunisianet", "http://tunisianet.test"), testProduct())

	require.Error(t, err)
	assert.Nil(t, quote)
	assert.True(t, IsTransient(err))
}
