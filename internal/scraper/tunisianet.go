package scraper

import (
	"fmt"
	"strings"

	"purchase-agent/internal/models"
	"purchase-agent/internal/util"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

const tunisianetSlug = "tunisianet"

// Tunisianet scrapes search results from tunisianet.com.tn
type Tunisianet struct {
	opts   Options
	logger *zap.Logger
}

// NewTunisianet creates the Tunisianet scraper
func NewTunisianet(opts Options) *Tunisianet {
	return &Tunisianet{opts: opts, logger: util.NamedLogger("scraper.tunisianet")}
}

func (t *Tunisianet) Slug() string { return tunisianetSlug }

// Scrape searches for the product and returns the first parsable listing.
func (t *Tunisianet) Scrape(site *models.MerchantSite, product *models.Product) (*models.PriceQuote, error) {
	c, err := newCollector(site.BaseURL, t.opts)
	if err != nil {
		return nil, err
	}

	var (
		quote    *models.PriceQuote
		fetchErr error
		seen     int
	)

	c.OnHTML(".products.row .product-miniature", func(e *colly.HTMLElement) {
		if quote != nil || seen >= maxListings {
			return
		}
		seen++
		q, err := t.extract(e, site, product)
		if err != nil {
			t.logger.Warn("skipping unparsable listing",
				zap.String("url", e.Request.URL.String()),
				zap.Error(err))
			return
		}
		quote = q
	})

	c.OnError(func(r *colly.Response, err error) {
		fetchErr = Classify(err)
	})

	target := searchURL(site.BaseURL, product.Name)
	if err := c.Visit(target); err != nil {
		return nil, Classify(err)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if quote == nil {
		if seen > 0 {
			return nil, PermanentError{Err: fmt.Errorf("no parsable listing among %d results", seen)}
		}
		return nil, nil
	}
	return quote, nil
}

func (t *Tunisianet) extract(e *colly.HTMLElement, site *models.MerchantSite, product *models.Product) (*models.PriceQuote, error) {
	title := strings.TrimSpace(e.ChildText(".product-title a"))
	href := e.ChildAttr(".product-title a", "href")
	if title == "" || href == "" {
		return nil, fmt.Errorf("listing missing title or link")
	}

	price, err := ParsePrice(e.ChildText(".product-price-and-shipping .price"))
	if err != nil {
		return nil, err
	}

	quote := newQuote(site, product, tunisianetSlug)
	quote.Price = price
	quote.ShippingCost = PolicyFor(tunisianetSlug).ShippingCost(price)
	quote.ProductURL = e.Request.AbsoluteURL(href)
	quote.ImageURL = e.Request.AbsoluteURL(e.ChildAttr(".product-thumbnail img", "src"))

	if regular := e.ChildText(".product-price-and-shipping .regular-price"); regular != "" {
		if original, err := ParsePrice(regular); err == nil {
			quote.OriginalPrice = &original
		}
	}

	availText := strings.TrimSpace(e.ChildText(".product-availability"))
	quote.AvailabilityText = availText
	quote.Available = ParseAvailability(availText)

	return quote, nil
}
