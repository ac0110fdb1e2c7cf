package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"purchase-agent/internal/models"
	"purchase-agent/internal/util"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

const megapcSlug = "megapc"

// megapc renders the amount and the DT suffix inside one text node
var megapcPriceRe = regexp.MustCompile(`([\d\s\x{00a0}.,]+)\s*DT`)

// MegaPC scrapes search results from megapc.tn
type MegaPC struct {
	opts   Options
	logger *zap.Logger
}

// NewMegaPC creates the MegaPC scraper
func NewMegaPC(opts Options) *MegaPC {
	return &MegaPC{opts: opts, logger: util.NamedLogger("scraper.megapc")}
}

func (m *MegaPC) Slug() string { return megapcSlug }

// Scrape searches for the product and returns the first parsable listing.
func (m *MegaPC) Scrape(site *models.MerchantSite, product *models.Product) (*models.PriceQuote, error) {
	c, err := newCollector(site.BaseURL, m.opts)
	if err != nil {
		return nil, err
	}

	var (
		quote    *models.PriceQuote
		fetchErr error
		seen     int
	)

	c.OnHTML(".product-miniature", func(e *colly.HTMLElement) {
		if quote != nil || seen >= maxListings {
			return
		}
		seen++
		q, err := m.extract(e, site, product)
		if err != nil {
			m.logger.Warn("skipping unparsable listing",
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

func (m *MegaPC) extract(e *colly.HTMLElement, site *models.MerchantSite, product *models.Product) (*models.PriceQuote, error) {
	title := strings.TrimSpace(e.ChildText(".product-title a"))
	href := e.ChildAttr(".product-title a", "href")
	if title == "" || href == "" {
		return nil, fmt.Errorf("listing missing title or link")
	}

	priceText := e.ChildText(".price")
	match := megapcPriceRe.FindStringSubmatch(priceText)
	if match == nil {
		return nil, fmt.Errorf("no price amount in %q", priceText)
	}
	price, err := ParsePrice(match[1])
	if err != nil {
		return nil, err
	}

	quote := newQuote(site, product, megapcSlug)
	quote.Price = price
	quote.ShippingCost = PolicyFor(megapcSlug).ShippingCost(price)
	quote.ProductURL = e.Request.AbsoluteURL(href)
	quote.ImageURL = e.Request.AbsoluteURL(e.ChildAttr(".product-image img", "src"))

	availText := strings.TrimSpace(e.ChildText(".availability"))
	quote.AvailabilityText = availText
	quote.Available = ParseAvailability(availText)

	return quote, nil
}
