package scraper

import "github.com/shopspring/decimal"

// Policy holds the static per-merchant delivery and shipping rules. These
// values come from merchant shipping pages, not from scraping.
type Policy struct {
	DeliveryDays     int
	BaseShipping     decimal.Decimal
	FreeShippingOver decimal.Decimal
}

var defaultPolicy = Policy{
	DeliveryDays: 5,
	BaseShipping: decimal.NewFromInt(10),
}

var policies = map[string]Policy{
	"tunisianet": {
		DeliveryDays:     3,
		BaseShipping:     decimal.NewFromInt(7),
		FreeShippingOver: decimal.NewFromInt(500),
	},
	"megapc": {
		DeliveryDays:     3,
		BaseShipping:     decimal.NewFromInt(7),
		FreeShippingOver: decimal.NewFromInt(500),
	},
}

// PolicyFor returns the policy for a merchant slug, falling back to the
// default policy for unknown merchants.
func PolicyFor(slug string) Policy {
	if p, ok := policies[slug]; ok {
		return p
	}
	return defaultPolicy
}

// ShippingCost estimates the shipping cost for a product price under this
// policy.
func (p Policy) ShippingCost(price decimal.Decimal) decimal.Decimal {
	if p.FreeShippingOver.IsPositive() && price.GreaterThanOrEqual(p.FreeShippingOver) {
		return decimal.Zero
	}
	return p.BaseShipping
}
