package scraper

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var currencyTokens = []string{"DT", "TND", "dt", "tnd", "€", "$", "£"}

// ParsePrice normalizes a locale-specific price string into a decimal.
// Handles thousands separators (space, NBSP, dot or comma), comma decimal
// separators ("3 299,000 DT") and trailing currency suffixes.
func ParsePrice(text string) (decimal.Decimal, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty price text")
	}

	for _, tok := range currencyTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	s = strings.ReplaceAll(s, "\u00a0", "")
	s = strings.ReplaceAll(s, "\u202f", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimSpace(s)

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		// rightmost separator is the decimal point, the other groups thousands
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	}

	price, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparsable price %q: %w", text, err)
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative price %q", text)
	}
	return price, nil
}

var inStockPhrases = []string{
	"en stock",
	"disponible",
	"in stock",
	"available",
}

// ParseAvailability derives the boolean availability signal from a
// locale-specific phrase. An empty phrase is treated as available, matching
// listings that omit the badge for stocked items.
func ParseAvailability(text string) bool {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return true
	}
	for _, phrase := range inStockPhrases {
		if strings.Contains(s, phrase) {
			return true
		}
	}
	return false
}
