// Package decision turns a set of fresh price quotes into a single merchant
// choice by asking a language-model oracle and defensively validating its
// reply.
package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"purchase-agent/internal/models"
	"purchase-agent/internal/util"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Decision is the validated outcome of one oracle consultation.
type Decision struct {
	MerchantID        int64
	FinalPrice        decimal.Decimal
	Reasoning         string
	Confidence        *float64
	RawResponse       []byte
	ConsideredQuotes  []byte
	ExecutionSecs     float64
	AlternativesCount int
}

// Engine asks the oracle to pick the best merchant among fresh quotes.
type Engine struct {
	oracle Oracle
	logger *zap.Logger
}

// NewEngine creates a decision engine backed by the given oracle.
func NewEngine(oracle Oracle) *Engine {
	return &Engine{
		oracle: oracle,
		logger: util.NamedLogger("decision"),
	}
}

// promptOption is the quote view serialized into the oracle prompt.
type promptOption struct {
	MerchantID    int64  `json:"merchant_id"`
	MerchantName  string `json:"merchant_name"`
	Price         string `json:"price"`
	OriginalPrice string `json:"original_price,omitempty"`
	ShippingCost  string `json:"shipping_cost"`
	TotalCost     string `json:"total_cost"`
	Currency      string `json:"currency"`
	DeliveryDays  int    `json:"delivery_days"`
	CapturedAt    string `json:"captured_at"`
	ProductURL    string `json:"product_url,omitempty"`
	Available     bool   `json:"available"`
	Availability  string `json:"availability_text,omitempty"`
}

// Decide consults the oracle over the given quotes and returns a validated
// decision. An empty quote list yields NoOptionsError; garbage oracle output
// yields ParseError or ValidationError so callers can retry or fail the order.
func (e *Engine) Decide(ctx context.Context, product *models.Product, quotes []models.PriceQuote) (*Decision, error) {
	ctx, span := util.StartSpan(ctx, "Engine.Decide")
	defer span.End()

	if len(quotes) == 0 {
		util.DecisionsTotal.WithLabelValues("no_options").Inc()
		return nil, NoOptionsError{ProductID: product.ID}
	}

	options := make([]promptOption, 0, len(quotes))
	for _, q := range quotes {
		opt := promptOption{
			MerchantID:   q.MerchantID,
			MerchantName: q.MerchantName,
			Price:        q.Price.String(),
			ShippingCost: q.ShippingCost.String(),
			TotalCost:    q.TotalCost().String(),
			Currency:     q.Currency,
			DeliveryDays: q.DeliveryDays,
			CapturedAt:   q.CapturedAt.Format(time.RFC3339),
			ProductURL:   q.ProductURL,
			Available:    q.Available,
			Availability: q.AvailabilityText,
		}
		if q.OriginalPrice != nil {
			opt.OriginalPrice = q.OriginalPrice.String()
		}
		options = append(options, opt)
	}
	considered, err := json.Marshal(options)
	if err != nil {
		return nil, fmt.Errorf("failed to encode quote options: %w", err)
	}

	prompt := buildPrompt(product, considered)

	start := time.Now()
	raw, err := e.oracle.Complete(ctx, prompt)
	elapsed := time.Since(start)
	util.DecisionLatency.Observe(elapsed.Seconds())
	if err != nil {
		util.DecisionsTotal.WithLabelValues("oracle_error").Inc()
		return nil, fmt.Errorf("oracle consultation failed: %w", err)
	}

	dec, err := parseDecision(raw, quotes)
	if err != nil {
		util.DecisionsTotal.WithLabelValues("invalid_reply").Inc()
		e.logger.Warn("oracle reply rejected",
			zap.Int64("product_id", product.ID),
			zap.Error(err))
		return nil, err
	}

	dec.RawResponse = []byte(raw)
	dec.ConsideredQuotes = considered
	dec.ExecutionSecs = elapsed.Seconds()
	dec.AlternativesCount = len(quotes) - 1

	util.DecisionsTotal.WithLabelValues("success").Inc()
	e.logger.Info("merchant selected",
		zap.Int64("product_id", product.ID),
		zap.Int64("merchant_id", dec.MerchantID),
		zap.String("final_price", dec.FinalPrice.String()),
		zap.Int("alternatives", dec.AlternativesCount))
	return dec, nil
}

func buildPrompt(product *models.Product, options []byte) string {
	var b strings.Builder
	b.WriteString("You are a purchasing assistant choosing the best merchant to buy a product from.\n\n")
	fmt.Fprintf(&b, "Product: %s\n", product.Name)
	if product.Manufacturer != "" {
		fmt.Fprintf(&b, "Manufacturer: %s\n", product.Manufacturer)
	}
	if product.ModelNumber != "" {
		fmt.Fprintf(&b, "Model: %s\n", product.ModelNumber)
	}
	b.WriteString("\nAvailable options (JSON):\n")
	b.Write(options)
	b.WriteString("\n\nSelection rules, in strict priority order:\n")
	b.WriteString("1. Prefer the lowest total cost (price plus shipping).\n")
	b.WriteString("2. On a tie, prefer the fastest delivery.\n")
	b.WriteString("3. Then prefer the most recently captured quote.\n")
	b.WriteString("4. Then prefer a known, reliable merchant.\n")
	b.WriteString("5. Take availability into account; avoid options that are not available.\n")
	b.WriteString("\nReply with ONLY a JSON object, no surrounding text, in this exact shape:\n")
	b.WriteString(`{"selected_merchant_id": <integer>, "final_price": <number>, "reasoning": "<short explanation>", "confidence": <number between 0 and 1>}`)
	b.WriteString("\n")
	return b.String()
}

var (
	fencedJSONRe = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")
	fencedRe     = regexp.MustCompile("(?s)```\\s*(\\{.*?\\})\\s*```")
	bareObjectRe = regexp.MustCompile(`(?s)\{.*\}`)
)

// sanitizeReply strips markdown fences and surrounding prose. The extraction
// patterns are tried in order and a candidate that is not valid JSON falls
// through to the next pattern, so a fence full of prose does not mask a
// usable object later in the reply.
func sanitizeReply(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if json.Valid([]byte(s)) {
		return s, nil
	}
	for _, re := range []*regexp.Regexp{fencedJSONRe, fencedRe} {
		if m := re.FindStringSubmatch(s); m != nil {
			if c := strings.TrimSpace(m[1]); json.Valid([]byte(c)) {
				return c, nil
			}
		}
	}
	if m := bareObjectRe.FindString(s); m != "" && json.Valid([]byte(m)) {
		return m, nil
	}
	return "", ParseError{Excerpt: truncate(raw, 200)}
}

func parseDecision(raw string, quotes []models.PriceQuote) (*Decision, error) {
	cleaned, err := sanitizeReply(raw)
	if err != nil {
		return nil, err
	}

	parsed := gjson.Parse(cleaned)

	merchantID := parsed.Get("selected_merchant_id")
	if merchantID.Type != gjson.Number {
		return nil, ValidationError{Reason: "selected_merchant_id missing or not a number"}
	}
	if merchantID.Float() != float64(merchantID.Int()) {
		return nil, ValidationError{Reason: "selected_merchant_id is not an integer"}
	}

	finalPrice := parsed.Get("final_price")
	if finalPrice.Type != gjson.Number {
		return nil, ValidationError{Reason: "final_price missing or not a number"}
	}
	price, err := decimal.NewFromString(finalPrice.Raw)
	if err != nil || price.IsNegative() {
		return nil, ValidationError{Reason: "final_price is not a valid amount"}
	}

	reasoning := parsed.Get("reasoning")
	if reasoning.Type != gjson.String || reasoning.String() == "" {
		return nil, ValidationError{Reason: "reasoning missing or not a string"}
	}

	id := merchantID.Int()
	known := false
	for _, q := range quotes {
		if q.MerchantID == id {
			known = true
			break
		}
	}
	if !known {
		return nil, ValidationError{Reason: fmt.Sprintf("merchant %d is not among the considered options", id)}
	}

	dec := &Decision{
		MerchantID: id,
		FinalPrice: price,
		Reasoning:  reasoning.String(),
	}
	if conf := parsed.Get("confidence"); conf.Type == gjson.Number {
		v := conf.Float()
		dec.Confidence = &v
	}
	return dec, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
