package decision

import (
	"context"
	"errors"
	"testing"
	"time"

	"purchase-agent/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOracle struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeOracle) Complete(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func quoteFixture(merchantID int64, name string, price, shipping int64, days int) models.PriceQuote {
	return models.PriceQuote{
		ProductID:    42,
		MerchantID:   merchantID,
		MerchantName: name,
		Price:        decimal.NewFromInt(price),
		ShippingCost: decimal.NewFromInt(shipping),
		Currency:     "TND",
		DeliveryDays: days,
		Available:    true,
		CapturedAt:   time.Now(),
	}
}

func productFixture() *models.Product {
	return &models.Product{ID: 42, Name: "PC Portable Asus", Manufacturer: "Asus"}
}

func TestDecideAcceptsValidReply(t *testing.T) {
	oracle := &fakeOracle{reply: `{"selected_merchant_id": 2, "final_price": 95, "reasoning": "lowest total cost", "confidence": 0.9}`}
	engine := NewEngine(oracle)

	quotes := []models.PriceQuote{
		quoteFixture(1, "Tunisianet", 100, 10, 3),
		quoteFixture(2, "MegaPC", 95, 0, 5),
	}

	dec, err := engine.Decide(context.Background(), productFixture(), quotes)
	require.NoError(t, err)
	assert.Equal(t, int64(2), dec.MerchantID)
	assert.True(t, dec.FinalPrice.Equal(decimal.NewFromInt(95)))
	assert.Equal(t, "lowest total cost", dec.Reasoning)
	require.NotNil(t, dec.Confidence)
	assert.InDelta(t, 0.9, *dec.Confidence, 1e-9)
	assert.Equal(t, 1, dec.AlternativesCount)
	assert.NotEmpty(t, dec.RawResponse)
	assert.NotEmpty(t, dec.ConsideredQuotes)
}

func TestDecidePromptCarriesOptionsAndRules(t *testing.T) {
	oracle := &fakeOracle{reply: `{"selected_merchant_id": 1, "final_price": 100, "reasoning": "only option"}`}
	engine := NewEngine(oracle)

	_, err := engine.Decide(context.Background(), productFixture(),
		[]models.PriceQuote{quoteFixture(1, "Tunisianet", 100, 10, 3)})
	require.NoError(t, err)

	require.Len(t, oracle.prompts, 1)
	prompt := oracle.prompts[0]
	assert.Contains(t, prompt, "PC Portable Asus")
	assert.Contains(t, prompt, `"merchant_id":1`)
	assert.Contains(t, prompt, `"total_cost":"110"`)
	assert.Contains(t, prompt, "lowest total cost")
	assert.Contains(t, prompt, "selected_merchant_id")
}

func TestDecideParsesFencedReplyWithProse(t *testing.T) {
	oracle := &fakeOracle{reply: "Sure, here is my pick:\n```json\n{\"selected_merchant_id\": 1, \"final_price\": 110.5, \"reasoning\": \"in stock\"}\n```\nLet me know if you need anything else."}
	engine := NewEngine(oracle)

	dec, err := engine.Decide(context.Background(), productFixture(),
		[]models.PriceQuote{quoteFixture(1, "Tunisianet", 110, 0, 3)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), dec.MerchantID)
	assert.True(t, dec.FinalPrice.Equal(decimal.RequireFromString("110.5")))
	assert.Nil(t, dec.Confidence)
}

func TestDecideParsesBareObjectInProse(t *testing.T) {
	oracle := &fakeOracle{reply: `The best option is {"selected_merchant_id": 1, "final_price": 110, "reasoning": "cheapest"} based on the rules.`}
	engine := NewEngine(oracle)

	dec, err := engine.Decide(context.Background(), productFixture(),
		[]models.PriceQuote{quoteFixture(1, "Tunisianet", 110, 0, 3)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), dec.MerchantID)
}

func TestDecideFallsThroughProseFenceToTrailingObject(t *testing.T) {
	oracle := &fakeOracle{reply: "```json\nI cannot decide between these\n```\n{\"selected_merchant_id\": 1, \"final_price\": 110, \"reasoning\": \"cheapest\"}"}
	engine := NewEngine(oracle)

	dec, err := engine.Decide(context.Background(), productFixture(),
		[]models.PriceQuote{quoteFixture(1, "Tunisianet", 110, 0, 3)})
	require.NoError(t, err, "a prose-only fence must not mask a usable object after it")
	assert.Equal(t, int64(1), dec.MerchantID)
}

func TestDecideParsesFencedReplyWithNestedObject(t *testing.T) {
	oracle := &fakeOracle{reply: "```json\n{\"selected_merchant_id\": 1, \"final_price\": 110, \"reasoning\": \"cheapest\", \"details\": {\"rank\": 1}}\n```"}
	engine := NewEngine(oracle)

	dec, err := engine.Decide(context.Background(), productFixture(),
		[]models.PriceQuote{quoteFixture(1, "Tunisianet", 110, 0, 3)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), dec.MerchantID)
}

func TestDecideRejectsUnknownMerchant(t *testing.T) {
	oracle := &fakeOracle{reply: `{"selected_merchant_id": 99, "final_price": 95, "reasoning": "made up"}`}
	engine := NewEngine(oracle)

	dec, err := engine.Decide(context.Background(), productFixture(),
		[]models.PriceQuote{quoteFixture(1, "Tunisianet", 100, 10, 3)})
	require.Error(t, err)
	assert.Nil(t, dec)

	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "99")
}

func TestDecideRejectsNonIntegerMerchantID(t *testing.T) {
	oracle := &fakeOracle{reply: `{"selected_merchant_id": 1.5, "final_price": 95, "reasoning": "x"}`}
	engine := NewEngine(oracle)

	_, err := engine.Decide(context.Background(), productFixture(),
		[]models.PriceQuote{quoteFixture(1, "Tunisianet", 100, 10, 3)})

	var verr ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestDecideRejectsMissingReasoning(t *testing.T) {
	oracle := &fakeOracle{reply: `{"selected_merchant_id": 1, "final_price": 95}`}
	engine := NewEngine(oracle)

	_, err := engine.Decide(context.Background(), productFixture(),
		[]models.PriceQuote{quoteFixture(1, "Tunisianet", 100, 10, 3)})

	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "reasoning")
}

func TestDecideRejectsGarbageReply(t *testing.T) {
	oracle := &fakeOracle{reply: "I cannot decide right now."}
	engine := NewEngine(oracle)

	_, err := engine.Decide(context.Background(), productFixture(),
		[]models.PriceQuote{quoteFixture(1, "Tunisianet", 100, 10, 3)})

	var perr ParseError
	require.ErrorAs(t, err, &perr)
}

func TestDecideNoQuotes(t *testing.T) {
	engine := NewEngine(&fakeOracle{})

	_, err := engine.Decide(context.Background(), productFixture(), nil)

	var nerr NoOptionsError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, int64(42), nerr.ProductID)
}

func TestDecideOracleFailurePropagates(t *testing.T) {
	sentinel := errors.New("upstream down")
	engine := NewEngine(&fakeOracle{err: sentinel})

	_, err := engine.Decide(context.Background(), productFixture(),
		[]models.PriceQuote{quoteFixture(1, "Tunisianet", 100, 10, 3)})
	require.ErrorIs(t, err, sentinel)
}
