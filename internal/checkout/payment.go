package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"purchase-agent/config"
	"purchase-agent/internal/models"
	"purchase-agent/internal/util"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// ChargeResult is the normalized payment outcome. Raw keeps the provider's
// full reply for the order record.
type ChargeResult struct {
	Status string
	Raw    []byte
}

// Provider charges an order. Cash-on-delivery orders never reach a provider;
// only CARD and INSTALLMENT do.
type Provider interface {
	Charge(ctx context.Context, ord *models.PurchaseOrder, amount decimal.Decimal) (*ChargeResult, error)
}

// HTTPProvider charges through a REST payment gateway.
type HTTPProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPProvider creates a payment provider client from checkout
// configuration.
func NewHTTPProvider(cfg config.CheckoutConfig) *HTTPProvider {
	return &HTTPProvider{
		endpoint: cfg.PaymentEndpoint,
		apiKey:   cfg.PaymentAPIKey,
		client:   &http.Client{Timeout: cfg.StepTimeout},
	}
}

type chargeRequest struct {
	OrderID  int64  `json:"order_id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Method   string `json:"method"`
}

// Charge posts the charge and maps the gateway status onto the payment
// status constants. Any non-2xx reply or explicit failure status comes back
// as PaymentError with the raw reply attached.
func (p *HTTPProvider) Charge(ctx context.Context, ord *models.PurchaseOrder, amount decimal.Decimal) (*ChargeResult, error) {
	util.PaymentAttemptsTotal.Inc()

	payload, err := json.Marshal(chargeRequest{
		OrderID:  ord.ID,
		Amount:   amount.String(),
		Currency: "TND",
		Method:   ord.PaymentMethod,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode charge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/charges", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build charge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		util.PaymentFailedTotal.Inc()
		return nil, PaymentError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		util.PaymentFailedTotal.Inc()
		return nil, PaymentError{Err: fmt.Errorf("failed to read charge response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		util.PaymentFailedTotal.Inc()
		return nil, PaymentError{
			Status: fmt.Sprintf("http_%d", resp.StatusCode),
			Raw:    raw,
		}
	}

	status := gjson.GetBytes(raw, "status").String()
	switch status {
	case "succeeded", "success", "captured":
		return &ChargeResult{Status: models.PaymentStatusSuccess, Raw: raw}, nil
	default:
		util.PaymentFailedTotal.Inc()
		return nil, PaymentError{Status: status, Raw: raw}
	}
}
