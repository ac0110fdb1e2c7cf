package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"purchase-agent/config"

	"github.com/tidwall/gjson"
)

// Oracle produces a free-form text completion for a prompt. The engine owns
// turning that text into a validated decision.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GeminiOracle calls the Gemini generateContent REST endpoint.
type GeminiOracle struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

// NewGeminiOracle creates an oracle client from decision configuration.
func NewGeminiOracle(cfg config.DecisionConfig) *GeminiOracle {
	return &GeminiOracle{
		endpoint: cfg.OracleEndpoint,
		model:    cfg.OracleModel,
		apiKey:   cfg.OracleAPIKey,
		client:   &http.Client{Timeout: cfg.OracleTimeout},
	}
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature float64 `json:"temperature"`
}

// Complete sends the prompt and returns the first candidate's text.
func (g *GeminiOracle) Complete(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(geminiRequest{
		Contents:         []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenConfig{Temperature: 0.2},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode oracle request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.endpoint, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read oracle response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oracle returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	text := gjson.GetBytes(body, "candidates.0.content.parts.0.text")
	if !text.Exists() || text.String() == "" {
		return "", fmt.Errorf("oracle response has no candidate text")
	}
	return text.String(), nil
}
