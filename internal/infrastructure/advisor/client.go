// Package advisor is the HTTP client for the optional justification
// capability. When the capability is not configured or unreachable the
// client reports unavailable and the justification service falls back to
// its deterministic rendering.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
	"github.com/marketsafe/checkout-risk-backend/internal/service/justification"
)

// Client calls the advisor endpoint to render a justification.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates an advisor client. An empty baseURL produces a client
// that is permanently unavailable, which keeps wiring uniform.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type generateRequest struct {
	AssessmentID string            `json:"assessment_id"`
	Score        int               `json:"score"`
	Decision     string            `json:"decision"`
	Confidence   float64           `json:"confidence"`
	Factors      []risk.RiskFactor `json:"factors"`
	Amount       string            `json:"amount"`
	ItemCount    int               `json:"item_count"`
	StoreCount   int               `json:"store_count"`
}

type generateResponse struct {
	Text string `json:"text"`
}

// Generate renders a justification through the capability. Transport
// failures and non-2xx responses surface as unavailable so the caller's
// fallback engages; only malformed successful responses are real errors.
func (c *Client) Generate(ctx context.Context, assessment *risk.Assessment) (string, error) {
	if c.baseURL == "" {
		return "", justification.ErrUnavailable
	}

	body, err := json.Marshal(generateRequest{
		AssessmentID: assessment.ID.String(),
		Score:        assessment.Score,
		Decision:     string(assessment.Decision),
		Confidence:   assessment.Confidence,
		Factors:      assessment.Factors,
		Amount:       assessment.Amount.String(),
		ItemCount:    assessment.ItemCount,
		StoreCount:   assessment.StoreCount,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal advisor request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/justifications", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build advisor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("advisor unreachable", zap.Error(err))
		return "", justification.ErrUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		c.logger.Warn("advisor returned non-success status", zap.Int("status", resp.StatusCode))
		return "", justification.ErrUnavailable
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode advisor response: %w", err)
	}
	if out.Text == "" {
		return "", fmt.Errorf("advisor returned empty justification")
	}
	return out.Text, nil
}
