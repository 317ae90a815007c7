// Package directory holds the HTTP clients for the marketplace's account
// and order systems. Both are read-only collaborators of the risk pipeline.
package directory

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
	"github.com/marketsafe/checkout-risk-backend/internal/service/gate"
)

// AccountsClient resolves account history from the account service.
type AccountsClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewAccountsClient creates the account directory client.
func NewAccountsClient(baseURL string, timeout time.Duration, logger *zap.Logger) *AccountsClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountsClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type accountHistoryResponse struct {
	CreatedAt        time.Time `json:"created_at"`
	TransactionCount int       `json:"transaction_count"`
	SuccessfulCount  int       `json:"successful_count"`
	RecentFailures   int       `json:"recent_failures"`
	ActiveHourStart  *int      `json:"active_hour_start,omitempty"`
	ActiveHourEnd    *int      `json:"active_hour_end,omitempty"`
}

// GetHistory fetches one account's transaction history.
func (c *AccountsClient) GetHistory(ctx context.Context, accountID uuid.UUID) (*gate.AccountHistory, error) {
	var resp accountHistoryResponse
	if err := c.get(ctx, fmt.Sprintf("/v1/accounts/%s/history", accountID), &resp); err != nil {
		return nil, err
	}

	history := &gate.AccountHistory{
		CreatedAt:        resp.CreatedAt,
		TransactionCount: resp.TransactionCount,
		SuccessfulCount:  resp.SuccessfulCount,
		RecentFailures:   resp.RecentFailures,
	}
	if resp.ActiveHourStart != nil && resp.ActiveHourEnd != nil {
		history.TypicalActiveHours = &risk.HourRange{
			Start: *resp.ActiveHourStart,
			End:   *resp.ActiveHourEnd,
		}
	}
	return history, nil
}

// KnowsPaymentMethod reports whether the account has used this payment
// method fingerprint before.
func (c *AccountsClient) KnowsPaymentMethod(ctx context.Context, accountID uuid.UUID, fingerprint string) (bool, error) {
	var resp struct {
		Known bool `json:"known"`
	}
	path := fmt.Sprintf("/v1/accounts/%s/payment-methods/%s", accountID, fingerprint)
	if err := c.get(ctx, path, &resp); err != nil {
		return false, err
	}
	return resp.Known, nil
}

func (c *AccountsClient) get(ctx context.Context, path string, out interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("account directory not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build account request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("account directory unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("account directory returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode account response: %w", err)
	}
	return nil
}
