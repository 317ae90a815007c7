package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketsafe/checkout-risk-backend/internal/service/linkage"
)

// OrdersClient resolves order details from the order service.
type OrdersClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewOrdersClient creates the order directory client.
func NewOrdersClient(baseURL string, timeout time.Duration, logger *zap.Logger) *OrdersClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrdersClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type orderLookupResponse struct {
	Orders []struct {
		OrderID            uuid.UUID `json:"order_id"`
		StoreID            uuid.UUID `json:"store_id"`
		ItemCount          int       `json:"item_count"`
		SubtotalMinorUnits int64     `json:"subtotal_minor_units"`
		Currency           string    `json:"currency"`
	} `json:"orders"`
}

// GetOrders resolves a batch of order ids. Unknown ids are absent from the
// response rather than errors; the linkage service decides what absence
// means.
func (c *OrdersClient) GetOrders(ctx context.Context, orderIDs []uuid.UUID) ([]linkage.OrderInfo, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("order directory not configured")
	}

	body, err := json.Marshal(map[string][]uuid.UUID{"order_ids": orderIDs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order lookup: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders/lookup", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("order directory unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("order directory returned status %d", resp.StatusCode)
	}

	var out orderLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode order response: %w", err)
	}

	orders := make([]linkage.OrderInfo, 0, len(out.Orders))
	for _, o := range out.Orders {
		orders = append(orders, linkage.OrderInfo{
			OrderID:            o.OrderID,
			StoreID:            o.StoreID,
			ItemCount:          o.ItemCount,
			SubtotalMinorUnits: o.SubtotalMinorUnits,
			Currency:           o.Currency,
		})
	}
	return orders, nil
}
