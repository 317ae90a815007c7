package linkage

import (
	"context"

	"github.com/google/uuid"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
)

// OrderInfo is the per-store order detail resolved from the order system.
type OrderInfo struct {
	OrderID            uuid.UUID
	StoreID            uuid.UUID
	ItemCount          int
	SubtotalMinorUnits int64
	Currency           string
}

// OrderDirectory resolves order ids against the external order collaborator.
type OrderDirectory interface {
	GetOrders(ctx context.Context, orderIDs []uuid.UUID) ([]OrderInfo, error)
}

// Repository persists link rows. Both insert methods use
// insert-or-ignore-on-conflict semantics keyed on the link uniqueness
// invariants, so repeated applications are no-ops after the first.
type Repository interface {
	AssessmentExists(ctx context.Context, assessmentID uuid.UUID) (bool, error)
	InsertOrderLinks(ctx context.Context, links []risk.OrderLink) error
	InsertStoreLinks(ctx context.Context, links []risk.StoreLink) error
	GetOrderLinks(ctx context.Context, assessmentID uuid.UUID) ([]risk.OrderLink, error)
	GetStoreLinks(ctx context.Context, assessmentID uuid.UUID) ([]risk.StoreLink, error)
}

// LinkResult reports what one linkage application touched.
type LinkResult struct {
	AssessmentID uuid.UUID   `json:"assessment_id"`
	OrderIDs     []uuid.UUID `json:"order_ids"`
	StoreIDs     []uuid.UUID `json:"store_ids"`
}
