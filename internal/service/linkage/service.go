package linkage

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/errors"
	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
)

// Service fans one assessment out across the per-store orders a multi-vendor
// cart produced. Linking is idempotent: client retries and redeliveries
// settle on the same link sets with no double-counted store aggregates.
type Service struct {
	repo   Repository
	orders OrderDirectory
	logger *zap.Logger
}

// NewService creates a linkage service.
func NewService(repo Repository, orders OrderDirectory, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		orders: orders,
		logger: logger,
	}
}

// Link connects an assessment to the given orders: one order-link row per
// order plus one store-link row per distinct store carrying that store's
// aggregates. Safe under concurrent and duplicate invocation.
func (s *Service) Link(ctx context.Context, assessmentID uuid.UUID, orderIDs []uuid.UUID) (*LinkResult, error) {
	if len(orderIDs) == 0 {
		return nil, errors.NewValidationError("NO_ORDERS", "at least one order id is required")
	}

	exists, err := s.repo.AssessmentExists(ctx, assessmentID)
	if err != nil {
		return nil, errors.NewInternalError("failed to look up assessment").WithCause(err)
	}
	if !exists {
		return nil, errors.ErrAssessmentNotFound
	}

	orders, err := s.orders.GetOrders(ctx, dedupe(orderIDs))
	if err != nil {
		return nil, errors.NewExternalError("orders", "failed to resolve order details").WithCause(err)
	}
	if len(orders) == 0 {
		return nil, errors.NewNotFoundError("orders")
	}

	now := time.Now().UTC()

	orderLinks := make([]risk.OrderLink, 0, len(orders))
	for _, o := range orders {
		orderLinks = append(orderLinks, risk.OrderLink{
			AssessmentID: assessmentID,
			OrderID:      o.OrderID,
			StoreID:      o.StoreID,
			CreatedAt:    now,
		})
	}

	storeLinks := aggregateByStore(assessmentID, orders, now)

	if err := s.repo.InsertOrderLinks(ctx, orderLinks); err != nil {
		return nil, errors.NewInternalError("failed to insert order links").WithCause(err)
	}
	if err := s.repo.InsertStoreLinks(ctx, storeLinks); err != nil {
		return nil, errors.NewInternalError("failed to insert store links").WithCause(err)
	}

	result := &LinkResult{
		AssessmentID: assessmentID,
		OrderIDs:     make([]uuid.UUID, 0, len(orderLinks)),
		StoreIDs:     make([]uuid.UUID, 0, len(storeLinks)),
	}
	for _, l := range orderLinks {
		result.OrderIDs = append(result.OrderIDs, l.OrderID)
	}
	for _, l := range storeLinks {
		result.StoreIDs = append(result.StoreIDs, l.StoreID)
	}

	s.logger.Info("assessment linked to orders",
		zap.String("assessment_id", assessmentID.String()),
		zap.Int("order_count", len(result.OrderIDs)),
		zap.Int("store_count", len(result.StoreIDs)))

	return result, nil
}

// Links returns the persisted order and store links for an assessment.
func (s *Service) Links(ctx context.Context, assessmentID uuid.UUID) ([]risk.OrderLink, []risk.StoreLink, error) {
	exists, err := s.repo.AssessmentExists(ctx, assessmentID)
	if err != nil {
		return nil, nil, errors.NewInternalError("failed to look up assessment").WithCause(err)
	}
	if !exists {
		return nil, nil, errors.ErrAssessmentNotFound
	}

	orderLinks, err := s.repo.GetOrderLinks(ctx, assessmentID)
	if err != nil {
		return nil, nil, errors.NewInternalError("failed to read order links").WithCause(err)
	}
	storeLinks, err := s.repo.GetStoreLinks(ctx, assessmentID)
	if err != nil {
		return nil, nil, errors.NewInternalError("failed to read store links").WithCause(err)
	}
	return orderLinks, storeLinks, nil
}

// aggregateByStore groups orders by store. A multi-vendor checkout produces
// one order per store, so each store-link carries that store's order id; the
// aggregates cover only the orders passed in this call, which together with
// conflict-ignoring inserts keeps repeated link calls from double-counting.
func aggregateByStore(assessmentID uuid.UUID, orders []OrderInfo, now time.Time) []risk.StoreLink {
	byStore := make(map[uuid.UUID]*risk.StoreLink)
	for _, o := range orders {
		link, ok := byStore[o.StoreID]
		if !ok {
			byStore[o.StoreID] = &risk.StoreLink{
				AssessmentID:       assessmentID,
				StoreID:            o.StoreID,
				OrderID:            o.OrderID,
				ItemCount:          o.ItemCount,
				SubtotalMinorUnits: o.SubtotalMinorUnits,
				CreatedAt:          now,
			}
			continue
		}
		link.ItemCount += o.ItemCount
		link.SubtotalMinorUnits += o.SubtotalMinorUnits
	}

	links := make([]risk.StoreLink, 0, len(byStore))
	for _, l := range byStore {
		links = append(links, *l)
	}
	sort.Slice(links, func(i, j int) bool {
		return links[i].StoreID.String() < links[j].StoreID.String()
	})
	return links
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
