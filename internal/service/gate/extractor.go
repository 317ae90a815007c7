package gate

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
)

// Extractor assembles a scoring payload from the inbound checkout context.
// Signal gathering is best effort: a failed collaborator lookup degrades to
// "no signal" (nil field), never to a failed extraction, so guests and
// first-time buyers flow through with sparse payloads.
type Extractor struct {
	history    HistoryProvider
	reputation ReputationChecker
	velocity   VelocityChecker
	logger     *zap.Logger
	now        func() time.Time
}

// NewExtractor creates a signal extractor. All collaborators are optional;
// a nil collaborator simply leaves its signals absent.
func NewExtractor(history HistoryProvider, reputation ReputationChecker, velocity VelocityChecker, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		history:    history,
		reputation: reputation,
		velocity:   velocity,
		logger:     logger,
		now:        time.Now,
	}
}

// BuildPayload derives the full signal set for one checkout attempt. It
// never returns an error: missing or failing sources yield nil signals.
func (e *Extractor) BuildPayload(ctx context.Context, in BuildInput) *risk.RiskPayload {
	payload := &risk.RiskPayload{
		AccountID:          in.AccountID,
		AccountRole:        in.AccountRole,
		Currency:           in.Currency,
		IPAddress:          in.IPAddress,
		UserAgent:          in.UserAgent,
		ConcurrentSessions: in.ConcurrentSessions,
		RecentFailedLogins: in.RecentFailedLogins,
		ClientTime:         in.ClientTime,
	}

	e.deriveCart(payload, in.Items)
	e.gatherHistory(ctx, payload, in)
	e.gatherReputation(ctx, payload, in.IPAddress)
	e.gatherVelocity(ctx, payload, in)

	return payload
}

// deriveCart computes item totals and the per-store distribution from the
// cart snapshot.
func (e *Extractor) deriveCart(payload *risk.RiskPayload, items []CartItem) {
	unique := make(map[uuid.UUID]struct{}, len(items))
	byStore := make(map[uuid.UUID]*risk.StoreDistribution, len(items))

	for _, item := range items {
		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		subtotal := int64(qty) * item.UnitPriceMinorUnits

		payload.ItemCount += qty
		payload.TotalMinorUnits += subtotal
		unique[item.ProductID] = struct{}{}

		dist, ok := byStore[item.StoreID]
		if !ok {
			dist = &risk.StoreDistribution{StoreID: item.StoreID}
			byStore[item.StoreID] = dist
		}
		dist.ItemCount += qty
		dist.SubtotalMinorUnits += subtotal
	}

	payload.UniqueItemCount = len(unique)

	payload.Stores = make([]risk.StoreDistribution, 0, len(byStore))
	for _, dist := range byStore {
		payload.Stores = append(payload.Stores, *dist)
	}
	sort.Slice(payload.Stores, func(i, j int) bool {
		return payload.Stores[i].StoreID.String() < payload.Stores[j].StoreID.String()
	})
}

// gatherHistory populates account-history signals for authenticated attempts.
func (e *Extractor) gatherHistory(ctx context.Context, payload *risk.RiskPayload, in BuildInput) {
	if in.AccountID == nil || e.history == nil {
		return
	}

	hist, err := e.history.GetHistory(ctx, *in.AccountID)
	if err != nil {
		e.logger.Warn("account history unavailable, scoring without it",
			zap.String("account_id", in.AccountID.String()),
			zap.Error(err))
	} else if hist != nil {
		age := int64(e.now().UTC().Sub(hist.CreatedAt.UTC()) / time.Second)
		if age < 0 {
			age = 0
		}
		payload.AccountAgeSeconds = &age

		txns := hist.TransactionCount
		succ := hist.SuccessfulCount
		fails := hist.RecentFailures
		payload.TransactionCount = &txns
		payload.SuccessfulCount = &succ
		payload.RecentFailures = &fails
		payload.TypicalActiveHours = hist.TypicalActiveHours

		if txns > 0 {
			payload.SuccessRatePercent = float64(succ) / float64(txns) * 100
		}
	}

	if in.PaymentMethodFingerprint == "" {
		return
	}
	known, err := e.history.KnowsPaymentMethod(ctx, *in.AccountID, in.PaymentMethodFingerprint)
	if err != nil {
		e.logger.Warn("payment method history unavailable",
			zap.String("account_id", in.AccountID.String()),
			zap.Error(err))
		return
	}
	novel := !known
	payload.NewPaymentMethod = &novel
}

// gatherReputation resolves the IP reputation signal. Lookup failures leave
// the reputation unknown rather than biasing the score either way.
func (e *Extractor) gatherReputation(ctx context.Context, payload *risk.RiskPayload, ip string) {
	payload.IPReputation = risk.IPReputationUnknown
	if ip == "" || e.reputation == nil {
		return
	}

	rep, err := e.reputation.Lookup(ctx, ip)
	if err != nil {
		e.logger.Warn("ip reputation lookup failed", zap.String("ip", ip), zap.Error(err))
		return
	}
	payload.IPReputation = rep
}

// gatherVelocity records the attempt against the sliding window keyed by the
// strongest available identity.
func (e *Extractor) gatherVelocity(ctx context.Context, payload *risk.RiskPayload, in BuildInput) {
	if e.velocity == nil {
		return
	}

	identity := velocityIdentity(in)
	if identity == "" {
		return
	}

	exceeded, err := e.velocity.RecordAndCheck(ctx, identity)
	if err != nil {
		e.logger.Warn("velocity check failed", zap.String("identity", identity), zap.Error(err))
		return
	}
	payload.VelocityExceeded = &exceeded
}

// velocityIdentity picks the attempt-rate key: account, then session, then
// source address.
func velocityIdentity(in BuildInput) string {
	switch {
	case in.AccountID != nil:
		return "account:" + in.AccountID.String()
	case in.SessionID != "":
		return "session:" + in.SessionID
	case in.IPAddress != "":
		return "ip:" + in.IPAddress
	default:
		return ""
	}
}
