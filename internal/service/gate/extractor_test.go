package gate

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
)

type mockHistoryProvider struct {
	mock.Mock
}

func (m *mockHistoryProvider) GetHistory(ctx context.Context, accountID uuid.UUID) (*AccountHistory, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*AccountHistory), args.Error(1)
}

func (m *mockHistoryProvider) KnowsPaymentMethod(ctx context.Context, accountID uuid.UUID, fingerprint string) (bool, error) {
	args := m.Called(ctx, accountID, fingerprint)
	return args.Bool(0), args.Error(1)
}

type mockReputationChecker struct {
	mock.Mock
}

func (m *mockReputationChecker) Lookup(ctx context.Context, ip string) (risk.IPReputation, error) {
	args := m.Called(ctx, ip)
	return args.Get(0).(risk.IPReputation), args.Error(1)
}

type mockVelocityChecker struct {
	mock.Mock
}

func (m *mockVelocityChecker) RecordAndCheck(ctx context.Context, identity string) (bool, error) {
	args := m.Called(ctx, identity)
	return args.Bool(0), args.Error(1)
}

func TestExtractor_CartDerivation(t *testing.T) {
	storeA := uuid.New()
	storeB := uuid.New()
	productX := uuid.New()
	productY := uuid.New()

	extractor := NewExtractor(nil, nil, nil, zap.NewNop())

	payload := extractor.BuildPayload(context.Background(), BuildInput{
		Currency: "USD",
		Items: []CartItem{
			{ProductID: productX, StoreID: storeA, Quantity: 3, UnitPriceMinorUnits: 1000},
			{ProductID: productY, StoreID: storeA, Quantity: 2, UnitPriceMinorUnits: 500},
			{ProductID: productX, StoreID: storeB, Quantity: 1, UnitPriceMinorUnits: 1000},
		},
	})

	assert.Equal(t, 6, payload.ItemCount)
	assert.Equal(t, 2, payload.UniqueItemCount)
	assert.Equal(t, int64(5000), payload.TotalMinorUnits)

	require.Len(t, payload.Stores, 2)
	byStore := map[uuid.UUID]risk.StoreDistribution{}
	for _, dist := range payload.Stores {
		byStore[dist.StoreID] = dist
	}
	assert.Equal(t, 5, byStore[storeA].ItemCount)
	assert.Equal(t, int64(4000), byStore[storeA].SubtotalMinorUnits)
	assert.Equal(t, 1, byStore[storeB].ItemCount)
	assert.Equal(t, int64(1000), byStore[storeB].SubtotalMinorUnits)
}

func TestExtractor_GuestHasNoAccountSignals(t *testing.T) {
	history := new(mockHistoryProvider)
	extractor := NewExtractor(history, nil, nil, zap.NewNop())

	payload := extractor.BuildPayload(context.Background(), BuildInput{
		Currency: "USD",
		Items:    []CartItem{{ProductID: uuid.New(), StoreID: uuid.New(), Quantity: 1, UnitPriceMinorUnits: 100}},
	})

	assert.True(t, payload.IsGuest())
	assert.Nil(t, payload.AccountAgeSeconds)
	assert.Nil(t, payload.TransactionCount)
	assert.Nil(t, payload.NewPaymentMethod)
	history.AssertNotCalled(t, "GetHistory")
}

func TestExtractor_HistorySignals(t *testing.T) {
	accountID := uuid.New()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	history := new(mockHistoryProvider)
	history.On("GetHistory", mock.Anything, accountID).Return(&AccountHistory{
		CreatedAt:        now.Add(-48 * time.Hour),
		TransactionCount: 50,
		SuccessfulCount:  48,
		RecentFailures:   1,
	}, nil)
	history.On("KnowsPaymentMethod", mock.Anything, accountID, "fp-1").Return(true, nil)

	extractor := NewExtractor(history, nil, nil, zap.NewNop())
	extractor.now = func() time.Time { return now }

	payload := extractor.BuildPayload(context.Background(), BuildInput{
		AccountID:                &accountID,
		Currency:                 "USD",
		PaymentMethodFingerprint: "fp-1",
	})

	require.NotNil(t, payload.AccountAgeSeconds)
	assert.Equal(t, int64(172800), *payload.AccountAgeSeconds)
	require.NotNil(t, payload.TransactionCount)
	assert.Equal(t, 50, *payload.TransactionCount)
	assert.InDelta(t, 96.0, payload.SuccessRatePercent, 0.01)
	require.NotNil(t, payload.NewPaymentMethod)
	assert.False(t, *payload.NewPaymentMethod)
}

func TestExtractor_HistoryFailureDegradesToNoSignal(t *testing.T) {
	accountID := uuid.New()

	history := new(mockHistoryProvider)
	history.On("GetHistory", mock.Anything, accountID).Return(nil, assert.AnError)

	extractor := NewExtractor(history, nil, nil, zap.NewNop())

	payload := extractor.BuildPayload(context.Background(), BuildInput{
		AccountID: &accountID,
		Currency:  "USD",
	})

	assert.Nil(t, payload.AccountAgeSeconds)
	assert.Nil(t, payload.TransactionCount)
	assert.Zero(t, payload.SuccessRatePercent)
}

func TestExtractor_ReputationFailureStaysUnknown(t *testing.T) {
	reputation := new(mockReputationChecker)
	reputation.On("Lookup", mock.Anything, "203.0.113.9").
		Return(risk.IPReputationUnknown, assert.AnError)

	extractor := NewExtractor(nil, reputation, nil, zap.NewNop())

	payload := extractor.BuildPayload(context.Background(), BuildInput{
		Currency:  "USD",
		IPAddress: "203.0.113.9",
	})

	assert.Equal(t, risk.IPReputationUnknown, payload.IPReputation)
}

func TestExtractor_VelocityIdentityPrefersAccount(t *testing.T) {
	accountID := uuid.New()

	velocity := new(mockVelocityChecker)
	velocity.On("RecordAndCheck", mock.Anything, "account:"+accountID.String()).Return(true, nil)

	extractor := NewExtractor(nil, nil, velocity, zap.NewNop())

	payload := extractor.BuildPayload(context.Background(), BuildInput{
		AccountID: &accountID,
		SessionID: "sess-1",
		IPAddress: "203.0.113.9",
		Currency:  "USD",
	})

	require.NotNil(t, payload.VelocityExceeded)
	assert.True(t, *payload.VelocityExceeded)
	velocity.AssertExpectations(t)
}

func TestExtractor_VelocityFallsBackToSessionThenIP(t *testing.T) {
	velocity := new(mockVelocityChecker)
	velocity.On("RecordAndCheck", mock.Anything, "session:sess-1").Return(false, nil).Once()
	velocity.On("RecordAndCheck", mock.Anything, "ip:203.0.113.9").Return(false, nil).Once()

	extractor := NewExtractor(nil, nil, velocity, zap.NewNop())

	extractor.BuildPayload(context.Background(), BuildInput{SessionID: "sess-1", IPAddress: "203.0.113.9", Currency: "USD"})
	extractor.BuildPayload(context.Background(), BuildInput{IPAddress: "203.0.113.9", Currency: "USD"})

	velocity.AssertExpectations(t)
}
