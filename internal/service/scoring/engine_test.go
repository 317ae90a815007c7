package scoring

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
)

func intPtr(v int) *int          { return &v }
func int64Ptr(v int64) *int64    { return &v }
func boolPtr(v bool) *bool       { return &v }
func uuidPtr(v uuid.UUID) *uuid.UUID { return &v }

func basePayload() *risk.RiskPayload {
	return &risk.RiskPayload{
		AccountID:       uuidPtr(uuid.New()),
		TotalMinorUnits: 4_500,
		Currency:        "USD",
		ItemCount:       2,
		UniqueItemCount: 2,
		Stores: []risk.StoreDistribution{
			{StoreID: uuid.New(), ItemCount: 2, SubtotalMinorUnits: 4_500},
		},
		IPAddress:    "203.0.113.10",
		IPReputation: risk.IPReputationClean,
		UserAgent:    "Mozilla/5.0",
		ClientTime:   time.Date(2026, 3, 14, 14, 30, 0, 0, time.UTC),
	}
}

func factorCodes(score risk.RiskScore) []risk.FactorCode {
	codes := make([]risk.FactorCode, 0, len(score.Factors))
	for _, f := range score.Factors {
		codes = append(codes, f.Code)
	}
	return codes
}

func TestEngine_Score_PerRule(t *testing.T) {
	engine := NewEngine(DefaultPolicy())

	tests := []struct {
		name       string
		mutate     func(p *risk.RiskPayload)
		wantCode   risk.FactorCode
		wantImpact int
	}{
		{
			name:       "extreme item count above hard ceiling",
			mutate:     func(p *risk.RiskPayload) { p.ItemCount = 51 },
			wantCode:   risk.FactorExtremeItemCount,
			wantImpact: 40,
		},
		{
			name:       "unusual item count between ceilings",
			mutate:     func(p *risk.RiskPayload) { p.ItemCount = 11 },
			wantCode:   risk.FactorUnusualItemCount,
			wantImpact: 20,
		},
		{
			name:       "brand new account carries full impact",
			mutate:     func(p *risk.RiskPayload) { p.AccountAgeSeconds = int64Ptr(0) },
			wantCode:   risk.FactorNewAccount,
			wantImpact: 25,
		},
		{
			name:       "two day old account scales down",
			mutate:     func(p *risk.RiskPayload) { p.AccountAgeSeconds = int64Ptr(172_800) },
			wantCode:   risk.FactorNewAccount,
			wantImpact: 24,
		},
		{
			name:       "new payment method",
			mutate:     func(p *risk.RiskPayload) { p.NewPaymentMethod = boolPtr(true) },
			wantCode:   risk.FactorNewPaymentMethod,
			wantImpact: 25,
		},
		{
			name:       "recent failures scale by count",
			mutate:     func(p *risk.RiskPayload) { p.RecentFailures = intPtr(2) },
			wantCode:   risk.FactorRecentFailures,
			wantImpact: 16,
		},
		{
			name:       "recent failures capped",
			mutate:     func(p *risk.RiskPayload) { p.RecentFailures = intPtr(10) },
			wantCode:   risk.FactorRecentFailures,
			wantImpact: 24,
		},
		{
			name: "good history reduces risk",
			mutate: func(p *risk.RiskPayload) {
				p.TransactionCount = intPtr(22)
				p.SuccessfulCount = intPtr(21)
				p.SuccessRatePercent = 95.5
			},
			wantCode:   risk.FactorGoodHistory,
			wantImpact: -10,
		},
		{
			name:       "high amount tier",
			mutate:     func(p *risk.RiskPayload) { p.TotalMinorUnits = 60_000 },
			wantCode:   risk.FactorHighAmount,
			wantImpact: 15,
		},
		{
			name:       "very high amount tier",
			mutate:     func(p *risk.RiskPayload) { p.TotalMinorUnits = 250_000 },
			wantCode:   risk.FactorVeryHighAmount,
			wantImpact: 25,
		},
		{
			name:       "extremely high amount tier",
			mutate:     func(p *risk.RiskPayload) { p.TotalMinorUnits = 600_000 },
			wantCode:   risk.FactorExtremelyHighAmount,
			wantImpact: 35,
		},
		{
			name: "multiple stores",
			mutate: func(p *risk.RiskPayload) {
				p.Stores = makeStores(4)
			},
			wantCode:   risk.FactorMultipleStores,
			wantImpact: 10,
		},
		{
			name: "too many stores",
			mutate: func(p *risk.RiskPayload) {
				p.Stores = makeStores(7)
			},
			wantCode:   risk.FactorTooManyStores,
			wantImpact: 20,
		},
		{
			name:       "suspicious ip",
			mutate:     func(p *risk.RiskPayload) { p.IPReputation = risk.IPReputationSuspicious },
			wantCode:   risk.FactorSuspiciousIP,
			wantImpact: 25,
		},
		{
			name:       "blacklisted ip",
			mutate:     func(p *risk.RiskPayload) { p.IPReputation = risk.IPReputationBlacklisted },
			wantCode:   risk.FactorBlacklistedIP,
			wantImpact: 60,
		},
		{
			name:       "velocity exceeded",
			mutate:     func(p *risk.RiskPayload) { p.VelocityExceeded = boolPtr(true) },
			wantCode:   risk.FactorVelocity,
			wantImpact: 20,
		},
		{
			name: "unusual time outside activity window",
			mutate: func(p *risk.RiskPayload) {
				p.TypicalActiveHours = &risk.HourRange{Start: 8, End: 22}
				p.ClientTime = time.Date(2026, 3, 14, 3, 0, 0, 0, time.UTC)
			},
			wantCode:   risk.FactorUnusualTime,
			wantImpact: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := basePayload()
			tt.mutate(payload)

			score := engine.Score(payload)

			var found *risk.RiskFactor
			for i := range score.Factors {
				if score.Factors[i].Code == tt.wantCode {
					found = &score.Factors[i]
					break
				}
			}
			require.NotNil(t, found, "expected factor %s, got %v", tt.wantCode, factorCodes(score))
			assert.Equal(t, tt.wantImpact, found.Impact)
			assert.NotEmpty(t, found.Description)
		})
	}
}

func TestEngine_Score_RulesDoNotFireWithoutSignal(t *testing.T) {
	engine := NewEngine(DefaultPolicy())

	// Guest payload with almost everything absent must still score.
	payload := &risk.RiskPayload{
		TotalMinorUnits: 2_500,
		Currency:        "USD",
		ItemCount:       1,
		UniqueItemCount: 1,
		Stores: []risk.StoreDistribution{
			{StoreID: uuid.New(), ItemCount: 1, SubtotalMinorUnits: 2_500},
		},
	}

	score := engine.Score(payload)

	assert.Empty(t, score.Factors)
	assert.Equal(t, 0, score.Score)
	assert.Equal(t, risk.DecisionAllow, score.Decision)
	assert.Equal(t, 0.0, score.Confidence)
}

func TestEngine_Score_AmountTiersMutuallyExclusive(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	payload := basePayload()
	payload.TotalMinorUnits = 600_000

	score := engine.Score(payload)
	codes := factorCodes(score)

	assert.Contains(t, codes, risk.FactorExtremelyHighAmount)
	assert.NotContains(t, codes, risk.FactorVeryHighAmount)
	assert.NotContains(t, codes, risk.FactorHighAmount)
}

func TestEngine_Score_ScenarioDeny(t *testing.T) {
	engine := NewEngine(DefaultPolicy())

	payload := basePayload()
	payload.ItemCount = 85
	payload.AccountAgeSeconds = int64Ptr(172_800)
	payload.RecentFailures = intPtr(3)

	score := engine.Score(payload)
	codes := factorCodes(score)

	assert.Contains(t, codes, risk.FactorExtremeItemCount)
	assert.Contains(t, codes, risk.FactorNewAccount)
	assert.Contains(t, codes, risk.FactorRecentFailures)
	assert.GreaterOrEqual(t, score.Score, DefaultPolicy().DenyThreshold)
	assert.Equal(t, risk.DecisionDeny, score.Decision)
}

func TestEngine_Score_ScenarioWarn(t *testing.T) {
	engine := NewEngine(DefaultPolicy())

	payload := basePayload()
	payload.ItemCount = 12
	payload.TransactionCount = intPtr(22)
	payload.SuccessfulCount = intPtr(21)
	payload.SuccessRatePercent = 95.5
	payload.NewPaymentMethod = boolPtr(true)

	score := engine.Score(payload)
	codes := factorCodes(score)

	assert.Contains(t, codes, risk.FactorUnusualItemCount)
	assert.Contains(t, codes, risk.FactorNewPaymentMethod)
	assert.Contains(t, codes, risk.FactorGoodHistory)

	policy := DefaultPolicy()
	assert.GreaterOrEqual(t, score.Score, policy.WarnThreshold)
	assert.Less(t, score.Score, policy.DenyThreshold)
	assert.Equal(t, risk.DecisionWarn, score.Decision)
	assert.False(t, policy.RequiresStepUp(score.Score))
}

func TestEngine_Score_Bounds(t *testing.T) {
	engine := NewEngine(DefaultPolicy())

	// Everything fires at once; score must clamp to 100.
	payload := basePayload()
	payload.ItemCount = 200
	payload.AccountAgeSeconds = int64Ptr(0)
	payload.NewPaymentMethod = boolPtr(true)
	payload.RecentFailures = intPtr(5)
	payload.TotalMinorUnits = 900_000
	payload.Stores = makeStores(8)
	payload.IPReputation = risk.IPReputationBlacklisted
	payload.VelocityExceeded = boolPtr(true)
	payload.TypicalActiveHours = &risk.HourRange{Start: 8, End: 22}
	payload.ClientTime = time.Date(2026, 3, 14, 3, 0, 0, 0, time.UTC)

	score := engine.Score(payload)

	assert.Equal(t, 100, score.Score)
	assert.Equal(t, risk.DecisionDeny, score.Decision)
	assert.GreaterOrEqual(t, score.Confidence, 0.0)
	assert.LessOrEqual(t, score.Confidence, 1.0)
}

func TestPolicy_DecisionMonotonic(t *testing.T) {
	policy := DefaultPolicy()

	previous := risk.DecisionAllow
	for score := 0; score <= 100; score++ {
		decision := policy.DecisionFor(score)
		assert.False(t, previous.MoreRestrictiveThan(decision),
			"decision regressed at score %d: %s after %s", score, decision, previous)
		previous = decision
	}
}

func TestPolicy_RequiresStepUp(t *testing.T) {
	policy := DefaultPolicy()

	assert.False(t, policy.RequiresStepUp(35), "warned score below sub-threshold proceeds with logging only")
	assert.True(t, policy.RequiresStepUp(50))
	assert.True(t, policy.RequiresStepUp(69))
	assert.False(t, policy.RequiresStepUp(70), "deny band never enters verification")
}

func TestConfidence_GuestVsEstablished(t *testing.T) {
	engine := NewEngine(DefaultPolicy())

	guest := &risk.RiskPayload{
		TotalMinorUnits: 10_000,
		Currency:        "USD",
		ItemCount:       1,
		UserAgent:       "Mozilla/5.0",
		ClientTime:      time.Now(),
	}

	established := basePayload()
	established.AccountAgeSeconds = int64Ptr(86_400 * 400)
	established.TransactionCount = intPtr(50)
	established.SuccessfulCount = intPtr(49)
	established.RecentFailures = intPtr(0)
	established.NewPaymentMethod = boolPtr(false)
	established.ConcurrentSessions = intPtr(1)
	established.RecentFailedLogins = intPtr(0)

	guestScore := engine.Score(guest)
	establishedScore := engine.Score(established)

	assert.Less(t, guestScore.Confidence, establishedScore.Confidence)
	assert.Equal(t, 1.0, establishedScore.Confidence)
}

func makeStores(n int) []risk.StoreDistribution {
	stores := make([]risk.StoreDistribution, n)
	for i := range stores {
		stores[i] = risk.StoreDistribution{StoreID: uuid.New(), ItemCount: 1, SubtotalMinorUnits: 1_000}
	}
	return stores
}
