package justification

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
	"github.com/marketsafe/checkout-risk-backend/internal/domain/values"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetAssessment(ctx context.Context, id uuid.UUID) (*risk.Assessment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*risk.Assessment), args.Error(1)
}

func (m *mockRepo) UpdateJustification(ctx context.Context, id uuid.UUID, j risk.Justification) error {
	args := m.Called(ctx, id, j)
	return args.Error(0)
}

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, assessment *risk.Assessment) (string, error) {
	args := m.Called(ctx, assessment)
	return args.String(0), args.Error(1)
}

func testAssessment() *risk.Assessment {
	return &risk.Assessment{
		ID:       uuid.New(),
		Score:    88,
		Decision: risk.DecisionDeny,
		Confidence: 0.8,
		Factors: []risk.RiskFactor{
			{Code: risk.FactorExtremeItemCount, Impact: 40, Description: "Cart holds 85 items, above the 50-item hard ceiling"},
			{Code: risk.FactorNewAccount, Impact: 24, Description: "Account is 2 day(s) old"},
			{Code: risk.FactorGoodHistory, Impact: -10, Description: "95.5% success rate over 22 transactions"},
		},
		Amount:     values.MustNewMoneyFromMinorUnits(45_115, "USD"),
		ItemCount:  85,
		StoreCount: 2,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestService_Get_UsesCapabilityWhenAvailable(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	gen := new(mockGenerator)
	assessment := testAssessment()

	repo.On("GetAssessment", ctx, assessment.ID).Return(assessment, nil)
	gen.On("Generate", mock.Anything, assessment).Return("Generated narrative.", nil)
	repo.On("UpdateJustification", ctx, assessment.ID, mock.AnythingOfType("risk.Justification")).Return(nil)

	svc := NewService(repo, gen, time.Second, zap.NewNop())
	j, err := svc.Get(ctx, assessment.ID)

	require.NoError(t, err)
	assert.Equal(t, "Generated narrative.", j.Text)
	assert.Equal(t, risk.JustificationSourceCapability, j.Source)
	assert.False(t, j.GeneratedAt.IsZero())
}

func TestService_Get_ReturnsExistingWithoutRegenerating(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	gen := new(mockGenerator)
	assessment := testAssessment()
	assessment.Justification = &risk.Justification{
		Text:        "Existing text.",
		Source:      risk.JustificationSourceCapability,
		GeneratedAt: time.Now().UTC(),
	}

	repo.On("GetAssessment", ctx, assessment.ID).Return(assessment, nil)

	svc := NewService(repo, gen, time.Second, zap.NewNop())
	j, err := svc.Get(ctx, assessment.ID)

	require.NoError(t, err)
	assert.Equal(t, "Existing text.", j.Text)
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "UpdateJustification", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Regenerate_OverwritesExisting(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	gen := new(mockGenerator)
	assessment := testAssessment()
	assessment.Justification = &risk.Justification{Text: "Old text."}

	repo.On("GetAssessment", ctx, assessment.ID).Return(assessment, nil)
	gen.On("Generate", mock.Anything, assessment).Return("Fresh narrative.", nil)
	repo.On("UpdateJustification", ctx, assessment.ID, mock.MatchedBy(func(j risk.Justification) bool {
		return j.Text == "Fresh narrative."
	})).Return(nil)

	svc := NewService(repo, gen, time.Second, zap.NewNop())
	j, err := svc.Regenerate(ctx, assessment.ID)

	require.NoError(t, err)
	assert.Equal(t, "Fresh narrative.", j.Text)
	repo.AssertExpectations(t)
}

func TestService_FallbackWhenCapabilityUnavailable(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	gen := new(mockGenerator)
	assessment := testAssessment()

	repo.On("GetAssessment", ctx, assessment.ID).Return(assessment, nil)
	gen.On("Generate", mock.Anything, assessment).Return("", ErrUnavailable)
	repo.On("UpdateJustification", ctx, assessment.ID, mock.AnythingOfType("risk.Justification")).Return(nil)

	var rendered []risk.JustificationSource
	svc := NewService(repo, gen, time.Second, zap.NewNop())
	svc.SetRenderHook(func(source risk.JustificationSource) { rendered = append(rendered, source) })

	j, err := svc.Get(ctx, assessment.ID)

	require.NoError(t, err)
	assert.Equal(t, risk.JustificationSourceFallback, j.Source)
	assert.Equal(t, []risk.JustificationSource{risk.JustificationSourceFallback}, rendered)
}

func TestService_FallbackWithNilGenerator(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	assessment := testAssessment()

	repo.On("GetAssessment", ctx, assessment.ID).Return(assessment, nil)
	repo.On("UpdateJustification", ctx, assessment.ID, mock.AnythingOfType("risk.Justification")).Return(nil)

	svc := NewService(repo, nil, time.Second, zap.NewNop())
	j, err := svc.Get(ctx, assessment.ID)

	require.NoError(t, err)
	assert.Equal(t, risk.JustificationSourceFallback, j.Source)
}

func TestFallbackText_ContainsScoreDecisionAndEveryFactor(t *testing.T) {
	assessment := testAssessment()

	text := fallbackText(assessment)

	assert.Contains(t, text, "88")
	assert.Contains(t, text, string(risk.DecisionDeny))
	for _, f := range assessment.Factors {
		assert.Contains(t, text, f.Description)
	}

	// All four sections present.
	for _, section := range []string{"Risk Summary", "Key Factors", "Recommended Actions", "Business Context"} {
		assert.Contains(t, text, section)
	}
}

func TestFallbackText_Deterministic(t *testing.T) {
	assessment := testAssessment()
	assert.Equal(t, fallbackText(assessment), fallbackText(assessment))
}

func TestFallbackText_NoFactors(t *testing.T) {
	assessment := testAssessment()
	assessment.Factors = nil
	assessment.Score = 5
	assessment.Decision = risk.DecisionAllow

	text := fallbackText(assessment)
	assert.Contains(t, text, "No risk factors were triggered")
	assert.True(t, strings.Contains(text, "low risk"))
}

func TestFallbackText_TierFollowsDecisionNotScore(t *testing.T) {
	// A stricter scoring policy can deny at scores below the default
	// thresholds; the tier label must agree with the stored decision.
	assessment := testAssessment()
	assessment.Score = 40
	assessment.Decision = risk.DecisionDeny

	text := fallbackText(assessment)
	assert.Contains(t, text, "high risk")

	assessment.Decision = risk.DecisionWarn
	assert.Contains(t, fallbackText(assessment), "elevated risk")

	assessment.Score = 65
	assessment.Decision = risk.DecisionAllow
	assert.Contains(t, fallbackText(assessment), "low risk")
}
