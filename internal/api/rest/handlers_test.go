package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/errors"
	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
	"github.com/marketsafe/checkout-risk-backend/internal/service/gate"
	"github.com/marketsafe/checkout-risk-backend/internal/service/linkage"
	"github.com/marketsafe/checkout-risk-backend/internal/service/verification"
)

type mockGateService struct {
	mock.Mock
}

func (m *mockGateService) Assess(ctx context.Context, in gate.BuildInput) (*gate.Outcome, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gate.Outcome), args.Error(1)
}

func (m *mockGateService) GetAssessment(ctx context.Context, id uuid.UUID) (*risk.Assessment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*risk.Assessment), args.Error(1)
}

type mockVerificationService struct {
	mock.Mock
}

func (m *mockVerificationService) Verify(ctx context.Context, tokenValue, code string) (*verification.VerifyResult, error) {
	args := m.Called(ctx, tokenValue, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*verification.VerifyResult), args.Error(1)
}

type mockLinkageService struct {
	mock.Mock
}

func (m *mockLinkageService) Link(ctx context.Context, assessmentID uuid.UUID, orderIDs []uuid.UUID) (*linkage.LinkResult, error) {
	args := m.Called(ctx, assessmentID, orderIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*linkage.LinkResult), args.Error(1)
}

func (m *mockLinkageService) Links(ctx context.Context, assessmentID uuid.UUID) ([]risk.OrderLink, []risk.StoreLink, error) {
	args := m.Called(ctx, assessmentID)
	if args.Get(2) != nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).([]risk.OrderLink), args.Get(1).([]risk.StoreLink), nil
}

type mockJustificationService struct {
	mock.Mock
}

func (m *mockJustificationService) Get(ctx context.Context, assessmentID uuid.UUID) (*risk.Justification, error) {
	args := m.Called(ctx, assessmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*risk.Justification), args.Error(1)
}

func (m *mockJustificationService) Regenerate(ctx context.Context, assessmentID uuid.UUID) (*risk.Justification, error) {
	args := m.Called(ctx, assessmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*risk.Justification), args.Error(1)
}

type apiFixture struct {
	router        http.Handler
	gate          *mockGateService
	verification  *mockVerificationService
	linkage       *mockLinkageService
	justification *mockJustificationService
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	f := &apiFixture{
		gate:          new(mockGateService),
		verification:  new(mockVerificationService),
		linkage:       new(mockLinkageService),
		justification: new(mockJustificationService),
	}

	logger := zaptest.NewLogger(t)
	handler := NewHandler(f.gate, f.verification, f.linkage, f.justification, logger)
	f.router = NewRouter(RouterConfig{
		Handler: handler,
		Logger:  logger,
	})
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.50:52011"

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func validAssessmentBody() map[string]interface{} {
	return map[string]interface{}{
		"session_id": "sess-1",
		"currency":   "USD",
		"items": []map[string]interface{}{
			{
				"product_id":             uuid.New().String(),
				"store_id":               uuid.New().String(),
				"quantity":               2,
				"unit_price_minor_units": 1999,
			},
		},
	}
}

func allowOutcome() *gate.Outcome {
	assessment := &risk.Assessment{ID: uuid.New()}
	return &gate.Outcome{
		Assessment: assessment,
		Score:      risk.RiskScore{Score: 5, Decision: risk.DecisionAllow, Confidence: 0.4},
		Status:     gate.OutcomeProceed,
	}
}

func TestCreateAssessment_Proceed(t *testing.T) {
	f := newAPIFixture(t)
	outcome := allowOutcome()
	f.gate.On("Assess", mock.Anything, mock.MatchedBy(func(in gate.BuildInput) bool {
		return in.SessionID == "sess-1" && in.IPAddress == "203.0.113.50" && len(in.Items) == 1
	})).Return(outcome, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/assessments", validAssessmentBody())

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp assessmentOutcomeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, outcome.Assessment.ID, resp.AssessmentID)
	assert.Equal(t, gate.OutcomeProceed, resp.Status)
	assert.Equal(t, risk.DecisionAllow, resp.Decision)
	assert.Nil(t, resp.Block)
	assert.Nil(t, resp.Verification)
}

func TestCreateAssessment_BlockedCarriesBlockPayload(t *testing.T) {
	f := newAPIFixture(t)
	assessment := &risk.Assessment{ID: uuid.New()}
	f.gate.On("Assess", mock.Anything, mock.Anything).Return(&gate.Outcome{
		Assessment: assessment,
		Score:      risk.RiskScore{Score: 88, Decision: risk.DecisionDeny, Confidence: 0.9},
		Status:     gate.OutcomeBlocked,
		Block: &gate.BlockResponse{
			Code:           "TRANSACTION_BLOCKED",
			Message:        "declined",
			Score:          88,
			TopFactors:     []string{"cart item count far above normal"},
			SupportContact: "support@example.com",
		},
	}, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/assessments", validAssessmentBody())

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp assessmentOutcomeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, gate.OutcomeBlocked, resp.Status)
	require.NotNil(t, resp.Block)
	assert.Equal(t, 88, resp.Block.Score)
	assert.NotEmpty(t, resp.Block.TopFactors)
}

func TestCreateAssessment_VerificationRequired(t *testing.T) {
	f := newAPIFixture(t)
	assessment := &risk.Assessment{ID: uuid.New(), VerificationRequired: true}
	expires := time.Now().Add(10 * time.Minute).UTC()
	f.gate.On("Assess", mock.Anything, mock.Anything).Return(&gate.Outcome{
		Assessment:   assessment,
		Score:        risk.RiskScore{Score: 50, Decision: risk.DecisionWarn, Confidence: 0.8},
		Status:       gate.OutcomeVerificationRequired,
		Verification: &verification.Issued{Token: "tok-123", ExpiresAt: expires},
	}, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/assessments", validAssessmentBody())

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp assessmentOutcomeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, gate.OutcomeVerificationRequired, resp.Status)
	require.NotNil(t, resp.Verification)
	assert.Equal(t, "tok-123", resp.Verification.Token)
}

func TestCreateAssessment_RejectsMalformedBody(t *testing.T) {
	f := newAPIFixture(t)

	body := validAssessmentBody()
	body["currency"] = "DOLLARS"
	rec := f.do(t, http.MethodPost, "/api/v1/assessments", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.gate.AssertNotCalled(t, "Assess")
}

func TestCreateAssessment_EmptyCartRejected(t *testing.T) {
	f := newAPIFixture(t)

	body := validAssessmentBody()
	body["items"] = []map[string]interface{}{}
	rec := f.do(t, http.MethodPost, "/api/v1/assessments", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAssessment_NotFound(t *testing.T) {
	f := newAPIFixture(t)
	id := uuid.New()
	f.gate.On("GetAssessment", mock.Anything, id).Return(nil, errors.ErrAssessmentNotFound)

	rec := f.do(t, http.MethodGet, "/api/v1/assessments/"+id.String(), nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAssessment_BadID(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/assessments/not-a-uuid", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.gate.AssertNotCalled(t, "GetAssessment")
}

func TestVerify_Success(t *testing.T) {
	f := newAPIFixture(t)
	assessmentID := uuid.New()
	f.verification.On("Verify", mock.Anything, "a1b2c3d4e5f60718293a4b5c6d7e8f90", "482910").
		Return(&verification.VerifyResult{
			Status:       risk.TokenStatusVerified,
			AssessmentID: assessmentID,
			Decision:     risk.DecisionAllow,
		}, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/verifications/verify", map[string]string{
		"token": "a1b2c3d4e5f60718293a4b5c6d7e8f90",
		"code":  "482910",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp verifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, risk.TokenStatusVerified, resp.Status)
	assert.Equal(t, risk.DecisionAllow, resp.Decision)
	assert.Equal(t, assessmentID, resp.AssessmentID)
}

func TestVerify_ExpiredMapsTo410(t *testing.T) {
	f := newAPIFixture(t)
	f.verification.On("Verify", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.ErrTokenExpired)

	rec := f.do(t, http.MethodPost, "/api/v1/verifications/verify", map[string]string{
		"token": "a1b2c3d4e5f60718293a4b5c6d7e8f90",
		"code":  "482910",
	})

	assert.Equal(t, http.StatusGone, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "TOKEN_EXPIRED", resp.Error.Code)
}

func TestVerify_RejectsNonNumericCode(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/verifications/verify", map[string]string{
		"token": "a1b2c3d4e5f60718293a4b5c6d7e8f90",
		"code":  "abc123",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.verification.AssertNotCalled(t, "Verify")
}

func TestVerify_RateLimited(t *testing.T) {
	f := &apiFixture{
		gate:          new(mockGateService),
		verification:  new(mockVerificationService),
		linkage:       new(mockLinkageService),
		justification: new(mockJustificationService),
	}
	logger := zaptest.NewLogger(t)
	handler := NewHandler(f.gate, f.verification, f.linkage, f.justification, logger)
	f.router = NewRouter(RouterConfig{
		Handler:         handler,
		Logger:          logger,
		VerifyRateLimit: 1,
		VerifyRateBurst: 2,
	})

	f.verification.On("Verify", mock.Anything, mock.Anything, mock.Anything).
		Return(&verification.VerifyResult{Status: risk.TokenStatusVerified, Decision: risk.DecisionAllow}, nil)

	body := map[string]string{"token": "a1b2c3d4e5f60718293a4b5c6d7e8f90", "code": "482910"}

	statuses := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		rec := f.do(t, http.MethodPost, "/api/v1/verifications/verify", body)
		statuses = append(statuses, rec.Code)
	}
	assert.Contains(t, statuses, http.StatusTooManyRequests)
}

func TestLinkAssessment(t *testing.T) {
	f := newAPIFixture(t)
	assessmentID := uuid.New()
	orderA, orderB := uuid.New(), uuid.New()
	storeA := uuid.New()

	f.linkage.On("Link", mock.Anything, assessmentID, []uuid.UUID{orderA, orderB}).
		Return(&linkage.LinkResult{
			AssessmentID: assessmentID,
			OrderIDs:     []uuid.UUID{orderA, orderB},
			StoreIDs:     []uuid.UUID{storeA},
		}, nil)

	rec := f.do(t, http.MethodPost,
		fmt.Sprintf("/api/v1/assessments/%s/links", assessmentID),
		map[string]interface{}{"order_ids": []string{orderA.String(), orderB.String()}})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp linkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.OrderIDs, 2)
	assert.Len(t, resp.StoreIDs, 1)
}

func TestLinkAssessment_EmptyOrdersRejected(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost,
		fmt.Sprintf("/api/v1/assessments/%s/links", uuid.New()),
		map[string]interface{}{"order_ids": []string{}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.linkage.AssertNotCalled(t, "Link")
}

func TestGetJustification(t *testing.T) {
	f := newAPIFixture(t)
	id := uuid.New()
	f.justification.On("Get", mock.Anything, id).Return(&risk.Justification{
		Text:        "Risk Summary: ...",
		Source:      risk.JustificationSourceFallback,
		GeneratedAt: time.Now().UTC(),
	}, nil)

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/assessments/%s/justification", id), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp justificationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, risk.JustificationSourceFallback, resp.Source)
	assert.NotEmpty(t, resp.Text)
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

type failingChecker struct{}

func (failingChecker) HealthCheck(ctx context.Context) error {
	return fmt.Errorf("connection refused")
}

func TestReadyz_Degraded(t *testing.T) {
	logger := zaptest.NewLogger(t)
	handler := NewHandler(new(mockGateService), new(mockVerificationService), new(mockLinkageService), new(mockJustificationService), logger)
	router := NewRouter(RouterConfig{
		Handler:           handler,
		Logger:            logger,
		ReadinessCheckers: map[string]HealthChecker{"database": failingChecker{}},
	})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestSpanUsesRoutePattern(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	f := newAPIFixture(t)
	id := uuid.New()
	f.gate.On("GetAssessment", mock.Anything, id).Return(nil, errors.ErrAssessmentNotFound)

	rec := f.do(t, http.MethodGet, "/api/v1/assessments/"+id.String(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/v1/assessments/{id}", spans[0].Name(),
		"span is named by the matched route, not the raw path")

	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.EqualValues(t, http.StatusNotFound, attrs["http.status_code"].AsInt64())
}
