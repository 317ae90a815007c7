package rest

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
	"github.com/marketsafe/checkout-risk-backend/internal/service/gate"
	"github.com/marketsafe/checkout-risk-backend/internal/service/linkage"
)

// cartItemRequest is one line of the inbound cart snapshot.
type cartItemRequest struct {
	ProductID           uuid.UUID `json:"product_id" validate:"required"`
	StoreID             uuid.UUID `json:"store_id" validate:"required"`
	Quantity            int       `json:"quantity" validate:"required,min=1"`
	UnitPriceMinorUnits int64     `json:"unit_price_minor_units" validate:"required,min=0"`
}

// createAssessmentRequest is the checkout-time assessment call.
type createAssessmentRequest struct {
	AccountID   *uuid.UUID `json:"account_id,omitempty"`
	AccountRole string     `json:"account_role,omitempty"`
	SessionID   string     `json:"session_id,omitempty" validate:"max=128"`

	Items    []cartItemRequest `json:"items" validate:"required,min=1,dive"`
	Currency string            `json:"currency" validate:"required,len=3,alpha"`

	PaymentMethodFingerprint string `json:"payment_method_fingerprint,omitempty" validate:"max=128"`

	UserAgent          string     `json:"user_agent,omitempty" validate:"max=512"`
	ConcurrentSessions *int       `json:"concurrent_sessions,omitempty" validate:"omitempty,min=0"`
	RecentFailedLogins *int       `json:"recent_failed_logins,omitempty" validate:"omitempty,min=0"`
	ClientTime         *time.Time `json:"client_time,omitempty"`
}

func (r *createAssessmentRequest) toBuildInput(clientIP string) gate.BuildInput {
	items := make([]gate.CartItem, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, gate.CartItem{
			ProductID:           item.ProductID,
			StoreID:             item.StoreID,
			Quantity:            item.Quantity,
			UnitPriceMinorUnits: item.UnitPriceMinorUnits,
		})
	}

	clientTime := time.Now().UTC()
	if r.ClientTime != nil {
		clientTime = *r.ClientTime
	}

	return gate.BuildInput{
		AccountID:                r.AccountID,
		AccountRole:              r.AccountRole,
		SessionID:                r.SessionID,
		Items:                    items,
		Currency:                 r.Currency,
		PaymentMethodFingerprint: r.PaymentMethodFingerprint,
		IPAddress:                clientIP,
		UserAgent:                r.UserAgent,
		ConcurrentSessions:       r.ConcurrentSessions,
		RecentFailedLogins:       r.RecentFailedLogins,
		ClientTime:               clientTime,
	}
}

// verificationResponse is the step-up handle returned alongside a
// verification-required outcome.
type verificationResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// assessmentOutcomeResponse is what the checkout flow acts on.
type assessmentOutcomeResponse struct {
	AssessmentID uuid.UUID             `json:"assessment_id"`
	Status       gate.OutcomeStatus    `json:"status"`
	Score        int                   `json:"score"`
	Decision     risk.Decision         `json:"decision"`
	Confidence   float64               `json:"confidence"`
	Block        *gate.BlockResponse   `json:"block,omitempty"`
	Verification *verificationResponse `json:"verification,omitempty"`
}

func newAssessmentOutcomeResponse(outcome *gate.Outcome) assessmentOutcomeResponse {
	resp := assessmentOutcomeResponse{
		AssessmentID: outcome.Assessment.ID,
		Status:       outcome.Status,
		Score:        outcome.Score.Score,
		Decision:     outcome.Score.Decision,
		Confidence:   outcome.Score.Confidence,
		Block:        outcome.Block,
	}
	if outcome.Verification != nil {
		resp.Verification = &verificationResponse{
			Token:     outcome.Verification.Token,
			ExpiresAt: outcome.Verification.ExpiresAt,
		}
	}
	return resp
}

// verifyRequest is one verification submission.
type verifyRequest struct {
	Token string `json:"token" validate:"required,min=16,max=64"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// verifyResponse reports how the submission concluded.
type verifyResponse struct {
	Status       risk.TokenStatus `json:"status"`
	AssessmentID uuid.UUID        `json:"assessment_id"`
	Decision     risk.Decision    `json:"decision"`
}

// linkRequest attaches created orders to an assessment.
type linkRequest struct {
	OrderIDs []uuid.UUID `json:"order_ids" validate:"required,min=1,max=100"`
}

// linkResponse echoes what the application touched.
type linkResponse struct {
	AssessmentID uuid.UUID   `json:"assessment_id"`
	OrderIDs     []uuid.UUID `json:"order_ids"`
	StoreIDs     []uuid.UUID `json:"store_ids"`
}

func newLinkResponse(result *linkage.LinkResult) linkResponse {
	return linkResponse{
		AssessmentID: result.AssessmentID,
		OrderIDs:     result.OrderIDs,
		StoreIDs:     result.StoreIDs,
	}
}

// justificationResponse carries the rendered justification.
type justificationResponse struct {
	AssessmentID uuid.UUID                `json:"assessment_id"`
	Text         string                   `json:"text"`
	Source       risk.JustificationSource `json:"source"`
	GeneratedAt  time.Time                `json:"generated_at"`
}
