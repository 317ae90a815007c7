package risk

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/values"
)

// VerificationOutcome records how a step-up challenge concluded.
type VerificationOutcome string

const (
	VerificationOutcomeVerified VerificationOutcome = "verified"
	VerificationOutcomeExpired  VerificationOutcome = "expired"
	VerificationOutcomeFailed   VerificationOutcome = "failed"
)

// JustificationSource identifies which strategy produced the justification.
type JustificationSource string

const (
	JustificationSourceCapability JustificationSource = "capability"
	JustificationSourceFallback   JustificationSource = "fallback"
)

// Justification is the natural-language rendering attached to an assessment.
type Justification struct {
	Text        string              `json:"text"`
	Source      JustificationSource `json:"source"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// Assessment is the persisted audit record of one scoring invocation. It is
// immutable after creation except for the justification fields and the
// verification-resolution fields.
type Assessment struct {
	ID         uuid.UUID    `json:"id"`
	AccountID  *uuid.UUID   `json:"account_id,omitempty"`
	Score      int          `json:"score"`
	Decision   Decision     `json:"decision"`
	Confidence float64      `json:"confidence"`
	Factors    []RiskFactor `json:"factors"`

	Amount    values.Money `json:"amount"`
	ItemCount int          `json:"item_count"`
	StoreCount int         `json:"store_count"`

	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	Justification *Justification `json:"justification,omitempty"`

	VerificationRequired bool                 `json:"verification_required"`
	VerificationOutcome  *VerificationOutcome `json:"verification_outcome,omitempty"`
	VerificationResolvedAt *time.Time         `json:"verification_resolved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewAssessment builds the audit record for a scored payload.
func NewAssessment(payload *RiskPayload, score RiskScore, amount values.Money, verificationRequired bool) *Assessment {
	return &Assessment{
		ID:                   uuid.New(),
		AccountID:            payload.AccountID,
		Score:                score.Score,
		Decision:             score.Decision,
		Confidence:           score.Confidence,
		Factors:              score.Factors,
		Amount:               amount,
		ItemCount:            payload.ItemCount,
		StoreCount:           payload.StoreCount(),
		IPAddress:            payload.IPAddress,
		UserAgent:            payload.UserAgent,
		VerificationRequired: verificationRequired,
		CreatedAt:            time.Now().UTC(),
	}
}
