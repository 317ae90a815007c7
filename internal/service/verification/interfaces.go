package verification

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
)

// TokenRepository stores verification tokens. Consume must be an atomic
// check-and-set: under concurrent submissions exactly one caller wins.
type TokenRepository interface {
	// Save persists a freshly minted token.
	Save(ctx context.Context, token *risk.VerificationToken) error
	// GetByValue retrieves a token by its opaque value.
	GetByValue(ctx context.Context, value string) (*risk.VerificationToken, error)
	// Consume marks the token consumed iff it is still pending, unexpired,
	// within its attempt limit, and the code hash matches. Returns the
	// consumed token, or false when the conditional update applied to no row.
	Consume(ctx context.Context, value, codeHash string, now time.Time) (*risk.VerificationToken, bool, error)
	// RecordFailedAttempt increments the attempt counter and returns the new count.
	RecordFailedAttempt(ctx context.Context, id uuid.UUID) (int, error)
	// UpdateStatus transitions a token's lifecycle state.
	UpdateStatus(ctx context.Context, id uuid.UUID, status risk.TokenStatus) error
}

// AssessmentResolver records how a step-up challenge concluded on the
// originating assessment.
type AssessmentResolver interface {
	ResolveVerification(ctx context.Context, assessmentID uuid.UUID, outcome risk.VerificationOutcome, resolvedAt time.Time) error
}

// Notifier delivers the challenge code out of band (email collaborator).
type Notifier interface {
	SendChallengeCode(ctx context.Context, accountID *uuid.UUID, code string, expiresAt time.Time) error
}

// IssueRequest binds a new token to the context that triggered it.
type IssueRequest struct {
	AssessmentID uuid.UUID
	AccountID    *uuid.UUID
	SessionID    string
}

// Issued is the outcome of token issuance handed back to the caller; the
// plaintext code travels only through the notifier.
type Issued struct {
	Token     string
	ExpiresAt time.Time
}

// VerifyResult classifies one verification submission.
type VerifyResult struct {
	Status            risk.TokenStatus
	AssessmentID      uuid.UUID
	AttemptsRemaining int
	// Decision is allow once verified: the original transaction re-enters
	// the payment path.
	Decision risk.Decision
}
