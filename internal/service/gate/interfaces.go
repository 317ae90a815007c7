package gate

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
	"github.com/marketsafe/checkout-risk-backend/internal/service/verification"
)

// AssessmentRepository is the synchronous audit store. Save sits on the
// checkout critical path; a failed save fails the attempt closed.
type AssessmentRepository interface {
	Save(ctx context.Context, assessment *risk.Assessment) error
	GetByID(ctx context.Context, id uuid.UUID) (*risk.Assessment, error)
}

// VerificationIssuer starts the step-up sub-flow for borderline attempts.
type VerificationIssuer interface {
	Issue(ctx context.Context, req verification.IssueRequest) (*verification.Issued, error)
}

// JustificationTrigger kicks off fire-and-forget justification generation.
type JustificationTrigger interface {
	GenerateAsync(assessmentID uuid.UUID)
}

// AccountHistory is the account-history collaborator's view of one account.
type AccountHistory struct {
	CreatedAt          time.Time
	TransactionCount   int
	SuccessfulCount    int
	RecentFailures     int
	TypicalActiveHours *risk.HourRange
}

// HistoryProvider looks up account history from the external account system.
type HistoryProvider interface {
	GetHistory(ctx context.Context, accountID uuid.UUID) (*AccountHistory, error)
	// KnowsPaymentMethod reports whether the account has used this payment
	// method fingerprint before.
	KnowsPaymentMethod(ctx context.Context, accountID uuid.UUID, fingerprint string) (bool, error)
}

// ReputationChecker performs the external IP reputation lookup.
type ReputationChecker interface {
	Lookup(ctx context.Context, ip string) (risk.IPReputation, error)
}

// VelocityChecker records one checkout attempt for an identity and reports
// whether the attempt rate exceeded the configured window limit.
type VelocityChecker interface {
	RecordAndCheck(ctx context.Context, identity string) (bool, error)
}

// CartItem is one line of the inbound cart snapshot.
type CartItem struct {
	ProductID          uuid.UUID
	StoreID            uuid.UUID
	Quantity           int
	UnitPriceMinorUnits int64
}

// BuildInput is the raw material the signal extractor assembles a payload
// from: authenticated or guest context plus cart contents.
type BuildInput struct {
	AccountID   *uuid.UUID
	AccountRole string
	SessionID   string

	Items    []CartItem
	Currency string

	PaymentMethodFingerprint string

	IPAddress          string
	UserAgent          string
	ConcurrentSessions *int
	RecentFailedLogins *int

	ClientTime time.Time
}

// OutcomeStatus is what the payment-initiation collaborator should do next.
type OutcomeStatus string

const (
	OutcomeProceed              OutcomeStatus = "proceed"
	OutcomeVerificationRequired OutcomeStatus = "verification_required"
	OutcomeBlocked              OutcomeStatus = "blocked"
)

// BlockResponse is the structured deny payload.
type BlockResponse struct {
	Code           string   `json:"code"`
	Message        string   `json:"message"`
	Score          int      `json:"score"`
	TopFactors     []string `json:"top_factors"`
	SupportContact string   `json:"support_contact"`
}

// Outcome is the gate's decision handed back to the payment path.
type Outcome struct {
	Assessment   *risk.Assessment
	Score        risk.RiskScore
	Status       OutcomeStatus
	Block        *BlockResponse
	Verification *verification.Issued
}
