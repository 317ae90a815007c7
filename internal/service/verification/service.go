package verification

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/errors"
	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
	"github.com/marketsafe/checkout-risk-backend/internal/infrastructure/telemetry"
)

// Config carries the token lifecycle knobs.
type Config struct {
	TokenTTL    time.Duration `koanf:"token_ttl"`
	MaxAttempts int           `koanf:"max_attempts"`
}

// DefaultConfig returns the reference token lifecycle settings.
func DefaultConfig() Config {
	return Config{
		TokenTTL:    10 * time.Minute,
		MaxAttempts: 3,
	}
}

// Service drives the step-up verification sub-flow:
// Issued -> Pending -> {Verified | Expired | Failed}.
type Service struct {
	repo        TokenRepository
	assessments AssessmentResolver
	notifier    Notifier
	cfg         Config
	logger      *zap.Logger
	now         func() time.Time
	tracer      trace.Tracer
}

// NewService creates a verification service.
func NewService(repo TokenRepository, assessments AssessmentResolver, notifier Notifier, cfg Config, logger *zap.Logger) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultConfig().TokenTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	return &Service{
		repo:        repo,
		assessments: assessments,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
		tracer:      telemetry.Tracer("service.verification"),
	}
}

// Issue mints a single-use token bound to the triggering assessment, account,
// and session, persists it, and hands the challenge code to the out-of-band
// notifier. The plaintext code never reaches the caller.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*Issued, error) {
	token, code, err := risk.NewVerificationToken(req.AssessmentID, req.AccountID, req.SessionID, s.cfg.TokenTTL, s.cfg.MaxAttempts)
	if err != nil {
		return nil, errors.NewInternalError("failed to mint verification token").WithCause(err)
	}

	if err := s.repo.Save(ctx, token); err != nil {
		return nil, errors.NewInternalError("failed to persist verification token").WithCause(err)
	}

	if err := s.notifier.SendChallengeCode(ctx, req.AccountID, code, token.ExpiresAt); err != nil {
		// Delivery failure is not fatal to issuance; the caller can request
		// a fresh challenge. Log and continue.
		s.logger.Warn("challenge code delivery failed",
			zap.String("assessment_id", req.AssessmentID.String()),
			zap.Error(err))
	}

	s.logger.Info("verification token issued",
		zap.String("assessment_id", req.AssessmentID.String()),
		zap.Time("expires_at", token.ExpiresAt))

	return &Issued{
		Token:     token.Token,
		ExpiresAt: token.ExpiresAt,
	}, nil
}

// Verify classifies one submission against a token. Outcomes are distinct:
// malformed request, unknown token, replay of a consumed token, expired
// token, wrong code (retryable up to the attempt limit), or verified. The
// consume step is an atomic conditional update, so two concurrent correct
// submissions resolve with exactly one winner.
func (s *Service) Verify(ctx context.Context, tokenValue, code string) (result *VerifyResult, err error) {
	ctx, span := s.tracer.Start(ctx, "verification.verify")
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	if tokenValue == "" || code == "" {
		return nil, errors.NewValidationError("MALFORMED_REQUEST", "token and code are required")
	}

	now := s.now().UTC()

	token, err := s.repo.GetByValue(ctx, tokenValue)
	if err != nil {
		return nil, err
	}

	if token.IsConsumed() {
		return nil, errors.ErrTokenConsumed
	}

	if token.IsExpired(now) {
		s.expire(ctx, token, now)
		return nil, errors.ErrTokenExpired
	}

	if token.AttemptsRemaining() == 0 {
		return nil, errors.ErrAttemptsExceeded
	}

	consumed, ok, err := s.repo.Consume(ctx, tokenValue, risk.HashCode(code), now)
	if err != nil {
		return nil, errors.NewInternalError("failed to consume verification token").WithCause(err)
	}

	if ok {
		if err := s.assessments.ResolveVerification(ctx, consumed.AssessmentID, risk.VerificationOutcomeVerified, now); err != nil {
			s.logger.Error("failed to record verification resolution",
				zap.String("assessment_id", consumed.AssessmentID.String()),
				zap.Error(err))
		}
		s.logger.Info("verification succeeded",
			zap.String("assessment_id", consumed.AssessmentID.String()))
		span.SetAttributes(attribute.String("verification.outcome", "verified"))

		return &VerifyResult{
			Status:       risk.TokenStatusVerified,
			AssessmentID: consumed.AssessmentID,
			Decision:     risk.DecisionAllow,
		}, nil
	}

	// The conditional update applied to no row: re-read to classify why.
	current, err := s.repo.GetByValue(ctx, tokenValue)
	if err != nil {
		return nil, err
	}

	if current.IsConsumed() {
		return nil, errors.ErrTokenConsumed
	}
	if current.IsExpired(now) {
		s.expire(ctx, current, now)
		return nil, errors.ErrTokenExpired
	}

	// Wrong code.
	attempts, err := s.repo.RecordFailedAttempt(ctx, current.ID)
	if err != nil {
		return nil, errors.NewInternalError("failed to record verification attempt").WithCause(err)
	}

	if attempts >= current.MaxAttempts {
		if err := s.repo.UpdateStatus(ctx, current.ID, risk.TokenStatusFailed); err != nil {
			s.logger.Error("failed to mark token failed", zap.Error(err))
		}
		if err := s.assessments.ResolveVerification(ctx, current.AssessmentID, risk.VerificationOutcomeFailed, now); err != nil {
			s.logger.Error("failed to record verification resolution", zap.Error(err))
		}
		return nil, errors.ErrAttemptsExceeded
	}

	remaining := current.MaxAttempts - attempts
	return nil, errors.NewBusinessError("VERIFICATION_FAILED", "Submitted verification code does not match").
		WithDetails(map[string]interface{}{"attempts_remaining": remaining})
}

func (s *Service) expire(ctx context.Context, token *risk.VerificationToken, now time.Time) {
	if err := s.repo.UpdateStatus(ctx, token.ID, risk.TokenStatusExpired); err != nil {
		s.logger.Error("failed to mark token expired", zap.Error(err))
	}
	if err := s.assessments.ResolveVerification(ctx, token.AssessmentID, risk.VerificationOutcomeExpired, now); err != nil {
		s.logger.Error("failed to record verification resolution", zap.Error(err))
	}
}
