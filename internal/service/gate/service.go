package gate

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/errors"
	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
	"github.com/marketsafe/checkout-risk-backend/internal/domain/values"
	"github.com/marketsafe/checkout-risk-backend/internal/infrastructure/telemetry"
	"github.com/marketsafe/checkout-risk-backend/internal/service/scoring"
	"github.com/marketsafe/checkout-risk-backend/internal/service/verification"
)

// MetricsRecorder receives per-assessment observations. A nil recorder is a
// no-op.
type MetricsRecorder interface {
	RecordAssessment(decision risk.Decision, score int, duration time.Duration)
}

// Config tunes the gate's outward-facing behavior.
type Config struct {
	// SupportContact is surfaced verbatim in deny responses.
	SupportContact string `koanf:"support_contact"`
	// TopFactorCount bounds how many factor descriptions a deny response
	// exposes to the client.
	TopFactorCount int `koanf:"top_factor_count"`
}

// DefaultConfig returns the gate defaults.
func DefaultConfig() Config {
	return Config{
		SupportContact: "support@marketsafe.example",
		TopFactorCount: 3,
	}
}

// Service is the decision gate: it scores an attempt, persists the audit
// record on the critical path, and translates the decision into what the
// payment flow should do next.
type Service struct {
	engine    *scoring.Engine
	extractor *Extractor
	repo      AssessmentRepository
	verifier  VerificationIssuer
	justifier JustificationTrigger
	metrics   MetricsRecorder
	config    Config
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewService wires the gate. The verifier and justifier may be nil in tests;
// a nil verifier downgrades step-up attempts to a persisted warn that
// proceeds, which is never the production wiring.
func NewService(
	engine *scoring.Engine,
	extractor *Extractor,
	repo AssessmentRepository,
	verifier VerificationIssuer,
	justifier JustificationTrigger,
	metrics MetricsRecorder,
	config Config,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TopFactorCount <= 0 {
		config.TopFactorCount = DefaultConfig().TopFactorCount
	}
	return &Service{
		engine:    engine,
		extractor: extractor,
		repo:      repo,
		verifier:  verifier,
		justifier: justifier,
		metrics:   metrics,
		config:    config,
		logger:    logger,
		tracer:    telemetry.Tracer("service.gate"),
	}
}

// Assess runs the full gate pipeline for one checkout attempt: extract
// signals, score, persist, decide. Persistence failures fail the attempt
// closed; no transaction proceeds without its audit record.
func (s *Service) Assess(ctx context.Context, in BuildInput) (outcome *Outcome, err error) {
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "gate.assess")
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	payload := s.extractor.BuildPayload(ctx, in)
	score := s.engine.Score(payload)

	span.SetAttributes(
		attribute.Int("risk.score", score.Score),
		attribute.String("risk.decision", string(score.Decision)),
	)

	amount, err := values.NewMoneyFromMinorUnits(payload.TotalMinorUnits, payload.Currency)
	if err != nil {
		return nil, errors.NewValidationError("INVALID_AMOUNT", "invalid cart amount").WithCause(err)
	}

	stepUp := score.Decision == risk.DecisionWarn && s.engine.Policy().RequiresStepUp(score.Score)

	assessment := risk.NewAssessment(payload, score, amount, stepUp)

	if err := s.repo.Save(ctx, assessment); err != nil {
		s.logger.Error("assessment persistence failed, blocking attempt",
			zap.String("assessment_id", assessment.ID.String()),
			zap.Int("score", score.Score),
			zap.Error(err))
		return nil, errors.NewInternalError("failed to record risk assessment").WithCause(err)
	}

	outcome = &Outcome{
		Assessment: assessment,
		Score:      score,
		Status:     OutcomeProceed,
	}

	switch {
	case score.Decision == risk.DecisionDeny:
		outcome.Status = OutcomeBlocked
		outcome.Block = s.blockResponse(score)

	case stepUp:
		issued, err := s.issueStepUp(ctx, assessment, in)
		if err != nil {
			return nil, err
		}
		if issued != nil {
			outcome.Status = OutcomeVerificationRequired
			outcome.Verification = issued
			telemetry.AddEvent(span, "step_up_issued",
				attribute.String("assessment_id", assessment.ID.String()))
		}
	}

	span.SetAttributes(attribute.String("gate.outcome", string(outcome.Status)))

	s.logger.Info("checkout attempt assessed",
		zap.String("assessment_id", assessment.ID.String()),
		zap.Int("score", score.Score),
		zap.String("decision", string(score.Decision)),
		zap.Float64("confidence", score.Confidence),
		zap.Int("factors", len(score.Factors)),
		zap.String("status", string(outcome.Status)))

	if s.metrics != nil {
		s.metrics.RecordAssessment(score.Decision, score.Score, time.Since(start))
	}

	if s.justifier != nil {
		s.justifier.GenerateAsync(assessment.ID)
	}

	return outcome, nil
}

// GetAssessment fetches a persisted audit record.
func (s *Service) GetAssessment(ctx context.Context, id uuid.UUID) (*risk.Assessment, error) {
	return s.repo.GetByID(ctx, id)
}

// issueStepUp starts the verification sub-flow for a borderline warn. The
// attempt fails closed when issuance fails: without a deliverable challenge
// there is no safe path to payment.
func (s *Service) issueStepUp(ctx context.Context, assessment *risk.Assessment, in BuildInput) (*verification.Issued, error) {
	if s.verifier == nil {
		s.logger.Warn("step-up required but no verifier wired, proceeding",
			zap.String("assessment_id", assessment.ID.String()))
		return nil, nil
	}

	issued, err := s.verifier.Issue(ctx, verification.IssueRequest{
		AssessmentID: assessment.ID,
		AccountID:    in.AccountID,
		SessionID:    in.SessionID,
	})
	if err != nil {
		s.logger.Error("step-up issuance failed, blocking attempt",
			zap.String("assessment_id", assessment.ID.String()),
			zap.Error(err))
		return nil, errors.NewInternalError("failed to start verification").WithCause(err)
	}
	return issued, nil
}

// blockResponse builds the client-facing deny payload: score and the leading
// factor descriptions, but never the raw rule catalog.
func (s *Service) blockResponse(score risk.RiskScore) *BlockResponse {
	return &BlockResponse{
		Code:           "TRANSACTION_BLOCKED",
		Message:        "This transaction was declined by our risk checks. If you believe this is an error, contact support.",
		Score:          score.Score,
		TopFactors:     score.TopFactors(s.config.TopFactorCount),
		SupportContact: s.config.SupportContact,
	}
}
