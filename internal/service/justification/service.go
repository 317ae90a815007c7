package justification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/errors"
	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
)

// Service attaches best-effort natural-language justifications to persisted
// assessments. It runs strictly after the decision is made and persisted;
// nothing here ever blocks or fails the payment path.
type Service struct {
	repo      Repository
	generator Generator
	logger    *zap.Logger
	timeout   time.Duration
	now       func() time.Time

	// onRender is a hook for metrics; nil is fine.
	onRender func(risk.JustificationSource)
}

// NewService creates a justification service. timeout bounds one capability
// call before the fallback takes over.
func NewService(repo Repository, generator Generator, timeout time.Duration, logger *zap.Logger) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		repo:      repo,
		generator: generator,
		logger:    logger,
		timeout:   timeout,
		now:       time.Now,
	}
}

// SetRenderHook registers a callback fired with the source of every
// rendered justification.
func (s *Service) SetRenderHook(fn func(risk.JustificationSource)) {
	s.onRender = fn
}

// Get returns the assessment's current justification, generating one first
// if none exists yet.
func (s *Service) Get(ctx context.Context, assessmentID uuid.UUID) (*risk.Justification, error) {
	assessment, err := s.repo.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if assessment.Justification != nil {
		return assessment.Justification, nil
	}
	return s.generate(ctx, assessment)
}

// Regenerate overwrites any prior justification. Last write wins; the update
// is applied atomically by the repository, never partially.
func (s *Service) Regenerate(ctx context.Context, assessmentID uuid.UUID) (*risk.Justification, error) {
	assessment, err := s.repo.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	return s.generate(ctx, assessment)
}

// GenerateAsync renders a justification on a detached worker. Failures are
// logged and dropped; the caller is never blocked or notified.
func (s *Service) GenerateAsync(assessmentID uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout+2*time.Second)
		defer cancel()

		if _, err := s.Regenerate(ctx, assessmentID); err != nil {
			s.logger.Warn("async justification generation failed",
				zap.String("assessment_id", assessmentID.String()),
				zap.Error(err))
		}
	}()
}

// generate is the strategy pair: try the capability, fall back to the
// deterministic template. Both branches produce the same output shape.
func (s *Service) generate(ctx context.Context, assessment *risk.Assessment) (*risk.Justification, error) {
	text, source := s.render(ctx, assessment)

	j := risk.Justification{
		Text:        text,
		Source:      source,
		GeneratedAt: s.now().UTC(),
	}

	if err := s.repo.UpdateJustification(ctx, assessment.ID, j); err != nil {
		return nil, errors.NewInternalError("failed to store justification").WithCause(err)
	}

	return &j, nil
}

func (s *Service) render(ctx context.Context, assessment *risk.Assessment) (string, risk.JustificationSource) {
	if s.generator != nil {
		genCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		text, err := s.generator.Generate(genCtx, assessment)
		if err == nil && text != "" {
			if s.onRender != nil {
				s.onRender(risk.JustificationSourceCapability)
			}
			return text, risk.JustificationSourceCapability
		}

		s.logger.Debug("justification capability unavailable, using fallback",
			zap.String("assessment_id", assessment.ID.String()),
			zap.Error(err))
	}

	if s.onRender != nil {
		s.onRender(risk.JustificationSourceFallback)
	}
	return fallbackText(assessment), risk.JustificationSourceFallback
}
