package repository

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/errors"
	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
)

// AssessmentRepository implements assessment persistence over PostgreSQL.
// It serves the gate's synchronous save, the verification resolver, and the
// justification writer.
type AssessmentRepository struct {
	db *pgxpool.Pool
}

// NewAssessmentRepository creates an assessment repository.
func NewAssessmentRepository(db *pgxpool.Pool) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// Save inserts the audit record. The row is written in full before the
// caller decides anything; there is no partial assessment state.
func (r *AssessmentRepository) Save(ctx context.Context, a *risk.Assessment) error {
	factorsJSON, err := json.Marshal(a.Factors)
	if err != nil {
		return fmt.Errorf("failed to marshal factors: %w", err)
	}

	query := `
		INSERT INTO assessments (
			id, account_id, score, decision, confidence, factors,
			amount, item_count, store_count, ip_address, user_agent,
			verification_required, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.db.Exec(ctx, query,
		a.ID, a.AccountID, a.Score, string(a.Decision), a.Confidence, factorsJSON,
		a.Amount, a.ItemCount, a.StoreCount, nullIfEmpty(a.IPAddress), nullIfEmpty(a.UserAgent),
		a.VerificationRequired, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert assessment: %w", err)
	}
	return nil
}

// GetByID retrieves an assessment with its justification, if any.
func (r *AssessmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*risk.Assessment, error) {
	query := `
		SELECT
			id, account_id, score, decision, confidence, factors,
			amount, item_count, store_count, ip_address, user_agent,
			justification_text, justification_source, justification_at,
			verification_required, verification_outcome, verification_resolved_at,
			created_at
		FROM assessments
		WHERE id = $1
	`

	var (
		a            risk.Assessment
		decision     string
		factorsJSON  []byte
		ipAddress    *string
		userAgent    *string
		justText     *string
		justSource   *string
		justAt       *time.Time
		outcome      *string
		resolvedAt   *time.Time
	)

	err := r.db.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.AccountID, &a.Score, &decision, &a.Confidence, &factorsJSON,
		&a.Amount, &a.ItemCount, &a.StoreCount, &ipAddress, &userAgent,
		&justText, &justSource, &justAt,
		&a.VerificationRequired, &outcome, &resolvedAt,
		&a.CreatedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}

	a.Decision = risk.Decision(decision)
	if err := json.Unmarshal(factorsJSON, &a.Factors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal factors: %w", err)
	}
	if ipAddress != nil {
		a.IPAddress = *ipAddress
	}
	if userAgent != nil {
		a.UserAgent = *userAgent
	}
	if justText != nil && justSource != nil && justAt != nil {
		a.Justification = &risk.Justification{
			Text:        *justText,
			Source:      risk.JustificationSource(*justSource),
			GeneratedAt: *justAt,
		}
	}
	if outcome != nil {
		o := risk.VerificationOutcome(*outcome)
		a.VerificationOutcome = &o
		a.VerificationResolvedAt = resolvedAt
	}

	return &a, nil
}

// GetAssessment satisfies the justification reader port.
func (r *AssessmentRepository) GetAssessment(ctx context.Context, id uuid.UUID) (*risk.Assessment, error) {
	return r.GetByID(ctx, id)
}

// UpdateJustification overwrites the justification fields. Last write wins;
// the three columns always move together.
func (r *AssessmentRepository) UpdateJustification(ctx context.Context, id uuid.UUID, j risk.Justification) error {
	query := `
		UPDATE assessments
		SET justification_text = $2, justification_source = $3, justification_at = $4
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id, j.Text, string(j.Source), j.GeneratedAt)
	if err != nil {
		return fmt.Errorf("failed to update justification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrAssessmentNotFound
	}
	return nil
}

// ResolveVerification records how the step-up challenge concluded.
func (r *AssessmentRepository) ResolveVerification(ctx context.Context, assessmentID uuid.UUID, outcome risk.VerificationOutcome, resolvedAt time.Time) error {
	query := `
		UPDATE assessments
		SET verification_outcome = $2, verification_resolved_at = $3
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, assessmentID, string(outcome), resolvedAt)
	if err != nil {
		return fmt.Errorf("failed to resolve verification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrAssessmentNotFound
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
