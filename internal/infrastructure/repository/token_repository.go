package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/errors"
	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
)

// TokenRepository stores verification tokens in PostgreSQL. Consume is a
// single conditional UPDATE, so under concurrent submissions of the same
// token the database picks exactly one winner.
type TokenRepository struct {
	db *pgxpool.Pool
}

// NewTokenRepository creates a token repository.
func NewTokenRepository(db *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{db: db}
}

// Save persists a freshly minted token.
func (r *TokenRepository) Save(ctx context.Context, t *risk.VerificationToken) error {
	query := `
		INSERT INTO verification_tokens (
			id, token, code_hash, assessment_id, account_id, session_id,
			expires_at, attempts, max_attempts, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Exec(ctx, query,
		t.ID, t.Token, t.CodeHash, t.AssessmentID, t.AccountID, nullIfEmpty(t.SessionID),
		t.ExpiresAt, t.Attempts, t.MaxAttempts, string(t.Status), t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert verification token: %w", err)
	}
	return nil
}

// GetByValue retrieves a token by its opaque value.
func (r *TokenRepository) GetByValue(ctx context.Context, value string) (*risk.VerificationToken, error) {
	query := `
		SELECT id, token, code_hash, assessment_id, account_id, session_id,
		       expires_at, consumed_at, attempts, max_attempts, status, created_at
		FROM verification_tokens
		WHERE token = $1
	`

	t, err := scanToken(r.db.QueryRow(ctx, query, value))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFoundError("verification token")
		}
		return nil, fmt.Errorf("failed to get verification token: %w", err)
	}
	return t, nil
}

// Consume marks the token verified iff it is still pending, unexpired,
// within its attempt budget, and the submitted code hash matches. The
// conditional UPDATE applies to at most one row once; a false return means
// some precondition failed and the caller should re-read to classify.
func (r *TokenRepository) Consume(ctx context.Context, value, codeHash string, now time.Time) (*risk.VerificationToken, bool, error) {
	query := `
		UPDATE verification_tokens
		SET status = $4, consumed_at = $3, attempts = attempts + 1
		WHERE token = $1
		  AND code_hash = $2
		  AND status = $5
		  AND expires_at > $3
		  AND attempts < max_attempts
		RETURNING id, token, code_hash, assessment_id, account_id, session_id,
		          expires_at, consumed_at, attempts, max_attempts, status, created_at
	`

	t, err := scanToken(r.db.QueryRow(ctx, query,
		value, codeHash, now,
		string(risk.TokenStatusVerified), string(risk.TokenStatusPending),
	))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to consume verification token: %w", err)
	}
	return t, true, nil
}

// RecordFailedAttempt increments the attempt counter and returns the new
// count.
func (r *TokenRepository) RecordFailedAttempt(ctx context.Context, id uuid.UUID) (int, error) {
	var attempts int
	err := r.db.QueryRow(ctx, `
		UPDATE verification_tokens
		SET attempts = attempts + 1
		WHERE id = $1
		RETURNING attempts
	`, id).Scan(&attempts)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return 0, errors.NewNotFoundError("verification token")
		}
		return 0, fmt.Errorf("failed to record attempt: %w", err)
	}
	return attempts, nil
}

// UpdateStatus transitions a token's lifecycle state.
func (r *TokenRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status risk.TokenStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE verification_tokens SET status = $2 WHERE id = $1
	`, id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update token status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("verification token")
	}
	return nil
}

func scanToken(row pgx.Row) (*risk.VerificationToken, error) {
	var (
		t         risk.VerificationToken
		sessionID *string
		status    string
	)
	err := row.Scan(
		&t.ID, &t.Token, &t.CodeHash, &t.AssessmentID, &t.AccountID, &sessionID,
		&t.ExpiresAt, &t.ConsumedAt, &t.Attempts, &t.MaxAttempts, &status, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if sessionID != nil {
		t.SessionID = *sessionID
	}
	t.Status = risk.TokenStatus(status)
	return &t, nil
}
