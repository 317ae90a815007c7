package risk

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// TokenStatus is the lifecycle state of a verification token.
type TokenStatus string

const (
	TokenStatusPending  TokenStatus = "pending"
	TokenStatusVerified TokenStatus = "verified"
	TokenStatusExpired  TokenStatus = "expired"
	TokenStatusFailed   TokenStatus = "failed"
)

// VerificationToken is a single-use, time-bounded step-up challenge bound to
// the assessment, account, and session that triggered it. The challenge code
// is stored only as a hash.
type VerificationToken struct {
	ID           uuid.UUID   `json:"id"`
	Token        string      `json:"token"`
	CodeHash     string      `json:"-"`
	AssessmentID uuid.UUID   `json:"assessment_id"`
	AccountID    *uuid.UUID  `json:"account_id,omitempty"`
	SessionID    string      `json:"session_id,omitempty"`
	ExpiresAt    time.Time   `json:"expires_at"`
	ConsumedAt   *time.Time  `json:"consumed_at,omitempty"`
	Attempts     int         `json:"attempts"`
	MaxAttempts  int         `json:"max_attempts"`
	Status       TokenStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
}

// NewVerificationToken mints a pending token with a fresh opaque value and
// challenge code. The plaintext code is returned once for out-of-band
// delivery and never stored.
func NewVerificationToken(assessmentID uuid.UUID, accountID *uuid.UUID, sessionID string, ttl time.Duration, maxAttempts int) (*VerificationToken, string, error) {
	value, err := randomTokenValue()
	if err != nil {
		return nil, "", fmt.Errorf("generating token value: %w", err)
	}

	code, err := randomChallengeCode()
	if err != nil {
		return nil, "", fmt.Errorf("generating challenge code: %w", err)
	}

	now := time.Now().UTC()
	return &VerificationToken{
		ID:           uuid.New(),
		Token:        value,
		CodeHash:     HashCode(code),
		AssessmentID: assessmentID,
		AccountID:    accountID,
		SessionID:    sessionID,
		ExpiresAt:    now.Add(ttl),
		Attempts:     0,
		MaxAttempts:  maxAttempts,
		Status:       TokenStatusPending,
		CreatedAt:    now,
	}, code, nil
}

// IsExpired reports whether the token's validity window has passed.
func (t *VerificationToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IsConsumed reports whether the token was already used.
func (t *VerificationToken) IsConsumed() bool {
	return t.ConsumedAt != nil
}

// AttemptsRemaining returns how many submissions the token still accepts.
func (t *VerificationToken) AttemptsRemaining() int {
	remaining := t.MaxAttempts - t.Attempts
	if remaining < 0 {
		return 0
	}
	return remaining
}

// MatchesCode compares a submitted code against the stored hash in constant time.
func (t *VerificationToken) MatchesCode(code string) bool {
	return subtle.ConstantTimeCompare([]byte(t.CodeHash), []byte(HashCode(code))) == 1
}

// HashCode hashes a challenge code for storage and comparison.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func randomTokenValue() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func randomChallengeCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
