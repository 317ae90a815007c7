// Package notify delivers step-up challenge codes out of band. The log
// transport stands in for the marketplace's email provider in development;
// production wires the same interface to the real sender.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogNotifier writes challenge deliveries to the log instead of sending
// them. The code itself is never logged, only its destination and expiry.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates the development notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// SendChallengeCode records the delivery.
func (n *LogNotifier) SendChallengeCode(ctx context.Context, accountID *uuid.UUID, code string, expiresAt time.Time) error {
	account := "guest"
	if accountID != nil {
		account = accountID.String()
	}
	n.logger.Info("challenge code dispatched",
		zap.String("account_id", account),
		zap.Int("code_length", len(code)),
		zap.Time("expires_at", expiresAt))
	return nil
}
