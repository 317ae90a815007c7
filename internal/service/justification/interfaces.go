package justification

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
)

// ErrUnavailable is returned by a Generator whose backing capability is not
// configured or not reachable. The service recovers it with the
// deterministic fallback; it never propagates to callers.
var ErrUnavailable = errors.New("justification capability unavailable")

// Generator renders a natural-language justification for an assessment.
// Implementations carry an explicit unavailable state instead of relying on
// module-level configuration checks.
type Generator interface {
	Generate(ctx context.Context, assessment *risk.Assessment) (string, error)
}

// Repository reads assessments and writes justification text. Writes are
// last-write-wins and never partially applied.
type Repository interface {
	GetAssessment(ctx context.Context, id uuid.UUID) (*risk.Assessment, error)
	UpdateJustification(ctx context.Context, id uuid.UUID, j risk.Justification) error
}
