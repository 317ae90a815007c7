package scoring

import (
	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
)

// Engine is the pure scoring engine. It is side-effect free: every signal it
// consumes was gathered before the call, so Score never blocks and never
// errors on missing optional data.
type Engine struct {
	policy Policy
	rules  []rule
}

// NewEngine creates a scoring engine with the given policy.
func NewEngine(policy Policy) *Engine {
	return &Engine{
		policy: policy,
		rules:  catalog(),
	}
}

// Policy exposes the engine's threshold table for the decision gate.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Score evaluates the ordered rule catalog against a payload and returns the
// aggregate risk score, decision, confidence, and triggered factors.
func (e *Engine) Score(payload *risk.RiskPayload) risk.RiskScore {
	factors := make([]risk.RiskFactor, 0, len(e.rules))
	total := 0

	for _, r := range e.rules {
		if factor, ok := r.evaluate(payload, e.policy); ok {
			factors = append(factors, factor)
			total += factor.Impact
		}
	}

	score := clamp(total, 0, 100)

	return risk.RiskScore{
		Score:      score,
		Decision:   e.policy.DecisionFor(score),
		Confidence: confidence(payload),
		Factors:    factors,
	}
}

// possibleSignals is the denominator for confidence: the signal groups a
// fully-populated payload would carry.
const possibleSignals = 10

// confidence measures how much signal supported the score, independent of
// its magnitude. Guest and first-time checkouts score low here because most
// optional fields are absent.
func confidence(p *risk.RiskPayload) float64 {
	informative := 0

	if p.AccountID != nil {
		informative++
	}
	if p.AccountAgeSeconds != nil {
		informative++
	}
	if p.TransactionCount != nil {
		informative++
	}
	if p.RecentFailures != nil {
		informative++
	}
	if p.NewPaymentMethod != nil {
		informative++
	}
	if p.IPAddress != "" {
		informative++
	}
	if p.UserAgent != "" {
		informative++
	}
	if p.ConcurrentSessions != nil {
		informative++
	}
	if p.RecentFailedLogins != nil {
		informative++
	}
	if !p.ClientTime.IsZero() {
		informative++
	}

	c := float64(informative) / float64(possibleSignals)
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
