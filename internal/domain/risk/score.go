package risk

// FactorCode identifies one rule in the scoring catalog.
type FactorCode string

const (
	FactorExtremeItemCount    FactorCode = "EXTREME_ITEM_COUNT"
	FactorUnusualItemCount    FactorCode = "UNUSUAL_ITEM_COUNT"
	FactorNewAccount          FactorCode = "NEW_ACCOUNT"
	FactorNewPaymentMethod    FactorCode = "NEW_PAYMENT_METHOD"
	FactorRecentFailures      FactorCode = "RECENT_TRANSACTION_FAILURES"
	FactorGoodHistory         FactorCode = "GOOD_TRANSACTION_HISTORY"
	FactorHighAmount          FactorCode = "HIGH_AMOUNT"
	FactorVeryHighAmount      FactorCode = "VERY_HIGH_AMOUNT"
	FactorExtremelyHighAmount FactorCode = "EXTREMELY_HIGH_AMOUNT"
	FactorMultipleStores      FactorCode = "MULTIPLE_STORES"
	FactorTooManyStores       FactorCode = "TOO_MANY_STORES"
	FactorSuspiciousIP        FactorCode = "SUSPICIOUS_IP"
	FactorBlacklistedIP       FactorCode = "BLACKLISTED_IP"
	FactorVelocity            FactorCode = "VELOCITY"
	FactorUnusualTime         FactorCode = "UNUSUAL_TIME"
)

// RiskFactor is a named, signed contribution to the risk score with a
// human-readable rationale.
type RiskFactor struct {
	Code        FactorCode `json:"code"`
	Impact      int        `json:"impact"`
	Description string     `json:"description"`
}

// Decision is the gate outcome derived from the score via policy thresholds.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionWarn  Decision = "warn"
	DecisionDeny  Decision = "deny"
)

// restrictiveness orders decisions for monotonicity checks.
var restrictiveness = map[Decision]int{
	DecisionAllow: 0,
	DecisionWarn:  1,
	DecisionDeny:  2,
}

// MoreRestrictiveThan reports whether d is strictly more restrictive than other.
func (d Decision) MoreRestrictiveThan(other Decision) bool {
	return restrictiveness[d] > restrictiveness[other]
}

// RiskScore is the aggregate output of scoring. It is derived from a payload
// and never independently mutated.
type RiskScore struct {
	Score      int          `json:"score"`      // 0-100
	Decision   Decision     `json:"decision"`   // allow / warn / deny
	Confidence float64      `json:"confidence"` // 0.0-1.0
	Factors    []RiskFactor `json:"factors"`    // evaluation order preserved
}

// TopFactors returns up to n factor descriptions ordered by absolute impact,
// used in block responses and notifications.
func (s RiskScore) TopFactors(n int) []string {
	sorted := make([]RiskFactor, len(s.Factors))
	copy(sorted, s.Factors)

	// Insertion sort; factor lists are small.
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && abs(sorted[j].Impact) > abs(sorted[j-1].Impact); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	if n > len(sorted) {
		n = len(sorted)
	}
	descriptions := make([]string, 0, n)
	for _, f := range sorted[:n] {
		descriptions = append(descriptions, f.Description)
	}
	return descriptions
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
