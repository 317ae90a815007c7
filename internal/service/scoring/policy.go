package scoring

import (
	"time"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
)

// Policy is the single threshold/impact table the engine evaluates against.
// Constants are business calibration and load from configuration; the
// defaults here are the documented reference calibration.
type Policy struct {
	// Decision thresholds. warn <= score < deny is the warn band; scores at
	// or above StepUpThreshold inside the warn band require verification.
	WarnThreshold   int `koanf:"warn_threshold"`
	DenyThreshold   int `koanf:"deny_threshold"`
	StepUpThreshold int `koanf:"step_up_threshold"`

	// Item count ceilings
	SoftItemCeiling   int `koanf:"soft_item_ceiling"`
	HardItemCeiling   int `koanf:"hard_item_ceiling"`
	UnusualItemImpact int `koanf:"unusual_item_impact"`
	ExtremeItemImpact int `koanf:"extreme_item_impact"`

	// Account recency
	NewAccountMaxAge    time.Duration `koanf:"new_account_max_age"`
	NewAccountMaxImpact int           `koanf:"new_account_max_impact"`
	NewAccountMinImpact int           `koanf:"new_account_min_impact"`

	// Payment method novelty
	NewPaymentMethodImpact int `koanf:"new_payment_method_impact"`

	// Recent transaction failures
	FailureImpactPerEvent int `koanf:"failure_impact_per_event"`
	FailureImpactCap      int `koanf:"failure_impact_cap"`

	// Good history (risk reducing)
	GoodHistoryMinRate   float64 `koanf:"good_history_min_rate"`
	GoodHistoryMinSample int     `koanf:"good_history_min_sample"`
	GoodHistoryImpact    int     `koanf:"good_history_impact"`

	// Tiered amount thresholds, minor units, mutually exclusive
	HighAmountMinorUnits          int64 `koanf:"high_amount_minor_units"`
	VeryHighAmountMinorUnits      int64 `koanf:"very_high_amount_minor_units"`
	ExtremelyHighAmountMinorUnits int64 `koanf:"extremely_high_amount_minor_units"`
	HighAmountImpact              int   `koanf:"high_amount_impact"`
	VeryHighAmountImpact          int   `koanf:"very_high_amount_impact"`
	ExtremelyHighAmountImpact     int   `koanf:"extremely_high_amount_impact"`

	// Store spread, tiered, mutually exclusive
	MultipleStoresThreshold int `koanf:"multiple_stores_threshold"`
	TooManyStoresThreshold  int `koanf:"too_many_stores_threshold"`
	MultipleStoresImpact    int `koanf:"multiple_stores_impact"`
	TooManyStoresImpact     int `koanf:"too_many_stores_impact"`

	// Network signals
	SuspiciousIPImpact  int `koanf:"suspicious_ip_impact"`
	BlacklistedIPImpact int `koanf:"blacklisted_ip_impact"`
	VelocityImpact      int `koanf:"velocity_impact"`
	UnusualTimeImpact   int `koanf:"unusual_time_impact"`
}

// DefaultPolicy returns the reference calibration.
func DefaultPolicy() Policy {
	return Policy{
		WarnThreshold:   30,
		DenyThreshold:   70,
		StepUpThreshold: 50,

		SoftItemCeiling:   10,
		HardItemCeiling:   50,
		UnusualItemImpact: 20,
		ExtremeItemImpact: 40,

		NewAccountMaxAge:    30 * 24 * time.Hour,
		NewAccountMaxImpact: 25,
		NewAccountMinImpact: 5,

		NewPaymentMethodImpact: 25,

		FailureImpactPerEvent: 8,
		FailureImpactCap:      24,

		GoodHistoryMinRate:   90,
		GoodHistoryMinSample: 10,
		GoodHistoryImpact:    -10,

		HighAmountMinorUnits:          50_000,
		VeryHighAmountMinorUnits:      200_000,
		ExtremelyHighAmountMinorUnits: 500_000,
		HighAmountImpact:              15,
		VeryHighAmountImpact:          25,
		ExtremelyHighAmountImpact:     35,

		MultipleStoresThreshold: 3,
		TooManyStoresThreshold:  6,
		MultipleStoresImpact:    10,
		TooManyStoresImpact:     20,

		SuspiciousIPImpact:  25,
		BlacklistedIPImpact: 60,
		VelocityImpact:      20,
		UnusualTimeImpact:   10,
	}
}

// DecisionFor maps a clamped score onto the threshold table. Higher scores
// never yield a less restrictive decision.
func (p Policy) DecisionFor(score int) risk.Decision {
	switch {
	case score >= p.DenyThreshold:
		return risk.DecisionDeny
	case score >= p.WarnThreshold:
		return risk.DecisionWarn
	default:
		return risk.DecisionAllow
	}
}

// RequiresStepUp reports whether a warned score needs verification before
// the payment path may proceed.
func (p Policy) RequiresStepUp(score int) bool {
	return score >= p.StepUpThreshold && score < p.DenyThreshold
}
