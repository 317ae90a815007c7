package scoring

import (
	"fmt"
	"math"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
)

// rule is one independent evaluator in the catalog: a predicate over the
// payload plus a signed impact and description. Rules never error; a rule
// that lacks its signal simply does not fire.
type rule struct {
	code     risk.FactorCode
	evaluate func(p *risk.RiskPayload, pol Policy) (risk.RiskFactor, bool)
}

// catalog returns the ordered rule list. Order is stable so factor lists are
// reproducible for identical payloads.
func catalog() []rule {
	return []rule{
		{code: risk.FactorExtremeItemCount, evaluate: evalExtremeItemCount},
		{code: risk.FactorUnusualItemCount, evaluate: evalUnusualItemCount},
		{code: risk.FactorNewAccount, evaluate: evalNewAccount},
		{code: risk.FactorNewPaymentMethod, evaluate: evalNewPaymentMethod},
		{code: risk.FactorRecentFailures, evaluate: evalRecentFailures},
		{code: risk.FactorGoodHistory, evaluate: evalGoodHistory},
		{code: risk.FactorExtremelyHighAmount, evaluate: evalExtremelyHighAmount},
		{code: risk.FactorVeryHighAmount, evaluate: evalVeryHighAmount},
		{code: risk.FactorHighAmount, evaluate: evalHighAmount},
		{code: risk.FactorTooManyStores, evaluate: evalTooManyStores},
		{code: risk.FactorMultipleStores, evaluate: evalMultipleStores},
		{code: risk.FactorBlacklistedIP, evaluate: evalBlacklistedIP},
		{code: risk.FactorSuspiciousIP, evaluate: evalSuspiciousIP},
		{code: risk.FactorVelocity, evaluate: evalVelocity},
		{code: risk.FactorUnusualTime, evaluate: evalUnusualTime},
	}
}

func evalExtremeItemCount(p *risk.RiskPayload, pol Policy) (risk.RiskFactor, bool) {
	if p.ItemCount <= pol.HardItemCeiling {
		return risk.RiskFactor{}, false
	}
	return risk.RiskFactor{
		Code:        risk.FactorExtremeItemCount,
		Impact:      pol.ExtremeItemImpact,
		Description: fmt.Sprintf("Cart holds %d items, above the %d-item hard ceiling", p.ItemCount, pol.HardItemCeiling),
	}, true
}

func evalUnusualItemCount(p *risk.RiskPayload, pol Policy) (risk.RiskFactor, bool) {
	if p.ItemCount <= pol.SoftItemCeiling || p.ItemCount > pol.HardItemCeiling {
		return risk.RiskFactor{}, false
	}
	return risk.RiskFactor{
		Code:        risk.FactorUnusualItemCount,
		Impact:      pol.UnusualItemImpact,
		Description: fmt.Sprintf("Cart holds %d items, above the typical %d-item ceiling", p.ItemCount, pol.SoftItemCeiling),
	}, true
}

// evalNewAccount scales impact by recency: a brand-new account carries the
// full impact, one at the age threshold the minimum.
func evalNewAccount(p *risk.RiskPayload, pol Policy) (risk.RiskFactor, bool) {
	if p.AccountAgeSeconds == nil {
		return risk.RiskFactor{}, false
	}
	age := *p.AccountAgeSeconds
	maxAge := int64(pol.NewAccountMaxAge.Seconds())
	if age >= maxAge {
		return risk.RiskFactor{}, false
	}

	scaled := int(math.Ceil(float64(pol.NewAccountMaxImpact) * (1 - float64(age)/float64(maxAge))))
	if scaled < pol.NewAccountMinImpact {
		scaled = pol.NewAccountMinImpact
	}
	days := age / 86400
	return risk.RiskFactor{
		Code:        risk.FactorNewAccount,
		Impact:      scaled,
		Description: fmt.Sprintf("Account is %d day(s) old", days),
	}, true
}

func evalNewPaymentMethod(p *risk.RiskPayload, pol Policy) (risk.RiskFactor, bool) {
	if p.NewPaymentMethod == nil || !*p.NewPaymentMethod {
		return risk.RiskFactor{}, false
	}
	return risk.RiskFactor{
		Code:        risk.FactorNewPaymentMethod,
		Impact:      pol.NewPaymentMethodImpact,
		Description: "Payment method not previously seen for this account",
	}, true
}

func evalRecentFailures(p *risk.RiskPayload, pol Policy) (risk.RiskFactor, bool) {
	if p.RecentFailures == nil || *p.RecentFailures == 0 {
		return risk.RiskFactor{}, false
	}
	impact := *p.RecentFailures * pol.FailureImpactPerEvent
	if impact > pol.FailureImpactCap {
		impact = pol.FailureImpactCap
	}
	return risk.RiskFactor{
		Code:        risk.FactorRecentFailures,
		Impact:      impact,
		Description: fmt.Sprintf("%d failed transaction(s) in the recent window", *p.RecentFailures),
	}, true
}

func evalGoodHistory(p *risk.RiskPayload, pol Policy) (risk.RiskFactor, bool) {
	if p.TransactionCount == nil || *p.TransactionCount < pol.GoodHistoryMinSample {
		return risk.RiskFactor{}, false
	}
	if p.SuccessRatePercent < pol.GoodHistoryMinRate {
		return risk.RiskFactor{}, false
	}
	return risk.RiskFactor{
		Code:        risk.FactorGoodHistory,
		Impact:      pol.GoodHistoryImpact,
		Description: fmt.Sprintf("%.1f%% success rate over %d transactions", p.SuccessRatePercent, *p.TransactionCount),
	}, true
}

func evalExtremelyHighAmount(p *risk.RiskPayload, pol Policy) (risk.RiskFactor, bool) {
	if p.TotalMinorUnits < pol.ExtremelyHighAmountMinorUnits {
		return risk.RiskFactor{}, false
	}
	return risk.RiskFactor{
		Code:        risk.FactorExtremelyHighAmount,
		Impact:      pol.ExtremelyHighAmountImpact,
		Description: fmt.Sprintf("Order total %s is extremely high", formatAmount(p.TotalMinorUnits, p.Currency)),
	}, true
}

func evalVeryHighAmount(p *risk.RiskPayload, pol Policy) (risk.RiskFactor, bool) {
	if p.TotalMinorUnits < pol.VeryHighAmountMinorUnits || p.TotalMinorUnits >= pol.ExtremelyHighAmountMinorUnits {
		return risk.RiskFactor{}, false
	}
	return risk.RiskFactor{
		Code:        risk.FactorVeryHighAmount,
		Impact:      pol.VeryHighAmountImpact,
		Description: fmt.Sprintf("Order total %s is very high", formatAmount(p.TotalMinorUnits, p.Currency)),
	}, true
}

func evalHighAmount(p *risk.RiskPayload, pol Policy) (risk.RiskFactor, bool) {
	if p.TotalMinorUnits < pol.HighAmountMinorUnits || p.TotalMinorUnits >= pol.VeryHighAmountMinorUnits {
		return risk.RiskFactor{}, false
	}
	return risk.RiskFactor{
		Code:        risk.FactorHighAmount,
		Impact:      pol.HighAmountImpact,
		Description: fmt.Sprintf("Order total %s is high", formatAmount(p.TotalMinorUnits, p.Currency)),
	}, true
}

func evalTooManyStores(p *risk.RiskPayload, pol Policy) (risk.RiskFactor, bool) {
	if p.StoreCount() <= pol.TooManyStoresThreshold {
		return risk.RiskFactor{}, false
	}
	return risk.RiskFactor{
		Code:        risk.FactorTooManyStores,
		Impact:      pol.TooManyStoresImpact,
		Description: fmt.Sprintf("Cart spans %d distinct stores", p.StoreCount()),
	}, true
}

func evalMultipleStores(p *risk.RiskPayload, pol Policy) (risk.RiskFactor, bool) {
	if p.StoreCount() <= pol.MultipleStoresThreshold || p.StoreCount() > pol.TooManyStoresThreshold {
		return risk.RiskFactor{}, false
	}
	return risk.RiskFactor{
		Code:        risk.FactorMultipleStores,
		Impact:      pol.MultipleStoresImpact,
		Description: fmt.Sprintf("Cart spans %d distinct stores", p.StoreCount()),
	}, true
}

func evalBlacklistedIP(p *risk.RiskPayload, pol Policy) (risk.RiskFactor, bool) {
	if p.IPReputation != risk.IPReputationBlacklisted {
		return risk.RiskFactor{}, false
	}
	return risk.RiskFactor{
		Code:        risk.FactorBlacklistedIP,
		Impact:      pol.BlacklistedIPImpact,
		Description: "Request originated from a blacklisted IP address",
	}, true
}

func evalSuspiciousIP(p *risk.RiskPayload, pol Policy) (risk.RiskFactor, bool) {
	if p.IPReputation != risk.IPReputationSuspicious {
		return risk.RiskFactor{}, false
	}
	return risk.RiskFactor{
		Code:        risk.FactorSuspiciousIP,
		Impact:      pol.SuspiciousIPImpact,
		Description: "Request originated from a suspicious IP address",
	}, true
}

func evalVelocity(p *risk.RiskPayload, pol Policy) (risk.RiskFactor, bool) {
	if p.VelocityExceeded == nil || !*p.VelocityExceeded {
		return risk.RiskFactor{}, false
	}
	return risk.RiskFactor{
		Code:        risk.FactorVelocity,
		Impact:      pol.VelocityImpact,
		Description: "Multiple checkout attempts from the same identity in a short window",
	}, true
}

func evalUnusualTime(p *risk.RiskPayload, pol Policy) (risk.RiskFactor, bool) {
	if p.TypicalActiveHours == nil || p.ClientTime.IsZero() {
		return risk.RiskFactor{}, false
	}
	hour := p.ClientTime.Hour()
	if p.TypicalActiveHours.Contains(hour) {
		return risk.RiskFactor{}, false
	}
	return risk.RiskFactor{
		Code:        risk.FactorUnusualTime,
		Impact:      pol.UnusualTimeImpact,
		Description: fmt.Sprintf("Checkout at %02d:00 is outside the account's usual activity window", hour),
	}, true
}

func formatAmount(minorUnits int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", minorUnits/100, minorUnits%100, currency)
}
