package justification

import (
	"fmt"
	"strings"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
)

// fallbackText deterministically renders the four justification sections
// from nothing but the factor list and score tier. It is the guaranteed
// branch of the strategy pair and produces the same output shape the
// capability does.
func fallbackText(a *risk.Assessment) string {
	var b strings.Builder

	b.WriteString("Risk Summary\n")
	fmt.Fprintf(&b, "This transaction scored %d/100 (%s) and was marked \"%s\" with %.0f%% signal coverage.\n",
		a.Score, scoreTier(a.Decision), a.Decision, a.Confidence*100)

	b.WriteString("\nKey Factors\n")
	if len(a.Factors) == 0 {
		b.WriteString("- No risk factors were triggered for this transaction.\n")
	}
	for _, f := range a.Factors {
		direction := "increased"
		if f.Impact < 0 {
			direction = "reduced"
		}
		fmt.Fprintf(&b, "- %s (%s risk by %d points)\n", f.Description, direction, abs(f.Impact))
	}

	b.WriteString("\nRecommended Actions\n")
	b.WriteString(recommendedActions(a.Decision))

	b.WriteString("\nBusiness Context\n")
	fmt.Fprintf(&b, "Multi-vendor checkouts spanning %d store(s) with %d item(s) totalling %s are evaluated against the marketplace risk policy; this record is retained for audit review.\n",
		a.StoreCount, a.ItemCount, a.Amount.String())

	return b.String()
}

// scoreTier labels the tier from the persisted decision rather than the
// raw score, so the text stays consistent with whatever thresholds the
// scoring policy was configured with.
func scoreTier(d risk.Decision) string {
	switch d {
	case risk.DecisionDeny:
		return "high risk"
	case risk.DecisionWarn:
		return "elevated risk"
	default:
		return "low risk"
	}
}

func recommendedActions(d risk.Decision) string {
	switch d {
	case risk.DecisionDeny:
		return "- Do not process payment for this attempt.\n- Direct the customer to support for manual review.\n"
	case risk.DecisionWarn:
		return "- Require step-up verification before the payment proceeds.\n- Monitor follow-up attempts from the same identity.\n"
	default:
		return "- Proceed with payment normally.\n- No additional review required.\n"
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
