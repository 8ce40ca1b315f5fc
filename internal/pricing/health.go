package pricing

// DepthTier classifies how deep a negotiated discount cuts into the list
// price. It answers "how much are we giving away"; MarginTier answers how
// profitable the deal is. The two classifiers are consumed by different
// audiences and must stay independent.
type DepthTier string

const (
	DepthHealthy  DepthTier = "healthy"
	DepthWarning  DepthTier = "warning"
	DepthCritical DepthTier = "critical"
)

// DiscountDepth classifies the discount as a share of the pre-discount total.
// A zero total counts as 0% depth.
func DiscountDepth(discount, total Money) DepthTier {
	if total <= 0 || discount <= 0 {
		return DepthHealthy
	}
	pct := float64(discount) / float64(total) * 100
	switch {
	case pct > 15:
		return DepthCritical
	case pct > 5:
		return DepthWarning
	default:
		return DepthHealthy
	}
}

// MarginTier classifies the profitability of a budget from its margin
// percentage (profit over revenue).
type MarginTier string

const (
	MarginExcellent MarginTier = "excellent"
	MarginGood      MarginTier = "good"
	MarginWarning   MarginTier = "warning"
	MarginDanger    MarginTier = "danger"
)

// ProfitMargin classifies a margin percentage into a health tier.
func ProfitMargin(marginPct float64) MarginTier {
	switch {
	case marginPct >= 30:
		return MarginExcellent
	case marginPct >= 20:
		return MarginGood
	case marginPct >= 15:
		return MarginWarning
	default:
		return MarginDanger
	}
}
