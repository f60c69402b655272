package constraints

import (
	"math"
	"strings"

	"github.com/fincast/fincast/internal/params"
)

// Identifiers used by the default business constraint set. Each group is
// only enforced on assignments that actually contain its members.
var (
	businessModeParams = []string{
		"business_mode.direct",
		"business_mode.partner_a",
		"business_mode.partner_b",
		"business_mode.partner_c",
		"business_mode.platform",
	}

	paymentMethodParams = []string{
		"payment_share.per_use",
		"payment_share.membership",
	}

	membershipTierParams = []string{
		"membership_tier_shares.annual",
		"membership_tier_shares.three_year",
		"membership_tier_shares.five_year",
	}

	memberPriceParams = []string{
		"price_annual_member",
		"price_three_year_member",
		"price_five_year_member",
	}
)

// NewBusinessHandler returns a handler pre-configured with the default
// constraint set for the financial-projection domain: the three
// distribution groups each sum to 1, share and rate parameters stay in
// [0, 1], and longer membership commitments must not cost more per year.
func NewBusinessHandler(space params.Space) *Handler {
	h := NewHandler()
	h.AddBoundaries(space)

	h.AddSumToTarget("business mode distribution", businessModeParams, 1.0)
	h.AddSumToTarget("payment method distribution", paymentMethodParams, 1.0)
	h.AddSumToTarget("membership tier distribution", membershipTierParams, 1.0)

	// Shares and rates are proportions even when the caller's space allows
	// a wider numeric range, so the space boundary is tightened to its
	// intersection with [0, 1].
	for name, b := range space {
		if isShareOrRate(name) {
			h.AddBoundary(name, unitIntersection(b))
		}
	}
	for _, name := range []string{"renewal_rate_client", "renewal_rate_member"} {
		if _, ok := h.boundaries[name]; !ok {
			h.AddBoundary(name, params.Bounds{Min: 0, Max: 1})
		}
	}

	h.AddRelational(
		"monotonic membership pricing",
		"longer commitments must have a lower or equal per-year price",
		memberPriceParams,
		monotonicPricing,
	)

	return h
}

// monotonicPricing requires annual-equivalent prices to be non-increasing
// with commitment length.
func monotonicPricing(a params.Assignment) bool {
	annual, ok1 := a.Get("price_annual_member")
	threeYear, ok2 := a.Get("price_three_year_member")
	fiveYear, ok3 := a.Get("price_five_year_member")
	if !ok1 || !ok2 || !ok3 {
		return true
	}
	perYear3 := threeYear / 3
	perYear5 := fiveYear / 5
	return annual >= perYear3 && perYear3 >= perYear5
}

// unitIntersection narrows bounds to their overlap with [0, 1]. A range
// lying entirely outside collapses to its nearest unit endpoint.
func unitIntersection(b params.Bounds) params.Bounds {
	min := math.Max(b.Min, 0)
	max := math.Min(b.Max, 1)
	if max < min {
		max = min
	}
	return params.Bounds{Min: min, Max: max}
}

func isShareOrRate(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "share") || strings.Contains(lower, "rate") ||
		strings.Contains(lower, "_cr")
}
