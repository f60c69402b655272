// Package realism nudges candidate assignments toward economically
// plausible regions and scores how far a candidate strays from them.
// Optimizers over a raw financial objective otherwise drift to extremes
// (maximum price, maximum share, maximum client intake); this module
// models the second-order market effects that make those extremes
// unrealistic.
package realism

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/fincast/fincast/internal/params"
)

// Penalty scaling factors. Out-of-range distances are normalized by the
// violated bound, so the factors set the relative severity of each class.
const (
	rangePenaltyScale  = 100.0
	sharePenaltyScale  = 200.0
	volumePenaltyScale = 50.0
)

// ElasticityRule couples a price identifier to a demand response: when the
// price rises above the midpoint of its realistic range, the linked
// conversion-rate identifier drops proportionally.
type ElasticityRule struct {
	// Elasticity is the relative demand change per relative price change,
	// typically negative.
	Elasticity float64
}

// AcceptanceRule couples a revenue-share identifier to partner goodwill:
// shares above the threshold reduce the linked renewal rate.
type AcceptanceRule struct {
	// Threshold is the share above which acceptance starts to erode.
	Threshold float64
}

// VolumeRule caps a growth-volume identifier at what the market can bear.
type VolumeRule struct {
	// RealisticCap is the volume beyond which penalties accrue.
	RealisticCap float64
	// HardCap is the value aggressive targets are adjusted down to.
	HardCap float64
	// Trigger is the volume above which the adjustment fires.
	Trigger float64
}

// Config is the locally-scoped rule set for one Adjuster. There is no
// process-wide registration; every strategy run receives its own copy.
type Config struct {
	// RealisticRanges holds the market-plausible range per identifier.
	RealisticRanges map[string]params.Bounds
	// PriceElasticity holds elasticity rules keyed by price identifier.
	PriceElasticity map[string]ElasticityRule
	// ShareAcceptance holds acceptance rules keyed by share identifier.
	ShareAcceptance map[string]AcceptanceRule
	// VolumeLimits holds volume rules keyed by volume identifier.
	VolumeLimits map[string]VolumeRule
	// ConversionRateParam is the identifier adjusted by elasticity and
	// competitive pressure.
	ConversionRateParam string
	// RenewalRateParam is the identifier adjusted by share acceptance.
	RenewalRateParam string
	// PriceParams lists the identifiers considered for competitive pressure.
	PriceParams []string
}

// DefaultConfig returns the rule set for the financial-projection domain.
func DefaultConfig() Config {
	return Config{
		RealisticRanges: map[string]params.Bounds{
			"price_annual_member":      {Min: 15, Max: 60},
			"price_three_year_member":  {Min: 40, Max: 150},
			"price_five_year_member":   {Min: 60, Max: 200},
			"price_per_use":            {Min: 2, Max: 20},
			"partner_share.a":          {Min: 0.2, Max: 0.7},
			"partner_share.b":          {Min: 0.3, Max: 0.8},
			"partner_share.c":          {Min: 0.4, Max: 0.9},
			"new_clients_per_period":   {Min: 2, Max: 15},
			"renewal_rate_client":      {Min: 0.6, Max: 0.95},
		},
		PriceElasticity: map[string]ElasticityRule{
			"price_per_use":           {Elasticity: -0.5},
			"price_annual_member":     {Elasticity: -0.3},
			"price_three_year_member": {Elasticity: -0.4},
			"price_five_year_member":  {Elasticity: -0.5},
		},
		ShareAcceptance: map[string]AcceptanceRule{
			"partner_share.a": {Threshold: 0.6},
			"partner_share.b": {Threshold: 0.7},
			"partner_share.c": {Threshold: 0.8},
		},
		VolumeLimits: map[string]VolumeRule{
			"new_clients_per_period": {RealisticCap: 15, HardCap: 12, Trigger: 15},
		},
		ConversionRateParam: "paid_conversion_rate",
		RenewalRateParam:    "renewal_rate_client",
		PriceParams: []string{
			"price_annual_member",
			"price_three_year_member",
			"price_five_year_member",
		},
	}
}

// Adjuster applies realism rules to assignments and computes penalties.
// It never fails: rules fire only when their identifiers are present, and
// unknown identifiers contribute nothing.
type Adjuster struct {
	cfg Config
}

// NewAdjuster returns an adjuster for the given rule set.
func NewAdjuster(cfg Config) *Adjuster {
	return &Adjuster{cfg: cfg}
}

// Adjust returns a copy of the assignment with realism couplings applied,
// in a fixed order: price elasticity, share acceptance, volume caps, then
// competitive pressure.
func (ra *Adjuster) Adjust(a params.Assignment) params.Assignment {
	adjusted := a.Clone()
	ra.applyPriceElasticity(adjusted)
	ra.applyShareAcceptance(adjusted)
	ra.applyVolumeCaps(adjusted)
	ra.applyCompetitivePressure(adjusted)
	return adjusted
}

func (ra *Adjuster) applyPriceElasticity(a params.Assignment) {
	for _, name := range sortedKeys(ra.cfg.PriceElasticity) {
		rule := ra.cfg.PriceElasticity[name]
		price, ok := a.Get(name)
		if !ok {
			continue
		}
		bounds, ok := ra.cfg.RealisticRanges[name]
		if !ok {
			continue
		}

		basePrice := (bounds.Min + bounds.Max) / 2
		increase := (price - basePrice) / basePrice
		demandChange := rule.Elasticity * increase

		cr, ok := a.Get(ra.cfg.ConversionRateParam)
		if !ok {
			continue
		}
		adjusted := cr * (1 + demandChange)
		a.Set(ra.cfg.ConversionRateParam, clamp(adjusted, 0.01, 0.2))
	}
}

func (ra *Adjuster) applyShareAcceptance(a params.Assignment) {
	for _, name := range sortedKeys(ra.cfg.ShareAcceptance) {
		rule := ra.cfg.ShareAcceptance[name]
		share, ok := a.Get(name)
		if !ok || share <= rule.Threshold {
			continue
		}

		overRate := (share - rule.Threshold) / (1 - rule.Threshold)
		penalty := 0.2 * overRate

		renewal, ok := a.Get(ra.cfg.RenewalRateParam)
		if !ok {
			continue
		}
		a.Set(ra.cfg.RenewalRateParam, math.Max(0.4, renewal*(1-penalty)))
	}
}

func (ra *Adjuster) applyVolumeCaps(a params.Assignment) {
	for _, name := range sortedKeys(ra.cfg.VolumeLimits) {
		rule := ra.cfg.VolumeLimits[name]
		volume, ok := a.Get(name)
		if !ok || volume <= rule.Trigger {
			continue
		}
		a.Set(name, math.Min(volume, rule.HardCap))
	}
}

func (ra *Adjuster) applyCompetitivePressure(a params.Assignment) {
	highPriceCount := 0
	for _, name := range ra.cfg.PriceParams {
		value, ok := a.Get(name)
		if !ok {
			continue
		}
		bounds, ok := ra.cfg.RealisticRanges[name]
		if !ok {
			continue
		}
		if value > bounds.Min+0.8*bounds.Width() {
			highPriceCount++
		}
	}
	if highPriceCount < 2 {
		return
	}

	cr, ok := a.Get(ra.cfg.ConversionRateParam)
	if !ok {
		return
	}
	pressure := 0.15 * float64(highPriceCount-1)
	a.Set(ra.cfg.ConversionRateParam, math.Max(0.02, cr*(1-pressure)))
}

// Penalty returns a non-negative score for how far the assignment strays
// from realistic ranges, thresholds and caps. Zero means every identifier
// with a known rule sits inside its realistic region.
func (ra *Adjuster) Penalty(a params.Assignment) float64 {
	penalty := 0.0

	for name, bounds := range ra.cfg.RealisticRanges {
		value, ok := a.Get(name)
		if !ok {
			continue
		}
		if value < bounds.Min {
			penalty += (bounds.Min - value) / bounds.Min * rangePenaltyScale
		} else if value > bounds.Max {
			penalty += (value - bounds.Max) / bounds.Max * rangePenaltyScale
		}
	}

	for name, rule := range ra.cfg.ShareAcceptance {
		value, ok := a.Get(name)
		if !ok {
			continue
		}
		if value > rule.Threshold {
			penalty += (value - rule.Threshold) * sharePenaltyScale
		}
	}

	for name, rule := range ra.cfg.VolumeLimits {
		value, ok := a.Get(name)
		if !ok {
			continue
		}
		if value > rule.RealisticCap {
			penalty += (value - rule.RealisticCap) * volumePenaltyScale
		}
	}

	return penalty
}

// Report renders a realism analysis for the assignment.
func (ra *Adjuster) Report(a params.Assignment) string {
	var b strings.Builder
	penalty := ra.Penalty(a)

	b.WriteString("Realism analysis\n")
	switch {
	case penalty == 0:
		b.WriteString("status: all parameters within realistic ranges\n")
	case penalty < 50:
		b.WriteString("status: minor realism concerns\n")
	case penalty < 200:
		b.WriteString("status: significant realism concerns\n")
	default:
		b.WriteString("status: parameters far outside realistic ranges\n")
	}
	fmt.Fprintf(&b, "penalty score: %.1f\n\n", penalty)

	for _, name := range sortedKeys(ra.cfg.RealisticRanges) {
		value, ok := a.Get(name)
		if !ok {
			continue
		}
		bounds := ra.cfg.RealisticRanges[name]
		status := "ok"
		if value < bounds.Min {
			status = fmt.Sprintf("below realistic range [%v, %v]", bounds.Min, bounds.Max)
		} else if value > bounds.Max {
			status = fmt.Sprintf("above realistic range [%v, %v]", bounds.Min, bounds.Max)
		}
		fmt.Fprintf(&b, "%s: %.2f - %s\n", name, value, status)
	}

	return b.String()
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
