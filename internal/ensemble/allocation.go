package ensemble

import "github.com/fincast/fincast/internal/selector"

// Policy selects how the evaluation budget is split across strategies.
type Policy string

// Allocation policies.
const (
	PolicyAuto       Policy = "auto"
	PolicyEqual      Policy = "equal"
	PolicyWeighted   Policy = "weighted"
	PolicySequential Policy = "sequential"
)

// Minimum per-strategy slices for the proportional policies.
const (
	autoMinSlice     = 20
	weightedMinSlice = 15
)

// allocate splits the budget across ranked strategies. Recommendations
// arrive best-first; the returned map only contains strategies that
// received a non-zero slice.
func allocate(policy Policy, recs []selector.Recommendation, budget int) map[string]int {
	if len(recs) == 0 || budget <= 0 {
		return nil
	}

	switch policy {
	case PolicyEqual:
		return allocateEqual(recs, budget)
	case PolicyWeighted:
		return allocateWeighted(recs, budget)
	case PolicySequential:
		return map[string]int{recs[0].Strategy: budget}
	default:
		return allocateAuto(recs, budget)
	}
}

// allocateAuto concentrates the budget on the leader: sixty percent to
// the top strategy of three or more, with the remainder halved between
// the next two. Two candidates split proportionally to score with a
// floor; a single candidate takes everything.
func allocateAuto(recs []selector.Recommendation, budget int) map[string]int {
	switch len(recs) {
	case 1:
		return map[string]int{recs[0].Strategy: budget}
	case 2:
		total := recs[0].Score + recs[1].Score
		if total <= 0 {
			return map[string]int{
				recs[0].Strategy: budget / 2,
				recs[1].Strategy: budget - budget/2,
			}
		}
		first := int(float64(budget) * recs[0].Score / total)
		if first < autoMinSlice {
			first = autoMinSlice
		}
		if first > budget-autoMinSlice {
			first = budget - autoMinSlice
		}
		if first < 0 {
			first = budget
		}
		out := map[string]int{recs[0].Strategy: first}
		if budget-first > 0 {
			out[recs[1].Strategy] = budget - first
		}
		return out
	default:
		top := budget * 60 / 100
		rest := budget - top
		out := map[string]int{recs[0].Strategy: top}
		if rest/2 > 0 {
			out[recs[1].Strategy] = rest / 2
			out[recs[2].Strategy] = rest - rest/2
		}
		return out
	}
}

// allocateEqual splits evenly across up to three strategies scoring
// above 0.4.
func allocateEqual(recs []selector.Recommendation, budget int) map[string]int {
	eligible := make([]selector.Recommendation, 0, 3)
	for _, rec := range recs {
		if rec.Score > 0.4 {
			eligible = append(eligible, rec)
		}
		if len(eligible) == 3 {
			break
		}
	}
	if len(eligible) == 0 {
		eligible = recs[:1]
	}

	out := make(map[string]int, len(eligible))
	share := budget / len(eligible)
	for i, rec := range eligible {
		slice := share
		if i == 0 {
			slice += budget - share*len(eligible)
		}
		if slice > 0 {
			out[rec.Strategy] = slice
		}
	}
	return out
}

// allocateWeighted splits proportionally to score across strategies
// above 0.3, with a floor so no participant starves.
func allocateWeighted(recs []selector.Recommendation, budget int) map[string]int {
	eligible := make([]selector.Recommendation, 0, len(recs))
	total := 0.0
	for _, rec := range recs {
		if rec.Score > 0.3 {
			eligible = append(eligible, rec)
			total += rec.Score
		}
	}
	if len(eligible) == 0 || total <= 0 {
		return map[string]int{recs[0].Strategy: budget}
	}

	out := make(map[string]int, len(eligible))
	assigned := 0
	for _, rec := range eligible {
		slice := int(float64(budget) * rec.Score / total)
		if slice < weightedMinSlice {
			slice = weightedMinSlice
		}
		out[rec.Strategy] = slice
		assigned += slice
	}
	// Hand any rounding remainder to the leader.
	if assigned < budget {
		out[eligible[0].Strategy] += budget - assigned
	}
	return out
}
