package monitor

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Diagnostics is the analysis of one run's recorded history.
type Diagnostics struct {
	// ConvergenceRate is the linear-fit slope of best score vs iteration,
	// floored at zero.
	ConvergenceRate float64 `json:"convergence_rate"`
	// ExplorationCoverage estimates how much of the space was explored,
	// in [0, 1].
	ExplorationCoverage float64 `json:"exploration_coverage"`
	// EfficiencyScore blends score gain per iteration and per second,
	// in [0, 1].
	EfficiencyScore float64 `json:"efficiency_score"`
	// Recommendations is a ranked list of textual suggestions.
	Recommendations []string `json:"recommendations"`
}

// Diagnostics analyzes the history recorded so far.
func (m *Monitor) Diagnostics() Diagnostics {
	return Diagnostics{
		ConvergenceRate:     m.convergenceRate(),
		ExplorationCoverage: m.explorationCoverage(),
		EfficiencyScore:     m.efficiencyScore(),
		Recommendations:     m.recommendations(),
	}
}

func (m *Monitor) convergenceRate() float64 {
	if len(m.history) < 2 {
		return 0
	}
	xs := make([]float64, len(m.history))
	ys := make([]float64, len(m.history))
	for i, s := range m.history {
		xs[i] = float64(s.Iteration)
		ys[i] = s.BestScore
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(slope) {
		return 0
	}
	return math.Max(0, slope)
}

func (m *Monitor) explorationCoverage() float64 {
	sum, n := 0.0, 0
	for _, s := range m.history {
		if s.HasExploration {
			sum += s.ExplorationRate
			n++
		}
	}
	if n == 0 {
		// No exploration signal recorded; assume middling coverage.
		return 0.5
	}
	return math.Min(1, sum/float64(n))
}

func (m *Monitor) efficiencyScore() float64 {
	if len(m.history) < 2 {
		return 0
	}

	totalImprovement := m.bestSoFar - m.history[0].BestScore
	totalTime := m.history[len(m.history)-1].Elapsed.Seconds()
	if totalTime <= 0 {
		totalTime = 1
	}
	iterations := float64(len(m.history))

	timeEfficiency := math.Min(1, 1/(totalTime/iterations+1e-6))
	improvementEfficiency := math.Min(1, totalImprovement/(iterations+1e-6))

	return 0.6*improvementEfficiency + 0.4*timeEfficiency
}

func (m *Monitor) recommendations() []string {
	if len(m.history) < convergenceWindow {
		return []string{"not enough iterations recorded to analyze the run"}
	}

	var recs []string

	if m.converged {
		recs = append(recs, "convergence detected; consider stopping or re-tuning the strategy")
	}
	if m.earlyStopSuggested {
		recs = append(recs, fmt.Sprintf("no improvement for %d consecutive iterations; consider early stop", m.noImprovementCount))
	}

	efficiency := m.efficiencyScore()
	if efficiency < 0.3 {
		recs = append(recs, "low optimization efficiency; consider a larger population, different hyperparameters or another strategy")
	} else if efficiency > 0.8 {
		recs = append(recs, "high optimization efficiency; current settings look good")
	}

	if avg, ok := m.recentExploration(); ok {
		if avg < 0.1 {
			recs = append(recs, "exploration rate is very low; increase exploration to escape local optima")
		} else if avg > 0.8 {
			recs = append(recs, "exploration rate is very high; increase exploitation to help convergence")
		}
	}

	allFlat := true
	for _, s := range m.history[len(m.history)-convergenceWindow:] {
		if s.Improvement > 0 {
			allFlat = false
			break
		}
	}
	if allFlat {
		recs = append(recs, "no improvement in recent iterations; consider restarting or switching strategies")
	}

	if len(recs) == 0 {
		recs = []string{"run is progressing normally"}
	}
	return recs
}

func (m *Monitor) recentExploration() (float64, bool) {
	window := m.history
	if len(window) > convergenceWindow {
		window = window[len(window)-convergenceWindow:]
	}
	sum, n := 0.0, 0
	for _, s := range window {
		if s.HasExploration {
			sum += s.ExplorationRate
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// Report renders the diagnostics as text.
func (m *Monitor) Report() string {
	d := m.Diagnostics()
	var b strings.Builder

	b.WriteString("Optimization run diagnostics\n\n")
	fmt.Fprintf(&b, "iterations recorded: %d\n", len(m.history))
	if m.hasBest {
		fmt.Fprintf(&b, "best score: %.6f\n", m.bestSoFar)
	}
	fmt.Fprintf(&b, "converged: %v\n", m.converged)
	fmt.Fprintf(&b, "early stop suggested: %v\n", m.earlyStopSuggested)
	fmt.Fprintf(&b, "convergence rate: %.6f\n", d.ConvergenceRate)
	fmt.Fprintf(&b, "exploration coverage: %.2f\n", d.ExplorationCoverage)
	fmt.Fprintf(&b, "efficiency score: %.2f\n\n", d.EfficiencyScore)

	b.WriteString("recommendations:\n")
	for i, rec := range d.Recommendations {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rec)
	}
	return b.String()
}
