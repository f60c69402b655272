// Package monitor tracks the progress of one optimization run, detects
// convergence and stagnation, and produces diagnostic reports.
package monitor

import (
	"math"
	"time"
)

// Defaults for stagnation detection.
const (
	DefaultPatience       = 10
	DefaultMinImprovement = 1e-4

	// convergenceWindow is how many recent improvements are averaged when
	// checking for convergence.
	convergenceWindow = 5
)

// Sample is one recorded iteration.
type Sample struct {
	Iteration       int
	CurrentScore    float64
	BestScore       float64
	Improvement     float64
	Elapsed         time.Duration
	Diversity       float64
	ExplorationRate float64
	// HasExploration marks whether an exploration-rate signal was supplied.
	HasExploration bool
}

// Aux carries optional per-iteration signals.
type Aux struct {
	Diversity       float64
	ExplorationRate float64
	HasExploration  bool
}

// Status summarizes the monitor state.
type Status struct {
	Converged          bool `json:"converged"`
	EarlyStopSuggested bool `json:"early_stop_suggested"`
	NoImprovementCount int  `json:"no_improvement_count"`
	BestScore          float64 `json:"best_score"`
	Iterations         int  `json:"iterations"`
}

// Monitor ingests per-iteration records for exactly one strategy run.
// It is owned exclusively by that run and is not safe for concurrent use;
// concurrent strategy runs each get their own instance.
type Monitor struct {
	patience       int
	minImprovement float64

	history []Sample
	started time.Time

	bestSoFar          float64
	hasBest            bool
	noImprovementCount int
	converged          bool
	earlyStopSuggested bool
}

// New returns a monitor with the given patience and minimum improvement.
// Non-positive arguments fall back to the defaults.
func New(patience int, minImprovement float64) *Monitor {
	if patience <= 0 {
		patience = DefaultPatience
	}
	if minImprovement <= 0 {
		minImprovement = DefaultMinImprovement
	}
	return &Monitor{
		patience:       patience,
		minImprovement: minImprovement,
		bestSoFar:      math.Inf(-1),
	}
}

// Record appends one iteration to the history and re-evaluates convergence
// and early-stop state.
func (m *Monitor) Record(iteration int, currentScore, bestScore float64, aux Aux) {
	if m.started.IsZero() {
		m.started = time.Now()
	}

	improvement := 0.0
	if m.hasBest {
		improvement = bestScore - m.bestSoFar
	}

	m.history = append(m.history, Sample{
		Iteration:       iteration,
		CurrentScore:    currentScore,
		BestScore:       bestScore,
		Improvement:     improvement,
		Elapsed:         time.Since(m.started),
		Diversity:       aux.Diversity,
		ExplorationRate: aux.ExplorationRate,
		HasExploration:  aux.HasExploration,
	})

	if !m.hasBest || improvement > m.minImprovement {
		m.noImprovementCount = 0
		m.bestSoFar = bestScore
		m.hasBest = true
	} else {
		m.noImprovementCount++
	}

	m.checkConvergence()
	if m.noImprovementCount >= m.patience {
		m.earlyStopSuggested = true
	}
}

// checkConvergence flags convergence once the mean of the most recent
// improvements drops below the minimum improvement.
func (m *Monitor) checkConvergence() {
	if len(m.history) < convergenceWindow {
		return
	}
	sum := 0.0
	for _, s := range m.history[len(m.history)-convergenceWindow:] {
		sum += s.Improvement
	}
	if sum/convergenceWindow < m.minImprovement {
		m.converged = true
	}
}

// ShouldStopEarly reports whether the run should terminate. Strategies
// poll this between iterations; stopping is cooperative, never preemptive.
func (m *Monitor) ShouldStopEarly() bool {
	return m.earlyStopSuggested
}

// Converged reports whether convergence was detected.
func (m *Monitor) Converged() bool {
	return m.converged
}

// BestScore returns the best score observed, or -Inf before any record.
func (m *Monitor) BestScore() float64 {
	return m.bestSoFar
}

// History returns the recorded samples in iteration order.
func (m *Monitor) History() []Sample {
	return m.history
}

// Status returns a snapshot of the monitor state.
func (m *Monitor) Status() Status {
	return Status{
		Converged:          m.converged,
		EarlyStopSuggested: m.earlyStopSuggested,
		NoImprovementCount: m.noImprovementCount,
		BestScore:          m.bestSoFar,
		Iterations:         len(m.history),
	}
}
