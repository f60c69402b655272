package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fincast/fincast/internal/params"
	"github.com/fincast/fincast/internal/selector"
)

// Scenario is the YAML description of one optimization problem.
type Scenario struct {
	// Metric names the objective reported by the evaluator.
	Metric string                   `yaml:"metric"`
	Space  map[string]params.Bounds `yaml:"space"`
	Budget int                      `yaml:"budget"`
	// Policy is the budget allocation policy: auto, equal, weighted or
	// sequential.
	Policy        string               `yaml:"policy"`
	Parallel      bool                 `yaml:"parallel"`
	Seed          int64                `yaml:"seed"`
	PenaltyWeight float64              `yaml:"penalty_weight"`
	Preferences   selector.Preferences `yaml:"preferences"`
}

func loadScenario(path string) (*Scenario, params.Space, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read scenario: %w", err)
	}

	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, nil, fmt.Errorf("failed to parse scenario: %w", err)
	}

	space := params.Space(sc.Space)
	if err := space.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid scenario space: %w", err)
	}

	if sc.Metric == "" {
		sc.Metric = "net_revenue"
	}
	if sc.Budget <= 0 {
		sc.Budget = 200
	}
	if sc.Policy == "" {
		sc.Policy = "auto"
	}
	return &sc, space, nil
}
