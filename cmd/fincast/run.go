package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fincast/fincast/internal/analysis"
	"github.com/fincast/fincast/internal/constraints"
	"github.com/fincast/fincast/internal/ensemble"
	"github.com/fincast/fincast/internal/logging"
	"github.com/fincast/fincast/internal/optimization"
	"github.com/fincast/fincast/internal/params"
	"github.com/fincast/fincast/internal/realism"
)

var (
	scenarioPath  string
	logLevel      string
	showTrace     bool
	checkRobust   bool
	robustSamples int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an ensemble optimization from a scenario file",
	Long: `Loads a YAML scenario, allocates the evaluation budget across the
recommended strategies and prints the fused result as JSON.`,
	RunE: runEnsemble,
}

func init() {
	runCmd.Flags().StringVar(&scenarioPath, "scenario", "", "Scenario YAML path (required)")
	runCmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&showTrace, "trace", false, "Include per-strategy evaluation traces in the output")
	runCmd.Flags().BoolVar(&checkRobust, "robustness", false, "Analyze the stability of the best assignment after the search")
	runCmd.Flags().IntVar(&robustSamples, "robustness-samples", 200, "Monte Carlo sample count for the robustness analysis")

	runCmd.MarkFlagRequired("scenario")
	rootCmd.AddCommand(runCmd)
}

// demoObjective rewards assignments near the middle of the market ranges.
// A real deployment wires an evaluator backed by the projection engine.
func demoObjective() optimization.Evaluator {
	ranges := realism.DefaultConfig().RealisticRanges
	return optimization.EvaluatorFunc(func(_ context.Context, overrides params.Assignment, _ string) float64 {
		total := 0.0
		for name, value := range overrides.Flatten() {
			if bounds, ok := ranges[name]; ok && bounds.Width() > 0 {
				d := (value - (bounds.Min+bounds.Max)/2) / bounds.Width()
				total -= d * d
				continue
			}
			total -= value * value * 1e-6
		}
		return total
	})
}

func runEnsemble(cmd *cobra.Command, args []string) error {
	sc, space, err := loadScenario(scenarioPath)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:  logLevel,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	optimizer := ensemble.New(demoObjective(), sc.Metric,
		constraints.NewBusinessHandler(space),
		realism.NewAdjuster(realism.DefaultConfig()),
		nil, logging.NewZapLogger(logger))

	result, err := optimizer.Optimize(ctx, space, sc.Budget, ensemble.Options{
		Policy:             ensemble.Policy(sc.Policy),
		Parallel:           sc.Parallel,
		ReentrantEvaluator: sc.Parallel,
		Preferences:        sc.Preferences,
		Seed:               sc.Seed,
		PenaltyWeight:      sc.PenaltyWeight,
		Progress: func(fraction float64, status string) {
			fmt.Fprintf(os.Stderr, "\r%5.1f%% %s", fraction*100, status)
		},
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("optimization failed: %w", err)
	}

	if !showTrace {
		for _, sr := range result.StrategyResults {
			sr.Trace = nil
		}
	}

	out := struct {
		*ensemble.Result
		Robustness *analysis.RobustnessResult `json:"robustness,omitempty"`
	}{Result: result}

	if checkRobust {
		ra := analysis.NewRobustnessAnalyzer(demoObjective(), sc.Metric, logging.NewZapLogger(logger))
		robustness, err := ra.Analyze(ctx, result.BestAssignment, analysis.RobustnessConfig{
			Samples: robustSamples,
			Seed:    sc.Seed,
		})
		if err != nil {
			return fmt.Errorf("robustness analysis failed: %w", err)
		}
		out.Robustness = robustness
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}
