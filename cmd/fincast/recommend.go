package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fincast/fincast/internal/selector"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Rank strategies for a scenario without spending evaluations",
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, space, err := loadScenario(scenarioPath)
		if err != nil {
			return err
		}

		recs := selector.Recommend(space, sc.Budget, sc.Preferences)
		fmt.Print(selector.Report(recs))
		return nil
	},
}

func init() {
	recommendCmd.Flags().StringVar(&scenarioPath, "scenario", "", "Scenario YAML path (required)")
	recommendCmd.MarkFlagRequired("scenario")
	rootCmd.AddCommand(recommendCmd)
}
