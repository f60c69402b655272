// Command fincast drives ensemble optimization runs from scenario files.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fincast",
	Short: "Ensemble optimization for business financial projections",
	Long: `fincast searches business parameter spaces with an ensemble of
grid, surrogate and genetic strategies, repairing candidates against
business constraints and penalizing unrealistic assignments.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
