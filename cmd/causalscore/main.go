// Command causalscore scores precomputed causal effect estimates against a
// validation dataset and picks the best estimate of each estimator family.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "causalscore",
		Short: "Score and rank heterogeneous treatment effect estimates",
	}

	rootCmd.AddCommand(
		newScoreCmd(),
		newRankCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
