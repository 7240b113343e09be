// Package main implements the lintfix CLI: an adaptive lint-fix loop
// that decides per finding whether to auto-fix, batch for confirmation,
// or route to manual review, and stops when progress converges.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// cfgFile is the optional YAML config path.
	cfgFile string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lintfix",
	Short: "Adaptive lint-fix loop",
	Long: `lintfix drives external linters and a fix executor in a feedback loop.
Each finding is scored and admitted as auto-force, batch-confirm, manual
review, or skip; the loop stops when convergence analysis says further
iterations will not pay off.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sessionsCmd)
}
