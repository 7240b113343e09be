package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tosin2013/aider-lint-fixer/internal/config"
	"github.com/tosin2013/aider-lint-fixer/internal/convergence"
)

var flagSessionsJSON bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions [project-dir]",
	Short: "List persisted fix sessions",
	Long: `List the historical sessions stored in the project state directory,
newest last. These sessions seed the convergence predictor on future runs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSessions,
}

func init() {
	sessionsCmd.Flags().BoolVar(&flagSessionsJSON, "json", false, "emit JSON instead of a table")
}

func runSessions(cmd *cobra.Command, args []string) error {
	project := "."
	if len(args) > 0 {
		project = args[0]
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	stateDir := cfg.StateDir
	if !filepath.IsAbs(stateDir) {
		stateDir = filepath.Join(project, stateDir)
	}

	store, err := convergence.NewStore(stateDir, zap.NewNop())
	if err != nil {
		return err
	}
	sessions := store.Sessions(cmd.Context())

	if flagSessionsJSON {
		return printJSON(cmd, sessions)
	}

	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no sessions recorded")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tITERATIONS\tFINAL STATE\tIMPROVEMENT")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%d\t%s\t%.1f%%\n",
			s.SessionID, s.TotalIterations, s.FinalState, s.FinalImprovement*100)
	}
	return w.Flush()
}
