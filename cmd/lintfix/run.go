package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tosin2013/aider-lint-fixer/internal/config"
	"github.com/tosin2013/aider-lint-fixer/internal/convergence"
	"github.com/tosin2013/aider-lint-fixer/internal/depgraph"
	"github.com/tosin2013/aider-lint-fixer/internal/force"
	"github.com/tosin2013/aider-lint-fixer/internal/logging"
	"github.com/tosin2013/aider-lint-fixer/internal/loop"
	"github.com/tosin2013/aider-lint-fixer/internal/telemetry"
	"github.com/tosin2013/aider-lint-fixer/pkg/lint"
)

var (
	flagMaxIterations int
	flagDryRun        bool
	flagYes           bool
	flagBudget        float64
	flagCostPerCall   float64
	flagLinters       []string
	flagFixer         string
)

var runCmd = &cobra.Command{
	Use:   "run [project-dir]",
	Short: "Run the fix loop against a project",
	Long: `Run linters, plan a fix strategy, and drive the fix executor until a
stop condition fires.

Examples:
  # Fix a Python project with flake8 findings, using aider as the executor
  lintfix run --linter "flake8-json-wrapper" --fixer "aider --yes" ./myproject

  # Print the strategy without executing any fixes
  lintfix run --linter "eslint-json-wrapper" --dry-run .`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&flagMaxIterations, "max-iterations", 0, "override the iteration cap")
	runCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "compute and print the strategy without fixing")
	runCmd.Flags().BoolVar(&flagYes, "yes", false, "approve all confirmation batches without prompting")
	runCmd.Flags().Float64Var(&flagBudget, "budget", 0, "total session budget in dollars (0 disables)")
	runCmd.Flags().Float64Var(&flagCostPerCall, "cost-per-call", 0.10, "estimated cost per fix call in dollars")
	runCmd.Flags().StringArrayVar(&flagLinters, "linter", nil, "linter command emitting JSON findings (repeatable)")
	runCmd.Flags().StringVar(&flagFixer, "fixer", "", "fix executor command, invoked per file")
}

func runRun(cmd *cobra.Command, args []string) error {
	project := "."
	if len(args) > 0 {
		project = args[0]
	}
	if len(flagLinters) == 0 {
		return fmt.Errorf("at least one --linter command is required")
	}
	if !flagDryRun && flagFixer == "" {
		return fmt.Errorf("--fixer is required unless --dry-run is set")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if flagMaxIterations > 0 {
		cfg.Loop.MaxIterations = flagMaxIterations
	}
	if flagBudget > 0 {
		cfg.Budget.Total = flagBudget
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer tel.Shutdown(context.Background()) //nolint:errcheck

	logger, err := logging.New(cfg.Logging, tel.LoggerProvider())
	if err != nil {
		return err
	}
	defer logging.Sync(logger) //nolint:errcheck

	runner, err := lint.NewCommandRunner(project, splitCommands(flagLinters), logger)
	if err != nil {
		return err
	}
	assessor := lint.NewHeuristicAssessor()
	graphs := depgraph.NewScanner(project, logger)

	stateDir := cfg.StateDir
	if !filepath.IsAbs(stateDir) {
		stateDir = filepath.Join(project, stateDir)
	}
	store, err := convergence.NewStore(stateDir, logger)
	if err != nil {
		return err
	}

	engine, err := force.NewEngine(cfg.Force, force.NewHeuristicPredictor(), logger)
	if err != nil {
		return err
	}
	if t := store.AutoForceThreshold(); t > 0 {
		engine.SetAutoForceThreshold(t)
	}

	if flagDryRun {
		return dryRun(ctx, cmd, runner, assessor, graphs, engine)
	}

	analyzer := convergence.NewAnalyzer(store, convergence.Predictors{
		Regressor:  force.NewHeuristicPredictor(),
		Classifier: force.NewHeuristicPredictor(),
	}, logger)

	tracker := newBudgetTracker(cfg.Budget.Total)
	fixer := newCommandFixer(project, strings.Fields(flagFixer), flagCostPerCall, tracker, logger)

	var confirmer loop.Confirmer
	if !flagYes {
		confirmer = newPromptConfirmer(cmd.InOrStdin(), cmd.OutOrStdout())
	}

	ctrl, err := loop.NewController(cfg.Loop, loop.Deps{
		Runner:    runner,
		Assessor:  assessor,
		Graphs:    graphs,
		Fixer:     fixer,
		Confirmer: confirmer,
		Cost:      tracker,
	}, engine, analyzer, logger)
	if err != nil {
		return err
	}

	report, err := ctrl.Run(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd, report)
}

// dryRun computes and prints the strategy without touching any file.
func dryRun(ctx context.Context, cmd *cobra.Command, runner lint.Runner, assessor loop.Assessor, graphs depgraph.Builder, engine *force.Engine) error {
	findings, err := runner.RunLinters(ctx, nil)
	if err != nil {
		return err
	}
	if len(findings) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no findings")
		return nil
	}

	assessments, err := assessor.Assess(ctx, findings)
	if err != nil {
		return err
	}

	files := make([]string, 0)
	seen := make(map[string]bool)
	for _, f := range findings {
		if !seen[f.FilePath] {
			seen[f.FilePath] = true
			files = append(files, f.FilePath)
		}
	}
	graph, err := graphs.BuildGraph(ctx, files)
	if err != nil {
		graph = nil
	}

	strategy, err := engine.ComputeStrategy(ctx, assessments, graph)
	if err != nil {
		return err
	}
	return printJSON(cmd, strategy.Summary)
}

// splitCommands turns each --linter value into an argv vector.
func splitCommands(raw []string) [][]string {
	commands := make([][]string, 0, len(raw))
	for _, r := range raw {
		if argv := strings.Fields(r); len(argv) > 0 {
			commands = append(commands, argv)
		}
	}
	return commands
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
