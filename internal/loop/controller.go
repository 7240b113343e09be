// Package loop drives the fix -> re-measure -> decide cycle for one
// project run. The controller owns iteration sequencing, consults the
// convergence analyzer and local heuristics for the stop decision, and
// always finishes with a machine-readable exit reason plus an actionable
// recommendation.
package loop

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tosin2013/aider-lint-fixer/internal/convergence"
	"github.com/tosin2013/aider-lint-fixer/internal/depgraph"
	"github.com/tosin2013/aider-lint-fixer/internal/force"
	"github.com/tosin2013/aider-lint-fixer/pkg/lint"
)

const instrumentationName = "github.com/tosin2013/aider-lint-fixer/internal/loop"

// Config holds the loop controller thresholds.
type Config struct {
	// MaxIterations caps the session (default 10).
	MaxIterations int `koanf:"max_iterations"`

	// ImprovementThreshold is the minimum cumulative session improvement
	// before the loop gives up (default 0.05).
	ImprovementThreshold float64 `koanf:"improvement_threshold"`

	// DiminishingReturnsThreshold is the per-iteration improvement floor
	// over the rolling window (default 0.02).
	DiminishingReturnsThreshold float64 `koanf:"diminishing_returns_threshold"`

	// ConvergenceWindow is the record count for the variance fallback
	// (default 3).
	ConvergenceWindow int `koanf:"convergence_window"`

	// MaxErrorIncreaseTolerance allows small error-count regressions
	// before stopping (default 5).
	MaxErrorIncreaseTolerance int `koanf:"max_error_increase_tolerance"`

	// ErrorDensityThreshold triggers the refactor heuristic, in findings
	// per 1000 lines (default 50). Zero disables the density check.
	ErrorDensityThreshold float64 `koanf:"error_density_threshold"`

	// ProjectLines is the project size used for the density heuristic.
	// Zero disables the density check.
	ProjectLines int `koanf:"project_lines"`

	// Workers bounds concurrent batch execution (default 4).
	Workers int `koanf:"workers"`

	// CallTimeout bounds each external fix/lint call (default 300s).
	CallTimeout time.Duration `koanf:"call_timeout"`

	// ExecutorCallsPerMinute rate-limits paid fix calls. Zero disables
	// limiting.
	ExecutorCallsPerMinute int `koanf:"executor_calls_per_minute"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxIterations:               10,
		ImprovementThreshold:        0.05,
		DiminishingReturnsThreshold: 0.02,
		ConvergenceWindow:           3,
		MaxErrorIncreaseTolerance:   5,
		ErrorDensityThreshold:       50,
		Workers:                     4,
		CallTimeout:                 5 * time.Minute,
	}
}

// Validate rejects unusable thresholds.
func (c *Config) Validate() error {
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations)
	}
	if c.ImprovementThreshold < 0 || c.ImprovementThreshold > 1 {
		return fmt.Errorf("improvement_threshold must be in [0,1], got %v", c.ImprovementThreshold)
	}
	if c.DiminishingReturnsThreshold < 0 || c.DiminishingReturnsThreshold > 1 {
		return fmt.Errorf("diminishing_returns_threshold must be in [0,1], got %v", c.DiminishingReturnsThreshold)
	}
	if c.ConvergenceWindow < 2 {
		return fmt.Errorf("convergence_window must be at least 2, got %d", c.ConvergenceWindow)
	}
	if c.MaxErrorIncreaseTolerance < 0 {
		return fmt.Errorf("max_error_increase_tolerance cannot be negative, got %d", c.MaxErrorIncreaseTolerance)
	}
	return nil
}

// Deps bundles the external collaborators the controller drives.
type Deps struct {
	Runner    lint.Runner
	Assessor  Assessor
	Graphs    depgraph.Builder
	Fixer     FixExecutor
	Confirmer Confirmer
	Cost      CostMonitor
}

// Controller drives one session over one project. Iterations are strictly
// sequential: no record is written until every batch of the iteration has
// completed and the project has been re-measured.
type Controller struct {
	config   *Config
	deps     Deps
	engine   *force.Engine
	analyzer *convergence.Analyzer
	executor *executor
	logger   *zap.Logger

	sessionID    string
	lastStrategy *force.Strategy

	tracer           trace.Tracer
	meter            metric.Meter
	iterationCounter metric.Int64Counter
	exitCounter      metric.Int64Counter
}

// NewController wires a controller. Runner, assessor, and fixer are
// required; confirmer, graph builder, and cost monitor may be nil.
func NewController(cfg *Config, deps Deps, engine *force.Engine, analyzer *convergence.Analyzer, logger *zap.Logger) (*Controller, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid loop config: %w", err)
	}
	if deps.Runner == nil {
		return nil, fmt.Errorf("lint runner is required")
	}
	if deps.Assessor == nil {
		return nil, fmt.Errorf("assessor is required")
	}
	if deps.Fixer == nil {
		return nil, fmt.Errorf("fix executor is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("force engine is required")
	}
	if analyzer == nil {
		return nil, fmt.Errorf("convergence analyzer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.ExecutorCallsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.ExecutorCallsPerMinute)/60.0), cfg.ExecutorCallsPerMinute)
	}

	c := &Controller{
		config:    cfg,
		deps:      deps,
		engine:    engine,
		analyzer:  analyzer,
		logger:    logger,
		sessionID: uuid.New().String(),
		executor:  newExecutor(deps.Fixer, deps.Confirmer, deps.Cost, limiter, cfg.Workers, cfg.CallTimeout, logger),
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
	}
	c.initMetrics()
	return c, nil
}

func (c *Controller) initMetrics() {
	var err error

	c.iterationCounter, err = c.meter.Int64Counter(
		"lintfix.loop.iterations_total",
		metric.WithDescription("Completed fix iterations"),
		metric.WithUnit("{iteration}"),
	)
	if err != nil {
		c.logger.Warn("failed to create iteration counter", zap.Error(err))
	}

	c.exitCounter, err = c.meter.Int64Counter(
		"lintfix.loop.exits_total",
		metric.WithDescription("Loop stops by exit reason"),
		metric.WithUnit("{stop}"),
	)
	if err != nil {
		c.logger.Warn("failed to create exit counter", zap.Error(err))
	}
}

// SessionID returns the session identifier for this run.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// Run drives the session until a stop condition fires. Cancellation
// between iterations or batches finalizes the session with the records
// accumulated so far.
func (c *Controller) Run(ctx context.Context) (*Report, error) {
	ctx, span := c.tracer.Start(ctx, "loop.run")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", c.sessionID))

	logger := c.logger.With(zap.String("session_id", c.sessionID))
	logger.Info("starting fix loop", zap.Int("max_iterations", c.config.MaxIterations))

	initialErrors := -1
	finalErrors := 0

	for iteration := 1; ; iteration++ {
		if ctx.Err() != nil {
			return c.finish(ctx, iteration-1, initialErrors, finalErrors, ExitUserRequested)
		}

		findings, err := c.deps.Runner.RunLinters(ctx, nil)
		if err != nil {
			// A failing lint run contributes zero progress, it does not
			// crash the session.
			logger.Warn("lint run failed", zap.Int("iteration", iteration), zap.Error(err))
			findings = nil
		}
		before := len(findings)
		if initialErrors < 0 {
			initialErrors = before
		}
		if before == 0 {
			logger.Info("no findings remain, stopping")
			return c.finish(ctx, iteration-1, initialErrors, 0, ExitConvergenceDetected)
		}

		started := time.Now()
		outcomes := c.runIteration(ctx, iteration, findings, logger)
		if ctx.Err() != nil && len(outcomes) == 0 {
			return c.finish(ctx, iteration-1, initialErrors, before, ExitUserRequested)
		}

		after := before
		if remeasured, err := c.deps.Runner.RunLinters(ctx, nil); err != nil {
			logger.Warn("re-measure failed, keeping previous count", zap.Error(err))
		} else {
			after = len(remeasured)
		}
		finalErrors = after

		record := c.buildRecord(iteration, before, after, outcomes, time.Since(started))
		if err := c.analyzer.AddRecord(record); err != nil {
			return nil, fmt.Errorf("recording iteration %d: %w", iteration, err)
		}
		c.feedOutcomes(outcomes, record.NewErrorsIntroduced)

		if c.iterationCounter != nil {
			c.iterationCounter.Add(ctx, 1)
		}
		logger.Info("iteration complete",
			zap.Int("iteration", iteration),
			zap.Int("errors_before", before),
			zap.Int("errors_after", after),
			zap.Int("errors_fixed", record.ErrorsFixed),
			zap.Float64("improvement", record.ImprovementPercentage),
		)

		cont, reason := c.ShouldContinue(ctx, iteration)
		if !cont {
			return c.finish(ctx, iteration, initialErrors, after, reason)
		}
	}
}

// runIteration computes the strategy and executes its batches.
func (c *Controller) runIteration(ctx context.Context, iteration int, findings []lint.Finding, logger *zap.Logger) []batchOutcome {
	assessments, err := c.deps.Assessor.Assess(ctx, findings)
	if err != nil {
		logger.Warn("assessment failed, skipping iteration work", zap.Error(err))
		return nil
	}

	graph := c.buildGraph(ctx, findings, logger)

	strategy, err := c.engine.ComputeStrategy(ctx, assessments, graph)
	if err != nil {
		logger.Warn("strategy computation failed", zap.Error(err))
		return nil
	}
	c.lastStrategy = strategy

	outcomes, err := c.executor.run(ctx, strategy.Batches, graph)
	if err != nil && err != errBudgetStop && ctx.Err() == nil {
		logger.Warn("batch execution incomplete", zap.Int("iteration", iteration), zap.Error(err))
	}
	return outcomes
}

// buildGraph tolerates analyzer failures by treating the project as
// edge-less.
func (c *Controller) buildGraph(ctx context.Context, findings []lint.Finding, logger *zap.Logger) *depgraph.Graph {
	if c.deps.Graphs == nil {
		return nil
	}
	files := make([]string, 0)
	seen := make(map[string]bool)
	for _, f := range findings {
		if !seen[f.FilePath] {
			seen[f.FilePath] = true
			files = append(files, f.FilePath)
		}
	}
	sort.Strings(files)

	graph, err := c.deps.Graphs.BuildGraph(ctx, files)
	if err != nil {
		logger.Warn("dependency graph unavailable, treating files as edge-less", zap.Error(err))
		return nil
	}
	return graph
}

// buildRecord assembles the iteration record from execution outcomes.
func (c *Controller) buildRecord(iteration, before, after int, outcomes []batchOutcome, took time.Duration) convergence.IterationRecord {
	record := convergence.IterationRecord{
		Iteration:        iteration,
		ErrorsBefore:     before,
		ErrorsAfter:      after,
		TimeTakenSeconds: took.Seconds(),
	}
	for _, o := range outcomes {
		record.ErrorsAttempted += o.attempted
		record.ErrorsFixed += o.fixed
		record.Cost += o.cost
		record.TokensUsed += o.tokens
	}
	if record.ErrorsAttempted > 0 {
		record.SuccessRate = float64(record.ErrorsFixed) / float64(record.ErrorsAttempted)
	}
	if introduced := after - (before - record.ErrorsFixed); introduced > 0 {
		record.NewErrorsIntroduced = introduced
	}
	return record
}

// feedOutcomes reports per-decision results to the adaptive threshold
// controller.
func (c *Controller) feedOutcomes(outcomes []batchOutcome, newErrors int) {
	for _, o := range outcomes {
		if o.skipped {
			continue
		}
		for _, d := range o.decisions {
			c.engine.RecordOutcome(force.Outcome{
				Decision:            d.decision,
				Success:             d.success,
				NewErrorsIntroduced: newErrors,
			})
		}
	}
}

// finish finalizes the session and builds the report.
func (c *Controller) finish(ctx context.Context, iterations, initialErrors, finalErrors int, reason ExitReason) (*Report, error) {
	if initialErrors < 0 {
		initialErrors = 0
	}
	if c.exitCounter != nil {
		c.exitCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("reason", string(reason)),
		))
	}
	if err := c.Finalize(ctx, reason); err != nil {
		c.logger.Warn("failed to persist session", zap.Error(err))
	}

	report := &Report{
		SessionID:      c.sessionID,
		Iterations:     iterations,
		InitialErrors:  initialErrors,
		FinalErrors:    finalErrors,
		ExitReason:     reason,
		Recommendation: c.GenerateRecommendation(ctx, reason),
	}
	c.logger.Info("fix loop finished",
		zap.String("session_id", c.sessionID),
		zap.String("exit_reason", string(reason)),
		zap.Int("iterations", iterations),
		zap.Int("initial_errors", initialErrors),
		zap.Int("final_errors", finalErrors),
	)
	return report, nil
}

// Finalize persists the session under the state that maps to the exit
// reason and saves the adaptive auto-force threshold for the next run.
// Called automatically by Run; exposed for callers driving iterations
// manually.
func (c *Controller) Finalize(ctx context.Context, reason ExitReason) error {
	if err := c.analyzer.SaveSession(ctx, c.sessionID, exitState(reason)); err != nil {
		return err
	}
	if store := c.analyzer.Store(); store != nil {
		if err := store.SaveAutoForceThreshold(c.engine.AutoForceThreshold()); err != nil {
			return fmt.Errorf("persisting auto-force threshold: %w", err)
		}
	}
	return nil
}

// exitState maps a stop reason to the convergence state recorded on the
// session.
func exitState(reason ExitReason) convergence.State {
	switch reason {
	case ExitConvergenceDetected:
		return convergence.StateConverged
	case ExitDiminishingReturns, ExitImprovementThresholdNotMet, ExitNoImprovement, ExitRefactorRecommended:
		return convergence.StatePlateauing
	case ExitErrorIncrease:
		return convergence.StateDiverging
	default:
		return convergence.StateImproving
	}
}
