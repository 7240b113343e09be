package loop

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tosin2013/aider-lint-fixer/internal/convergence"
	"github.com/tosin2013/aider-lint-fixer/internal/force"
	"github.com/tosin2013/aider-lint-fixer/pkg/lint"
)

// fakeRunner returns queued finding sets in order, then empty results.
type fakeRunner struct {
	mu    sync.Mutex
	queue [][]lint.Finding
	err   error
	calls int
}

func (f *fakeRunner) RunLinters(ctx context.Context, files []string) ([]lint.Finding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.queue) == 0 {
		return nil, nil
	}
	out := f.queue[0]
	f.queue = f.queue[1:]
	return out, nil
}

// fakeAssessor marks every finding as a trivially fixable style issue.
type fakeAssessor struct{}

func (fakeAssessor) Assess(ctx context.Context, findings []lint.Finding) ([]lint.ErrorAssessment, error) {
	out := make([]lint.ErrorAssessment, len(findings))
	for i, f := range findings {
		out[i] = lint.ErrorAssessment{
			Finding:         f,
			Category:        lint.CategoryTrivialStyle,
			Complexity:      lint.ComplexityTrivial,
			Fixable:         true,
			Priority:        5,
			EstimatedEffort: 1,
		}
	}
	return out, nil
}

// fakeFixer records per-file calls and reports every finding as fixed
// unless the file is marked as failing.
type fakeFixer struct {
	mu       sync.Mutex
	calls    map[string]int
	findings map[string]int
	fail     map[string]bool
}

func newFakeFixer() *fakeFixer {
	return &fakeFixer{
		calls:    make(map[string]int),
		findings: make(map[string]int),
		fail:     make(map[string]bool),
	}
}

func (f *fakeFixer) FixFile(ctx context.Context, file string, findings []lint.Finding) (FixResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[file]++
	f.findings[file] += len(findings)
	if f.fail[file] {
		return FixResult{}, assert.AnError
	}
	return FixResult{Fixed: len(findings), FilesChanged: true, Cost: 0.1}, nil
}

func (f *fakeFixer) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// fakeCost replays a fixed budget status and prediction.
type fakeCost struct {
	status     BudgetStatus
	statusErr  error
	predicted  float64
	predictErr error
}

func (f *fakeCost) BudgetStatus(ctx context.Context) (BudgetStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeCost) PredictTotalCost(ctx context.Context) (float64, error) {
	return f.predicted, f.predictErr
}

// fakeConfirmer records which batches it was asked about.
type fakeConfirmer struct {
	mu      sync.Mutex
	approve bool
	err     error
	asked   []int
}

func (f *fakeConfirmer) ConfirmBatch(ctx context.Context, batch force.BatchPlan) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, batch.BatchID)
	return f.approve, f.err
}

func newTestController(t *testing.T, cfg *Config, deps Deps) (*Controller, *convergence.Analyzer) {
	t.Helper()
	if deps.Runner == nil {
		deps.Runner = &fakeRunner{}
	}
	if deps.Assessor == nil {
		deps.Assessor = fakeAssessor{}
	}
	if deps.Fixer == nil {
		deps.Fixer = newFakeFixer()
	}
	engine, err := force.NewEngine(nil, nil, nil)
	require.NoError(t, err)
	analyzer := convergence.NewAnalyzer(nil, convergence.Predictors{}, nil)
	c, err := NewController(cfg, deps, engine, analyzer, nil)
	require.NoError(t, err)
	return c, analyzer
}

func finding(file, rule string) lint.Finding {
	return lint.Finding{
		FilePath: file,
		Line:     1,
		RuleID:   rule,
		Message:  "message",
		Severity: lint.SeverityWarning,
		Linter:   "pylint",
	}
}

func TestNewControllerRequiresCollaborators(t *testing.T) {
	engine, err := force.NewEngine(nil, nil, nil)
	require.NoError(t, err)
	analyzer := convergence.NewAnalyzer(nil, convergence.Predictors{}, nil)

	_, err = NewController(nil, Deps{}, engine, analyzer, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lint runner")

	_, err = NewController(nil, Deps{Runner: &fakeRunner{}}, engine, analyzer, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assessor")

	_, err = NewController(nil, Deps{Runner: &fakeRunner{}, Assessor: fakeAssessor{}}, engine, analyzer, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fix executor")
}

func TestRunStopsWhenProjectComesClean(t *testing.T) {
	dir := t.TempDir()
	store, err := convergence.NewStore(dir, nil)
	require.NoError(t, err)

	runner := &fakeRunner{queue: [][]lint.Finding{
		{
			finding("a.py", "trailing-whitespace"),
			finding("a.py", "trailing-whitespace"),
			finding("b.py", "trailing-whitespace"),
		},
		// Re-measure after the fix pass finds nothing.
		nil,
	}}
	fixer := newFakeFixer()

	engine, err := force.NewEngine(nil, nil, nil)
	require.NoError(t, err)
	analyzer := convergence.NewAnalyzer(store, convergence.Predictors{}, nil)
	c, err := NewController(nil, Deps{
		Runner:   runner,
		Assessor: fakeAssessor{},
		Fixer:    fixer,
	}, engine, analyzer, nil)
	require.NoError(t, err)

	ctx := context.Background()
	report, err := c.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, ExitConvergenceDetected, report.ExitReason)
	assert.Equal(t, 1, report.Iterations)
	assert.Equal(t, 3, report.InitialErrors)
	assert.Equal(t, 0, report.FinalErrors)
	assert.Equal(t, c.SessionID(), report.SessionID)

	// Safe style rules go out as auto-force, one call per file.
	assert.Equal(t, 1, fixer.calls["a.py"])
	assert.Equal(t, 2, fixer.findings["a.py"])
	assert.Equal(t, 1, fixer.calls["b.py"])

	// The session and the adaptive threshold are persisted.
	sessions := store.Sessions(ctx)
	require.Len(t, sessions, 1)
	assert.Equal(t, convergence.StateConverged, sessions[0].FinalState)
	assert.Equal(t, 1, sessions[0].TotalIterations)
	assert.InDelta(t, 0.90, store.AutoForceThreshold(), 1e-9)
}

func TestRunHonorsMaxIterationsExactly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 1

	runner := &fakeRunner{queue: [][]lint.Finding{
		{finding("a.py", "some-rule"), finding("b.py", "some-rule")},
		{finding("a.py", "some-rule"), finding("b.py", "some-rule")},
	}}
	fixer := newFakeFixer()
	c, _ := newTestController(t, cfg, Deps{Runner: runner, Fixer: fixer})

	report, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ExitMaxIterations, report.ExitReason)
	assert.Equal(t, 1, report.Iterations)
	// Default-confidence findings route to manual review, so nothing runs.
	assert.Zero(t, fixer.totalCalls())
}

func TestRunCancelledBeforeStart(t *testing.T) {
	c, _ := newTestController(t, nil, Deps{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExitUserRequested, report.ExitReason)
	assert.Zero(t, report.Iterations)
}

func TestRunToleratesLintFailure(t *testing.T) {
	runner := &fakeRunner{err: assert.AnError}
	c, _ := newTestController(t, nil, Deps{Runner: runner})

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	// A failing lint run reads as zero findings and converges immediately.
	assert.Equal(t, ExitConvergenceDetected, report.ExitReason)
	assert.Zero(t, report.InitialErrors)
}

func TestBuildRecordDerivesRates(t *testing.T) {
	c, _ := newTestController(t, nil, Deps{})

	record := c.buildRecord(1, 10, 6, []batchOutcome{
		{attempted: 5, fixed: 4, cost: 0.5, tokens: 100},
		{attempted: 3, fixed: 2, cost: 0.3, tokens: 50},
	}, 0)

	assert.Equal(t, 8, record.ErrorsAttempted)
	assert.Equal(t, 6, record.ErrorsFixed)
	assert.InDelta(t, 0.75, record.SuccessRate, 1e-9)
	assert.InDelta(t, 0.8, record.Cost, 1e-9)
	assert.Equal(t, 150, record.TokensUsed)
	// 10 before, 6 fixed, yet only down to 6: two new errors appeared.
	assert.Equal(t, 2, record.NewErrorsIntroduced)
}

func TestBuildRecordNoNewErrorsWhenCountsAddUp(t *testing.T) {
	c, _ := newTestController(t, nil, Deps{})
	record := c.buildRecord(1, 10, 7, []batchOutcome{{attempted: 3, fixed: 3}}, 0)
	assert.Zero(t, record.NewErrorsIntroduced)
}

func TestExitStateMapping(t *testing.T) {
	tests := []struct {
		reason ExitReason
		want   convergence.State
	}{
		{ExitConvergenceDetected, convergence.StateConverged},
		{ExitDiminishingReturns, convergence.StatePlateauing},
		{ExitImprovementThresholdNotMet, convergence.StatePlateauing},
		{ExitNoImprovement, convergence.StatePlateauing},
		{ExitRefactorRecommended, convergence.StatePlateauing},
		{ExitErrorIncrease, convergence.StateDiverging},
		{ExitMaxIterations, convergence.StateImproving},
		{ExitUserRequested, convergence.StateImproving},
		{ExitBudgetExceeded, convergence.StateImproving},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitState(tt.reason), "reason %s", tt.reason)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"zero iterations", func(c *Config) { c.MaxIterations = 0 }, false},
		{"improvement above one", func(c *Config) { c.ImprovementThreshold = 1.5 }, false},
		{"negative diminishing", func(c *Config) { c.DiminishingReturnsThreshold = -0.1 }, false},
		{"window too small", func(c *Config) { c.ConvergenceWindow = 1 }, false},
		{"negative tolerance", func(c *Config) { c.MaxErrorIncreaseTolerance = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
