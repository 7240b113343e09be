package loop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tosin2013/aider-lint-fixer/internal/convergence"
)

func addRecords(t *testing.T, a *convergence.Analyzer, pairs ...[2]int) {
	t.Helper()
	for i, p := range pairs {
		require.NoError(t, a.AddRecord(convergence.IterationRecord{
			Iteration:    i + 1,
			ErrorsBefore: p[0],
			ErrorsAfter:  p[1],
			SuccessRate:  0.8,
		}))
	}
}

func TestShouldContinueWithoutTrendData(t *testing.T) {
	c, analyzer := newTestController(t, nil, Deps{})
	addRecords(t, analyzer, [2]int{100, 90})

	cont, reason := c.ShouldContinue(context.Background(), 1)
	assert.True(t, cont)
	assert.Empty(t, reason)
}

func TestShouldContinueMaxIterationsBeatsTrendChecks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 1
	c, analyzer := newTestController(t, cfg, Deps{})
	addRecords(t, analyzer, [2]int{100, 90})

	cont, reason := c.ShouldContinue(context.Background(), 1)
	assert.False(t, cont)
	assert.Equal(t, ExitMaxIterations, reason)
}

func TestShouldContinueErrorIncrease(t *testing.T) {
	c, analyzer := newTestController(t, nil, Deps{})
	addRecords(t, analyzer, [2]int{100, 60}, [2]int{60, 70})

	cont, reason := c.ShouldContinue(context.Background(), 2)
	assert.False(t, cont)
	assert.Equal(t, ExitErrorIncrease, reason)
}

func TestShouldContinueToleratesSmallIncrease(t *testing.T) {
	// Four more errors is inside the default tolerance of five.
	c, analyzer := newTestController(t, nil, Deps{})
	addRecords(t, analyzer, [2]int{100, 60}, [2]int{68, 64})

	cont, reason := c.ShouldContinue(context.Background(), 2)
	assert.True(t, cont)
	assert.Empty(t, reason)
}

func TestShouldContinueNoImprovement(t *testing.T) {
	c, analyzer := newTestController(t, nil, Deps{})
	addRecords(t, analyzer, [2]int{100, 60}, [2]int{60, 60})

	cont, reason := c.ShouldContinue(context.Background(), 2)
	assert.False(t, cont)
	assert.Equal(t, ExitNoImprovement, reason)
}

func TestShouldContinueImprovementThresholdNotMet(t *testing.T) {
	c, analyzer := newTestController(t, nil, Deps{})
	addRecords(t, analyzer, [2]int{100, 99}, [2]int{99, 98})

	cont, reason := c.ShouldContinue(context.Background(), 2)
	assert.False(t, cont)
	assert.Equal(t, ExitImprovementThresholdNotMet, reason)
}

func TestShouldContinueDiminishingReturnsByMedian(t *testing.T) {
	// One big early win followed by a crawl: the cumulative improvement
	// (22%) passes, but the median of the last three rates does not.
	c, analyzer := newTestController(t, nil, Deps{})
	addRecords(t, analyzer, [2]int{100, 80}, [2]int{80, 79}, [2]int{79, 78})

	cont, reason := c.ShouldContinue(context.Background(), 3)
	assert.False(t, cont)
	assert.Equal(t, ExitDiminishingReturns, reason)
}

func TestShouldContinueConvergenceByStableErrorCount(t *testing.T) {
	// Each iteration fixes errors that the next run rediscovers: the
	// per-iteration rates look healthy but errors_after never moves.
	c, analyzer := newTestController(t, nil, Deps{})
	addRecords(t, analyzer, [2]int{60, 50}, [2]int{60, 50}, [2]int{60, 50})

	cont, reason := c.ShouldContinue(context.Background(), 3)
	assert.False(t, cont)
	assert.Equal(t, ExitConvergenceDetected, reason)
}

func TestShouldContinueConvergenceByAnalyzerState(t *testing.T) {
	// A negative outlier drags the window mean under the converged bar
	// while the median still passes the diminishing-returns check.
	c, analyzer := newTestController(t, nil, Deps{})
	addRecords(t, analyzer, [2]int{200, 208}, [2]int{100, 97}, [2]int{100, 97})

	cont, reason := c.ShouldContinue(context.Background(), 3)
	assert.False(t, cont)
	assert.Equal(t, ExitConvergenceDetected, reason)
}

func TestShouldContinuePlateauWithLowPotential(t *testing.T) {
	c, analyzer := newTestController(t, nil, Deps{})
	addRecords(t, analyzer, [2]int{1000, 970}, [2]int{970, 941}, [2]int{941, 913})

	cont, reason := c.ShouldContinue(context.Background(), 3)
	assert.False(t, cont)
	assert.Equal(t, ExitDiminishingReturns, reason)
}

func TestShouldContinueRefactorOnErrorDensity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProjectLines = 1000
	cfg.ErrorDensityThreshold = 50
	c, analyzer := newTestController(t, cfg, Deps{})
	addRecords(t, analyzer, [2]int{200, 100}, [2]int{100, 60})

	cont, reason := c.ShouldContinue(context.Background(), 2)
	assert.False(t, cont)
	assert.Equal(t, ExitRefactorRecommended, reason)
}

func TestShouldContinueHealthyProgress(t *testing.T) {
	c, analyzer := newTestController(t, nil, Deps{})
	addRecords(t, analyzer, [2]int{100, 70}, [2]int{70, 45}, [2]int{45, 25})

	cont, reason := c.ShouldContinue(context.Background(), 3)
	assert.True(t, cont)
	assert.Empty(t, reason)
}

func TestShouldContinueBudgetEmergencyStop(t *testing.T) {
	cost := &fakeCost{status: BudgetStatus{EmergencyStopNeeded: true, TotalCost: 12, TotalBudget: 10}}
	c, _ := newTestController(t, nil, Deps{Cost: cost})

	// Spend overrides every quality signal, even with no records at all.
	cont, reason := c.ShouldContinue(context.Background(), 1)
	assert.False(t, cont)
	assert.Equal(t, ExitBudgetExceeded, reason)
}

func TestShouldContinueBudgetPredictedExceeded(t *testing.T) {
	cost := &fakeCost{
		status:    BudgetStatus{TotalCost: 5, TotalBudget: 10},
		predicted: 12,
	}
	c, _ := newTestController(t, nil, Deps{Cost: cost})

	cont, reason := c.ShouldContinue(context.Background(), 1)
	assert.False(t, cont)
	assert.Equal(t, ExitBudgetPredictedExceeded, reason)
}

func TestShouldContinueBrokenCostMonitorIsWithinBudget(t *testing.T) {
	cost := &fakeCost{statusErr: assert.AnError}
	c, analyzer := newTestController(t, nil, Deps{Cost: cost})
	addRecords(t, analyzer, [2]int{100, 90})

	cont, reason := c.ShouldContinue(context.Background(), 1)
	assert.True(t, cont)
	assert.Empty(t, reason)
}

func TestCumulativeImprovement(t *testing.T) {
	records := []convergence.IterationRecord{
		{ErrorsBefore: 100, ErrorsAfter: 80},
		{ErrorsBefore: 80, ErrorsAfter: 40},
	}
	assert.InDelta(t, 0.6, cumulativeImprovement(records), 1e-9)

	assert.Zero(t, cumulativeImprovement([]convergence.IterationRecord{
		{ErrorsBefore: 0, ErrorsAfter: 0},
	}))
}

func TestMedianRecentRateIgnoresOutlier(t *testing.T) {
	records := []convergence.IterationRecord{
		{ImprovementPercentage: 0.2},
		{ImprovementPercentage: 0.0125},
		{ImprovementPercentage: 0.0127},
	}
	assert.InDelta(t, 0.0127, medianRecentRate(records), 1e-9)
}

func TestAfterVariance(t *testing.T) {
	records := []convergence.IterationRecord{
		{ErrorsAfter: 50},
		{ErrorsAfter: 50},
		{ErrorsAfter: 50},
	}
	assert.Zero(t, afterVariance(records, 3))

	records = []convergence.IterationRecord{
		{ErrorsAfter: 10},
		{ErrorsAfter: 20},
		{ErrorsAfter: 30},
	}
	assert.InDelta(t, 200.0/3.0, afterVariance(records, 3), 1e-9)
}
