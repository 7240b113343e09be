package loop

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/tosin2013/aider-lint-fixer/internal/convergence"
)

// ShouldContinue evaluates the stop conditions after the given iteration
// has been recorded. Checks run in a fixed order; the first one that fires
// wins. The decision is pure apart from the budget probes.
func (c *Controller) ShouldContinue(ctx context.Context, iteration int) (bool, ExitReason) {
	// Budget checks come first: spend is the one condition that must stop
	// the loop even when every quality signal says to continue.
	if reason, stop := c.checkBudget(ctx); stop {
		return false, reason
	}

	if iteration >= c.config.MaxIterations {
		return false, ExitMaxIterations
	}

	records := c.analyzer.Records()
	if len(records) < 2 {
		// One record carries no trend; the remaining checks all compare
		// iterations against each other.
		return true, ""
	}

	last := records[len(records)-1]
	prev := records[len(records)-2]

	if last.ErrorsAfter > prev.ErrorsAfter+c.config.MaxErrorIncreaseTolerance {
		return false, ExitErrorIncrease
	}

	if last.ErrorsBefore-last.ErrorsAfter <= 0 {
		return false, ExitNoImprovement
	}

	if cumulativeImprovement(records) < c.config.ImprovementThreshold {
		return false, ExitImprovementThresholdNotMet
	}

	if len(records) >= 3 {
		if medianRecentRate(records) < c.config.DiminishingReturnsThreshold {
			return false, ExitDiminishingReturns
		}
	}

	assessment := c.analyzer.Analyze(ctx)
	switch assessment.State {
	case convergence.StateConverged:
		return false, ExitConvergenceDetected
	case convergence.StatePlateauing:
		if assessment.ImprovementPotential < 0.2 {
			return false, ExitDiminishingReturns
		}
	case convergence.StateDiverging:
		return false, ExitErrorIncrease
	}

	if len(records) >= c.config.ConvergenceWindow {
		if afterVariance(records, c.config.ConvergenceWindow) <= 2 {
			c.logger.Info("error count is stable across the window",
				zap.Int("window", c.config.ConvergenceWindow),
				zap.Int("errors_after", last.ErrorsAfter))
			return false, ExitConvergenceDetected
		}
	}

	if c.refactorIndicated(records) {
		return false, ExitRefactorRecommended
	}

	return true, ""
}

// checkBudget probes the cost monitor. Monitor errors are logged and
// treated as "within budget" so a broken monitor cannot stall a run.
func (c *Controller) checkBudget(ctx context.Context) (ExitReason, bool) {
	if c.deps.Cost == nil {
		return "", false
	}

	status, err := c.deps.Cost.BudgetStatus(ctx)
	if err != nil {
		c.logger.Warn("budget status unavailable", zap.Error(err))
		return "", false
	}
	if status.EmergencyStopNeeded {
		return ExitBudgetExceeded, true
	}
	if status.TotalBudget > 0 {
		predicted, err := c.deps.Cost.PredictTotalCost(ctx)
		if err != nil {
			c.logger.Warn("cost prediction unavailable", zap.Error(err))
			return "", false
		}
		if predicted > status.TotalBudget {
			return ExitBudgetPredictedExceeded, true
		}
	}
	return "", false
}

// cumulativeImprovement is the fraction of the session's starting errors
// removed so far.
func cumulativeImprovement(records []convergence.IterationRecord) float64 {
	first := records[0]
	last := records[len(records)-1]
	if first.ErrorsBefore == 0 {
		return 0
	}
	return float64(first.ErrorsBefore-last.ErrorsAfter) / float64(first.ErrorsBefore)
}

// medianRecentRate takes the median per-iteration improvement rate over
// the last three records. The median ignores a single large early win, so
// a burst followed by a crawl still reads as diminishing.
func medianRecentRate(records []convergence.IterationRecord) float64 {
	recent := records[len(records)-3:]
	rates := make([]float64, len(recent))
	for i, r := range recent {
		rates[i] = r.ImprovementPercentage
	}
	sort.Float64s(rates)
	return rates[len(rates)/2]
}

// afterVariance is the variance of errors_after over the last window
// records, in squared errors.
func afterVariance(records []convergence.IterationRecord, window int) float64 {
	recent := records[len(records)-window:]

	sum := 0.0
	for _, r := range recent {
		sum += float64(r.ErrorsAfter)
	}
	m := sum / float64(len(recent))

	v := 0.0
	for _, r := range recent {
		d := float64(r.ErrorsAfter) - m
		v += d * d
	}
	return v / float64(len(recent))
}

// refactorIndicated flags projects whose error density or fix yield says
// the code needs restructuring rather than more lint passes.
func (c *Controller) refactorIndicated(records []convergence.IterationRecord) bool {
	last := records[len(records)-1]

	if c.config.ErrorDensityThreshold > 0 && c.config.ProjectLines > 0 {
		density := float64(last.ErrorsAfter) / (float64(c.config.ProjectLines) / 1000.0)
		if density > c.config.ErrorDensityThreshold {
			return true
		}
	}

	if len(records) >= 5 {
		totalFixed := 0
		for _, r := range records[len(records)-5:] {
			totalFixed += r.ErrorsBefore - r.ErrorsAfter
		}
		if float64(totalFixed)/5.0 < 3 {
			return true
		}
	}
	return false
}
