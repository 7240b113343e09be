package loop

import (
	"context"
	"fmt"
	"sort"

	"github.com/tosin2013/aider-lint-fixer/internal/force"
)

// GenerateRecommendation maps a stop reason to a concrete next step. The
// table is deterministic; the priority files and dangerous patterns come
// from the last computed strategy.
func (c *Controller) GenerateRecommendation(ctx context.Context, reason ExitReason) Recommendation {
	rec := baseRecommendation(reason)
	rec.PriorityFiles = c.priorityFiles()
	rec.DangerousPatterns = c.dangerousPatterns()

	if assessment := c.analyzer.Analyze(ctx); len(assessment.OptimizationSuggestions) > 0 {
		rec.Suggestions = append(rec.Suggestions, assessment.OptimizationSuggestions...)
	}
	return rec
}

func baseRecommendation(reason ExitReason) Recommendation {
	switch reason {
	case ExitConvergenceDetected:
		return Recommendation{
			Action:          ActionManualReview,
			Reason:          "the automated loop converged; remaining findings resist automated fixing",
			Suggestions:     []string{"review the remaining findings by hand", "suppress rules that do not apply to this project"},
			EstimatedEffort: "low",
		}
	case ExitDiminishingReturns, ExitImprovementThresholdNotMet:
		return Recommendation{
			Action:          ActionManualReview,
			Reason:          "per-iteration improvement dropped below the configured floor",
			Suggestions:     []string{"fix the highest-priority files manually", "re-run after addressing structural issues"},
			EstimatedEffort: "medium",
		}
	case ExitNoImprovement:
		return Recommendation{
			Action:          ActionManualReview,
			Reason:          "the last iteration removed no errors",
			Suggestions:     []string{"check that the fix executor can edit the affected files", "escalate stuck findings to manual review"},
			EstimatedEffort: "medium",
		}
	case ExitErrorIncrease:
		return Recommendation{
			Action:          ActionArchitectMode,
			Reason:          "fixes are introducing more errors than they remove",
			Suggestions:     []string{"roll back the most recent batch of edits", "re-plan the fix with broader file context before retrying"},
			EstimatedEffort: "high",
		}
	case ExitRefactorRecommended:
		return Recommendation{
			Action:          ActionRefactor,
			Reason:          "error density or fix yield indicates structural problems lint fixes cannot solve",
			Suggestions:     []string{"split the densest files before resuming lint fixes", "add tests around the hotspot files first"},
			EstimatedEffort: "high",
		}
	case ExitBudgetExceeded:
		return Recommendation{
			Action:          ActionBudgetReview,
			Reason:          "spend reached the emergency stop limit",
			Suggestions:     []string{"raise the session budget or narrow the file set", "prefer auto-force batches, which are the cheapest per finding"},
			EstimatedEffort: "low",
		}
	case ExitBudgetPredictedExceeded:
		return Recommendation{
			Action:          ActionBudgetOptimization,
			Reason:          "the projected total cost exceeds the configured budget",
			Suggestions:     []string{"cap iterations below the projection crossover", "exclude low-priority rule categories from fixing"},
			EstimatedEffort: "low",
		}
	case ExitMaxIterations:
		return Recommendation{
			Action:          ActionContinue,
			Reason:          "the iteration cap was reached while progress was still being made",
			Suggestions:     []string{"re-run with a higher iteration cap to continue"},
			EstimatedEffort: "low",
		}
	case ExitUserRequested:
		return Recommendation{
			Action:          ActionContinue,
			Reason:          "the run was cancelled; partial progress has been recorded",
			Suggestions:     []string{"re-run to resume from the current project state"},
			EstimatedEffort: "low",
		}
	default:
		return Recommendation{
			Action: ActionManualReview,
			Reason: fmt.Sprintf("loop stopped (%s)", reason),
		}
	}
}

// priorityFiles lists the files whose findings were routed to manual
// review, worst first by finding count.
func (c *Controller) priorityFiles() []string {
	if c.lastStrategy == nil {
		return nil
	}

	counts := make(map[string]int)
	for _, d := range c.lastStrategy.Decisions {
		if d.Action == force.ManualReview || d.Action == force.Skip {
			counts[d.Assessment.Finding.FilePath]++
		}
	}
	files := make([]string, 0, len(counts))
	for f := range counts {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool {
		if counts[files[i]] != counts[files[j]] {
			return counts[files[i]] > counts[files[j]]
		}
		return files[i] < files[j]
	})
	if len(files) > 10 {
		files = files[:10]
	}
	return files
}

// dangerousPatterns lists the distinct rules behind decisions that carried
// risk factors, sorted for stable output.
func (c *Controller) dangerousPatterns() []string {
	if c.lastStrategy == nil {
		return nil
	}

	seen := make(map[string]bool)
	for _, d := range c.lastStrategy.Decisions {
		if len(d.RiskFactors) > 0 {
			seen[d.Assessment.Finding.RuleID] = true
		}
	}
	patterns := make([]string, 0, len(seen))
	for p := range seen {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)
	return patterns
}
