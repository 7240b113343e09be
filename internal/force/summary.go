package force

import (
	"fmt"
	"sort"

	"github.com/tosin2013/aider-lint-fixer/internal/depgraph"
)

// summarize rolls the run up into counts, a time estimate, and ordered
// human-actionable recommendations.
func (e *Engine) summarize(decisions []ForceDecision, batches []BatchPlan, graph *depgraph.Graph) StrategySummary {
	summary := StrategySummary{
		TotalFindings: len(decisions),
		IsChaotic:     len(decisions) >= e.config.ChaosThreshold,
		ActionBreakdown: map[string]int{
			Skip.String():         0,
			ManualReview.String(): 0,
			BatchConfirm.String(): 0,
			AutoForce.String():    0,
		},
	}

	dangerous := 0
	for i := range decisions {
		summary.ActionBreakdown[decisions[i].Action.String()]++
		if isDangerousRule(decisions[i].Assessment.Finding.RuleID) {
			dangerous++
		}
		switch decisions[i].Action {
		case AutoForce:
			summary.EstimatedMinutes += minutesAutoForce
		case BatchConfirm:
			summary.EstimatedMinutes += minutesBatchConfirm
		case ManualReview:
			summary.EstimatedMinutes += minutesManualReview
		}
	}

	if summary.IsChaotic {
		summary.Recommendations = append(summary.Recommendations, fmt.Sprintf(
			"chaotic codebase: %d findings exceed the %d-finding threshold; batches are smaller and confirmation is stricter",
			len(decisions), e.config.ChaosThreshold))
	}

	autoFixable := summary.ActionBreakdown[AutoForce.String()]
	summary.Recommendations = append(summary.Recommendations, fmt.Sprintf(
		"%d findings auto-fixable, %d dangerous", autoFixable, dangerous))

	summary.Recommendations = append(summary.Recommendations, e.graphWarnings(decisions, graph)...)

	for i := range decisions {
		if len(decisions[i].PredictedCascades) > 2 {
			summary.Recommendations = append(summary.Recommendations, fmt.Sprintf(
				"fixing %s:%d (%s) may cascade into %d dependent files",
				decisions[i].Assessment.Finding.FilePath,
				decisions[i].Assessment.Finding.Line,
				decisions[i].Assessment.Finding.RuleID,
				len(decisions[i].PredictedCascades)))
		}
	}

	return summary
}

// graphWarnings flags structurally risky files: high total degree and
// import-heavy fan-out.
func (e *Engine) graphWarnings(decisions []ForceDecision, graph *depgraph.Graph) []string {
	if graph == nil {
		return nil
	}

	seen := make(map[string]bool)
	var files []string
	for i := range decisions {
		path := decisions[i].Assessment.Finding.FilePath
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}
	sort.Strings(files)

	var warnings []string
	for _, f := range files {
		if degree := graph.Degree(f); degree > 5 {
			warnings = append(warnings, fmt.Sprintf(
				"%s is highly connected (%d dependency edges); fixes there ripple widely", f, degree))
		}
	}
	for _, f := range files {
		if imports := graph.OutgoingImports(f); imports > 10 {
			warnings = append(warnings, fmt.Sprintf(
				"%s is import-heavy (%d outgoing imports); verify imports after fixing", f, imports))
		}
	}
	return warnings
}
