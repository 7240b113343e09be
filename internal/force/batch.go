package force

import (
	"sort"

	"github.com/tosin2013/aider-lint-fixer/internal/depgraph"
)

// AutoBatchID identifies the batch of AutoForce decisions. It is the
// only batch the executor runs without confirmation, so confirm batches
// always start at AutoBatchID+1 even when no auto-force batch exists.
const AutoBatchID = 0

// planBatches groups actionable decisions for execution. All AutoForce
// decisions form the dedicated batch 0; BatchConfirm decisions are
// clustered into K groups by confidence, risk-factor count, priority, and
// effort. Chaotic codebases (total findings at or above the chaos
// threshold) get smaller, more numerous batches.
//
// Batch IDs are written back into the decisions slice.
func (e *Engine) planBatches(decisions []ForceDecision, totalFindings int, graph *depgraph.Graph) []BatchPlan {
	var autoIdx, confirmIdx []int
	for i := range decisions {
		switch decisions[i].Action {
		case AutoForce:
			autoIdx = append(autoIdx, i)
		case BatchConfirm:
			confirmIdx = append(confirmIdx, i)
		}
	}

	var batches []BatchPlan
	nextID := AutoBatchID + 1

	if len(autoIdx) > 0 {
		batches = append(batches, e.buildBatch(decisions, autoIdx, AutoBatchID))
	}

	if len(confirmIdx) > 0 {
		k := e.groupCount(len(confirmIdx), totalFindings)

		// Deterministic clustering: order by the clustering key, then cut
		// into K contiguous groups of near-equal size.
		sort.SliceStable(confirmIdx, func(a, b int) bool {
			da, db := &decisions[confirmIdx[a]], &decisions[confirmIdx[b]]
			if da.Confidence != db.Confidence {
				return da.Confidence > db.Confidence
			}
			if len(da.RiskFactors) != len(db.RiskFactors) {
				return len(da.RiskFactors) < len(db.RiskFactors)
			}
			if da.Assessment.Priority != db.Assessment.Priority {
				return da.Assessment.Priority > db.Assessment.Priority
			}
			return da.Assessment.EstimatedEffort < db.Assessment.EstimatedEffort
		})

		for _, group := range splitGroups(confirmIdx, k) {
			batches = append(batches, e.buildBatch(decisions, group, nextID))
			nextID++
		}
	}

	attachDependencies(batches, graph)
	return batches
}

// groupCount returns K for the confirm-batch clustering.
func (e *Engine) groupCount(confirmCount, totalFindings int) int {
	k := min(confirmCount/10+1, 4)
	if totalFindings >= e.config.ChaosThreshold {
		k = min(confirmCount/15+1, 8)
	}
	if k < 1 {
		k = 1
	}
	return k
}

// splitGroups cuts indexes into k contiguous groups of near-equal size.
func splitGroups(indexes []int, k int) [][]int {
	if k > len(indexes) {
		k = len(indexes)
	}
	groups := make([][]int, 0, k)
	size := len(indexes) / k
	rem := len(indexes) % k
	start := 0
	for i := 0; i < k; i++ {
		end := start + size
		if i < rem {
			end++
		}
		groups = append(groups, indexes[start:end])
		start = end
	}
	return groups
}

// buildBatch assembles one batch, writes the id into its decisions, and
// derives confidence, risk level, and the execution time estimate.
func (e *Engine) buildBatch(decisions []ForceDecision, idx []int, id int) BatchPlan {
	batch := BatchPlan{BatchID: id}

	confidenceSum := 0.0
	riskFactorTotal := 0
	perItem := minutesBatchConfirm
	for _, i := range idx {
		batchID := id
		decisions[i].BatchID = &batchID
		batch.Findings = append(batch.Findings, decisions[i])
		confidenceSum += decisions[i].Confidence
		riskFactorTotal += len(decisions[i].RiskFactors)
		if decisions[i].Action == AutoForce {
			perItem = minutesAutoForce
		}
	}

	batch.Confidence = confidenceSum / float64(len(idx))
	batch.EstimatedMinutes = perItem * len(idx)

	switch {
	case batch.Confidence > 0.8 && riskFactorTotal < 5:
		batch.RiskLevel = RiskLow
	case batch.Confidence > 0.6 && riskFactorTotal < 10:
		batch.RiskLevel = RiskMedium
	default:
		batch.RiskLevel = RiskHigh
	}

	return batch
}

// attachDependencies marks a batch as dependent on any earlier batch whose
// files share a dependency edge with its own; the executor serializes such
// pairs.
func attachDependencies(batches []BatchPlan, graph *depgraph.Graph) {
	if graph == nil {
		return
	}
	for i := range batches {
		files := batches[i].Files()
		for j := 0; j < i; j++ {
			if graph.Connected(files, batches[j].Files()) {
				batches[i].DependsOn = append(batches[i].DependsOn, batches[j].BatchID)
			}
		}
	}
}
