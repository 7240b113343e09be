package force

import (
	"github.com/tosin2013/aider-lint-fixer/pkg/lint"
)

// Action is the admission decision for a single finding. The ordering is
// load-bearing: a higher confidence must never map to a lower action.
type Action int

const (
	// Skip leaves the finding untouched.
	Skip Action = iota
	// ManualReview routes the finding to a human or expert reviewer.
	ManualReview
	// BatchConfirm fixes the finding after a one-time batch confirmation.
	BatchConfirm
	// AutoForce fixes the finding without confirmation.
	AutoForce
)

// String returns the wire name of the action.
func (a Action) String() string {
	switch a {
	case Skip:
		return "skip"
	case ManualReview:
		return "manual_review"
	case BatchConfirm:
		return "batch_confirm"
	case AutoForce:
		return "auto_force"
	default:
		return "unknown"
	}
}

// RiskLevel is the qualitative risk of a batch.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ForceDecision is the engine's verdict for one assessment. Decisions are
// created once per strategy run and never mutated afterwards; the learning
// feedback loop only moves the global auto-force threshold.
type ForceDecision struct {
	Assessment lint.ErrorAssessment `json:"assessment"`
	Action     Action               `json:"action"`

	// Confidence is the blended admission confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// RiskFactors are human-readable caveats, order-preserving.
	RiskFactors []string `json:"risk_factors,omitempty"`

	// PredictedCascades lists up to 5 files likely destabilized by the fix.
	PredictedCascades []string `json:"predicted_cascades,omitempty"`

	// BatchID is set during batch planning for actionable decisions.
	BatchID *int `json:"batch_id,omitempty"`
}

// BatchPlan groups actionable decisions for execution. Batch 0 is always
// the auto-force batch and needs no confirmation.
type BatchPlan struct {
	BatchID          int             `json:"batch_id"`
	Findings         []ForceDecision `json:"findings"`
	Confidence       float64         `json:"confidence"`
	EstimatedMinutes int             `json:"estimated_minutes"`
	RiskLevel        RiskLevel       `json:"risk_level"`
	DependsOn        []int           `json:"depends_on,omitempty"`
}

// Files returns the distinct file paths touched by the batch, in first-seen
// order.
func (b *BatchPlan) Files() []string {
	seen := make(map[string]bool)
	var files []string
	for _, d := range b.Findings {
		path := d.Assessment.Finding.FilePath
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}
	return files
}

// StrategySummary is the human-facing roll-up of a strategy run.
type StrategySummary struct {
	TotalFindings    int            `json:"total_findings"`
	IsChaotic        bool           `json:"is_chaotic"`
	ActionBreakdown  map[string]int `json:"action_breakdown"`
	EstimatedMinutes int            `json:"estimated_minutes"`
	Recommendations  []string       `json:"recommendations"`
}

// Strategy is the full output of one engine run over a set of assessments.
type Strategy struct {
	Decisions []ForceDecision `json:"decisions"`
	Batches   []BatchPlan     `json:"batches"`
	Summary   StrategySummary `json:"summary"`
}

// Outcome reports the real result of executing one decision. Outcomes feed
// the adaptive threshold controller.
type Outcome struct {
	Decision            ForceDecision
	Success             bool
	NewErrorsIntroduced int
}

// Per-item execution time estimates, in minutes.
const (
	minutesAutoForce    = 2
	minutesBatchConfirm = 3
	minutesManualReview = 10
)
