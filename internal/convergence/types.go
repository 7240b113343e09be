package convergence

import "github.com/tosin2013/aider-lint-fixer/internal/force"

// State classifies the multi-iteration improvement trend.
type State string

const (
	StateImproving   State = "improving"
	StatePlateauing  State = "plateauing"
	StateConverged   State = "converged"
	StateDiverging   State = "diverging"
	StateOscillating State = "oscillating"
)

// IterationRecord captures the outcome of one fix iteration. Records are
// append-only and owned by their session; the field names are part of the
// persisted format and must stay stable.
type IterationRecord struct {
	Iteration             int     `json:"iteration"`
	ErrorsBefore          int     `json:"errors_before"`
	ErrorsAfter           int     `json:"errors_after"`
	ErrorsFixed           int     `json:"errors_fixed"`
	ErrorsAttempted       int     `json:"errors_attempted"`
	SuccessRate           float64 `json:"success_rate"`
	TimeTakenSeconds      float64 `json:"time_taken"`
	NewErrorsIntroduced   int     `json:"new_errors_introduced"`
	ImprovementPercentage float64 `json:"improvement_percentage"`
	MLAccuracy            float64 `json:"ml_accuracy"`
	Cost                  float64 `json:"cost"`
	TokensUsed            int     `json:"tokens_used"`
}

// Assessment is the analyzer's on-demand verdict over the current record
// history. It is recomputed, never stored.
type Assessment struct {
	State                        State    `json:"state"`
	Confidence                   float64  `json:"confidence"`
	PredictedFinalErrors         int      `json:"predicted_final_errors"`
	PredictedIterationsRemaining int      `json:"predicted_iterations_remaining"`
	ImprovementPotential         float64  `json:"improvement_potential"`
	Recommendation               string   `json:"recommendation"`
	RiskFactors                  []string `json:"risk_factors,omitempty"`
	OptimizationSuggestions      []string `json:"optimization_suggestions,omitempty"`
}

// HistoricalSession is a completed session appended to the durable corpus.
// Once appended it is immutable. Records serialize under "patterns" for
// compatibility with the historical store format.
type HistoricalSession struct {
	SessionID              string             `json:"session_id"`
	Records                []IterationRecord  `json:"patterns"`
	FinalState             State              `json:"final_state"`
	TotalIterations        int                `json:"total_iterations"`
	FinalImprovement       float64            `json:"final_improvement"`
	ProjectCharacteristics map[string]float64 `json:"project_characteristics,omitempty"`
}

// Predictors bundles the two optional models the analyzer consults. The
// regressor predicts next-iteration improvement; the classifier predicts
// eventual convergence. Their outputs are intentionally never reconciled:
// the regressor drives effort prediction and the classifier only informs
// risk factors.
type Predictors struct {
	Regressor  force.Predictor
	Classifier force.Predictor
}
