package loop

// ExitReason is the machine-readable cause of a loop stop. Stop conditions
// are returned as values from ShouldContinue, never raised.
type ExitReason string

const (
	ExitMaxIterations              ExitReason = "max_iterations"
	ExitImprovementThresholdNotMet ExitReason = "improvement_threshold_not_met"
	ExitNoImprovement              ExitReason = "no_improvement"
	ExitDiminishingReturns         ExitReason = "diminishing_returns"
	ExitConvergenceDetected        ExitReason = "convergence_detected"
	ExitErrorIncrease              ExitReason = "error_increase"
	ExitUserRequested              ExitReason = "user_requested"
	ExitRefactorRecommended        ExitReason = "refactor_recommended"
	ExitBudgetExceeded             ExitReason = "budget_exceeded"
	ExitBudgetPredictedExceeded    ExitReason = "budget_predicted_exceeded"
)

// RecommendedAction is the coarse next step suggested to the caller.
type RecommendedAction string

const (
	ActionContinue           RecommendedAction = "continue"
	ActionManualReview       RecommendedAction = "manual_review"
	ActionRefactor           RecommendedAction = "refactor"
	ActionArchitectMode      RecommendedAction = "architect_mode"
	ActionBudgetReview       RecommendedAction = "budget_review"
	ActionBudgetOptimization RecommendedAction = "budget_optimization"
)

// Recommendation is the human-actionable summary emitted with every stop.
type Recommendation struct {
	Action            RecommendedAction `json:"action"`
	Reason            string            `json:"reason"`
	Suggestions       []string          `json:"suggestions,omitempty"`
	EstimatedEffort   string            `json:"estimated_effort,omitempty"`
	PriorityFiles     []string          `json:"priority_files,omitempty"`
	DangerousPatterns []string          `json:"dangerous_patterns,omitempty"`
}

// Report is the final result of a loop run.
type Report struct {
	SessionID      string         `json:"session_id"`
	Iterations     int            `json:"iterations"`
	InitialErrors  int            `json:"initial_errors"`
	FinalErrors    int            `json:"final_errors"`
	ExitReason     ExitReason     `json:"exit_reason"`
	Recommendation Recommendation `json:"recommendation"`
}
