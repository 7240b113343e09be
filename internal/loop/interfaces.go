package loop

import (
	"context"

	"github.com/tosin2013/aider-lint-fixer/internal/force"
	"github.com/tosin2013/aider-lint-fixer/pkg/lint"
)

// Assessor enriches raw findings with categories, fixability, priority,
// and effort. Implementations live outside this module.
type Assessor interface {
	Assess(ctx context.Context, findings []lint.Finding) ([]lint.ErrorAssessment, error)
}

// FixResult reports the outcome of one fix call for one file.
type FixResult struct {
	// Fixed counts the findings the executor resolved.
	Fixed int

	// FilesChanged indicates whether the executor edited anything.
	FilesChanged bool

	// Cost and TokensUsed are the paid-call accounting for this fix.
	Cost       float64
	TokensUsed int
}

// FixExecutor performs the actual edits, typically by driving an external
// AI coding assistant as a subprocess. All findings for one file are
// submitted as a single call so the executor never races itself on a file.
type FixExecutor interface {
	FixFile(ctx context.Context, file string, findings []lint.Finding) (FixResult, error)
}

// Confirmer approves or declines a confirmation batch before it runs.
// A nil Confirmer approves everything (headless runs).
type Confirmer interface {
	ConfirmBatch(ctx context.Context, batch force.BatchPlan) (bool, error)
}

// BudgetStatus is the cost monitor's view of the current spend.
type BudgetStatus struct {
	EmergencyStopNeeded bool
	TotalCost           float64
	TotalBudget         float64
}

// CostMonitor tracks spend against budget. Implementations live outside
// this module.
type CostMonitor interface {
	BudgetStatus(ctx context.Context) (BudgetStatus, error)
	PredictTotalCost(ctx context.Context) (float64, error)
}
