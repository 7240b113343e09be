package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tosin2013/aider-lint-fixer/internal/force"
	"github.com/tosin2013/aider-lint-fixer/internal/loop"
	"github.com/tosin2013/aider-lint-fixer/pkg/lint"
)

// commandFixer drives an external fix executor (typically aider) as a
// subprocess, one invocation per file. The findings are passed as a
// message describing what to fix.
type commandFixer struct {
	dir         string
	argv        []string
	costPerCall float64
	tracker     *budgetTracker
	logger      *zap.Logger
}

func newCommandFixer(dir string, argv []string, costPerCall float64, tracker *budgetTracker, logger *zap.Logger) *commandFixer {
	return &commandFixer{
		dir:         dir,
		argv:        argv,
		costPerCall: costPerCall,
		tracker:     tracker,
		logger:      logger,
	}
}

// FixFile invokes the executor for one file. A zero exit counts every
// submitted finding as fixed; the executor is trusted to decline edits it
// cannot make by exiting non-zero.
func (f *commandFixer) FixFile(ctx context.Context, file string, findings []lint.Finding) (loop.FixResult, error) {
	var msg strings.Builder
	fmt.Fprintf(&msg, "Fix the following lint findings in %s:\n", file)
	for _, finding := range findings {
		fmt.Fprintf(&msg, "- line %d: %s (%s)\n", finding.Line, finding.Message, finding.RuleID)
	}

	args := append(append([]string{}, f.argv[1:]...), "--message", msg.String(), file)
	cmd := exec.CommandContext(ctx, f.argv[0], args...)
	cmd.Dir = f.dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return loop.FixResult{}, ctx.Err()
		}
		return loop.FixResult{}, fmt.Errorf("executor failed: %w (stderr: %s)", err, stderr.String())
	}

	f.tracker.add(f.costPerCall)
	return loop.FixResult{
		Fixed:        len(findings),
		FilesChanged: true,
		Cost:         f.costPerCall,
	}, nil
}

// budgetTracker accounts executor spend against a fixed session budget.
// A zero budget disables enforcement.
type budgetTracker struct {
	mu         sync.Mutex
	total      float64
	spent      float64
	checkpoint float64
}

func newBudgetTracker(total float64) *budgetTracker {
	return &budgetTracker{total: total}
}

func (b *budgetTracker) add(cost float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spent += cost
}

// BudgetStatus reports spend; the emergency stop fires once spend reaches
// the budget.
func (b *budgetTracker) BudgetStatus(ctx context.Context) (loop.BudgetStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return loop.BudgetStatus{
		EmergencyStopNeeded: b.total > 0 && b.spent >= b.total,
		TotalCost:           b.spent,
		TotalBudget:         b.total,
	}, nil
}

// PredictTotalCost extrapolates one more period of the spend observed
// since the previous prediction.
func (b *budgetTracker) PredictTotalCost(ctx context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delta := b.spent - b.checkpoint
	b.checkpoint = b.spent
	return b.spent + delta, nil
}

// promptConfirmer asks on the terminal before a confirmation batch runs.
type promptConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func newPromptConfirmer(in io.Reader, out io.Writer) *promptConfirmer {
	return &promptConfirmer{in: bufio.NewReader(in), out: out}
}

func (p *promptConfirmer) ConfirmBatch(ctx context.Context, batch force.BatchPlan) (bool, error) {
	fmt.Fprintf(p.out, "batch %d: %d findings across %d files, confidence %.2f, risk %s, ~%d min. proceed? [y/N] ",
		batch.BatchID, len(batch.Findings), len(batch.Files()), batch.Confidence, batch.RiskLevel, batch.EstimatedMinutes)

	answer, err := p.in.ReadString('\n')
	if err != nil && answer == "" {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}
