package loop

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tosin2013/aider-lint-fixer/internal/depgraph"
	"github.com/tosin2013/aider-lint-fixer/internal/force"
	"github.com/tosin2013/aider-lint-fixer/pkg/lint"
)

// batchOutcome aggregates the execution result of one batch.
type batchOutcome struct {
	batchID   int
	attempted int
	fixed     int
	cost      float64
	tokens    int
	skipped   bool
	decisions []decisionOutcome
}

// decisionOutcome pairs a decision with whether its file-level fix call
// succeeded, for the engine's adaptive feedback.
type decisionOutcome struct {
	decision force.ForceDecision
	success  bool
}

// executor dispatches batches to the fix executor. Batches whose files
// share no dependency edge run concurrently on a bounded pool; batches
// touching the same connected component serialize on a per-component
// mutex. All findings for one file go out as a single call.
type executor struct {
	fixer     FixExecutor
	confirmer Confirmer
	cost      CostMonitor
	limiter   *rate.Limiter
	logger    *zap.Logger

	workers     int
	callTimeout time.Duration

	mu             sync.Mutex
	componentLocks map[string]*sync.Mutex
}

func newExecutor(fixer FixExecutor, confirmer Confirmer, cost CostMonitor, limiter *rate.Limiter, workers int, callTimeout time.Duration, logger *zap.Logger) *executor {
	if workers <= 0 {
		workers = 4
	}
	if callTimeout <= 0 {
		callTimeout = 5 * time.Minute
	}
	return &executor{
		fixer:          fixer,
		confirmer:      confirmer,
		cost:           cost,
		limiter:        limiter,
		logger:         logger,
		workers:        workers,
		callTimeout:    callTimeout,
		componentLocks: make(map[string]*sync.Mutex),
	}
}

// run executes all batches of one iteration and returns their outcomes.
// Cancellation between batches stops dispatching; batches already running
// finish and their outcomes are kept.
func (ex *executor) run(ctx context.Context, batches []force.BatchPlan, graph *depgraph.Graph) ([]batchOutcome, error) {
	outcomes := make([]batchOutcome, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ex.workers)

	for i := range batches {
		if err := ctx.Err(); err != nil {
			break
		}

		batch := batches[i]
		outcome := &outcomes[i]
		outcome.batchID = batch.BatchID

		approved, err := ex.confirm(ctx, batch)
		if err != nil {
			return outcomes[:i], err
		}
		if !approved {
			outcome.skipped = true
			ex.logger.Info("batch declined, skipping",
				zap.Int("batch_id", batch.BatchID),
				zap.Int("findings", len(batch.Findings)))
			continue
		}

		// Paid external calls are re-checked against budget per batch.
		if err := ex.checkBudget(ctx); err != nil {
			return outcomes[:i], err
		}

		g.Go(func() error {
			ex.runBatch(gctx, batch, graph, outcome)
			return nil
		})
	}

	err := g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return outcomes, ctxErr
	}
	return outcomes, err
}

// confirm asks the confirmer for every batch except the reserved
// auto-force batch.
func (ex *executor) confirm(ctx context.Context, batch force.BatchPlan) (bool, error) {
	if batch.BatchID == force.AutoBatchID || ex.confirmer == nil {
		return true, nil
	}
	return ex.confirmer.ConfirmBatch(ctx, batch)
}

func (ex *executor) checkBudget(ctx context.Context) error {
	if ex.cost == nil {
		return nil
	}
	status, err := ex.cost.BudgetStatus(ctx)
	if err != nil {
		// A broken monitor must not block fixing; it is logged and the
		// iteration-level check will catch real overruns.
		ex.logger.Warn("budget check failed before batch dispatch", zap.Error(err))
		return nil
	}
	if status.EmergencyStopNeeded {
		return errBudgetStop
	}
	return nil
}

var errBudgetStop = errors.New("budget emergency stop")

// runBatch executes one batch file by file, holding the connected-component
// locks for every component the batch touches.
func (ex *executor) runBatch(ctx context.Context, batch force.BatchPlan, graph *depgraph.Graph, outcome *batchOutcome) {
	unlock := ex.lockComponents(batch.Files(), graph)
	defer unlock()

	byFile := make(map[string][]force.ForceDecision)
	for _, d := range batch.Findings {
		path := d.Assessment.Finding.FilePath
		byFile[path] = append(byFile[path], d)
	}

	files := make([]string, 0, len(byFile))
	for f := range byFile {
		files = append(files, f)
	}
	sort.Strings(files)

	for _, file := range files {
		decisions := byFile[file]
		findings := make([]lint.Finding, len(decisions))
		for i, d := range decisions {
			findings[i] = d.Assessment.Finding
		}

		result, err := ex.fixFile(ctx, file, findings)
		outcome.attempted += len(findings)
		if err != nil {
			// Timeouts and executor failures count as attempted without
			// fixed; they never abort the iteration.
			ex.logger.Warn("fix call failed",
				zap.String("file", file),
				zap.Int("findings", len(findings)),
				zap.Error(err))
			for _, d := range decisions {
				outcome.decisions = append(outcome.decisions, decisionOutcome{decision: d})
			}
			continue
		}

		outcome.fixed += result.Fixed
		outcome.cost += result.Cost
		outcome.tokens += result.TokensUsed
		for _, d := range decisions {
			outcome.decisions = append(outcome.decisions, decisionOutcome{
				decision: d,
				success:  result.Fixed > 0,
			})
		}
	}
}

// fixFile applies the rate limiter and per-call timeout around one
// executor invocation.
func (ex *executor) fixFile(ctx context.Context, file string, findings []lint.Finding) (FixResult, error) {
	if ex.limiter != nil {
		if err := ex.limiter.Wait(ctx); err != nil {
			return FixResult{}, err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, ex.callTimeout)
	defer cancel()
	return ex.fixer.FixFile(callCtx, file, findings)
}

// lockComponents acquires the mutex of every dependency component the
// batch touches, in sorted order so concurrent batches cannot deadlock.
func (ex *executor) lockComponents(files []string, graph *depgraph.Graph) func() {
	if graph == nil {
		return func() {}
	}

	componentSet := make(map[string]bool)
	for _, f := range files {
		componentSet[graph.ConnectedComponent(f)] = true
	}
	components := make([]string, 0, len(componentSet))
	for c := range componentSet {
		components = append(components, c)
	}
	sort.Strings(components)

	locks := make([]*sync.Mutex, 0, len(components))
	for _, c := range components {
		locks = append(locks, ex.componentLock(c))
	}
	for _, l := range locks {
		l.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

func (ex *executor) componentLock(component string) *sync.Mutex {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if l, ok := ex.componentLocks[component]; ok {
		return l
	}
	l := &sync.Mutex{}
	ex.componentLocks[component] = l
	return l
}
