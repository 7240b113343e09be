// Package convergence classifies multi-iteration fix trends, predicts
// remaining effort, and persists finished sessions to a bounded durable
// corpus that seeds future predictions.
package convergence

import (
	"context"
	"fmt"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tosin2013/aider-lint-fixer/internal/force"
)

const instrumentationName = "github.com/tosin2013/aider-lint-fixer/internal/convergence"

// Trend thresholds over the last analysis window, expressed as raw
// fractions of the improvement rate.
const (
	analysisWindow      = 3
	convergedMeanRate   = 0.02
	plateauMeanRate     = 0.05
	plateauVariance     = 0.01
	oscillatingVariance = 0.10
	minRecordsToPredict = 5
)

// Analyzer ingests iteration records for one session and classifies the
// trend on demand. Analyze is a pure function of the record history.
type Analyzer struct {
	store             *Store
	predictors        Predictors
	trained           bool
	classifierTrained bool
	logger            *zap.Logger

	records    []IterationRecord
	complexity []float64

	tracer       trace.Tracer
	meter        metric.Meter
	stateCounter metric.Int64Counter
}

// NewAnalyzer creates an analyzer. The store may be nil when persistence
// is not wanted (tests); predictors may be zero-valued to force the
// trend-formula fallback.
func NewAnalyzer(store *Store, predictors Predictors, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Analyzer{
		store:      store,
		predictors: predictors,
		logger:     logger,
		tracer:     otel.Tracer(instrumentationName),
		meter:      otel.Meter(instrumentationName),
	}

	var err error
	a.stateCounter, err = a.meter.Int64Counter(
		"lintfix.convergence.analyses_total",
		metric.WithDescription("Convergence analyses by resulting state"),
		metric.WithUnit("{analysis}"),
	)
	if err != nil {
		logger.Warn("failed to create analysis counter", zap.Error(err))
	}

	return a
}

// AddRecord appends one iteration outcome, deriving its improvement rate
// and an internal complexity score. Iterations must be strictly
// increasing within a session.
func (a *Analyzer) AddRecord(record IterationRecord) error {
	if n := len(a.records); n > 0 && record.Iteration <= a.records[n-1].Iteration {
		return fmt.Errorf("iteration %d is not after iteration %d",
			record.Iteration, a.records[len(a.records)-1].Iteration)
	}

	rate := 0.0
	if record.ErrorsBefore > 0 {
		rate = float64(record.ErrorsBefore-record.ErrorsAfter) / float64(record.ErrorsBefore)
	}
	record.ImprovementPercentage = rate

	complexity := clamp01(1 - rate + 0.1*float64(record.NewErrorsIntroduced) - 0.2*record.SuccessRate)

	a.records = append(a.records, record)
	a.complexity = append(a.complexity, complexity)
	return nil
}

// Store returns the backing session store, or nil when the analyzer runs
// without persistence.
func (a *Analyzer) Store() *Store {
	return a.store
}

// Records returns a copy of the session's record history.
func (a *Analyzer) Records() []IterationRecord {
	out := make([]IterationRecord, len(a.records))
	copy(out, a.records)
	return out
}

// Analyze classifies the current trend and predicts remaining effort. It
// never mutates analyzer state: identical histories yield identical
// assessments.
func (a *Analyzer) Analyze(ctx context.Context) Assessment {
	ctx, span := a.tracer.Start(ctx, "convergence.analyze")
	defer span.End()

	assessment := a.analyze(ctx)

	span.SetAttributes(
		attribute.String("state", string(assessment.State)),
		attribute.Float64("confidence", assessment.Confidence),
	)
	if a.stateCounter != nil {
		a.stateCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("state", string(assessment.State)),
		))
	}
	return assessment
}

func (a *Analyzer) analyze(ctx context.Context) Assessment {
	if len(a.records) < analysisWindow {
		current := 0
		if len(a.records) > 0 {
			current = a.records[len(a.records)-1].ErrorsAfter
		}
		return Assessment{
			State:                        StateImproving,
			Confidence:                   0.1,
			PredictedFinalErrors:         current,
			PredictedIterationsRemaining: 0,
			Recommendation:               "need more data: run at least 3 iterations before trend analysis is meaningful",
		}
	}

	window := a.records[len(a.records)-analysisWindow:]
	rates := make([]float64, analysisWindow)
	for i, r := range window {
		rates[i] = r.ImprovementPercentage
	}
	meanRate := mean(rates)
	rateVariance := variance(rates)

	state := StateImproving
	switch {
	case meanRate < convergedMeanRate:
		state = StateConverged
	case meanRate < plateauMeanRate && rateVariance < plateauVariance:
		state = StatePlateauing
	case rateVariance > oscillatingVariance:
		state = StateOscillating
	case window[analysisWindow-1].ErrorsAfter > window[0].ErrorsAfter:
		state = StateDiverging
	}

	current := a.records[len(a.records)-1]
	potential := a.predictPotential(ctx, meanRate)

	risks := riskFactors(state, window)
	if r := a.classifierRisk(); r != "" {
		risks = append(risks, r)
	}

	predictedFinal := int(math.Round(float64(current.ErrorsAfter) * (1 - potential)))
	if predictedFinal < 0 {
		predictedFinal = 0
	}
	remaining := 10
	if potential > 0 {
		remaining = int(math.Ceil(float64(current.ErrorsAfter) * 0.1 / potential))
		if remaining < 1 {
			remaining = 1
		}
		if remaining > 10 {
			remaining = 10
		}
	}

	historical := 0
	if a.store != nil {
		historical = a.store.SessionCount()
	}

	confidence := 0.5 +
		math.Min(0.3, 0.05*float64(len(a.records))) +
		math.Min(0.3, math.Max(0, 1-stddev(rates))) +
		math.Min(0.2, 0.02*float64(historical))
	if confidence > 1 {
		confidence = 1
	}

	return Assessment{
		State:                        state,
		Confidence:                   confidence,
		PredictedFinalErrors:         predictedFinal,
		PredictedIterationsRemaining: remaining,
		ImprovementPotential:         potential,
		Recommendation:               recommend(state, potential, current.ErrorsAfter),
		RiskFactors:                  risks,
		OptimizationSuggestions:      suggestions(state),
	}
}

// classifierRisk asks the trained convergence classifier whether sessions
// on this trajectory historically converged. Its verdict only ever adds a
// risk factor; effort prediction stays with the regressor.
func (a *Analyzer) classifierRisk() string {
	if !a.classifierTrained || a.predictors.Classifier == nil || len(a.records) < minRecordsToPredict {
		return ""
	}
	predicted, err := a.predictors.Classifier.Predict(windowFeatures(a.records, a.complexity))
	if err != nil {
		a.logger.Debug("classifier unavailable, skipping convergence risk", zap.Error(err))
		return ""
	}
	if predicted < 0.5 {
		return "historical sessions with this trajectory rarely converged"
	}
	return ""
}

// predictPotential asks the trained regressor for the expected next
// improvement when enough history exists, otherwise falls back to the
// plain window mean.
func (a *Analyzer) predictPotential(ctx context.Context, meanRate float64) float64 {
	if !a.trained || a.predictors.Regressor == nil || len(a.records) < minRecordsToPredict {
		return clamp01(meanRate)
	}
	features := windowFeatures(a.records, a.complexity)
	predicted, err := a.predictors.Regressor.Predict(features)
	if err != nil {
		a.logger.Debug("regressor unavailable, using trend fallback", zap.Error(err))
		return clamp01(meanRate)
	}
	return clamp01(predicted)
}

// windowFeatures builds the 9-feature prediction input from the most
// recent records.
func windowFeatures(records []IterationRecord, complexity []float64) []float64 {
	recent := records
	recentComplexity := complexity
	if len(recent) > minRecordsToPredict {
		recent = recent[len(recent)-minRecordsToPredict:]
		recentComplexity = recentComplexity[len(recentComplexity)-minRecordsToPredict:]
	}

	rates := make([]float64, len(recent))
	successes := make([]float64, len(recent))
	costs := make([]float64, len(recent))
	times := make([]float64, len(recent))
	for i, r := range recent {
		rates[i] = r.ImprovementPercentage
		successes[i] = r.SuccessRate
		costs[i] = r.Cost
		times[i] = r.TimeTakenSeconds
	}

	current := records[len(records)-1]
	return []float64{
		mean(rates),
		stddev(rates),
		mean(successes),
		mean(recentComplexity),
		float64(current.ErrorsAfter),
		current.MLAccuracy,
		float64(len(records)),
		mean(costs),
		mean(times),
	}
}

// recommend is the deterministic state -> recommendation table.
func recommend(state State, potential float64, errorsAfter int) string {
	switch state {
	case StateConverged:
		return "stop: converged - remaining errors need manual or expert review"
	case StatePlateauing:
		if potential < 0.2 {
			return "stop: plateaued with low improvement potential - consider refactoring hotspot files"
		}
		return "continue: plateau likely to break - predicted improvement potential remains high"
	case StateDiverging:
		return "stop: error count is rising - review and roll back the most recent fixes"
	case StateOscillating:
		return "adjust: results oscillate between iterations - reduce batch sizes or raise the confirmation bar"
	default:
		if errorsAfter <= 10 {
			return "continue: near completion - few errors remain"
		}
		if potential > 0.5 {
			return "continue: high improvement potential"
		}
		return "continue: moderate improvement expected"
	}
}

func riskFactors(state State, window []IterationRecord) []string {
	var factors []string
	if state == StateOscillating {
		factors = append(factors, "unstable iteration results")
	}
	if state == StateDiverging {
		factors = append(factors, "net error increase within analysis window")
	}
	newErrors := 0
	for _, r := range window {
		newErrors += r.NewErrorsIntroduced
	}
	if newErrors > 0 {
		factors = append(factors, fmt.Sprintf("%d new errors introduced in the last %d iterations", newErrors, len(window)))
	}
	return factors
}

func suggestions(state State) []string {
	switch state {
	case StateOscillating:
		return []string{"reduce max errors per batch", "disable auto-force for dangerous rule categories"}
	case StatePlateauing:
		return []string{"target the highest-degree files first", "escalate plateaued findings to manual review"}
	case StateDiverging:
		return []string{"lower the error-increase tolerance", "re-run linters with a clean cache before continuing"}
	default:
		return nil
	}
}

// SaveSession appends the finished session to the durable corpus and
// retrains the predictors from the accumulated history. Retraining
// failures are logged and never propagated.
func (a *Analyzer) SaveSession(ctx context.Context, sessionID string, finalState State) error {
	if a.store == nil {
		return nil
	}

	session := HistoricalSession{
		SessionID:       sessionID,
		Records:         a.Records(),
		FinalState:      finalState,
		TotalIterations: len(a.records),
	}
	if len(a.records) > 0 {
		first, last := a.records[0], a.records[len(a.records)-1]
		if first.ErrorsBefore > 0 {
			session.FinalImprovement = float64(first.ErrorsBefore-last.ErrorsAfter) / float64(first.ErrorsBefore)
		}
		successes := make([]float64, len(a.records))
		for i, r := range a.records {
			successes[i] = r.SuccessRate
		}
		session.ProjectCharacteristics = map[string]float64{
			"initial_errors":   float64(first.ErrorsBefore),
			"final_errors":     float64(last.ErrorsAfter),
			"avg_success_rate": mean(successes),
		}
	}

	if err := a.store.AppendSession(ctx, session); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}

	a.retrain(ctx)
	return nil
}

// retrain fits the regressor and classifier over sliding 3-record windows
// across the whole historical corpus. The two models stay independent.
func (a *Analyzer) retrain(ctx context.Context) {
	if a.predictors.Regressor == nil && a.predictors.Classifier == nil {
		return
	}

	sessions := a.store.Sessions(ctx)
	var regression, classification []force.Sample
	for _, s := range sessions {
		complexity := make([]float64, len(s.Records))
		for i, r := range s.Records {
			complexity[i] = clamp01(1 - r.ImprovementPercentage +
				0.1*float64(r.NewErrorsIntroduced) - 0.2*r.SuccessRate)
		}
		converged := 0.0
		if s.FinalState == StateConverged {
			converged = 1.0
		}
		for end := analysisWindow; end < len(s.Records); end++ {
			features := windowFeatures(s.Records[:end], complexity[:end])
			regression = append(regression, force.Sample{
				Features: features,
				Label:    clamp01(s.Records[end].ImprovementPercentage),
			})
			classification = append(classification, force.Sample{
				Features: features,
				Label:    converged,
			})
		}
	}
	if len(regression) == 0 {
		return
	}

	if a.predictors.Regressor != nil {
		if err := a.predictors.Regressor.Train(regression); err != nil {
			a.logger.Warn("regressor training failed", zap.Error(err))
		} else {
			a.trained = true
		}
	}
	if a.predictors.Classifier != nil {
		if err := a.predictors.Classifier.Train(classification); err != nil {
			a.logger.Warn("classifier training failed", zap.Error(err))
		} else {
			a.classifierTrained = true
		}
	}
}

// Statistics helpers.

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	return math.Sqrt(variance(values))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
