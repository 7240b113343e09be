// Package force implements the adaptive admission engine: it scores each
// assessed finding, assigns a Skip/ManualReview/BatchConfirm/AutoForce
// action, predicts cascade risk through the dependency graph, and plans
// execution batches. The auto-force threshold adapts slowly to observed
// fix outcomes.
package force

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tosin2013/aider-lint-fixer/internal/depgraph"
	"github.com/tosin2013/aider-lint-fixer/pkg/lint"
)

const instrumentationName = "github.com/tosin2013/aider-lint-fixer/internal/force"

// Config configures the decision engine thresholds. All thresholds live in
// [0,1] and must be ordered auto >= batch >= manual.
type Config struct {
	// AutoForceThreshold admits a finding without confirmation (default 0.90).
	// The adaptive controller moves it within [AutoForceFloor, AutoForceCeiling].
	AutoForceThreshold float64 `koanf:"auto_force_threshold"`
	AutoForceFloor     float64 `koanf:"auto_force_floor"`
	AutoForceCeiling   float64 `koanf:"auto_force_ceiling"`

	// BatchConfirmThreshold admits a finding after batch confirmation (default 0.75).
	BatchConfirmThreshold float64 `koanf:"batch_force_threshold"`

	// ManualReviewThreshold routes a finding to review (default 0.50).
	ManualReviewThreshold float64 `koanf:"manual_review_threshold"`

	// SafeRuleThreshold is the lowered bar for allowlisted style rules (default 0.70).
	SafeRuleThreshold float64 `koanf:"safe_rule_threshold"`

	// ChaosThreshold is the finding count above which batching tightens (default 100).
	ChaosThreshold int `koanf:"chaos_threshold"`

	// AdaptInterval is the number of recorded outcomes between threshold
	// adjustments (default 100).
	AdaptInterval int `koanf:"adapt_interval"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		AutoForceThreshold:    0.90,
		AutoForceFloor:        0.85,
		AutoForceCeiling:      0.95,
		BatchConfirmThreshold: 0.75,
		ManualReviewThreshold: 0.50,
		SafeRuleThreshold:     0.70,
		ChaosThreshold:        100,
		AdaptInterval:         100,
	}
}

// Validate rejects out-of-range or inverted thresholds.
func (c *Config) Validate() error {
	for name, v := range map[string]float64{
		"auto_force_threshold":    c.AutoForceThreshold,
		"auto_force_floor":        c.AutoForceFloor,
		"auto_force_ceiling":      c.AutoForceCeiling,
		"batch_force_threshold":   c.BatchConfirmThreshold,
		"manual_review_threshold": c.ManualReviewThreshold,
		"safe_rule_threshold":     c.SafeRuleThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", name, v)
		}
	}
	if c.AutoForceThreshold < c.BatchConfirmThreshold {
		return errors.New("auto_force_threshold must be >= batch_force_threshold")
	}
	if c.BatchConfirmThreshold < c.ManualReviewThreshold {
		return errors.New("batch_force_threshold must be >= manual_review_threshold")
	}
	if c.AutoForceFloor > c.AutoForceCeiling {
		return errors.New("auto_force_floor must be <= auto_force_ceiling")
	}
	if c.ChaosThreshold <= 0 {
		return errors.New("chaos_threshold must be positive")
	}
	if c.AdaptInterval <= 0 {
		return errors.New("adapt_interval must be positive")
	}
	return nil
}

// Engine computes force decisions and batch plans for assessed findings.
type Engine struct {
	config    *Config
	predictor Predictor
	logger    *zap.Logger

	adaptive *thresholdController

	tracer          trace.Tracer
	meter           metric.Meter
	decisionCounter metric.Int64Counter
	cascadeHist     metric.Float64Histogram
}

// NewEngine creates a decision engine. A nil predictor falls back to the
// deterministic heuristic; a nil logger to a nop logger.
func NewEngine(cfg *Config, predictor Predictor, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid force config: %w", err)
	}
	if predictor == nil {
		predictor = NewHeuristicPredictor()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		config:    cfg,
		predictor: predictor,
		logger:    logger,
		adaptive:  newThresholdController(cfg),
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
	}
	e.initMetrics()
	return e, nil
}

func (e *Engine) initMetrics() {
	var err error

	e.decisionCounter, err = e.meter.Int64Counter(
		"lintfix.force.decisions_total",
		metric.WithDescription("Force decisions by action"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		e.logger.Warn("failed to create decision counter", zap.Error(err))
	}

	e.cascadeHist, err = e.meter.Float64Histogram(
		"lintfix.force.cascade_risk",
		metric.WithDescription("Maximum predicted cascade risk per decision"),
	)
	if err != nil {
		e.logger.Warn("failed to create cascade histogram", zap.Error(err))
	}
}

// ComputeStrategy scores every assessment, plans batches, and summarizes
// the run. The graph may be nil, in which case cascade prediction is
// skipped and every file is treated as edge-less.
func (e *Engine) ComputeStrategy(ctx context.Context, assessments []lint.ErrorAssessment, graph *depgraph.Graph) (*Strategy, error) {
	ctx, span := e.tracer.Start(ctx, "force.compute_strategy")
	defer span.End()
	span.SetAttributes(attribute.Int("finding_count", len(assessments)))

	decisions := make([]ForceDecision, 0, len(assessments))
	for i := range assessments {
		decision := e.decide(ctx, &assessments[i], graph)
		decisions = append(decisions, decision)

		if e.decisionCounter != nil {
			e.decisionCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("action", decision.Action.String()),
			))
		}
	}

	batches := e.planBatches(decisions, len(assessments), graph)
	summary := e.summarize(decisions, batches, graph)

	e.logger.Info("computed fix strategy",
		zap.Int("findings", len(assessments)),
		zap.Int("batches", len(batches)),
		zap.Bool("chaotic", summary.IsChaotic),
		zap.Int("estimated_minutes", summary.EstimatedMinutes),
	)

	return &Strategy{Decisions: decisions, Batches: batches, Summary: summary}, nil
}

// decide scores one assessment and attaches risk factors and cascades.
func (e *Engine) decide(ctx context.Context, a *lint.ErrorAssessment, graph *depgraph.Graph) ForceDecision {
	base := baseConfidence(a)

	ml := base
	if predicted, err := e.predictor.Predict(featureVector(a)); err != nil {
		// Predictor failure degrades to the rule table alone, never aborts.
		e.logger.Debug("predictor unavailable, using base confidence",
			zap.String("rule", a.Finding.RuleID), zap.Error(err))
	} else {
		ml = predicted
	}

	confidence := clamp01(0.7*base + 0.3*ml)

	decision := ForceDecision{
		Assessment: *a,
		Confidence: confidence,
		Action:     e.mapAction(a, confidence),
	}
	decision.RiskFactors = riskFactors(a)

	if decision.Action == AutoForce || decision.Action == BatchConfirm {
		cascades, maxRisk := e.predictCascades(a, graph)
		decision.PredictedCascades = cascades
		if e.cascadeHist != nil {
			e.cascadeHist.Record(ctx, maxRisk)
		}
		if maxRisk >= 0.7 {
			decision.RiskFactors = append(decision.RiskFactors, "high cascade risk")
		} else if maxRisk >= 0.5 {
			decision.RiskFactors = append(decision.RiskFactors, "medium cascade risk")
		}
	}

	return decision
}

// mapAction applies the first-match admission ladder.
func (e *Engine) mapAction(a *lint.ErrorAssessment, confidence float64) Action {
	switch {
	case isSafeRule(a.Finding.RuleID) && confidence >= e.config.SafeRuleThreshold:
		return AutoForce
	case confidence >= e.adaptive.threshold():
		return AutoForce
	case confidence >= e.config.BatchConfirmThreshold:
		return BatchConfirm
	case confidence >= e.config.ManualReviewThreshold:
		return ManualReview
	default:
		return Skip
	}
}

// riskFactors attaches every applicable caveat, order-preserving.
func riskFactors(a *lint.ErrorAssessment) []string {
	var factors []string
	if a.Category == lint.CategoryUndefinedReference {
		factors = append(factors, "may break runtime at call sites")
	}
	if a.IsConfigFile() {
		factors = append(factors, "system-wide impact")
	}
	if !a.IsTestFile() {
		factors = append(factors, "production code")
	}
	if a.EstimatedEffort > 3 {
		factors = append(factors, "multi-step fix")
	}
	if a.RelatedErrors > 2 {
		factors = append(factors, "possible cascading edits")
	}
	return factors
}

// neighborRisk is one scored cascade candidate.
type neighborRisk struct {
	file string
	risk float64
}

// predictCascades scores each graph neighbor of the finding's file and
// returns the top candidates plus the maximum neighbor risk. For
// reference-breaking categories, symbol-level dependents are merged in up
// to a total of five files.
func (e *Engine) predictCascades(a *lint.ErrorAssessment, graph *depgraph.Graph) ([]string, float64) {
	if graph == nil {
		return nil, 0
	}

	file := a.Finding.FilePath
	typeMult := errorTypeMultiplier(a)

	var candidates []neighborRisk
	maxRisk := 0.0
	seen := make(map[string]bool)

	for _, n := range graph.Neighbors(file) {
		risk := 0.3 * typeMult * edgeTypeMultiplier(n.Edge.Type)
		if len(n.Edge.ImportedNames) > 0 {
			risk *= 1.2
		}
		if risk > 1.0 {
			risk = 1.0
		}
		if risk > maxRisk {
			maxRisk = risk
		}
		if !seen[n.File] {
			seen[n.File] = true
			candidates = append(candidates, neighborRisk{file: n.File, risk: risk})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].risk > candidates[j].risk
	})
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}

	cascades := make([]string, 0, 5)
	for _, c := range candidates {
		cascades = append(cascades, c.file)
	}

	// Reference-breaking fixes also hit files using the broken symbol, even
	// when the file graph ranks them low.
	if a.Category == lint.CategoryUndefinedReference || a.Category == lint.CategoryGlobalMutation {
		if symbol := extractSymbol(a.Finding.Message); symbol != "" {
			for _, dep := range graph.SymbolDependents(file, symbol) {
				if len(cascades) >= 5 {
					break
				}
				if !containsString(cascades, dep) {
					cascades = append(cascades, dep)
				}
			}
		}
	}

	return cascades, maxRisk
}

// edgeTypeMultiplier scales cascade risk by how tightly an edge couples
// two files.
func edgeTypeMultiplier(t depgraph.EdgeType) float64 {
	switch t {
	case depgraph.EdgeImport:
		return 0.8
	case depgraph.EdgeCalls:
		return 0.6
	case depgraph.EdgeProximity:
		return 0.2
	default:
		return 0.3
	}
}

// extractSymbol pulls the first quoted identifier out of a lint message,
// e.g. `undefined name 'frobnicate'` -> "frobnicate".
func extractSymbol(message string) string {
	for _, quote := range []byte{'\'', '"', '`'} {
		start := -1
		for i := 0; i < len(message); i++ {
			if message[i] == quote {
				if start < 0 {
					start = i + 1
				} else if i > start {
					return message[start:i]
				} else {
					start = -1
				}
			}
		}
	}
	return ""
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// RecordOutcome feeds one real fix result to the adaptive threshold
// controller. Existing decisions are never mutated.
func (e *Engine) RecordOutcome(o Outcome) {
	if adjusted, newThreshold := e.adaptive.record(o); adjusted {
		e.logger.Info("adapted auto-force threshold",
			zap.Float64("threshold", newThreshold))
	}
}

// AutoForceThreshold returns the current adaptive threshold, for
// persistence across runs.
func (e *Engine) AutoForceThreshold() float64 {
	return e.adaptive.threshold()
}

// SetAutoForceThreshold restores a persisted threshold, clamped to the
// configured adaptive bounds.
func (e *Engine) SetAutoForceThreshold(v float64) {
	e.adaptive.set(v)
}
