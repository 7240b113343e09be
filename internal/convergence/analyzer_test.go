package convergence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tosin2013/aider-lint-fixer/internal/force"
)

func record(iteration, before, after int) IterationRecord {
	return IterationRecord{
		Iteration:    iteration,
		ErrorsBefore: before,
		ErrorsAfter:  after,
		SuccessRate:  0.8,
	}
}

func analyzerWith(t *testing.T, records ...IterationRecord) *Analyzer {
	t.Helper()
	a := NewAnalyzer(nil, Predictors{}, nil)
	for _, r := range records {
		require.NoError(t, a.AddRecord(r))
	}
	return a
}

func TestAddRecordRejectsNonIncreasingIterations(t *testing.T) {
	a := NewAnalyzer(nil, Predictors{}, nil)
	require.NoError(t, a.AddRecord(record(1, 100, 90)))

	err := a.AddRecord(record(1, 90, 80))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not after")

	err = a.AddRecord(record(0, 90, 80))
	require.Error(t, err)
}

func TestAddRecordDerivesImprovementRate(t *testing.T) {
	a := analyzerWith(t, record(1, 100, 75))
	records := a.Records()
	require.Len(t, records, 1)
	assert.InDelta(t, 0.25, records[0].ImprovementPercentage, 1e-9)
}

func TestAddRecordZeroBeforeYieldsZeroRate(t *testing.T) {
	a := analyzerWith(t, record(1, 0, 0))
	assert.Zero(t, a.Records()[0].ImprovementPercentage)
}

func TestAnalyzeTooFewRecords(t *testing.T) {
	a := analyzerWith(t, record(1, 100, 90), record(2, 90, 85))

	got := a.Analyze(context.Background())
	assert.Equal(t, StateImproving, got.State)
	assert.InDelta(t, 0.1, got.Confidence, 1e-9)
	assert.Equal(t, 85, got.PredictedFinalErrors)
	assert.Contains(t, got.Recommendation, "need more data")
}

func TestAnalyzeClassification(t *testing.T) {
	tests := []struct {
		name    string
		records []IterationRecord
		want    State
	}{
		{
			name: "converged on tiny improvement rates",
			records: []IterationRecord{
				record(1, 100, 99),
				record(2, 99, 98),
				record(3, 98, 97),
			},
			want: StateConverged,
		},
		{
			name: "plateauing on small stable rates",
			records: []IterationRecord{
				record(1, 100, 97),
				record(2, 97, 94),
				record(3, 94, 91),
			},
			want: StatePlateauing,
		},
		{
			name: "oscillating on wildly varying rates",
			records: []IterationRecord{
				record(1, 100, 20),
				record(2, 20, 20),
				record(3, 20, 4),
			},
			want: StateOscillating,
		},
		{
			name: "diverging when errors climb back up",
			records: []IterationRecord{
				record(1, 100, 50),
				record(2, 50, 55),
				record(3, 55, 61),
			},
			want: StateDiverging,
		},
		{
			name: "improving on steady progress",
			records: []IterationRecord{
				record(1, 100, 70),
				record(2, 70, 49),
				record(3, 49, 34),
			},
			want: StateImproving,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := analyzerWith(t, tt.records...)
			got := a.Analyze(context.Background())
			assert.Equal(t, tt.want, got.State)
		})
	}
}

func TestAnalyzeIsPure(t *testing.T) {
	a := analyzerWith(t,
		record(1, 100, 70),
		record(2, 70, 49),
		record(3, 49, 34),
	)
	first := a.Analyze(context.Background())
	second := a.Analyze(context.Background())
	assert.Equal(t, first, second)
}

func TestAnalyzeConfidenceAndPredictionBounds(t *testing.T) {
	a := analyzerWith(t,
		record(1, 100, 99),
		record(2, 99, 98),
		record(3, 98, 97),
	)
	got := a.Analyze(context.Background())

	assert.LessOrEqual(t, got.Confidence, 1.0)
	assert.GreaterOrEqual(t, got.Confidence, 0.5)
	assert.GreaterOrEqual(t, got.PredictedIterationsRemaining, 1)
	assert.LessOrEqual(t, got.PredictedIterationsRemaining, 10)
	assert.GreaterOrEqual(t, got.PredictedFinalErrors, 0)
}

func TestAnalyzeRiskFactorsIncludeNewErrors(t *testing.T) {
	r2 := record(2, 70, 49)
	r2.NewErrorsIntroduced = 3
	a := analyzerWith(t, record(1, 100, 70), r2, record(3, 49, 34))

	got := a.Analyze(context.Background())
	assert.Contains(t, got.RiskFactors, "3 new errors introduced in the last 3 iterations")
}

func TestAnalyzeSuggestionsFollowState(t *testing.T) {
	a := analyzerWith(t,
		record(1, 100, 97),
		record(2, 97, 94),
		record(3, 94, 91),
	)
	got := a.Analyze(context.Background())
	require.Equal(t, StatePlateauing, got.State)
	assert.Contains(t, got.OptimizationSuggestions, "target the highest-degree files first")
}

func TestSaveSessionWithoutStoreIsNoop(t *testing.T) {
	a := analyzerWith(t, record(1, 100, 90))
	assert.NoError(t, a.SaveSession(context.Background(), "s1", StateConverged))
}

func TestSaveSessionRecordsCharacteristics(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	a := NewAnalyzer(store, Predictors{}, nil)
	require.NoError(t, a.AddRecord(record(1, 100, 60)))
	require.NoError(t, a.AddRecord(record(2, 60, 40)))

	require.NoError(t, a.SaveSession(context.Background(), "session-1", StateConverged))

	sessions := store.Sessions(context.Background())
	require.Len(t, sessions, 1)
	s := sessions[0]
	assert.Equal(t, "session-1", s.SessionID)
	assert.Equal(t, StateConverged, s.FinalState)
	assert.Equal(t, 2, s.TotalIterations)
	assert.InDelta(t, 0.6, s.FinalImprovement, 1e-9)
	assert.InDelta(t, 100, s.ProjectCharacteristics["initial_errors"], 1e-9)
	assert.InDelta(t, 40, s.ProjectCharacteristics["final_errors"], 1e-9)
}

func TestWindowFeaturesWidth(t *testing.T) {
	a := analyzerWith(t,
		record(1, 100, 80),
		record(2, 80, 60),
		record(3, 60, 45),
		record(4, 45, 30),
		record(5, 30, 20),
		record(6, 20, 15),
	)
	features := windowFeatures(a.records, a.complexity)
	require.Len(t, features, 9)
	assert.InDelta(t, 15, features[4], 1e-9) // current errors_after
	assert.InDelta(t, 6, features[6], 1e-9)  // total record count
}

type stubPredictor struct {
	value   float64
	trained bool
}

func (p *stubPredictor) Predict(features []float64) (float64, error) {
	return p.value, nil
}

func (p *stubPredictor) Train(samples []force.Sample) error {
	p.trained = true
	return nil
}

func TestClassifierAddsConvergenceRiskFactor(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	classifier := &stubPredictor{value: 0.2}
	a := NewAnalyzer(store, Predictors{Classifier: classifier}, nil)
	require.NoError(t, a.AddRecord(record(1, 120, 100)))
	require.NoError(t, a.AddRecord(record(2, 100, 80)))
	require.NoError(t, a.AddRecord(record(3, 80, 65)))
	require.NoError(t, a.AddRecord(record(4, 65, 52)))
	require.NoError(t, a.AddRecord(record(5, 52, 41)))

	require.NoError(t, a.SaveSession(context.Background(), "session-risk", StateImproving))
	require.True(t, classifier.trained)

	assessment := a.Analyze(context.Background())
	assert.Contains(t, assessment.RiskFactors,
		"historical sessions with this trajectory rarely converged")

	// A favorable verdict adds nothing.
	classifier.value = 0.9
	assessment = a.Analyze(context.Background())
	assert.NotContains(t, assessment.RiskFactors,
		"historical sessions with this trajectory rarely converged")
}
