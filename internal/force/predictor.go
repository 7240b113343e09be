package force

// FeatureCount is the fixed width of the feature vector built for each
// assessment. Predictor implementations may assume exactly this many inputs.
const FeatureCount = 15

// Sample is one labelled training observation for a predictor.
type Sample struct {
	Features []float64
	Label    float64
}

// Predictor scores an assessment's feature vector. Implementations are
// either a trained model or the deterministic heuristic fallback; the
// engine treats both identically and never depends on trained state
// being present.
type Predictor interface {
	// Predict returns a confidence in [0,1] for the feature vector.
	Predict(features []float64) (float64, error)

	// Train fits the predictor on labelled samples. Implementations that
	// cannot train return nil and ignore the input.
	Train(samples []Sample) error
}

// HeuristicPredictor is the deterministic fallback used when no trained
// model is available. It scores features with fixed weights so decision
// runs are reproducible.
type HeuristicPredictor struct{}

// NewHeuristicPredictor returns the fallback predictor.
func NewHeuristicPredictor() *HeuristicPredictor {
	return &HeuristicPredictor{}
}

// heuristicWeights mirror the feature vector layout in features.go.
// Positive weights push toward auto-fixing, negative toward caution.
var heuristicWeights = [FeatureCount]float64{
	-0.30, // rule danger flag
	+0.30, // rule safety flag
	-0.10, // severity weight
	-0.02, // message length
	+0.00, // line position
	-0.15, // complexity tier
	+0.05, // priority
	+0.20, // fixable flag
	-0.10, // estimated effort
	-0.03, // context size
	-0.08, // related error count
	-0.05, // template-string flag
	+0.08, // test file flag
	-0.10, // config file flag
	+0.00, // path depth
}

// Predict computes a weighted sum around a neutral 0.5 baseline, clamped
// to [0,1].
func (p *HeuristicPredictor) Predict(features []float64) (float64, error) {
	score := 0.5
	for i, f := range features {
		if i >= FeatureCount {
			break
		}
		score += heuristicWeights[i] * f
	}
	return clamp01(score), nil
}

// Train is a no-op: the heuristic has no trainable state.
func (p *HeuristicPredictor) Train(samples []Sample) error {
	return nil
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
