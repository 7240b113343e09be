package force

import (
	"github.com/tosin2013/aider-lint-fixer/pkg/lint"
)

// featureVector builds the fixed-width input for the predictor. Every slot
// is normalized to roughly [0,1] so the heuristic weights stay comparable.
//
// Layout (keep in sync with heuristicWeights in predictor.go):
//
//	 0  rule danger flag
//	 1  rule safety flag
//	 2  severity weight
//	 3  message length / 200
//	 4  line position / 1000
//	 5  complexity tier weight
//	 6  priority / 10
//	 7  fixable flag
//	 8  estimated effort / 5
//	 9  context size / 50
//	10  related error count / 10
//	11  template-string flag
//	12  test file flag
//	13  config file flag
//	14  path depth / 10
func featureVector(a *lint.ErrorAssessment) []float64 {
	features := make([]float64, FeatureCount)

	features[0] = boolFeature(isDangerousRule(a.Finding.RuleID))
	features[1] = boolFeature(isSafeRule(a.Finding.RuleID))
	features[2] = a.Finding.Severity.Weight()
	features[3] = capRatio(float64(len(a.Finding.Message)), 200)
	features[4] = capRatio(float64(a.Finding.Line), 1000)
	features[5] = a.Complexity.Weight()
	features[6] = capRatio(float64(a.Priority), 10)
	features[7] = boolFeature(a.Fixable)
	features[8] = capRatio(float64(a.EstimatedEffort), 5)
	features[9] = capRatio(float64(a.ContextSize), 50)
	features[10] = capRatio(float64(a.RelatedErrors), 10)
	features[11] = boolFeature(looksLikeTemplateString(a.Finding.Message))
	features[12] = boolFeature(a.IsTestFile())
	features[13] = boolFeature(a.IsConfigFile())
	features[14] = capRatio(float64(a.PathDepth()), 10)

	return features
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func capRatio(v, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return clamp01(v / max)
}
