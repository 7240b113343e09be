package force

import "sync"

// thresholdController is a slow feedback loop on the auto-force admission
// threshold. Every AdaptInterval recorded outcomes it inspects the success
// rate of high-confidence decisions and nudges the threshold by one step,
// staying inside [floor, ceiling]. It never touches individual decisions.
type thresholdController struct {
	mu sync.Mutex

	current  float64
	floor    float64
	ceiling  float64
	interval int

	outcomes []outcomeSample
}

type outcomeSample struct {
	confidence float64
	success    bool
}

const thresholdStep = 0.02

func newThresholdController(cfg *Config) *thresholdController {
	return &thresholdController{
		current:  cfg.AutoForceThreshold,
		floor:    cfg.AutoForceFloor,
		ceiling:  cfg.AutoForceCeiling,
		interval: cfg.AdaptInterval,
	}
}

func (t *thresholdController) threshold() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

func (t *thresholdController) set(v float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v < t.floor {
		v = t.floor
	}
	if v > t.ceiling {
		v = t.ceiling
	}
	t.current = v
}

// record adds one outcome and, at each interval boundary, recomputes the
// high-confidence success rate over the window. Returns whether the
// threshold moved and its new value.
func (t *thresholdController) record(o Outcome) (bool, float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.outcomes = append(t.outcomes, outcomeSample{
		confidence: o.Decision.Confidence,
		success:    o.Success && o.NewErrorsIntroduced == 0,
	})
	if len(t.outcomes) < t.interval {
		return false, t.current
	}

	highConfidence := 0
	successes := 0
	for _, s := range t.outcomes {
		if s.confidence > 0.8 {
			highConfidence++
			if s.success {
				successes++
			}
		}
	}
	t.outcomes = t.outcomes[:0]

	if highConfidence == 0 {
		return false, t.current
	}

	rate := float64(successes) / float64(highConfidence)
	before := t.current
	switch {
	case rate > 0.95:
		t.current -= thresholdStep
	case rate < 0.85:
		t.current += thresholdStep
	}
	// Partial steps land exactly on the bound instead of stalling one
	// step short of it.
	if t.current < t.floor {
		t.current = t.floor
	}
	if t.current > t.ceiling {
		t.current = t.ceiling
	}
	return t.current != before, t.current
}
