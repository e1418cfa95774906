package reflector

// OnlineEligibleThreshold is the confidence at which an insight may feed the
// online (per-closure) learning path.
const OnlineEligibleThreshold = 0.8

// ConfidenceInputs are the observable facts the confidence model scores.
// The model is a pure function; nothing here learns.
type ConfidenceInputs struct {
	Frequency        int  // error occurrences backing the insight
	Beads            int  // distinct work-items affected
	Files            int  // distinct files affected
	AllSeverityError bool // no warnings diluting the signal
}

// Confidence scores an insight: a frequency-proportional base, bonuses for
// spread across work-items and files, a bonus for uniform error severity,
// clamped to [0,1].
func Confidence(in ConfidenceInputs) float64 {
	base := 0.2 + 0.1*float64(in.Frequency)
	if base > 0.6 {
		base = 0.6
	}

	conf := base
	if in.Beads >= 3 {
		conf += 0.2
	}
	if in.Beads >= 5 {
		conf += 0.1
	}
	if in.Files >= 3 {
		conf += 0.1
	}
	if in.AllSeverityError {
		conf += 0.1
	}

	return clamp01(conf)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
