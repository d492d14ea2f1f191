package risk

import (
	"math"
	"sort"
)

// ExplanationSize is how many features the explanation keeps.
const ExplanationSize = 4

// Tier boundaries; each is the inclusive lower bound of its tier.
const (
	ModerateFrom = 40
	HighFrom     = 70
)

// symptomWeights scale the symptom/hydration group. Lab features already
// carry their analyte weight and count once.
var symptomWeights = map[string]float64{
	FeaturePainFrequency:    1.2,
	FeatureFatigue:          0.8,
	FeatureHydrationDeficit: 1.0,
}

func weightOf(name string) float64 {
	if w, ok := symptomWeights[name]; ok {
		return w
	}
	return 1
}

// Score aggregates a feature set into a bounded score, tier and
// explanation. It never fails: an empty or all-zero set scores 50.
func Score(fs FeatureSet) Assessment {
	var raw float64
	for _, f := range fs {
		raw += weightOf(f.Name) * f.Value
	}
	score := Logistic(raw)
	return Assessment{
		Raw:         raw,
		Score:       score,
		Tier:        Classify(score),
		Explanation: Explain(fs, ExplanationSize),
	}
}

// Logistic maps raw onto 0..100 and rounds to the nearest integer.
func Logistic(raw float64) int {
	s := int(math.Round(100 / (1 + math.Exp(-raw))))
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// Classify buckets a score into its tier.
func Classify(score int) Tier {
	switch {
	case score < ModerateFrom:
		return TierLow
	case score < HighFrom:
		return TierModerate
	default:
		return TierHigh
	}
}

// Explain keeps the n strongest non-zero features by absolute value, ties
// in insertion order, each rounded to two decimals. Zero-valued features
// are dropped in every case, not only when history is missing: a day with
// only a hydration deficit explains as that single feature, and a quiet
// day explains as {}.
func Explain(fs FeatureSet, n int) Explanation {
	ranked := make(Explanation, 0, len(fs))
	for _, f := range fs {
		if f.Value != 0 {
			ranked = append(ranked, f)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return math.Abs(ranked[i].Value) > math.Abs(ranked[j].Value)
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	for i := range ranked {
		ranked[i].Value = round2(ranked[i].Value)
	}
	return ranked
}
