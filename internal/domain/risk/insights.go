package risk

import (
	"fmt"
	"math"
	"sort"
	"time"
)

const (
	// MinOverlapDays is the fewest shared days worth correlating.
	MinOverlapDays = 5
	// DriftSeriesLen is how many recent values each drift series reads.
	DriftSeriesLen = 12
	// MinDriftValues is one recent value plus two baseline points.
	MinDriftValues = 3
	// DriftThreshold is the |z| at which an analyte is flagged.
	DriftThreshold = 1.0
	// MaxDriftFlags caps the flags returned by one drift finding.
	MaxDriftFlags = 3
)

const insufficientOverlapText = "Not enough overlapping days yet."

// AnalyzeHydrationPain correlates per-day mean pain with per-day hydration
// over the days present in both series.
func AnalyzeHydrationPain(symptoms []Symptom, hydration []Hydration) *HydrationPainFinding {
	painSum := map[time.Time]float64{}
	painCount := map[time.Time]int{}
	for _, s := range symptoms {
		d := Day(s.OccurredAt)
		painSum[d] += float64(s.Pain)
		painCount[d]++
	}
	hydByDay := map[time.Time]float64{}
	for _, h := range hydration {
		d := Day(h.Day)
		if _, dup := hydByDay[d]; !dup {
			hydByDay[d] = h.Liters
		}
	}

	var common []time.Time
	for d := range hydByDay {
		if painCount[d] > 0 {
			common = append(common, d)
		}
	}
	sort.Slice(common, func(i, j int) bool { return common[i].Before(common[j]) })

	if len(common) < MinOverlapDays {
		return &HydrationPainFinding{
			Type:     InsightHydrationPain,
			Text:     insufficientOverlapText,
			Strength: StrengthWeak,
			Days:     len(common),
		}
	}

	xs := make([]float64, len(common))
	ys := make([]float64, len(common))
	for i, d := range common {
		xs[i] = hydByDay[d]
		ys[i] = painSum[d] / float64(painCount[d])
	}
	r := Pearson(xs, ys)

	direction := "more"
	if r < 0 {
		direction = "less"
	}
	rounded := round2(r)
	return &HydrationPainFinding{
		Type:      InsightHydrationPain,
		Text:      fmt.Sprintf("On higher-hydration days you reported %s pain (r=%.2f, %d days).", direction, r, len(common)),
		Strength:  CorrelationStrength(r),
		Direction: direction,
		R:         &rounded,
		Days:      len(common),
	}
}

// Pearson returns the correlation coefficient of two aligned series. A zero
// denominator (either series constant) is replaced by 1.
func Pearson(xs, ys []float64) float64 {
	xbar, ybar := Mean(xs), Mean(ys)
	var num, sxx, syy float64
	for i := range xs {
		dx, dy := xs[i]-xbar, ys[i]-ybar
		num += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	den := math.Sqrt(sxx * syy)
	if den == 0 {
		den = 1
	}
	return num / den
}

// CorrelationStrength buckets |r|.
func CorrelationStrength(r float64) string {
	switch a := math.Abs(r); {
	case a >= 0.6:
		return StrengthStrong
	case a >= 0.3:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}

// LabSeries is one analyte's values, newest first.
type LabSeries struct {
	Code   string
	Values []float64
}

// AnalyzeLabDrift flags analytes whose latest value sits at least one
// spread away from the mean of the values before it. Flags keep the order
// the series were given in.
func AnalyzeLabDrift(series []LabSeries) *LabDriftFinding {
	flags := []DriftFlag{}
	for _, s := range series {
		values := s.Values
		if len(values) > DriftSeriesLen {
			values = values[:DriftSeriesLen]
		}
		if len(values) < MinDriftValues {
			continue
		}
		z := EstimateMean(values[1:]).Z(values[0])
		if math.Abs(z) < DriftThreshold {
			continue
		}
		glyph := "↑"
		if z < 0 {
			glyph = "↓"
		}
		flags = append(flags, DriftFlag{
			Code:      s.Code,
			Z:         round2(z),
			Direction: glyph,
			Text:      fmt.Sprintf("%s %s vs baseline", s.Code, glyph),
		})
	}
	if len(flags) > MaxDriftFlags {
		flags = flags[:MaxDriftFlags]
	}
	return &LabDriftFinding{Type: InsightLabDrift, Items: flags}
}
