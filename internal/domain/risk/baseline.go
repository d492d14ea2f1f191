package risk

import (
	"math"
	"sort"
)

// SpreadFloor is the smallest spread a Baseline ever reports. It keeps
// z-scores finite when a subject's history is empty or nearly constant.
const SpreadFloor = 0.1

// Baseline is the personal reference distribution for one series.
type Baseline struct {
	Center float64
	Spread float64
}

// Z returns the plain standardized deviation of v from the baseline.
func (b Baseline) Z(v float64) float64 {
	return (v - b.Center) / b.Spread
}

// CenterFunc picks the central value of a non-empty series.
type CenterFunc func(values []float64) float64

// EstimateMean returns a mean-centered baseline for values.
func EstimateMean(values []float64) Baseline {
	return Estimate(values, Mean)
}

// EstimateMedian returns a median-centered baseline for values. The spread
// is still the population standard deviation about the mean.
func EstimateMedian(values []float64) Baseline {
	return Estimate(values, Median)
}

// Estimate computes center and guarded spread for values. An empty series
// yields (0, SpreadFloor); fewer than two values always get the floor.
func Estimate(values []float64, center CenterFunc) Baseline {
	if len(values) == 0 {
		return Baseline{Center: 0, Spread: SpreadFloor}
	}
	b := Baseline{Center: center(values), Spread: SpreadFloor}
	if len(values) < 2 {
		return b
	}
	b.Spread = math.Max(SpreadFloor, StdDev(values))
	return b
}

// Mean is the arithmetic mean; 0 for an empty series.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Median returns the middle value (average of the two middle values for an
// even count) without reordering the caller's slice.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// StdDev is the population standard deviation.
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := Mean(values)
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)))
}

func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0 // drop negative zero
	}
	return r
}
