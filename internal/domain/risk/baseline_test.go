package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate_Empty(t *testing.T) {
	b := EstimateMean(nil)
	assert.Equal(t, 0.0, b.Center)
	assert.Equal(t, SpreadFloor, b.Spread)

	b = EstimateMedian([]float64{})
	assert.Equal(t, 0.0, b.Center)
	assert.Equal(t, 0.1, b.Spread)
}

func TestEstimate_SingleValueUsesFloor(t *testing.T) {
	b := EstimateMean([]float64{250})
	assert.Equal(t, 250.0, b.Center)
	assert.Equal(t, SpreadFloor, b.Spread)
}

func TestEstimate_ConstantSeriesIsFloored(t *testing.T) {
	b := EstimateMean([]float64{3, 3, 3, 3})
	assert.Equal(t, 3.0, b.Center)
	assert.Equal(t, SpreadFloor, b.Spread)
}

func TestEstimate_PopulationStdDev(t *testing.T) {
	b := EstimateMean([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, b.Center, 1e-12)
	assert.InDelta(t, 2.0, b.Spread, 1e-12)
}

func TestEstimateMedian_CenterResistsOutlier(t *testing.T) {
	b := EstimateMedian([]float64{10, 11, 9, 100})
	assert.InDelta(t, 10.5, b.Center, 1e-12)
	assert.Greater(t, b.Spread, 1.0)
}

func TestMedian_DoesNotReorderInput(t *testing.T) {
	in := []float64{5, 1, 3}
	assert.Equal(t, 3.0, Median(in))
	assert.Equal(t, []float64{5, 1, 3}, in)
}

func TestZFeature_EmptyBaselineIsNoSignal(t *testing.T) {
	assert.Equal(t, 0.0, ZFeature(0, nil, HigherIsWorse, Mean))
	assert.Equal(t, 0.0, ZFeature(0, []float64{}, LowerIsWorse, Median))
}

func TestZFeature_EmptyBaselineFallsBackToZero(t *testing.T) {
	// baseline [0] -> center 0, spread floor
	assert.InDelta(t, 20.0, ZFeature(2, nil, HigherIsWorse, Mean), 1e-9)
	assert.InDelta(t, -20.0, ZFeature(2, nil, LowerIsWorse, Mean), 1e-9)
}

func TestZFeature_Direction(t *testing.T) {
	base := []float64{1, 3}
	assert.InDelta(t, 2.0, ZFeature(4, base, HigherIsWorse, Mean), 1e-12)
	assert.InDelta(t, -2.0, ZFeature(4, base, LowerIsWorse, Mean), 1e-12)
}
