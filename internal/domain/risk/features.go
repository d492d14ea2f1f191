package risk

import (
	"context"
	"fmt"
	"time"
)

// Symptom/hydration feature names.
const (
	FeaturePainFrequency    = "pain_freq_z"
	FeatureFatigue          = "fatigue_z"
	FeatureHydrationDeficit = "hydration_deficit_z"
)

// Window lengths in days.
const (
	BaselineDays   = 14
	RecentDays     = 2
	LabWindowDays  = 90
	LabBaselineMax = 12
)

// ZFeature standardizes recent against baseline and applies direction. An
// empty baseline is replaced by a single 0, so missing history scores as
// no signal rather than an error.
func ZFeature(recent float64, baseline []float64, dir Direction, center CenterFunc) float64 {
	if len(baseline) == 0 {
		baseline = []float64{0}
	}
	return float64(dir) * Estimate(baseline, center).Z(recent)
}

// Extractor pulls the windows for one day out of a Store and turns them
// into z-features.
type Extractor struct {
	store Store
}

func NewExtractor(store Store) *Extractor {
	return &Extractor{store: store}
}

// Extract returns the feature set for subject on day. Lab features appear
// only for analytes that have a recent value and at least one earlier value.
func (e *Extractor) Extract(ctx context.Context, subject string, day time.Time) (FeatureSet, error) {
	d := Day(day)
	window := DateRange{From: d.AddDate(0, 0, -BaselineDays), To: d}

	symptoms, err := e.store.Symptoms(ctx, subject, window)
	if err != nil {
		return nil, fmt.Errorf("query symptoms: %w", err)
	}
	hydration, err := e.store.Hydration(ctx, subject, window)
	if err != nil {
		return nil, fmt.Errorf("query hydration: %w", err)
	}

	fs := symptomFeatures(d, symptoms)
	fs = append(fs, hydrationFeature(d, hydration))

	labWindow := DateRange{From: d.AddDate(0, 0, -LabWindowDays), To: d}
	for _, spec := range LabFeatureTable {
		values, err := e.store.RecentLabs(ctx, subject, spec.Code, labWindow, LabBaselineMax+1)
		if err != nil {
			return nil, fmt.Errorf("query labs %s: %w", spec.Code, err)
		}
		if f, ok := labFeature(spec, values); ok {
			fs = append(fs, f)
		}
	}
	return fs, nil
}

func symptomFeatures(d time.Time, symptoms []Symptom) FeatureSet {
	baselineFrom := d.AddDate(0, 0, -BaselineDays)
	recentFrom := d.AddDate(0, 0, -RecentDays)
	baselineDays := map[time.Time]struct{}{}
	recentDays := map[time.Time]struct{}{}
	var baselineFatigue, todayFatigue []float64

	for _, s := range symptoms {
		sd := Day(s.OccurredAt)
		if sd.After(d) || sd.Before(baselineFrom) {
			continue
		}
		if sd.Before(d) {
			baselineDays[sd] = struct{}{}
			baselineFatigue = append(baselineFatigue, float64(s.Fatigue))
		} else {
			todayFatigue = append(todayFatigue, float64(s.Fatigue))
		}
		if !sd.Before(recentFrom) {
			recentDays[sd] = struct{}{}
		}
	}

	synthetic := make([]float64, len(baselineDays))
	for i := range synthetic {
		synthetic[i] = 1
	}

	return FeatureSet{
		{Name: FeaturePainFrequency, Value: ZFeature(float64(len(recentDays)), synthetic, HigherIsWorse, Mean)},
		{Name: FeatureFatigue, Value: ZFeature(Mean(todayFatigue), baselineFatigue, HigherIsWorse, Mean)},
	}
}

func hydrationFeature(d time.Time, hydration []Hydration) Feature {
	baselineFrom := d.AddDate(0, 0, -BaselineDays)
	var baseline []float64
	var today float64
	seenToday := false
	for _, h := range hydration {
		hd := Day(h.Day)
		switch {
		case hd.Before(baselineFrom):
			continue
		case hd.Equal(d):
			if !seenToday {
				today = h.Liters
				seenToday = true
			}
		case hd.Before(d):
			baseline = append(baseline, h.Liters)
		}
	}
	return Feature{Name: FeatureHydrationDeficit, Value: ZFeature(today, baseline, LowerIsWorse, Mean)}
}

func labFeature(spec AnalyteSpec, values []LabValue) (Feature, bool) {
	if len(values) < 2 {
		return Feature{}, false
	}
	if len(values) > LabBaselineMax+1 {
		values = values[:LabBaselineMax+1]
	}
	baseline := make([]float64, 0, len(values)-1)
	for _, v := range values[1:] {
		baseline = append(baseline, v.Value)
	}
	z := ZFeature(values[0].Value, baseline, spec.Direction, Median)
	return Feature{Name: spec.FeatureName(), Value: spec.Weight * z}, true
}
