package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"time"
)

// DateLayout is the calendar-date format used on the wire.
const DateLayout = "2006-01-02"

// Symptom is the part of a pain episode the engine reads.
type Symptom struct {
	OccurredAt time.Time
	Pain       int
	Fatigue    int
}

// Hydration is one day's fluid intake.
type Hydration struct {
	Day    time.Time
	Liters float64
}

// LabValue is a single analyte measurement.
type LabValue struct {
	Code       string
	ObservedAt time.Time
	Value      float64
}

// DateRange covers the calendar days From..To, both inclusive. A zero From
// leaves the range open towards the past.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls on one of the range's days.
func (r DateRange) Contains(t time.Time) bool {
	d := Day(t)
	if !r.From.IsZero() && d.Before(Day(r.From)) {
		return false
	}
	return !d.After(Day(r.To))
}

// Store is the read-only query surface the engine needs from storage.
// Every sequence is scoped to one subject. RecentLabs returns newest first.
type Store interface {
	Symptoms(ctx context.Context, subject string, r DateRange) ([]Symptom, error)
	Hydration(ctx context.Context, subject string, r DateRange) ([]Hydration, error)
	RecentLabs(ctx context.Context, subject, code string, r DateRange, limit int) ([]LabValue, error)
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD calendar date.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// Feature is a named, signed contribution to the daily risk.
type Feature struct {
	Name  string
	Value float64
}

// FeatureSet keeps features in insertion order.
type FeatureSet []Feature

// Get returns the value of the named feature.
func (fs FeatureSet) Get(name string) (float64, bool) {
	for _, f := range fs {
		if f.Name == name {
			return f.Value, true
		}
	}
	return 0, false
}

// Explanation is an ordered feature->value mapping. It marshals to a JSON
// object whose keys keep the ranking order.
type Explanation []Feature

func (e Explanation) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range e {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatFloat(f.Value, 'f', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Tier is the coarse risk class.
type Tier string

const (
	TierLow      Tier = "low"
	TierModerate Tier = "moderate"
	TierHigh     Tier = "high"
)

// Assessment is the output of Score.
type Assessment struct {
	Raw         float64
	Score       int
	Tier        Tier
	Explanation Explanation
}

// DailyRisk is the answer to "how risky is this subject's day".
type DailyRisk struct {
	Subject     string      `json:"-"`
	Date        string      `json:"date"`
	Score       int         `json:"score"`
	Tier        Tier        `json:"level"`
	Explanation Explanation `json:"explain"`
	Raw         float64     `json:"-"`
}

// Insight kinds.
const (
	InsightHydrationPain = "hydration_pain"
	InsightLabDrift      = "lab_drift"
)

// DefaultInsightWindowDays is used when the caller gives no window.
const DefaultInsightWindowDays = 28

// Finding is a structured insight tagged by its kind.
type Finding interface {
	Kind() string
}

// Correlation strengths.
const (
	StrengthWeak     = "weak"
	StrengthModerate = "moderate"
	StrengthStrong   = "strong"
)

// HydrationPainFinding reports how pain tracks hydration.
type HydrationPainFinding struct {
	Type      string   `json:"type"`
	Text      string   `json:"text"`
	Strength  string   `json:"strength"`
	Direction string   `json:"direction,omitempty"`
	R         *float64 `json:"r,omitempty"`
	Days      int      `json:"days"`
}

func (f *HydrationPainFinding) Kind() string { return f.Type }

// DriftFlag marks one analyte that moved away from its own baseline.
type DriftFlag struct {
	Code      string  `json:"code"`
	Z         float64 `json:"z"`
	Direction string  `json:"direction"`
	Text      string  `json:"text"`
}

// LabDriftFinding carries at most MaxDriftFlags flags in discovery order.
type LabDriftFinding struct {
	Type  string      `json:"type"`
	Items []DriftFlag `json:"items"`
}

func (f *LabDriftFinding) Kind() string { return f.Type }
