package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnknownInsight is returned for an insight kind the service does not know.
var ErrUnknownInsight = errors.New("unknown insight kind")

// Observer is notified of every computed result.
type Observer interface {
	ObserveRisk(score int, tier Tier)
	ObserveInsight(kind, outcome string)
}

type nopObserver struct{}

func (nopObserver) ObserveRisk(int, Tier)         {}
func (nopObserver) ObserveInsight(string, string) {}

// Service exposes the two entry points of the engine. It holds no state
// between calls; every result is a function of the store's current data.
type Service struct {
	store     Store
	extractor *Extractor
	logger    zerolog.Logger
	observer  Observer
	now       func() time.Time
}

func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		extractor: NewExtractor(store),
		logger:    logger,
		observer:  nopObserver{},
		now:       time.Now,
	}
}

// SetObserver installs o; nil restores the no-op observer.
func (s *Service) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	s.observer = o
}

// SetClock overrides the source of "today" used by insights.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Today returns the current UTC calendar day.
func (s *Service) Today() time.Time {
	return Day(s.now())
}

// ComputeDailyRisk scores subject's day. Storage errors are the only
// failures; missing data degrades to neutral features.
func (s *Service) ComputeDailyRisk(ctx context.Context, subject string, day time.Time) (*DailyRisk, error) {
	d := Day(day)
	fs, err := s.extractor.Extract(ctx, subject, d)
	if err != nil {
		return nil, err
	}
	a := Score(fs)
	s.observer.ObserveRisk(a.Score, a.Tier)
	s.logger.Debug().
		Str("subject", subject).
		Str("date", d.Format(DateLayout)).
		Int("score", a.Score).
		Str("tier", string(a.Tier)).
		Int("features", len(fs)).
		Msg("daily risk computed")

	return &DailyRisk{
		Subject:     subject,
		Date:        d.Format(DateLayout),
		Score:       a.Score,
		Tier:        a.Tier,
		Explanation: a.Explanation,
		Raw:         a.Raw,
	}, nil
}

// ComputeInsight runs one insight generator. windowDays <= 0 uses the
// default window; lab drift reads the latest values regardless of window.
func (s *Service) ComputeInsight(ctx context.Context, subject, kind string, windowDays int) (Finding, error) {
	switch kind {
	case InsightHydrationPain:
		f, err := s.hydrationPain(ctx, subject, windowDays)
		if err != nil {
			return nil, err
		}
		s.observer.ObserveInsight(kind, f.Strength)
		return f, nil
	case InsightLabDrift:
		f, err := s.labDrift(ctx, subject)
		if err != nil {
			return nil, err
		}
		outcome := "clear"
		if len(f.Items) > 0 {
			outcome = "flagged"
		}
		s.observer.ObserveInsight(kind, outcome)
		return f, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownInsight, kind)
	}
}

// ComputeInsights runs every generator in a fixed order.
func (s *Service) ComputeInsights(ctx context.Context, subject string, windowDays int) ([]Finding, error) {
	var out []Finding
	for _, kind := range []string{InsightHydrationPain, InsightLabDrift} {
		f, err := s.ComputeInsight(ctx, subject, kind, windowDays)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *Service) hydrationPain(ctx context.Context, subject string, windowDays int) (*HydrationPainFinding, error) {
	if windowDays <= 0 {
		windowDays = DefaultInsightWindowDays
	}
	end := s.Today()
	r := DateRange{From: end.AddDate(0, 0, -windowDays), To: end}

	symptoms, err := s.store.Symptoms(ctx, subject, r)
	if err != nil {
		return nil, fmt.Errorf("query symptoms: %w", err)
	}
	hydration, err := s.store.Hydration(ctx, subject, r)
	if err != nil {
		return nil, fmt.Errorf("query hydration: %w", err)
	}
	return AnalyzeHydrationPain(symptoms, hydration), nil
}

func (s *Service) labDrift(ctx context.Context, subject string) (*LabDriftFinding, error) {
	r := DateRange{To: s.Today()}
	series := make([]LabSeries, 0, len(DriftAnalytes))
	for _, code := range DriftAnalytes {
		values, err := s.store.RecentLabs(ctx, subject, code, r, DriftSeriesLen)
		if err != nil {
			return nil, fmt.Errorf("query labs %s: %w", code, err)
		}
		ls := LabSeries{Code: code, Values: make([]float64, len(values))}
		for i, v := range values {
			ls.Values[i] = v.Value
		}
		series = append(series, ls)
	}
	return AnalyzeLabDrift(series), nil
}
