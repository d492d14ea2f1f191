package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/sicklecare/sicklecare/internal/domain/risk"
)

// BreakerConfig controls the circuit breaker in front of the risk queries.
type BreakerConfig struct {
	MaxFailures uint32
	Timeout     time.Duration
}

// RiskStore serves the risk engine's reads from the tracking repositories.
// Every query runs through one circuit breaker so a failing database fails
// fast instead of stacking up slow risk requests.
type RiskStore struct {
	pain      PainEventRepository
	hydration HydrationLogRepository
	labs      LabResultRepository
	cb        *gobreaker.CircuitBreaker[any]
}

var _ risk.Store = (*RiskStore)(nil)

func NewRiskStore(pain PainEventRepository, hydration HydrationLogRepository, labs LabResultRepository, cfg BreakerConfig, logger zerolog.Logger) *RiskStore {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "risk-store",
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
	return &RiskStore{pain: pain, hydration: hydration, labs: labs, cb: cb}
}

// State exposes the breaker state for health reporting.
func (s *RiskStore) State() gobreaker.State {
	return s.cb.State()
}

func execute[T any](cb *gobreaker.CircuitBreaker[any], fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (any, error) {
		v, err := fn()
		return v, err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// timeRange converts inclusive calendar days into a half-open instant range.
func timeRange(r risk.DateRange) TimeRange {
	tr := TimeRange{To: risk.Day(r.To).AddDate(0, 0, 1)}
	if !r.From.IsZero() {
		from := risk.Day(r.From)
		tr.From = &from
	}
	return tr
}

func (s *RiskStore) Symptoms(ctx context.Context, subject string, r risk.DateRange) ([]risk.Symptom, error) {
	events, err := execute(s.cb, func() ([]*PainEvent, error) {
		return s.pain.ListInRange(ctx, subject, timeRange(r))
	})
	if err != nil {
		return nil, err
	}
	out := make([]risk.Symptom, len(events))
	for i, e := range events {
		out[i] = risk.Symptom{OccurredAt: e.OccurredAt, Pain: e.PainScore, Fatigue: e.Fatigue}
	}
	return out, nil
}

func (s *RiskStore) Hydration(ctx context.Context, subject string, r risk.DateRange) ([]risk.Hydration, error) {
	logs, err := execute(s.cb, func() ([]*HydrationLog, error) {
		return s.hydration.ListInRange(ctx, subject, timeRange(r))
	})
	if err != nil {
		return nil, err
	}
	out := make([]risk.Hydration, len(logs))
	for i, h := range logs {
		out[i] = risk.Hydration{Day: h.Date.Time, Liters: h.VolumeLiters.InexactFloat64()}
	}
	return out, nil
}

func (s *RiskStore) RecentLabs(ctx context.Context, subject, code string, r risk.DateRange, limit int) ([]risk.LabValue, error) {
	labs, err := execute(s.cb, func() ([]*LabResult, error) {
		return s.labs.Recent(ctx, subject, code, timeRange(r), limit)
	})
	if err != nil {
		return nil, err
	}
	out := make([]risk.LabValue, len(labs))
	for i, l := range labs {
		out[i] = risk.LabValue{Code: l.AnalyteCode, ObservedAt: l.ObservedAt, Value: l.Value.InexactFloat64()}
	}
	return out, nil
}
