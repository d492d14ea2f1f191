// Package scheduler runs the periodic risk sweep: every run recomputes today's
// risk for each recently active subject and reports how many are high risk.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/sicklecare/sicklecare/internal/domain/risk"
)

// ErrSweepRunning is returned when a sweep is requested while one is active.
var ErrSweepRunning = errors.New("risk sweep already running")

// SubjectLister finds the subjects worth sweeping.
type SubjectLister interface {
	ActiveSubjects(ctx context.Context, since time.Time) ([]string, error)
}

// RiskComputer computes one subject's daily risk.
type RiskComputer interface {
	ComputeDailyRisk(ctx context.Context, subject string, date time.Time) (*risk.DailyRisk, error)
}

// SweepObserver counts finished sweeps.
type SweepObserver interface {
	ObserveSweep(result string)
}

type Config struct {
	// Schedule is a standard five-field cron spec; empty disables the job.
	Schedule     string
	LookbackDays int
	Concurrency  int
	// SubjectTimeout bounds each subject's computation.
	SubjectTimeout time.Duration
}

// Summary describes one finished sweep.
type Summary struct {
	StartedAt    time.Time `json:"started_at"`
	Subjects     int       `json:"subjects"`
	High         int       `json:"high"`
	Failed       int       `json:"failed"`
	HighSubjects []string  `json:"-"`
}

// Sweeper owns the cron schedule and executes sweeps.
type Sweeper struct {
	cfg      Config
	subjects SubjectLister
	risk     RiskComputer
	observer SweepObserver
	logger   zerolog.Logger
	now      func() time.Time

	cron    *cron.Cron
	running atomic.Bool
}

func NewSweeper(cfg Config, subjects SubjectLister, rc RiskComputer, logger zerolog.Logger) *Sweeper {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 14
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.SubjectTimeout <= 0 {
		cfg.SubjectTimeout = 30 * time.Second
	}
	return &Sweeper{
		cfg:      cfg,
		subjects: subjects,
		risk:     rc,
		logger:   logger.With().Str("component", "risk-sweep").Logger(),
		now:      time.Now,
	}
}

func (s *Sweeper) SetObserver(o SweepObserver) {
	s.observer = o
}

// SetClock replaces the time source.
func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

// ValidateSchedule reports whether spec is a usable cron spec.
func ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	return nil
}

// Start schedules the sweep. It is a no-op when no schedule is configured.
func (s *Sweeper) Start() error {
	if s.cfg.Schedule == "" {
		s.logger.Info().Msg("risk sweep disabled")
		return nil
	}
	if s.cron != nil {
		return fmt.Errorf("risk sweep already started")
	}
	if err := ValidateSchedule(s.cfg.Schedule); err != nil {
		return err
	}

	cl := cronLogger{s.logger}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(s.cfg.Schedule, s.scheduledRun); err != nil {
		return fmt.Errorf("schedule risk sweep: %w", err)
	}
	c.Start()
	s.cron = c
	s.logger.Info().Str("schedule", s.cfg.Schedule).Int("lookback_days", s.cfg.LookbackDays).Msg("risk sweep scheduled")
	return nil
}

// Stop halts the schedule and waits for a running sweep, or for ctx.
func (s *Sweeper) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn().Msg("risk sweep still running at shutdown")
	}
}

func (s *Sweeper) scheduledRun() {
	if _, err := s.RunOnce(context.Background()); err != nil && !errors.Is(err, ErrSweepRunning) {
		s.logger.Error().Err(err).Msg("scheduled risk sweep failed")
	}
}

// RunOnce sweeps all subjects active within the lookback window. Individual
// subject failures are counted, not returned; only a failure to list
// subjects aborts the run.
func (s *Sweeper) RunOnce(ctx context.Context) (*Summary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSweepRunning
	}
	defer s.running.Store(false)

	started := s.now().UTC()
	today := risk.Day(started)
	since := today.AddDate(0, 0, -s.cfg.LookbackDays)

	subjects, err := s.subjects.ActiveSubjects(ctx, since)
	if err != nil {
		s.observe("error")
		return nil, fmt.Errorf("list active subjects: %w", err)
	}

	sum := &Summary{StartedAt: started, Subjects: len(subjects)}
	var mu sync.Mutex
	var wg sync.WaitGroup
	work := make(chan string)

	for i := 0; i < s.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for subject := range work {
				dr, err := s.computeOne(ctx, subject, today)
				mu.Lock()
				switch {
				case err != nil:
					sum.Failed++
				case dr.Tier == risk.TierHigh:
					sum.High++
					sum.HighSubjects = append(sum.HighSubjects, subject)
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, subject := range subjects {
		select {
		case work <- subject:
		case <-ctx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()

	result := "ok"
	if sum.Failed > 0 {
		result = "partial"
	}
	s.observe(result)
	s.logger.Info().
		Str("date", today.Format(risk.DateLayout)).
		Int("subjects", sum.Subjects).
		Int("high", sum.High).
		Int("failed", sum.Failed).
		Dur("elapsed", s.now().Sub(started)).
		Msg("risk sweep finished")
	return sum, ctx.Err()
}

func (s *Sweeper) computeOne(ctx context.Context, subject string, day time.Time) (*risk.DailyRisk, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SubjectTimeout)
	defer cancel()

	dr, err := s.risk.ComputeDailyRisk(ctx, subject, day)
	if err != nil {
		s.logger.Warn().Err(err).Str("subject", subject).Msg("risk computation failed")
		return nil, err
	}
	if dr.Tier == risk.TierHigh {
		s.logger.Info().Str("subject", subject).Int("score", dr.Score).Msg("high risk day")
	}
	return dr, nil
}

func (s *Sweeper) observe(result string) {
	if s.observer != nil {
		s.observer.ObserveSweep(result)
	}
}

// cronLogger adapts zerolog to cron's logger interface.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
