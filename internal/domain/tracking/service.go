package tracking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sicklecare/sicklecare/internal/domain/risk"
)

var maxVolumeLiters = decimal.NewFromInt(1000)

type Service struct {
	pain      PainEventRepository
	hydration HydrationLogRepository
	labs      LabResultRepository
	subjects  SubjectRepository
	now       func() time.Time
}

func NewService(pain PainEventRepository, hydration HydrationLogRepository, labs LabResultRepository, subjects SubjectRepository) *Service {
	return &Service{
		pain:      pain,
		hydration: hydration,
		labs:      labs,
		subjects:  subjects,
		now:       time.Now,
	}
}

// -- Pain Events --

func (s *Service) validatePainEvent(e *PainEvent) error {
	if e.SubjectID == "" {
		return fmt.Errorf("subject_id is required")
	}
	if e.PainScore < 0 || e.PainScore > 10 {
		return fmt.Errorf("pain_score must be between 0 and 10")
	}
	if e.Fatigue < 0 || e.Fatigue > 5 {
		return fmt.Errorf("fatigue must be between 0 and 5")
	}
	if e.DurationMin < 0 {
		return fmt.Errorf("duration_min must not be negative")
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.now().UTC()
	}
	if e.BodySites == nil {
		e.BodySites = []string{}
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	return nil
}

func (s *Service) CreatePainEvent(ctx context.Context, e *PainEvent) error {
	if err := s.validatePainEvent(e); err != nil {
		return err
	}
	return s.pain.Create(ctx, e)
}

func (s *Service) GetPainEvent(ctx context.Context, subject string, id uuid.UUID) (*PainEvent, error) {
	return s.pain.GetByID(ctx, subject, id)
}

func (s *Service) UpdatePainEvent(ctx context.Context, e *PainEvent) error {
	if err := s.validatePainEvent(e); err != nil {
		return err
	}
	return s.pain.Update(ctx, e)
}

func (s *Service) DeletePainEvent(ctx context.Context, subject string, id uuid.UUID) error {
	return s.pain.Delete(ctx, subject, id)
}

func (s *Service) ListPainEvents(ctx context.Context, subject string, limit, offset int) ([]*PainEvent, int, error) {
	return s.pain.ListBySubject(ctx, subject, limit, offset)
}

// -- Hydration --

// LogHydration records the day's intake, replacing any earlier log for the
// same day.
func (s *Service) LogHydration(ctx context.Context, h *HydrationLog) error {
	if h.SubjectID == "" {
		return fmt.Errorf("subject_id is required")
	}
	if h.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	if h.VolumeLiters.IsNegative() {
		return fmt.Errorf("volume_liters must not be negative")
	}
	if h.VolumeLiters.GreaterThanOrEqual(maxVolumeLiters) {
		return fmt.Errorf("volume_liters out of range")
	}
	h.Date = NewDate(h.Date.Time)
	h.VolumeLiters = h.VolumeLiters.Round(2)
	return s.hydration.Upsert(ctx, h)
}

func (s *Service) GetHydration(ctx context.Context, subject string, id uuid.UUID) (*HydrationLog, error) {
	return s.hydration.GetByID(ctx, subject, id)
}

func (s *Service) DeleteHydration(ctx context.Context, subject string, id uuid.UUID) error {
	return s.hydration.Delete(ctx, subject, id)
}

func (s *Service) ListHydration(ctx context.Context, subject string, limit, offset int) ([]*HydrationLog, int, error) {
	return s.hydration.ListBySubject(ctx, subject, limit, offset)
}

// -- Lab Results --

// ValidateLabResult normalizes l and reports the first rule it breaks.
func (s *Service) ValidateLabResult(l *LabResult) error {
	if l.SubjectID == "" {
		return fmt.Errorf("subject_id is required")
	}
	l.AnalyteCode = strings.ToUpper(strings.TrimSpace(l.AnalyteCode))
	spec, ok := risk.LookupAnalyte(l.AnalyteCode)
	if !ok {
		return fmt.Errorf("unknown analyte_code %q", l.AnalyteCode)
	}
	if l.AnalyteName == "" {
		l.AnalyteName = spec.Name
	}
	if l.ObservedAt.IsZero() {
		return fmt.Errorf("observed_at is required")
	}
	if l.Value.IsNegative() {
		return fmt.Errorf("value must not be negative")
	}
	if strings.TrimSpace(l.Unit) == "" {
		return fmt.Errorf("unit is required")
	}
	if l.RefLow != nil && l.RefHigh != nil && l.RefLow.GreaterThan(*l.RefHigh) {
		return fmt.Errorf("ref_low must not exceed ref_high")
	}
	if l.Source == "" {
		l.Source = SourceManual
	}
	return nil
}

func (s *Service) CreateLabResult(ctx context.Context, l *LabResult) error {
	if err := s.ValidateLabResult(l); err != nil {
		return err
	}
	return s.labs.Create(ctx, l)
}

func (s *Service) GetLabResult(ctx context.Context, subject string, id uuid.UUID) (*LabResult, error) {
	return s.labs.GetByID(ctx, subject, id)
}

func (s *Service) UpdateLabResult(ctx context.Context, l *LabResult) error {
	if err := s.ValidateLabResult(l); err != nil {
		return err
	}
	return s.labs.Update(ctx, l)
}

func (s *Service) DeleteLabResult(ctx context.Context, subject string, id uuid.UUID) error {
	return s.labs.Delete(ctx, subject, id)
}

func (s *Service) ListLabResults(ctx context.Context, subject, code string, limit, offset int) ([]*LabResult, int, error) {
	return s.labs.ListBySubject(ctx, subject, strings.ToUpper(code), limit, offset)
}

// -- Subjects --

// ActiveSubjects lists subjects with any record on or after since.
func (s *Service) ActiveSubjects(ctx context.Context, since time.Time) ([]string, error) {
	return s.subjects.ActiveSince(ctx, since)
}
