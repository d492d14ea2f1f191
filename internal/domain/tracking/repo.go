package tracking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TimeRange selects records with From <= t < To. A nil From is open-ended.
type TimeRange struct {
	From *time.Time
	To   time.Time
}

type PainEventRepository interface {
	Create(ctx context.Context, e *PainEvent) error
	GetByID(ctx context.Context, subject string, id uuid.UUID) (*PainEvent, error)
	Update(ctx context.Context, e *PainEvent) error
	Delete(ctx context.Context, subject string, id uuid.UUID) error
	ListBySubject(ctx context.Context, subject string, limit, offset int) ([]*PainEvent, int, error)
	ListInRange(ctx context.Context, subject string, r TimeRange) ([]*PainEvent, error)
}

type HydrationLogRepository interface {
	// Upsert inserts or replaces the log for (subject, date).
	Upsert(ctx context.Context, h *HydrationLog) error
	GetByID(ctx context.Context, subject string, id uuid.UUID) (*HydrationLog, error)
	Delete(ctx context.Context, subject string, id uuid.UUID) error
	ListBySubject(ctx context.Context, subject string, limit, offset int) ([]*HydrationLog, int, error)
	ListInRange(ctx context.Context, subject string, r TimeRange) ([]*HydrationLog, error)
}

type LabResultRepository interface {
	Create(ctx context.Context, l *LabResult) error
	GetByID(ctx context.Context, subject string, id uuid.UUID) (*LabResult, error)
	Update(ctx context.Context, l *LabResult) error
	Delete(ctx context.Context, subject string, id uuid.UUID) error
	// ListBySubject filters by analyte when code is non-empty.
	ListBySubject(ctx context.Context, subject, code string, limit, offset int) ([]*LabResult, int, error)
	Recent(ctx context.Context, subject, code string, r TimeRange, limit int) ([]*LabResult, error)
}

type SubjectRepository interface {
	// ActiveSince lists subjects with any record created or observed since t.
	ActiveSince(ctx context.Context, since time.Time) ([]string, error)
}
