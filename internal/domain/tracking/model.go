package tracking

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a record does not exist for the subject.
var ErrNotFound = errors.New("not found")

const dateLayout = "2006-01-02"

// Date is a calendar day carried as UTC midnight; it marshals as YYYY-MM-DD.
type Date struct {
	time.Time
}

func NewDate(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// PainEvent is one reported pain episode.
type PainEvent struct {
	ID          uuid.UUID `db:"id" json:"id"`
	SubjectID   string    `db:"subject_id" json:"subject_id"`
	OccurredAt  time.Time `db:"occurred_at" json:"occurred_at"`
	PainScore   int       `db:"pain_score" json:"pain_score"`
	Fatigue     int       `db:"fatigue" json:"fatigue"`
	BodySites   []string  `db:"body_sites" json:"body_sites"`
	Tags        []string  `db:"tags" json:"tags"`
	DurationMin int       `db:"duration_min" json:"duration_min"`
	Notes       *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// HydrationLog is a day's total fluid intake; one per subject and day.
type HydrationLog struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	SubjectID    string          `db:"subject_id" json:"subject_id"`
	Date         Date            `db:"day" json:"date"`
	VolumeLiters decimal.Decimal `db:"volume_liters" json:"volume_liters"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// LabResult is a single analyte measurement.
type LabResult struct {
	ID          uuid.UUID        `db:"id" json:"id"`
	SubjectID   string           `db:"subject_id" json:"subject_id"`
	ObservedAt  time.Time        `db:"observed_at" json:"observed_at"`
	AnalyteCode string           `db:"analyte_code" json:"analyte_code"`
	AnalyteName string           `db:"analyte_name" json:"analyte_name"`
	Value       decimal.Decimal  `db:"value" json:"value"`
	Unit        string           `db:"unit" json:"unit"`
	RefLow      *decimal.Decimal `db:"ref_low" json:"ref_low,omitempty"`
	RefHigh     *decimal.Decimal `db:"ref_high" json:"ref_high,omitempty"`
	Source      string           `db:"source" json:"source"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// Lab result sources.
const (
	SourceManual = "manual"
	SourceKafka  = "kafka"
)

// OutOfRange reports whether the value lies outside its reference range.
// A missing bound is never violated.
func (l *LabResult) OutOfRange() bool {
	if l.RefLow != nil && l.Value.LessThan(*l.RefLow) {
		return true
	}
	return l.RefHigh != nil && l.Value.GreaterThan(*l.RefHigh)
}
