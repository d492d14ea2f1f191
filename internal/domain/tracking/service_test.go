package tracking

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// -- Mock Repositories --

type mockPainRepo struct {
	items map[uuid.UUID]*PainEvent
	err   error
}

func newMockPainRepo() *mockPainRepo {
	return &mockPainRepo{items: make(map[uuid.UUID]*PainEvent)}
}

func (m *mockPainRepo) Create(_ context.Context, e *PainEvent) error {
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	m.items[e.ID] = e
	return nil
}

func (m *mockPainRepo) GetByID(_ context.Context, subject string, id uuid.UUID) (*PainEvent, error) {
	e, ok := m.items[id]
	if !ok || e.SubjectID != subject {
		return nil, ErrNotFound
	}
	return e, nil
}

func (m *mockPainRepo) Update(_ context.Context, e *PainEvent) error {
	old, ok := m.items[e.ID]
	if !ok || old.SubjectID != e.SubjectID {
		return ErrNotFound
	}
	m.items[e.ID] = e
	return nil
}

func (m *mockPainRepo) Delete(_ context.Context, subject string, id uuid.UUID) error {
	e, ok := m.items[id]
	if !ok || e.SubjectID != subject {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockPainRepo) ListBySubject(_ context.Context, subject string, limit, offset int) ([]*PainEvent, int, error) {
	var out []*PainEvent
	for _, e := range m.items {
		if e.SubjectID == subject {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	return page(out, limit, offset), len(out), nil
}

func (m *mockPainRepo) ListInRange(_ context.Context, subject string, r TimeRange) ([]*PainEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*PainEvent
	for _, e := range m.items {
		if e.SubjectID == subject && inRange(e.OccurredAt, r) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	return out, nil
}

type mockHydrationRepo struct {
	items map[uuid.UUID]*HydrationLog
}

func newMockHydrationRepo() *mockHydrationRepo {
	return &mockHydrationRepo{items: make(map[uuid.UUID]*HydrationLog)}
}

func (m *mockHydrationRepo) Upsert(_ context.Context, h *HydrationLog) error {
	for id, existing := range m.items {
		if existing.SubjectID == h.SubjectID && existing.Date.Equal(h.Date.Time) {
			h.ID = id
			h.CreatedAt = existing.CreatedAt
			h.UpdatedAt = time.Now()
			m.items[id] = h
			return nil
		}
	}
	h.ID = uuid.New()
	h.CreatedAt = time.Now()
	h.UpdatedAt = h.CreatedAt
	m.items[h.ID] = h
	return nil
}

func (m *mockHydrationRepo) GetByID(_ context.Context, subject string, id uuid.UUID) (*HydrationLog, error) {
	h, ok := m.items[id]
	if !ok || h.SubjectID != subject {
		return nil, ErrNotFound
	}
	return h, nil
}

func (m *mockHydrationRepo) Delete(_ context.Context, subject string, id uuid.UUID) error {
	h, ok := m.items[id]
	if !ok || h.SubjectID != subject {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockHydrationRepo) ListBySubject(_ context.Context, subject string, limit, offset int) ([]*HydrationLog, int, error) {
	out, _ := m.ListInRange(context.Background(), subject, TimeRange{To: time.Now().AddDate(100, 0, 0)})
	return page(out, limit, offset), len(out), nil
}

func (m *mockHydrationRepo) ListInRange(_ context.Context, subject string, r TimeRange) ([]*HydrationLog, error) {
	var out []*HydrationLog
	for _, h := range m.items {
		if h.SubjectID == subject && inRange(h.Date.Time, r) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date.Time) })
	return out, nil
}

type mockLabRepo struct {
	items map[uuid.UUID]*LabResult
}

func newMockLabRepo() *mockLabRepo {
	return &mockLabRepo{items: make(map[uuid.UUID]*LabResult)}
}

func (m *mockLabRepo) Create(_ context.Context, l *LabResult) error {
	l.ID = uuid.New()
	l.CreatedAt = time.Now()
	l.UpdatedAt = l.CreatedAt
	m.items[l.ID] = l
	return nil
}

func (m *mockLabRepo) GetByID(_ context.Context, subject string, id uuid.UUID) (*LabResult, error) {
	l, ok := m.items[id]
	if !ok || l.SubjectID != subject {
		return nil, ErrNotFound
	}
	return l, nil
}

func (m *mockLabRepo) Update(_ context.Context, l *LabResult) error {
	old, ok := m.items[l.ID]
	if !ok || old.SubjectID != l.SubjectID {
		return ErrNotFound
	}
	m.items[l.ID] = l
	return nil
}

func (m *mockLabRepo) Delete(_ context.Context, subject string, id uuid.UUID) error {
	l, ok := m.items[id]
	if !ok || l.SubjectID != subject {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockLabRepo) ListBySubject(_ context.Context, subject, code string, limit, offset int) ([]*LabResult, int, error) {
	var out []*LabResult
	for _, l := range m.items {
		if l.SubjectID == subject && (code == "" || l.AnalyteCode == code) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObservedAt.After(out[j].ObservedAt) })
	return page(out, limit, offset), len(out), nil
}

func (m *mockLabRepo) Recent(_ context.Context, subject, code string, r TimeRange, limit int) ([]*LabResult, error) {
	var out []*LabResult
	for _, l := range m.items {
		if l.SubjectID == subject && l.AnalyteCode == code && inRange(l.ObservedAt, r) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObservedAt.After(out[j].ObservedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type mockSubjectRepo struct {
	subjects []string
}

func (m *mockSubjectRepo) ActiveSince(_ context.Context, _ time.Time) ([]string, error) {
	return m.subjects, nil
}

func inRange(t time.Time, r TimeRange) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	return t.Before(r.To)
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit < len(items) {
		items = items[:limit]
	}
	return items
}

type testRepos struct {
	pain      *mockPainRepo
	hydration *mockHydrationRepo
	labs      *mockLabRepo
	subjects  *mockSubjectRepo
}

func newTestRepos() testRepos {
	return testRepos{
		pain:      newMockPainRepo(),
		hydration: newMockHydrationRepo(),
		labs:      newMockLabRepo(),
		subjects:  &mockSubjectRepo{},
	}
}

func newTestService() *Service {
	r := newTestRepos()
	return NewService(r.pain, r.hydration, r.labs, r.subjects)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// -- Pain Event Tests --

func TestService_CreatePainEvent(t *testing.T) {
	svc := newTestService()
	e := &PainEvent{SubjectID: "p1", PainScore: 7, Fatigue: 3}
	if err := svc.CreatePainEvent(context.Background(), e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID == uuid.Nil {
		t.Error("expected ID to be assigned")
	}
	if e.OccurredAt.IsZero() {
		t.Error("expected occurred_at to default to now")
	}
	if e.BodySites == nil || e.Tags == nil {
		t.Error("expected body_sites and tags to default to empty lists")
	}
}

func TestService_CreatePainEvent_Validation(t *testing.T) {
	tests := []struct {
		name string
		e    PainEvent
	}{
		{"missing subject", PainEvent{PainScore: 3}},
		{"pain above 10", PainEvent{SubjectID: "p1", PainScore: 11}},
		{"negative pain", PainEvent{SubjectID: "p1", PainScore: -1}},
		{"fatigue above 5", PainEvent{SubjectID: "p1", Fatigue: 6}},
		{"negative duration", PainEvent{SubjectID: "p1", DurationMin: -5}},
	}
	svc := newTestService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := tt.e
			if err := svc.CreatePainEvent(context.Background(), &e); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestService_PainEventsScopedToSubject(t *testing.T) {
	svc := newTestService()
	e := &PainEvent{SubjectID: "p1", PainScore: 4}
	svc.CreatePainEvent(context.Background(), e)

	if _, err := svc.GetPainEvent(context.Background(), "p2", e.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for another subject, got %v", err)
	}
	if err := svc.DeletePainEvent(context.Background(), "p2", e.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting another subject's event, got %v", err)
	}
	if _, err := svc.GetPainEvent(context.Background(), "p1", e.ID); err != nil {
		t.Errorf("expected event to survive, got %v", err)
	}
}

func TestService_ListPainEvents_NewestFirst(t *testing.T) {
	svc := newTestService()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		svc.CreatePainEvent(context.Background(), &PainEvent{SubjectID: "p1", PainScore: i, OccurredAt: base.AddDate(0, 0, i)})
	}

	items, total, err := svc.ListPainEvents(context.Background(), "p1", 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Fatalf("expected 2 of 3 events, got %d of %d", len(items), total)
	}
	if items[0].PainScore != 2 {
		t.Errorf("expected newest event first, got pain %d", items[0].PainScore)
	}
}

// -- Hydration Tests --

func TestService_LogHydration_UpsertsByDay(t *testing.T) {
	svc := newTestService()
	day, _ := ParseDate("2026-03-10")

	first := &HydrationLog{SubjectID: "p1", Date: day, VolumeLiters: dec("1.5")}
	if err := svc.LogHydration(context.Background(), first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second := &HydrationLog{SubjectID: "p1", Date: day, VolumeLiters: dec("2.25")}
	if err := svc.LogHydration(context.Background(), second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.ID != second.ID {
		t.Error("expected the second log to replace the first")
	}
	items, total, _ := svc.ListHydration(context.Background(), "p1", 10, 0)
	if total != 1 {
		t.Fatalf("expected a single log for the day, got %d", total)
	}
	if !items[0].VolumeLiters.Equal(dec("2.25")) {
		t.Errorf("expected 2.25 liters, got %s", items[0].VolumeLiters)
	}
}

func TestService_LogHydration_Validation(t *testing.T) {
	day, _ := ParseDate("2026-03-10")
	tests := []struct {
		name string
		h    HydrationLog
	}{
		{"missing date", HydrationLog{SubjectID: "p1", VolumeLiters: dec("1")}},
		{"negative volume", HydrationLog{SubjectID: "p1", Date: day, VolumeLiters: dec("-0.5")}},
		{"volume too large", HydrationLog{SubjectID: "p1", Date: day, VolumeLiters: dec("1000")}},
		{"missing subject", HydrationLog{Date: day, VolumeLiters: dec("1")}},
	}
	svc := newTestService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := tt.h
			if err := svc.LogHydration(context.Background(), &h); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestService_LogHydration_RoundsToCentiliters(t *testing.T) {
	svc := newTestService()
	day, _ := ParseDate("2026-03-10")
	h := &HydrationLog{SubjectID: "p1", Date: day, VolumeLiters: dec("1.234")}
	svc.LogHydration(context.Background(), h)
	if !h.VolumeLiters.Equal(dec("1.23")) {
		t.Errorf("expected 1.23, got %s", h.VolumeLiters)
	}
}

// -- Lab Result Tests --

func TestService_CreateLabResult_NormalizesCode(t *testing.T) {
	svc := newTestService()
	l := &LabResult{SubjectID: "p1", AnalyteCode: " ldh ", Value: dec("410"), Unit: "U/L", ObservedAt: time.Now()}
	if err := svc.CreateLabResult(context.Background(), l); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.AnalyteCode != "LDH" {
		t.Errorf("expected LDH, got %s", l.AnalyteCode)
	}
	if l.AnalyteName == "" {
		t.Error("expected analyte name to be filled from the vocabulary")
	}
	if l.Source != SourceManual {
		t.Errorf("expected manual source, got %s", l.Source)
	}
}

func TestService_CreateLabResult_Validation(t *testing.T) {
	now := time.Now()
	low, high := dec("12"), dec("10")
	tests := []struct {
		name string
		l    LabResult
	}{
		{"unknown analyte", LabResult{SubjectID: "p1", AnalyteCode: "GLUCOSE", Value: dec("5"), Unit: "mmol/L", ObservedAt: now}},
		{"missing unit", LabResult{SubjectID: "p1", AnalyteCode: "HB", Value: dec("9"), ObservedAt: now}},
		{"negative value", LabResult{SubjectID: "p1", AnalyteCode: "HB", Value: dec("-1"), Unit: "g/dL", ObservedAt: now}},
		{"missing observed_at", LabResult{SubjectID: "p1", AnalyteCode: "HB", Value: dec("9"), Unit: "g/dL"}},
		{"inverted range", LabResult{SubjectID: "p1", AnalyteCode: "HB", Value: dec("9"), Unit: "g/dL", ObservedAt: now, RefLow: &low, RefHigh: &high}},
	}
	svc := newTestService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := tt.l
			if err := svc.CreateLabResult(context.Background(), &l); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestService_ListLabResults_FiltersByCode(t *testing.T) {
	svc := newTestService()
	now := time.Now()
	svc.CreateLabResult(context.Background(), &LabResult{SubjectID: "p1", AnalyteCode: "HB", Value: dec("9"), Unit: "g/dL", ObservedAt: now})
	svc.CreateLabResult(context.Background(), &LabResult{SubjectID: "p1", AnalyteCode: "LDH", Value: dec("300"), Unit: "U/L", ObservedAt: now})

	items, total, err := svc.ListLabResults(context.Background(), "p1", "hb", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || items[0].AnalyteCode != "HB" {
		t.Errorf("expected only the HB result, got %d items", total)
	}
}

func TestService_ActiveSubjects(t *testing.T) {
	r := newTestRepos()
	r.subjects.subjects = []string{"p1", "p2"}
	svc := NewService(r.pain, r.hydration, r.labs, r.subjects)

	got, err := svc.ActiveSubjects(context.Background(), time.Now().AddDate(0, 0, -14))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 subjects, got %v", got)
	}
}
