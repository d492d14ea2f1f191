package risk

import (
	"context"
	"errors"
	"sort"
	"time"
)

// memStore is an in-memory Store for a single subject.
type memStore struct {
	subject   string
	symptoms  []Symptom
	hydration []Hydration
	labs      []LabValue
	failWith  error
	calls     int
}

func newMemStore(subject string) *memStore {
	return &memStore{subject: subject}
}

func (m *memStore) addSymptom(at time.Time, pain, fatigue int) *memStore {
	m.symptoms = append(m.symptoms, Symptom{OccurredAt: at, Pain: pain, Fatigue: fatigue})
	return m
}

func (m *memStore) addHydration(day time.Time, liters float64) *memStore {
	m.hydration = append(m.hydration, Hydration{Day: day, Liters: liters})
	return m
}

func (m *memStore) addLab(code string, at time.Time, value float64) *memStore {
	m.labs = append(m.labs, LabValue{Code: code, ObservedAt: at, Value: value})
	return m
}

func (m *memStore) Symptoms(_ context.Context, subject string, r DateRange) ([]Symptom, error) {
	m.calls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []Symptom
	if subject != m.subject {
		return out, nil
	}
	for _, s := range m.symptoms {
		if r.Contains(s.OccurredAt) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	return out, nil
}

func (m *memStore) Hydration(_ context.Context, subject string, r DateRange) ([]Hydration, error) {
	m.calls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []Hydration
	if subject != m.subject {
		return out, nil
	}
	for _, h := range m.hydration {
		if r.Contains(h.Day) {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Day.After(out[j].Day) })
	return out, nil
}

func (m *memStore) RecentLabs(_ context.Context, subject, code string, r DateRange, limit int) ([]LabValue, error) {
	m.calls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []LabValue
	if subject != m.subject {
		return out, nil
	}
	for _, l := range m.labs {
		if l.Code == code && r.Contains(l.ObservedAt) {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ObservedAt.After(out[j].ObservedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var errStoreDown = errors.New("store unavailable")

func day(s string) time.Time {
	d, err := ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func at(s string, hour int) time.Time {
	return day(s).Add(time.Duration(hour) * time.Hour)
}
