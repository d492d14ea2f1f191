package tracking

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDate_JSON(t *testing.T) {
	d := NewDate(time.Date(2026, 3, 10, 22, 15, 0, 0, time.FixedZone("UTC-3", -3*3600)))
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// 22:15 at UTC-3 is already the next day in UTC
	if string(b) != `"2026-03-11"` {
		t.Errorf("expected \"2026-03-11\", got %s", b)
	}

	var back Date
	if err := json.Unmarshal([]byte(`"2026-03-10"`), &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected date %v", back.Time)
	}
}

func TestDate_ZeroIsNull(t *testing.T) {
	b, _ := json.Marshal(Date{})
	if string(b) != "null" {
		t.Errorf("expected null, got %s", b)
	}
	var d Date
	if err := json.Unmarshal([]byte("null"), &d); err != nil || !d.IsZero() {
		t.Errorf("expected zero date from null, got %v (%v)", d, err)
	}
}

func TestDate_RejectsOtherLayouts(t *testing.T) {
	var d Date
	if err := json.Unmarshal([]byte(`"10/03/2026"`), &d); err == nil {
		t.Error("expected error for non ISO date")
	}
}

func TestLabResult_OutOfRange(t *testing.T) {
	low, high := decimal.NewFromInt(12), decimal.NewFromInt(16)
	tests := []struct {
		name  string
		value string
		low   *decimal.Decimal
		high  *decimal.Decimal
		want  bool
	}{
		{"inside", "13.5", &low, &high, false},
		{"at low bound", "12", &low, &high, false},
		{"below", "9.1", &low, &high, true},
		{"above", "16.01", &low, &high, true},
		{"no bounds", "100", nil, nil, false},
		{"only high", "2", nil, &high, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &LabResult{Value: decimal.RequireFromString(tt.value), RefLow: tt.low, RefHigh: tt.high}
			if got := l.OutOfRange(); got != tt.want {
				t.Errorf("OutOfRange() = %v, want %v", got, tt.want)
			}
		})
	}
}
