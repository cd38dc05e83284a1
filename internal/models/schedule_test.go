package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTrainingScheduleUnmarshal_ObjectForm(t *testing.T) {
	var s TrainingSchedule
	err := json.Unmarshal([]byte(`{"Monday":"19:00","wednesday":"06:30","funday":"19:00","friday":"25:99"}`), &s)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !s.Schedulable() {
		t.Fatal("object form must be schedulable")
	}
	if got, ok := s.TimeFor(time.Monday); !ok || got != "19:00" {
		t.Errorf("monday = %q (%v)", got, ok)
	}
	if got, ok := s.TimeFor(time.Wednesday); !ok || got != "06:30" {
		t.Errorf("wednesday = %q (%v)", got, ok)
	}
	if _, ok := s.TimeFor(time.Friday); ok {
		t.Error("invalid clock value survived")
	}
	if len(s.Times) != 2 {
		t.Errorf("times = %v, want only valid entries", s.Times)
	}
}

func TestTrainingScheduleUnmarshal_LegacyListForm(t *testing.T) {
	var s TrainingSchedule
	if err := json.Unmarshal([]byte(`["Monday","thursday","someday"]`), &s); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if s.Schedulable() {
		t.Error("legacy list form must not be schedulable")
	}
	if s.IsEmpty() {
		t.Error("legacy days lost")
	}
	days := s.Days()
	if len(days) != 2 {
		t.Errorf("days = %v, want [monday thursday]", days)
	}
}

func TestTrainingScheduleUnmarshal_Null(t *testing.T) {
	var s TrainingSchedule
	if err := json.Unmarshal([]byte(`null`), &s); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !s.IsEmpty() {
		t.Errorf("null schedule not empty: %+v", s)
	}
}

func TestTrainingScheduleMarshal_RoundTrip(t *testing.T) {
	orig := TrainingSchedule{Times: map[string]string{"monday": "19:00"}}
	b, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var back TrainingSchedule
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got, ok := back.TimeFor(time.Monday); !ok || got != "19:00" {
		t.Errorf("round trip lost monday time: %q (%v)", got, ok)
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"07:50", 470, false},
		{"19:00", 1140, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"7pm", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseClock(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseClock(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
