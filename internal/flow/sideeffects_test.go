package flow

import (
	"testing"
	"time"

	"github.com/saxo751/ottercoach.ai-sub000/internal/models"
	"github.com/saxo751/ottercoach.ai-sub000/internal/store"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func boolPtr(b bool) *bool    { return &b }

func TestApplyProfileData_NullNeverClears(t *testing.T) {
	user := &models.User{ID: "u1", DisplayName: "Alex", Belt: "blue", Injuries: "sore knee"}
	changed := applyProfileData(user, &ExtractedData{
		Belt:     nil, // explicit null from the model
		Injuries: nil,
		GameStyle: strPtr("pressure passing"),
	})
	if !changed {
		t.Error("expected change from game style")
	}
	if user.Belt != "blue" || user.Injuries != "sore knee" {
		t.Errorf("null cleared stored fields: belt=%q injuries=%q", user.Belt, user.Injuries)
	}
	if user.GameStyle != "pressure passing" {
		t.Errorf("present field not applied: %q", user.GameStyle)
	}
}

func TestApplyProfileData_ScheduleAndTimezone(t *testing.T) {
	user := &models.User{ID: "u1"}
	schedule := map[string]string{"Monday": "19:00", "wednesday": "bad-time", "funday": "19:00"}
	applyProfileData(user, &ExtractedData{
		TrainingSchedule: &schedule,
		Timezone:         strPtr("America/Toronto"),
	})
	if got, ok := user.TrainingDays.TimeFor(time.Monday); !ok || got != "19:00" {
		t.Errorf("monday time = %q (%v), want 19:00", got, ok)
	}
	if _, ok := user.TrainingDays.TimeFor(time.Wednesday); ok {
		t.Error("invalid time survived schedule normalization")
	}
	if user.Timezone != "America/Toronto" {
		t.Errorf("timezone = %q", user.Timezone)
	}

	// Invalid timezone must be dropped without clearing the stored value.
	applyProfileData(user, &ExtractedData{Timezone: strPtr("Mars/Olympus")})
	if user.Timezone != "America/Toronto" {
		t.Errorf("invalid timezone overwrote stored one: %q", user.Timezone)
	}
}

func TestApplyMemories_AddAndSupersede(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Now()
	_ = st.AddMemory(&models.Memory{
		ID: "m-old", UserID: "u1", Category: models.MemoryFact,
		Content: "trains mornings at Alliance", Confidence: 4, CreatedAt: now.Add(-time.Hour),
	})

	applyMemories(st, "u1", []MemoryExtraction{
		{Action: "supersede", Category: models.MemoryFact, Content: "trains evenings at Gracie Barra", Confidence: 9, SupersedesContent: "trains mornings"},
		{Action: "add", Category: "nonsense_category", Content: "should be dropped"},
		{Action: "add", Category: models.MemoryPreference, Content: "prefers no-gi"},
	}, now)

	active, _ := st.ActiveMemories("u1")
	if len(active) != 2 {
		t.Fatalf("got %d active memories, want 2 (superseded old, dropped invalid): %+v", len(active), active)
	}
	for _, m := range active {
		if m.ID == "m-old" {
			t.Error("old memory was not superseded")
		}
		if m.Content == "trains evenings at Gracie Barra" && m.Confidence != models.MaxConfidence {
			t.Errorf("confidence not clamped: %d", m.Confidence)
		}
	}
}

func TestApplyMemories_DefaultConfidence(t *testing.T) {
	st := store.NewInMemoryStore()
	applyMemories(st, "u1", []MemoryExtraction{
		{Action: "add", Category: models.MemoryFact, Content: "left-handed"},
	}, time.Now())
	active, _ := st.ActiveMemories("u1")
	if len(active) != 1 || active[0].Confidence != models.DefaultConfidence {
		t.Errorf("memories = %+v, want one with default confidence", active)
	}
}

func TestSessionFromFlat(t *testing.T) {
	user := &models.User{ID: "u1", Timezone: "UTC"}
	now := time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)
	data := &ExtractedData{
		TrainingType: strPtr("gi"),
		DurationMins: intPtr(90),
		Techniques:   &[]string{"knee cut", "armbar"},
		Struggles:    strPtr("got swept from half guard"),
	}
	s := sessionFromFlat(user, data, "fp1", now)
	if s.Date != "2026-03-02" {
		t.Errorf("date = %q", s.Date)
	}
	if s.TrainingType != "gi" || s.DurationMins != 90 || len(s.Techniques) != 2 {
		t.Errorf("fields not applied: %+v", s)
	}
	if s.FocusPeriodID != "fp1" {
		t.Errorf("focus period not linked: %q", s.FocusPeriodID)
	}
}

func TestSessionFromNested_DateFallback(t *testing.T) {
	user := &models.User{ID: "u1", Timezone: "UTC"}
	now := time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)

	s := sessionFromNested(user, &SessionData{Date: strPtr("2026-02-28")}, "", now)
	if s.Date != "2026-02-28" {
		t.Errorf("explicit date ignored: %q", s.Date)
	}

	s = sessionFromNested(user, &SessionData{Date: strPtr("yesterday-ish")}, "", now)
	if s.Date != "2026-03-02" {
		t.Errorf("invalid date should fall back to today, got %q", s.Date)
	}
}
