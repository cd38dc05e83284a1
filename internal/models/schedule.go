// Package models defines the training schedule representation for OtterCoach.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Weekday names accepted in training schedules, lowercase.
var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// TrainingSchedule maps lowercase weekday names to "HH:MM" local training
// times. A legacy representation (a bare list of day names, no times) is
// still accepted on decode so old rows keep round-tripping, but it carries no
// times and cannot drive the scheduler.
type TrainingSchedule struct {
	Times      map[string]string `json:"-"`
	LegacyDays []string          `json:"-"`
}

// Schedulable reports whether the schedule carries per-day times.
func (s TrainingSchedule) Schedulable() bool {
	return len(s.Times) > 0
}

// IsEmpty reports whether the schedule has neither times nor legacy days.
func (s TrainingSchedule) IsEmpty() bool {
	return len(s.Times) == 0 && len(s.LegacyDays) == 0
}

// TimeFor returns the "HH:MM" training time for the given weekday, if any.
func (s TrainingSchedule) TimeFor(day time.Weekday) (string, bool) {
	for name, hhmm := range s.Times {
		if wd, ok := weekdayNames[strings.ToLower(name)]; ok && wd == day {
			return hhmm, true
		}
	}
	return "", false
}

// Days returns the weekday names present in either representation.
func (s TrainingSchedule) Days() []string {
	if len(s.Times) > 0 {
		days := make([]string, 0, len(s.Times))
		for name := range s.Times {
			days = append(days, name)
		}
		return days
	}
	return s.LegacyDays
}

// MarshalJSON writes the object form when times are present, otherwise the
// legacy array form.
func (s TrainingSchedule) MarshalJSON() ([]byte, error) {
	if len(s.Times) > 0 {
		return json.Marshal(s.Times)
	}
	if len(s.LegacyDays) > 0 {
		return json.Marshal(s.LegacyDays)
	}
	return []byte("null"), nil
}

// UnmarshalJSON accepts either {"monday":"19:00",...} or ["monday",...].
func (s *TrainingSchedule) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*s = TrainingSchedule{}
		return nil
	}
	if strings.HasPrefix(trimmed, "{") {
		var times map[string]string
		if err := json.Unmarshal(data, &times); err != nil {
			return fmt.Errorf("failed to parse training schedule object: %w", err)
		}
		normalized := make(map[string]string, len(times))
		for name, hhmm := range times {
			key := strings.ToLower(strings.TrimSpace(name))
			if _, ok := weekdayNames[key]; !ok {
				continue
			}
			if _, err := ParseClock(hhmm); err != nil {
				continue
			}
			normalized[key] = hhmm
		}
		*s = TrainingSchedule{Times: normalized}
		return nil
	}
	var days []string
	if err := json.Unmarshal(data, &days); err != nil {
		return fmt.Errorf("failed to parse training schedule list: %w", err)
	}
	normalized := make([]string, 0, len(days))
	for _, name := range days {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, ok := weekdayNames[key]; ok {
			normalized = append(normalized, key)
		}
	}
	*s = TrainingSchedule{LegacyDays: normalized}
	return nil
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(hhmm string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return 0, fmt.Errorf("time must be in HH:MM format: %w", err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
