package flow

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saxo751/ottercoach.ai-sub000/internal/models"
	"github.com/saxo751/ottercoach.ai-sub000/internal/store"
)

// applyProfileData writes the flat profile fields of the data block onto the
// user. Only present-and-non-null fields are written; an explicit null means
// "no new information this turn", never "clear this field". Returns whether
// anything changed.
func applyProfileData(user *models.User, data *ExtractedData) bool {
	changed := false
	if data.Name != nil && *data.Name != "" {
		user.DisplayName = *data.Name
		changed = true
	}
	if data.ExperienceMonths != nil && *data.ExperienceMonths > 0 {
		user.ExperienceMonths = *data.ExperienceMonths
		changed = true
	}
	if data.Belt != nil && *data.Belt != "" {
		user.Belt = *data.Belt
		changed = true
	}
	if data.GameStyle != nil && *data.GameStyle != "" {
		user.GameStyle = *data.GameStyle
		changed = true
	}
	if data.TrainingSchedule != nil && len(*data.TrainingSchedule) > 0 {
		if schedule, ok := normalizeSchedule(*data.TrainingSchedule); ok {
			user.TrainingDays = schedule
			changed = true
		}
	}
	if data.Timezone != nil && *data.Timezone != "" {
		if _, err := time.LoadLocation(*data.Timezone); err != nil {
			slog.Warn("flow.applyProfileData: invalid timezone dropped", "timezone", *data.Timezone)
		} else {
			user.Timezone = *data.Timezone
			changed = true
		}
	}
	if data.Injuries != nil && *data.Injuries != "" {
		user.Injuries = *data.Injuries
		changed = true
	}
	if data.Goals != nil && *data.Goals != "" {
		user.Goals = *data.Goals
		changed = true
	}
	if data.FocusArea != nil && *data.FocusArea != "" {
		user.FocusArea = *data.FocusArea
		changed = true
	}
	return changed
}

// applyProfileUpdates writes the nested free-chat profile_updates object onto
// the user, with the same null-preserving rules as applyProfileData.
func applyProfileUpdates(user *models.User, pu *ProfileUpdates) bool {
	flat := &ExtractedData{
		Belt:             pu.Belt,
		ExperienceMonths: pu.ExperienceMonths,
		GameStyle:        pu.GameStyle,
		TrainingSchedule: pu.TrainingSchedule,
		Timezone:         pu.Timezone,
		Injuries:         pu.Injuries,
		Goals:            pu.Goals,
		FocusArea:        pu.FocusArea,
	}
	return applyProfileData(user, flat)
}

// normalizeSchedule validates a weekday→"HH:MM" map coming from the model.
func normalizeSchedule(raw map[string]string) (models.TrainingSchedule, bool) {
	times := make(map[string]string, len(raw))
	for day, hhmm := range raw {
		key := strings.ToLower(strings.TrimSpace(day))
		if _, err := models.ParseClock(hhmm); err != nil {
			slog.Warn("flow.normalizeSchedule: invalid training time dropped", "day", key, "time", hhmm)
			continue
		}
		times[key] = strings.TrimSpace(hhmm)
	}
	schedule := models.TrainingSchedule{Times: times}
	if schedule.IsEmpty() {
		return models.TrainingSchedule{}, false
	}
	return schedule, true
}

// sessionFromFlat builds a TrainingSession from the flat debrief fields.
func sessionFromFlat(user *models.User, data *ExtractedData, focusPeriodID string, now time.Time) *models.TrainingSession {
	s := &models.TrainingSession{
		ID:            uuid.NewString(),
		UserID:        user.ID,
		Date:          now.In(user.Location()).Format("2006-01-02"),
		FocusPeriodID: focusPeriodID,
		CreatedAt:     now,
	}
	if data.TrainingType != nil {
		s.TrainingType = *data.TrainingType
	}
	if data.DurationMins != nil {
		s.DurationMins = *data.DurationMins
	}
	if data.Positions != nil {
		s.Positions = *data.Positions
	}
	if data.Techniques != nil {
		s.Techniques = *data.Techniques
	}
	if data.Wins != nil {
		s.Wins = *data.Wins
	}
	if data.Struggles != nil {
		s.Struggles = *data.Struggles
	}
	if data.NewLearnings != nil {
		s.NewLearnings = *data.NewLearnings
	}
	return s
}

// sessionFromNested builds a TrainingSession from the free-chat session
// object. The model may date the session; otherwise today (user-local) is
// assumed.
func sessionFromNested(user *models.User, sd *SessionData, focusPeriodID string, now time.Time) *models.TrainingSession {
	s := &models.TrainingSession{
		ID:            uuid.NewString(),
		UserID:        user.ID,
		Date:          now.In(user.Location()).Format("2006-01-02"),
		FocusPeriodID: focusPeriodID,
		CreatedAt:     now,
	}
	if sd.Date != nil && *sd.Date != "" {
		if _, err := time.Parse("2006-01-02", *sd.Date); err == nil {
			s.Date = *sd.Date
		}
	}
	if sd.TrainingType != nil {
		s.TrainingType = *sd.TrainingType
	}
	if sd.DurationMins != nil {
		s.DurationMins = *sd.DurationMins
	}
	if sd.Positions != nil {
		s.Positions = *sd.Positions
	}
	if sd.Techniques != nil {
		s.Techniques = *sd.Techniques
	}
	if sd.Wins != nil {
		s.Wins = *sd.Wins
	}
	if sd.Struggles != nil {
		s.Struggles = *sd.Struggles
	}
	if sd.NewLearnings != nil {
		s.NewLearnings = *sd.NewLearnings
	}
	return s
}

// applyMemories processes the shared memory side channel. Unknown categories
// are silently dropped; confidence is clamped; a supersede action links the
// most recent active memory containing the quoted substring to the new row.
// Storage failures are logged and skipped so one bad entry cannot sink the
// reply.
func applyMemories(st store.Store, userID string, entries []MemoryExtraction, now time.Time) {
	if len(entries) == 0 {
		return
	}
	for _, e := range entries {
		if !models.IsValidMemoryCategory(e.Category) {
			slog.Debug("flow.applyMemories: unknown category dropped", "category", e.Category, "userID", userID)
			continue
		}
		if strings.TrimSpace(e.Content) == "" {
			continue
		}
		m := &models.Memory{
			ID:         uuid.NewString(),
			UserID:     userID,
			Category:   e.Category,
			Content:    e.Content,
			Confidence: models.ClampConfidence(e.Confidence),
			CreatedAt:  now,
		}
		if err := st.AddMemory(m); err != nil {
			slog.Error("flow.applyMemories: failed to store memory", "error", err, "userID", userID)
			continue
		}
		if e.Action != "supersede" || strings.TrimSpace(e.SupersedesContent) == "" {
			continue
		}
		old := findSupersededMemory(st, userID, m.ID, e.SupersedesContent)
		if old == nil {
			slog.Debug("flow.applyMemories: supersede target not found", "userID", userID, "substring", e.SupersedesContent)
			continue
		}
		if err := st.SupersedeMemory(old.ID, m.ID); err != nil {
			slog.Error("flow.applyMemories: failed to supersede memory", "error", err, "memoryID", old.ID)
		}
	}
}

// findSupersededMemory returns the most recent active memory (other than the
// new row) whose content contains the substring.
func findSupersededMemory(st store.Store, userID, newID, substring string) *models.Memory {
	memories, err := st.ActiveMemories(userID)
	if err != nil {
		slog.Error("flow.findSupersededMemory: failed to load memories", "error", err, "userID", userID)
		return nil
	}
	for i := range memories {
		m := memories[i]
		if m.ID == newID {
			continue
		}
		if strings.Contains(m.Content, substring) {
			return &m
		}
	}
	return nil
}

// applyDailyLog appends one dated journal line. Processed in every mode.
func applyDailyLog(st store.Store, user *models.User, text string, now time.Time) {
	if strings.TrimSpace(text) == "" {
		return
	}
	entry := models.DailyLogEntry{
		UserID:    user.ID,
		Date:      now.In(user.Location()).Format("2006-01-02"),
		Text:      text,
		CreatedAt: now,
	}
	if err := st.AppendDailyLog(entry); err != nil {
		slog.Error("flow.applyDailyLog: failed to append entry", "error", err, "userID", user.ID)
	}
}
