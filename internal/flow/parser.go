// Package flow implements the conversation orchestration core: the data
// extraction protocol, message alternation repair, the per-mode handlers, and
// the engine that dispatches inbound messages between them.
package flow

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/saxo751/ottercoach.ai-sub000/internal/models"
)

// DataDelimiter separates the human-facing reply text from the JSON data
// block in model output.
const DataDelimiter = "---DATA---"

// ExtractedData is the untrusted JSON side-channel attached to a model reply.
// Every field is optional; pointer types distinguish "absent or null" (no new
// information this turn) from an explicit value. A null field must never
// clear a stored value.
type ExtractedData struct {
	// Onboarding / profile fields
	Name               *string            `json:"name"`
	ExperienceMonths   *int               `json:"experience_months"`
	Belt               *string            `json:"belt"`
	GameStyle          *string            `json:"game_style"`
	TrainingSchedule   *map[string]string `json:"training_schedule"`
	Timezone           *string            `json:"timezone"`
	Injuries           *string            `json:"injuries"`
	Goals              *string            `json:"goals"`
	FocusArea          *string            `json:"focus_area"`
	OnboardingComplete *bool              `json:"onboarding_complete"`

	// Mode completion flags
	CheckinComplete *bool `json:"checkin_complete"`
	DebriefComplete *bool `json:"debrief_complete"`

	// Flat session fields emitted by the debrief handler
	TrainingType *string   `json:"training_type"`
	DurationMins *int      `json:"duration_minutes"`
	Positions    *[]string `json:"positions"`
	Techniques   *[]string `json:"techniques"`
	Wins         *string   `json:"wins"`
	Struggles    *string   `json:"struggles"`
	NewLearnings *string   `json:"new_learnings"`

	// Nested objects emitted by the free-chat handler
	Session        *SessionData    `json:"session"`
	ProfileUpdates *ProfileUpdates `json:"profile_updates"`

	// Shared side channels processed in every mode
	Memories []MemoryExtraction `json:"memories"`
	DailyLog *string            `json:"daily_log"`
}

// SessionData is the nested training-session object used by free chat.
type SessionData struct {
	Date         *string   `json:"date"`
	TrainingType *string   `json:"training_type"`
	DurationMins *int      `json:"duration_minutes"`
	Positions    *[]string `json:"positions"`
	Techniques   *[]string `json:"techniques"`
	Wins         *string   `json:"wins"`
	Struggles    *string   `json:"struggles"`
	NewLearnings *string   `json:"new_learnings"`
}

// ProfileUpdates is the nested profile object used by free chat.
type ProfileUpdates struct {
	Belt             *string            `json:"belt"`
	ExperienceMonths *int               `json:"experience_months"`
	GameStyle        *string            `json:"game_style"`
	TrainingSchedule *map[string]string `json:"training_schedule"`
	Timezone         *string            `json:"timezone"`
	Injuries         *string            `json:"injuries"`
	Goals            *string            `json:"goals"`
	FocusArea        *string            `json:"focus_area"`
}

// MemoryExtraction is one entry of the memory side channel.
type MemoryExtraction struct {
	Action            string                `json:"action"`
	Category          models.MemoryCategory `json:"category"`
	Content           string                `json:"content"`
	Confidence        int                   `json:"confidence"`
	SupersedesContent string                `json:"supersedes_content"`
}

// ParseAIResponse splits raw model output on the data delimiter. The text
// before the delimiter is always returned; the JSON tail is parsed into
// ExtractedData or dropped (with a log line) when malformed. No delimiter
// means the whole output is text.
func ParseAIResponse(raw string) (string, *ExtractedData) {
	idx := strings.Index(raw, DataDelimiter)
	if idx < 0 {
		return strings.TrimSpace(raw), nil
	}
	text := strings.TrimSpace(raw[:idx])
	tail := strings.TrimSpace(raw[idx+len(DataDelimiter):])
	if tail == "" {
		return text, nil
	}
	var data ExtractedData
	if err := json.Unmarshal([]byte(tail), &data); err != nil {
		slog.Warn("flow.ParseAIResponse: malformed data block dropped", "error", err, "tailLength", len(tail))
		return text, nil
	}
	return text, &data
}
