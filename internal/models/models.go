// Package models defines the core data structures for OtterCoach.
//
// It includes the user/profile model, conversation history entries, training
// records, and the long-term memory rows shared across modules.
package models

import (
	"errors"
	"time"
)

// Validation constants for input validation
const (
	// MaxMessageLength defines the maximum allowed length for a single message body
	MaxMessageLength = 8192
	// DefaultHistoryWindow is the number of recent conversation entries fed to the model
	DefaultHistoryWindow = 30
	// MinConfidence and MaxConfidence bound the confidence score on extracted memories
	MinConfidence = 1
	MaxConfidence = 5
	// DefaultConfidence is used when the model omits a confidence score
	DefaultConfidence = 3
)

// Error variables for better error handling and testability
var (
	ErrEmptyUserID        = errors.New("user id cannot be empty")
	ErrEmptyPlatform      = errors.New("platform cannot be empty")
	ErrMessageTooLong     = errors.New("message exceeds maximum length")
	ErrInvalidRole        = errors.New("invalid conversation role")
	ErrInvalidMode        = errors.New("invalid conversation mode")
	ErrInvalidCategory    = errors.New("invalid memory category")
	ErrInvalidTimezone    = errors.New("invalid timezone")
	ErrUnschedulableDays  = errors.New("training schedule has no times and cannot be scheduled")
	ErrUserNotFound       = errors.New("user not found")
	ErrMemoryNotFound     = errors.New("memory not found")
	ErrFocusPeriodMissing = errors.New("focus period not found")
)

// Role identifies the author of a conversation entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// IsValidRole checks if the given role is supported.
func IsValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// User is the per-athlete row: identity, profile, scheduling state, and the
// current conversation mode. Created on first contact; never deleted.
type User struct {
	ID                  string           `json:"id"`
	Platform            string           `json:"platform"`
	PlatformUserID      string           `json:"platform_user_id"`
	DisplayName         string           `json:"display_name,omitempty"`
	Belt                string           `json:"belt,omitempty"`
	ExperienceMonths    int              `json:"experience_months,omitempty"`
	GameStyle           string           `json:"game_style,omitempty"`
	TrainingDays        TrainingSchedule `json:"training_days,omitempty"`
	Timezone            string           `json:"timezone,omitempty"` // e.g. "America/Toronto"
	ConversationMode    ConversationMode `json:"conversation_mode"`
	OnboardingComplete  bool             `json:"onboarding_complete"`
	LastScheduledAction string           `json:"last_scheduled_action,omitempty"`
	LastScheduledDate   string           `json:"last_scheduled_date,omitempty"` // "2006-01-02" in the user's local time
	Injuries            string           `json:"injuries,omitempty"`
	Goals               string           `json:"goals,omitempty"`
	FocusArea           string           `json:"focus_area,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// Location resolves the user's timezone, falling back to UTC.
func (u *User) Location() *time.Location {
	if u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ConversationEntry is one message in a user's history. Append-only.
type ConversationEntry struct {
	ID        int64     `json:"id,omitempty"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Channel   string    `json:"channel,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TrainingSession is a logged training record, created when a debrief (or a
// free-chat session report) completes. Immutable once created.
type TrainingSession struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Date          string    `json:"date"` // "2006-01-02"
	TrainingType  string    `json:"training_type,omitempty"`
	DurationMins  int       `json:"duration_minutes,omitempty"`
	Positions     []string  `json:"positions,omitempty"`
	Techniques    []string  `json:"techniques,omitempty"`
	Wins          string    `json:"wins,omitempty"`
	Struggles     string    `json:"struggles,omitempty"`
	NewLearnings  string    `json:"new_learnings,omitempty"`
	FocusPeriodID string    `json:"focus_period_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// FocusPeriodStatus represents the lifecycle of a focus period.
type FocusPeriodStatus string

const (
	FocusPeriodActive    FocusPeriodStatus = "active"
	FocusPeriodCompleted FocusPeriodStatus = "completed"
	FocusPeriodPaused    FocusPeriodStatus = "paused"
)

// FocusPeriod is a named multi-week training emphasis. At most one active
// period (most recent by start date) is consulted by prompts.
type FocusPeriod struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Positions   []string          `json:"positions,omitempty"`
	Techniques  []string          `json:"techniques,omitempty"`
	StartDate   string            `json:"start_date"`
	EndDate     string            `json:"end_date,omitempty"`
	Status      FocusPeriodStatus `json:"status"`
}

// GoalStatus represents the lifecycle of a goal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
)

// Goal is a free-text training objective.
type Goal struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Text      string     `json:"text"`
	Status    GoalStatus `json:"status"`
	Progress  string     `json:"progress,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// MemoryCategory classifies a long-term memory and decides how many of that
// category are surfaced in prompts.
type MemoryCategory string

const (
	MemoryIdentity    MemoryCategory = "identity"
	MemoryPreference  MemoryCategory = "preference"
	MemoryFact        MemoryCategory = "fact"
	MemoryInsight     MemoryCategory = "coaching_insight"
	MemoryObservation MemoryCategory = "session_observation"
	MemoryPattern     MemoryCategory = "pattern"
)

// IsValidMemoryCategory checks if the given category is supported.
// Unknown categories coming back from the model are silently dropped.
func IsValidMemoryCategory(c MemoryCategory) bool {
	switch c {
	case MemoryIdentity, MemoryPreference, MemoryFact, MemoryInsight, MemoryObservation, MemoryPattern:
		return true
	default:
		return false
	}
}

// ContextCap returns how many memories of the category are included in
// prompt context. Zero means unlimited.
func (c MemoryCategory) ContextCap() int {
	switch c {
	case MemoryInsight:
		return 10
	case MemoryObservation, MemoryPattern:
		return 5
	default:
		return 0
	}
}

// Memory is a small curated long-term fact extracted from conversation.
type Memory struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	Category     MemoryCategory `json:"category"`
	Content      string         `json:"content"`
	Confidence   int            `json:"confidence"`
	Superseded   bool           `json:"superseded"`
	SupersededBy string         `json:"superseded_by,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// DailyLogEntry is one dated free-text journal line appended from any mode.
type DailyLogEntry struct {
	ID        int64     `json:"id,omitempty"`
	UserID    string    `json:"user_id"`
	Date      string    `json:"date"` // "2006-01-02"
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// InboundMessage is a channel-agnostic incoming message handed to the engine.
type InboundMessage struct {
	Platform       string    `json:"platform"`
	PlatformUserID string    `json:"platform_user_id"`
	Text           string    `json:"text"`
	Time           time.Time `json:"time"`
}

// Validate performs basic validation on an inbound message.
func (m *InboundMessage) Validate() error {
	if m.Platform == "" {
		return ErrEmptyPlatform
	}
	if m.PlatformUserID == "" {
		return ErrEmptyUserID
	}
	if len(m.Text) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// ClampConfidence forces a memory confidence score into [MinConfidence,
// MaxConfidence]; zero (absent) becomes DefaultConfidence.
func ClampConfidence(c int) int {
	if c == 0 {
		return DefaultConfidence
	}
	if c < MinConfidence {
		return MinConfidence
	}
	if c > MaxConfidence {
		return MaxConfidence
	}
	return c
}
