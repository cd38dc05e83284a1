package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/saxo751/ottercoach.ai-sub000/internal/models"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// encodeJSON marshals v to a string, or empty string for empty values.
func encodeJSON(v interface{}) (string, error) {
	switch t := v.(type) {
	case []string:
		if len(t) == 0 {
			return "", nil
		}
	case models.TrainingSchedule:
		if t.IsEmpty() {
			return "", nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode JSON column: %w", err)
	}
	return string(b), nil
}

func decodeStringList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// scanUser scans a user row in the column order of the users table.
func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var displayName, belt, gameStyle, trainingDays, timezone sql.NullString
	var lastAction, lastDate, injuries, goals, focusArea sql.NullString
	err := row.Scan(
		&u.ID, &u.Platform, &u.PlatformUserID, &displayName, &belt,
		&u.ExperienceMonths, &gameStyle, &trainingDays, &timezone,
		&u.ConversationMode, &u.OnboardingComplete, &lastAction, &lastDate,
		&injuries, &goals, &focusArea, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.DisplayName = displayName.String
	u.Belt = belt.String
	u.GameStyle = gameStyle.String
	u.Timezone = timezone.String
	u.LastScheduledAction = lastAction.String
	u.LastScheduledDate = lastDate.String
	u.Injuries = injuries.String
	u.Goals = goals.String
	u.FocusArea = focusArea.String
	if trainingDays.String != "" {
		if err := json.Unmarshal([]byte(trainingDays.String), &u.TrainingDays); err != nil {
			// A corrupt schedule column should not make the row unreadable.
			u.TrainingDays = models.TrainingSchedule{}
		}
	}
	return &u, nil
}

// scanSession scans a training session row.
func scanSession(row rowScanner) (*models.TrainingSession, error) {
	var s models.TrainingSession
	var trainingType, positions, techniques, wins, struggles, learnings, focusID sql.NullString
	err := row.Scan(
		&s.ID, &s.UserID, &s.Date, &trainingType, &s.DurationMins,
		&positions, &techniques, &wins, &struggles, &learnings, &focusID, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.TrainingType = trainingType.String
	s.Positions = decodeStringList(positions.String)
	s.Techniques = decodeStringList(techniques.String)
	s.Wins = wins.String
	s.Struggles = struggles.String
	s.NewLearnings = learnings.String
	s.FocusPeriodID = focusID.String
	return &s, nil
}

// scanFocusPeriod scans a focus period row.
func scanFocusPeriod(row rowScanner) (*models.FocusPeriod, error) {
	var fp models.FocusPeriod
	var description, positions, techniques, endDate sql.NullString
	err := row.Scan(
		&fp.ID, &fp.UserID, &fp.Name, &description, &positions, &techniques,
		&fp.StartDate, &endDate, &fp.Status,
	)
	if err != nil {
		return nil, err
	}
	fp.Description = description.String
	fp.Positions = decodeStringList(positions.String)
	fp.Techniques = decodeStringList(techniques.String)
	fp.EndDate = endDate.String
	return &fp, nil
}

// scanMemory scans a memory row.
func scanMemory(row rowScanner) (*models.Memory, error) {
	var m models.Memory
	var supersededBy sql.NullString
	err := row.Scan(
		&m.ID, &m.UserID, &m.Category, &m.Content, &m.Confidence,
		&m.Superseded, &supersededBy, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.SupersededBy = supersededBy.String
	return &m, nil
}
