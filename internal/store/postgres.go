// Package store provides storage backends for OtterCoach.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/saxo751/ottercoach.ai-sub000/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 25
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("PostgresStore failed to open connection", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("PostgresStore ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("PostgresStore failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore ready")
	return &PostgresStore{db: db}, nil
}

// Close closes the Postgres connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateUser(u *models.User) error {
	days, err := encodeJSON(u.TrainingDays)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		u.ID, u.Platform, u.PlatformUserID, nilIfEmpty(u.DisplayName), nilIfEmpty(u.Belt),
		u.ExperienceMonths, nilIfEmpty(u.GameStyle), nilIfEmpty(days), nilIfEmpty(u.Timezone),
		string(u.ConversationMode), u.OnboardingComplete, nilIfEmpty(u.LastScheduledAction),
		nilIfEmpty(u.LastScheduledDate), nilIfEmpty(u.Injuries), nilIfEmpty(u.Goals),
		nilIfEmpty(u.FocusArea), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateUser failed", "error", err, "userID", u.ID)
		return fmt.Errorf("failed to insert user %s: %w", u.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetUser(id string) (*models.User, error) {
	row := s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUser failed", "error", err, "userID", id)
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByPlatform(platform, platformUserID string) (*models.User, error) {
	row := s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE platform = $1 AND platform_user_id = $2`,
		platform, platformUserID)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUserByPlatform failed", "error", err, "platform", platform)
		return nil, fmt.Errorf("failed to get user by platform: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) UpdateUser(u *models.User) error {
	days, err := encodeJSON(u.TrainingDays)
	if err != nil {
		return err
	}
	u.UpdatedAt = time.Now()
	res, err := s.db.Exec(`UPDATE users SET display_name = $1, belt = $2, experience_months = $3,
		game_style = $4, training_days = $5, timezone = $6, conversation_mode = $7,
		onboarding_complete = $8, last_scheduled_action = $9, last_scheduled_date = $10,
		injuries = $11, goals = $12, focus_area = $13, updated_at = $14 WHERE id = $15`,
		nilIfEmpty(u.DisplayName), nilIfEmpty(u.Belt), u.ExperienceMonths,
		nilIfEmpty(u.GameStyle), nilIfEmpty(days), nilIfEmpty(u.Timezone),
		string(u.ConversationMode), u.OnboardingComplete, nilIfEmpty(u.LastScheduledAction),
		nilIfEmpty(u.LastScheduledDate), nilIfEmpty(u.Injuries), nilIfEmpty(u.Goals),
		nilIfEmpty(u.FocusArea), u.UpdatedAt, u.ID)
	if err != nil {
		slog.Error("PostgresStore UpdateUser failed", "error", err, "userID", u.ID)
		return fmt.Errorf("failed to update user %s: %w", u.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) ListOnboardedUsers() ([]models.User, error) {
	rows, err := s.db.Query(`SELECT ` + userColumns + ` FROM users WHERE onboarding_complete ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore ListOnboardedUsers query failed", "error", err)
		return nil, fmt.Errorf("failed to query onboarded users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	return users, nil
}

func (s *PostgresStore) AddConversationEntry(e models.ConversationEntry) error {
	_, err := s.db.Exec(`INSERT INTO conversation_entries (user_id, role, content, channel, timestamp)
		VALUES ($1, $2, $3, $4, $5)`,
		e.UserID, string(e.Role), e.Content, nilIfEmpty(e.Channel), e.Timestamp)
	if err != nil {
		slog.Error("PostgresStore AddConversationEntry failed", "error", err, "userID", e.UserID)
		return fmt.Errorf("failed to insert conversation entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentConversation(userID string, limit int) ([]models.ConversationEntry, error) {
	rows, err := s.db.Query(`SELECT id, user_id, role, content, COALESCE(channel, ''), timestamp
		FROM conversation_entries WHERE user_id = $1 ORDER BY timestamp DESC, id DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		slog.Error("PostgresStore RecentConversation query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	defer rows.Close()

	var entries []models.ConversationEntry
	for rows.Next() {
		var e models.ConversationEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Role, &e.Content, &e.Channel, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversation rows: %w", err)
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func (s *PostgresStore) LastConversationTime(userID string) (time.Time, error) {
	var last sql.NullTime
	err := s.db.QueryRow(`SELECT MAX(timestamp) FROM conversation_entries WHERE user_id = $1`, userID).Scan(&last)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last conversation time: %w", err)
	}
	if !last.Valid {
		return time.Time{}, nil
	}
	return last.Time, nil
}

func (s *PostgresStore) AddTrainingSession(sess *models.TrainingSession) error {
	positions, err := encodeJSON(sess.Positions)
	if err != nil {
		return err
	}
	techniques, err := encodeJSON(sess.Techniques)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO training_sessions (id, user_id, date, training_type,
		duration_minutes, positions, techniques, wins, struggles, new_learnings, focus_period_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		sess.ID, sess.UserID, sess.Date, nilIfEmpty(sess.TrainingType), sess.DurationMins,
		nilIfEmpty(positions), nilIfEmpty(techniques), nilIfEmpty(sess.Wins),
		nilIfEmpty(sess.Struggles), nilIfEmpty(sess.NewLearnings),
		nilIfEmpty(sess.FocusPeriodID), sess.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddTrainingSession failed", "error", err, "userID", sess.UserID)
		return fmt.Errorf("failed to insert training session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentTrainingSessions(userID string, limit int) ([]models.TrainingSession, error) {
	rows, err := s.db.Query(`SELECT id, user_id, date, training_type, duration_minutes, positions,
		techniques, wins, struggles, new_learnings, focus_period_id, created_at
		FROM training_sessions WHERE user_id = $1 ORDER BY date DESC, created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		slog.Error("PostgresStore RecentTrainingSessions query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query training sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.TrainingSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return sessions, nil
}

func (s *PostgresStore) AddFocusPeriod(fp *models.FocusPeriod) error {
	positions, err := encodeJSON(fp.Positions)
	if err != nil {
		return err
	}
	techniques, err := encodeJSON(fp.Techniques)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO focus_periods (id, user_id, name, description, positions,
		techniques, start_date, end_date, status) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		fp.ID, fp.UserID, fp.Name, nilIfEmpty(fp.Description), nilIfEmpty(positions),
		nilIfEmpty(techniques), fp.StartDate, nilIfEmpty(fp.EndDate), string(fp.Status))
	if err != nil {
		slog.Error("PostgresStore AddFocusPeriod failed", "error", err, "userID", fp.UserID)
		return fmt.Errorf("failed to insert focus period: %w", err)
	}
	return nil
}

func (s *PostgresStore) ActiveFocusPeriod(userID string) (*models.FocusPeriod, error) {
	row := s.db.QueryRow(`SELECT id, user_id, name, description, positions, techniques,
		start_date, end_date, status FROM focus_periods
		WHERE user_id = $1 AND status = 'active' ORDER BY start_date DESC LIMIT 1`, userID)
	fp, err := scanFocusPeriod(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore ActiveFocusPeriod failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get active focus period: %w", err)
	}
	return fp, nil
}

func (s *PostgresStore) AddGoal(g *models.Goal) error {
	_, err := s.db.Exec(`INSERT INTO goals (id, user_id, text, status, progress, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		g.ID, g.UserID, g.Text, string(g.Status), nilIfEmpty(g.Progress), g.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddGoal failed", "error", err, "userID", g.UserID)
		return fmt.Errorf("failed to insert goal: %w", err)
	}
	return nil
}

func (s *PostgresStore) ActiveGoals(userID string) ([]models.Goal, error) {
	rows, err := s.db.Query(`SELECT id, user_id, text, status, COALESCE(progress, ''), created_at
		FROM goals WHERE user_id = $1 AND status = 'active' ORDER BY created_at`, userID)
	if err != nil {
		slog.Error("PostgresStore ActiveGoals query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	defer rows.Close()

	var goals []models.Goal
	for rows.Next() {
		var g models.Goal
		if err := rows.Scan(&g.ID, &g.UserID, &g.Text, &g.Status, &g.Progress, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan goal row: %w", err)
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate goal rows: %w", err)
	}
	return goals, nil
}

func (s *PostgresStore) AddMemory(m *models.Memory) error {
	_, err := s.db.Exec(`INSERT INTO memories (id, user_id, category, content, confidence,
		superseded, superseded_by, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.UserID, string(m.Category), m.Content, m.Confidence,
		m.Superseded, nilIfEmpty(m.SupersededBy), m.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddMemory failed", "error", err, "userID", m.UserID)
		return fmt.Errorf("failed to insert memory: %w", err)
	}
	return nil
}

func (s *PostgresStore) ActiveMemories(userID string) ([]models.Memory, error) {
	rows, err := s.db.Query(`SELECT id, user_id, category, content, confidence, superseded,
		superseded_by, created_at FROM memories
		WHERE user_id = $1 AND NOT superseded ORDER BY created_at DESC`, userID)
	if err != nil {
		slog.Error("PostgresStore ActiveMemories query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var memories []models.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory row: %w", err)
		}
		memories = append(memories, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memory rows: %w", err)
	}
	return memories, nil
}

func (s *PostgresStore) SupersedeMemory(oldID, newID string) error {
	res, err := s.db.Exec(`UPDATE memories SET superseded = TRUE, superseded_by = $1 WHERE id = $2`, newID, oldID)
	if err != nil {
		slog.Error("PostgresStore SupersedeMemory failed", "error", err, "memoryID", oldID)
		return fmt.Errorf("failed to supersede memory %s: %w", oldID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrMemoryNotFound
	}
	return nil
}

func (s *PostgresStore) ArchiveStaleObservations(userID string, before time.Time) (int, error) {
	res, err := s.db.Exec(`UPDATE memories SET superseded = TRUE
		WHERE user_id = $1 AND NOT superseded AND created_at < $2
		AND category IN ('session_observation', 'pattern')`, userID, before)
	if err != nil {
		slog.Error("PostgresStore ArchiveStaleObservations failed", "error", err, "userID", userID)
		return 0, fmt.Errorf("failed to archive stale observations: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) AppendDailyLog(e models.DailyLogEntry) error {
	_, err := s.db.Exec(`INSERT INTO daily_logs (user_id, date, text, created_at) VALUES ($1, $2, $3, $4)`,
		e.UserID, e.Date, e.Text, e.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AppendDailyLog failed", "error", err, "userID", e.UserID)
		return fmt.Errorf("failed to insert daily log: %w", err)
	}
	return nil
}

func (s *PostgresStore) PruneDailyLogs(userID string, before time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM daily_logs WHERE user_id = $1 AND created_at < $2`, userID, before)
	if err != nil {
		slog.Error("PostgresStore PruneDailyLogs failed", "error", err, "userID", userID)
		return 0, fmt.Errorf("failed to prune daily logs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
