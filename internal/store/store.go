// Package store provides storage backends for OtterCoach.
//
// It includes an in-memory store for tests and development, plus persistent
// SQLite and PostgreSQL implementations selected by DSN.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/saxo751/ottercoach.ai-sub000/internal/models"
)

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL-style DSNs and "sqlite"
// for anything that looks like a file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Store is the row-level CRUD surface the conversation core depends on.
// No transactions are required across entities; memory supersession updates
// one row atomically.
type Store interface {
	Close() error

	// Users
	CreateUser(u *models.User) error
	GetUser(id string) (*models.User, error)
	GetUserByPlatform(platform, platformUserID string) (*models.User, error)
	UpdateUser(u *models.User) error
	ListOnboardedUsers() ([]models.User, error)

	// Conversation history
	AddConversationEntry(e models.ConversationEntry) error
	RecentConversation(userID string, limit int) ([]models.ConversationEntry, error)
	LastConversationTime(userID string) (time.Time, error)

	// Training sessions
	AddTrainingSession(s *models.TrainingSession) error
	RecentTrainingSessions(userID string, limit int) ([]models.TrainingSession, error)

	// Focus periods
	AddFocusPeriod(fp *models.FocusPeriod) error
	ActiveFocusPeriod(userID string) (*models.FocusPeriod, error)

	// Goals
	AddGoal(g *models.Goal) error
	ActiveGoals(userID string) ([]models.Goal, error)

	// Memories
	AddMemory(m *models.Memory) error
	ActiveMemories(userID string) ([]models.Memory, error)
	SupersedeMemory(oldID, newID string) error
	ArchiveStaleObservations(userID string, before time.Time) (int, error)

	// Daily log
	AppendDailyLog(e models.DailyLogEntry) error
	PruneDailyLogs(userID string, before time.Time) (int, error)
}

// InMemoryStore keeps everything in process memory. Used by tests and as the
// fallback when no DSN is configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	users    map[string]models.User
	entries  []models.ConversationEntry
	sessions []models.TrainingSession
	periods  []models.FocusPeriod
	goals    []models.Goal
	memories []models.Memory
	logs     []models.DailyLogEntry
	nextID   int64
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[string]models.User)}
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) CreateUser(u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = *u
	return nil
}

func (s *InMemoryStore) GetUser(id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	copied := u
	return &copied, nil
}

func (s *InMemoryStore) GetUserByPlatform(platform, platformUserID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Platform == platform && u.PlatformUserID == platformUserID {
			copied := u
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) UpdateUser(u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return models.ErrUserNotFound
	}
	u.UpdatedAt = time.Now()
	s.users[u.ID] = *u
	return nil
}

func (s *InMemoryStore) ListOnboardedUsers() ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.User
	for _, u := range s.users {
		if u.OnboardingComplete {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) AddConversationEntry(e models.ConversationEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	s.entries = append(s.entries, e)
	return nil
}

// RecentConversation returns the last limit entries in chronological order.
func (s *InMemoryStore) RecentConversation(userID string, limit int) ([]models.ConversationEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ConversationEntry
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *InMemoryStore) LastConversationTime(userID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last time.Time
	for _, e := range s.entries {
		if e.UserID == userID && e.Timestamp.After(last) {
			last = e.Timestamp
		}
	}
	return last, nil
}

func (s *InMemoryStore) AddTrainingSession(sess *models.TrainingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, *sess)
	return nil
}

func (s *InMemoryStore) RecentTrainingSessions(userID string, limit int) ([]models.TrainingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.TrainingSession
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) AddFocusPeriod(fp *models.FocusPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periods = append(s.periods, *fp)
	return nil
}

// ActiveFocusPeriod returns the most recent active period by start date.
func (s *InMemoryStore) ActiveFocusPeriod(userID string) (*models.FocusPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *models.FocusPeriod
	for i := range s.periods {
		fp := s.periods[i]
		if fp.UserID != userID || fp.Status != models.FocusPeriodActive {
			continue
		}
		if best == nil || fp.StartDate > best.StartDate {
			copied := fp
			best = &copied
		}
	}
	return best, nil
}

func (s *InMemoryStore) AddGoal(g *models.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals = append(s.goals, *g)
	return nil
}

func (s *InMemoryStore) ActiveGoals(userID string) ([]models.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Goal
	for _, g := range s.goals {
		if g.UserID == userID && g.Status == models.GoalActive {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *InMemoryStore) AddMemory(m *models.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories = append(s.memories, *m)
	return nil
}

// ActiveMemories returns non-superseded memories, newest first.
func (s *InMemoryStore) ActiveMemories(userID string) ([]models.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Memory
	for _, m := range s.memories {
		if m.UserID == userID && !m.Superseded {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) SupersedeMemory(oldID, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.memories {
		if s.memories[i].ID == oldID {
			s.memories[i].Superseded = true
			s.memories[i].SupersededBy = newID
			return nil
		}
	}
	return models.ErrMemoryNotFound
}

// ArchiveStaleObservations marks old observation-category memories as
// superseded (with no successor) and returns how many were archived.
func (s *InMemoryStore) ArchiveStaleObservations(userID string, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	archived := 0
	for i := range s.memories {
		m := &s.memories[i]
		if m.UserID != userID || m.Superseded {
			continue
		}
		if m.Category != models.MemoryObservation && m.Category != models.MemoryPattern {
			continue
		}
		if m.CreatedAt.Before(before) {
			m.Superseded = true
			archived++
		}
	}
	return archived, nil
}

func (s *InMemoryStore) AppendDailyLog(e models.DailyLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	s.logs = append(s.logs, e)
	return nil
}

func (s *InMemoryStore) PruneDailyLogs(userID string, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.logs[:0]
	pruned := 0
	for _, e := range s.logs {
		if e.UserID == userID && e.CreatedAt.Before(before) {
			pruned++
			continue
		}
		kept = append(kept, e)
	}
	s.logs = kept
	return pruned, nil
}
