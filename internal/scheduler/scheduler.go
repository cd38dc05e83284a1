// Package scheduler drives the proactive side of OtterCoach.
//
// A cron tick every ten minutes walks all onboarded users, runs once-a-day
// maintenance, times out stale conversations, and fires check-in, briefing,
// and debrief messages when a user's local time enters the matching window.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/saxo751/ottercoach.ai-sub000/internal/models"
	"github.com/saxo751/ottercoach.ai-sub000/internal/store"
)

// DefaultTickSpec runs the evaluation every ten minutes. The send windows are
// 20-minute bands, wide enough that tick jitter can neither skip a user nor
// double-send (the idempotency marker covers the overlap).
const DefaultTickSpec = "*/10 * * * *"

// StaleConversationTimeout is how long a check-in or debrief may sit without
// a user message before it is force-resolved.
const StaleConversationTimeout = 30 * time.Minute

// Retention windows applied by daily maintenance.
const (
	DailyLogRetention    = 90 * 24 * time.Hour
	ObservationRetention = 30 * 24 * time.Hour
)

// Window geometry, in minutes. The check-in band is a fixed morning slot,
// skipped when training starts before the early cutoff (a briefing alone
// suffices for dawn sessions). Briefing and debrief are relative to the
// day's training time T.
const (
	checkInWindowStart  = 7*60 + 50 // 07:50 local
	checkInWindowEnd    = 8*60 + 10 // 08:10 local
	earlyTrainingCutoff = 9 * 60    // 09:00 local

	briefingLeadStart = 40 // T-40 .. T-20
	briefingLeadEnd   = 20
	debriefLagStart   = 50 // T+50 .. T+80
	debriefLagEnd     = 80
)

// Action names stamped into the idempotency marker.
const (
	ActionCheckIn  = "check_in"
	ActionBriefing = "briefing"
	ActionDebrief  = "debrief"
)

// ProactiveSender is the engine surface the scheduler drives.
type ProactiveSender interface {
	Proactive(ctx context.Context, user *models.User, mode models.ConversationMode) error
	WrapUpDebrief(ctx context.Context, user *models.User) error
	ResolveStaleCheckIn(ctx context.Context, user *models.User) error
}

// Opts holds configuration options for the scheduler.
type Opts struct {
	Now      func() time.Time
	TickSpec string
}

// Option defines a configuration option for the scheduler.
type Option func(*Opts)

// WithClock injects a clock, used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// WithTickSpec overrides the cron expression for the evaluation tick.
func WithTickSpec(spec string) Option {
	return func(o *Opts) { o.TickSpec = spec }
}

// Scheduler owns the recurring evaluation tick.
type Scheduler struct {
	store  store.Store
	engine ProactiveSender
	cron   *cron.Cron
	now    func() time.Time

	tickSpec string
	// lastMaintenance is the UTC date maintenance last ran. Kept in process
	// memory: a restart re-runs maintenance, which is harmless since pruning
	// and archival are idempotent.
	lastMaintenance string
}

// New creates a scheduler over the given store and engine.
func New(st store.Store, engine ProactiveSender, opts ...Option) *Scheduler {
	cfg := Opts{Now: time.Now, TickSpec: DefaultTickSpec}
	for _, opt := range opts {
		opt(&cfg)
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &Scheduler{store: st, engine: engine, cron: c, now: cfg.Now, tickSpec: cfg.TickSpec}
}

// Start registers the tick and starts the cron loop.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.tickSpec, func() { s.Tick(context.Background()) })
	if err != nil {
		return fmt.Errorf("failed to schedule tick: %w", err)
	}
	s.cron.Start()
	slog.Info("Scheduler.Start: tick registered", "spec", s.tickSpec)
	return nil
}

// Stop stops the cron loop and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("Scheduler.Stop: stopped")
}

// Tick runs one full evaluation pass. Exported so tests can drive it with an
// injected clock.
func (s *Scheduler) Tick(ctx context.Context) {
	users, err := s.store.ListOnboardedUsers()
	if err != nil {
		slog.Error("Scheduler.Tick: failed to list users", "error", err)
		return
	}
	s.runDailyMaintenance(users)
	for i := range users {
		s.processUser(ctx, &users[i])
	}
}

// runDailyMaintenance prunes old daily logs and archives stale observation
// memories, once per UTC calendar day. Failures are logged, never fatal.
func (s *Scheduler) runDailyMaintenance(users []models.User) {
	today := s.now().UTC().Format("2006-01-02")
	if s.lastMaintenance == today {
		return
	}
	s.lastMaintenance = today
	now := s.now()
	for _, u := range users {
		if n, err := s.store.PruneDailyLogs(u.ID, now.Add(-DailyLogRetention)); err != nil {
			slog.Error("Scheduler.runDailyMaintenance: log pruning failed", "error", err, "userID", u.ID)
		} else if n > 0 {
			slog.Debug("Scheduler.runDailyMaintenance: pruned daily logs", "userID", u.ID, "count", n)
		}
		if n, err := s.store.ArchiveStaleObservations(u.ID, now.Add(-ObservationRetention)); err != nil {
			slog.Error("Scheduler.runDailyMaintenance: memory archival failed", "error", err, "userID", u.ID)
		} else if n > 0 {
			slog.Debug("Scheduler.runDailyMaintenance: archived stale observations", "userID", u.ID, "count", n)
		}
	}
	slog.Info("Scheduler.runDailyMaintenance: done", "date", today, "users", len(users))
}

// processUser evaluates one user. Any failure (or panic) is contained here so
// the remaining users still get their tick.
func (s *Scheduler) processUser(ctx context.Context, user *models.User) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Scheduler.processUser: panic recovered", "panic", r, "userID", user.ID)
		}
	}()
	if s.resolveStaleConversation(ctx, user) {
		return
	}
	if err := s.evaluateWindows(ctx, user); err != nil {
		slog.Error("Scheduler.processUser: window evaluation failed", "error", err, "userID", user.ID)
	}
}

// resolveStaleConversation force-completes check-ins and debriefs the user
// walked away from. Returns true when a timeout was handled this tick.
func (s *Scheduler) resolveStaleConversation(ctx context.Context, user *models.User) bool {
	if user.ConversationMode != models.ModeCheckIn && user.ConversationMode != models.ModeDebrief {
		return false
	}
	last, err := s.store.LastConversationTime(user.ID)
	if err != nil {
		slog.Error("Scheduler.resolveStaleConversation: failed to read last message time", "error", err, "userID", user.ID)
		return false
	}
	if last.IsZero() || s.now().Sub(last) <= StaleConversationTimeout {
		return false
	}
	slog.Info("Scheduler.resolveStaleConversation: conversation stale",
		"userID", user.ID, "mode", user.ConversationMode, "idle", s.now().Sub(last))
	if user.ConversationMode == models.ModeDebrief {
		if err := s.engine.WrapUpDebrief(ctx, user); err != nil {
			slog.Error("Scheduler.resolveStaleConversation: debrief wrap-up failed", "error", err, "userID", user.ID)
		}
		return true
	}
	if err := s.engine.ResolveStaleCheckIn(ctx, user); err != nil {
		slog.Error("Scheduler.resolveStaleConversation: check-in timeout failed", "error", err, "userID", user.ID)
	}
	return true
}

// evaluateWindows fires at most one proactive action per tick per user, based
// on local time against the day's training time and the idempotency marker.
func (s *Scheduler) evaluateWindows(ctx context.Context, user *models.User) error {
	if !user.TrainingDays.Schedulable() {
		// Legacy day-list schedules carry no times and cannot be scheduled.
		return nil
	}
	localNow := s.now().In(user.Location())
	hhmm, ok := user.TrainingDays.TimeFor(localNow.Weekday())
	if !ok {
		return nil
	}
	trainingMin, err := models.ParseClock(hhmm)
	if err != nil {
		return fmt.Errorf("unparseable training time %q: %w", hhmm, err)
	}
	nowMin := localNow.Hour()*60 + localNow.Minute()
	today := localNow.Format("2006-01-02")

	sentToday := ""
	if user.LastScheduledDate == today {
		sentToday = user.LastScheduledAction
	}

	switch {
	case trainingMin >= earlyTrainingCutoff &&
		inBand(nowMin, checkInWindowStart, checkInWindowEnd) &&
		sentToday == "":
		return s.fire(ctx, user, ActionCheckIn, models.ModeCheckIn, today)

	case inBand(nowMin, trainingMin-briefingLeadStart, trainingMin-briefingLeadEnd) &&
		(sentToday == "" || sentToday == ActionCheckIn):
		return s.fire(ctx, user, ActionBriefing, models.ModeBriefing, today)

	case inBand(nowMin, trainingMin+debriefLagStart, trainingMin+debriefLagEnd) &&
		sentToday == ActionBriefing:
		return s.fire(ctx, user, ActionDebrief, models.ModeDebrief, today)
	}
	return nil
}

func inBand(now, start, end int) bool {
	return now >= start && now <= end
}

// fire sends one proactive action and stamps the idempotency marker so the
// same window cannot fire twice on the same local date.
func (s *Scheduler) fire(ctx context.Context, user *models.User, action string, mode models.ConversationMode, localDate string) error {
	slog.Info("Scheduler.fire: sending proactive action", "userID", user.ID, "action", action, "date", localDate)
	if err := s.engine.Proactive(ctx, user, mode); err != nil {
		return fmt.Errorf("proactive %s failed: %w", action, err)
	}
	user.LastScheduledAction = action
	user.LastScheduledDate = localDate
	if err := s.store.UpdateUser(user); err != nil {
		return fmt.Errorf("failed to stamp idempotency marker: %w", err)
	}
	return nil
}
