package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saxo751/ottercoach.ai-sub000/internal/genai"
	"github.com/saxo751/ottercoach.ai-sub000/internal/models"
	"github.com/saxo751/ottercoach.ai-sub000/internal/store"
)

const (
	// ResetCommand restarts onboarding for users who never finished it.
	ResetCommand = "/reset"

	// FallbackApology is the only text a user ever sees when handling fails.
	// Technical detail goes to logs, never to the channel.
	FallbackApology = "Sorry, something went wrong on my end. Give me a minute and message me again."

	// debriefWrapUpInstruction is the synthetic turn fed to the debrief
	// handler when the athlete has gone quiet past the staleness threshold.
	debriefWrapUpInstruction = "[the athlete has stopped responding — wrap up the debrief now in one short message, set debrief_complete, and record whatever partial data you have]"
)

// Sender delivers outbound messages through the channel layer.
type Sender interface {
	SendMessage(ctx context.Context, platform, platformUserID, text string) error
	SendSystemMessage(ctx context.Context, platform, platformUserID, text, link string) error
}

// EngineOpts holds configuration options for the engine.
type EngineOpts struct {
	Now func() time.Time
}

// EngineOption defines a configuration option for the engine.
type EngineOption func(*EngineOpts)

// WithClock injects a clock, used by tests.
func WithClock(now func() time.Time) EngineOption {
	return func(o *EngineOpts) { o.Now = now }
}

// Engine is the single entry point for inbound messages and the proactive
// entry points used by the scheduler. It routes turns to mode handlers and
// owns persistence and delivery of the replies.
type Engine struct {
	store    store.Store
	sender   Sender
	handlers map[models.ConversationMode]Handler
	now      func() time.Time
}

// NewEngine wires the engine with all five mode handlers.
func NewEngine(st store.Store, ai genai.ClientInterface, sender Sender, opts ...EngineOption) *Engine {
	cfg := EngineOpts{Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	d := deps{store: st, ai: ai, now: cfg.Now}
	handlers := map[models.ConversationMode]Handler{
		models.ModeOnboarding: &onboardingHandler{d},
		models.ModeFreeChat:   &freeChatHandler{d},
		models.ModeCheckIn:    &checkInHandler{d},
		models.ModeBriefing:   &briefingHandler{d},
		models.ModeDebrief:    &debriefHandler{d},
	}
	return &Engine{store: st, sender: sender, handlers: handlers, now: cfg.Now}
}

// HandleInbound processes one inbound channel message end to end. Failures
// are contained here: they are logged and answered with a generic apology,
// never propagated to the channel layer.
func (e *Engine) HandleInbound(ctx context.Context, msg models.InboundMessage) {
	if err := msg.Validate(); err != nil {
		slog.Warn("Engine.HandleInbound: invalid message dropped", "error", err, "platform", msg.Platform)
		return
	}
	if err := e.handleInbound(ctx, msg); err != nil {
		slog.Error("Engine.HandleInbound: handling failed", "error", err,
			"platform", msg.Platform, "platformUserID", msg.PlatformUserID)
		if sendErr := e.sender.SendMessage(ctx, msg.Platform, msg.PlatformUserID, FallbackApology); sendErr != nil {
			slog.Error("Engine.HandleInbound: failed to deliver apology", "error", sendErr, "platform", msg.Platform)
		}
	}
}

func (e *Engine) handleInbound(ctx context.Context, msg models.InboundMessage) error {
	user, err := e.resolveUser(msg)
	if err != nil {
		return err
	}

	when := msg.Time
	if when.IsZero() {
		when = e.now()
	}
	err = e.store.AddConversationEntry(models.ConversationEntry{
		UserID:    user.ID,
		Role:      models.RoleUser,
		Content:   msg.Text,
		Channel:   msg.Platform,
		Timestamp: when,
	})
	if err != nil {
		return fmt.Errorf("failed to persist inbound message: %w", err)
	}

	// Re-read after the write: a scheduler-initiated handler may have mutated
	// mode or profile in this same tick.
	user, err = e.store.GetUser(user.ID)
	if err != nil {
		return fmt.Errorf("failed to re-read user: %w", err)
	}
	if user == nil {
		return models.ErrUserNotFound
	}

	mode := models.EffectiveMode(user.ConversationMode)
	switch {
	case strings.TrimSpace(msg.Text) == ResetCommand && !user.OnboardingComplete:
		mode = models.ModeOnboarding
		user.ConversationMode = mode
		if err := e.store.UpdateUser(user); err != nil {
			return fmt.Errorf("failed to reset onboarding: %w", err)
		}
		slog.Info("Engine.handleInbound: onboarding reset", "userID", user.ID)
	case mode == models.ModeIdle:
		mode = models.ModeFreeChat
		user.ConversationMode = mode
		if err := e.store.UpdateUser(user); err != nil {
			return fmt.Errorf("failed to enter free chat: %w", err)
		}
	}

	handler := e.handlers[mode]
	result, err := handler.Handle(ctx, user, msg.Text)
	if err != nil {
		return err
	}
	return e.deliver(ctx, user, result)
}

// resolveUser finds or creates the user for an inbound message.
func (e *Engine) resolveUser(msg models.InboundMessage) (*models.User, error) {
	user, err := e.store.GetUserByPlatform(msg.Platform, msg.PlatformUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user != nil {
		return user, nil
	}
	now := e.now()
	user = &models.User{
		ID:               uuid.NewString(),
		Platform:         msg.Platform,
		PlatformUserID:   msg.PlatformUserID,
		ConversationMode: models.ModeOnboarding,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := e.store.CreateUser(user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	slog.Info("Engine.resolveUser: new user created", "userID", user.ID, "platform", msg.Platform)
	return user, nil
}

// deliver persists the handler's reply and system messages and relays them
// through the user's channel.
func (e *Engine) deliver(ctx context.Context, user *models.User, result *Result) error {
	if result.Text != "" {
		err := e.store.AddConversationEntry(models.ConversationEntry{
			UserID:    user.ID,
			Role:      models.RoleAssistant,
			Content:   result.Text,
			Channel:   user.Platform,
			Timestamp: e.now(),
		})
		if err != nil {
			return fmt.Errorf("failed to persist reply: %w", err)
		}
		if err := e.sender.SendMessage(ctx, user.Platform, user.PlatformUserID, result.Text); err != nil {
			return fmt.Errorf("failed to deliver reply: %w", err)
		}
	}
	for _, sm := range result.SystemMessages {
		err := e.store.AddConversationEntry(models.ConversationEntry{
			UserID:    user.ID,
			Role:      models.RoleSystem,
			Content:   sm.Text,
			Channel:   user.Platform,
			Timestamp: e.now(),
		})
		if err != nil {
			return fmt.Errorf("failed to persist system message: %w", err)
		}
		if err := e.sender.SendSystemMessage(ctx, user.Platform, user.PlatformUserID, sm.Text, sm.Link); err != nil {
			return fmt.Errorf("failed to deliver system message: %w", err)
		}
	}
	return nil
}

// Proactive moves the user into the given mode and fires the corresponding
// handler with no inbound turn. Used by the scheduler when a window opens.
func (e *Engine) Proactive(ctx context.Context, user *models.User, mode models.ConversationMode) error {
	handler, ok := e.handlers[mode]
	if !ok {
		return models.ErrInvalidMode
	}
	if user.ConversationMode != mode {
		user.ConversationMode = mode
		if err := e.store.UpdateUser(user); err != nil {
			return fmt.Errorf("failed to enter %s mode: %w", mode, err)
		}
	}
	result, err := handler.Handle(ctx, user, "")
	if err != nil {
		return err
	}
	return e.deliver(ctx, user, result)
}

// WrapUpDebrief force-completes a stale debrief: the handler is fed a
// synthetic wrap-up instruction (not persisted as a user turn) and the mode
// is returned to idle even if the model fails to flag completion.
func (e *Engine) WrapUpDebrief(ctx context.Context, user *models.User) error {
	handler := e.handlers[models.ModeDebrief]
	result, err := handler.Handle(ctx, user, debriefWrapUpInstruction)
	if err != nil {
		return err
	}
	if err := e.deliver(ctx, user, result); err != nil {
		return err
	}
	fresh, err := e.store.GetUser(user.ID)
	if err != nil {
		return fmt.Errorf("failed to re-read user after wrap-up: %w", err)
	}
	if fresh != nil && fresh.ConversationMode == models.ModeDebrief {
		slog.Warn("Engine.WrapUpDebrief: model did not flag completion, forcing idle", "userID", user.ID)
		fresh.ConversationMode = models.ModeIdle
		if err := e.store.UpdateUser(fresh); err != nil {
			return fmt.Errorf("failed to force debrief timeout: %w", err)
		}
	}
	return nil
}

// ResolveStaleCheckIn silently returns a stale check-in to idle. Unlike
// debrief there is nothing to log, so no message is generated.
func (e *Engine) ResolveStaleCheckIn(ctx context.Context, user *models.User) error {
	user.ConversationMode = models.ModeIdle
	if err := e.store.UpdateUser(user); err != nil {
		return fmt.Errorf("failed to time out check-in: %w", err)
	}
	slog.Info("Engine.ResolveStaleCheckIn: check-in timed out", "userID", user.ID)
	return nil
}
