package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/saxo751/ottercoach.ai-sub000/internal/models"
	"github.com/saxo751/ottercoach.ai-sub000/internal/store"
)

func newTestEngine(replies ...string) (*Engine, *store.InMemoryStore, *mockSender, *mockAI) {
	st := store.NewInMemoryStore()
	ai := &mockAI{replies: replies}
	sender := &mockSender{}
	engine := NewEngine(st, ai, sender)
	return engine, st, sender, ai
}

func seedUser(t *testing.T, st *store.InMemoryStore, mode models.ConversationMode, onboarded bool) *models.User {
	t.Helper()
	user := &models.User{
		ID:                 "u1",
		Platform:           "whatsapp",
		PlatformUserID:     "15551234567",
		DisplayName:        "Alex",
		ExperienceMonths:   18,
		TrainingDays:       models.TrainingSchedule{Times: map[string]string{"monday": "19:00"}},
		Timezone:           "UTC",
		ConversationMode:   mode,
		OnboardingComplete: onboarded,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
	if err := st.CreateUser(user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func inbound(text string) models.InboundMessage {
	return models.InboundMessage{Platform: "whatsapp", PlatformUserID: "15551234567", Text: text, Time: time.Now()}
}

func TestHandleInbound_NewUserStartsOnboarding(t *testing.T) {
	engine, st, sender, ai := newTestEngine("Hey! I'm Otter, your BJJ coach. What's your name?")

	engine.HandleInbound(context.Background(), inbound("hi"))

	user, err := st.GetUserByPlatform("whatsapp", "15551234567")
	if err != nil || user == nil {
		t.Fatalf("user not created: %v %v", user, err)
	}
	if user.ConversationMode != models.ModeOnboarding {
		t.Errorf("new user mode = %s, want onboarding", user.ConversationMode)
	}
	if len(ai.calls) != 1 {
		t.Fatalf("expected 1 model call, got %d", len(ai.calls))
	}
	if msg, ok := sender.lastNonSystem(); !ok || !strings.Contains(msg.text, "Otter") {
		t.Errorf("reply not delivered: %+v", sender.sent)
	}

	history, _ := st.RecentConversation(user.ID, 10)
	if len(history) != 2 || history[0].Role != models.RoleUser || history[1].Role != models.RoleAssistant {
		t.Errorf("history not persisted as user+assistant: %+v", history)
	}
}

func TestHandleInbound_OnboardingCompletes(t *testing.T) {
	engine, st, sender, _ := newTestEngine(
		"You're all set, Alex!\n---DATA---\n{\"name\":\"Alex\",\"experience_months\":18,\"training_schedule\":{\"monday\":\"06:00\"},\"goals\":\"get my blue belt\",\"onboarding_complete\":true}")
	seedUser(t, st, models.ModeOnboarding, false)

	engine.HandleInbound(context.Background(), inbound("I'm Alex, been training 18 months, Mondays at 6am"))

	user, _ := st.GetUser("u1")
	if !user.OnboardingComplete {
		t.Error("onboarding flag not set")
	}
	if user.ConversationMode != models.ModeIdle {
		t.Errorf("mode = %s, want idle", user.ConversationMode)
	}
	if got, ok := user.TrainingDays.TimeFor(time.Monday); !ok || got != "06:00" {
		t.Errorf("schedule not applied: %q %v", got, ok)
	}
	goals, _ := st.ActiveGoals("u1")
	if len(goals) != 1 || goals[0].Text != "get my blue belt" {
		t.Errorf("stated goal not persisted: %+v", goals)
	}

	var sawSystem bool
	for _, m := range sender.sent {
		if m.system {
			sawSystem = true
			if m.link != OnboardingCompleteLink {
				t.Errorf("system message link = %q", m.link)
			}
		}
	}
	if !sawSystem {
		t.Error("no system message announcing onboarding completion")
	}
}

func TestHandleInbound_IncompleteOnboardingDataDoesNotComplete(t *testing.T) {
	// The model claims completion but never provided training days.
	engine, st, _, _ := newTestEngine(
		"Done!\n---DATA---\n{\"name\":\"Alex\",\"experience_months\":18,\"onboarding_complete\":true}")
	user := seedUser(t, st, models.ModeOnboarding, false)
	user.TrainingDays = models.TrainingSchedule{}
	_ = st.UpdateUser(user)

	engine.HandleInbound(context.Background(), inbound("I'm Alex"))

	user, _ = st.GetUser("u1")
	if user.OnboardingComplete {
		t.Error("completion accepted without the minimum profile")
	}
	if user.ConversationMode != models.ModeOnboarding {
		t.Errorf("mode = %s, want onboarding", user.ConversationMode)
	}
}

func TestHandleInbound_IdleEntersFreeChat(t *testing.T) {
	engine, st, _, ai := newTestEngine("Good question — start with grip fighting.")
	seedUser(t, st, models.ModeIdle, true)

	engine.HandleInbound(context.Background(), inbound("how do I get better at standup?"))

	user, _ := st.GetUser("u1")
	if user.ConversationMode != models.ModeFreeChat {
		t.Errorf("mode = %s, want free_chat", user.ConversationMode)
	}
	if len(ai.calls) != 1 || !strings.Contains(ai.calls[0].systemPrompt, "between scheduled touchpoints") {
		t.Error("free-chat handler was not dispatched")
	}
}

func TestHandleInbound_FreeChatLogsSession(t *testing.T) {
	engine, st, sender, _ := newTestEngine(
		"Solid session!\n---DATA---\n{\"session\":{\"training_type\":\"no-gi\",\"duration_minutes\":60,\"techniques\":[\"heel hook defense\"]}}")
	seedUser(t, st, models.ModeFreeChat, true)

	engine.HandleInbound(context.Background(), inbound("did an hour of no-gi, worked heel hook defense"))

	sessions, _ := st.RecentTrainingSessions("u1", 10)
	if len(sessions) != 1 || sessions[0].TrainingType != "no-gi" {
		t.Fatalf("session not logged: %+v", sessions)
	}
	user, _ := st.GetUser("u1")
	if user.ConversationMode != models.ModeFreeChat {
		t.Errorf("free chat must not change mode, got %s", user.ConversationMode)
	}
	var sawSystem bool
	for _, m := range sender.sent {
		if m.system && m.link == SessionLoggedLink {
			sawSystem = true
		}
	}
	if !sawSystem {
		t.Error("no session-logged system message")
	}
}

func TestHandleInbound_DebriefCompletionLogsSessionAndIdles(t *testing.T) {
	engine, st, _, _ := newTestEngine(
		"Great work — rest up.\n---DATA---\n{\"debrief_complete\":true,\"training_type\":\"gi\",\"duration_minutes\":90,\"struggles\":\"half guard retention\"}")
	seedUser(t, st, models.ModeDebrief, true)

	engine.HandleInbound(context.Background(), inbound("rolled 5 rounds, kept losing half guard"))

	sessions, _ := st.RecentTrainingSessions("u1", 10)
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want exactly 1", len(sessions))
	}
	if sessions[0].Struggles != "half guard retention" {
		t.Errorf("session fields not applied: %+v", sessions[0])
	}
	user, _ := st.GetUser("u1")
	if user.ConversationMode != models.ModeIdle {
		t.Errorf("mode = %s, want idle after debrief completion", user.ConversationMode)
	}
}

func TestHandleInbound_ResetCommandForcesOnboarding(t *testing.T) {
	engine, st, _, ai := newTestEngine("Let's start over. What's your name?")
	seedUser(t, st, models.ModeCheckIn, false)

	engine.HandleInbound(context.Background(), inbound("/reset"))

	user, _ := st.GetUser("u1")
	if user.ConversationMode != models.ModeOnboarding {
		t.Errorf("mode = %s, want onboarding after reset", user.ConversationMode)
	}
	if len(ai.calls) != 1 || !strings.Contains(ai.calls[0].systemPrompt, "meeting this athlete for the first time") {
		t.Error("onboarding handler was not dispatched after reset")
	}
}

func TestHandleInbound_ResetIgnoredWhenOnboarded(t *testing.T) {
	engine, st, _, ai := newTestEngine("Not sure what you mean, but I'm here!")
	seedUser(t, st, models.ModeIdle, true)

	engine.HandleInbound(context.Background(), inbound("/reset"))

	user, _ := st.GetUser("u1")
	if user.ConversationMode == models.ModeOnboarding {
		t.Error("reset must not restart onboarding for an onboarded user")
	}
	if len(ai.calls) != 1 {
		t.Fatalf("expected 1 model call, got %d", len(ai.calls))
	}
}

func TestHandleInbound_ModelFailureSendsApology(t *testing.T) {
	engine, st, sender, ai := newTestEngine()
	ai.err = errors.New("provider down")
	seedUser(t, st, models.ModeFreeChat, true)

	engine.HandleInbound(context.Background(), inbound("hello?"))

	msg, ok := sender.lastNonSystem()
	if !ok || msg.text != FallbackApology {
		t.Errorf("expected fallback apology, got %+v", sender.sent)
	}
}

func TestProactive_SetsModeAndDelivers(t *testing.T) {
	engine, st, sender, ai := newTestEngine("Morning Alex! Still on for training tonight?")
	user := seedUser(t, st, models.ModeIdle, true)

	if err := engine.Proactive(context.Background(), user, models.ModeCheckIn); err != nil {
		t.Fatalf("Proactive failed: %v", err)
	}

	fresh, _ := st.GetUser("u1")
	if fresh.ConversationMode != models.ModeCheckIn {
		t.Errorf("mode = %s, want check_in", fresh.ConversationMode)
	}
	if msg, ok := sender.lastNonSystem(); !ok || !strings.Contains(msg.text, "Morning") {
		t.Errorf("proactive message not delivered: %+v", sender.sent)
	}
	// A proactive call has no live turn; the sequence must end with the
	// synthetic trigger, never an assistant continuation.
	last := ai.calls[0].messages[len(ai.calls[0].messages)-1]
	if last.OfUser == nil {
		t.Error("proactive sequence does not end in a user turn")
	}
}

func TestWrapUpDebrief_ForcesIdleWithoutCompletionFlag(t *testing.T) {
	engine, st, sender, _ := newTestEngine("Sounds like you're done — nice work today!")
	user := seedUser(t, st, models.ModeDebrief, true)

	if err := engine.WrapUpDebrief(context.Background(), user); err != nil {
		t.Fatalf("WrapUpDebrief failed: %v", err)
	}

	fresh, _ := st.GetUser("u1")
	if fresh.ConversationMode != models.ModeIdle {
		t.Errorf("mode = %s, want idle after forced wrap-up", fresh.ConversationMode)
	}
	if _, ok := sender.lastNonSystem(); !ok {
		t.Error("debrief wrap-up must always deliver a message")
	}
	// The synthetic wrap-up instruction must not enter stored history.
	history, _ := st.RecentConversation("u1", 10)
	for _, e := range history {
		if e.Role == models.RoleUser {
			t.Errorf("synthetic instruction persisted as user turn: %q", e.Content)
		}
	}
}

func TestResolveStaleCheckIn_SilentIdle(t *testing.T) {
	engine, st, sender, ai := newTestEngine()
	user := seedUser(t, st, models.ModeCheckIn, true)

	if err := engine.ResolveStaleCheckIn(context.Background(), user); err != nil {
		t.Fatalf("ResolveStaleCheckIn failed: %v", err)
	}
	fresh, _ := st.GetUser("u1")
	if fresh.ConversationMode != models.ModeIdle {
		t.Errorf("mode = %s, want idle", fresh.ConversationMode)
	}
	if len(sender.sent) != 0 || len(ai.calls) != 0 {
		t.Error("check-in timeout must be silent: no messages, no model calls")
	}
}
