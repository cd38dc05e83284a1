package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/saxo751/ottercoach.ai-sub000/internal/genai"
	"github.com/saxo751/ottercoach.ai-sub000/internal/models"
	"github.com/saxo751/ottercoach.ai-sub000/internal/store"
)

// SystemMessage is an out-of-band notice surfaced to the client alongside the
// conversational reply, optionally carrying a deep link.
type SystemMessage struct {
	Text string
	Link string
}

// Result is the normalized outcome of one handler turn. Briefing and debrief
// never populate SystemMessages but share the same shape.
type Result struct {
	Text           string
	SystemMessages []SystemMessage
}

// Handler processes one conversation turn for a single mode. An empty inbound
// text means a proactive (scheduler-initiated) turn.
type Handler interface {
	Mode() models.ConversationMode
	Handle(ctx context.Context, user *models.User, inboundText string) (*Result, error)
}

// deps bundles what every handler needs.
type deps struct {
	store store.Store
	ai    genai.ClientInterface
	now   func() time.Time
}

// converse runs the common turn shape: gather context, repair the message
// sequence, call the model, and split the reply from its data block.
func (d deps) converse(ctx context.Context, user *models.User, mode models.ConversationMode, instructions, dataContract, inboundText string) (string, *ExtractedData, error) {
	userContext, err := buildUserContext(d.store, user)
	if err != nil {
		return "", nil, err
	}
	history, err := d.store.RecentConversation(user.ID, models.DefaultHistoryWindow)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load conversation history: %w", err)
	}
	turns := RepairSequence(history, inboundText)
	systemPrompt := composeSystemPrompt(instructions, userContext, dataContract)

	reply, err := d.ai.Generate(ctx, systemPrompt, toChatMessages(turns))
	if err != nil {
		return "", nil, fmt.Errorf("model call failed: %w", err)
	}
	slog.Info("flow.converse: completion",
		"userID", user.ID,
		"mode", mode,
		"turns", len(turns),
		"promptTokens", reply.Usage.PromptTokens,
		"completionTokens", reply.Usage.CompletionTokens,
		"cachedPromptTokens", reply.Usage.CachedPromptTokens)

	text, data := ParseAIResponse(reply.Text)
	return text, data, nil
}

// applySharedChannels processes the side channels every mode honors.
func (d deps) applySharedChannels(user *models.User, data *ExtractedData) {
	if data == nil {
		return
	}
	applyMemories(d.store, user.ID, data.Memories, d.now())
	if data.DailyLog != nil {
		applyDailyLog(d.store, user, *data.DailyLog, d.now())
	}
}

// transitionToIdle flips the user's mode and persists it.
func (d deps) transitionToIdle(user *models.User) error {
	user.ConversationMode = models.ModeIdle
	if err := d.store.UpdateUser(user); err != nil {
		return fmt.Errorf("failed to persist mode transition: %w", err)
	}
	return nil
}
