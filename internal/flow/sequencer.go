package flow

import (
	"strings"

	"github.com/openai/openai-go"

	"github.com/saxo751/ottercoach.ai-sub000/internal/models"
)

// Synthetic turns inserted by the sequencer. Chat-completion providers require
// a strictly alternating user-first transcript and will free-continue a
// trailing assistant turn instead of producing a fresh message.
const (
	ConversationStartMarker = "[conversation start]"
	ProactiveTrigger        = "[send your proactive message now]"
)

// Turn is one repaired message in the alternating sequence.
type Turn struct {
	Role    models.Role
	Content string
}

// RepairSequence turns stored history (oldest first) into a strictly
// alternating user-first sequence suitable for a generation request.
//
// System-role entries are dropped, consecutive same-role entries are merged
// with a blank line, and a synthetic user turn is prepended when the history
// opens with the assistant. A live user turn merges into a trailing user
// entry; with no live turn, a sequence that is empty or ends in assistant
// gets the proactive trigger appended.
func RepairSequence(history []models.ConversationEntry, liveUserText string) []Turn {
	var turns []Turn
	for _, e := range history {
		if e.Role == models.RoleSystem {
			continue
		}
		if n := len(turns); n > 0 && turns[n-1].Role == e.Role {
			turns[n-1].Content += "\n\n" + e.Content
			continue
		}
		turns = append(turns, Turn{Role: e.Role, Content: e.Content})
	}
	if len(turns) > 0 && turns[0].Role != models.RoleUser {
		turns = append([]Turn{{Role: models.RoleUser, Content: ConversationStartMarker}}, turns...)
	}
	if strings.TrimSpace(liveUserText) != "" {
		if n := len(turns); n > 0 && turns[n-1].Role == models.RoleUser {
			turns[n-1].Content += "\n\n" + liveUserText
		} else {
			turns = append(turns, Turn{Role: models.RoleUser, Content: liveUserText})
		}
		return turns
	}
	if n := len(turns); n == 0 || turns[n-1].Role == models.RoleAssistant {
		turns = append(turns, Turn{Role: models.RoleUser, Content: ProactiveTrigger})
	}
	return turns
}

// toChatMessages converts repaired turns into the SDK message union.
func toChatMessages(turns []Turn) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		if t.Role == models.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(t.Content))
		} else {
			messages = append(messages, openai.UserMessage(t.Content))
		}
	}
	return messages
}
