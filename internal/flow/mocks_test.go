package flow

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/saxo751/ottercoach.ai-sub000/internal/genai"
)

// aiCall records one Generate invocation for assertions.
type aiCall struct {
	systemPrompt string
	messages     []openai.ChatCompletionMessageParamUnion
}

// mockAI implements genai.ClientInterface with scripted replies, consumed in
// order. The last reply repeats once the script runs out.
type mockAI struct {
	replies []string
	err     error
	calls   []aiCall
}

func (m *mockAI) Generate(ctx context.Context, systemPrompt string, messages []openai.ChatCompletionMessageParamUnion) (*genai.Reply, error) {
	m.calls = append(m.calls, aiCall{systemPrompt: systemPrompt, messages: messages})
	if m.err != nil {
		return nil, m.err
	}
	if len(m.replies) == 0 {
		return nil, fmt.Errorf("mockAI: no reply scripted")
	}
	idx := len(m.calls) - 1
	if idx >= len(m.replies) {
		idx = len(m.replies) - 1
	}
	return &genai.Reply{Text: m.replies[idx]}, nil
}

// sentMessage records one outbound delivery.
type sentMessage struct {
	platform string
	userID   string
	text     string
	link     string
	system   bool
}

// mockSender implements Sender and records everything delivered.
type mockSender struct {
	sent    []sentMessage
	sendErr error
}

func (m *mockSender) SendMessage(ctx context.Context, platform, platformUserID, text string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentMessage{platform: platform, userID: platformUserID, text: text})
	return nil
}

func (m *mockSender) SendSystemMessage(ctx context.Context, platform, platformUserID, text, link string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentMessage{platform: platform, userID: platformUserID, text: text, link: link, system: true})
	return nil
}

// lastNonSystem returns the most recent conversational (non-system) delivery.
func (m *mockSender) lastNonSystem() (sentMessage, bool) {
	for i := len(m.sent) - 1; i >= 0; i-- {
		if !m.sent[i].system {
			return m.sent[i], true
		}
	}
	return sentMessage{}, false
}
