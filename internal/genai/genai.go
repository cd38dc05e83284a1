// Package genai wraps the OpenAI chat completion API for the coaching engine.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrNoChoicesReturned indicates the completion came back with an empty
// choice list.
var ErrNoChoicesReturned = errors.New("no choices returned")

// DefaultModel is used when no model is configured.
const DefaultModel = openai.ChatModelGPT4oMini

// chatService defines the minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// completionService adapts the OpenAI SDK service to chatService.
type completionService struct {
	svc openai.ChatCompletionService
}

func (s completionService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := s.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Usage reports token consumption for one completion.
type Usage struct {
	PromptTokens       int64
	CompletionTokens   int64
	CachedPromptTokens int64
}

// Reply is the result of one completion call.
type Reply struct {
	Text  string
	Usage Usage
}

// ClientInterface is the surface the conversation engine depends on.
type ClientInterface interface {
	// Generate runs one chat completion with the given system prompt prepended
	// to the message transcript.
	Generate(ctx context.Context, systemPrompt string, messages []openai.ChatCompletionMessageParamUnion) (*Reply, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey string
	Model  string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat  chatService
	model string
}

// NewClient initializes a GenAI client. The API key comes from options or the
// OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("GenAI client created", "model", cfg.Model)
	return &Client{chat: completionService{svc: cli.Chat.Completions}, model: cfg.Model}, nil
}

// Generate runs one chat completion and returns the first choice.
func (c *Client) Generate(ctx context.Context, systemPrompt string, messages []openai.ChatCompletionMessageParamUnion) (*Reply, error) {
	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: append([]openai.ChatCompletionMessageParamUnion{openai.SystemMessage(systemPrompt)}, messages...),
	}
	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		slog.Error("GenAI completion failed", "error", err, "model", c.model)
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoicesReturned
	}
	reply := &Reply{
		Text: resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:       resp.Usage.PromptTokens,
			CompletionTokens:   resp.Usage.CompletionTokens,
			CachedPromptTokens: resp.Usage.PromptTokensDetails.CachedTokens,
		},
	}
	slog.Debug("GenAI completion succeeded",
		"model", c.model,
		"promptTokens", reply.Usage.PromptTokens,
		"completionTokens", reply.Usage.CompletionTokens,
		"cachedPromptTokens", reply.Usage.CachedPromptTokens)
	return reply, nil
}
