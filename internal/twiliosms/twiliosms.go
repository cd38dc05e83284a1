// Package twiliosms is the Twilio SMS channel adapter.
//
// Outbound messages go through the Twilio REST API; inbound messages arrive
// on the HTTP webhook and are enqueued here via EnqueueInbound.
package twiliosms

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/saxo751/ottercoach.ai-sub000/internal/models"
)

const (
	// PlatformName is the platform identifier stamped on user rows.
	PlatformName = "sms"

	inboundBuffer = 64
)

// Opts holds configuration options for the Twilio SMS client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string // E.164, e.g. "+15550001234"
}

// Option defines a configuration option for the Twilio SMS client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the sending phone number.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// Client implements the messaging.Service interface over Twilio SMS.
type Client struct {
	client  *twilio.RestClient
	from    string
	inbound chan models.InboundMessage
}

// NewClient creates a Twilio SMS client. Credentials fall back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, and TWILIO_FROM_NUMBER environment
// variables.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	slog.Debug("twiliosms.NewClient: client created", "from", cfg.FromNumber)
	return &Client{
		client:  client,
		from:    cfg.FromNumber,
		inbound: make(chan models.InboundMessage, inboundBuffer),
	}, nil
}

// Platform returns the platform identifier.
func (c *Client) Platform() string { return PlatformName }

// Start is a no-op: inbound SMS arrives over the HTTP webhook.
func (c *Client) Start(ctx context.Context) error { return nil }

// Stop closes the inbound channel.
func (c *Client) Stop() error {
	close(c.inbound)
	return nil
}

// Inbound returns the channel of webhook-delivered messages.
func (c *Client) Inbound() <-chan models.InboundMessage { return c.inbound }

// SendMessage delivers a conversational reply over SMS.
func (c *Client) SendMessage(ctx context.Context, platformUserID, body string) error {
	if platformUserID == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(canonicalNumber(platformUserID))
	params.SetFrom(c.from)
	params.SetBody(body)
	if _, err := c.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send SMS to %s: %w", platformUserID, err)
	}
	return nil
}

// SendSystemMessage delivers a notice. SMS has no secondary channel, so the
// link is folded into the body.
func (c *Client) SendSystemMessage(ctx context.Context, platformUserID, body, link string) error {
	if link != "" {
		body = body + "\n" + link
	}
	return c.SendMessage(ctx, platformUserID, body)
}

// EnqueueInbound hands a webhook-delivered message to the registry pump.
// Called by the HTTP layer.
func (c *Client) EnqueueInbound(from, body string) {
	msg := models.InboundMessage{
		Platform:       PlatformName,
		PlatformUserID: strings.TrimPrefix(from, "+"),
		Text:           body,
		Time:           time.Now(),
	}
	select {
	case c.inbound <- msg:
	default:
		slog.Warn("twiliosms.EnqueueInbound: inbound buffer full, message dropped", "from", from)
	}
}

// canonicalNumber restores the E.164 plus prefix stripped for storage.
func canonicalNumber(platformUserID string) string {
	if strings.HasPrefix(platformUserID, "+") {
		return platformUserID
	}
	return "+" + platformUserID
}
