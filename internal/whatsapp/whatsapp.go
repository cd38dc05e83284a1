// Package whatsapp is the whatsmeow-backed channel adapter.
//
// It logs in over the QR flow, turns incoming text messages into channel
// events for the conversation engine, and delivers replies.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/saxo751/ottercoach.ai-sub000/internal/models"
	"github.com/saxo751/ottercoach.ai-sub000/internal/store"
)

const (
	// PlatformName is the platform identifier stamped on user rows.
	PlatformName = "whatsapp"
	// DefaultSQLitePath is the default whatsmeow session database path.
	DefaultSQLitePath = "/var/lib/ottercoach/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users.
	JIDSuffix = "s.whatsapp.net"

	inboundBuffer = 64
)

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	DBDSN       string // whatsmeow session database connection string
	QRPath      string // path to write the login QR code, stdout if empty
	NumericCode bool   // print a numeric login code instead of a QR code
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow session database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) { o.DBDSN = dsn }
}

// WithQRCodeOutput writes the login QR code to the given path.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) { o.QRPath = path }
}

// WithNumericCode prints a numeric login code instead of a QR code.
func WithNumericCode() Option {
	return func(o *Opts) { o.NumericCode = true }
}

// Client implements the messaging.Service interface over whatsmeow.
type Client struct {
	waClient *whatsmeow.Client
	cfg      Opts
	inbound  chan models.InboundMessage
}

// NewClient prepares the whatsmeow client against its session store. No
// connection is made until Start.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DBDSN == "" {
		cfg.DBDSN = DefaultSQLitePath
	}
	driver := "sqlite3"
	if store.DetectDSNType(cfg.DBDSN) == "postgres" {
		driver = "postgres"
	}

	ctx := context.Background()
	container, err := sqlstore.New(ctx, driver, cfg.DBDSN, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize WhatsApp session store: %w", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device from WhatsApp session store: %w", err)
	}
	waClient := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true))
	return &Client{
		waClient: waClient,
		cfg:      cfg,
		inbound:  make(chan models.InboundMessage, inboundBuffer),
	}, nil
}

// Platform returns the platform identifier.
func (c *Client) Platform() string { return PlatformName }

// Start registers the event handler and connects, running the QR login flow
// when no session exists yet.
func (c *Client) Start(ctx context.Context) error {
	c.waClient.AddEventHandler(c.handleEvent)

	if c.waClient.Store.ID == nil {
		slog.Info("whatsapp.Start: login required, starting QR flow")
		qrChan, _ := c.waClient.GetQRChannel(ctx)
		if err := c.waClient.Connect(); err != nil {
			return fmt.Errorf("failed to connect during WhatsApp login: %w", err)
		}
		writer := io.Writer(os.Stdout)
		if c.cfg.QRPath != "" {
			f, err := os.Create(c.cfg.QRPath)
			if err != nil {
				return fmt.Errorf("failed to create QR file: %w", err)
			}
			defer f.Close()
			writer = f
		}
		for evt := range qrChan {
			if evt.Event == "code" {
				if c.cfg.NumericCode {
					fmt.Fprintln(writer, evt.Code)
				} else {
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
				}
			} else {
				slog.Debug("whatsapp.Start: login event", "event", evt.Event)
			}
		}
		slog.Info("whatsapp.Start: login complete")
		return nil
	}
	if err := c.waClient.Connect(); err != nil {
		return fmt.Errorf("failed to connect to WhatsApp: %w", err)
	}
	slog.Info("whatsapp.Start: connected")
	return nil
}

// Stop disconnects and closes the inbound channel.
func (c *Client) Stop() error {
	c.waClient.Disconnect()
	close(c.inbound)
	return nil
}

// Inbound returns the channel of incoming text messages.
func (c *Client) Inbound() <-chan models.InboundMessage { return c.inbound }

// SendMessage delivers a conversational reply.
func (c *Client) SendMessage(ctx context.Context, platformUserID, body string) error {
	if platformUserID == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}
	jid := types.NewJID(platformUserID, JIDSuffix)
	msg := &waE2E.Message{Conversation: &body}
	if _, err := c.waClient.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", platformUserID, err)
	}
	return nil
}

// SendSystemMessage delivers an out-of-band notice. WhatsApp has no distinct
// notice channel, so the link is folded into the message body.
func (c *Client) SendSystemMessage(ctx context.Context, platformUserID, body, link string) error {
	if link != "" {
		body = body + "\n" + link
	}
	return c.SendMessage(ctx, platformUserID, body)
}

// handleEvent converts incoming whatsmeow text events into channel messages.
func (c *Client) handleEvent(evt interface{}) {
	msg, ok := evt.(*events.Message)
	if !ok || msg.Message == nil {
		return
	}
	if msg.Info.IsFromMe || msg.Info.IsGroup {
		return
	}
	var text string
	switch {
	case msg.Message.Conversation != nil:
		text = *msg.Message.Conversation
	case msg.Message.ExtendedTextMessage != nil && msg.Message.ExtendedTextMessage.Text != nil:
		text = *msg.Message.ExtendedTextMessage.Text
	default:
		slog.Debug("whatsapp.handleEvent: ignoring non-text message", "from", msg.Info.Sender.String())
		return
	}

	inbound := models.InboundMessage{
		Platform:       PlatformName,
		PlatformUserID: msg.Info.Sender.User,
		Text:           text,
		Time:           msg.Info.Timestamp,
	}
	select {
	case c.inbound <- inbound:
	default:
		slog.Warn("whatsapp.handleEvent: inbound buffer full, message dropped", "from", msg.Info.Sender.User)
	}
}
