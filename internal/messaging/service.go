// Package messaging defines the platform-agnostic channel layer.
//
// Concrete backends (WhatsApp, Twilio SMS) implement Service; the Registry
// fans their inbound traffic into one dispatch callback and routes outbound
// sends back to the right backend by platform name.
package messaging

import (
	"context"

	"github.com/saxo751/ottercoach.ai-sub000/internal/models"
)

// Service is one pluggable channel backend.
type Service interface {
	// Platform returns the stable platform name used on user rows
	// (e.g. "whatsapp", "sms").
	Platform() string

	// SendMessage delivers a conversational reply.
	SendMessage(ctx context.Context, platformUserID, body string) error

	// SendSystemMessage delivers an out-of-band notice, optionally carrying a
	// deep link. Backends without a distinct notice channel may fold the link
	// into the message body.
	SendSystemMessage(ctx context.Context, platformUserID, body, link string) error

	// Start begins background processing (connections, event polling).
	Start(ctx context.Context) error

	// Stop stops background processing and closes the inbound channel.
	Stop() error

	// Inbound returns the channel of incoming messages.
	Inbound() <-chan models.InboundMessage
}
