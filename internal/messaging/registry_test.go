package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/saxo751/ottercoach.ai-sub000/internal/models"
)

// mockService is a scriptable channel backend.
type mockService struct {
	platform string
	inbound  chan models.InboundMessage
	sent     []string
	startErr error
	mu       sync.Mutex
}

func newMockService(platform string) *mockService {
	return &mockService{platform: platform, inbound: make(chan models.InboundMessage, 4)}
}

func (m *mockService) Platform() string { return m.platform }

func (m *mockService) SendMessage(ctx context.Context, platformUserID, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, body)
	return nil
}

func (m *mockService) SendSystemMessage(ctx context.Context, platformUserID, body, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, "[system] "+body)
	return nil
}

func (m *mockService) Start(ctx context.Context) error { return m.startErr }

func (m *mockService) Stop() error {
	close(m.inbound)
	return nil
}

func (m *mockService) Inbound() <-chan models.InboundMessage { return m.inbound }

func TestRegistry_DuplicatePlatformRejected(t *testing.T) {
	r := NewRegistry(func(ctx context.Context, msg models.InboundMessage) {})
	if err := r.Register(newMockService("whatsapp")); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := r.Register(newMockService("whatsapp")); err == nil {
		t.Error("duplicate platform registration must fail")
	}
}

func TestRegistry_FanInToDispatch(t *testing.T) {
	var mu sync.Mutex
	var received []models.InboundMessage
	done := make(chan struct{}, 2)
	r := NewRegistry(func(ctx context.Context, msg models.InboundMessage) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
		done <- struct{}{}
	})

	wa := newMockService("whatsapp")
	sms := newMockService("sms")
	if err := r.Register(wa); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(sms); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer r.Stop()

	wa.inbound <- models.InboundMessage{Platform: "whatsapp", PlatformUserID: "1", Text: "hi"}
	sms.inbound <- models.InboundMessage{Platform: "sms", PlatformUserID: "2", Text: "yo"}

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for dispatch")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Errorf("dispatched %d messages, want 2", len(received))
	}
}

func TestRegistry_RoutesOutboundByPlatform(t *testing.T) {
	r := NewRegistry(func(ctx context.Context, msg models.InboundMessage) {})
	wa := newMockService("whatsapp")
	if err := r.Register(wa); err != nil {
		t.Fatal(err)
	}

	if err := r.SendMessage(context.Background(), "whatsapp", "1", "hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(wa.sent) != 1 || wa.sent[0] != "hello" {
		t.Errorf("sent = %v", wa.sent)
	}

	err := r.SendMessage(context.Background(), "telegram", "1", "hello")
	if !errors.Is(err, ErrUnknownPlatform) {
		t.Errorf("unknown platform error = %v, want ErrUnknownPlatform", err)
	}
}

func TestRegistry_StartFailurePropagates(t *testing.T) {
	r := NewRegistry(func(ctx context.Context, msg models.InboundMessage) {})
	bad := newMockService("sms")
	bad.startErr = errors.New("no credentials")
	if err := r.Register(bad); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err == nil {
		t.Error("start must fail when a backend fails to start")
	}
}
