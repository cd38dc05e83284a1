package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/saxo751/ottercoach.ai-sub000/internal/models"
)

// ErrUnknownPlatform indicates an outbound send for a platform no registered
// backend serves.
var ErrUnknownPlatform = errors.New("no channel backend registered for platform")

// Dispatch receives every inbound message from every registered backend.
type Dispatch func(ctx context.Context, msg models.InboundMessage)

// Registry is the fan-in/fan-out point between channel backends and the
// conversation engine. It satisfies the engine's Sender interface.
type Registry struct {
	mu       sync.RWMutex
	services map[string]Service
	dispatch Dispatch
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	started  bool
}

// NewRegistry creates a registry delivering inbound messages to dispatch.
func NewRegistry(dispatch Dispatch) *Registry {
	return &Registry{services: make(map[string]Service), dispatch: dispatch}
}

// Register adds a channel backend. Must be called before Start.
func (r *Registry) Register(svc Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	platform := svc.Platform()
	if _, exists := r.services[platform]; exists {
		return fmt.Errorf("platform %q already registered", platform)
	}
	r.services[platform] = svc
	slog.Info("Registry.Register: channel backend registered", "platform", platform)
	return nil
}

// Start starts every backend and begins pumping their inbound channels into
// the dispatch callback, one goroutine per backend.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("registry already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	for _, svc := range r.services {
		if err := svc.Start(runCtx); err != nil {
			cancel()
			return fmt.Errorf("failed to start %s backend: %w", svc.Platform(), err)
		}
		r.wg.Add(1)
		go r.pump(runCtx, svc)
	}
	r.started = true
	return nil
}

// pump forwards one backend's inbound messages until its channel closes.
func (r *Registry) pump(ctx context.Context, svc Service) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-svc.Inbound():
			if !ok {
				slog.Debug("Registry.pump: inbound channel closed", "platform", svc.Platform())
				return
			}
			r.dispatch(ctx, msg)
		}
	}
}

// Stop stops all backends and waits for the pumps to drain.
func (r *Registry) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil
	}
	var firstErr error
	for _, svc := range r.services {
		if err := svc.Stop(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to stop %s backend: %w", svc.Platform(), err)
		}
	}
	r.cancel()
	r.wg.Wait()
	r.started = false
	return firstErr
}

func (r *Registry) backend(platform string) (Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, platform)
	}
	return svc, nil
}

// SendMessage routes a conversational reply to the backend serving platform.
func (r *Registry) SendMessage(ctx context.Context, platform, platformUserID, text string) error {
	svc, err := r.backend(platform)
	if err != nil {
		return err
	}
	return svc.SendMessage(ctx, platformUserID, text)
}

// SendSystemMessage routes an out-of-band notice to the backend serving
// platform.
func (r *Registry) SendSystemMessage(ctx context.Context, platform, platformUserID, text, link string) error {
	svc, err := r.backend(platform)
	if err != nil {
		return err
	}
	return svc.SendSystemMessage(ctx, platformUserID, text, link)
}
