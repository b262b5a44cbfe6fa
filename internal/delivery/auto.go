package delivery

import (
	"context"
	"time"

	"github.com/sealbox/sealbox-go/internal/api"
)

// AutoStrategy tries the SSE stream first and falls back to polling if
// the stream is not up within the connection timeout. The choice is
// made once, at Start.
type AutoStrategy struct {
	cfg         Config
	current     Strategy
	onReconnect func(ctx context.Context)
	onError     func(error)
}

// NewAutoStrategy creates an auto-selecting strategy.
func NewAutoStrategy(cfg Config) *AutoStrategy {
	return &AutoStrategy{cfg: cfg.withDefaults()}
}

// Name implements Strategy.
func (a *AutoStrategy) Name() string {
	if a.current != nil {
		return "auto:" + a.current.Name()
	}
	return "auto"
}

// OnReconnect implements Strategy.
func (a *AutoStrategy) OnReconnect(fn func(ctx context.Context)) {
	a.onReconnect = fn
	if a.current != nil {
		a.current.OnReconnect(fn)
	}
}

// OnError implements Strategy.
func (a *AutoStrategy) OnError(fn func(error)) {
	a.onError = fn
	if a.current != nil {
		a.current.OnError(fn)
	}
}

// Start implements Strategy. It blocks up to SSEConnectionTimeout
// while probing the stream.
func (a *AutoStrategy) Start(ctx context.Context, inboxes []InboxInfo, handler EventHandler) error {
	sse := NewSSEStream(a.cfg)
	a.wire(sse)
	if err := sse.Start(ctx, inboxes, handler); err != nil {
		return a.startPolling(ctx, inboxes, handler)
	}

	timer := time.NewTimer(a.cfg.SSEConnectionTimeout)
	defer timer.Stop()

	select {
	case <-sse.Connected():
		a.current = sse
		return nil
	case <-timer.C:
		sse.Stop()
		return a.startPolling(ctx, inboxes, handler)
	case <-ctx.Done():
		sse.Stop()
		return ctx.Err()
	}
}

func (a *AutoStrategy) startPolling(ctx context.Context, inboxes []InboxInfo, handler EventHandler) error {
	polling := NewPollingEngine(a.cfg)
	a.wire(polling)
	if err := polling.Start(ctx, inboxes, handler); err != nil {
		return err
	}
	a.current = polling
	return nil
}

func (a *AutoStrategy) wire(s Strategy) {
	if a.onReconnect != nil {
		s.OnReconnect(a.onReconnect)
	}
	if a.onError != nil {
		s.OnError(a.onError)
	}
}

// Stop implements Strategy.
func (a *AutoStrategy) Stop() error {
	if a.current != nil {
		return a.current.Stop()
	}
	return nil
}

// AddInbox implements Strategy.
func (a *AutoStrategy) AddInbox(inbox InboxInfo) error {
	if a.current != nil {
		return a.current.AddInbox(inbox)
	}
	return nil
}

// RemoveInbox implements Strategy.
func (a *AutoStrategy) RemoveInbox(inboxHash string) error {
	if a.current != nil {
		return a.current.RemoveInbox(inboxHash)
	}
	return nil
}

// emailEvent adapts a listed email to the stream event shape both
// transports feed the handler with.
func emailEvent(inboxHash string, email *api.EmailEnvelope) *api.StreamEvent {
	return &api.StreamEvent{
		InboxHash: inboxHash,
		EmailID:   email.ID,
		Envelope:  email.EncryptedMetadata,
	}
}
