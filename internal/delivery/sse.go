package delivery

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sealbox/sealbox-go/internal/api"
)

// ConnState is the lifecycle state of the SSE stream.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateConnected
	StateReconnecting
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// ReconnectError is reported on the error callback when the stream has
// exhausted its reconnect attempts and transitioned to Closed.
type ReconnectError struct {
	Attempts int
	Err      error
}

func (e *ReconnectError) Error() string {
	return fmt.Sprintf("event stream gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ReconnectError) Unwrap() error {
	return e.Err
}

// SSEStream delivers emails over one long-lived server-sent-events
// connection. Delivery on the stream is at-most-once: frames sent
// while the client is disconnected are gone, so every successful
// (re)connect fires the reconnect callback for a reconciliation pass.
type SSEStream struct {
	cfg         Config
	inboxHashes map[string]struct{}
	handler     EventHandler
	onReconnect func(ctx context.Context)
	onError     func(error)

	mu          sync.RWMutex
	cancel      context.CancelFunc
	connCancel  context.CancelFunc
	lastEventID string
	resubscribe atomic.Bool
	state       atomic.Int32

	connected     chan struct{}
	connectedOnce sync.Once
}

// NewSSEStream creates an SSE delivery stream.
func NewSSEStream(cfg Config) *SSEStream {
	return &SSEStream{
		cfg:         cfg.withDefaults(),
		inboxHashes: make(map[string]struct{}),
		connected:   make(chan struct{}),
	}
}

// Name implements Strategy.
func (s *SSEStream) Name() string {
	return "sse"
}

// State returns the current connection state.
func (s *SSEStream) State() ConnState {
	return ConnState(s.state.Load())
}

// Connected returns a channel closed once the first connection is
// established.
func (s *SSEStream) Connected() <-chan struct{} {
	return s.connected
}

// OnReconnect implements Strategy.
func (s *SSEStream) OnReconnect(fn func(ctx context.Context)) {
	s.mu.Lock()
	s.onReconnect = fn
	s.mu.Unlock()
}

// OnError implements Strategy.
func (s *SSEStream) OnError(fn func(error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// Start implements Strategy.
func (s *SSEStream) Start(ctx context.Context, inboxes []InboxInfo, handler EventHandler) error {
	s.mu.Lock()
	for _, inbox := range inboxes {
		s.inboxHashes[inbox.Hash] = struct{}{}
	}
	s.handler = handler
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx)
	return nil
}

// Stop implements Strategy. The socket closes and the reconnect loop
// halts within one tick.
func (s *SSEStream) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.state.Store(int32(StateClosed))
	return nil
}

// AddInbox implements Strategy. The current connection is dropped and
// reopened so the new inbox takes effect immediately; the deliberate
// drop does not count against the reconnect attempt limit.
func (s *SSEStream) AddInbox(inbox InboxInfo) error {
	s.mu.Lock()
	s.inboxHashes[inbox.Hash] = struct{}{}
	connCancel := s.connCancel
	s.mu.Unlock()

	s.resubscribe.Store(true)
	if connCancel != nil {
		connCancel()
	}
	return nil
}

// RemoveInbox implements Strategy. Frames for the removed inbox may
// still arrive until the next resubscribe; the handler side drops
// them.
func (s *SSEStream) RemoveInbox(inboxHash string) error {
	s.mu.Lock()
	delete(s.inboxHashes, inboxHash)
	s.mu.Unlock()
	return nil
}

// run owns the connect/reconnect state machine.
func (s *SSEStream) run(ctx context.Context) {
	attempts := 0
	var lastErr error

	for {
		if ctx.Err() != nil {
			s.state.Store(int32(StateClosed))
			return
		}

		established, err := s.connect(ctx)
		if ctx.Err() != nil {
			s.state.Store(int32(StateClosed))
			return
		}

		// Reset attempts on successful connection: the limit bounds
		// consecutive failures, not lifetime reconnects, and the backoff
		// exponent starts over after a healthy connection.
		if established {
			attempts = 0
			lastErr = nil
		}

		if s.resubscribe.Swap(false) {
			// Deliberate drop to pick up an inbox set change.
			continue
		}

		if err != nil {
			lastErr = err
		}

		attempts++
		if attempts >= s.cfg.SSEMaxReconnectAttempts {
			s.state.Store(int32(StateClosed))
			s.reportError(&ReconnectError{Attempts: attempts, Err: lastErr})
			return
		}

		s.state.Store(int32(StateReconnecting))
		wait := s.cfg.SSEReconnectInterval * time.Duration(1<<(attempts-1))
		select {
		case <-ctx.Done():
			s.state.Store(int32(StateClosed))
			return
		case <-time.After(wait):
		}
	}
}

// connect opens the stream and reads frames until it breaks. It
// reports whether a connection was actually established. A nil error
// means the server closed the stream cleanly; the caller still
// reconnects, because the subscription is meant to be permanent.
func (s *SSEStream) connect(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.state.Load() != int32(StateReconnecting) {
		s.state.Store(int32(StateConnecting))
	}
	hashes := make([]string, 0, len(s.inboxHashes))
	for h := range s.inboxHashes {
		hashes = append(hashes, h)
	}
	lastEventID := s.lastEventID
	s.mu.Unlock()

	if len(hashes) == 0 {
		// Nothing to subscribe to yet; AddInbox kicks the loop awake.
		select {
		case <-ctx.Done():
		case <-time.After(s.cfg.SSEReconnectInterval):
		}
		s.resubscribe.Store(true)
		return false, nil
	}

	connCtx, connCancel := context.WithCancel(ctx)
	defer connCancel()
	s.mu.Lock()
	s.connCancel = connCancel
	s.mu.Unlock()

	resp, err := s.cfg.APIClient.OpenEventStream(connCtx, hashes, lastEventID)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	s.state.Store(int32(StateConnected))
	s.connectedOnce.Do(func() { close(s.connected) })

	// Recover whatever the disconnected window dropped.
	s.mu.RLock()
	reconcile := s.onReconnect
	s.mu.RUnlock()
	if reconcile != nil {
		go reconcile(ctx)
	}

	return true, s.readFrames(connCtx, resp.Body)
}

func (s *SSEStream) readFrames(ctx context.Context, body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "" || strings.HasPrefix(line, ":"):
			continue
		case strings.HasPrefix(line, "id:"):
			s.mu.Lock()
			s.lastEventID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
			s.mu.Unlock()
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			event, err := api.DecodeStreamEvent([]byte(data))
			if err != nil {
				continue // malformed frame, never fatal
			}

			s.mu.RLock()
			handler := s.handler
			_, subscribed := s.inboxHashes[event.InboxHash]
			s.mu.RUnlock()

			if handler != nil && subscribed {
				handler(ctx, event)
			}
		}
	}
	return scanner.Err()
}

func (s *SSEStream) reportError(err error) {
	s.mu.RLock()
	fn := s.onError
	s.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}
