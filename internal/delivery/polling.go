package delivery

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// PollingEngine delivers emails by polling each inbox's sync status on
// an adaptive interval: the interval grows multiplicatively while
// polls come back empty and snaps back to the initial interval the
// moment anything new arrives, so bursts are followed closely. Every
// sleep is jittered to keep fleets of clients from polling in step.
type PollingEngine struct {
	cfg     Config
	inboxes map[string]*polledInbox // keyed by inbox hash
	handler EventHandler
	onError func(error)
	cancel  context.CancelFunc
	mu      sync.Mutex
	started bool
}

type polledInbox struct {
	hash         string
	emailAddress string
	lastHash     string
	interval     time.Duration
	nextDue      time.Time
}

// NewPollingEngine creates a polling engine.
func NewPollingEngine(cfg Config) *PollingEngine {
	return &PollingEngine{
		cfg:     cfg.withDefaults(),
		inboxes: make(map[string]*polledInbox),
	}
}

// Name implements Strategy.
func (p *PollingEngine) Name() string {
	return "polling"
}

// OnReconnect implements Strategy. Polling has no persistent
// connection, so the callback is never fired.
func (p *PollingEngine) OnReconnect(fn func(ctx context.Context)) {}

// OnError implements Strategy.
func (p *PollingEngine) OnError(fn func(error)) {
	p.mu.Lock()
	p.onError = fn
	p.mu.Unlock()
}

// Start implements Strategy.
func (p *PollingEngine) Start(ctx context.Context, inboxes []InboxInfo, handler EventHandler) error {
	p.mu.Lock()
	p.handler = handler
	for _, inbox := range inboxes {
		p.inboxes[inbox.Hash] = p.newPolled(inbox)
	}
	p.started = true
	p.mu.Unlock()

	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)
	return nil
}

// Stop implements Strategy.
func (p *PollingEngine) Stop() error {
	p.mu.Lock()
	p.started = false
	p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

// AddInbox implements Strategy. The inbox is due immediately.
func (p *PollingEngine) AddInbox(inbox InboxInfo) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inboxes[inbox.Hash] = p.newPolled(inbox)
	return nil
}

// RemoveInbox implements Strategy.
func (p *PollingEngine) RemoveInbox(inboxHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inboxes, inboxHash)
	return nil
}

func (p *PollingEngine) newPolled(inbox InboxInfo) *polledInbox {
	return &polledInbox{
		hash:         inbox.Hash,
		emailAddress: inbox.EmailAddress,
		interval:     p.cfg.PollingInitialInterval,
		nextDue:      time.Now(),
	}
}

// loop polls due inboxes and sleeps until the earliest next deadline.
// Cancellation takes effect at the sleep boundary; an in-flight HTTP
// round-trip is bounded by its own request context.
func (p *PollingEngine) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		wait := p.pollDue(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// pollDue polls every inbox whose deadline has passed and returns how
// long to sleep until the next one is due.
func (p *PollingEngine) pollDue(ctx context.Context) time.Duration {
	now := time.Now()

	p.mu.Lock()
	due := make([]*polledInbox, 0, len(p.inboxes))
	for _, inbox := range p.inboxes {
		if !inbox.nextDue.After(now) {
			due = append(due, inbox)
		}
	}
	p.mu.Unlock()

	for _, inbox := range due {
		p.pollInbox(ctx, inbox)
		inbox.nextDue = time.Now().Add(p.jittered(inbox.interval))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.inboxes) == 0 {
		return p.cfg.PollingInitialInterval
	}
	var wait time.Duration
	now = time.Now()
	for _, inbox := range p.inboxes {
		d := inbox.nextDue.Sub(now)
		if d < time.Millisecond {
			d = time.Millisecond
		}
		if wait == 0 || d < wait {
			wait = d
		}
	}
	return wait
}

// pollInbox runs one poll cycle: a cheap sync-status fetch, then a
// full list fetch only when the hash moved.
func (p *PollingEngine) pollInbox(ctx context.Context, inbox *polledInbox) {
	status, err := p.cfg.APIClient.GetSyncStatus(ctx, inbox.emailAddress)
	if err != nil {
		p.reportError(err)
		inbox.interval = p.nextInterval(inbox.interval)
		return
	}

	if status.EmailsHash == inbox.lastHash {
		// Empty poll: back off.
		inbox.interval = p.nextInterval(inbox.interval)
		return
	}

	emails, err := p.cfg.APIClient.ListEmails(ctx, inbox.emailAddress)
	if err != nil {
		p.reportError(err)
		inbox.interval = p.nextInterval(inbox.interval)
		return
	}

	inbox.lastHash = status.EmailsHash
	inbox.interval = p.cfg.PollingInitialInterval

	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	if handler == nil {
		return
	}

	for _, email := range emails {
		handler(ctx, emailEvent(inbox.hash, email))
	}
}

// nextInterval is the pre-jitter backoff step:
// min(interval * multiplier, maxBackoff).
func (p *PollingEngine) nextInterval(interval time.Duration) time.Duration {
	next := time.Duration(float64(interval) * p.cfg.PollingBackoffMultiplier)
	if next > p.cfg.PollingMaxBackoff {
		next = p.cfg.PollingMaxBackoff
	}
	return next
}

// jittered spreads the interval uniformly over
// [interval*(1-j), interval*(1+j)].
func (p *PollingEngine) jittered(interval time.Duration) time.Duration {
	j := p.cfg.PollingJitterFactor
	if j == 0 {
		return interval
	}
	factor := 1 + (rand.Float64()*2-1)*j
	return time.Duration(float64(interval) * factor)
}

func (p *PollingEngine) reportError(err error) {
	p.mu.Lock()
	fn := p.onError
	p.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
