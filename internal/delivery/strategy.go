package delivery

import (
	"context"
	"time"

	"github.com/sealbox/sealbox-go/internal/api"
)

// InboxInfo identifies one inbox to a delivery strategy.
type InboxInfo struct {
	// Hash identifies the inbox on the event stream.
	Hash string
	// EmailAddress addresses the inbox on polling endpoints.
	EmailAddress string
}

// EventHandler is invoked once per raw envelope event a strategy
// receives. Deduplication is not a transport property; the handler
// side owns exactly-once delivery.
type EventHandler func(ctx context.Context, event *api.StreamEvent)

// Strategy is one way of learning about new emails. Exactly one
// strategy is active per client. Implementations are safe for
// concurrent use.
type Strategy interface {
	// Start begins delivery for the given inboxes and returns
	// immediately; events arrive asynchronously on the handler.
	Start(ctx context.Context, inboxes []InboxInfo, handler EventHandler) error

	// Stop shuts the strategy down. Idempotent. No events are
	// delivered after Stop returns.
	Stop() error

	// AddInbox starts delivery for one more inbox.
	AddInbox(inbox InboxInfo) error

	// RemoveInbox stops delivery for an inbox.
	RemoveInbox(inboxHash string) error

	// Name identifies the strategy ("sse", "polling", "auto:sse", ...).
	Name() string

	// OnReconnect registers a callback fired after every successful
	// (re)connection. Streams can silently drop events while
	// disconnected, so the callback is where reconciliation happens.
	// Polling has no persistent connection and never fires it.
	OnReconnect(fn func(ctx context.Context))

	// OnError registers a callback for background delivery failures.
	// Fatal errors (e.g. reconnect exhaustion) arrive here rather than
	// panicking across goroutines.
	OnError(fn func(error))
}

// Config holds tunables shared by the strategies.
type Config struct {
	APIClient *api.Client

	// Polling tunables; see PollingEngine.
	PollingInitialInterval   time.Duration
	PollingMaxBackoff        time.Duration
	PollingBackoffMultiplier float64

	// PollingJitterFactor is the jitter fraction J. Zero means
	// DefaultPollingJitterFactor; a negative value disables jitter.
	PollingJitterFactor float64

	// SSEReconnectInterval is the base wait between reconnect attempts;
	// it doubles per consecutive failure.
	SSEReconnectInterval time.Duration
	// SSEMaxReconnectAttempts bounds consecutive failed reconnects
	// before the stream gives up.
	SSEMaxReconnectAttempts int
	// SSEConnectionTimeout bounds how long auto mode waits for the
	// stream before falling back to polling.
	SSEConnectionTimeout time.Duration
}

// Defaults for Config fields left zero.
const (
	DefaultPollingInitialInterval   = 2 * time.Second
	DefaultPollingMaxBackoff        = 30 * time.Second
	DefaultPollingBackoffMultiplier = 1.5
	DefaultPollingJitterFactor      = 0.3
	DefaultSSEReconnectInterval     = 5 * time.Second
	DefaultSSEMaxReconnectAttempts  = 10
	DefaultSSEConnectionTimeout     = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.PollingInitialInterval <= 0 {
		c.PollingInitialInterval = DefaultPollingInitialInterval
	}
	if c.PollingMaxBackoff <= 0 {
		c.PollingMaxBackoff = DefaultPollingMaxBackoff
	}
	if c.PollingBackoffMultiplier <= 1 {
		c.PollingBackoffMultiplier = DefaultPollingBackoffMultiplier
	}
	if c.PollingJitterFactor < 0 {
		c.PollingJitterFactor = 0
	} else if c.PollingJitterFactor == 0 || c.PollingJitterFactor >= 1 {
		c.PollingJitterFactor = DefaultPollingJitterFactor
	}
	if c.SSEReconnectInterval <= 0 {
		c.SSEReconnectInterval = DefaultSSEReconnectInterval
	}
	if c.SSEMaxReconnectAttempts <= 0 {
		c.SSEMaxReconnectAttempts = DefaultSSEMaxReconnectAttempts
	}
	if c.SSEConnectionTimeout <= 0 {
		c.SSEConnectionTimeout = DefaultSSEConnectionTimeout
	}
	return c
}
