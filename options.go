package sealbox

import (
	"net/http"
	"regexp"
	"time"
)

// DeliveryStrategy selects how the client learns about new emails.
type DeliveryStrategy string

const (
	// StrategyAuto tries SSE first, falls back to polling.
	StrategyAuto DeliveryStrategy = "auto"
	// StrategySSE uses server-sent events for real-time push.
	StrategySSE DeliveryStrategy = "sse"
	// StrategyPolling polls periodically with adaptive backoff.
	StrategyPolling DeliveryStrategy = "polling"
)

const (
	defaultWaitTimeout = 60 * time.Second
	defaultTimeout     = 30 * time.Second
)

// clientConfig holds configuration for the client.
type clientConfig struct {
	baseURL          string
	httpClient       *http.Client
	deliveryStrategy DeliveryStrategy
	timeout          time.Duration
	retries          int
	retryOn          []int
	onError          func(error)

	// Polling and SSE tunables.
	pollingInitialInterval   time.Duration
	pollingMaxBackoff        time.Duration
	pollingBackoffMultiplier float64
	pollingJitterFactor      float64
	sseReconnectInterval     time.Duration
	sseMaxReconnectAttempts  int
	sseConnectionTimeout     time.Duration
}

// inboxConfig holds configuration for inbox creation.
type inboxConfig struct {
	ttl          time.Duration
	emailAddress string
	emailAuth    bool
	// encrypted overrides the server's default when the policy allows a
	// choice. nil means "server default".
	encrypted *bool
}

// waitConfig holds configuration for waiting on emails. Filters are
// kept in declaration order and evaluated with short-circuit AND.
type waitConfig struct {
	filters []func(*Email) bool
	timeout time.Duration
}

// Option configures the client.
type Option func(*clientConfig)

// InboxOption configures inbox creation.
type InboxOption func(*inboxConfig)

// WaitOption configures email waiting.
type WaitOption func(*waitConfig)

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithDeliveryStrategy sets the delivery strategy.
// Default: StrategyAuto
func WithDeliveryStrategy(strategy DeliveryStrategy) Option {
	return func(c *clientConfig) {
		c.deliveryStrategy = strategy
	}
}

// WithTimeout sets the per-request timeout for control-plane calls.
// Default: 30 seconds
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithRetries sets the number of retries for transient API failures.
// Default: 3
func WithRetries(count int) Option {
	return func(c *clientConfig) {
		c.retries = count
	}
}

// WithRetryOn sets the HTTP status codes that trigger a retry.
// Default: [408, 429, 500, 502, 503, 504]
func WithRetryOn(statusCodes []int) Option {
	return func(c *clientConfig) {
		c.retryOn = statusCodes
	}
}

// WithErrorHandler registers a callback for background failures:
// reconciliation errors, polling errors, event stream shutdown, and
// panics recovered from OnNewEmail callbacks. The callback must not
// block.
func WithErrorHandler(fn func(error)) Option {
	return func(c *clientConfig) {
		c.onError = fn
	}
}

// WithPollingInitialInterval sets the interval used while emails are
// actively arriving.
// Default: 2 seconds
func WithPollingInitialInterval(interval time.Duration) Option {
	return func(c *clientConfig) {
		c.pollingInitialInterval = interval
	}
}

// WithPollingMaxBackoff caps the polling interval growth while the
// inbox is quiet.
// Default: 30 seconds
func WithPollingMaxBackoff(maxBackoff time.Duration) Option {
	return func(c *clientConfig) {
		c.pollingMaxBackoff = maxBackoff
	}
}

// WithPollingBackoffMultiplier sets the factor applied to the interval
// after each empty poll.
// Default: 1.5
func WithPollingBackoffMultiplier(multiplier float64) Option {
	return func(c *clientConfig) {
		c.pollingBackoffMultiplier = multiplier
	}
}

// WithPollingJitterFactor sets the jitter fraction J; each sleep is
// drawn uniformly from interval*(1±J) so fleets of clients do not poll
// in step. A factor of 0 disables jitter.
// Default: 0.3
func WithPollingJitterFactor(factor float64) Option {
	return func(c *clientConfig) {
		if factor <= 0 {
			factor = -1 // explicit zero means "no jitter", not "unset"
		}
		c.pollingJitterFactor = factor
	}
}

// WithSSEReconnectInterval sets the base wait between event stream
// reconnect attempts; the wait doubles per consecutive failure.
// Default: 5 seconds
func WithSSEReconnectInterval(interval time.Duration) Option {
	return func(c *clientConfig) {
		c.sseReconnectInterval = interval
	}
}

// WithSSEMaxReconnectAttempts bounds consecutive failed reconnects
// before the event stream gives up and reports an SSEError.
// Default: 10
func WithSSEMaxReconnectAttempts(attempts int) Option {
	return func(c *clientConfig) {
		c.sseMaxReconnectAttempts = attempts
	}
}

// WithSSEConnectionTimeout sets how long StrategyAuto waits for the
// event stream before falling back to polling.
// Default: 5 seconds
func WithSSEConnectionTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.sseConnectionTimeout = timeout
	}
}

// WithTTL sets the inbox time-to-live.
func WithTTL(ttl time.Duration) InboxOption {
	return func(c *inboxConfig) {
		c.ttl = ttl
	}
}

// WithEmailAddress requests a specific email address for the inbox.
func WithEmailAddress(email string) InboxOption {
	return func(c *inboxConfig) {
		c.emailAddress = email
	}
}

// WithEmailAuth enables SPF/DKIM/DMARC evaluation for the inbox.
func WithEmailAuth(enabled bool) InboxOption {
	return func(c *inboxConfig) {
		c.emailAuth = enabled
	}
}

// WithEncryption overrides the server's default encryption setting for
// the inbox. The server's policy still wins: requesting plain under an
// "always" policy (or encrypted under "never") fails at creation.
func WithEncryption(enabled bool) InboxOption {
	return func(c *inboxConfig) {
		c.encrypted = &enabled
	}
}

// WithSubject filters emails by exact subject match.
func WithSubject(subject string) WaitOption {
	return func(c *waitConfig) {
		c.filters = append(c.filters, func(e *Email) bool {
			return e.Subject == subject
		})
	}
}

// WithSubjectRegex filters emails by subject regex.
func WithSubjectRegex(pattern *regexp.Regexp) WaitOption {
	return func(c *waitConfig) {
		c.filters = append(c.filters, func(e *Email) bool {
			return pattern.MatchString(e.Subject)
		})
	}
}

// WithFrom filters emails by exact sender match.
func WithFrom(from string) WaitOption {
	return func(c *waitConfig) {
		c.filters = append(c.filters, func(e *Email) bool {
			return e.From == from
		})
	}
}

// WithFromRegex filters emails by sender regex.
func WithFromRegex(pattern *regexp.Regexp) WaitOption {
	return func(c *waitConfig) {
		c.filters = append(c.filters, func(e *Email) bool {
			return pattern.MatchString(e.From)
		})
	}
}

// WithPredicate filters emails by a custom predicate.
func WithPredicate(fn func(*Email) bool) WaitOption {
	return func(c *waitConfig) {
		c.filters = append(c.filters, fn)
	}
}

// WithWaitTimeout sets the timeout for waiting.
// Default: 60 seconds
func WithWaitTimeout(timeout time.Duration) WaitOption {
	return func(c *waitConfig) {
		c.timeout = timeout
	}
}

// matches reports whether an email passes every filter, evaluated in
// declaration order with short-circuit on the first failure.
func (w *waitConfig) matches(e *Email) bool {
	for _, f := range w.filters {
		if !f(e) {
			return false
		}
	}
	return true
}

func newWaitConfig(opts []WaitOption) *waitConfig {
	cfg := &waitConfig{timeout: defaultWaitTimeout}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
