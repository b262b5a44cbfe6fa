package sealbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sealbox/sealbox-go/internal/api"
	"github.com/sealbox/sealbox-go/internal/crypto"
	"github.com/sealbox/sealbox-go/internal/delivery"
)

// TTL bounds for inbox creation.
const (
	MinTTL = 60 * time.Second     // 1 minute
	MaxTTL = 604800 * time.Second // 7 days
)

// eventFetchTimeout bounds fetching and decrypting one email after a
// push notification.
const eventFetchTimeout = 30 * time.Second

// reconcileConcurrency bounds parallel per-inbox reconciliation passes
// after a stream reconnect.
const reconcileConcurrency = 4

// EncryptionPolicy is the gateway-wide rule for whether inboxes are
// encrypted.
type EncryptionPolicy = api.EncryptionPolicy

// Encryption policy values.
const (
	// EncryptionPolicyAlways requires every inbox to be encrypted.
	EncryptionPolicyAlways = api.EncryptionPolicyAlways
	// EncryptionPolicyEnabled defaults to encrypted, allows plain.
	EncryptionPolicyEnabled = api.EncryptionPolicyEnabled
	// EncryptionPolicyDisabled defaults to plain, allows encrypted.
	EncryptionPolicyDisabled = api.EncryptionPolicyDisabled
	// EncryptionPolicyNever requires every inbox to be plain.
	EncryptionPolicyNever = api.EncryptionPolicyNever
)

// ServerInfo is the gateway configuration relevant to clients.
type ServerInfo struct {
	AllowedDomains   []string
	MaxTTL           time.Duration
	DefaultTTL       time.Duration
	EncryptionPolicy EncryptionPolicy
}

// Client manages Sealbox inboxes and one delivery strategy.
type Client struct {
	apiClient  *api.Client
	strategy   delivery.Strategy
	serverInfo *api.ServerInfo
	subs       *subscriptionManager
	onError    func(error)
	timeout    time.Duration

	mu            sync.RWMutex
	inboxes       map[string]*Inbox   // keyed by email address
	inboxesByHash map[string]*Inbox   // keyed by inbox hash
	trackers      map[string]*tracker // keyed by inbox hash
	closed        bool

	strategyCancel context.CancelFunc
}

// New creates a Sealbox client, validates the API key, and starts the
// configured delivery strategy.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	cfg := &clientConfig{
		deliveryStrategy: StrategyAuto,
		timeout:          defaultTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	apiClient, err := buildAPIClient(apiKey, cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	if err := apiClient.CheckKey(ctx); err != nil {
		return nil, wrapError(err)
	}

	serverInfo, err := apiClient.GetServerInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch server info: %w", wrapError(err))
	}

	strategyCtx, strategyCancel := context.WithCancel(context.Background())

	c := &Client{
		apiClient:      apiClient,
		strategy:       newDeliveryStrategy(cfg, apiClient),
		serverInfo:     serverInfo,
		onError:        cfg.onError,
		timeout:        cfg.timeout,
		inboxes:        make(map[string]*Inbox),
		inboxesByHash:  make(map[string]*Inbox),
		trackers:       make(map[string]*tracker),
		strategyCancel: strategyCancel,
	}
	c.subs = newSubscriptionManager(c.reportError)

	// Reconciliation recovers anything the stream dropped while
	// disconnected; fatal stream errors surface through the error
	// handler, never a panic from a background goroutine.
	c.strategy.OnReconnect(c.reconcileAll)
	c.strategy.OnError(func(err error) {
		var rerr *delivery.ReconnectError
		if errors.As(err, &rerr) {
			err = &SSEError{Err: rerr.Err, Attempts: rerr.Attempts}
		}
		c.reportError(wrapError(err))
	})

	if err := c.strategy.Start(strategyCtx, nil, c.handleEvent); err != nil {
		strategyCancel()
		return nil, fmt.Errorf("start delivery strategy: %w", err)
	}

	return c, nil
}

func buildAPIClient(apiKey string, cfg *clientConfig) (*api.Client, error) {
	retry := api.DefaultRetryConfig()
	if cfg.retries > 0 {
		retry.MaxRetries = cfg.retries
	}
	if len(cfg.retryOn) > 0 {
		codes := cfg.retryOn
		retry.RetryableOn = func(statusCode int) bool {
			return slices.Contains(codes, statusCode)
		}
	}

	apiOpts := []api.Option{api.WithRetryConfig(retry)}
	if cfg.baseURL != "" {
		apiOpts = append(apiOpts, api.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		apiOpts = append(apiOpts, api.WithHTTPClient(cfg.httpClient))
	}

	return api.New(apiKey, apiOpts...)
}

func newDeliveryStrategy(cfg *clientConfig, apiClient *api.Client) delivery.Strategy {
	deliveryCfg := delivery.Config{
		APIClient:                apiClient,
		PollingInitialInterval:   cfg.pollingInitialInterval,
		PollingMaxBackoff:        cfg.pollingMaxBackoff,
		PollingBackoffMultiplier: cfg.pollingBackoffMultiplier,
		PollingJitterFactor:      cfg.pollingJitterFactor,
		SSEReconnectInterval:     cfg.sseReconnectInterval,
		SSEMaxReconnectAttempts:  cfg.sseMaxReconnectAttempts,
		SSEConnectionTimeout:     cfg.sseConnectionTimeout,
	}
	switch cfg.deliveryStrategy {
	case StrategyPolling:
		return delivery.NewPollingEngine(deliveryCfg)
	case StrategySSE:
		return delivery.NewSSEStream(deliveryCfg)
	default:
		return delivery.NewAutoStrategy(deliveryCfg)
	}
}

// checkClosed returns ErrClientClosed once Close has run.
func (c *Client) checkClosed() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}

func (c *Client) reportError(err error) {
	if err == nil {
		return
	}
	if c.onError != nil {
		c.onError(err)
	}
}

// registerInbox adds an inbox to the tracking maps and the delivery
// strategy.
func (c *Client) registerInbox(inbox *Inbox) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	c.inboxes[inbox.emailAddress] = inbox
	c.inboxesByHash[inbox.inboxHash] = inbox
	c.trackers[inbox.inboxHash] = newTracker()
	c.strategy.AddInbox(delivery.InboxInfo{
		Hash:         inbox.inboxHash,
		EmailAddress: inbox.emailAddress,
	})
	return nil
}

// CreateInbox creates a temporary inbox. Encrypted inboxes generate a
// fresh ML-KEM-768 keypair locally; the secret half never leaves the
// process. The gateway's returned inbox hash is recomputed from the
// public key and the response is rejected on mismatch.
func (c *Client) CreateInbox(ctx context.Context, opts ...InboxOption) (*Inbox, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	cfg := &inboxConfig{ttl: time.Hour}
	for _, opt := range opts {
		opt(cfg)
	}

	if err := c.validateTTL(cfg.ttl); err != nil {
		return nil, err
	}

	encrypted, err := c.resolveEncryption(cfg.encrypted)
	if err != nil {
		return nil, err
	}

	req := &api.CreateInboxRequest{
		TTL:          int(cfg.ttl.Seconds()),
		EmailAddress: cfg.emailAddress,
		EmailAuth:    cfg.emailAuth,
		Encrypted:    cfg.encrypted,
	}

	var keypair *crypto.Keypair
	if encrypted {
		keypair, err = crypto.GenerateKeypair()
		if err != nil {
			return nil, fmt.Errorf("generate keypair: %w", err)
		}
		req.ClientKemPk = keypair.PublicKeyB64()
	}

	resp, err := c.apiClient.CreateInbox(ctx, req)
	if err != nil {
		return nil, wrapError(err)
	}

	if encrypted && resp.InboxHash != crypto.InboxHash(keypair.PublicKey) {
		return nil, fmt.Errorf("create inbox: returned inbox hash does not match the client public key")
	}

	serverSigPk, err := crypto.FromBase64URL(resp.ServerSigPk)
	if err != nil {
		return nil, fmt.Errorf("create inbox: decode server signing key: %w", err)
	}
	if len(serverSigPk) != crypto.MLDSAPublicKeySize {
		return nil, fmt.Errorf("create inbox: server signing key is %d bytes", len(serverSigPk))
	}

	inbox := &Inbox{
		emailAddress: resp.EmailAddress,
		expiresAt:    resp.ExpiresAt,
		inboxHash:    resp.InboxHash,
		serverSigPk:  serverSigPk,
		keypair:      keypair,
		encrypted:    resp.Encrypted,
		emailAuth:    resp.EmailAuth,
		client:       c,
	}

	if err := c.registerInbox(inbox); err != nil {
		return nil, err
	}
	return inbox, nil
}

func (c *Client) validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if ttl < MinTTL {
		return fmt.Errorf("TTL %v is below minimum %v", ttl, MinTTL)
	}
	serverMax := time.Duration(c.serverInfo.MaxTTL) * time.Second
	if serverMax <= 0 {
		serverMax = MaxTTL
	}
	if ttl > serverMax {
		return fmt.Errorf("TTL %v exceeds server maximum %v", ttl, serverMax)
	}
	return nil
}

// resolveEncryption applies the server policy to the caller's choice.
func (c *Client) resolveEncryption(requested *bool) (bool, error) {
	policy := c.serverInfo.EncryptionPolicy
	encrypted := policy == EncryptionPolicyAlways || policy == EncryptionPolicyEnabled || policy == ""

	if requested == nil {
		return encrypted, nil
	}
	if *requested && policy == EncryptionPolicyNever {
		return false, fmt.Errorf("server encryption policy %q forbids encrypted inboxes", policy)
	}
	if !*requested && policy == EncryptionPolicyAlways {
		return false, fmt.Errorf("server encryption policy %q requires encrypted inboxes", policy)
	}
	return *requested, nil
}

// ImportInbox restores a previously exported inbox. The public key is
// re-derived from the secret key and the inbox's server-side existence
// is re-validated before the import succeeds.
func (c *Client) ImportInbox(ctx context.Context, data *ExportedInbox) (*Inbox, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: nil export", ErrInvalidImportData)
	}

	c.mu.RLock()
	_, exists := c.inboxes[data.EmailAddress]
	c.mu.RUnlock()
	if exists {
		return nil, ErrInboxAlreadyExists
	}

	inbox, err := newInboxFromExport(data, c)
	if err != nil {
		return nil, err
	}

	if _, err := c.apiClient.GetSyncStatus(ctx, inbox.emailAddress); err != nil {
		return nil, fmt.Errorf("verify inbox: %w", wrapError(err))
	}

	if err := c.registerInbox(inbox); err != nil {
		return nil, err
	}
	return inbox, nil
}

// ImportInboxFromFile restores an inbox from a JSON export file.
func (c *Client) ImportInboxFromFile(ctx context.Context, filePath string) (*Inbox, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	jsonData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var data ExportedInbox
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImportData, err)
	}

	return c.ImportInbox(ctx, &data)
}

// ExportInboxToFile writes an inbox export to a JSON file with 0600
// permissions. Encrypted inbox exports contain the secret key.
func (c *Client) ExportInboxToFile(inbox *Inbox, filePath string) error {
	if inbox == nil {
		return fmt.Errorf("inbox is nil")
	}

	jsonData, err := json.MarshalIndent(inbox.Export(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal inbox data: %w", err)
	}

	if err := os.WriteFile(filePath, jsonData, 0600); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// DeleteInbox deletes an inbox and all of its emails.
func (c *Client) DeleteInbox(ctx context.Context, emailAddress string) error {
	c.mu.Lock()
	if inbox, exists := c.inboxes[emailAddress]; exists {
		delete(c.inboxes, emailAddress)
		delete(c.inboxesByHash, inbox.inboxHash)
		delete(c.trackers, inbox.inboxHash)
		c.strategy.RemoveInbox(inbox.inboxHash)
		c.subs.drop(inbox.inboxHash)
	}
	c.mu.Unlock()

	return wrapError(c.apiClient.DeleteInbox(ctx, emailAddress))
}

// DeleteAllInboxes deletes every inbox owned by the API key and
// returns how many were removed.
func (c *Client) DeleteAllInboxes(ctx context.Context) (int, error) {
	c.mu.Lock()
	for email, inbox := range c.inboxes {
		c.strategy.RemoveInbox(inbox.inboxHash)
		c.subs.drop(inbox.inboxHash)
		delete(c.inboxes, email)
		delete(c.inboxesByHash, inbox.inboxHash)
		delete(c.trackers, inbox.inboxHash)
	}
	c.mu.Unlock()

	count, err := c.apiClient.DeleteAllInboxes(ctx)
	return count, wrapError(err)
}

// GetInbox returns a tracked inbox by email address.
func (c *Client) GetInbox(emailAddress string) (*Inbox, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inbox, exists := c.inboxes[emailAddress]
	return inbox, exists
}

// Inboxes returns all inboxes tracked by this client.
func (c *Client) Inboxes() []*Inbox {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]*Inbox, 0, len(c.inboxes))
	for _, inbox := range c.inboxes {
		result = append(result, inbox)
	}
	return result
}

// ServerInfo returns the gateway configuration fetched at startup.
func (c *Client) ServerInfo() *ServerInfo {
	return &ServerInfo{
		AllowedDomains:   c.serverInfo.AllowedDomains,
		MaxTTL:           time.Duration(c.serverInfo.MaxTTL) * time.Second,
		DefaultTTL:       time.Duration(c.serverInfo.DefaultTTL) * time.Second,
		EncryptionPolicy: c.serverInfo.EncryptionPolicy,
	}
}

// CheckKey validates the API key against the gateway.
func (c *Client) CheckKey(ctx context.Context) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	return wrapError(c.apiClient.CheckKey(ctx))
}

// track records one decrypted email with the inbox's tracker and, if
// it was genuinely new, notifies subscribers. This is the single point
// where exactly-once delivery is decided, whichever transport or
// explicit fetch produced the email.
func (c *Client) track(inbox *Inbox, email *Email) {
	c.mu.RLock()
	tr := c.trackers[inbox.inboxHash]
	c.mu.RUnlock()
	if tr == nil {
		return
	}
	if tr.observe(email) {
		c.subs.notify(inbox.inboxHash, email)
	}
}

// handleEvent processes one raw envelope event from the delivery
// strategy. The email is fetched in full and decrypted; tracking and
// notification happen inside the fetch path.
func (c *Client) handleEvent(ctx context.Context, event *api.StreamEvent) {
	if event == nil {
		return
	}

	c.mu.RLock()
	inbox := c.inboxesByHash[event.InboxHash]
	c.mu.RUnlock()
	if inbox == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, eventFetchTimeout)
	defer cancel()

	if _, err := inbox.GetEmail(ctx, event.EmailID); err != nil {
		c.reportError(err)
	}
}

// reconcileAll runs one reconciliation pass over every tracked inbox.
// Called after each stream (re)connect, because SSE delivery is
// at-most-once and the disconnected window can silently drop events.
func (c *Client) reconcileAll(ctx context.Context) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	inboxes := make([]*Inbox, 0, len(c.inboxes))
	for _, inbox := range c.inboxes {
		inboxes = append(inboxes, inbox)
	}
	c.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileConcurrency)
	for _, inbox := range inboxes {
		inbox := inbox
		g.Go(func() error {
			return c.reconcileInbox(ctx, inbox)
		})
	}
	if err := g.Wait(); err != nil {
		c.reportError(err)
	}
}

// reconcileInbox compares the local sync fingerprint against the
// gateway's and closes the gap: unseen emails are fetched, decrypted,
// and delivered exactly once; ids gone from the server are forgotten.
func (c *Client) reconcileInbox(ctx context.Context, inbox *Inbox) error {
	c.mu.RLock()
	tr := c.trackers[inbox.inboxHash]
	c.mu.RUnlock()
	if tr == nil {
		return nil
	}

	status, err := c.apiClient.GetSyncStatus(ctx, inbox.emailAddress)
	if err != nil {
		return wrapError(err)
	}
	if status.EmailsHash == tr.localHash() {
		return nil
	}

	metadata, err := c.apiClient.ListEmailMetadata(ctx, inbox.emailAddress)
	if err != nil {
		return wrapError(err)
	}

	serverIDs := make(map[string]struct{}, len(metadata))
	for _, m := range metadata {
		serverIDs[m.ID] = struct{}{}
	}

	seen := tr.seenIDs()
	for id := range seen {
		if _, exists := serverIDs[id]; !exists {
			tr.forget(id)
		}
	}

	for _, m := range metadata {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		// GetEmail tracks and notifies; a bad envelope is scoped to
		// that one email and must not halt the rest of the pass.
		if _, err := inbox.GetEmail(ctx, m.ID); err != nil {
			c.reportError(err)
		}
	}
	return nil
}

// Close shuts down the delivery strategy and drops all local state.
// Idempotent. It does not delete inboxes on the gateway.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.strategyCancel != nil {
		c.strategyCancel()
	}
	if c.strategy != nil {
		if err := c.strategy.Stop(); err != nil {
			return err
		}
	}

	c.inboxes = make(map[string]*Inbox)
	c.inboxesByHash = make(map[string]*Inbox)
	c.trackers = make(map[string]*tracker)
	c.subs.clear()

	return nil
}
