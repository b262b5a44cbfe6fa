package sealbox

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sealbox/sealbox-go/internal/crypto"
)

// fakeGateway is an in-memory Sealbox gateway for tests. It signs and
// encrypts envelopes with a real sealer, so the client exercises the
// full verification and decryption path.
type fakeGateway struct {
	t      *testing.T
	sealer *crypto.Sealer
	srv    *httptest.Server

	mu      sync.Mutex
	inboxes map[string]*fakeInbox // keyed by email address
	nextID  int
}

type fakeInbox struct {
	emailAddress string
	inboxHash    string
	kemPk        []byte
	encrypted    bool
	emailAuth    bool
	emails       []*fakeEmail
}

type fakeEmail struct {
	id         string
	receivedAt time.Time
	isRead     bool
	metadata   *crypto.Envelope
	parsed     *crypto.Envelope
	raw        *crypto.Envelope
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	sealer, err := crypto.NewSealer()
	if err != nil {
		t.Fatal(err)
	}
	g := &fakeGateway{
		t:       t,
		sealer:  sealer,
		inboxes: make(map[string]*fakeInbox),
	}
	g.srv = httptest.NewServer(http.HandlerFunc(g.handle))
	t.Cleanup(g.srv.Close)
	return g
}

// addEmail seals a new email into the inbox and returns its id.
func (g *fakeGateway) addEmail(emailAddress, from, subject, text, html string) string {
	g.t.Helper()

	g.mu.Lock()
	inbox := g.inboxes[emailAddress]
	g.nextID++
	id := fmt.Sprintf("em-%d", g.nextID)
	g.mu.Unlock()
	if inbox == nil {
		g.t.Fatalf("addEmail: unknown inbox %s", emailAddress)
	}

	now := time.Now().UTC().Truncate(time.Second)
	metadata, _ := json.Marshal(map[string]string{
		"from":       from,
		"to":         emailAddress,
		"subject":    subject,
		"receivedAt": now.Format(time.RFC3339),
	})
	parsed, _ := json.Marshal(map[string]any{
		"text": text,
		"html": html,
		"headers": map[string]any{
			"Message-ID": "<" + id + "@test.sealbox.dev>",
			"X-Priority": 3, // non-string, must be dropped
		},
	})
	raw := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain\r\n\r\n%s\r\n",
		from, emailAddress, subject, text)

	email := &fakeEmail{
		id:         id,
		receivedAt: now,
		metadata:   g.seal(inbox, metadata),
		parsed:     g.seal(inbox, parsed),
		raw:        g.seal(inbox, []byte(raw)),
	}

	g.mu.Lock()
	inbox.emails = append(inbox.emails, email)
	g.mu.Unlock()
	return id
}

func (g *fakeGateway) seal(inbox *fakeInbox, plaintext []byte) *crypto.Envelope {
	g.t.Helper()
	var env *crypto.Envelope
	var err error
	if inbox.encrypted {
		env, err = g.sealer.Seal(plaintext, inbox.kemPk, []byte(inbox.inboxHash))
	} else {
		env, err = g.sealer.SealPlain(plaintext)
	}
	if err != nil {
		g.t.Fatalf("seal: %v", err)
	}
	return env
}

func (g *fakeGateway) deleteEmailServerSide(emailAddress, id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	inbox := g.inboxes[emailAddress]
	for i, e := range inbox.emails {
		if e.id == id {
			inbox.emails = append(inbox.emails[:i], inbox.emails[i+1:]...)
			return
		}
	}
}

func emailsHash(ids []string) string {
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, ",")))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func (g *fakeGateway) handle(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/")
	segments := strings.Split(path, "/")

	switch {
	case path == "check-key":
		fmt.Fprint(w, `{"ok":true}`)

	case path == "server-info":
		json.NewEncoder(w).Encode(map[string]any{
			"serverSigPk":      crypto.ToBase64URL(g.sealer.SigningPublicKey()),
			"maxTtl":           604800,
			"defaultTtl":       3600,
			"encryptionPolicy": "enabled",
			"allowedDomains":   []string{"test.sealbox.dev"},
		})

	case path == "inboxes" && r.Method == http.MethodPost:
		g.createInbox(w, r)

	case path == "inboxes" && r.Method == http.MethodDelete:
		g.mu.Lock()
		n := len(g.inboxes)
		g.inboxes = make(map[string]*fakeInbox)
		g.mu.Unlock()
		fmt.Fprintf(w, `{"deleted":%d}`, n)

	case len(segments) >= 2 && segments[0] == "inboxes":
		g.inboxRequest(w, r, segments[1:])

	default:
		http.NotFound(w, r)
	}
}

func (g *fakeGateway) createInbox(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientKemPk  string `json:"clientKemPk"`
		TTL          int    `json:"ttl"`
		EmailAddress string `json:"emailAddress"`
		EmailAuth    bool   `json:"emailAuth"`
		Encrypted    *bool  `json:"encrypted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"message":"bad request"}`, http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	email := req.EmailAddress
	if email == "" {
		email = fmt.Sprintf("inbox%d@test.sealbox.dev", len(g.inboxes)+1)
	}

	inbox := &fakeInbox{
		emailAddress: email,
		emailAuth:    req.EmailAuth,
		encrypted:    req.ClientKemPk != "",
	}
	if inbox.encrypted {
		kemPk, err := crypto.FromBase64URL(req.ClientKemPk)
		if err != nil {
			http.Error(w, `{"message":"bad key"}`, http.StatusBadRequest)
			return
		}
		inbox.kemPk = kemPk
		inbox.inboxHash = crypto.InboxHash(kemPk)
	} else {
		inbox.inboxHash = crypto.InboxHash([]byte(email))
	}
	g.inboxes[email] = inbox

	ttl := req.TTL
	if ttl == 0 {
		ttl = 3600
	}
	json.NewEncoder(w).Encode(map[string]any{
		"emailAddress": email,
		"expiresAt":    time.Now().Add(time.Duration(ttl) * time.Second).UTC(),
		"inboxHash":    inbox.inboxHash,
		"serverSigPk":  crypto.ToBase64URL(g.sealer.SigningPublicKey()),
		"encrypted":    inbox.encrypted,
		"emailAuth":    inbox.emailAuth,
	})
}

func (g *fakeGateway) inboxRequest(w http.ResponseWriter, r *http.Request, segments []string) {
	g.mu.Lock()
	inbox := g.inboxes[segments[0]]
	g.mu.Unlock()
	if inbox == nil {
		http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
		return
	}

	switch {
	case len(segments) == 1 && r.Method == http.MethodDelete:
		g.mu.Lock()
		delete(g.inboxes, inbox.emailAddress)
		g.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)

	case len(segments) == 2 && segments[1] == "sync":
		g.mu.Lock()
		ids := make([]string, 0, len(inbox.emails))
		for _, e := range inbox.emails {
			ids = append(ids, e.id)
		}
		g.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"emailCount": len(ids),
			"emailsHash": emailsHash(ids),
		})

	case len(segments) == 2 && segments[1] == "emails":
		g.listEmails(w, r, inbox)

	case len(segments) >= 3 && segments[1] == "emails":
		g.emailRequest(w, r, inbox, segments[2:])

	default:
		http.NotFound(w, r)
	}
}

func (g *fakeGateway) listEmails(w http.ResponseWriter, r *http.Request, inbox *fakeInbox) {
	metadataOnly := r.URL.Query().Get("metadata") == "only"

	g.mu.Lock()
	list := make([]map[string]any, 0, len(inbox.emails))
	for _, e := range inbox.emails {
		entry := map[string]any{
			"id":                e.id,
			"receivedAt":        e.receivedAt,
			"isRead":            e.isRead,
			"encryptedMetadata": e.metadata,
		}
		if !metadataOnly {
			entry["encryptedParsed"] = e.parsed
		}
		list = append(list, entry)
	}
	g.mu.Unlock()

	json.NewEncoder(w).Encode(map[string]any{"emails": list})
}

func (g *fakeGateway) emailRequest(w http.ResponseWriter, r *http.Request, inbox *fakeInbox, segments []string) {
	g.mu.Lock()
	var email *fakeEmail
	for _, e := range inbox.emails {
		if e.id == segments[0] {
			email = e
			break
		}
	}
	g.mu.Unlock()
	if email == nil {
		http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
		return
	}

	switch {
	case len(segments) == 1 && r.Method == http.MethodGet:
		json.NewEncoder(w).Encode(map[string]any{
			"id":                email.id,
			"receivedAt":        email.receivedAt,
			"isRead":            email.isRead,
			"encryptedMetadata": email.metadata,
			"encryptedParsed":   email.parsed,
		})

	case len(segments) == 1 && r.Method == http.MethodDelete:
		g.deleteEmailServerSide(inbox.emailAddress, email.id)
		w.WriteHeader(http.StatusNoContent)

	case len(segments) == 2 && segments[1] == "raw":
		json.NewEncoder(w).Encode(map[string]any{
			"id":           email.id,
			"encryptedRaw": email.raw,
		})

	case len(segments) == 2 && segments[1] == "read" && r.Method == http.MethodPatch:
		g.mu.Lock()
		email.isRead = true
		g.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)

	default:
		http.NotFound(w, r)
	}
}

// newTestClient builds a client against the fake gateway with fast
// polling so tests finish quickly.
func newTestClient(t *testing.T, g *fakeGateway, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithBaseURL(g.srv.URL),
		WithDeliveryStrategy(StrategyPolling),
		WithPollingInitialInterval(10 * time.Millisecond),
		WithPollingMaxBackoff(50 * time.Millisecond),
	}
	client, err := New("test-key", append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}
