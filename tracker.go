package sealbox

import (
	"crypto/sha256"
	"encoding/base64"
	"sort"
	"strings"
	"sync"
)

// tracker owns the deduplicated view of one inbox: the seen-set, the
// decrypted emails in first-observed order, and the local sync
// fingerprint. Both transports feed it, so its atomic check-and-insert
// is what turns at-least-once transport delivery into exactly-once
// subscriber delivery.
type tracker struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	emails []*Email // first-observed order
}

func newTracker() *tracker {
	return &tracker{seen: make(map[string]struct{})}
}

// observe records an email and reports whether it was new. The check
// and the insert happen under one lock acquisition; if SSE and polling
// race on the same id, exactly one caller sees true.
func (t *tracker) observe(email *Email) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.seen[email.ID]; ok {
		return false
	}
	t.seen[email.ID] = struct{}{}
	t.emails = append(t.emails, email)
	return true
}

// forget removes one email, after a server-side deletion.
func (t *tracker) forget(emailID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.seen[emailID]; !ok {
		return
	}
	delete(t.seen, emailID)
	for i, e := range t.emails {
		if e.ID == emailID {
			t.emails = append(t.emails[:i], t.emails[i+1:]...)
			break
		}
	}
}

// snapshot returns the buffered emails in first-observed order.
func (t *tracker) snapshot() []*Email {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Email, len(t.emails))
	copy(out, t.emails)
	return out
}

// seenIDs returns the current seen-set.
func (t *tracker) seenIDs() map[string]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]struct{}, len(t.seen))
	for id := range t.seen {
		out[id] = struct{}{}
	}
	return out
}

// count returns the number of tracked emails.
func (t *tracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}

// localHash computes the sync fingerprint over the tracked email set:
// base64url(SHA-256(join(sort(ids), ","))). It matches the gateway's
// emailsHash for the same set, independent of arrival order or
// transport, so reconciliation can compare fingerprints instead of
// listings. The empty set hashes the empty string.
func (t *tracker) localHash() string {
	t.mu.Lock()
	ids := make([]string, 0, len(t.seen))
	for id := range t.seen {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, ",")))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
