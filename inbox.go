package sealbox

import (
	"context"
	"time"

	"github.com/sealbox/sealbox-go/internal/api"
	"github.com/sealbox/sealbox-go/internal/crypto"
)

// Inbox is one temporary email inbox. For encrypted inboxes it holds
// the client KEM keypair and the server signing key pinned at
// creation; envelopes are verified against the pinned key only.
type Inbox struct {
	emailAddress string
	expiresAt    time.Time
	inboxHash    string
	serverSigPk  []byte
	keypair      *crypto.Keypair
	encrypted    bool
	emailAuth    bool
	client       *Client
}

// SyncStatus is the change-detection fingerprint of an inbox.
type SyncStatus = api.SyncStatus

// EmailAddress returns the inbox email address.
func (i *Inbox) EmailAddress() string {
	return i.emailAddress
}

// ExpiresAt returns when the gateway deletes the inbox.
func (i *Inbox) ExpiresAt() time.Time {
	return i.expiresAt
}

// InboxHash returns the inbox identifier,
// base64url(SHA-256(client KEM public key)) for encrypted inboxes.
func (i *Inbox) InboxHash() string {
	return i.inboxHash
}

// IsEncrypted reports whether the inbox content is end-to-end
// encrypted.
func (i *Inbox) IsEncrypted() bool {
	return i.encrypted
}

// EmailAuth reports whether the gateway evaluates SPF/DKIM/DMARC for
// this inbox.
func (i *Inbox) EmailAuth() bool {
	return i.emailAuth
}

// IsExpired reports whether the inbox TTL has elapsed.
func (i *Inbox) IsExpired() bool {
	return time.Now().After(i.expiresAt)
}

// GetSyncStatus fetches the gateway's fingerprint for this inbox: the
// email count and a hash over the email id set. Cheap change
// detection without a listing.
func (i *Inbox) GetSyncStatus(ctx context.Context) (*SyncStatus, error) {
	status, err := i.client.apiClient.GetSyncStatus(ctx, i.emailAddress)
	if err != nil {
		return nil, wrapError(err)
	}
	return status, nil
}

// Delete deletes the inbox and all of its emails.
func (i *Inbox) Delete(ctx context.Context) error {
	return i.client.DeleteInbox(ctx, i.emailAddress)
}
