package sealbox

import (
	"fmt"
	"strings"
	"time"

	"github.com/sealbox/sealbox-go/internal/crypto"
)

// ExportVersion is the current export format version.
const ExportVersion = 1

// ExportedInbox is the portable JSON form of one inbox. For encrypted
// inboxes it contains the ML-KEM-768 secret key; handle it like a
// credential. The public key is not exported because it is embedded in
// the packed secret key and re-derived on import.
type ExportedInbox struct {
	// Version is the export format version. Must be 1.
	Version int `json:"version"`
	// EmailAddress is the inbox address. Must contain exactly one @.
	EmailAddress string `json:"emailAddress"`
	// ExpiresAt is the inbox expiration timestamp.
	ExpiresAt time.Time `json:"expiresAt"`
	// InboxHash is the inbox identifier. Non-empty.
	InboxHash string `json:"inboxHash"`
	// ServerSigPk is the pinned server ML-DSA-65 public key
	// (base64url, 1952 bytes decoded). Required for encrypted inboxes.
	ServerSigPk string `json:"serverSigPk,omitempty"`
	// SecretKey is the ML-KEM-768 secret key (base64url, 2400 bytes
	// decoded). Encrypted inboxes only.
	SecretKey string `json:"secretKey,omitempty"`
	// ExportedAt is the export timestamp. Informational only.
	ExportedAt time.Time `json:"exportedAt"`
	// EmailAuth records whether SPF/DKIM/DMARC evaluation is enabled.
	EmailAuth bool `json:"emailAuth"`
	// Encrypted records whether this is an encrypted inbox.
	Encrypted bool `json:"encrypted"`
}

// Validate checks the exported data before an import is attempted.
func (e *ExportedInbox) Validate() error {
	if e.Version != ExportVersion {
		return fmt.Errorf("%w: unsupported version %d, expected %d", ErrInvalidImportData, e.Version, ExportVersion)
	}

	if e.EmailAddress == "" {
		return fmt.Errorf("%w: emailAddress is required", ErrInvalidImportData)
	}
	if strings.Count(e.EmailAddress, "@") != 1 {
		return fmt.Errorf("%w: emailAddress must contain exactly one @", ErrInvalidImportData)
	}

	if e.InboxHash == "" {
		return fmt.Errorf("%w: inboxHash is required", ErrInvalidImportData)
	}

	if e.Encrypted {
		if e.SecretKey == "" {
			return fmt.Errorf("%w: secretKey is required for an encrypted inbox", ErrInvalidImportData)
		}
		secretKey, err := crypto.FromBase64URL(e.SecretKey)
		if err != nil {
			return fmt.Errorf("%w: invalid secretKey encoding", ErrInvalidImportData)
		}
		if len(secretKey) != crypto.MLKEMSecretKeySize {
			return fmt.Errorf("%w: secretKey is %d bytes, expected %d", ErrInvalidImportData, len(secretKey), crypto.MLKEMSecretKeySize)
		}

		if e.ServerSigPk == "" {
			return fmt.Errorf("%w: serverSigPk is required for an encrypted inbox", ErrInvalidImportData)
		}
	}

	if e.ServerSigPk != "" {
		serverSigPk, err := crypto.FromBase64URL(e.ServerSigPk)
		if err != nil {
			return fmt.Errorf("%w: invalid serverSigPk encoding", ErrInvalidImportData)
		}
		if len(serverSigPk) != crypto.MLDSAPublicKeySize {
			return fmt.Errorf("%w: serverSigPk is %d bytes, expected %d", ErrInvalidImportData, len(serverSigPk), crypto.MLDSAPublicKeySize)
		}
	}

	if e.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: expiresAt is required", ErrInvalidImportData)
	}

	return nil
}

// Export returns the portable form of the inbox.
func (i *Inbox) Export() *ExportedInbox {
	exported := &ExportedInbox{
		Version:      ExportVersion,
		EmailAddress: i.emailAddress,
		ExpiresAt:    i.expiresAt,
		InboxHash:    i.inboxHash,
		ExportedAt:   time.Now().UTC(),
		EmailAuth:    i.emailAuth,
		Encrypted:    i.encrypted,
	}

	if i.serverSigPk != nil {
		exported.ServerSigPk = crypto.ToBase64URL(i.serverSigPk)
	}
	if i.encrypted && i.keypair != nil {
		exported.SecretKey = crypto.ToBase64URL(i.keypair.SecretKey)
	}

	return exported
}

// newInboxFromExport reconstructs an inbox from exported data. The
// public key is re-derived from the secret key; the exported inbox
// hash is checked against it so a tampered export cannot silently
// point at a different inbox.
func newInboxFromExport(data *ExportedInbox, c *Client) (*Inbox, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}

	inbox := &Inbox{
		emailAddress: data.EmailAddress,
		expiresAt:    data.ExpiresAt,
		inboxHash:    data.InboxHash,
		emailAuth:    data.EmailAuth,
		encrypted:    data.Encrypted,
		client:       c,
	}

	if data.ServerSigPk != "" {
		// Validate() already checked encoding and size.
		inbox.serverSigPk, _ = crypto.FromBase64URL(data.ServerSigPk)
	}

	if data.Encrypted {
		secretKey, _ := crypto.FromBase64URL(data.SecretKey)

		keypair, err := crypto.KeypairFromSecretKey(secretKey)
		if err != nil {
			return nil, fmt.Errorf("%w: reconstruct keypair: %v", ErrInvalidImportData, err)
		}
		if crypto.InboxHash(keypair.PublicKey) != data.InboxHash {
			return nil, fmt.Errorf("%w: inboxHash does not match the secret key", ErrInvalidImportData)
		}
		inbox.keypair = keypair
	}

	return inbox, nil
}
