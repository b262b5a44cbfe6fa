package api

import (
	"encoding/json"
	"time"

	"github.com/sealbox/sealbox-go/internal/crypto"
)

// EncryptionPolicy is the gateway-wide rule for whether inboxes are
// encrypted.
type EncryptionPolicy string

const (
	// EncryptionPolicyAlways requires every inbox to be encrypted.
	EncryptionPolicyAlways EncryptionPolicy = "always"
	// EncryptionPolicyEnabled defaults to encrypted, allows plain.
	EncryptionPolicyEnabled EncryptionPolicy = "enabled"
	// EncryptionPolicyDisabled defaults to plain, allows encrypted.
	EncryptionPolicyDisabled EncryptionPolicy = "disabled"
	// EncryptionPolicyNever requires every inbox to be plain.
	EncryptionPolicyNever EncryptionPolicy = "never"
)

// ServerInfo is the /api/server-info response.
type ServerInfo struct {
	ServerSigPk      string           `json:"serverSigPk"`
	MaxTTL           int              `json:"maxTtl"`
	DefaultTTL       int              `json:"defaultTtl"`
	EncryptionPolicy EncryptionPolicy `json:"encryptionPolicy"`
	AllowedDomains   []string         `json:"allowedDomains"`
}

// CreateInboxRequest is the POST /api/inboxes request body.
type CreateInboxRequest struct {
	ClientKemPk  string `json:"clientKemPk,omitempty"`
	TTL          int    `json:"ttl,omitempty"`
	EmailAddress string `json:"emailAddress,omitempty"`
	EmailAuth    bool   `json:"emailAuth,omitempty"`
	Encrypted    *bool  `json:"encrypted,omitempty"`
}

// CreateInboxResponse is the POST /api/inboxes response body.
type CreateInboxResponse struct {
	EmailAddress string    `json:"emailAddress"`
	ExpiresAt    time.Time `json:"expiresAt"`
	InboxHash    string    `json:"inboxHash"`
	ServerSigPk  string    `json:"serverSigPk"`
	Encrypted    bool      `json:"encrypted"`
	EmailAuth    bool      `json:"emailAuth"`
}

// SyncStatus is the change-detection fingerprint of one inbox: the
// email count plus a hash over the sorted email id set.
type SyncStatus struct {
	EmailCount int    `json:"emailCount"`
	EmailsHash string `json:"emailsHash"`
}

// EmailEnvelope is one email as the gateway stores it: identifiers and
// flags in the clear, content inside signed (and usually encrypted)
// envelopes. Plain inboxes carry Metadata/Parsed envelopes whose
// payloads decode without a KEM step.
type EmailEnvelope struct {
	ID                string           `json:"id"`
	ReceivedAt        time.Time        `json:"receivedAt"`
	IsRead            bool             `json:"isRead"`
	EncryptedMetadata *crypto.Envelope `json:"encryptedMetadata,omitempty"`
	EncryptedParsed   *crypto.Envelope `json:"encryptedParsed,omitempty"`
}

// EmailListResponse is the GET /api/inboxes/{email}/emails response.
type EmailListResponse struct {
	Emails []*EmailEnvelope `json:"emails"`
}

// EmailMetadataEntry is one entry of the metadata-only listing.
type EmailMetadataEntry struct {
	ID                string           `json:"id"`
	ReceivedAt        time.Time        `json:"receivedAt"`
	IsRead            bool             `json:"isRead"`
	EncryptedMetadata *crypto.Envelope `json:"encryptedMetadata,omitempty"`
}

// EmailMetadataListResponse is the metadata-only listing response.
type EmailMetadataListResponse struct {
	Emails []*EmailMetadataEntry `json:"emails"`
}

// RawEmailResponse is the GET .../emails/{id}/raw response: the raw
// RFC 5322 source wrapped in an envelope.
type RawEmailResponse struct {
	ID           string           `json:"id"`
	EncryptedRaw *crypto.Envelope `json:"encryptedRaw"`
}

// StreamEvent is one SSE frame: a new or changed email in one inbox.
type StreamEvent struct {
	InboxHash string           `json:"inboxHash"`
	EmailID   string           `json:"emailId"`
	Envelope  *crypto.Envelope `json:"encryptedMetadata,omitempty"`
}

// DecodeStreamEvent parses the data portion of an SSE frame.
func DecodeStreamEvent(data []byte) (*StreamEvent, error) {
	var ev StreamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
