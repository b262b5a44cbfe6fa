package sealbox

import (
	"encoding/json"
	"time"
)

// Email is one decrypted email. It is a plain immutable value; actions
// on an email (mark read, delete, raw source) go through the owning
// Inbox using the email's ID:
//
//   - inbox.MarkEmailAsRead(ctx, email.ID)
//   - inbox.DeleteEmail(ctx, email.ID)
//   - inbox.GetRawEmail(ctx, email.ID)
type Email struct {
	ID         string
	From       string
	To         []string
	Subject    string
	Text       string
	HTML       string
	ReceivedAt time.Time
	// Headers holds normalized (lowercase-keyed) header values.
	// Non-string header values from the gateway are dropped.
	Headers     map[string]string
	Attachments []Attachment
	// Links are the URLs found in the email body, text before HTML,
	// first occurrence wins.
	Links []string
	// AuthResults carries the gateway's SPF/DKIM/DMARC evaluation
	// verbatim. The SDK does not interpret it.
	AuthResults json.RawMessage
	IsRead      bool
}

// Attachment is one decoded email attachment.
type Attachment struct {
	Filename           string
	ContentType        string
	Size               int
	ContentID          string
	ContentDisposition string
	Content            []byte
	Checksum           string
}

// EmailMetadata is the listing view of an email: enough to render a
// list without fetching or decrypting bodies.
type EmailMetadata struct {
	ID         string
	From       string
	Subject    string
	ReceivedAt time.Time
	IsRead     bool
}
