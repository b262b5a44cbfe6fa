package sealbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sealbox/sealbox-go/internal/api"
	"github.com/sealbox/sealbox-go/internal/crypto"
)

// emailMetadataJSON is the plaintext of a metadata envelope.
type emailMetadataJSON struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Subject    string `json:"subject"`
	ReceivedAt string `json:"receivedAt"`
}

// emailContentJSON is the plaintext of a parsed-content envelope.
type emailContentJSON struct {
	Text        string           `json:"text"`
	HTML        string           `json:"html"`
	Headers     map[string]any   `json:"headers"`
	Links       []string         `json:"links"`
	Attachments []attachmentJSON `json:"attachments"`
	AuthResults json.RawMessage  `json:"authResults"`
}

type attachmentJSON struct {
	Filename           string `json:"filename"`
	ContentType        string `json:"contentType"`
	Size               int    `json:"size"`
	ContentID          string `json:"contentId"`
	ContentDisposition string `json:"contentDisposition"`
	Content            string `json:"content"` // base64
	Checksum           string `json:"checksum"`
}

// decryptEmail turns one wire envelope into a verified, decrypted
// Email. The metadata and parsed-content envelopes are each verified
// against the pinned server key before any payload is opened.
func (i *Inbox) decryptEmail(ctx context.Context, envelope *api.EmailEnvelope) (*Email, error) {
	if envelope.EncryptedMetadata == nil {
		return nil, fmt.Errorf("email %s has no metadata envelope", envelope.ID)
	}

	// Listing endpoints may omit the parsed content; fetch the full
	// record before decrypting so one verification pass covers it all.
	if envelope.EncryptedParsed == nil {
		full, err := i.client.apiClient.GetEmail(ctx, i.emailAddress, envelope.ID)
		if err != nil {
			return nil, wrapError(err)
		}
		envelope = full
	}

	metadataPlaintext, err := i.verifyAndOpen(envelope.ID, envelope.EncryptedMetadata)
	if err != nil {
		return nil, err
	}
	var metadata emailMetadataJSON
	if err := json.Unmarshal(metadataPlaintext, &metadata); err != nil {
		return nil, &DecryptionError{EmailID: envelope.ID, Err: fmt.Errorf("parse metadata: %w", err)}
	}

	email := &Email{
		ID:         envelope.ID,
		From:       metadata.From,
		To:         []string{metadata.To},
		Subject:    metadata.Subject,
		ReceivedAt: receivedAt(metadata.ReceivedAt, envelope.ReceivedAt),
		IsRead:     envelope.IsRead,
	}

	contentPlaintext, err := i.verifyAndOpen(envelope.ID, envelope.EncryptedParsed)
	if err != nil {
		return nil, err
	}
	var content emailContentJSON
	if err := json.Unmarshal(contentPlaintext, &content); err != nil {
		return nil, &DecryptionError{EmailID: envelope.ID, Err: fmt.Errorf("parse content: %w", err)}
	}

	email.Text = content.Text
	email.HTML = content.HTML
	email.Headers = normalizeHeaders(content.Headers)
	email.AuthResults = content.AuthResults
	email.Attachments = decodeAttachments(content.Attachments)

	email.Links = content.Links
	if email.Links == nil {
		email.Links = extractLinks(content.Text, content.HTML)
	}

	return email, nil
}

// decryptMetadata turns one listing entry into an EmailMetadata.
func (i *Inbox) decryptMetadata(entry *api.EmailMetadataEntry) (*EmailMetadata, error) {
	if entry.EncryptedMetadata == nil {
		return nil, fmt.Errorf("email %s has no metadata envelope", entry.ID)
	}

	plaintext, err := i.verifyAndOpen(entry.ID, entry.EncryptedMetadata)
	if err != nil {
		return nil, err
	}
	var metadata emailMetadataJSON
	if err := json.Unmarshal(plaintext, &metadata); err != nil {
		return nil, &DecryptionError{EmailID: entry.ID, Err: fmt.Errorf("parse metadata: %w", err)}
	}

	return &EmailMetadata{
		ID:         entry.ID,
		From:       metadata.From,
		Subject:    metadata.Subject,
		ReceivedAt: receivedAt(metadata.ReceivedAt, entry.ReceivedAt),
		IsRead:     entry.IsRead,
	}, nil
}

// verifyAndOpen verifies one envelope against the pinned server key
// and then opens it. Order matters: nothing is decrypted or decoded
// before the signature has verified.
func (i *Inbox) verifyAndOpen(emailID string, env *crypto.Envelope) ([]byte, error) {
	if err := crypto.VerifyEnvelope(env, i.serverSigPk); err != nil {
		return nil, wrapCryptoError(emailID, err)
	}
	plaintext, err := crypto.Open(env, i.keypair)
	if err != nil {
		return nil, wrapCryptoError(emailID, err)
	}
	return plaintext, nil
}

// receivedAt prefers the authenticated timestamp from the metadata
// envelope and falls back to the gateway's unauthenticated one.
func receivedAt(metadataTime string, fallback time.Time) time.Time {
	if metadataTime != "" {
		if t, err := time.Parse(time.RFC3339, metadataTime); err == nil {
			return t
		}
	}
	return fallback
}

// normalizeHeaders lowercases header keys and keeps string values
// only.
func normalizeHeaders(raw map[string]any) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	headers := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			headers[strings.ToLower(k)] = s
		}
	}
	return headers
}

func decodeAttachments(raw []attachmentJSON) []Attachment {
	if len(raw) == 0 {
		return nil
	}
	attachments := make([]Attachment, len(raw))
	for i, a := range raw {
		content, err := base64.StdEncoding.DecodeString(a.Content)
		if err != nil {
			content = nil
		}
		attachments[i] = Attachment{
			Filename:           a.Filename,
			ContentType:        a.ContentType,
			Size:               a.Size,
			ContentID:          a.ContentID,
			ContentDisposition: a.ContentDisposition,
			Content:            content,
			Checksum:           a.Checksum,
		}
	}
	return attachments
}

var linkPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// extractLinks scans text then HTML for URLs, first occurrence wins.
func extractLinks(text, html string) []string {
	var links []string
	seen := make(map[string]struct{})
	for _, body := range []string{text, html} {
		for _, link := range linkPattern.FindAllString(body, -1) {
			link = strings.TrimRight(link, ".,;)")
			if _, dup := seen[link]; dup {
				continue
			}
			seen[link] = struct{}{}
			links = append(links, link)
		}
	}
	return links
}
