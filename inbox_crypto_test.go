package sealbox

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sealbox/sealbox-go/internal/crypto"
)

func TestInbox_GetEmails_DecryptsRoundTrip(t *testing.T) {
	g := newFakeGateway(t)
	client := newTestClient(t, g)
	ctx := context.Background()

	inbox, err := client.CreateInbox(ctx)
	if err != nil {
		t.Fatal(err)
	}

	before := time.Now().UTC().Truncate(time.Second)
	g.addEmail(inbox.EmailAddress(), "sender@example.com", "Verify your account",
		"Click https://example.com/verify?token=abc. Thanks!",
		"<a href=\"https://example.com/verify?token=abc\">verify</a> or https://example.com/help")

	emails, err := inbox.GetEmails(ctx)
	if err != nil {
		t.Fatalf("GetEmails() error = %v", err)
	}
	if len(emails) != 1 {
		t.Fatalf("len(emails) = %d, want 1", len(emails))
	}
	e := emails[0]

	if e.From != "sender@example.com" {
		t.Errorf("From = %q", e.From)
	}
	if len(e.To) != 1 || e.To[0] != inbox.EmailAddress() {
		t.Errorf("To = %v", e.To)
	}
	if e.Subject != "Verify your account" {
		t.Errorf("Subject = %q", e.Subject)
	}
	if !strings.Contains(e.Text, "verify?token=abc") {
		t.Errorf("Text = %q", e.Text)
	}
	if e.IsRead {
		t.Error("fresh email reports read")
	}

	// The authenticated timestamp from the metadata envelope wins.
	if e.ReceivedAt.Before(before) || e.ReceivedAt.After(time.Now().Add(time.Minute)) {
		t.Errorf("ReceivedAt = %v", e.ReceivedAt)
	}

	// Header keys are lowercased; non-string values are dropped.
	if _, ok := e.Headers["message-id"]; !ok {
		t.Errorf("Headers = %v, want message-id key", e.Headers)
	}
	if _, ok := e.Headers["x-priority"]; ok {
		t.Error("non-string header value survived normalization")
	}

	// Links pulled from text first, then HTML, trailing punctuation
	// trimmed, duplicates collapsed.
	want := []string{"https://example.com/verify?token=abc", "https://example.com/help"}
	if len(e.Links) != len(want) {
		t.Fatalf("Links = %v, want %v", e.Links, want)
	}
	for i := range want {
		if e.Links[i] != want[i] {
			t.Errorf("Links[%d] = %q, want %q", i, e.Links[i], want[i])
		}
	}
}

func TestInbox_GetEmails_PlainInbox(t *testing.T) {
	g := newFakeGateway(t)
	client := newTestClient(t, g)
	ctx := context.Background()

	inbox, err := client.CreateInbox(ctx, WithEncryption(false))
	if err != nil {
		t.Fatal(err)
	}

	g.addEmail(inbox.EmailAddress(), "a@example.com", "plain subject", "plain body", "")

	emails, err := inbox.GetEmails(ctx)
	if err != nil {
		t.Fatalf("GetEmails() error = %v", err)
	}
	if len(emails) != 1 || emails[0].Subject != "plain subject" || emails[0].Text != "plain body" {
		t.Errorf("emails = %+v", emails)
	}
}

func TestInbox_GetEmailsMetadata(t *testing.T) {
	g := newFakeGateway(t)
	client := newTestClient(t, g)
	ctx := context.Background()

	inbox, err := client.CreateInbox(ctx)
	if err != nil {
		t.Fatal(err)
	}

	g.addEmail(inbox.EmailAddress(), "a@example.com", "first", "body", "")
	g.addEmail(inbox.EmailAddress(), "b@example.com", "second", "body", "")

	metadata, err := inbox.GetEmailsMetadata(ctx)
	if err != nil {
		t.Fatalf("GetEmailsMetadata() error = %v", err)
	}
	if len(metadata) != 2 {
		t.Fatalf("len(metadata) = %d, want 2", len(metadata))
	}
	if metadata[0].From != "a@example.com" || metadata[0].Subject != "first" {
		t.Errorf("metadata[0] = %+v", metadata[0])
	}
	if metadata[1].Subject != "second" {
		t.Errorf("metadata[1] = %+v", metadata[1])
	}
}

func TestInbox_GetRawEmail(t *testing.T) {
	g := newFakeGateway(t)
	client := newTestClient(t, g)
	ctx := context.Background()

	inbox, err := client.CreateInbox(ctx)
	if err != nil {
		t.Fatal(err)
	}
	id := g.addEmail(inbox.EmailAddress(), "a@example.com", "raw subject", "raw body", "")

	raw, err := inbox.GetRawEmail(ctx, id)
	if err != nil {
		t.Fatalf("GetRawEmail() error = %v", err)
	}
	if !strings.Contains(raw, "Subject: raw subject") || !strings.Contains(raw, "raw body") {
		t.Errorf("raw = %q", raw)
	}
}

func TestInbox_MarkEmailAsReadAndDelete(t *testing.T) {
	g := newFakeGateway(t)
	client := newTestClient(t, g)
	ctx := context.Background()

	inbox, err := client.CreateInbox(ctx)
	if err != nil {
		t.Fatal(err)
	}
	id := g.addEmail(inbox.EmailAddress(), "a@example.com", "s", "t", "")

	if err := inbox.MarkEmailAsRead(ctx, id); err != nil {
		t.Fatalf("MarkEmailAsRead() error = %v", err)
	}
	email, err := inbox.GetEmail(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !email.IsRead {
		t.Error("IsRead = false after MarkEmailAsRead")
	}

	if err := inbox.DeleteEmail(ctx, id); err != nil {
		t.Fatalf("DeleteEmail() error = %v", err)
	}
	if _, err := inbox.GetEmail(ctx, id); !errors.Is(err, ErrEmailNotFound) {
		t.Errorf("GetEmail after delete error = %v, want ErrEmailNotFound", err)
	}

	status, err := inbox.GetSyncStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status.EmailCount != 0 {
		t.Errorf("EmailCount = %d, want 0", status.EmailCount)
	}
}

func TestInbox_TamperedEnvelopeRejected(t *testing.T) {
	g := newFakeGateway(t)
	client := newTestClient(t, g)
	ctx := context.Background()

	inbox, err := client.CreateInbox(ctx)
	if err != nil {
		t.Fatal(err)
	}
	id := g.addEmail(inbox.EmailAddress(), "a@example.com", "s", "t", "")

	// Flip one ciphertext byte: the transcript no longer matches the
	// signature, so verification must fail before any decryption.
	g.mu.Lock()
	for _, e := range g.inboxes[inbox.EmailAddress()].emails {
		if e.id == id {
			raw, err := crypto.FromBase64URL(e.metadata.Ciphertext)
			if err != nil {
				g.mu.Unlock()
				t.Fatal(err)
			}
			raw[0] ^= 0x01
			e.metadata.Ciphertext = crypto.ToBase64URL(raw)
		}
	}
	g.mu.Unlock()

	_, err = inbox.GetEmail(ctx, id)
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("GetEmail() error = %v, want ErrSignatureInvalid", err)
	}
	if errors.Is(err, ErrDecryptionFailed) {
		t.Error("tampering misreported as a decryption failure")
	}
}

func TestInbox_SubstitutedServerKeyRejected(t *testing.T) {
	g := newFakeGateway(t)
	client := newTestClient(t, g)
	ctx := context.Background()

	inbox, err := client.CreateInbox(ctx)
	if err != nil {
		t.Fatal(err)
	}
	id := g.addEmail(inbox.EmailAddress(), "a@example.com", "s", "t", "")

	// Re-seal with a different signing key: the envelope is internally
	// consistent, but the pinned key no longer matches.
	rogue, err := crypto.NewSealer()
	if err != nil {
		t.Fatal(err)
	}
	g.mu.Lock()
	fi := g.inboxes[inbox.EmailAddress()]
	for _, e := range fi.emails {
		if e.id == id {
			env, err := rogue.Seal([]byte(`{"from":"a@example.com","to":"x","subject":"s"}`),
				fi.kemPk, []byte(fi.inboxHash))
			if err != nil {
				g.mu.Unlock()
				t.Fatal(err)
			}
			e.metadata = env
		}
	}
	g.mu.Unlock()

	_, err = inbox.GetEmail(ctx, id)
	if !errors.Is(err, ErrServerKeyMismatch) {
		t.Errorf("GetEmail() error = %v, want ErrServerKeyMismatch", err)
	}
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Error("key mismatch should also match ErrSignatureInvalid")
	}
}

func TestExtractLinks(t *testing.T) {
	text := "See https://a.example/one. Then http://b.example/two,"
	html := `<a href="https://a.example/one">dup</a> plus https://c.example/three`

	links := extractLinks(text, html)
	want := []string{"https://a.example/one", "http://b.example/two", "https://c.example/three"}
	if len(links) != len(want) {
		t.Fatalf("links = %v, want %v", links, want)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Errorf("links[%d] = %q, want %q", i, links[i], want[i])
		}
	}

	if got := extractLinks("no urls here", ""); got != nil {
		t.Errorf("extractLinks() = %v, want nil", got)
	}
}

func TestNormalizeHeaders(t *testing.T) {
	got := normalizeHeaders(map[string]any{
		"Message-ID": "<id@x>",
		"X-Priority": 3,
		"DKIM":       true,
	})
	if len(got) != 1 || got["message-id"] != "<id@x>" {
		t.Errorf("normalizeHeaders() = %v", got)
	}
	if normalizeHeaders(nil) != nil {
		t.Error("normalizeHeaders(nil) != nil")
	}
}

func TestDecodeAttachments(t *testing.T) {
	content := base64.StdEncoding.EncodeToString([]byte("file bytes"))
	got := decodeAttachments([]attachmentJSON{
		{Filename: "a.txt", ContentType: "text/plain", Size: 10, Content: content, Checksum: "sum"},
		{Filename: "bad.bin", Content: "!!not base64!!"},
	})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if string(got[0].Content) != "file bytes" || got[0].Filename != "a.txt" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].Content != nil {
		t.Error("undecodable content should be nil")
	}
}

func TestReceivedAt(t *testing.T) {
	fallback := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	want := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	if got := receivedAt("2026-05-06T07:08:09Z", fallback); !got.Equal(want) {
		t.Errorf("receivedAt() = %v, want %v", got, want)
	}
	if got := receivedAt("", fallback); !got.Equal(fallback) {
		t.Errorf("receivedAt(\"\") = %v, want fallback", got)
	}
	if got := receivedAt("not a time", fallback); !got.Equal(fallback) {
		t.Errorf("receivedAt(garbage) = %v, want fallback", got)
	}
}
