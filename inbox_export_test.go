package sealbox

import (
	"errors"
	"testing"
	"time"

	"github.com/sealbox/sealbox-go/internal/crypto"
)

func validExport(t *testing.T) (*ExportedInbox, *crypto.Keypair) {
	t.Helper()

	keypair, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	sealer, err := crypto.NewSealer()
	if err != nil {
		t.Fatal(err)
	}

	return &ExportedInbox{
		Version:      ExportVersion,
		EmailAddress: "box@test.sealbox.dev",
		ExpiresAt:    time.Now().Add(time.Hour),
		InboxHash:    crypto.InboxHash(keypair.PublicKey),
		ServerSigPk:  crypto.ToBase64URL(sealer.SigningPublicKey()),
		SecretKey:    crypto.ToBase64URL(keypair.SecretKey),
		ExportedAt:   time.Now(),
		Encrypted:    true,
	}, keypair
}

func TestExportedInbox_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ExportedInbox)
		valid  bool
	}{
		{"valid", func(*ExportedInbox) {}, true},
		{"wrong version", func(e *ExportedInbox) { e.Version = 2 }, false},
		{"missing address", func(e *ExportedInbox) { e.EmailAddress = "" }, false},
		{"two @ signs", func(e *ExportedInbox) { e.EmailAddress = "a@b@c" }, false},
		{"missing hash", func(e *ExportedInbox) { e.InboxHash = "" }, false},
		{"encrypted without secret key", func(e *ExportedInbox) { e.SecretKey = "" }, false},
		{"garbage secret key", func(e *ExportedInbox) { e.SecretKey = "!!!" }, false},
		{"short secret key", func(e *ExportedInbox) { e.SecretKey = crypto.ToBase64URL([]byte("short")) }, false},
		{"encrypted without server key", func(e *ExportedInbox) { e.ServerSigPk = "" }, false},
		{"wrong server key size", func(e *ExportedInbox) { e.ServerSigPk = crypto.ToBase64URL([]byte("tiny")) }, false},
		{"zero expiry", func(e *ExportedInbox) { e.ExpiresAt = time.Time{} }, false},
		{"plain without keys", func(e *ExportedInbox) {
			e.Encrypted = false
			e.SecretKey = ""
			e.ServerSigPk = ""
		}, true},
	}

	for _, tt := range tests {
		data, _ := validExport(t)
		tt.mutate(data)
		err := data.Validate()
		if tt.valid && err != nil {
			t.Errorf("%s: Validate() error = %v, want nil", tt.name, err)
		}
		if !tt.valid {
			if err == nil {
				t.Errorf("%s: Validate() = nil, want error", tt.name)
			} else if !errors.Is(err, ErrInvalidImportData) {
				t.Errorf("%s: error = %v, want ErrInvalidImportData", tt.name, err)
			}
		}
	}
}

func TestNewInboxFromExport_ReconstructsKeypair(t *testing.T) {
	data, keypair := validExport(t)

	inbox, err := newInboxFromExport(data, nil)
	if err != nil {
		t.Fatalf("newInboxFromExport() error = %v", err)
	}
	if inbox.keypair.PublicKeyB64() != keypair.PublicKeyB64() {
		t.Error("re-derived public key differs from the original")
	}
	if inbox.inboxHash != data.InboxHash {
		t.Errorf("inboxHash = %s, want %s", inbox.inboxHash, data.InboxHash)
	}
	if len(inbox.serverSigPk) != crypto.MLDSAPublicKeySize {
		t.Errorf("serverSigPk is %d bytes", len(inbox.serverSigPk))
	}
}

func TestNewInboxFromExport_RejectsForeignHash(t *testing.T) {
	data, _ := validExport(t)

	// Point the export at a different inbox: the hash no longer matches
	// the key the secret reconstructs.
	other, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	data.InboxHash = crypto.InboxHash(other.PublicKey)

	if _, err := newInboxFromExport(data, nil); !errors.Is(err, ErrInvalidImportData) {
		t.Errorf("newInboxFromExport() error = %v, want ErrInvalidImportData", err)
	}
}

func TestInbox_Export_PlainInboxOmitsSecret(t *testing.T) {
	inbox := &Inbox{
		emailAddress: "plain@test.sealbox.dev",
		expiresAt:    time.Now().Add(time.Hour),
		inboxHash:    "hash",
		encrypted:    false,
	}

	exported := inbox.Export()
	if exported.SecretKey != "" {
		t.Error("plain export carries a secret key")
	}
	if exported.Encrypted {
		t.Error("plain export marked encrypted")
	}
	if exported.ExportedAt.IsZero() {
		t.Error("ExportedAt not set")
	}
}
