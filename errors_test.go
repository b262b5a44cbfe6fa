package sealbox

import (
	"errors"
	"testing"
	"time"

	"github.com/sealbox/sealbox-go/internal/api"
	"github.com/sealbox/sealbox-go/internal/crypto"
)

func TestAPIError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    *APIError
		target error
		want   bool
	}{
		{"401 unauthorized", &APIError{StatusCode: 401}, ErrUnauthorized, true},
		{"404 inbox", &APIError{StatusCode: 404, Resource: "inbox"}, ErrInboxNotFound, true},
		{"404 inbox not email", &APIError{StatusCode: 404, Resource: "inbox"}, ErrEmailNotFound, false},
		{"404 email", &APIError{StatusCode: 404, Resource: "email"}, ErrEmailNotFound, true},
		{"404 email not inbox", &APIError{StatusCode: 404, Resource: "email"}, ErrInboxNotFound, false},
		{"404 untagged", &APIError{StatusCode: 404}, ErrInboxNotFound, false},
		{"409 conflict", &APIError{StatusCode: 409}, ErrInboxAlreadyExists, true},
		{"429 rate limited", &APIError{StatusCode: 429}, ErrRateLimited, true},
		{"500 matches nothing", &APIError{StatusCode: 500}, ErrUnauthorized, false},
	}
	for _, tt := range tests {
		if got := errors.Is(tt.err, tt.target); got != tt.want {
			t.Errorf("%s: errors.Is() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestTimeoutError_Is(t *testing.T) {
	err := &TimeoutError{Operation: "WaitForEmail", Timeout: time.Minute}
	if !errors.Is(err, ErrWaitTimeout) {
		t.Error("TimeoutError does not match ErrWaitTimeout")
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Error("TimeoutError matches ErrUnauthorized")
	}
}

func TestSignatureVerificationError_Is(t *testing.T) {
	plain := &SignatureVerificationError{Message: "bad sig"}
	if !errors.Is(plain, ErrSignatureInvalid) {
		t.Error("plain verification failure does not match ErrSignatureInvalid")
	}
	if errors.Is(plain, ErrServerKeyMismatch) {
		t.Error("plain verification failure matches ErrServerKeyMismatch")
	}

	mismatch := &SignatureVerificationError{Message: "key changed", KeyMismatch: true}
	if !errors.Is(mismatch, ErrServerKeyMismatch) {
		t.Error("key mismatch does not match ErrServerKeyMismatch")
	}
	if !errors.Is(mismatch, ErrSignatureInvalid) {
		t.Error("key mismatch does not match ErrSignatureInvalid")
	}
}

func TestDecryptionError_Is(t *testing.T) {
	err := &DecryptionError{EmailID: "em-1", Err: errors.New("aead failure")}
	if !errors.Is(err, ErrDecryptionFailed) {
		t.Error("DecryptionError does not match ErrDecryptionFailed")
	}
}

func TestSSEError_Is(t *testing.T) {
	err := &SSEError{Err: errors.New("refused"), Attempts: 10}
	if !errors.Is(err, ErrSSEConnection) {
		t.Error("SSEError does not match ErrSSEConnection")
	}
}

func TestWrapError_APIError(t *testing.T) {
	internal := &api.APIError{
		StatusCode: 404,
		Message:    "gone",
		RequestID:  "req-1",
		Resource:   api.ResourceEmail,
	}
	wrapped := wrapError(internal)

	var pub *APIError
	if !errors.As(wrapped, &pub) {
		t.Fatalf("wrapError() = %T, want *APIError", wrapped)
	}
	if pub.StatusCode != 404 || pub.RequestID != "req-1" || pub.Resource != "email" {
		t.Errorf("wrapped = %+v", pub)
	}
	if !errors.Is(wrapped, ErrEmailNotFound) {
		t.Error("wrapped 404 email does not match ErrEmailNotFound")
	}
}

func TestWrapError_NetworkError(t *testing.T) {
	cause := errors.New("connection refused")
	wrapped := wrapError(&api.NetworkError{Err: cause, URL: "http://x", Attempts: 4})

	var pub *NetworkError
	if !errors.As(wrapped, &pub) {
		t.Fatalf("wrapError() = %T, want *NetworkError", wrapped)
	}
	if pub.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", pub.Attempts)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("wrapped network error does not unwrap to its cause")
	}
}

func TestWrapError_InvalidKeyAndPassthrough(t *testing.T) {
	if !errors.Is(wrapError(api.ErrInvalidAPIKey), ErrUnauthorized) {
		t.Error("invalid key not mapped to ErrUnauthorized")
	}

	plain := errors.New("something else")
	if wrapError(plain) != plain {
		t.Error("unrelated error not passed through")
	}
	if wrapError(nil) != nil {
		t.Error("wrapError(nil) != nil")
	}
}

func TestWrapCryptoError(t *testing.T) {
	if err := wrapCryptoError("em-1", crypto.ErrServerKeyMismatch); !errors.Is(err, ErrServerKeyMismatch) {
		t.Errorf("key mismatch wrapped to %v", err)
	}
	if err := wrapCryptoError("em-1", crypto.ErrSignatureVerificationFailed); !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("signature failure wrapped to %v", err)
	}
	if err := wrapCryptoError("em-1", crypto.ErrDecryptionFailed); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("decryption failure wrapped to %v", err)
	}

	// Security-critical failures must never collapse into the generic
	// decryption kind.
	if err := wrapCryptoError("em-1", crypto.ErrSignatureVerificationFailed); errors.Is(err, ErrDecryptionFailed) {
		t.Error("signature failure matches ErrDecryptionFailed")
	}
	if wrapCryptoError("em-1", nil) != nil {
		t.Error("wrapCryptoError(nil) != nil")
	}
}

func TestSealboxErrorMarker(t *testing.T) {
	for _, err := range []SealboxError{
		&APIError{StatusCode: 500},
		&NetworkError{Err: errors.New("x")},
		&TimeoutError{Operation: "w", Timeout: time.Second},
		&DecryptionError{Err: errors.New("x")},
		&SignatureVerificationError{Message: "x"},
		&SSEError{Err: errors.New("x")},
	} {
		if err.Error() == "" {
			t.Errorf("%T has empty Error()", err)
		}
	}
}
