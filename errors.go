package sealbox

import (
	"errors"
	"fmt"
	"time"

	"github.com/sealbox/sealbox-go/internal/api"
	"github.com/sealbox/sealbox-go/internal/crypto"
)

// Sentinel errors for errors.Is() checks.
var (
	// ErrMissingAPIKey is returned when no API key is provided.
	ErrMissingAPIKey = errors.New("API key is required")

	// ErrClientClosed is returned when operations are attempted on a closed client.
	ErrClientClosed = errors.New("client has been closed")

	// ErrUnauthorized is returned when the API key is invalid or expired.
	ErrUnauthorized = errors.New("invalid or expired API key")

	// ErrInboxNotFound is returned when an inbox is not found.
	ErrInboxNotFound = errors.New("inbox not found")

	// ErrEmailNotFound is returned when an email is not found.
	ErrEmailNotFound = errors.New("email not found")

	// ErrInboxAlreadyExists is returned when importing an inbox the client already tracks.
	ErrInboxAlreadyExists = errors.New("inbox already exists")

	// ErrInvalidImportData is returned when imported inbox data fails validation.
	ErrInvalidImportData = errors.New("invalid import data")

	// ErrDecryptionFailed is returned when email decryption fails.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrSignatureInvalid is returned when envelope signature verification fails.
	// Treat it as a tampering indicator, not a transient fault.
	ErrSignatureInvalid = errors.New("signature verification failed")

	// ErrServerKeyMismatch is returned when an envelope's embedded server
	// key differs from the key pinned at inbox creation. Treat it as a
	// MITM indicator; it is never retried.
	ErrServerKeyMismatch = errors.New("server signing key mismatch")

	// ErrSSEConnection is returned when the event stream gives up reconnecting.
	ErrSSEConnection = errors.New("event stream connection error")

	// ErrWaitTimeout is returned when a wait exceeds its deadline.
	ErrWaitTimeout = errors.New("wait timed out")

	// ErrRateLimited is returned when the API rate limit is exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInboxExpired is returned when an inbox's TTL has elapsed.
	ErrInboxExpired = errors.New("inbox has expired")
)

// SealboxError is implemented by all SDK error types.
type SealboxError interface {
	error
	SealboxError() // marker method
}

// APIError is an HTTP error response from the Sealbox gateway.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
	// Resource names the kind of object the failing request addressed
	// ("inbox" or "email"), set on 404 responses.
	Resource string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("API error %d: %s (request_id: %s)", e.StatusCode, e.Message, e.RequestID)
	}
	if e.Message != "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %d", e.StatusCode)
}

// SealboxError implements the SealboxError interface.
func (e *APIError) SealboxError() {}

// Is implements errors.Is for sentinel error matching. Not-found
// errors are classified by the resource the request addressed, never
// by sniffing the error message.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case 401:
		return target == ErrUnauthorized
	case 404:
		switch e.Resource {
		case string(api.ResourceInbox):
			return target == ErrInboxNotFound
		case string(api.ResourceEmail):
			return target == ErrEmailNotFound
		}
		return false
	case 409:
		return target == ErrInboxAlreadyExists
	case 429:
		return target == ErrRateLimited
	}
	return false
}

// NetworkError is a transport-level failure after retries were exhausted.
type NetworkError struct {
	Err      error
	URL      string
	Attempts int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// SealboxError implements the SealboxError interface.
func (e *NetworkError) SealboxError() {}

// TimeoutError is returned by waits that exceeded their deadline. A
// timeout is an expected outcome, distinguishable from every failure.
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Operation, e.Timeout)
}

// Is implements errors.Is for sentinel error matching.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrWaitTimeout
}

// SealboxError implements the SealboxError interface.
func (e *TimeoutError) SealboxError() {}

// DecryptionError is a failure to decrypt envelope content. It is
// scoped to one envelope; subsequent emails still flow.
type DecryptionError struct {
	EmailID string
	Err     error
}

func (e *DecryptionError) Error() string {
	if e.EmailID != "" {
		return fmt.Sprintf("decrypt email %s: %v", e.EmailID, e.Err)
	}
	return fmt.Sprintf("decryption failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *DecryptionError) Is(target error) bool {
	return target == ErrDecryptionFailed
}

// SealboxError implements the SealboxError interface.
func (e *DecryptionError) SealboxError() {}

// SignatureVerificationError indicates potential tampering. When
// KeyMismatch is set, the envelope's embedded server key did not match
// the pinned key, which points at key substitution rather than payload
// corruption.
type SignatureVerificationError struct {
	Message     string
	KeyMismatch bool
}

func (e *SignatureVerificationError) Error() string {
	return fmt.Sprintf("signature verification failed: %s", e.Message)
}

// Is implements errors.Is for sentinel error matching.
func (e *SignatureVerificationError) Is(target error) bool {
	if target == ErrServerKeyMismatch {
		return e.KeyMismatch
	}
	return target == ErrSignatureInvalid
}

// SealboxError implements the SealboxError interface.
func (e *SignatureVerificationError) SealboxError() {}

// SSEError reports that the event stream exhausted its reconnect
// attempts and shut down.
type SSEError struct {
	Err      error
	Attempts int
}

func (e *SSEError) Error() string {
	return fmt.Sprintf("event stream failed after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the underlying error.
func (e *SSEError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *SSEError) Is(target error) bool {
	return target == ErrSSEConnection
}

// SealboxError implements the SealboxError interface.
func (e *SSEError) SealboxError() {}

// wrapError converts internal API errors to public error types so
// errors.Is() works against the package sentinels.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, api.ErrInvalidAPIKey) {
		return ErrUnauthorized
	}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			RequestID:  apiErr.RequestID,
			Resource:   string(apiErr.Resource),
		}
	}

	var netErr *api.NetworkError
	if errors.As(err, &netErr) {
		return &NetworkError{
			Err:      netErr.Err,
			URL:      netErr.URL,
			Attempts: netErr.Attempts,
		}
	}

	return err
}

// wrapCryptoError converts internal crypto errors to public error
// types, keeping security-critical failures (bad signature, key
// mismatch) distinguishable from ordinary decryption failures.
func wrapCryptoError(emailID string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, crypto.ErrServerKeyMismatch) {
		return &SignatureVerificationError{Message: err.Error(), KeyMismatch: true}
	}
	if errors.Is(err, crypto.ErrSignatureVerificationFailed) {
		return &SignatureVerificationError{Message: err.Error()}
	}

	return &DecryptionError{EmailID: emailID, Err: err}
}
