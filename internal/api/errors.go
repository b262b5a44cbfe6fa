package api

import (
	"errors"
	"fmt"
)

// ErrInvalidAPIKey is returned when the gateway rejects the API key.
var ErrInvalidAPIKey = errors.New("invalid API key")

// Resource identifies which kind of object an endpoint operates on, so
// not-found errors can be classified without message sniffing.
type Resource string

const (
	ResourceNone  Resource = ""
	ResourceInbox Resource = "inbox"
	ResourceEmail Resource = "email"
)

// APIError is an HTTP-level error response from the gateway.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
	// Resource is the kind of object the failing request addressed.
	// Set for 404 responses so callers can distinguish a missing inbox
	// from a missing email.
	Resource Resource
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("api error %d: %s (request_id: %s)", e.StatusCode, e.Message, e.RequestID)
	}
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error %d", e.StatusCode)
}

// NetworkError is a transport-level failure after retries were
// exhausted.
type NetworkError struct {
	Err      error
	URL      string
	Attempts int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error after %d attempts: %v", e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
