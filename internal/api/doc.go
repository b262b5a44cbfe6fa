// Package api is the control-plane HTTP client for the Sealbox
// gateway. It handles authentication, request/response encoding, and
// automatic retries with exponential backoff on transient failures
// (408, 429, 500, 502, 503, 504). Envelope contents are opaque here;
// verification and decryption belong to the crypto package.
package api
