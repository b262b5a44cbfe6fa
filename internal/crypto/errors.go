package crypto

import "errors"

var (
	// ErrUnsupportedVersion is returned when an envelope carries a
	// protocol version this client does not understand.
	ErrUnsupportedVersion = errors.New("unsupported envelope version")

	// ErrInvalidAlgorithm is returned when an envelope names an
	// algorithm outside the supported suite.
	ErrInvalidAlgorithm = errors.New("invalid algorithm")

	// ErrInvalidSize is returned when a decoded envelope field has an
	// incorrect length.
	ErrInvalidSize = errors.New("invalid field size")

	// ErrInvalidEnvelope is returned when an envelope is structurally
	// malformed: bad encoding or missing required fields.
	ErrInvalidEnvelope = errors.New("invalid envelope")

	// ErrSignatureVerificationFailed is returned when the ML-DSA-65
	// signature over the envelope transcript does not verify.
	ErrSignatureVerificationFailed = errors.New("signature verification failed")

	// ErrServerKeyMismatch is returned when the envelope's embedded
	// server signing key differs from the key pinned at inbox creation.
	// This indicates key substitution and is never retried.
	ErrServerKeyMismatch = errors.New("server signing key mismatch: envelope key differs from pinned key")

	// ErrDecryptionFailed is returned when AEAD decryption fails.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidSecretKeySize is returned when a secret key has an invalid size.
	ErrInvalidSecretKeySize = errors.New("invalid secret key size")

	// ErrInvalidPublicKeySize is returned when a public key has an invalid size.
	ErrInvalidPublicKeySize = errors.New("invalid public key size")
)
