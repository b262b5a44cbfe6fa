package crypto

import "encoding/base64"

// ToBase64URL encodes bytes as URL-safe base64 without padding, the
// encoding used for every binary field on the wire.
func ToBase64URL(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// FromBase64URL decodes unpadded URL-safe base64.
func FromBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

// FromBase64 decodes standard base64 with padding. Attachment content
// uses this encoding.
func FromBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// ToBase64 encodes bytes as standard base64 with padding.
func ToBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
