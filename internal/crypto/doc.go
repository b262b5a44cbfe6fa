// Package crypto implements the Sealbox envelope scheme: ML-DSA-65
// signature verification against a pinned server key, ML-KEM-768 key
// decapsulation, HKDF-SHA-512 key derivation, and AES-256-GCM payload
// decryption. Verification and decryption are pure functions with no
// network or logging side effects.
package crypto
