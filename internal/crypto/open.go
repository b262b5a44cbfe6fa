package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Open decrypts a verified encrypted envelope and returns the plaintext
// payload.
//
// The pipeline is ML-KEM-768 decapsulation, HKDF-SHA-512 key derivation
// under the domain-separation context, then AES-256-GCM.
//
// Open performs no signature checks. Callers MUST verify the envelope
// with [VerifyEnvelope] first; decrypting unverified envelopes exposes
// the client to chosen-ciphertext attacks.
func Open(e *Envelope, keypair *Keypair) ([]byte, error) {
	if !e.IsEncrypted() {
		return OpenPlain(e)
	}

	ctKem, err := FromBase64URL(e.CtKem)
	if err != nil {
		return nil, fmt.Errorf("%w: ct_kem: %v", ErrInvalidEnvelope, err)
	}
	if len(ctKem) != MLKEMCiphertextSize {
		return nil, fmt.Errorf("%w: ct_kem is %d bytes", ErrInvalidSize, len(ctKem))
	}

	nonce, err := FromBase64URL(e.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrInvalidEnvelope, err)
	}
	if len(nonce) != AESNonceSize {
		return nil, fmt.Errorf("%w: nonce is %d bytes", ErrInvalidSize, len(nonce))
	}

	aad, err := FromBase64URL(e.AAD)
	if err != nil {
		return nil, fmt.Errorf("%w: aad: %v", ErrInvalidEnvelope, err)
	}

	ciphertext, err := FromBase64URL(e.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", ErrInvalidEnvelope, err)
	}
	if len(ciphertext) < AESTagSize {
		return nil, fmt.Errorf("%w: ciphertext is %d bytes", ErrInvalidSize, len(ciphertext))
	}

	sharedSecret, err := keypair.Decapsulate(ctKem)
	if err != nil {
		return nil, err
	}

	key := deriveKey(sharedSecret, aad, ctKem)

	plaintext, err := aeadOpen(key, nonce, aad, ciphertext)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// OpenPlain decodes the payload of a verified plain envelope.
func OpenPlain(e *Envelope) ([]byte, error) {
	if e.Payload == "" {
		return nil, fmt.Errorf("%w: missing payload", ErrInvalidEnvelope)
	}
	payload, err := FromBase64URL(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrInvalidEnvelope, err)
	}
	return payload, nil
}

// deriveKey derives the AES-256 key for one envelope:
//
//	IKM:  KEM shared secret
//	salt: SHA-256(ct_kem)
//	info: context || len(aad) (4 bytes BE) || aad
func deriveKey(sharedSecret, aad, ctKem []byte) []byte {
	salt := sha256.Sum256(ctKem)

	aadLen := make([]byte, 4)
	binary.BigEndian.PutUint32(aadLen, uint32(len(aad)))

	info := make([]byte, 0, len(KDFContext)+4+len(aad))
	info = append(info, []byte(KDFContext)...)
	info = append(info, aadLen...)
	info = append(info, aad...)

	key := make([]byte, AESKeySize)
	// ReadFull from hkdf cannot fail for a 32-byte read.
	io.ReadFull(hkdf.New(sha512.New, sharedSecret, salt[:], info), key)
	return key
}

// aeadOpen decrypts AES-256-GCM ciphertext. Any authentication failure
// collapses to ErrDecryptionFailed; the distinction from a bad
// signature is preserved one level up.
func aeadOpen(key, nonce, aad, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
