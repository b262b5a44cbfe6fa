package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

// Sealer produces envelopes the way the gateway does. It exists so that
// tests and local tooling can fabricate valid signed (and optionally
// encrypted) envelopes without a live gateway.
type Sealer struct {
	sigPub  []byte
	sigPriv *mldsa65.PrivateKey
}

// NewSealer creates a sealer with a fresh ML-DSA-65 signing keypair.
func NewSealer() (*Sealer, error) {
	pub, priv, err := mldsa65.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &Sealer{sigPub: pubBytes, sigPriv: priv}, nil
}

// SigningPublicKey returns the sealer's ML-DSA-65 public key. Pin this
// as the server key when verifying envelopes the sealer produced.
func (s *Sealer) SigningPublicKey() []byte {
	return s.sigPub
}

// Seal encrypts plaintext to the given recipient KEM public key and
// signs the result, mirroring the gateway's envelope construction.
func (s *Sealer) Seal(plaintext, recipientKemPk, aad []byte) (*Envelope, error) {
	if len(recipientKemPk) != MLKEMPublicKeySize {
		return nil, ErrInvalidPublicKeySize
	}

	scheme := mlkem768.Scheme()
	pk, err := scheme.UnmarshalBinaryPublicKey(recipientKemPk)
	if err != nil {
		return nil, fmt.Errorf("unmarshal recipient key: %w", err)
	}

	ctKem, sharedSecret, err := scheme.Encapsulate(pk)
	if err != nil {
		return nil, fmt.Errorf("encapsulate: %w", err)
	}

	key := deriveKey(sharedSecret, aad, ctKem)

	nonce := make([]byte, AESNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, aad)

	env := &Envelope{
		V:           ProtocolVersion,
		Algs:        DefaultSuite(),
		CtKem:       ToBase64URL(ctKem),
		Nonce:       ToBase64URL(nonce),
		AAD:         ToBase64URL(aad),
		Ciphertext:  ToBase64URL(ciphertext),
		ServerSigPk: ToBase64URL(s.sigPub),
	}
	return s.sign(env)
}

// SealPlain wraps plaintext in a signed, unencrypted envelope for a
// plain inbox.
func (s *Sealer) SealPlain(plaintext []byte) (*Envelope, error) {
	env := &Envelope{
		V:           ProtocolVersion,
		Algs:        AlgorithmSuite{Sig: AlgSig},
		Payload:     ToBase64URL(plaintext),
		ServerSigPk: ToBase64URL(s.sigPub),
	}
	return s.sign(env)
}

func (s *Sealer) sign(env *Envelope) (*Envelope, error) {
	transcript, err := env.transcript()
	if err != nil {
		return nil, err
	}
	sig := make([]byte, mldsa65.SignatureSize)
	if err := mldsa65.SignTo(s.sigPriv, transcript, nil, false, sig); err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	env.Sig = ToBase64URL(sig)
	return env, nil
}
