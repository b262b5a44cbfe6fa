package crypto

import (
	"bytes"
	"fmt"

	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

// Envelope is the signed, optionally encrypted wire representation of
// one email payload. Encrypted inboxes populate CtKem/Nonce/Ciphertext;
// plain inboxes carry the payload directly in Payload. Both variants
// are signed.
type Envelope struct {
	// V is the envelope protocol version.
	V int `json:"v"`
	// Algs names the algorithm suite used to produce the envelope.
	Algs AlgorithmSuite `json:"algs"`
	// CtKem is the ML-KEM-768 ciphertext (base64url). Encrypted only.
	CtKem string `json:"ct_kem,omitempty"`
	// Nonce is the AES-GCM nonce (base64url). Encrypted only.
	Nonce string `json:"nonce,omitempty"`
	// AAD is additional authenticated data (base64url). Encrypted only.
	AAD string `json:"aad,omitempty"`
	// Ciphertext is the AEAD ciphertext including tag (base64url). Encrypted only.
	Ciphertext string `json:"ciphertext,omitempty"`
	// Payload is the plaintext payload (base64url). Plain inboxes only.
	Payload string `json:"payload,omitempty"`
	// Sig is the ML-DSA-65 signature over the transcript (base64url).
	Sig string `json:"sig"`
	// ServerSigPk is the server's ML-DSA-65 public key (base64url).
	ServerSigPk string `json:"server_sig_pk"`
}

// AlgorithmSuite identifies the algorithms an envelope was built with.
type AlgorithmSuite struct {
	KEM  string `json:"kem"`
	Sig  string `json:"sig"`
	AEAD string `json:"aead"`
	KDF  string `json:"kdf"`
}

// String returns the canonical ciphersuite form used in transcripts.
func (a AlgorithmSuite) String() string {
	return a.KEM + ":" + a.Sig + ":" + a.AEAD + ":" + a.KDF
}

// DefaultSuite returns the only suite this client supports.
func DefaultSuite() AlgorithmSuite {
	return AlgorithmSuite{KEM: AlgKEM, Sig: AlgSig, AEAD: AlgAEAD, KDF: AlgKDF}
}

// IsEncrypted reports whether the envelope carries AEAD ciphertext
// rather than a plain payload.
func (e *Envelope) IsEncrypted() bool {
	return e.Payload == ""
}

// VerifyEnvelope checks an envelope against the server signing key
// pinned at inbox creation. It MUST be called before any decryption or
// payload decoding.
//
// Checks, in order: protocol version, algorithm suite, pinned-key
// equality, field sizes, and finally the ML-DSA-65 signature over the
// canonical transcript. The pinned key is the only key trusted; the
// envelope's embedded key is compared against it and never used on its
// own, so a substituted server key surfaces as ErrServerKeyMismatch.
func VerifyEnvelope(e *Envelope, pinnedServerSigPk []byte) error {
	if e == nil {
		return ErrInvalidEnvelope
	}
	if e.V != ProtocolVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, e.V)
	}

	if e.IsEncrypted() {
		if e.Algs.String() != Ciphersuite {
			return fmt.Errorf("%w: %s", ErrInvalidAlgorithm, e.Algs)
		}
	} else if e.Algs.Sig != AlgSig {
		return fmt.Errorf("%w: %s", ErrInvalidAlgorithm, e.Algs.Sig)
	}

	embedded, err := FromBase64URL(e.ServerSigPk)
	if err != nil {
		return fmt.Errorf("%w: server_sig_pk: %v", ErrInvalidEnvelope, err)
	}
	if len(embedded) != MLDSAPublicKeySize {
		return fmt.Errorf("%w: server_sig_pk is %d bytes", ErrInvalidSize, len(embedded))
	}
	if len(pinnedServerSigPk) != MLDSAPublicKeySize {
		return fmt.Errorf("%w: pinned key is %d bytes", ErrInvalidSize, len(pinnedServerSigPk))
	}
	if !bytes.Equal(embedded, pinnedServerSigPk) {
		return ErrServerKeyMismatch
	}

	sig, err := FromBase64URL(e.Sig)
	if err != nil {
		return fmt.Errorf("%w: sig: %v", ErrInvalidEnvelope, err)
	}
	if len(sig) != MLDSASignatureSize {
		return fmt.Errorf("%w: signature is %d bytes", ErrInvalidSize, len(sig))
	}

	transcript, err := e.transcript()
	if err != nil {
		return err
	}

	var pub mldsa65.PublicKey
	if err := pub.UnmarshalBinary(pinnedServerSigPk); err != nil {
		return fmt.Errorf("%w: pinned key: %v", ErrInvalidEnvelope, err)
	}
	if !mldsa65.Verify(&pub, transcript, nil, sig) {
		return ErrSignatureVerificationFailed
	}
	return nil
}

// transcript builds the canonical byte string the gateway signs:
//
//	version (1 byte) || ciphersuite || context || fields || server_sig_pk
//
// where fields is ct_kem || nonce || aad || ciphertext for encrypted
// envelopes and the raw payload for plain ones.
func (e *Envelope) transcript() ([]byte, error) {
	embedded, err := FromBase64URL(e.ServerSigPk)
	if err != nil {
		return nil, fmt.Errorf("%w: server_sig_pk: %v", ErrInvalidEnvelope, err)
	}

	t := []byte{byte(e.V)}
	t = append(t, []byte(e.Algs.String())...)
	t = append(t, []byte(KDFContext)...)

	if e.IsEncrypted() {
		for _, field := range []struct {
			name  string
			value string
		}{
			{"ct_kem", e.CtKem},
			{"nonce", e.Nonce},
			{"aad", e.AAD},
			{"ciphertext", e.Ciphertext},
		} {
			raw, err := FromBase64URL(field.value)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEnvelope, field.name, err)
			}
			t = append(t, raw...)
		}
	} else {
		payload, err := FromBase64URL(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: payload: %v", ErrInvalidEnvelope, err)
		}
		t = append(t, payload...)
	}

	t = append(t, embedded...)
	return t, nil
}
