package crypto

import (
	"crypto/sha256"
	"io"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
)

// randReader is the randomness source for key generation. It defaults
// to nil, which makes circl use crypto/rand. Tests may override it.
var randReader io.Reader

// Keypair is an ML-KEM-768 keypair owned by one inbox.
type Keypair struct {
	// PublicKey is the packed ML-KEM-768 public key.
	PublicKey []byte
	// SecretKey is the packed ML-KEM-768 secret key.
	SecretKey []byte
}

// GenerateKeypair creates a fresh ML-KEM-768 keypair.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := mlkem768.GenerateKeyPair(randReader)
	if err != nil {
		return nil, err
	}

	// MarshalBinary cannot fail for keys produced by GenerateKeyPair.
	pubBytes, _ := pub.MarshalBinary()
	privBytes, _ := priv.MarshalBinary()

	return &Keypair{
		PublicKey: pubBytes,
		SecretKey: privBytes,
	}, nil
}

// KeypairFromSecretKey reconstructs a keypair from a packed secret key.
// The public key is embedded in the packed secret key, so imports need
// only the secret half.
func KeypairFromSecretKey(secretKey []byte) (*Keypair, error) {
	if len(secretKey) != MLKEMSecretKeySize {
		return nil, ErrInvalidSecretKeySize
	}

	publicKey := make([]byte, MLKEMPublicKeySize)
	copy(publicKey, secretKey[publicKeyOffset:publicKeyOffset+MLKEMPublicKeySize])

	return &Keypair{
		PublicKey: publicKey,
		SecretKey: secretKey,
	}, nil
}

// Decapsulate recovers the shared secret from a KEM ciphertext using
// the inbox's secret key.
func (k *Keypair) Decapsulate(kemCiphertext []byte) ([]byte, error) {
	if len(kemCiphertext) != MLKEMCiphertextSize {
		return nil, ErrInvalidSize
	}

	var priv mlkem768.PrivateKey
	if err := priv.Unpack(k.SecretKey); err != nil {
		return nil, err
	}

	sharedSecret := make([]byte, MLKEMSharedKeySize)
	priv.DecapsulateTo(sharedSecret, kemCiphertext)
	return sharedSecret, nil
}

// PublicKeyB64 returns the public key as unpadded base64url, the form
// sent to the gateway at inbox creation.
func (k *Keypair) PublicKeyB64() string {
	return ToBase64URL(k.PublicKey)
}

// InboxHash derives the inbox identifier from a KEM public key:
// base64url(SHA-256(publicKey)). The hash is a pure function of the
// key, so the client can verify the value the gateway returns.
func InboxHash(publicKey []byte) string {
	sum := sha256.Sum256(publicKey)
	return ToBase64URL(sum[:])
}
