package crypto

const (
	// ProtocolVersion is the only envelope protocol version this client
	// understands. Envelopes with any other version are rejected before
	// signature verification.
	ProtocolVersion = 1

	// KDFContext is the domain-separation string used in HKDF key
	// derivation and in the signature transcript.
	KDFContext = "sealbox:email:v1"

	// MLKEMPublicKeySize is the size of an ML-KEM-768 public key in bytes.
	MLKEMPublicKeySize = 1184
	// MLKEMSecretKeySize is the size of an ML-KEM-768 secret key in bytes.
	MLKEMSecretKeySize = 2400
	// MLKEMCiphertextSize is the size of an ML-KEM-768 ciphertext in bytes.
	MLKEMCiphertextSize = 1088
	// MLKEMSharedKeySize is the size of the ML-KEM-768 shared secret in bytes.
	MLKEMSharedKeySize = 32

	// MLDSAPublicKeySize is the size of an ML-DSA-65 public key in bytes.
	MLDSAPublicKeySize = 1952
	// MLDSASignatureSize is the size of an ML-DSA-65 signature in bytes.
	MLDSASignatureSize = 3309

	// AESKeySize is the size of an AES-256 key in bytes.
	AESKeySize = 32
	// AESNonceSize is the size of an AES-GCM nonce in bytes.
	AESNonceSize = 12
	// AESTagSize is the size of an AES-GCM authentication tag in bytes.
	AESTagSize = 16

	// publicKeyOffset is the byte offset at which the public key is
	// embedded within a packed ML-KEM-768 secret key.
	publicKeyOffset = 1152
)

// Algorithm identifiers carried in envelope headers.
const (
	AlgKEM  = "ML-KEM-768"
	AlgSig  = "ML-DSA-65"
	AlgAEAD = "AES-256-GCM"
	AlgKDF  = "HKDF-SHA-512"
)

// Ciphersuite is the canonical string form of the algorithm suite,
// as it appears in the signature transcript.
const Ciphersuite = AlgKEM + ":" + AlgSig + ":" + AlgAEAD + ":" + AlgKDF
