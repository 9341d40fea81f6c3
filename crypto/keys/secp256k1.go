package keys

import (
	stdcrypto "crypto"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"

	askcrypto "github.com/nostrask/askrelay/crypto"
	"github.com/nostrask/askrelay/internal/metrics"
)

// secp256k1KeyPair signs with BIP-340 Schnorr signatures over the x-only
// public key, matching the signature scheme every event on the wire uses.
type secp256k1KeyPair struct {
	privateKey *secp256k1.PrivateKey
	publicKey  *secp256k1.PublicKey
	id         string
}

// GenerateSecp256k1KeyPair generates a new signing key pair. Call this
// once per long-term identity, and once per ephemeral scope (ask, bid
// envelope, prompt, stream writer) — ephemeral pairs must be Zeroize'd
// when their scope ends and never reused.
func GenerateSecp256k1KeyPair() (askcrypto.KeyPair, error) {
	privateKey, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return newSecp256k1KeyPair(privateKey), nil
}

// Secp256k1KeyPairFromPrivateKeyBytes reconstructs a key pair from a
// 32-byte scalar, used when a long-term identity is loaded from storage.
func Secp256k1KeyPairFromPrivateKeyBytes(b []byte) (askcrypto.KeyPair, error) {
	return newSecp256k1KeyPair(secp256k1.PrivKeyFromBytes(b)), nil
}

func newSecp256k1KeyPair(privateKey *secp256k1.PrivateKey) *secp256k1KeyPair {
	publicKey := privateKey.PubKey()
	hash := sha256.Sum256(publicKey.SerializeCompressed())
	return &secp256k1KeyPair{
		privateKey: privateKey,
		publicKey:  publicKey,
		id:         hex.EncodeToString(hash[:8]),
	}
}

func (kp *secp256k1KeyPair) PublicKey() stdcrypto.PublicKey   { return kp.publicKey.ToECDSA() }
func (kp *secp256k1KeyPair) PrivateKey() stdcrypto.PrivateKey { return kp.privateKey.ToECDSA() }
func (kp *secp256k1KeyPair) Type() askcrypto.KeyType          { return askcrypto.KeyTypeSecp256k1 }
func (kp *secp256k1KeyPair) ID() string                       { return kp.id }

// PublicKeyHex returns the 32-byte x-only public key, hex encoded — the
// form every Event.PubKey and tag-embedded pubkey takes on the wire.
func (kp *secp256k1KeyPair) PublicKeyHex() string {
	return hex.EncodeToString(schnorr.SerializePubKey(kp.publicKey))
}

// Sign hashes message with SHA-256 and produces a BIP-340 Schnorr
// signature over the digest. Event.Sign passes the already-computed
// event id, which is itself a SHA-256 digest, so this hashes it again —
// harmless, and keeps Sign usable directly on arbitrary-length messages
// elsewhere in the package.
func (kp *secp256k1KeyPair) Sign(message []byte) ([]byte, error) {
	start := time.Now()
	digest := sha256.Sum256(message)
	sig, err := schnorr.Sign(kp.privateKey, digest[:])
	metrics.CryptoOperationDuration.WithLabelValues("sign").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CryptoOperations.WithLabelValues("sign", "failure").Inc()
		return nil, err
	}
	metrics.CryptoOperations.WithLabelValues("sign", "success").Inc()
	return sig.Serialize(), nil
}

// Verify checks a BIP-340 Schnorr signature against this pair's public key.
func (kp *secp256k1KeyPair) Verify(message, signature []byte) error {
	start := time.Now()
	digest := sha256.Sum256(message)
	sig, err := schnorr.ParseSignature(signature)
	if err != nil {
		metrics.CryptoOperationDuration.WithLabelValues("verify").Observe(time.Since(start).Seconds())
		metrics.CryptoOperations.WithLabelValues("verify", "failure").Inc()
		return askcrypto.ErrInvalidSignature
	}
	ok := sig.Verify(digest[:], kp.publicKey)
	metrics.CryptoOperationDuration.WithLabelValues("verify").Observe(time.Since(start).Seconds())
	if !ok {
		metrics.CryptoOperations.WithLabelValues("verify", "failure").Inc()
		return askcrypto.ErrInvalidSignature
	}
	metrics.CryptoOperations.WithLabelValues("verify", "success").Inc()
	return nil
}

// Zeroize overwrites the private scalar. Every ephemeral key-pair must
// call this as soon as its ask/bid/prompt/stream scope ends.
func (kp *secp256k1KeyPair) Zeroize() {
	kp.privateKey.Zero()
}

// PrivateKeyScalar exposes the raw secp256k1 private key for use by the
// ECDH/AEAD layer in ecdh.go. Not part of the crypto.KeyPair interface.
func (kp *secp256k1KeyPair) PrivateKeyScalar() *secp256k1.PrivateKey { return kp.privateKey }

// PublicKeyPoint exposes the raw secp256k1 public key.
func (kp *secp256k1KeyPair) PublicKeyPoint() *secp256k1.PublicKey { return kp.publicKey }

// ParsePublicKeyHex parses a 32-byte x-only hex public key as used on
// the wire back into a secp256k1 public key point.
func ParsePublicKeyHex(pubHex string) (*secp256k1.PublicKey, error) {
	b, err := hex.DecodeString(pubHex)
	if err != nil {
		return nil, err
	}
	return schnorr.ParsePubKey(b)
}

// VerifyDigestSig verifies a BIP-340 Schnorr signature against a hex
// x-only public key, without requiring a full KeyPair. Used by event
// validation, where only the claimed signer's public key is known.
func VerifyDigestSig(pubHex string, message, signature []byte) error {
	start := time.Now()
	defer func() {
		metrics.CryptoOperationDuration.WithLabelValues("verify").Observe(time.Since(start).Seconds())
	}()
	pub, err := ParsePublicKeyHex(pubHex)
	if err != nil {
		metrics.CryptoOperations.WithLabelValues("verify", "failure").Inc()
		return askcrypto.ErrInvalidSignature
	}
	digest := sha256.Sum256(message)
	sig, err := schnorr.ParseSignature(signature)
	if err != nil {
		metrics.CryptoOperations.WithLabelValues("verify", "failure").Inc()
		return askcrypto.ErrInvalidSignature
	}
	if !sig.Verify(digest[:], pub) {
		metrics.CryptoOperations.WithLabelValues("verify", "failure").Inc()
		return askcrypto.ErrInvalidSignature
	}
	metrics.CryptoOperations.WithLabelValues("verify", "success").Inc()
	return nil
}
