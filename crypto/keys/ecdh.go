package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	askcrypto "github.com/nostrask/askrelay/crypto"
	"github.com/nostrask/askrelay/internal/metrics"
)

// This file grounds the protocol's NIP-44-style authenticated encryption
// in the same ECDH→HKDF→AEAD shape the teacher uses for its Noise-IK
// bootstrap channel, but derives the shared point directly from the
// secp256k1 signing keys instead of converting to X25519: askrelay's
// long-term identity key doubles as its Diffie-Hellman key, matching
// how real NIP-44 envelopes are built.

var ErrDecryptionFailed = errors.New("crypto/keys: decryption failed")

type rawScalarKeyPair interface {
	PrivateKeyScalar() *secp256k1.PrivateKey
	PublicKeyPoint() *secp256k1.PublicKey
}

// sharedSecretX computes the ECDH shared secret between priv and pub,
// returning the 32-byte X coordinate of priv*pub.
func sharedSecretX(priv *secp256k1.PrivateKey, pub *secp256k1.PublicKey) []byte {
	var pubJacobian secp256k1.JacobianPoint
	pub.AsJacobian(&pubJacobian)

	var result secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(&priv.Key, &pubJacobian, &result)
	result.ToAffine()

	secret := result.X.Bytes()
	return secret[:]
}

// conversationKey derives a 32-byte symmetric key from an ECDH shared
// secret via HKDF-Extract, labelled so encrypt/decrypt keys never
// collide with session or stream keys derived from the same secret.
func conversationKey(sharedX []byte) ([]byte, error) {
	return hkdf.Extract(sha256.New, sharedX, []byte("nip44-v2")), nil
}

// DeriveSharedSecret computes the ECDH conversation key between a local
// key pair and a peer's hex-encoded x-only public key.
func DeriveSharedSecret(local askcrypto.KeyPair, peerPubHex string) ([]byte, error) {
	raw, ok := local.(rawScalarKeyPair)
	if !ok {
		return nil, fmt.Errorf("crypto/keys: %T does not support ECDH", local)
	}
	peerPub, err := ParsePublicKeyHex(peerPubHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/keys: invalid peer public key: %w", err)
	}
	return conversationKey(sharedSecretX(raw.PrivateKeyScalar(), peerPub))
}

// Encrypt authenticates and encrypts plaintext to peerPubHex using
// XChaCha20-Poly1305 keyed by the ECDH conversation key between sender
// and the peer. Returns base64(nonce || ciphertext).
func Encrypt(plaintext []byte, peerPubHex string, sender askcrypto.KeyPair) (string, error) {
	start := time.Now()
	out, err := encrypt(plaintext, peerPubHex, sender)
	metrics.CryptoOperationDuration.WithLabelValues("encrypt").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CryptoOperations.WithLabelValues("encrypt", "failure").Inc()
		return "", err
	}
	metrics.CryptoOperations.WithLabelValues("encrypt", "success").Inc()
	return out, nil
}

func encrypt(plaintext []byte, peerPubHex string, sender askcrypto.KeyPair) (string, error) {
	key, err := DeriveSharedSecret(sender, peerPubHex)
	if err != nil {
		return "", err
	}
	return sealWithKey(key, plaintext)
}

// EncryptWithKey authenticates and encrypts plaintext under a raw
// 32-byte symmetric key instead of one derived from ECDH, for callers
// that negotiate their key another way (HPKE encapsulation, a PSK).
// Returns base64(nonce || ciphertext), the same wire shape Encrypt
// produces.
func EncryptWithKey(plaintext, key []byte) (string, error) {
	return sealWithKey(key, plaintext)
}

func sealWithKey(key, plaintext []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	out := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt: it derives the same conversation key between
// receiver and the claimed sender public key, then opens the AEAD frame.
func Decrypt(ciphertext string, peerPubHex string, receiver askcrypto.KeyPair) ([]byte, error) {
	start := time.Now()
	plaintext, err := decrypt(ciphertext, peerPubHex, receiver)
	metrics.CryptoOperationDuration.WithLabelValues("decrypt").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CryptoOperations.WithLabelValues("decrypt", "failure").Inc()
		return nil, err
	}
	metrics.CryptoOperations.WithLabelValues("decrypt", "success").Inc()
	return plaintext, nil
}

func decrypt(ciphertext string, peerPubHex string, receiver askcrypto.KeyPair) ([]byte, error) {
	key, err := DeriveSharedSecret(receiver, peerPubHex)
	if err != nil {
		return nil, err
	}
	return openWithKey(key, ciphertext)
}

// DecryptWithKey reverses EncryptWithKey: it opens the AEAD frame under
// a raw 32-byte symmetric key instead of one derived from ECDH.
func DecryptWithKey(ciphertext string, key []byte) ([]byte, error) {
	return openWithKey(key, ciphertext)
}

func openWithKey(key []byte, ciphertext string) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	if len(raw) < aead.NonceSize() {
		return nil, ErrDecryptionFailed
	}

	nonce, body := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
