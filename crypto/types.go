// Package crypto defines the key-pair abstractions shared by every
// long-term and ephemeral identity in the protocol.
package crypto

import (
	"crypto"
	"errors"
)

// KeyType identifies the curve/algorithm a KeyPair was generated for.
type KeyType string

const (
	// KeyTypeSecp256k1 is the only key type the protocol uses: every
	// long-term expert/client identity and every ephemeral key-pair
	// minted per ask, bid envelope, prompt, or stream-writer scope.
	KeyTypeSecp256k1 KeyType = "secp256k1"
)

// KeyPair is implemented by every concrete key-pair type. Sign/Verify use
// BIP-340 Schnorr signatures over a 32-byte message digest; PublicKeyHex
// is the x-only public key in the form events carry it on the wire.
type KeyPair interface {
	PublicKey() crypto.PublicKey
	PrivateKey() crypto.PrivateKey
	Type() KeyType
	Sign(message []byte) ([]byte, error)
	Verify(message, signature []byte) error
	ID() string
	PublicKeyHex() string
	// Zeroize overwrites the private scalar in place. Every ephemeral
	// key-pair must have Zeroize called on it as soon as its scope
	// (the ask, the bid envelope, the prompt, the stream) ends.
	Zeroize()
}

// KeyStorage provides storage for long-term key pairs (not used for
// ephemeral keys, which are never persisted).
type KeyStorage interface {
	Store(id string, keyPair KeyPair) error
	Load(id string) (KeyPair, error)
	Delete(id string) error
	List() ([]string, error)
	Exists(id string) bool
}

// Common errors
var (
	ErrKeyNotFound      = errors.New("crypto: key not found")
	ErrInvalidKeyType   = errors.New("crypto: invalid key type")
	ErrKeyExists        = errors.New("crypto: key already exists")
	ErrInvalidSignature = errors.New("crypto: invalid signature")
)
