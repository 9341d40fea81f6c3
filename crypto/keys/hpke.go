package keys

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/hpke"
)

// streamHPKEKEM is the KEM every stream HPKE encapsulation in this
// package uses: X25519, the same curve the teacher's hpke package
// negotiates exporter secrets over, kept separate from the protocol's
// secp256k1 signing/ECDH key so a stream key pair can be minted and
// discarded per stream without touching any long-term identity.
const streamHPKEKEM = hpke.KEM_X25519_HKDF_SHA256

var streamHPKESuite = hpke.NewSuite(streamHPKEKEM, hpke.KDF_HKDF_SHA256, hpke.AEAD_ChaCha20Poly1305)

// GenerateStreamHPKEKeyPair mints a one-shot X25519 KEM key pair a
// stream reader can publish (inside its StreamMetadata) so a writer can
// encapsulate a forward-secret chunk key to it, the alternative to
// reusing the reader's long-term secp256k1 identity for key agreement
// that spec.md leaves open when no shared static key has been
// negotiated.
func GenerateStreamHPKEKeyPair() (pub, priv []byte, err error) {
	scheme := streamHPKEKEM.Scheme()
	pk, sk, err := scheme.GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("crypto/keys: generate hpke key pair: %w", err)
	}
	if pub, err = pk.MarshalBinary(); err != nil {
		return nil, nil, fmt.Errorf("crypto/keys: marshal hpke public key: %w", err)
	}
	if priv, err = sk.MarshalBinary(); err != nil {
		return nil, nil, fmt.Errorf("crypto/keys: marshal hpke private key: %w", err)
	}
	return pub, priv, nil
}

// EncapsulateStreamKey derives a length-byte symmetric key and the
// encapsulation that lets the holder of receiverPub's matching private
// key recover it, binding the derivation to info (the owning stream's
// event id, so a key can never be replayed across streams).
func EncapsulateStreamKey(receiverPub, info []byte, length int) (enc, key []byte, err error) {
	pk, err := streamHPKEKEM.Scheme().UnmarshalBinaryPublicKey(receiverPub)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto/keys: unmarshal hpke receiver key: %w", err)
	}
	sender, err := streamHPKESuite.NewSender(pk, info)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto/keys: hpke sender setup: %w", err)
	}
	enc, sealer, err := sender.Setup(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto/keys: hpke encapsulate: %w", err)
	}
	return enc, sealer.Export(info, uint(length)), nil
}

// DecapsulateStreamKey recovers the symmetric key EncapsulateStreamKey
// produced, given the matching private key, the encapsulation, and the
// same info the sender bound it to.
func DecapsulateStreamKey(receiverPriv, enc, info []byte, length int) ([]byte, error) {
	sk, err := streamHPKEKEM.Scheme().UnmarshalBinaryPrivateKey(receiverPriv)
	if err != nil {
		return nil, fmt.Errorf("crypto/keys: unmarshal hpke receiver private key: %w", err)
	}
	receiver, err := streamHPKESuite.NewReceiver(sk, info)
	if err != nil {
		return nil, fmt.Errorf("crypto/keys: hpke receiver setup: %w", err)
	}
	opener, err := receiver.Setup(enc)
	if err != nil {
		return nil, fmt.Errorf("crypto/keys: hpke decapsulate: %w", err)
	}
	return opener.Export(info, uint(length)), nil
}
