// Package cryptoinit wires crypto/keys and crypto/storage's concrete
// implementations into the crypto package at import time, avoiding a
// circular dependency between crypto and its subpackages.
package cryptoinit

import (
	"github.com/nostrask/askrelay/crypto"
	"github.com/nostrask/askrelay/crypto/keys"
	"github.com/nostrask/askrelay/crypto/storage"
)

func init() {
	crypto.SetKeyGenerator(func() (crypto.KeyPair, error) { return keys.GenerateSecp256k1KeyPair() })
	crypto.SetStorageConstructor(func() crypto.KeyStorage { return storage.NewMemoryKeyStorage() })
}
