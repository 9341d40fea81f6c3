package crypto

// These indirection points let crypto/keys and crypto/storage depend on
// this package's interfaces without crypto depending back on them;
// internal/cryptoinit wires the concrete implementations in on import.

var (
	generateSecp256k1KeyPair func() (KeyPair, error)
	newMemoryKeyStorage      func() KeyStorage
)

// SetKeyGenerator registers the secp256k1 key-pair constructor.
func SetKeyGenerator(gen func() (KeyPair, error)) {
	generateSecp256k1KeyPair = gen
}

// SetStorageConstructor registers the in-memory key storage constructor.
func SetStorageConstructor(ctor func() KeyStorage) {
	newMemoryKeyStorage = ctor
}

// GenerateSecp256k1KeyPair generates a signing key pair.
func GenerateSecp256k1KeyPair() (KeyPair, error) {
	if generateSecp256k1KeyPair == nil {
		panic("crypto: secp256k1 key generator not initialized; import github.com/nostrask/askrelay/internal/cryptoinit")
	}
	return generateSecp256k1KeyPair()
}

// NewMemoryKeyStorage creates a new in-memory key storage.
func NewMemoryKeyStorage() KeyStorage {
	if newMemoryKeyStorage == nil {
		panic("crypto: memory key storage constructor not initialized; import github.com/nostrask/askrelay/internal/cryptoinit")
	}
	return newMemoryKeyStorage()
}
