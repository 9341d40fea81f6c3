package crypto

import "fmt"

// Manager centralizes generation and storage of long-term key pairs.
// Ephemeral key-pairs (one per ask, bid envelope, prompt, or stream
// scope) bypass the Manager entirely: they are minted, used, and
// zeroized by the caller without ever touching storage.
type Manager struct {
	storage KeyStorage
}

// NewManager creates a crypto manager backed by in-memory storage.
func NewManager() *Manager {
	return &Manager{storage: NewMemoryKeyStorage()}
}

// SetStorage overrides the storage backend.
func (m *Manager) SetStorage(storage KeyStorage) {
	m.storage = storage
}

// GenerateKeyPair generates a new key pair of the given type.
func (m *Manager) GenerateKeyPair(keyType KeyType) (KeyPair, error) {
	switch keyType {
	case KeyTypeSecp256k1:
		return GenerateSecp256k1KeyPair()
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidKeyType, keyType)
	}
}

func (m *Manager) StoreKeyPair(keyPair KeyPair) error    { return m.storage.Store(keyPair.ID(), keyPair) }
func (m *Manager) LoadKeyPair(id string) (KeyPair, error) { return m.storage.Load(id) }
func (m *Manager) DeleteKeyPair(id string) error          { return m.storage.Delete(id) }
func (m *Manager) ListKeyPairs() ([]string, error)        { return m.storage.List() }
