package payment

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// MemoryWallet is an in-memory fake wallet for tests, grounded on the
// teacher's crypto/storage in-memory-map-with-mutex shape: it treats
// every invoice string as its own unique "account" and manufactures a
// preimage on Pay, then accepts that same preimage back on
// VerifyPayment. It proves nothing about real Lightning settlement.
type MemoryWallet struct {
	mu        sync.Mutex
	preimages map[string]string // invoice -> preimage
}

// NewMemoryWallet constructs an empty fake wallet.
func NewMemoryWallet() *MemoryWallet {
	return &MemoryWallet{preimages: make(map[string]string)}
}

// Pay mints a random preimage for invoice and remembers it, standing
// in for an actual Lightning payment round trip.
func (w *MemoryWallet) Pay(_ context.Context, invoice string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.preimages[invoice]; ok {
		return p, nil
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("payment: generate preimage: %w", err)
	}
	preimage := hex.EncodeToString(raw)
	w.preimages[invoice] = preimage
	return preimage, nil
}

// VerifyPayment reports whether preimage is the one this wallet minted
// for invoice, matching the hash-of-preimage check a real wallet would
// run against the invoice's payment hash.
func (w *MemoryWallet) VerifyPayment(_ context.Context, invoice, preimage string) (bool, error) {
	w.mu.Lock()
	want, ok := w.preimages[invoice]
	w.mu.Unlock()
	if !ok {
		return false, nil
	}
	return subtleEqual(want, preimage), nil
}

func subtleEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	ah := sha256.Sum256([]byte(a))
	bh := sha256.Sum256([]byte(b))
	return ah == bh
}
