package main

import (
	"encoding/hex"
	"fmt"
	"os"

	askcrypto "github.com/nostrask/askrelay/crypto"
	"github.com/nostrask/askrelay/crypto/keys"
)

// loadIdentity resolves the long-term signing key from --identity, then
// ASKRELAY_EXPERT_IDENTITY, generating a fresh throwaway key pair (and
// warning on stderr) if neither is set.
func loadIdentity(flagValue string) (askcrypto.KeyPair, error) {
	hexKey := flagValue
	if hexKey == "" {
		hexKey = os.Getenv("ASKRELAY_EXPERT_IDENTITY")
	}
	if hexKey == "" {
		fmt.Fprintln(os.Stderr, "warning: no --identity or ASKRELAY_EXPERT_IDENTITY set, generating an ephemeral identity")
		return keys.GenerateSecp256k1KeyPair()
	}

	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode identity hex: %w", err)
	}
	return keys.Secp256k1KeyPairFromPrivateKeyBytes(raw)
}
