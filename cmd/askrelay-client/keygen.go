package main

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nostrask/askrelay/crypto/keys"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a scratch client key pair",
	RunE:  runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}

func runKeygen(cmd *cobra.Command, args []string) error {
	kp, err := keys.GenerateSecp256k1KeyPair()
	if err != nil {
		return fmt.Errorf("generate key pair: %w", err)
	}

	priv, ok := kp.PrivateKey().(*ecdsa.PrivateKey)
	if !ok {
		return fmt.Errorf("generate key pair: unexpected private key type")
	}
	privBytes := make([]byte, 32)
	priv.D.FillBytes(privBytes)

	fmt.Printf("private: %s\n", hex.EncodeToString(privBytes))
	fmt.Printf("public:  %s\n", kp.PublicKeyHex())
	return nil
}
