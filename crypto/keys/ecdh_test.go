package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	alice, err := GenerateSecp256k1KeyPair()
	require.NoError(t, err)
	bob, err := GenerateSecp256k1KeyPair()
	require.NoError(t, err)

	plaintext := []byte(`{"question":"what is the capital of France?"}`)

	ciphertext, err := Encrypt(plaintext, bob.PublicKeyHex(), alice)
	require.NoError(t, err)
	assert.NotEmpty(t, ciphertext)

	got, err := Decrypt(ciphertext, alice.PublicKeyHex(), bob)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDecryptWrongPeerFails(t *testing.T) {
	alice, err := GenerateSecp256k1KeyPair()
	require.NoError(t, err)
	bob, err := GenerateSecp256k1KeyPair()
	require.NoError(t, err)
	mallory, err := GenerateSecp256k1KeyPair()
	require.NoError(t, err)

	ciphertext, err := Encrypt([]byte("hello"), bob.PublicKeyHex(), alice)
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, mallory.PublicKeyHex(), bob)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestSharedSecretIsSymmetric(t *testing.T) {
	alice, err := GenerateSecp256k1KeyPair()
	require.NoError(t, err)
	bob, err := GenerateSecp256k1KeyPair()
	require.NoError(t, err)

	aliceSide, err := DeriveSharedSecret(alice, bob.PublicKeyHex())
	require.NoError(t, err)
	bobSide, err := DeriveSharedSecret(bob, alice.PublicKeyHex())
	require.NoError(t, err)

	assert.Equal(t, aliceSide, bobSide)
}
