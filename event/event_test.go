package event

import (
	"testing"

	"github.com/nostrask/askrelay/crypto/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndValidate(t *testing.T) {
	kp, err := keys.GenerateSecp256k1KeyPair()
	require.NoError(t, err)

	ev := New(KindAsk, `{"question":"hi"}`, [][]string{{"t", "general"}})
	require.NoError(t, ev.Sign(kp))

	assert.Equal(t, kp.PublicKeyHex(), ev.PubKey)
	assert.NotEmpty(t, ev.ID)
	assert.NoError(t, ev.Validate())
}

func TestValidateRejectsTamperedContent(t *testing.T) {
	kp, err := keys.GenerateSecp256k1KeyPair()
	require.NoError(t, err)

	ev := New(KindAsk, "original", nil)
	require.NoError(t, ev.Sign(kp))

	ev.Content = "tampered"
	err = ev.Validate()
	assert.Error(t, err)
}

func TestValidateRejectsWrongSigner(t *testing.T) {
	kp1, err := keys.GenerateSecp256k1KeyPair()
	require.NoError(t, err)
	kp2, err := keys.GenerateSecp256k1KeyPair()
	require.NoError(t, err)

	ev := New(KindAsk, "x", nil)
	require.NoError(t, ev.Sign(kp1))
	ev.PubKey = kp2.PublicKeyHex()

	assert.Error(t, ev.Validate())
}

func TestTagHelpers(t *testing.T) {
	ev := New(KindExpertProfile, "", [][]string{
		{"t", "math"},
		{"t", "physics"},
		{"price", "sat", "100"},
	})

	assert.True(t, ev.HasTag("t"))
	assert.Equal(t, "math", ev.FirstTag("t"))
	assert.ElementsMatch(t, []string{"math", "physics"}, ev.Values("t"))
	assert.False(t, ev.HasTag("missing"))
}
