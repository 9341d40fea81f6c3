package event

import (
	"encoding/json"
	"testing"

	"github.com/nostrask/askrelay/crypto/keys"
	"github.com/nostrask/askrelay/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, ev *Event) *Event {
	t.Helper()
	kp, err := keys.GenerateSecp256k1KeyPair()
	require.NoError(t, err)
	require.NoError(t, ev.Sign(kp))
	return ev
}

func TestReplyPayloadExactlyOneOf(t *testing.T) {
	t.Run("rejects both set", func(t *testing.T) {
		r := ReplyPayload{Payload: json.RawMessage(`{"a":1}`), Error: "boom"}
		assert.Error(t, r.Validate())
	})
	t.Run("rejects neither set", func(t *testing.T) {
		assert.Error(t, ReplyPayload{}.Validate())
	})
	t.Run("accepts payload only", func(t *testing.T) {
		assert.NoError(t, ReplyPayload{Payload: json.RawMessage(`{"a":1}`)}.Validate())
	})
	t.Run("accepts error only", func(t *testing.T) {
		assert.NoError(t, ReplyPayload{Error: "nope"}.Validate())
	})
}

func TestDecodeReplyRoundTrip(t *testing.T) {
	ev := sign(t, EncodeReply("proof123", json.RawMessage(`{"answer":"42"}`), ""))
	reply, err := DecodeReply(ev)
	require.NoError(t, err)
	assert.Equal(t, "proof123", reply.ProofID)
	assert.JSONEq(t, `{"answer":"42"}`, string(reply.Payload.Payload))
}

func TestDecodeStreamMetadataRejectsUnknownVersion(t *testing.T) {
	ev := sign(t, New(KindStreamMeta, `{"version":"99","compression":"gzip","total_chunks":3}`, nil))
	_, err := DecodeStreamMetadata(ev)
	assert.Error(t, err)
}

func TestDecodeStreamMetadataAcceptsCurrentVersion(t *testing.T) {
	m := StreamMetadata{Compression: "gzip", Encryption: "nip44", TotalChunks: 3, TotalSize: 100000}
	ev := sign(t, EncodeStreamMetadata(m, "reply-id"))
	decoded, err := DecodeStreamMetadata(ev)
	require.NoError(t, err)
	assert.Equal(t, 3, decoded.TotalChunks)
}

func TestDecodeExpertProfileAcceptsLegacyCompressionTag(t *testing.T) {
	ev := sign(t, New(KindExpertProfile, `{"name":"mathbot"}`, [][]string{{"c", "gzip"}}))
	p, err := DecodeExpertProfile(ev)
	require.NoError(t, err)
	assert.Equal(t, []string{"gzip"}, p.Compression)
}

func TestEncodeExpertProfileNeverEmitsCompressionTag(t *testing.T) {
	ev := EncodeExpertProfile("mathbot", "solves equations", []string{"math"}, []string{"wss://relay.example"}, []string{"text"}, []string{"lightning"}, true)
	assert.False(t, ev.HasTag("c"))
}

func TestDecodeExpertProfileDecodesCapabilityTags(t *testing.T) {
	ev := sign(t, EncodeExpertProfile("mathbot", "solves equations", []string{"math"}, []string{"wss://relay.example"}, []string{"text"}, []string{"lightning"}, true))
	p, err := DecodeExpertProfile(ev)
	require.NoError(t, err)
	assert.Equal(t, []string{"text"}, p.Formats)
	assert.Equal(t, []string{"lightning"}, p.Methods)
	assert.True(t, p.StreamOK)
}

func TestDecodeAskDecodesCapabilityTags(t *testing.T) {
	ev := sign(t, EncodeAsk("how do channels work?", "deadbeef", []string{"golang"}, []string{"text"}, []string{"lightning"}, true))
	ask, err := DecodeAsk(ev)
	require.NoError(t, err)
	assert.Equal(t, []string{"text"}, ask.Formats)
	assert.Equal(t, []string{"lightning"}, ask.Methods)
	assert.True(t, ask.StreamOK)
}

func TestDecodeBidPayloadDecodesRelayTags(t *testing.T) {
	ev := sign(t, EncodeBidPayload("ask123", 500, "quick answer", []string{"wss://relay.example"}, []string{"text"}, []string{"lightning"}, true))
	bp, err := DecodeBidPayload(ev)
	require.NoError(t, err)
	assert.Equal(t, []string{"wss://relay.example"}, bp.Relays)
	assert.Equal(t, []string{"text"}, bp.Formats)
	assert.Equal(t, []string{"lightning"}, bp.Methods)
	assert.True(t, bp.StreamOK)
}

func TestDecodePromptDecodesStreamOK(t *testing.T) {
	ev := sign(t, EncodePrompt("bid123", "expertpub", "ciphertext", "", true))
	p, err := DecodePrompt(ev)
	require.NoError(t, err)
	assert.True(t, p.StreamOK)
}

func TestQuoteContentRoundTrip(t *testing.T) {
	content, err := json.Marshal(QuoteContent{Invoices: []payment.Invoice{{Method: "lightning", Unit: "sat", AmountSats: 500, InvoiceText: "lnbc..."}}})
	require.NoError(t, err)
	ev := sign(t, EncodeQuote("prompt123", string(content)))
	quote, err := DecodeQuote(ev)
	require.NoError(t, err)
	require.Len(t, quote.Invoices, 1)
	assert.Equal(t, int64(500), quote.Invoices[0].AmountSats)
	assert.Empty(t, quote.Error)
}

func TestDecodeQuoteRequiresInvoicesOrError(t *testing.T) {
	ev := sign(t, EncodeQuote("prompt123", `{}`))
	_, err := DecodeQuote(ev)
	assert.Error(t, err)
}

func TestStreamChunkSequenceRoundTrip(t *testing.T) {
	ev := sign(t, EncodeStreamChunk("stream-1", 7, "ZGF0YQ==", false, ""))
	chunk, err := DecodeStreamChunk(ev)
	require.NoError(t, err)
	assert.Equal(t, 7, chunk.Seq)
	assert.False(t, chunk.Done)
}
