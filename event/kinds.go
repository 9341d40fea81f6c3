package event

// Event kinds. Odd as it looks to assign numbers this high, these match
// the reserved application-specific range the protocol was distilled
// from: 10174 is the single parameterized-replaceable profile kind, and
// 20174-20182 are ephemeral kinds for everything exchanged during a
// single ask/bid/prompt/quote/proof/reply/stream cycle.
const (
	KindExpertProfile Kind = 10174
	KindAsk           Kind = 20174
	KindBidEnvelope   Kind = 20175
	KindBidPayload    Kind = 20176
	KindPrompt        Kind = 20177
	KindQuote         Kind = 20178
	KindProof         Kind = 20179
	KindReply         Kind = 20180
	KindStreamMeta    Kind = 20181
	KindStreamChunk   Kind = 20182
)

// Kind is the event kind, see the Kind* constants above.
type Kind int

func (k Kind) String() string {
	switch k {
	case KindExpertProfile:
		return "expert-profile"
	case KindAsk:
		return "ask"
	case KindBidEnvelope:
		return "bid-envelope"
	case KindBidPayload:
		return "bid-payload"
	case KindPrompt:
		return "prompt"
	case KindQuote:
		return "quote"
	case KindProof:
		return "proof"
	case KindReply:
		return "reply"
	case KindStreamMeta:
		return "stream-metadata"
	case KindStreamChunk:
		return "stream-chunk"
	default:
		return "unknown"
	}
}
