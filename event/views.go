package event

import (
	"encoding/json"

	"github.com/nostrask/askrelay/payment"
)

// capabilityTags decodes the f/m/s tags shared by ExpertProfile, Ask,
// and BidPayload: supported formats, supported payment methods, and
// whether chunked streaming is offered/accepted.
func capabilityTags(ev *Event) (formats, methods []string, streamOK bool) {
	formats = ev.Values("f")
	methods = ev.Values("m")
	streamOK = ev.FirstTag("s") == "true"
	return
}

func encodeCapabilityTags(tags [][]string, formats, methods []string, streamOK bool) [][]string {
	for _, f := range formats {
		tags = append(tags, []string{"f", f})
	}
	for _, m := range methods {
		tags = append(tags, []string{"m", m})
	}
	if streamOK {
		tags = append(tags, []string{"s", "true"})
	}
	return tags
}

// ExpertProfile is the decoded view of a KindExpertProfile event: a
// parameterized-replaceable advertisement of what an expert answers and
// how it charges, periodically republished by expert.Server.
type ExpertProfile struct {
	Event *Event

	Name        string
	About       string
	Topics      []string // "t" tags
	Relays      []string // "relay" tags, where to send Asks/Prompts
	Formats     []string // "f" tags, prompt formats this expert accepts
	Methods     []string // "m" tags, payment methods this expert accepts
	StreamOK    bool     // "s" tag, whether chunked streaming is supported
	Compression []string // "c" tags this expert can decode; legacy only
}

// DecodeExpertProfile decodes tags into an ExpertProfile view. A legacy
// "c" tag is accepted for backward compatibility but current writers
// never emit one (see EncodeExpertProfile).
func DecodeExpertProfile(ev *Event) (*ExpertProfile, error) {
	if ev.Kind != KindExpertProfile {
		return nil, ErrInvalidEvent("not an expert-profile event")
	}
	formats, methods, streamOK := capabilityTags(ev)
	p := &ExpertProfile{
		Event:       ev,
		Topics:      ev.Values("t"),
		Relays:      ev.Values("relay"),
		Formats:     formats,
		Methods:     methods,
		StreamOK:    streamOK,
		Compression: ev.Values("c"),
	}
	if ev.Content != "" {
		var body struct {
			Name  string `json:"name"`
			About string `json:"about"`
		}
		if err := json.Unmarshal([]byte(ev.Content), &body); err != nil {
			return nil, ErrInvalidEvent("malformed profile content: " + err.Error())
		}
		p.Name, p.About = body.Name, body.About
	}
	return p, nil
}

// EncodeExpertProfile builds the unsigned event for an expert profile.
// Compression capability is not advertised in the profile (codec
// metadata travels with each StreamMetadata), so no "c" tag is ever
// emitted.
func EncodeExpertProfile(name, about string, topics, relays, formats, methods []string, streamOK bool) *Event {
	content, _ := json.Marshal(struct {
		Name  string `json:"name"`
		About string `json:"about"`
	}{name, about})

	var tags [][]string
	for _, t := range topics {
		tags = append(tags, []string{"t", t})
	}
	for _, r := range relays {
		tags = append(tags, []string{"relay", r})
	}
	tags = encodeCapabilityTags(tags, formats, methods, streamOK)
	return New(KindExpertProfile, string(content), tags)
}

// Ask is the decoded view of a KindAsk event.
type Ask struct {
	Event       *Event
	Topics      []string
	MaxPriceSat uint64
	ReplyToPub  string   // ephemeral pubkey bids must be encrypted to
	Formats     []string // "f" tags, prompt formats the client can send
	Methods     []string // "m" tags, payment methods the client accepts
	StreamOK    bool     // "s" tag, whether the client accepts a streamed reply
}

// AskContent is the JSON body of an Ask event.
type AskContent struct {
	Question string `json:"question"`
}

func DecodeAsk(ev *Event) (*Ask, error) {
	if ev.Kind != KindAsk {
		return nil, ErrInvalidEvent("not an ask event")
	}
	formats, methods, streamOK := capabilityTags(ev)
	a := &Ask{
		Event:      ev,
		Topics:     ev.Values("t"),
		ReplyToPub: ev.FirstTag("p"),
		Formats:    formats,
		Methods:    methods,
		StreamOK:   streamOK,
	}
	return a, nil
}

// EncodeAsk builds the unsigned Ask event: replyToPub is the ephemeral
// key bids must be encrypted to, topics/formats/methods narrow which
// experts should bid, streamOK advertises that the client accepts a
// streamed reply.
func EncodeAsk(question string, replyToPub string, topics, formats, methods []string, streamOK bool) *Event {
	content, _ := json.Marshal(AskContent{Question: question})
	tags := [][]string{{"p", replyToPub}}
	for _, t := range topics {
		tags = append(tags, []string{"t", t})
	}
	tags = encodeCapabilityTags(tags, formats, methods, streamOK)
	return New(KindAsk, string(content), tags)
}

// BidEnvelope is the outer, pseudonymous wrapper around a BidPayload: the
// envelope's own pubkey is an ephemeral key that hides the expert's
// identity until the client decrypts Content.
type BidEnvelope struct {
	Event         *Event
	AskID         string // "e" tag
	EncryptedBody string // ciphertext, == Event.Content
}

func DecodeBidEnvelope(ev *Event) (*BidEnvelope, error) {
	if ev.Kind != KindBidEnvelope {
		return nil, ErrInvalidEvent("not a bid-envelope event")
	}
	return &BidEnvelope{Event: ev, AskID: ev.FirstTag("e"), EncryptedBody: ev.Content}, nil
}

// EncodeBidEnvelope builds the unsigned outer envelope: encryptedBody is
// the BidPayload's signed-event JSON, already encrypted to the ask's
// replyToPub. The caller signs this event with an ephemeral key so the
// envelope's own pubkey reveals nothing about the bidder's identity.
func EncodeBidEnvelope(askID, encryptedBody string) *Event {
	return New(KindBidEnvelope, encryptedBody, [][]string{{"e", askID}})
}

// BidPayload is the inner, separately-signed event carried encrypted
// inside a BidEnvelope. Its PubKey is the expert's real long-term
// identity — only revealed once the client decrypts the envelope.
type BidPayload struct {
	Event        *Event
	AskID        string
	EstimateSat  uint64
	EstimateText string
	Relays       []string // "relay" tags, where the client should send the Prompt
	Formats      []string // "f" tags, prompt formats the bidding expert accepts
	Methods      []string // "m" tags, payment methods the bidding expert accepts
	StreamOK     bool     // "s" tag, whether the bidding expert can stream a reply
}

func DecodeBidPayload(ev *Event) (*BidPayload, error) {
	if ev.Kind != KindBidPayload {
		return nil, ErrInvalidEvent("not a bid-payload event")
	}
	var body struct {
		EstimateSat  uint64 `json:"estimate_sat"`
		EstimateText string `json:"estimate_text"`
	}
	if ev.Content != "" {
		if err := json.Unmarshal([]byte(ev.Content), &body); err != nil {
			return nil, ErrInvalidEvent("malformed bid payload: " + err.Error())
		}
	}
	formats, methods, streamOK := capabilityTags(ev)
	return &BidPayload{
		Event:        ev,
		AskID:        ev.FirstTag("e"),
		EstimateSat:  body.EstimateSat,
		EstimateText: body.EstimateText,
		Relays:       ev.Values("relay"),
		Formats:      formats,
		Methods:      methods,
		StreamOK:     streamOK,
	}, nil
}

// EncodeBidPayload builds the unsigned inner event. relays are the
// expert's prompt relays; formats/methods/streamOK are the same
// capability tags ExpertProfile advertises (same shape as
// ExpertProfile's advertising tags, plus relay=<url> per spec), so a
// client can decide whether a streaming Prompt is safe to send before
// it ever fetches the full profile. The caller signs it with the
// expert's real long-term key, then encrypts its JSON serialization
// before wrapping it in a BidEnvelope.
func EncodeBidPayload(askID string, estimateSat uint64, estimateText string, relays, formats, methods []string, streamOK bool) *Event {
	content, _ := json.Marshal(struct {
		EstimateSat  uint64 `json:"estimate_sat"`
		EstimateText string `json:"estimate_text"`
	}{estimateSat, estimateText})
	tags := [][]string{{"e", askID}}
	for _, r := range relays {
		tags = append(tags, []string{"relay", r})
	}
	tags = encodeCapabilityTags(tags, formats, methods, streamOK)
	return New(KindBidPayload, string(content), tags)
}

// Prompt carries the client's question, encrypted to the expert, sent
// once a bid has been selected.
type Prompt struct {
	Event         *Event
	BidID         string // "e" tag
	ToPub         string // "p" tag, expert's long-term pubkey
	EncryptedBody string
	StreamTag     string // "stream" tag, encrypted StreamMetadata on the streaming path
	StreamOK      bool   // "s" tag, whether the client accepts a streamed reply
}

func DecodePrompt(ev *Event) (*Prompt, error) {
	if ev.Kind != KindPrompt {
		return nil, ErrInvalidEvent("not a prompt event")
	}
	return &Prompt{
		Event:         ev,
		BidID:         ev.FirstTag("e"),
		ToPub:         ev.FirstTag("p"),
		EncryptedBody: ev.Content,
		StreamTag:     ev.FirstTag("stream"),
		StreamOK:      ev.FirstTag("s") == "true",
	}, nil
}

// EncodePrompt builds the unsigned Prompt event. encryptedBody is
// either the encrypted {format, payload} inline body, or "" on the
// streaming path (where the actual content travels over a stream and
// streamTag carries the encrypted StreamMetadata instead).
func EncodePrompt(bidID, expertPub, encryptedBody, streamTag string, streamOK bool) *Event {
	tags := [][]string{{"e", bidID}, {"p", expertPub}}
	if streamOK {
		tags = append(tags, []string{"s", "true"})
	}
	if streamTag != "" {
		tags = append(tags, []string{"stream", streamTag})
	}
	return New(KindPrompt, encryptedBody, tags)
}

// Quote is the expert's priced response to a Prompt: one invoice per
// supported payment method the client may pay before the expert will
// answer, or an error explaining why no quote could be produced.
type Quote struct {
	Event    *Event
	PromptID string
	Invoices []payment.Invoice
	Error    string
}

// QuoteContent is the wire body of a Quote event's decrypted content:
// exactly one of Invoices or Error is set.
type QuoteContent struct {
	Invoices []payment.Invoice `json:"invoices,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func DecodeQuote(ev *Event) (*Quote, error) {
	if ev.Kind != KindQuote {
		return nil, ErrInvalidEvent("not a quote event")
	}
	var body QuoteContent
	if err := json.Unmarshal([]byte(ev.Content), &body); err != nil {
		return nil, ErrInvalidEvent("malformed quote content: " + err.Error())
	}
	if len(body.Invoices) == 0 && body.Error == "" {
		return nil, ErrInvalidEvent("quote must carry either invoices or an error")
	}
	return &Quote{Event: ev, PromptID: ev.FirstTag("e"), Invoices: body.Invoices, Error: body.Error}, nil
}

// EncodeQuote builds the unsigned Quote event; encryptedContent is the
// already-encrypted {invoices} or {error} JSON body.
func EncodeQuote(promptID, encryptedContent string) *Event {
	return New(KindQuote, encryptedContent, [][]string{{"e", promptID}})
}

// Proof is the client's evidence of payment (or of a payment failure),
// published once the invoice has been settled.
type Proof struct {
	Event    *Event
	QuoteID  string
	Method   string
	Preimage string
	Error    string
}

type ProofContent struct {
	Method   string `json:"method,omitempty"`
	Preimage string `json:"preimage,omitempty"`
	Error    string `json:"error,omitempty"`
}

func DecodeProof(ev *Event) (*Proof, error) {
	if ev.Kind != KindProof {
		return nil, ErrInvalidEvent("not a proof event")
	}
	var body ProofContent
	if err := json.Unmarshal([]byte(ev.Content), &body); err != nil {
		return nil, ErrInvalidEvent("malformed proof content: " + err.Error())
	}
	if body.Error == "" && (body.Method == "" || body.Preimage == "") {
		return nil, ErrInvalidEvent("proof must carry either an error or a method+preimage")
	}
	return &Proof{
		Event: ev, QuoteID: ev.FirstTag("e"),
		Method: body.Method, Preimage: body.Preimage, Error: body.Error,
	}, nil
}

// EncodeProof builds the unsigned Proof event; encryptedContent is the
// already-encrypted {method, preimage} or {error} JSON body.
func EncodeProof(promptID, expertPub, encryptedContent string) *Event {
	return New(KindProof, encryptedContent, [][]string{{"e", promptID}, {"p", expertPub}})
}

// ReplyPayload is the content of a Reply event: exactly one of Payload
// or Error must be set (Open Question #2, resolved in favor of the
// stricter schema).
type ReplyPayload struct {
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Validate checks the exactly-one-of invariant. DecodeReply calls it
// for replies without a stream tag; the encoders do not call it.
func (r ReplyPayload) Validate() error {
	hasPayload := len(r.Payload) > 0 && string(r.Payload) != "null"
	hasError := r.Error != ""
	if hasPayload == hasError {
		return ErrInvalidEvent("reply must carry exactly one of payload or error")
	}
	return nil
}

// Reply is the decoded view of a KindReply event.
type Reply struct {
	Event    *Event
	ProofID  string
	Payload  ReplyPayload
	StreamID string // "stream" tag, set when the answer exceeded the inline threshold
}

func DecodeReply(ev *Event) (*Reply, error) {
	if ev.Kind != KindReply {
		return nil, ErrInvalidEvent("not a reply event")
	}
	var payload ReplyPayload
	if err := json.Unmarshal([]byte(ev.Content), &payload); err != nil {
		return nil, ErrInvalidEvent("malformed reply content: " + err.Error())
	}
	streamID := ev.FirstTag("stream")
	// A streaming reply carries its answer over a stream.Reader instead
	// of inline content, so neither payload nor error is present yet.
	if streamID == "" {
		if err := payload.Validate(); err != nil {
			return nil, err
		}
	}
	return &Reply{Event: ev, ProofID: ev.FirstTag("e"), Payload: payload, StreamID: streamID}, nil
}

// EncodeReply builds an unsigned success reply.
func EncodeReply(proofID string, payload json.RawMessage, streamID string) *Event {
	content, _ := json.Marshal(ReplyPayload{Payload: payload})
	tags := [][]string{{"e", proofID}}
	if streamID != "" {
		tags = append(tags, []string{"stream", streamID})
	}
	return New(KindReply, string(content), tags)
}

// EncodeErrorReply builds an unsigned error reply.
func EncodeErrorReply(proofID, errMsg string) *Event {
	content, _ := json.Marshal(ReplyPayload{Error: errMsg})
	return New(KindReply, string(content), [][]string{{"e", proofID}})
}
