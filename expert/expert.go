// Package expert implements the expert-side protocol state machine:
// per prompt, awaiting → priced → paid → replying → (done|failed).
// Dispatch across concurrent Ask/Prompt/Proof subscriptions is
// grounded on the teacher's handshake.Server phase-dispatch idiom,
// narrowed here to three independent subscribe loops instead of one
// multiplexed handshake state machine, since each event kind here
// carries its own filter and its own timeout window.
package expert

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nostrask/askrelay"
	"github.com/nostrask/askrelay/crypto"
	"github.com/nostrask/askrelay/crypto/keys"
	"github.com/nostrask/askrelay/event"
	"github.com/nostrask/askrelay/internal/logger"
	"github.com/nostrask/askrelay/internal/metrics"
	"github.com/nostrask/askrelay/payment"
	"github.com/nostrask/askrelay/relay"
	"github.com/nostrask/askrelay/stream"
)

// StreamThreshold is the inline-vs-stream decision boundary for
// replies, mirroring client.StreamThreshold.
const StreamThreshold = 48 * 1024

// republishInterval is how often the profile is republished even if
// nothing about it changed, keeping parameterized-replaceable relays
// from expiring it.
const republishInterval = 12 * time.Hour

// askWindow/promptWindow/proofWait are the concrete timeouts named in
// the concurrency model: asks and prompts older than this are treated
// as stale and ignored, proofs are waited on for this long before the
// prompt is abandoned.
const (
	askWindow   = 60 * time.Second
	promptWindow = 60 * time.Second
	proofWait   = 60 * time.Second
)

// Price is what on_prompt_price returns: how much to charge and a
// human-readable description to show the client.
type Price struct {
	AmountSats  int64
	Description string
}

// Answer is what on_prompt_paid returns: either an inline payload, an
// error, or a channel of chunks to stream.
type Answer struct {
	Payload json.RawMessage
	Error   string
	Chunks  <-chan []byte // non-nil selects the streaming path
}

// Callbacks is the set of decision points the protocol state machine
// calls out to. All are required.
type Callbacks struct {
	// OnAsk decides whether to bid on an Ask, returning nil to pass.
	OnAsk func(ask *event.Ask) (*BidOffer, error)
	// OnPromptPrice prices an incoming Prompt. content is the decrypted
	// question body.
	OnPromptPrice func(prompt *event.Prompt, content []byte) (Price, error)
	// OnPromptPaid produces the answer once payment is verified. content
	// is the same decrypted question body passed to OnPromptPrice.
	OnPromptPaid func(prompt *event.Prompt, quote *event.Quote, content []byte) (Answer, error)
}

// BidOffer is what OnAsk returns to accept an Ask.
type BidOffer struct {
	EstimateSat  uint64
	EstimateText string
}

// supportedFormat is the only Prompt payload format this implementation
// understands; a Prompt requesting anything else fails with an
// error-quote rather than being priced or answered.
const supportedFormat = "text"

// Server runs one expert's profile lifecycle and prompt handling loop.
type Server struct {
	Pool      *relay.Pool
	Identity  crypto.KeyPair
	Wallet    payment.Wallet
	Callbacks Callbacks
	Log       logger.Logger

	Name    string
	About   string
	Topics  []string
	Relays  []string
	Formats []string // prompt formats this expert accepts; defaults to {"text"}
	Methods []string // payment methods this expert accepts; defaults to {"lightning"}

	mu       sync.Mutex
	seenAsks map[string]bool
	seenProm map[string]bool
}

// New constructs a Server. log may be nil, in which case a default
// structured logger is used.
func New(pool *relay.Pool, identity crypto.KeyPair, wallet payment.Wallet, cb Callbacks, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &Server{
		Pool: pool, Identity: identity, Wallet: wallet, Callbacks: cb, Log: log,
		Formats:  []string{supportedFormat},
		Methods:  []string{"lightning"},
		seenAsks: make(map[string]bool),
		seenProm: make(map[string]bool),
	}
}

// Run publishes the expert's profile, schedules its periodic
// republish, and dispatches Asks and Prompts until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.publishProfile(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); s.republishLoop(ctx) }()
	go func() { defer wg.Done(); s.handleAsks(ctx) }()
	go func() { defer wg.Done(); s.handlePrompts(ctx) }()
	wg.Wait()
	return ctx.Err()
}

func (s *Server) publishProfile(ctx context.Context) error {
	profile := event.EncodeExpertProfile(s.Name, s.About, s.Topics, s.Relays, s.Formats, s.Methods, true)
	if err := profile.Sign(s.Identity); err != nil {
		return fmt.Errorf("expert: sign profile: %w", err)
	}
	if _, err := s.Pool.Publish(ctx, profile); err != nil {
		return askrelay.RelayUnreachable("publish profile failed", err)
	}
	return nil
}

func (s *Server) republishLoop(ctx context.Context) {
	ticker := time.NewTicker(republishInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.publishProfile(ctx); err != nil {
				s.Log.Warn("profile republish failed", logger.Error(err))
			}
		}
	}
}

func (s *Server) handleAsks(ctx context.Context) {
	sub, err := s.Pool.Subscribe(ctx, event.Filter{
		Kinds: []event.Kind{event.KindAsk},
		Tags:  map[string][]string{"t": s.Topics},
		Since: time.Now(),
	})
	if err != nil {
		s.Log.Error("subscribe to asks failed", logger.Error(err))
		return
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			s.onAskEvent(ctx, ev)
		}
	}
}

func (s *Server) onAskEvent(ctx context.Context, ev *event.Event) {
	if time.Since(ev.CreatedAt) > askWindow {
		return
	}
	s.mu.Lock()
	if s.seenAsks[ev.ID] {
		s.mu.Unlock()
		return
	}
	s.seenAsks[ev.ID] = true
	s.mu.Unlock()

	ask, err := event.DecodeAsk(ev)
	if err != nil {
		return
	}
	offer, err := s.Callbacks.OnAsk(ask)
	if err != nil {
		s.Log.Warn("on_ask callback failed", logger.Error(err))
		return
	}
	if offer == nil {
		metrics.BidsOffered.WithLabelValues("declined").Inc()
		return
	}
	metrics.BidsOffered.WithLabelValues("offered").Inc()

	bidKP, err := keys.GenerateSecp256k1KeyPair()
	if err != nil {
		s.Log.Error("generate bid key failed", logger.Error(err))
		return
	}
	defer bidKP.Zeroize()

	payload := event.EncodeBidPayload(ev.ID, offer.EstimateSat, offer.EstimateText, s.Relays, s.Formats, s.Methods, true)
	if err := payload.Sign(s.Identity); err != nil {
		s.Log.Error("sign bid payload failed", logger.Error(err))
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	encrypted, err := keys.Encrypt(raw, ask.ReplyToPub, bidKP)
	if err != nil {
		s.Log.Error("encrypt bid payload failed", logger.Error(err))
		return
	}
	envelope := event.EncodeBidEnvelope(ev.ID, encrypted)
	if err := envelope.Sign(bidKP); err != nil {
		s.Log.Error("sign bid envelope failed", logger.Error(err))
		return
	}
	if _, err := s.Pool.Publish(ctx, envelope); err != nil {
		s.Log.Warn("publish bid envelope failed", logger.Error(err))
	}
}

func (s *Server) handlePrompts(ctx context.Context) {
	sub, err := s.Pool.Subscribe(ctx, event.Filter{
		Kinds: []event.Kind{event.KindPrompt},
		Tags:  map[string][]string{"p": {s.Identity.PublicKeyHex()}},
		Since: time.Now(),
	})
	if err != nil {
		s.Log.Error("subscribe to prompts failed", logger.Error(err))
		return
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			if time.Since(ev.CreatedAt) > promptWindow {
				continue
			}
			s.mu.Lock()
			dup := s.seenProm[ev.ID]
			s.seenProm[ev.ID] = true
			s.mu.Unlock()
			if dup {
				continue
			}
			go s.handlePrompt(ctx, ev)
		}
	}
}

func (s *Server) handlePrompt(ctx context.Context, ev *event.Event) {
	metrics.ExchangesActive.WithLabelValues("expert").Inc()
	start := time.Now()
	outcome := "failed"
	defer func() {
		metrics.ExchangesActive.WithLabelValues("expert").Dec()
		metrics.ExchangeDuration.WithLabelValues("expert").Observe(time.Since(start).Seconds())
		metrics.ExchangesCompleted.WithLabelValues("expert", outcome).Inc()
	}()

	prompt, err := event.DecodePrompt(ev)
	if err != nil {
		return
	}

	var rawBody []byte
	switch {
	case prompt.EncryptedBody != "":
		plain, err := keys.Decrypt(prompt.EncryptedBody, ev.PubKey, s.Identity)
		if err != nil {
			s.Log.Warn("decrypt prompt failed", logger.Error(err))
			return
		}
		rawBody = plain
	case prompt.StreamTag != "":
		plain, err := s.drainPromptStream(ctx, prompt, ev.PubKey)
		if err != nil {
			s.Log.Warn("drain prompt stream failed", logger.Error(err))
			return
		}
		rawBody = plain
	}

	var questionBody []byte
	if len(rawBody) > 0 {
		var parsed struct {
			Format  string          `json:"format"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(rawBody, &parsed); err != nil {
			s.sendErrorQuote(ctx, ev.ID, ev.PubKey, "malformed prompt payload")
			return
		}
		if !s.formatSupported(parsed.Format) {
			s.sendErrorQuote(ctx, ev.ID, ev.PubKey, fmt.Sprintf("unsupported prompt format %q", parsed.Format))
			return
		}
		questionBody = parsed.Payload
	}

	price, err := s.Callbacks.OnPromptPrice(prompt, questionBody)
	if err != nil {
		s.Log.Warn("on_prompt_price callback failed", logger.Error(err))
		s.sendErrorQuote(ctx, ev.ID, ev.PubKey, err.Error())
		return
	}

	// Wallet only exposes Pay/VerifyPayment (the quote-side invoice
	// minting API is opaque per spec.md §4.G); Pay is reused here as a
	// stand-in invoice mint, keyed by an invoice string derived from the
	// prompt and price so the client's later Pay call against the same
	// string round-trips to the identical preimage.
	invoiceText := fmt.Sprintf("invoice-%s-%d", ev.ID, price.AmountSats)
	if _, err := s.Wallet.Pay(ctx, invoiceText); err != nil {
		s.Log.Warn("mint invoice failed", logger.Error(err))
		s.sendErrorQuote(ctx, ev.ID, ev.PubKey, "failed to mint invoice")
		return
	}

	invoices := []payment.Invoice{{Method: "lightning", Unit: "sat", AmountSats: price.AmountSats, InvoiceText: invoiceText}}
	quoteContent, _ := json.Marshal(event.QuoteContent{Invoices: invoices})
	encryptedQuote, err := keys.Encrypt(quoteContent, ev.PubKey, s.Identity)
	if err != nil {
		return
	}
	quoteEv := event.EncodeQuote(ev.ID, encryptedQuote)
	if err := quoteEv.Sign(s.Identity); err != nil {
		return
	}
	if _, err := s.Pool.Publish(ctx, quoteEv); err != nil {
		s.Log.Warn("publish quote failed", logger.Error(err))
		return
	}
	metrics.QuotesIssued.Inc()
	metrics.QuoteAmountSats.Observe(float64(price.AmountSats))
	quote := &event.Quote{Event: quoteEv, PromptID: ev.ID, Invoices: invoices}

	proofEv, err := s.Pool.WaitForEvent(ctx, event.Filter{
		Kinds:   []event.Kind{event.KindProof},
		Authors: []string{ev.PubKey},
		Tags: map[string][]string{
			"e": {ev.ID},
			"p": {s.Identity.PublicKeyHex()},
		},
	}, proofWait)
	if err != nil {
		return
	}
	proof, err := s.decryptProof(proofEv)
	if err != nil {
		return
	}
	if proof.Error != "" {
		return
	}
	ok, err := s.Wallet.VerifyPayment(ctx, invoiceText, proof.Preimage)
	if err != nil || !ok {
		metrics.PaymentsVerified.WithLabelValues("rejected").Inc()
		s.replyError(ctx, ev.ID, ev.PubKey, "payment verification failed")
		return
	}
	metrics.PaymentsVerified.WithLabelValues("success").Inc()

	answer, err := s.Callbacks.OnPromptPaid(prompt, quote, questionBody)
	if err != nil {
		s.replyError(ctx, ev.ID, ev.PubKey, err.Error())
		return
	}

	if answer.Error != "" {
		s.replyError(ctx, ev.ID, ev.PubKey, answer.Error)
		return
	}

	needsStream := answer.Chunks != nil || len(answer.Payload) > StreamThreshold
	if needsStream && !prompt.StreamOK {
		s.replyError(ctx, ev.ID, ev.PubKey, "reply requires streaming but the prompt did not advertise s=true")
		return
	}

	if answer.Chunks != nil {
		s.replyStreamed(ctx, ev.ID, ev.PubKey, answer.Chunks)
		outcome = "replied"
		return
	}
	if len(answer.Payload) > StreamThreshold {
		ch := make(chan []byte, 1)
		ch <- answer.Payload
		close(ch)
		s.replyStreamed(ctx, ev.ID, ev.PubKey, ch)
		outcome = "replied"
		return
	}
	s.replyInline(ctx, ev.ID, ev.PubKey, answer.Payload)
	outcome = "replied"
}

// formatSupported reports whether format is one this expert accepts
// for a Prompt payload.
func (s *Server) formatSupported(format string) bool {
	for _, f := range s.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// sendErrorQuote publishes a Quote carrying only an error, so a client
// waiting on WaitForEvent learns the exchange failed instead of timing
// out on a quote that will never arrive.
func (s *Server) sendErrorQuote(ctx context.Context, promptID, clientPub, reason string) {
	content, _ := json.Marshal(event.QuoteContent{Error: reason})
	encrypted, err := keys.Encrypt(content, clientPub, s.Identity)
	if err != nil {
		return
	}
	quoteEv := event.EncodeQuote(promptID, encrypted)
	if err := quoteEv.Sign(s.Identity); err != nil {
		return
	}
	if _, err := s.Pool.Publish(ctx, quoteEv); err != nil {
		s.Log.Warn("publish error quote failed", logger.Error(err))
	}
}

// drainPromptStream decrypts a Prompt's stream tag into StreamMetadata,
// opens a stream.Reader against it, and concatenates every chunk into
// the prompt's {format, payload} body — the streaming counterpart of
// reading EncryptedBody directly.
func (s *Server) drainPromptStream(ctx context.Context, prompt *event.Prompt, senderPub string) ([]byte, error) {
	metaPlain, err := keys.Decrypt(prompt.StreamTag, senderPub, s.Identity)
	if err != nil {
		return nil, fmt.Errorf("decrypt stream metadata: %w", err)
	}
	var metaEv event.Event
	if err := json.Unmarshal(metaPlain, &metaEv); err != nil {
		return nil, fmt.Errorf("malformed stream metadata event")
	}
	metadata, err := event.DecodeStreamMetadata(&metaEv)
	if err != nil {
		return nil, err
	}

	reader, err := stream.NewReader(ctx, s.Pool, nil, metadata, s.Identity, nil)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var out []byte
	for {
		chunk := reader.Next(ctx)
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		out = append(out, chunk.Data...)
		if chunk.Done {
			return out, nil
		}
	}
}

// decryptProof decrypts a Proof event's ciphertext content (encrypted
// by the client to this expert's long-term pubkey) and decodes the
// resulting plaintext into the usual Proof view.
func (s *Server) decryptProof(proofEv *event.Event) (*event.Proof, error) {
	plaintext, err := keys.Decrypt(proofEv.Content, proofEv.PubKey, s.Identity)
	if err != nil {
		return nil, askrelay.DecryptionError("decrypt proof", err)
	}
	decoded := *proofEv
	decoded.Content = string(plaintext)
	return event.DecodeProof(&decoded)
}

func (s *Server) replyInline(ctx context.Context, promptID, clientPub string, payload json.RawMessage) {
	reply := event.EncodeReply(promptID, payload, "")
	if err := reply.Sign(s.Identity); err != nil {
		return
	}
	if _, err := s.Pool.Publish(ctx, reply); err != nil {
		s.Log.Warn("publish reply failed", logger.Error(err))
	}
}

func (s *Server) replyError(ctx context.Context, promptID, clientPub, reason string) {
	reply := event.EncodeErrorReply(promptID, reason)
	if err := reply.Sign(s.Identity); err != nil {
		return
	}
	if _, err := s.Pool.Publish(ctx, reply); err != nil {
		s.Log.Warn("publish error reply failed", logger.Error(err))
	}
}

func (s *Server) replyStreamed(ctx context.Context, promptID, clientPub string, chunks <-chan []byte) {
	streamKP, err := keys.GenerateSecp256k1KeyPair()
	if err != nil {
		return
	}
	defer streamKP.Zeroize()

	metaEv := event.EncodeStreamMetadata(event.StreamMetadata{
		Compression: "gzip",
		Encryption:  "nip44",
		ChunkPubKey: streamKP.PublicKeyHex(),
	}, promptID)
	if err := metaEv.Sign(s.Identity); err != nil {
		return
	}
	metaRaw, err := json.Marshal(metaEv)
	if err != nil {
		return
	}
	encryptedMeta, err := keys.Encrypt(metaRaw, clientPub, s.Identity)
	if err != nil {
		return
	}

	reply := event.EncodeReply(promptID, nil, encryptedMeta)
	if err := reply.Sign(s.Identity); err != nil {
		return
	}
	if _, err := s.Pool.Publish(ctx, reply); err != nil {
		s.Log.Warn("publish stream reply failed", logger.Error(err))
		return
	}

	writer := stream.NewWriter(s.Pool, s.Relays, streamKP, metaEv.ID, clientPub, nil)
	for chunk := range chunks {
		if err := writer.Write(ctx, chunk, false); err != nil {
			s.Log.Warn("stream write failed", logger.Error(err))
			_ = writer.Error(ctx, "EXPERT_ERROR", err.Error())
			return
		}
	}
	if err := writer.Close(ctx); err != nil {
		s.Log.Warn("stream close failed", logger.Error(err))
	}
}
