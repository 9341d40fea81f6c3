// Package client implements the client-side protocol state machine:
// idle → discovering → selecting → prompting → quoting → paying →
// receiving → (done|failed). The per-exchange ephemeral-key bookkeeping
// and "seen pubkey" de-dup set are grounded on the teacher's
// session.Manager keyed-bookkeeping-with-TTL-cleanup idiom, narrowed
// here to a single discovery window instead of a long-lived manager.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nostrask/askrelay"
	"github.com/nostrask/askrelay/crypto"
	"github.com/nostrask/askrelay/crypto/keys"
	"github.com/nostrask/askrelay/event"
	"github.com/nostrask/askrelay/internal/metrics"
	"github.com/nostrask/askrelay/payment"
	"github.com/nostrask/askrelay/relay"
	"github.com/nostrask/askrelay/stream"
)

// StreamThreshold is the inline-vs-stream decision boundary: a prompt
// or reply body at or under this many bytes travels inline in one
// event; anything larger must stream.
const StreamThreshold = 48 * 1024

// Bid is a validated, decrypted offer from one expert to answer an Ask.
type Bid struct {
	ExpertPub    string
	PromptRelays []string
	EstimateSat  uint64
	EstimateText string
	Formats      []string // prompt formats the expert accepts
	Methods      []string // payment methods the expert accepts
	StreamOK     bool     // whether the expert can accept a streamed Prompt
}

// Expert is the decoded view of a fetched ExpertProfile.
type Expert struct {
	PubKey string
	Name   string
	About  string
	Relays []string
	Topics []string
}

// Client holds the relay pool and default timeouts every operation
// reads from.
type Client struct {
	Pool            *relay.Pool
	DiscoveryWait   time.Duration
	ProfileFetchWin time.Duration
	QuoteWait       time.Duration
	ReplyWait       time.Duration
	MaxAmountSats   int64
}

// New constructs a Client with spec.md §5's concrete timeout defaults.
func New(pool *relay.Pool) *Client {
	return &Client{
		Pool:            pool,
		DiscoveryWait:   10 * time.Second,
		ProfileFetchWin: 5 * time.Second,
		QuoteWait:       10 * time.Second,
		ReplyWait:       60 * time.Second,
		MaxAmountSats:   1_000_000,
	}
}

// FindExperts publishes an Ask and collects Bids for timeout (default
// c.DiscoveryWait). Duplicate bids from a known expert pubkey are
// dropped; the dedup set is local to this call, grounded on the
// teacher's "seen pubkey" per-task bookkeeping.
func (c *Client) FindExperts(ctx context.Context, question string, topics []string, timeout time.Duration) ([]Bid, error) {
	if question == "" {
		return nil, askrelay.ArgumentError("question must not be empty")
	}
	if len(topics) == 0 {
		return nil, askrelay.ArgumentError("topics must not be empty")
	}
	if timeout <= 0 {
		timeout = c.DiscoveryWait
	}

	askKP, err := keys.GenerateSecp256k1KeyPair()
	if err != nil {
		return nil, fmt.Errorf("client: generate ask key: %w", err)
	}
	defer askKP.Zeroize()

	ask := event.EncodeAsk(question, askKP.PublicKeyHex(), topics, nil, nil, true)
	if err := ask.Sign(askKP); err != nil {
		return nil, fmt.Errorf("client: sign ask: %w", err)
	}
	accepted, err := c.Pool.Publish(ctx, ask)
	if err != nil || len(accepted) == 0 {
		return nil, askrelay.RelayUnreachable("no relay accepted the ask", err)
	}
	metrics.AsksPublished.Inc()
	windowStart := time.Now()

	subCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	sub, err := c.Pool.Subscribe(subCtx, event.Filter{
		Kinds: []event.Kind{event.KindBidEnvelope},
		Tags:  map[string][]string{"e": {ask.ID}},
	})
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	seen := make(map[string]bool)
	var bids []Bid
	for {
		select {
		case ev := <-sub.Events:
			bid, expertPub, ok := c.decodeBid(ev, ask.ID, askKP)
			if !ok || seen[expertPub] {
				continue
			}
			seen[expertPub] = true
			bids = append(bids, bid)
			metrics.BidsReceived.Inc()
		case <-subCtx.Done():
			metrics.DiscoveryWindowDuration.Observe(time.Since(windowStart).Seconds())
			return bids, nil
		}
	}
}

// decryptQuote decrypts a Quote event's ciphertext content (encrypted
// by the expert to the prompt's ephemeral pubkey) and decodes the
// resulting plaintext into the usual Quote view.
func (c *Client) decryptQuote(quoteEv *event.Event, expertPub string, promptKP crypto.KeyPair) (*event.Quote, error) {
	plaintext, err := keys.Decrypt(quoteEv.Content, expertPub, promptKP)
	if err != nil {
		return nil, askrelay.DecryptionError("decrypt quote", err)
	}
	decoded := *quoteEv
	decoded.Content = string(plaintext)
	return event.DecodeQuote(&decoded)
}

func (c *Client) decodeBid(envEv *event.Event, askID string, askKP crypto.KeyPair) (Bid, string, bool) {
	envelope, err := event.DecodeBidEnvelope(envEv)
	if err != nil || envelope.AskID != askID {
		return Bid{}, "", false
	}
	plaintext, err := keys.Decrypt(envelope.EncryptedBody, envEv.PubKey, askKP)
	if err != nil {
		return Bid{}, "", false
	}
	var inner event.Event
	if err := json.Unmarshal(plaintext, &inner); err != nil {
		return Bid{}, "", false
	}
	if inner.Kind != event.KindBidPayload {
		return Bid{}, "", false
	}
	if err := c.Pool.TrustedValidate(&inner); err != nil {
		return Bid{}, "", false
	}
	payload, err := event.DecodeBidPayload(&inner)
	if err != nil || payload.AskID != askID {
		return Bid{}, "", false
	}
	return Bid{
		ExpertPub:    inner.PubKey,
		PromptRelays: payload.Relays,
		EstimateSat:  payload.EstimateSat,
		EstimateText: payload.EstimateText,
		Formats:      payload.Formats,
		Methods:      payload.Methods,
		StreamOK:     payload.StreamOK,
	}, inner.PubKey, true
}

// FetchExperts runs a one-shot historic fetch of the latest
// ExpertProfile for each pubkey.
func (c *Client) FetchExperts(ctx context.Context, pubkeys []string, timeout time.Duration) ([]Expert, error) {
	if timeout <= 0 {
		timeout = c.ProfileFetchWin
	}
	events, err := c.Pool.Fetch(ctx, event.Filter{
		Kinds:   []event.Kind{event.KindExpertProfile},
		Authors: pubkeys,
		Since:   time.Now().Add(-24 * time.Hour),
	}, timeout)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]*event.Event)
	for _, ev := range events {
		if cur, ok := latest[ev.PubKey]; !ok || ev.CreatedAt.After(cur.CreatedAt) {
			latest[ev.PubKey] = ev
		}
	}

	var experts []Expert
	for pub, ev := range latest {
		profile, err := event.DecodeExpertProfile(ev)
		if err != nil {
			continue
		}
		experts = append(experts, Expert{
			PubKey: pub, Name: profile.Name, About: profile.About,
			Relays: profile.Relays, Topics: profile.Topics,
		})
	}
	return experts, nil
}

// OnQuote decides whether to pay a received quote.
type OnQuote func(quote *event.Quote) (bool, error)

// OnPay produces a Proof for an accepted quote.
type OnPay func(quote *event.Quote) (*payment.Proof, error)

// Reply is one item yielded from AskExpert's reply sequence.
type Reply struct {
	Payload json.RawMessage
	Error   string
	Done    bool
}

// AskExpert runs the full prompting → quoting → paying → receiving
// sequence against one bid and returns the decoded replies. When
// bid.PromptRelays advertises a relay set, the whole exchange (Prompt,
// Quote wait, Proof, Reply wait, and any stream) is routed through a
// pool scoped to just those relays instead of c.Pool's default set.
func (c *Client) AskExpert(ctx context.Context, bid Bid, content []byte, onQuote OnQuote, onPay OnPay) (replies []Reply, err error) {
	if len(content) > StreamThreshold && !bid.StreamOK {
		return nil, askrelay.StreamUnsupported("prompt exceeds inline threshold and the bid does not advertise streaming support")
	}

	metrics.ExchangesActive.WithLabelValues("client").Inc()
	start := time.Now()
	defer func() {
		metrics.ExchangesActive.WithLabelValues("client").Dec()
		metrics.ExchangeDuration.WithLabelValues("client").Observe(time.Since(start).Seconds())
		outcome := "replied"
		if err != nil {
			outcome = "failed"
		}
		metrics.ExchangesCompleted.WithLabelValues("client", outcome).Inc()
	}()

	pool := c.Pool
	if len(bid.PromptRelays) > 0 {
		pool = relay.NewPool(bid.PromptRelays, nil)
		defer pool.Close()
	}

	promptKP, err := keys.GenerateSecp256k1KeyPair()
	if err != nil {
		return nil, fmt.Errorf("client: generate prompt key: %w", err)
	}
	defer promptKP.Zeroize()

	var prompt *event.Event
	if len(content) > StreamThreshold {
		prompt, err = c.publishStreamingPrompt(ctx, pool, bid, content, promptKP)
	} else {
		prompt, err = c.publishInlinePrompt(ctx, pool, bid, content, promptKP)
	}
	if err != nil {
		return nil, err
	}

	quoteEv, err := pool.WaitForEvent(ctx, event.Filter{
		Kinds:   []event.Kind{event.KindQuote},
		Authors: []string{bid.ExpertPub},
		Tags:    map[string][]string{"e": {prompt.ID}},
	}, c.QuoteWait)
	if err != nil {
		return nil, askrelay.Timeout("timed out waiting for quote")
	}
	quote, err := c.decryptQuote(quoteEv, bid.ExpertPub, promptKP)
	if err != nil {
		return nil, err
	}
	if quote.Error != "" {
		return nil, askrelay.ExpertError("expert returned an error quote", errors.New(quote.Error))
	}

	if err := payment.ValidateQuote(quote.Invoices); err != nil {
		metrics.QuoteValidations.WithLabelValues("rejected").Inc()
		c.sendErrorProof(ctx, pool, prompt.ID, bid.ExpertPub, promptKP, err.Error())
		return nil, err
	}
	metrics.QuoteValidations.WithLabelValues("accepted").Inc()
	if c.MaxAmountSats > 0 {
		for _, inv := range quote.Invoices {
			if inv.AmountSats > c.MaxAmountSats {
				reason := fmt.Sprintf("quote amount %d sat exceeds configured maximum %d sat", inv.AmountSats, c.MaxAmountSats)
				c.sendErrorProof(ctx, pool, prompt.ID, bid.ExpertPub, promptKP, reason)
				return nil, askrelay.PaymentRejected(reason)
			}
		}
	}

	proceed, err := onQuote(quote)
	if err != nil || !proceed {
		reason := "client declined quote"
		if err != nil {
			reason = err.Error()
		}
		c.sendErrorProof(ctx, pool, prompt.ID, bid.ExpertPub, promptKP, reason)
		return nil, askrelay.PaymentRejected(reason)
	}

	proof, err := onPay(quote)
	if err != nil {
		c.sendErrorProof(ctx, pool, prompt.ID, bid.ExpertPub, promptKP, err.Error())
		return nil, askrelay.PaymentFailed("payment failed", err)
	}

	proofBody, _ := json.Marshal(proof)
	encryptedProof, err := keys.Encrypt(proofBody, bid.ExpertPub, promptKP)
	if err != nil {
		return nil, askrelay.DecryptionError("encrypt proof", err)
	}
	proofEv := event.EncodeProof(prompt.ID, bid.ExpertPub, encryptedProof)
	if err := proofEv.Sign(promptKP); err != nil {
		return nil, fmt.Errorf("client: sign proof: %w", err)
	}
	if _, err := pool.Publish(ctx, proofEv); err != nil {
		return nil, askrelay.RelayUnreachable("publish proof failed", err)
	}

	replyEv, err := pool.WaitForEvent(ctx, event.Filter{
		Kinds:   []event.Kind{event.KindReply},
		Authors: []string{bid.ExpertPub},
		Tags:    map[string][]string{"e": {prompt.ID}},
	}, c.ReplyWait)
	if err != nil {
		return nil, askrelay.Timeout("timed out waiting for reply")
	}
	reply, err := event.DecodeReply(replyEv)
	if err != nil {
		return nil, err
	}

	if reply.StreamID != "" {
		return c.receiveStream(ctx, pool, reply, bid, promptKP)
	}
	metrics.ReplyPayloadSize.Observe(float64(len(reply.Payload.Payload)))
	return []Reply{{Payload: reply.Payload.Payload, Error: reply.Payload.Error, Done: true}}, nil
}

// publishInlinePrompt encrypts {format, payload: content} to the
// expert's long-term key and publishes it as the Prompt's content.
func (c *Client) publishInlinePrompt(ctx context.Context, pool *relay.Pool, bid Bid, content []byte, promptKP crypto.KeyPair) (*event.Event, error) {
	body, _ := json.Marshal(struct {
		Format  string `json:"format"`
		Payload string `json:"payload"`
	}{Format: "text", Payload: string(content)})
	encrypted, err := keys.Encrypt(body, bid.ExpertPub, promptKP)
	if err != nil {
		return nil, askrelay.DecryptionError("encrypt prompt", err)
	}

	prompt := event.EncodePrompt(bid.ExpertPub, bid.ExpertPub, encrypted, "", true)
	if err := prompt.Sign(promptKP); err != nil {
		return nil, fmt.Errorf("client: sign prompt: %w", err)
	}
	if _, err := pool.Publish(ctx, prompt); err != nil {
		return nil, askrelay.RelayUnreachable("publish prompt failed", err)
	}
	return prompt, nil
}

// publishStreamingPrompt generates an ephemeral stream key pair, signs
// a StreamMetadata event under promptKP, encrypts it to the expert as
// the Prompt's stream tag, publishes an empty-content Prompt, then
// streams the {format, payload} body through a stream.Writer scoped to
// the bid's prompt relays.
func (c *Client) publishStreamingPrompt(ctx context.Context, pool *relay.Pool, bid Bid, content []byte, promptKP crypto.KeyPair) (*event.Event, error) {
	streamKP, err := keys.GenerateSecp256k1KeyPair()
	if err != nil {
		return nil, fmt.Errorf("client: generate stream key: %w", err)
	}
	defer streamKP.Zeroize()

	metaEv := event.EncodeStreamMetadata(event.StreamMetadata{
		Compression: "gzip",
		Encryption:  "nip44",
		ChunkPubKey: streamKP.PublicKeyHex(),
	}, "")
	if err := metaEv.Sign(promptKP); err != nil {
		return nil, fmt.Errorf("client: sign stream metadata: %w", err)
	}
	metaRaw, err := json.Marshal(metaEv)
	if err != nil {
		return nil, fmt.Errorf("client: marshal stream metadata: %w", err)
	}
	encryptedMeta, err := keys.Encrypt(metaRaw, bid.ExpertPub, promptKP)
	if err != nil {
		return nil, askrelay.DecryptionError("encrypt stream metadata", err)
	}

	prompt := event.EncodePrompt(bid.ExpertPub, bid.ExpertPub, "", encryptedMeta, true)
	if err := prompt.Sign(promptKP); err != nil {
		return nil, fmt.Errorf("client: sign prompt: %w", err)
	}
	if _, err := pool.Publish(ctx, prompt); err != nil {
		return nil, askrelay.RelayUnreachable("publish prompt failed", err)
	}

	body, _ := json.Marshal(struct {
		Format  string `json:"format"`
		Payload string `json:"payload"`
	}{Format: "text", Payload: string(content)})

	writer := stream.NewWriter(pool, bid.PromptRelays, streamKP, metaEv.ID, bid.ExpertPub, nil)
	if err := writer.Write(ctx, body, true); err != nil {
		return nil, askrelay.ExpertError("stream prompt write failed", err)
	}
	return prompt, nil
}

func (c *Client) receiveStream(ctx context.Context, pool *relay.Pool, reply *event.Reply, bid Bid, localKP crypto.KeyPair) ([]Reply, error) {
	metadataPlain, err := keys.Decrypt(reply.StreamID, bid.ExpertPub, localKP)
	if err != nil {
		return nil, askrelay.DecryptionError("decrypt stream metadata", err)
	}
	var metaEv event.Event
	if err := json.Unmarshal(metadataPlain, &metaEv); err != nil {
		return nil, askrelay.InvalidEvent("malformed stream metadata event")
	}
	metadata, err := event.DecodeStreamMetadata(&metaEv)
	if err != nil {
		return nil, err
	}

	reader, err := stream.NewReader(ctx, pool, nil, metadata, localKP, nil)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var out []Reply
	for {
		chunk := reader.Next(ctx)
		if chunk.Err != nil {
			return out, askrelay.ExpertError("stream read failed", chunk.Err)
		}
		if len(chunk.Data) > 0 {
			out = append(out, Reply{Payload: chunk.Data})
		}
		if chunk.Done {
			out = append(out, Reply{Done: true})
			return out, nil
		}
	}
}

func (c *Client) sendErrorProof(ctx context.Context, pool *relay.Pool, promptID, expertPub string, promptKP crypto.KeyPair, reason string) {
	proof := payment.ErrorProof(reason)
	body, _ := json.Marshal(proof)
	encrypted, err := keys.Encrypt(body, expertPub, promptKP)
	if err != nil {
		return
	}
	ev := event.EncodeProof(promptID, expertPub, encrypted)
	if err := ev.Sign(promptKP); err != nil {
		return
	}
	_, _ = pool.Publish(ctx, ev)
}
