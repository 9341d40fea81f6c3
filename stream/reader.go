package stream

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/nostrask/askrelay/codec"
	"github.com/nostrask/askrelay/crypto"
	"github.com/nostrask/askrelay/crypto/keys"
	"github.com/nostrask/askrelay/event"
	"github.com/nostrask/askrelay/internal/metrics"
	"github.com/nostrask/askrelay/relay"
)

// ReaderConfig bounds the reader's reorder window, bomb-defense
// ceiling, and idle timeout.
type ReaderConfig struct {
	ReorderWindow int
	MaxStreamSize int64
	IdleTimeout   time.Duration
}

func defaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		ReorderWindow: DefaultReorderWindow,
		MaxStreamSize: 64 * 1024 * 1024,
		IdleTimeout:   60 * time.Second,
	}
}

// Chunk is one item yielded by Reader.Next: either decoded payload
// bytes, a done marker, or a terminal error.
type Chunk struct {
	Data []byte
	Done bool
	Err  error
}

// Reader subscribes to a stream's StreamChunk events and yields them
// back in sequence order regardless of relay delivery order.
type Reader struct {
	pool       *relay.Pool
	streamKP   crypto.KeyPair // local key pair, for decrypting if encrypted
	senderPK   string         // streamId public key chunks must be authored by
	encryption bool
	hpkeKey    []byte // decapsulated forward-secret key, set when metadata.Encryption == "hpke"
	cfg        ReaderConfig

	sub *relay.Subscription

	nextExpected int
	pending      map[int]*event.StreamChunk
	decomp       *codec.Decompressor
	total        int64
}

// NewReader subscribes for chunks belonging to metadata and returns a
// Reader ready to be driven by Next. localKP is the receiver's own key
// pair, used to decrypt chunks when metadata.Encryption == "nip44".
func NewReader(ctx context.Context, pool *relay.Pool, relays []string, metadata *event.StreamMetadata, localKP crypto.KeyPair, cfg *ReaderConfig) (*Reader, error) {
	c := defaultReaderConfig()
	if cfg != nil {
		c = *cfg
	}
	since := time.Now().Add(-10 * time.Second)
	filter := event.Filter{
		Kinds:   []event.Kind{event.KindStreamChunk},
		Authors: []string{metadata.ChunkPubKey},
		Since:   since,
	}
	sub, err := pool.Subscribe(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("stream: subscribe to chunks: %w", err)
	}
	_ = relays // relay selection is handled by pool construction upstream
	metrics.StreamsActive.WithLabelValues("reader").Inc()
	return &Reader{
		pool: pool, streamKP: localKP, senderPK: metadata.ChunkPubKey,
		encryption: metadata.Encryption == "nip44", cfg: c,
		sub: sub, pending: make(map[int]*event.StreamChunk),
		decomp: codec.NewDecompressor(c.MaxStreamSize),
	}, nil
}

// NewReaderHPKE subscribes like NewReader, but recovers the chunk
// encryption key by decapsulating metadata.HPKEEnc against hpkePriv
// (the private half of the key pair whose public half the writer
// called NewWriterHPKE with), for streams using Encryption == "hpke"
// instead of static secp256k1-ECDH.
func NewReaderHPKE(ctx context.Context, pool *relay.Pool, relays []string, metadata *event.StreamMetadata, hpkePriv []byte, cfg *ReaderConfig) (*Reader, error) {
	if metadata.Encryption != "hpke" {
		return nil, fmt.Errorf("stream: metadata encryption %q is not hpke", metadata.Encryption)
	}
	enc, err := base64.StdEncoding.DecodeString(metadata.HPKEEnc)
	if err != nil {
		return nil, fmt.Errorf("stream: decode hpke encapsulation: %w", err)
	}
	key, err := keys.DecapsulateStreamKey(hpkePriv, enc, []byte(metadata.Event.ID), 32)
	if err != nil {
		return nil, fmt.Errorf("stream: decapsulate hpke key: %w", err)
	}

	r, err := NewReader(ctx, pool, relays, metadata, nil, cfg)
	if err != nil {
		return nil, err
	}
	r.hpkeKey = key
	return r, nil
}

// Close releases the underlying subscription.
func (r *Reader) Close() {
	r.sub.Close()
	metrics.StreamsActive.WithLabelValues("reader").Dec()
}

// Next blocks until the next in-order chunk is decoded, the stream
// ends (Done), or an error occurs (including an idle-timeout error
// after IdleTimeout and SizeLimitExceeded on bomb defense).
func (r *Reader) Next(ctx context.Context) Chunk {
	for {
		if c, ok := r.pending[r.nextExpected]; ok {
			delete(r.pending, r.nextExpected)
			return r.decode(c)
		}

		select {
		case ev := <-r.sub.Events:
			chunk, err := event.DecodeStreamChunk(ev)
			if err != nil {
				continue // malformed chunk: dropped without logging
			}
			if chunk.Seq < r.nextExpected || chunk.Seq > r.nextExpected+r.cfg.ReorderWindow {
				continue // out of window: dropped
			}
			if chunk.Seq == r.nextExpected {
				metrics.ChunksRead.WithLabelValues("in_order").Inc()
			} else {
				metrics.ChunksRead.WithLabelValues("reordered").Inc()
			}
			r.pending[chunk.Seq] = chunk
		case <-time.After(r.cfg.IdleTimeout):
			return Chunk{Err: fmt.Errorf("stream: idle timeout waiting for sequence %d", r.nextExpected)}
		case <-ctx.Done():
			return Chunk{Err: ctx.Err()}
		}
	}
}

func (r *Reader) decode(c *event.StreamChunk) Chunk {
	r.nextExpected = c.Seq + 1

	if c.Err != "" {
		return Chunk{Err: fmt.Errorf("stream: remote error: %s", c.Err)}
	}

	var compressed []byte
	if c.Data != "" {
		var raw []byte
		var err error
		switch {
		case r.hpkeKey != nil:
			raw, err = keys.DecryptWithKey(c.Data, r.hpkeKey)
		case r.encryption:
			raw, err = keys.Decrypt(c.Data, r.senderPK, r.streamKP)
		default:
			raw, err = base64.StdEncoding.DecodeString(c.Data)
		}
		if err != nil {
			return Chunk{Err: fmt.Errorf("stream: decrypt chunk %d: %w", c.Seq, err)}
		}
		compressed = raw
	}

	var decoded []byte
	if len(compressed) > 0 {
		fresh, err := r.decomp.Add(compressed)
		if err != nil {
			return Chunk{Err: fmt.Errorf("stream: decompress chunk %d: %w", c.Seq, err)}
		}
		decoded = fresh
		r.total += int64(len(decoded))
		if r.total > r.cfg.MaxStreamSize {
			return Chunk{Err: fmt.Errorf("stream: decompressed total exceeds max stream size")}
		}
	}

	return Chunk{Data: decoded, Done: c.Done}
}
