// Package stream implements the chunked transport used whenever a
// prompt or reply payload exceeds the ~48 KiB in-event ceiling: a
// Writer that compresses, encrypts, signs and publishes sequenced
// StreamChunk events, and a Reader that subscribes, reorders, decrypts
// and decompresses them back into the original byte stream.
//
// The reorder-window and per-chunk-nonce shape is grounded on the
// ordered chunk-index pattern in other_examples' S3 encryption gateway
// (each chunk self-describes its position and carries its own nonce,
// since arrival order across relays is never guaranteed), adapted from
// local file chunking to network event delivery.
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

// DefaultReorderWindow bounds how far ahead of next_expected the
// reader will buffer out-of-order chunks before dropping them.
const DefaultReorderWindow = 32

// MaxChunkSize is the default ceiling on one StreamChunk's compressed,
// encrypted payload: the 48 KiB event-content ceiling minus headroom
// for JSON framing and base64 expansion.
const MaxChunkSize = 32 * 1024

// WriterConfig bounds the Writer's batching and per-chunk size.
type WriterConfig struct {
	MinChunkInterval time.Duration
	MinChunkSize     int
	MaxChunkSize     int
}

func defaultWriterConfig() WriterConfig {
	return WriterConfig{
		MinChunkInterval: 200 * time.Millisecond,
		MinChunkSize:     8 * 1024,
		MaxChunkSize:     MaxChunkSize,
	}
}

// Writer buffers written bytes and emits them as compressed, optionally
// encrypted StreamChunk events once the buffer crosses MinChunkSize,
// MinChunkInterval has elapsed since the last emit, or Close is called.
type Writer struct {
	pool       *relay.Pool
	relays     []string
	streamKP   crypto.KeyPair
	streamID   string
	receiverPK string // hex; empty if encryption is disabled
	hpkeKey    []byte // forward-secret key from an HPKE encapsulation, if set takes priority over receiverPK
	cfg        WriterConfig

	compressor *codec.Compressor // one continuous gzip stream for the whole writer
	buf        []byte
	seq        int
	lastSend   time.Time
	done       bool
}

// NewWriter starts a writer for one stream. metadata.ChunkPubKey is the
// streamId public key chunks will be signed under; receiverPubHex, if
// non-empty, is the peer public key chunks are encrypted to.
func NewWriter(pool *relay.Pool, relays []string, streamKP crypto.KeyPair, streamEventID, receiverPubHex string, cfg *WriterConfig) *Writer {
	c := defaultWriterConfig()
	if cfg != nil {
		c = *cfg
	}
	metrics.StreamsActive.WithLabelValues("writer").Inc()
	return &Writer{
		pool: pool, relays: relays, streamKP: streamKP,
		streamID: streamEventID, receiverPK: receiverPubHex,
		cfg: c, lastSend: time.Now(),
		// Unbounded here: MaxChunkSize governs one chunk's wire payload,
		// not the whole stream's total compressed size.
		compressor: codec.NewCompressor(1 << 62),
	}
}

// NewWriterHPKE starts a writer like NewWriter, but encrypts chunks
// under a key encapsulated to receiverHPKEPub via HPKE (see
// keys.EncapsulateStreamKey) instead of the static secp256k1-ECDH key
// NewWriter's receiverPubHex derives. Use this when the receiver has
// published a one-shot HPKE public key (keys.GenerateStreamHPKEKeyPair)
// rather than negotiating encryption off its long-term identity; the
// returned enc must be delivered to the reader (inside StreamMetadata)
// so it can call keys.DecapsulateStreamKey.
func NewWriterHPKE(pool *relay.Pool, relays []string, streamKP crypto.KeyPair, streamEventID string, receiverHPKEPub []byte, cfg *WriterConfig) (w *Writer, enc []byte, err error) {
	enc, key, err := keys.EncapsulateStreamKey(receiverHPKEPub, []byte(streamEventID), 32)
	if err != nil {
		return nil, nil, fmt.Errorf("stream: encapsulate hpke key: %w", err)
	}
	w = NewWriter(pool, relays, streamKP, streamEventID, "", cfg)
	w.hpkeKey = key
	return w, enc, nil
}

// Write appends data to the internal buffer and flushes a chunk once a
// batching threshold is crossed. If closeStream is true, the final
// chunk is marked done after this data is included.
func (w *Writer) Write(ctx context.Context, data []byte, closeStream bool) error {
	if w.done {
		return fmt.Errorf("stream: write after close")
	}
	w.buf = append(w.buf, data...)

	shouldFlush := len(w.buf) >= w.cfg.MinChunkSize ||
		time.Since(w.lastSend) >= w.cfg.MinChunkInterval ||
		closeStream
	if !shouldFlush {
		return nil
	}
	return w.flush(ctx, closeStream)
}

func (w *Writer) flush(ctx context.Context, closeStream bool) error {
	payload := w.buf
	w.buf = nil
	w.lastSend = time.Now()

	if len(payload) > 0 {
		if err := w.compressor.Add(payload); err != nil {
			return fmt.Errorf("stream: compress chunk: %w", err)
		}
	}
	fresh := w.compressor.Drain()
	if closeStream {
		trailer, err := w.compressor.Finish()
		if err != nil {
			return fmt.Errorf("stream: finish compressor: %w", err)
		}
		fresh = append(fresh, trailer...)
	}

	return w.publishChunks(ctx, fresh, closeStream)
}

// publishChunks splits fresh compressed bytes into at most
// cfg.MaxChunkSize pieces and publishes one StreamChunk per piece; only
// the last piece (when closeStream) carries done=true.
func (w *Writer) publishChunks(ctx context.Context, fresh []byte, closeStream bool) error {
	if len(fresh) == 0 {
		if closeStream {
			return w.emit(ctx, nil, true, "")
		}
		return nil
	}
	for i := 0; i < len(fresh); i += w.cfg.MaxChunkSize {
		end := i + w.cfg.MaxChunkSize
		if end > len(fresh) {
			end = len(fresh)
		}
		isLast := end == len(fresh)
		if err := w.emit(ctx, fresh[i:end], isLast && closeStream, ""); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) emit(ctx context.Context, compressed []byte, done bool, chunkErr string) error {
	var encoded string
	if len(compressed) > 0 {
		var err error
		switch {
		case w.hpkeKey != nil:
			encoded, err = keys.EncryptWithKey(compressed, w.hpkeKey)
		case w.receiverPK != "":
			encoded, err = keys.Encrypt(compressed, w.receiverPK, w.streamKP)
		default:
			encoded = base64.StdEncoding.EncodeToString(compressed)
		}
		if err != nil {
			return fmt.Errorf("stream: encrypt chunk: %w", err)
		}
	}
	return w.publish(ctx, encoded, done, chunkErr)
}

// Error emits a single terminal chunk carrying code:message and marks
// the writer done; no further writes are accepted.
func (w *Writer) Error(ctx context.Context, code, message string) error {
	if w.done {
		return nil
	}
	return w.publish(ctx, "", false, fmt.Sprintf("%s:%s", code, message))
}

func (w *Writer) publish(ctx context.Context, data string, done bool, chunkErr string) error {
	ev := event.EncodeStreamChunk(w.streamID, w.seq, data, done, chunkErr)
	if err := ev.Sign(w.streamKP); err != nil {
		return fmt.Errorf("stream: sign chunk: %w", err)
	}
	accepted, err := w.pool.Publish(ctx, ev)
	if err != nil || len(accepted) == 0 {
		metrics.ChunksWritten.WithLabelValues("error").Inc()
		return fmt.Errorf("stream: publish chunk %d: %w", w.seq, err)
	}
	metrics.ChunksWritten.WithLabelValues("ok").Inc()
	w.seq++
	if done || chunkErr != "" {
		w.done = true
		metrics.StreamsActive.WithLabelValues("writer").Dec()
	}
	return nil
}

// Close flushes any remaining buffered data and emits the final,
// done=true chunk.
func (w *Writer) Close(ctx context.Context) error {
	if w.done {
		return nil
	}
	return w.flush(ctx, true)
}
