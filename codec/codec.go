// Package codec implements the incremental, size-capped gzip codec used
// to compress stream chunk payloads before encryption and to decompress
// them (or a single inline reply body) with a hard bomb-defense ceiling.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// SizeLimitExceeded is returned once a compressed or decompressed output
// would exceed its configured limit. It is typed so callers can abort
// the exchange with a SizeLimitExceeded protocol error instead of
// retrying or silently truncating.
type SizeLimitExceeded struct {
	Limit int64
}

func (e *SizeLimitExceeded) Error() string {
	return fmt.Sprintf("codec: output would exceed %d byte limit", e.Limit)
}

// safetyMargin is reserved headroom subtracted from MaxSize before
// MaxSafeChunkSize reports how much more plaintext is safe to add, so a
// caller that respects MaxSafeChunkSize never actually hits the cap.
const safetyMargin = 1024

// Compressor incrementally gzips input, refusing to let the compressed
// output grow past maxSize.
type Compressor struct {
	maxSize  int64
	buf      bytes.Buffer
	gz       *gzip.Writer
	closed   bool
	produced int
}

// NewCompressor starts a new incremental gzip stream capped at maxSize
// compressed bytes.
func NewCompressor(maxSize int64) *Compressor {
	c := &Compressor{maxSize: maxSize}
	c.gz = gzip.NewWriter(&c.buf)
	return c
}

// MaxSafeChunkSize returns how many more plaintext bytes can be handed
// to Add without risking SizeLimitExceeded, given gzip's worst-case
// expansion and the reserved safety margin. Writers should never pass a
// slice larger than this to Add.
func (c *Compressor) MaxSafeChunkSize() int {
	remaining := c.maxSize - safetyMargin - int64(c.buf.Len())
	if remaining <= 0 {
		return 0
	}
	// A generous 1/512 overhead estimate covers gzip's per-block header
	// cost without being so conservative it starves small limits.
	safe := remaining - remaining/512
	if safe < 0 {
		return 0
	}
	return int(safe)
}

// Add compresses another slice of plaintext, flushing so the buffered
// length reflects true output size after every call.
func (c *Compressor) Add(plaintext []byte) error {
	if c.closed {
		return errors.New("codec: Add called after Finish")
	}
	if _, err := c.gz.Write(plaintext); err != nil {
		return err
	}
	if err := c.gz.Flush(); err != nil {
		return err
	}
	if int64(c.buf.Len()) > c.maxSize-safetyMargin {
		return &SizeLimitExceeded{Limit: c.maxSize}
	}
	return nil
}

// Drain returns whatever compressed bytes have become available since
// the last Drain (or since construction), without closing the stream.
// Callers that want to split one continuous gzip stream across many
// network chunks call Add then Drain repeatedly, and Finish once at
// the end — the decompressing side mirrors this with Decompressor.Add.
func (c *Compressor) Drain() []byte {
	full := c.buf.Bytes()
	if len(full) <= c.produced {
		return nil
	}
	fresh := make([]byte, len(full)-c.produced)
	copy(fresh, full[c.produced:])
	c.produced = len(full)
	return fresh
}

// Finish closes the gzip stream and returns the complete compressed
// output.
func (c *Compressor) Finish() ([]byte, error) {
	if c.closed {
		return nil, errors.New("codec: Finish called twice")
	}
	c.closed = true
	if err := c.gz.Close(); err != nil {
		return nil, err
	}
	if int64(c.buf.Len()) > c.maxSize {
		return nil, &SizeLimitExceeded{Limit: c.maxSize}
	}
	return c.buf.Bytes(), nil
}

// Decompressor incrementally ungzips input, refusing to let the
// decompressed output grow past maxSize — the bomb-defense boundary
// applied to every stream and every inline compressed reply.
type Decompressor struct {
	maxSize  int64
	raw      bytes.Buffer
	produced int
}

// NewDecompressor prepares an incremental gzip reader capped at maxSize
// decompressed bytes.
func NewDecompressor(maxSize int64) *Decompressor {
	return &Decompressor{maxSize: maxSize}
}

// Add feeds in another chunk of compressed bytes and returns whatever
// newly-available decompressed bytes that chunk unlocked. It is safe to
// call with partial gzip frames; Add returns (nil, nil) until enough
// header bytes have arrived.
func (d *Decompressor) Add(compressed []byte) ([]byte, error) {
	d.raw.Write(compressed)

	gz, err := gzip.NewReader(bytes.NewReader(d.raw.Bytes()))
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, nil // not enough header yet
		}
		return nil, err
	}

	limited := io.LimitReader(gz, d.maxSize+1)
	full, err := io.ReadAll(limited)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	if int64(len(full)) > d.maxSize {
		return nil, &SizeLimitExceeded{Limit: d.maxSize}
	}

	if len(full) < d.produced {
		// Can't happen unless raw was mutated out of band.
		return nil, errors.New("codec: decompressed output shrank")
	}
	fresh := full[d.produced:]
	d.produced = len(full)
	return fresh, nil
}

// Finish verifies the gzip trailer (checksum and length) by fully
// decompressing the buffered input one last time.
func (d *Decompressor) Finish() ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(d.raw.Bytes()))
	if err != nil {
		return nil, err
	}
	limited := io.LimitReader(gz, d.maxSize+1)
	full, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(full)) > d.maxSize {
		return nil, &SizeLimitExceeded{Limit: d.maxSize}
	}
	if len(full) <= d.produced {
		return nil, nil
	}
	fresh := full[d.produced:]
	d.produced = len(full)
	return fresh, nil
}
