package codec

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	plaintext := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 2000)

	c := NewCompressor(10 * 1024 * 1024)
	chunkSize := 4096
	for i := 0; i < len(plaintext); i += chunkSize {
		end := i + chunkSize
		if end > len(plaintext) {
			end = len(plaintext)
		}
		require.NoError(t, c.Add(plaintext[i:end]))
	}
	compressed, err := c.Finish()
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(plaintext))

	d := NewDecompressor(10 * 1024 * 1024)
	var out bytes.Buffer
	for i := 0; i < len(compressed); i += 128 {
		end := i + 128
		if end > len(compressed) {
			end = len(compressed)
		}
		fresh, err := d.Add(compressed[i:end])
		require.NoError(t, err)
		out.Write(fresh)
	}
	fresh, err := d.Finish()
	require.NoError(t, err)
	out.Write(fresh)

	assert.Equal(t, plaintext, out.Bytes())
}

func TestCompressorEnforcesSizeLimit(t *testing.T) {
	c := NewCompressor(64)
	random := make([]byte, 1<<20)
	_, _ = rand.Read(random)

	var sizeErr *SizeLimitExceeded
	err := c.Add(random)
	if err == nil {
		_, err = c.Finish()
	}
	require.Error(t, err)
	require.ErrorAs(t, err, &sizeErr)
}

func TestMaxSafeChunkSizeShrinksAsBufferFills(t *testing.T) {
	c := NewCompressor(4096)
	first := c.MaxSafeChunkSize()
	require.NoError(t, c.Add(bytes.Repeat([]byte{0}, 100)))
	second := c.MaxSafeChunkSize()
	assert.GreaterOrEqual(t, first, second)
}

func TestDecompressorEnforcesSizeLimit(t *testing.T) {
	plaintext := bytes.Repeat([]byte{'a'}, 1<<20)
	c := NewCompressor(int64(len(plaintext)))
	require.NoError(t, c.Add(plaintext))
	compressed, err := c.Finish()
	require.NoError(t, err)

	d := NewDecompressor(1024)
	_, err = d.Add(compressed)
	var sizeErr *SizeLimitExceeded
	require.ErrorAs(t, err, &sizeErr)
}
