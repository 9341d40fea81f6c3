package event

import (
	"encoding/json"
	"strconv"
)

// StreamMetadataVersion is the only stream-metadata wire version this
// implementation understands. A StreamMetadata event carrying any other
// version is rejected by DecodeStreamMetadata with InvalidEvent (Open Question
// #3, resolved in favor of rejecting unknown versions rather than
// attempting best-effort decoding).
const StreamMetadataVersion = "1"

// StreamMetadata describes a chunked answer before any chunks arrive:
// what codec and encryption scheme chunks use, plus optional chunk-count
// and total-size fields. stream.Writer does not set the count and size
// fields and stream.Reader does not read them; the reader's bomb defense
// uses ReaderConfig.MaxStreamSize.
type StreamMetadata struct {
	Event *Event

	Version     string `json:"version"`
	Compression string `json:"compression"` // "gzip" or ""
	Encryption  string `json:"encryption"`   // "nip44" or "hpke"
	TotalChunks int    `json:"total_chunks"`
	TotalSize   int64  `json:"total_size"`
	ChunkPubKey string `json:"chunk_pubkey"` // ephemeral pubkey chunks are signed by

	// HPKEEnc is the base64 HPKE encapsulation a writer produced via
	// keys.EncapsulateStreamKey; set only when Encryption == "hpke".
	HPKEEnc string `json:"hpke_enc,omitempty"`
}

func DecodeStreamMetadata(ev *Event) (*StreamMetadata, error) {
	if ev.Kind != KindStreamMeta {
		return nil, ErrInvalidEvent("not a stream-metadata event")
	}
	var m StreamMetadata
	if err := json.Unmarshal([]byte(ev.Content), &m); err != nil {
		return nil, ErrInvalidEvent("malformed stream metadata: " + err.Error())
	}
	if m.Version != StreamMetadataVersion {
		return nil, ErrInvalidEvent("unsupported stream metadata version: " + m.Version)
	}
	m.Event = ev
	return &m, nil
}

func EncodeStreamMetadata(m StreamMetadata, ownerEventID string) *Event {
	m.Version = StreamMetadataVersion
	content, _ := json.Marshal(m)
	return New(KindStreamMeta, string(content), [][]string{{"e", ownerEventID}})
}

// StreamChunk is one signed, sequenced slice of a chunked answer.
// Sequence numbers start at 0; the final chunk sets Done or Err.
type StreamChunk struct {
	Event *Event

	StreamID string // "e" tag: the owning StreamMetadata event id
	Seq      int    // "i" tag
	Data     string // ciphertext, base64
	Done     bool
	Err      string
}

func DecodeStreamChunk(ev *Event) (*StreamChunk, error) {
	if ev.Kind != KindStreamChunk {
		return nil, ErrInvalidEvent("not a stream-chunk event")
	}
	var body struct {
		Data string `json:"data"`
		Done bool   `json:"done,omitempty"`
		Err  string `json:"error,omitempty"`
	}
	if err := json.Unmarshal([]byte(ev.Content), &body); err != nil {
		return nil, ErrInvalidEvent("malformed stream chunk: " + err.Error())
	}
	seqStr := ev.FirstTag("i")
	seq, err := parseSeq(seqStr)
	if err != nil {
		return nil, ErrInvalidEvent("malformed sequence tag: " + seqStr)
	}
	return &StreamChunk{
		Event: ev, StreamID: ev.FirstTag("e"), Seq: seq,
		Data: body.Data, Done: body.Done, Err: body.Err,
	}, nil
}

func EncodeStreamChunk(streamID string, seq int, data string, done bool, chunkErr string) *Event {
	content, _ := json.Marshal(struct {
		Data string `json:"data"`
		Done bool   `json:"done,omitempty"`
		Err  string `json:"error,omitempty"`
	}{data, done, chunkErr})
	tags := [][]string{{"e", streamID}, {"i", strconv.Itoa(seq)}}
	return New(KindStreamChunk, string(content), tags)
}

func parseSeq(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, ErrInvalidEvent("non-numeric sequence: " + s)
	}
	return n, nil
}
