// Package event models the signed event envelope every message on the
// relay substrate is wrapped in: kind, content, tags, and the
// pubkey/created_at/id/sig quadruple that binds them together.
package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nostrask/askrelay/crypto"
	"github.com/nostrask/askrelay/crypto/keys"
)

// Event is the wire-level signed envelope. Decoded "views" (ExpertProfile,
// Ask, BidEnvelope, ...) wrap an *Event and expose its Tags by name.
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt time.Time  `json:"created_at"`
	Kind      Kind       `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// New constructs an unsigned event. Call Sign before publishing it.
func New(kind Kind, content string, tags [][]string) *Event {
	if tags == nil {
		tags = [][]string{}
	}
	return &Event{
		Kind:      kind,
		Content:   content,
		Tags:      tags,
		CreatedAt: time.Now().UTC(),
	}
}

// canonical is the NIP-01-style serialization the event id is computed
// over: [0, pubkey, created_at, kind, tags, content].
func (e *Event) canonical() ([]byte, error) {
	arr := []any{
		0,
		e.PubKey,
		e.CreatedAt.Unix(),
		int(e.Kind),
		e.Tags,
		e.Content,
	}
	return json.Marshal(arr)
}

// computeID returns the sha256 of the canonical serialization, hex
// encoded — this becomes Event.ID once PubKey is set.
func (e *Event) computeID() (string, error) {
	data, err := e.canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Sign sets PubKey, ID, and Sig from the given key pair. The key pair may
// be a long-term identity or an ephemeral one minted for this single
// event's scope — callers are responsible for zeroizing ephemeral pairs
// once the exchange that needed them is over.
func (e *Event) Sign(kp crypto.KeyPair) error {
	e.PubKey = kp.PublicKeyHex()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	id, err := e.computeID()
	if err != nil {
		return fmt.Errorf("event: compute id: %w", err)
	}
	idBytes, err := hex.DecodeString(id)
	if err != nil {
		return err
	}
	sig, err := kp.Sign(idBytes)
	if err != nil {
		return fmt.Errorf("event: sign: %w", err)
	}
	e.ID = id
	e.Sig = hex.EncodeToString(sig)
	return nil
}

// Validate recomputes the event id and checks the signature. Relays are
// expected to do this themselves, but callers that trust an embedded,
// separately-signed inner event (a BidPayload inside a BidEnvelope)
// must validate it here before trusting anything in Content.
func (e *Event) Validate() error {
	wantID, err := e.computeID()
	if err != nil {
		return err
	}
	if wantID != e.ID {
		return ErrInvalidEvent("event id does not match content")
	}
	sig, err := hex.DecodeString(e.Sig)
	if err != nil {
		return ErrInvalidEvent("malformed signature: " + err.Error())
	}
	idBytes, err := hex.DecodeString(e.ID)
	if err != nil {
		return ErrInvalidEvent("malformed id: " + err.Error())
	}
	if err := keys.VerifyDigestSig(e.PubKey, idBytes, sig); err != nil {
		return ErrInvalidEvent("signature verification failed")
	}
	return nil
}

// ErrInvalidEvent is returned by Validate and by decoders when an event's
// shape or signature does not match what its kind requires.
type ErrInvalidEvent string

func (e ErrInvalidEvent) Error() string { return "event: invalid event: " + string(e) }

// FirstTag returns the first value of the first tag whose name matches,
// or "" if none match. Tags are [name, value, ...] arrays.
func (e *Event) FirstTag(name string) string {
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			return t[1]
		}
	}
	return ""
}

// Values returns every value of every tag whose name matches.
func (e *Event) Values(name string) []string {
	var out []string
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			out = append(out, t[1:]...)
		}
	}
	return out
}

// HasTag reports whether any tag with the given name exists.
func (e *Event) HasTag(name string) bool {
	for _, t := range e.Tags {
		if len(t) >= 1 && t[0] == name {
			return true
		}
	}
	return false
}
