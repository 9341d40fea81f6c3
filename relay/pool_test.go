package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/nostrask/askrelay/crypto/keys"
	"github.com/nostrask/askrelay/event"
	"github.com/nostrask/askrelay/internal/logger"
)

// fakeRelay is a minimal nostr-style relay used to exercise Pool
// without a real network: it ACKs every EVENT with OK=true and echoes
// any subsequently-published event back to matching REQ subscribers
// before sending EOSE.
type fakeRelay struct {
	mu    sync.Mutex
	store []*event.Event
}

func newFakeRelay(t *testing.T) (url string, close func()) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	fr := &fakeRelay{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var frame []json.RawMessage
			if err := json.Unmarshal(raw, &frame); err != nil || len(frame) == 0 {
				continue
			}
			var label string
			_ = json.Unmarshal(frame[0], &label)
			switch label {
			case "EVENT":
				var ev event.Event
				_ = json.Unmarshal(frame[1], &ev)
				fr.mu.Lock()
				fr.store = append(fr.store, &ev)
				fr.mu.Unlock()
				_ = ws.WriteJSON([]any{"OK", ev.ID, true, ""})
			case "REQ":
				var subID string
				_ = json.Unmarshal(frame[1], &subID)
				fr.mu.Lock()
				matches := append([]*event.Event(nil), fr.store...)
				fr.mu.Unlock()
				for _, ev := range matches {
					_ = ws.WriteJSON([]any{"EVENT", subID, ev})
				}
				_ = ws.WriteJSON([]any{"EOSE", subID})
			case "CLOSE":
				// no-op for the fake
			}
		}
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, srv.Close
}

func signedAsk(t *testing.T) *event.Event {
	t.Helper()
	kp, err := keys.GenerateSecp256k1KeyPair()
	require.NoError(t, err)
	ev := event.New(event.KindAsk, `{"topic":"golang concurrency"}`, nil)
	require.NoError(t, ev.Sign(kp))
	return ev
}

func TestPoolPublishAccepted(t *testing.T) {
	url, closeSrv := newFakeRelay(t)
	defer closeSrv()

	pool := NewPool([]string{url}, logger.NewDefaultLogger())
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accepted, err := pool.Publish(ctx, signedAsk(t))
	require.NoError(t, err)
	require.Equal(t, []string{url}, accepted)
}

func TestPoolFetchReturnsPublishedEvent(t *testing.T) {
	url, closeSrv := newFakeRelay(t)
	defer closeSrv()

	pool := NewPool([]string{url}, logger.NewDefaultLogger())
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ev := signedAsk(t)
	_, err := pool.Publish(ctx, ev)
	require.NoError(t, err)

	events, err := pool.Fetch(context.Background(), event.Filter{Kinds: []event.Kind{event.KindAsk}}, 3*time.Second)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, ev.ID, events[0].ID)
}

func TestPoolWaitForEventTimesOutWithNoMatch(t *testing.T) {
	url, closeSrv := newFakeRelay(t)
	defer closeSrv()

	pool := NewPool([]string{url}, logger.NewDefaultLogger())
	defer pool.Close()

	_, err := pool.WaitForEvent(context.Background(), event.Filter{Kinds: []event.Kind{event.KindQuote}}, 500*time.Millisecond)
	require.Error(t, err)
}
