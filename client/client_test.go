package client

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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nostrask/askrelay"
	"github.com/nostrask/askrelay/crypto/keys"
	"github.com/nostrask/askrelay/event"
	"github.com/nostrask/askrelay/expert"
	"github.com/nostrask/askrelay/internal/logger"
	"github.com/nostrask/askrelay/payment"
	"github.com/nostrask/askrelay/relay"
)

// fakeRelay mirrors the relay and stream packages' own test doubles,
// additionally fanning newly published events out to live subscribers
// so a client and an expert can exchange events through it in real
// time within one test.
type fakeRelay struct {
	mu    sync.Mutex
	store []*event.Event
	subs  map[string]*websocket.Conn
}

func newFakeRelay(t *testing.T) (url string, closeFn func()) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	fr := &fakeRelay{subs: make(map[string]*websocket.Conn)}

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
				conns := make(map[string]*websocket.Conn, len(fr.subs))
				for id, c := range fr.subs {
					conns[id] = c
				}
				fr.mu.Unlock()
				_ = ws.WriteJSON([]any{"OK", ev.ID, true, ""})
				for id, c := range conns {
					_ = c.WriteJSON([]any{"EVENT", id, &ev})
				}
			case "REQ":
				var subID string
				_ = json.Unmarshal(frame[1], &subID)
				fr.mu.Lock()
				fr.subs[subID] = ws
				matches := append([]*event.Event(nil), fr.store...)
				fr.mu.Unlock()
				for _, ev := range matches {
					_ = ws.WriteJSON([]any{"EVENT", subID, ev})
				}
				_ = ws.WriteJSON([]any{"EOSE", subID})
			case "CLOSE":
			}
		}
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, srv.Close
}

func TestFindExpertsRejectsEmptyQuestion(t *testing.T) {
	c := New(relay.NewPool(nil, logger.NewDefaultLogger()))
	_, err := c.FindExperts(context.Background(), "", []string{"go"}, time.Second)
	require.Error(t, err)
}

func TestFindExpertsRejectsEmptyTopics(t *testing.T) {
	c := New(relay.NewPool(nil, logger.NewDefaultLogger()))
	_, err := c.FindExperts(context.Background(), "how do channels work?", nil, time.Second)
	require.Error(t, err)
}

func TestAskExpertRejectsOversizedContentWithoutStreaming(t *testing.T) {
	c := New(relay.NewPool(nil, logger.NewDefaultLogger()))
	big := make([]byte, StreamThreshold+1)
	_, err := c.AskExpert(context.Background(), Bid{ExpertPub: "deadbeef"}, big, nil, nil)
	require.Error(t, err)
}

// TestFullDiscoveryAskQuoteRejectedRoundTrip drives a client against a live
// expert.Server through one fake relay: discovery, bidding, prompting,
// and quoting. The expert's Wallet.Pay stand-in (see expert.handlePrompt)
// mints an invoice string, not a signed BOLT-11 invoice, so the quote is
// expected to fail ValidateQuote's real zpay32 decode — this still
// exercises the full encrypted ask/bid/prompt/quote wire path end to end.
func TestFullDiscoveryAskQuoteRejectedRoundTrip(t *testing.T) {
	url, closeSrv := newFakeRelay(t)
	defer closeSrv()

	expertIdentity, err := keys.GenerateSecp256k1KeyPair()
	require.NoError(t, err)

	sharedWallet := payment.NewMemoryWallet()

	expertPool := relay.NewPool([]string{url}, logger.NewDefaultLogger())
	defer expertPool.Close()

	srv := expert.New(expertPool, expertIdentity, sharedWallet, expert.Callbacks{
		OnAsk: func(ask *event.Ask) (*expert.BidOffer, error) {
			return &expert.BidOffer{EstimateSat: 500, EstimateText: "quick answer"}, nil
		},
		OnPromptPrice: func(prompt *event.Prompt, content []byte) (expert.Price, error) {
			return expert.Price{AmountSats: 500, Description: "flat rate"}, nil
		},
		OnPromptPaid: func(prompt *event.Prompt, quote *event.Quote, content []byte) (expert.Answer, error) {
			return expert.Answer{Payload: json.RawMessage(`{"answer":"channels are typed pipes"}`)}, nil
		},
	}, logger.NewDefaultLogger())
	srv.Name = "gopher"
	srv.Topics = []string{"golang"}

	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()

	go func() { _ = srv.Run(ctx) }()
	time.Sleep(100 * time.Millisecond) // let the profile publish and subscriptions open

	clientPool := relay.NewPool([]string{url}, logger.NewDefaultLogger())
	defer clientPool.Close()
	c := New(clientPool)

	bids, err := c.FindExperts(ctx, "how do channels work?", []string{"golang"}, 2*time.Second)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, expertIdentity.PublicKeyHex(), bids[0].ExpertPub)
	assert.EqualValues(t, 500, bids[0].EstimateSat)

	_, err = c.AskExpert(ctx, bids[0], []byte("how do channels work?"),
		func(quote *event.Quote) (bool, error) { return true, nil },
		func(quote *event.Quote) (*payment.Proof, error) {
			return payment.DefaultOnPay(ctx, sharedWallet, quote.Invoices)
		},
	)
	require.Error(t, err)
	var rerr *askrelay.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, askrelay.CodePaymentRejected, rerr.Code)
}
