package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nostrask/askrelay/event"
	"github.com/nostrask/askrelay/internal/logger"
	"github.com/nostrask/askrelay/internal/metrics"
)

// conn is one WebSocket connection to one relay URL. It is the
// askrelay analogue of the teacher's WSTransport: dial once, run a
// single read-pump goroutine, and dispatch inbound frames to whichever
// subscription or publish-waiter is keyed to match.
type conn struct {
	url  string
	log  logger.Logger
	dial time.Duration

	mu      sync.Mutex
	ws      *websocket.Conn
	writeMu sync.Mutex

	subsMu sync.RWMutex
	subs   map[string]chan *event.Event
	eose   map[string]chan struct{}

	pubMu sync.Mutex
	pub   map[string]chan okResult

	closeOnce sync.Once
	closed    chan struct{}

	failures   int
	lastFailed time.Time
}

// backoff returns how long to wait before the next reconnect attempt,
// growing with consecutive failures (1s, 2s, 4s, ... capped at 30s),
// grounded on the teacher's health-checker backoff idiom.
func (c *conn) backoff() time.Duration {
	if c.failures == 0 {
		return 0
	}
	d := time.Second << uint(c.failures-1)
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

type okResult struct {
	ok      bool
	message string
}

func newConn(url string, log logger.Logger) *conn {
	return &conn{
		url:    url,
		log:    log,
		dial:   10 * time.Second,
		subs:   make(map[string]chan *event.Event),
		eose:   make(map[string]chan struct{}),
		pub:    make(map[string]chan okResult),
		closed: make(chan struct{}),
	}
}

func (c *conn) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws != nil {
		return nil
	}
	if wait := c.backoff(); wait > 0 && time.Since(c.lastFailed) < wait {
		return fmt.Errorf("relay: %s in backoff after %d consecutive failures", c.url, c.failures)
	}

	dialer := &websocket.Dialer{HandshakeTimeout: c.dial}
	ws, resp, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.failures++
		c.lastFailed = time.Now()
		metrics.RelayConnections.WithLabelValues("failed").Inc()
		if resp != nil {
			return fmt.Errorf("relay: dial %s failed (HTTP %d): %w", c.url, resp.StatusCode, err)
		}
		return fmt.Errorf("relay: dial %s failed: %w", c.url, err)
	}
	c.failures = 0
	c.ws = ws
	metrics.RelayConnections.WithLabelValues("connected").Inc()
	go c.readPump()
	return nil
}

func (c *conn) readPump() {
	for {
		c.mu.Lock()
		ws := c.ws
		c.mu.Unlock()
		if ws == nil {
			return
		}
		_, raw, err := ws.ReadMessage()
		if err != nil {
			c.log.Warn("relay read error", logger.String("url", c.url), logger.Error(err))
			c.teardown()
			return
		}
		c.dispatch(raw)
	}
}

// dispatch parses one relay->client frame. Frames follow the
// ["EVENT", subID, event], ["EOSE", subID], ["OK", id, ok, msg], and
// ["NOTICE", msg] shapes.
func (c *conn) dispatch(raw []byte) {
	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil || len(frame) == 0 {
		return
	}
	var label string
	if err := json.Unmarshal(frame[0], &label); err != nil {
		return
	}
	switch label {
	case "EVENT":
		if len(frame) < 3 {
			return
		}
		var subID string
		if err := json.Unmarshal(frame[1], &subID); err != nil {
			return
		}
		var ev event.Event
		if err := json.Unmarshal(frame[2], &ev); err != nil {
			return
		}
		c.subsMu.RLock()
		ch := c.subs[subID]
		c.subsMu.RUnlock()
		if ch != nil {
			select {
			case ch <- &ev:
			default:
			}
		}
	case "EOSE":
		if len(frame) < 2 {
			return
		}
		var subID string
		if err := json.Unmarshal(frame[1], &subID); err != nil {
			return
		}
		c.subsMu.RLock()
		done := c.eose[subID]
		c.subsMu.RUnlock()
		if done != nil {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	case "OK":
		if len(frame) < 3 {
			return
		}
		var id string
		var ok bool
		var msg string
		_ = json.Unmarshal(frame[1], &id)
		_ = json.Unmarshal(frame[2], &ok)
		if len(frame) > 3 {
			_ = json.Unmarshal(frame[3], &msg)
		}
		c.pubMu.Lock()
		waiter := c.pub[id]
		c.pubMu.Unlock()
		if waiter != nil {
			select {
			case waiter <- okResult{ok: ok, message: msg}:
			default:
			}
		}
	}
}

func (c *conn) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return fmt.Errorf("relay: not connected to %s", c.url)
	}
	return ws.WriteJSON(v)
}

func (c *conn) teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws != nil {
		_ = c.ws.Close()
		c.ws = nil
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() { close(c.closed) })
	c.teardown()
}
