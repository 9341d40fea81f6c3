// Package relay fans the protocol's publish/subscribe/fetch operations
// out across a pool of nostr-style relay URLs, grounded on the
// teacher's WSTransport (one goroutine-driven WebSocket connection per
// counterparty, a pending-request table keyed by id). Where the
// teacher dialed a single session peer, Pool dials every configured
// relay in parallel and merges their replies.
package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nostrask/askrelay/event"
	"github.com/nostrask/askrelay/internal/logger"
	"github.com/nostrask/askrelay/internal/metrics"
)

// defaultDedupTTL bounds how long a seen event id is remembered for
// cross-relay duplicate suppression. Five minutes covers the slowest
// plausible relay lag between first-seen and last-seen copies of the
// same event.
const defaultDedupTTL = 5 * time.Minute

// Pool is a handle to a set of relay URLs. All operations fan out to
// every connected relay and merge the results; a relay that is down or
// slow degrades the pool's effective coverage but never blocks the
// others.
type Pool struct {
	urls []string
	log  logger.Logger
	dedu *seenSet

	conns map[string]*conn
}

// NewPool dials no connections up front; each connects lazily on first
// use so a pool can be constructed before any relay is known reachable.
func NewPool(urls []string, log logger.Logger) *Pool {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	p := &Pool{
		urls: urls,
		log:  log,
		dedu: newSeenSet(defaultDedupTTL),
		conns: make(map[string]*conn, len(urls)),
	}
	for _, u := range urls {
		p.conns[u] = newConn(u, log)
	}
	return p
}

// Close tears down every connection and stops the pool's dedup GC.
func (p *Pool) Close() {
	for _, c := range p.conns {
		c.close()
	}
	p.dedu.close()
}

// TrustedValidate validates a separately-signed inner event a caller
// has decrypted out of another event's content (a BidPayload inside a
// BidEnvelope, as client.decodeBid does). The pool
// itself never validates outer events it relays — that is the relay's
// job per the wire protocol — this hook exists only for callers that
// need to trust an embedded inner signature before acting on it.
func (p *Pool) TrustedValidate(ev *event.Event) error {
	return ev.Validate()
}

// Publish sends ev to every relay in the pool in parallel and returns
// the subset of URLs that accepted it (replied OK=true, or accepted no
// reply within the per-relay timeout because some relays never send
// OK for events outside a subscription they track).
func (p *Pool) Publish(ctx context.Context, ev *event.Event) ([]string, error) {
	if ev.Sig == "" {
		return nil, fmt.Errorf("relay: cannot publish unsigned event")
	}
	type result struct {
		url      string
		accepted bool
	}
	results := make([]result, len(p.urls))

	g, gctx := errgroup.WithContext(ctx)
	for i, u := range p.urls {
		i, u := i, u
		g.Go(func() error {
			ok := p.publishOne(gctx, u, ev)
			results[i] = result{url: u, accepted: ok}
			return nil
		})
	}
	_ = g.Wait()

	var accepted []string
	for _, r := range results {
		if r.accepted {
			accepted = append(accepted, r.url)
		}
	}
	kind := fmt.Sprintf("%d", ev.Kind)
	if len(accepted) == 0 {
		metrics.EventsPublished.WithLabelValues(kind, "rejected").Inc()
		return nil, fmt.Errorf("relay: no relay in pool accepted event %s", ev.ID)
	}
	metrics.EventsPublished.WithLabelValues(kind, "accepted").Inc()
	metrics.EventSize.Observe(float64(len(ev.Content)))
	return accepted, nil
}

func (p *Pool) publishOne(ctx context.Context, url string, ev *event.Event) bool {
	c := p.conns[url]
	if err := c.ensureConnected(ctx); err != nil {
		p.log.Warn("relay unreachable", logger.String("url", url), logger.Error(err))
		return false
	}

	wait := make(chan okResult, 1)
	c.pubMu.Lock()
	c.pub[ev.ID] = wait
	c.pubMu.Unlock()
	defer func() {
		c.pubMu.Lock()
		delete(c.pub, ev.ID)
		c.pubMu.Unlock()
	}()

	if err := c.write([]any{"EVENT", ev}); err != nil {
		p.log.Warn("relay publish write failed", logger.String("url", url), logger.Error(err))
		return false
	}

	select {
	case r := <-wait:
		if !r.ok {
			p.log.Debug("relay rejected event", logger.String("url", url), logger.String("reason", r.message))
		}
		return r.ok
	case <-time.After(5 * time.Second):
		// Many relays never reply OK for subscription-less publishes;
		// treat a quiet accept as success rather than failing the whole
		// publish on a strict relay's silence.
		return true
	case <-ctx.Done():
		return false
	}
}

// Subscription is a live, pool-wide feed of events matching a filter,
// deduplicated across every relay that delivers a copy.
type Subscription struct {
	id      string
	pool    *Pool
	Events  chan *event.Event
	EOSE    chan struct{}
	cancel  func()
}

// Close ends the subscription and releases its per-relay REQ state.
func (s *Subscription) Close() {
	s.cancel()
}

// Subscribe opens a standing REQ against every relay in the pool.
// Events arrive on the returned Subscription's Events channel as they
// are delivered; EOSE fires once every relay has reported end-of-
// stored-events (a relay that never connects counts as immediately
// past EOSE for this purpose, not as a permanent stall). Delivered
// events are re-checked against filter client-side before forwarding,
// since a relay is free to over-deliver and callers of WaitForEvent
// trust the first thing that arrives.
func (p *Pool) Subscribe(ctx context.Context, filter event.Filter) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()
	sub := &Subscription{
		id:     id,
		pool:   p,
		Events: make(chan *event.Event, 64),
		EOSE:   make(chan struct{}),
		cancel: cancel,
	}

	wireFilter := toWireFilter(filter)
	eoseCount := 0
	eoseTarget := len(p.urls)
	eoseCh := make(chan struct{}, len(p.urls))
	seen := newSeenSet(defaultDedupTTL)

	for _, u := range p.urls {
		c := p.conns[u]
		if err := c.ensureConnected(subCtx); err != nil {
			p.log.Warn("relay unreachable on subscribe", logger.String("url", u), logger.Error(err))
			eoseCh <- struct{}{}
			continue
		}
		perRelayEvents := make(chan *event.Event, 64)
		perRelayEOSE := make(chan struct{}, 1)
		c.subsMu.Lock()
		c.subs[id] = perRelayEvents
		c.eose[id] = perRelayEOSE
		c.subsMu.Unlock()

		if err := c.write([]any{"REQ", id, wireFilter}); err != nil {
			p.log.Warn("relay REQ write failed", logger.String("url", u), logger.Error(err))
			eoseCh <- struct{}{}
			continue
		}

		go func(u string) {
			for {
				select {
				case ev := <-perRelayEvents:
					if !filter.Matches(ev) {
						continue
					}
					if seen.seen(ev.ID) {
						continue
					}
					metrics.EventsReceived.WithLabelValues(fmt.Sprintf("%d", ev.Kind)).Inc()
					select {
					case sub.Events <- ev:
					case <-subCtx.Done():
						return
					}
				case <-perRelayEOSE:
					eoseCh <- struct{}{}
				case <-subCtx.Done():
					return
				}
			}
		}(u)
	}

	go func() {
		for eoseCount < eoseTarget {
			select {
			case <-eoseCh:
				eoseCount++
			case <-subCtx.Done():
				return
			}
		}
		close(sub.EOSE)
	}()

	go func() {
		<-subCtx.Done()
		seen.close()
		for _, u := range p.urls {
			c := p.conns[u]
			c.subsMu.Lock()
			delete(c.subs, id)
			delete(c.eose, id)
			c.subsMu.Unlock()
			_ = c.write([]any{"CLOSE", id})
		}
	}()

	return sub, nil
}

// Fetch runs a one-shot historic query: subscribe, collect every event
// delivered before EOSE (or timeout), then close.
func (p *Pool) Fetch(ctx context.Context, filter event.Filter, timeout time.Duration) ([]*event.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sub, err := p.Subscribe(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	var out []*event.Event
	for {
		select {
		case ev := <-sub.Events:
			out = append(out, ev)
		case <-sub.EOSE:
			// Drain whatever arrived in the same instant as EOSE.
			for {
				select {
				case ev := <-sub.Events:
					out = append(out, ev)
				default:
					return out, nil
				}
			}
		case <-ctx.Done():
			return out, nil
		}
	}
}

// WaitForEvent subscribes and resolves on the first matching event, or
// returns a Timeout error once the deadline passes with nothing seen.
func (p *Pool) WaitForEvent(ctx context.Context, filter event.Filter, timeout time.Duration) (*event.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sub, err := p.Subscribe(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	select {
	case ev := <-sub.Events:
		return ev, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("relay: wait_for_event timed out after %s", timeout)
	}
}

// toWireFilter renders a Filter into the JSON-object shape a nostr-
// style REQ frame expects: #-prefixed single-letter tag keys, unix
// timestamps, omitted zero fields.
func toWireFilter(f event.Filter) map[string]any {
	w := make(map[string]any)
	if len(f.Kinds) > 0 {
		kinds := make([]int, len(f.Kinds))
		for i, k := range f.Kinds {
			kinds[i] = int(k)
		}
		w["kinds"] = kinds
	}
	if len(f.Authors) > 0 {
		w["authors"] = f.Authors
	}
	if len(f.IDs) > 0 {
		w["ids"] = f.IDs
	}
	for name, values := range f.Tags {
		w["#"+name] = values
	}
	if !f.Since.IsZero() {
		w["since"] = f.Since.Unix()
	}
	if !f.Until.IsZero() {
		w["until"] = f.Until.Unix()
	}
	if f.Limit > 0 {
		w["limit"] = f.Limit
	}
	return w
}
