// Package channels hosts the live authority update surface: a guarded set
// of per-kingdom subscription channels fed by the fanout dispatcher, plus
// the websocket transport that delivers them to dashboard clients.
package channels

import (
	"log"
	"strings"
	"sync"

	"github.com/Kingshot-Atlas/Kingshot-Atlas-sub002/internal/services/authority/fanout"
)

// eventBufferSize bounds each subscriber's pending event queue. A full
// queue drops the event rather than stalling delivery to other peers.
const eventBufferSize = 16

// Subscription is one subscriber's view of a kingdom channel. Events stops
// yielding when the hub unsubscribes the reader.
type Subscription struct {
	kingdomID string
	events    chan fanout.Event
}

// KingdomID names the channel the subscription belongs to.
func (s *Subscription) KingdomID() string {
	if s == nil {
		return ""
	}
	return s.kingdomID
}

// Events yields delivered events until the subscription is closed.
func (s *Subscription) Events() <-chan fanout.Event {
	if s == nil {
		return nil
	}
	return s.events
}

// Hub multiplexes authority events onto per-kingdom channels. Channel
// registration is guard-gated; the hub itself is a fanout sink.
type Hub struct {
	mu       sync.Mutex
	guard    *Guard
	channels map[string]map[*Subscription]struct{}
	logf     func(format string, args ...any)
}

// NewHub creates a hub backed by the guard. A nil guard gets the default
// limit; a nil logf falls back to the standard logger.
func NewHub(guard *Guard, logf func(format string, args ...any)) *Hub {
	if guard == nil {
		guard = NewGuard(0)
	}
	if logf == nil {
		logf = log.Printf
	}
	return &Hub{
		guard:    guard,
		channels: make(map[string]map[*Subscription]struct{}),
		logf:     logf,
	}
}

// Subscribe joins the kingdom's channel, opening it if needed. A false
// return means the guard is saturated and the caller should fall back to
// polling.
func (h *Hub) Subscribe(kingdomID string) (*Subscription, bool) {
	if h == nil {
		return nil, false
	}
	kingdomID = strings.TrimSpace(kingdomID)
	if kingdomID == "" {
		return nil, false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	subs, open := h.channels[kingdomID]
	if !open {
		if !h.guard.Acquire(kingdomID) {
			return nil, false
		}
		subs = make(map[*Subscription]struct{})
		h.channels[kingdomID] = subs
	}

	sub := &Subscription{
		kingdomID: kingdomID,
		events:    make(chan fanout.Event, eventBufferSize),
	}
	subs[sub] = struct{}{}
	return sub, true
}

// Unsubscribe removes the subscription and closes its event stream. The
// last subscriber out closes the channel and releases its guard slot.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if h == nil || sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.channels[sub.kingdomID]
	if !ok {
		return
	}
	if _, member := subs[sub]; !member {
		return
	}
	delete(subs, sub)
	close(sub.events)
	if len(subs) == 0 {
		delete(h.channels, sub.kingdomID)
		h.guard.Release(sub.kingdomID)
	}
}

// Deliver implements fanout.Sink. Events for kingdoms without an open
// channel are discarded; slow subscribers lose events instead of blocking
// the rest of the channel.
func (h *Hub) Deliver(event fanout.Event) error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.channels[event.KingdomID]
	if !ok {
		return nil
	}
	dropped := 0
	for sub := range subs {
		select {
		case sub.events <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logf("authority channels: dropped %s for %d slow subscribers on %s", event.Type, dropped, event.KingdomID)
	}
	return nil
}

// OpenChannels reports how many kingdom channels currently have
// subscribers.
func (h *Hub) OpenChannels() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels)
}
