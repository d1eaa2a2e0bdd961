// Package fanout distributes committed authority state changes to
// interested sinks. Delivery is best-effort: a slow or failing sink never
// blocks or fails the state change that produced the event.
package fanout

import (
	"log"
	"sync"
	"time"
)

// Event types emitted by the authority service.
const (
	EventClaimNominated    = "claim.nominated"
	EventClaimEndorsed     = "claim.endorsed"
	EventClaimActivated    = "claim.activated"
	EventClaimSuspended    = "claim.suspended"
	EventClaimReinstated   = "claim.reinstated"
	EventDelegateInvited   = "delegate.invited"
	EventDelegateRequested = "delegate.requested"
	EventDelegateAccepted  = "delegate.accepted"
	EventDelegateDeclined  = "delegate.declined"
	EventDelegateRevoked   = "delegate.revoked"
	EventInviteSent        = "invite.sent"
)

// Event describes one committed authority state change. Payloads carry
// identifiers only; consumers fetch current state through the read API.
type Event struct {
	Type      string    `json:"type"`
	KingdomID string    `json:"kingdom_id"`
	ClaimID   string    `json:"claim_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	At        time.Time `json:"at"`
}

// Sink receives published events. Implementations must return promptly;
// anything slow belongs behind a buffer owned by the sink.
type Sink interface {
	Deliver(event Event) error
}

// Dispatcher fans events out to registered sinks.
type Dispatcher struct {
	mu    sync.RWMutex
	sinks map[string]Sink
	logf  func(format string, args ...any)
}

// NewDispatcher creates an empty dispatcher. A nil logf falls back to the
// standard logger.
func NewDispatcher(logf func(format string, args ...any)) *Dispatcher {
	if logf == nil {
		logf = log.Printf
	}
	return &Dispatcher{
		sinks: make(map[string]Sink),
		logf:  logf,
	}
}

// Register adds or replaces a named sink.
func (d *Dispatcher) Register(name string, sink Sink) {
	if d == nil || name == "" || sink == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks[name] = sink
}

// Unregister removes a named sink.
func (d *Dispatcher) Unregister(name string) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sinks, name)
}

// Publish delivers the event to every registered sink. Failures are logged
// and dropped.
func (d *Dispatcher) Publish(event Event) {
	if d == nil {
		return
	}
	d.mu.RLock()
	sinks := make(map[string]Sink, len(d.sinks))
	for name, sink := range d.sinks {
		sinks[name] = sink
	}
	d.mu.RUnlock()

	for name, sink := range sinks {
		if err := sink.Deliver(event); err != nil {
			d.logf("authority fanout: deliver %s to %s: %v", event.Type, name, err)
		}
	}
}
