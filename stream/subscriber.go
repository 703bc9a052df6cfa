package stream

import (
	"sync"
	"sync/atomic"
)

// Subscriber receives events from the addresses it is subscribed to.
// Delivery is non-blocking: an event that doesn't fit in the buffer is
// dropped rather than stalling the publisher.
type Subscriber struct {
	// id uniquely identifies this subscriber.
	id string

	// ch is the buffered channel events are sent on.
	ch chan *Event

	// addresses tracks which addresses this subscriber is on.
	addresses map[string]struct{}
	mu        sync.RWMutex

	// filter is an optional predicate. If set, only events
	// matching the filter are delivered.
	filter func(*Event) bool

	// dropped counts events lost to a full buffer.
	dropped atomic.Int64

	// closed prevents double-close of the channel.
	closed atomic.Bool
}

// NewSubscriber creates a subscriber with the given buffer size.
func NewSubscriber(id string, bufferSize int) *Subscriber {
	return &Subscriber{
		id:        id,
		ch:        make(chan *Event, bufferSize),
		addresses: make(map[string]struct{}),
	}
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the read-only event channel.
func (s *Subscriber) C() <-chan *Event { return s.ch }

// Dropped returns the number of events lost to a full buffer.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// SetFilter sets an optional event filter predicate.
func (s *Subscriber) SetFilter(fn func(*Event) bool) {
	s.filter = fn
}

// addAddress records that this subscriber is on the given address.
func (s *Subscriber) addAddress(address string) {
	s.mu.Lock()
	s.addresses[address] = struct{}{}
	s.mu.Unlock()
}

// removeAddress removes an address from the subscriber's tracked set.
func (s *Subscriber) removeAddress(address string) {
	s.mu.Lock()
	delete(s.addresses, address)
	s.mu.Unlock()
}

// Addresses returns a copy of all subscribed addresses.
func (s *Subscriber) Addresses() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.addresses))
	for a := range s.addresses {
		out = append(out, a)
	}
	return out
}

// send attempts to deliver an event to the subscriber.
// Returns false if the event was dropped (filter mismatch or full buffer).
func (s *Subscriber) send(evt *Event) bool {
	if s.closed.Load() {
		return false
	}

	if s.filter != nil && !s.filter(evt) {
		return false
	}

	select {
	case s.ch <- evt:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Close closes the subscriber channel. Safe to call multiple times.
func (s *Subscriber) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}
