package ring

import (
	"sync"
)

// Events fans ring snapshots out to subscribers. The handoff manager
// publishes a snapshot here every time an exclusion is added so that
// routing and ownership computation react immediately.
//
// Delivery is best-effort: a subscriber whose channel buffer is full
// misses that update rather than blocking the publisher. Subscribers that
// need every transition should size their buffer accordingly or poll the
// ring directly.
type Events struct {
	subs []chan Snapshot
	mu   sync.Mutex // protects subs
}

// NewEvents creates an event fanout with no subscribers.
func NewEvents() *Events {
	return &Events{}
}

// Subscribe registers a new subscriber and returns its channel. The
// buffer size bounds how many undelivered snapshots may queue before
// updates are dropped for this subscriber.
func (e *Events) Subscribe(buffer int) <-chan Snapshot {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, ch)
	return ch
}

// RingUpdate publishes a snapshot to every subscriber without blocking.
func (e *Events) RingUpdate(snap Snapshot) {
	e.mu.Lock()
	subs := append([]chan Snapshot(nil), e.subs...)
	e.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
			// Subscriber is behind; drop this update for it.
		}
	}
}
