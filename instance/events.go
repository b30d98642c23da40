package instance

import (
	"sync"

	"github.com/sushinet/sushid/server"
)

// EventBus fans server.Event values out to every registered
// subscriber, implementing server.EventSink. It replaces the C
// source's `signals[]` array plus generated D-Bus stub code (spec.md
// §9 DESIGN NOTES: "replace with a single typed enum of events and a
// generated binding from a small schema") with a plain typed channel
// per subscriber.
type EventBus struct {
	mu   sync.Mutex
	subs map[int]chan server.Event
	next int
	buf  int

	closed bool
}

// NewEventBus returns an EventBus whose per-subscriber channels are
// buffered to buf events.
func NewEventBus(buf int) *EventBus {
	return &EventBus{subs: make(map[int]chan server.Event), buf: buf}
}

// Emit delivers ev to every current subscriber. A subscriber whose
// buffer is full has the event dropped rather than blocking the
// emitting Server's task (spec.md §7: event delivery is best-effort;
// front-ends query state afterward on CommandError-class conditions).
func (b *EventBus) Emit(ev server.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe function.
func (b *EventBus) Subscribe() (<-chan server.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan server.Event, b.buf)
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Close unsubscribes and closes every listener channel; no further
// Emit calls are delivered. Used during spec.md §6's Exit sequence.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
