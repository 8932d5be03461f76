package bus

import (
	"strings"
	"sync"
	"time"
)

// Bus is the in-process publish/subscribe surface between the sync core's
// components. It is the only push surface the core exposes; everything else
// is pull.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	prefix string
	ch     chan Event
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Emit publishes a payload under the given kind, stamping the event with the
// current time. This is the publish path the core's components use.
func (b *Bus) Emit(kind string, payload any) {
	b.Publish(Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

// Publish sends an event to all subscribers whose prefix matches event.Kind.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.prefix) {
			select {
			case sub.ch <- evt:
			default:
				// Drop event if subscriber is full (non-blocking).
			}
		}
	}
}

// Subscribe returns a channel that receives events whose kind starts with
// the given prefix, e.g. "sync." receives every sync event. bufSize controls
// the channel buffer. Returns the channel and an unsubscribe function.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{prefix: prefix, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
