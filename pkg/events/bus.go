// Package events carries notifications from the core to the shell.
package events

import (
	"sync"
)

// Event names understood by the shell.
const (
	DownloadInfos = "sparus://downloadinfos"
	Plugins       = "sparus://plugins"
	ConfigReload  = "sparus://config-reload"
)

// Event is a named notification with a JSON-serialisable payload.
type Event struct {
	Name    string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Emitter accepts events without ever blocking the caller.
type Emitter interface {
	Emit(name string, payload interface{})
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(name string, payload interface{})

// Emit calls f.
func (f EmitterFunc) Emit(name string, payload interface{}) { f(name, payload) }

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(string, interface{}) {})

// Bus fans events out to subscribers. Sends are non-blocking: a subscriber
// whose buffer is full misses events but never sees them out of order.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	buffer      int
}

// NewBus creates a bus whose subscriptions buffer up to buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 100
	}
	return &Bus{
		subscribers: make(map[chan Event]struct{}),
		buffer:      buffer,
	}
}

// Emit broadcasts an event to every subscriber.
func (b *Bus) Emit(name string, payload interface{}) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ev := Event{Name: name, Payload: payload}
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			// Slow listeners lose intermediate events
		}
	}
}

// Subscribe creates a new subscription channel.
func (b *Bus) Subscribe() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, b.buffer)
	b.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
