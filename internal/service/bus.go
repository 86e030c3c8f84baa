package service

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Resources published on the bus.
const (
	ResourceLayers    = "layers"
	ResourceSelection = "selection"
	ResourceTiles     = "tiles"
)

// Event reports a change a client may want to react to: a layer
// configuration mutation, a feature selection or a finished tile batch.
type Event struct {
	Resource string         // e.g. "layers", "selection"
	Action   string         // "created", "selected", "loaded", ...
	ID       string         // resource or feature ID
	Archive  string         // archive the event concerns, if any
	Layer    string         // vector layer, for selection events
	Data     map[string]any // extra payload
}

// EventBus is a simple fan-out pub/sub for change events.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event]struct{})}
}

// Publish sends an event to all subscribers (non-blocking).
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			log.WithFields(log.Fields{"resource": e.Resource, "action": e.Action}).Debug("subscriber too slow, dropping event")
		}
	}
}

// Subscribe returns a buffered channel that receives events.
func (b *EventBus) Subscribe() chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}
