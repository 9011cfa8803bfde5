package events

import (
	"fmt"
	"log/slog"
	"sync"
)

// Event types
const (
	DeviceUpdated      = "device.updated"
	DeviceDeleted      = "device.deleted"
	DeviceSynchronized = "device.synchronized"
	DeviceRenamed      = "device.renamed"
	GroupCreated       = "group.created"
	GroupRemoved       = "group.removed"
	GroupRenamed       = "group.renamed"
)

// Event is a registry lifecycle notification.
type Event struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	On      bool   `json:"on"`
	ID      uint32 `json:"id,omitempty"`
	OldName string `json:"old_name,omitempty"`
}

// Handler is a callback for events. A non-nil error stops delivery and is
// returned to the publisher.
type Handler func(Event) error

// Subscription is the registration handle returned by Subscribe.
type Subscription struct {
	bus  *Bus
	id   uint64
	once sync.Once
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.once.Do(func() { s.bus.remove(s.id) })
}

type entry struct {
	id        uint64
	eventType string // empty = all events
	handler   Handler
}

// Bus is a synchronous publish/subscribe mechanism. Handlers run in
// registration order on the publisher's goroutine.
type Bus struct {
	mu      sync.RWMutex
	entries []entry
	nextID  uint64
	logger  *slog.Logger
}

// NewBus creates a new event bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger.With("component", "events")}
}

// Subscribe registers a handler for a specific event type.
func (b *Bus) Subscribe(eventType string, handler Handler) *Subscription {
	return b.add(eventType, handler)
}

// SubscribeAll registers a handler that receives all events. It runs after
// the handlers subscribed to the specific type.
func (b *Bus) SubscribeAll(handler Handler) *Subscription {
	return b.add("", handler)
}

func (b *Bus) add(eventType string, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.entries = append(b.entries, entry{id: id, eventType: eventType, handler: handler})
	return &Subscription{bus: b, id: id}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.entries {
		if e.id == id {
			b.entries = append(b.entries[:i:i], b.entries[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered handlers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Publish delivers an event to every matching handler in registration order.
// The first handler error aborts delivery and is returned. Panics are not
// recovered.
func (b *Bus) Publish(event Event) error {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.entries))
	for _, e := range b.entries {
		if e.eventType == event.Type {
			handlers = append(handlers, e.handler)
		}
	}
	for _, e := range b.entries {
		if e.eventType == "" {
			handlers = append(handlers, e.handler)
		}
	}
	b.mu.RUnlock()

	b.logger.Debug("publish", "type", event.Type, "name", event.Name, "handlers", len(handlers))

	for _, h := range handlers {
		if err := h(event); err != nil {
			return fmt.Errorf("event %s: %w", event.Type, err)
		}
	}
	return nil
}
