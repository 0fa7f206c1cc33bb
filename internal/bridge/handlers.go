package bridge

import (
	"fmt"
	"reflect"
	"sync"
)

// Event is a category of session event applications can subscribe to.
type Event string

// The closed set of event categories.
const (
	EventConnect    Event = "connect"
	EventDisconnect Event = "disconnect"
	EventUpdate     Event = "update"
)

// Update carries the payload of a dispatched event.
//
// For EventUpdate it holds the decoded message; for EventConnect and
// EventDisconnect all fields are zero.
type Update struct {
	// DeviceID is the device the message concerns, when the topic
	// carries one (see ParseDeviceID). Empty otherwise.
	DeviceID string

	// Topic is the broker topic the message arrived on.
	Topic string

	// Data is the decoded JSON payload.
	Data map[string]any
}

// Handler is an application callback registered for an event category.
//
// Handlers are invoked on their own goroutines (fire-and-forget); the
// session does not wait for them and does not observe their failures.
type Handler func(event Event, update Update)

// Registry holds the ordered application callbacks per event category.
//
// Registration is idempotent: re-adding the same function is a no-op,
// not a duplicate. Handlers are dispatched in registration order.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Registry struct {
	mu       sync.Mutex
	handlers map[Event][]registeredHandler
}

// registeredHandler pairs a handler with its identity key for
// deduplication.
type registeredHandler struct {
	key uintptr
	fn  Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[Event][]registeredHandler),
	}
}

// Add registers a handler for an event category.
//
// Handlers are deduplicated by function identity, so registering the
// same function twice keeps a single entry.
//
// Parameters:
//   - event: One of EventConnect, EventDisconnect, EventUpdate
//   - handler: Callback to invoke when the event fires
//
// Returns:
//   - error: ErrUnknownEvent for an unrecognised category, or an error
//     for a nil handler
func (r *Registry) Add(event Event, handler Handler) error {
	switch event {
	case EventConnect, EventDisconnect, EventUpdate:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	if handler == nil {
		return fmt.Errorf("handler for %q must not be nil", event)
	}

	key := reflect.ValueOf(handler).Pointer()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reg := range r.handlers[event] {
		if reg.key == key {
			return nil
		}
	}
	r.handlers[event] = append(r.handlers[event], registeredHandler{key: key, fn: handler})
	return nil
}

// handlersFor returns a snapshot of the handlers for an event category,
// in registration order.
func (r *Registry) handlersFor(event Event) []Handler {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs := r.handlers[event]
	out := make([]Handler, len(regs))
	for i, reg := range regs {
		out[i] = reg.fn
	}
	return out
}

// Count returns the number of handlers registered for an event category.
func (r *Registry) Count(event Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers[event])
}
