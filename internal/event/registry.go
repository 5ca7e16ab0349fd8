package event

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// HandlerFunc processes a decoded envelope. Implementations are closures that
// decode their own payload type, so dispatch needs no reflection.
type HandlerFunc func(ctx context.Context, env *Envelope) error

// Registry maps event type strings to handler functions. It is populated once
// during startup and read-only afterwards; Register rejects duplicates so two
// components cannot silently fight over an event type.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
	}
}

// Register binds a handler to an event type. Returns an error if the event type
// is already bound.
func (r *Registry) Register(eventType string, handler HandlerFunc) error {
	if eventType == "" {
		return fmt.Errorf("event type must not be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler for %q must not be nil", eventType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[eventType]; exists {
		return fmt.Errorf("handler for %q already registered", eventType)
	}
	r.handlers[eventType] = handler
	return nil
}

// Handler returns the handler bound to the event type, if any.
func (r *Registry) Handler(eventType string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[eventType]
	return h, ok
}

// EventTypes returns all registered event types in stable order. Used by the
// worker to subscribe one bus topic per event type.
func (r *Registry) EventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for eventType := range r.handlers {
		types = append(types, eventType)
	}
	sort.Strings(types)
	return types
}
