// Package bus provides the in-process publish/subscribe channel connecting
// the monitor, orchestrator, and UI-layer collaborators.
package bus

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tasklift/autopilot/internal/logging"
	"github.com/tasklift/autopilot/internal/models"
)

// Bus errors.
var (
	ErrDuplicateSubscriber = errors.New("subscriber name already registered")
	ErrSubscriberNotFound  = errors.New("subscriber not found")
)

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine; slow work belongs on the subscriber's side.
type Handler func(event models.Event)

// Bus fans events out to named subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]Handler
	logger      zerolog.Logger
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string]Handler),
		logger:      logging.Component("bus"),
	}
}

// Subscribe registers a named handler. Names must be unique so a
// subscriber can later be removed without holding a handle.
func (b *Bus) Subscribe(name string, handler Handler) error {
	if name == "" || handler == nil {
		return errors.New("subscriber name and handler are required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[name]; exists {
		return ErrDuplicateSubscriber
	}
	b.subscribers[name] = handler
	return nil
}

// Unsubscribe removes a named handler.
func (b *Bus) Unsubscribe(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[name]; !exists {
		return ErrSubscriberNotFound
	}
	delete(b.subscribers, name)
	return nil
}

// Publish delivers the event to every subscriber. A panicking subscriber
// is logged and skipped so it cannot take down the publisher.
func (b *Bus) Publish(event models.Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subscribers))
	for _, h := range b.subscribers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(h, event)
	}
}

func (b *Bus) deliver(h Handler, event models.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Interface("panic", r).
				Str("event_type", string(event.Type)).
				Msg("subscriber panicked")
		}
	}()
	h(event)
}
