package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// HandlerFunc is a function that handles an event.
type HandlerFunc func(ctx context.Context, event Event) error

// Bus is an asynchronous publish-subscribe dispatcher. Handlers subscribe to a
// single type or to every type; each delivery runs in its own goroutine.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]handlerEntry
	wildcard []handlerEntry
	stopped  bool
	wg       sync.WaitGroup
}

type handlerEntry struct {
	name    string
	handler HandlerFunc
}

// NewBus creates a new Bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]handlerEntry),
	}
}

// Subscribe registers a handler for one event type. The name identifies the
// handler for Unsubscribe and in logs.
func (b *Bus) Subscribe(eventType EventType, name string, handler HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handlerEntry{name: name, handler: handler})
	log.Debug().Str("event", string(eventType)).Str("handler", name).Msg("subscribed to event")
}

// SubscribeAll registers a handler that receives every event.
func (b *Bus) SubscribeAll(name string, handler HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.wildcard = append(b.wildcard, handlerEntry{name: name, handler: handler})
	log.Debug().Str("handler", name).Msg("subscribed to all events")
}

// Unsubscribe removes a named handler from one event type and from the
// wildcard list.
func (b *Bus) Unsubscribe(eventType EventType, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = without(b.handlers[eventType], name)
	b.wildcard = without(b.wildcard, name)
}

func without(list []handlerEntry, name string) []handlerEntry {
	filtered := make([]handlerEntry, 0, len(list))
	for _, h := range list {
		if h.name != name {
			filtered = append(filtered, h)
		}
	}
	return filtered
}

// targets returns a copy of the handlers interested in eventType.
func (b *Bus) targets(eventType EventType) []handlerEntry {
	typed := b.handlers[eventType]
	out := make([]handlerEntry, 0, len(typed)+len(b.wildcard))
	out = append(out, typed...)
	return append(out, b.wildcard...)
}

// Emit delivers an event to every interested handler without waiting.
// A zero Time is stamped with the current time.
func (b *Bus) Emit(ctx context.Context, event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		return
	}

	for _, h := range b.targets(event.Type) {
		h := h
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.dispatch(ctx, h, event)
		}()
	}
}

// EmitSync delivers an event and waits for all handlers to finish.
// It returns the first handler error.
func (b *Bus) EmitSync(ctx context.Context, event Event) error {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	b.mu.RLock()
	if b.stopped {
		b.mu.RUnlock()
		return nil
	}
	targets := b.targets(event.Type)
	b.mu.RUnlock()

	var (
		firstErr error
		errOnce  sync.Once
		wg       sync.WaitGroup
	)
	for _, h := range targets {
		h := h
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.dispatch(ctx, h, event); err != nil {
				errOnce.Do(func() { firstErr = err })
			}
		}()
	}
	wg.Wait()
	return firstErr
}

func (b *Bus) dispatch(ctx context.Context, h handlerEntry, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("event", string(event.Type)).
				Str("handler", h.name).
				Interface("panic", r).
				Msg("handler panicked")
		}
	}()

	if err = h.handler(ctx, event); err != nil {
		log.Error().
			Err(err).
			Str("event", string(event.Type)).
			Str("handler", h.name).
			Msg("handler returned error")
	}
	return err
}

// Flush waits for every asynchronous delivery started so far.
func (b *Bus) Flush() {
	b.wg.Wait()
}

// Stop rejects further events and waits for in-flight handlers.
func (b *Bus) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()

	b.wg.Wait()
	log.Info().Msg("event bus stopped")
}

// HandlerCount returns the number of handlers that would receive eventType.
func (b *Bus) HandlerCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType]) + len(b.wildcard)
}
