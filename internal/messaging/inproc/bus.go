package inproc

import (
	"errors"
	"fmt"
	"sync"

	"neural_consensus/internal/domain"
)

var (
	ErrSubscriberNotRegistered = errors.New("subscriber is not registered in bus")
	ErrSubscriberQueueFull     = errors.New("subscriber queue is full")
)

type Handler func(domain.RunEvent)

type handlerEntry struct {
	name string
	fn   Handler
}

// Bus fans out run lifecycle events. Handlers run synchronously on the
// publishing goroutine in subscription order; channel subscribers get a
// non-blocking send after all handlers returned.
type Bus struct {
	mu       sync.RWMutex
	handlers []handlerEntry
	subs     map[string]chan domain.RunEvent
	order    []string
	buffer   int
}

func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subs:   make(map[string]chan domain.RunEvent),
		buffer: buffer,
	}
}

// Subscribe adds a synchronous handler. A second call with the same name
// replaces the handler in place.
func (b *Bus) Subscribe(name string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.handlers {
		if b.handlers[i].name == name {
			b.handlers[i].fn = fn
			return
		}
	}
	b.handlers = append(b.handlers, handlerEntry{name: name, fn: fn})
}

func (b *Bus) Register(name string) <-chan domain.RunEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[name]; ok {
		return ch
	}
	ch := make(chan domain.RunEvent, b.buffer)
	b.subs[name] = ch
	b.order = append(b.order, name)
	return ch
}

func (b *Bus) Unregister(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.handlers {
		if b.handlers[i].name == name {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return nil
		}
	}
	ch, ok := b.subs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSubscriberNotRegistered, name)
	}
	delete(b.subs, name)
	for i, n := range b.order {
		if n == name {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	close(ch)
	return nil
}

// Publish runs every handler, then offers ev to each channel subscriber.
// Channel sends happen under the read lock so Unregister cannot close a
// channel mid-send.
func (b *Bus) Publish(ev domain.RunEvent) error {
	b.mu.RLock()
	handlers := append([]handlerEntry(nil), b.handlers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h.fn(ev)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	var errs []error
	for _, name := range b.order {
		select {
		case b.subs[name] <- ev:
		default:
			errs = append(errs, fmt.Errorf("%w: %s", ErrSubscriberQueueFull, name))
		}
	}
	return errors.Join(errs...)
}
