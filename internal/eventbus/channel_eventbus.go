// Package eventbus provides event bus implementations
package eventbus

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
)

// ChannelEventBus is an implementation of EventBus backed by a buffered
// channel drained by a fixed pool of worker goroutines. Handlers run outside
// the publisher's goroutine; a slow handler never blocks the orchestrator.
type ChannelEventBus struct {
	// subscribers maps event types to a map of subscription IDs to handlers
	subscribers map[EventType]map[string]EventHandler

	// allSubscribers receive every event regardless of type
	allSubscribers map[string]EventHandler

	eventChan chan eventWithContext
	done      chan struct{}
	closed    bool

	wg    sync.WaitGroup
	mutex sync.RWMutex

	bufferSize  int
	workerCount int
}

// eventWithContext bundles an event with the context it was published under
type eventWithContext struct {
	ctx   context.Context
	event Event
}

// ChannelEventBusOption configures the channel-based event bus
type ChannelEventBusOption func(*ChannelEventBus)

// WithBufferSize sets the event channel buffer size
func WithBufferSize(size int) ChannelEventBusOption {
	return func(b *ChannelEventBus) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

// WithWorkerCount sets the number of dispatch workers
func WithWorkerCount(count int) ChannelEventBusOption {
	return func(b *ChannelEventBus) {
		if count > 0 {
			b.workerCount = count
		}
	}
}

// NewChannelEventBus creates a running channel event bus.
func NewChannelEventBus(options ...ChannelEventBusOption) *ChannelEventBus {
	bus := &ChannelEventBus{
		subscribers:    make(map[EventType]map[string]EventHandler),
		allSubscribers: make(map[string]EventHandler),
		done:           make(chan struct{}),
		bufferSize:     100,
		workerCount:    5,
	}

	for _, option := range options {
		option(bus)
	}

	bus.eventChan = make(chan eventWithContext, bus.bufferSize)

	for i := 0; i < bus.workerCount; i++ {
		bus.wg.Add(1)
		go bus.worker()
	}

	return bus
}

// worker drains the event channel until the bus is closed.
func (b *ChannelEventBus) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case ec, ok := <-b.eventChan:
			if !ok {
				return
			}
			b.dispatch(ec.ctx, ec.event)
		}
	}
}

// dispatch delivers an event to matching subscribers. Handler errors are
// logged, never propagated back to the publisher.
func (b *ChannelEventBus) dispatch(ctx context.Context, event Event) {
	b.mutex.RLock()
	handlers := make([]EventHandler, 0, len(b.allSubscribers))
	for _, h := range b.allSubscribers {
		handlers = append(handlers, h)
	}
	if typed, ok := b.subscribers[event.Type()]; ok {
		for _, h := range typed {
			handlers = append(handlers, h)
		}
	}
	b.mutex.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			log.Printf("Event handler error (type: %s): %v", event.Type(), err)
		}
	}
}

// Publish sends an event to all subscribed handlers. It drops the event and
// returns an error if the bus is closed or the buffer is full.
func (b *ChannelEventBus) Publish(ctx context.Context, event Event) error {
	b.mutex.RLock()
	closed := b.closed
	b.mutex.RUnlock()

	if closed {
		return fmt.Errorf("event bus is closed")
	}

	select {
	case b.eventChan <- eventWithContext{ctx: ctx, event: event}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("event bus buffer full, dropped event of type %s", event.Type())
	}
}

// Subscribe registers a handler for specific event types.
func (b *ChannelEventBus) Subscribe(eventTypes []EventType, handler EventHandler) (string, error) {
	if handler == nil {
		return "", fmt.Errorf("handler cannot be nil")
	}
	if len(eventTypes) == 0 {
		return "", fmt.Errorf("at least one event type is required")
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return "", fmt.Errorf("event bus is closed")
	}

	id := uuid.New().String()
	for _, et := range eventTypes {
		if b.subscribers[et] == nil {
			b.subscribers[et] = make(map[string]EventHandler)
		}
		b.subscribers[et][id] = handler
	}
	return id, nil
}

// SubscribeAll registers a handler for all event types.
func (b *ChannelEventBus) SubscribeAll(handler EventHandler) (string, error) {
	if handler == nil {
		return "", fmt.Errorf("handler cannot be nil")
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return "", fmt.Errorf("event bus is closed")
	}

	id := uuid.New().String()
	b.allSubscribers[id] = handler
	return id, nil
}

// Unsubscribe removes a subscription by ID.
func (b *ChannelEventBus) Unsubscribe(subscriptionID string) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	found := false
	if _, ok := b.allSubscribers[subscriptionID]; ok {
		delete(b.allSubscribers, subscriptionID)
		found = true
	}
	for et, handlers := range b.subscribers {
		if _, ok := handlers[subscriptionID]; ok {
			delete(handlers, subscriptionID)
			found = true
		}
		if len(handlers) == 0 {
			delete(b.subscribers, et)
		}
	}

	if !found {
		return fmt.Errorf("subscription '%s' not found", subscriptionID)
	}
	return nil
}

// Close shuts down the event bus and waits for in-flight dispatches.
func (b *ChannelEventBus) Close() error {
	b.mutex.Lock()
	if b.closed {
		b.mutex.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	b.mutex.Unlock()

	b.wg.Wait()
	return nil
}
