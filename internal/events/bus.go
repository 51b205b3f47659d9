// Package events provides an in-memory event bus using Go channels.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrBusClosed = errors.New("event bus is closed")
)

// Event represents an event in the system.
type Event struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id,omitempty"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    EventSource    `json:"source"`
	Payload   map[string]any `json:"payload"`
}

var eventIDCounter uint64

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType, source EventSource, payload map[string]any) Event {
	return Event{
		ID:        generateEventID(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    source,
		Payload:   payload,
	}
}

func generateEventID() string {
	seq := atomic.AddUint64(&eventIDCounter, 1)
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), seq)
}

// Subscriber is a function that receives events.
type Subscriber func(Event)

// subscription delivers matching events to its handler in publish order.
type subscription struct {
	id         int
	eventTypes []EventType
	handler    Subscriber
	queue      chan Event
	stop       chan struct{}
}

func (s *subscription) run() {
	for {
		select {
		case e := <-s.queue:
			s.handler(e)
		case <-s.stop:
			return
		}
	}
}

func (s *subscription) matches(event Event) bool {
	if len(s.eventTypes) == 0 {
		return true
	}
	for _, t := range s.eventTypes {
		if t == event.Type {
			return true
		}
	}
	return false
}

// Bus is an in-memory event bus. Each subscriber receives events in the order
// they were published; a subscriber that falls behind by more than the
// buffer size loses events.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]*subscription
	nextID      int
	eventChan   chan Event
	bufferSize  int
	ringBuffer  *RingBuffer
	closed      bool
	done        chan struct{}
}

// NewBus creates a new event bus.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	b := &Bus{
		subscribers: make(map[int]*subscription),
		eventChan:   make(chan Event, bufferSize),
		bufferSize:  bufferSize,
		ringBuffer:  NewRingBuffer(bufferSize),
		done:        make(chan struct{}),
	}
	go b.dispatch()
	return b
}

func (b *Bus) dispatch() {
	for {
		select {
		case event := <-b.eventChan:
			b.ringBuffer.Add(event)
			b.notifySubscribers(event)
		case <-b.done:
			return
		}
	}
}

func (b *Bus) notifySubscribers(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if !sub.matches(event) {
			continue
		}
		select {
		case sub.queue <- event:
		default:
			slog.Warn("event bus subscriber lagging, event dropped", "type", event.Type, "subscriber", sub.id)
		}
	}
}

// Publish sends an event to the bus without blocking.
func (b *Bus) Publish(event Event) {
	if b.isClosed() {
		return
	}

	select {
	case b.eventChan <- event:
	default:
		slog.Warn("event bus full, event dropped", "type", event.Type)
	}
}

// PublishAsync sends an event, waiting for room until ctx is done.
func (b *Bus) PublishAsync(ctx context.Context, event Event) error {
	if b.isClosed() {
		return ErrBusClosed
	}

	select {
	case b.eventChan <- event:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// Subscribe registers a handler for specific event types (all types when
// none are given). Returns an unsubscribe function.
func (b *Bus) Subscribe(handler Subscriber, eventTypes ...EventType) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	sub := &subscription{
		id:         id,
		eventTypes: eventTypes,
		handler:    handler,
		queue:      make(chan Event, b.bufferSize),
		stop:       make(chan struct{}),
	}
	b.subscribers[id] = sub
	go sub.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
			close(sub.stop)
		})
	}
}

// SubscribeChan returns a channel that receives events.
func (b *Bus) SubscribeChan(bufSize int, eventTypes ...EventType) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	var mu sync.Mutex
	closed := false

	unsubscribe := b.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- e:
		default:
		}
	}, eventTypes...)

	return ch, func() {
		unsubscribe()
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			close(ch)
		}
	}
}

// History returns recent events from the ring buffer.
func (b *Bus) History(limit int) []Event {
	return b.ringBuffer.Get(limit)
}

// Close shuts down the event bus and every subscriber.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
	for id, sub := range b.subscribers {
		close(sub.stop)
		delete(b.subscribers, id)
	}
}
