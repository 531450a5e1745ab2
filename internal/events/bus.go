// Package events carries roster lifecycle notifications between the
// store, the audit trail, and the watch daemon.
package events

import (
	"sync"
	"time"
)

// EventType identifies what happened to the roster.
type EventType string

const (
	// EventRecordChanged is published after any mutation of a crew record.
	EventRecordChanged EventType = "record_changed"
	// EventRecordAdded is published when a crew member joins the roster.
	EventRecordAdded EventType = "record_added"
	// EventRecordRemoved is published when a crew member leaves the roster.
	EventRecordRemoved EventType = "record_removed"
	// EventRosterLoaded is published after a roster document load.
	EventRosterLoaded EventType = "roster_loaded"
	// EventRosterRecovered is published when a corrupt roster document
	// went through the quarantine ladder.
	EventRosterRecovered EventType = "roster_recovered"
)

// Event is one roster notification.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]any
}

// Subscriber receives events for one event type.
type Subscriber func(Event)

// Bus is a non-blocking publish/subscribe fan-out. Delivery is
// asynchronous through buffered channels; when a subscriber's channel
// is full the event is dropped for that subscriber rather than stalling
// the mutating caller.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
	closed      bool
}

// NewBus creates a bus with the given per-subscriber buffer size.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers fn for one event type and returns an unsubscribe
// function. fn runs on its own goroutine; a panic inside it is
// contained so one bad subscriber cannot take the bus down.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)

	go func() {
		for event := range ch {
			func() {
				defer func() {
					_ = recover()
				}()
				fn(event)
			}()
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subscribers[eventType]
		for i, subCh := range subs {
			if subCh == ch {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
}

// Publish delivers an event to every subscriber of its type without
// blocking the caller.
func (b *Bus) Publish(eventType EventType, data map[string]any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	for _, ch := range b.subscribers[eventType] {
		select {
		case ch <- event:
		default:
			// Channel full; drop rather than stall the mutator.
		}
	}
}

// Close shuts down all subscriber channels. Publishing on a closed bus
// is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for eventType, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, eventType)
	}
}
