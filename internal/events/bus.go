package events

import (
	"sync"
	"time"
)

// EventType represents the kinds of events the engine publishes.
type EventType string

const (
	EventCycleStarted   EventType = "CYCLE_STARTED"
	EventCycleCompleted EventType = "CYCLE_COMPLETED"
	EventDecision       EventType = "DECISION"
	EventTradeOpened    EventType = "TRADE_OPENED"
	EventTradeClosed    EventType = "TRADE_CLOSED"
	EventOrderFailed    EventType = "ORDER_FAILED"
	EventInvalidation   EventType = "INVALIDATION_TRIGGERED"
	EventBreakerTripped EventType = "BREAKER_TRIPPED"
	EventSymbolSkipped  EventType = "SYMBOL_SKIPPED"
)

// Event is one published occurrence.
type Event struct {
	Type      EventType              `json:"type"`
	Symbol    string                 `json:"symbol,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Subscriber is a function that handles events.
type Subscriber func(Event)

// Bus fans events out to subscribers. Handlers run on their own goroutines
// so a slow consumer cannot stall an evaluation cycle.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a handler for every event.
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, subscriber)
}

// Publish delivers an event to all matching subscribers.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}
