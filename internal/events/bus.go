package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventUnitReceived           EventType = "UNIT_RECEIVED"
	EventSplitsDistributed      EventType = "SPLITS_DISTRIBUTED"
	EventDistributionSuperseded EventType = "DISTRIBUTION_SUPERSEDED"
	EventPayoutStatusChanged    EventType = "PAYOUT_STATUS_CHANGED"
	EventPayoutDue              EventType = "PAYOUT_DUE"
	EventMemberAdded            EventType = "MEMBER_ADDED"
	EventMemberUpdated          EventType = "MEMBER_UPDATED"
	EventMemberDeactivated      EventType = "MEMBER_DEACTIVATED"
	EventError                  EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	// Set timestamp if not provided
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Notify specific subscribers
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	// Notify all-event subscribers
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishPayoutStatusChanged publishes a payout record status transition
func (eb *EventBus) PublishPayoutStatusChanged(recordID, opportunityID, clientID, from, to string) {
	eb.Publish(Event{
		Type: EventPayoutStatusChanged,
		Data: map[string]interface{}{
			"record_id":      recordID,
			"opportunity_id": opportunityID,
			"client_id":      clientID,
			"from":           from,
			"to":             to,
		},
	})
}

// PublishUnitReceived publishes a payment-received event for a unit
func (eb *EventBus) PublishUnitReceived(opportunityID, unitID string, amountCents int64) {
	eb.Publish(Event{
		Type: EventUnitReceived,
		Data: map[string]interface{}{
			"opportunity_id": opportunityID,
			"unit_id":        unitID,
			"amount_cents":   amountCents,
		},
	})
}
