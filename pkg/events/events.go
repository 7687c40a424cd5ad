package events

import (
	"sync"
	"time"

	"github.com/cuemby/shiftkeeper/pkg/types"
	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventAttendanceCreated  EventType = "attendance.created"
	EventAttendancePresent  EventType = "attendance.present"
	EventAttendanceAbsent   EventType = "attendance.absent"
	EventAttendanceClosed   EventType = "attendance.closed"
	EventAttendanceExcused  EventType = "attendance.excused"
	EventAttendanceReviewed EventType = "attendance.reviewed"
	EventTickFailed         EventType = "tick.failed"
)

const (
	eventBuffer      = 100
	subscriberBuffer = 50
)

// Event represents a ledger change or reconciler failure
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// NewAttendanceEvent builds an event describing a change to row
func NewAttendanceEvent(eventType EventType, row *types.ShiftAttendance, message string) *Event {
	return &Event{
		Type:    eventType,
		Message: message,
		Metadata: map[string]string{
			"attendance_id": row.ID,
			"occurrence_id": row.ShiftOccurrenceID,
			"user_id":       row.UserID,
			"status":        string(row.Status),
		},
	}
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker fans published events out to subscribers. A nil *Broker accepts
// and discards every event.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, eventBuffer),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker. It is safe to call more than once.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, subscriberBuffer)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription and closes its channel
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish queues an event for delivery. It never blocks the caller: when the
// queue is full or the broker is stopped the event is dropped and Publish
// returns false.
func (b *Broker) Publish(event *Event) bool {
	if b == nil {
		return false
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case <-b.stopCh:
		return false
	default:
	}

	select {
	case b.eventCh <- event:
		return true
	default:
		return false
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
