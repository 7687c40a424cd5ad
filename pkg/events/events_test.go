package events

import (
	"testing"
	"time"

	"github.com/cuemby/shiftkeeper/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub Subscriber) *Event {
	t.Helper()
	select {
	case ev := <-sub:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	first := b.Subscribe()
	second := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	row := &types.ShiftAttendance{
		ID: "att-1", ShiftOccurrenceID: "occ-1", UserID: "alice",
		Status: types.AttendanceStatusPresent,
	}
	require.True(t, b.Publish(NewAttendanceEvent(EventAttendancePresent, row, "arrived")))

	for _, sub := range []Subscriber{first, second} {
		ev := receive(t, sub)
		assert.Equal(t, EventAttendancePresent, ev.Type)
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Timestamp.IsZero())
		assert.Equal(t, "att-1", ev.Metadata["attendance_id"])
		assert.Equal(t, "occ-1", ev.Metadata["occurrence_id"])
		assert.Equal(t, "alice", ev.Metadata["user_id"])
		assert.Equal(t, "present", ev.Metadata["status"])
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()

	b.Unsubscribe(sub)
	assert.Zero(t, b.SubscriberCount())

	_, open := <-sub
	assert.False(t, open)

	// A second unsubscribe must not panic on the closed channel
	b.Unsubscribe(sub)
}

func TestBrokerPublishNeverBlocks(t *testing.T) {
	b := NewBroker() // not started, nothing drains the queue

	for i := 0; i < eventBuffer; i++ {
		require.True(t, b.Publish(&Event{Type: EventTickFailed}))
	}
	assert.False(t, b.Publish(&Event{Type: EventTickFailed}))

	b.Stop()
	b.Stop()
	assert.False(t, newStoppedBroker().Publish(&Event{Type: EventTickFailed}))
}

func TestNilBroker(t *testing.T) {
	var b *Broker
	assert.False(t, b.Publish(&Event{Type: EventAttendanceCreated}))
}

// newStoppedBroker returns a broker that has already been stopped
func newStoppedBroker() *Broker {
	b := NewBroker()
	b.Stop()
	return b
}
