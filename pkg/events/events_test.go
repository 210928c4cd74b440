package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunningBroker(t *testing.T) *Broker {
	t.Helper()
	b := NewBroker()
	b.Start()
	t.Cleanup(b.Stop)
	return b
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := newRunningBroker(t)
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(&Event{Type: EventNodeJoined, Message: "node-1 joined"})

	select {
	case evt := <-sub:
		assert.Equal(t, EventNodeJoined, evt.Type)
		assert.Equal(t, "node-1 joined", evt.Message)
		assert.False(t, evt.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("expected event delivery")
	}
}

func TestPublishStampsTimestampWhenUnset(t *testing.T) {
	b := newRunningBroker(t)
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	before := time.Now()
	b.Publish(&Event{Type: EventAlertFired})

	select {
	case evt := <-sub:
		assert.False(t, evt.Timestamp.Before(before))
	case <-time.After(time.Second):
		t.Fatal("expected event delivery")
	}
}

func TestPublishPreservesExplicitTimestamp(t *testing.T) {
	b := newRunningBroker(t)
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	ts := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	b.Publish(&Event{Type: EventAlertFired, Timestamp: ts})

	select {
	case evt := <-sub:
		assert.True(t, evt.Timestamp.Equal(ts))
	case <-time.After(time.Second):
		t.Fatal("expected event delivery")
	}
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	b := newRunningBroker(t)
	subA := b.Subscribe()
	subB := b.Subscribe()
	defer b.Unsubscribe(subA)
	defer b.Unsubscribe(subB)

	require.Equal(t, 2, b.SubscriberCount())
	b.Publish(&Event{Type: EventQuerySubmitted})

	for _, sub := range []Subscriber{subA, subB} {
		select {
		case evt := <-sub:
			assert.Equal(t, EventQuerySubmitted, evt.Type)
		case <-time.After(time.Second):
			t.Fatal("expected every subscriber to receive the event")
		}
	}
}

func TestUnsubscribeStopsDeliveryAndClosesChannel(t *testing.T) {
	b := newRunningBroker(t)
	sub := b.Subscribe()
	b.Unsubscribe(sub)

	assert.Equal(t, 0, b.SubscriberCount())
	_, open := <-sub
	assert.False(t, open)
}

func TestSubscriberCountTracksSubscriptions(t *testing.T) {
	b := newRunningBroker(t)
	assert.Equal(t, 0, b.SubscriberCount())

	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	b := newRunningBroker(t)
	done := make(chan struct{})
	go func() {
		b.Publish(&Event{Type: EventBackupCreated})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no subscribers")
	}
}

func TestStopStopsDispatchLoop(t *testing.T) {
	b := NewBroker()
	b.Start()
	b.Stop()

	done := make(chan struct{})
	go func() {
		b.Publish(&Event{Type: EventNodeDown})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked after Stop")
	}
}
