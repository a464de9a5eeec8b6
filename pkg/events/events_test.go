package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(&Event{Type: EventShardStarted, Message: "shard 0 started on n1"})

	select {
	case ev := <-sub:
		assert.Equal(t, EventShardStarted, ev.Type)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestSlowSubscriberDoesNotBlockBroadcast(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	slow := b.Subscribe()
	defer b.Unsubscribe(slow)

	for i := 0; i < 100; i++ {
		b.Publish(&Event{Type: EventBalanceComputed})
	}

	// slow never reads, so its buffer fills and the rest is dropped for it;
	// the run loop keeps going and a later subscriber still gets new events.
	assert.Eventually(t, func() bool { return len(b.eventCh) == 0 }, time.Second, time.Millisecond)
	fast := b.Subscribe()
	defer b.Unsubscribe(fast)
	b.Publish(&Event{Type: EventShardStarted})

	assert.Eventually(t, func() bool {
		for {
			select {
			case ev := <-fast:
				if ev.Type == EventShardStarted {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, time.Millisecond)
	assert.Len(t, slow, cap(slow))
}
