package events_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/collabcore/pkg/events"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := events.NewBroker[int]()
	b.Start()
	defer b.Stop()

	subA := b.Subscribe()
	subB := b.Subscribe()
	require.Equal(t, 2, b.SubscriberCount())

	b.Publish(7)

	select {
	case v := <-subA:
		require.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("subA did not receive published value")
	}
	select {
	case v := <-subB:
		require.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("subB did not receive published value")
	}
}

func TestUnsubscribeClosesChannelAndStopsDelivery(t *testing.T) {
	b := events.NewBroker[string]()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)
	require.Equal(t, 0, b.SubscriberCount())

	_, ok := <-sub
	require.False(t, ok, "unsubscribed channel must be closed")
}

func TestUnsubscribeUnknownSubscriberIsNoop(t *testing.T) {
	b := events.NewBroker[string]()
	b.Start()
	defer b.Stop()

	stray := make(events.Subscriber[string], 1)
	require.NotPanics(t, func() { b.Unsubscribe(stray) })
}
