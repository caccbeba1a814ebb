package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBroker(t *testing.T) {
	t.Run("delivers to every subscriber", func(t *testing.T) {
		b := NewBroker[string]()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ch1 := b.Subscribe(ctx)
		ch2 := b.Subscribe(ctx)
		require.Equal(t, 2, b.SubscriberCount())

		b.Publish(UpdatedEvent, "hello")

		for _, ch := range []<-chan Event[string]{ch1, ch2} {
			select {
			case ev := <-ch:
				require.Equal(t, UpdatedEvent, ev.Type)
				require.Equal(t, "hello", ev.Payload)
			case <-time.After(time.Second):
				require.FailNow(t, "timeout waiting for event")
			}
		}
	})

	t.Run("context cancel closes subscription", func(t *testing.T) {
		b := NewBroker[int]()
		ctx, cancel := context.WithCancel(context.Background())
		ch := b.Subscribe(ctx)
		cancel()

		select {
		case _, ok := <-ch:
			require.False(t, ok)
		case <-time.After(time.Second):
			require.FailNow(t, "subscription not closed")
		}
		require.Eventually(t, func() bool { return b.SubscriberCount() == 0 }, time.Second, 10*time.Millisecond)
	})

	t.Run("slow subscriber drops instead of blocking", func(t *testing.T) {
		b := NewBrokerWithBuffer[int](1)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		ch := b.Subscribe(ctx)

		require.False(t, b.Publish(CreatedEvent, 1))
		require.True(t, b.Publish(CreatedEvent, 2))
		require.Equal(t, 1, (<-ch).Payload)
	})

	t.Run("close ends all subscriptions and later publishes", func(t *testing.T) {
		b := NewBroker[int]()
		ch := b.Subscribe(context.Background())
		b.Close()
		b.Close()

		_, ok := <-ch
		require.False(t, ok)
		require.False(t, b.Publish(UpdatedEvent, 1))

		late := b.Subscribe(context.Background())
		_, ok = <-late
		require.False(t, ok)
	})
}
