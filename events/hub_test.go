package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case evt, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return evt
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestHubFanOut(t *testing.T) {
	hub := NewHub(4)
	require.NoError(t, hub.Start(context.Background()))

	a, err := hub.Subscribe("order-events")
	require.NoError(t, err)
	b, err := hub.Subscribe("order-events")
	require.NoError(t, err)
	other, err := hub.Subscribe("other")
	require.NoError(t, err)

	require.NoError(t, hub.Publish(context.Background(), "order-events", []byte(`{"orderId":"o1"}`)))

	ea, eb := receive(t, a), receive(t, b)
	assert.Equal(t, ea.ID, eb.ID)
	assert.Equal(t, "order-events", ea.Topic)
	assert.JSONEq(t, `{"orderId":"o1"}`, string(ea.Payload))
	assert.NotEmpty(t, ea.ID)
	assert.Empty(t, other.C)
}

func TestHubPreservesOrderPerSubscriber(t *testing.T) {
	hub := NewHub(16)
	sub, err := hub.Subscribe("t")
	require.NoError(t, err)

	for _, p := range []string{"1", "2", "3", "4"} {
		require.NoError(t, hub.Publish(context.Background(), "t", []byte(p)))
	}
	for _, want := range []string{"1", "2", "3", "4"} {
		assert.Equal(t, want, string(receive(t, sub).Payload))
	}
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub(1)
	slow, err := hub.Subscribe("t")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = hub.Publish(context.Background(), "t", []byte("x"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, slow.C, 1)
	assert.Equal(t, uint64(9), hub.Dropped())
}

func TestSubscriptionClose(t *testing.T) {
	hub := NewHub(1)
	sub, err := hub.Subscribe("t")
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers("t"))

	sub.Close()
	sub.Close()
	_, ok := <-sub.C
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Subscribers("t"))
	assert.NoError(t, hub.Publish(context.Background(), "t", []byte("x")))
}

func TestHubStop(t *testing.T) {
	hub := NewHub(1)
	sub, err := hub.Subscribe("t")
	require.NoError(t, err)

	require.NoError(t, hub.Stop())
	_, ok := <-sub.C
	assert.False(t, ok)
	sub.Close()

	assert.ErrorIs(t, hub.Publish(context.Background(), "t", nil), ErrStopped)
	_, err = hub.Subscribe("t")
	assert.ErrorIs(t, err, ErrStopped)
	_, err = NewHub(1).Subscribe("")
	assert.ErrorIs(t, err, ErrEmptyTopic)
}

func TestHubConcurrentPublishAndClose(t *testing.T) {
	hub := NewHub(8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		sub, err := hub.Subscribe("t")
		require.NoError(t, err)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = hub.Publish(context.Background(), "t", []byte("x"))
			}
		}()
		go func() {
			defer wg.Done()
			sub.Close()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, hub.Subscribers("t"))
}

type failingBus struct {
	*Hub
	mu    sync.Mutex
	calls []string
	err   error
}

func (b *failingBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	b.calls = append(b.calls, string(payload))
	b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	return b.Hub.Publish(ctx, topic, payload)
}

func TestDispatcherKeepsOrderAndDrains(t *testing.T) {
	bus := &failingBus{Hub: NewHub(16)}
	sub, err := bus.Subscribe("t")
	require.NoError(t, err)

	d := NewDispatcher(bus, 16, time.Second)
	d.Start()
	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, d.Publish(context.Background(), "t", []byte(p)))
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))

	for _, want := range []string{"a", "b", "c"} {
		assert.Equal(t, want, string(receive(t, sub).Payload))
	}
	assert.ErrorIs(t, d.Publish(context.Background(), "t", []byte("late")), ErrStopped)
}

func TestDispatcherNeverBlocksPublisher(t *testing.T) {
	bus := &failingBus{Hub: NewHub(1), err: errors.New("redis down")}
	d := NewDispatcher(bus, 2, time.Second)

	require.NoError(t, d.Publish(context.Background(), "t", []byte("1")))
	require.NoError(t, d.Publish(context.Background(), "t", []byte("2")))
	assert.ErrorIs(t, d.Publish(context.Background(), "t", []byte("3")), ErrQueueFull)

	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, []string{"1", "2"}, bus.calls)
}
