package events

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBusRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := NewRedisClient(addr, "", 0)
	defer client.Close()

	prefix := "orderdesk-test-" + time.Now().Format("150405.000000") + ":"
	a := NewRedisBus(client, prefix, 4)
	b := NewRedisBus(client, prefix, 4)
	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))
	defer a.Stop()
	defer b.Stop()

	sub, err := b.Subscribe("order-events")
	require.NoError(t, err)

	require.NoError(t, a.Publish(ctx, "order-events", []byte(`{"orderId":"o1"}`)))
	evt := receive(t, sub)
	assert.Equal(t, "order-events", evt.Topic)
	assert.JSONEq(t, `{"orderId":"o1"}`, string(evt.Payload))
}
