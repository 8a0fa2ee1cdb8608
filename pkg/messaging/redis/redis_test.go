package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/physiocapture-api/pkg/messaging"
)

func newTestBroker(t *testing.T) (*RedisBroker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := NewRedisBrokerFromClient(client, zerolog.Nop())
	t.Cleanup(func() { _ = b.Close() })
	return b, mr
}

func TestRedisBroker_PublishSubscribe(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := b.Subscribe(ctx, "patient.transferred")
	require.NoError(t, err)

	payload := json.RawMessage(`{"patient_id":"p-1"}`)
	require.NoError(t, b.Publish(ctx, "patient.transferred", payload))

	select {
	case msg := <-msgs:
		assert.JSONEq(t, `{"patient_id":"p-1"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestRedisBroker_PublishFailsWhenRedisDown(t *testing.T) {
	b, mr := newTestBroker(t)
	mr.Close()

	err := b.Publish(context.Background(), "transfer_request.created", map[string]string{"a": "b"})
	assert.Error(t, err)
}

func TestConsume_DeliversToHandler(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 1)
	err := messaging.Consume(ctx, b, "transfer_request.created", func(_ context.Context, payload []byte) error {
		got <- string(payload)
		return nil
	}, nil)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "transfer_request.created", map[string]string{"status": "PENDING"}))

	select {
	case msg := <-got:
		assert.JSONEq(t, `{"status":"PENDING"}`, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
}
