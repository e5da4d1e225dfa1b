package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"lobby-ledger/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *RedisPublisher {
	t.Helper()
	mr := miniredis.RunT(t)
	client := NewRedisClient(RedisOptions{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisPublisher(client, "tcq-lobby")
}

func TestRedisPublisherPublishesJSON(t *testing.T) {
	pub := newTestRedis(t)
	ctx := context.Background()
	assert.Equal(t, "lobby:tcq-lobby:events", pub.Channel)

	sub := pub.Client.Subscribe(ctx, pub.Channel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	events := []models.LobbyEvent{
		{ID: 1, EventID: "e-1", Type: models.EventJoined, RoundID: 1, Player: "0xa", Amount: testTicket},
		{ID: 2, EventID: "e-2", Type: models.EventUnjoined, RoundID: 1, Player: "0xa", Amount: testTicket},
	}
	require.NoError(t, pub.Publish(ctx, events))

	ch := sub.Channel()
	for _, want := range events {
		select {
		case msg := <-ch:
			var got models.LobbyEvent
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
			assert.Equal(t, want.EventID, got.EventID)
			assert.Equal(t, want.Type, got.Type)
			assert.Equal(t, want.Amount, got.Amount)
		case <-time.After(2 * time.Second):
			t.Fatalf("event %s not received", want.EventID)
		}
	}

	last, err := pub.LastPublished(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), last)
}

func TestRedisPublisherLastPublishedEmpty(t *testing.T) {
	pub := newTestRedis(t)
	last, err := pub.LastPublished(context.Background())
	require.NoError(t, err)
	assert.Zero(t, last)
	assert.NoError(t, pub.Publish(context.Background(), nil))
}

func TestRedisPublisherReportsOutage(t *testing.T) {
	client := NewRedisClient(RedisOptions{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })
	pub := NewRedisPublisher(client, "tcq-lobby")

	err := pub.Publish(context.Background(), []models.LobbyEvent{{ID: 1, EventID: "e-1", Type: models.EventJoined}})
	assert.Error(t, err)
}

func TestLobbyPublishesThroughRedis(t *testing.T) {
	svc, _ := newTestLobby(t)
	pub := newTestRedis(t)
	svc.Publisher = pub

	require.NoError(t, joinErr(svc, context.Background(), player(0), testTicket))

	last, err := pub.LastPublished(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), last)
}
