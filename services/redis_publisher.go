package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lobby-ledger/models"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher fans lobby events out on a Redis pub/sub channel and keeps
// the sequence number of the last published event under a companion key.
type RedisPublisher struct {
	Client  *redis.Client
	Channel string
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisClient(opts RedisOptions) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// EventChannel is the pub/sub channel of the lobby named by slug.
func EventChannel(lobbySlug string) string {
	return fmt.Sprintf("lobby:%s:events", lobbySlug)
}

func NewRedisPublisher(client *redis.Client, lobbySlug string) *RedisPublisher {
	return &RedisPublisher{Client: client, Channel: EventChannel(lobbySlug)}
}

func (p *RedisPublisher) lastSeqKey() string {
	return p.Channel + ":last_seq"
}

func (p *RedisPublisher) Publish(ctx context.Context, events []models.LobbyEvent) error {
	if len(events) == 0 {
		return nil
	}
	pipeline := p.Client.TxPipeline()
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to encode event %s: %w", ev.EventID, err)
		}
		pipeline.Publish(ctx, p.Channel, payload)
	}
	pipeline.Set(ctx, p.lastSeqKey(), events[len(events)-1].ID, 7*24*time.Hour)
	if _, err := pipeline.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.Channel, err)
	}
	return nil
}

// LastPublished returns the sequence number of the newest event published,
// 0 when nothing was published yet.
func (p *RedisPublisher) LastPublished(ctx context.Context) (uint64, error) {
	seq, err := p.Client.Get(ctx, p.lastSeqKey()).Uint64()
	if err == redis.Nil {
		return 0, nil
	}
	return seq, err
}
