package push

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	verdant_errors "verdant-sync/pkg/errors"
	"verdant-sync/pkg/logger"
)

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// RedisTransport subscribes to the backend's Pub/Sub fan-out. The channel
// set is the viewer's user channel plus one pattern per conversation.
type RedisTransport struct {
	client *redis.Client
	log    *logger.Logger
}

func NewRedisTransport(cfg RedisConfig, log *logger.Logger) *RedisTransport {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisTransport{client: client, log: log}
}

func (t *RedisTransport) Connect(ctx context.Context, channels []string, sink Sink) error {
	sub := t.client.PSubscribe(ctx, channels...)
	defer sub.Close()

	// Force the subscribe round-trip so a dead broker fails here rather
	// than on the first receive.
	if _, err := sub.Receive(ctx); err != nil {
		return verdant_errors.Network("push.redis.subscribe", err)
	}
	sink.Connected()

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return verdant_errors.Network("push.redis.receive", err)
		}
		sink.Payload([]byte(msg.Payload))
	}
}

func (t *RedisTransport) Close() error {
	return t.client.Close()
}
