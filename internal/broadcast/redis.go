package broadcast

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/hammamikhairi/turnocall/internal/logger"
)

// Compile-time interface check.
var _ Backend = (*RedisBackend)(nil)

// RedisBackend carries announcements over Redis pub/sub, for displays on
// other machines sharing one Redis.
type RedisBackend struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisBackend connects using a redis:// URL and verifies the
// connection with PING.
func NewRedisBackend(ctx context.Context, url string, log *logger.Logger) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	log.Debug("redis backend: connected to %s", opts.Addr)
	return &RedisBackend{client: client, log: log}, nil
}

// Send publishes payload on channel.
func (r *RedisBackend) Send(ctx context.Context, channel string, payload []byte) error {
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Listen subscribes to channel and waits for the subscription to be
// confirmed before returning.
func (r *RedisBackend) Listen(ctx context.Context, channel string, fn func([]byte)) (func(), error) {
	sub := r.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range sub.Channel() {
			fn([]byte(msg.Payload))
		}
	}()

	return func() {
		if err := sub.Close(); err != nil {
			r.log.Debug("redis backend: closing subscription: %v", err)
		}
		<-done
	}, nil
}

// Close closes the client.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
