package adapter

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"dmsync/internal/infrastructure/cache/port"
)

// RedisKV satisfies the port.KV interface using a go-redis v9 client.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV constructs a RedisKV from a redis URL and verifies connectivity.
func NewRedisKV(url string) (*RedisKV, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisKV{client: c}, nil
}

// Ensure interface compliance at compile time
var _ port.KV = (*RedisKV)(nil)

func (r *RedisKV) ReadKey(ctx context.Context, key string) (string, error) {
	res, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", port.ErrMiss
	}
	if err != nil {
		return "", err
	}
	return res, nil
}

func (r *RedisKV) WriteKey(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKV) RemoveKey(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisKV) Close() error {
	return r.client.Close()
}

// Client exposes the underlying redis client for components that share the
// connection, such as the pub/sub broadcaster.
func (r *RedisKV) Client() *redis.Client {
	return r.client
}
