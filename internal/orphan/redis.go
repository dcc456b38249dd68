package orphan

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisQueue keeps orphaned keys in a Redis list: LPUSH on report, RPOP on reap.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue parses url (redis://...) and returns a queue stored under listKey.
func NewRedisQueue(url, listKey string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisQueue{client: redis.NewClient(opts), key: listKey}, nil
}

// Ping checks connectivity.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Push(ctx context.Context, key string) error {
	if err := q.client.LPush(ctx, q.key, key).Err(); err != nil {
		return fmt.Errorf("push orphan %q: %w", key, err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (string, error) {
	key, err := q.client.RPop(ctx, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrEmpty
	}
	if err != nil {
		return "", fmt.Errorf("pop orphan: %w", err)
	}
	return key, nil
}

// Len returns the number of queued keys.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Close releases the client.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

var _ Queue = (*RedisQueue)(nil)
