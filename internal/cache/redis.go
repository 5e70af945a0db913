package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type redisBackend struct {
	client *redis.Client
}

// NewRedisBackend creates a Backend shared by every process using client.
// Entries carry no expiry.
func NewRedisBackend(client *redis.Client) Backend {
	return &redisBackend{client: client}
}

func (r *redisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: redis get: %w", err)
	}
	return value, true, nil
}

func (r *redisBackend) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

func (r *redisBackend) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache: redis del: %w", err)
	}
	return nil
}

func (r *redisBackend) Generation(ctx context.Context, table string) (int64, error) {
	gen, err := r.client.Get(ctx, generationKey(table)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache: redis generation: %w", err)
	}
	return gen, nil
}

func (r *redisBackend) BumpGeneration(ctx context.Context, table string) (int64, error) {
	gen, err := r.client.Incr(ctx, generationKey(table)).Result()
	if err != nil {
		return 0, fmt.Errorf("cache: redis bump generation: %w", err)
	}
	return gen, nil
}
