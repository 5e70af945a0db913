package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Backend stores encoded cache entries. Implementations must be safe for
// concurrent use.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Generation returns the current generation of table, zero when unset.
	Generation(ctx context.Context, table string) (int64, error)
	// BumpGeneration advances the generation of table.
	BumpGeneration(ctx context.Context, table string) (int64, error)
}

// Backend kinds selectable through configuration.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// ParseBackend normalises a configured backend name.
func ParseBackend(name string) (string, error) {
	switch kind := strings.ToLower(strings.TrimSpace(name)); kind {
	case BackendMemory, BackendRedis, BackendNone:
		return kind, nil
	case "":
		return BackendMemory, nil
	default:
		return "", fmt.Errorf("cache: unknown backend %q", name)
	}
}

// NewBackend builds the backend named by kind. client is only required for
// the redis backend.
func NewBackend(kind string, mem MemoryConfig, client *redis.Client) (Backend, error) {
	kind, err := ParseBackend(kind)
	if err != nil {
		return nil, err
	}
	switch kind {
	case BackendRedis:
		if client == nil {
			return nil, fmt.Errorf("cache: redis backend requires a client")
		}
		return NewRedisBackend(client), nil
	case BackendNone:
		return NewNoopBackend(), nil
	default:
		return NewMemoryBackend(mem)
	}
}

// noopBackend never stores anything.
type noopBackend struct{}

// NewNoopBackend returns a Backend that always misses.
func NewNoopBackend() Backend { return noopBackend{} }

func (noopBackend) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (noopBackend) Set(context.Context, string, []byte) error         { return nil }
func (noopBackend) Delete(context.Context, string) error              { return nil }
func (noopBackend) Generation(context.Context, string) (int64, error) { return 0, nil }
func (noopBackend) BumpGeneration(context.Context, string) (int64, error) {
	return 0, nil
}
