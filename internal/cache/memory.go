package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/viccon/sturdyc"
)

// noExpiry stands in for "never" since sturdyc requires a positive TTL.
// Entries leave the cache through generation bumps or capacity eviction.
const noExpiry = 10 * 365 * 24 * time.Hour

// MemoryConfig configures the in-process backend.
type MemoryConfig struct {
	Capacity           int
	NumShards          int
	EvictionPercentage int
}

// DefaultMemoryConfig returns sensible defaults for a single process.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{Capacity: 10000, NumShards: 64, EvictionPercentage: 10}
}

// Validate checks whether the configuration values are usable.
func (c MemoryConfig) Validate() error {
	if c.Capacity <= 0 {
		return errors.New("cache: memory capacity must be greater than 0")
	}
	if c.NumShards <= 0 {
		return errors.New("cache: memory shards must be greater than 0")
	}
	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return errors.New("cache: eviction percentage must be between 1 and 100")
	}
	return nil
}

type memoryBackend struct {
	client *sturdyc.Client[[]byte]

	mu          sync.Mutex
	generations map[string]int64
}

// NewMemoryBackend creates an in-process Backend backed by sturdyc.
func NewMemoryBackend(cfg MemoryConfig) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := sturdyc.New[[]byte](cfg.Capacity, cfg.NumShards, noExpiry, cfg.EvictionPercentage)
	return &memoryBackend{client: client, generations: make(map[string]int64)}, nil
}

func (m *memoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, ok := m.client.Get(key)
	return value, ok, nil
}

func (m *memoryBackend) Set(_ context.Context, key string, value []byte) error {
	m.client.Set(key, value)
	return nil
}

func (m *memoryBackend) Delete(_ context.Context, key string) error {
	m.client.Delete(key)
	return nil
}

func (m *memoryBackend) Generation(_ context.Context, table string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generations[table], nil
}

func (m *memoryBackend) BumpGeneration(_ context.Context, table string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generations[table]++
	return m.generations[table], nil
}
