package cache

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Observer receives cache outcomes, typically for metrics.
type Observer interface {
	ObserveCache(outcome string)
}

// Cache outcomes reported to the Observer.
const (
	OutcomeHit        = "hit"
	OutcomeMiss       = "miss"
	OutcomeError      = "error"
	OutcomeInvalidate = "invalidate"
)

// Service is the cache-aside store used by the unit of work. A failing
// backend degrades to misses and is only logged. A table whose invalidation
// failed is bypassed until its generation can be bumped.
type Service struct {
	backend  Backend
	logger   *slog.Logger
	observer Observer
	enabled  atomic.Bool

	mu    sync.Mutex
	stale map[string]uint64
}

// Option customises a Service.
type Option func(*Service)

// WithObserver reports cache outcomes to o.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// NewService constructs an enabled Service over backend.
func NewService(backend Backend, logger *slog.Logger, opts ...Option) *Service {
	if backend == nil {
		backend = NewNoopBackend()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{backend: backend, logger: logger, stale: make(map[string]uint64)}
	for _, opt := range opts {
		opt(s)
	}
	s.enabled.Store(true)
	return s
}

// SetEnabled toggles the cache globally.
func (s *Service) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

// Enabled reports whether the cache is active.
func (s *Service) Enabled() bool {
	return s != nil && s.enabled.Load()
}

// Key derives the key for a query on table. ok is false when the cache is
// disabled, the table generation cannot be read, or an earlier invalidation of
// table is still pending; callers then skip the cache.
func (s *Service) Key(ctx context.Context, table, operation string, params ...any) (key string, ok bool) {
	if !s.Enabled() {
		return "", false
	}
	if !s.settle(ctx, table) {
		return "", false
	}
	gen, err := s.backend.Generation(ctx, table)
	if err != nil {
		s.fail("generation", table, err)
		return "", false
	}
	return BuildKey(table, gen, operation, params...), true
}

// Get returns the raw value stored at key.
func (s *Service) Get(ctx context.Context, key string) ([]byte, bool) {
	if !s.Enabled() || key == "" {
		return nil, false
	}
	value, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.fail("get", key, err)
		return nil, false
	}
	if !ok {
		s.observe(OutcomeMiss)
		return nil, false
	}
	s.observe(OutcomeHit)
	return value, true
}

// Set stores value at key.
func (s *Service) Set(ctx context.Context, key string, value []byte) {
	if !s.Enabled() || key == "" {
		return
	}
	if err := s.backend.Set(ctx, key, value); err != nil {
		s.fail("set", key, err)
	}
}

// Invalidate removes key.
func (s *Service) Invalidate(ctx context.Context, key string) {
	if !s.Enabled() || key == "" {
		return
	}
	if err := s.backend.Delete(ctx, key); err != nil {
		s.fail("invalidate", key, err)
		return
	}
	s.observe(OutcomeInvalidate)
}

// InvalidateTable makes every key previously derived for table unreachable.
// It runs even while the cache is disabled so re-enabling never serves
// entries written before a later write.
func (s *Service) InvalidateTable(ctx context.Context, table string) {
	if s == nil {
		return
	}
	if _, err := s.backend.BumpGeneration(ctx, table); err != nil {
		s.fail("invalidate table", table, err)
		s.mu.Lock()
		s.stale[table]++
		s.mu.Unlock()
		return
	}
	s.observe(OutcomeInvalidate)
}

// settle retries a failed invalidation of table. It reports whether table
// may be served from the cache.
func (s *Service) settle(ctx context.Context, table string) bool {
	s.mu.Lock()
	pending, ok := s.stale[table]
	s.mu.Unlock()
	if !ok {
		return true
	}
	if _, err := s.backend.BumpGeneration(ctx, table); err != nil {
		s.fail("invalidate table", table, err)
		return false
	}
	s.mu.Lock()
	if s.stale[table] == pending {
		delete(s.stale, table)
	}
	s.mu.Unlock()
	s.observe(OutcomeInvalidate)
	return true
}

type envelope struct {
	WrittenAt time.Time `msgpack:"w"`
	Payload   []byte    `msgpack:"p"`
}

// Load decodes the value stored at key into dest. Undecodable entries are
// dropped and reported as a miss.
func (s *Service) Load(ctx context.Context, key string, dest any) bool {
	raw, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	var env envelope
	if err := decode(raw, &env); err != nil {
		s.fail("decode", key, err)
		s.Invalidate(ctx, key)
		return false
	}
	if err := decode(env.Payload, dest); err != nil {
		s.fail("decode", key, err)
		s.Invalidate(ctx, key)
		return false
	}
	return true
}

// Store encodes value and writes it at key.
func (s *Service) Store(ctx context.Context, key string, value any) {
	if !s.Enabled() || key == "" {
		return
	}
	payload, err := msgpack.Marshal(value)
	if err != nil {
		s.fail("encode", key, err)
		return
	}
	raw, err := msgpack.Marshal(envelope{WrittenAt: time.Now().UTC(), Payload: payload})
	if err != nil {
		s.fail("encode", key, err)
		return
	}
	s.Set(ctx, key, raw)
}

func decode(data []byte, dest any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	return dec.Decode(dest)
}

func (s *Service) fail(op, key string, err error) {
	s.observe(OutcomeError)
	s.logger.Warn("cache degraded", slog.String("op", op), slog.String("key", key), slog.Any("error", err))
}

func (s *Service) observe(outcome string) {
	if s.observer != nil {
		s.observer.ObserveCache(outcome)
	}
}
