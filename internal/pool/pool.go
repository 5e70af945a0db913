// Package pool leases exclusively-owned database connections from a bounded set.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/semaphore"

	"github.com/hackportal/hackportal-backend/internal/shared"
)

// Conn is the driver connection surface used by the unit of work.
// *pgx.Conn satisfies it.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close(ctx context.Context) error
	IsClosed() bool
}

// Dialer opens a new driver connection.
type Dialer func(ctx context.Context) (Conn, error)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("pool: closed")

// Observer receives pool events, typically for metrics.
type Observer interface {
	ObserveAcquire(wait time.Duration, err error)
}

// Config bounds the pool.
type Config struct {
	// Capacity is the maximum number of leased plus idle connections.
	Capacity int
	// IdleCapacity caps idle connections kept for reuse. Zero keeps up to Capacity.
	IdleCapacity int
	Observer     Observer
}

// Pool hands out connections up to Capacity. Acquire blocks while the pool
// is full; waiters are served in FIFO order.
type Pool struct {
	dial     Dialer
	sem      *semaphore.Weighted
	capacity int
	maxIdle  int
	observer Observer

	mu     sync.Mutex
	idle   []Conn
	leased int
	closed bool
	done   chan struct{}
}

// New constructs a Pool.
func New(dial Dialer, cfg Config) (*Pool, error) {
	if dial == nil {
		return nil, errors.New("pool: dialer required")
	}
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("pool: capacity must be positive, got %d", cfg.Capacity)
	}
	maxIdle := cfg.IdleCapacity
	if maxIdle <= 0 || maxIdle > cfg.Capacity {
		maxIdle = cfg.Capacity
	}
	return &Pool{
		dial:     dial,
		sem:      semaphore.NewWeighted(int64(cfg.Capacity)),
		capacity: cfg.Capacity,
		maxIdle:  maxIdle,
		observer: cfg.Observer,
		done:     make(chan struct{}),
	}, nil
}

// Acquire leases a connection, waiting for a free slot when the pool is full.
// Cancelling ctx while queued withdraws the request without consuming a slot.
// A dial failure is reported as *shared.PoolExhaustedError.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	start := time.Now()
	lease, err := p.acquire(ctx)
	if p.observer != nil {
		p.observer.ObserveAcquire(time.Since(start), err)
	}
	return lease, err
}

func (p *Pool) acquire(ctx context.Context) (*Lease, error) {
	if p.isClosed() {
		return nil, ErrClosed
	}
	if !p.sem.TryAcquire(1) {
		if err := p.wait(ctx); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, ErrClosed
	}
	for len(p.idle) > 0 {
		conn := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if conn.IsClosed() {
			continue
		}
		p.leased++
		p.mu.Unlock()
		return &Lease{pool: p, conn: conn}, nil
	}
	p.leased++
	p.mu.Unlock()

	conn, err := p.dial(ctx)
	if err != nil {
		p.mu.Lock()
		p.leased--
		p.mu.Unlock()
		p.sem.Release(1)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &shared.PoolExhaustedError{Err: err}
	}
	return &Lease{pool: p, conn: conn}, nil
}

// wait queues for a slot until one frees up, ctx ends, or the pool closes.
func (p *Pool) wait(ctx context.Context) error {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.done:
			cancel()
		case <-waitCtx.Done():
		}
	}()
	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return ErrClosed
	}
	return nil
}

// put returns conn to the idle set, or closes it when it is broken, the idle
// set is full, or the pool has been closed.
func (p *Pool) put(conn Conn, discard bool) {
	p.mu.Lock()
	p.leased--
	keep := !discard && !p.closed && !conn.IsClosed() && len(p.idle) < p.maxIdle
	if keep {
		p.idle = append(p.idle, conn)
	}
	p.mu.Unlock()
	p.sem.Release(1)

	if !keep && !conn.IsClosed() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(ctx)
	}
}

// Close closes idle connections, fails queued acquisitions with ErrClosed and
// rejects further ones. Leased connections are closed when they are released.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var errs []error
	for _, conn := range idle {
		if err := conn.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Stats describes the current pool occupancy.
type Stats struct {
	Capacity int
	Leased   int
	Idle     int
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Capacity: p.capacity, Leased: p.leased, Idle: len(p.idle)}
}

// Lease is an exclusively-owned connection. It must not be shared between
// concurrent operations and must be released exactly once.
type Lease struct {
	pool    *Pool
	conn    Conn
	once    sync.Once
	discard bool
}

// Conn returns the leased connection.
func (l *Lease) Conn() Conn {
	return l.conn
}

// Discard marks the connection as unusable so Release closes it instead of
// returning it to the idle set.
func (l *Lease) Discard() {
	l.discard = true
}

// Release returns the connection to the pool. Calls after the first are no-ops.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.pool.put(l.conn, l.discard)
	})
}
