// Package uow runs statements on pooled connections, coordinates transactions
// and applies the cache-aside policy for reads and writes.
package uow

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackportal/hackportal-backend/internal/cache"
	"github.com/hackportal/hackportal-backend/internal/platform/db"
	"github.com/hackportal/hackportal-backend/internal/pool"
	"github.com/hackportal/hackportal-backend/internal/shared"
)

// DefaultMaxCachedRows bounds how many rows a single read buffers for the cache.
const DefaultMaxCachedRows = 1000

// Statement is a parameterized SQL statement written with `?` placeholders.
type Statement struct {
	SQL  string
	Args []any
}

// Read describes a cacheable query.
type Read struct {
	Table string
	// Operation names the query shape (get, getAll, getCount) in cache keys.
	Operation   string
	Statement   Statement
	IgnoreCache bool
}

// Observer receives statement timings, typically for metrics.
type Observer interface {
	ObserveStatement(kind string, d time.Duration, err error)
}

// UnitOfWork executes statements against the pool and keeps the cache
// coherent with writes. It is safe for concurrent use; transactions are
// carried in the context.
type UnitOfWork struct {
	pool          *pool.Pool
	cache         *cache.Service
	logger        *slog.Logger
	observer      Observer
	isoLevel      pgx.TxIsoLevel
	maxCachedRows int
}

// Option customises a UnitOfWork.
type Option func(*UnitOfWork)

// WithObserver reports statement timings to o.
func WithObserver(o Observer) Option {
	return func(u *UnitOfWork) { u.observer = o }
}

// WithIsoLevel sets the isolation level of transactions.
func WithIsoLevel(level pgx.TxIsoLevel) Option {
	return func(u *UnitOfWork) { u.isoLevel = level }
}

// WithMaxCachedRows bounds the rows buffered for caching a single read.
// Larger results stream through without being cached.
func WithMaxCachedRows(n int) Option {
	return func(u *UnitOfWork) { u.maxCachedRows = n }
}

// New constructs a UnitOfWork. A nil cache disables caching.
func New(p *pool.Pool, c *cache.Service, logger *slog.Logger, opts ...Option) *UnitOfWork {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = cache.NewService(cache.NewNoopBackend(), logger)
		c.SetEnabled(false)
	}
	u := &UnitOfWork{
		pool:          p,
		cache:         c,
		logger:        logger,
		isoLevel:      db.DefaultIsoLevel,
		maxCachedRows: DefaultMaxCachedRows,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Cache exposes the cache service used by the unit of work.
func (u *UnitOfWork) Cache() *cache.Service {
	return u.cache
}

// Query runs st and returns a cursor over its rows, bypassing the cache.
// Inside a transaction bound to ctx the transaction's connection is used;
// otherwise a connection is leased until the cursor is closed.
func (u *UnitOfWork) Query(ctx context.Context, st Statement) (*Rows, error) {
	if tx := TxFromContext(ctx); tx != nil {
		return tx.Query(ctx, st)
	}
	lease, err := u.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := lease.Conn().Query(ctx, db.Rebind(st.SQL), st.Args...)
	u.observe("query", start, err)
	if err != nil {
		release(lease, err)
		return nil, shared.Translate(err)
	}
	return newRows(rows, lease.Release), nil
}

// Exec runs a write against table and returns the affected row count. The
// cache for table is invalidated once the write is visible: immediately
// outside a transaction, after commit inside one.
func (u *UnitOfWork) Exec(ctx context.Context, table string, st Statement) (int64, error) {
	if tx := TxFromContext(ctx); tx != nil {
		return tx.Exec(ctx, table, st)
	}
	lease, err := u.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	tag, err := lease.Conn().Exec(ctx, db.Rebind(st.SQL), st.Args...)
	u.observe("exec", start, err)
	release(lease, err)

	// A failed write may still have been applied, so invalidate regardless.
	u.invalidate(ctx, table)
	if err != nil {
		return 0, shared.Translate(err)
	}
	return tag.RowsAffected(), nil
}

// Fetch runs a read through the cache. On a hit the database is not touched;
// on a miss rows stream from the database and, once fully consumed, are
// written to the cache. Reads inside a transaction never use the cache.
// Ranging over the sequence again re-issues the read.
func (u *UnitOfWork) Fetch(ctx context.Context, r Read) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		var (
			key       string
			cacheable bool
		)
		if TxFromContext(ctx) == nil && !r.IgnoreCache {
			key, cacheable = u.cache.Key(ctx, r.Table, r.Operation, r.Statement.SQL, r.Statement.Args)
		}
		if cacheable {
			var cached []Record
			if u.cache.Load(ctx, key, &cached) {
				for _, rec := range cached {
					if !yield(rec, nil) {
						return
					}
				}
				return
			}
		}

		rows, err := u.Query(ctx, r.Statement)
		if err != nil {
			yield(nil, err)
			return
		}
		defer rows.Close()

		buffer := make([]Record, 0)
		for rows.Next() {
			rec, err := rows.Record()
			if err != nil {
				yield(nil, err)
				return
			}
			if cacheable {
				if len(buffer) < u.maxCachedRows {
					buffer = append(buffer, rec)
				} else {
					cacheable, buffer = false, nil
				}
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
			return
		}
		if cacheable {
			u.cache.Store(ctx, key, buffer)
		}
	}
}

// Begin opens a transaction on a dedicated connection. Bind it to a context
// with Tx.Context so Query, Exec and Fetch run inside it.
func (u *UnitOfWork) Begin(ctx context.Context) (*Tx, error) {
	lease, err := u.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	_, err = lease.Conn().Exec(ctx, db.BeginStatement(u.isoLevel))
	u.observe("begin", start, err)
	if err != nil {
		lease.Discard()
		lease.Release()
		return nil, shared.Translate(err)
	}
	return newTx(u, lease), nil
}

// Do runs fn inside a transaction: begin, fn, commit. Any error from fn or
// from commit rolls the transaction back and is returned wrapped in
// *shared.TransactionAbortedError. When ctx already carries a transaction fn
// joins it.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	tx, err := u.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx.Context(ctx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			u.logger.Warn("uow rollback", slog.Any("error", rbErr))
		}
		return &shared.TransactionAbortedError{Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		if errors.Is(err, shared.ErrTransactionAborted) {
			return err
		}
		return &shared.TransactionAbortedError{Err: err}
	}
	return nil
}

// Invalidate drops cached reads of tables whose results depend on a write
// made elsewhere. Inside a transaction it takes effect on commit.
func (u *UnitOfWork) Invalidate(ctx context.Context, tables ...string) {
	if tx := TxFromContext(ctx); tx != nil {
		tx.touch(tables...)
		return
	}
	u.invalidate(ctx, tables...)
}

func (u *UnitOfWork) invalidate(ctx context.Context, tables ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, table := range tables {
		u.cache.InvalidateTable(ctx, table)
	}
}

// release returns lease to the pool. A connection that failed with anything
// other than a server error is closed instead of reused.
func release(lease *pool.Lease, err error) {
	var pgErr *pgconn.PgError
	if err != nil && !errors.As(err, &pgErr) {
		lease.Discard()
	}
	lease.Release()
}

func (u *UnitOfWork) observe(kind string, start time.Time, err error) {
	if u.observer != nil {
		u.observer.ObserveStatement(kind, time.Since(start), err)
	}
	if err != nil {
		u.logger.Debug("uow statement failed", slog.String("kind", kind), slog.Any("error", err))
	}
}
