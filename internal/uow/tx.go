package uow

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hackportal/hackportal-backend/internal/platform/db"
	"github.com/hackportal/hackportal-backend/internal/pool"
	"github.com/hackportal/hackportal-backend/internal/shared"
)

var (
	// ErrTxDone is returned when a finished transaction is used.
	ErrTxDone = errors.New("uow: transaction already committed or rolled back")
	// ErrTxBusy is returned when a statement is issued on a transaction while
	// one of its cursors is still open.
	ErrTxBusy = errors.New("uow: transaction has an open cursor")
)

type txContextKey struct{}

// TxFromContext returns the transaction bound to ctx, if any.
func TxFromContext(ctx context.Context) *Tx {
	tx, _ := ctx.Value(txContextKey{}).(*Tx)
	return tx
}

// Tx is an open transaction holding one leased connection. Its statements run
// one at a time in issuance order; an open cursor holds the connection until
// it is closed.
type Tx struct {
	uow   *UnitOfWork
	lease *pool.Lease
	slot  *semaphore.Weighted

	mu     sync.Mutex
	done   bool
	cursor *Rows
	dirty  map[string]struct{}
}

func newTx(u *UnitOfWork, lease *pool.Lease) *Tx {
	return &Tx{uow: u, lease: lease, slot: semaphore.NewWeighted(1), dirty: make(map[string]struct{})}
}

// Context binds tx to ctx.
func (tx *Tx) Context(ctx context.Context) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// enter takes the statement slot. It fails fast while a cursor is open and
// otherwise waits for the in-flight statement for as long as ctx allows.
func (tx *Tx) enter(ctx context.Context) error {
	tx.mu.Lock()
	switch {
	case tx.done:
		tx.mu.Unlock()
		return ErrTxDone
	case tx.cursor != nil:
		tx.mu.Unlock()
		return ErrTxBusy
	}
	tx.mu.Unlock()

	if err := tx.slot.Acquire(ctx, 1); err != nil {
		return err
	}
	tx.mu.Lock()
	done := tx.done
	tx.mu.Unlock()
	if done {
		tx.slot.Release(1)
		return ErrTxDone
	}
	return nil
}

func (tx *Tx) leave() {
	tx.slot.Release(1)
}

func (tx *Tx) closeCursor() {
	tx.mu.Lock()
	tx.cursor = nil
	tx.mu.Unlock()
	tx.leave()
}

// finish marks tx done, closes its open cursor and waits for the statement in
// flight. cursorOpen reports whether a cursor had to be closed.
func (tx *Tx) finish(ctx context.Context) (cursorOpen bool, err error) {
	tx.mu.Lock()
	if tx.done {
		tx.mu.Unlock()
		return false, ErrTxDone
	}
	tx.done = true
	cursor := tx.cursor
	tx.mu.Unlock()

	if cursor != nil {
		cursor.Close()
	}
	if err := tx.slot.Acquire(context.WithoutCancel(ctx), 1); err != nil {
		return false, err
	}
	tx.slot.Release(1)
	return cursor != nil, nil
}

// Query runs st on the transaction's connection. Until the returned cursor is
// closed every other statement on tx fails with ErrTxBusy.
func (tx *Tx) Query(ctx context.Context, st Statement) (*Rows, error) {
	if err := tx.enter(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := tx.lease.Conn().Query(ctx, db.Rebind(st.SQL), st.Args...)
	tx.uow.observe("query", start, err)
	if err != nil {
		tx.leave()
		return nil, shared.Translate(err)
	}
	cursor := newRows(rows, tx.closeCursor)
	tx.mu.Lock()
	tx.cursor = cursor
	tx.mu.Unlock()
	return cursor, nil
}

// Exec runs a write on the transaction's connection. table is invalidated
// when the transaction commits.
func (tx *Tx) Exec(ctx context.Context, table string, st Statement) (int64, error) {
	if err := tx.enter(ctx); err != nil {
		return 0, err
	}
	defer tx.leave()

	start := time.Now()
	tag, err := tx.lease.Conn().Exec(ctx, db.Rebind(st.SQL), st.Args...)
	tx.uow.observe("exec", start, err)
	if table != "" {
		tx.touch(table)
	}
	if err != nil {
		return 0, shared.Translate(err)
	}
	return tag.RowsAffected(), nil
}

// Commit makes the transaction's writes visible and invalidates the cache of
// every table written. Committing with an open cursor rolls back instead.
func (tx *Tx) Commit(ctx context.Context) error {
	cursorOpen, err := tx.finish(ctx)
	if err != nil {
		return err
	}
	if cursorOpen {
		tx.rollback(ctx)
		return &shared.TransactionAbortedError{Err: ErrTxBusy}
	}

	start := time.Now()
	_, err = tx.lease.Conn().Exec(ctx, db.CommitStatement)
	tx.uow.observe("commit", start, err)
	if err != nil {
		// The server rolls back a transaction whose commit fails; make sure
		// the connection is not reused in an unknown state.
		_, rbErr := tx.lease.Conn().Exec(context.WithoutCancel(ctx), db.RollbackStatement)
		if rbErr != nil {
			tx.lease.Discard()
		}
	}
	tx.lease.Release()
	tx.uow.invalidate(ctx, tx.tables()...)
	if err != nil {
		return &shared.TransactionAbortedError{Err: shared.Translate(err)}
	}
	return nil
}

// Rollback discards the transaction's writes, closing an open cursor first.
// Rolling back a finished transaction is a no-op so it can be deferred.
func (tx *Tx) Rollback(ctx context.Context) error {
	if _, err := tx.finish(ctx); err != nil {
		if errors.Is(err, ErrTxDone) {
			return nil
		}
		return err
	}
	return tx.rollback(ctx)
}

func (tx *Tx) rollback(ctx context.Context) error {
	start := time.Now()
	_, err := tx.lease.Conn().Exec(context.WithoutCancel(ctx), db.RollbackStatement)
	tx.uow.observe("rollback", start, err)
	if err != nil {
		tx.lease.Discard()
	}
	tx.lease.Release()
	return shared.Translate(err)
}

func (tx *Tx) touch(tables ...string) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	for _, t := range tables {
		tx.dirty[t] = struct{}{}
	}
}

func (tx *Tx) tables() []string {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	out := make([]string, 0, len(tx.dirty))
	for t := range tx.dirty {
		out = append(out, t)
	}
	return out
}
