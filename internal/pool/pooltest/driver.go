// Package pooltest provides a scripted in-memory driver for exercising the
// pool, unit of work and mappers without a database.
package pooltest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackportal/hackportal-backend/internal/pool"
)

// Result is the scripted outcome of a statement.
type Result struct {
	Columns  []string
	Rows     [][]any
	Affected int64
	Err      error
}

// Call records a statement sent to the driver.
type Call struct {
	Conn int
	SQL  string
	Args []any
}

type rule struct {
	match  string
	result Result
	once   bool
	used   bool
}

// Driver hands out fake connections and records every statement.
type Driver struct {
	mu      sync.Mutex
	rules   []*rule
	calls   []Call
	dials   int
	open    int
	DialErr error
	// Gate, when set, is received from before each statement executes.
	Gate chan struct{}
}

// NewDriver constructs an empty Driver.
func NewDriver() *Driver {
	return &Driver{}
}

// On scripts every statement containing match to return res.
func (d *Driver) On(match string, res Result) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rules = append(d.rules, &rule{match: match, result: res})
	return d
}

// Once scripts only the next statement containing match.
func (d *Driver) Once(match string, res Result) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rules = append(d.rules, &rule{match: match, result: res, once: true})
	return d
}

// Fail scripts statements containing match to fail with err.
func (d *Driver) Fail(match string, err error) *Driver {
	return d.On(match, Result{Err: err})
}

// Dial implements pool.Dialer.
func (d *Driver) Dial(ctx context.Context) (pool.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	d.dials++
	d.open++
	return &Conn{driver: d, id: d.dials}, nil
}

// Calls returns every recorded statement.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// SQL returns the text of every recorded statement.
func (d *Driver) SQL() []string {
	calls := d.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.SQL
	}
	return out
}

// Dials returns how many connections have been opened.
func (d *Driver) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Open returns how many connections are currently open.
func (d *Driver) Open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Reset forgets recorded statements.
func (d *Driver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

func (d *Driver) run(ctx context.Context, conn int, sql string, args []any) (Result, error) {
	if d.Gate != nil {
		select {
		case <-d.Gate:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{Conn: conn, SQL: sql, Args: args})
	for _, r := range d.rules {
		if r.once && r.used {
			continue
		}
		if strings.Contains(sql, r.match) {
			r.used = true
			return r.result, r.result.Err
		}
	}
	return Result{Affected: 1}, nil
}

// Conn is a fake connection.
type Conn struct {
	driver *Driver
	id     int
	closed bool
}

// ID identifies the connection in recorded calls.
func (c *Conn) ID() int { return c.id }

func (c *Conn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if c.closed {
		return pgconn.CommandTag{}, errors.New("pooltest: conn closed")
	}
	res, err := c.driver.run(ctx, c.id, sql, args)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	verb := strings.ToUpper(strings.Fields(sql + " X")[0])
	return pgconn.NewCommandTag(fmt.Sprintf("%s %d", verb, res.Affected)), nil
}

func (c *Conn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if c.closed {
		return nil, errors.New("pooltest: conn closed")
	}
	res, err := c.driver.run(ctx, c.id, sql, args)
	if err != nil {
		return nil, err
	}
	return &Rows{columns: res.Columns, rows: res.Rows, pos: -1}, nil
}

func (c *Conn) Close(context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.driver.mu.Lock()
	c.driver.open--
	c.driver.mu.Unlock()
	return nil
}

func (c *Conn) IsClosed() bool { return c.closed }

// Rows implements pgx.Rows over scripted values.
type Rows struct {
	columns []string
	rows    [][]any
	pos     int
	closed  bool
	err     error
}

func (r *Rows) Close() { r.closed = true }

func (r *Rows) Err() error { return r.err }

func (r *Rows) CommandTag() pgconn.CommandTag {
	return pgconn.NewCommandTag(fmt.Sprintf("SELECT %d", len(r.rows)))
}

func (r *Rows) FieldDescriptions() []pgconn.FieldDescription {
	out := make([]pgconn.FieldDescription, len(r.columns))
	for i, name := range r.columns {
		out[i] = pgconn.FieldDescription{Name: name}
	}
	return out
}

func (r *Rows) Next() bool {
	if r.closed || r.pos+1 >= len(r.rows) {
		r.closed = true
		return false
	}
	r.pos++
	return true
}

func (r *Rows) Scan(dest ...any) error {
	values, err := r.Values()
	if err != nil {
		return err
	}
	if len(dest) != len(values) {
		return fmt.Errorf("pooltest: scan expects %d targets, got %d", len(values), len(dest))
	}
	for i, v := range values {
		target := reflect.ValueOf(dest[i])
		if target.Kind() != reflect.Pointer || target.IsNil() {
			return fmt.Errorf("pooltest: scan target %d is not a pointer", i)
		}
		if v == nil {
			target.Elem().Set(reflect.Zero(target.Elem().Type()))
			continue
		}
		src := reflect.ValueOf(v)
		if !src.Type().ConvertibleTo(target.Elem().Type()) {
			return fmt.Errorf("pooltest: cannot scan %T into %s", v, target.Elem().Type())
		}
		target.Elem().Set(src.Convert(target.Elem().Type()))
	}
	return nil
}

func (r *Rows) Values() ([]any, error) {
	if r.pos < 0 || r.pos >= len(r.rows) {
		return nil, errors.New("pooltest: no current row")
	}
	return append([]any(nil), r.rows[r.pos]...), nil
}

func (r *Rows) RawValues() [][]byte { return nil }

func (r *Rows) Conn() *pgx.Conn { return nil }
