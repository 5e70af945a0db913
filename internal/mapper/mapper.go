// Package mapper translates entities into parameterized statements and runs
// them through the unit of work after checking the caller's role.
package mapper

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"reflect"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/hackportal/hackportal-backend/internal/rbac"
	"github.com/hackportal/hackportal-backend/internal/shared"
	"github.com/hackportal/hackportal-backend/internal/uow"
)

// Cache operation names for the read shapes.
const (
	readGet      = "get"
	readGetAll   = "getAll"
	readGetCount = "getCount"
)

// Mapper performs the CRUD operations of one entity type.
type Mapper[T any] struct {
	table         Table[T]
	schema        schema
	uow           *uow.UnitOfWork
	roles         *rbac.Registry
	logger        *slog.Logger
	scopedDefault bool
}

// Option customises a Mapper.
type Option func(*options)

type options struct {
	scopedDefault bool
}

// WithScopedDefault sets whether reads are restricted to the active hackathon
// when QueryOptions.CurrentHackathonOnly is unset. The default is true.
func WithScopedDefault(scoped bool) Option {
	return func(o *options) { o.scopedDefault = scoped }
}

// New constructs a Mapper for table.
func New[T any](table Table[T], u *uow.UnitOfWork, roles *rbac.Registry, logger *slog.Logger, opts ...Option) (*Mapper[T], error) {
	if u == nil || roles == nil {
		return nil, errors.New("mapper: unit of work and role registry required")
	}
	if err := table.validate(); err != nil {
		return nil, err
	}
	s, err := buildSchema(table)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg := options{scopedDefault: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Mapper[T]{
		table:         table,
		schema:        s,
		uow:           u,
		roles:         roles,
		logger:        logger.With(slog.String("table", table.Name)),
		scopedDefault: cfg.scopedDefault,
	}, nil
}

// Table returns the table description.
func (m *Mapper[T]) Table() Table[T] { return m.table }

// Columns returns the declared columns in declaration order.
func (m *Mapper[T]) Columns() []string { return m.schema.Columns() }

// UnitOfWork returns the unit of work statements run through.
func (m *Mapper[T]) UnitOfWork() *uow.UnitOfWork { return m.uow }

// Authorize fails unless the table supports op and role holds its permission.
func (m *Mapper[T]) Authorize(role string, op rbac.Operation) error {
	if !m.table.supports(op) {
		return &shared.UnsupportedOperationError{Table: m.table.Name, Operation: string(op)}
	}
	permission := rbac.Scoped(m.table.Resource, op)
	if !m.roles.Can(role, permission) {
		m.logger.Info("permission denied", slog.String("role", role), slog.String("permission", string(permission)))
		return &shared.PermissionDeniedError{Role: role, Permission: string(permission)}
	}
	return nil
}

func (m *Mapper[T]) prepare(role string, op rbac.Operation, opts *QueryOptions) error {
	if err := m.Authorize(role, op); err != nil {
		return err
	}
	return opts.validate(m.schema)
}

func (m *Mapper[T]) scope(opts *QueryOptions) string {
	if m.table.HackathonColumn == "" || !opts.scoped(m.scopedDefault) {
		return ""
	}
	return m.table.HackathonColumn
}

// Get returns the entity with primary key id, or shared.ErrNotFound. A key
// lookup is restricted to the active hackathon only when opts sets
// CurrentHackathonOnly to true.
func (m *Mapper[T]) Get(ctx context.Context, role string, id any, opts *QueryOptions) (*T, error) {
	if err := m.prepare(role, rbac.OpRead, opts); err != nil {
		return nil, err
	}
	scope := ""
	if opts.scoped(false) {
		scope = m.scope(opts)
	}
	st := selectOne(m.table.Name, m.table.PrimaryKey, id, scope)
	var found uow.Record
	for rec, err := range m.uow.Fetch(ctx, m.read(readGet, st, opts)) {
		if err != nil {
			return nil, err
		}
		if found == nil {
			found = rec
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%s %v: %w", m.table.Name, id, shared.ErrNotFound)
	}
	return decode[T](m.schema, found)
}

// GetAll returns a lazy sequence over the table's entities. Ranging over it
// runs the query; ranging again re-issues it.
func (m *Mapper[T]) GetAll(ctx context.Context, role string, opts *QueryOptions) (iter.Seq2[*T, error], error) {
	if err := m.prepare(role, rbac.OpReadAll, opts); err != nil {
		return nil, err
	}
	var (
		fields         []string
		startAt, count *int
	)
	if opts != nil {
		fields, startAt, count = opts.Fields, opts.StartAt, opts.Count
	}
	st := selectAll(m.table.Name, m.table.alias(), fields, m.scope(opts), startAt, count)
	records := m.uow.Fetch(ctx, m.read(readGetAll, st, opts))
	return func(yield func(*T, error) bool) {
		for rec, err := range records {
			if err != nil {
				yield(nil, err)
				return
			}
			entity, err := decode[T](m.schema, rec)
			if !yield(entity, err) || err != nil {
				return
			}
		}
	}, nil
}

// GetCount returns the number of rows visible under opts.
func (m *Mapper[T]) GetCount(ctx context.Context, role string, opts *QueryOptions) (int64, error) {
	if err := m.prepare(role, rbac.OpCount, opts); err != nil {
		return 0, err
	}
	st := selectCount(m.table.Name, m.table.PrimaryKey, m.scope(opts))
	var (
		count int64
		seen  bool
	)
	for rec, err := range m.uow.Fetch(ctx, m.read(readGetCount, st, opts)) {
		if err != nil {
			return 0, err
		}
		if seen {
			continue
		}
		n, err := cast.ToInt64E(rec["count"])
		if err != nil {
			return 0, fmt.Errorf("mapper: %s: count: %w", m.table.Name, err)
		}
		count, seen = n, true
	}
	return count, nil
}

// Insert writes entity and returns it, with a generated key when configured.
func (m *Mapper[T]) Insert(ctx context.Context, role string, entity *T) (*T, error) {
	if err := m.Authorize(role, rbac.OpCreate); err != nil {
		return nil, err
	}
	if err := m.check(entity); err != nil {
		return nil, err
	}
	pk := m.schema.primaryKey()
	if m.table.GenerateKey && isZero(value(entity, pk)) {
		if err := setValue(entity, pk, uuid.NewString()); err != nil {
			return nil, fmt.Errorf("mapper: %s: generate key: %w", m.table.Name, err)
		}
	}

	var (
		columns []string
		values  []any
	)
	for _, col := range m.schema.columns {
		if col.readonly {
			continue
		}
		columns = append(columns, col.name)
		values = append(values, value(entity, col))
	}
	if _, err := m.uow.Exec(ctx, m.table.Name, insertInto(m.table.Name, columns, values)); err != nil {
		return nil, err
	}
	return entity, nil
}

// Update overwrites every writable column of the row identified by entity's
// primary key.
func (m *Mapper[T]) Update(ctx context.Context, role string, entity *T) (*T, error) {
	if err := m.Authorize(role, rbac.OpUpdate); err != nil {
		return nil, err
	}
	if err := m.check(entity); err != nil {
		return nil, err
	}
	pk := m.schema.primaryKey()
	id := value(entity, pk)
	if isZero(id) {
		return nil, &shared.ValidationError{Field: pk.name, Reason: "primary key required"}
	}

	var (
		columns []string
		values  []any
	)
	for i, col := range m.schema.columns {
		if col.readonly || i == m.schema.pk {
			continue
		}
		columns = append(columns, col.name)
		values = append(values, value(entity, col))
	}
	if len(columns) == 0 {
		return nil, &shared.UnsupportedOperationError{Table: m.table.Name, Operation: string(rbac.OpUpdate)}
	}
	n, err := m.uow.Exec(ctx, m.table.Name, updateSet(m.table.Name, pk.name, columns, values, id))
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%s %v: %w", m.table.Name, id, shared.ErrNotFound)
	}
	return entity, nil
}

// Delete removes the row with primary key id.
func (m *Mapper[T]) Delete(ctx context.Context, role string, id any) error {
	if err := m.Authorize(role, rbac.OpDelete); err != nil {
		return err
	}
	n, err := m.uow.Exec(ctx, m.table.Name, deleteFrom(m.table.Name, m.table.PrimaryKey, id))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", m.table.Name, id, shared.ErrNotFound)
	}
	return nil
}

func (m *Mapper[T]) read(op string, st uow.Statement, opts *QueryOptions) uow.Read {
	return uow.Read{Table: m.table.Name, Operation: op, Statement: st, IgnoreCache: opts.ignoreCache()}
}

func (m *Mapper[T]) check(entity *T) error {
	if entity == nil {
		return &shared.ValidationError{Reason: "entity required"}
	}
	if err := structValidator.Struct(entity); err != nil {
		return validationError(err)
	}
	if m.table.Check != nil {
		if err := m.table.Check(entity); err != nil {
			var verr *shared.ValidationError
			if errors.As(err, &verr) {
				return verr
			}
			return &shared.ValidationError{Reason: err.Error()}
		}
	}
	return nil
}

func isZero(v any) bool {
	return v == nil || reflect.ValueOf(v).IsZero()
}
