package mapper_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hackportal/hackportal-backend/internal/cache"
	"github.com/hackportal/hackportal-backend/internal/mapper"
	"github.com/hackportal/hackportal-backend/internal/pool"
	"github.com/hackportal/hackportal-backend/internal/pool/pooltest"
	"github.com/hackportal/hackportal-backend/internal/rbac"
	"github.com/hackportal/hackportal-backend/internal/shared"
	"github.com/hackportal/hackportal-backend/internal/uow"
	_ "github.com/hackportal/hackportal-backend/testing"
)

type category struct {
	UID       string  `db:"uid"`
	Name      string  `db:"name" validate:"required"`
	IsSponsor bool    `db:"is_sponsor"`
	Hackathon *string `db:"hackathon"`
}

var categoryTable = mapper.Table[category]{
	Name:            "CATEGORY_LIST",
	Alias:           "c",
	PrimaryKey:      "uid",
	Resource:        "category",
	HackathonColumn: "hackathon",
	Operations:      mapper.CRUD,
	GenerateKey:     true,
}

const (
	organizer = "organizer"
	visitor   = "visitor"
)

type fixture struct {
	driver *pooltest.Driver
	pool   *pool.Pool
	uow    *uow.UnitOfWork
	roles  *rbac.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	drv := pooltest.NewDriver()
	p, err := pool.New(drv.Dial, pool.Config{Capacity: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	backend, err := cache.NewMemoryBackend(cache.DefaultMemoryConfig())
	require.NoError(t, err)

	roles := rbac.NewRegistry()
	require.NoError(t, roles.Register(rbac.Role{Name: visitor, Permissions: []rbac.Operation{"category:read", "category:readall"}}))
	require.NoError(t, roles.Register(rbac.Role{
		Name:        organizer,
		Permissions: []rbac.Operation{"category:create", "category:update", "category:delete", "category:count"},
		Parents:     []string{visitor},
	}))
	return &fixture{
		driver: drv,
		pool:   p,
		uow:    uow.New(p, cache.NewService(backend, logger), logger),
		roles:  roles,
	}
}

func (f *fixture) categories(t *testing.T, opts ...mapper.Option) *mapper.Mapper[category] {
	t.Helper()
	m, err := mapper.New(categoryTable, f.uow, f.roles, nil, opts...)
	require.NoError(t, err)
	return m
}

func unscoped() *mapper.QueryOptions {
	return &mapper.QueryOptions{CurrentHackathonOnly: mapper.Bool(false)}
}

var categoryRows = pooltest.Result{
	Columns: []string{"uid", "name", "is_sponsor", "hackathon"},
	Rows: [][]any{
		{"c1", "Best Hack", false, "h1"},
		{"c2", "Best Sponsor Hack", true, nil},
	},
}

func TestGet(t *testing.T) {
	f := newFixture(t)
	f.driver.On("SELECT", pooltest.Result{Columns: categoryRows.Columns, Rows: categoryRows.Rows[:1]})

	got, err := f.categories(t).Get(context.Background(), visitor, "test uid", nil)
	require.NoError(t, err)
	require.Equal(t, "Best Hack", got.Name)
	require.NotNil(t, got.Hackathon)
	require.Equal(t, "h1", *got.Hackathon)

	calls := f.driver.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "SELECT * FROM CATEGORY_LIST WHERE (uid= $1);", calls[0].SQL)
	require.Equal(t, []any{"test uid"}, calls[0].Args)
}

func TestGetScopedOnRequest(t *testing.T) {
	f := newFixture(t)
	f.driver.On("SELECT", categoryRows)
	ctx := context.Background()

	_, err := f.categories(t).Get(ctx, visitor, "c1", &mapper.QueryOptions{CurrentHackathonOnly: mapper.Bool(true)})
	require.NoError(t, err)
	_, err = f.categories(t, mapper.WithScopedDefault(true)).Get(ctx, visitor, "c2", unscoped())
	require.NoError(t, err)

	calls := f.driver.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, "SELECT * FROM CATEGORY_LIST WHERE (uid= $1) AND (hackathon = (SELECT uid FROM HACKATHON WHERE (active = $2) LIMIT 1));", calls[0].SQL)
	require.Equal(t, []any{"c1", true}, calls[0].Args)
	require.Equal(t, "SELECT * FROM CATEGORY_LIST WHERE (uid= $1);", calls[1].SQL)
	require.Equal(t, []any{"c2"}, calls[1].Args)
}

func TestScopedDefaultOption(t *testing.T) {
	f := newFixture(t)
	m := f.categories(t, mapper.WithScopedDefault(false))

	_, err := m.GetCount(context.Background(), organizer, nil)
	require.NoError(t, err)
	_, err = m.GetCount(context.Background(), organizer, &mapper.QueryOptions{CurrentHackathonOnly: mapper.Bool(true), IgnoreCache: true})
	require.NoError(t, err)
	require.Equal(t, []string{
		`SELECT COUNT(uid) AS "count" FROM CATEGORY_LIST;`,
		`SELECT COUNT(uid) AS "count" FROM CATEGORY_LIST WHERE (hackathon = (SELECT uid FROM HACKATHON WHERE (active = $1) LIMIT 1));`,
	}, f.driver.SQL())
}

func TestGetNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.categories(t).Get(context.Background(), visitor, "missing", nil)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestChecksShortCircuitBeforeDatabase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.categories(t)

	_, err := m.Get(ctx, "stranger", "c1", nil)
	var denied *shared.PermissionDeniedError
	require.ErrorAs(t, err, &denied)
	require.Equal(t, "category:read", denied.Permission)

	_, err = m.Insert(ctx, visitor, &category{Name: "x"})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
	require.ErrorIs(t, m.Delete(ctx, visitor, "c1"), shared.ErrPermissionDenied)

	_, err = m.GetAll(ctx, visitor, &mapper.QueryOptions{Fields: []string{"nope"}})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = m.GetAll(ctx, visitor, &mapper.QueryOptions{Fields: []string{}})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = m.GetAll(ctx, visitor, &mapper.QueryOptions{Count: mapper.Int(-1)})
	var invalid *shared.ValidationError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "count", invalid.Field)

	// Permission is checked before options are validated.
	_, err = m.GetCount(ctx, visitor, &mapper.QueryOptions{Fields: []string{"nope"}})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	require.Empty(t, f.driver.Calls())
	require.Zero(t, f.driver.Dials())
}

func TestUnsupportedOperationPrecedesPermission(t *testing.T) {
	f := newFixture(t)
	table := categoryTable
	table.Operations = []rbac.Operation{rbac.OpRead, rbac.OpReadAll}
	m, err := mapper.New(table, f.uow, f.roles, nil)
	require.NoError(t, err)

	err = m.Delete(context.Background(), "stranger", "c1")
	var unsupported *shared.UnsupportedOperationError
	require.ErrorAs(t, err, &unsupported)
	require.Equal(t, "delete", unsupported.Operation)
	require.NotErrorIs(t, err, shared.ErrPermissionDenied)
	require.Empty(t, f.driver.Calls())
}

func TestGetAllStreamsEntities(t *testing.T) {
	f := newFixture(t)
	f.driver.On("SELECT", categoryRows)

	seq, err := f.categories(t).GetAll(context.Background(), visitor, &mapper.QueryOptions{
		CurrentHackathonOnly: mapper.Bool(false),
		StartAt:              mapper.Int(100),
		Count:                mapper.Int(100),
	})
	require.NoError(t, err)
	require.Empty(t, f.driver.Calls(), "query runs when the sequence is ranged over")

	var names []string
	for c, err := range seq {
		require.NoError(t, err)
		names = append(names, c.Name)
	}
	require.Equal(t, []string{"Best Hack", "Best Sponsor Hack"}, names)
	require.Equal(t, []string{"SELECT * FROM CATEGORY_LIST c OFFSET 100 LIMIT 100;"}, f.driver.SQL())
	require.Equal(t, 0, f.pool.Stats().Leased)
}

func TestGetAllProjection(t *testing.T) {
	f := newFixture(t)
	f.driver.On("SELECT", pooltest.Result{Columns: []string{"name"}, Rows: [][]any{{"Best Hack"}}})

	seq, err := f.categories(t).GetAll(context.Background(), visitor, &mapper.QueryOptions{
		Fields:               []string{"name"},
		CurrentHackathonOnly: mapper.Bool(false),
	})
	require.NoError(t, err)
	for c, err := range seq {
		require.NoError(t, err)
		require.Equal(t, "Best Hack", c.Name)
		require.Empty(t, c.UID)
	}
	require.Equal(t, []string{`SELECT "name" FROM CATEGORY_LIST c;`}, f.driver.SQL())
}

func TestGetCount(t *testing.T) {
	f := newFixture(t)
	f.driver.On("COUNT", pooltest.Result{Columns: []string{"count"}, Rows: [][]any{{int64(42)}}})

	n, err := f.categories(t).GetCount(context.Background(), organizer, nil)
	require.NoError(t, err)
	require.EqualValues(t, 42, n)
	require.Equal(t, []any{true}, f.driver.Calls()[0].Args)
}

func TestInsertGeneratesKey(t *testing.T) {
	f := newFixture(t)

	got, err := f.categories(t).Insert(context.Background(), organizer, &category{Name: "Best Hack"})
	require.NoError(t, err)
	_, err = uuid.Parse(got.UID)
	require.NoError(t, err)

	calls := f.driver.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "INSERT INTO CATEGORY_LIST (uid, name, is_sponsor, hackathon) VALUES ($1, $2, $3, $4);", calls[0].SQL)
	require.Equal(t, []any{got.UID, "Best Hack", false, nil}, calls[0].Args)
}

func TestInsertKeepsProvidedKeyAndValidates(t *testing.T) {
	f := newFixture(t)
	m := f.categories(t)

	got, err := m.Insert(context.Background(), organizer, &category{UID: "c9", Name: "Kept"})
	require.NoError(t, err)
	require.Equal(t, "c9", got.UID)

	_, err = m.Insert(context.Background(), organizer, &category{UID: "c10"})
	var invalid *shared.ValidationError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "name", invalid.Field)
	require.Len(t, f.driver.Calls(), 1)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	h := "h1"

	_, err := f.categories(t).Update(context.Background(), organizer, &category{UID: "c1", Name: "Renamed", IsSponsor: true, Hackathon: &h})
	require.NoError(t, err)
	calls := f.driver.Calls()
	require.Equal(t, "UPDATE CATEGORY_LIST SET name = $1, is_sponsor = $2, hackathon = $3 WHERE (uid= $4);", calls[0].SQL)
	require.Equal(t, []any{"Renamed", true, "h1", "c1"}, calls[0].Args)
}

func TestUpdateMissingRow(t *testing.T) {
	f := newFixture(t)
	f.driver.On("UPDATE", pooltest.Result{Affected: 0})

	_, err := f.categories(t).Update(context.Background(), organizer, &category{UID: "gone", Name: "x"})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.categories(t).Update(context.Background(), organizer, &category{Name: "x"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	m := f.categories(t)
	ctx := context.Background()

	require.NoError(t, m.Delete(ctx, organizer, "c1"))
	f.driver.Once("DELETE", pooltest.Result{Affected: 0})
	require.ErrorIs(t, m.Delete(ctx, organizer, "c1"), shared.ErrNotFound)
	require.Equal(t, []string{
		"DELETE FROM CATEGORY_LIST WHERE (uid= $1);",
		"DELETE FROM CATEGORY_LIST WHERE (uid= $1);",
	}, f.driver.SQL())
}

func TestWritesInvalidateCachedReads(t *testing.T) {
	f := newFixture(t)
	f.driver.On("COUNT", pooltest.Result{Columns: []string{"count"}, Rows: [][]any{{int64(2)}}})
	f.driver.On("SELECT", categoryRows)
	ctx := context.Background()
	m := f.categories(t)

	read := func() {
		_, err := m.Get(ctx, organizer, "c1", nil)
		require.NoError(t, err)
		seq, err := m.GetAll(ctx, organizer, nil)
		require.NoError(t, err)
		for _, err := range seq {
			require.NoError(t, err)
		}
		_, err = m.GetCount(ctx, organizer, nil)
		require.NoError(t, err)
	}

	read()
	require.Len(t, f.driver.Calls(), 3)
	read()
	require.Len(t, f.driver.Calls(), 3, "second round is served from the cache")

	_, err := m.Insert(ctx, organizer, &category{Name: "New"})
	require.NoError(t, err)
	read()
	require.Len(t, f.driver.Calls(), 7, "every read shape is recomputed after a write")
}

func TestIgnoreCache(t *testing.T) {
	f := newFixture(t)
	f.driver.On("SELECT", categoryRows)
	m := f.categories(t)
	opts := &mapper.QueryOptions{IgnoreCache: true}

	for range 2 {
		_, err := m.Get(context.Background(), visitor, "c1", opts)
		require.NoError(t, err)
	}
	require.Len(t, f.driver.Calls(), 2)
}

func TestTableCheckHook(t *testing.T) {
	f := newFixture(t)
	table := categoryTable
	table.Check = func(c *category) error {
		if c.IsSponsor && c.Hackathon == nil {
			return errors.New("sponsor categories need a hackathon")
		}
		return nil
	}
	m, err := mapper.New(table, f.uow, f.roles, nil)
	require.NoError(t, err)

	_, err = m.Insert(context.Background(), organizer, &category{Name: "Sponsor", IsSponsor: true})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, f.driver.Calls())
}

func TestNewRejectsBadTables(t *testing.T) {
	f := newFixture(t)

	_, err := mapper.New(mapper.Table[category]{PrimaryKey: "uid"}, f.uow, f.roles, nil)
	require.Error(t, err)
	_, err = mapper.New(mapper.Table[category]{Name: "X", PrimaryKey: "id"}, f.uow, f.roles, nil)
	require.Error(t, err)
	_, err = mapper.New(mapper.Table[category]{Name: "X", PrimaryKey: "uid", Operations: []rbac.Operation{"fly"}}, f.uow, f.roles, nil)
	require.Error(t, err)
	_, err = mapper.New(categoryTable, nil, f.roles, nil)
	require.Error(t, err)
}

func TestPagedRead(t *testing.T) {
	f := newFixture(t)
	f.driver.On("COUNT", pooltest.Result{Columns: []string{"count"}, Rows: [][]any{{int64(45)}}})
	ctx := context.Background()
	m := f.categories(t, mapper.WithScopedDefault(false))

	total, err := m.GetCount(ctx, organizer, nil)
	require.NoError(t, err)
	page := shared.NewPagination(3, 10, total)
	require.Equal(t, 5, page.TotalPages)

	seq, err := m.GetAll(ctx, organizer, mapper.Page(page))
	require.NoError(t, err)
	for _, err := range seq {
		require.NoError(t, err)
	}
	require.Equal(t, "SELECT * FROM CATEGORY_LIST c OFFSET 20 LIMIT 10;", f.driver.SQL()[1])
}
