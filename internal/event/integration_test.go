//go:build integration

package event_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hackportal/hackportal-backend/internal/cache"
	"github.com/hackportal/hackportal-backend/internal/event"
	"github.com/hackportal/hackportal-backend/internal/mapper"
	"github.com/hackportal/hackportal-backend/internal/platform/db"
	"github.com/hackportal/hackportal-backend/internal/pool"
	"github.com/hackportal/hackportal-backend/internal/rbac"
	"github.com/hackportal/hackportal-backend/internal/shared"
	"github.com/hackportal/hackportal-backend/internal/uow"
)

func startPostgres(t *testing.T) *event.Mappers {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("hackportal"),
		postgres.WithUsername("hackportal"),
		postgres.WithPassword("hackportal"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx, dsn))

	dial, err := db.Dialer(dsn, 5*time.Second)
	require.NoError(t, err)
	p, err := pool.New(dial, pool.Config{Capacity: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend, err := cache.NewMemoryBackend(cache.DefaultMemoryConfig())
	require.NoError(t, err)
	roles := rbac.NewRegistry()
	require.NoError(t, rbac.RegisterDefaults(roles))

	mappers, err := event.NewMappers(uow.New(p, cache.NewService(backend, logger), logger), roles, logger)
	require.NoError(t, err)
	return mappers
}

func TestPostgresRoundTripAndActivation(t *testing.T) {
	m := startPostgres(t)
	ctx := context.Background()
	start := time.Now().UTC().Truncate(time.Microsecond)

	for _, uid := range []string{"h1", "h2"} {
		_, err := m.Hackathons.Insert(ctx, rbac.RoleDirector, &event.Hackathon{UID: uid, Name: "Hack " + uid, StartTime: start})
		require.NoError(t, err)
	}
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		_, err := m.PreRegistrations.Insert(ctx, rbac.RolePublic, &event.PreRegistration{Email: email})
		require.NoError(t, err)
	}
	_, err := m.PreRegistrations.Insert(ctx, rbac.RolePublic, &event.PreRegistration{Email: "a@example.com"})
	require.ErrorIs(t, err, shared.ErrConstraintViolation)

	require.NoError(t, m.Hackathons.MakeActive(ctx, rbac.RoleDirector, "h1"))
	h1, err := m.Hackathons.Get(ctx, rbac.RolePublic, "h1", nil)
	require.NoError(t, err)
	require.True(t, h1.Active)
	require.NotNil(t, h1.BasePin)
	require.EqualValues(t, 3, *h1.BasePin)
	require.True(t, start.Equal(h1.StartTime))

	t.Run("insert then get", func(t *testing.T) {
		sponsor := "ACME"
		hackathon := "h1"
		want := &event.Category{Name: "Best Hack", IsSponsor: true, Sponsor: &sponsor, Hackathon: &hackathon}
		_, err := m.Categories.Insert(ctx, rbac.RoleDirector, want)
		require.NoError(t, err)

		got, err := m.Categories.Get(ctx, rbac.RolePublic, want.UID, nil)
		require.NoError(t, err)
		require.Equal(t, want, got)

		n, err := m.Categories.GetCount(ctx, rbac.RoleTeamMember, nil)
		require.NoError(t, err)
		require.EqualValues(t, 1, n)
	})

	t.Run("unknown hackathon keeps the active one", func(t *testing.T) {
		err := m.Hackathons.MakeActive(ctx, rbac.RoleDirector, "nope")
		require.ErrorIs(t, err, shared.ErrTransactionAborted)
		h1, err := m.Hackathons.Get(ctx, rbac.RolePublic, "h1", nil)
		require.NoError(t, err)
		require.True(t, h1.Active)
	})

	t.Run("concurrent activations leave one active", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, uid := range []string{"h1", "h2"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = m.Hackathons.MakeActive(ctx, rbac.RoleDirector, uid)
			}()
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			require.True(t, errors.Is(err, shared.ErrTransactionAborted), "unexpected error: %v", err)
		}
		require.GreaterOrEqual(t, succeeded, 1)

		seq, err := m.Hackathons.GetAll(ctx, rbac.RolePublic, &mapper.QueryOptions{IgnoreCache: true})
		require.NoError(t, err)
		active := 0
		for h, err := range seq {
			require.NoError(t, err)
			if h.Active {
				active++
			}
		}
		require.Equal(t, 1, active)
	})
}
