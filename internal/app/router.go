package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hackportal/hackportal-backend/internal/observability"
	"github.com/hackportal/hackportal-backend/internal/platform/httpx"
	"github.com/hackportal/hackportal-backend/internal/rbac"
	"github.com/hackportal/hackportal-backend/internal/shared"
)

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the ops router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	Roles   *rbac.Registry
	// Checks are run by /readyz, keyed by dependency name.
	Checks map[string]ReadinessCheck
}

// NewRouter constructs the ops chi.Router: health, readiness, metrics and
// effective role permissions.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		status := map[string]string{}
		code := http.StatusOK
		for name, check := range params.Checks {
			if err := check(ctx); err != nil {
				params.Logger.Warn("readiness check failed", slog.String("dependency", name), slog.Any("error", err))
				status[name] = "unavailable"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		httpx.JSON(w, code, status)
	})

	if params.Roles != nil {
		r.Get("/roles/{role}/permissions", func(w http.ResponseWriter, r *http.Request) {
			role := chi.URLParam(r, "role")
			if !params.Roles.Has(role) {
				httpx.RespondResult(w, shared.Failure(shared.ErrNotFound))
				return
			}
			httpx.RespondResult(w, shared.Success(params.Roles.Permissions(role)))
		})
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}
