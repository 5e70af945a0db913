package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hackportal/hackportal-backend/internal/pool"
	"github.com/hackportal/hackportal-backend/internal/shared"
)

// Metrics collects Prometheus metrics for the data-access core and the ops
// HTTP surface. It implements the observer hooks of the pool, cache and
// unit of work packages.
type Metrics struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	acquireWait       prometheus.Histogram
	acquireFailures   *prometheus.CounterVec
	cacheOutcomes     *prometheus.CounterVec
	statementDuration *prometheus.HistogramVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hackportal_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hackportal_http_request_duration_seconds",
		Help:    "HTTP request duration by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	acquireWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hackportal_pool_acquire_wait_seconds",
		Help:    "Time spent waiting for a database connection lease.",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	})
	acquireFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hackportal_pool_acquire_failures_total",
		Help: "Failed connection leases by error kind.",
	}, []string{"kind"})
	cacheOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hackportal_cache_operations_total",
		Help: "Cache lookups and invalidations by outcome.",
	}, []string{"outcome"})
	statements := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hackportal_statement_duration_seconds",
		Help:    "Database statement duration by kind and error kind.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind", "error"})
	registry.MustRegister(requests, duration, acquireWait, acquireFailures, cacheOutcomes, statements)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		acquireWait:       acquireWait,
		acquireFailures:   acquireFailures,
		cacheOutcomes:     cacheOutcomes,
		statementDuration: statements,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveAcquire implements pool.Observer.
func (m *Metrics) ObserveAcquire(wait time.Duration, err error) {
	if m == nil {
		return
	}
	m.acquireWait.Observe(wait.Seconds())
	if err != nil {
		m.acquireFailures.WithLabelValues(shared.ErrorKind(err)).Inc()
	}
}

// ObserveCache implements cache.Observer.
func (m *Metrics) ObserveCache(outcome string) {
	if m == nil {
		return
	}
	m.cacheOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveStatement implements uow.Observer.
func (m *Metrics) ObserveStatement(kind string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.statementDuration.WithLabelValues(kind, shared.ErrorKind(err)).Observe(d.Seconds())
}

// RegisterPool exports the lease counters of p as gauges.
func (m *Metrics) RegisterPool(p *pool.Pool) error {
	gauge := func(name, help string, value func(pool.Stats) int) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			return float64(value(p.Stats()))
		})
	}
	for _, c := range []prometheus.Collector{
		gauge("hackportal_pool_capacity", "Maximum open connections.", func(s pool.Stats) int { return s.Capacity }),
		gauge("hackportal_pool_leased", "Connections currently leased.", func(s pool.Stats) int { return s.Leased }),
		gauge("hackportal_pool_idle", "Idle connections kept for reuse.", func(s pool.Stats) int { return s.Idle }),
	} {
		if err := m.Registerer().Register(c); err != nil {
			return err
		}
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
