// Package metrics exposes the service's Prometheus collectors: HTTP traffic,
// risk engine outcomes, risk sweeps and database pool usage.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sicklecare/sicklecare/internal/domain/risk"
)

// unmatchedRoute labels requests that hit no registered route so arbitrary
// paths cannot explode label cardinality.
const unmatchedRoute = "unmatched"

var (
	durationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	scoreBuckets    = prometheus.LinearBuckets(10, 10, 10)
)

// Registry owns a private Prometheus registry and the collectors registered
// on it. It satisfies risk.Observer.
type Registry struct {
	reg *prometheus.Registry

	riskScore prometheus.Histogram
	riskTier  *prometheus.CounterVec
	insights  *prometheus.CounterVec
	sweeps    *prometheus.CounterVec
	ingest    *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpActive   prometheus.Gauge
}

var _ risk.Observer = (*Registry)(nil)

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		riskScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_score",
			Help:    "Distribution of computed daily risk scores.",
			Buckets: scoreBuckets,
		}),
		riskTier: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_tier_total",
			Help: "Daily risk computations by resulting tier.",
		}, []string{"tier"}),
		insights: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "insight_total",
			Help: "Insight computations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_sweep_runs_total",
			Help: "Risk sweep runs by result.",
		}, []string{"result"}),
		ingest: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lab_ingest_messages_total",
			Help: "Lab result messages consumed by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: durationBuckets,
		}, []string{"method", "path"}),
		httpActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_server_active_requests",
			Help: "Number of in-flight HTTP requests.",
		}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.riskScore, r.riskTier, r.insights, r.sweeps, r.ingest,
		r.httpRequests, r.httpDuration, r.httpActive,
	)
	return r
}

// Gatherer exposes the registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func (r *Registry) ObserveRisk(score int, tier risk.Tier) {
	r.riskScore.Observe(float64(score))
	r.riskTier.WithLabelValues(string(tier)).Inc()
}

func (r *Registry) ObserveInsight(kind, outcome string) {
	r.insights.WithLabelValues(kind, outcome).Inc()
}

// ObserveSweep counts one finished risk sweep; result is "ok" or "partial".
func (r *Registry) ObserveSweep(result string) {
	r.sweeps.WithLabelValues(result).Inc()
}

// ObserveIngest counts one consumed lab message; outcome is "stored" or
// "rejected".
func (r *Registry) ObserveIngest(outcome string) {
	r.ingest.WithLabelValues(outcome).Inc()
}

// RegisterPool publishes connection pool gauges read at scrape time.
func (r *Registry) RegisterPool(pool *pgxpool.Pool) {
	gauge := func(name, help string, f func(*pgxpool.Stat) int32) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: name,
			Help: help,
		}, func() float64 { return float64(f(pool.Stat())) })
	}
	r.reg.MustRegister(
		gauge("db_pool_acquired_connections", "Connections currently in use.", (*pgxpool.Stat).AcquiredConns),
		gauge("db_pool_idle_connections", "Idle connections in the pool.", (*pgxpool.Stat).IdleConns),
		gauge("db_pool_total_connections", "Total connections in the pool.", (*pgxpool.Stat).TotalConns),
	)
}

// Middleware records request counts and latency labelled by route pattern.
func (r *Registry) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r.httpActive.Inc()
			defer r.httpActive.Dec()

			start := time.Now()
			err := next(c)
			elapsed := time.Since(start).Seconds()

			route := c.Path()
			if route == "" {
				route = unmatchedRoute
			}
			method := c.Request().Method

			r.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusOf(c, err))).Inc()
			r.httpDuration.WithLabelValues(method, route).Observe(elapsed)
			return err
		}
	}
}

// statusOf reports the status the client will see, including errors the
// echo error handler has not written yet.
func statusOf(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg}))
}
