package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dote",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dote",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dote",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Walk metrics
	WalksStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dote",
		Subsystem: "walk",
		Name:      "started_total",
		Help:      "Total walk sessions started",
	})

	WalksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dote",
		Subsystem: "walk",
		Name:      "finished_total",
		Help:      "Total walk sessions reaching a terminal state",
	}, []string{"outcome"})

	WalkPointsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dote",
		Subsystem: "walk",
		Name:      "points_ingested_total",
		Help:      "Total GPS fixes accepted into active walks",
	}, []string{"source"})

	PointFlushErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dote",
		Subsystem: "walk",
		Name:      "point_flush_errors_total",
		Help:      "Total failed writes of buffered walk points",
	})

	// Territory metrics
	MergeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dote",
		Subsystem: "territory",
		Name:      "merge_duration_seconds",
		Help:      "Duration of territory merges",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	MergeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dote",
		Subsystem: "territory",
		Name:      "merge_failures_total",
		Help:      "Total merges that kept the existing territory because the union failed",
	})

	VersionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dote",
		Subsystem: "territory",
		Name:      "version_conflicts_total",
		Help:      "Total territory writes retried after a concurrent update",
	})

	AreaGainedKm2 = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dote",
		Subsystem: "territory",
		Name:      "area_gained_km2",
		Help:      "Territory gained per completed walk",
		Buckets:   []float64{0, 0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	PawsCredited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dote",
		Subsystem: "rewards",
		Name:      "paws_credited_total",
		Help:      "Total Paws credited to walkers",
	})

	CollarFixes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dote",
		Subsystem: "collar",
		Name:      "fixes_total",
		Help:      "Total collar fixes received over MQTT",
	}, []string{"result"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dote",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dote",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dote",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dote",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dote",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dote",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics copies pgxpool stats into the pool gauges. It takes
// an interface so this package does not import pgxpool.
func UpdateDBPoolMetrics(stat interface{}) {
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}
