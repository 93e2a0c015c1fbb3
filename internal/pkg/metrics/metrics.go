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
		Namespace: "discovery",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "discovery",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "discovery",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	ActiveMapSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "discovery",
		Subsystem: "ws",
		Name:      "active_map_sessions",
		Help:      "Current number of live map sessions",
	})

	// Geocoding
	GeocodeCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discovery",
		Subsystem: "geocode",
		Name:      "cache_hits_total",
		Help:      "Geocode lookups answered from cache",
	}, []string{"tier"})

	GeocodeCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "discovery",
		Subsystem: "geocode",
		Name:      "cache_misses_total",
		Help:      "Geocode lookups that reached the provider",
	})

	GeocodeCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "discovery",
		Subsystem: "geocode",
		Name:      "coalesced_total",
		Help:      "Geocode lookups that joined an in-flight request",
	})

	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discovery",
		Subsystem: "provider",
		Name:      "calls_total",
		Help:      "Outbound calls to the map provider",
	}, []string{"kind", "outcome"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "discovery",
		Subsystem: "provider",
		Name:      "latency_seconds",
		Help:      "Map provider call latency",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"kind"})

	// Discovery pipeline
	FetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discovery",
		Subsystem: "pipeline",
		Name:      "fetches_total",
		Help:      "Result fetches by outcome (started, skipped, superseded, delivered, failed)",
	}, []string{"outcome"})

	ColumnFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discovery",
		Subsystem: "pipeline",
		Name:      "column_fallbacks_total",
		Help:      "Retrievals retried with a narrower column set",
	}, []string{"kind"})

	MarkersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "discovery",
		Subsystem: "markers",
		Name:      "created_total",
		Help:      "Map markers created",
	})

	MarkersRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "discovery",
		Subsystem: "markers",
		Name:      "removed_total",
		Help:      "Map markers removed",
	})

	RouteRecomputations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discovery",
		Subsystem: "route",
		Name:      "recomputations_total",
		Help:      "Route computations by trigger and outcome",
	}, []string{"trigger", "outcome"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "discovery",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "discovery",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "discovery",
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

// UpdateDBPoolMetrics updates database pool gauges from a pool stat value.
// It accepts anything with the pgxpool.Stat accessors so this package stays
// independent of the driver.
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
