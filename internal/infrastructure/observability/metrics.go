package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the application's Prometheus metrics. Each instance owns
// its registry, so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHits                *prometheus.CounterVec
	CacheMisses              *prometheus.CounterVec
	CacheStaleHits           *prometheus.CounterVec
	CacheInvalidations       *prometheus.CounterVec
	CacheBackgroundRefreshes *prometheus.CounterVec
	CacheLoads               *prometheus.CounterVec
	CacheLockWaitTimeouts    *prometheus.CounterVec
	CacheWarmDuration        *prometheus.HistogramVec
	CacheWarmItems           *prometheus.CounterVec

	// Repository metrics
	DBOperations *prometheus.CounterVec
	DBDuration   *prometheus.HistogramVec

	// Messaging metrics
	EventsPublished *prometheus.CounterVec
}

// NewCollector creates a collector with metrics under namespace.
func NewCollector(namespace string) *Collector {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}
	histogram := func(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		}, labels)
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),

		HTTPRequests: counter("http_requests_total", "Total number of HTTP requests", "method", "route", "status"),
		HTTPDuration: histogram("http_request_duration_seconds", "HTTP request duration in seconds", prometheus.DefBuckets, "method", "route"),

		CacheHits:                counter("cache_hits_total", "Cache reads served from the cache", "cache_type"),
		CacheMisses:              counter("cache_misses_total", "Cache reads that found nothing", "cache_type"),
		CacheStaleHits:           counter("cache_stale_hits_total", "Stale values served while revalidating", "cache_type"),
		CacheInvalidations:       counter("cache_invalidations_total", "Cache invalidations by reason", "cache_type", "reason"),
		CacheBackgroundRefreshes: counter("cache_background_refreshes_total", "Background refreshes by outcome", "cache_type", "result"),
		CacheLoads:               counter("cache_loads_total", "Read-through results by source", "cache_type", "source"),
		CacheLockWaitTimeouts:    counter("cache_lock_wait_timeouts_total", "Read-through waits that gave up and loaded directly", "cache_type"),
		CacheWarmDuration:        histogram("cache_warm_duration_seconds", "Duration of individual cache warmers", []float64{.01, .05, .1, .5, 1, 5, 10, 30}, "warmer", "result"),
		CacheWarmItems:           counter("cache_warm_items_total", "Items stored by cache warmers", "warmer"),

		DBOperations: counter("db_operations_total", "Total number of database operations", "operation", "status"),
		DBDuration:   histogram("db_operation_duration_seconds", "Database operation duration in seconds", prometheus.DefBuckets, "operation"),

		EventsPublished: counter("events_published_total", "Domain events sent to the event bus", "detail_type", "status"),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.HTTPRequests,
		c.HTTPDuration,
		c.CacheHits,
		c.CacheMisses,
		c.CacheStaleHits,
		c.CacheInvalidations,
		c.CacheBackgroundRefreshes,
		c.CacheLoads,
		c.CacheLockWaitTimeouts,
		c.CacheWarmDuration,
		c.CacheWarmItems,
		c.DBOperations,
		c.DBDuration,
		c.EventsPublished,
	)
	return c
}

// Registry returns the Prometheus registry for this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) CacheHit(cacheType string) {
	c.CacheHits.WithLabelValues(cacheType).Inc()
}

func (c *Collector) CacheMiss(cacheType string) {
	c.CacheMisses.WithLabelValues(cacheType).Inc()
}

func (c *Collector) CacheInvalidation(cacheType, reason string) {
	c.CacheInvalidations.WithLabelValues(cacheType, reason).Inc()
}

func (c *Collector) CacheStaleHit(cacheType string) {
	c.CacheStaleHits.WithLabelValues(cacheType).Inc()
}

func (c *Collector) CacheBackgroundRefresh(cacheType string, success bool) {
	c.CacheBackgroundRefreshes.WithLabelValues(cacheType, result(success)).Inc()
}

func (c *Collector) CacheLoad(cacheType string, fromCache bool) {
	source := "loader"
	if fromCache {
		source = "cache"
	}
	c.CacheLoads.WithLabelValues(cacheType, source).Inc()
}

func (c *Collector) CacheLockWaitTimeout(cacheType string) {
	c.CacheLockWaitTimeouts.WithLabelValues(cacheType).Inc()
}

func (c *Collector) CacheWarm(name string, success bool, duration time.Duration, items int) {
	c.CacheWarmDuration.WithLabelValues(name, result(success)).Observe(duration.Seconds())
	if items > 0 {
		c.CacheWarmItems.WithLabelValues(name).Add(float64(items))
	}
}

// RecordDBOperation records one repository call.
func (c *Collector) RecordDBOperation(operation string, duration time.Duration, err error) {
	c.DBOperations.WithLabelValues(operation, status(err)).Inc()
	c.DBDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEventPublished records the outcome of publishing one event.
func (c *Collector) RecordEventPublished(detailType string, err error) {
	c.EventsPublished.WithLabelValues(detailType, status(err)).Inc()
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
