package api

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsNamespace prefixes every metric the service exports.
const metricsNamespace = "parhelion_analytics"

// PoolStatsSource reports connection pool statistics. ok is false until a
// pool exists.
type PoolStatsSource interface {
	Stats() (stats sql.DBStats, ok bool)
}

// Metrics is the service's Prometheus registry and the collectors it owns.
//
// It records HTTP traffic and database probe outcomes, and exposes pool
// statistics on scrape. Metrics satisfies database.ProbeObserver.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	probes       *prometheus.CounterVec
	probeLatency prometheus.Histogram
}

// NewMetrics creates a registry with Go runtime and process collectors plus
// the service's HTTP and probe metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "route"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "database",
			Name:      "probes_total",
			Help:      "Database connectivity probes by result.",
		}, []string{"result"}),
		probeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "database",
			Name:      "probe_duration_seconds",
			Help:      "Duration of database connectivity probes.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}),
	}

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.probes,
		m.probeLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WatchPool registers a collector that reads pool statistics on every
// scrape. Nothing is exported while the source reports no pool.
func (m *Metrics) WatchPool(source PoolStatsSource) error {
	return m.registry.Register(newPoolCollector(source))
}

// ObserveProbe records one database probe outcome.
func (m *Metrics) ObserveProbe(connected bool, latency time.Duration) {
	result := "disconnected"
	if connected {
		result = "connected"
	}
	m.probes.WithLabelValues(result).Inc()
	m.probeLatency.Observe(latency.Seconds())
}

// Handler exposes the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// observeRequest records one finished HTTP request.
func (m *Metrics) observeRequest(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// poolCollector exports sql.DBStats as gauges and counters.
type poolCollector struct {
	source PoolStatsSource

	maxOpen      *prometheus.Desc
	open         *prometheus.Desc
	inUse        *prometheus.Desc
	idle         *prometheus.Desc
	waitCount    *prometheus.Desc
	waitDuration *prometheus.Desc
	maxIdleTime  *prometheus.Desc
	maxLifetime  *prometheus.Desc
}

func newPoolCollector(source PoolStatsSource) *poolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "db_pool", name), help, nil, nil)
	}
	return &poolCollector{
		source:       source,
		maxOpen:      desc("max_open_connections", "Maximum number of open connections to the database."),
		open:         desc("open_connections", "The number of established connections both in use and idle."),
		inUse:        desc("in_use_connections", "The number of connections currently in use."),
		idle:         desc("idle_connections", "The number of idle connections."),
		waitCount:    desc("wait_count_total", "The total number of connections waited for."),
		waitDuration: desc("wait_duration_seconds_total", "The total time blocked waiting for a new connection."),
		maxIdleTime:  desc("max_idle_time_closed_total", "The total number of connections closed due to SetConnMaxIdleTime."),
		maxLifetime:  desc("max_lifetime_closed_total", "The total number of connections closed due to SetConnMaxLifetime."),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.maxOpen
	ch <- c.open
	ch <- c.inUse
	ch <- c.idle
	ch <- c.waitCount
	ch <- c.waitDuration
	ch <- c.maxIdleTime
	ch <- c.maxLifetime
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	stats, ok := c.source.Stats()
	if !ok {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.maxOpen, prometheus.GaugeValue, float64(stats.MaxOpenConnections))
	ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, float64(stats.OpenConnections))
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(stats.InUse))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(stats.Idle))
	ch <- prometheus.MustNewConstMetric(c.waitCount, prometheus.CounterValue, float64(stats.WaitCount))
	ch <- prometheus.MustNewConstMetric(c.waitDuration, prometheus.CounterValue, stats.WaitDuration.Seconds())
	ch <- prometheus.MustNewConstMetric(c.maxIdleTime, prometheus.CounterValue, float64(stats.MaxIdleTimeClosed))
	ch <- prometheus.MustNewConstMetric(c.maxLifetime, prometheus.CounterValue, float64(stats.MaxLifetimeClosed))
}
