package adminapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors exposed on /metrics, grounded on
// pkg/api/metrics.go's promauto wiring and repurposed from KV-store counters
// to the peer-local tree/gossip state described in SPEC_FULL.md §4.8.
//
// Each Metrics owns a private registry rather than registering into
// prometheus.DefaultRegisterer: a peer process only ever builds one, but
// tests build several in the same binary, and the default registerer
// panics on the second identically-named collector.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec

	localBlocks      prometheus.Gauge
	migratingBlocks  prometheus.Gauge
	queuedLeases     prometheus.Gauge
	gossipPeerSize   *prometheus.GaugeVec
	leaseOperations  *prometheus.CounterVec
	migrateOperation *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors into a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "distree_http_requests_total",
				Help: "Total number of admin HTTP requests.",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "distree_http_request_duration_seconds",
				Help:    "Admin HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "distree_http_requests_in_flight",
				Help: "Number of admin HTTP requests currently being processed.",
			},
			[]string{"method", "endpoint"},
		),
		localBlocks: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "distree_local_blocks",
				Help: "Number of tree blocks currently held by this peer.",
			},
		),
		migratingBlocks: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "distree_migrating_blocks",
				Help: "Number of blocks currently mid-migration off this peer.",
			},
		),
		queuedLeases: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "distree_queued_leases",
				Help: "Number of lease requests queued behind an in-flight migration.",
			},
		),
		gossipPeerSize: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "distree_gossip_peer_size",
				Help: "Block count last gossiped by the peer currently tracked as the lightest migrate target.",
			},
			[]string{"peer"},
		),
		leaseOperations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "distree_lease_operations_total",
				Help: "Total number of lease operations handled, by outcome.",
			},
			[]string{"status"},
		),
		migrateOperation: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "distree_migrate_operations_total",
				Help: "Total number of migrate operations triggered, by outcome.",
			},
			[]string{"status"},
		),
	}
}

// RecordHTTPRequest records one completed admin HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, d time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, http.StatusText(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

// RecordLease records a lease outcome ("ok" or "failed").
func (m *Metrics) RecordLease(ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.leaseOperations.WithLabelValues(status).Inc()
}

// RecordMigrate records a migrate outcome ("ok" or "failed").
func (m *Metrics) RecordMigrate(ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.migrateOperation.WithLabelValues(status).Inc()
}

// UpdateFromStats refreshes the point-in-time gauges from a coordinator
// snapshot.
func (m *Metrics) UpdateFromStats(s StatsSnapshot) {
	m.localBlocks.Set(float64(s.LocalBlocks))
	m.migratingBlocks.Set(float64(s.Migrating))
	m.queuedLeases.Set(float64(s.Queued))
	m.gossipPeerSize.Reset()
	m.gossipPeerSize.WithLabelValues(s.MigratePeer).Set(float64(s.MigrateSize))
}

// instrument wraps handler with in-flight tracking and request metrics,
// mirroring pkg/api/metrics.go's InstrumentHandler.
func (m *Metrics) instrument(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		gauge := m.httpRequestsInFlight.WithLabelValues(method, endpoint)
		gauge.Inc()
		defer gauge.Dec()

		rw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(rw, r)

		m.RecordHTTPRequest(method, endpoint, rw.statusCode, time.Since(start))
	}
}

// statusResponseWriter wraps http.ResponseWriter to capture the status code.
type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
