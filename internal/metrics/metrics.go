// Package metrics provides Prometheus metrics for drafter
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for drafter. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// gRPC request metrics
	RPCRequestsTotal    *prometheus.CounterVec
	RPCRequestDuration  *prometheus.HistogramVec
	RPCRequestsInFlight prometheus.Gauge

	// Store metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec

	// Draft metrics
	VersionsAppendedTotal  prometheus.Counter
	RevertsTotal           prometheus.Counter
	ExportsTotal           prometheus.Counter
	ConsistencyFaultsTotal prometheus.Counter

	ServerStartTime time.Time
}

// NewMetrics creates all metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		ServerStartTime: time.Now(),
	}

	m.RPCRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drafter_grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "status"},
	)

	m.RPCRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "drafter_grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	m.RPCRequestsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "drafter_grpc_requests_in_flight",
			Help: "Number of gRPC requests currently being processed",
		},
	)

	m.StoreOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drafter_store_operations_total",
			Help: "Total number of draft store operations",
		},
		[]string{"operation", "status"},
	)

	m.StoreOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "drafter_store_operation_duration_seconds",
			Help:    "Duration of draft store operations in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation"},
	)

	m.VersionsAppendedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "drafter_versions_appended_total",
			Help: "Total number of draft versions created",
		},
	)

	m.RevertsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "drafter_reverts_total",
			Help: "Total number of successful reverts",
		},
	)

	m.ExportsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "drafter_exports_total",
			Help: "Total number of drafts saved to the export sink",
		},
	)

	m.ConsistencyFaultsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "drafter_consistency_faults_total",
			Help: "Current pointers that resolved to a missing or corrupt record",
		},
	)

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "drafter_server_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.ServerStartTime).Seconds() },
	)

	return m
}

// RecordRPCRequest records a gRPC request with its status
func (m *Metrics) RecordRPCRequest(method string, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RPCRequestsTotal.WithLabelValues(method, status).Inc()
	m.RPCRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordStoreOperation records a draft store operation
func (m *Metrics) RecordStoreOperation(operation string, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.StoreOperationsTotal.WithLabelValues(operation, status).Inc()
	m.StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncVersionsAppended counts a new version
func (m *Metrics) IncVersionsAppended() {
	if m != nil {
		m.VersionsAppendedTotal.Inc()
	}
}

// IncReverts counts a successful revert
func (m *Metrics) IncReverts() {
	if m != nil {
		m.RevertsTotal.Inc()
	}
}

// IncExports counts a successful save
func (m *Metrics) IncExports() {
	if m != nil {
		m.ExportsTotal.Inc()
	}
}

// IncConsistencyFaults counts a pointer that could not be resolved
func (m *Metrics) IncConsistencyFaults() {
	if m != nil {
		m.ConsistencyFaultsTotal.Inc()
	}
}

// TrackInFlight increments the in-flight gauge and returns its decrement
func (m *Metrics) TrackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.RPCRequestsInFlight.Inc()
	return m.RPCRequestsInFlight.Dec
}
