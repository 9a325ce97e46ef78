// Package metrics exposes Prometheus collectors for the ledger runtime: the
// storage hook histograms and counters for boundary operations and transfers.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles all collectors behind one registry. It implements
// pebblestore.MetricsHook so storage latencies flow in without the storage
// layer importing Prometheus.
type Metrics struct {
	registry *prometheus.Registry

	readLatency   prometheus.Histogram
	commitLatency prometheus.Histogram
	commitBytes   prometheus.Counter

	// Operations counts boundary operations by op and outcome (ok/error).
	Operations *prometheus.CounterVec
	// Transfers counts scheduled fund transfers by outcome.
	Transfers *prometheus.CounterVec
}

// New builds a Metrics with its own registry, including Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		readLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "paystream_storage_read_seconds",
			Help:    "Latency of ledger point reads.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		commitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "paystream_storage_commit_seconds",
			Help:    "Latency of ledger batch commits.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		commitBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paystream_storage_commit_bytes_total",
			Help: "Bytes committed to the ledger across all batches.",
		}),
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paystream_operations_total",
			Help: "Boundary operations by name and outcome.",
		}, []string{"op", "outcome"}),
		Transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paystream_transfers_total",
			Help: "Scheduled fund transfers by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		m.readLatency,
		m.commitLatency,
		m.commitBytes,
		m.Operations,
		m.Transfers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRead implements pebblestore.MetricsHook.
func (m *Metrics) ObserveRead(elapsed time.Duration, _ int) {
	m.readLatency.Observe(elapsed.Seconds())
}

// ObserveBatchCommit implements pebblestore.MetricsHook.
func (m *Metrics) ObserveBatchCommit(elapsed time.Duration, bytes int) {
	m.commitLatency.Observe(elapsed.Seconds())
	m.commitBytes.Add(float64(bytes))
}

// OpResult returns the outcome label for an operation error.
func OpResult(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
