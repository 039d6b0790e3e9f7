// Package metrics holds the Prometheus collectors for bratgest. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bratgest"

// Metrics groups every collector the service exports.
type Metrics struct {
	documentsRead *prometheus.CounterVec
	recordsParsed *prometheus.CounterVec
	snapshotOps   *prometheus.CounterVec
	snapshotBytes *prometheus.HistogramVec
	documentsHeld prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg skips
// registration, which tests use to avoid global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		documentsRead: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_read_total",
				Help:      "Documents read into a dataset",
			},
			[]string{"status"}, // ok, error
		),
		recordsParsed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_parsed_total",
				Help:      "Annotation records parsed",
			},
			[]string{"kind"},
		),
		snapshotOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshot_operations_total",
				Help:      "Snapshot save and load operations",
			},
			[]string{"op", "status"},
		),
		snapshotBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "snapshot_size_bytes",
				Help:      "Compressed snapshot size",
				Buckets:   prometheus.ExponentialBuckets(1024, 4, 8), // 1KiB .. 16MiB
			},
			[]string{"op"},
		),
		documentsHeld: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "documents",
				Help:      "Documents currently held by the dataset",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Collectors()...)
	}
	return m
}

// Collectors lists every collector for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.documentsRead,
		m.recordsParsed,
		m.snapshotOps,
		m.snapshotBytes,
		m.documentsHeld,
	}
}

// DocumentRead records one attempted document read.
func (m *Metrics) DocumentRead(err error) {
	if m == nil {
		return
	}
	m.documentsRead.WithLabelValues(status(err)).Inc()
}

// RecordsParsed adds n parsed records of the given kind.
func (m *Metrics) RecordsParsed(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsParsed.WithLabelValues(kind).Add(float64(n))
}

// Snapshot records a save or load and, on success, its size.
func (m *Metrics) Snapshot(op string, size int, err error) {
	if m == nil {
		return
	}
	m.snapshotOps.WithLabelValues(op, status(err)).Inc()
	if err == nil {
		m.snapshotBytes.WithLabelValues(op).Observe(float64(size))
	}
}

// SetDocuments sets the held-documents gauge.
func (m *Metrics) SetDocuments(n int) {
	if m == nil {
		return
	}
	m.documentsHeld.Set(float64(n))
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
