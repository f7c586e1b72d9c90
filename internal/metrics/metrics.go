// Package metrics exposes Prometheus instrumentation for the sync
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	SyncRuns         *prometheus.CounterVec
	RecordsSynced    prometheus.Counter
	RecordsFailed    prometheus.Counter
	ConflictsFound   prometheus.Counter
	TombstonesPurged prometheus.Counter
	SyncInProgress   prometheus.Gauge
	SyncDuration     prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SyncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brewsync",
			Name:      "sync_runs_total",
			Help:      "Bulk sync runs by outcome (complete, offline).",
		}, []string{"outcome"}),
		RecordsSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "brewsync",
			Name:      "records_synced_total",
			Help:      "Records confirmed by the server during sync.",
		}),
		RecordsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "brewsync",
			Name:      "records_failed_total",
			Help:      "Per-record sync failures.",
		}),
		ConflictsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "brewsync",
			Name:      "conflicts_total",
			Help:      "Conflicts detected during reconciliation.",
		}),
		TombstonesPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "brewsync",
			Name:      "tombstones_purged_total",
			Help:      "Tombstones removed by garbage collection.",
		}),
		SyncInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "brewsync",
			Name:      "sync_in_progress",
			Help:      "1 while a bulk sync batch is running.",
		}),
		SyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "brewsync",
			Name:      "sync_duration_seconds",
			Help:      "Duration of bulk sync batches.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.SyncRuns,
		m.RecordsSynced,
		m.RecordsFailed,
		m.ConflictsFound,
		m.TombstonesPurged,
		m.SyncInProgress,
		m.SyncDuration,
	)

	return m
}

// NewUnregistered creates collectors without registering them. Used by
// tests and as the engine's default when no registry is supplied.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
