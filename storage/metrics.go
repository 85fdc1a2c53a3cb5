package storage

import "github.com/prometheus/client_golang/prometheus"

type storeMetrics struct {
	recordsWritten  prometheus.Counter
	flushes         prometheus.Counter
	rotations       prometheus.Counter
	deletes         prometheus.Counter
	expirations     prometheus.Counter
	writesFailed    prometheus.Counter
	fsyncDuration   prometheus.Summary
	memtableRecords prometheus.Gauge
}

func newStoreMetrics(registerer prometheus.Registerer) *storeMetrics {
	m := &storeMetrics{}

	m.recordsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "records_written_total",
		Help: "Total number of records appended to segments.",
	})

	m.flushes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "memtable_flushes_total",
		Help: "Total number of memtable flushes.",
	})

	m.rotations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "segment_rotations_total",
		Help: "Total number of segments created because the active one was full.",
	})

	m.deletes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "records_deleted_total",
		Help: "Total number of records removed from segments.",
	})

	m.expirations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "records_expired_total",
		Help: "Total number of records removed because their TTL elapsed.",
	})

	m.writesFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "writes_failed_total",
		Help: "Total number of segment writes that failed.",
	})

	m.fsyncDuration = prometheus.NewSummary(prometheus.SummaryOpts{
		Name:       "fsync_duration_seconds",
		Help:       "Duration of segment fsync.",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	})

	m.memtableRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memtable_records",
		Help: "Number of records waiting in the memtable.",
	})

	if registerer != nil {
		prometheus.WrapRegistererWithPrefix("squid_storage_", registerer).MustRegister(
			m.recordsWritten,
			m.flushes,
			m.rotations,
			m.deletes,
			m.expirations,
			m.writesFailed,
			m.fsyncDuration,
			m.memtableRecords,
		)
	}

	return m
}
