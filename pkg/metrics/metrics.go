package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Document metrics
	DocumentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "replicate_documents_total",
			Help: "Total number of known documents by collection",
		},
		[]string{"collection"},
	)

	DocumentsPending = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "replicate_documents_pending",
			Help: "Documents with an in-flight or scheduled sync flush",
		},
		[]string{"collection"},
	)

	// WAL metrics
	WALRowsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "replicate_wal_rows_total",
			Help: "Delta rows currently held in the write-ahead log",
		},
		[]string{"collection"},
	)

	CompactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replicate_wal_compactions_total",
			Help: "Total number of WAL compactions performed",
		},
		[]string{"collection"},
	)

	CompactionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "replicate_wal_compaction_duration_seconds",
			Help:    "Time taken to compact a document's WAL into a snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Sync Actor metrics
	SyncFlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replicate_sync_flushes_total",
			Help: "Total number of sync flushes attempted by outcome",
		},
		[]string{"collection", "outcome"},
	)

	SyncRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replicate_sync_retries_total",
			Help: "Total number of retried sync RPC calls",
		},
		[]string{"collection"},
	)

	SyncFlushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "replicate_sync_flush_duration_seconds",
			Help:    "Time taken to push a delta to the authority",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	// Replicator metrics
	CursorPosition = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "replicate_replicator_cursor_position",
			Help: "Last persisted stream cursor for a collection",
		},
		[]string{"collection"},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "replicate_reconciliation_cycles_total",
			Help: "Total number of phantom-document reconciliation cycles completed",
		},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "replicate_reconciliation_duration_seconds",
			Help:    "Time taken for a reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Handshake metrics
	HandshakeOK = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "replicate_handshake_ok",
			Help: "Whether the last protocol handshake succeeded (1) or is fatally mismatched (0)",
		},
	)

	// Transaction Coordinator metrics
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replicate_transactions_total",
			Help: "Total number of transactions by outcome",
		},
		[]string{"outcome"},
	)

	TransactionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "replicate_transaction_duration_seconds",
			Help:    "Time taken to stage and commit a transaction",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Migrator metrics
	MigrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replicate_migrations_total",
			Help: "Total number of schema migrations applied by collection and outcome",
		},
		[]string{"collection", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(DocumentsTotal)
	prometheus.MustRegister(DocumentsPending)
	prometheus.MustRegister(WALRowsTotal)
	prometheus.MustRegister(CompactionsTotal)
	prometheus.MustRegister(CompactionDuration)
	prometheus.MustRegister(SyncFlushesTotal)
	prometheus.MustRegister(SyncRetriesTotal)
	prometheus.MustRegister(SyncFlushDuration)
	prometheus.MustRegister(CursorPosition)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(HandshakeOK)
	prometheus.MustRegister(TransactionsTotal)
	prometheus.MustRegister(TransactionDuration)
	prometheus.MustRegister(MigrationsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
