package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "cashdesk_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	importRunTotal   *prometheus.CounterVec
	importRunLatency *prometheus.HistogramVec
	importRowsTotal  *prometheus.CounterVec

	paymentApplyTotal   *prometheus.CounterVec
	paymentApplyLatency *prometheus.HistogramVec
	settlementGateTotal prometheus.Counter

	migrationTotal   *prometheus.CounterVec
	migrationLedgers *prometheus.CounterVec

	sessionLifecycleTotal *prometheus.CounterVec

	ledgerExportTotal   *prometheus.CounterVec
	ledgerExportLatency *prometheus.HistogramVec

	outboxDispatchTotal *prometheus.CounterVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		importRunTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "import_runs_total",
				Help: "Total import consolidation runs by result",
			},
			[]string{"result"},
		)
		importRunLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "import_run_latency_seconds",
				Help:    "Import consolidation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		importRowsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "import_rows_total",
				Help: "Imported rows by outcome (created, skipped)",
			},
			[]string{"outcome"},
		)

		paymentApplyTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payment_apply_total",
				Help: "Total payment applications by result",
			},
			[]string{"result"},
		)
		paymentApplyLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "payment_apply_latency_seconds",
				Help:    "Payment application latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		settlementGateTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_gate_fired_total",
				Help: "Total ledgers that crossed the settlement gate",
			},
		)

		migrationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "migration_runs_total",
				Help: "Total cross-session migration runs by result",
			},
			[]string{"result"},
		)
		migrationLedgers = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "migration_ledgers_total",
				Help: "Migrated ledgers by outcome (moved, skipped)",
			},
			[]string{"outcome"},
		)

		sessionLifecycleTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "session_lifecycle_total",
				Help: "Session lifecycle transitions by kind (open, close)",
			},
			[]string{"kind"},
		)

		ledgerExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ledger_export_total",
				Help: "Total ledger exports by format and result",
			},
			[]string{"format", "result"},
		)
		ledgerExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ledger_export_latency_seconds",
				Help:    "Ledger export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		outboxDispatchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_total",
				Help: "Outbox dispatch outcomes (sent, failed)",
			},
			[]string{"outcome"},
		)

		prometheus.MustRegister(
			importRunTotal,
			importRunLatency,
			importRowsTotal,
			paymentApplyTotal,
			paymentApplyLatency,
			settlementGateTotal,
			migrationTotal,
			migrationLedgers,
			sessionLifecycleTotal,
			ledgerExportTotal,
			ledgerExportLatency,
			outboxDispatchTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveImportRun records one consolidation run.
func ObserveImportRun(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if importRunTotal != nil {
		importRunTotal.WithLabelValues(result).Inc()
	}
	if importRunLatency != nil {
		importRunLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddImportRows adds to the per-outcome imported row counters.
func AddImportRows(outcome string, count int) {
	if count <= 0 || importRowsTotal == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	importRowsTotal.WithLabelValues(outcome).Add(float64(count))
}

// ObservePaymentApply records one payment application.
func ObservePaymentApply(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if paymentApplyTotal != nil {
		paymentApplyTotal.WithLabelValues(result).Inc()
	}
	if paymentApplyLatency != nil {
		paymentApplyLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncSettlementGate counts a gate crossing.
func IncSettlementGate() {
	if settlementGateTotal != nil {
		settlementGateTotal.Inc()
	}
}

// ObserveMigration records one migration run.
func ObserveMigration(result string) {
	if result == "" {
		result = resultSuccess
	}
	if migrationTotal != nil {
		migrationTotal.WithLabelValues(result).Inc()
	}
}

// AddMigratedLedgers adds to the per-outcome migration counters.
func AddMigratedLedgers(outcome string, count int) {
	if count <= 0 || migrationLedgers == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	migrationLedgers.WithLabelValues(outcome).Add(float64(count))
}

// IncSessionLifecycle counts a session open or close.
func IncSessionLifecycle(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if sessionLifecycleTotal != nil {
		sessionLifecycleTotal.WithLabelValues(kind).Inc()
	}
}

// ObserveLedgerExport records export latency and result.
func ObserveLedgerExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if ledgerExportTotal != nil {
		ledgerExportTotal.WithLabelValues(format, result).Inc()
	}
	if ledgerExportLatency != nil {
		ledgerExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// AddOutboxDispatch adds to the per-outcome dispatch counters.
func AddOutboxDispatch(outcome string, count int) {
	if count <= 0 || outboxDispatchTotal == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	outboxDispatchTotal.WithLabelValues(outcome).Add(float64(count))
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	RowOutcomeCreated = "created"
	RowOutcomeSkipped = "skipped"

	MigrationMoved   = "moved"
	MigrationSkipped = "skipped"

	DispatchSent   = "sent"
	DispatchFailed = "failed"
)
