// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Classification metrics
	TransactionsClassified prometheus.Counter
	EventsClassified       *prometheus.CounterVec

	// Pricing metrics
	PriceLookups        *prometheus.CounterVec
	PriceSourceLatency  *prometheus.HistogramVec
	PriceSourceFailures prometheus.Counter

	// Ledger metrics
	LotsAcquired      prometheus.Counter
	Disposals         *prometheus.CounterVec
	LedgerEventErrors *prometheus.CounterVec

	// Chain metrics
	RPCCallLatency *prometheus.HistogramVec
	WSLogsReceived prometheus.Counter
	WSReconnects   prometheus.Counter

	// Pipeline metrics
	ReportRunsTotal  *prometheus.CounterVec
	ReportStageTime  *prometheus.HistogramVec
	ReportsDeduped   prometheus.Counter
	ReportsGenerated prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "chain_tax_lab"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		// Classification metrics
		TransactionsClassified: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "transactions_total",
			Help:      "Total number of transactions classified",
		}),
		EventsClassified: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "events_total",
			Help:      "Total number of classified events by category",
		}, []string{"category"}),

		// Pricing metrics
		PriceLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "lookups_total",
			Help:      "Total number of price resolutions by source",
		}, []string{"source"}),
		PriceSourceLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "external_latency_seconds",
			Help:      "External price source latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		PriceSourceFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "external_failures_total",
			Help:      "Total number of failed external price lookups",
		}),

		// Ledger metrics
		LotsAcquired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "lots_acquired_total",
			Help:      "Total number of cost lots created",
		}),
		Disposals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "disposals_total",
			Help:      "Total number of disposals by term and coverage",
		}, []string{"term", "coverage"}),
		LedgerEventErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "event_errors_total",
			Help:      "Total number of events the ledger rejected by category",
		}, []string{"category"}),

		// Chain metrics
		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_latency_seconds",
			Help:      "JSON-RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WSLogsReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "ws_logs_received_total",
			Help:      "Total number of log notifications received over websocket",
		}),
		WSReconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "ws_reconnects_total",
			Help:      "Total number of websocket reconnects",
		}),

		// Pipeline metrics
		ReportRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "runs_total",
			Help:      "Total number of report runs by status",
		}, []string{"status"}),
		ReportStageTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "stage_duration_seconds",
			Help:      "Report stage duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
		ReportsDeduped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "deduplicated_total",
			Help:      "Total number of report requests joined to an in-flight run",
		}),
		ReportsGenerated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "generated_total",
			Help:      "Total number of reports generated",
		}),

		// Database metrics
		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordClassified records one classified transaction and its events by category.
func RecordClassified(categories ...string) {
	DefaultMetrics.TransactionsClassified.Inc()
	for _, c := range categories {
		DefaultMetrics.EventsClassified.WithLabelValues(c).Inc()
	}
}

// RecordPriceLookup records a price resolution by source tag.
func RecordPriceLookup(source string) {
	DefaultMetrics.PriceLookups.WithLabelValues(source).Inc()
}

// RecordPriceSource records an external price call.
func RecordPriceSource(seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		DefaultMetrics.PriceSourceFailures.Inc()
	}
	DefaultMetrics.PriceSourceLatency.WithLabelValues(status).Observe(seconds)
}

// RecordLotAcquired increments the lots acquired counter.
func RecordLotAcquired() {
	DefaultMetrics.LotsAcquired.Inc()
}

// RecordDisposal records a disposal by holding term and whether lots covered it.
func RecordDisposal(longTerm, underflow bool) {
	term := "short"
	if longTerm {
		term = "long"
	}
	coverage := "full"
	if underflow {
		coverage = "underflow"
	}
	DefaultMetrics.Disposals.WithLabelValues(term, coverage).Inc()
}

// RecordLedgerError records an event the ledger could not apply.
func RecordLedgerError(category string) {
	DefaultMetrics.LedgerEventErrors.WithLabelValues(category).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordWSLog increments the websocket log counter.
func RecordWSLog() {
	DefaultMetrics.WSLogsReceived.Inc()
}

// RecordWSReconnect increments the websocket reconnect counter.
func RecordWSReconnect() {
	DefaultMetrics.WSReconnects.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordReportRun records a finished report run.
func RecordReportRun(status string) {
	DefaultMetrics.ReportRunsTotal.WithLabelValues(status).Inc()
	if status == "completed" {
		DefaultMetrics.ReportsGenerated.Inc()
	}
}

// RecordReportStage records the duration of one report stage.
func RecordReportStage(stage string, seconds float64) {
	DefaultMetrics.ReportStageTime.WithLabelValues(stage).Observe(seconds)
}

// RecordReportDeduped increments the joined-in-flight counter.
func RecordReportDeduped() {
	DefaultMetrics.ReportsDeduped.Inc()
}
