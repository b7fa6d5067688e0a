package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	transferOutcomes      *prometheus.CounterVec
	pinFailureCounter     *prometheus.CounterVec
	ledgerDriftCounter    prometheus.Counter
	ledgerDriftGauge      prometheus.Gauge
	idempotencyCounter    *prometheus.CounterVec
	workerRunCounter      *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		transferOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transfer_outcomes_total",
			Help: "Terminal states reached by transfer requests",
		}, []string{"state"})

		pinFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pin_failures_total",
			Help: "Rejected PIN confirmations",
		}, []string{"reason"})

		ledgerDriftCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_drift_total",
			Help: "Accounts found whose balance disagrees with their ledger",
		})

		ledgerDriftGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_drifted_accounts",
			Help: "Drifted accounts found by the latest reconciliation run",
		})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			transferOutcomes,
			pinFailureCounter,
			ledgerDriftCounter,
			ledgerDriftGauge,
			idempotencyCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementTransferOutcome(state string) {
	if transferOutcomes == nil {
		return
	}
	transferOutcomes.WithLabelValues(state).Inc()
}

func IncrementPinFailure(reason string) {
	if pinFailureCounter == nil {
		return
	}
	pinFailureCounter.WithLabelValues(reason).Inc()
}

// RecordLedgerDrift counts drifted accounts and publishes the latest run's total.
func RecordLedgerDrift(drifted int) {
	if ledgerDriftCounter == nil {
		return
	}
	ledgerDriftCounter.Add(float64(drifted))
	ledgerDriftGauge.Set(float64(drifted))
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
