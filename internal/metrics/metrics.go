// Package metrics defines Prometheus metrics for all components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ledger metrics
var (
	// DepositsTotal counts deposit attempts by result (applied, rejected).
	DepositsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_deposits_total",
		Help: "Total number of deposit attempts by result",
	}, []string{"result"})

	// WithdrawalsTotal counts withdrawal attempts by result (applied, rejected, failed).
	WithdrawalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_withdrawals_total",
		Help: "Total number of withdrawal attempts by result",
	}, []string{"result"})

	// TransfersTotal counts internal transfers by result (applied, rejected).
	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transfers_total",
		Help: "Total number of internal transfer attempts by result",
	}, []string{"result"})

	// PooledFunds tracks the current pooled funds backing all claims, in base units.
	PooledFunds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_pooled_funds",
		Help: "Current pooled funds in base units",
	})

	// SweepsTotal counts sweep attempts by outcome and skip reason.
	SweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_sweeps_total",
		Help: "Total number of sweep attempts by outcome and skip reason",
	}, []string{"outcome", "reason"})

	// SweptAmount accumulates base units moved out by successful sweeps.
	SweptAmount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_swept_amount_total",
		Help: "Total base units moved to the sweep target",
	})
)

// Upkeep metrics
var (
	// UpkeepChecksTotal counts due checks by verdict (true, false).
	UpkeepChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upkeep_checks_total",
		Help: "Total number of upkeep due checks by verdict",
	}, []string{"due"})

	// UpkeepCyclesTotal counts perform cycles by result (success, skipped, failed, not_due).
	UpkeepCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upkeep_cycles_total",
		Help: "Total number of upkeep perform cycles by result",
	}, []string{"result"})
)

// Payout metrics
var (
	// PayoutFailures counts payout sink calls that returned an error.
	PayoutFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payout_failures_total",
		Help: "Total number of failed payout sink calls",
	})

	// PayoutRetries counts payout attempts that were retried after a transient failure.
	PayoutRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payout_retries_total",
		Help: "Total number of retried payout attempts",
	})

	// CircuitBreakerStateChanges counts circuit breaker transitions by component and new state.
	CircuitBreakerStateChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_state_changes_total",
		Help: "Total number of circuit breaker state changes",
	}, []string{"component", "state"})

	// CircuitBreakerState tracks the current breaker state (0=closed, 1=half-open, 2=open).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"component"})
)

// Journal metrics
var (
	// JournalErrors counts event records that the journal failed to persist.
	JournalErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "journal_record_errors_total",
		Help: "Total number of journal record failures",
	})
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, route and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status_code"})

	// HTTPRequestDuration tracks HTTP request latency by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Build metrics
var (
	// BuildInfo carries version metadata as labels with a constant value of 1.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1)",
	}, []string{"version", "commit", "go_version"})
)
