package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Settlement operation metrics
	settlementOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pathfinder_settlement_operations_total",
		Help: "Total number of settlement operations by outcome",
	}, []string{"operation", "status"})

	settlementOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pathfinder_settlement_operation_duration_seconds",
		Help:    "Duration of settlement operations",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	}, []string{"operation"})

	// Fee and payroll metrics
	feesAccruedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pathfinder_fees_accrued_total",
		Help: "Total fees accrued to pathfinder payrolls",
	})

	payrollsDrainedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pathfinder_payrolls_drained_total",
		Help: "Total number of payrolls settled, by settlement mode",
	}, []string{"mode"})

	challengesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pathfinder_challenges_total",
		Help: "Total number of challenges by result",
	}, []string{"result"})

	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pathfinder_events_total",
		Help: "Total number of settlement events emitted",
	}, []string{"kind"})

	// Gauge metrics
	outstandingPayrollsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pathfinder_outstanding_payrolls",
		Help: "Current number of unsettled payrolls",
	})

	outstandingChallengesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pathfinder_outstanding_challenges",
		Help: "Current number of challenges not yet harvested",
	})

	blockHeightGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pathfinder_block_height",
		Help: "Current logical block height",
	})

	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pathfinder_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pathfinder_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// RecordSettlementOperation records the outcome and duration of an engine operation
func RecordSettlementOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	settlementOperationsTotal.WithLabelValues(operation, status).Inc()
	settlementOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordFeesAccrued adds accrued fees
func RecordFeesAccrued(fee Amount) {
	feesAccruedTotal.Add(float64(fee))
}

// RecordPayrollsDrained counts settled payrolls
func RecordPayrollsDrained(mode string, n int) {
	payrollsDrainedTotal.WithLabelValues(mode).Add(float64(n))
}

// RecordChallenge counts a challenge result
func RecordChallenge(result string) {
	challengesTotal.WithLabelValues(result).Inc()
}

// RecordEvent counts an emitted event
func RecordEvent(kind EventKind) {
	eventsTotal.WithLabelValues(string(kind)).Inc()
}

// UpdateOutstandingPayrollsGauge updates the outstanding payrolls gauge
func UpdateOutstandingPayrollsGauge(count int) {
	outstandingPayrollsGauge.Set(float64(count))
}

// UpdateOutstandingChallengesGauge updates the outstanding challenges gauge
func UpdateOutstandingChallengesGauge(count int) {
	outstandingChallengesGauge.Set(float64(count))
}
