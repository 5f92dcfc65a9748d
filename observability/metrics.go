package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	lendingMetricsOnce sync.Once
	lendingRegistry    *LendingMetrics
)

// LendingMetrics wraps the collectors tracking loan lifecycle activity and
// HTTP handler health for the lending daemon.
type LendingMetrics struct {
	transitions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	stuckCredit prometheus.Counter
	stuckDrain  prometheus.Counter
}

// Lending returns the lazily-initialised metrics registry for the lending
// daemon. Collectors are registered on the default registry exactly once.
func Lending() *LendingMetrics {
	lendingMetricsOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftlend",
				Subsystem: "loan",
				Name:      "transitions_total",
				Help:      "Loan lifecycle transitions segmented by transition name.",
			}, []string{"transition"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftlend",
				Subsystem: "loan",
				Name:      "rejections_total",
				Help:      "Loan operations rejected by the engine segmented by operation.",
			}, []string{"operation"}),
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftlend",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests segmented by route and outcome.",
			}, []string{"route", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nftlend",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			stuckCredit: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nftlend",
				Subsystem: "stuck_funds",
				Name:      "credits_total",
				Help:      "Deferred lender payouts isolated into the stuck-funds ledger.",
			}),
			stuckDrain: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nftlend",
				Subsystem: "stuck_funds",
				Name:      "withdrawals_total",
				Help:      "Completed stuck-funds withdrawals.",
			}),
		}
		prometheus.MustRegister(
			lendingRegistry.transitions,
			lendingRegistry.rejections,
			lendingRegistry.requests,
			lendingRegistry.latency,
			lendingRegistry.stuckCredit,
			lendingRegistry.stuckDrain,
		)
	})
	return lendingRegistry
}

// RecordTransition increments the lifecycle counter for the named transition.
// Transition names should be stable strings such as "requested" or "repaid"
// so dashboards stay consistent.
func (m *LendingMetrics) RecordTransition(transition string) {
	if m == nil {
		return
	}
	if transition == "" {
		transition = "unknown"
	}
	m.transitions.WithLabelValues(transition).Inc()
}

// RecordRejection counts an engine-level rejection for the named operation.
func (m *LendingMetrics) RecordRejection(operation string) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	m.rejections.WithLabelValues(operation).Inc()
}

// ObserveRequest records the outcome and latency of one HTTP request. The
// status code should be the one ultimately written to the response writer.
func (m *LendingMetrics) ObserveRequest(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = fmt.Sprintf("error_%d", status)
	}
	m.requests.WithLabelValues(route, outcome).Inc()
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordStuckCredit counts a lender payout deferred into the ledger.
func (m *LendingMetrics) RecordStuckCredit() {
	if m == nil {
		return
	}
	m.stuckCredit.Inc()
}

// RecordStuckWithdrawal counts a completed ledger drain.
func (m *LendingMetrics) RecordStuckWithdrawal() {
	if m == nil {
		return
	}
	m.stuckDrain.Inc()
}
