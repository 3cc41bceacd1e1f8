package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type FlashMetrics struct {
	attempts       *prometheus.CounterVec
	failures       *prometheus.CounterVec
	settledVolume  *prometheus.CounterVec
	serviceFees    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	configUpdates  *prometheus.CounterVec
	adapterChanges prometheus.Counter
}

var (
	flashOnce     sync.Once
	flashRegistry *FlashMetrics
)

func Flash() *FlashMetrics {
	flashOnce.Do(func() {
		flashRegistry = &FlashMetrics{
			attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "flash_loan_attempts_total",
				Help: "Count of flash-loan executions by protocol and outcome.",
			}, []string{"protocol", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "flash_loan_failures_total",
				Help: "Count of aborted flash-loan executions by failure kind.",
			}, []string{"kind"}),
			settledVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "flash_loan_settled_amount_total",
				Help: "Principal settled per protocol, truncated to float precision.",
			}, []string{"protocol"}),
			serviceFees: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "flash_loan_service_fees_total",
				Help: "Service fees routed to the treasury per protocol.",
			}, []string{"protocol"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "flash_loan_execute_seconds",
				Help:    "Latency of flash-loan executions including the caller's callback.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			}, []string{"protocol"}),
			configUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "flash_config_updates_total",
				Help: "Count of committed configuration mutations by field.",
			}, []string{"field"}),
			adapterChanges: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "flash_adapter_registry_changes_total",
				Help: "Count of committed adapter registry appends and updates.",
			}),
		}
		prometheus.MustRegister(
			flashRegistry.attempts,
			flashRegistry.failures,
			flashRegistry.settledVolume,
			flashRegistry.serviceFees,
			flashRegistry.latency,
			flashRegistry.configUpdates,
			flashRegistry.adapterChanges,
		)
	})
	return flashRegistry
}

func protocolLabel(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// ObserveSettled records a committed settlement.
func (m *FlashMetrics) ObserveSettled(protocol uint64, amount, serviceFee float64, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := protocolLabel(protocol)
	m.attempts.WithLabelValues(label, "settled").Inc()
	m.settledVolume.WithLabelValues(label).Add(amount)
	m.serviceFees.WithLabelValues(label).Add(serviceFee)
	m.latency.WithLabelValues(label).Observe(elapsed.Seconds())
}

// ObserveAborted records an execution that rolled back.
func (m *FlashMetrics) ObserveAborted(protocol uint64, kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	label := protocolLabel(protocol)
	m.attempts.WithLabelValues(label, "aborted").Inc()
	m.failures.WithLabelValues(kind).Inc()
	m.latency.WithLabelValues(label).Observe(elapsed.Seconds())
}

func (m *FlashMetrics) ObserveConfigUpdate(field string) {
	if m == nil {
		return
	}
	if field == "" {
		field = "unknown"
	}
	m.configUpdates.WithLabelValues(field).Inc()
}

func (m *FlashMetrics) ObserveAdapterChange() {
	if m == nil {
		return
	}
	m.adapterChanges.Inc()
}
