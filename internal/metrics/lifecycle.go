package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты операций для label `result`.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// LifecycleMetrics — метрики переходов статусов, складских операций и оформления.
// Nil-получатель допустим: все методы превращаются в no-op.
type LifecycleMetrics struct {
	transitions       *prometheus.CounterVec
	transitionLatency *prometheus.HistogramVec
	stock             *prometheus.CounterVec
	checkouts         *prometheus.CounterVec
	publishFailures   *prometheus.CounterVec
}

// NewLifecycleMetrics регистрирует метрики в registerer (nil — DefaultRegisterer).
func NewLifecycleMetrics(registerer prometheus.Registerer) *LifecycleMetrics {
	return &LifecycleMetrics{
		transitions: counterVec(registerer, "order_transitions_total",
			"Order status transitions grouped by source, target and result.", "from", "to", "result"),
		transitionLatency: histogramVec(registerer, "order_transition_duration_seconds",
			"Duration of order status transitions including side effects.", stepBuckets, "to"),
		stock: counterVec(registerer, "stock_operations_total",
			"Inventory ledger operations grouped by operation and result.", "operation", "result"),
		checkouts: counterVec(registerer, "checkouts_total",
			"Checkout attempts grouped by source and result.", "source", "result"),
		publishFailures: counterVec(registerer, "event_dispatch_failures_total",
			"Observer failures while dispatching status-changed events.", "observer"),
	}
}

// RecordTransition фиксирует исход перехода и его длительность.
func (m *LifecycleMetrics) RecordTransition(from, to, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to, result).Inc()
	m.transitionLatency.WithLabelValues(to).Observe(duration.Seconds())
}

// RecordStock фиксирует складскую операцию (reserve/release).
func (m *LifecycleMetrics) RecordStock(operation, result string) {
	if m == nil {
		return
	}
	m.stock.WithLabelValues(operation, result).Inc()
}

// RecordCheckout фиксирует исход оформления (source: cart|direct).
func (m *LifecycleMetrics) RecordCheckout(source, result string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(source, result).Inc()
}

// RecordObserverFailure увеличивает счётчик ошибок наблюдателя.
func (m *LifecycleMetrics) RecordObserverFailure(observer string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(observer).Inc()
}
