package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics — метрики платёжного фасада.
type PaymentMetrics struct {
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPaymentMetrics регистрирует метрики платежей.
func NewPaymentMetrics(registerer prometheus.Registerer) *PaymentMetrics {
	return &PaymentMetrics{
		attempts: counterVec(registerer, "payment_attempts_total",
			"Payment attempts grouped by method and resulting status.", "method", "status"),
		duration: histogramVec(registerer, "payment_duration_seconds",
			"Duration of payment processing.", stepBuckets, "method"),
	}
}

// RecordAttempt фиксирует попытку оплаты.
func (m *PaymentMetrics) RecordAttempt(method, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(method, status).Inc()
	m.duration.WithLabelValues(method).Observe(duration.Seconds())
}
