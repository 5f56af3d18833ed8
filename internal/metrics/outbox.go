package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics — метрики outbox worker.
type OutboxMetrics struct {
	attempts        *prometheus.CounterVec
	pendingRecords  prometheus.Gauge
	oldestPendingAt prometheus.Gauge
}

// NewOutboxMetrics регистрирует метрики outbox.
func NewOutboxMetrics(registerer prometheus.Registerer) *OutboxMetrics {
	return &OutboxMetrics{
		attempts: counterVec(registerer, "outbox_publish_attempts_total",
			"Total number of outbox publish attempts grouped by result.", "result"),
		pendingRecords: gauge(registerer, "outbox_pending_records",
			"Current number of pending records in transactional outbox."),
		oldestPendingAt: gauge(registerer, "outbox_oldest_pending_age_seconds",
			"Age in seconds of the oldest pending outbox record."),
	}
}

// RecordAttempt увеличивает счётчик с указанным результатом (sent, retry_error, failed, dlq_failed).
func (m *OutboxMetrics) RecordAttempt(result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
}

// SetBacklog обновляет размер и возраст backlog.
func (m *OutboxMetrics) SetBacklog(pending int, oldest time.Time) {
	if m == nil {
		return
	}
	m.pendingRecords.Set(float64(pending))
	if pending == 0 || oldest.IsZero() {
		m.oldestPendingAt.Set(0)
		return
	}
	age := time.Since(oldest).Seconds()
	if age < 0 {
		age = 0
	}
	m.oldestPendingAt.Set(age)
}
