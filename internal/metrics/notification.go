package metrics

import "github.com/prometheus/client_golang/prometheus"

// NotificationMetrics — метрики доставки уведомлений и пула.
type NotificationMetrics struct {
	deliveries *prometheus.CounterVec
	retries    *prometheus.CounterVec
	queueDepth prometheus.Gauge
	callerRuns prometheus.Gauge
}

// NewNotificationMetrics регистрирует метрики уведомлений.
func NewNotificationMetrics(registerer prometheus.Registerer) *NotificationMetrics {
	return &NotificationMetrics{
		deliveries: counterVec(registerer, "notification_deliveries_total",
			"Notification deliveries grouped by channel and result.", "channel", "result"),
		retries: counterVec(registerer, "notification_retries_total",
			"Notification retry attempts grouped by channel.", "channel"),
		queueDepth: gauge(registerer, "notification_pool_queue_depth",
			"Tasks waiting in the notification worker pool queue."),
		callerRuns: gauge(registerer, "notification_pool_caller_runs",
			"Tasks executed on the caller goroutine because the pool queue was full."),
	}
}

// RecordDelivery фиксирует исход доставки по каналу.
func (m *NotificationMetrics) RecordDelivery(channel string, success bool) {
	if m == nil {
		return
	}
	result := ResultOK
	if !success {
		result = ResultError
	}
	m.deliveries.WithLabelValues(channel, result).Inc()
}

// RecordRetry увеличивает счётчик повторов.
func (m *NotificationMetrics) RecordRetry(channel string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(channel).Inc()
}

// SetQueueDepth обновляет глубину очереди пула.
func (m *NotificationMetrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// RecordCallerRun отмечает задачу, выполненную в горутине вызывающего.
func (m *NotificationMetrics) RecordCallerRun() {
	if m == nil {
		return
	}
	m.callerRuns.Inc()
}
