package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestLifecycleMetrics_RecordTransition(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewLifecycleMetrics(registry)

	m.RecordTransition("PENDING", "CONFIRMED", ResultOK, 10*time.Millisecond)
	m.RecordTransition("PENDING", "CONFIRMED", ResultRejected, time.Millisecond)
	m.RecordTransition("PENDING", "CONFIRMED", ResultOK, time.Millisecond)

	if got := testutil.ToFloat64(m.transitions.WithLabelValues("PENDING", "CONFIRMED", ResultOK)); got != 2 {
		t.Errorf("expected 2 ok transitions, got %v", got)
	}
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("PENDING", "CONFIRMED", ResultRejected)); got != 1 {
		t.Errorf("expected 1 rejected transition, got %v", got)
	}
}

func TestLifecycleMetrics_ReRegistrationReusesCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewLifecycleMetrics(registry)
	second := NewLifecycleMetrics(registry)

	first.RecordStock("reserve", ResultOK)
	second.RecordStock("reserve", ResultOK)

	if got := testutil.ToFloat64(first.stock.WithLabelValues("reserve", ResultOK)); got != 2 {
		t.Errorf("expected shared collector with 2 increments, got %v", got)
	}
}

func TestNilMetricsAreNoop(t *testing.T) {
	var (
		lifecycle    *LifecycleMetrics
		notification *NotificationMetrics
		payment      *PaymentMetrics
		outbox       *OutboxMetrics
	)

	// Не должно паниковать.
	lifecycle.RecordTransition("a", "b", ResultOK, time.Second)
	lifecycle.RecordStock("reserve", ResultOK)
	lifecycle.RecordCheckout("cart", ResultOK)
	lifecycle.RecordObserverFailure("audit")
	notification.RecordDelivery("EMAIL", true)
	notification.RecordRetry("SMS")
	notification.SetQueueDepth(3)
	notification.RecordCallerRun()
	payment.RecordAttempt("CASH", "PENDING", time.Millisecond)
	outbox.RecordAttempt("sent")
	outbox.SetBacklog(1, time.Now())
}

func TestNotificationMetrics_Deliveries(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewNotificationMetrics(registry)

	m.RecordDelivery("SMS", false)
	m.RecordDelivery("SMS", true)
	m.RecordDelivery("SMS", false)

	if got := testutil.ToFloat64(m.deliveries.WithLabelValues("SMS", ResultError)); got != 2 {
		t.Errorf("expected 2 failed SMS deliveries, got %v", got)
	}
}

func TestOutboxMetrics_Backlog(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewOutboxMetrics(registry)

	m.SetBacklog(3, time.Now().Add(-2*time.Second))
	if got := testutil.ToFloat64(m.pendingRecords); got != 3 {
		t.Errorf("expected 3 pending, got %v", got)
	}
	if got := testutil.ToFloat64(m.oldestPendingAt); got < 1 {
		t.Errorf("expected age >= 1s, got %v", got)
	}

	m.SetBacklog(0, time.Time{})
	if got := testutil.ToFloat64(m.oldestPendingAt); got != 0 {
		t.Errorf("expected zero age on empty backlog, got %v", got)
	}
}

func histogramSample(t *testing.T, observer prometheus.Observer) *dto.Histogram {
	t.Helper()

	histogram, ok := observer.(prometheus.Histogram)
	if !ok {
		t.Fatalf("observer %T is not a histogram", observer)
	}
	metric := &dto.Metric{}
	if err := histogram.Write(metric); err != nil {
		t.Fatalf("failed to write histogram: %v", err)
	}
	return metric.GetHistogram()
}

func TestLifecycleMetrics_TransitionLatencyByTarget(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewLifecycleMetrics(registry)

	m.RecordTransition("PENDING", "CONFIRMED", ResultOK, 200*time.Millisecond)
	m.RecordTransition("CONFIRMED", "SHIPPING", ResultOK, 50*time.Millisecond)
	m.RecordTransition("PENDING", "CONFIRMED", ResultRejected, 100*time.Millisecond)

	confirmed := histogramSample(t, m.transitionLatency.WithLabelValues("CONFIRMED"))
	if confirmed.GetSampleCount() != 2 {
		t.Errorf("expected 2 samples for CONFIRMED, got %d", confirmed.GetSampleCount())
	}
	if sum := confirmed.GetSampleSum(); sum < 0.299 || sum > 0.301 {
		t.Errorf("expected sample sum 0.3s, got %f", sum)
	}

	shipping := histogramSample(t, m.transitionLatency.WithLabelValues("SHIPPING"))
	if shipping.GetSampleCount() != 1 {
		t.Errorf("expected 1 sample for SHIPPING, got %d", shipping.GetSampleCount())
	}
}

func TestPaymentMetrics_DurationPerMethod(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPaymentMetrics(registry)

	m.RecordAttempt("CASH", "PENDING", 5*time.Millisecond)
	m.RecordAttempt("CASH", "FAILED", 5*time.Millisecond)

	if got := testutil.ToFloat64(m.attempts.WithLabelValues("CASH", "PENDING")); got != 1 {
		t.Errorf("expected 1 pending attempt, got %v", got)
	}
	if got := histogramSample(t, m.duration.WithLabelValues("CASH")).GetSampleCount(); got != 2 {
		t.Errorf("expected 2 duration samples, got %d", got)
	}
}
