package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

func TestHealthHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")

	// Добавляем здоровую проверку
	handler.RegisterChecker("test-healthy", NewSimpleChecker("test", func() error {
		return nil
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != StatusHealthy {
		t.Errorf("expected status healthy, got %s", response.Status)
	}

	if response.Version != "v1.0.0" {
		t.Errorf("expected version v1.0.0, got %s", response.Version)
	}

	if len(response.Checks) != 1 {
		t.Errorf("expected 1 check, got %d", len(response.Checks))
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	handler := NewHandler("v1.0.0")

	// Добавляем нездоровую проверку
	handler.RegisterChecker("test-unhealthy", NewSimpleChecker("test", func() error {
		return errors.New("service unavailable")
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != StatusUnhealthy {
		t.Errorf("expected status unhealthy, got %s", response.Status)
	}
}

func TestLivenessHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()

	LivenessHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	if w.Body.String() != "ok" {
		t.Errorf("expected body 'ok', got %s", w.Body.String())
	}
}

func TestReadinessHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")

	// Добавляем здоровую проверку
	handler.RegisterChecker("test", NewSimpleChecker("test", func() error {
		return nil
	}))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	handler.ReadinessHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	if w.Body.String() != "ready" {
		t.Errorf("expected body 'ready', got %s", w.Body.String())
	}
}

func TestReadinessHandler_NotReady(t *testing.T) {
	handler := NewHandler("v1.0.0")

	// Добавляем нездоровую проверку
	handler.RegisterChecker("test", NewSimpleChecker("test", func() error {
		return errors.New("not ready")
	}))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	handler.ReadinessHandler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	if w.Body.String() != "not ready" {
		t.Errorf("expected body 'not ready', got %s", w.Body.String())
	}
}

func TestSimpleChecker(t *testing.T) {
	checker := NewSimpleChecker("test", func() error {
		time.Sleep(10 * time.Millisecond)
		return nil
	})

	check := checker.Check()

	if check.Status != StatusHealthy {
		t.Errorf("expected status healthy, got %s", check.Status)
	}

	if check.DurationMs < 10 {
		t.Errorf("expected duration >= 10ms, got %dms", check.DurationMs)
	}
}

func TestSimpleChecker_Error(t *testing.T) {
	checker := NewSimpleChecker("test", func() error {
		return errors.New("test error")
	})

	check := checker.Check()

	if check.Status != StatusUnhealthy {
		t.Errorf("expected status unhealthy, got %s", check.Status)
	}

	if check.Message != "test error" {
		t.Errorf("expected message 'test error', got %s", check.Message)
	}
}

func TestPingChecker_TimesOut(t *testing.T) {
	checker := NewPingChecker("postgres", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, 20*time.Millisecond)

	check := checker.Check()
	if check.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy on ping timeout, got %s", check.Status)
	}
	if check.Message == "" {
		t.Fatal("expected timeout message")
	}
}

func TestOptionalChecker_DegradesButStaysReady(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewSimpleChecker("storage", func() error { return nil }))
	handler.RegisterChecker("kafka", NewSimpleChecker("kafka", func() error {
		return errors.New("broker unreachable")
	}).Optional())

	if got := handler.Evaluate().Status; got != StatusDegraded {
		t.Fatalf("expected degraded, got %s", got)
	}
	if names := handler.Names(); len(names) != 2 || names[0] != "kafka" || names[1] != "storage" {
		t.Fatalf("unexpected checker names: %v", names)
	}

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("degraded service must stay ready, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("degraded healthz must answer 200, got %d", w.Code)
	}
}

type stubOutboxStats struct {
	stats domain.OutboxStats
	err   error
}

func (s stubOutboxStats) Stats(context.Context) (domain.OutboxStats, error) {
	return s.stats, s.err
}

func TestOutboxBacklogChecker(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name       string
		source     stubOutboxStats
		maxPending int
		maxAge     time.Duration
		want       Status
	}{
		{name: "empty backlog", source: stubOutboxStats{}, maxPending: 10, maxAge: time.Minute, want: StatusHealthy},
		{
			name:       "within limits",
			source:     stubOutboxStats{stats: domain.OutboxStats{PendingCount: 3, OldestPendingAt: now.Add(-10 * time.Second)}},
			maxPending: 10,
			maxAge:     time.Minute,
			want:       StatusHealthy,
		},
		{
			name:       "too many pending",
			source:     stubOutboxStats{stats: domain.OutboxStats{PendingCount: 11, OldestPendingAt: now}},
			maxPending: 10,
			want:       StatusDegraded,
		},
		{
			name:   "stale message",
			source: stubOutboxStats{stats: domain.OutboxStats{PendingCount: 1, OldestPendingAt: now.Add(-2 * time.Minute)}},
			maxAge: time.Minute,
			want:   StatusDegraded,
		},
		{
			name:   "limits disabled",
			source: stubOutboxStats{stats: domain.OutboxStats{PendingCount: 1000, OldestPendingAt: now.Add(-time.Hour)}},
			want:   StatusHealthy,
		},
		{name: "stats error", source: stubOutboxStats{err: errors.New("db down")}, maxPending: 10, want: StatusDegraded},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			checker := NewOutboxBacklogChecker(tc.source, tc.maxPending, tc.maxAge)
			checker.now = func() time.Time { return now }

			check := checker.Check()
			if check.Status != tc.want {
				t.Fatalf("expected %s, got %s (%s)", tc.want, check.Status, check.Message)
			}
			if tc.want == StatusDegraded && check.Message == "" {
				t.Fatal("degraded check must explain the reason")
			}
		})
	}
}

func TestHandler_NamesSortedAndNilIgnored(t *testing.T) {
	handler := NewHandler("test")
	handler.RegisterChecker("storage", NewSimpleChecker("storage", func() error { return nil }))
	handler.RegisterChecker("kafka", NewSimpleChecker("kafka", func() error { return nil }))
	handler.RegisterChecker("outbox", nil)

	names := handler.Names()
	if len(names) != 2 || names[0] != "kafka" || names[1] != "storage" {
		t.Fatalf("unexpected names: %v", names)
	}
}
