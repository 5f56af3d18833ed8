package outbox

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/metrics"
)

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{
			{
				ID:            "msg-1",
				AggregateType: "order",
				AggregateID:   "order-1",
				EventType:     "OrderStatusChanged",
				Payload:       []byte(`{"new_status":"CONFIRMED"}`),
			},
		},
	}
	publisher := &stubPublisher{}

	worker := NewWorker(
		repo,
		publisher,
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	worker.ProcessOnce(context.Background())

	if got := len(repo.sentIDs); got != 1 {
		t.Fatalf("expected 1 sent mark, got %d", got)
	}
	if repo.sentIDs[0] != "msg-1" {
		t.Fatalf("expected sent id msg-1, got %s", repo.sentIDs[0])
	}
	if got := len(repo.failedIDs); got != 0 {
		t.Fatalf("expected 0 failed marks, got %d", got)
	}
	if got := publisher.calls(); got != 1 {
		t.Fatalf("expected 1 publish call, got %d", got)
	}
}

func TestWorker_ProcessOnce_MarkFailedAndDLQAfterRetries(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{
			{
				ID:            "msg-2",
				AggregateType: "order",
				AggregateID:   "order-2",
				EventType:     "OrderStatusChanged",
				Payload:       []byte(`{"new_status":"CANCELLED"}`),
			},
		},
	}
	publisher := &stubPublisher{err: errors.New("publish failed")}
	dlqPublisher := &stubPublisher{}

	worker := NewWorker(
		repo,
		publisher,
		WithDLQPublisher(dlqPublisher),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	worker.ProcessOnce(context.Background())

	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if got := len(repo.sentIDs); got != 0 {
		t.Fatalf("expected 0 sent marks, got %d", got)
	}
	if got := len(repo.failedIDs); got != 1 {
		t.Fatalf("expected 1 failed mark, got %d", got)
	}
	if repo.failedIDs[0] != "msg-2" {
		t.Fatalf("expected failed id msg-2, got %s", repo.failedIDs[0])
	}
	if got := dlqPublisher.calls(); got != 1 {
		t.Fatalf("expected 1 DLQ publish, got %d", got)
	}
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{
			{
				ID:            "msg-3",
				AggregateType: "order",
				AggregateID:   "order-3",
				EventType:     "OrderStatusChanged",
				Payload:       []byte(`{"new_status":"SHIPPING"}`),
			},
		},
	}
	publisher := &stubPublisher{
		sequenceErrors: []error{
			errors.New("attempt 1"),
			errors.New("attempt 2"),
			nil,
		},
	}

	worker := NewWorker(
		repo,
		publisher,
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	worker.ProcessOnce(context.Background())

	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if got := len(repo.sentIDs); got != 1 {
		t.Fatalf("expected 1 sent mark, got %d", got)
	}
	if got := len(repo.failedIDs); got != 0 {
		t.Fatalf("expected 0 failed marks, got %d", got)
	}
}

type stubOutboxRepo struct {
	mu        sync.Mutex
	pending   []domain.OutboxMessage
	sentIDs   []string
	failedIDs []string
}

func (s *stubOutboxRepo) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return msg, nil
}

func (s *stubOutboxRepo) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 || limit >= len(s.pending) {
		return append([]domain.OutboxMessage(nil), s.pending...), nil
	}
	return append([]domain.OutboxMessage(nil), s.pending[:limit]...), nil
}

func (s *stubOutboxRepo) Stats(_ context.Context) (domain.OutboxStats, error) {
	stats := domain.OutboxStats{
		PendingCount: len(s.pending),
	}
	if len(s.pending) > 0 {
		stats.OldestPendingAt = time.Now().UTC().Add(-time.Second)
	}
	return stats, nil
}

func (s *stubOutboxRepo) MarkSent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentIDs = append(s.sentIDs, id)
	return nil
}

func (s *stubOutboxRepo) MarkFailed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedIDs = append(s.failedIDs, id)
	return nil
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	failIDs        map[string]bool
	sequenceErrors []error
	callCount      int
	published      []domain.OutboxMessage
}

func (s *stubPublisher) Publish(_ context.Context, msg domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	s.published = append(s.published, msg)
	if s.failIDs[msg.ID] {
		return errors.New("broker rejected " + msg.ID)
	}
	if len(s.sequenceErrors) > 0 {
		err := s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
		return err
	}

	return s.err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

func (s *stubPublisher) publishedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.published))
	for _, msg := range s.published {
		ids = append(ids, msg.ID)
	}
	return ids
}

type deadLetter struct {
	event  domain.OutboxMessage
	reason string
}

type stubFailurePublisher struct {
	stubPublisher
	failures []deadLetter
}

func (s *stubFailurePublisher) PublishFailure(_ context.Context, event domain.OutboxMessage, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, deadLetter{event: event, reason: reason})
	return nil
}

// gatedPublisher держит каждую публикацию до закрытия release.
type gatedPublisher struct {
	started chan string
	release chan struct{}
}

func (g *gatedPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	g.started <- msg.ID
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ domain.OutboxRepository = (*stubOutboxRepo)(nil)
var _ domain.OutboxPublisher = (*stubPublisher)(nil)
var _ FailurePublisher = (*stubFailurePublisher)(nil)

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{}
	publisher := &stubPublisher{}

	worker := NewWorker(
		repo,
		publisher,
		WithPollInterval(5*time.Millisecond),
		WithRetryBaseDelay(0),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestWorker_ProcessOnce_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.NewOutboxMetrics(reg)

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{{ID: "msg-4", AggregateType: "order", AggregateID: "order-4", EventType: "OrderStatusChanged"}},
	}
	publisher := &stubPublisher{err: errors.New("broker down")}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(2), WithMetrics(m))
	worker.ProcessOnce(context.Background())

	expected := `
# HELP orderflow_outbox_publish_attempts_total Total number of outbox publish attempts grouped by result.
# TYPE orderflow_outbox_publish_attempts_total counter
orderflow_outbox_publish_attempts_total{result="failed"} 1
orderflow_outbox_publish_attempts_total{result="retry_error"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "orderflow_outbox_publish_attempts_total"); err != nil {
		t.Fatal(err)
	}
}

func orderEvent(id, orderID, status string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     domain.EventTypeOrderStatusChanged,
		Payload:       []byte(`{"order_id":"` + orderID + `","new_status":"` + status + `"}`),
	}
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func TestWorker_ProcessOnce_HoldsBackAggregateAfterFailure(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{
			orderEvent("a-1", "order-a", "CONFIRMED"),
			orderEvent("b-1", "order-b", "CONFIRMED"),
			orderEvent("a-2", "order-a", "SHIPPING"),
			orderEvent("a-3", "order-a", "DELIVERED"),
			orderEvent("b-2", "order-b", "SHIPPING"),
		},
	}
	publisher := &stubPublisher{failIDs: map[string]bool{"a-1": true}}
	dlq := &stubFailurePublisher{}

	worker := NewWorker(repo, publisher,
		WithDLQPublisher(dlq),
		WithRetryBaseDelay(0),
		WithMaxAttempts(2),
		WithMetrics(metrics.NewOutboxMetrics(reg)),
	)
	worker.ProcessOnce(context.Background())

	published := publisher.publishedIDs()
	if indexOf(published, "a-2") >= 0 || indexOf(published, "a-3") >= 0 {
		t.Fatalf("events behind a failed one must not reach the broker: %v", published)
	}
	if indexOf(published, "b-1") < 0 || indexOf(published, "b-2") < 0 {
		t.Fatalf("other aggregates must still be published: %v", published)
	}
	if indexOf(published, "b-1") > indexOf(published, "b-2") {
		t.Fatalf("events of one aggregate must keep outbox order: %v", published)
	}

	if len(repo.sentIDs) != 2 {
		t.Fatalf("expected b-1 and b-2 marked sent, got %v", repo.sentIDs)
	}
	if len(repo.failedIDs) != 3 {
		t.Fatalf("expected the whole order-a tail marked failed, got %v", repo.failedIDs)
	}

	if len(dlq.failures) != 3 {
		t.Fatalf("expected 3 dead letters, got %d", len(dlq.failures))
	}
	for i, want := range []string{"a-1", "a-2", "a-3"} {
		if dlq.failures[i].event.ID != want {
			t.Fatalf("dead letter %d: got %s want %s", i, dlq.failures[i].event.ID, want)
		}
	}
	if !strings.Contains(dlq.failures[0].reason, "broker rejected a-1") {
		t.Fatalf("unexpected failure reason: %q", dlq.failures[0].reason)
	}
	if !strings.Contains(dlq.failures[1].reason, "a-1") {
		t.Fatalf("held back event must name its blocker, got %q", dlq.failures[1].reason)
	}
	if string(dlq.failures[2].event.Payload) != `{"order_id":"order-a","new_status":"DELIVERED"}` {
		t.Fatalf("dead letter payload must stay untouched, got %s", dlq.failures[2].event.Payload)
	}
	if dlq.calls() != 0 {
		t.Fatal("plain Publish must not be used when failure details are supported")
	}

	expected := `
# HELP orderflow_outbox_publish_attempts_total Total number of outbox publish attempts grouped by result.
# TYPE orderflow_outbox_publish_attempts_total counter
orderflow_outbox_publish_attempts_total{result="failed"} 1
orderflow_outbox_publish_attempts_total{result="held_back"} 2
orderflow_outbox_publish_attempts_total{result="retry_error"} 2
orderflow_outbox_publish_attempts_total{result="sent"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "orderflow_outbox_publish_attempts_total"); err != nil {
		t.Fatal(err)
	}
}

func TestWorker_ProcessOnce_PlainDLQGetsOriginalEvent(t *testing.T) {
	t.Parallel()

	event := orderEvent("c-1", "order-c", "CANCELLED")
	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{event}}
	dlq := &stubPublisher{}

	worker := NewWorker(repo, &stubPublisher{err: errors.New("broker down")},
		WithDLQPublisher(dlq),
		WithRetryBaseDelay(0),
		WithMaxAttempts(1),
	)
	worker.ProcessOnce(context.Background())

	if dlq.calls() != 1 {
		t.Fatalf("expected 1 DLQ publish, got %d", dlq.calls())
	}
	got := dlq.published[0]
	if got.ID != event.ID || got.AggregateID != event.AggregateID || string(got.Payload) != string(event.Payload) {
		t.Fatalf("DLQ must receive the original event, got %+v", got)
	}
}

func TestWorker_ProcessOnce_PublishesAggregatesInParallel(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{
			orderEvent("d-1", "order-d", "CONFIRMED"),
			orderEvent("d-2", "order-d", "SHIPPING"),
			orderEvent("e-1", "order-e", "CONFIRMED"),
		},
	}
	publisher := &gatedPublisher{started: make(chan string, 3), release: make(chan struct{})}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithParallelism(2))

	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.ProcessOnce(context.Background())
	}()

	first := map[string]bool{}
	timeout := time.After(time.Second)
	for len(first) < 2 {
		select {
		case id := <-publisher.started:
			first[id] = true
		case <-timeout:
			close(publisher.release)
			t.Fatalf("aggregates were not published concurrently, started: %v", first)
		}
	}
	if !first["d-1"] || !first["e-1"] {
		t.Fatalf("expected heads of both aggregates in flight, got %v", first)
	}

	close(publisher.release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ProcessOnce did not finish")
	}
	if id := <-publisher.started; id != "d-2" {
		t.Fatalf("expected d-2 after d-1, got %s", id)
	}
	if len(repo.sentIDs) != 3 {
		t.Fatalf("expected 3 sent marks, got %v", repo.sentIDs)
	}
}

func TestGroupByAggregate(t *testing.T) {
	t.Parallel()

	streams := groupByAggregate([]domain.OutboxMessage{
		orderEvent("1", "order-x", "CONFIRMED"),
		{ID: "2"},
		orderEvent("3", "order-y", "CONFIRMED"),
		orderEvent("4", "order-x", "SHIPPING"),
		{ID: "5"},
	})

	if len(streams) != 4 {
		t.Fatalf("expected 4 streams, got %d", len(streams))
	}
	if len(streams[0]) != 2 || streams[0][0].ID != "1" || streams[0][1].ID != "4" {
		t.Fatalf("order-x stream must keep order, got %+v", streams[0])
	}
	if streams[1][0].ID != "2" || streams[3][0].ID != "5" {
		t.Fatal("messages without aggregate must be independent streams")
	}
}
