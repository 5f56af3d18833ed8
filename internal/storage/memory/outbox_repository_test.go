package memory

import (
	"context"
	"testing"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

func TestOutboxRepository_EnqueueAndPull(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Outbox()

	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     domain.EventTypeOrderStatusChanged,
		Payload:       []byte(`{"new_status":"PENDING"}`),
	}

	saved, err := repo.Enqueue(ctx, msg)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected generated id")
	}

	pending, err := repo.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending message, got %d", len(pending))
	}
	if pending[0].ID != saved.ID {
		t.Fatalf("expected same message id, got %s", pending[0].ID)
	}

	stats, _ := repo.Stats(ctx)
	if stats.PendingCount != 1 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestOutboxRepository_MarkSentAndFailed(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Outbox()

	sent, _ := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: "order"})
	failed, _ := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: "order"})

	if err := repo.MarkSent(ctx, sent.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if err := repo.MarkFailed(ctx, failed.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := repo.MarkFailed(ctx, "missing"); err == nil {
		t.Fatal("expected error for missing record")
	}

	pending, _ := repo.PullPending(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("expected empty backlog, got %d", len(pending))
	}
}

func TestOutboxRepository_TrimsOldestPending(t *testing.T) {
	ctx := context.Background()
	store := NewStore(WithMaxPendingOutbox(2))
	repo := store.Outbox()

	first, _ := repo.Enqueue(ctx, domain.OutboxMessage{AggregateID: "1"})
	_, _ = repo.Enqueue(ctx, domain.OutboxMessage{AggregateID: "2"})
	_, _ = repo.Enqueue(ctx, domain.OutboxMessage{AggregateID: "3"})

	pending, _ := repo.PullPending(ctx, 10)
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}
	for _, msg := range pending {
		if msg.ID == first.ID {
			t.Fatal("oldest message should have been dropped")
		}
	}
	if store.OutboxDropped() != 1 {
		t.Fatalf("expected 1 dropped, got %d", store.OutboxDropped())
	}
}

func TestOutboxRepository_TxEnqueueVisibleOnlyAfterCommit(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	errBoom := context.Canceled
	_ = store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		_, _ = tx.Outbox().Enqueue(ctx, domain.OutboxMessage{AggregateID: "rolled-back"})
		return errBoom
	})
	pending, _ := store.Outbox().PullPending(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("rolled back message leaked: %v", pending)
	}

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		_, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{AggregateID: "committed"})
		return err
	})
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	pending, _ = store.Outbox().PullPending(ctx, 10)
	if len(pending) != 1 || pending[0].AggregateID != "committed" {
		t.Fatalf("expected committed message, got %v", pending)
	}
}
