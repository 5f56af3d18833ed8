package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

func TestOrderRepository_PostgresCreateGetListAndSave(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := NewOrderRepository(store)
	seedVariant(t, store, "var-a", "120.50", 10)

	now := time.Now().UTC().Round(time.Microsecond)
	order1 := sampleOrder("order-1", "customer-1", "var-a", now.Add(-2*time.Minute))
	order2 := sampleOrder("order-2", "customer-1", "var-a", now.Add(-time.Minute))

	if err := repo.Create(ctx, order1); err != nil {
		t.Fatalf("create order1: %v", err)
	}
	if err := repo.Create(ctx, order2); err != nil {
		t.Fatalf("create order2: %v", err)
	}
	if err := repo.Create(ctx, order1); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected version conflict for duplicate id, got %v", err)
	}

	got, err := repo.Get(ctx, order1.ID)
	if err != nil {
		t.Fatalf("get order1: %v", err)
	}
	if got.CustomerName != "Ann Lee" || got.Status != domain.OrderStatusPending || got.CartID != "" {
		t.Fatalf("unexpected order payload: %+v", got)
	}
	if !got.Total.Equal(order1.Total) || !got.DeliveryFee.Equal(order1.DeliveryFee) {
		t.Fatalf("money mismatch: total=%s fee=%s", got.Total, got.DeliveryFee)
	}
	if len(got.Lines) != 1 || !got.Lines[0].UnitPrice.Equal(decimal.RequireFromString("120.50")) {
		t.Fatalf("unexpected lines: %+v", got.Lines)
	}

	listed, err := repo.ListByCustomer(ctx, "customer-1", 1)
	if err != nil {
		t.Fatalf("list by customer with limit: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != order2.ID || len(listed[0].Lines) != 1 {
		t.Fatalf("unexpected list result with limit: %+v", listed)
	}

	all, err := repo.ListByCustomer(ctx, "customer-1", 0)
	if err != nil {
		t.Fatalf("list by customer without limit: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(all))
	}

	got.Status = domain.OrderStatusConfirmed
	got.UpdatedAt = now.Add(time.Minute)
	if err := repo.Save(ctx, got); err != nil {
		t.Fatalf("save order: %v", err)
	}
	if err := repo.Save(ctx, got); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected version conflict on stale save, got %v", err)
	}

	updated, err := repo.Get(ctx, order1.ID)
	if err != nil {
		t.Fatalf("get updated order: %v", err)
	}
	if updated.Status != domain.OrderStatusConfirmed || updated.Version != got.Version+1 {
		t.Fatalf("unexpected order after save: status=%s version=%d", updated.Status, updated.Version)
	}

	missing := sampleOrder("missing", "customer-1", "var-a", now)
	if err := repo.Save(ctx, missing); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected not found on save of missing order, got %v", err)
	}
	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCartRepository_PostgresLifecycle(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := NewCartRepository(store)
	seedVariant(t, store, "var-a", "10", 10)

	cart := domain.Cart{
		ID:         "cart-1",
		CustomerID: "customer-1",
		Lines: []domain.CartLine{{
			VariantID: "var-a",
			Quantity:  3,
			UnitPrice: decimal.NewFromInt(10),
			LineTotal: decimal.NewFromInt(30),
		}},
	}
	if err := repo.Save(ctx, cart); err != nil {
		t.Fatalf("save cart: %v", err)
	}

	active, err := repo.GetActive(ctx, "customer-1")
	if err != nil {
		t.Fatalf("get active cart: %v", err)
	}
	if active.ID != "cart-1" || active.Status != domain.CartStatusActive || len(active.Lines) != 1 || active.Lines[0].ID == "" {
		t.Fatalf("unexpected active cart: %+v", active)
	}

	second := domain.Cart{ID: "cart-2", CustomerID: "customer-1"}
	if err := repo.Save(ctx, second); !errors.Is(err, domain.ErrCartActiveExists) {
		t.Fatalf("expected active cart conflict, got %v", err)
	}

	if err := active.MarkOrdered(time.Now().UTC()); err != nil {
		t.Fatalf("mark ordered: %v", err)
	}
	if err := repo.Save(ctx, active); err != nil {
		t.Fatalf("save ordered cart: %v", err)
	}
	if err := repo.Save(ctx, active); !errors.Is(err, domain.ErrCartAlreadyOrdered) {
		t.Fatalf("expected ordered cart to be frozen, got %v", err)
	}
	if _, err := repo.GetActive(ctx, "customer-1"); !errors.Is(err, domain.ErrCartNotFound) {
		t.Fatalf("expected no active cart, got %v", err)
	}

	ordered, err := repo.Get(ctx, "cart-1")
	if err != nil {
		t.Fatalf("get ordered cart: %v", err)
	}
	if ordered.Status != domain.CartStatusOrdered || len(ordered.Lines) != 1 {
		t.Fatalf("ordered cart must keep its lines: %+v", ordered)
	}

	if err := repo.Save(ctx, second); err != nil {
		t.Fatalf("new active cart after checkout: %v", err)
	}
}

func TestVariantRepositoryAndStock_Postgres(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := NewVariantRepository(store)
	v := seedVariant(t, store, "var-a", "49.90", 4)

	if err := repo.Create(ctx, v); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for duplicate variant, got %v", err)
	}

	found, err := repo.FindByDescriptor(ctx, v.Descriptor())
	if err != nil {
		t.Fatalf("find by descriptor: %v", err)
	}
	if found.ID != "var-a" || !found.Price.Equal(decimal.RequireFromString("49.90")) || found.StockOnHand != 4 {
		t.Fatalf("unexpected variant: %+v", found)
	}
	if _, err := repo.FindByDescriptor(ctx, domain.VariantDescriptor{ProductID: "nope"}); !errors.Is(err, domain.ErrVariantNotFound) {
		t.Fatalf("expected variant not found, got %v", err)
	}

	if err := repo.SetPrice(ctx, "var-a", decimal.NewFromInt(999)); err != nil {
		t.Fatalf("set price: %v", err)
	}
	if err := repo.SetPrice(ctx, "missing", decimal.NewFromInt(1)); !errors.Is(err, domain.ErrVariantNotFound) {
		t.Fatalf("expected not found on set price, got %v", err)
	}

	stock := store.Stock()
	if err := stock.DecrementIfAvailable(ctx, "var-a", 5); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if err := stock.DecrementIfAvailable(ctx, "missing", 1); !errors.Is(err, domain.ErrVariantNotFound) {
		t.Fatalf("expected variant not found, got %v", err)
	}
	if err := stock.DecrementIfAvailable(ctx, "var-a", 4); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if err := stock.Increment(ctx, "var-a", 2); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := stock.Increment(ctx, "var-a", 0); !errors.Is(err, domain.ErrLineQtyInvalid) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
	if n, err := stock.Available(ctx, "var-a"); err != nil || n != 2 {
		t.Fatalf("available = %d, %v; want 2", n, err)
	}
}

func TestOutboxRepository_PostgresFlow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := NewOutboxRepository(store)

	first, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     domain.EventTypeOrderStatusChanged,
		Payload:       []byte(`{"order_id":"order-1"}`),
	})
	if err != nil {
		t.Fatalf("enqueue without id: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected generated id for outbox message")
	}

	second, err := repo.Enqueue(ctx, domain.OutboxMessage{
		ID:            "outbox-fixed-id",
		AggregateType: "order",
		AggregateID:   "order-2",
		EventType:     domain.EventTypeOrderStatusChanged,
		Payload:       []byte(`{"order_id":"order-2"}`),
	})
	if err != nil {
		t.Fatalf("enqueue with id: %v", err)
	}

	pending, err := repo.PullPending(ctx, 0)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != first.ID || pending[1].ID != second.ID {
		t.Fatalf("expected insertion order, got %+v", pending)
	}
	if string(pending[1].Payload) != `{"order_id":"order-2"}` {
		t.Fatalf("payload must round-trip byte for byte, got %s", pending[1].Payload)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 2 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if err := repo.MarkSent(ctx, first.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := repo.MarkFailed(ctx, second.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := repo.MarkSent(ctx, "missing"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish for missing id, got %v", err)
	}

	stats, err = repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats after marks: %v", err)
	}
	if stats.PendingCount != 0 || !stats.OldestPendingAt.IsZero() {
		t.Fatalf("expected empty backlog, got %+v", stats)
	}
}

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	seedVariant(t, store, "var-a", "10", 10)

	now := time.Now().UTC().Round(time.Microsecond)
	if err := store.Orders().Create(ctx, sampleOrder("order-1", "customer-1", "var-a", now)); err != nil {
		t.Fatalf("create order: %v", err)
	}

	repo := NewTimelineRepository(store)
	events := []domain.TimelineEvent{
		{OrderID: "order-1", Type: domain.EventTypeOrderStatusChanged, From: domain.OrderStatusConfirmed, To: domain.OrderStatusShipping, Reason: "SYSTEM_UPDATE", Occurred: now.Add(time.Minute)},
		{OrderID: "order-1", Type: domain.EventTypeOrderStatusChanged, From: domain.OrderStatusNew, To: domain.OrderStatusPending, Reason: "ORDER_CREATED", Occurred: now},
	}
	for _, ev := range events {
		if err := repo.Append(ctx, ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := repo.List(ctx, "order-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].To != domain.OrderStatusPending || got[1].To != domain.OrderStatusShipping {
		t.Fatalf("expected chronological order, got %+v", got)
	}
	if got[0].From != domain.OrderStatusNew || got[0].Reason != "ORDER_CREATED" {
		t.Fatalf("unexpected first event: %+v", got[0])
	}

	empty, err := repo.List(ctx, "unknown")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty timeline, got %+v, %v", empty, err)
	}
}
