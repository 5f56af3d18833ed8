package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

type stockOp struct {
	cell *stockCell
	qty  int64
}

type stagedOrder struct {
	order    domain.Order
	expected int64
}

// memTx накапливает изменения одной транзакции.
type memTx struct {
	s *Store

	newOrders   map[string]domain.Order
	savedOrders map[string]stagedOrder
	carts       map[string]domain.Cart
	newVariants map[string]*variantRecord
	prices      map[string]decimal.Decimal
	reserved    []stockOp // уже применённые списания, откатываются при rollback
	released    map[*stockCell]int64
	outbox      []domain.OutboxMessage
	timeline    []domain.TimelineEvent
	locked      map[string]struct{}
	done        bool
}

func newTx(s *Store) *memTx {
	return &memTx{
		s:           s,
		newOrders:   make(map[string]domain.Order),
		savedOrders: make(map[string]stagedOrder),
		carts:       make(map[string]domain.Cart),
		newVariants: make(map[string]*variantRecord),
		prices:      make(map[string]decimal.Decimal),
		released:    make(map[*stockCell]int64),
		locked:      make(map[string]struct{}),
	}
}

func (tx *memTx) Orders() domain.OrderRepository      { return txOrders{tx} }
func (tx *memTx) Carts() domain.CartRepository        { return txCarts{tx} }
func (tx *memTx) Variants() domain.VariantRepository  { return txVariants{tx} }
func (tx *memTx) Stock() domain.StockStore            { return txStock{tx} }
func (tx *memTx) Outbox() domain.OutboxRepository     { return txOutbox{tx} }
func (tx *memTx) Timeline() domain.TimelineRepository { return txTimeline{tx} }

func (tx *memTx) commit() error {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := tx.validateLocked(); err != nil {
		return err
	}

	for id, rec := range tx.newVariants {
		s.variants[id] = rec
	}
	for id, price := range tx.prices {
		if rec, ok := s.variants[id]; ok {
			rec.variant.Price = price
		}
	}
	for id, order := range tx.newOrders {
		s.orders[id] = order
	}
	for id, staged := range tx.savedOrders {
		s.orders[id] = staged.order
	}
	for id, cart := range tx.carts {
		s.carts[id] = cart
	}
	for cell, qty := range tx.released {
		cell.add(qty)
	}
	for _, ev := range tx.timeline {
		s.timeline[ev.OrderID] = appendTimeline(s.timeline[ev.OrderID], ev)
	}
	for _, msg := range tx.outbox {
		s.outbox.enqueue(msg)
	}

	tx.finish()
	return nil
}

// validateLocked перепроверяет staged-изменения против актуального состояния.
func (tx *memTx) validateLocked() error {
	s := tx.s
	for id := range tx.newVariants {
		if _, exists := s.variants[id]; exists {
			return fmt.Errorf("variant %s already exists: %w", id, domain.ErrConflict)
		}
	}
	for id := range tx.newOrders {
		if _, exists := s.orders[id]; exists {
			return domain.ErrOrderVersionConflict
		}
	}
	for id, staged := range tx.savedOrders {
		cur, ok := s.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		if cur.Version != staged.expected {
			return domain.ErrOrderVersionConflict
		}
	}
	for id, cart := range tx.carts {
		if cur, ok := s.carts[id]; ok && cur.Status == domain.CartStatusOrdered {
			return domain.ErrCartAlreadyOrdered
		}
		if cart.Status != domain.CartStatusActive {
			continue
		}
		for otherID, other := range s.carts {
			if otherID == id || other.CustomerID != cart.CustomerID || other.Status != domain.CartStatusActive {
				continue
			}
			if staged, ok := tx.carts[otherID]; ok && staged.Status != domain.CartStatusActive {
				continue
			}
			return domain.ErrCartActiveExists
		}
	}
	return nil
}

func (tx *memTx) rollback() {
	if tx.done {
		return
	}
	for i := len(tx.reserved) - 1; i >= 0; i-- {
		op := tx.reserved[i]
		op.cell.add(op.qty)
	}
	tx.finish()
}

func (tx *memTx) finish() {
	for id := range tx.locked {
		tx.s.orderLocks.unlock(id)
	}
	tx.locked = nil
	tx.done = true
}

// --- orders ---

type txOrders struct{ tx *memTx }

func (r txOrders) Create(_ context.Context, order domain.Order) error {
	tx := r.tx
	if _, ok := tx.newOrders[order.ID]; ok {
		return domain.ErrOrderVersionConflict
	}
	tx.s.mu.RLock()
	_, exists := tx.s.orders[order.ID]
	tx.s.mu.RUnlock()
	if exists {
		return domain.ErrOrderVersionConflict
	}
	tx.newOrders[order.ID] = order.Clone()
	return nil
}

func (r txOrders) Get(_ context.Context, id string) (domain.Order, error) {
	order, ok := r.tx.visibleOrder(id)
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (r txOrders) GetForUpdate(ctx context.Context, id string) (domain.Order, error) {
	tx := r.tx
	if _, held := tx.locked[id]; !held {
		if err := tx.s.orderLocks.lock(ctx, id); err != nil {
			return domain.Order{}, err
		}
		tx.locked[id] = struct{}{}
	}
	return r.Get(ctx, id)
}

func (r txOrders) ListByCustomer(_ context.Context, customerID string, limit int) ([]domain.Order, error) {
	tx := r.tx
	seen := make(map[string]struct{})
	var result []domain.Order

	collect := func(o domain.Order) {
		if o.CustomerID != customerID {
			return
		}
		if _, dup := seen[o.ID]; dup {
			return
		}
		seen[o.ID] = struct{}{}
		result = append(result, o.Clone())
	}

	for _, staged := range tx.savedOrders {
		collect(staged.order)
	}
	for _, o := range tx.newOrders {
		collect(o)
	}
	tx.s.mu.RLock()
	for _, o := range tx.s.orders {
		collect(o)
	}
	tx.s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r txOrders) Save(_ context.Context, order domain.Order) error {
	tx := r.tx
	current, ok := tx.visibleOrder(order.ID)
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}

	next := order.Clone()
	next.Lines = current.Lines
	next.Version++

	if _, created := tx.newOrders[order.ID]; created {
		tx.newOrders[order.ID] = next
		return nil
	}
	expected := order.Version
	if prev, staged := tx.savedOrders[order.ID]; staged {
		expected = prev.expected
	}
	tx.savedOrders[order.ID] = stagedOrder{order: next, expected: expected}
	return nil
}

func (tx *memTx) visibleOrder(id string) (domain.Order, bool) {
	if staged, ok := tx.savedOrders[id]; ok {
		return staged.order, true
	}
	if o, ok := tx.newOrders[id]; ok {
		return o, true
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	o, ok := tx.s.orders[id]
	return o, ok
}

// --- carts ---

type txCarts struct{ tx *memTx }

func (r txCarts) GetActive(_ context.Context, customerID string) (domain.Cart, error) {
	tx := r.tx
	for _, c := range tx.carts {
		if c.CustomerID == customerID && c.Status == domain.CartStatusActive {
			return c.Clone(), nil
		}
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	for id, c := range tx.s.carts {
		if _, staged := tx.carts[id]; staged {
			continue
		}
		if c.CustomerID == customerID && c.Status == domain.CartStatusActive {
			return c.Clone(), nil
		}
	}
	return domain.Cart{}, domain.ErrCartNotFound
}

func (r txCarts) Get(_ context.Context, id string) (domain.Cart, error) {
	if c, ok := r.tx.carts[id]; ok {
		return c.Clone(), nil
	}
	r.tx.s.mu.RLock()
	defer r.tx.s.mu.RUnlock()
	c, ok := r.tx.s.carts[id]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return c.Clone(), nil
}

func (r txCarts) Save(ctx context.Context, cart domain.Cart) error {
	if cart.Status == "" {
		cart.Status = domain.CartStatusActive
	}
	current, err := r.Get(ctx, cart.ID)
	if err == nil && current.Status == domain.CartStatusOrdered {
		return domain.ErrCartAlreadyOrdered
	}
	if cart.Status == domain.CartStatusActive {
		if other, err := r.GetActive(ctx, cart.CustomerID); err == nil && other.ID != cart.ID {
			return domain.ErrCartActiveExists
		}
	}
	r.tx.carts[cart.ID] = cart.Clone()
	return nil
}

// --- timeline ---

type txTimeline struct{ tx *memTx }

func (r txTimeline) Append(_ context.Context, event domain.TimelineEvent) error {
	r.tx.timeline = append(r.tx.timeline, event)
	return nil
}

// List возвращает события заказа в хронологическом порядке.
func (r txTimeline) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	tx := r.tx
	tx.s.mu.RLock()
	events := append([]domain.TimelineEvent(nil), tx.s.timeline[orderID]...)
	tx.s.mu.RUnlock()

	for _, ev := range tx.timeline {
		if ev.OrderID == orderID {
			events = appendTimeline(events, ev)
		}
	}
	if events == nil {
		events = []domain.TimelineEvent{}
	}
	return events, nil
}

func appendTimeline(events []domain.TimelineEvent, ev domain.TimelineEvent) []domain.TimelineEvent {
	events = append(events, ev)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Occurred.Before(events[j].Occurred)
	})
	return events
}

// --- outbox ---

type txOutbox struct{ tx *memTx }

func (r txOutbox) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	msg = withOutboxID(msg)
	r.tx.outbox = append(r.tx.outbox, msg)
	return msg, nil
}

func (r txOutbox) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	return r.tx.s.outbox.PullPending(ctx, limit)
}

func (r txOutbox) Stats(ctx context.Context) (domain.OutboxStats, error) {
	return r.tx.s.outbox.Stats(ctx)
}

func (r txOutbox) MarkSent(ctx context.Context, id string) error {
	return r.tx.s.outbox.MarkSent(ctx, id)
}

func (r txOutbox) MarkFailed(ctx context.Context, id string) error {
	return r.tx.s.outbox.MarkFailed(ctx, id)
}
