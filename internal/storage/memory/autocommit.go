package memory

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// Autocommit-обёртки: каждая операция выполняется в собственной транзакции.

type autoOrders struct{ s *Store }

func (a autoOrders) Create(ctx context.Context, order domain.Order) error {
	return a.s.autocommit(ctx, func(tx *memTx) error { return tx.Orders().Create(ctx, order) })
}

func (a autoOrders) Get(ctx context.Context, id string) (order domain.Order, err error) {
	err = a.s.autocommit(ctx, func(tx *memTx) error {
		order, err = tx.Orders().Get(ctx, id)
		return err
	})
	return order, err
}

func (a autoOrders) GetForUpdate(ctx context.Context, id string) (domain.Order, error) {
	return a.Get(ctx, id)
}

func (a autoOrders) ListByCustomer(ctx context.Context, customerID string, limit int) (orders []domain.Order, err error) {
	err = a.s.autocommit(ctx, func(tx *memTx) error {
		orders, err = tx.Orders().ListByCustomer(ctx, customerID, limit)
		return err
	})
	return orders, err
}

func (a autoOrders) Save(ctx context.Context, order domain.Order) error {
	return a.s.autocommit(ctx, func(tx *memTx) error { return tx.Orders().Save(ctx, order) })
}

type autoCarts struct{ s *Store }

func (a autoCarts) GetActive(ctx context.Context, customerID string) (cart domain.Cart, err error) {
	err = a.s.autocommit(ctx, func(tx *memTx) error {
		cart, err = tx.Carts().GetActive(ctx, customerID)
		return err
	})
	return cart, err
}

func (a autoCarts) Get(ctx context.Context, id string) (cart domain.Cart, err error) {
	err = a.s.autocommit(ctx, func(tx *memTx) error {
		cart, err = tx.Carts().Get(ctx, id)
		return err
	})
	return cart, err
}

func (a autoCarts) Save(ctx context.Context, cart domain.Cart) error {
	return a.s.autocommit(ctx, func(tx *memTx) error { return tx.Carts().Save(ctx, cart) })
}

type autoVariants struct{ s *Store }

func (a autoVariants) Get(ctx context.Context, id string) (v domain.ProductVariant, err error) {
	err = a.s.autocommit(ctx, func(tx *memTx) error {
		v, err = tx.Variants().Get(ctx, id)
		return err
	})
	return v, err
}

func (a autoVariants) FindByDescriptor(ctx context.Context, d domain.VariantDescriptor) (v domain.ProductVariant, err error) {
	err = a.s.autocommit(ctx, func(tx *memTx) error {
		v, err = tx.Variants().FindByDescriptor(ctx, d)
		return err
	})
	return v, err
}

func (a autoVariants) Create(ctx context.Context, v domain.ProductVariant) error {
	return a.s.autocommit(ctx, func(tx *memTx) error { return tx.Variants().Create(ctx, v) })
}

func (a autoVariants) SetPrice(ctx context.Context, id string, price decimal.Decimal) error {
	return a.s.autocommit(ctx, func(tx *memTx) error { return tx.Variants().SetPrice(ctx, id, price) })
}

type autoStock struct{ s *Store }

func (a autoStock) DecrementIfAvailable(ctx context.Context, variantID string, qty int64) error {
	return a.s.autocommit(ctx, func(tx *memTx) error { return tx.Stock().DecrementIfAvailable(ctx, variantID, qty) })
}

func (a autoStock) Increment(ctx context.Context, variantID string, qty int64) error {
	return a.s.autocommit(ctx, func(tx *memTx) error { return tx.Stock().Increment(ctx, variantID, qty) })
}

func (a autoStock) Available(ctx context.Context, variantID string) (n int64, err error) {
	err = a.s.autocommit(ctx, func(tx *memTx) error {
		n, err = tx.Stock().Available(ctx, variantID)
		return err
	})
	return n, err
}

type autoTimeline struct{ s *Store }

func (a autoTimeline) Append(ctx context.Context, event domain.TimelineEvent) error {
	return a.s.autocommit(ctx, func(tx *memTx) error { return tx.Timeline().Append(ctx, event) })
}

func (a autoTimeline) List(ctx context.Context, orderID string) (events []domain.TimelineEvent, err error) {
	err = a.s.autocommit(ctx, func(tx *memTx) error {
		events, err = tx.Timeline().List(ctx, orderID)
		return err
	})
	return events, err
}
