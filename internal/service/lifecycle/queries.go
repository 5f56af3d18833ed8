package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

const defaultListLimit = 50

// GetOrder возвращает заказ вместе с позициями.
func (m *Manager) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := m.store.Orders().Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return domain.Order{}, domain.Reject(domain.RejectionNotFound, err, "order %s not found", orderID)
		}
		return domain.Order{}, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return order, nil
}

// ListCustomerOrders возвращает заказы клиента, новые первыми.
func (m *Manager) ListCustomerOrders(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	if customerID == "" {
		return nil, domain.Reject(domain.RejectionValidation, domain.ErrCustomerRequired, "customer id is required")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	orders, err := m.store.Orders().ListByCustomer(ctx, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders of customer %s: %w", customerID, err)
	}
	return orders, nil
}

// History возвращает таймлайн переходов заказа в хронологическом порядке.
func (m *Manager) History(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := m.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	events, err := m.store.Timeline().List(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list timeline of order %s: %w", orderID, err)
	}
	return events, nil
}
