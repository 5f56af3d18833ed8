package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChangeReason — тег причины смены статуса.
type ChangeReason string

const (
	ReasonOrderCreated   ChangeReason = "ORDER_CREATED"
	ReasonSystemUpdate   ChangeReason = "SYSTEM_UPDATE"
	ReasonStockRestored  ChangeReason = "STOCK_RESTORED"
	ReasonCustomerCancel ChangeReason = "CUSTOMER_CANCEL"
)

// EventTypeOrderStatusChanged — тип события в outbox и таймлайне.
const EventTypeOrderStatusChanged = "OrderStatusChanged"

// OrderStatusChangedEvent создаётся после фиксации перехода.
// Контакты клиента копируются из заказа и не перечитываются наблюдателями.
type OrderStatusChangedEvent struct {
	OrderID       string          `json:"order_id"`
	CustomerID    string          `json:"customer_id"`
	OldStatus     OrderStatus     `json:"old_status"`
	NewStatus     OrderStatus     `json:"new_status"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email,omitempty"`
	CustomerPhone string          `json:"customer_phone,omitempty"`
	OrderTotal    decimal.Decimal `json:"order_total"`
	Timestamp     time.Time       `json:"timestamp"`
	Reason        ChangeReason    `json:"reason"`
}

// NewStatusChangedEvent снимает данные события с заказа.
func NewStatusChangedEvent(order Order, from OrderStatus, reason ChangeReason, at time.Time) OrderStatusChangedEvent {
	return OrderStatusChangedEvent{
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		OldStatus:     from,
		NewStatus:     order.Status,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		CustomerPhone: order.CustomerPhone,
		OrderTotal:    order.Total,
		Timestamp:     at,
		Reason:        reason,
	}
}

// Is проверяет конкретный переход.
func (e OrderStatusChangedEvent) Is(from, to OrderStatus) bool {
	return e.OldStatus == from && e.NewStatus == to
}
