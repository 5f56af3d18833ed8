package events

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// Notifier — синхронная доставка уведомления (notification.Dispatcher).
type Notifier interface {
	Send(ctx context.Context, req domain.NotificationRequest, mode domain.DeliveryMode) domain.NotificationResult
}

const defaultCustomerName = "Customer"

// CustomerNotifier сообщает клиенту о смене статуса его заказа.
type CustomerNotifier struct {
	notifier Notifier
	logger   *log.Entry
}

// NewCustomerNotifier создаёт наблюдателя уведомлений клиента.
func NewCustomerNotifier(notifier Notifier, logger *log.Entry) *CustomerNotifier {
	if logger == nil {
		logger = log.New().WithField("component", "customer-notifier")
	}
	return &CustomerNotifier{notifier: notifier, logger: logger}
}

func (o *CustomerNotifier) Name() string { return "customer-notifier" }

func (o *CustomerNotifier) Handle(ctx context.Context, event domain.OrderStatusChangedEvent) error {
	title, message := customerText(event)
	recipient := event.CustomerName
	if recipient == "" {
		recipient = defaultCustomerName
	}

	res := o.notifier.Send(ctx, domain.NotificationRequest{
		Type:           domain.ChannelCombined,
		Title:          title,
		Message:        message,
		Recipient:      recipient,
		RecipientEmail: event.CustomerEmail,
		RecipientPhone: event.CustomerPhone,
		OrderID:        event.OrderID,
	}, domain.DeliverySequential)
	if err := res.Err(); err != nil {
		return fmt.Errorf("notify customer about order %s: %w", event.OrderID, err)
	}
	o.logger.WithField("order_id", event.OrderID).Info("customer notified about status change")
	return nil
}

func customerText(event domain.OrderStatusChangedEvent) (title, message string) {
	id := event.OrderID
	switch event.NewStatus {
	case domain.OrderStatusConfirmed:
		return "Order confirmed", fmt.Sprintf("Your order #%s has been confirmed and is being prepared for delivery!", id)
	case domain.OrderStatusShipping:
		return "Order out for delivery", fmt.Sprintf("Your order #%s is on its way! Please be ready to receive it.", id)
	case domain.OrderStatusDelivered:
		return "Order delivered", fmt.Sprintf("Your order #%s has been delivered. Thank you for shopping with us.", id)
	case domain.OrderStatusCancelled:
		return "Order cancelled", fmt.Sprintf("Your order #%s has been cancelled. If you have questions, please contact support.", id)
	case domain.OrderStatusCompleted:
		return "Order completed", fmt.Sprintf("Your order #%s is complete. Thank you for your purchase!", id)
	default:
		return "Order status updated", fmt.Sprintf("The status of order #%s has been updated to %s.", id, event.NewStatus)
	}
}

// AdminContact — адрес внутреннего получателя.
type AdminContact struct {
	Name  string
	Email string
	Phone string
}

// AdminNotifier сообщает администратору об операционно значимых статусах.
type AdminNotifier struct {
	notifier Notifier
	contact  AdminContact
	logger   *log.Entry
}

// NewAdminNotifier создаёт наблюдателя уведомлений администратора.
func NewAdminNotifier(notifier Notifier, contact AdminContact, logger *log.Entry) *AdminNotifier {
	if contact.Name == "" {
		contact.Name = "Admin"
	}
	if logger == nil {
		logger = log.New().WithField("component", "admin-notifier")
	}
	return &AdminNotifier{notifier: notifier, contact: contact, logger: logger}
}

func (o *AdminNotifier) Name() string { return "admin-notifier" }

func (o *AdminNotifier) Handle(ctx context.Context, event domain.OrderStatusChangedEvent) error {
	title, message, ok := adminText(event)
	if !ok {
		return nil
	}

	res := o.notifier.Send(ctx, domain.NotificationRequest{
		Type:           domain.ChannelCombined,
		Title:          title,
		Message:        message,
		Recipient:      o.contact.Name,
		RecipientEmail: o.contact.Email,
		RecipientPhone: o.contact.Phone,
		OrderID:        event.OrderID,
	}, domain.DeliverySequential)
	if err := res.Err(); err != nil {
		return fmt.Errorf("notify admin about order %s: %w", event.OrderID, err)
	}
	o.logger.WithFields(log.Fields{
		"order_id":   event.OrderID,
		"old_status": event.OldStatus,
		"new_status": event.NewStatus,
	}).Info("admin dashboard updated")
	return nil
}

// adminText возвращает текст только для PENDING, CANCELLED и SHIPPING.
func adminText(event domain.OrderStatusChangedEvent) (title, message string, ok bool) {
	customer := event.CustomerName
	if customer == "" {
		customer = "N/A"
	}
	switch event.NewStatus {
	case domain.OrderStatusPending:
		return "New order", fmt.Sprintf("New order #%s needs processing. Customer: %s", event.OrderID, customer), true
	case domain.OrderStatusCancelled:
		return "Order cancelled", fmt.Sprintf("Order #%s was cancelled. Customer: %s", event.OrderID, customer), true
	case domain.OrderStatusShipping:
		return "Order shipping", fmt.Sprintf("Order #%s is out for delivery. Customer: %s", event.OrderID, customer), true
	}
	return "", "", false
}

// InventoryReporter отчитывается о складском эффекте перехода. Остатки он не меняет:
// резерв и возврат уже выполнены внутри транзакции перехода.
type InventoryReporter struct {
	notifier Notifier
	logger   *log.Entry
}

// NewInventoryReporter создаёт наблюдателя. notifier может быть nil — тогда только лог.
func NewInventoryReporter(notifier Notifier, logger *log.Entry) *InventoryReporter {
	if logger == nil {
		logger = log.New().WithField("component", "inventory-reporter")
	}
	return &InventoryReporter{notifier: notifier, logger: logger}
}

func (o *InventoryReporter) Name() string { return "inventory-reporter" }

func (o *InventoryReporter) Handle(ctx context.Context, event domain.OrderStatusChangedEvent) error {
	var note string
	switch {
	case event.Is(domain.OrderStatusPending, domain.OrderStatusConfirmed):
		note = fmt.Sprintf("Stock reserved for confirmed order #%s", event.OrderID)
	case event.Is(domain.OrderStatusConfirmed, domain.OrderStatusCancelled):
		note = fmt.Sprintf("Stock restored after cancellation of order #%s", event.OrderID)
	default:
		return nil
	}

	o.logger.WithFields(log.Fields{
		"order_id":   event.OrderID,
		"old_status": event.OldStatus,
		"new_status": event.NewStatus,
	}).Info(note)

	if o.notifier == nil {
		return nil
	}
	res := o.notifier.Send(ctx, domain.NotificationRequest{
		Type:      domain.ChannelBasic,
		Title:     "Inventory update",
		Message:   note,
		Recipient: "Inventory",
		OrderID:   event.OrderID,
	}, domain.DeliverySingle)
	return res.Err()
}
