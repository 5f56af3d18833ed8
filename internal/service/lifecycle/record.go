package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// AggregateOrder — тип агрегата в outbox.
const AggregateOrder = "order"

// recordTransition пишет событие в таймлайн и outbox той же транзакции.
func recordTransition(ctx context.Context, tx domain.Repositories, event domain.OrderStatusChangedEvent) error {
	if err := tx.Timeline().Append(ctx, domain.TimelineEvent{
		OrderID:  event.OrderID,
		Type:     domain.EventTypeOrderStatusChanged,
		From:     event.OldStatus,
		To:       event.NewStatus,
		Reason:   string(event.Reason),
		Occurred: event.Timestamp,
	}); err != nil {
		return fmt.Errorf("append timeline for order %s: %w", event.OrderID, err)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}
	if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
		AggregateType: AggregateOrder,
		AggregateID:   event.OrderID,
		EventType:     domain.EventTypeOrderStatusChanged,
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("enqueue status event for order %s: %w", event.OrderID, err)
	}
	return nil
}

// RecordCreation фиксирует переход NEW → PENDING при оформлении заказа.
func RecordCreation(ctx context.Context, tx domain.Repositories, event domain.OrderStatusChangedEvent) error {
	return recordTransition(ctx, tx, event)
}
