package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents       = "orderflow.order.events"
	TopicOrderStatus       = "orderflow.order.status"
	TopicPushNotifications = "orderflow.notifications.push"
	TopicDeadLetterQueue   = "orderflow.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
	HeaderEventType     = "x-event-type"
)

// OutboxEnvelope — формат сообщения, которое outbox публикует в TopicOrderEvents.
type OutboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// PushMessage — push-уведомление для внешнего шлюза.
type PushMessage struct {
	Recipient string    `json:"recipient"`
	OrderID   string    `json:"order_id,omitempty"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	SentAt    time.Time `json:"sent_at"`
}

// ParseOutboxEnvelope парсит конверт outbox из сообщения.
func ParseOutboxEnvelope(message *sarama.ConsumerMessage) (*OutboxEnvelope, error) {
	var env OutboxEnvelope
	if err := json.Unmarshal(message.Value, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outbox envelope: %w", err)
	}
	return &env, nil
}

// ParseStatusChangedEvent извлекает событие смены статуса: из конверта outbox
// или из сообщения TopicOrderStatus, где событие лежит без обёртки.
func ParseStatusChangedEvent(message *sarama.ConsumerMessage) (*domain.OrderStatusChangedEvent, error) {
	raw := message.Value
	if message.Topic != TopicOrderStatus {
		env, err := ParseOutboxEnvelope(message)
		if err != nil {
			return nil, err
		}
		if env.EventType != domain.EventTypeOrderStatusChanged {
			return nil, fmt.Errorf("unexpected event type %q", env.EventType)
		}
		raw = env.Payload
	}

	var event domain.OrderStatusChangedEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status event: %w", err)
	}
	if event.OrderID == "" {
		return nil, fmt.Errorf("status event without order id")
	}
	return &event, nil
}
