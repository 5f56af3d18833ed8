package kafka

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// PushTransport доставляет push-уведомления через Kafka: сообщение забирает внешний push-шлюз.
// Реализует notification.Transport.
type PushTransport struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewPushTransport создаёт транспорт push-канала.
func NewPushTransport(producer *Producer, topic string) *PushTransport {
	if topic == "" {
		topic = TopicPushNotifications
	}
	return &PushTransport{producer: producer, topic: topic, now: time.Now}
}

// Deliver публикует уведомление с ключом address.
func (t *PushTransport) Deliver(ctx context.Context, address string, req domain.NotificationRequest) error {
	return t.producer.PublishEvent(ctx, t.topic, address, PushMessage{
		Recipient: address,
		OrderID:   req.OrderID,
		Title:     req.Title,
		Message:   req.Message,
		SentAt:    t.now().UTC(),
	})
}
