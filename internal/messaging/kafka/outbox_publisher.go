package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) domain.OutboxPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
	}
}

// Publish заворачивает сообщение в OutboxEnvelope. Ключ — id агрегата,
// поэтому события одного заказа попадают в одну партицию по порядку.
func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	return p.publish(ctx, event)
}

// PublishFailure публикует тот же конверт, что и Publish, добавляя причину сбоя в заголовки.
// Значение остаётся пригодным для повторной отправки в основной topic как есть.
func (p *OutboxTopicPublisher) PublishFailure(ctx context.Context, event domain.OutboxMessage, reason string) error {
	return p.publish(ctx, event,
		sarama.RecordHeader{Key: []byte(HeaderErrorMessage), Value: []byte(reason)},
		sarama.RecordHeader{Key: []byte(HeaderFailedAt), Value: []byte(time.Now().UTC().Format(time.RFC3339))},
	)
}

func (p *OutboxTopicPublisher) publish(ctx context.Context, event domain.OutboxMessage, extra ...sarama.RecordHeader) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	envelope := OutboxEnvelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   time.Now().UTC(),
	}

	headers := append([]sarama.RecordHeader{{Key: []byte(HeaderEventType), Value: []byte(event.EventType)}}, extra...)
	return p.producer.PublishEvent(ctx, p.topic, key, envelope, headers...)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
