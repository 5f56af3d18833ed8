package kafka

import (
	"context"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// StreamObserver транслирует события смены статуса в TopicOrderStatus для внешних потребителей.
type StreamObserver struct {
	producer *Producer
	topic    string
}

// NewStreamObserver создаёт наблюдателя-транслятора.
func NewStreamObserver(producer *Producer, topic string) *StreamObserver {
	if topic == "" {
		topic = TopicOrderStatus
	}
	return &StreamObserver{producer: producer, topic: topic}
}

func (o *StreamObserver) Name() string { return "kafka-status-stream" }

// Handle публикует событие с ключом order id.
func (o *StreamObserver) Handle(ctx context.Context, event domain.OrderStatusChangedEvent) error {
	return o.producer.PublishEvent(ctx, o.topic, event.OrderID, event,
		sarama.RecordHeader{Key: []byte(HeaderEventType), Value: []byte(domain.EventTypeOrderStatusChanged)})
}
