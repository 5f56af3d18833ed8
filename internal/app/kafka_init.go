package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/messaging/kafka"
)

const statusConsumerGroup = "orderflow-status-observers"

// initKafkaProducer создаёт producer, если список брокеров не пуст.
// Пустой список даёт nil, nil: сервис работает без Kafka.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	brokerList := Config{KafkaBrokers: brokers}.Brokers()
	if len(brokerList) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokerList, logger.WithField("component", "kafka-producer"))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", strings.Join(brokerList, ",")).Info("kafka producer initialized")
	return producer, nil
}

// initStatusConsumer подписывает наблюдателей на события, выложенные outbox в Kafka.
func initStatusConsumer(brokers []string, publisher kafka.StatusEventPublisher, dlq *kafka.Producer, logger *log.Entry) (*kafka.Consumer, error) {
	consumerLogger := logger.WithField("component", "kafka-consumer")
	opts := []kafka.ConsumerOption{kafka.WithConsumerLogger(consumerLogger)}
	if dlq != nil {
		opts = append(opts, kafka.WithDLQ(dlq, 3))
	}
	return kafka.NewConsumer(
		brokers,
		statusConsumerGroup,
		[]string{kafka.TopicOrderEvents},
		kafka.StatusEventHandler(publisher, consumerLogger),
		opts...,
	)
}

// closeKafka закрывает producer, если он создан.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
