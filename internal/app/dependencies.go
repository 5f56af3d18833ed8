package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/health"
	"github.com/vladislavdragonenkov/orderflow/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orderflow/internal/metrics"
	"github.com/vladislavdragonenkov/orderflow/internal/service/checkout"
	"github.com/vladislavdragonenkov/orderflow/internal/service/events"
	"github.com/vladislavdragonenkov/orderflow/internal/service/inventory"
	"github.com/vladislavdragonenkov/orderflow/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/orderflow/internal/service/notification"
	"github.com/vladislavdragonenkov/orderflow/internal/service/outbox"
	"github.com/vladislavdragonenkov/orderflow/internal/service/payment"
	"github.com/vladislavdragonenkov/orderflow/internal/version"
)

const (
	breakerMaxFailures  = 5
	breakerResetTimeout = 30 * time.Second
	notifyMaxDelay      = 5 * time.Second
	outboxBacklogMaxAge = 5 * time.Minute
)

// Dependencies содержит все собранные компоненты приложения.
type Dependencies struct {
	Config  Config
	Storage *storageBackend

	Producer *kafka.Producer
	Consumer *kafka.Consumer

	Pool       *notification.Pool
	Dispatcher *notification.Dispatcher
	Payments   *payment.Gateway
	Publisher  *events.Publisher
	Ledger     *inventory.Ledger
	Lifecycle  *lifecycle.Manager
	Checkout   *checkout.Service
	Outbox     *outbox.Worker

	Health *health.Handler
	Logger *log.Entry
}

// NewDependencies открывает хранилище и собирает граф сервисов.
// Kafka необязательна: без брокеров outbox копится, push пишется в лог.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.New().WithField("component", "app")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backend, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	deps := &Dependencies{
		Config:  cfg,
		Storage: backend,
		Health:  health.NewHandler(version.GetVersion()),
		Logger:  logger,
	}
	deps.Health.RegisterChecker("storage", health.NewPingChecker("storage", backend.ping, 0))

	producer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil && cfg.EventsViaKafka {
		_ = backend.close()
		return nil, fmt.Errorf("events via kafka: %w", err)
	}
	deps.Producer = producer
	if len(cfg.Brokers()) > 0 {
		deps.Health.RegisterChecker("kafka", health.NewSimpleChecker("kafka", func() error {
			if deps.Producer == nil {
				return fmt.Errorf("kafka producer is not connected")
			}
			return nil
		}).Optional())
	}

	lifecycleMetrics := metrics.NewLifecycleMetrics(nil)
	notificationMetrics := metrics.NewNotificationMetrics(nil)

	deps.Pool = notification.NewPool(cfg.NotifyWorkers, cfg.NotifyQueue,
		logger.WithField("component", "notification-pool"), notificationMetrics)
	deps.Dispatcher = newDispatcher(cfg, producer, deps.Pool, notificationMetrics, logger)

	deps.Payments = payment.NewGateway(payment.DefaultRegistry(), deps.Dispatcher,
		logger.WithField("component", "payment-gateway"), metrics.NewPaymentMetrics(nil))

	publisherOpts := []events.PublisherOption{events.WithMetrics(lifecycleMetrics)}
	if cfg.EventsAsync {
		publisherOpts = append(publisherOpts, events.WithAsync(deps.Pool))
	}
	deps.Publisher = events.NewPublisher(logger.WithField("component", "event-publisher"), publisherOpts...)
	deps.Publisher.Subscribe(
		events.NewCustomerNotifier(deps.Dispatcher, logger.WithField("observer", "customer")),
		events.NewAdminNotifier(deps.Dispatcher, events.AdminContact{
			Name:  cfg.AdminName,
			Email: cfg.AdminEmail,
			Phone: cfg.AdminPhone,
		}, logger.WithField("observer", "admin")),
		events.NewInventoryReporter(deps.Dispatcher, logger.WithField("observer", "inventory")),
		events.NewAuditLogger(logger.WithField("observer", "audit")),
	)
	if producer != nil {
		deps.Publisher.Subscribe(kafka.NewStreamObserver(producer, kafka.TopicOrderStatus))
	}

	// Наблюдатели вызываются либо сразу после коммита, либо из Kafka после outbox.
	var direct lifecycle.EventPublisher = deps.Publisher
	if cfg.EventsViaKafka {
		direct = nil
		deps.Consumer, err = initStatusConsumer(cfg.Brokers(), deps.Publisher, producer, logger)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("status consumer: %w", err)
		}
	}

	deps.Ledger = inventory.NewLedger(backend.store.Stock(),
		logger.WithField("component", "inventory-ledger"), lifecycleMetrics)
	deps.Lifecycle = lifecycle.NewManager(backend.store, deps.Ledger,
		lifecycle.WithPublisher(direct),
		lifecycle.WithLogger(logger.WithField("component", "lifecycle")),
		lifecycle.WithMetrics(lifecycleMetrics),
	)
	deps.Checkout = checkout.NewService(backend.store, deps.Payments,
		checkout.WithPublisher(direct),
		checkout.WithLogger(logger.WithField("component", "checkout")),
		checkout.WithMetrics(lifecycleMetrics),
	)

	if producer != nil {
		deps.Outbox = outbox.NewWorker(
			backend.store.Outbox(),
			kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents),
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithMetrics(metrics.NewOutboxMetrics(nil)),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
			outbox.WithParallelism(cfg.OutboxParallelism),
		)
		deps.Health.RegisterChecker("outbox",
			health.NewOutboxBacklogChecker(backend.store.Outbox(), cfg.OutboxMaxPending, outboxBacklogMaxAge))
	}

	return deps, nil
}

// newDispatcher собирает каналы доставки: ретраи снаружи, предохранитель ближе к каналу.
func newDispatcher(cfg Config, producer *kafka.Producer, pool *notification.Pool, m *metrics.NotificationMetrics, logger *log.Entry) *notification.Dispatcher {
	dispatcherLogger := logger.WithField("component", "notification-dispatcher")
	retry := notification.RetryConfig{
		MaxAttempts:   cfg.NotifyMaxAttempts,
		InitialDelay:  cfg.NotifyBaseDelay,
		MaxDelay:      notifyMaxDelay,
		BackoffFactor: 2,
	}

	transports := map[domain.Channel]notification.Transport{
		domain.ChannelEmail: notification.LogTransport(dispatcherLogger.WithField("channel", domain.ChannelEmail)),
		domain.ChannelSMS:   notification.LogTransport(dispatcherLogger.WithField("channel", domain.ChannelSMS)),
		domain.ChannelPush:  notification.LogTransport(dispatcherLogger.WithField("channel", domain.ChannelPush)),
	}
	if producer != nil {
		transports[domain.ChannelPush] = kafka.NewPushTransport(producer, kafka.TopicPushNotifications)
	}

	opts := []notification.Option{
		notification.WithPool(pool),
		notification.WithLogger(dispatcherLogger),
		notification.WithMetrics(m),
	}
	for _, channel := range []domain.Channel{domain.ChannelEmail, domain.ChannelSMS, domain.ChannelPush} {
		channelLogger := dispatcherLogger.WithField("channel", channel)
		breaker := notification.NewCircuitBreaker(breakerMaxFailures, breakerResetTimeout, channelLogger)
		sender := notification.WithRetry(
			notification.WithBreaker(notification.NewChannelSender(channel, transports[channel]), breaker),
			retry,
			notification.WithRetryLogger(channelLogger),
			notification.WithRetryMetrics(m),
		)
		opts = append(opts, notification.WithSender(sender))
	}
	return notification.NewDispatcher(opts...)
}

// Close освобождает ресурсы в обратном порядке создания.
func (d *Dependencies) Close() {
	if d == nil {
		return
	}
	if d.Consumer != nil {
		if err := d.Consumer.Stop(); err != nil {
			d.Logger.WithError(err).Warn("failed to stop kafka consumer")
		}
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
	closeKafka(d.Producer, d.Logger)
	if d.Storage != nil {
		if err := d.Storage.close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close storage")
		}
	}
}
