package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/metrics"
)

var tracer = otel.Tracer("orderflow/notification")

const defaultBulkParallelism = 8

// Dispatcher — движок доставки уведомлений: выбирает каналы по режиму и агрегирует результаты.
type Dispatcher struct {
	basic           Sender
	channels        map[domain.Channel]Sender
	pool            *Pool
	bulkParallelism int
	logger          *log.Entry
	metrics         *metrics.NotificationMetrics
	now             func() time.Time
}

// Option настраивает Dispatcher.
type Option func(*Dispatcher)

// WithSender регистрирует отправитель канала (email, SMS, push) или заменяет базовый.
func WithSender(sender Sender) Option {
	return func(d *Dispatcher) {
		if sender.Channel() == domain.ChannelBasic {
			d.basic = sender
			return
		}
		d.channels[sender.Channel()] = sender
	}
}

// WithPool задаёт пул для асинхронной доставки.
func WithPool(pool *Pool) Option {
	return func(d *Dispatcher) { d.pool = pool }
}

// WithBulkParallelism ограничивает параллелизм SendBulk.
func WithBulkParallelism(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.bulkParallelism = n
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics задаёт метрики доставки.
func WithMetrics(m *metrics.NotificationMetrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher создаёт движок. Каналы без явно заданного отправителя пишут в лог.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		channels:        make(map[domain.Channel]Sender),
		bulkParallelism: defaultBulkParallelism,
		logger:          log.New().WithField("component", "notification-dispatcher"),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.basic == nil {
		d.basic = NewBasicSender(d.logger)
	}
	for _, ch := range []domain.Channel{domain.ChannelEmail, domain.ChannelSMS, domain.ChannelPush} {
		if _, ok := d.channels[ch]; !ok {
			d.channels[ch] = NewChannelSender(ch, LogTransport(d.logger.WithField("channel", ch)))
		}
	}
	return d
}

// Send доставляет уведомление в выбранном режиме и возвращает результат.
func (d *Dispatcher) Send(ctx context.Context, req domain.NotificationRequest, mode domain.DeliveryMode) domain.NotificationResult {
	ctx, span := tracer.Start(ctx, "notification.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("notification.mode", string(mode)),
		attribute.String("notification.type", string(req.Type)),
		attribute.String("order.id", req.OrderID),
	)

	var res domain.NotificationResult
	switch mode {
	case domain.DeliverySequential:
		res = d.sendSequential(ctx, req)
	case domain.DeliveryConcurrent:
		res = d.sendConcurrent(ctx, req)
	default:
		res = d.sendSingle(ctx, req)
	}

	if !res.Success {
		span.SetStatus(codes.Error, res.Message)
		d.logger.WithFields(log.Fields{
			"mode":      mode,
			"channel":   res.Channel,
			"recipient": req.Recipient,
			"order_id":  req.OrderID,
		}).Warn("notification delivery failed: " + res.Message)
	}
	return res
}

// SendAsync ставит доставку в пул и возвращает канал с будущим результатом.
// Отмена ctx вызывающего не прерывает уже поставленную доставку.
func (d *Dispatcher) SendAsync(ctx context.Context, req domain.NotificationRequest, mode domain.DeliveryMode) <-chan domain.NotificationResult {
	out := make(chan domain.NotificationResult, 1)
	ctx = context.WithoutCancel(ctx)
	task := func() {
		defer func() {
			if r := recover(); r != nil {
				out <- domain.NotificationResult{
					Channel:   channelForMode(req, mode),
					Recipient: req.Recipient,
					Message:   fmt.Sprintf("delivery panicked: %v", r),
					Timestamp: d.now().UTC(),
				}
			}
			close(out)
		}()
		out <- d.Send(ctx, req, mode)
	}

	if d.pool == nil {
		go task()
		return out
	}
	d.pool.Submit(task)
	return out
}

// SendBulk доставляет пачку уведомлений с ограниченным параллелизмом.
// Результаты возвращаются в порядке запросов после завершения всех доставок.
func (d *Dispatcher) SendBulk(ctx context.Context, reqs []domain.NotificationRequest, mode domain.DeliveryMode) []domain.NotificationResult {
	results := make([]domain.NotificationResult, len(reqs))
	var g errgroup.Group
	g.SetLimit(d.bulkParallelism)
	for i := range reqs {
		g.Go(func() error {
			results[i] = d.Send(ctx, reqs[i], mode)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (d *Dispatcher) sendSingle(ctx context.Context, req domain.NotificationRequest) domain.NotificationResult {
	switch req.Type {
	case domain.ChannelCombined:
		return d.sendSequential(ctx, req)
	case domain.ChannelBasic, "":
		return d.deliver(ctx, d.basic, req)
	}

	sender, ok := d.channels[req.Type]
	if !ok {
		return domain.NotificationResult{
			Channel:   req.Type,
			Recipient: req.Recipient,
			Message:   fmt.Sprintf("unsupported notification channel %q", req.Type),
			Timestamp: d.now().UTC(),
		}
	}

	d.deliver(ctx, d.basic, req)
	return d.deliver(ctx, sender, req)
}

// plan возвращает каналы combined-режима: базовый, email при наличии адреса,
// SMS при наличии телефона и push.
func (d *Dispatcher) plan(req domain.NotificationRequest) []Sender {
	senders := []Sender{d.basic}
	if strings.TrimSpace(req.RecipientEmail) != "" {
		senders = append(senders, d.channels[domain.ChannelEmail])
	}
	if strings.TrimSpace(req.RecipientPhone) != "" {
		senders = append(senders, d.channels[domain.ChannelSMS])
	}
	return append(senders, d.channels[domain.ChannelPush])
}

func (d *Dispatcher) sendSequential(ctx context.Context, req domain.NotificationRequest) domain.NotificationResult {
	senders := d.plan(req)
	results := make([]domain.NotificationResult, 0, len(senders))
	for _, sender := range senders {
		results = append(results, d.deliver(ctx, sender, req))
	}
	return d.aggregate(req, results)
}

func (d *Dispatcher) sendConcurrent(ctx context.Context, req domain.NotificationRequest) domain.NotificationResult {
	senders := d.plan(req)
	results := make([]domain.NotificationResult, len(senders))

	// Базовая доставка всегда первая, параллельно идут только каналы.
	results[0] = d.deliver(ctx, senders[0], req)

	// Ошибки каналов не отменяют соседей, поэтому группа без общего контекста.
	var g errgroup.Group
	for i, sender := range senders[1:] {
		g.Go(func() error {
			results[i+1] = d.deliver(ctx, sender, req)
			return nil
		})
	}
	_ = g.Wait()
	return d.aggregate(req, results)
}

func (d *Dispatcher) deliver(ctx context.Context, sender Sender, req domain.NotificationRequest) domain.NotificationResult {
	res := sender.Send(ctx, req)
	if res.Channel == "" {
		res.Channel = sender.Channel()
	}
	d.metrics.RecordDelivery(string(res.Channel), res.Success)
	return res
}

func (d *Dispatcher) aggregate(req domain.NotificationRequest, results []domain.NotificationResult) domain.NotificationResult {
	success := true
	attempts := 0
	messages := make([]string, 0, len(results))
	for _, r := range results {
		success = success && r.Success
		attempts += r.Attempts
		messages = append(messages, fmt.Sprintf("%s: %s", r.Channel, r.Message))
	}
	return domain.NotificationResult{
		Success:   success,
		Message:   strings.Join(messages, " | "),
		Channel:   domain.ChannelCombined,
		Recipient: req.Recipient,
		Timestamp: d.now().UTC(),
		Attempts:  attempts,
		Channels:  results,
	}
}

func channelForMode(req domain.NotificationRequest, mode domain.DeliveryMode) domain.Channel {
	if mode == domain.DeliverySingle && req.Type != "" {
		return req.Type
	}
	return domain.ChannelCombined
}
