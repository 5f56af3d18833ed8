package notification

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// Sender доставляет уведомление по одному каналу.
// Неудача возвращается в результате, а не ошибкой: каналы независимы.
type Sender interface {
	Channel() domain.Channel
	Send(ctx context.Context, req domain.NotificationRequest) domain.NotificationResult
}

// Transport — канальная отправка (SMTP, SMS-шлюз, брокер push-сообщений).
type Transport interface {
	Deliver(ctx context.Context, address string, req domain.NotificationRequest) error
}

// TransportFunc позволяет использовать функцию как Transport.
type TransportFunc func(ctx context.Context, address string, req domain.NotificationRequest) error

// Deliver вызывает f.
func (f TransportFunc) Deliver(ctx context.Context, address string, req domain.NotificationRequest) error {
	return f(ctx, address, req)
}

// LogTransport «доставляет» сообщение в лог. Используется, пока у канала нет реального шлюза.
func LogTransport(logger *log.Entry) Transport {
	if logger == nil {
		logger = log.New().WithField("component", "notification-transport")
	}
	return TransportFunc(func(_ context.Context, address string, req domain.NotificationRequest) error {
		logger.WithFields(log.Fields{
			"address":  address,
			"title":    req.Title,
			"order_id": req.OrderID,
		}).Info(req.Message)
		return nil
	})
}

// basicSender фиксирует сам факт запроса. Выполняется первым в любом режиме.
type basicSender struct {
	logger *log.Entry
	now    func() time.Time
}

// NewBasicSender создаёт базовый канал.
func NewBasicSender(logger *log.Entry) Sender {
	if logger == nil {
		logger = log.New().WithField("component", "notification-basic")
	}
	return &basicSender{logger: logger, now: time.Now}
}

func (s *basicSender) Channel() domain.Channel { return domain.ChannelBasic }

func (s *basicSender) Send(_ context.Context, req domain.NotificationRequest) domain.NotificationResult {
	s.logger.WithFields(log.Fields{
		"recipient": req.Recipient,
		"title":     req.Title,
		"type":      req.Type,
		"order_id":  req.OrderID,
	}).Info("notification recorded")

	return domain.NotificationResult{
		Success:   true,
		Message:   "notification recorded",
		Channel:   domain.ChannelBasic,
		Recipient: req.Recipient,
		Timestamp: s.now().UTC(),
		Attempts:  1,
	}
}

// channelSender — email, SMS или push поверх Transport.
type channelSender struct {
	channel   domain.Channel
	transport Transport
	now       func() time.Time
}

// NewChannelSender создаёт отправитель для канала email, SMS или push.
func NewChannelSender(channel domain.Channel, transport Transport) Sender {
	return &channelSender{channel: channel, transport: transport, now: time.Now}
}

func (s *channelSender) Channel() domain.Channel { return s.channel }

func (s *channelSender) Send(ctx context.Context, req domain.NotificationRequest) domain.NotificationResult {
	res := domain.NotificationResult{
		Channel:   s.channel,
		Recipient: req.Recipient,
		Attempts:  1,
	}

	address := addressFor(s.channel, req)
	switch {
	case address == "":
		res.Message = fmt.Sprintf("%s skipped: no address for recipient", s.channel)
	case ctx.Err() != nil:
		res.Message = fmt.Sprintf("%s failed: %v", s.channel, ctx.Err())
	default:
		if err := s.transport.Deliver(ctx, address, req); err != nil {
			res.Message = fmt.Sprintf("%s failed: %v", s.channel, err)
		} else {
			res.Success = true
			res.Message = fmt.Sprintf("%s sent to %s", s.channel, address)
		}
	}

	res.Timestamp = s.now().UTC()
	return res
}

// addressFor выбирает адрес доставки канала. Для push адрес — сам получатель.
func addressFor(channel domain.Channel, req domain.NotificationRequest) string {
	switch channel {
	case domain.ChannelEmail:
		return req.RecipientEmail
	case domain.ChannelSMS:
		return req.RecipientPhone
	case domain.ChannelPush:
		if req.Recipient != "" {
			return req.Recipient
		}
		return req.OrderID
	}
	return ""
}
