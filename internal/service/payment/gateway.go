package payment

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/metrics"
)

var tracer = otel.Tracer("orderflow/payment")

// Notifier асинхронно доставляет уведомление об исходе оплаты.
type Notifier interface {
	SendAsync(ctx context.Context, req domain.NotificationRequest, mode domain.DeliveryMode) <-chan domain.NotificationResult
}

// Gateway — фасад платежей: выбирает процессор по коду, логирует и уведомляет клиента.
type Gateway struct {
	registry *Registry
	notifier Notifier
	logger   *log.Entry
	metrics  *metrics.PaymentMetrics
	now      func() time.Time
}

// NewGateway создаёт фасад. registry == nil означает реестр по умолчанию, notifier может быть nil.
func NewGateway(registry *Registry, notifier Notifier, logger *log.Entry, m *metrics.PaymentMetrics) *Gateway {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logger == nil {
		logger = log.New().WithField("component", "payment-gateway")
	}
	return &Gateway{registry: registry, notifier: notifier, logger: logger, metrics: m, now: time.Now}
}

// SupportedMethods возвращает поддерживаемые коды оплаты.
func (g *Gateway) SupportedMethods() []domain.PaymentMethod {
	return g.registry.SupportedMethods()
}

// Supports проверяет код оплаты.
func (g *Gateway) Supports(method domain.PaymentMethod) bool {
	return g.registry.Supports(method)
}

// Validate проверяет запрос процессором его способа оплаты. Nil и неизвестный код — false.
func (g *Gateway) Validate(req *domain.PaymentRequest) bool {
	if req == nil {
		return false
	}
	proc, err := g.registry.Resolve(req.Method)
	if err != nil {
		return false
	}
	return proc.Validate(req)
}

// Process проводит оплату и уведомляет клиента об успехе или ожидании.
// Уведомление отправляется асинхронно и не влияет на результат.
func (g *Gateway) Process(ctx context.Context, req domain.PaymentRequest) domain.PaymentResult {
	result := g.Charge(ctx, req)
	g.NotifyOutcome(ctx, req, result)
	return result
}

// Charge проводит оплату без уведомления клиента. Вызывается внутри транзакции
// оформления: уведомление отправляет NotifyOutcome после фиксации.
// Любая паника процессора превращается в Failed с SYSTEM_ERROR.
func (g *Gateway) Charge(ctx context.Context, req domain.PaymentRequest) (result domain.PaymentResult) {
	ctx, span := tracer.Start(ctx, "payment.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", req.OrderID),
		attribute.String("payment.method", string(req.Method)),
	)

	started := g.now()
	logger := g.logger.WithFields(log.Fields{
		"order_id":       req.OrderID,
		"payment_method": req.Method,
		"amount":         req.Amount.String(),
	})
	logger.Info("payment attempt started")

	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("payment processor panicked")
			result = domain.NewPaymentFailed(req.Method, domain.PaymentErrorSystem,
				fmt.Sprintf("Payment system error: %v", r), g.now().UTC())
		}

		duration := g.now().Sub(started)
		g.metrics.RecordAttempt(string(req.Method), string(result.Status), duration)
		span.SetAttributes(attribute.String("payment.status", string(result.Status)))
		logger.WithFields(log.Fields{
			"status":      result.Status,
			"duration_ms": duration.Milliseconds(),
		}).Info("payment attempt finished")
	}()

	proc, err := g.registry.Resolve(req.Method)
	if err != nil {
		logger.WithError(err).Warn("payment method not supported")
		return domain.NewPaymentFailed(req.Method, domain.PaymentErrorUnsupported, err.Error(), g.now().UTC())
	}

	result = proc.Process(ctx, req)
	g.logOutcome(logger, result)
	return result
}

func (g *Gateway) logOutcome(logger *log.Entry, result domain.PaymentResult) {
	entry := logger.WithFields(log.Fields{
		"transaction_id": result.TransactionID,
		"status":         result.Status,
	})
	switch result.Status {
	case domain.PaymentStatusSuccess:
		entry.Info("payment succeeded")
	case domain.PaymentStatusPending:
		entry.Info("payment pending")
	case domain.PaymentStatusFailed:
		entry.WithField("error_code", result.ErrorCode).Warn("payment failed: " + result.Message)
	default:
		entry.Warn("payment finished with unexpected status")
	}
}

// NotifyOutcome уведомляет клиента об успешной или ожидающей оплате; Failed игнорируется.
// Не блокирует и не возвращает ошибок: сбой доставки только логируется.
func (g *Gateway) NotifyOutcome(ctx context.Context, req domain.PaymentRequest, result domain.PaymentResult) {
	if g.notifier == nil || !result.Succeeded() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			g.logger.WithField("panic", r).Error("payment notification panicked")
		}
	}()

	title, message := paymentNotificationText(req, result)
	g.notifier.SendAsync(ctx, domain.NotificationRequest{
		Type:           domain.ChannelCombined,
		Title:          title,
		Message:        message,
		Recipient:      req.CustomerName,
		RecipientEmail: req.CustomerEmail,
		RecipientPhone: req.CustomerPhone,
		OrderID:        req.OrderID,
	}, domain.DeliverySequential)
}

func paymentNotificationText(req domain.PaymentRequest, result domain.PaymentResult) (string, string) {
	amount := result.Amount.StringFixed(2)
	switch result.Status {
	case domain.PaymentStatusSuccess:
		return "Payment successful",
			fmt.Sprintf("Payment of %s for order %s succeeded. Transaction: %s", amount, req.OrderID, result.TransactionID)
	default:
		return "Order placed",
			fmt.Sprintf("Order %s has been placed. %s Amount due: %s. Reference: %s",
				req.OrderID, result.Message, amount, result.TransactionID)
	}
}
