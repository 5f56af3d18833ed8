package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/metrics"
	"github.com/vladislavdragonenkov/orderflow/internal/service/inventory"
)

var tracer = otel.Tracer("orderflow/lifecycle")

// EventPublisher получает событие после фиксации перехода.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.OrderStatusChangedEvent)
}

// Manager — машина состояний заказа. Переход, складской эффект, запись
// в таймлайн и outbox выполняются в одной транзакции; событие публикуется после коммита.
type Manager struct {
	store     domain.Store
	ledger    *inventory.Ledger
	publisher EventPublisher
	retry     RetryConfig
	logger    *log.Entry
	metrics   *metrics.LifecycleMetrics
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error
}

// Option настраивает Manager.
type Option func(*Manager)

// WithPublisher задаёт издателя событий смены статуса.
func WithPublisher(p EventPublisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithRetry задаёт повторы при конфликте версий.
func WithRetry(cfg RetryConfig) Option {
	return func(m *Manager) { m.retry = cfg }
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics задаёт метрики переходов.
func WithMetrics(lm *metrics.LifecycleMetrics) Option {
	return func(m *Manager) { m.metrics = lm }
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager создаёт менеджер жизненного цикла.
func NewManager(store domain.Store, ledger *inventory.Ledger, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		ledger: ledger,
		retry:  DefaultRetryConfig(),
		logger: log.New().WithField("component", "lifecycle"),
		now:    func() time.Time { return time.Now().UTC() },
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.ledger == nil {
		m.ledger = inventory.NewLedger(store.Stock(), m.logger, m.metrics)
	}
	return m
}

// guard — дополнительная проверка заказа перед переходом.
type guard func(order domain.Order) error

// TransitionOrderStatus переводит заказ в target, если переход разрешён таблицей состояний.
// PENDING → CONFIRMED резервирует остатки, CONFIRMED → CANCELLED возвращает их,
// переход в COMPLETED отмечает оплату полученной.
func (m *Manager) TransitionOrderStatus(ctx context.Context, orderID string, target domain.OrderStatus) (domain.Order, error) {
	return m.transition(ctx, orderID, target, domain.ReasonSystemUpdate, nil)
}

// CancelOrderAndRestoreStock отменяет заказ. Для подтверждённого заказа
// остатки возвращаются ровно в объёме резерва; у PENDING заказа склад не трогается.
func (m *Manager) CancelOrderAndRestoreStock(ctx context.Context, orderID string) (domain.Order, error) {
	return m.transition(ctx, orderID, domain.OrderStatusCancelled, domain.ReasonStockRestored, nil)
}

// CancelOrderByCustomer отменяет собственный PENDING заказ клиента.
// Чужой заказ неотличим от несуществующего.
func (m *Manager) CancelOrderByCustomer(ctx context.Context, customerID, orderID string) (domain.Order, error) {
	return m.transition(ctx, orderID, domain.OrderStatusCancelled, domain.ReasonCustomerCancel, func(order domain.Order) error {
		if order.CustomerID != customerID {
			return domain.Reject(domain.RejectionNotFound, domain.ErrOrderNotFound, "order %s not found", orderID)
		}
		if order.Status != domain.OrderStatusPending {
			return domain.Reject(domain.RejectionConflict, domain.ErrIllegalTransition,
				"order %s is %s; customers can cancel only pending orders", orderID, order.Status)
		}
		return nil
	})
}

func (m *Manager) transition(ctx context.Context, orderID string, target domain.OrderStatus, reason domain.ChangeReason, check guard) (domain.Order, error) {
	ctx, span := tracer.Start(ctx, "lifecycle.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.target_status", string(target)),
	)

	start := time.Now()
	logger := m.logger.WithFields(log.Fields{"order_id": orderID, "target_status": target})

	if orderID == "" {
		return domain.Order{}, domain.Reject(domain.RejectionValidation, domain.ErrOrderIDRequired, "order id is required")
	}
	if !target.Valid() || target == domain.OrderStatusNew {
		return domain.Order{}, domain.Reject(domain.RejectionValidation, domain.ErrUnknownStatus, "unknown target status %q", target)
	}

	var (
		updated domain.Order
		event   domain.OrderStatusChangedEvent
	)
	err := m.withRetry(ctx, orderID, func() error {
		return m.store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
			current, err := tx.Orders().GetForUpdate(ctx, orderID)
			if err != nil {
				if errors.Is(err, domain.ErrOrderNotFound) {
					return domain.Reject(domain.RejectionNotFound, err, "order %s not found", orderID)
				}
				return fmt.Errorf("load order %s: %w", orderID, err)
			}
			if check != nil {
				if err := check(current); err != nil {
					return err
				}
			}
			if !current.Status.CanTransitionTo(target) {
				return domain.Reject(domain.RejectionConflict, domain.ErrIllegalTransition,
					"order %s cannot move from %s to %s", orderID, current.Status, target)
			}

			ledger := m.ledger.In(tx.Stock())
			effect := domain.TransitionStockEffect(current.Status, target)
			switch effect {
			case domain.StockEffectReserve:
				if err := ledger.ReserveMany(ctx, current.StockRequirements()); err != nil {
					return err
				}
			case domain.StockEffectRelease:
				if err := ledger.ReleaseMany(ctx, current.StockRequirements()); err != nil {
					return err
				}
			}

			now := m.now()
			next := current.Clone()
			next.Status = target
			next.UpdatedAt = now
			if target == domain.OrderStatusCompleted {
				next.PaymentSettled = true
			}
			if err := tx.Orders().Save(ctx, next); err != nil {
				return err
			}
			next.Version++

			evReason := reason
			if reason == domain.ReasonStockRestored && effect != domain.StockEffectRelease {
				evReason = domain.ReasonSystemUpdate
			}
			ev := domain.NewStatusChangedEvent(next, current.Status, evReason, now)
			if err := recordTransition(ctx, tx, ev); err != nil {
				return err
			}

			updated, event = next, ev
			return nil
		})
	})

	if err != nil {
		result := metrics.ResultError
		var rej *domain.RejectionError
		if errors.As(err, &rej) {
			result = metrics.ResultRejected
			logger.WithField("reason", rej.Reason).Info("status transition rejected")
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.WithError(err).Error("status transition failed")
		}
		m.metrics.RecordTransition("unknown", string(target), result, time.Since(start))
		return domain.Order{}, err
	}

	m.metrics.RecordTransition(string(event.OldStatus), string(event.NewStatus), metrics.ResultOK, time.Since(start))
	logger.WithFields(log.Fields{
		"old_status": event.OldStatus,
		"new_status": event.NewStatus,
		"reason":     event.Reason,
	}).Info("order status changed")

	m.publish(ctx, event)
	return updated, nil
}

// publish доставляет событие наблюдателям. Ошибки и паники только логируются:
// переход уже зафиксирован.
func (m *Manager) publish(ctx context.Context, event domain.OrderStatusChangedEvent) {
	if m.publisher == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.WithFields(log.Fields{
				"order_id": event.OrderID,
				"panic":    r,
			}).Error("event publish panicked")
		}
	}()
	m.publisher.Publish(ctx, event)
}
