package events

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/metrics"
)

// Observer — независимый потребитель событий смены статуса.
type Observer interface {
	Name() string
	Handle(ctx context.Context, event domain.OrderStatusChangedEvent) error
}

type funcObserver struct {
	name string
	fn   func(ctx context.Context, event domain.OrderStatusChangedEvent) error
}

func (o funcObserver) Name() string { return o.name }

func (o funcObserver) Handle(ctx context.Context, event domain.OrderStatusChangedEvent) error {
	return o.fn(ctx, event)
}

// ObserverFunc превращает функцию в именованного наблюдателя.
func ObserverFunc(name string, fn func(ctx context.Context, event domain.OrderStatusChangedEvent) error) Observer {
	return funcObserver{name: name, fn: fn}
}

// Submitter выполняет задачу асинхронно (например, notification.Pool).
type Submitter interface {
	Submit(task func())
}

// Publisher рассылает событие всем подписанным наблюдателям.
// Ошибка или паника одного наблюдателя логируется и не мешает остальным.
type Publisher struct {
	mu        sync.RWMutex
	observers []Observer
	async     Submitter
	logger    *log.Entry
	metrics   *metrics.LifecycleMetrics
}

// PublisherOption настраивает Publisher.
type PublisherOption func(*Publisher)

// WithAsync включает асинхронную доставку через пул.
func WithAsync(pool Submitter) PublisherOption {
	return func(p *Publisher) { p.async = pool }
}

// WithMetrics задаёт метрики ошибок наблюдателей.
func WithMetrics(m *metrics.LifecycleMetrics) PublisherOption {
	return func(p *Publisher) { p.metrics = m }
}

// NewPublisher создаёт издателя без подписчиков.
func NewPublisher(logger *log.Entry, opts ...PublisherOption) *Publisher {
	if logger == nil {
		logger = log.New().WithField("component", "event-publisher")
	}
	p := &Publisher{logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscribe добавляет наблюдателей. Безопасно вызывать во время Publish.
func (p *Publisher) Subscribe(observers ...Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, o := range observers {
		if o != nil {
			p.observers = append(p.observers, o)
		}
	}
}

// Observers возвращает имена подписчиков в порядке подписки.
func (p *Publisher) Observers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.observers))
	for _, o := range p.observers {
		names = append(names, o.Name())
	}
	return names
}

// Publish доставляет событие всем текущим подписчикам.
// В синхронном режиме возвращается после вызова каждого наблюдателя,
// в асинхронном — после постановки всех вызовов в пул.
func (p *Publisher) Publish(ctx context.Context, event domain.OrderStatusChangedEvent) {
	p.mu.RLock()
	observers := append([]Observer(nil), p.observers...)
	p.mu.RUnlock()

	if p.async == nil {
		for _, o := range observers {
			p.invoke(ctx, o, event)
		}
		return
	}

	detached := context.WithoutCancel(ctx)
	for _, o := range observers {
		p.async.Submit(func() { p.invoke(detached, o, event) })
	}
}

func (p *Publisher) invoke(ctx context.Context, o Observer, event domain.OrderStatusChangedEvent) {
	logger := p.logger.WithFields(log.Fields{
		"observer":   o.Name(),
		"order_id":   event.OrderID,
		"old_status": event.OldStatus,
		"new_status": event.NewStatus,
	})

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("observer panicked: %v", r)
			}
		}()
		return o.Handle(ctx, event)
	}()

	if err != nil {
		trace.SpanFromContext(ctx).AddEvent("observer.failed", trace.WithAttributes(
			attribute.String("observer", o.Name()),
			attribute.String("error", err.Error()),
		))
		p.metrics.RecordObserverFailure(o.Name())
		logger.WithError(err).Error("observer failed to handle status change")
		return
	}
	logger.Debug("observer handled status change")
}
