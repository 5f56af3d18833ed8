package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrCartActiveExists — у клиента уже есть другая активная корзина.
var ErrCartActiveExists = errors.New("customer already has an active cart")

// OrderRepository хранит заказы вместе с их позициями.
type OrderRepository interface {
	// Create сохраняет заказ и его позиции. Повторный ID даёт ErrOrderVersionConflict.
	Create(ctx context.Context, order Order) error
	Get(ctx context.Context, id string) (Order, error)
	// GetForUpdate читает заказ и блокирует его до конца транзакции.
	GetForUpdate(ctx context.Context, id string) (Order, error)
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error)
	// Save перезаписывает изменяемые поля заказа при совпадении Version и инкрементирует её.
	// Позиции заказа после создания не меняются.
	Save(ctx context.Context, order Order) error
}

// CartRepository хранит корзины. Корзина в статусе ordered больше не меняется.
type CartRepository interface {
	GetActive(ctx context.Context, customerID string) (Cart, error)
	Get(ctx context.Context, id string) (Cart, error)
	Save(ctx context.Context, cart Cart) error
}

// VariantRepository — каталог вариантов товаров.
type VariantRepository interface {
	Get(ctx context.Context, id string) (ProductVariant, error)
	FindByDescriptor(ctx context.Context, d VariantDescriptor) (ProductVariant, error)
	Create(ctx context.Context, v ProductVariant) error
	// SetPrice меняет каталожную цену; на оформленные заказы не влияет.
	SetPrice(ctx context.Context, id string, price decimal.Decimal) error
}

// StockStore — атомарные операции над остатком варианта.
type StockStore interface {
	// DecrementIfAvailable списывает qty, только если остатка хватает.
	// Иначе возвращает ErrInsufficientStock и ничего не меняет.
	DecrementIfAvailable(ctx context.Context, variantID string, qty int64) error
	// Increment возвращает qty на склад.
	Increment(ctx context.Context, variantID string, qty int64) error
	Available(ctx context.Context, variantID string) (int64, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// Repositories — набор репозиториев, привязанных к одной транзакции
// (или работающих в режиме autocommit, если получены из Store).
type Repositories interface {
	Orders() OrderRepository
	Carts() CartRepository
	Variants() VariantRepository
	Stock() StockStore
	Outbox() OutboxRepository
	Timeline() TimelineRepository
}

// UnitOfWork выполняет fn в одной транзакции. Ошибка или паника в fn откатывают все изменения.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error
}

// Store — хранилище целиком: транзакции плюс autocommit-доступ.
type Store interface {
	UnitOfWork
	Repositories
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
