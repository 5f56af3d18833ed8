package memory

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// DefaultMaxPendingOutbox ограничивает backlog outbox, если брокер не настроен.
const DefaultMaxPendingOutbox = 10000

// Store — in-memory хранилище для локальной разработки и тестов.
//
// Карты защищены одним RWMutex и меняются только при commit транзакции.
// Остаток каждого варианта живёт в отдельной ячейке со своим мьютексом,
// поэтому резервы по разным вариантам не мешают друг другу.
type Store struct {
	mu       sync.RWMutex
	orders   map[string]domain.Order
	carts    map[string]domain.Cart
	variants map[string]*variantRecord
	outbox   *outboxLog
	timeline map[string][]domain.TimelineEvent

	orderLocks *keyedLocks
}

// Option настраивает Store.
type Option func(*Store)

// WithMaxPendingOutbox задаёт предел pending-сообщений outbox.
func WithMaxPendingOutbox(limit int) Option {
	return func(s *Store) {
		if limit > 0 {
			s.outbox.maxPending = limit
		}
	}
}

// WithLogger задаёт logger для служебных предупреждений хранилища.
func WithLogger(logger *log.Entry) Option {
	return func(s *Store) {
		if logger != nil {
			s.outbox.logger = logger
		}
	}
}

// NewStore создаёт пустое хранилище.
func NewStore(opts ...Option) *Store {
	s := &Store{
		orders:     make(map[string]domain.Order),
		carts:      make(map[string]domain.Cart),
		variants:   make(map[string]*variantRecord),
		outbox:     newOutboxLog(DefaultMaxPendingOutbox),
		timeline:   make(map[string][]domain.TimelineEvent),
		orderLocks: newKeyedLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithinTx выполняет fn в транзакции. Списания остатков применяются сразу (под
// защитой ячейки) и откатываются при ошибке; всё остальное применяется при commit.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Repositories) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := newTx(s)
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
		if err != nil {
			tx.rollback()
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

// autocommit выполняет одну операцию в отдельной транзакции.
func (s *Store) autocommit(ctx context.Context, fn func(tx *memTx) error) error {
	return s.WithinTx(ctx, func(_ context.Context, r domain.Repositories) error {
		return fn(r.(*memTx))
	})
}

// Orders возвращает autocommit-репозиторий заказов.
func (s *Store) Orders() domain.OrderRepository { return autoOrders{s: s} }

// Carts возвращает autocommit-репозиторий корзин.
func (s *Store) Carts() domain.CartRepository { return autoCarts{s: s} }

// Variants возвращает autocommit-каталог вариантов.
func (s *Store) Variants() domain.VariantRepository { return autoVariants{s: s} }

// Stock возвращает складские операции вне транзакции.
func (s *Store) Stock() domain.StockStore { return autoStock{s: s} }

// Outbox возвращает outbox-репозиторий.
func (s *Store) Outbox() domain.OutboxRepository { return s.outbox }

// OutboxDropped возвращает число сообщений, вытесненных лимитом backlog.
func (s *Store) OutboxDropped() int { return s.outbox.Dropped() }

// Timeline возвращает autocommit-репозиторий таймлайна.
func (s *Store) Timeline() domain.TimelineRepository { return autoTimeline{s: s} }

var _ domain.Store = (*Store)(nil)

// keyedLocks — мьютекс на ключ, используется для GetForUpdate.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*keyedLock)}
}

// lock захватывает ключ или возвращает ошибку контекста.
func (k *keyedLocks) lock(ctx context.Context, key string) error {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.release(key, l)
		return ctx.Err()
	}
}

func (k *keyedLocks) unlock(key string) {
	k.mu.Lock()
	l, ok := k.locks[key]
	k.mu.Unlock()
	if !ok {
		return
	}
	<-l.ch
	k.release(key, l)
}

func (k *keyedLocks) release(key string, l *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}
