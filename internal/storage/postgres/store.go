package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

const (
	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute

	defaultTxAttempts = 3
	opTimeout         = 5 * time.Second
)

// PostgreSQL SQLSTATE коды, которые классифицирует хранилище.
const (
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// querier — общее подмножество *sql.DB и *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store реализует domain.Store поверх PostgreSQL.
//
// Вне WithinTx каждая операция репозитория выполняется в autocommit.
// Внутри WithinTx репозитории привязаны к одной sql.Tx уровня READ COMMITTED:
// заказ блокируется через SELECT ... FOR UPDATE, остатки меняются условным UPDATE.
type Store struct {
	db         *sql.DB
	txAttempts int
	logger     *log.Entry
}

// Option настраивает Store.
type Option func(*Store)

// WithLogger задаёт logger хранилища.
func WithLogger(logger *log.Entry) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTxAttempts задаёт число попыток транзакции при serialization failure и deadlock.
func WithTxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.txAttempts = n
		}
	}
}

// Open открывает подключение к PostgreSQL и проверяет доступность базы.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return newStore(db, opts...), nil
}

func newStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:         db,
		txAttempts: defaultTxAttempts,
		logger:     log.New().WithField("component", "postgres-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB возвращает raw SQL DB, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema применяет все up-миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WithinTx выполняет fn в транзакции. Ошибка или паника откатывают её.
// Serialization failure и deadlock повторяются целиком, включая fn.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Repositories) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	var err error
	for attempt := 1; attempt <= s.txAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.logger.WithError(err).WithField("attempt", attempt).Warn("transaction aborted by postgres, retrying")
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx domain.Repositories) error) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, repositories{q: tx, inTx: true}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return classifyWriteError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func (s *Store) autocommit() repositories {
	return repositories{q: s.db}
}

// Orders возвращает autocommit-репозиторий заказов.
func (s *Store) Orders() domain.OrderRepository { return s.autocommit().Orders() }

// Carts возвращает autocommit-репозиторий корзин.
func (s *Store) Carts() domain.CartRepository { return s.autocommit().Carts() }

// Variants возвращает autocommit-репозиторий каталога.
func (s *Store) Variants() domain.VariantRepository { return s.autocommit().Variants() }

// Stock возвращает autocommit-доступ к остаткам.
func (s *Store) Stock() domain.StockStore { return s.autocommit().Stock() }

// Outbox возвращает autocommit-репозиторий outbox.
func (s *Store) Outbox() domain.OutboxRepository { return s.autocommit().Outbox() }

// Timeline возвращает autocommit-репозиторий таймлайна.
func (s *Store) Timeline() domain.TimelineRepository { return s.autocommit().Timeline() }

// repositories — набор репозиториев над одним querier.
type repositories struct {
	q    querier
	inTx bool
}

func (r repositories) Orders() domain.OrderRepository      { return orderRepository{q: r.q, lock: r.inTx} }
func (r repositories) Carts() domain.CartRepository        { return cartRepository{q: r.q} }
func (r repositories) Variants() domain.VariantRepository  { return variantRepository{q: r.q} }
func (r repositories) Stock() domain.StockStore            { return stockStore{q: r.q} }
func (r repositories) Outbox() domain.OutboxRepository     { return outboxRepository{q: r.q} }
func (r repositories) Timeline() domain.TimelineRepository { return timelineRepository{q: r.q} }

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == codeUniqueViolation
}

func isRetryable(err error) bool {
	switch pgCode(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	return false
}

// classifyWriteError переводит нарушения ограничений в доменные ошибки.
func classifyWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == codeUniqueViolation && pgErr.ConstraintName == constraintOneActiveCart:
		return fmt.Errorf("%w: %w", domain.ErrCartActiveExists, err)
	case pgErr.Code == codeUniqueViolation:
		return fmt.Errorf("%w: %w", domain.ErrConflict, err)
	case pgErr.Code == codeCheckViolation:
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return err
}

var _ domain.Store = (*Store)(nil)
