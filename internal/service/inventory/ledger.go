package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/metrics"
)

const (
	opReserve = "reserve"
	opRelease = "release"
)

// Ledger — складской реестр: единственный путь изменения остатков вариантов.
//
// Атомарность отдельной операции обеспечивает StockStore (условный декремент
// под блокировкой варианта или UPDATE ... WHERE stock_on_hand >= qty).
// Ledger добавляет пакетный резерв «всё или ничего» и отчёт о нехватке.
type Ledger struct {
	stock   domain.StockStore
	logger  *log.Entry
	metrics *metrics.LifecycleMetrics
}

// NewLedger создаёт реестр поверх StockStore.
func NewLedger(stock domain.StockStore, logger *log.Entry, m *metrics.LifecycleMetrics) *Ledger {
	if logger == nil {
		logger = log.New().WithField("component", "inventory-ledger")
	}
	return &Ledger{stock: stock, logger: logger, metrics: m}
}

// In возвращает реестр, привязанный к StockStore транзакции.
func (l *Ledger) In(stock domain.StockStore) *Ledger {
	cp := *l
	cp.stock = stock
	return &cp
}

// Reserve атомарно списывает quantity, если остатка хватает.
func (l *Ledger) Reserve(ctx context.Context, variantID string, quantity int64) error {
	if err := validateQuantity(variantID, quantity); err != nil {
		return err
	}

	err := l.stock.DecrementIfAvailable(ctx, variantID, quantity)
	switch {
	case err == nil:
		l.metrics.RecordStock(opReserve, metrics.ResultOK)
		return nil
	case errors.Is(err, domain.ErrInsufficientStock):
		l.metrics.RecordStock(opReserve, metrics.ResultRejected)
		return domain.InsufficientStock([]domain.StockShortage{l.shortage(ctx, variantID, quantity)})
	case errors.Is(err, domain.ErrVariantNotFound):
		l.metrics.RecordStock(opReserve, metrics.ResultRejected)
		return domain.Reject(domain.RejectionNotFound, err, "variant %s not found", variantID)
	default:
		l.metrics.RecordStock(opReserve, metrics.ResultError)
		return fmt.Errorf("reserve %s: %w", variantID, err)
	}
}

// Release возвращает quantity на склад. Повторный возврат не отслеживается.
func (l *Ledger) Release(ctx context.Context, variantID string, quantity int64) error {
	if err := validateQuantity(variantID, quantity); err != nil {
		return err
	}

	if err := l.stock.Increment(ctx, variantID, quantity); err != nil {
		l.metrics.RecordStock(opRelease, metrics.ResultError)
		if errors.Is(err, domain.ErrVariantNotFound) {
			return domain.Reject(domain.RejectionNotFound, err, "variant %s not found", variantID)
		}
		return fmt.Errorf("release %s: %w", variantID, err)
	}
	l.metrics.RecordStock(opRelease, metrics.ResultOK)
	return nil
}

// ReserveMany резервирует весь набор или ничего.
//
// Варианты обрабатываются в порядке ID, чтобы параллельные резервы с пересекающимися
// вариантами брали блокировки в одном порядке. При нехватке проверяются все
// варианты, и в ошибке перечисляются все недостающие.
func (l *Ledger) ReserveMany(ctx context.Context, quantities map[string]int64) error {
	ids := sortedKeys(quantities)
	for _, id := range ids {
		if err := validateQuantity(id, quantities[id]); err != nil {
			return err
		}
	}

	reserved := make([]string, 0, len(ids))
	var short []domain.StockShortage

	for _, id := range ids {
		err := l.Reserve(ctx, id, quantities[id])
		if err == nil {
			reserved = append(reserved, id)
			continue
		}
		if errors.Is(err, domain.ErrInsufficientStock) {
			short = append(short, domain.ShortVariants(err)...)
			continue
		}
		l.rollback(ctx, reserved, quantities)
		return err
	}

	if len(short) > 0 {
		l.rollback(ctx, reserved, quantities)
		l.logger.WithField("short_variants", short).Info("batch reservation rejected: insufficient stock")
		return domain.InsufficientStock(short)
	}
	return nil
}

// ReleaseMany возвращает на склад весь набор.
func (l *Ledger) ReleaseMany(ctx context.Context, quantities map[string]int64) error {
	for _, id := range sortedKeys(quantities) {
		if err := l.Release(ctx, id, quantities[id]); err != nil {
			return err
		}
	}
	return nil
}

// Available возвращает текущий остаток варианта.
func (l *Ledger) Available(ctx context.Context, variantID string) (int64, error) {
	return l.stock.Available(ctx, variantID)
}

func (l *Ledger) rollback(ctx context.Context, reserved []string, quantities map[string]int64) {
	for i := len(reserved) - 1; i >= 0; i-- {
		id := reserved[i]
		if err := l.stock.Increment(ctx, id, quantities[id]); err != nil {
			// Внутри транзакции откат всё равно произойдёт целиком.
			l.logger.WithError(err).WithField("variant_id", id).Error("failed to roll back partial reservation")
		}
	}
}

func (l *Ledger) shortage(ctx context.Context, variantID string, requested int64) domain.StockShortage {
	s := domain.StockShortage{VariantID: variantID, Requested: requested}
	if n, err := l.stock.Available(ctx, variantID); err == nil {
		s.Available = n
	}
	return s
}

func validateQuantity(variantID string, quantity int64) error {
	if variantID == "" {
		return domain.Reject(domain.RejectionValidation, domain.ErrVariantNotFound, "variant id is required")
	}
	if quantity <= 0 {
		return domain.Reject(domain.RejectionValidation, domain.ErrLineQtyInvalid, "quantity for %s must be positive, got %d", variantID, quantity)
	}
	return nil
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
