package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

type variantRepository struct {
	q querier
}

// NewVariantRepository создаёт autocommit-репозиторий каталога.
func NewVariantRepository(store *Store) domain.VariantRepository {
	return store.Variants()
}

const variantColumns = `id, product_id, color_code, size_name, price, stock_on_hand, updated_at`

func (r variantRepository) Get(ctx context.Context, id string) (domain.ProductVariant, error) {
	return r.getBy(ctx, `id = $1`, id)
}

func (r variantRepository) FindByDescriptor(ctx context.Context, d domain.VariantDescriptor) (domain.ProductVariant, error) {
	return r.getBy(ctx, `product_id = $1 AND color_code = $2 AND size_name = $3`, d.ProductID, d.ColorCode, d.SizeName)
}

func (r variantRepository) getBy(ctx context.Context, where string, args ...any) (domain.ProductVariant, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var v domain.ProductVariant
	err := r.q.QueryRowContext(ctx, `SELECT `+variantColumns+` FROM product_variants WHERE `+where, args...).Scan(
		&v.ID, &v.ProductID, &v.ColorCode, &v.SizeName, &v.Price, &v.StockOnHand, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ProductVariant{}, domain.ErrVariantNotFound
		}
		return domain.ProductVariant{}, fmt.Errorf("select variant: %w", err)
	}
	return v, nil
}

func (r variantRepository) Create(ctx context.Context, v domain.ProductVariant) error {
	if v.ID == "" {
		return fmt.Errorf("variant id is required: %w", domain.ErrValidation)
	}
	if v.StockOnHand < 0 {
		return fmt.Errorf("variant %s: stock must be non-negative: %w", v.ID, domain.ErrValidation)
	}
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO product_variants (`+variantColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, v.ID, v.ProductID, v.ColorCode, v.SizeName, v.Price, v.StockOnHand, v.UpdatedAt); err != nil {
		return classifyWriteError(fmt.Errorf("insert variant %s: %w", v.ID, err))
	}
	return nil
}

func (r variantRepository) SetPrice(ctx context.Context, id string, price decimal.Decimal) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE product_variants SET price = $2, updated_at = NOW() WHERE id = $1
	`, id, price)
	if err != nil {
		return classifyWriteError(fmt.Errorf("update variant price: %w", err))
	}
	return requireAffected(res, domain.ErrVariantNotFound)
}

// stockStore меняет остатки одним условным UPDATE, без чтения перед записью.
type stockStore struct {
	q querier
}

func (s stockStore) DecrementIfAvailable(ctx context.Context, variantID string, qty int64) error {
	if qty <= 0 {
		return domain.ErrLineQtyInvalid
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.q.ExecContext(ctx, `
		UPDATE product_variants
		SET stock_on_hand = stock_on_hand - $1,
		    updated_at = NOW()
		WHERE id = $2
		  AND stock_on_hand >= $1
	`, qty, variantID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}
	if _, err := s.Available(ctx, variantID); err != nil {
		return err
	}
	return domain.ErrInsufficientStock
}

func (s stockStore) Increment(ctx context.Context, variantID string, qty int64) error {
	if qty <= 0 {
		return domain.ErrLineQtyInvalid
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.q.ExecContext(ctx, `
		UPDATE product_variants
		SET stock_on_hand = stock_on_hand + $1,
		    updated_at = NOW()
		WHERE id = $2
	`, qty, variantID)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	return requireAffected(res, domain.ErrVariantNotFound)
}

func (s stockStore) Available(ctx context.Context, variantID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var n int64
	err := s.q.QueryRowContext(ctx, `SELECT stock_on_hand FROM product_variants WHERE id = $1`, variantID).Scan(&n)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrVariantNotFound
		}
		return 0, fmt.Errorf("select stock: %w", err)
	}
	return n, nil
}

func requireAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

var (
	_ domain.VariantRepository = variantRepository{}
	_ domain.StockStore        = stockStore{}
)
