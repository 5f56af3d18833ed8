package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// constraintOneActiveCart — частичный уникальный индекс «одна активная корзина на клиента».
const constraintOneActiveCart = "carts_one_active_per_customer"

type cartRepository struct {
	q querier
}

// NewCartRepository создаёт autocommit-репозиторий корзин.
func NewCartRepository(store *Store) domain.CartRepository {
	return store.Carts()
}

func (r cartRepository) GetActive(ctx context.Context, customerID string) (domain.Cart, error) {
	return r.getBy(ctx, `customer_id = $1 AND status = 'active'`, customerID)
}

func (r cartRepository) Get(ctx context.Context, id string) (domain.Cart, error) {
	return r.getBy(ctx, `id = $1`, id)
}

func (r cartRepository) getBy(ctx context.Context, where string, arg string) (domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		cart   domain.Cart
		status string
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, customer_id, status, created_at, updated_at
		FROM carts
		WHERE `+where, arg,
	).Scan(&cart.ID, &cart.CustomerID, &status, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("select cart: %w", err)
	}
	cart.Status = domain.CartStatus(status)

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, variant_id, quantity, unit_price, line_total
		FROM cart_lines
		WHERE cart_id = $1
		ORDER BY position ASC
	`, cart.ID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("load cart lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ID, &line.VariantID, &line.Quantity, &line.UnitPrice, &line.LineTotal); err != nil {
			return domain.Cart{}, fmt.Errorf("scan cart line: %w", err)
		}
		cart.Lines = append(cart.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return domain.Cart{}, fmt.Errorf("iterate cart lines: %w", err)
	}
	return cart, nil
}

// Save создаёт или обновляет корзину. Строка корзины блокируется, поэтому
// параллельное оформление одной корзины видит уже зафиксированный статус ordered.
func (r cartRepository) Save(ctx context.Context, cart domain.Cart) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if cart.Status == "" {
		cart.Status = domain.CartStatusActive
	}
	now := time.Now().UTC()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = now
	}

	return inWriteTx(ctx, r.q, func(q querier) error {
		var current string
		err := q.QueryRowContext(ctx, `SELECT status FROM carts WHERE id = $1 FOR UPDATE`, cart.ID).Scan(&current)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := q.ExecContext(ctx, `
				INSERT INTO carts (id, customer_id, status, created_at, updated_at)
				VALUES ($1,$2,$3,$4,$5)
			`, cart.ID, cart.CustomerID, string(cart.Status), cart.CreatedAt, cart.UpdatedAt); err != nil {
				return classifyWriteError(fmt.Errorf("insert cart: %w", err))
			}
		case err != nil:
			return fmt.Errorf("lock cart: %w", err)
		case domain.CartStatus(current) == domain.CartStatusOrdered:
			return domain.ErrCartAlreadyOrdered
		default:
			if _, err := q.ExecContext(ctx, `
				UPDATE carts SET customer_id = $2, status = $3, updated_at = $4 WHERE id = $1
			`, cart.ID, cart.CustomerID, string(cart.Status), cart.UpdatedAt); err != nil {
				return classifyWriteError(fmt.Errorf("update cart: %w", err))
			}
		}

		// Позиции оформленной корзины заморожены.
		if cart.Status != domain.CartStatusActive {
			return nil
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM cart_lines WHERE cart_id = $1`, cart.ID); err != nil {
			return fmt.Errorf("clear cart lines: %w", err)
		}
		for i, line := range cart.Lines {
			if line.ID == "" {
				line.ID = uuid.NewString()
			}
			if _, err := q.ExecContext(ctx, `
				INSERT INTO cart_lines (id, cart_id, position, variant_id, quantity, unit_price, line_total)
				VALUES ($1,$2,$3,$4,$5,$6,$7)
			`, line.ID, cart.ID, i, line.VariantID, line.Quantity, line.UnitPrice, line.LineTotal); err != nil {
				return classifyWriteError(fmt.Errorf("insert cart line: %w", err))
			}
		}
		return nil
	})
}

var _ domain.CartRepository = cartRepository{}
