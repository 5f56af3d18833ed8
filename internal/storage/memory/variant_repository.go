package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// stockCell — остаток одного варианта под собственным мьютексом.
type stockCell struct {
	mu     sync.Mutex
	onHand int64
}

// decrementIfAvailable списывает qty только при достаточном остатке.
func (c *stockCell) decrementIfAvailable(qty int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.onHand < qty {
		return false
	}
	c.onHand -= qty
	return true
}

func (c *stockCell) add(qty int64) {
	c.mu.Lock()
	c.onHand += qty
	c.mu.Unlock()
}

func (c *stockCell) load() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onHand
}

type variantRecord struct {
	variant domain.ProductVariant
	cell    *stockCell
}

func (r *variantRecord) snapshot() domain.ProductVariant {
	v := r.variant
	v.StockOnHand = r.cell.load()
	return v
}

// --- variants ---

type txVariants struct{ tx *memTx }

func (r txVariants) Get(_ context.Context, id string) (domain.ProductVariant, error) {
	rec, ok := r.tx.visibleVariant(id)
	if !ok {
		return domain.ProductVariant{}, domain.ErrVariantNotFound
	}
	v := rec.snapshot()
	if price, ok := r.tx.prices[id]; ok {
		v.Price = price
	}
	return v, nil
}

func (r txVariants) FindByDescriptor(ctx context.Context, d domain.VariantDescriptor) (domain.ProductVariant, error) {
	for id, rec := range r.tx.newVariants {
		if rec.variant.Descriptor() == d {
			return r.Get(ctx, id)
		}
	}

	r.tx.s.mu.RLock()
	var found string
	for id, rec := range r.tx.s.variants {
		if rec.variant.Descriptor() == d {
			found = id
			break
		}
	}
	r.tx.s.mu.RUnlock()

	if found == "" {
		return domain.ProductVariant{}, domain.ErrVariantNotFound
	}
	return r.Get(ctx, found)
}

func (r txVariants) Create(ctx context.Context, v domain.ProductVariant) error {
	if v.ID == "" {
		return fmt.Errorf("variant id is required: %w", domain.ErrValidation)
	}
	if v.StockOnHand < 0 {
		return fmt.Errorf("variant %s: stock must be non-negative: %w", v.ID, domain.ErrValidation)
	}
	if _, exists := r.tx.visibleVariant(v.ID); exists {
		return fmt.Errorf("variant %s already exists: %w", v.ID, domain.ErrConflict)
	}
	if _, err := r.FindByDescriptor(ctx, v.Descriptor()); err == nil {
		return fmt.Errorf("variant descriptor %+v already exists: %w", v.Descriptor(), domain.ErrConflict)
	}
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = time.Now().UTC()
	}
	r.tx.newVariants[v.ID] = &variantRecord{variant: v, cell: &stockCell{onHand: v.StockOnHand}}
	return nil
}

func (r txVariants) SetPrice(_ context.Context, id string, price decimal.Decimal) error {
	if _, ok := r.tx.visibleVariant(id); !ok {
		return domain.ErrVariantNotFound
	}
	if rec, ok := r.tx.newVariants[id]; ok {
		rec.variant.Price = price
		return nil
	}
	r.tx.prices[id] = price
	return nil
}

func (tx *memTx) visibleVariant(id string) (*variantRecord, bool) {
	if rec, ok := tx.newVariants[id]; ok {
		return rec, true
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	rec, ok := tx.s.variants[id]
	return rec, ok
}

// --- stock ---

type txStock struct{ tx *memTx }

// DecrementIfAvailable применяется сразу и попадает в undo-лог транзакции.
func (r txStock) DecrementIfAvailable(_ context.Context, variantID string, qty int64) error {
	if qty <= 0 {
		return domain.ErrLineQtyInvalid
	}
	rec, ok := r.tx.visibleVariant(variantID)
	if !ok {
		return domain.ErrVariantNotFound
	}
	if !rec.cell.decrementIfAvailable(qty) {
		return domain.ErrInsufficientStock
	}
	r.tx.reserved = append(r.tx.reserved, stockOp{cell: rec.cell, qty: qty})
	return nil
}

// Increment откладывается до commit, чтобы откатываемый возврат не успели занять.
func (r txStock) Increment(_ context.Context, variantID string, qty int64) error {
	if qty <= 0 {
		return domain.ErrLineQtyInvalid
	}
	rec, ok := r.tx.visibleVariant(variantID)
	if !ok {
		return domain.ErrVariantNotFound
	}
	r.tx.released[rec.cell] += qty
	return nil
}

func (r txStock) Available(_ context.Context, variantID string) (int64, error) {
	rec, ok := r.tx.visibleVariant(variantID)
	if !ok {
		return 0, domain.ErrVariantNotFound
	}
	return rec.cell.load() + r.tx.released[rec.cell], nil
}
