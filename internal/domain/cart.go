package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartStatus — состояние корзины.
type CartStatus string

const (
	CartStatusActive  CartStatus = "active"
	CartStatusOrdered CartStatus = "ordered"
)

// CartLine — позиция корзины со снимком цены.
type CartLine struct {
	ID        string
	VariantID string
	Quantity  int32
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// Cart — текущий выбор клиента. Активной может быть только одна корзина на клиента.
type Cart struct {
	ID         string
	CustomerID string
	Status     CartStatus
	Lines      []CartLine
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MarkOrdered переводит корзину в терминальный статус ordered.
func (c *Cart) MarkOrdered(now time.Time) error {
	if c.Status == CartStatusOrdered {
		return ErrCartAlreadyOrdered
	}
	c.Status = CartStatusOrdered
	c.UpdatedAt = now
	return nil
}

// Clone возвращает копию корзины с собственным срезом позиций.
func (c Cart) Clone() Cart {
	cp := c
	if c.Lines != nil {
		cp.Lines = append([]CartLine(nil), c.Lines...)
	}
	return cp
}
