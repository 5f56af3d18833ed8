package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductVariant — покупаемая единица (товар × цвет × размер).
// StockOnHand меняется только через складской реестр.
type ProductVariant struct {
	ID          string
	ProductID   string
	ColorCode   string
	SizeName    string
	Price       decimal.Decimal
	StockOnHand int64
	UpdatedAt   time.Time
}

// VariantDescriptor ищет вариант без знания его идентификатора.
type VariantDescriptor struct {
	ProductID string
	ColorCode string
	SizeName  string
}

// Descriptor возвращает дескриптор варианта.
func (v ProductVariant) Descriptor() VariantDescriptor {
	return VariantDescriptor{ProductID: v.ProductID, ColorCode: v.ColorCode, SizeName: v.SizeName}
}
