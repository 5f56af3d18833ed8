package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusNew — синтетический статус «до создания», встречается только в событиях.
	OrderStatusNew OrderStatus = "NEW"
	// OrderStatusPending — заказ оформлен, остатки ещё не зарезервированы.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusConfirmed — заказ подтверждён, остатки списаны в резерв.
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	// OrderStatusShipping — заказ передан в доставку.
	OrderStatusShipping OrderStatus = "SHIPPING"
	// OrderStatusDelivered — заказ доставлен.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCompleted — заказ закрыт, оплата получена.
	OrderStatusCompleted OrderStatus = "COMPLETED"
	// OrderStatusCancelled — заказ отменён.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// allowedTransitions — единственный источник истины для машины состояний.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipping, OrderStatusCancelled},
	OrderStatusShipping:  {OrderStatusDelivered},
	OrderStatusDelivered: {OrderStatusCompleted},
}

// ParseOrderStatus разбирает статус без учёта регистра.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	s := OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", ErrUnknownStatus
	}
	return s, nil
}

// Valid сообщает, является ли статус реальным состоянием заказа.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipping,
		OrderStatusDelivered, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal — из статуса нет исходящих переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// CanTransitionTo проверяет переход по таблице.
func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	for _, next := range allowedTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// StockEffect — влияние перехода на складские остатки.
type StockEffect int

const (
	StockEffectNone StockEffect = iota
	StockEffectReserve
	StockEffectRelease
)

// TransitionStockEffect возвращает складской эффект разрешённого перехода.
// PENDING -> CANCELLED не трогает остатки: резерва ещё не было.
func TransitionStockEffect(from, to OrderStatus) StockEffect {
	switch {
	case from == OrderStatusPending && to == OrderStatusConfirmed:
		return StockEffectReserve
	case from == OrderStatusConfirmed && to == OrderStatusCancelled:
		return StockEffectRelease
	default:
		return StockEffectNone
	}
}

// PaymentMethod — код способа оплаты.
type PaymentMethod string

// PaymentMethodCashOnDelivery — оплата наличными при получении.
const PaymentMethodCashOnDelivery PaymentMethod = "CASH"

// OrderLine — неизменяемый снимок позиции на момент оформления.
type OrderLine struct {
	ID        string
	OrderID   string
	VariantID string
	Quantity  int32
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
	CreatedAt time.Time
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID              string
	CustomerID      string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	CartID          string // пусто, если заказ оформлен напрямую
	Status          OrderStatus
	PaymentMethod   PaymentMethod
	PaymentSettled  bool
	RecipientName   string
	RecipientPhone  string
	ShippingAddress string
	Note            string
	DeliveryFee     decimal.Decimal
	Total           decimal.Decimal
	Lines           []OrderLine
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StockRequirements суммирует количество по вариантам.
func (o *Order) StockRequirements() map[string]int64 {
	req := make(map[string]int64, len(o.Lines))
	for _, line := range o.Lines {
		req[line.VariantID] += int64(line.Quantity)
	}
	return req
}

// LinesTotal — сумма line total по всем позициям.
func (o *Order) LinesTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, line := range o.Lines {
		sum = sum.Add(line.LineTotal)
	}
	return sum
}

// Clone возвращает глубокую копию, чтобы хранилища не делили срезы с вызывающим.
func (o Order) Clone() Order {
	cp := o
	if o.Lines != nil {
		cp.Lines = append([]OrderLine(nil), o.Lines...)
	}
	return cp
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrCartEmpty)
	}
	if o.DeliveryFee.IsNegative() {
		errs = append(errs, ErrDeliveryFeeNegative)
	}

	// Сверяем сумму заказа: sum(qty * price) + доставка.
	calc := decimal.Zero
	for _, line := range o.Lines {
		if line.Quantity <= 0 {
			errs = append(errs, ErrLineQtyInvalid)
		}
		if line.UnitPrice.IsNegative() {
			errs = append(errs, ErrLinePriceInvalid)
		}
		calc = calc.Add(line.UnitPrice.Mul(decimal.NewFromInt32(line.Quantity)))
	}
	if !calc.Add(o.DeliveryFee).Equal(o.Total) {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
