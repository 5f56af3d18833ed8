package domain

import "github.com/shopspring/decimal"

// Customer — аутентифицированный клиент, как его видит вызывающий слой.
type Customer struct {
	ID    string
	Name  string
	Email string
	Phone string
}

// CheckoutDetails — данные получателя и оплаты для обоих путей оформления.
type CheckoutDetails struct {
	PaymentMethod   PaymentMethod
	RecipientName   string
	RecipientPhone  string
	ShippingAddress string
	Note            string
	DeliveryFee     decimal.Decimal
}

// CheckoutLine — позиция прямого оформления, вариант задаётся дескриптором.
type CheckoutLine struct {
	VariantDescriptor
	Quantity int32
}
