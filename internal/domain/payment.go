package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus — результат попытки оплаты.
type PaymentStatus string

const (
	PaymentStatusSuccess    PaymentStatus = "SUCCESS"
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusCancelled  PaymentStatus = "CANCELLED"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
)

// Коды ошибок платежа.
const (
	PaymentErrorInvalidRequest = "INVALID_REQUEST"
	PaymentErrorUnsupported    = "UNSUPPORTED_METHOD"
	PaymentErrorSystem         = "SYSTEM_ERROR"
)

// PaymentRequest — вход процессора.
type PaymentRequest struct {
	OrderID       string
	Method        PaymentMethod
	Amount        decimal.Decimal
	CustomerName  string
	CustomerPhone string
	CustomerEmail string
	Description   string
}

// PaymentResult — значение, а не сущность: одна попытка оплаты.
type PaymentResult struct {
	Status        PaymentStatus
	Message       string
	TransactionID string
	Amount        decimal.Decimal
	Method        PaymentMethod
	ProcessedAt   time.Time
	ErrorCode     string
}

// Succeeded — удачный исход (Success или Pending), после которого оформление продолжается.
func (r PaymentResult) Succeeded() bool {
	return r.Status == PaymentStatusSuccess || r.Status == PaymentStatusPending
}

// NewPaymentPending — оплата ожидается вне системы.
func NewPaymentPending(method PaymentMethod, amount decimal.Decimal, txID, message string, at time.Time) PaymentResult {
	return PaymentResult{
		Status:        PaymentStatusPending,
		Message:       message,
		TransactionID: txID,
		Amount:        amount,
		Method:        method,
		ProcessedAt:   at,
	}
}

// NewPaymentSuccess — оплата проведена.
func NewPaymentSuccess(method PaymentMethod, amount decimal.Decimal, txID, message string, at time.Time) PaymentResult {
	res := NewPaymentPending(method, amount, txID, message, at)
	res.Status = PaymentStatusSuccess
	return res
}

// NewPaymentFailed — отказ с кодом ошибки.
func NewPaymentFailed(method PaymentMethod, code, message string, at time.Time) PaymentResult {
	return PaymentResult{
		Status:      PaymentStatusFailed,
		Message:     message,
		Method:      method,
		ErrorCode:   code,
		ProcessedAt: at,
	}
}
