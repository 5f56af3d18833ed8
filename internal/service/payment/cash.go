package payment

import (
	"context"
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

const cashPendingMessage = "Order placed. Payment will be collected in cash on delivery."

// CashProcessor — оплата наличными при получении. Деньги принимаются вне системы,
// поэтому результат всегда Pending.
type CashProcessor struct {
	now func() time.Time
}

// NewCashProcessor создаёт процессор оплаты при получении.
func NewCashProcessor() *CashProcessor {
	return &CashProcessor{now: time.Now}
}

// SupportedMethod возвращает код способа оплаты.
func (p *CashProcessor) SupportedMethod() domain.PaymentMethod {
	return domain.PaymentMethodCashOnDelivery
}

// Validate: сумма > 0, есть заказ, имя и телефон клиента не пустые.
func (p *CashProcessor) Validate(req *domain.PaymentRequest) bool {
	if req == nil {
		return false
	}
	return req.Amount.IsPositive() &&
		strings.TrimSpace(req.OrderID) != "" &&
		strings.TrimSpace(req.CustomerName) != "" &&
		strings.TrimSpace(req.CustomerPhone) != ""
}

// Process проверяет запрос и возвращает Pending с новой ссылкой транзакции.
func (p *CashProcessor) Process(_ context.Context, req domain.PaymentRequest) domain.PaymentResult {
	now := p.now().UTC()
	if !p.Validate(&req) {
		return domain.NewPaymentFailed(p.SupportedMethod(), domain.PaymentErrorInvalidRequest,
			"Invalid payment request: amount, order and customer contact are required", now)
	}
	return domain.NewPaymentPending(p.SupportedMethod(), req.Amount, newTransactionID(now), cashPendingMessage, now)
}

// newTransactionID генерирует ссылку вида COD-<ULID>; ULID сортируется по времени.
func newTransactionID(at time.Time) string {
	return "COD-" + ulid.MustNew(ulid.Timestamp(at), rand.Reader).String()
}

var _ Processor = (*CashProcessor)(nil)
