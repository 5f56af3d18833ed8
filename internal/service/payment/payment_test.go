package payment

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

type captureNotifier struct {
	mu   sync.Mutex
	reqs []domain.NotificationRequest
	mode domain.DeliveryMode
}

func (n *captureNotifier) SendAsync(_ context.Context, req domain.NotificationRequest, mode domain.DeliveryMode) <-chan domain.NotificationResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reqs = append(n.reqs, req)
	n.mode = mode
	out := make(chan domain.NotificationResult, 1)
	out <- domain.NotificationResult{Success: true}
	close(out)
	return out
}

type panickingNotifier struct{}

func (panickingNotifier) SendAsync(context.Context, domain.NotificationRequest, domain.DeliveryMode) <-chan domain.NotificationResult {
	panic("notifier down")
}

type stubProcessor struct {
	method domain.PaymentMethod
	result domain.PaymentResult
	panics bool
}

func (p stubProcessor) Process(context.Context, domain.PaymentRequest) domain.PaymentResult {
	if p.panics {
		panic("processor exploded")
	}
	return p.result
}
func (p stubProcessor) Validate(*domain.PaymentRequest) bool  { return true }
func (p stubProcessor) SupportedMethod() domain.PaymentMethod { return p.method }

func cashRequest() domain.PaymentRequest {
	return domain.PaymentRequest{
		OrderID:       "order-1",
		Method:        domain.PaymentMethodCashOnDelivery,
		Amount:        decimal.NewFromInt(270),
		CustomerName:  "Alice",
		CustomerPhone: "+10000000000",
		CustomerEmail: "alice@example.com",
	}
}

func TestCashProcessor_Validate(t *testing.T) {
	p := NewCashProcessor()
	tests := []struct {
		name string
		mut  func(r *domain.PaymentRequest)
		want bool
	}{
		{"valid", func(*domain.PaymentRequest) {}, true},
		{"zero amount", func(r *domain.PaymentRequest) { r.Amount = decimal.Zero }, false},
		{"negative amount", func(r *domain.PaymentRequest) { r.Amount = decimal.NewFromInt(-1) }, false},
		{"missing order", func(r *domain.PaymentRequest) { r.OrderID = "" }, false},
		{"blank name", func(r *domain.PaymentRequest) { r.CustomerName = "  " }, false},
		{"blank phone", func(r *domain.PaymentRequest) { r.CustomerPhone = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := cashRequest()
			tt.mut(&req)
			assert.Equal(t, tt.want, p.Validate(&req))
		})
	}
	assert.False(t, p.Validate(nil))
}

func TestCashProcessor_AlwaysPending(t *testing.T) {
	p := NewCashProcessor()
	res := p.Process(context.Background(), cashRequest())

	assert.Equal(t, domain.PaymentStatusPending, res.Status)
	assert.True(t, strings.HasPrefix(res.TransactionID, "COD-"), res.TransactionID)
	assert.Len(t, res.TransactionID, len("COD-")+26)
	assert.True(t, res.Amount.Equal(decimal.NewFromInt(270)))

	other := p.Process(context.Background(), cashRequest())
	assert.NotEqual(t, res.TransactionID, other.TransactionID)

	bad := cashRequest()
	bad.CustomerPhone = ""
	failed := p.Process(context.Background(), bad)
	assert.Equal(t, domain.PaymentStatusFailed, failed.Status)
	assert.Equal(t, domain.PaymentErrorInvalidRequest, failed.ErrorCode)
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []domain.PaymentMethod{domain.PaymentMethodCashOnDelivery}, r.SupportedMethods())

	err := r.Register(domain.PaymentMethodCashOnDelivery, func() Processor { return NewCashProcessor() })
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = r.Resolve("CARD")
	require.ErrorIs(t, err, domain.ErrPaymentMethodUnsupported)
	assert.True(t, domain.IsValidation(err))

	require.NoError(t, r.Register("CARD", func() Processor { return stubProcessor{method: "CARD"} }))
	assert.True(t, r.Supports("CARD"))
	assert.Equal(t, []domain.PaymentMethod{"CARD", domain.PaymentMethodCashOnDelivery}, r.SupportedMethods())
}

func TestGateway_PendingTriggersNotification(t *testing.T) {
	notifier := &captureNotifier{}
	g := NewGateway(nil, notifier, nil, nil)

	res := g.Process(context.Background(), cashRequest())

	assert.Equal(t, domain.PaymentStatusPending, res.Status)
	require.Len(t, notifier.reqs, 1)
	assert.Equal(t, domain.DeliverySequential, notifier.mode)
	sent := notifier.reqs[0]
	assert.Equal(t, "Order placed", sent.Title)
	assert.Contains(t, sent.Message, res.TransactionID)
	assert.Equal(t, "alice@example.com", sent.RecipientEmail)
}

func TestGateway_ChargeLeavesNotificationToCaller(t *testing.T) {
	notifier := &captureNotifier{}
	g := NewGateway(nil, notifier, nil, nil)
	req := cashRequest()

	res := g.Charge(context.Background(), req)
	assert.Equal(t, domain.PaymentStatusPending, res.Status)
	assert.Empty(t, notifier.reqs, "charge alone must not reach the customer")

	failed := domain.NewPaymentFailed(req.Method, domain.PaymentErrorSystem, "declined", res.ProcessedAt)
	g.NotifyOutcome(context.Background(), req, failed)
	assert.Empty(t, notifier.reqs)

	g.NotifyOutcome(context.Background(), req, res)
	require.Len(t, notifier.reqs, 1)
	assert.Contains(t, notifier.reqs[0].Message, res.TransactionID)
}

func TestGateway_SuccessMessageDiffers(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("CARD", func() Processor {
		return stubProcessor{method: "CARD", result: domain.PaymentResult{Status: domain.PaymentStatusSuccess, TransactionID: "tx-1", Amount: decimal.NewFromInt(5)}}
	}))
	notifier := &captureNotifier{}
	g := NewGateway(r, notifier, nil, nil)

	req := cashRequest()
	req.Method = "CARD"
	res := g.Process(context.Background(), req)

	assert.Equal(t, domain.PaymentStatusSuccess, res.Status)
	require.Len(t, notifier.reqs, 1)
	assert.Equal(t, "Payment successful", notifier.reqs[0].Title)
}

func TestGateway_FailedDoesNotNotify(t *testing.T) {
	notifier := &captureNotifier{}
	g := NewGateway(nil, notifier, nil, nil)

	req := cashRequest()
	req.Amount = decimal.Zero
	res := g.Process(context.Background(), req)

	assert.Equal(t, domain.PaymentStatusFailed, res.Status)
	assert.Empty(t, notifier.reqs)

	req = cashRequest()
	req.Method = "BITCOIN"
	res = g.Process(context.Background(), req)
	assert.Equal(t, domain.PaymentStatusFailed, res.Status)
	assert.Equal(t, domain.PaymentErrorUnsupported, res.ErrorCode)
}

func TestGateway_NotifierPanicDoesNotFailPayment(t *testing.T) {
	g := NewGateway(nil, panickingNotifier{}, nil, nil)
	res := g.Process(context.Background(), cashRequest())
	assert.Equal(t, domain.PaymentStatusPending, res.Status)
}

func TestGateway_ProcessorPanicBecomesSystemError(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("CARD", func() Processor { return stubProcessor{method: "CARD", panics: true} }))
	g := NewGateway(r, nil, nil, nil)

	req := cashRequest()
	req.Method = "CARD"
	res := g.Process(context.Background(), req)

	assert.Equal(t, domain.PaymentStatusFailed, res.Status)
	assert.Equal(t, domain.PaymentErrorSystem, res.ErrorCode)
}

func TestGateway_Validate(t *testing.T) {
	g := NewGateway(nil, nil, nil, nil)
	req := cashRequest()
	assert.True(t, g.Validate(&req))
	assert.False(t, g.Validate(nil))

	req.Method = "UNKNOWN"
	assert.False(t, g.Validate(&req))
}
