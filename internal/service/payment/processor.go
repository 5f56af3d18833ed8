package payment

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// Processor проводит оплату одним способом.
type Processor interface {
	Process(ctx context.Context, req domain.PaymentRequest) domain.PaymentResult
	Validate(req *domain.PaymentRequest) bool
	SupportedMethod() domain.PaymentMethod
}

// Constructor создаёт процессор для способа оплаты.
type Constructor func() Processor

// Registry сопоставляет код способа оплаты с конструктором процессора.
type Registry struct {
	mu           sync.RWMutex
	constructors map[domain.PaymentMethod]Constructor
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[domain.PaymentMethod]Constructor)}
}

// DefaultRegistry возвращает реестр с единственным способом: оплата при получении.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(domain.PaymentMethodCashOnDelivery, func() Processor { return NewCashProcessor() })
	return r
}

// Register добавляет способ оплаты. Повторная регистрация кода отклоняется.
func (r *Registry) Register(method domain.PaymentMethod, ctor Constructor) error {
	if method == "" || ctor == nil {
		return fmt.Errorf("payment method and constructor are required: %w", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.constructors[method]; exists {
		return fmt.Errorf("payment method %s already registered: %w", method, domain.ErrConflict)
	}
	r.constructors[method] = ctor
	return nil
}

// Resolve возвращает процессор или отказ валидации для неподдерживаемого кода.
func (r *Registry) Resolve(method domain.PaymentMethod) (Processor, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[method]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.Reject(domain.RejectionValidation, domain.ErrPaymentMethodUnsupported,
			"payment method %q is not supported", method)
	}
	return ctor(), nil
}

// Supports проверяет, зарегистрирован ли способ оплаты.
func (r *Registry) Supports(method domain.PaymentMethod) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.constructors[method]
	return ok
}

// SupportedMethods возвращает зарегистрированные коды в алфавитном порядке.
func (r *Registry) SupportedMethods() []domain.PaymentMethod {
	r.mu.RLock()
	defer r.mu.RUnlock()
	methods := make([]domain.PaymentMethod, 0, len(r.constructors))
	for m := range r.constructors {
		methods = append(methods, m)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i] < methods[j] })
	return methods
}
