package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Категории ошибок. Каждая конкретная ошибка домена относится ровно к одной из них.
var (
	// ErrValidation — некорректный ввод, состояние не менялось.
	ErrValidation = errors.New("validation rejected")
	// ErrConflict — недопустимый переход или нехватка остатка, состояние не менялось.
	ErrConflict = errors.New("conflict rejected")
	// ErrNotFound — неизвестный заказ, вариант или корзина.
	ErrNotFound = errors.New("not found")
	// ErrDependencyFailure — сбой внешней зависимости (платёж, канал уведомлений).
	ErrDependencyFailure = errors.New("dependency failure")
	// ErrRetryExhausted — исчерпаны попытки доставки.
	ErrRetryExhausted = errors.New("retry exhausted")
)

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствия хотя бы одной позиции в корзине или запросе.
	ErrCartEmpty = errors.New("order must contain at least one line")
	// Ошибка пустых данных получателя.
	ErrRecipientRequired = errors.New("recipient name, phone and address are required")
	// Ошибка неподдерживаемого способа оплаты.
	ErrPaymentMethodUnsupported = errors.New("payment method is not supported")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrLineQtyInvalid = errors.New("line quantity must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrLinePriceInvalid = errors.New("line price must be non-negative")
	// Ошибка отрицательной стоимости доставки.
	ErrDeliveryFeeNegative = errors.New("delivery fee must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order total does not match lines sum")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка неизвестного статуса заказа.
	ErrUnknownStatus = errors.New("unknown order status")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrCartNotFound — у клиента нет активной корзины.
	ErrCartNotFound = errors.New("cart not found")
	// ErrVariantNotFound — вариант товара не найден по id или дескриптору.
	ErrVariantNotFound = errors.New("product variant not found")
	// ErrCartAlreadyOrdered — корзина уже превращена в заказ и не может меняться.
	ErrCartAlreadyOrdered = errors.New("cart already ordered")
	// ErrIllegalTransition — переход отсутствует в таблице состояний.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrInsufficientStock — остатка варианта не хватает для резерва.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrPaymentFailed — процессор вернул статус Failed.
	ErrPaymentFailed = errors.New("payment failed")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// RejectionKind — категория отказа, видимая вызывающему.
type RejectionKind string

const (
	RejectionValidation RejectionKind = "validation"
	RejectionConflict   RejectionKind = "conflict"
	RejectionNotFound   RejectionKind = "not_found"
	RejectionDependency RejectionKind = "dependency"
)

// StockShortage описывает вариант, которому не хватило остатка.
type StockShortage struct {
	VariantID string
	Requested int64
	Available int64
}

func (s StockShortage) String() string {
	return fmt.Sprintf("%s (requested %d, available %d)", s.VariantID, s.Requested, s.Available)
}

// RejectionError — отказ операции с понятной причиной.
// Для конфликтов по остаткам содержит список коротких вариантов.
type RejectionError struct {
	Kind          RejectionKind
	Reason        string
	ShortVariants []StockShortage
	Err           error
}

func (e *RejectionError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Reason
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if len(e.ShortVariants) > 0 {
		parts := make([]string, 0, len(e.ShortVariants))
		for _, s := range e.ShortVariants {
			parts = append(parts, s.String())
		}
		msg += ": " + strings.Join(parts, ", ")
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap отдаёт и категорию, и исходную причину.
func (e *RejectionError) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (k RejectionKind) sentinel() error {
	switch k {
	case RejectionValidation:
		return ErrValidation
	case RejectionConflict:
		return ErrConflict
	case RejectionNotFound:
		return ErrNotFound
	default:
		return ErrDependencyFailure
	}
}

// Reject собирает RejectionError без списка вариантов.
func Reject(kind RejectionKind, cause error, format string, args ...any) *RejectionError {
	return &RejectionError{Kind: kind, Reason: fmt.Sprintf(format, args...), Err: cause}
}

// InsufficientStock формирует конфликт с перечнем недостающих вариантов.
func InsufficientStock(short []StockShortage) *RejectionError {
	return &RejectionError{
		Kind:          RejectionConflict,
		Reason:        "insufficient stock",
		ShortVariants: short,
		Err:           ErrInsufficientStock,
	}
}

// ShortVariants извлекает недостающие варианты из цепочки ошибок.
func ShortVariants(err error) []StockShortage {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.ShortVariants
	}
	return nil
}

// IsValidation проверяет, является ли ошибка отказом валидации.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsConflict проверяет, является ли ошибка конфликтом.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsNotFound проверяет, описывает ли ошибка отсутствующую сущность.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}
