package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/metrics"
	"github.com/vladislavdragonenkov/orderflow/internal/service/lifecycle"
)

var tracer = otel.Tracer("orderflow/checkout")

const (
	sourceCart   = "cart"
	sourceDirect = "direct"
)

// PaymentGateway — то, что оформлению нужно от платёжного фасада.
// Charge выполняется в транзакции, NotifyOutcome только после её фиксации.
type PaymentGateway interface {
	Supports(method domain.PaymentMethod) bool
	Charge(ctx context.Context, req domain.PaymentRequest) domain.PaymentResult
	NotifyOutcome(ctx context.Context, req domain.PaymentRequest, result domain.PaymentResult)
}

// Service собирает заказ из корзины или прямого запроса.
type Service struct {
	store     domain.Store
	payments  PaymentGateway
	publisher lifecycle.EventPublisher
	logger    *log.Entry
	metrics   *metrics.LifecycleMetrics
	now       func() time.Time
	newID     func() string
}

// Option настраивает Service.
type Option func(*Service)

// WithPublisher задаёт издателя события создания заказа.
func WithPublisher(p lifecycle.EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics задаёт метрики оформления.
func WithMetrics(m *metrics.LifecycleMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator подменяет генератор идентификаторов заказа и позиций.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// NewService создаёт сервис оформления.
func NewService(store domain.Store, payments PaymentGateway, opts ...Option) *Service {
	s := &Service{
		store:    store,
		payments: payments,
		logger:   log.New().WithField("component", "checkout"),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// pricedLine — позиция с зафиксированной ценой до создания заказа.
type pricedLine struct {
	variantID string
	quantity  int32
	unitPrice decimal.Decimal
}

// CreateOrderFromCart оформляет заказ из активной корзины клиента и закрывает корзину.
func (s *Service) CreateOrderFromCart(ctx context.Context, customer domain.Customer, details domain.CheckoutDetails) (domain.Order, error) {
	return s.checkout(ctx, sourceCart, customer, details, func(ctx context.Context, tx domain.Repositories) ([]pricedLine, *domain.Cart, error) {
		cart, err := tx.Carts().GetActive(ctx, customer.ID)
		if err != nil {
			if errors.Is(err, domain.ErrCartNotFound) {
				return nil, nil, domain.Reject(domain.RejectionNotFound, err, "customer %s has no active cart", customer.ID)
			}
			return nil, nil, fmt.Errorf("load cart: %w", err)
		}
		if len(cart.Lines) == 0 {
			return nil, nil, domain.Reject(domain.RejectionValidation, domain.ErrCartEmpty, "cart %s is empty", cart.ID)
		}

		lines := make([]pricedLine, 0, len(cart.Lines))
		for _, cl := range cart.Lines {
			if _, err := tx.Variants().Get(ctx, cl.VariantID); err != nil {
				return nil, nil, variantError(err, cl.VariantID)
			}
			lines = append(lines, pricedLine{variantID: cl.VariantID, quantity: cl.Quantity, unitPrice: cl.UnitPrice})
		}
		return lines, &cart, nil
	})
}

// CreateOrderFromCheckoutRequest оформляет заказ из позиций запроса; цена берётся из каталога
// в момент оформления.
func (s *Service) CreateOrderFromCheckoutRequest(ctx context.Context, customer domain.Customer, items []domain.CheckoutLine, details domain.CheckoutDetails) (domain.Order, error) {
	if len(items) == 0 {
		err := domain.Reject(domain.RejectionValidation, domain.ErrCartEmpty, "checkout request has no lines")
		s.metrics.RecordCheckout(sourceDirect, metrics.ResultRejected)
		return domain.Order{}, err
	}
	return s.checkout(ctx, sourceDirect, customer, details, func(ctx context.Context, tx domain.Repositories) ([]pricedLine, *domain.Cart, error) {
		lines := make([]pricedLine, 0, len(items))
		for _, item := range items {
			variant, err := tx.Variants().FindByDescriptor(ctx, item.VariantDescriptor)
			if err != nil {
				return nil, nil, variantError(err, fmt.Sprintf("%s/%s/%s", item.ProductID, item.ColorCode, item.SizeName))
			}
			lines = append(lines, pricedLine{variantID: variant.ID, quantity: item.Quantity, unitPrice: variant.Price})
		}
		return lines, nil, nil
	})
}

type lineSource func(ctx context.Context, tx domain.Repositories) ([]pricedLine, *domain.Cart, error)

func (s *Service) checkout(ctx context.Context, source string, customer domain.Customer, details domain.CheckoutDetails, load lineSource) (domain.Order, error) {
	ctx, span := tracer.Start(ctx, "checkout.create_order")
	defer span.End()
	span.SetAttributes(
		attribute.String("checkout.source", source),
		attribute.String("customer.id", customer.ID),
	)
	logger := s.logger.WithFields(log.Fields{"customer_id": customer.ID, "source": source})

	var (
		order      domain.Order
		paymentReq domain.PaymentRequest
		payment    domain.PaymentResult
	)
	err := func() error {
		if strings.TrimSpace(customer.ID) == "" {
			return domain.Reject(domain.RejectionValidation, domain.ErrCustomerRequired, "customer is required")
		}
		return s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
			lines, cart, err := load(ctx, tx)
			if err != nil {
				return err
			}
			if err := s.validate(lines, details); err != nil {
				return err
			}

			order = s.assemble(customer, details, lines, cart)
			if err := tx.Orders().Create(ctx, order); err != nil {
				return fmt.Errorf("create order: %w", err)
			}
			if cart != nil {
				if err := cart.MarkOrdered(order.CreatedAt); err != nil {
					return domain.Reject(domain.RejectionConflict, err, "cart %s is already ordered", cart.ID)
				}
				if err := tx.Carts().Save(ctx, *cart); err != nil {
					return fmt.Errorf("mark cart %s ordered: %w", cart.ID, err)
				}
			}

			created := domain.NewStatusChangedEvent(order, domain.OrderStatusNew, domain.ReasonOrderCreated, order.CreatedAt)
			if err := lifecycle.RecordCreation(ctx, tx, created); err != nil {
				return err
			}

			// Неуспешная оплата откатывает транзакцию: заказ не становится видимым.
			paymentReq = paymentRequest(order)
			payment = s.payments.Charge(ctx, paymentReq)
			if !payment.Succeeded() {
				return domain.Reject(domain.RejectionDependency, domain.ErrPaymentFailed,
					"payment for order %s failed: %s", order.ID, payment.Message)
			}
			return nil
		})
	}()

	if err != nil {
		err = classifyCommitError(err)
		result := metrics.ResultError
		var rej *domain.RejectionError
		if errors.As(err, &rej) {
			result = metrics.ResultRejected
			logger.WithField("reason", rej.Reason).Info("checkout rejected")
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.WithError(err).Error("checkout failed")
		}
		s.metrics.RecordCheckout(source, result)
		return domain.Order{}, err
	}

	s.metrics.RecordCheckout(source, metrics.ResultOK)
	span.SetAttributes(attribute.String("order.id", order.ID))
	logger.WithFields(log.Fields{
		"order_id":       order.ID,
		"total":          order.Total.String(),
		"lines":          len(order.Lines),
		"payment_status": payment.Status,
		"transaction_id": payment.TransactionID,
	}).Info("order created")

	s.payments.NotifyOutcome(ctx, paymentReq, payment)
	s.publishCreated(ctx, order)
	return order, nil
}

func (s *Service) validate(lines []pricedLine, details domain.CheckoutDetails) error {
	if len(lines) == 0 {
		return domain.Reject(domain.RejectionValidation, domain.ErrCartEmpty, "order must contain at least one line")
	}
	if s.payments == nil || !s.payments.Supports(details.PaymentMethod) {
		return domain.Reject(domain.RejectionValidation, domain.ErrPaymentMethodUnsupported,
			"payment method %q is not supported", details.PaymentMethod)
	}
	if blank(details.RecipientName) || blank(details.RecipientPhone) || blank(details.ShippingAddress) {
		return domain.Reject(domain.RejectionValidation, domain.ErrRecipientRequired,
			"recipient name, phone and shipping address are required")
	}
	if details.DeliveryFee.IsNegative() {
		return domain.Reject(domain.RejectionValidation, domain.ErrDeliveryFeeNegative, "delivery fee must be non-negative")
	}
	for _, l := range lines {
		if l.quantity <= 0 {
			return domain.Reject(domain.RejectionValidation, domain.ErrLineQtyInvalid,
				"quantity of variant %s must be greater than zero", l.variantID)
		}
		if l.unitPrice.IsNegative() {
			return domain.Reject(domain.RejectionValidation, domain.ErrLinePriceInvalid,
				"price of variant %s must be non-negative", l.variantID)
		}
	}
	return nil
}

// assemble снимает цены и считает итог: sum(qty * price) + доставка.
func (s *Service) assemble(customer domain.Customer, details domain.CheckoutDetails, lines []pricedLine, cart *domain.Cart) domain.Order {
	now := s.now()
	order := domain.Order{
		ID:              s.newID(),
		CustomerID:      customer.ID,
		CustomerName:    firstNonBlank(customer.Name, details.RecipientName),
		CustomerEmail:   strings.TrimSpace(customer.Email),
		CustomerPhone:   firstNonBlank(customer.Phone, details.RecipientPhone),
		Status:          domain.OrderStatusPending,
		PaymentMethod:   details.PaymentMethod,
		PaymentSettled:  false,
		RecipientName:   strings.TrimSpace(details.RecipientName),
		RecipientPhone:  strings.TrimSpace(details.RecipientPhone),
		ShippingAddress: strings.TrimSpace(details.ShippingAddress),
		Note:            details.Note,
		DeliveryFee:     details.DeliveryFee,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if cart != nil {
		order.CartID = cart.ID
	}

	order.Lines = make([]domain.OrderLine, 0, len(lines))
	for _, l := range lines {
		order.Lines = append(order.Lines, domain.OrderLine{
			ID:        s.newID(),
			OrderID:   order.ID,
			VariantID: l.variantID,
			Quantity:  l.quantity,
			UnitPrice: l.unitPrice,
			LineTotal: l.unitPrice.Mul(decimal.NewFromInt32(l.quantity)),
			CreatedAt: now,
		})
	}
	order.Total = order.LinesTotal().Add(order.DeliveryFee)
	return order
}

func (s *Service) publishCreated(ctx context.Context, order domain.Order) {
	if s.publisher == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(log.Fields{"order_id": order.ID, "panic": r}).Error("order created event publish panicked")
		}
	}()
	s.publisher.Publish(ctx, domain.NewStatusChangedEvent(order, domain.OrderStatusNew, domain.ReasonOrderCreated, order.CreatedAt))
}

func paymentRequest(order domain.Order) domain.PaymentRequest {
	return domain.PaymentRequest{
		OrderID:       order.ID,
		Method:        order.PaymentMethod,
		Amount:        order.Total,
		CustomerName:  order.CustomerName,
		CustomerPhone: order.CustomerPhone,
		CustomerEmail: order.CustomerEmail,
		Description:   fmt.Sprintf("Order #%s", order.ID),
	}
}

// classifyCommitError переводит конфликты, обнаруженные только при коммите
// (параллельное оформление той же корзины), в отказ.
func classifyCommitError(err error) error {
	var rej *domain.RejectionError
	if errors.As(err, &rej) {
		return err
	}
	if errors.Is(err, domain.ErrCartAlreadyOrdered) || errors.Is(err, domain.ErrCartActiveExists) {
		return domain.Reject(domain.RejectionConflict, err, "cart was already checked out")
	}
	return err
}

func variantError(err error, ref string) error {
	if errors.Is(err, domain.ErrVariantNotFound) {
		return domain.Reject(domain.RejectionNotFound, err, "product variant %s not found", ref)
	}
	return fmt.Errorf("load variant %s: %w", ref, err)
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
