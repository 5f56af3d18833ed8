package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// helper для создания базового заказа с двумя позициями.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:          "order-1",
		CustomerID:  "customer-1",
		Status:      domain.OrderStatusPending,
		DeliveryFee: decimal.NewFromInt(20),
		Total:       decimal.NewFromInt(270),
		Lines: []domain.OrderLine{
			{ID: "line-1", VariantID: "variant-a", Quantity: 2, UnitPrice: decimal.NewFromInt(100), LineTotal: decimal.NewFromInt(200), CreatedAt: now},
			{ID: "line-2", VariantID: "variant-b", Quantity: 1, UnitPrice: decimal.NewFromInt(50), LineTotal: decimal.NewFromInt(50), CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
	}{
		{
			name: "no customer",
			mut: func(o *domain.Order) {
				o.CustomerID = ""
			},
		},
		{
			name: "negative delivery fee",
			mut: func(o *domain.Order) {
				o.DeliveryFee = decimal.NewFromInt(-1)
			},
		},
		{
			name: "no lines",
			mut: func(o *domain.Order) {
				o.Lines = nil
			},
		},
		{
			name: "qty invalid",
			mut: func(o *domain.Order) {
				o.Lines[0].Quantity = 0
			},
		},
		{
			name: "price invalid",
			mut: func(o *domain.Order) {
				o.Lines[0].UnitPrice = decimal.NewFromInt(-5)
			},
		},
		{
			name: "total mismatch",
			mut: func(o *domain.Order) {
				o.Total = decimal.NewFromInt(999)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder().Clone()
			tc.mut(&order)

			if len(order.ValidateInvariants()) == 0 {
				t.Fatalf("expected validation errors for case %s", tc.name)
			}
		})
	}
}

func TestOrderStatus_Transitions(t *testing.T) {
	all := []domain.OrderStatus{
		domain.OrderStatusPending,
		domain.OrderStatusConfirmed,
		domain.OrderStatusShipping,
		domain.OrderStatusDelivered,
		domain.OrderStatusCompleted,
		domain.OrderStatusCancelled,
	}
	allowed := map[[2]domain.OrderStatus]bool{
		{domain.OrderStatusPending, domain.OrderStatusConfirmed}:   true,
		{domain.OrderStatusPending, domain.OrderStatusCancelled}:   true,
		{domain.OrderStatusConfirmed, domain.OrderStatusShipping}:  true,
		{domain.OrderStatusConfirmed, domain.OrderStatusCancelled}: true,
		{domain.OrderStatusShipping, domain.OrderStatusDelivered}:  true,
		{domain.OrderStatusDelivered, domain.OrderStatusCompleted}: true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]domain.OrderStatus{from, to}]
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}

	if domain.OrderStatusNew.CanTransitionTo(domain.OrderStatusPending) {
		t.Error("NEW is synthetic and must not be a transition source")
	}
	for _, to := range all {
		if domain.OrderStatusCancelled.CanTransitionTo(to) {
			t.Errorf("CANCELLED must be terminal, got transition to %s", to)
		}
	}
}

func TestTransitionStockEffect(t *testing.T) {
	tests := []struct {
		from, to domain.OrderStatus
		want     domain.StockEffect
	}{
		{domain.OrderStatusPending, domain.OrderStatusConfirmed, domain.StockEffectReserve},
		{domain.OrderStatusConfirmed, domain.OrderStatusCancelled, domain.StockEffectRelease},
		{domain.OrderStatusPending, domain.OrderStatusCancelled, domain.StockEffectNone},
		{domain.OrderStatusConfirmed, domain.OrderStatusShipping, domain.StockEffectNone},
		{domain.OrderStatusDelivered, domain.OrderStatusCompleted, domain.StockEffectNone},
	}
	for _, tt := range tests {
		if got := domain.TransitionStockEffect(tt.from, tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestParseOrderStatus(t *testing.T) {
	got, err := domain.ParseOrderStatus(" confirmed ")
	if err != nil || got != domain.OrderStatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %q (%v)", got, err)
	}
	if _, err := domain.ParseOrderStatus("NEW"); err == nil {
		t.Fatal("NEW must not parse as a real status")
	}
	if _, err := domain.ParseOrderStatus("lost"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestOrder_StockRequirementsAggregatesVariants(t *testing.T) {
	order := makeOrder()
	order.Lines = append(order.Lines, domain.OrderLine{VariantID: "variant-a", Quantity: 3})

	req := order.StockRequirements()
	if req["variant-a"] != 5 || req["variant-b"] != 1 {
		t.Fatalf("unexpected requirements: %v", req)
	}
}

func TestCart_MarkOrderedOnce(t *testing.T) {
	cart := domain.Cart{ID: "cart-1", Status: domain.CartStatusActive}
	if err := cart.MarkOrdered(time.Now()); err != nil {
		t.Fatalf("first mark failed: %v", err)
	}
	if err := cart.MarkOrdered(time.Now()); err != domain.ErrCartAlreadyOrdered {
		t.Fatalf("expected ErrCartAlreadyOrdered, got %v", err)
	}
}
