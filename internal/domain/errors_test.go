package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestIsVersionConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "version conflict error",
			err:  ErrOrderVersionConflict,
			want: true,
		},
		{
			name: "wrapped version conflict error",
			err:  errors.Join(ErrOrderVersionConflict, errors.New("additional context")),
			want: true,
		},
		{
			name: "other error",
			err:  ErrOrderNotFound,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsVersionConflict(tt.err)
			if got != tt.want {
				t.Errorf("IsVersionConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRejectionError_Categories(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		validation bool
		conflict   bool
		notFound   bool
		cause      error
	}{
		{
			name:       "validation",
			err:        Reject(RejectionValidation, ErrCartEmpty, "cart is empty"),
			validation: true,
			cause:      ErrCartEmpty,
		},
		{
			name:     "conflict wrapped",
			err:      fmt.Errorf("transition: %w", Reject(RejectionConflict, ErrIllegalTransition, "DELIVERED -> PENDING")),
			conflict: true,
			cause:    ErrIllegalTransition,
		},
		{
			name:     "not found",
			err:      Reject(RejectionNotFound, ErrOrderNotFound, "order %s", "o-1"),
			notFound: true,
			cause:    ErrOrderNotFound,
		},
		{
			name:     "insufficient stock",
			err:      InsufficientStock([]StockShortage{{VariantID: "v-1", Requested: 3, Available: 1}}),
			conflict: true,
			cause:    ErrInsufficientStock,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidation(tt.err); got != tt.validation {
				t.Errorf("IsValidation() = %v, want %v", got, tt.validation)
			}
			if got := IsConflict(tt.err); got != tt.conflict {
				t.Errorf("IsConflict() = %v, want %v", got, tt.conflict)
			}
			if got := IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.notFound)
			}
			if !errors.Is(tt.err, tt.cause) {
				t.Errorf("expected cause %v in chain of %v", tt.cause, tt.err)
			}
		})
	}
}

func TestInsufficientStock_ListsVariants(t *testing.T) {
	err := fmt.Errorf("confirm: %w", InsufficientStock([]StockShortage{
		{VariantID: "v-1", Requested: 3, Available: 1},
		{VariantID: "v-2", Requested: 2, Available: 0},
	}))

	short := ShortVariants(err)
	if len(short) != 2 {
		t.Fatalf("expected 2 short variants, got %d", len(short))
	}
	if !strings.Contains(err.Error(), "v-1 (requested 3, available 1)") {
		t.Errorf("reason should name short variant, got %q", err.Error())
	}
	if ShortVariants(errors.New("plain")) != nil {
		t.Error("plain error must not carry short variants")
	}
}
