package mockapi

import (
	"errors"
	"testing"
	"time"

	"github.com/sandeepmhskr/tiffinbox/core/cart"
)

func TestItemTotal(t *testing.T) {
	tests := []struct {
		name  string
		unit  int
		value int
		want  int
	}{
		{"single unit full price", 500, 1, 500},
		{"two units get the bulk discount", 500, 2, 900},
		{"three units", 500, 3, 1350},
		{"dinner combo single", 420, 1, 420},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := itemTotal(tt.unit, tt.value); got != tt.want {
				t.Fatalf("itemTotal(%d, %d) = %d, want %d", tt.unit, tt.value, got, tt.want)
			}
		})
	}
}

func TestCouponDiscount(t *testing.T) {
	if d, err := couponDiscount("TIFFIN10", 1000); err != nil || d != 100 {
		t.Fatalf("TIFFIN10 on 1000: got %d, %v", d, err)
	}
	if d, err := couponDiscount("FLAT50", 1000); err != nil || d != 50 {
		t.Fatalf("FLAT50 on 1000: got %d, %v", d, err)
	}
	// Flat coupons never push the discount past the subtotal.
	if d, err := couponDiscount("FLAT50", 30); err != nil || d != 30 {
		t.Fatalf("FLAT50 on 30: got %d, %v", d, err)
	}
	if _, err := couponDiscount("NOPE", 1000); !errors.Is(err, errInvalidCoupon) {
		t.Fatalf("expected errInvalidCoupon, got %v", err)
	}
}

func TestReprice(t *testing.T) {
	c := &cart.Cart{
		Status: cart.StatusActive,
		Items: []cart.Item{
			{UnitPrice: 500, DurationValue: 2},
			{UnitPrice: 420, DurationValue: 1},
		},
		CouponCode: "TIFFIN10",
	}

	reprice(c)

	if c.Items[0].TotalPrice != 900 || c.Items[1].TotalPrice != 420 {
		t.Fatalf("item totals: got %d and %d", c.Items[0].TotalPrice, c.Items[1].TotalPrice)
	}
	if c.Subtotal != 1320 {
		t.Fatalf("subtotal: got %d, want 1320", c.Subtotal)
	}
	if c.Discount != 132 {
		t.Fatalf("discount: got %d, want 132", c.Discount)
	}
	// 5% of (1320 - 132).
	if c.Tax != 59 {
		t.Fatalf("tax: got %d, want 59", c.Tax)
	}
	if c.Total != 1320-132+59 {
		t.Fatalf("total: got %d, want %d", c.Total, 1320-132+59)
	}
}

func TestRepriceDropsStaleCoupon(t *testing.T) {
	c := &cart.Cart{
		Status:     cart.StatusActive,
		Items:      []cart.Item{{UnitPrice: 500, DurationValue: 1}},
		CouponCode: "EXPIRED-CODE",
	}

	reprice(c)

	if c.CouponCode != "" {
		t.Fatalf("stale coupon must be dropped, still %q", c.CouponCode)
	}
	if c.Discount != 0 {
		t.Fatalf("discount: got %d, want 0", c.Discount)
	}
}

func TestDurationSpan(t *testing.T) {
	const day = 24 * time.Hour
	if got := durationSpan(cart.Weekly, 2); got != 14*day {
		t.Fatalf("weekly span: got %v", got)
	}
	if got := durationSpan(cart.Monthly, 1); got != 30*day {
		t.Fatalf("monthly span: got %v", got)
	}
	if got := durationSpan(cart.Quarterly, 1); got != 90*day {
		t.Fatalf("quarterly span: got %v", got)
	}
}
