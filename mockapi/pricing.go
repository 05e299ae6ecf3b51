package mockapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/sandeepmhskr/tiffinbox/core/cart"
	"github.com/sandeepmhskr/tiffinbox/core/catalog"
)

// Pricing rules the emulator pins down as "server truth". The real backend
// owns these numbers; the client never recomputes any of them.
const (
	// bulkThreshold and bulkDiscountPct give longer commitments a cheaper
	// total: two monthly units of a 500-rupee combo price at 900, not 1000.
	bulkThreshold   = 2
	bulkDiscountPct = 10

	taxPct = 5
)

var errInvalidCoupon = errors.New("invalid coupon code")

func itemTotal(unitPrice, durationValue int) int {
	gross := unitPrice * durationValue
	if durationValue >= bulkThreshold {
		gross -= gross * bulkDiscountPct / 100
	}
	return gross
}

func couponDiscount(code string, subtotal int) (int, error) {
	switch code {
	case "TIFFIN10":
		return subtotal * 10 / 100, nil
	case "FLAT50":
		if subtotal < 50 {
			return subtotal, nil
		}
		return 50, nil
	default:
		return 0, errInvalidCoupon
	}
}

func unitPriceFor(cb catalog.Combo, dt cart.DurationType) (int, error) {
	switch dt {
	case cart.Weekly:
		return cb.Pricing.Weekly, nil
	case cart.Monthly:
		return cb.Pricing.Monthly, nil
	case cart.Quarterly:
		if cb.Pricing.Quarterly == nil {
			return 0, fmt.Errorf("combo %s has no quarterly pricing", cb.Name)
		}
		return *cb.Pricing.Quarterly, nil
	default:
		return 0, fmt.Errorf("unknown duration type %q", dt)
	}
}

func durationSpan(dt cart.DurationType, value int) time.Duration {
	const day = 24 * time.Hour
	switch dt {
	case cart.Weekly:
		return time.Duration(value) * 7 * day
	case cart.Monthly:
		return time.Duration(value) * 30 * day
	case cart.Quarterly:
		return time.Duration(value) * 90 * day
	default:
		return 0
	}
}

// reprice recomputes every derived monetary field of a cart, in order:
// per-item totals, subtotal, coupon discount, tax, final total. A coupon
// that stopped covering the cart (e.g. after removals) is dropped silently.
func reprice(c *cart.Cart) {
	subtotal := 0
	for i := range c.Items {
		it := &c.Items[i]
		it.TotalPrice = itemTotal(it.UnitPrice, it.DurationValue)
		subtotal += it.TotalPrice
	}

	discount := 0
	if c.CouponCode != "" {
		d, err := couponDiscount(c.CouponCode, subtotal)
		if err != nil {
			c.CouponCode = ""
		} else {
			discount = d
		}
	}

	tax := (subtotal - discount) * taxPct / 100

	c.Subtotal = subtotal
	c.Discount = discount
	c.Tax = tax
	c.Total = subtotal - discount + tax
}
