package purchase

import (
	"context"
	"fmt"
	"time"

	"github.com/sandeepmhskr/tiffinbox/client"
	"github.com/sandeepmhskr/tiffinbox/core/cart"
	"github.com/sandeepmhskr/tiffinbox/validate"
)

type Status string

const (
	Pending Status = "PENDING"
	Paid    Status = "PAID"
	Failed  Status = "FAILED"
)

type Method string

const (
	MethodPaypal Method = "PAYPAL"
	MethodStripe Method = "STRIPE"
)

// Purchase is created server-side from a cart at checkout. The monetary
// fields are copied out of the cart by the backend; the cart itself flips to
// CHECKED_OUT and cannot be shopped with again.
type Purchase struct {
	ID            string      `json:"id"`
	UserID        string      `json:"userId"`
	CartID        string      `json:"cartId"`
	KitchenID     string      `json:"kitchenId"`
	Items         []cart.Item `json:"items"`
	Subtotal      int         `json:"subtotal"`
	Discount      int         `json:"discount"`
	Tax           int         `json:"taxes"`
	Total         int         `json:"finalTotal"`
	Status        Status      `json:"status"`
	PaymentMethod Method      `json:"paymentMethod"`
	PaymentRef    string      `json:"paymentRef,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

type CreateParams struct {
	CartID        string `json:"cartId" validate:"required"`
	PaymentMethod Method `json:"paymentMethod" validate:"required,oneof=PAYPAL STRIPE"`
}

type PaymentUp struct {
	Status Status `json:"status" validate:"required,oneof=PAID FAILED"`
	Ref    string `json:"paymentRef" validate:"required"`
}

// CreateFromCart asks the backend to turn the cart into a pending purchase.
func CreateFromCart(ctx context.Context, c *client.Client, p CreateParams) (Purchase, error) {
	if err := validate.Check(p); err != nil {
		return Purchase{}, err
	}

	var pur Purchase
	if err := c.Post(ctx, "/api/purchase/create-from-cart", p, &pur); err != nil {
		return Purchase{}, fmt.Errorf("creating purchase from cart[%s]: %w", p.CartID, err)
	}
	return pur, nil
}

// UpdatePayment reports a payment outcome back to the backend.
func UpdatePayment(ctx context.Context, c *client.Client, purchaseID string, up PaymentUp) (Purchase, error) {
	if err := validate.Check(up); err != nil {
		return Purchase{}, err
	}

	var pur Purchase
	path := "/api/purchase/" + purchaseID + "/payment"
	if err := c.Patch(ctx, path, up, &pur); err != nil {
		return Purchase{}, fmt.Errorf("updating payment of purchase[%s]: %w", purchaseID, err)
	}
	return pur, nil
}

func Fetch(ctx context.Context, c *client.Client, purchaseID string) (Purchase, error) {
	var pur Purchase
	if err := c.Get(ctx, "/api/purchase/"+purchaseID, &pur); err != nil {
		return Purchase{}, fmt.Errorf("fetching purchase[%s]: %w", purchaseID, err)
	}
	return pur, nil
}
