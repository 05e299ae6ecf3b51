package purchase

import (
	"context"
	"fmt"

	"github.com/sandeepmhskr/tiffinbox/client"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
)

// StripePayer settles a pending purchase through a Stripe checkout session.
type StripePayer struct {
	Stripe *stripecl.API
	Client *client.Client

	SuccessURL string
	CancelURL  string
}

// Checkout creates the Stripe session for the purchase and returns its URL
// for the buyer to complete. Stripe amounts are in paise, hence the *100.
func (s *StripePayer) Checkout(ctx context.Context, pur Purchase) (*stripe.CheckoutSession, error) {
	if pur.Status != Pending {
		return nil, fmt.Errorf("purchase[%s] is %s, not payable", pur.ID, pur.Status)
	}

	li := make([]*stripe.CheckoutSessionLineItemParams, 0, len(pur.Items))
	for _, it := range pur.Items {
		li = append(li, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(1),

			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String("inr"),
				TaxBehavior: stripe.String("inclusive"),
				UnitAmount:  stripe.Int64(int64(it.TotalPrice) * 100),

				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(it.ComboName),
					Description: stripe.String(fmt.Sprintf("%d x %s subscription", it.DurationValue, it.DurationType)),
				},
			},
		})
	}

	params := &stripe.CheckoutSessionParams{
		SuccessURL: stripe.String(s.SuccessURL),
		CancelURL:  stripe.String(s.CancelURL),
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:  li,
	}
	params.Context = ctx

	sess, err := s.Stripe.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("creating stripe session: %w", err)
	}
	return sess, nil
}

// Confirm reports the completed Stripe session as the purchase's payment.
func (s *StripePayer) Confirm(ctx context.Context, pur Purchase, sessionID string) (Purchase, error) {
	updated, err := UpdatePayment(ctx, s.Client, pur.ID, PaymentUp{Status: Paid, Ref: sessionID})
	if err != nil {
		return Purchase{}, fmt.Errorf("reporting stripe payment: %w", err)
	}
	return updated, nil
}
