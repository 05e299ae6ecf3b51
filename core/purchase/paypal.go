package purchase

import (
	"context"
	"fmt"
	"strconv"

	"github.com/plutov/paypal/v4"
	"github.com/sandeepmhskr/tiffinbox/client"
)

// PaypalPayer settles a pending purchase through PayPal and reports the
// outcome to the backend. The gateway is only ever shown the backend's
// totals; nothing is priced here.
type PaypalPayer struct {
	PP     *paypal.Client
	Client *client.Client
}

// Checkout creates the PayPal order for the purchase total and returns it;
// the buyer approves it out of band (browser) before Capture is called.
func (p *PaypalPayer) Checkout(ctx context.Context, pur Purchase) (*paypal.Order, error) {
	if pur.Status != Pending {
		return nil, fmt.Errorf("purchase[%s] is %s, not payable", pur.ID, pur.Status)
	}

	items := make([]paypal.Item, 0, len(pur.Items))
	for _, it := range pur.Items {
		items = append(items, paypal.Item{
			Quantity:    "1",
			Name:        it.ComboName,
			Description: fmt.Sprintf("%d x %s subscription", it.DurationValue, it.DurationType),

			UnitAmount: &paypal.Money{
				Currency: "INR",
				Value:    strconv.Itoa(it.TotalPrice),
			},
		})
	}

	units := []paypal.PurchaseUnitRequest{{
		Items: items,

		Amount: &paypal.PurchaseUnitAmount{
			Currency: "INR",
			Value:    strconv.Itoa(pur.Total),

			Breakdown: &paypal.PurchaseUnitAmountBreakdown{
				ItemTotal: &paypal.Money{
					Currency: "INR",
					Value:    strconv.Itoa(pur.Subtotal),
				},
				Discount: &paypal.Money{
					Currency: "INR",
					Value:    strconv.Itoa(pur.Discount),
				},
				TaxTotal: &paypal.Money{
					Currency: "INR",
					Value:    strconv.Itoa(pur.Tax),
				},
			},
		},
	}}

	ord, err := p.PP.CreateOrder(ctx, "CAPTURE", units, nil, &paypal.ApplicationContext{})
	if err != nil {
		return nil, fmt.Errorf("creating paypal order: %w", err)
	}
	return ord, nil
}

// Capture captures the approved PayPal order and reports PAID (or FAILED)
// for the purchase. The capture outcome, not this client, decides which.
func (p *PaypalPayer) Capture(ctx context.Context, pur Purchase, paypalOrderID string) (Purchase, error) {
	resp, err := p.PP.CaptureOrder(ctx, paypalOrderID, paypal.CaptureOrderRequest{})
	if err != nil {
		return Purchase{}, fmt.Errorf("capturing paypal order[%s]: %w", paypalOrderID, err)
	}

	if resp.Status != "COMPLETED" {
		up := PaymentUp{Status: Failed, Ref: paypalOrderID}
		if _, uerr := UpdatePayment(ctx, p.Client, pur.ID, up); uerr != nil {
			return Purchase{}, fmt.Errorf("reporting failed capture: %w", uerr)
		}
		return Purchase{}, fmt.Errorf("captured order[%s] with status[%s] different from 'COMPLETED'", paypalOrderID, resp.Status)
	}

	updated, err := UpdatePayment(ctx, p.Client, pur.ID, PaymentUp{Status: Paid, Ref: paypalOrderID})
	if err != nil {
		return Purchase{}, fmt.Errorf("the order was payed but reporting it failed: %w", err)
	}
	return updated, nil
}
