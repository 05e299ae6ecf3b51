package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/plutov/paypal/v4"
	"github.com/sandeepmhskr/tiffinbox/client"
	"github.com/sandeepmhskr/tiffinbox/config"
	"github.com/sandeepmhskr/tiffinbox/core/auth"
	"github.com/sandeepmhskr/tiffinbox/core/cart"
	"github.com/sandeepmhskr/tiffinbox/core/catalog"
	"github.com/sandeepmhskr/tiffinbox/core/purchase"
	"github.com/sandeepmhskr/tiffinbox/core/session"
	"github.com/sandeepmhskr/tiffinbox/random"
	"github.com/sandeepmhskr/tiffinbox/validate"
	"github.com/sirupsen/logrus"
	stripecl "github.com/stripe/stripe-go/v74/client"
)

type app struct {
	cfg    config.CLI
	log    logrus.FieldLogger
	store  session.Store
	client *client.Client
	cart   *cart.Manager
	out    io.Writer
}

func (a *app) dispatch(ctx context.Context, cmd string, args conf.Args) error {
	switch cmd {
	case "login":
		return a.login(ctx, args.Num(1), args.Num(2))
	case "login-google":
		return a.loginGoogle(ctx)
	case "logout":
		return auth.SignOut(ctx, a.client, a.store)
	case "kitchens":
		return a.kitchens(ctx)
	case "combos":
		return a.combos(ctx, args.Num(1))
	case "cart":
		return a.showCart(ctx)
	case "add":
		return a.addItem(ctx, args)
	case "update":
		return a.updateItem(ctx, args.Num(1), args.Num(2))
	case "remove":
		return a.removeItem(ctx, args.Num(1))
	case "clear":
		return a.clearCart(ctx)
	case "coupon":
		return a.applyCoupon(ctx, args.Num(1))
	case "address":
		return a.setAddress(ctx, args)
	case "summary":
		return a.summary(ctx)
	case "checkout":
		return a.checkout(ctx)
	default:
		fmt.Fprintln(a.out, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) login(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return errors.New("usage: tiffin login <email> <password>")
	}
	if err := auth.SignIn(ctx, a.client, a.store, email, password); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "signed in as %s\n", email)
	return nil
}

func (a *app) loginGoogle(ctx context.Context) error {
	g := a.cfg.Oauth.Google
	dctx, cancel := context.WithTimeout(ctx, a.cfg.Oauth.DiscoveryTimeout)
	defer cancel()

	provs, err := auth.MakeProviders(dctx, []auth.ProviderConfig{
		{Name: "google", Client: g.Client, Secret: g.Secret, URL: g.URL, RedirectURL: g.RedirectURL},
	})
	if err != nil {
		return fmt.Errorf("discovering oauth providers: %w", err)
	}
	prov := provs["google"]

	state := random.String(16)
	fmt.Fprintf(a.out, "open this url in a browser and approve the sign-in:\n\n  %s\n\n", prov.AuthCodeURL(state))
	fmt.Fprint(a.out, "paste the authorization code here: ")

	code, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading authorization code: %w", err)
	}

	rawIDToken, err := prov.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return err
	}
	if err := auth.SignInWithIDToken(ctx, a.client, a.store, "google", rawIDToken); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "signed in through google")
	return nil
}

func (a *app) kitchens(ctx context.Context) error {
	ks, err := catalog.ListKitchens(ctx, a.client)
	if err != nil {
		return err
	}
	for _, k := range ks {
		fmt.Fprintf(a.out, "%s  %-22s %-14s %-14s %.1f\n", k.ID, k.Name, k.Cuisine, k.Area, k.Rating)
	}
	return nil
}

func (a *app) combos(ctx context.Context, kitchenID string) error {
	if kitchenID == "" {
		return errors.New("usage: tiffin combos <kitchen-id>")
	}
	cs, err := catalog.ListCombos(ctx, a.client, kitchenID)
	if err != nil {
		return err
	}
	for _, cb := range cs {
		fmt.Fprintf(a.out, "%s  %s (%s, %s)\n", cb.ID, cb.Name, cb.Code.MealType, cb.Code.Pattern)
		for _, opt := range catalog.PriceOptions(cb) {
			if opt.SavingsPct > 0 {
				fmt.Fprintf(a.out, "    %-10s ₹%-6d save %d%%\n", opt.DurationType, opt.UnitPrice, opt.SavingsPct)
				continue
			}
			fmt.Fprintf(a.out, "    %-10s ₹%d\n", opt.DurationType, opt.UnitPrice)
		}
	}
	return nil
}

func (a *app) loadCart(ctx context.Context) (*cart.Cart, error) {
	if err := a.cart.Load(ctx); err != nil {
		return nil, err
	}
	return a.cart.Current(), nil
}

func (a *app) showCart(ctx context.Context) error {
	c, err := a.loadCart(ctx)
	if err != nil {
		return err
	}
	a.printCart(c)
	return nil
}

func (a *app) printCart(c *cart.Cart) {
	if c == nil {
		fmt.Fprintln(a.out, "cart is empty")
		return
	}
	for _, it := range c.Items {
		fmt.Fprintf(a.out, "%s  %-22s %d x %-9s ₹%d\n", it.ID, it.ComboName, it.DurationValue, it.DurationType, it.TotalPrice)
	}
	fmt.Fprintf(a.out, "subtotal ₹%d  discount ₹%d  tax ₹%d  total ₹%d\n", c.Subtotal, c.Discount, c.Tax, c.Total)
	fmt.Fprintf(a.out, "expires in %s\n", a.cart.Remaining().Round(time.Second))
}

func (a *app) addItem(ctx context.Context, args conf.Args) error {
	kitchenID, comboID := args.Num(1), args.Num(2)
	dt, valueRaw := args.Num(3), args.Num(4)
	if kitchenID == "" || comboID == "" || dt == "" || valueRaw == "" {
		return errors.New("usage: tiffin add <kitchen-id> <combo-id> <duration-type> <value> [starch spice portion]")
	}
	value, err := strconv.Atoi(valueRaw)
	if err != nil {
		return fmt.Errorf("duration value must be a number: %w", err)
	}

	if _, err := a.loadCart(ctx); err != nil {
		return err
	}

	p := cart.AddItemParams{
		KitchenID:     kitchenID,
		ComboID:       comboID,
		DurationType:  cart.DurationType(strings.ToUpper(dt)),
		DurationValue: value,
		Preferences: cart.Preferences{
			Starch:  args.Num(5),
			Spice:   args.Num(6),
			Portion: args.Num(7),
		},
	}
	if err := a.cart.AddItem(ctx, p); err != nil {
		return err
	}
	a.printCart(a.cart.Current())
	return nil
}

func (a *app) updateItem(ctx context.Context, itemID, valueRaw string) error {
	if itemID == "" || valueRaw == "" {
		return errors.New("usage: tiffin update <item-id> <value>")
	}
	value, err := strconv.Atoi(valueRaw)
	if err != nil {
		return fmt.Errorf("duration value must be a number: %w", err)
	}
	if _, err := a.loadCart(ctx); err != nil {
		return err
	}
	if err := a.cart.UpdateItem(ctx, itemID, value); err != nil {
		return err
	}
	a.printCart(a.cart.Current())
	return nil
}

func (a *app) removeItem(ctx context.Context, itemID string) error {
	if itemID == "" {
		return errors.New("usage: tiffin remove <item-id>")
	}
	if _, err := a.loadCart(ctx); err != nil {
		return err
	}
	if err := a.cart.RemoveItem(ctx, itemID); err != nil {
		return err
	}
	a.printCart(a.cart.Current())
	return nil
}

func (a *app) clearCart(ctx context.Context) error {
	if _, err := a.loadCart(ctx); err != nil {
		return err
	}
	if err := a.cart.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "cart cleared")
	return nil
}

func (a *app) applyCoupon(ctx context.Context, code string) error {
	if code == "" {
		return errors.New("usage: tiffin coupon <code>")
	}
	if _, err := a.loadCart(ctx); err != nil {
		return err
	}
	if err := a.cart.ApplyCoupon(ctx, code); err != nil {
		return err
	}
	a.printCart(a.cart.Current())
	return nil
}

func (a *app) setAddress(ctx context.Context, args conf.Args) error {
	pincode := args.Num(1)
	var parts []string
	for i := 2; ; i++ {
		p := args.Num(i)
		if p == "" {
			break
		}
		parts = append(parts, p)
	}
	if pincode == "" || len(parts) == 0 {
		return errors.New("usage: tiffin address <pincode> <text...>")
	}
	if err := validate.CheckVar(pincode, "len=6,numeric"); err != nil {
		return fmt.Errorf("pincode: %w", err)
	}
	if _, err := a.loadCart(ctx); err != nil {
		return err
	}
	if err := a.cart.SetDeliveryAddress(ctx, strings.Join(parts, " "), pincode); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "delivery address saved")
	return nil
}

func (a *app) summary(ctx context.Context) error {
	if _, err := a.loadCart(ctx); err != nil {
		return err
	}
	sum, err := a.cart.Summary(ctx)
	if err != nil {
		return err
	}
	for _, b := range sum.Breakdown {
		fmt.Fprintf(a.out, "%-22s %-10s %s  %d days\n", b.ComboName, b.MealType, b.Pattern, b.TotalDays)
	}
	fmt.Fprintf(a.out, "total ₹%d, ready for checkout: %v, time left %s\n",
		sum.Cart.Total, sum.ReadyForCheckout, (time.Duration(sum.RemainingSeconds) * time.Second))
	return nil
}

func (a *app) checkout(ctx context.Context) error {
	c, err := a.loadCart(ctx)
	if err != nil {
		return err
	}
	if c == nil {
		return errors.New("cart is empty")
	}

	method := purchase.Method(strings.ToUpper(a.cfg.Checkout.Method))
	pur, err := purchase.CreateFromCart(ctx, a.client, purchase.CreateParams{
		CartID:        c.ID,
		PaymentMethod: method,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "purchase %s created, total ₹%d\n", pur.ID, pur.Total)

	switch method {
	case purchase.MethodPaypal:
		return a.payWithPaypal(ctx, pur)
	case purchase.MethodStripe:
		return a.payWithStripe(ctx, pur)
	default:
		return fmt.Errorf("unknown payment method %q", method)
	}
}

func (a *app) payWithPaypal(ctx context.Context, pur purchase.Purchase) error {
	pp, err := paypal.NewClient(a.cfg.Paypal.ClientID, a.cfg.Paypal.Secret, a.cfg.Paypal.URL)
	if err != nil {
		return fmt.Errorf("building paypal client: %w", err)
	}
	if _, err := pp.GetAccessToken(ctx); err != nil {
		return fmt.Errorf("getting paypal access token: %w", err)
	}

	payer := &purchase.PaypalPayer{PP: pp, Client: a.client}
	ord, err := payer.Checkout(ctx, pur)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "approve the payment in paypal (order %s), then press enter\n", ord.ID)
	if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err != nil {
		return fmt.Errorf("waiting for approval: %w", err)
	}

	paid, err := payer.Capture(ctx, pur, ord.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "payment captured, purchase %s is %s\n", paid.ID, paid.Status)
	return nil
}

func (a *app) payWithStripe(ctx context.Context, pur purchase.Purchase) error {
	strp := &stripecl.API{}
	strp.Init(a.cfg.Stripe.APISecret, nil)

	payer := &purchase.StripePayer{
		Stripe:     strp,
		Client:     a.client,
		SuccessURL: a.cfg.Stripe.SuccessURL,
		CancelURL:  a.cfg.Stripe.CancelURL,
	}
	sess, err := payer.Checkout(ctx, pur)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "complete the payment at:\n\n  %s\n\nthen press enter\n", sess.URL)
	if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err != nil {
		return fmt.Errorf("waiting for payment: %w", err)
	}

	paid, err := payer.Confirm(ctx, pur, sess.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "payment recorded, purchase %s is %s\n", paid.ID, paid.Status)
	return nil
}
