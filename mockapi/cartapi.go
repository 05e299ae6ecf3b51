package mockapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sandeepmhskr/tiffinbox/core/cart"
	"github.com/sandeepmhskr/tiffinbox/core/catalog"
	"github.com/sandeepmhskr/tiffinbox/mockapi/claims"
	"github.com/sandeepmhskr/tiffinbox/mockapi/web"
	"github.com/sandeepmhskr/tiffinbox/mockapi/weberr"
	"github.com/sandeepmhskr/tiffinbox/validate"
)

var errKitchenMismatch = errors.New("cart already holds items from another kitchen")

// activeCart returns the user's live cart under the state lock, expiring it
// on the spot when its deadline has passed.
func (st *state) activeCart(userID string, now time.Time) *cart.Cart {
	c, ok := st.carts[userID]
	if !ok {
		return nil
	}
	if now.After(c.ExpiresAt) {
		c.Status = cart.StatusExpired
		delete(st.carts, userID)
		return nil
	}
	return c
}

func copyCart(c *cart.Cart) cart.Cart {
	cp := *c
	cp.Items = append([]cart.Item(nil), c.Items...)
	return cp
}

func (s *Server) handleShowCart() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		s.state.mu.Lock()
		c := s.state.activeCart(clm.UserID, time.Now().UTC())
		var out cart.Cart
		if c != nil {
			out = copyCart(c)
		}
		s.state.mu.Unlock()

		if out.ID == "" {
			return weberr.NotFound(errNoCart)
		}
		return web.Respond(ctx, w, out, http.StatusOK)
	}
}

func (s *Server) handleAddItem() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		var p cart.AddItemParams
		if err := web.Decode(w, r, &p); err != nil {
			return err
		}
		if err := validate.Check(p); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		now := time.Now().UTC()

		s.state.mu.Lock()
		defer s.state.mu.Unlock()

		cb, ok := s.state.combos[p.ComboID]
		if !ok {
			return weberr.NotFound(fmt.Errorf("combo[%s] not found", p.ComboID))
		}
		if cb.KitchenID != p.KitchenID {
			err := errors.New("combo does not belong to the given kitchen")
			return weberr.Unprocessable(err)
		}

		unit, err := unitPriceFor(cb, p.DurationType)
		if err != nil {
			return weberr.Unprocessable(err)
		}

		c := s.state.activeCart(clm.UserID, now)
		if c != nil && c.KitchenID != p.KitchenID {
			return weberr.Conflict(errKitchenMismatch)
		}
		if c == nil {
			c = &cart.Cart{
				ID:        validate.GenerateID(),
				UserID:    clm.UserID,
				KitchenID: p.KitchenID,
				Status:    cart.StatusActive,
				ExpiresAt: now.Add(s.cartTTL),
				CreatedAt: now,
			}
			s.state.carts[clm.UserID] = c
		}

		for _, it := range c.Items {
			if it.ComboID == p.ComboID && it.DurationType == p.DurationType {
				err := fmt.Errorf("combo %s is already in the cart", cb.Name)
				return weberr.Conflict(err)
			}
		}

		start := p.StartDate
		if start.IsZero() {
			start = now
		}

		it := cart.Item{
			ID:            validate.GenerateID(),
			ComboID:       cb.ID,
			KitchenID:     cb.KitchenID,
			ComboName:     cb.Name,
			DurationType:  p.DurationType,
			DurationValue: p.DurationValue,
			UnitPrice:     unit,
			StartDate:     start,
			EndDate:       start.Add(durationSpan(p.DurationType, p.DurationValue)),
			Preferences:   allowedPreferences(cb, p.Preferences),
		}
		c.Items = append(c.Items, it)
		c.UpdatedAt = now
		reprice(c)

		out := copyCart(c)
		return web.Respond(ctx, w, out, http.StatusOK)
	}
}

// allowedPreferences drops every preference the combo does not permit.
func allowedPreferences(cb catalog.Combo, p cart.Preferences) cart.Preferences {
	if !cb.Customization.Starch {
		p.Starch = ""
	}
	if !cb.Customization.Spice {
		p.Spice = ""
	}
	if !cb.Customization.Portion {
		p.Portion = ""
	}
	return p
}

// cartForMutation resolves the cart a mutation addresses, under lock.
func (st *state) cartForMutation(userID, cartID string, now time.Time) (*cart.Cart, error) {
	c := st.activeCart(userID, now)
	if c == nil || c.ID != cartID {
		return nil, errNoCart
	}
	return c, nil
}

func (s *Server) handleUpdateItem() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		var up cart.ItemUp
		if err := web.Decode(w, r, &up); err != nil {
			return err
		}
		if err := validate.Check(up); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		now := time.Now().UTC()

		s.state.mu.Lock()
		defer s.state.mu.Unlock()

		c, err := s.state.cartForMutation(clm.UserID, web.Param(r, "cart_id"), now)
		if err != nil {
			return weberr.NotFound(err)
		}

		itemID := web.Param(r, "item_id")
		found := false
		for i := range c.Items {
			if c.Items[i].ID == itemID {
				it := &c.Items[i]
				it.DurationValue = up.DurationValue
				it.EndDate = it.StartDate.Add(durationSpan(it.DurationType, up.DurationValue))
				found = true
				break
			}
		}
		if !found {
			return weberr.NotFound(fmt.Errorf("item[%s] not in cart", itemID))
		}

		c.UpdatedAt = now
		reprice(c)

		out := copyCart(c)
		return web.Respond(ctx, w, out, http.StatusOK)
	}
}

func (s *Server) handleRemoveItem() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		now := time.Now().UTC()

		s.state.mu.Lock()
		defer s.state.mu.Unlock()

		c, err := s.state.cartForMutation(clm.UserID, web.Param(r, "cart_id"), now)
		if err != nil {
			return weberr.NotFound(err)
		}

		itemID := web.Param(r, "item_id")
		kept := c.Items[:0]
		found := false
		for _, it := range c.Items {
			if it.ID == itemID {
				found = true
				continue
			}
			kept = append(kept, it)
		}
		if !found {
			return weberr.NotFound(fmt.Errorf("item[%s] not in cart", itemID))
		}

		c.Items = kept
		c.UpdatedAt = now
		reprice(c)

		out := copyCart(c)
		return web.Respond(ctx, w, out, http.StatusOK)
	}
}

func (s *Server) handleClearCart() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		now := time.Now().UTC()

		s.state.mu.Lock()
		defer s.state.mu.Unlock()

		c, err := s.state.cartForMutation(clm.UserID, web.Param(r, "cart_id"), now)
		if err != nil {
			return weberr.NotFound(err)
		}

		c.Items = nil
		c.CouponCode = ""
		c.UpdatedAt = now
		reprice(c)

		out := copyCart(c)
		return web.Respond(ctx, w, out, http.StatusOK)
	}
}

func (s *Server) handleApplyCoupon() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		var up cart.CouponUp
		if err := web.Decode(w, r, &up); err != nil {
			return err
		}
		if err := validate.Check(up); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		now := time.Now().UTC()

		s.state.mu.Lock()
		defer s.state.mu.Unlock()

		c, err := s.state.cartForMutation(clm.UserID, web.Param(r, "cart_id"), now)
		if err != nil {
			return weberr.NotFound(err)
		}
		if len(c.Items) == 0 {
			return weberr.Unprocessable(errors.New("no items to apply a coupon to"))
		}

		if _, err := couponDiscount(up.Code, c.Subtotal); err != nil {
			return weberr.Unprocessable(err)
		}

		c.CouponCode = up.Code
		c.UpdatedAt = now
		reprice(c)

		out := copyCart(c)
		return web.Respond(ctx, w, out, http.StatusOK)
	}
}

func (s *Server) handleSetAddress() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		var up cart.AddressUp
		if err := web.Decode(w, r, &up); err != nil {
			return err
		}
		if err := validate.Check(up); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		now := time.Now().UTC()

		s.state.mu.Lock()
		defer s.state.mu.Unlock()

		c, err := s.state.cartForMutation(clm.UserID, web.Param(r, "cart_id"), now)
		if err != nil {
			return weberr.NotFound(err)
		}

		// Metadata only: the address never touches pricing.
		c.Address = up.Address
		c.Pincode = up.Pincode
		c.UpdatedAt = now

		out := copyCart(c)
		return web.Respond(ctx, w, out, http.StatusOK)
	}
}

func (s *Server) handleCartSummary() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		now := time.Now().UTC()

		s.state.mu.Lock()
		defer s.state.mu.Unlock()

		c, err := s.state.cartForMutation(clm.UserID, web.Param(r, "cart_id"), now)
		if err != nil {
			return weberr.NotFound(err)
		}

		breakdown := make([]cart.ItemDays, 0, len(c.Items))
		for _, it := range c.Items {
			cb := s.state.combos[it.ComboID]
			weeks := int(durationSpan(it.DurationType, it.DurationValue) / (7 * 24 * time.Hour))
			breakdown = append(breakdown, cart.ItemDays{
				ItemID:      it.ID,
				ComboName:   it.ComboName,
				Pattern:     cb.Code.Pattern,
				MealType:    cb.Code.MealType,
				DaysPerWeek: cb.Code.DaysPerWeek,
				TotalDays:   weeks * cb.Code.DaysPerWeek,
			})
		}

		sum := cart.Summary{
			Cart:             copyCart(c),
			Breakdown:        breakdown,
			ReadyForCheckout: len(c.Items) > 0 && c.Address != "",
			RemainingSeconds: int(c.ExpiresAt.Sub(now) / time.Second),
		}
		return web.Respond(ctx, w, sum, http.StatusOK)
	}
}
