package mockapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sandeepmhskr/tiffinbox/core/cart"
	"github.com/sandeepmhskr/tiffinbox/core/purchase"
	"github.com/sandeepmhskr/tiffinbox/mockapi/claims"
	"github.com/sandeepmhskr/tiffinbox/mockapi/web"
	"github.com/sandeepmhskr/tiffinbox/mockapi/weberr"
	"github.com/sandeepmhskr/tiffinbox/validate"
)

func (s *Server) handleCreatePurchase() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		var p purchase.CreateParams
		if err := web.Decode(w, r, &p); err != nil {
			return err
		}
		if err := validate.Check(p); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		now := time.Now().UTC()

		s.state.mu.Lock()
		defer s.state.mu.Unlock()

		c, err := s.state.cartForMutation(clm.UserID, p.CartID, now)
		if err != nil {
			return weberr.NotFound(err)
		}
		if len(c.Items) == 0 {
			return weberr.Unprocessable(errors.New("no items to checkout"))
		}
		if c.Address == "" {
			return weberr.Unprocessable(errors.New("delivery address missing"))
		}

		// The cart's money is copied, not re-derived: the purchase freezes
		// whatever the cart last priced at.
		pur := &purchase.Purchase{
			ID:            validate.GenerateID(),
			UserID:        clm.UserID,
			CartID:        c.ID,
			KitchenID:     c.KitchenID,
			Items:         append([]cart.Item(nil), c.Items...),
			Subtotal:      c.Subtotal,
			Discount:      c.Discount,
			Tax:           c.Tax,
			Total:         c.Total,
			Status:        purchase.Pending,
			PaymentMethod: p.PaymentMethod,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		s.state.purchases[pur.ID] = pur

		c.Status = cart.StatusCheckedOut
		c.UpdatedAt = now
		delete(s.state.carts, clm.UserID)

		return web.Respond(ctx, w, pur, http.StatusOK)
	}
}

func (s *Server) handleShowPurchase() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		s.state.mu.Lock()
		defer s.state.mu.Unlock()

		pur, ok := s.state.purchases[web.Param(r, "purchase_id")]
		if !ok || pur.UserID != clm.UserID {
			return weberr.NotFound(errors.New("purchase not found"))
		}
		return web.Respond(ctx, w, pur, http.StatusOK)
	}
}

func (s *Server) handleUpdatePayment() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		var up purchase.PaymentUp
		if err := web.Decode(w, r, &up); err != nil {
			return err
		}
		if err := validate.Check(up); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		s.state.mu.Lock()
		defer s.state.mu.Unlock()

		pur, ok := s.state.purchases[web.Param(r, "purchase_id")]
		if !ok || pur.UserID != clm.UserID {
			return weberr.NotFound(errors.New("purchase not found"))
		}
		if pur.Status != purchase.Pending {
			return weberr.Unprocessable(fmt.Errorf("purchase is already %s", pur.Status))
		}

		pur.Status = up.Status
		pur.PaymentRef = up.Ref
		pur.UpdatedAt = time.Now().UTC()

		return web.Respond(ctx, w, pur, http.StatusOK)
	}
}
