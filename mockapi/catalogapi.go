package mockapi

import (
	"context"
	"net/http"
	"sort"

	"github.com/sandeepmhskr/tiffinbox/core/catalog"
	"github.com/sandeepmhskr/tiffinbox/mockapi/web"
)

func (s *Server) handleListKitchens() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		s.state.mu.Lock()
		ks := append([]catalog.Kitchen(nil), s.state.kitchens...)
		s.state.mu.Unlock()

		return web.Respond(ctx, w, ks, http.StatusOK)
	}
}

func (s *Server) handleListCombos() web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		kitchenID := web.Param(r, "id")

		s.state.mu.Lock()
		cs := make([]catalog.Combo, 0)
		for _, cb := range s.state.combos {
			if cb.KitchenID == kitchenID {
				cs = append(cs, cb)
			}
		}
		s.state.mu.Unlock()

		sort.Slice(cs, func(i, j int) bool { return cs[i].Name < cs[j].Name })
		return web.Respond(ctx, w, cs, http.StatusOK)
	}
}
