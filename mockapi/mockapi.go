// Package mockapi is an in-memory emulator of the storefront backend. It
// exists for offline development and as the integration-test bed for the
// client packages; production deployments talk to the real service instead.
package mockapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"github.com/sandeepmhskr/tiffinbox/mockapi/claims"
	"github.com/sandeepmhskr/tiffinbox/mockapi/middleware"
	"github.com/sandeepmhskr/tiffinbox/mockapi/web"
	"github.com/sandeepmhskr/tiffinbox/mockapi/weberr"
	"github.com/sandeepmhskr/tiffinbox/rate"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Log     logrus.FieldLogger
	Session *scs.SessionManager

	// TokenTTL bounds access tokens; short values force the client through
	// its refresh path, which is exactly what the tests want.
	TokenTTL time.Duration

	// CartTTL is how long a cart's pricing is held.
	CartTTL time.Duration

	Users []SeedUser
}

type SeedUser struct {
	Email    string
	Password string
}

// Server holds all emulator state in memory behind one mutex; it resets on
// restart, the same trade stripe-mock makes.
type Server struct {
	log      logrus.FieldLogger
	session  *scs.SessionManager
	tokenTTL time.Duration
	cartTTL  time.Duration
	limiter  *rate.Limiter

	state *state
}

func New(cfg Config) (*Server, error) {
	log := cfg.Log
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}

	sm := cfg.Session
	if sm == nil {
		sm = scs.New()
		sm.Lifetime = 24 * time.Hour
	}

	tokenTTL := cfg.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = 15 * time.Minute
	}
	cartTTL := cfg.CartTTL
	if cartTTL <= 0 {
		cartTTL = 30 * time.Minute
	}

	s := &Server{
		log:      log,
		session:  sm,
		tokenTTL: tokenTTL,
		cartTTL:  cartTTL,
		limiter:  rate.NewLimiter(10, time.Hour, rate.Every(100*time.Millisecond)),
		state:    newState(),
	}
	s.state.seedCatalog()
	for _, u := range cfg.Users {
		if err := s.state.seedUser(u.Email, u.Password); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Close stops the limiter janitor.
func (s *Server) Close() {
	s.limiter.Stop()
}

type api struct {
	*mux.Router
	mw  []web.Middleware
	log logrus.FieldLogger
}

// Handler assembles the emulator's router with the same middleware chain the
// real service runs: session load/save outermost, then request ids, request
// logs, error rendering and panic recovery.
func (s *Server) Handler() http.Handler {
	a := &api{
		Router: mux.NewRouter(),
		log:    s.log,
	}

	a.mw = append(a.mw, loadAndSave(s.session))
	a.mw = append(a.mw, middleware.RequestID())
	a.mw = append(a.mw, middleware.Logger(s.log))
	a.mw = append(a.mw, middleware.Errors(s.log))
	a.mw = append(a.mw, middleware.Panics())

	authen := s.authenticate()

	a.Handle(http.MethodPost, "/auth/login", s.handleLogin())
	a.Handle(http.MethodPost, "/auth/oauth", s.handleOauthLogin())
	a.Handle(http.MethodPost, "/auth/refresh", s.handleRefresh())
	a.Handle(http.MethodPost, "/auth/logout", s.handleLogout())

	a.Handle(http.MethodGet, "/api/kitchens", s.handleListKitchens())
	a.Handle(http.MethodGet, "/api/kitchens/{id}/combos", s.handleListCombos())

	a.Handle(http.MethodGet, "/api/cart/user/me", s.handleShowCart(), authen)
	a.Handle(http.MethodPost, "/api/cart/add", s.handleAddItem(), authen)
	a.Handle(http.MethodPut, "/api/cart/{cart_id}/item/{item_id}", s.handleUpdateItem(), authen)
	a.Handle(http.MethodDelete, "/api/cart/{cart_id}/item/{item_id}", s.handleRemoveItem(), authen)
	a.Handle(http.MethodDelete, "/api/cart/{cart_id}/clear", s.handleClearCart(), authen)
	a.Handle(http.MethodPatch, "/api/cart/{cart_id}/coupon", s.handleApplyCoupon(), authen)
	a.Handle(http.MethodPatch, "/api/cart/{cart_id}/delivery-address", s.handleSetAddress(), authen)
	a.Handle(http.MethodGet, "/api/cart/{cart_id}/summary", s.handleCartSummary(), authen)

	a.Handle(http.MethodPost, "/api/purchase/create-from-cart", s.handleCreatePurchase(), authen)
	a.Handle(http.MethodGet, "/api/purchase/{purchase_id}", s.handleShowPurchase(), authen)
	a.Handle(http.MethodPatch, "/api/purchase/{purchase_id}/payment", s.handleUpdatePayment(), authen)

	return a.Router
}

func (a *api) Handle(method string, path string, handler web.Handler, mw ...web.Middleware) {

	handler = web.WrapMiddleware(mw, handler)

	handler = web.WrapMiddleware(a.mw, handler)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		ctx := r.Context()

		if err := handler(ctx, w, r); err != nil {

			a.log.WithFields(logrus.Fields{
				"req_id":  middleware.ContextRequestID(ctx),
				"message": err,
			}).Error("ERROR")
		}
	})

	a.Router.Handle(path, h).Methods(method)
}

// loadAndSave adapts scs's http.Handler middleware to the web.Handler chain.
// It sits outermost so every inner handler sees the session context.
func loadAndSave(sm *scs.SessionManager) web.Middleware {
	return func(handler web.Handler) web.Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			var err error

			inner := http.HandlerFunc(func(iw http.ResponseWriter, ir *http.Request) {
				err = handler(ir.Context(), iw, ir)
			})
			sm.LoadAndSave(inner).ServeHTTP(w, r)

			return err
		}
	}
}

// authenticate resolves the bearer token into claims. Expired and unknown
// tokens both answer 401, which is what pushes the client into its refresh.
func (s *Server) authenticate() web.Middleware {
	return func(handler web.Handler) web.Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				return weberr.NotAuthorized(errors.New("missing bearer token"))
			}
			token := strings.TrimPrefix(h, "Bearer ")
			if token == "" {
				return weberr.NotAuthorized(errors.New("missing bearer token"))
			}

			usr, err := s.state.userByToken(token, time.Now().UTC())
			if err != nil {
				return weberr.NotAuthorized(err)
			}

			ctx = claims.Set(ctx, claims.Claims{UserID: usr.ID, Email: usr.Email})
			return handler(ctx, w, r)
		}
	}
}
