// Package apitest boots the backend emulator in-process and hands out
// storefront clients wired to it, for integration tests of the client
// packages.
package apitest

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sandeepmhskr/tiffinbox/client"
	"github.com/sandeepmhskr/tiffinbox/core/auth"
	"github.com/sandeepmhskr/tiffinbox/core/session"
	"github.com/sandeepmhskr/tiffinbox/mockapi"
	"github.com/sirupsen/logrus"
)

type TestEnv struct {
	URL       string
	Server    *httptest.Server
	API       *mockapi.Server
	UserEmail string
	UserPass  string
}

type Option func(*mockapi.Config)

// WithTokenTTL shortens access-token life to force refreshes mid-test.
func WithTokenTTL(d time.Duration) Option {
	return func(cfg *mockapi.Config) { cfg.TokenTTL = d }
}

// WithCartTTL shortens cart expiry.
func WithCartTTL(d time.Duration) Option {
	return func(cfg *mockapi.Config) { cfg.CartTTL = d }
}

func NewTestEnv(t *testing.T, opts ...Option) *TestEnv {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	env := &TestEnv{
		UserEmail: "diner@tiffinbox.example",
		UserPass:  "super-secret",
	}

	cfg := mockapi.Config{
		Log:   log,
		Users: []mockapi.SeedUser{{Email: env.UserEmail, Password: env.UserPass}},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	api, err := mockapi.New(cfg)
	if err != nil {
		t.Fatalf("building emulator: %v", err)
	}

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		srv.Close()
		api.Close()
	})

	env.API = api
	env.Server = srv
	env.URL = srv.URL
	return env
}

// Client builds a storefront client against the emulator with an in-memory
// session store and its own cookie jar.
func (env *TestEnv) Client(t *testing.T) (*client.Client, *session.MemStore) {
	t.Helper()

	store := session.NewMemStore()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("building cookie jar: %v", err)
	}

	cl, err := client.New(client.Config{
		BaseURL: env.URL,
		Store:   store,
		HTTP:    &http.Client{Jar: jar, Timeout: 10 * time.Second},
	})
	if err != nil {
		t.Fatalf("building client: %v", err)
	}
	return cl, store
}

// Login signs the seeded user in through the real endpoint.
func (env *TestEnv) Login(t *testing.T, cl *client.Client, store session.Store) {
	t.Helper()

	if err := auth.SignIn(context.Background(), cl, store, env.UserEmail, env.UserPass); err != nil {
		t.Fatalf("signing in: %v", err)
	}
}
