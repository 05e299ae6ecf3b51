package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sandeepmhskr/tiffinbox/core/session"
)

// fakeBackend serves a minimal API that rejects every bearer token except
// the current one, and lets tests script the refresh endpoint.
type fakeBackend struct {
	mu           sync.Mutex
	goodToken    string
	refreshCalls int32
	refreshFail  bool
	refreshGate  chan struct{} // refresh blocks here when non-nil
	served       []string      // paths answered 200, in order
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.refreshCalls, 1)

		f.mu.Lock()
		gate := f.refreshGate
		fail := f.refreshFail
		f.mu.Unlock()

		if gate != nil {
			<-gate
		}
		if fail {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "no refresh session"})
			return
		}

		f.mu.Lock()
		f.goodToken = "fresh-" + fmt.Sprint(atomic.LoadInt32(&f.refreshCalls))
		tok := f.goodToken
		f.mu.Unlock()

		json.NewEncoder(w).Encode(map[string]any{
			"accessToken": tok,
			"tokenType":   "Bearer",
			"expiresIn":   900,
		})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		good := "Bearer " + f.goodToken
		f.mu.Unlock()

		if r.Header.Get("Authorization") != good {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "not authorized to access resource"})
			return
		}

		f.mu.Lock()
		f.served = append(f.served, r.URL.Path)
		f.mu.Unlock()

		json.NewEncoder(w).Encode(map[string]string{"path": r.URL.Path})
	})

	return mux
}

func newTestClient(t *testing.T, url string) (*Client, *session.MemStore) {
	t.Helper()

	store := session.NewMemStore()
	if err := store.Save(session.Credentials{AccessToken: "stale", TokenType: "Bearer"}); err != nil {
		t.Fatal(err)
	}

	c, err := New(Config{BaseURL: url, Store: store})
	if err != nil {
		t.Fatalf("building client: %v", err)
	}
	return c, store
}

func TestSingleRefreshUnderConcurrent401s(t *testing.T) {
	f := &fakeBackend{goodToken: "only-after-refresh"}
	f.refreshGate = make(chan struct{})
	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)

	// Everybody fails with the stale token while refresh is held open;
	// releasing the gate lets the single refresh settle and replay them.
	const n = 8
	go func() {
		time.Sleep(300 * time.Millisecond)
		close(f.refreshGate)
	}()

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			var out struct {
				Path string `json:"path"`
			}
			errs[i] = c.Get(context.Background(), fmt.Sprintf("/api/r%d", i), &out)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&f.refreshCalls); got != 1 {
		t.Fatalf("expected exactly 1 refresh call, got %d", got)
	}
}

func TestQueuedRequestsReplayInOrder(t *testing.T) {
	f := &fakeBackend{goodToken: "only-after-refresh"}
	f.refreshGate = make(chan struct{})
	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)

	paths := []string{"/api/a", "/api/b", "/api/c", "/api/d"}

	var wg sync.WaitGroup
	for _, p := range paths {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Get(context.Background(), p, nil); err != nil {
				t.Errorf("%s: %v", p, err)
			}
		}()
		// Spaced out so each call has hit its 401 and joined the queue
		// before the next is issued.
		time.Sleep(100 * time.Millisecond)
	}

	close(f.refreshGate)
	wg.Wait()

	f.mu.Lock()
	served := append([]string(nil), f.served...)
	f.mu.Unlock()

	if diff := cmp.Diff(paths, served); diff != "" {
		t.Fatalf("replay order mismatch (-want +got):\n%s", diff)
	}
	if got := atomic.LoadInt32(&f.refreshCalls); got != 1 {
		t.Fatalf("expected exactly 1 refresh call, got %d", got)
	}
}

func TestRefreshFailureRejectsEveryCaller(t *testing.T) {
	f := &fakeBackend{goodToken: "only-after-refresh", refreshFail: true}
	f.refreshGate = make(chan struct{})
	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)

	const n = 5
	go func() {
		time.Sleep(300 * time.Millisecond)
		close(f.refreshGate)
	}()

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = c.Get(context.Background(), fmt.Sprintf("/api/r%d", i), nil)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, ErrReauthRequired) {
			t.Fatalf("request %d: expected ErrReauthRequired, got %v", i, err)
		}
	}
	if _, err := store.Load(); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("expected cleared credentials, got %v", err)
	}
	if got := atomic.LoadInt32(&f.refreshCalls); got != 1 {
		t.Fatalf("expected exactly 1 refresh call, got %d", got)
	}
}

func TestSecond401AfterRefreshIsTerminal(t *testing.T) {
	// The backend refreshes fine but keeps saying 401: the client must not
	// refresh again.
	var refreshes int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/refresh" {
			atomic.AddInt32(&refreshes, 1)
			json.NewEncoder(w).Encode(map[string]any{
				"accessToken": "still-useless",
				"tokenType":   "Bearer",
				"expiresIn":   900,
			})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "not authorized to access resource"})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)

	err := c.Get(context.Background(), "/api/cart/user/me", nil)
	if !errors.Is(err, ErrReauthRequired) {
		t.Fatalf("expected ErrReauthRequired, got %v", err)
	}
	if got := atomic.LoadInt32(&refreshes); got != 1 {
		t.Fatalf("expected exactly 1 refresh attempt, got %d", got)
	}
}

func TestCanceledWaiterIsNotReplayed(t *testing.T) {
	f := &fakeBackend{goodToken: "only-after-refresh"}
	f.refreshGate = make(chan struct{})
	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := c.Get(context.Background(), "/api/keep", nil); err != nil {
			t.Errorf("/api/keep: %v", err)
		}
	}()
	time.Sleep(100 * time.Millisecond) // starter owns the refresh by now

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Get(ctx, "/api/abandoned", nil)
	}()
	time.Sleep(100 * time.Millisecond) // waiter has joined the queue
	cancel()

	// The waiter must come back with its own cancellation, without waiting
	// for the refresh to settle.
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("canceled waiter did not return")
	}

	close(f.refreshGate)
	wg.Wait()

	f.mu.Lock()
	served := append([]string(nil), f.served...)
	f.mu.Unlock()

	for _, p := range served {
		if p == "/api/abandoned" {
			t.Fatal("canceled call was replayed against the backend")
		}
	}
	if diff := cmp.Diff([]string{"/api/keep"}, served); diff != "" {
		t.Fatalf("served paths mismatch (-want +got):\n%s", diff)
	}
}

func TestBusinessRejectionPassesThroughVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/refresh" {
			t.Error("a 422 must not trigger a refresh")
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid coupon code"})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)

	err := c.Patch(context.Background(), "/api/cart/c1/coupon", map[string]string{"code": "NOPE"}, nil)

	var ae *APIError
	if !errors.As(err, &ae) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if ae.StatusCode != http.StatusUnprocessableEntity || ae.Message != "invalid coupon code" {
		t.Fatalf("unexpected APIError: %+v", ae)
	}
}

func TestUnauthenticatedCallsPassThrough(t *testing.T) {
	var sawAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([]string{})
	}))
	defer srv.Close()

	store := session.NewMemStore()
	c, err := New(Config{BaseURL: srv.URL, Store: store})
	if err != nil {
		t.Fatal(err)
	}

	var out []string
	if err := c.Get(context.Background(), "/api/kitchens", &out); err != nil {
		t.Fatalf("unauthenticated request failed: %v", err)
	}
	if sawAuth != "" {
		t.Fatalf("expected no Authorization header, got %q", sawAuth)
	}
}
