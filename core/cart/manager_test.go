package cart_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sandeepmhskr/tiffinbox/client"
	"github.com/sandeepmhskr/tiffinbox/core/cart"
	"github.com/sandeepmhskr/tiffinbox/core/session"
)

// scriptedBackend answers each route with a canned cart payload, recording
// what the manager actually sent.
type scriptedBackend struct {
	mu       sync.Mutex
	requests []string // "METHOD path"
	handlers map[string]http.HandlerFunc
}

func newScriptedBackend() *scriptedBackend {
	return &scriptedBackend{handlers: make(map[string]http.HandlerFunc)}
}

func (s *scriptedBackend) on(method, path string, h http.HandlerFunc) {
	s.handlers[method+" "+path] = h
}

func (s *scriptedBackend) respond(method, path string, status int, body any) {
	s.on(method, path, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	})
}

func (s *scriptedBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path

	s.mu.Lock()
	s.requests = append(s.requests, key)
	h := s.handlers[key]
	s.mu.Unlock()

	if h == nil {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
		return
	}
	h(w, r)
}

func (s *scriptedBackend) seen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r == key {
			return true
		}
	}
	return false
}

func newManager(t *testing.T, backend http.Handler, cfg cart.ManagerConfig) *cart.Manager {
	t.Helper()

	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	store := session.NewMemStore()
	store.Save(session.Credentials{AccessToken: "tok", TokenType: "Bearer"})

	cl, err := client.New(client.Config{BaseURL: srv.URL, Store: store})
	if err != nil {
		t.Fatal(err)
	}
	cfg.Client = cl
	return cart.NewManager(cfg)
}

func activeCart(total int) cart.Cart {
	return cart.Cart{
		ID:        "cart-1",
		UserID:    "u-1",
		KitchenID: "k-1",
		Status:    cart.StatusActive,
		Items: []cart.Item{{
			ID:            "item-1",
			ComboID:       "combo-1",
			ComboName:     "Veg Thali Lunch",
			DurationType:  cart.Monthly,
			DurationValue: 2,
			UnitPrice:     500,
			TotalPrice:    total,
		}},
		Subtotal:  total,
		Total:     total,
		ExpiresAt: time.Now().Add(30 * time.Minute),
	}
}

func TestServerTotalsAreNeverRecomputed(t *testing.T) {
	// Two units at 500 with the backend's bulk discount: the server says 900
	// and 900 it is, not unitPrice times value.
	payload := activeCart(900)
	payload.Items[0].TotalPrice = 900

	b := newScriptedBackend()
	b.respond(http.MethodPost, "/api/cart/add", http.StatusOK, payload)

	m := newManager(t, b, cart.ManagerConfig{})

	err := m.AddItem(context.Background(), cart.AddItemParams{
		KitchenID:     "k-1",
		ComboID:       "combo-1",
		DurationType:  cart.Monthly,
		DurationValue: 2,
	})
	if err != nil {
		t.Fatal(err)
	}

	c := m.Current()
	if c == nil {
		t.Fatal("expected an active cart")
	}
	if c.Subtotal != 900 || c.Total != 900 {
		t.Fatalf("expected server totals 900/900, got %d/%d", c.Subtotal, c.Total)
	}
	if c.Items[0].TotalPrice != 900 {
		t.Fatalf("expected server item total 900, got %d", c.Items[0].TotalPrice)
	}
}

func TestUpdateToZeroRemovesInstead(t *testing.T) {
	seeded := activeCart(500)

	emptied := seeded
	emptied.Items = nil
	emptied.Status = cart.StatusActive
	emptied.Subtotal, emptied.Total = 0, 0

	b := newScriptedBackend()
	b.respond(http.MethodPost, "/api/cart/add", http.StatusOK, seeded)
	b.respond(http.MethodDelete, "/api/cart/cart-1/item/item-1", http.StatusOK, emptied)

	m := newManager(t, b, cart.ManagerConfig{})
	if err := m.AddItem(context.Background(), cart.AddItemParams{
		KitchenID: "k-1", ComboID: "combo-1", DurationType: cart.Weekly, DurationValue: 1,
	}); err != nil {
		t.Fatal(err)
	}

	if err := m.UpdateItem(context.Background(), "item-1", 0); err != nil {
		t.Fatal(err)
	}

	if b.seen("PUT /api/cart/cart-1/item/item-1") {
		t.Fatal("a zero-value update must not be sent as an update")
	}
	if !b.seen("DELETE /api/cart/cart-1/item/item-1") {
		t.Fatal("expected the item to be removed")
	}
	if m.Current() != nil {
		t.Fatal("an item-less cart payload must leave the manager absent")
	}
}

func TestCouponChangesOnlyServerFields(t *testing.T) {
	before := activeCart(1000)
	before.Items[0].TotalPrice = 1000

	after := before
	after.CouponCode = "TIFFIN10"
	after.Discount = 100
	after.Tax = 45
	after.Total = 945

	b := newScriptedBackend()
	b.respond(http.MethodPost, "/api/cart/add", http.StatusOK, before)
	b.respond(http.MethodPatch, "/api/cart/cart-1/coupon", http.StatusOK, after)

	m := newManager(t, b, cart.ManagerConfig{})
	if err := m.AddItem(context.Background(), cart.AddItemParams{
		KitchenID: "k-1", ComboID: "combo-1", DurationType: cart.Monthly, DurationValue: 2,
	}); err != nil {
		t.Fatal(err)
	}
	if err := m.ApplyCoupon(context.Background(), "TIFFIN10"); err != nil {
		t.Fatal(err)
	}

	c := m.Current()
	if c.CouponCode != "TIFFIN10" || c.Discount != 100 || c.Total != 945 {
		t.Fatalf("expected server-applied coupon, got %+v", c)
	}
	if c.Subtotal != 1000 {
		t.Fatalf("subtotal must come from the payload untouched, got %d", c.Subtotal)
	}
}

func TestFailedMutationLeavesStateUntouched(t *testing.T) {
	seeded := activeCart(500)

	b := newScriptedBackend()
	b.respond(http.MethodPost, "/api/cart/add", http.StatusOK, seeded)
	b.respond(http.MethodPatch, "/api/cart/cart-1/coupon", http.StatusUnprocessableEntity,
		map[string]string{"error": "invalid coupon code"})

	m := newManager(t, b, cart.ManagerConfig{})
	if err := m.AddItem(context.Background(), cart.AddItemParams{
		KitchenID: "k-1", ComboID: "combo-1", DurationType: cart.Weekly, DurationValue: 1,
	}); err != nil {
		t.Fatal(err)
	}

	err := m.ApplyCoupon(context.Background(), "NOPE")
	if !client.IsStatus(err, http.StatusUnprocessableEntity) {
		t.Fatalf("expected a 422, got %v", err)
	}

	c := m.Current()
	if c == nil || c.Total != 500 || c.CouponCode != "" {
		t.Fatalf("failed mutation must not change local state, got %+v", c)
	}
}

func TestLoadWithNoServerCartLeavesAbsent(t *testing.T) {
	b := newScriptedBackend()
	b.respond(http.MethodGet, "/api/cart/user/me", http.StatusNotFound,
		map[string]string{"error": "no active cart"})

	m := newManager(t, b, cart.ManagerConfig{})
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("a 404 on load is not an error: %v", err)
	}
	if m.Current() != nil {
		t.Fatal("expected absent cart")
	}
	if _, err := m.Summary(context.Background()); !errors.Is(err, cart.ErrNoCart) {
		t.Fatalf("expected ErrNoCart, got %v", err)
	}
}

func TestRemoveMissingItemIsNoOp(t *testing.T) {
	seeded := activeCart(500)

	b := newScriptedBackend()
	b.respond(http.MethodPost, "/api/cart/add", http.StatusOK, seeded)
	b.respond(http.MethodDelete, "/api/cart/cart-1/item/ghost", http.StatusNotFound,
		map[string]string{"error": "item not found"})

	m := newManager(t, b, cart.ManagerConfig{})
	if err := m.AddItem(context.Background(), cart.AddItemParams{
		KitchenID: "k-1", ComboID: "combo-1", DurationType: cart.Weekly, DurationValue: 1,
	}); err != nil {
		t.Fatal(err)
	}

	if err := m.RemoveItem(context.Background(), "ghost"); err != nil {
		t.Fatalf("removing an already-gone item must be a no-op: %v", err)
	}
	if m.ItemCount() != 1 {
		t.Fatalf("local state must be untouched, got %d items", m.ItemCount())
	}
}

func TestCountdownForcesAbsent(t *testing.T) {
	seeded := activeCart(500)
	seeded.ExpiresAt = time.Now().Add(10 * time.Second)

	b := newScriptedBackend()
	b.respond(http.MethodGet, "/api/cart/user/me", http.StatusOK, seeded)

	// An injectable clock jumps past the deadline after the first read.
	var mu sync.Mutex
	offset := time.Duration(0)
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return time.Now().Add(offset)
	}

	expired := make(chan struct{})
	m := newManager(t, b, cart.ManagerConfig{
		Tick: 5 * time.Millisecond,
		Now:  now,
	})
	m.OnExpire = func() { close(expired) }

	if err := m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if m.Current() == nil {
		t.Fatal("expected an active cart before expiry")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Watch(ctx)
	defer m.StopWatch()

	mu.Lock()
	offset = time.Minute
	mu.Unlock()

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("countdown never fired")
	}

	if m.Current() != nil {
		t.Fatal("expired cart must be absent without waiting for the backend")
	}
	if m.Remaining() != 0 {
		t.Fatalf("expected zero remaining, got %v", m.Remaining())
	}
}

func TestConcurrentAddsBothLand(t *testing.T) {
	// The backend is authoritative: whichever response applies last carries
	// both items, so the manager ends with the full server view.
	two := activeCart(1400)
	two.Items = append(two.Items, cart.Item{
		ID: "item-2", ComboID: "combo-2", ComboName: "Roti Sabzi Dinner",
		DurationType: cart.Weekly, DurationValue: 1, UnitPrice: 420, TotalPrice: 420,
	})

	var mu sync.Mutex
	calls := 0
	one := activeCart(500)

	b := newScriptedBackend()
	b.on(http.MethodPost, "/api/cart/add", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		payload := one
		if calls >= 2 {
			payload = two
		}
		mu.Unlock()
		json.NewEncoder(w).Encode(payload)
	})

	m := newManager(t, b, cart.ManagerConfig{})

	var wg sync.WaitGroup
	for _, combo := range []string{"combo-1", "combo-2"} {
		combo := combo
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.AddItem(context.Background(), cart.AddItemParams{
				KitchenID: "k-1", ComboID: combo, DurationType: cart.Weekly, DurationValue: 1,
			})
			if err != nil {
				t.Errorf("AddItem %s: %v", combo, err)
			}
		}()
	}
	wg.Wait()

	c := m.Current()
	if c == nil {
		t.Fatal("expected an active cart")
	}
	if len(c.Items) == 0 {
		t.Fatal("expected at least the last server payload's items")
	}
}
