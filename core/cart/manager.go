package cart

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sandeepmhskr/tiffinbox/client"
	"github.com/sandeepmhskr/tiffinbox/validate"
	"github.com/sirupsen/logrus"
)

// Manager owns the single source of truth for the user's cart. Local state
// only ever advances through apply, which takes whole server cart payloads:
// items and the four monetary fields always land together, so the view can
// never observe an items list from one response priced by another.
//
// Mutations are independent calls; the backend is authoritative and the last
// server response wins. The manager does not queue or serialize mutations —
// the view layer disables a control while its own mutation is pending.
type Manager struct {
	client *client.Client
	log    logrus.FieldLogger

	// now and tick are injectable for expiry tests.
	now  func() time.Time
	tick time.Duration

	// OnExpire fires once when the countdown hits zero, after the cart has
	// been dropped. Set before Watch is started.
	OnExpire func()

	mu   sync.Mutex
	cart *Cart

	watchCancel context.CancelFunc
}

type ManagerConfig struct {
	Client *client.Client
	Log    logrus.FieldLogger

	// Tick is the countdown resolution. Zero means one second.
	Tick time.Duration

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

func NewManager(cfg ManagerConfig) *Manager {
	log := cfg.Log
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	tick := cfg.Tick
	if tick <= 0 {
		tick = time.Second
	}
	return &Manager{
		client: cfg.Client,
		log:    log,
		now:    now,
		tick:   tick,
	}
}

// apply is the only transition. It accepts nothing but a complete
// server-shaped cart; terminal statuses and item-less carts collapse to
// absent and are never re-entered.
func (m *Manager) apply(c *Cart) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.Gone() {
		m.cart = nil
		return
	}
	cp := *c
	cp.Items = append([]Item(nil), c.Items...)
	m.cart = &cp
}

// Current returns a snapshot of the cart, or nil when absent. The copy keeps
// callers from mutating manager state behind the lock's back.
func (m *Manager) Current() *Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cart == nil {
		return nil
	}
	cp := *m.cart
	cp.Items = append([]Item(nil), m.cart.Items...)
	return &cp
}

func (m *Manager) ItemCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cart == nil {
		return 0
	}
	return len(m.cart.Items)
}

// Remaining reports the countdown to expiry; zero when absent or already past.
func (m *Manager) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cart == nil {
		return 0
	}
	d := m.cart.ExpiresAt.Sub(m.now())
	if d < 0 {
		return 0
	}
	return d
}

// Load pulls the user's current cart. No cart on the backend is not an
// error; it just leaves the manager absent.
func (m *Manager) Load(ctx context.Context) error {
	var c Cart
	err := m.client.Get(ctx, "/api/cart/user/me", &c)
	if err != nil {
		if client.IsStatus(err, http.StatusNotFound) {
			m.apply(&Cart{})
			return nil
		}
		return fmt.Errorf("loading cart: %w", err)
	}
	m.apply(&c)
	return nil
}

func (m *Manager) AddItem(ctx context.Context, p AddItemParams) error {
	if err := validate.Check(p); err != nil {
		return err
	}

	var c Cart
	if err := m.client.Post(ctx, "/api/cart/add", p, &c); err != nil {
		return fmt.Errorf("adding item: %w", err)
	}
	m.apply(&c)
	return nil
}

// UpdateItem changes an item's duration value. A value of zero or below is
// the caller saying "I don't want this anymore": it is deliberately routed
// to RemoveItem instead of being sent as an update, the one place this
// package redirects an operation's intent.
func (m *Manager) UpdateItem(ctx context.Context, itemID string, durationValue int) error {
	if durationValue <= 0 {
		return m.RemoveItem(ctx, itemID)
	}

	cartID, err := m.activeID()
	if err != nil {
		return err
	}

	up := ItemUp{DurationValue: durationValue}
	if err := validate.Check(up); err != nil {
		return err
	}

	var c Cart
	path := fmt.Sprintf("/api/cart/%s/item/%s", cartID, itemID)
	if err := m.client.Put(ctx, path, up, &c); err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	m.apply(&c)
	return nil
}

func (m *Manager) RemoveItem(ctx context.Context, itemID string) error {
	cartID, err := m.activeID()
	if err != nil {
		return err
	}

	var c Cart
	path := fmt.Sprintf("/api/cart/%s/item/%s", cartID, itemID)
	if err := m.client.Delete(ctx, path, &c); err != nil {
		// Removing something already gone is a no-op for the caller.
		if client.IsStatus(err, http.StatusNotFound) {
			return nil
		}
		return fmt.Errorf("removing item: %w", err)
	}
	m.apply(&c)
	return nil
}

func (m *Manager) Clear(ctx context.Context) error {
	cartID, err := m.activeID()
	if err != nil {
		return err
	}

	var c Cart
	if err := m.client.Delete(ctx, "/api/cart/"+cartID+"/clear", &c); err != nil {
		return fmt.Errorf("clearing cart: %w", err)
	}
	m.apply(&c)
	return nil
}

func (m *Manager) ApplyCoupon(ctx context.Context, code string) error {
	cartID, err := m.activeID()
	if err != nil {
		return err
	}

	up := CouponUp{Code: code}
	if err := validate.Check(up); err != nil {
		return err
	}

	var c Cart
	if err := m.client.Patch(ctx, "/api/cart/"+cartID+"/coupon", up, &c); err != nil {
		return fmt.Errorf("applying coupon: %w", err)
	}
	m.apply(&c)
	return nil
}

func (m *Manager) SetDeliveryAddress(ctx context.Context, address, pincode string) error {
	cartID, err := m.activeID()
	if err != nil {
		return err
	}

	up := AddressUp{Address: address, Pincode: pincode}
	if err := validate.Check(up); err != nil {
		return err
	}

	var c Cart
	if err := m.client.Patch(ctx, "/api/cart/"+cartID+"/delivery-address", up, &c); err != nil {
		return fmt.Errorf("setting delivery address: %w", err)
	}
	m.apply(&c)
	return nil
}

// Summary fetches the checkout projection without touching manager state.
func (m *Manager) Summary(ctx context.Context) (Summary, error) {
	cartID, err := m.activeID()
	if err != nil {
		return Summary{}, err
	}

	var s Summary
	if err := m.client.Get(ctx, "/api/cart/"+cartID+"/summary", &s); err != nil {
		return Summary{}, fmt.Errorf("fetching cart summary: %w", err)
	}
	return s, nil
}

func (m *Manager) activeID() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cart == nil {
		return "", ErrNoCart
	}
	return m.cart.ID, nil
}

// Watch runs the expiry countdown until ctx is canceled. When the deadline
// passes the cart is dropped immediately, without waiting for the backend to
// confirm: stale pricing must never stay on screen just because the expiry
// round-trip is slow.
func (m *Manager) Watch(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	if m.watchCancel != nil {
		m.watchCancel()
	}
	m.watchCancel = cancel
	m.mu.Unlock()

	go m.watch(ctx)
}

// StopWatch halts the countdown started by Watch.
func (m *Manager) StopWatch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watchCancel != nil {
		m.watchCancel()
		m.watchCancel = nil
	}
}

func (m *Manager) watch(ctx context.Context) {
	t := time.NewTicker(m.tick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if m.expireIfDue() {
				m.log.Info("cart expired")
				if m.OnExpire != nil {
					m.OnExpire()
				}
			}
		}
	}
}

func (m *Manager) expireIfDue() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cart == nil {
		return false
	}
	if m.now().Before(m.cart.ExpiresAt) {
		return false
	}
	m.cart = nil
	return true
}
