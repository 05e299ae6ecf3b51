package mockapi

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sandeepmhskr/tiffinbox/core/cart"
	"github.com/sandeepmhskr/tiffinbox/core/catalog"
	"github.com/sandeepmhskr/tiffinbox/core/purchase"
	"github.com/sandeepmhskr/tiffinbox/validate"
	"golang.org/x/crypto/bcrypt"
)

type user struct {
	ID       string
	Email    string
	PassHash []byte
}

type accessToken struct {
	UserID    string
	ExpiresAt time.Time
}

var (
	errUnknownUser  = errors.New("unknown user or wrong password")
	errTokenExpired = errors.New("access token expired or unknown")
	errNoCart       = errors.New("no active cart")
)

type state struct {
	mu sync.Mutex

	users     map[string]*user        // by email
	tokens    map[string]accessToken  // by token string
	kitchens  []catalog.Kitchen
	combos    map[string]catalog.Combo // by combo ID
	carts     map[string]*cart.Cart    // active cart by user ID
	purchases map[string]*purchase.Purchase
}

func newState() *state {
	return &state{
		users:     make(map[string]*user),
		tokens:    make(map[string]accessToken),
		combos:    make(map[string]catalog.Combo),
		carts:     make(map[string]*cart.Cart),
		purchases: make(map[string]*purchase.Purchase),
	}
}

func (st *state) seedUser(email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return fmt.Errorf("hashing seed password: %w", err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.users[email] = &user{
		ID:       validate.GenerateID(),
		Email:    email,
		PassHash: hash,
	}
	return nil
}

func (st *state) login(email, password string) (*user, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	usr, ok := st.users[email]
	if !ok {
		return nil, errUnknownUser
	}
	if err := bcrypt.CompareHashAndPassword(usr.PassHash, []byte(password)); err != nil {
		return nil, errUnknownUser
	}
	return usr, nil
}

// loginOauth provisions the account on first social sign-in, like the real
// service does.
func (st *state) loginOauth(email string) *user {
	st.mu.Lock()
	defer st.mu.Unlock()

	if usr, ok := st.users[email]; ok {
		return usr
	}
	usr := &user{ID: validate.GenerateID(), Email: email}
	st.users[email] = usr
	return usr
}

func (st *state) userByID(id string) (*user, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, usr := range st.users {
		if usr.ID == id {
			return usr, true
		}
	}
	return nil, false
}

func (st *state) issueToken(token, userID string, expiresAt time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.tokens[token] = accessToken{UserID: userID, ExpiresAt: expiresAt}
}

func (st *state) revokeUserTokens(userID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for tok, info := range st.tokens {
		if info.UserID == userID {
			delete(st.tokens, tok)
		}
	}
}

func (st *state) userByToken(token string, now time.Time) (*user, error) {
	st.mu.Lock()
	info, ok := st.tokens[token]
	if ok && now.After(info.ExpiresAt) {
		delete(st.tokens, token)
		ok = false
	}
	st.mu.Unlock()

	if !ok {
		return nil, errTokenExpired
	}
	usr, found := st.userByID(info.UserID)
	if !found {
		return nil, errTokenExpired
	}
	return usr, nil
}

func (st *state) seedCatalog() {
	annapurna := catalog.Kitchen{
		ID: validate.GenerateID(), Name: "Annapurna Kitchen",
		Cuisine: "North Indian", Area: "Koramangala", Rating: 4.6, Active: true,
	}
	saravana := catalog.Kitchen{
		ID: validate.GenerateID(), Name: "Saravana Tiffins",
		Cuisine: "South Indian", Area: "Indiranagar", Rating: 4.4, Active: true,
	}

	quarterlyThali := 5200
	combos := []catalog.Combo{
		{
			ID: validate.GenerateID(), KitchenID: annapurna.ID, Name: "Veg Thali Lunch",
			Code:    catalog.Code{Label: "VTL-6D", MealType: "LUNCH", Pattern: "MON-SAT", DaysPerWeek: 6},
			Pricing: catalog.Pricing{Weekly: 500, Monthly: 1800, Quarterly: &quarterlyThali},
			Customization: catalog.Customization{Starch: true, Spice: true, Portion: true},
		},
		{
			ID: validate.GenerateID(), KitchenID: annapurna.ID, Name: "Roti Sabzi Dinner",
			Code:    catalog.Code{Label: "RSD-7D", MealType: "DINNER", Pattern: "ALL-WEEK", DaysPerWeek: 7},
			Pricing: catalog.Pricing{Weekly: 420, Monthly: 1500},
			Customization: catalog.Customization{Starch: true, Spice: true},
		},
		{
			ID: validate.GenerateID(), KitchenID: saravana.ID, Name: "Idli Dosa Breakfast",
			Code:    catalog.Code{Label: "IDB-6D", MealType: "BREAKFAST", Pattern: "MON-SAT", DaysPerWeek: 6},
			Pricing: catalog.Pricing{Weekly: 350, Monthly: 1250},
			Customization: catalog.Customization{Spice: true, Portion: true},
		},
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.kitchens = []catalog.Kitchen{annapurna, saravana}
	for _, cb := range combos {
		st.combos[cb.ID] = cb
	}
}
