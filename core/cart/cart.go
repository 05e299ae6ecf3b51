package cart

import (
	"errors"
	"time"
)

// ErrNoCart is returned by cart-scoped operations when nothing is loaded.
var ErrNoCart = errors.New("no active cart")

type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusCheckedOut Status = "CHECKED_OUT"
	StatusExpired    Status = "EXPIRED"
	StatusAbandoned  Status = "ABANDONED"
)

type DurationType string

const (
	Weekly    DurationType = "WEEKLY"
	Monthly   DurationType = "MONTHLY"
	Quarterly DurationType = "QUARTERLY"
)

// Cart mirrors the server's cart object. The four monetary fields are
// computed by the backend and must never be recomputed on this side.
type Cart struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	KitchenID  string    `json:"kitchenId"`
	Status     Status    `json:"status"`
	Items      []Item    `json:"items"`
	Subtotal   int       `json:"subtotal"`
	Discount   int       `json:"discount"`
	Tax        int       `json:"taxes"`
	Total      int       `json:"finalTotal"`
	CouponCode string    `json:"couponCode,omitempty"`
	Address    string    `json:"deliveryAddress,omitempty"`
	Pincode    string    `json:"pincode,omitempty"`
	ExpiresAt  time.Time `json:"expiresAt"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type Item struct {
	ID            string       `json:"id"`
	ComboID       string       `json:"comboId"`
	KitchenID     string       `json:"kitchenId"`
	ComboName     string       `json:"comboName"`
	DurationType  DurationType `json:"durationType"`
	DurationValue int          `json:"durationValue"`
	UnitPrice     int          `json:"unitPrice"`
	TotalPrice    int          `json:"totalPrice"`
	StartDate     time.Time    `json:"startDate"`
	EndDate       time.Time    `json:"endDate"`
	Preferences   Preferences  `json:"preferences"`
}

// Preferences are only honored by the backend when the combo's
// customization flags permit them.
type Preferences struct {
	Starch  string `json:"starch,omitempty"`
	Spice   string `json:"spice,omitempty"`
	Portion string `json:"portion,omitempty"`
}

type AddItemParams struct {
	KitchenID     string       `json:"kitchenId" validate:"required"`
	ComboID       string       `json:"comboId" validate:"required"`
	DurationType  DurationType `json:"durationType" validate:"required,oneof=WEEKLY MONTHLY QUARTERLY"`
	DurationValue int          `json:"durationValue" validate:"required,gte=1"`
	StartDate     time.Time    `json:"startDate"`
	Preferences   Preferences  `json:"preferences"`
}

type CouponUp struct {
	Code string `json:"code" validate:"required"`
}

type AddressUp struct {
	Address string `json:"deliveryAddress" validate:"required"`
	Pincode string `json:"pincode" validate:"required,len=6,numeric"`
}

type ItemUp struct {
	DurationValue int `json:"durationValue" validate:"required,gte=1"`
}

// Summary is the read-only checkout projection returned by the backend.
type Summary struct {
	Cart             Cart       `json:"cart"`
	Breakdown        []ItemDays `json:"breakdown"`
	ReadyForCheckout bool       `json:"readyForCheckout"`
	RemainingSeconds int        `json:"remainingSeconds"`
}

type ItemDays struct {
	ItemID      string `json:"itemId"`
	ComboName   string `json:"comboName"`
	Pattern     string `json:"pattern"`
	MealType    string `json:"mealType"`
	DaysPerWeek int    `json:"daysPerWeek"`
	TotalDays   int    `json:"totalDays"`
}

// Gone reports whether the server payload describes a cart the user can no
// longer shop with. Terminal statuses and item-less carts both count.
func (c *Cart) Gone() bool {
	return c == nil || c.Status != StatusActive || len(c.Items) == 0
}
