package catalog

import (
	"context"
	"fmt"

	"github.com/sandeepmhskr/tiffinbox/client"
	"github.com/sandeepmhskr/tiffinbox/core/cart"
)

type Kitchen struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Cuisine string  `json:"cuisine"`
	Area    string  `json:"area"`
	Rating  float64 `json:"rating"`
	Active  bool    `json:"active"`
}

// Combo is a catalog-defined subscription meal plan template. It is
// reference data: the client reads it to present duration options but never
// mutates it.
type Combo struct {
	ID            string        `json:"id"`
	KitchenID     string        `json:"kitchenId"`
	Name          string        `json:"name"`
	Code          Code          `json:"code"`
	Pricing       Pricing       `json:"pricing"`
	Customization Customization `json:"customization"`
}

// Code is the combo's system descriptor (meal pattern and cadence).
type Code struct {
	Label       string `json:"label"`
	MealType    string `json:"mealType"`
	Pattern     string `json:"pattern"`
	DaysPerWeek int    `json:"daysPerWeek"`
}

// Pricing holds the per-duration unit prices. Quarterly is optional; combos
// without a quarterly tier leave it nil.
type Pricing struct {
	Weekly    int  `json:"weekly"`
	Monthly   int  `json:"monthly"`
	Quarterly *int `json:"quarterly,omitempty"`
}

// Customization flags gate which preferences the backend will honor for
// items of this combo.
type Customization struct {
	Starch  bool `json:"starch"`
	Spice   bool `json:"spice"`
	Portion bool `json:"portion"`
}

func ListKitchens(ctx context.Context, c *client.Client) ([]Kitchen, error) {
	var ks []Kitchen
	if err := c.Get(ctx, "/api/kitchens", &ks); err != nil {
		return nil, fmt.Errorf("listing kitchens: %w", err)
	}
	return ks, nil
}

func ListCombos(ctx context.Context, c *client.Client, kitchenID string) ([]Combo, error) {
	var cs []Combo
	if err := c.Get(ctx, "/api/kitchens/"+kitchenID+"/combos", &cs); err != nil {
		return nil, fmt.Errorf("listing combos for kitchen[%s]: %w", kitchenID, err)
	}
	return cs, nil
}

// PriceOption is one selectable duration tier, with the saving against the
// weekly rate for the same coverage. Display data only: item totals are
// always the backend's.
type PriceOption struct {
	DurationType cart.DurationType
	UnitPrice    int
	SavingsPct   int
}

const (
	weeksPerMonth   = 4
	weeksPerQuarter = 12
)

// PriceOptions derives the ordered duration tiers of a combo. The quarterly
// tier is omitted when the combo has no quarterly price.
func PriceOptions(cb Combo) []PriceOption {
	opts := []PriceOption{
		{DurationType: cart.Weekly, UnitPrice: cb.Pricing.Weekly},
		{
			DurationType: cart.Monthly,
			UnitPrice:    cb.Pricing.Monthly,
			SavingsPct:   savingsPct(cb.Pricing.Weekly*weeksPerMonth, cb.Pricing.Monthly),
		},
	}

	if q := cb.Pricing.Quarterly; q != nil {
		opts = append(opts, PriceOption{
			DurationType: cart.Quarterly,
			UnitPrice:    *q,
			SavingsPct:   savingsPct(cb.Pricing.Weekly*weeksPerQuarter, *q),
		})
	}
	return opts
}

func savingsPct(base, offered int) int {
	if base <= 0 || offered >= base {
		return 0
	}
	return (base - offered) * 100 / base
}
