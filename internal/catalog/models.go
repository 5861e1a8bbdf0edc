package catalog

import (
	"time"

	"github.com/ariefcatur/go-rescue-bags/internal/geo"
)

type BagSize string

const (
	SizeSmall  BagSize = "small"
	SizeMedium BagSize = "medium"
	SizeLarge  BagSize = "large"
)

type Restaurant struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	AddressLine  string          `json:"address_line"`
	City         string          `json:"city"`
	PostalCode   string          `json:"postal_code"`
	Location     geo.Coordinates `json:"location"`
	CuisineTypes []string        `json:"cuisine_types"`
	Verified     bool            `json:"verified"`
	IsActive     bool            `json:"is_active"`
	Bags         []Bag           `json:"bags"`
}

// Bag is a rescue bag listing. QuantityAvailable never goes below zero and
// DiscountedPriceCents never exceeds OriginalPriceCents.
type Bag struct {
	ID                   string    `json:"id"`
	RestaurantID         string    `json:"restaurant_id"`
	Title                string    `json:"title"`
	Size                 BagSize   `json:"size"`
	OriginalPriceCents   int       `json:"original_price_cents"`
	DiscountedPriceCents int       `json:"discounted_price_cents"`
	QuantityAvailable    int       `json:"quantity_available"`
	PickupStart          time.Time `json:"pickup_start_time"`
	PickupEnd            time.Time `json:"pickup_end_time"`
	IsActive             bool      `json:"is_active"`
}

func (b Bag) Available() bool { return b.IsActive && b.QuantityAvailable > 0 }
