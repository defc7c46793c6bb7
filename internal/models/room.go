package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoomType is the villa category.
type RoomType string

const (
	RoomTypeOneBedroom RoomType = "one_bedroom"
	RoomTypeTwoBedroom RoomType = "two_bedroom"
	RoomTypeFamily     RoomType = "family"
)

// Valid reports whether t is one of the known room categories.
func (t RoomType) Valid() bool {
	switch t {
	case RoomTypeOneBedroom, RoomTypeTwoBedroom, RoomTypeFamily:
		return true
	}
	return false
}

// Label returns the display name of the room category.
func (t RoomType) Label() string {
	switch t {
	case RoomTypeOneBedroom:
		return "One Bedroom Villa"
	case RoomTypeTwoBedroom:
		return "Two Bedroom Villa"
	case RoomTypeFamily:
		return "Family Villa"
	}
	return string(t)
}

// Room is a bookable villa.
type Room struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Slug            string          `json:"slug"`
	Type            RoomType        `json:"room_type"`
	VillaCode       string          `json:"villa_code,omitempty"`
	Description     string          `json:"description,omitempty"`
	PricePerNight   decimal.Decimal `json:"price_per_night"`
	DiscountPercent int             `json:"discount_percent"`
	MaxGuests       int             `json:"max_guests"`
	Bedrooms        int             `json:"bedrooms"`
	BedType         string          `json:"bed_type,omitempty"`
	Amenities       []string        `json:"amenities,omitempty"`
	IsAvailable     bool            `json:"is_available"`
	IsFeatured      bool            `json:"is_featured"`
	Rating          decimal.Decimal `json:"rating"`
	Images          []RoomImage     `json:"images,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// RoomImage is a gallery picture of a room.
type RoomImage struct {
	URL       string `json:"url"`
	Caption   string `json:"caption,omitempty"`
	IsPrimary bool   `json:"is_primary"`
	SortOrder int    `json:"sort_order"`
}

var hundred = decimal.NewFromInt(100)

// DiscountedPrice applies the room's discount percentage to the nightly price.
func (r *Room) DiscountedPrice() decimal.Decimal {
	if r.DiscountPercent <= 0 {
		return r.PricePerNight
	}
	factor := hundred.Sub(decimal.NewFromInt(int64(r.DiscountPercent))).Div(hundred)
	return r.PricePerNight.Mul(factor).Round(2)
}

// HasDiscount reports whether a discount applies to the room.
func (r *Room) HasDiscount() bool {
	return r.DiscountPercent > 0
}

// MainImageURL returns the primary image, else the first one.
func (r *Room) MainImageURL() string {
	for _, img := range r.Images {
		if img.IsPrimary {
			return img.URL
		}
	}
	if len(r.Images) > 0 {
		return r.Images[0].URL
	}
	return ""
}

// Fits reports whether a party of the given size fits the room.
func (r *Room) Fits(partySize int) bool {
	return partySize <= r.MaxGuests
}

// RoomFilter narrows room listings.
type RoomFilter struct {
	Type        RoomType
	Search      string
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
	OnlyEnabled bool
}

// AvailableRoomFilter selects rooms free for a stay.
type AvailableRoomFilter struct {
	CheckIn   time.Time
	CheckOut  time.Time
	PartySize int
}
