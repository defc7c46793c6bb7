// Package pricing computes the monetary breakdown of a stay.
package pricing

import (
	"errors"
	"time"

	"daimaescape/internal/models"

	"github.com/shopspring/decimal"
)

// DefaultTaxRate is the VAT applied to every stay.
var DefaultTaxRate = decimal.RequireFromString("0.18")

// Warning is a non-fatal condition raised while pricing.
type Warning string

const (
	// WarningDiscountExceedsTotal means the discount was larger than subtotal + tax
	// and the total was clamped to zero.
	WarningDiscountExceedsTotal Warning = "discount_exceeds_total"
)

var (
	ErrNegativePrice    = errors.New("price per night cannot be negative")
	ErrNegativeDiscount = errors.New("discount amount cannot be negative")
	ErrNegativeTaxRate  = errors.New("tax rate cannot be negative")
)

// Draft holds everything needed to price a stay.
type Draft struct {
	PricePerNight decimal.Decimal
	CheckIn       time.Time
	CheckOut      time.Time
	TaxRate       decimal.Decimal
	Discount      decimal.Decimal
}

// Breakdown is the derived monetary summary of a stay.
type Breakdown struct {
	Nights         int             `json:"nights"`
	PricePerNight  decimal.Decimal `json:"price_per_night"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Warnings       []Warning       `json:"warnings,omitempty"`
}

// HasWarning reports whether w was raised.
func (b Breakdown) HasWarning(w Warning) bool {
	for _, got := range b.Warnings {
		if got == w {
			return true
		}
	}
	return false
}

// Nights counts calendar nights between two stay dates.
func Nights(checkIn, checkOut time.Time) int {
	in := models.DateOnly(checkIn)
	out := models.DateOnly(checkOut)
	return int(out.Sub(in).Hours() / 24)
}

// DeriveTotals computes nights, subtotal, tax and total for a draft.
// It has no side effects and does not consult storage.
func DeriveTotals(d Draft) (Breakdown, error) {
	nights := Nights(d.CheckIn, d.CheckOut)
	if nights < 1 {
		return Breakdown{}, models.ErrInvalidDateRange
	}
	if d.PricePerNight.IsNegative() {
		return Breakdown{}, ErrNegativePrice
	}
	if d.Discount.IsNegative() {
		return Breakdown{}, ErrNegativeDiscount
	}
	if d.TaxRate.IsNegative() {
		return Breakdown{}, ErrNegativeTaxRate
	}

	subtotal := d.PricePerNight.Mul(decimal.NewFromInt(int64(nights)))
	tax := subtotal.Mul(d.TaxRate).Round(2)
	gross := subtotal.Add(tax)

	b := Breakdown{
		Nights:         nights,
		PricePerNight:  d.PricePerNight,
		Subtotal:       subtotal,
		TaxRate:        d.TaxRate,
		TaxAmount:      tax,
		DiscountAmount: d.Discount,
		TotalAmount:    gross.Sub(d.Discount),
	}
	if d.Discount.GreaterThan(gross) {
		b.TotalAmount = decimal.Zero
		b.Warnings = append(b.Warnings, WarningDiscountExceedsTotal)
	}
	return b, nil
}

// PriceStay prices a stay in room at the room's current nightly rate.
func PriceStay(room *models.Room, checkIn, checkOut time.Time, taxRate, discount decimal.Decimal) (Breakdown, error) {
	return DeriveTotals(Draft{
		PricePerNight: room.PricePerNight,
		CheckIn:       checkIn,
		CheckOut:      checkOut,
		TaxRate:       taxRate,
		Discount:      discount,
	})
}

// Apply copies a breakdown onto a booking as its price snapshot.
func (b Breakdown) Apply(booking *models.Booking) {
	booking.PricePerNight = b.PricePerNight
	booking.Nights = b.Nights
	booking.Subtotal = b.Subtotal
	booking.TaxAmount = b.TaxAmount
	booking.DiscountAmount = b.DiscountAmount
	booking.TotalAmount = b.TotalAmount
}
