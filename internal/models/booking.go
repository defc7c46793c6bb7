package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage format of stay dates.
const DateLayout = "2006-01-02"

// Booking is a reservation of one room for a contiguous range of nights.
type Booking struct {
	ID              int64           `json:"id"`
	Reference       string          `json:"booking_reference"`
	RoomID          int64           `json:"room_id"`
	RoomName        string          `json:"room_name"`
	GuestName       string          `json:"guest_name"`
	GuestEmail      string          `json:"guest_email"`
	GuestPhone      string          `json:"guest_phone"`
	GuestAddress    string          `json:"guest_address,omitempty"`
	CheckIn         time.Time       `json:"check_in_date"`
	CheckOut        time.Time       `json:"check_out_date"` // exclusive
	Adults          int             `json:"adults"`
	Children        int             `json:"children"`
	SpecialRequests string          `json:"special_requests,omitempty"`
	PricePerNight   decimal.Decimal `json:"price_per_night"`
	Nights          int             `json:"total_nights"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          BookingStatus   `json:"status"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	PaymentMethod   PaymentMethod   `json:"payment_method,omitempty"`
	ReminderSent    bool            `json:"reminder_sent"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	CheckedInAt     *time.Time      `json:"checked_in_at,omitempty"`
	CheckedOutAt    *time.Time      `json:"checked_out_at,omitempty"`
	Version         int64           `json:"version"`
}

// PartySize is the number of guests staying.
func (b *Booking) PartySize() int {
	return b.Adults + b.Children
}

// IsActive reports whether the booking currently holds its room.
func (b *Booking) IsActive() bool {
	return b.Status.IsBlocking()
}

// Overlaps checks whether the stay intersects [checkIn, checkOut).
// Both ranges are half-open, so a check-out day may be another stay's check-in day.
func (b *Booking) Overlaps(checkIn, checkOut time.Time) bool {
	return b.CheckIn.Before(checkOut) && b.CheckOut.After(checkIn)
}

// CanCancel reports whether a guest may cancel the booking on the given day.
func (b *Booking) CanCancel(today time.Time) bool {
	if b.Status != StatusPending && b.Status != StatusConfirmed {
		return false
	}
	return b.CheckIn.After(DateOnly(today))
}

// BookingHistory is one append-only status change record.
type BookingHistory struct {
	ID         int64         `json:"id"`
	BookingID  int64         `json:"booking_id"`
	StatusFrom BookingStatus `json:"status_from"`
	StatusTo   BookingStatus `json:"status_to"`
	ChangedBy  string        `json:"changed_by"`
	Notes      string        `json:"notes,omitempty"`
	ChangedAt  time.Time     `json:"changed_at"`
}

// BookingFilter narrows staff booking listings.
type BookingFilter struct {
	Statuses []BookingStatus
	RoomID   int64
	From     *time.Time // stays ending after From
	To       *time.Time // stays starting before To
	Limit    int
}

// DateOnly truncates t to its calendar day in t's location and returns it as midnight UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD stay date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// StatusChange describes one lifecycle transition of a booking.
// Version is the booking version the caller read; a stale version loses.
type StatusChange struct {
	BookingID int64
	Version   int64
	From      BookingStatus
	To        BookingStatus
	Actor     string
	Notes     string
	At        time.Time
}
