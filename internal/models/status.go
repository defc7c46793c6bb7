package models

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending    BookingStatus = "pending"
	StatusConfirmed  BookingStatus = "confirmed"
	StatusCheckedIn  BookingStatus = "checked_in"
	StatusCheckedOut BookingStatus = "checked_out"
	StatusCancelled  BookingStatus = "cancelled"
	StatusNoShow     BookingStatus = "no_show"
)

// PaymentStatus tracks how much of a booking has been paid.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPartial  PaymentStatus = "partial"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// BlockingStatuses hold the room against other bookings.
var BlockingStatuses = []BookingStatus{StatusConfirmed, StatusCheckedIn}

// transitions lists the allowed edges of the booking lifecycle.
var transitions = map[BookingStatus][]BookingStatus{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusCheckedIn:  {StatusCheckedOut},
	StatusCheckedOut: nil,
	StatusCancelled:  nil,
	StatusNoShow:     nil,
}

// Valid reports whether s is a known status.
func (s BookingStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsBlocking reports whether a booking in this status occupies the room.
func (s BookingStatus) IsBlocking() bool {
	for _, b := range BlockingStatuses {
		if s == b {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s BookingStatus) IsTerminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// CanTransition checks if the edge from -> to exists.
func CanTransition(from, to BookingStatus) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the statuses reachable from s in one step.
func NextStatuses(s BookingStatus) []BookingStatus {
	return append([]BookingStatus(nil), transitions[s]...)
}

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPartial, PaymentPaid, PaymentRefunded:
		return true
	}
	return false
}
