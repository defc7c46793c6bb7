// Package notify delivers guest emails and staff notices outside the request path.
package notify

import (
	"context"
	"errors"
	"time"

	"daimaescape/internal/models"
)

// Kind selects the template and channel of a notification.
type Kind string

const (
	KindBookingConfirmation Kind = "booking_confirmation"
	KindBookingCancellation Kind = "booking_cancellation"
	KindCheckInReminder     Kind = "checkin_reminder"
	KindStaffNewBooking     Kind = "staff_new_booking"
	KindStaffCancellation   Kind = "staff_cancellation"
)

// IsStaff reports whether the kind is addressed to staff rather than the guest.
func (k Kind) IsStaff() bool {
	return k == KindStaffNewBooking || k == KindStaffCancellation
}

// Message is one notification. Recipient is the guest email for guest kinds
// and ignored for staff kinds.
type Message struct {
	ID        string
	Kind      Kind
	Recipient string
	Booking   models.Booking
	Extra     map[string]string
}

// Notifier accepts notifications without waiting for delivery.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Sender delivers a message over one channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Channel() string
}

// Failure describes a notification that was not delivered.
type Failure struct {
	Message Message
	Channel string
	Err     error
	At      time.Time
}

var (
	ErrQueueFull   = errors.New("notification queue is full")
	ErrClosed      = errors.New("notifier is closed")
	ErrNoRecipient = errors.New("notification has no recipient")
	ErrNoChannel   = errors.New("no channel configured for notification kind")
)

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(context.Context, Message) error { return nil }
