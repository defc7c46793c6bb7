package reminders

import (
	"context"
	"time"

	"daimaescape/internal/models"
)

// BookingStore provides access to bookings for the reminder service.
type BookingStore interface {
	// GetUpcomingCheckIns returns confirmed bookings checking in between
	// from and to (inclusive) that have not been reminded yet.
	GetUpcomingCheckIns(ctx context.Context, from, to time.Time) ([]models.Booking, error)

	// MarkReminderSent marks a booking as having had its reminder sent.
	MarkReminderSent(ctx context.Context, bookingID int64) error
}

// Notifier delivers one reminder to the guest and waits for the result.
type Notifier interface {
	SendReminder(ctx context.Context, booking models.Booking) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, booking models.Booking) error

func (f NotifierFunc) SendReminder(ctx context.Context, booking models.Booking) error {
	return f(ctx, booking)
}

// Logger interface for logging.
type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Debug(string, ...interface{}) {}
