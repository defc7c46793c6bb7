package service

import (
	"context"
	"fmt"
	"strings"

	"daimaescape/internal/metrics"
	"daimaescape/internal/models"
	"daimaescape/internal/notify"

	"github.com/shopspring/decimal"
)

// DefaultGuestActor labels guest-initiated changes in the history.
const DefaultGuestActor = "Guest"

// CancelBooking is the guest cancellation. The booking is found by reference
// and email; it must still be pending or confirmed and check in after today.
func (s *BookingService) CancelBooking(ctx context.Context, ref, email, actor, reason string) (*models.Booking, error) {
	b, err := s.bookings.FindByReferenceAndEmail(ctx, ref, email)
	if err != nil {
		return nil, err
	}

	if !models.CanTransition(b.Status, models.StatusCancelled) {
		return nil, fmt.Errorf("%w: %s booking cannot be cancelled", models.ErrInvalidTransition, b.Status)
	}
	if !b.CanCancel(s.Today()) {
		return nil, models.ErrNotCancellable
	}

	if strings.TrimSpace(actor) == "" {
		actor = DefaultGuestActor
	}
	if err := s.apply(ctx, b, models.StatusCancelled, actor, reason); err != nil {
		return nil, err
	}

	s.notify(ctx, notify.KindBookingCancellation, b.GuestEmail, b, map[string]string{"reason": reason})
	s.notify(ctx, notify.KindStaffCancellation, "", b, map[string]string{"actor": actor, "reason": reason})
	return b, nil
}

// Transition applies a staff status change. Only the lifecycle edges are
// checked; there is no date precondition.
func (s *BookingService) Transition(ctx context.Context, ref string, to models.BookingStatus, actor, notes string) (*models.Booking, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrInvalidTransition, to)
	}

	b, err := s.bookings.GetBookingByReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(b.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, b.Status, to)
	}

	from := b.Status
	if strings.TrimSpace(actor) == "" {
		actor = "Staff"
	}
	if err := s.apply(ctx, b, to, actor, notes); err != nil {
		return nil, err
	}

	switch {
	case from == models.StatusPending && to == models.StatusConfirmed:
		s.notify(ctx, notify.KindBookingConfirmation, b.GuestEmail, b, nil)
	case to == models.StatusCancelled:
		s.notify(ctx, notify.KindBookingCancellation, b.GuestEmail, b, map[string]string{"reason": notes})
		s.notify(ctx, notify.KindStaffCancellation, "", b, map[string]string{"actor": actor, "reason": notes})
	}
	return b, nil
}

// apply stores one transition of b and updates b in place.
func (s *BookingService) apply(ctx context.Context, b *models.Booking, to models.BookingStatus, actor, notes string) error {
	now := s.opts.Now()
	ch := models.StatusChange{
		BookingID: b.ID,
		Version:   b.Version,
		From:      b.Status,
		To:        to,
		Actor:     actor,
		Notes:     strings.TrimSpace(notes),
		At:        now,
	}
	if err := s.bookings.UpdateBookingStatus(ctx, ch); err != nil {
		return err
	}

	metrics.IncTransition(string(ch.From), string(ch.To))
	s.logger.Info().
		Str("reference", b.Reference).
		Str("from", string(ch.From)).
		Str("to", string(ch.To)).
		Str("actor", actor).
		Msg("booking status changed")

	b.Status = to
	b.Version++
	b.UpdatedAt = now
	switch to {
	case models.StatusCheckedIn:
		b.CheckedInAt = &now
	case models.StatusCheckedOut:
		b.CheckedOutAt = &now
	}
	return nil
}

type PaymentInput struct {
	Amount        decimal.Decimal
	Method        models.PaymentMethod
	TransactionID string
	Notes         string
}

// RecordPayment appends a payment to the booking and returns it together with
// the recomputed payment status.
func (s *BookingService) RecordPayment(ctx context.Context, ref string, in PaymentInput) (*models.BookingPayment, models.PaymentStatus, error) {
	if !in.Amount.IsPositive() {
		return nil, "", fmt.Errorf("%w: payment amount must be positive", models.ErrInvalidInput)
	}
	if !in.Method.Valid() {
		return nil, "", fmt.Errorf("%w: unknown payment method %q", models.ErrInvalidInput, in.Method)
	}

	b, err := s.bookings.GetBookingByReference(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	switch {
	case b.Status == models.StatusCancelled, b.Status == models.StatusNoShow:
		return nil, "", fmt.Errorf("%w: cannot take payment for a %s booking", models.ErrInvalidTransition, b.Status)
	case b.PaymentStatus == models.PaymentRefunded:
		return nil, "", fmt.Errorf("%w: booking was refunded", models.ErrInvalidTransition)
	}

	p := &models.BookingPayment{
		BookingID:     b.ID,
		Amount:        in.Amount,
		Method:        in.Method,
		TransactionID: strings.TrimSpace(in.TransactionID),
		Notes:         strings.TrimSpace(in.Notes),
		PaidAt:        s.opts.Now(),
	}
	status, err := s.bookings.InsertPayment(ctx, p)
	if err != nil {
		return nil, "", err
	}

	metrics.IncPayment(string(p.Method))
	s.logger.Info().
		Str("reference", b.Reference).
		Str("amount", p.Amount.StringFixed(2)).
		Str("method", string(p.Method)).
		Str("payment_status", string(status)).
		Msg("payment recorded")
	return p, status, nil
}

// MarkRefunded flags the payments of a cancelled booking as refunded.
func (s *BookingService) MarkRefunded(ctx context.Context, ref, actor string) (*models.Booking, error) {
	b, err := s.bookings.GetBookingByReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if b.Status != models.StatusCancelled {
		return nil, fmt.Errorf("%w: only cancelled bookings can be refunded", models.ErrInvalidTransition)
	}
	if b.PaymentStatus == models.PaymentRefunded {
		return nil, fmt.Errorf("%w: booking is already refunded", models.ErrInvalidTransition)
	}

	payments, err := s.bookings.ListPayments(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, fmt.Errorf("%w: booking has no payments", models.ErrInvalidTransition)
	}

	now := s.opts.Now()
	if err := s.bookings.SetPaymentStatus(ctx, b.ID, models.PaymentRefunded, now); err != nil {
		return nil, err
	}
	b.PaymentStatus = models.PaymentRefunded
	b.UpdatedAt = now

	s.logger.Info().Str("reference", b.Reference).Str("actor", actor).Msg("booking refunded")
	return b, nil
}

// FindBooking is the guest lookup by reference and email.
func (s *BookingService) FindBooking(ctx context.Context, ref, email string) (*models.Booking, error) {
	return s.bookings.FindByReferenceAndEmail(ctx, ref, email)
}

func (s *BookingService) GetBooking(ctx context.Context, ref string) (*models.Booking, error) {
	return s.bookings.GetBookingByReference(ctx, strings.TrimSpace(ref))
}

func (s *BookingService) ListBookings(ctx context.Context, f models.BookingFilter) ([]models.Booking, error) {
	for _, st := range f.Statuses {
		if !st.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", models.ErrInvalidInput, st)
		}
	}
	return s.bookings.ListBookings(ctx, f)
}

// History returns the status changes of a booking, oldest first.
func (s *BookingService) History(ctx context.Context, ref string) ([]models.BookingHistory, error) {
	b, err := s.GetBooking(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.bookings.ListHistory(ctx, b.ID)
}

func (s *BookingService) Payments(ctx context.Context, ref string) ([]models.BookingPayment, decimal.Decimal, error) {
	b, err := s.GetBooking(ctx, ref)
	if err != nil {
		return nil, decimal.Zero, err
	}
	payments, err := s.bookings.ListPayments(ctx, b.ID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}
	return payments, paid, nil
}
