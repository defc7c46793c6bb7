// Package service implements the booking engine: availability, pricing and
// the booking lifecycle on top of the room and booking repositories.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"daimaescape/internal/metrics"
	"daimaescape/internal/models"
	"daimaescape/internal/notify"
	"daimaescape/internal/pricing"
	"daimaescape/internal/reference"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type RoomRepository interface {
	GetRoom(ctx context.Context, id int64) (*models.Room, error)
	GetRoomBySlug(ctx context.Context, slug string) (*models.Room, error)
	ListRooms(ctx context.Context, f models.RoomFilter) ([]models.Room, error)
	ListAvailableRooms(ctx context.Context, f models.AvailableRoomFilter) ([]models.Room, error)
	SimilarRooms(ctx context.Context, room *models.Room, limit int) ([]models.Room, error)
	FeaturedRooms(ctx context.Context, limit int) ([]models.Room, error)
}

type BookingRepository interface {
	FindOverlapping(ctx context.Context, roomID int64, checkIn, checkOut time.Time) ([]models.Booking, error)
	ReferenceExists(ctx context.Context, ref string) (bool, error)
	CreateBooking(ctx context.Context, b *models.Booking) error
	UpdateBookingStatus(ctx context.Context, ch models.StatusChange) error
	GetBookingByReference(ctx context.Context, ref string) (*models.Booking, error)
	FindByReferenceAndEmail(ctx context.Context, ref, email string) (*models.Booking, error)
	ListBookings(ctx context.Context, f models.BookingFilter) ([]models.Booking, error)
	ListHistory(ctx context.Context, bookingID int64) ([]models.BookingHistory, error)
	InsertPayment(ctx context.Context, p *models.BookingPayment) (models.PaymentStatus, error)
	ListPayments(ctx context.Context, bookingID int64) ([]models.BookingPayment, error)
	SetPaymentStatus(ctx context.Context, bookingID int64, status models.PaymentStatus, at time.Time) error
}

// Options is the booking policy.
type Options struct {
	TaxRate        decimal.Decimal // applied as given, zero disables VAT
	AutoConfirm    bool
	Location       *time.Location
	MinAdults      int
	MaxAdults      int
	MaxChildren    int
	MaxAdvanceDays int
	Now            func() time.Time
}

func (o *Options) applyDefaults() {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.MinAdults <= 0 {
		o.MinAdults = 1
	}
	if o.MaxAdults <= 0 {
		o.MaxAdults = 10
	}
	if o.MaxChildren < 0 {
		o.MaxChildren = 0
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type BookingService struct {
	rooms    RoomRepository
	bookings BookingRepository
	notifier notify.Notifier
	refs     *reference.Generator
	opts     Options
	logger   zerolog.Logger
}

func NewBookingService(
	rooms RoomRepository,
	bookings BookingRepository,
	notifier notify.Notifier,
	refs *reference.Generator,
	opts Options,
	logger *zerolog.Logger,
) *BookingService {
	opts.applyDefaults()
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if refs == nil {
		refs = reference.NewGenerator(reference.DefaultMaxAttempts, opts.Location)
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "booking").Logger()
	}
	return &BookingService{
		rooms:    rooms,
		bookings: bookings,
		notifier: notifier,
		refs:     refs,
		opts:     opts,
		logger:   l,
	}
}

// Today is the current calendar day in the business timezone.
func (s *BookingService) Today() time.Time {
	return models.DateOnly(s.opts.Now().In(s.opts.Location))
}

// TaxRate is the VAT rate applied to new bookings.
func (s *BookingService) TaxRate() decimal.Decimal {
	return s.opts.TaxRate
}

// ValidateStay checks a requested date range against today and the advance window.
func (s *BookingService) ValidateStay(checkIn, checkOut time.Time) error {
	in, out := models.DateOnly(checkIn), models.DateOnly(checkOut)
	if !out.After(in) {
		return models.ErrInvalidDateRange
	}
	today := s.Today()
	if in.Before(today) {
		return models.ErrDateInPast
	}
	if n := s.opts.MaxAdvanceDays; n > 0 && in.After(today.AddDate(0, 0, n)) {
		return fmt.Errorf("%w: check-in is more than %d days ahead", models.ErrInvalidInput, n)
	}
	return nil
}

type AvailabilityQuery struct {
	RoomID    int64
	CheckIn   time.Time
	CheckOut  time.Time
	PartySize int // 0 skips the capacity check
}

type Availability struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// CheckAvailability reports whether the room is free for the whole stay.
// It has no side effects.
func (s *BookingService) CheckAvailability(ctx context.Context, q AvailabilityQuery) (Availability, error) {
	if err := s.ValidateStay(q.CheckIn, q.CheckOut); err != nil {
		return Availability{}, err
	}

	room, err := s.rooms.GetRoom(ctx, q.RoomID)
	if err != nil {
		return Availability{}, err
	}
	if q.PartySize > 0 && !room.Fits(q.PartySize) {
		return Availability{}, models.ErrCapacityExceeded
	}
	if !room.IsAvailable {
		return Availability{Available: false, Reason: models.ErrorCode(models.ErrRoomUnavailable)}, nil
	}

	overlapping, err := s.bookings.FindOverlapping(ctx, room.ID, models.DateOnly(q.CheckIn), models.DateOnly(q.CheckOut))
	if err != nil {
		return Availability{}, fmt.Errorf("find overlapping bookings: %w", err)
	}
	if len(overlapping) > 0 {
		return Availability{Available: false, Reason: models.ErrorCode(models.ErrRoomUnavailable)}, nil
	}
	return Availability{Available: true}, nil
}

// AvailableRooms lists enabled rooms that fit the party and are free for the stay.
func (s *BookingService) AvailableRooms(ctx context.Context, checkIn, checkOut time.Time, partySize int) ([]models.Room, error) {
	if err := s.ValidateStay(checkIn, checkOut); err != nil {
		return nil, err
	}
	return s.rooms.ListAvailableRooms(ctx, models.AvailableRoomFilter{
		CheckIn:   models.DateOnly(checkIn),
		CheckOut:  models.DateOnly(checkOut),
		PartySize: partySize,
	})
}

// PriceStay quotes a stay at the room's current nightly rate.
func (s *BookingService) PriceStay(ctx context.Context, roomID int64, checkIn, checkOut time.Time, discount decimal.Decimal) (pricing.Breakdown, error) {
	if err := s.ValidateStay(checkIn, checkOut); err != nil {
		return pricing.Breakdown{}, err
	}
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return pricing.Breakdown{}, err
	}
	b, err := pricing.PriceStay(room, checkIn, checkOut, s.opts.TaxRate, discount)
	if err != nil {
		return pricing.Breakdown{}, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	return b, nil
}

// Draft is a guest booking submission.
type Draft struct {
	RoomID          int64
	GuestName       string
	GuestEmail      string
	GuestPhone      string
	GuestAddress    string
	CheckIn         time.Time
	CheckOut        time.Time
	Adults          int
	Children        int
	SpecialRequests string
	Discount        decimal.Decimal
}

func (s *BookingService) validateDraft(d *Draft) error {
	d.GuestName = strings.TrimSpace(d.GuestName)
	d.GuestEmail = strings.TrimSpace(d.GuestEmail)
	d.GuestPhone = strings.TrimSpace(d.GuestPhone)

	switch {
	case d.GuestName == "":
		return fmt.Errorf("%w: guest name is required", models.ErrInvalidInput)
	case d.GuestEmail == "" || !strings.Contains(d.GuestEmail, "@"):
		return fmt.Errorf("%w: a valid email is required", models.ErrInvalidInput)
	case d.GuestPhone == "":
		return fmt.Errorf("%w: phone number is required", models.ErrInvalidInput)
	case d.Adults < s.opts.MinAdults || d.Adults > s.opts.MaxAdults:
		return fmt.Errorf("%w: adults must be between %d and %d", models.ErrInvalidInput, s.opts.MinAdults, s.opts.MaxAdults)
	case d.Children < 0 || d.Children > s.opts.MaxChildren:
		return fmt.Errorf("%w: children must be between 0 and %d", models.ErrInvalidInput, s.opts.MaxChildren)
	case d.Discount.IsNegative():
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, pricing.ErrNegativeDiscount)
	}
	return s.ValidateStay(d.CheckIn, d.CheckOut)
}

// CreateBooking validates, prices and stores a booking, then queues the
// guest confirmation and the staff notice. Notification failures never fail
// the booking.
func (s *BookingService) CreateBooking(ctx context.Context, d Draft) (*models.Booking, []pricing.Warning, error) {
	if err := s.validateDraft(&d); err != nil {
		return nil, nil, s.reject(err)
	}

	room, err := s.rooms.GetRoom(ctx, d.RoomID)
	if err != nil {
		return nil, nil, s.reject(err)
	}
	if !room.IsAvailable {
		return nil, nil, s.reject(models.ErrRoomUnavailable)
	}
	if !room.Fits(d.Adults + d.Children) {
		return nil, nil, s.reject(models.ErrCapacityExceeded)
	}

	breakdown, err := pricing.PriceStay(room, d.CheckIn, d.CheckOut, s.opts.TaxRate, d.Discount)
	if err != nil {
		return nil, nil, s.reject(fmt.Errorf("%w: %v", models.ErrInvalidInput, err))
	}

	now := s.opts.Now()
	status := models.StatusPending
	if s.opts.AutoConfirm {
		status = models.StatusConfirmed
	}

	b := &models.Booking{
		RoomID:          room.ID,
		RoomName:        room.Name,
		GuestName:       d.GuestName,
		GuestEmail:      d.GuestEmail,
		GuestPhone:      d.GuestPhone,
		GuestAddress:    strings.TrimSpace(d.GuestAddress),
		CheckIn:         models.DateOnly(d.CheckIn),
		CheckOut:        models.DateOnly(d.CheckOut),
		Adults:          d.Adults,
		Children:        d.Children,
		SpecialRequests: strings.TrimSpace(d.SpecialRequests),
		Status:          status,
		PaymentStatus:   models.PaymentPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	breakdown.Apply(b)

	if err := s.insert(ctx, b, now); err != nil {
		return nil, nil, s.reject(err)
	}

	metrics.IncBookingCreated(string(b.Status))
	s.logger.Info().
		Str("reference", b.Reference).
		Int64("room_id", b.RoomID).
		Str("check_in", b.CheckIn.Format(models.DateLayout)).
		Str("check_out", b.CheckOut.Format(models.DateLayout)).
		Str("status", string(b.Status)).
		Str("total", b.TotalAmount.StringFixed(2)).
		Msg("booking created")
	if len(breakdown.Warnings) > 0 {
		s.logger.Warn().Str("reference", b.Reference).Interface("warnings", breakdown.Warnings).Msg("booking priced with warnings")
	}

	s.notify(ctx, notify.KindBookingConfirmation, b.GuestEmail, b, nil)
	s.notify(ctx, notify.KindStaffNewBooking, "", b, nil)

	return b, breakdown.Warnings, nil
}

// insert draws a reference and stores b. A storage overlap rejection is
// retried once; a reference clash draws a fresh reference once.
func (s *BookingService) insert(ctx context.Context, b *models.Booking, now time.Time) error {
	overlapRetried, refRetried := false, false
	for {
		ref, err := s.refs.Generate(ctx, now, s.bookings.ReferenceExists)
		if err != nil {
			return err
		}
		b.Reference = ref

		err = s.bookings.CreateBooking(ctx, b)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, models.ErrOverlapConstraint) && !overlapRetried:
			overlapRetried = true
			metrics.IncOverlapBackstop()
			s.logger.Warn().Int64("room_id", b.RoomID).Msg("overlap guard rejected insert, retrying")
		case errors.Is(err, models.ErrDuplicateReference) && !refRetried:
			refRetried = true
			s.logger.Warn().Str("reference", ref).Msg("reference taken concurrently, drawing another")
		case errors.Is(err, models.ErrDuplicateReference):
			return fmt.Errorf("%w: %v", models.ErrReferenceGenerationExhausted, err)
		default:
			return err
		}
	}
}

func (s *BookingService) reject(err error) error {
	metrics.IncBookingRejected(models.ErrorCode(err))
	s.logger.Debug().Err(err).Msg("booking rejected")
	return err
}

func (s *BookingService) notify(ctx context.Context, kind notify.Kind, recipient string, b *models.Booking, extra map[string]string) {
	msg := notify.Message{Kind: kind, Recipient: recipient, Booking: *b, Extra: extra}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logger.Warn().Err(err).Str("kind", string(kind)).Str("reference", b.Reference).Msg("notification not queued")
	}
}
