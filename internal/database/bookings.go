package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"daimaescape/internal/models"
)

const bookingColumns = `id, reference, room_id, room_name, guest_name, guest_email, guest_phone,
	COALESCE(guest_address, ''), check_in, check_out, adults, children, COALESCE(special_requests, ''),
	price_per_night, nights, subtotal, tax_amount, discount_amount, total_amount,
	status, payment_status, COALESCE(payment_method, ''), reminder_sent,
	created_at, updated_at, checked_in_at, checked_out_at, version`

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanBooking(s rowScanner) (*models.Booking, error) {
	var (
		b                 models.Booking
		checkIn, checkOut string
		status, payStatus string
		payMethod         string
		checkedInAt       sql.NullTime
		checkedOutAt      sql.NullTime
	)
	if err := s.Scan(
		&b.ID, &b.Reference, &b.RoomID, &b.RoomName, &b.GuestName, &b.GuestEmail, &b.GuestPhone,
		&b.GuestAddress, &checkIn, &checkOut, &b.Adults, &b.Children, &b.SpecialRequests,
		&b.PricePerNight, &b.Nights, &b.Subtotal, &b.TaxAmount, &b.DiscountAmount, &b.TotalAmount,
		&status, &payStatus, &payMethod, &b.ReminderSent,
		&b.CreatedAt, &b.UpdatedAt, &checkedInAt, &checkedOutAt, &b.Version,
	); err != nil {
		return nil, err
	}

	var err error
	if b.CheckIn, err = models.ParseDate(checkIn); err != nil {
		return nil, fmt.Errorf("booking %d check_in: %w", b.ID, err)
	}
	if b.CheckOut, err = models.ParseDate(checkOut); err != nil {
		return nil, fmt.Errorf("booking %d check_out: %w", b.ID, err)
	}
	b.Status = models.BookingStatus(status)
	b.PaymentStatus = models.PaymentStatus(payStatus)
	b.PaymentMethod = models.PaymentMethod(payMethod)
	if checkedInAt.Valid {
		b.CheckedInAt = &checkedInAt.Time
	}
	if checkedOutAt.Valid {
		b.CheckedOutAt = &checkedOutAt.Time
	}
	return &b, nil
}

func queryBookings(ctx context.Context, q querier, query string, args ...any) ([]models.Booking, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func hasBlockingOverlap(ctx context.Context, q querier, roomID int64, checkIn, checkOut time.Time, excludeID int64) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE room_id = ?
			  AND id != ?
			  AND status IN ('confirmed', 'checked_in')
			  AND check_in < ? AND check_out > ?
		)`,
		roomID, excludeID, checkOut.Format(models.DateLayout), checkIn.Format(models.DateLayout),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check overlap: %w", err)
	}
	return exists, nil
}

// CreateBooking checks the room is free and inserts the booking in one
// immediate transaction. On success b.ID and b.Version are set.
func (db *DB) CreateBooking(ctx context.Context, b *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	busy, err := hasBlockingOverlap(ctx, tx, b.RoomID, b.CheckIn, b.CheckOut, 0)
	if err != nil {
		return err
	}
	if busy {
		return models.ErrRoomUnavailable
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO bookings (reference, room_id, room_name, guest_name, guest_email, guest_phone,
			guest_address, check_in, check_out, adults, children, special_requests,
			price_per_night, nights, subtotal, tax_amount, discount_amount, total_amount,
			status, payment_status, payment_method, reminder_sent, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, 1)`,
		b.Reference, b.RoomID, b.RoomName, b.GuestName, b.GuestEmail, b.GuestPhone,
		nullString(b.GuestAddress), b.CheckIn.Format(models.DateLayout), b.CheckOut.Format(models.DateLayout),
		b.Adults, b.Children, nullString(b.SpecialRequests),
		b.PricePerNight, b.Nights, b.Subtotal, b.TaxAmount, b.DiscountAmount, b.TotalAmount,
		string(b.Status), string(b.PaymentStatus), nullString(string(b.PaymentMethod)),
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapWriteError(err)
	}

	b.ID = id
	b.Version = 1
	return nil
}

// UpdateBookingStatus applies a transition and appends its history row in one
// transaction. Entering a blocking status re-checks the room.
func (db *DB) UpdateBookingStatus(ctx context.Context, ch models.StatusChange) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if ch.To.IsBlocking() && !ch.From.IsBlocking() {
		var (
			roomID            int64
			checkIn, checkOut string
		)
		err := tx.QueryRowContext(ctx, `SELECT room_id, check_in, check_out FROM bookings WHERE id = ?`, ch.BookingID).
			Scan(&roomID, &checkIn, &checkOut)
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrNotFound
		}
		if err != nil {
			return err
		}
		in, err := models.ParseDate(checkIn)
		if err != nil {
			return fmt.Errorf("parse check_in: %w", err)
		}
		out, err := models.ParseDate(checkOut)
		if err != nil {
			return fmt.Errorf("parse check_out: %w", err)
		}
		busy, err := hasBlockingOverlap(ctx, tx, roomID, in, out, ch.BookingID)
		if err != nil {
			return err
		}
		if busy {
			return models.ErrRoomUnavailable
		}
	}

	var checkedInAt, checkedOutAt any
	switch ch.To {
	case models.StatusCheckedIn:
		checkedInAt = ch.At
	case models.StatusCheckedOut:
		checkedOutAt = ch.At
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET status = ?,
			updated_at = ?,
			checked_in_at = COALESCE(?, checked_in_at),
			checked_out_at = COALESCE(?, checked_out_at),
			version = version + 1
		WHERE id = ? AND status = ? AND version = ?`,
		string(ch.To), ch.At, checkedInAt, checkedOutAt, ch.BookingID, string(ch.From), ch.Version,
	)
	if err != nil {
		return mapWriteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrConcurrentModification
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO booking_history (booking_id, status_from, status_to, changed_by, notes, changed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ch.BookingID, string(ch.From), string(ch.To), ch.Actor, nullString(ch.Notes), ch.At,
	); err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return mapWriteError(err)
	}
	return nil
}

// FindOverlapping returns the blocking bookings of a room that share a night with the stay.
func (db *DB) FindOverlapping(ctx context.Context, roomID int64, checkIn, checkOut time.Time) ([]models.Booking, error) {
	return queryBookings(ctx, db, `SELECT `+bookingColumns+` FROM bookings
		WHERE room_id = ?
		  AND status IN ('confirmed', 'checked_in')
		  AND check_in < ? AND check_out > ?
		ORDER BY check_in`,
		roomID, checkOut.Format(models.DateLayout), checkIn.Format(models.DateLayout))
}

// ReferenceExists reports whether a booking already uses ref.
func (db *DB) ReferenceExists(ctx context.Context, ref string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE reference = ?)`, ref).Scan(&exists)
	return exists, err
}

func (db *DB) GetBookingByReference(ctx context.Context, ref string) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE reference = ?`, ref)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", ref, models.ErrNotFound)
	}
	return b, err
}

// FindByReferenceAndEmail looks a booking up the way guests do, ignoring email case.
func (db *DB) FindByReferenceAndEmail(ctx context.Context, ref, email string) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE reference = ? AND LOWER(guest_email) = LOWER(?)`,
		strings.TrimSpace(ref), strings.TrimSpace(email))
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", ref, models.ErrNotFound)
	}
	return b, err
}

// ListBookings returns bookings for staff, newest stays first.
func (db *DB) ListBookings(ctx context.Context, f models.BookingFilter) ([]models.Booking, error) {
	var (
		where []string
		args  []any
	)
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if f.RoomID > 0 {
		where = append(where, "room_id = ?")
		args = append(args, f.RoomID)
	}
	if f.From != nil {
		where = append(where, "check_out > ?")
		args = append(args, f.From.Format(models.DateLayout))
	}
	if f.To != nil {
		where = append(where, "check_in < ?")
		args = append(args, f.To.Format(models.DateLayout))
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY check_in DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	return queryBookings(ctx, db, query, args...)
}

// ListHistory returns the status changes of a booking in the order they happened.
func (db *DB) ListHistory(ctx context.Context, bookingID int64) ([]models.BookingHistory, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, booking_id, status_from, status_to, changed_by, COALESCE(notes, ''), changed_at
		FROM booking_history
		WHERE booking_id = ?
		ORDER BY changed_at, id`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []models.BookingHistory
	for rows.Next() {
		var (
			h        models.BookingHistory
			from, to string
		)
		if err := rows.Scan(&h.ID, &h.BookingID, &from, &to, &h.ChangedBy, &h.Notes, &h.ChangedAt); err != nil {
			return nil, err
		}
		h.StatusFrom = models.BookingStatus(from)
		h.StatusTo = models.BookingStatus(to)
		history = append(history, h)
	}
	return history, rows.Err()
}

// GetUpcomingCheckIns returns confirmed, not yet reminded bookings checking in between from and to, inclusive.
func (db *DB) GetUpcomingCheckIns(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	return queryBookings(ctx, db, `SELECT `+bookingColumns+` FROM bookings
		WHERE status = 'confirmed'
		  AND reminder_sent = 0
		  AND check_in >= ? AND check_in <= ?
		ORDER BY check_in, id`,
		from.Format(models.DateLayout), to.Format(models.DateLayout))
}

func (db *DB) MarkReminderSent(ctx context.Context, bookingID int64) error {
	_, err := db.ExecContext(ctx, `UPDATE bookings SET reminder_sent = 1 WHERE id = ?`, bookingID)
	return err
}

// AnonymizedGuestName replaces the guest name of bookings past retention.
const AnonymizedGuestName = "Anonymized guest"

// AnonymizeOldBookings strips guest contact details from finished bookings
// whose stay ended before cutoff. The booking row, its history and its
// payments are kept. Already anonymized rows are not counted again.
func (db *DB) AnonymizeOldBookings(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE bookings
		SET guest_name = ?,
			guest_email = '',
			guest_phone = '',
			guest_address = NULL,
			special_requests = NULL
		WHERE status IN ('checked_out', 'cancelled', 'no_show')
		  AND check_out < ?
		  AND guest_email <> ''`,
		AnonymizedGuestName, cutoff.Format(models.DateLayout))
	if err != nil {
		return 0, fmt.Errorf("anonymize old bookings: %w", err)
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
