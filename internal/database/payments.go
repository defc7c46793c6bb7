package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"daimaescape/internal/models"

	"github.com/shopspring/decimal"
)

// InsertPayment appends a payment and recomputes the booking's payment
// status in the same transaction. It returns the new status.
func (db *DB) InsertPayment(ctx context.Context, p *models.BookingPayment) (models.PaymentStatus, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total decimal.Decimal
	err = tx.QueryRowContext(ctx, `SELECT total_amount FROM bookings WHERE id = ?`, p.BookingID).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("booking %d: %w", p.BookingID, models.ErrNotFound)
	}
	if err != nil {
		return "", err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO booking_payments (booking_id, amount, payment_method, transaction_id, notes, paid_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.BookingID, p.Amount, string(p.Method), nullString(p.TransactionID), nullString(p.Notes), p.PaidAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert payment: %w", err)
	}
	if p.ID, err = res.LastInsertId(); err != nil {
		return "", err
	}

	payments, err := listPayments(ctx, tx, p.BookingID)
	if err != nil {
		return "", err
	}
	status := models.PaymentStatusFor(total, SumPayments(payments))

	if _, err := tx.ExecContext(ctx, `
		UPDATE bookings SET payment_status = ?, payment_method = ?, updated_at = ? WHERE id = ?`,
		string(status), string(p.Method), p.PaidAt, p.BookingID,
	); err != nil {
		return "", fmt.Errorf("update payment status: %w", err)
	}

	return status, tx.Commit()
}

// ListPayments returns the payments of a booking, oldest first.
func (db *DB) ListPayments(ctx context.Context, bookingID int64) ([]models.BookingPayment, error) {
	return listPayments(ctx, db, bookingID)
}

func listPayments(ctx context.Context, q querier, bookingID int64) ([]models.BookingPayment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, booking_id, amount, payment_method, COALESCE(transaction_id, ''), COALESCE(notes, ''), paid_at
		FROM booking_payments
		WHERE booking_id = ?
		ORDER BY paid_at, id`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.BookingPayment
	for rows.Next() {
		var (
			p      models.BookingPayment
			method string
		)
		if err := rows.Scan(&p.ID, &p.BookingID, &p.Amount, &method, &p.TransactionID, &p.Notes, &p.PaidAt); err != nil {
			return nil, err
		}
		p.Method = models.PaymentMethod(method)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// SetPaymentStatus overrides the payment status, used for refunds.
func (db *DB) SetPaymentStatus(ctx context.Context, bookingID int64, status models.PaymentStatus, at time.Time) error {
	res, err := db.ExecContext(ctx, `UPDATE bookings SET payment_status = ?, updated_at = ? WHERE id = ?`,
		string(status), at, bookingID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("booking %d: %w", bookingID, models.ErrNotFound)
	}
	return nil
}

// SumPayments adds up payment amounts exactly.
func SumPayments(payments []models.BookingPayment) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range payments {
		sum = sum.Add(p.Amount)
	}
	return sum
}
