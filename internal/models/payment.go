package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is how a payment was made.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodCard         PaymentMethod = "card"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodMobileMoney  PaymentMethod = "mobile_money"
)

// Valid reports whether m is an accepted payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodBankTransfer, MethodMobileMoney:
		return true
	}
	return false
}

// BookingPayment is an immutable record of money received for a booking.
type BookingPayment struct {
	ID            int64           `json:"id"`
	BookingID     int64           `json:"booking_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        PaymentMethod   `json:"payment_method"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	PaidAt        time.Time       `json:"paid_at"`
}

// PaymentStatusFor derives the payment status from the amount paid so far.
func PaymentStatusFor(total, paid decimal.Decimal) PaymentStatus {
	switch {
	case !paid.IsPositive():
		return PaymentPending
	case paid.LessThan(total):
		return PaymentPartial
	default:
		return PaymentPaid
	}
}
