package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"daimaescape/internal/metrics"
	"daimaescape/internal/models"
	"daimaescape/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed checked_in checked_out cancelled no_show"`
	Actor  string `json:"actor,omitempty" validate:"max=100"`
	Notes  string `json:"notes,omitempty" validate:"max=1000"`
}

type PaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"payment_method" validate:"required,oneof=cash card bank_transfer mobile_money"`
	TransactionID string          `json:"transaction_id,omitempty" validate:"max=100"`
	Notes         string          `json:"notes,omitempty" validate:"max=1000"`
}

type PaymentResponse struct {
	Payment       *models.BookingPayment `json:"payment"`
	PaymentStatus models.PaymentStatus   `json:"payment_status"`
}

type PaymentsResponse struct {
	Payments  []models.BookingPayment `json:"payments"`
	TotalPaid decimal.Decimal         `json:"total_paid"`
}

type RefundRequest struct {
	Actor string `json:"actor,omitempty" validate:"max=100"`
}

// handleStaffBookings lists bookings for the front desk.
// GET /api/staff/bookings?status=confirmed,checked_in&from=YYYY-MM-DD&to=YYYY-MM-DD&room_id=&limit=
func (s *HTTPServer) handleStaffBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("staff_bookings")
	q := r.URL.Query()

	var f models.BookingFilter
	if raw := q.Get("status"); raw != "" {
		for _, st := range strings.Split(raw, ",") {
			f.Statuses = append(f.Statuses, models.BookingStatus(strings.TrimSpace(st)))
		}
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		d, err := models.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s format; expected YYYY-MM-DD", p.name))
			return
		}
		*p.dst = &d
	}
	for _, p := range []struct {
		name string
		set  func(int64)
	}{
		{"room_id", func(v int64) { f.RoomID = v }},
		{"limit", func(v int64) { f.Limit = int(v) }},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, p.name+" must be a non-negative number")
			return
		}
		p.set(v)
	}

	bookings, err := s.bookings.ListBookings(r.Context(), f)
	if err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

// handleStaffStatus moves a booking along its lifecycle.
// POST /api/staff/bookings/{reference}/status
func (s *HTTPServer) handleStaffStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("staff_status")

	var req StatusRequest
	if !decode(w, r, &req) {
		return
	}

	booking, err := s.bookings.Transition(r.Context(), chi.URLParam(r, "reference"), models.BookingStatus(req.Status), req.Actor, req.Notes)
	if err != nil {
		s.writeServiceError(w, r, err, req)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// POST /api/staff/bookings/{reference}/payments
func (s *HTTPServer) handleStaffRecordPayment(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("staff_record_payment")

	var req PaymentRequest
	if !decode(w, r, &req) {
		return
	}

	payment, status, err := s.bookings.RecordPayment(r.Context(), chi.URLParam(r, "reference"), service.PaymentInput{
		Amount:        req.Amount,
		Method:        models.PaymentMethod(req.Method),
		TransactionID: req.TransactionID,
		Notes:         req.Notes,
	})
	if err != nil {
		s.writeServiceError(w, r, err, req)
		return
	}
	writeJSON(w, http.StatusCreated, PaymentResponse{Payment: payment, PaymentStatus: status})
}

// GET /api/staff/bookings/{reference}/payments
func (s *HTTPServer) handleStaffPayments(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("staff_payments")

	payments, paid, err := s.bookings.Payments(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}
	if payments == nil {
		payments = []models.BookingPayment{}
	}
	writeJSON(w, http.StatusOK, PaymentsResponse{Payments: payments, TotalPaid: paid})
}

// POST /api/staff/bookings/{reference}/refund
func (s *HTTPServer) handleStaffRefund(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("staff_refund")

	var req RefundRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	actor := req.Actor
	if actor == "" {
		actor = "Staff"
	}

	booking, err := s.bookings.MarkRefunded(r.Context(), chi.URLParam(r, "reference"), actor)
	if err != nil {
		s.writeServiceError(w, r, err, req)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// handleAuditExport downloads every booking table as one workbook.
// GET /api/staff/audit/export
func (s *HTTPServer) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("staff_audit_export")

	if s.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "export is not configured")
		return
	}

	var buf bytes.Buffer
	if err := s.exporter.WriteWorkbook(r.Context(), &buf); err != nil {
		s.logger.Error().Err(err).Msg("audit export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	filename := fmt.Sprintf("bookings_export_%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
