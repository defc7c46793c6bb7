package api

import (
	"net/http"
	"strings"

	"daimaescape/internal/metrics"
	"daimaescape/internal/models"
	"daimaescape/internal/pricing"
	"daimaescape/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// BookingRequest is the guest booking form.
type BookingRequest struct {
	RoomID          int64  `json:"room_id" validate:"required,gt=0"`
	GuestName       string `json:"guest_name" validate:"required,max=200"`
	GuestEmail      string `json:"guest_email" validate:"required,email"`
	GuestPhone      string `json:"guest_phone" validate:"required,max=20"`
	GuestAddress    string `json:"guest_address,omitempty" validate:"max=500"`
	CheckIn         string `json:"check_in_date" validate:"required,datetime=2006-01-02"`
	CheckOut        string `json:"check_out_date" validate:"required,datetime=2006-01-02"`
	Adults          int    `json:"adults" validate:"gte=1,lte=10"`
	Children        int    `json:"children" validate:"gte=0,lte=6"`
	SpecialRequests string `json:"special_requests,omitempty" validate:"max=2000"`
}

// QuoteRequest prices a stay without booking it.
type QuoteRequest struct {
	RoomID   int64  `json:"room_id" validate:"required,gt=0"`
	CheckIn  string `json:"check_in_date" validate:"required,datetime=2006-01-02"`
	CheckOut string `json:"check_out_date" validate:"required,datetime=2006-01-02"`
	Adults   int    `json:"adults" validate:"gte=0,lte=10"`
	Children int    `json:"children" validate:"gte=0,lte=6"`
}

// QuoteResponse carries the price and whether the room is free.
type QuoteResponse struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
	pricing.Breakdown
}

type SearchRequest struct {
	Reference string `json:"reference" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
}

type CancelRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Reason      string `json:"reason,omitempty" validate:"max=1000"`
	CancelledBy string `json:"cancelled_by,omitempty" validate:"max=100"`
}

// decode reads and validates a request body, answering 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := readJSON(w, r, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: validationMessage(err),
			Code:  models.ErrorCode(models.ErrInvalidInput),
			Input: dst,
		})
		return false
	}
	return true
}

// POST /api/quote
func (s *HTTPServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("quote")

	var req QuoteRequest
	if !decode(w, r, &req) {
		return
	}
	checkIn, _ := models.ParseDate(req.CheckIn)
	checkOut, _ := models.ParseDate(req.CheckOut)

	avail, err := s.bookings.CheckAvailability(r.Context(), service.AvailabilityQuery{
		RoomID:    req.RoomID,
		CheckIn:   checkIn,
		CheckOut:  checkOut,
		PartySize: req.Adults + req.Children,
	})
	if err != nil {
		s.writeServiceError(w, r, err, req)
		return
	}
	breakdown, err := s.bookings.PriceStay(r.Context(), req.RoomID, checkIn, checkOut, decimal.Zero)
	if err != nil {
		s.writeServiceError(w, r, err, req)
		return
	}

	writeJSON(w, http.StatusOK, QuoteResponse{
		Available: avail.Available,
		Reason:    avail.Reason,
		Breakdown: breakdown,
	})
}

// handleCreateBooking books a room for a guest.
// POST /api/bookings
func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_booking")

	var req BookingRequest
	if !decode(w, r, &req) {
		return
	}
	checkIn, _ := models.ParseDate(req.CheckIn)
	checkOut, _ := models.ParseDate(req.CheckOut)

	booking, _, err := s.bookings.CreateBooking(r.Context(), service.Draft{
		RoomID:          req.RoomID,
		GuestName:       req.GuestName,
		GuestEmail:      req.GuestEmail,
		GuestPhone:      req.GuestPhone,
		GuestAddress:    req.GuestAddress,
		CheckIn:         checkIn,
		CheckOut:        checkOut,
		Adults:          req.Adults,
		Children:        req.Children,
		SpecialRequests: req.SpecialRequests,
	})
	if err != nil {
		s.writeServiceError(w, r, err, req)
		return
	}

	w.Header().Set("Location", "/api/bookings/"+booking.Reference)
	writeJSON(w, http.StatusCreated, booking)
}

// handleSearchBooking finds a booking by reference and guest email.
// POST /api/bookings/search
func (s *HTTPServer) handleSearchBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("search_booking")

	var req SearchRequest
	if !decode(w, r, &req) {
		return
	}

	booking, err := s.bookings.FindBooking(r.Context(), strings.TrimSpace(req.Reference), req.Email)
	if err != nil {
		if statusFor(err) == http.StatusNotFound {
			writeJSON(w, http.StatusNotFound, ErrorResponse{
				Error: "No booking found with these details.",
				Code:  models.ErrorCode(err),
				Input: req,
			})
			return
		}
		s.writeServiceError(w, r, err, req)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// GET /api/bookings/{reference}
func (s *HTTPServer) handleBookingDetail(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("booking_detail")

	booking, err := s.bookings.GetBooking(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// GET /api/bookings/{reference}/history
func (s *HTTPServer) handleBookingHistory(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("booking_history")

	history, err := s.bookings.History(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}
	if history == nil {
		history = []models.BookingHistory{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

// handleCancelBooking is the guest cancellation.
// POST /api/bookings/{reference}/cancel
func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cancel_booking")

	var req CancelRequest
	if !decode(w, r, &req) {
		return
	}

	booking, err := s.bookings.CancelBooking(r.Context(), chi.URLParam(r, "reference"), req.Email, req.CancelledBy, req.Reason)
	if err != nil {
		s.writeServiceError(w, r, err, req)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}
