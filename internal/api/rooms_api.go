package api

import (
	"net/http"
	"strconv"
	"strings"

	"daimaescape/internal/metrics"
	"daimaescape/internal/models"
	"daimaescape/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// AvailableRoom is one entry of the check-availability response.
type AvailableRoom struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Slug      string          `json:"slug"`
	Price     decimal.Decimal `json:"price"`
	ImageURL  string          `json:"image_url,omitempty"`
	MaxGuests int             `json:"max_guests"`
}

// handleRooms lists enabled rooms, featured first.
// GET /api/rooms?type=&search=&min_price=&max_price=&page=
func (s *HTTPServer) handleRooms(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("rooms")
	q := r.URL.Query()

	query := service.RoomQuery{
		Type:   models.RoomType(q.Get("type")),
		Search: q.Get("search"),
		Page:   1,
	}
	if p := q.Get("page"); p != "" {
		page, err := strconv.Atoi(p)
		if err != nil {
			writeError(w, http.StatusBadRequest, "page must be a number")
			return
		}
		query.Page = page
	}
	for _, bound := range []struct {
		name string
		dst  **decimal.Decimal
	}{{"min_price", &query.MinPrice}, {"max_price", &query.MaxPrice}} {
		raw := q.Get(bound.name)
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil || v.IsNegative() {
			writeError(w, http.StatusBadRequest, bound.name+" must be a non-negative number")
			return
		}
		*bound.dst = &v
	}

	page, err := s.catalog.ListRooms(r.Context(), query)
	if err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GET /api/rooms/featured
func (s *HTTPServer) handleFeaturedRooms(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("rooms_featured")

	rooms, err := s.catalog.Featured(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

// GET /api/rooms/{slug}
func (s *HTTPServer) handleRoomDetail(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("room_detail")

	detail, err := s.catalog.RoomDetail(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleCheckAvailability lists rooms free for a stay that fit the party.
// GET /api/check-availability?check_in=&check_out=&adults=&children=
func (s *HTTPServer) handleCheckAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("check_availability")
	q := r.URL.Query()

	checkIn, err1 := models.ParseDate(q.Get("check_in"))
	checkOut, err2 := models.ParseDate(q.Get("check_out"))
	adults, err3 := intParam(q.Get("adults"), 1)
	children, err4 := intParam(q.Get("children"), 0)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || adults < 1 || children < 0 {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	rooms, err := s.bookings.AvailableRooms(r.Context(), checkIn, checkOut, adults+children)
	if err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}

	out := make([]AvailableRoom, 0, len(rooms))
	for i := range rooms {
		room := &rooms[i]
		out = append(out, AvailableRoom{
			ID:        room.ID,
			Name:      room.Name,
			Slug:      room.Slug,
			Price:     room.PricePerNight,
			ImageURL:  room.MainImageURL(),
			MaxGuests: room.MaxGuests,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": out})
}

func intParam(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
