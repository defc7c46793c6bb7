package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"daimaescape/internal/config"
	"daimaescape/internal/database"
	"daimaescape/internal/models"
	"daimaescape/internal/reference"
	"daimaescape/internal/service"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "valid-key"

const testRooms = `
rooms:
  - name: Baobab Villa
    slug: baobab
    room_type: one_bedroom
    price_per_night: "100000"
    max_guests: 4
    is_featured: true
    images:
      - url: /media/baobab.jpg
        is_primary: true
  - name: Mango Villa
    slug: mango
    room_type: one_bedroom
    price_per_night: "150000"
    max_guests: 2
`

var testNow = time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)

type fakeExporter struct {
	err error
}

func (f *fakeExporter) WriteWorkbook(ctx context.Context, w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := w.Write([]byte("PK-fake-xlsx"))
	return err
}

type testServer struct {
	*httptest.Server
	db       *database.DB
	exporter *fakeExporter
	rooms    map[string]int64
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zerolog.Nop()
	ctx := context.Background()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg, err := config.ParseRoomsConfig([]byte(testRooms))
	require.NoError(t, err)
	require.NoError(t, db.SyncRoomsFromConfig(ctx, cfg))

	rooms := map[string]int64{}
	for _, slug := range []string{"baobab", "mango"} {
		room, err := db.GetRoomBySlug(ctx, slug)
		require.NoError(t, err)
		rooms[slug] = room.ID
	}

	svc := service.NewBookingService(db, db, nil, reference.NewGenerator(0, time.UTC), service.Options{
		TaxRate:     decimal.RequireFromString("0.18"),
		AutoConfirm: true,
		MaxChildren: 6,
		Now:         func() time.Time { return testNow },
	}, &logger)
	catalog := service.NewCatalog(db, nil, &logger)
	exporter := &fakeExporter{}

	server := NewHTTPServer(Config{APIKey: testAPIKey}, svc, catalog, exporter, &logger)
	ts := &testServer{
		Server:   httptest.NewServer(server.Handler()),
		db:       db,
		exporter: exporter,
		rooms:    rooms,
	}
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers ...string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rd = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			rd = bytes.NewReader(raw)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) staff(t *testing.T, method, path string, body any) *http.Response {
	return ts.do(t, method, path, body, "X-Api-Key", testAPIKey)
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func bookingForm(roomID int64, in, out string) map[string]any {
	return map[string]any{
		"room_id":        roomID,
		"guest_name":     "Amina Juma",
		"guest_email":    "amina@example.com",
		"guest_phone":    "+255700000000",
		"check_in_date":  in,
		"check_out_date": out,
		"adults":         2,
		"children":       0,
	}
}

func (ts *testServer) book(t *testing.T, slug, in, out string) models.Booking {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/bookings", bookingForm(ts.rooms[slug], in, out))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[models.Booking](t, resp)
}

func TestHandleCheckAvailability(t *testing.T) {
	srv := setupTestServer(t)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantError  string
		wantSlugs  []string
	}{
		{"missing dates", "", http.StatusBadRequest, "Invalid request", nil},
		{"missing check_out", "?check_in=2025-06-01", http.StatusBadRequest, "Invalid request", nil},
		{"bad date format", "?check_in=01-06-2025&check_out=2025-06-04", http.StatusBadRequest, "Invalid request", nil},
		{"bad adults", "?check_in=2025-06-01&check_out=2025-06-04&adults=two", http.StatusBadRequest, "Invalid request", nil},
		{"zero adults", "?check_in=2025-06-01&check_out=2025-06-04&adults=0", http.StatusBadRequest, "Invalid request", nil},
		{"reversed range", "?check_in=2025-06-04&check_out=2025-06-01", http.StatusBadRequest, models.ErrInvalidDateRange.Error(), nil},
		{"in the past", "?check_in=2025-05-01&check_out=2025-05-04", http.StatusBadRequest, models.ErrDateInPast.Error(), nil},
		{"default party", "?check_in=2025-06-01&check_out=2025-06-04", http.StatusOK, "", []string{"baobab", "mango"}},
		{"large party", "?check_in=2025-06-01&check_out=2025-06-04&adults=2&children=1", http.StatusOK, "", []string{"baobab"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := srv.do(t, http.MethodGet, "/api/check-availability"+tt.query, nil)
			require.Equal(t, tt.wantStatus, resp.StatusCode)

			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, decodeBody[ErrorResponse](t, resp).Error)
				return
			}
			body := decodeBody[struct {
				Rooms []AvailableRoom `json:"rooms"`
			}](t, resp)
			var slugs []string
			for _, r := range body.Rooms {
				slugs = append(slugs, r.Slug)
			}
			assert.ElementsMatch(t, tt.wantSlugs, slugs)
		})
	}

	srv.book(t, "baobab", "2025-06-02", "2025-06-05")
	resp := srv.do(t, http.MethodGet, "/api/check-availability?check_in=2025-06-01&check_out=2025-06-04", nil)
	body := decodeBody[struct {
		Rooms []AvailableRoom `json:"rooms"`
	}](t, resp)
	require.Len(t, body.Rooms, 1)
	assert.Equal(t, "mango", body.Rooms[0].Slug)
}

func TestHandleCreateBooking(t *testing.T) {
	srv := setupTestServer(t)

	resp := srv.do(t, http.MethodPost, "/api/bookings", bookingForm(srv.rooms["baobab"], "2025-06-01", "2025-06-05"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[models.Booking](t, resp)

	assert.Equal(t, "/api/bookings/"+created.Reference, resp.Header.Get("Location"))
	assert.Equal(t, models.StatusConfirmed, created.Status)
	assert.Equal(t, 4, created.Nights)
	assert.Equal(t, "472000.00", created.TotalAmount.StringFixed(2))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	// Overlapping stay.
	resp = srv.do(t, http.MethodPost, "/api/bookings", bookingForm(srv.rooms["baobab"], "2025-06-03", "2025-06-07"))
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	errResp := decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, "room_unavailable", errResp.Code)
	input, ok := errResp.Input.(map[string]any)
	require.True(t, ok, "submitted form is echoed back")
	assert.Equal(t, "2025-06-03", input["check_in_date"])

	// Adjacent stay shares no night.
	resp = srv.do(t, http.MethodPost, "/api/bookings", bookingForm(srv.rooms["baobab"], "2025-06-05", "2025-06-07"))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestHandleCreateBooking_Validation(t *testing.T) {
	srv := setupTestServer(t)
	room := srv.rooms["mango"]

	tests := []struct {
		name       string
		mutate     func(f map[string]any)
		raw        string
		wantStatus int
		wantCode   string
		wantError  string
	}{
		{
			name:       "malformed json",
			raw:        `{"room_id":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid JSON body",
		},
		{
			name:       "unknown field",
			raw:        `{"room_id":1,"discount":"500"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid JSON body",
		},
		{
			name:       "missing email",
			mutate:     func(f map[string]any) { delete(f, "guest_email") },
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_input",
			wantError:  "guest_email is required",
		},
		{
			name:       "bad email",
			mutate:     func(f map[string]any) { f["guest_email"] = "not-an-email" },
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_input",
			wantError:  "guest_email must be a valid email address",
		},
		{
			name:       "too many children",
			mutate:     func(f map[string]any) { f["children"] = 7 },
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_input",
			wantError:  "children must be at most 6",
		},
		{
			name:       "bad date",
			mutate:     func(f map[string]any) { f["check_in_date"] = "June 1" },
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_input",
			wantError:  "check_in_date must be a date in YYYY-MM-DD format",
		},
		{
			name:       "over capacity",
			mutate:     func(f map[string]any) { f["adults"] = 3 },
			wantStatus: http.StatusBadRequest,
			wantCode:   "capacity_exceeded",
		},
		{
			name:       "past date",
			mutate:     func(f map[string]any) { f["check_in_date"] = "2025-05-19" },
			wantStatus: http.StatusBadRequest,
			wantCode:   "date_in_past",
		},
		{
			name:       "unknown room",
			mutate:     func(f map[string]any) { f["room_id"] = 999 },
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body any = tt.raw
			if tt.raw == "" {
				form := bookingForm(room, "2025-06-01", "2025-06-04")
				tt.mutate(form)
				body = form
			}

			resp := srv.do(t, http.MethodPost, "/api/bookings", body)
			require.Equal(t, tt.wantStatus, resp.StatusCode)
			errResp := decodeBody[ErrorResponse](t, resp)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errResp.Code)
			}
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, errResp.Error)
			}
		})
	}
}

func TestHandleQuote(t *testing.T) {
	srv := setupTestServer(t)

	resp := srv.do(t, http.MethodPost, "/api/quote", map[string]any{
		"room_id":        srv.rooms["baobab"],
		"check_in_date":  "2025-06-01",
		"check_out_date": "2025-06-04",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	quote := decodeBody[QuoteResponse](t, resp)
	assert.True(t, quote.Available)
	assert.Equal(t, 3, quote.Nights)
	assert.Equal(t, "300000.00", quote.Subtotal.StringFixed(2))
	assert.Equal(t, "54000.00", quote.TaxAmount.StringFixed(2))
	assert.Equal(t, "354000.00", quote.TotalAmount.StringFixed(2))

	srv.book(t, "baobab", "2025-06-02", "2025-06-03")
	resp = srv.do(t, http.MethodPost, "/api/quote", map[string]any{
		"room_id":        srv.rooms["baobab"],
		"check_in_date":  "2025-06-01",
		"check_out_date": "2025-06-04",
	})
	quote = decodeBody[QuoteResponse](t, resp)
	assert.False(t, quote.Available)
	assert.Equal(t, "room_unavailable", quote.Reason)
}

func TestGuestBookingLookupAndCancel(t *testing.T) {
	srv := setupTestServer(t)
	b := srv.book(t, "baobab", "2025-06-01", "2025-06-04")

	resp := srv.do(t, http.MethodPost, "/api/bookings/search", map[string]any{"reference": b.Reference, "email": "someone@example.com"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "No booking found with these details.", decodeBody[ErrorResponse](t, resp).Error)

	resp = srv.do(t, http.MethodPost, "/api/bookings/search", map[string]any{"reference": " " + b.Reference + " ", "email": "AMINA@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, b.Reference, decodeBody[models.Booking](t, resp).Reference)

	resp = srv.do(t, http.MethodGet, "/api/bookings/"+b.Reference, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, "/api/bookings/000000-NOPE0", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = srv.do(t, http.MethodPost, "/api/bookings/"+b.Reference+"/cancel", map[string]any{"email": "wrong@example.com"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = srv.do(t, http.MethodPost, "/api/bookings/"+b.Reference+"/cancel", map[string]any{
		"email":  "amina@example.com",
		"reason": "Change of plans",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusCancelled, decodeBody[models.Booking](t, resp).Status)

	resp = srv.do(t, http.MethodPost, "/api/bookings/"+b.Reference+"/cancel", map[string]any{"email": "amina@example.com"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_transition", decodeBody[ErrorResponse](t, resp).Code)

	resp = srv.do(t, http.MethodGet, "/api/bookings/"+b.Reference+"/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decodeBody[struct {
		History []models.BookingHistory `json:"history"`
	}](t, resp).History
	require.Len(t, history, 1)
	assert.Equal(t, "Guest", history[0].ChangedBy)
	assert.Equal(t, models.StatusConfirmed, history[0].StatusFrom)
	assert.Equal(t, models.StatusCancelled, history[0].StatusTo)
	assert.Equal(t, "Change of plans", history[0].Notes)
}

func TestStaffAPIKey(t *testing.T) {
	srv := setupTestServer(t)

	tests := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{"missing key", "", http.StatusUnauthorized},
		{"wrong key", "nope", http.StatusUnauthorized},
		{"valid key", testAPIKey, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var headers []string
			if tt.key != "" {
				headers = []string{"X-Api-Key", tt.key}
			}
			resp := srv.do(t, http.MethodGet, "/api/staff/bookings", nil, headers...)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestStaffLifecycle(t *testing.T) {
	srv := setupTestServer(t)
	b := srv.book(t, "baobab", "2025-06-01", "2025-06-04")
	path := "/api/staff/bookings/" + b.Reference

	resp := srv.staff(t, http.MethodPost, path+"/payments", map[string]any{"amount": "100000", "payment_method": "mobile_money", "transaction_id": "MP123"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, models.PaymentPartial, decodeBody[PaymentResponse](t, resp).PaymentStatus)

	resp = srv.staff(t, http.MethodPost, path+"/payments", map[string]any{"amount": "1", "payment_method": "cheque"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = srv.staff(t, http.MethodPost, path+"/payments", map[string]any{"amount": "-5", "payment_method": "cash"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_input", decodeBody[ErrorResponse](t, resp).Code)

	resp = srv.staff(t, http.MethodPost, path+"/payments", map[string]any{"amount": "254000", "payment_method": "cash"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, models.PaymentPaid, decodeBody[PaymentResponse](t, resp).PaymentStatus)

	resp = srv.staff(t, http.MethodGet, path+"/payments", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	payments := decodeBody[PaymentsResponse](t, resp)
	assert.Len(t, payments.Payments, 2)
	assert.Equal(t, "354000.00", payments.TotalPaid.StringFixed(2))

	resp = srv.staff(t, http.MethodPost, path+"/status", map[string]any{"status": "checked_out"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = srv.staff(t, http.MethodPost, path+"/status", map[string]any{"status": "archived"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = srv.staff(t, http.MethodPost, path+"/status", map[string]any{"status": "checked_in", "actor": "Reception"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	checkedIn := decodeBody[models.Booking](t, resp)
	assert.Equal(t, models.StatusCheckedIn, checkedIn.Status)
	assert.NotNil(t, checkedIn.CheckedInAt)

	resp = srv.staff(t, http.MethodGet, "/api/staff/bookings?status=checked_in,confirmed", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[struct {
		Bookings []models.Booking `json:"bookings"`
	}](t, resp).Bookings
	require.Len(t, list, 1)
	assert.Equal(t, b.Reference, list[0].Reference)

	resp = srv.staff(t, http.MethodGet, "/api/staff/bookings?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = srv.staff(t, http.MethodGet, "/api/staff/bookings?from=June", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStaffRefund(t *testing.T) {
	srv := setupTestServer(t)
	b := srv.book(t, "mango", "2025-06-10", "2025-06-12")
	path := "/api/staff/bookings/" + b.Reference

	resp := srv.staff(t, http.MethodPost, path+"/refund", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode, "only cancelled bookings are refunded")

	resp = srv.staff(t, http.MethodPost, path+"/payments", map[string]any{"amount": "50000", "payment_method": "card"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = srv.staff(t, http.MethodPost, path+"/status", map[string]any{"status": "cancelled", "notes": "Guest called"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = srv.staff(t, http.MethodPost, path+"/refund", map[string]any{"actor": "Manager"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.PaymentRefunded, decodeBody[models.Booking](t, resp).PaymentStatus)
}

func TestStaffAuditExport(t *testing.T) {
	srv := setupTestServer(t)

	resp := srv.staff(t, http.MethodGet, "/api/staff/audit/export", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment; filename=\"bookings_export_")
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "PK-fake-xlsx", string(data))

	srv.exporter.err = errors.New("disk full")
	resp = srv.staff(t, http.MethodGet, "/api/staff/audit/export", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestRoomsEndpoints(t *testing.T) {
	srv := setupTestServer(t)

	resp := srv.do(t, http.MethodGet, "/api/rooms", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decodeBody[service.RoomPage](t, resp)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 1, page.TotalPages)
	require.Len(t, page.Rooms, 2)
	assert.Equal(t, "baobab", page.Rooms[0].Slug, "featured first")

	resp = srv.do(t, http.MethodGet, "/api/rooms?min_price=120000", nil)
	page = decodeBody[service.RoomPage](t, resp)
	require.Len(t, page.Rooms, 1)
	assert.Equal(t, "mango", page.Rooms[0].Slug)

	resp = srv.do(t, http.MethodGet, "/api/rooms?type=penthouse", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, "/api/rooms?min_price=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, "/api/rooms/featured", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	featured := decodeBody[struct {
		Rooms []models.Room `json:"rooms"`
	}](t, resp).Rooms
	require.Len(t, featured, 1)
	assert.Equal(t, "baobab", featured[0].Slug)

	resp = srv.do(t, http.MethodGet, "/api/rooms/baobab", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decodeBody[service.RoomDetail](t, resp)
	assert.Equal(t, "Baobab Villa", detail.Room.Name)
	require.Len(t, detail.Similar, 1)
	assert.Equal(t, "mango", detail.Similar[0].Slug)

	resp = srv.do(t, http.MethodGet, "/api/rooms/unknown", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNotFoundAndMethod(t *testing.T) {
	srv := setupTestServer(t)

	resp := srv.do(t, http.MethodGet, "/api/nothing-here", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = srv.do(t, http.MethodDelete, "/api/bookings", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrInvalidDateRange, http.StatusBadRequest},
		{models.ErrCapacityExceeded, http.StatusBadRequest},
		{models.ErrNotFound, http.StatusNotFound},
		{models.ErrOverlapConstraint, http.StatusConflict},
		{models.ErrNotCancellable, http.StatusConflict},
		{models.ErrConcurrentModification, http.StatusConflict},
		{models.ErrReferenceGenerationExhausted, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
	assert.Equal(t, "An error occurred while processing your request.", messageFor(errors.New("sql: database is locked")))
}
