package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"daimaescape/internal/metrics"
	"daimaescape/internal/models"
	"daimaescape/internal/pricing"
	"daimaescape/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BookingService is the booking engine as seen by the HTTP layer.
type BookingService interface {
	CheckAvailability(ctx context.Context, q service.AvailabilityQuery) (service.Availability, error)
	AvailableRooms(ctx context.Context, checkIn, checkOut time.Time, partySize int) ([]models.Room, error)
	PriceStay(ctx context.Context, roomID int64, checkIn, checkOut time.Time, discount decimal.Decimal) (pricing.Breakdown, error)
	CreateBooking(ctx context.Context, d service.Draft) (*models.Booking, []pricing.Warning, error)
	FindBooking(ctx context.Context, ref, email string) (*models.Booking, error)
	GetBooking(ctx context.Context, ref string) (*models.Booking, error)
	History(ctx context.Context, ref string) ([]models.BookingHistory, error)
	CancelBooking(ctx context.Context, ref, email, actor, reason string) (*models.Booking, error)
	ListBookings(ctx context.Context, f models.BookingFilter) ([]models.Booking, error)
	Transition(ctx context.Context, ref string, to models.BookingStatus, actor, notes string) (*models.Booking, error)
	RecordPayment(ctx context.Context, ref string, in service.PaymentInput) (*models.BookingPayment, models.PaymentStatus, error)
	Payments(ctx context.Context, ref string) ([]models.BookingPayment, decimal.Decimal, error)
	MarkRefunded(ctx context.Context, ref, actor string) (*models.Booking, error)
}

// Catalog serves room listings.
type Catalog interface {
	ListRooms(ctx context.Context, q service.RoomQuery) (service.RoomPage, error)
	Featured(ctx context.Context) ([]models.Room, error)
	RoomDetail(ctx context.Context, slug string) (*service.RoomDetail, error)
}

// WorkbookWriter produces the staff audit export.
type WorkbookWriter interface {
	WriteWorkbook(ctx context.Context, w io.Writer) error
}

type Config struct {
	Port           int
	APIKey         string
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// HTTPServer exposes the guest and staff booking API.
type HTTPServer struct {
	server   *http.Server
	bookings BookingService
	catalog  Catalog
	exporter WorkbookWriter
	apiKey   string
	logger   zerolog.Logger
}

// NewHTTPServer builds the router. exporter may be nil, in which case the
// export endpoint answers 503.
func NewHTTPServer(cfg Config, bookings BookingService, catalog Catalog, exporter WorkbookWriter, logger *zerolog.Logger) *HTTPServer {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "api").Logger()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	s := &HTTPServer{
		bookings: bookings,
		catalog:  catalog,
		exporter: exporter,
		apiKey:   cfg.APIKey,
		logger:   l,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.routes(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes(cfg Config) http.Handler {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Api-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/rooms", s.handleRooms)
		r.Get("/rooms/featured", s.handleFeaturedRooms)
		r.Get("/rooms/{slug}", s.handleRoomDetail)
		r.Get("/check-availability", s.handleCheckAvailability)
		r.Post("/quote", s.handleQuote)

		r.Post("/bookings", s.handleCreateBooking)
		r.Post("/bookings/search", s.handleSearchBooking)
		r.Get("/bookings/{reference}", s.handleBookingDetail)
		r.Get("/bookings/{reference}/history", s.handleBookingHistory)
		r.Post("/bookings/{reference}/cancel", s.handleCancelBooking)

		r.Route("/staff", func(r chi.Router) {
			r.Use(s.requireAPIKey)
			r.Get("/bookings", s.handleStaffBookings)
			r.Post("/bookings/{reference}/status", s.handleStaffStatus)
			r.Get("/bookings/{reference}/payments", s.handleStaffPayments)
			r.Post("/bookings/{reference}/payments", s.handleStaffRecordPayment)
			r.Post("/bookings/{reference}/refund", s.handleStaffRefund)
			r.Get("/audit/export", s.handleAuditExport)
		})
	})

	return r
}

// Handler returns the root handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("api server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// requestID keeps a caller supplied X-Request-Id or assigns a UUID, and
// stores it where chi's middleware.GetReqID finds it.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTP(route, fmt.Sprintf("%dxx", status/100), elapsed)

		event := s.logger.Info()
		if status >= http.StatusInternalServerError {
			event = s.logger.Error()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", elapsed).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("remote_ip", r.RemoteAddr).
			Msg("http request")
	})
}

func (s *HTTPServer) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-Api-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
