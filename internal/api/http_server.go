package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"storagebooking/internal/config"
	"storagebooking/internal/errs"
	"storagebooking/internal/metrics"
	"storagebooking/internal/service"

	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// HTTPServer exposes the booking API over JSON.
type HTTPServer struct {
	cfg      config.APIConfig
	bookings *service.BookingService
	payments *service.PaymentService
	pinger   Pinger
	location *time.Location
	server   *http.Server
	auth     *HTTPAuth
	log      zerolog.Logger
}

func NewHTTPServer(
	cfg config.APIConfig,
	bookings *service.BookingService,
	payments *service.PaymentService,
	pinger Pinger,
	loc *time.Location,
	logger *zerolog.Logger,
) *HTTPServer {
	if loc == nil {
		loc = time.UTC
	}
	srv := &HTTPServer{
		cfg:      cfg,
		bookings: bookings,
		payments: payments,
		pinger:   pinger,
		location: loc,
		auth:     NewHTTPAuth(cfg),
		log:      zerolog.Nop(),
	}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}

	mux := http.NewServeMux()
	srv.routes(mux)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.handle(mux, "GET /api/v1/units/{id}/availability", PermReadAvailability, s.handleAvailability)
	s.handle(mux, "GET /api/v1/units/{id}/price", PermReadPricing, s.handlePrice)

	s.handle(mux, "POST /api/v1/bookings", PermWriteBookings, s.handleCreateBooking)
	s.handle(mux, "GET /api/v1/bookings/{id}", PermReadBookings, s.bookingAction(s.bookings.GetBooking))
	s.handle(mux, "GET /api/v1/users/{id}/bookings", PermReadBookings, s.handleUserBookings)
	s.handle(mux, "GET /api/v1/users/{id}/loyalty", PermReadBookings, s.handleLoyalty)

	s.handle(mux, "POST /api/v1/bookings/{id}/confirm", PermWritePayments, s.handleConfirm)
	s.handle(mux, "POST /api/v1/bookings/{id}/check-in", PermWriteBookings, s.bookingAction(s.bookings.CheckIn))
	s.handle(mux, "POST /api/v1/bookings/{id}/check-out", PermWriteBookings, s.bookingAction(s.bookings.CheckOut))
	s.handle(mux, "POST /api/v1/bookings/{id}/access-code", PermWriteBookings, s.bookingAction(s.bookings.RegenerateAccessCode))
	s.handle(mux, "POST /api/v1/bookings/{id}/extend", PermWriteBookings, s.handleExtend)
	s.handle(mux, "POST /api/v1/bookings/{id}/cancel", PermWriteBookings, s.handleCancel)

	s.handle(mux, "GET /api/v1/bookings/{id}/refund", PermReadBookings, s.handleRefundQuote)
	s.handle(mux, "POST /api/v1/bookings/{id}/refund", PermWriteBookings, s.handleRefund)
	s.handle(mux, "POST /api/v1/payments/webhook", PermWritePayments, s.handleWebhook)

	s.handle(mux, "GET /api/v1/reports/bookings.xlsx", PermReadReports, s.handleBookingsReport)
}

func (s *HTTPServer) handle(mux *http.ServeMux, pattern, permission string, h http.HandlerFunc) {
	mux.Handle(pattern, s.auth.Require(permission, h))
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := requestID(r.Header.Get(requestIDKey))
		w.Header().Set(requestIDKey, id)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		// The mux records the matched pattern on the request.
		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint, recorder.status)

		s.log.Info().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// decodeJSON reads a JSON body into dst and validates it. An empty body is
// accepted when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			return errs.Mark(errs.Wrap(err, "invalid JSON body"), errs.ErrValidation)
		}
	}
	if err := validate.Struct(dst); err != nil {
		return errs.Mark(err, errs.ErrValidation)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
