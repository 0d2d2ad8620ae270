package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"smarterdog/internal/config"
	"smarterdog/internal/metrics"
	"smarterdog/internal/service"

	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

// ReadinessCheck reports whether a dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

// Services are the application services behind the HTTP API.
type Services struct {
	Catalog      *service.CatalogService
	Availability *service.AvailabilityService
	Bookings     *service.BookingService
	Appointments *service.AppointmentService
	// Readiness checks run by /readyz, by name.
	Readiness map[string]ReadinessCheck
}

// HTTPServer exposes the booking wizard and salon admin endpoints as JSON.
type HTTPServer struct {
	cfg     config.APIConfig
	svc     Services
	auth    *HTTPAuth
	limiter *rateLimiter
	server  *http.Server
	log     zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:     cfg,
		svc:     svc,
		auth:    NewHTTPAuth(cfg.Auth),
		limiter: newRateLimiter(cfg.RateLimit),
		log:     zerolog.Nop(),
	}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.Use(s.observe)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(s.rateLimit)

	v1.HandleFunc("/services", s.handleServices).Methods(http.MethodGet)
	v1.HandleFunc("/services/addons", s.handleAddOns).Methods(http.MethodGet)
	v1.HandleFunc("/groomers", s.handleGroomers).Methods(http.MethodGet)
	v1.HandleFunc("/availability/dates", s.handleAvailableDates).Methods(http.MethodGet)
	v1.HandleFunc("/availability/slots", s.handleAvailableSlots).Methods(http.MethodGet)
	v1.HandleFunc("/quotes", s.handleQuote).Methods(http.MethodPost)

	v1.HandleFunc("/bookings", s.handleStartBooking).Methods(http.MethodPost)
	v1.HandleFunc("/bookings/{id}", s.handleGetBooking).Methods(http.MethodGet)
	v1.HandleFunc("/bookings/{id}/next", s.handleNext).Methods(http.MethodPost)
	v1.HandleFunc("/bookings/{id}/back", s.handleBack).Methods(http.MethodPost)
	v1.HandleFunc("/bookings/{id}/skip", s.handleSkip).Methods(http.MethodPost)
	v1.HandleFunc("/bookings/{id}/submit", s.handleSubmit).Methods(http.MethodPost)
	v1.HandleFunc("/bookings/{id}/slots", s.handleBookingSlots).Methods(http.MethodGet)

	v1.HandleFunc("/admin/appointments/export",
		s.auth.Require(permExportAppointments, s.handleExport)).Methods(http.MethodGet)
	v1.HandleFunc("/admin/appointments/{id}/cancel",
		s.auth.Require(permManageAppointments, s.handleCancel)).Methods(http.MethodPost)
	v1.HandleFunc("/admin/appointments/{id}/matting",
		s.auth.Require(permManageAppointments, s.handleMatting)).Methods(http.MethodPost)

	v1.HandleFunc("/appointments/{id}", s.handleGetAppointment).Methods(http.MethodGet)
	v1.HandleFunc("/appointments/{id}/calendar.ics", s.handleICS).Methods(http.MethodGet)
	v1.HandleFunc("/appointments/{id}/calendar-link", s.handleCalendarLink).Methods(http.MethodGet)
	v1.HandleFunc("/appointments/{id}/cancellation-fee", s.handleCancellationFee).Methods(http.MethodGet)

	var handler http.Handler = r
	if len(s.cfg.CORS.AllowedOrigins) > 0 {
		handler = cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORS.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", requestIDHeader, s.auth.header()},
			ExposedHeaders: []string{requestIDHeader},
			MaxAge:         300,
		})(handler)
	}
	return s.requestID(s.recoverPanic(handler))
}

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

type ctxKey int

const requestIDKey ctxKey = iota

func (s *HTTPServer) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *HTTPServer) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.log.Error().
					Str("request_id", requestIDFrom(r.Context())).
					Interface("panic", v).
					Str("path", r.URL.Path).
					Msg("handler panic")
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// observe logs the request and records its metrics under the route template.
func (s *HTTPServer) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		dur := time.Since(start)

		route := r.URL.Path
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.ObserveHTTP(route, recorder.status, dur)

		ev := s.log.Debug()
		if recorder.status >= http.StatusInternalServerError {
			ev = s.log.Warn()
		}
		ev.Str("request_id", requestIDFrom(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", recorder.status).
			Dur("duration", dur).
			Msg("http request")
	})
}

func (s *HTTPServer) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientKey(r, s.auth.header())) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
