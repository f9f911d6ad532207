package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"campspots/internal/config"
	"campspots/internal/domain"
	"campspots/internal/service"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators the HTTP API serves from.
type Deps struct {
	Booking     *service.BookingService
	Catalog     *service.CatalogService
	Idempotency domain.IdempotencyStore
	Store       Pinger
}

// HTTPServer exposes the public booking API and the operator API.
type HTTPServer struct {
	cfg            *config.Config
	deps           Deps
	auth           *HTTPAuth
	idempotencyTTL time.Duration
	server         *http.Server
	log            *zerolog.Logger
}

func NewHTTPServer(cfg *config.Config, deps Deps, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	httpLogger := logger.With().Str("component", "http").Logger()

	srv := &HTTPServer{
		cfg:            cfg,
		deps:           deps,
		auth:           NewHTTPAuth(cfg.API.Auth, cfg.Admin),
		idempotencyTTL: cfg.Booking.IdempotencyTTL,
		log:            &httpLogger,
	}

	router := httprouter.New()
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	router.PanicHandler = srv.recoverPanic
	srv.routes(router)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.HTTP.Port),
		Handler:           srv.requestLogger(router),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes(r *httprouter.Router) {
	s.handle(r, http.MethodGet, "/healthz", "", s.handleHealthz)

	s.handle(r, http.MethodGet, "/api/v1/campgrounds", "", s.handleCampgrounds)
	s.handle(r, http.MethodGet, "/api/v1/availability", "", s.handleAvailability)
	s.handle(r, http.MethodGet, "/api/v1/check-availability", "", s.handleCheckAvailability)
	s.handle(r, http.MethodPost, "/api/v1/sites/:id/bookings", "", s.handleCreateBooking)
	s.handle(r, http.MethodPost, "/api/v1/reservations/:id/checkout", "", s.handleResumeCheckout)
	s.handle(r, http.MethodGet, "/payment/success/:id", "", s.handlePaymentSuccess)
	s.handle(r, http.MethodGet, "/payment/cancel/:id", "", s.handlePaymentCancel)

	s.handle(r, http.MethodPost, "/api/v1/admin/login", "", s.handleLogin)
	s.handle(r, http.MethodGet, "/api/v1/admin/dashboard", PermReadReservations, s.handleDashboard)
	s.handle(r, http.MethodGet, "/api/v1/admin/reservations", PermReadReservations, s.handleListReservations)
	s.handle(r, http.MethodGet, "/api/v1/admin/reservations/:id", PermReadReservations, s.handleGetReservation)
	s.handle(r, http.MethodPost, "/api/v1/admin/reservations/:id/cancel", PermWriteReservations, s.handleAdminCancel)
	s.handle(r, http.MethodGet, "/api/v1/admin/exports/reservations", PermReadReservations, s.handleExport)
	s.handle(r, http.MethodPost, "/api/v1/admin/maintenance/expire-pending", PermWriteReservations, s.handleExpirePending)

	s.handle(r, http.MethodPost, "/api/v1/admin/campgrounds", PermWriteCatalog, s.handleCreateCampground)
	s.handle(r, http.MethodPut, "/api/v1/admin/campgrounds/:id", PermWriteCatalog, s.handleUpdateCampground)
	s.handle(r, http.MethodPost, "/api/v1/admin/campgrounds/:id/sites", PermWriteCatalog, s.handleCreateSite)
	s.handle(r, http.MethodPut, "/api/v1/admin/sites/:id", PermWriteCatalog, s.handleUpdateSite)
	s.handle(r, http.MethodGet, "/api/v1/admin/blocked-dates", PermReadCatalog, s.handleListBlockedDates)
	s.handle(r, http.MethodPost, "/api/v1/admin/blocked-dates", PermWriteCatalog, s.handleCreateBlockedDate)
	s.handle(r, http.MethodDelete, "/api/v1/admin/blocked-dates/:id", PermWriteCatalog, s.handleDeleteBlockedDate)
}

// handle registers h under path. A non-empty permission puts the route behind auth.
func (s *HTTPServer) handle(r *httprouter.Router, method, path, permission string, h httprouter.Handle) {
	if permission != "" {
		h = s.auth.Require(permission, h)
	}
	r.Handle(method, path, instrument(path, h))
}

// Handler returns the root handler, middleware included.
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

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Store.PingContext(ctx); err != nil {
			requestLogger(r).Error().Err(err).Msg("health check: store unreachable")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// errorStatus maps service error kinds onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrPaymentVerification):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError logs err and writes it in the standard error shape.
// Internal errors are not echoed to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := errorStatus(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		requestLogger(r).Error().Err(err).Msg("request failed")
		message = "internal error"
	} else {
		requestLogger(r).Debug().Err(err).Int("status", code).Msg("request rejected")
	}
	writeError(w, code, message)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return domain.Validationf("invalid JSON body: %s", err.Error())
	}
	return nil
}
