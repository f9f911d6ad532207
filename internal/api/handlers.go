package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"campspots/internal/domain"
	"campspots/internal/models"
	"campspots/internal/service"

	"github.com/julienschmidt/httprouter"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
	maxIdempotencyKey = 255

	msgPaymentVerificationFailed = "Payment verification failed. Please contact us."
	msgPaymentCancelled          = "Payment was cancelled. Your reservation was not completed."
)

type bookingBody struct {
	service.CustomerInfo
	service.Occupancy
	ArrivalDate   string `json:"arrival_date"`
	DepartureDate string `json:"departure_date"`
}

type bookingResponse struct {
	ReservationID    int64        `json:"reservation_id"`
	ConfirmationCode string       `json:"confirmation_code"`
	Status           string       `json:"status,omitempty"`
	PaymentStatus    string       `json:"payment_status,omitempty"`
	TotalAmountCents models.Cents `json:"total_amount_cents,omitempty"`
	Currency         string       `json:"currency,omitempty"`
	RedirectURL      string       `json:"redirect_url"`
}

func newBookingResponse(res *service.BookingResult) bookingResponse {
	r := res.Reservation
	return bookingResponse{
		ReservationID:    r.ID,
		ConfirmationCode: r.ConfirmationCode(),
		Status:           r.Status,
		PaymentStatus:    r.PaymentStatus,
		TotalAmountCents: r.TotalAmount,
		Currency:         r.Currency,
		RedirectURL:      res.RedirectURL,
	}
}

func pathID(ps httprouter.Params, name string) (int64, error) {
	id, err := strconv.ParseInt(ps.ByName(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validationf("invalid %s %q", name, ps.ByName(name))
	}
	return id, nil
}

func queryID(r *http.Request, name string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, domain.Validationf("invalid %s %q", name, raw)
	}
	return &id, nil
}

func (s *HTTPServer) handleCampgrounds(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	list, err := s.deps.Catalog.ListCampgrounds(r.Context(), true)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"campgrounds": list})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	campgroundID, err := queryID(r, "campground_id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	view, err := s.deps.Catalog.Availability(r.Context(), campgroundID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleCheckAvailability(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	siteID, err := queryID(r, "site_id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if siteID == nil {
		writeError(w, http.StatusBadRequest, "missing parameters")
		return
	}
	stay, err := service.ParseStay(q.Get("arrival"), q.Get("departure"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	result, err := s.deps.Booking.RequestAvailability(r.Context(), *siteID, stay.Start, stay.End)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	siteID, err := pathID(ps, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if len(key) > maxIdempotencyKey {
		writeError(w, http.StatusBadRequest, "idempotency key too long")
		return
	}

	var body bookingBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeServiceError(w, r, err)
		return
	}
	fingerprint := bookingFingerprint(siteID, body)
	if key != "" && s.replayBooking(w, r, key, fingerprint) {
		return
	}
	stay, err := service.ParseStay(body.ArrivalDate, body.DepartureDate)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	res, err := s.deps.Booking.CreateBooking(r.Context(), service.BookingRequest{
		SiteID:        siteID,
		Customer:      body.CustomerInfo,
		ArrivalDate:   stay.Start,
		DepartureDate: stay.End,
		Occupancy:     body.Occupancy,
		CreatedBy:     models.CreatedByCustomer,
	})
	if err != nil {
		s.writeBookingError(w, r, res, err)
		return
	}

	resp := newBookingResponse(res)
	if key != "" {
		s.rememberBooking(r, key, fingerprint, resp)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// writeBookingError reports a failed booking. When the reservation was kept
// but checkout could not start, the body names it so the client can resume.
func (s *HTTPServer) writeBookingError(w http.ResponseWriter, r *http.Request, res *service.BookingResult, err error) {
	if res == nil || res.Reservation == nil || !errors.Is(err, domain.ErrGatewayUnavailable) {
		writeServiceError(w, r, err)
		return
	}
	requestLogger(r).Warn().Err(err).Int64("reservation_id", res.Reservation.ID).Msg("booking kept pending, checkout unavailable")
	writeJSON(w, http.StatusServiceUnavailable, map[string]any{
		"error":             err.Error(),
		"reservation_id":    res.Reservation.ID,
		"confirmation_code": res.Reservation.ConfirmationCode(),
		"retry_checkout":    "/api/v1/reservations/" + strconv.FormatInt(res.Reservation.ID, 10) + "/checkout",
	})
}

// bookingFingerprint identifies a booking request by its site and body.
func bookingFingerprint(siteID int64, body bookingBody) string {
	data, _ := json.Marshal(struct {
		SiteID int64       `json:"site_id"`
		Body   bookingBody `json:"body"`
	}{siteID, body})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// replayBooking answers a repeated booking request from its stored outcome.
// A key reused with a different request is rejected with 422. Store failures
// are logged and the request is processed normally.
func (s *HTTPServer) replayBooking(w http.ResponseWriter, r *http.Request, key, fingerprint string) bool {
	if s.deps.Idempotency == nil {
		return false
	}
	rec, err := s.deps.Idempotency.Get(r.Context(), key)
	if err != nil {
		requestLogger(r).Warn().Err(err).Msg("idempotency lookup failed")
		return false
	}
	if rec == nil {
		return false
	}
	if rec.Fingerprint != "" && rec.Fingerprint != fingerprint {
		requestLogger(r).Warn().Int64("reservation_id", rec.ReservationID).Msg("idempotency key reused with a different request")
		writeError(w, http.StatusUnprocessableEntity, "idempotency key was used with a different request")
		return true
	}

	w.Header().Set(replayedHeader, "true")
	writeJSON(w, http.StatusOK, bookingResponse{
		ReservationID:    rec.ReservationID,
		ConfirmationCode: (&models.Reservation{ID: rec.ReservationID}).ConfirmationCode(),
		RedirectURL:      rec.RedirectURL,
	})
	return true
}

func (s *HTTPServer) rememberBooking(r *http.Request, key, fingerprint string, resp bookingResponse) {
	if s.deps.Idempotency == nil {
		return
	}
	rec := &models.IdempotencyRecord{
		Key:           key,
		Fingerprint:   fingerprint,
		ReservationID: resp.ReservationID,
		RedirectURL:   resp.RedirectURL,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.deps.Idempotency.Save(r.Context(), rec, s.idempotencyTTL); err != nil {
		requestLogger(r).Warn().Err(err).Int64("reservation_id", resp.ReservationID).Msg("idempotency record not saved")
	}
}

func (s *HTTPServer) handleResumeCheckout(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := pathID(ps, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	res, err := s.deps.Booking.ResumeCheckout(r.Context(), id)
	if err != nil {
		s.writeBookingError(w, r, res, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingResponse(res))
}

func (s *HTTPServer) handlePaymentSuccess(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := pathID(ps, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))

	res, err := s.deps.Booking.ReconcilePayment(r.Context(), id, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentVerification) {
			requestLogger(r).Warn().Err(err).Int64("reservation_id", id).Str("session_id", sessionID).Msg("payment not verified")
			writeJSON(w, http.StatusPaymentRequired, map[string]any{
				"error":          msgPaymentVerificationFailed,
				"reservation_id": id,
			})
			return
		}
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":           "Payment successful! Your reservation is confirmed.",
		"reservation_id":    res.ID,
		"confirmation_code": res.ConfirmationCode(),
		"status":            res.Status,
		"payment_status":    res.PaymentStatus,
	})
}

// handlePaymentCancel is where the processor sends a payer who left checkout.
// It abandons the checkout instead of cancelling the booking outright: the
// link is unauthenticated, so it only releases a reservation still awaiting
// payment and never cancels one that is already confirmed.
func (s *HTTPServer) handlePaymentCancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := pathID(ps, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	res, err := s.deps.Booking.AbandonCheckout(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":           msgPaymentCancelled,
		"reservation_id":    res.ID,
		"confirmation_code": res.ConfirmationCode(),
		"status":            res.Status,
		"payment_status":    res.PaymentStatus,
	})
}
