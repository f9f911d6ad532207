package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"campspots/internal/availability"
	"campspots/internal/config"
	"campspots/internal/database"
	"campspots/internal/domain"
	"campspots/internal/events"
	"campspots/internal/gateway"
	"campspots/internal/metrics"
	"campspots/internal/models"
	"campspots/internal/pricing"

	"github.com/rs/zerolog"
)

const (
	syncTaskUpsert       = "upsert"
	syncTaskUpdateStatus = "update_status"

	maxCancelAttempts = 3
)

// BookingOptions tunes the reservation lifecycle.
type BookingOptions struct {
	Currency       string
	MaxAdvanceDays int
	PendingTTL     time.Duration
	SweepBatchSize int
	GatewayTimeout time.Duration
	// PublicBaseURL prefixes the payment return links.
	PublicBaseURL string
	Location      *time.Location
}

func BookingOptionsFromConfig(cfg *config.Config) BookingOptions {
	return BookingOptions{
		Currency:       cfg.Booking.Currency,
		MaxAdvanceDays: cfg.Booking.MaxAdvanceDays,
		PendingTTL:     cfg.Booking.PendingTTL,
		SweepBatchSize: cfg.Booking.SweepBatchSize,
		GatewayTimeout: cfg.Payment.Timeout,
		PublicBaseURL:  cfg.API.HTTP.PublicBaseURL,
		Location:       cfg.Location(),
	}
}

type CustomerInfo struct {
	Name  string `json:"customer_name"`
	Email string `json:"customer_email"`
	Phone string `json:"customer_phone"`
}

type Occupancy struct {
	Occupants       int    `json:"num_occupants"`
	Vehicles        int    `json:"num_vehicles"`
	VehicleInfo     string `json:"vehicle_info"`
	SpecialRequests string `json:"special_requests"`
}

type BookingRequest struct {
	SiteID        int64
	Customer      CustomerInfo
	ArrivalDate   time.Time
	DepartureDate time.Time
	Occupancy     Occupancy
	CreatedBy     string
}

type AvailabilityResult struct {
	SiteID    int64  `json:"site_id"`
	Available bool   `json:"available"`
	Arrival   string `json:"arrival_date"`
	Departure string `json:"departure_date"`
	pricing.Quote
}

// BookingResult carries the pending reservation and where to send the payer.
// Reservation is set even when the payment session could not be created.
type BookingResult struct {
	Reservation *models.Reservation
	RedirectURL string
}

// ExpiryReport summarizes one ExpireStalePending pass.
type ExpiryReport struct {
	Examined  int `json:"examined"`
	Expired   int `json:"expired"`
	Confirmed int `json:"confirmed"`
	Skipped   int `json:"skipped"`
}

type BookingService struct {
	repo         domain.ReservationRepository
	gateway      domain.PaymentGateway
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	opts         BookingOptions
	now          func() time.Time
	logger       *zerolog.Logger

	// sweepAfter is the id the next expiry pass resumes after.
	sweepMu    sync.Mutex
	sweepAfter int64
}

func NewBookingService(
	repo domain.ReservationRepository,
	gw domain.PaymentGateway,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	opts BookingOptions,
	logger *zerolog.Logger,
) *BookingService {
	if opts.MaxAdvanceDays <= 0 {
		opts.MaxAdvanceDays = 365
	}
	if opts.Currency == "" {
		opts.Currency = models.DefaultCurrency
	}
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = 2 * time.Hour
	}
	if opts.SweepBatchSize <= 0 {
		opts.SweepBatchSize = 100
	}
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 10 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")

	return &BookingService{
		repo:         repo,
		gateway:      gw,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		opts:         opts,
		now:          time.Now,
		logger:       logger,
	}
}

// SetClock replaces the time source.
func (s *BookingService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *BookingService) today() time.Time {
	return models.DateOf(s.now().In(s.opts.Location))
}

// ParseStay parses calendar dates from request input.
func ParseStay(arrival, departure string) (availability.DateRange, error) {
	if arrival == "" || departure == "" {
		return availability.DateRange{}, domain.Validationf("arrival and departure dates are required")
	}
	a, err := models.ParseDate(arrival)
	if err != nil {
		return availability.DateRange{}, domain.Validationf("invalid arrival date %q, expected YYYY-MM-DD", arrival)
	}
	d, err := models.ParseDate(departure)
	if err != nil {
		return availability.DateRange{}, domain.Validationf("invalid departure date %q, expected YYYY-MM-DD", departure)
	}
	return availability.NewDateRange(a, d), nil
}

func (s *BookingService) ValidateStay(stay availability.DateRange) error {
	if !stay.Valid() {
		return domain.Validationf("departure date must be after arrival date")
	}
	today := s.today()
	if stay.Start.Before(today) {
		return domain.Validationf("arrival date %s is in the past", models.FormatDate(stay.Start))
	}
	if stay.Start.After(today.AddDate(0, 0, s.opts.MaxAdvanceDays)) {
		return domain.Validationf("arrival date %s is more than %d days ahead", models.FormatDate(stay.Start), s.opts.MaxAdvanceDays)
	}
	return nil
}

// RequestAvailability answers whether a site is free for a stay and what it costs.
func (s *BookingService) RequestAvailability(ctx context.Context, siteID int64, arrival, departure time.Time) (*AvailabilityResult, error) {
	stay := availability.NewDateRange(arrival, departure)
	if err := s.ValidateStay(stay); err != nil {
		return nil, err
	}

	site, err := s.repo.GetSite(ctx, siteID)
	if err != nil {
		return nil, storeError(err, "site %d", siteID)
	}

	quote, err := pricing.ForSite(site, stay)
	if err != nil {
		return nil, domain.Validationf("%s", err.Error())
	}

	result := &AvailabilityResult{
		SiteID:    siteID,
		Arrival:   models.FormatDate(stay.Start),
		Departure: models.FormatDate(stay.End),
		Quote:     quote,
	}
	if !site.Active {
		return result, nil
	}

	occupied, err := s.repo.OccupiedRanges(ctx, siteID, stay)
	if err != nil {
		return nil, storeError(err, "site %d", siteID)
	}
	result.Available = availability.IsAvailable(occupied, stay)
	return result, nil
}

func validateCustomer(c *CustomerInfo) error {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	c.Phone = strings.TrimSpace(c.Phone)

	if c.Name == "" || c.Email == "" || c.Phone == "" {
		return domain.Validationf("customer name, email and phone are required")
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return domain.Validationf("invalid email address %q", c.Email)
	}
	return nil
}

func validateOccupancy(o Occupancy, site *models.Site) error {
	if o.Occupants < 1 || o.Occupants > site.MaxOccupancy {
		return domain.Validationf("occupants must be between 1 and %d", site.MaxOccupancy)
	}
	if o.Vehicles < 0 || o.Vehicles > site.MaxVehicles {
		return domain.Validationf("vehicles must be between 0 and %d", site.MaxVehicles)
	}
	return nil
}

// CreateBooking re-checks availability atomically with the insert of a
// (pending, pending) reservation, then opens a payment session for its frozen total.
// If the gateway fails the returned result still carries the pending reservation.
// A stay with a zero total has nothing to collect and is confirmed at once.
func (s *BookingService) CreateBooking(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	if err := validateCustomer(&req.Customer); err != nil {
		return nil, err
	}
	stay := availability.NewDateRange(req.ArrivalDate, req.DepartureDate)
	if err := s.ValidateStay(stay); err != nil {
		return nil, err
	}

	site, err := s.repo.GetSite(ctx, req.SiteID)
	if err != nil {
		return nil, storeError(err, "site %d", req.SiteID)
	}
	campground, err := s.repo.GetCampground(ctx, site.CampgroundID)
	if err != nil {
		return nil, storeError(err, "campground %d", site.CampgroundID)
	}
	if !site.Active || !campground.Active {
		return nil, domain.Validationf("site %s at %s is not accepting reservations", site.SiteNumber, campground.Name)
	}
	if err := validateOccupancy(req.Occupancy, site); err != nil {
		return nil, err
	}

	quote, err := pricing.ForSite(site, stay)
	if err != nil {
		return nil, domain.Validationf("%s", err.Error())
	}

	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = models.CreatedByCustomer
	}
	r := &models.Reservation{
		SiteID:          site.ID,
		CustomerName:    req.Customer.Name,
		CustomerEmail:   req.Customer.Email,
		CustomerPhone:   req.Customer.Phone,
		ArrivalDate:     stay.Start,
		DepartureDate:   stay.End,
		Nights:          quote.Nights,
		Occupants:       req.Occupancy.Occupants,
		Vehicles:        req.Occupancy.Vehicles,
		VehicleInfo:     strings.TrimSpace(req.Occupancy.VehicleInfo),
		SpecialRequests: strings.TrimSpace(req.Occupancy.SpecialRequests),
		TotalAmount:     quote.Total,
		Currency:        s.opts.Currency,
		PaymentStatus:   models.PaymentPending,
		Status:          models.StatusPending,
		CreatedBy:       createdBy,
	}

	if err := s.repo.CreateReservationWithLock(ctx, r); err != nil {
		if errors.Is(err, database.ErrNotAvailable) {
			metrics.IncBookingConflict()
			s.logger.Info().Int64("site_id", site.ID).
				Str("arrival", models.FormatDate(stay.Start)).
				Str("departure", models.FormatDate(stay.End)).
				Msg("booking rejected, site unavailable")
			return nil, domain.Conflictf("site %s is not available from %s to %s",
				site.SiteNumber, models.FormatDate(stay.Start), models.FormatDate(stay.End))
		}
		s.logger.Error().Err(err).Int64("site_id", site.ID).Msg("failed to create reservation")
		return nil, storeError(err, "site %d", site.ID)
	}

	metrics.IncReservationCreated()
	s.logger.Info().Int64("reservation_id", r.ID).Int64("site_id", site.ID).
		Str("total", r.TotalAmount.String()).Msg("pending reservation created")

	s.publishEvent(events.EventReservationCreated, r, campground.Name, site.SiteNumber, "")
	s.enqueueSync(ctx, r.ID, syncTaskUpsert)

	result := &BookingResult{Reservation: r}
	if r.TotalAmount == 0 {
		noCharge := &domain.Settlement{Status: domain.SettlementPaid, PaymentID: models.PaymentIDNoCharge}
		if err := s.confirm(ctx, r, noCharge, ""); err != nil {
			return result, err
		}
		return result, nil
	}

	redirect, err := s.startCheckout(ctx, r, campground.Name, site.SiteNumber)
	if err != nil {
		return result, err
	}
	result.RedirectURL = redirect
	return result, nil
}

// ResumeCheckout opens a fresh payment session for a reservation still awaiting
// payment. The previous session is expired first; if it turns out to be paid the
// reservation is confirmed and no new session is opened.
func (s *BookingService) ResumeCheckout(ctx context.Context, reservationID int64) (*BookingResult, error) {
	d, err := s.repo.GetReservationDetails(ctx, reservationID)
	if err != nil {
		return nil, storeError(err, "reservation %d", reservationID)
	}
	r := &d.Reservation
	if !r.AwaitingPayment() {
		return nil, domain.Conflictf("reservation %s is %s/%s", r.ConfirmationCode(), r.Status, r.PaymentStatus)
	}

	result := &BookingResult{Reservation: r}
	st, err := s.closeCheckout(ctx, r)
	if err != nil {
		s.logger.Warn().Err(err).Int64("reservation_id", r.ID).Msg("previous payment session not closed")
		return result, err
	}
	if st != nil {
		if err := s.settlePaid(ctx, r, st); err != nil {
			return result, err
		}
		metrics.IncReconciled("confirmed")
		return result, domain.Conflictf("reservation %s is already paid", r.ConfirmationCode())
	}

	redirect, err := s.startCheckout(ctx, r, d.CampgroundName, d.SiteNumber)
	if err != nil {
		return result, err
	}
	result.RedirectURL = redirect
	return result, nil
}

func (s *BookingService) startCheckout(ctx context.Context, r *models.Reservation, campgroundName, siteNumber string) (string, error) {
	gctx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	defer cancel()

	session, err := s.gateway.CreatePayableSession(gctx, domain.CheckoutRequest{
		Amount:   r.TotalAmount,
		Currency: r.Currency,
		Name:     fmt.Sprintf("%s site %s", campgroundName, siteNumber),
		Description: fmt.Sprintf("%s to %s, %d night(s), confirmation %s",
			models.FormatDate(r.ArrivalDate), models.FormatDate(r.DepartureDate), r.Nights, r.ConfirmationCode()),
		SuccessURL:    fmt.Sprintf("%s/payment/success/%d?session_id=%s", s.opts.PublicBaseURL, r.ID, gateway.SessionIDPlaceholder),
		CancelURL:     fmt.Sprintf("%s/payment/cancel/%d", s.opts.PublicBaseURL, r.ID),
		CustomerEmail: r.CustomerEmail,
		Reference:     gateway.Reference(r.ID),
		ExpiresAfter:  s.opts.PendingTTL,
	})
	if err != nil {
		s.logger.Error().Err(err).Int64("reservation_id", r.ID).Msg("payment session not created, reservation left pending")
		if !errors.Is(err, domain.ErrGatewayUnavailable) {
			err = domain.GatewayUnavailable("create session", err)
		}
		return "", err
	}

	if err := s.repo.AttachGatewaySession(ctx, r.ID, r.Version, session.ID); err != nil {
		s.logger.Error().Err(err).Int64("reservation_id", r.ID).Str("session_id", session.ID).Msg("failed to store payment session")
		if errors.Is(err, database.ErrConcurrentModification) {
			return "", domain.Conflictf("reservation %s changed during checkout", r.ConfirmationCode())
		}
		return "", storeError(err, "reservation %d", r.ID)
	}
	r.GatewaySessionID = session.ID
	r.Version++

	return session.RedirectURL, nil
}

// ReconcilePayment confirms a reservation once the gateway reports the session paid.
// Repeated calls on a confirmed reservation are no-ops. Any unverifiable outcome
// leaves the reservation untouched and reports ErrPaymentVerification.
func (s *BookingService) ReconcilePayment(ctx context.Context, reservationID int64, sessionID string) (*models.Reservation, error) {
	r, err := s.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, storeError(err, "reservation %d", reservationID)
	}
	log := s.logger.With().Int64("reservation_id", r.ID).Str("session_id", sessionID).Logger()

	if r.Status == models.StatusConfirmed || r.Status == models.StatusCompleted {
		metrics.IncReconciled("noop")
		return r, nil
	}
	if sessionID == "" {
		return nil, domain.Validationf("session id is required")
	}
	if r.GatewaySessionID == "" || r.GatewaySessionID != sessionID {
		metrics.IncReconciled("rejected")
		log.Warn().Str("stored_session_id", r.GatewaySessionID).Msg("payment session does not belong to reservation")
		return nil, domain.PaymentVerificationf("session does not match reservation %s", r.ConfirmationCode())
	}

	st, err := s.settlement(ctx, sessionID)
	if err != nil {
		metrics.IncReconciled("gateway_error")
		log.Error().Err(err).Msg("settlement lookup failed")
		return nil, err
	}

	if r.Status == models.StatusCancelled {
		metrics.IncReconciled("rejected")
		if st.Status == domain.SettlementPaid {
			log.Error().Str("payment_id", st.PaymentID).Str("amount", st.Amount.String()).
				Msg("settlement received for cancelled reservation, refund required")
		}
		return nil, domain.PaymentVerificationf("reservation %s was cancelled", r.ConfirmationCode())
	}

	if err := verifySettlement(r, st); err != nil {
		if errors.Is(err, errNotPaid) {
			metrics.IncReconciled("unpaid")
		} else {
			metrics.IncReconciled("rejected")
			log.Error().Err(err).Msg("settlement does not match reservation")
		}
		return nil, err
	}

	if err := s.confirm(ctx, r, st, sessionID); err != nil {
		return nil, err
	}
	metrics.IncReconciled("confirmed")
	return r, nil
}

var errNotPaid = errors.New("payment not completed")

func verifySettlement(r *models.Reservation, st *domain.Settlement) error {
	if st.Status != domain.SettlementPaid {
		return fmt.Errorf("%w: %w (%s)", domain.ErrPaymentVerification, errNotPaid, st.Status)
	}
	if st.Amount != r.TotalAmount {
		return domain.PaymentVerificationf("settled amount %s differs from reservation total %s", st.Amount, r.TotalAmount)
	}
	if st.Currency != "" && !strings.EqualFold(st.Currency, r.Currency) {
		return domain.PaymentVerificationf("settled currency %s differs from %s", st.Currency, r.Currency)
	}
	if st.Reference != "" && st.Reference != gateway.Reference(r.ID) {
		return domain.PaymentVerificationf("settlement references reservation %s", st.Reference)
	}
	return nil
}

func (s *BookingService) settlement(ctx context.Context, sessionID string) (*domain.Settlement, error) {
	gctx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	defer cancel()

	st, err := s.gateway.GetSessionSettlement(gctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownSession) {
			return nil, fmt.Errorf("%w: %w", domain.ErrPaymentVerification, err)
		}
		if !errors.Is(err, domain.ErrGatewayUnavailable) {
			err = domain.GatewayUnavailable("get session", err)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrPaymentVerification, err)
	}
	return st, nil
}

// closeCheckout expires the reservation's payment session so it cannot be paid
// once the reservation is released or replaced. A session that settled before it
// could be expired is returned for the caller to confirm.
func (s *BookingService) closeCheckout(ctx context.Context, r *models.Reservation) (*domain.Settlement, error) {
	if r.GatewaySessionID == "" {
		return nil, nil
	}

	gctx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	err := s.gateway.ExpireSession(gctx, r.GatewaySessionID)
	cancel()
	switch {
	case err == nil, errors.Is(err, domain.ErrUnknownSession):
		return nil, nil
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return nil, err
	}

	// The processor refused; find out whether the payer got there first.
	gctx, cancel = context.WithTimeout(ctx, s.opts.GatewayTimeout)
	st, lookupErr := s.gateway.GetSessionSettlement(gctx, r.GatewaySessionID)
	cancel()
	switch {
	case errors.Is(lookupErr, domain.ErrUnknownSession):
		return nil, nil
	case lookupErr != nil:
		if !errors.Is(lookupErr, domain.ErrGatewayUnavailable) {
			lookupErr = domain.GatewayUnavailable("get session", lookupErr)
		}
		return nil, lookupErr
	case st.Status == domain.SettlementPaid:
		return st, nil
	case st.Status == domain.SettlementFailed:
		return nil, nil
	}
	return nil, domain.GatewayUnavailable("expire session", err)
}

func (s *BookingService) settlePaid(ctx context.Context, r *models.Reservation, st *domain.Settlement) error {
	if err := verifySettlement(r, st); err != nil {
		s.logger.Error().Err(err).Int64("reservation_id", r.ID).Msg("settlement does not match reservation")
		return err
	}
	return s.confirm(ctx, r, st, r.GatewaySessionID)
}

// confirm applies (confirmed, paid). Losing a version race to another
// confirmation is reported as success.
func (s *BookingService) confirm(ctx context.Context, r *models.Reservation, st *domain.Settlement, sessionID string) error {
	paymentID := st.PaymentID
	if paymentID == "" {
		paymentID = sessionID
	}

	err := s.repo.ConfirmReservation(ctx, r.ID, r.Version, paymentID)
	if errors.Is(err, database.ErrConcurrentModification) {
		current, getErr := s.repo.GetReservation(ctx, r.ID)
		if getErr != nil {
			return storeError(getErr, "reservation %d", r.ID)
		}
		if current.IsConfirmed() {
			*r = *current
			return nil
		}
		s.logger.Warn().Int64("reservation_id", r.ID).Str("status", current.Status).Msg("reservation changed while confirming payment")
		return domain.PaymentVerificationf("reservation %s changed to %s during confirmation", r.ConfirmationCode(), current.Status)
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("reservation_id", r.ID).Msg("failed to confirm reservation")
		return storeError(err, "reservation %d", r.ID)
	}

	r.Status = models.StatusConfirmed
	r.PaymentStatus = models.PaymentPaid
	r.GatewayPaymentID = paymentID
	r.Version++

	s.logger.Info().Int64("reservation_id", r.ID).Str("payment_id", paymentID).Msg("reservation confirmed")
	s.publishEvent(events.EventReservationConfirmed, r, "", "", "")
	s.enqueueSync(ctx, r.ID, syncTaskUpdateStatus)
	return nil
}

// CancelBooking moves a reservation to (cancelled, cancelled) whatever its
// payment state. Cancelling a cancelled reservation is a no-op. An open payment
// session is expired first, so the call fails while the gateway is unreachable.
func (s *BookingService) CancelBooking(ctx context.Context, reservationID int64) (*models.Reservation, error) {
	return s.cancel(ctx, reservationID, false, events.EventReservationCancelled, "cancelled")
}

// AbandonCheckout handles the payer returning from a cancelled checkout. Only a
// reservation still awaiting payment is cancelled; a settled one is returned as is.
func (s *BookingService) AbandonCheckout(ctx context.Context, reservationID int64) (*models.Reservation, error) {
	return s.cancel(ctx, reservationID, true, events.EventReservationCancelled, "checkout abandoned")
}

func (s *BookingService) cancel(ctx context.Context, reservationID int64, onlyAwaiting bool, eventType, reason string) (*models.Reservation, error) {
	for attempt := 0; attempt < maxCancelAttempts; attempt++ {
		r, err := s.repo.GetReservation(ctx, reservationID)
		if err != nil {
			return nil, storeError(err, "reservation %d", reservationID)
		}

		switch {
		case r.Status == models.StatusCancelled:
			return r, nil
		case r.Status == models.StatusCompleted:
			return nil, domain.Conflictf("reservation %s is already completed", r.ConfirmationCode())
		case onlyAwaiting && !r.AwaitingPayment():
			return r, nil
		}

		if r.AwaitingPayment() {
			st, err := s.closeCheckout(ctx, r)
			if err != nil {
				s.logger.Warn().Err(err).Int64("reservation_id", r.ID).Msg("payment session not closed, reservation kept")
				return nil, err
			}
			if st != nil {
				settleErr := s.settlePaid(ctx, r, st)
				if settleErr == nil {
					metrics.IncReconciled("confirmed")
					continue
				}
				if onlyAwaiting {
					return nil, settleErr
				}
				s.logger.Error().Str("payment_id", st.PaymentID).Int64("reservation_id", r.ID).
					Msg("cancelling reservation with a settled session, refund required")
			}
		}

		err = s.repo.CancelReservation(ctx, r.ID, r.Version)
		if errors.Is(err, database.ErrConcurrentModification) {
			continue
		}
		if err != nil {
			s.logger.Error().Err(err).Int64("reservation_id", r.ID).Msg("failed to cancel reservation")
			return nil, storeError(err, "reservation %d", r.ID)
		}

		r.Status = models.StatusCancelled
		r.PaymentStatus = models.PaymentCancelled
		r.Version++

		s.logger.Info().Int64("reservation_id", r.ID).Str("reason", reason).Msg("reservation cancelled")
		s.publishEvent(eventType, r, "", "", reason)
		s.enqueueSync(ctx, r.ID, syncTaskUpdateStatus)
		return r, nil
	}
	return nil, domain.Conflictf("reservation %d kept changing, try again", reservationID)
}

// ExpireStalePending cancels (pending, pending) reservations older than the
// pending TTL after expiring their payment sessions. A session the gateway
// reports paid is confirmed instead, and a reservation whose session cannot be
// closed is left for a later pass. Each pass resumes after the last reservation
// the previous one examined, so rows that keep being skipped do not starve the rest.
func (s *BookingService) ExpireStalePending(ctx context.Context, now time.Time) (*ExpiryReport, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	cutoff := now.Add(-s.opts.PendingTTL)
	batch := s.opts.SweepBatchSize
	stale, err := s.repo.ListStalePending(ctx, cutoff, s.sweepAfter, batch)
	if err != nil {
		return nil, fmt.Errorf("list stale reservations: %w", err)
	}

	report := &ExpiryReport{Examined: len(stale)}
	lastID := s.sweepAfter
	for _, r := range stale {
		if ctx.Err() != nil {
			break
		}
		lastID = r.ID
		log := s.logger.With().Int64("reservation_id", r.ID).Str("session_id", r.GatewaySessionID).Logger()

		st, err := s.closeCheckout(ctx, r)
		if err != nil {
			log.Warn().Err(err).Msg("payment session not closed, expiry postponed")
			report.Skipped++
			continue
		}
		if st != nil {
			if err := s.settlePaid(ctx, r, st); err != nil {
				log.Warn().Err(err).Msg("late payment not confirmed, left for review")
				report.Skipped++
				continue
			}
			metrics.IncReconciled("confirmed")
			report.Confirmed++
			continue
		}

		if err := s.repo.CancelReservation(ctx, r.ID, r.Version); err != nil {
			if !errors.Is(err, database.ErrConcurrentModification) {
				log.Error().Err(err).Msg("failed to expire reservation")
			}
			report.Skipped++
			continue
		}
		r.Status = models.StatusCancelled
		r.PaymentStatus = models.PaymentCancelled
		r.Version++
		report.Expired++

		log.Info().Time("created_at", r.CreatedAt).Msg("stale pending reservation expired")
		s.publishEvent(events.EventReservationExpired, r, "", "", "payment not completed in time")
		s.enqueueSync(ctx, r.ID, syncTaskUpdateStatus)
	}

	if len(stale) < batch {
		s.sweepAfter = 0
	} else {
		s.sweepAfter = lastID
	}

	metrics.IncPendingExpired(report.Expired)
	return report, nil
}

func (s *BookingService) GetReservation(ctx context.Context, id int64) (*models.ReservationDetails, error) {
	d, err := s.repo.GetReservationDetails(ctx, id)
	if err != nil {
		return nil, storeError(err, "reservation %d", id)
	}
	return d, nil
}

func (s *BookingService) ListReservations(ctx context.Context, f models.ReservationFilter) ([]*models.ReservationDetails, error) {
	if f.Status != "" && !models.IsValidStatus(f.Status) {
		return nil, domain.Validationf("unknown status %q", f.Status)
	}
	list, err := s.repo.ListReservations(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return list, nil
}

func (s *BookingService) Dashboard(ctx context.Context) (*models.ReservationStats, error) {
	counts, err := s.repo.CountReservationsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count reservations: %w", err)
	}
	recent, err := s.repo.RecentReservations(ctx, models.RecentReservationsLimit)
	if err != nil {
		return nil, fmt.Errorf("recent reservations: %w", err)
	}

	stats := &models.ReservationStats{
		Confirmed: counts[models.StatusConfirmed],
		Pending:   counts[models.StatusPending],
		Cancelled: counts[models.StatusCancelled],
		Recent:    recent,
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

func (s *BookingService) publishEvent(eventType string, r *models.Reservation, campgroundName, siteNumber, reason string) {
	if s.eventBus == nil {
		return
	}

	payload := events.NewReservationPayload(r, campgroundName, siteNumber)
	payload.Reason = reason
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("reservation_id", r.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, reservationID int64, taskType string) {
	if s.sheetsWorker == nil {
		return
	}

	details, err := s.repo.GetReservationDetails(ctx, reservationID)
	if err != nil {
		s.logger.Error().Err(err).Int64("reservation_id", reservationID).Msg("sheets sync skipped, reservation not loaded")
		return
	}
	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, reservationID, details); err != nil {
		s.logger.Error().Err(err).Int64("reservation_id", reservationID).Str("task", taskType).Msg("sheets enqueue error")
	}
}

// storeError maps store sentinels onto the service error kinds.
func storeError(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return domain.NotFoundf("%s", what)
	case errors.Is(err, database.ErrDuplicate):
		return domain.Conflictf("%s already exists", what)
	case errors.Is(err, database.ErrInUse):
		return domain.Conflictf("%s is referenced by reservations", what)
	case errors.Is(err, database.ErrNotAvailable):
		return domain.Conflictf("%s is not available", what)
	}
	return fmt.Errorf("%s: %w", what, err)
}
