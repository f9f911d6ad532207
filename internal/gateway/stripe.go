package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"campspots/internal/config"
	"campspots/internal/domain"
	"campspots/internal/models"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"golang.org/x/time/rate"
)

// Stripe accepts a session lifetime between 30 minutes and 24 hours after creation.
const (
	minSessionLifetime = 31 * time.Minute
	maxSessionLifetime = 24 * time.Hour
)

// Stripe creates hosted checkout sessions through the Stripe API.
type Stripe struct {
	api     *client.API
	limiter *rate.Limiter
	timeout time.Duration
}

func NewStripe(cfg config.PaymentConfig, httpClient *http.Client) *Stripe {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(cfg.MaxRetries),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if cfg.APIBaseURL != "" {
		backendCfg.URL = stripe.String(cfg.APIBaseURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Stripe{
		api: client.New(cfg.SecretKey, &stripe.Backends{
			API:     backend,
			Connect: backend,
			Uploads: backend,
		}),
		limiter: rate.NewLimiter(limit, burst),
		timeout: cfg.Timeout,
	}
}

func (s *Stripe) CreatePayableSession(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, domain.GatewayUnavailable("create session", err)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.Reference),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(int64(req.Amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.Name),
						Description: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if req.ExpiresAfter > 0 {
		params.ExpiresAt = stripe.Int64(time.Now().Add(sessionLifetime(req.ExpiresAfter)).Unix())
	}
	params.AddMetadata("reservation_id", req.Reference)
	params.Context = ctx

	session, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, domain.GatewayUnavailable("create session", err)
	}
	return &domain.CheckoutSession{ID: session.ID, RedirectURL: session.URL}, nil
}

func (s *Stripe) GetSessionSettlement(ctx context.Context, sessionID string) (*domain.Settlement, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, domain.GatewayUnavailable("get session", err)
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	session, err := s.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrUnknownSession)
		}
		return nil, domain.GatewayUnavailable("get session", err)
	}

	return settlementFromSession(session), nil
}

// ExpireSession closes an open checkout session. Stripe refuses to expire a
// completed or already expired session; that refusal is returned unwrapped so
// callers can look the session up.
func (s *Stripe) ExpireSession(ctx context.Context, sessionID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.limiter.Wait(ctx); err != nil {
		return domain.GatewayUnavailable("expire session", err)
	}

	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	_, err := s.api.CheckoutSessions.Expire(sessionID, params)
	if err == nil {
		return nil
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.Code == stripe.ErrorCodeResourceMissing:
			return fmt.Errorf("session %s: %w", sessionID, domain.ErrUnknownSession)
		case stripeErr.Type == stripe.ErrorTypeInvalidRequest:
			return fmt.Errorf("expire session %s: %w", sessionID, err)
		}
	}
	return domain.GatewayUnavailable("expire session", err)
}

func sessionLifetime(d time.Duration) time.Duration {
	switch {
	case d < minSessionLifetime:
		return minSessionLifetime
	case d > maxSessionLifetime:
		return maxSessionLifetime
	}
	return d
}

func settlementFromSession(session *stripe.CheckoutSession) *domain.Settlement {
	st := &domain.Settlement{
		Status:    domain.SettlementUnpaid,
		Amount:    models.Cents(session.AmountTotal),
		Currency:  string(session.Currency),
		Reference: session.ClientReferenceID,
	}
	if st.Reference == "" && session.Metadata != nil {
		st.Reference = session.Metadata["reservation_id"]
	}

	switch {
	case session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		st.Status = domain.SettlementPaid
	case session.Status == stripe.CheckoutSessionStatusExpired:
		st.Status = domain.SettlementFailed
	}

	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		st.PaymentID = session.PaymentIntent.ID
	} else if st.Status == domain.SettlementPaid {
		st.PaymentID = session.ID
	}
	return st
}

func (s *Stripe) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Reference formats a reservation id for the processor's client reference field.
func Reference(reservationID int64) string {
	return strconv.FormatInt(reservationID, 10)
}
