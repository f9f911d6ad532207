package gateway

import (
	"context"
	"time"

	"campspots/internal/domain"
	"campspots/internal/metrics"

	"github.com/rs/zerolog"
)

// Instrumented records latency and logs failures of the wrapped gateway.
type Instrumented struct {
	next   domain.PaymentGateway
	logger *zerolog.Logger
}

func NewInstrumented(next domain.PaymentGateway, logger *zerolog.Logger) *Instrumented {
	return &Instrumented{next: next, logger: logger}
}

func (g *Instrumented) CreatePayableSession(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	started := time.Now()
	session, err := g.next.CreatePayableSession(ctx, req)
	metrics.ObserveGateway("create_session", started, err)
	if err != nil {
		g.logger.Warn().Err(err).Str("reference", req.Reference).Dur("elapsed", time.Since(started)).Msg("create payable session failed")
		return nil, err
	}
	g.logger.Debug().Str("session_id", session.ID).Str("reference", req.Reference).Msg("payable session created")
	return session, nil
}

func (g *Instrumented) GetSessionSettlement(ctx context.Context, sessionID string) (*domain.Settlement, error) {
	started := time.Now()
	st, err := g.next.GetSessionSettlement(ctx, sessionID)
	metrics.ObserveGateway("get_settlement", started, err)
	if err != nil {
		g.logger.Warn().Err(err).Str("session_id", sessionID).Msg("get session settlement failed")
		return nil, err
	}
	return st, nil
}

func (g *Instrumented) ExpireSession(ctx context.Context, sessionID string) error {
	started := time.Now()
	err := g.next.ExpireSession(ctx, sessionID)
	metrics.ObserveGateway("expire_session", started, err)
	if err != nil {
		g.logger.Warn().Err(err).Str("session_id", sessionID).Msg("expire session failed")
		return err
	}
	g.logger.Debug().Str("session_id", sessionID).Msg("payable session expired")
	return nil
}
