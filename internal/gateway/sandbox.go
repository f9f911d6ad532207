package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"campspots/internal/domain"

	"github.com/google/uuid"
)

// SessionIDPlaceholder is substituted with the session id in return URLs.
const SessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

type sandboxSession struct {
	req       domain.CheckoutRequest
	status    string
	paymentID string
	expired   bool
}

var (
	errSessionPaid    = errors.New("session already paid")
	errSessionExpired = errors.New("session expired")
)

// Sandbox is an in-memory processor for development and tests. With autoPay
// every session settles as paid and the payer is sent straight to the success URL.
type Sandbox struct {
	mu          sync.Mutex
	sessions    map[string]*sandboxSession
	autoPay     bool
	unavailable bool
}

func NewSandbox(autoPay bool) *Sandbox {
	return &Sandbox{sessions: make(map[string]*sandboxSession), autoPay: autoPay}
}

func (s *Sandbox) CreatePayableSession(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.GatewayUnavailable("create session", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return nil, domain.GatewayUnavailable("create session", fmt.Errorf("sandbox offline"))
	}

	id := "cs_sandbox_" + uuid.NewString()
	sess := &sandboxSession{req: req, status: domain.SettlementUnpaid}
	if s.autoPay {
		sess.status = domain.SettlementPaid
		sess.paymentID = "pi_sandbox_" + uuid.NewString()
	}
	s.sessions[id] = sess

	redirect := "https://sandbox.invalid/checkout/" + id
	if s.autoPay {
		redirect = strings.ReplaceAll(req.SuccessURL, SessionIDPlaceholder, id)
	}
	return &domain.CheckoutSession{ID: id, RedirectURL: redirect}, nil
}

func (s *Sandbox) GetSessionSettlement(ctx context.Context, sessionID string) (*domain.Settlement, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.GatewayUnavailable("get session", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return nil, domain.GatewayUnavailable("get session", fmt.Errorf("sandbox offline"))
	}

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrUnknownSession)
	}
	return &domain.Settlement{
		Status:    sess.status,
		PaymentID: sess.paymentID,
		Amount:    sess.req.Amount,
		Currency:  sess.req.Currency,
		Reference: sess.req.Reference,
	}, nil
}

// ExpireSession closes an unpaid session. A paid session cannot be expired.
func (s *Sandbox) ExpireSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return domain.GatewayUnavailable("expire session", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return domain.GatewayUnavailable("expire session", fmt.Errorf("sandbox offline"))
	}

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrUnknownSession)
	}
	if sess.status == domain.SettlementPaid {
		return fmt.Errorf("session %s: %w", sessionID, errSessionPaid)
	}
	sess.expired = true
	sess.status = domain.SettlementFailed
	return nil
}

// MarkPaid settles a session as if the payer completed checkout. An expired
// session can no longer be paid.
func (s *Sandbox) MarkPaid(sessionID string) error {
	return s.set(sessionID, domain.SettlementPaid, "pi_sandbox_"+uuid.NewString())
}

func (s *Sandbox) MarkFailed(sessionID string) error {
	return s.set(sessionID, domain.SettlementFailed, "")
}

// SetUnavailable makes every call fail with a gateway error.
func (s *Sandbox) SetUnavailable(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = down
}

func (s *Sandbox) set(sessionID, status, paymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrUnknownSession)
	}
	if sess.expired && status == domain.SettlementPaid {
		return fmt.Errorf("session %s: %w", sessionID, errSessionExpired)
	}
	sess.status = status
	sess.paymentID = paymentID
	return nil
}
