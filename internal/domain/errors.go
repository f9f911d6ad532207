package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the reservation services. Callers classify with errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrPaymentVerification = errors.New("payment verification failed")
)

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// GatewayUnavailable wraps a transport or processor failure.
func GatewayUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrGatewayUnavailable, op, err)
}

func PaymentVerificationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPaymentVerification, fmt.Sprintf(format, args...))
}

// ErrUnknownSession is returned by a gateway that has no record of a session id.
var ErrUnknownSession = errors.New("unknown payment session")
