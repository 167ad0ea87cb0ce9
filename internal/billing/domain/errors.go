package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrUnknownBundle          = errors.New("unknown bundle")
	ErrUnknownService         = errors.New("unknown service")
	ErrEmptySelection         = errors.New("bundle selection is empty")
	ErrInvalidInterval        = errors.New("invalid billing interval")
	ErrInvalidCatalog         = errors.New("invalid bundle catalog")
	ErrInvalidUser            = errors.New("user id and email are required")
	ErrInvalidEvent           = errors.New("invalid payment event")
	ErrSubscriptionNotFound   = fmt.Errorf("subscription %w", ErrNotFound)
	ErrConcurrentModification = errors.New("subscription state was modified concurrently")
	ErrGateway                = errors.New("payment gateway error")
	ErrGatewayUnavailable     = errors.New("payment gateway unavailable")
	ErrGatewayRejected        = errors.New("payment gateway rejected the request")
)

// UnknownBundleError names the bundle id that failed catalog lookup.
type UnknownBundleError struct {
	ID string
}

func (e *UnknownBundleError) Error() string {
	return fmt.Sprintf("unknown bundle %q", e.ID)
}

func (e *UnknownBundleError) Is(target error) bool {
	return target == ErrUnknownBundle
}

// GatewayError wraps a failed payment gateway call. Nothing is written
// locally when one is returned.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func (e *GatewayError) Is(target error) bool {
	return target == ErrGateway
}

// NewGatewayError wraps err unless it already is a GatewayError.
func NewGatewayError(op string, err error) error {
	if err == nil {
		return nil
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return err
	}
	return &GatewayError{Op: op, Err: err}
}
