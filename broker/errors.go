package broker

import (
	"errors"
	"fmt"
)

// ErrOrderNotFound is returned by status and cancel calls for IDs the
// venue has no record of.
var ErrOrderNotFound = errors.New("broker: order not found")

// TransientError wraps a venue fault worth retrying: timeouts,
// disconnects, throttling.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient broker error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is safe to retry against the venue.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// RejectError is a definitive refusal from the venue. Retrying the
// same order will not help.
type RejectError struct {
	Symbol string
	Reason string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("order rejected for %s: %s", e.Symbol, e.Reason)
}

// IsReject reports whether err is a venue rejection.
func IsReject(err error) bool {
	var re *RejectError
	return errors.As(err, &re)
}
