package runner

import "fmt"

// HalfOpenHedgeError reports an entry or exit where one leg was
// accepted by the broker but the other could not be placed. The
// accepted leg gets a compensating order; the operator gets this.
type HalfOpenHedgeError struct {
	PairID    string
	FilledLeg string // symbol of the leg the broker accepted
	FailedLeg string // symbol of the leg that failed
	Cause     error
}

func (e *HalfOpenHedgeError) Error() string {
	return fmt.Sprintf("half-open hedge on %s: %s accepted, %s failed: %v",
		e.PairID, e.FilledLeg, e.FailedLeg, e.Cause)
}

func (e *HalfOpenHedgeError) Unwrap() error { return e.Cause }
