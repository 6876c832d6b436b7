package ledger

import "fmt"

// UnknownOrderError is returned when a fill references an order the
// ledger never staged. The fill must not be applied anywhere.
type UnknownOrderError struct {
	OrderID string
}

func (e *UnknownOrderError) Error() string {
	return fmt.Sprintf("fill for unknown order %s", e.OrderID)
}
