// Package broker defines the venue-facing surface of the bot: the
// order model and the narrow Adapter interface the execution loop
// drives. Implementations live in subpackages (paper for the built-in
// fill simulator).
package broker

import (
	"context"
	"time"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the side that flattens this one.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Status is the lifecycle state of an order at the venue.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusSubmitted       Status = "SUBMITTED"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusRejected        Status = "REJECTED"
	StatusCancelled       Status = "CANCELLED"
)

// Terminal reports whether the venue will never change this status
// again.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Order is a market order for one leg of a pair. Qty is always
// positive; Side carries the direction.
type Order struct {
	ID           string    `json:"id"`
	PairID       string    `json:"pair_id"`
	Symbol       string    `json:"symbol"`
	Side         Side      `json:"side"`
	Qty          float64   `json:"qty"`
	Status       Status    `json:"status"`
	SubmittedAt  time.Time `json:"submitted_at"`
	FilledQty    float64   `json:"filled_qty"`
	AvgFillPrice float64   `json:"avg_fill_price"`
	Fills        []Fill    `json:"fills,omitempty"`
	RetryCount   int       `json:"retry_count"`
}

// SignedQty folds Side into the quantity: positive for buys, negative
// for sells.
func (o Order) SignedQty() float64 {
	if o.Side == Sell {
		return -o.Qty
	}
	return o.Qty
}

// Remaining is the unfilled quantity.
func (o Order) Remaining() float64 {
	r := o.Qty - o.FilledQty
	if r < 0 {
		return 0
	}
	return r
}

// Fill is one execution against an order. Seq numbers fills per order
// starting at 1 so downstream consumers can deduplicate.
type Fill struct {
	OrderID string    `json:"order_id"`
	Seq     int       `json:"seq"`
	Qty     float64   `json:"qty"`
	Price   float64   `json:"price"`
	Time    time.Time `json:"time"`
}

// PositionReport is the venue's view of one symbol's net position.
type PositionReport struct {
	Symbol   string  `json:"symbol"`
	Qty      float64 `json:"qty"` // signed
	AvgPrice float64 `json:"avg_price"`
}

// Adapter is everything the execution loop needs from a venue.
type Adapter interface {
	// SubmitOrder places a market order and returns it with the
	// venue-assigned ID and initial status. Rejections surface as
	// *RejectError, retryable faults as *TransientError.
	SubmitOrder(ctx context.Context, o Order) (Order, error)

	// CancelOrder cancels an open order. Cancelling an order that
	// already reached a terminal status is an error.
	CancelOrder(ctx context.Context, orderID string) error

	// GetOrderStatus returns the current view of the order,
	// including any fills so far. Unknown IDs return
	// ErrOrderNotFound.
	GetOrderStatus(ctx context.Context, orderID string) (Order, error)

	// GetPositions returns the venue's net position per symbol.
	GetPositions(ctx context.Context) ([]PositionReport, error)
}
