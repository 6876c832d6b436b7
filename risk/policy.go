// Package risk turns trade signals into sized order plans, or rejects
// them against the portfolio limits. It never touches the ledger; it
// only reads snapshots.
package risk

import (
	"fmt"

	"pairbot/broker"
)

// Policy holds the portfolio limits.
type Policy struct {
	// Exposure limits
	MaxGrossExposure float64 // combined notional across all held pairs
	MaxPairNotional  float64 // combined notional of one pair's two legs

	// Sizing
	RiskBudgetPerPair float64 // leg A target notional, pairs may override

	// Circuit breaker
	MaxDailyLoss float64 // 0 disables
}

// Rejection reasons, in the order the checks run.
const (
	ReasonPairAlreadyOpen = "pair_already_open"
	ReasonGrossExposure   = "gross_exposure_exceeded"
	ReasonPairNotional    = "pair_notional_exceeded"
	ReasonZeroQuantity    = "zero_quantity"
	ReasonDailyLoss       = "daily_loss_limit"
)

// Rejection is why an entry was refused. The first failing check wins.
type Rejection struct {
	Reason string
	Detail string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("risk rejection %s: %s", r.Reason, r.Detail)
}

func reject(reason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// PlanKind says what a plan does.
type PlanKind int

const (
	PlanNone PlanKind = iota
	PlanOpen
	PlanClose
)

func (k PlanKind) String() string {
	switch k {
	case PlanOpen:
		return "open"
	case PlanClose:
		return "close"
	default:
		return "none"
	}
}

// Draft is one leg of a plan, ready to become an order. Qty is
// positive; Side carries direction. RefPrice is the price the sizing
// used.
type Draft struct {
	Symbol   string
	Side     broker.Side
	Qty      float64
	RefPrice float64
}

// SignedQty folds Side back into a signed quantity.
func (d Draft) SignedQty() float64 {
	if d.Side == broker.Sell {
		return -d.Qty
	}
	return d.Qty
}

// Notional is the leg's absolute value at the reference price.
func (d Draft) Notional() float64 {
	return d.Qty * d.RefPrice
}

// Plan is a sized two-leg order plan for one pair.
type Plan struct {
	PairID    string
	Kind      PlanKind
	LegA      Draft
	LegB      Draft
	Rationale string
}

// Notional is the combined absolute notional of both legs.
func (p Plan) Notional() float64 {
	return p.LegA.Notional() + p.LegB.Notional()
}
