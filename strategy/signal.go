// Package strategy computes trade signals for configured pairs. The
// mean-reversion engine keeps a rolling window per pair, regresses leg
// A on leg B for the hedge ratio and trades the z-score of the spread.
package strategy

import (
	"time"

	"github.com/rs/zerolog"

	"pairbot/market"
)

// Action is what the signal engine wants done with a pair.
type Action string

const (
	ActionHold Action = "HOLD"
	// ActionEnterLong longs the spread: buy A, sell B.
	ActionEnterLong Action = "ENTER_LONG"
	// ActionEnterShort shorts the spread: sell A, buy B.
	ActionEnterShort Action = "ENTER_SHORT"
	ActionExit       Action = "EXIT"
)

// Entry reports whether the action opens a position.
func (a Action) Entry() bool {
	return a == ActionEnterLong || a == ActionEnterShort
}

// TradeSignal is one evaluation result for one pair.
type TradeSignal struct {
	PairID     string
	Action     Action
	ZScore     float64
	HedgeRatio float64
	Time       time.Time
	Reason     string
}

// PairParams configures one traded pair.
type PairParams struct {
	ID              string
	SymbolA         string
	SymbolB         string
	WindowSize      int
	EntryThreshold  float64
	ExitThreshold   float64
	MaxHoldingTicks int     // 0 disables the time stop
	Notional        float64 // per-pair budget override, 0 uses the policy default
}

// SignalSource is what the execution loop consumes. Evaluate must
// never fail: any data problem degrades to HOLD.
type SignalSource interface {
	Evaluate(pairID string, a, b market.PricePoint, open bool) TradeSignal
	Pairs() []PairParams
}

// Factory builds a signal source from pair parameters.
type Factory func(params []PairParams, log zerolog.Logger) SignalSource
