package strategy

import (
	"sync"

	"github.com/rs/zerolog"

	"pairbot/market"
)

// Signal reasons, also recorded in the journal.
const (
	ReasonWarmingUp   = "warming_up"
	ReasonNoRatio     = "no_hedge_ratio"
	ReasonFlatSpread  = "flat_spread"
	ReasonSpreadRich  = "spread_rich"
	ReasonSpreadCheap = "spread_cheap"
	ReasonReverted    = "reverted"
	ReasonMaxHolding  = "max_holding"
)

type pairState struct {
	params    PairParams
	window    *market.PairWindow
	ticksHeld int
}

// Engine is the mean-reversion signal source.
type Engine struct {
	mu    sync.Mutex
	pairs map[string]*pairState
	order []PairParams
	log   zerolog.Logger
}

func NewEngine(params []PairParams, log zerolog.Logger) *Engine {
	e := &Engine{
		pairs: make(map[string]*pairState, len(params)),
		order: make([]PairParams, 0, len(params)),
		log:   log,
	}
	for _, p := range params {
		e.pairs[p.ID] = &pairState{
			params: p,
			window: market.NewPairWindow(p.WindowSize),
		}
		e.order = append(e.order, p)
	}
	return e
}

// Pairs returns the configured pairs in config order.
func (e *Engine) Pairs() []PairParams {
	out := make([]PairParams, len(e.order))
	copy(out, e.order)
	return out
}

func (e *Engine) hold(pairID, reason string, z, ratio float64, at market.PricePoint) TradeSignal {
	return TradeSignal{
		PairID:     pairID,
		Action:     ActionHold,
		ZScore:     z,
		HedgeRatio: ratio,
		Time:       at.Time,
		Reason:     reason,
	}
}

// Evaluate pushes one aligned observation and decides what to do with
// the pair. The open flag is the ledger's view of whether the pair has
// a live position; the engine tracks holding time from it.
func (e *Engine) Evaluate(pairID string, a, b market.PricePoint, open bool) TradeSignal {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.pairs[pairID]
	if !ok {
		e.log.Warn().Str("pair", pairID).Msg("evaluate called for unknown pair")
		return e.hold(pairID, "unknown_pair", 0, 0, a)
	}

	st.window.Push(a.Price, b.Price)

	if open {
		st.ticksHeld++
	} else {
		st.ticksHeld = 0
	}

	stats, ready := st.window.Stats()
	if !ready {
		reason := ReasonWarmingUp
		if st.window.Full() {
			reason = ReasonNoRatio
		}
		return e.hold(pairID, reason, 0, 0, a)
	}

	sig := TradeSignal{
		PairID:     pairID,
		Action:     ActionHold,
		ZScore:     stats.ZScore,
		HedgeRatio: stats.HedgeRatio,
		Time:       a.Time,
	}

	if open {
		// The time stop works even when the window degenerates.
		if st.params.MaxHoldingTicks > 0 && st.ticksHeld >= st.params.MaxHoldingTicks {
			sig.Action = ActionExit
			sig.Reason = ReasonMaxHolding
			return sig
		}
		if stats.Degenerate() {
			sig.Reason = ReasonFlatSpread
			return sig
		}
		if abs(stats.ZScore) <= st.params.ExitThreshold {
			sig.Action = ActionExit
			sig.Reason = ReasonReverted
		}
		return sig
	}

	if stats.Degenerate() {
		sig.Reason = ReasonFlatSpread
		return sig
	}
	switch {
	case stats.ZScore >= st.params.EntryThreshold:
		sig.Action = ActionEnterShort
		sig.Reason = ReasonSpreadRich
	case stats.ZScore <= -st.params.EntryThreshold:
		sig.Action = ActionEnterLong
		sig.Reason = ReasonSpreadCheap
	}
	return sig
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
