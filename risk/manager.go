package risk

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"pairbot/broker"
	"pairbot/ledger"
	"pairbot/market"
	"pairbot/strategy"
)

// Manager evaluates signals against the policy and sizes the orders.
type Manager struct {
	policy Policy
	pairs  map[string]strategy.PairParams
	log    zerolog.Logger
}

func NewManager(policy Policy, pairs []strategy.PairParams, log zerolog.Logger) *Manager {
	m := &Manager{
		policy: policy,
		pairs:  make(map[string]strategy.PairParams, len(pairs)),
		log:    log,
	}
	for _, p := range pairs {
		m.pairs[p.ID] = p
	}
	return m
}

// Plan maps a signal to a sized order plan. Entries run the ordered
// limit checks; the first failure comes back as the rejection and no
// plan is produced. Exits close the held quantities and are never
// rejected. HOLD and unplannable inputs yield PlanNone.
func (m *Manager) Plan(sig strategy.TradeSignal, snap ledger.Snapshot, prices map[string]float64) (Plan, *Rejection) {
	switch sig.Action {
	case strategy.ActionEnterLong, strategy.ActionEnterShort:
		return m.planOpen(sig, snap, prices)
	case strategy.ActionExit:
		return m.planClose(sig, snap, prices), nil
	default:
		return Plan{PairID: sig.PairID, Kind: PlanNone}, nil
	}
}

func (m *Manager) planOpen(sig strategy.TradeSignal, snap ledger.Snapshot, prices map[string]float64) (Plan, *Rejection) {
	none := Plan{PairID: sig.PairID, Kind: PlanNone}

	params, ok := m.pairs[sig.PairID]
	if !ok {
		m.log.Warn().Str("pair", sig.PairID).Msg("plan requested for unknown pair")
		return none, nil
	}
	priceA, okA := prices[params.SymbolA]
	priceB, okB := prices[params.SymbolB]
	if !okA || !okB || priceA <= 0 || priceB <= 0 {
		return none, nil
	}

	if pos, held := snap.Position(sig.PairID); held {
		return none, reject(ReasonPairAlreadyOpen,
			"pair %s already holds position %s (%s)", sig.PairID, pos.ID, pos.Status)
	}

	legA, legB := m.size(sig, params, priceA, priceB)
	proposed := legA.Notional() + legB.Notional()

	if snap.GrossExposure+proposed > m.policy.MaxGrossExposure {
		return none, reject(ReasonGrossExposure,
			"gross exposure %.2f + proposed %.2f exceeds max %.2f",
			snap.GrossExposure, proposed, m.policy.MaxGrossExposure)
	}
	if proposed > m.policy.MaxPairNotional {
		return none, reject(ReasonPairNotional,
			"pair notional %.2f exceeds max %.2f", proposed, m.policy.MaxPairNotional)
	}
	if legA.Qty == 0 || legB.Qty == 0 {
		return none, reject(ReasonZeroQuantity,
			"sized quantities %s=%g %s=%g round to zero at the lot step",
			legA.Symbol, legA.Qty, legB.Symbol, legB.Qty)
	}
	if m.policy.MaxDailyLoss > 0 && snap.DayRealizedPL <= -m.policy.MaxDailyLoss {
		return none, reject(ReasonDailyLoss,
			"day realized %.2f breaches max daily loss %.2f",
			snap.DayRealizedPL, m.policy.MaxDailyLoss)
	}

	return Plan{
		PairID: sig.PairID,
		Kind:   PlanOpen,
		LegA:   legA,
		LegB:   legB,
		Rationale: fmt.Sprintf("%s z=%.2f ratio=%.4f notional=%.2f",
			sig.Action, sig.ZScore, sig.HedgeRatio, proposed),
	}, nil
}

// size computes both legs. Leg A deploys the pair's budget; leg B
// hedges it at the regression ratio with the opposite sign. A negative
// ratio naturally puts both legs on the same side.
func (m *Manager) size(sig strategy.TradeSignal, params strategy.PairParams, priceA, priceB float64) (Draft, Draft) {
	budget := m.policy.RiskBudgetPerPair
	if params.Notional > 0 {
		budget = params.Notional
	}
	target := math.Min(m.policy.MaxPairNotional, budget)

	qtyA := RoundToStep(target/priceA, market.Lookup(params.SymbolA).LotStep)
	signedA := qtyA
	if sig.Action == strategy.ActionEnterShort {
		signedA = -qtyA
	}
	qtyB := HedgeQty(sig.HedgeRatio, qtyA, market.Lookup(params.SymbolB).LotStep)
	sideB := sideOf(-sig.HedgeRatio * signedA)

	return Draft{Symbol: params.SymbolA, Side: sideOf(signedA), Qty: qtyA, RefPrice: priceA},
		Draft{Symbol: params.SymbolB, Side: sideB, Qty: qtyB, RefPrice: priceB}
}

func sideOf(signed float64) broker.Side {
	if signed < 0 {
		return broker.Sell
	}
	return broker.Buy
}

// planClose flattens the held quantities of an OPEN position. Exits
// reduce risk, so no limit checks apply.
func (m *Manager) planClose(sig strategy.TradeSignal, snap ledger.Snapshot, prices map[string]float64) Plan {
	none := Plan{PairID: sig.PairID, Kind: PlanNone}

	pos, ok := snap.Position(sig.PairID)
	if !ok || pos.Status != ledger.StatusOpen {
		return none
	}

	closeA := closeDraft(pos.LegA, prices)
	closeB := closeDraft(pos.LegB, prices)
	if closeA.Qty == 0 && closeB.Qty == 0 {
		return none
	}
	return Plan{
		PairID:    sig.PairID,
		Kind:      PlanClose,
		LegA:      closeA,
		LegB:      closeB,
		Rationale: fmt.Sprintf("exit %s z=%.2f", sig.Reason, sig.ZScore),
	}
}

func closeDraft(leg ledger.Leg, prices map[string]float64) Draft {
	qty := math.Abs(leg.Filled)
	side := broker.Sell
	if leg.Filled < 0 {
		side = broker.Buy
	}
	return Draft{Symbol: leg.Symbol, Side: side, Qty: qty, RefPrice: prices[leg.Symbol]}
}
