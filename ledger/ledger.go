// Package ledger is the bot's book of record. Positions move through
// OPENING -> OPEN -> CLOSING -> CLOSED, and only confirmed broker
// fills move them. Everything else reads derived views.
package ledger

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pairbot/broker"
	"pairbot/id"
)

// Status is a position's lifecycle state.
type Status string

const (
	StatusOpening Status = "OPENING"
	StatusOpen    Status = "OPEN"
	StatusClosing Status = "CLOSING"
	StatusClosed  Status = "CLOSED"
)

// qtyEps absorbs float dust when comparing filled against target
// quantities.
const qtyEps = 1e-9

// Leg is one side of a pair position. Qty is the signed target;
// Filled tracks signed progress toward it from confirmed fills.
type Leg struct {
	Symbol     string  `json:"symbol"`
	Qty        float64 `json:"qty"`
	Filled     float64 `json:"filled"`
	EntryPrice float64 `json:"entry_price"` // VWAP of opening fills
	ClosedQty  float64 `json:"closed_qty"`  // magnitude closed so far
	ExitPrice  float64 `json:"exit_price"`  // VWAP of closing fills
	RefPrice   float64 `json:"ref_price"`   // staging price, used for exposure until filled
}

func (l Leg) openFilled() bool {
	return math.Abs(l.Filled) >= math.Abs(l.Qty)-qtyEps
}

func (l Leg) closeFilled() bool {
	return l.ClosedQty >= math.Abs(l.Qty)-qtyEps
}

// Notional values the leg at its entry VWAP once fills exist,
// otherwise at the staging reference price.
func (l Leg) Notional() float64 {
	px := l.EntryPrice
	if px == 0 {
		px = l.RefPrice
	}
	return math.Abs(l.Qty) * px
}

// Position is a two-legged pair trade.
type Position struct {
	ID         string    `json:"id"`
	PairID     string    `json:"pair_id"`
	LegA       Leg       `json:"leg_a"`
	LegB       Leg       `json:"leg_b"`
	Status     Status    `json:"status"`
	EntryZ     float64   `json:"entry_z"`
	StagedAt   time.Time `json:"staged_at"`
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `json:"closed_at"`
	RealizedPL float64   `json:"realized_pl"`
}

// Notional is the combined absolute notional of both legs.
func (p Position) Notional() float64 {
	return p.LegA.Notional() + p.LegB.Notional()
}

// Active reports whether the position still occupies its pair slot.
func (p Position) Active() bool { return p.Status != StatusClosed }

// StagedLeg describes one leg when a position or its close is staged.
type StagedLeg struct {
	Symbol   string
	Qty      float64 // signed
	RefPrice float64
	OrderID  string
}

type orderRef struct {
	PairID  string `json:"pair_id"`
	Leg     string `json:"leg"` // "A" or "B"
	Closing bool   `json:"closing"`
}

// FillOutcome tells the caller what a recorded fill did.
type FillOutcome struct {
	Duplicate bool
	Opened    bool
	Closed    bool
	Position  Position // copy after the fill applied
}

// Ledger holds every pair position and applies fills idempotently.
type Ledger struct {
	mu       sync.Mutex
	active   map[string]*Position
	closed   []Position
	orders   map[string]orderRef
	applied  map[string]map[int]bool
	realized float64

	dayKey      string
	dayRealized float64

	now func() time.Time
	log zerolog.Logger
}

func New(log zerolog.Logger) *Ledger {
	return &Ledger{
		active:  make(map[string]*Position),
		orders:  make(map[string]orderRef),
		applied: make(map[string]map[int]bool),
		now:     time.Now,
		log:     log,
	}
}

// StageOpen registers a new OPENING position and maps both leg orders
// to it. The pair must not already hold an active position.
func (l *Ledger) StageOpen(pairID string, entryZ float64, legA, legB StagedLeg) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.active[pairID]; ok {
		return "", fmt.Errorf("pair %s already has an active position", pairID)
	}
	if legA.OrderID == "" || legB.OrderID == "" {
		return "", fmt.Errorf("stage open for %s: both legs need order ids", pairID)
	}

	pos := &Position{
		ID:       id.WithPrefix("pos"),
		PairID:   pairID,
		LegA:     Leg{Symbol: legA.Symbol, Qty: legA.Qty, RefPrice: legA.RefPrice},
		LegB:     Leg{Symbol: legB.Symbol, Qty: legB.Qty, RefPrice: legB.RefPrice},
		Status:   StatusOpening,
		EntryZ:   entryZ,
		StagedAt: l.now().UTC(),
	}
	l.active[pairID] = pos
	l.orders[legA.OrderID] = orderRef{PairID: pairID, Leg: "A"}
	l.orders[legB.OrderID] = orderRef{PairID: pairID, Leg: "B"}
	return pos.ID, nil
}

// StageClose moves an OPEN position to CLOSING and maps the close
// orders to it.
func (l *Ledger) StageClose(pairID, legAOrderID, legBOrderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.active[pairID]
	if !ok {
		return fmt.Errorf("pair %s has no active position", pairID)
	}
	if pos.Status != StatusOpen {
		return fmt.Errorf("pair %s position is %s, not OPEN", pairID, pos.Status)
	}
	if legAOrderID == "" || legBOrderID == "" {
		return fmt.Errorf("stage close for %s: both legs need order ids", pairID)
	}

	pos.Status = StatusClosing
	l.orders[legAOrderID] = orderRef{PairID: pairID, Leg: "A", Closing: true}
	l.orders[legBOrderID] = orderRef{PairID: pairID, Leg: "B", Closing: true}
	return nil
}

// Abort unwinds a staged transition that could not complete. An
// OPENING position with no fills is dropped entirely; a CLOSING
// position with no close fills reverts to OPEN so the exit can retry.
// Positions that already took fills are left as they are for the
// operator, and dropped reports false.
func (l *Ledger) Abort(pairID string) (dropped bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.active[pairID]
	if !ok {
		return false, fmt.Errorf("pair %s has no active position", pairID)
	}

	switch pos.Status {
	case StatusOpening:
		if pos.LegA.Filled != 0 || pos.LegB.Filled != 0 {
			l.log.Error().Str("pair", pairID).Str("position", pos.ID).
				Msg("abort with partial open fills, leaving position staged")
			return false, nil
		}
		delete(l.active, pairID)
		l.dropOrderRefs(pairID, false)
		return true, nil

	case StatusClosing:
		if pos.LegA.ClosedQty != 0 || pos.LegB.ClosedQty != 0 {
			l.log.Error().Str("pair", pairID).Str("position", pos.ID).
				Msg("abort with partial close fills, leaving position closing")
			return false, nil
		}
		pos.Status = StatusOpen
		l.dropOrderRefs(pairID, true)
		return true, nil

	default:
		return false, fmt.Errorf("pair %s position is %s, nothing to abort", pairID, pos.Status)
	}
}

// dropOrderRefs removes order mappings for a pair's open or close
// transition. Callers hold the lock.
func (l *Ledger) dropOrderRefs(pairID string, closing bool) {
	for oid, ref := range l.orders {
		if ref.PairID == pairID && ref.Closing == closing {
			delete(l.orders, oid)
		}
	}
}

// RecordFill applies one confirmed fill. Fills for unknown orders
// return *UnknownOrderError; fills already seen (same order and
// sequence) are ignored.
func (l *Ledger) RecordFill(fill broker.Fill) (FillOutcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ref, ok := l.orders[fill.OrderID]
	if !ok {
		return FillOutcome{}, &UnknownOrderError{OrderID: fill.OrderID}
	}
	pos, ok := l.active[ref.PairID]
	if !ok {
		return FillOutcome{}, &UnknownOrderError{OrderID: fill.OrderID}
	}

	seqs, ok := l.applied[fill.OrderID]
	if !ok {
		seqs = make(map[int]bool)
		l.applied[fill.OrderID] = seqs
	}
	if seqs[fill.Seq] {
		return FillOutcome{Duplicate: true, Position: *pos}, nil
	}
	seqs[fill.Seq] = true

	leg := &pos.LegA
	if ref.Leg == "B" {
		leg = &pos.LegB
	}

	if ref.Closing {
		l.applyCloseFillLocked(leg, fill)
	} else {
		l.applyOpenFillLocked(leg, fill)
	}

	out := FillOutcome{}
	if !ref.Closing && pos.Status == StatusOpening && pos.LegA.openFilled() && pos.LegB.openFilled() {
		pos.Status = StatusOpen
		pos.OpenedAt = fill.Time.UTC()
		out.Opened = true
	}
	if ref.Closing && pos.Status == StatusClosing && pos.LegA.closeFilled() && pos.LegB.closeFilled() {
		l.settleLocked(pos, fill.Time)
		out.Closed = true
	}
	out.Position = *pos
	return out, nil
}

// applyOpenFillLocked folds an opening fill into the leg: VWAP entry
// price over the filled quantity, progress toward the signed target.
func (l *Ledger) applyOpenFillLocked(leg *Leg, fill broker.Fill) {
	prev := math.Abs(leg.Filled)
	total := prev + fill.Qty
	if total > 0 {
		leg.EntryPrice = (leg.EntryPrice*prev + fill.Price*fill.Qty) / total
	}
	if leg.Qty < 0 {
		leg.Filled -= fill.Qty
	} else {
		leg.Filled += fill.Qty
	}
}

func (l *Ledger) applyCloseFillLocked(leg *Leg, fill broker.Fill) {
	prev := leg.ClosedQty
	total := prev + fill.Qty
	if total > 0 {
		leg.ExitPrice = (leg.ExitPrice*prev + fill.Price*fill.Qty) / total
	}
	leg.ClosedQty = total
}

// settleLocked finalizes a fully closed position: realized P&L from
// both legs, archive, free the pair slot.
func (l *Ledger) settleLocked(pos *Position, at time.Time) {
	pl := legPL(pos.LegA) + legPL(pos.LegB)
	pos.RealizedPL = pl
	pos.Status = StatusClosed
	pos.ClosedAt = at.UTC()

	l.realized += pl
	l.addDayRealizedLocked(pl, pos.ClosedAt)

	l.closed = append(l.closed, *pos)
	delete(l.active, pos.PairID)
	l.dropOrderRefs(pos.PairID, false)
	l.dropOrderRefs(pos.PairID, true)
}

// legPL is the realized result of one leg over its round trip.
func legPL(leg Leg) float64 {
	return leg.Filled * (leg.ExitPrice - leg.EntryPrice)
}

func (l *Ledger) addDayRealizedLocked(pl float64, at time.Time) {
	day := at.UTC().Format("2006-01-02")
	if day != l.dayKey {
		l.dayKey = day
		l.dayRealized = 0
	}
	l.dayRealized += pl
}

// GrossExposure recomputes combined absolute notional across OPENING
// and OPEN positions. CLOSING positions no longer reserve budget; the
// pair slot itself still blocks re-entry until CLOSED.
func (l *Ledger) GrossExposure() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.grossExposureLocked()
}

func (l *Ledger) grossExposureLocked() float64 {
	var sum float64
	for _, pos := range l.active {
		if pos.Status == StatusOpening || pos.Status == StatusOpen {
			sum += pos.Notional()
		}
	}
	return sum
}

// RealizedPL is the lifetime realized result.
func (l *Ledger) RealizedPL() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.realized
}

// UnrealizedPL marks held quantities against the given prices.
// Symbols without a price contribute nothing.
func (l *Ledger) UnrealizedPL(prices map[string]float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var pl float64
	for _, pos := range l.active {
		pl += legUnrealized(pos.LegA, prices)
		pl += legUnrealized(pos.LegB, prices)
	}
	return pl
}

func legUnrealized(leg Leg, prices map[string]float64) float64 {
	px, ok := prices[leg.Symbol]
	if !ok {
		return 0
	}
	held := leg.Filled
	if leg.ClosedQty > 0 {
		sign := 1.0
		if leg.Qty < 0 {
			sign = -1
		}
		held -= sign * leg.ClosedQty
	}
	return held * (px - leg.EntryPrice)
}

// Snapshot is the read-only portfolio view handed to the risk manager
// and the journal.
type Snapshot struct {
	Time          time.Time
	Positions     []Position // active positions, ordered by pair id
	GrossExposure float64
	RealizedPL    float64
	DayRealizedPL float64
	OpenPairs     int
}

// Position returns the active position for pairID, if any.
func (s Snapshot) Position(pairID string) (Position, bool) {
	for _, p := range s.Positions {
		if p.PairID == pairID {
			return p, true
		}
	}
	return Position{}, false
}

// Snapshot derives the current view. Gross exposure is recomputed
// from the position set on every call.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := Snapshot{
		Time:          l.now().UTC(),
		GrossExposure: l.grossExposureLocked(),
		RealizedPL:    l.realized,
	}
	if l.dayKey == snap.Time.Format("2006-01-02") {
		snap.DayRealizedPL = l.dayRealized
	}
	for _, pos := range l.active {
		snap.Positions = append(snap.Positions, *pos)
	}
	sort.Slice(snap.Positions, func(i, j int) bool {
		return snap.Positions[i].PairID < snap.Positions[j].PairID
	})
	snap.OpenPairs = len(snap.Positions)
	return snap
}

// ClosedPositions returns a copy of the settled archive.
func (l *Ledger) ClosedPositions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Position, len(l.closed))
	copy(out, l.closed)
	return out
}
