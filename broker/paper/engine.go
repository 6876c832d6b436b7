// Package paper is the built-in fill simulator. It implements
// broker.Adapter with configurable fill latency, partial fills and
// injectable faults, which is all the execution loop needs to be
// exercised end to end without a live venue.
package paper

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pairbot/broker"
	"pairbot/id"
	"pairbot/market"
)

const bookEps = 1e-9

type orderState struct {
	order       broker.Order
	submittedAt time.Time
	steps       int
}

type bookPosition struct {
	qty float64
	avg float64
}

// Engine simulates a venue: orders fill at the current market price
// after an optional delay, in one or more steps.
type Engine struct {
	mu        sync.Mutex
	prices    *market.QuoteStore
	orders    map[string]*orderState
	book      map[string]*bookPosition
	cash      float64
	fillDelay time.Duration
	fillSteps int
	rejects   map[string]string
	transient map[string]int
	now       func() time.Time
	log       zerolog.Logger
}

// Option configures the engine.
type Option func(*Engine)

// WithFillDelay makes orders rest before any fill. Zero means the
// first step fills at submission.
func WithFillDelay(d time.Duration) Option {
	return func(e *Engine) { e.fillDelay = d }
}

// WithFillSteps splits each order into n partial fills, applied one
// per status poll.
func WithFillSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.fillSteps = n
		}
	}
}

// WithClock overrides time for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithStartCash seeds the cash balance.
func WithStartCash(c float64) Option {
	return func(e *Engine) { e.cash = c }
}

func New(log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		prices:    market.NewQuoteStore(),
		orders:    make(map[string]*orderState),
		book:      make(map[string]*bookPosition),
		fillSteps: 1,
		rejects:   make(map[string]string),
		transient: make(map[string]int),
		now:       time.Now,
		log:       log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetPrice publishes the simulated market price for a symbol.
func (e *Engine) SetPrice(pp market.PricePoint) {
	e.prices.Set(pp)
}

// RejectSymbol makes every subsequent submit for symbol fail with a
// definitive rejection.
func (e *Engine) RejectSymbol(symbol, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rejects[symbol] = reason
}

// ClearReject lifts a RejectSymbol.
func (e *Engine) ClearReject(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.rejects, symbol)
}

// FailSubmits makes the next n submits for symbol fail transiently.
func (e *Engine) FailSubmits(symbol string, n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transient[symbol] = n
}

// SubmitOrder validates, assigns an ID and books the order. With no
// fill delay the first fill step applies immediately.
func (e *Engine) SubmitOrder(ctx context.Context, o broker.Order) (broker.Order, error) {
	if err := ctx.Err(); err != nil {
		return o, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if n := e.transient[o.Symbol]; n > 0 {
		e.transient[o.Symbol] = n - 1
		return o, broker.Transient(fmt.Errorf("injected venue fault for %s", o.Symbol))
	}
	if reason, ok := e.rejects[o.Symbol]; ok {
		return o, &broker.RejectError{Symbol: o.Symbol, Reason: reason}
	}
	if o.Qty <= 0 {
		return o, &broker.RejectError{Symbol: o.Symbol, Reason: "non-positive quantity"}
	}
	if pp, ok := e.prices.Get(o.Symbol); !ok || pp.Price <= 0 {
		// No quote yet: the next tick may bring one, so this is
		// retryable rather than a rejection.
		return o, broker.Transient(fmt.Errorf("no market price for %s", o.Symbol))
	}

	o.ID = id.WithPrefix("ord")
	o.Status = broker.StatusSubmitted
	o.SubmittedAt = e.now().UTC()
	o.FilledQty = 0
	o.AvgFillPrice = 0
	o.Fills = nil

	st := &orderState{order: o, submittedAt: o.SubmittedAt}
	e.orders[o.ID] = st
	e.advanceLocked(st)
	return copyOrder(st.order), nil
}

// GetOrderStatus applies any due fill step and returns the current
// view of the order.
func (e *Engine) GetOrderStatus(ctx context.Context, orderID string) (broker.Order, error) {
	if err := ctx.Err(); err != nil {
		return broker.Order{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.orders[orderID]
	if !ok {
		return broker.Order{}, broker.ErrOrderNotFound
	}
	e.advanceLocked(st)
	return copyOrder(st.order), nil
}

// CancelOrder voids the unfilled remainder. Terminal orders cannot be
// cancelled.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.orders[orderID]
	if !ok {
		return broker.ErrOrderNotFound
	}
	if st.order.Status.Terminal() {
		return fmt.Errorf("cancel %s: order already %s", orderID, st.order.Status)
	}
	st.order.Status = broker.StatusCancelled
	return nil
}

// GetPositions returns the venue book, sorted by symbol.
func (e *Engine) GetPositions(ctx context.Context) ([]broker.PositionReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]broker.PositionReport, 0, len(e.book))
	for sym, p := range e.book {
		out = append(out, broker.PositionReport{Symbol: sym, Qty: p.qty, AvgPrice: p.avg})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// Cash is the venue cash balance after all fills.
func (e *Engine) Cash() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cash
}

// advanceLocked applies at most one fill step if the order is past its
// fill delay and not terminal.
func (e *Engine) advanceLocked(st *orderState) {
	o := &st.order
	if o.Status.Terminal() {
		return
	}
	if e.now().Sub(st.submittedAt) < e.fillDelay {
		return
	}
	pp, ok := e.prices.Get(o.Symbol)
	if !ok || pp.Price <= 0 {
		return
	}

	st.steps++
	qty := o.Qty / float64(e.fillSteps)
	if st.steps >= e.fillSteps {
		qty = o.Qty - o.FilledQty // remainder, avoids float leftovers
	}
	if qty <= 0 {
		return
	}

	fill := broker.Fill{
		OrderID: o.ID,
		Seq:     st.steps,
		Qty:     qty,
		Price:   pp.Price,
		Time:    e.now().UTC(),
	}
	o.Fills = append(o.Fills, fill)
	prev := o.FilledQty
	o.FilledQty += qty
	o.AvgFillPrice = (o.AvgFillPrice*prev + fill.Price*qty) / o.FilledQty
	if o.FilledQty >= o.Qty-bookEps {
		o.Status = broker.StatusFilled
	} else {
		o.Status = broker.StatusPartiallyFilled
	}

	signed := qty
	if o.Side == broker.Sell {
		signed = -qty
	}
	e.applyBookLocked(o.Symbol, signed, fill.Price)

	e.log.Debug().
		Str("order", o.ID).
		Str("symbol", o.Symbol).
		Float64("qty", qty).
		Float64("price", fill.Price).
		Str("status", string(o.Status)).
		Msg("paper fill")
}

// applyBookLocked updates the venue's net position and cash for an
// execution.
func (e *Engine) applyBookLocked(symbol string, signedQty, px float64) {
	p, ok := e.book[symbol]
	if !ok {
		p = &bookPosition{}
		e.book[symbol] = p
	}

	newQty := p.qty + signedQty
	switch {
	case p.qty == 0 || sameSign(p.qty, signedQty):
		total := math.Abs(p.qty) + math.Abs(signedQty)
		p.avg = (p.avg*math.Abs(p.qty) + px*math.Abs(signedQty)) / total
	case math.Abs(signedQty) > math.Abs(p.qty):
		// Flipped through zero: the surplus opens at this price.
		p.avg = px
	}
	p.qty = newQty
	if math.Abs(p.qty) < bookEps {
		delete(e.book, symbol)
	}

	e.cash -= signedQty * px
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func copyOrder(o broker.Order) broker.Order {
	out := o
	out.Fills = append([]broker.Fill(nil), o.Fills...)
	return out
}
