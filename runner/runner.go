// Package runner drives the trading loop: evaluate each pair's
// signal, size entries through the risk manager, place both legs,
// and reconcile broker fills into the ledger.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pairbot/alert"
	"pairbot/broker"
	"pairbot/feed"
	"pairbot/journal"
	"pairbot/ledger"
	"pairbot/metrics"
	"pairbot/risk"
	"pairbot/strategy"
)

type Config struct {
	TickInterval     time.Duration
	MaxRetries       int
	ReconcileTimeout time.Duration
	PollInterval     time.Duration
	StartingCash     float64
	SnapshotPath     string
}

// Runner wires the loop together. Populate the exported fields and
// call Run; Journal and Alerts may be left nil.
type Runner struct {
	Feed    feed.Source
	Signals strategy.SignalSource
	Risk    *risk.Manager
	Broker  broker.Adapter
	Ledger  *ledger.Ledger
	Journal journal.Journal
	Alerts  alert.Sink
	Log     zerolog.Logger
	Config  Config

	mu     sync.Mutex
	states map[string]PairState

	// sleep is swapped out by tests to skip real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

func (r *Runner) validate() error {
	if r.Feed == nil {
		return fmt.Errorf("runner: Feed is required")
	}
	if r.Signals == nil {
		return fmt.Errorf("runner: Signals is required")
	}
	if r.Risk == nil {
		return fmt.Errorf("runner: Risk is required")
	}
	if r.Broker == nil {
		return fmt.Errorf("runner: Broker is required")
	}
	if r.Ledger == nil {
		return fmt.Errorf("runner: Ledger is required")
	}
	return nil
}

func (r *Runner) tickInterval() time.Duration {
	if r.Config.TickInterval > 0 {
		return r.Config.TickInterval
	}
	return time.Second
}

func (r *Runner) maxRetries() int {
	if r.Config.MaxRetries > 0 {
		return r.Config.MaxRetries
	}
	return 3
}

func (r *Runner) reconcileTimeout() time.Duration {
	if r.Config.ReconcileTimeout > 0 {
		return r.Config.ReconcileTimeout
	}
	return 30 * time.Second
}

func (r *Runner) pollInterval() time.Duration {
	if r.Config.PollInterval > 0 {
		return r.Config.PollInterval
	}
	return 200 * time.Millisecond
}

// cycleBudget bounds one pair cycle: both legs' retry backoff, the
// reconcile window, and headroom for cleanup cancels.
func (r *Runner) cycleBudget() time.Duration {
	return r.reconcileTimeout() + 2*backoffBudget(r.maxRetries()) + 5*time.Second
}

// Run drives ticks until the context ends.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.validate(); err != nil {
		return err
	}

	ticker := time.NewTicker(r.tickInterval())
	defer ticker.Stop()

	r.Log.Info().Dur("interval", r.tickInterval()).Int("pairs", len(r.Signals.Pairs())).
		Msg("execution loop started")
	for {
		select {
		case <-ctx.Done():
			r.Log.Info().Msg("execution loop stopped")
			return ctx.Err()
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick evaluates every configured pair once, each in its own
// goroutine. Pairs still mid-cycle from an earlier tick are skipped
// so a slow broker call never causes a double submission.
func (r *Runner) Tick(ctx context.Context) {
	var wg sync.WaitGroup
	for _, params := range r.Signals.Pairs() {
		if !r.casState(params.ID, StateIdle, StateSignalPending) {
			r.Log.Debug().Str("pair", params.ID).Msg("pair busy, skipping")
			continue
		}
		wg.Add(1)
		go func(p strategy.PairParams) {
			defer wg.Done()
			r.runPair(ctx, p)
		}(params)
	}
	wg.Wait()
	r.afterTick(ctx)
}

func (r *Runner) runPair(ctx context.Context, params strategy.PairParams) {
	defer r.setState(params.ID, StateIdle)

	ctx, cancel := context.WithTimeout(ctx, r.cycleBudget())
	defer cancel()

	metrics.TicksTotal.WithLabelValues(params.ID).Inc()

	a, err := r.Feed.Latest(ctx, params.SymbolA)
	if err != nil {
		r.Log.Debug().Err(err).Str("pair", params.ID).Str("symbol", params.SymbolA).Msg("no data, holding")
		return
	}
	b, err := r.Feed.Latest(ctx, params.SymbolB)
	if err != nil {
		r.Log.Debug().Err(err).Str("pair", params.ID).Str("symbol", params.SymbolB).Msg("no data, holding")
		return
	}

	pos, held := r.Ledger.Snapshot().Position(params.ID)
	open := held && pos.Status == ledger.StatusOpen

	sig := r.Signals.Evaluate(params.ID, a, b, open)
	metrics.SignalsTotal.WithLabelValues(params.ID, string(sig.Action)).Inc()
	metrics.ZScore.WithLabelValues(params.ID).Set(sig.ZScore)
	if sig.Action == strategy.ActionHold {
		return
	}

	prices := map[string]float64{params.SymbolA: a.Price, params.SymbolB: b.Price}
	plan, rejection := r.Risk.Plan(sig, r.Ledger.Snapshot(), prices)
	if rejection != nil {
		metrics.RiskRejectionsTotal.WithLabelValues(params.ID, rejection.Reason).Inc()
		r.Log.Info().Str("pair", params.ID).Str("reason", rejection.Reason).
			Str("detail", rejection.Detail).Msg("entry rejected")
		return
	}

	switch plan.Kind {
	case risk.PlanOpen:
		r.executeOpen(ctx, plan, sig)
	case risk.PlanClose:
		r.executeClose(ctx, plan, sig)
	}
}

// executeOpen places both entry legs. The ledger only learns about
// the position once both orders are accepted, so an abandoned entry
// leaves it untouched.
func (r *Runner) executeOpen(ctx context.Context, plan risk.Plan, sig strategy.TradeSignal) {
	r.Log.Info().Str("pair", plan.PairID).Str("rationale", plan.Rationale).Msg("opening pair position")

	ordA, err := r.submitWithRetry(ctx, draftOrder(plan.PairID, plan.LegA))
	if err != nil {
		r.failSubmit(ctx, plan.PairID, plan.LegA.Symbol, err)
		return
	}
	r.setState(plan.PairID, StateOrderSubmitted)

	ordB, err := r.submitWithRetry(ctx, draftOrder(plan.PairID, plan.LegB))
	if err != nil {
		r.compensate(ctx, &HalfOpenHedgeError{
			PairID:    plan.PairID,
			FilledLeg: plan.LegA.Symbol,
			FailedLeg: plan.LegB.Symbol,
			Cause:     err,
		}, ordA)
		return
	}

	_, err = r.Ledger.StageOpen(plan.PairID, sig.ZScore,
		ledger.StagedLeg{Symbol: plan.LegA.Symbol, Qty: plan.LegA.SignedQty(), RefPrice: plan.LegA.RefPrice, OrderID: ordA.ID},
		ledger.StagedLeg{Symbol: plan.LegB.Symbol, Qty: plan.LegB.SignedQty(), RefPrice: plan.LegB.RefPrice, OrderID: ordB.ID},
	)
	if err != nil {
		r.setState(plan.PairID, StateFailed)
		r.Log.Error().Err(err).Str("pair", plan.PairID).Msg("stage open failed, flattening both legs")
		r.flatten(ctx, ordA)
		r.flatten(ctx, ordB)
		r.sendAlert(ctx, alert.Alert{Severity: alert.SeverityCritical, Title: "stage_open_failed", Message: err.Error(), PairID: plan.PairID})
		return
	}

	r.applyFills(ctx, ordA, sig)
	r.applyFills(ctx, ordB, sig)

	r.setState(plan.PairID, StateReconciling)
	unfinished, err := r.reconcile(ctx, sig, []string{ordA.ID, ordB.ID})
	if err != nil {
		r.failReconcile(ctx, plan.PairID, sig, unfinished)
		return
	}

	if pos, ok := r.Ledger.Snapshot().Position(plan.PairID); !ok || pos.Status != ledger.StatusOpen {
		// Both orders terminal yet the position never completed.
		r.failReconcile(ctx, plan.PairID, sig, nil)
	}
}

// executeClose places both exit legs for an OPEN position. Nothing is
// staged until both close orders are accepted, so a failed first leg
// simply leaves the position OPEN for the next tick.
func (r *Runner) executeClose(ctx context.Context, plan risk.Plan, sig strategy.TradeSignal) {
	r.Log.Info().Str("pair", plan.PairID).Str("rationale", plan.Rationale).Msg("closing pair position")

	ordA, err := r.submitWithRetry(ctx, draftOrder(plan.PairID, plan.LegA))
	if err != nil {
		r.failSubmit(ctx, plan.PairID, plan.LegA.Symbol, err)
		return
	}
	r.setState(plan.PairID, StateOrderSubmitted)

	ordB, err := r.submitWithRetry(ctx, draftOrder(plan.PairID, plan.LegB))
	if err != nil {
		// Restore the hedge: reverse the accepted close leg so the
		// book matches the still-OPEN ledger position.
		r.compensate(ctx, &HalfOpenHedgeError{
			PairID:    plan.PairID,
			FilledLeg: plan.LegA.Symbol,
			FailedLeg: plan.LegB.Symbol,
			Cause:     err,
		}, ordA)
		return
	}

	if err := r.Ledger.StageClose(plan.PairID, ordA.ID, ordB.ID); err != nil {
		r.setState(plan.PairID, StateFailed)
		r.Log.Error().Err(err).Str("pair", plan.PairID).Msg("stage close failed, flattening close legs")
		r.flatten(ctx, ordA)
		r.flatten(ctx, ordB)
		r.sendAlert(ctx, alert.Alert{Severity: alert.SeverityCritical, Title: "stage_close_failed", Message: err.Error(), PairID: plan.PairID})
		return
	}

	r.applyFills(ctx, ordA, sig)
	r.applyFills(ctx, ordB, sig)

	r.setState(plan.PairID, StateReconciling)
	unfinished, err := r.reconcile(ctx, sig, []string{ordA.ID, ordB.ID})
	if err != nil {
		r.failReconcile(ctx, plan.PairID, sig, unfinished)
		return
	}

	if pos, ok := r.Ledger.Snapshot().Position(plan.PairID); ok && pos.Status == ledger.StatusClosing {
		r.failReconcile(ctx, plan.PairID, sig, nil)
	}
}

// ClosePair flattens pairID's OPEN position at current prices, for
// operator-driven exits and end-of-replay flattening. Nothing happens
// when the pair holds no open position.
func (r *Runner) ClosePair(ctx context.Context, pairID, reason string) error {
	params, ok := r.pairParams(pairID)
	if !ok {
		return fmt.Errorf("unknown pair %s", pairID)
	}
	if !r.casState(pairID, StateIdle, StateSignalPending) {
		return fmt.Errorf("pair %s is mid-cycle", pairID)
	}
	defer r.setState(pairID, StateIdle)

	ctx, cancel := context.WithTimeout(ctx, r.cycleBudget())
	defer cancel()

	a, err := r.Feed.Latest(ctx, params.SymbolA)
	if err != nil {
		return fmt.Errorf("no price for %s: %w", params.SymbolA, err)
	}
	b, err := r.Feed.Latest(ctx, params.SymbolB)
	if err != nil {
		return fmt.Errorf("no price for %s: %w", params.SymbolB, err)
	}

	sig := strategy.TradeSignal{PairID: pairID, Action: strategy.ActionExit, Time: a.Time, Reason: reason}
	prices := map[string]float64{params.SymbolA: a.Price, params.SymbolB: b.Price}
	plan, _ := r.Risk.Plan(sig, r.Ledger.Snapshot(), prices)
	if plan.Kind != risk.PlanClose {
		return nil
	}
	r.executeClose(ctx, plan, sig)
	return nil
}

func (r *Runner) pairParams(pairID string) (strategy.PairParams, bool) {
	for _, p := range r.Signals.Pairs() {
		if p.ID == pairID {
			return p, true
		}
	}
	return strategy.PairParams{}, false
}

// submitWithRetry retries transient broker errors with exponential
// backoff. Rejections and context errors return immediately.
func (r *Runner) submitWithRetry(ctx context.Context, ord broker.Order) (broker.Order, error) {
	for attempt := 0; ; attempt++ {
		ord.RetryCount = attempt
		got, err := r.Broker.SubmitOrder(ctx, ord)
		if err == nil {
			metrics.OrdersTotal.WithLabelValues(ord.Symbol, string(ord.Side)).Inc()
			return got, nil
		}
		if !broker.IsTransient(err) || attempt >= r.maxRetries() {
			return broker.Order{}, err
		}
		metrics.OrderRetriesTotal.WithLabelValues(ord.Symbol).Inc()
		r.Log.Warn().Err(err).Str("symbol", ord.Symbol).Int("attempt", attempt+1).
			Dur("backoff", Backoff(attempt)).Msg("transient submit failure, backing off")
		if err := r.wait(ctx, Backoff(attempt)); err != nil {
			return broker.Order{}, err
		}
	}
}

// reconcile polls the given orders until all are terminal or the
// reconcile window closes. Every confirmed fill seen lands in the
// ledger; the returned slice lists orders still live at timeout.
func (r *Runner) reconcile(ctx context.Context, sig strategy.TradeSignal, orderIDs []string) ([]string, error) {
	rctx, cancel := context.WithTimeout(ctx, r.reconcileTimeout())
	defer cancel()

	pending := make(map[string]bool, len(orderIDs))
	for _, oid := range orderIDs {
		pending[oid] = true
	}

	for {
		for oid := range pending {
			ord, err := r.Broker.GetOrderStatus(rctx, oid)
			if err != nil {
				if rctx.Err() != nil {
					break
				}
				r.Log.Debug().Err(err).Str("order", oid).Msg("status poll failed")
				continue
			}
			r.applyFills(ctx, ord, sig)
			if ord.Status.Terminal() {
				delete(pending, oid)
			}
		}
		if len(pending) == 0 {
			return nil, nil
		}
		if err := r.wait(rctx, r.pollInterval()); err != nil {
			unfinished := make([]string, 0, len(pending))
			for oid := range pending {
				unfinished = append(unfinished, oid)
			}
			sort.Strings(unfinished)
			return unfinished, err
		}
	}
}

// applyFills folds an order's confirmed fills into the ledger. The
// ledger drops duplicates, so re-applying across polls is safe.
func (r *Runner) applyFills(ctx context.Context, ord broker.Order, sig strategy.TradeSignal) {
	for _, fill := range ord.Fills {
		out, err := r.Ledger.RecordFill(fill)
		if err != nil {
			var unknown *ledger.UnknownOrderError
			if errors.As(err, &unknown) {
				r.Log.Error().Str("order", fill.OrderID).Int("seq", fill.Seq).
					Msg("fill for unknown order")
				r.sendAlert(ctx, alert.Alert{Severity: alert.SeverityCritical, Title: "unknown_order_fill", Message: err.Error(), PairID: sig.PairID})
			} else {
				r.Log.Error().Err(err).Str("order", fill.OrderID).Msg("fill application failed")
			}
			continue
		}
		if out.Duplicate {
			continue
		}
		if out.Opened {
			r.Log.Info().Str("pair", sig.PairID).Float64("entry_z", out.Position.EntryZ).
				Msg("pair position open")
		}
		if out.Closed {
			metrics.TradesClosedTotal.WithLabelValues(sig.PairID).Inc()
			r.Log.Info().Str("pair", sig.PairID).Float64("realized_pl", out.Position.RealizedPL).
				Str("reason", sig.Reason).Msg("pair position closed")
			if r.Journal != nil {
				rec := journal.FromPosition(out.Position, sig.ZScore, sig.Reason)
				if err := r.Journal.RecordTrade(ctx, rec); err != nil {
					r.Log.Warn().Err(err).Str("trade", rec.TradeID).Msg("journal trade write failed")
				}
			}
		}
	}
}

// compensate unwinds the accepted leg of a half-open hedge and tells
// the operator. The ledger was never staged, so it stays untouched.
func (r *Runner) compensate(ctx context.Context, hoh *HalfOpenHedgeError, accepted broker.Order) {
	r.setState(hoh.PairID, StateFailed)
	metrics.HedgeFailuresTotal.WithLabelValues(hoh.PairID).Inc()
	r.Log.Error().Err(hoh).Str("pair", hoh.PairID).Msg("hedge half open, compensating accepted leg")

	r.flatten(ctx, accepted)

	r.sendAlert(ctx, alert.Alert{
		Severity: alert.SeverityCritical,
		Title:    "half_open_hedge",
		Message:  hoh.Error(),
		PairID:   hoh.PairID,
	})
}

// flatten cancels an order and reverses whatever filled before the
// cancel landed.
func (r *Runner) flatten(ctx context.Context, ord broker.Order) {
	if err := r.Broker.CancelOrder(ctx, ord.ID); err != nil {
		r.Log.Debug().Err(err).Str("order", ord.ID).Msg("cancel failed")
	}

	filled := ord.FilledQty
	if cur, err := r.Broker.GetOrderStatus(ctx, ord.ID); err == nil {
		filled = cur.FilledQty
	}
	if filled <= 0 {
		return
	}

	flat := broker.Order{PairID: ord.PairID, Symbol: ord.Symbol, Side: ord.Side.Opposite(), Qty: filled}
	if _, err := r.submitWithRetry(ctx, flat); err != nil {
		r.Log.Error().Err(err).Str("symbol", ord.Symbol).
			Msg("compensating close failed, manual intervention required")
	}
}

// failSubmit ends a cycle whose first order never reached the broker.
// Nothing was staged, so there is nothing to unwind.
func (r *Runner) failSubmit(ctx context.Context, pairID, symbol string, cause error) {
	r.setState(pairID, StateFailed)
	r.Log.Warn().Err(cause).Str("pair", pairID).Str("symbol", symbol).Msg("order submission failed")
	r.sendAlert(ctx, alert.Alert{
		Severity: alert.SeverityWarning,
		Title:    "order_submit_failed",
		Message:  fmt.Sprintf("%s leg %s: %v", pairID, symbol, cause),
		PairID:   pairID,
	})
}

// failReconcile cancels whatever is still live, records any remnant
// confirmed fills, and rolls back the staged transition.
func (r *Runner) failReconcile(ctx context.Context, pairID string, sig strategy.TradeSignal, unfinished []string) {
	r.setState(pairID, StateFailed)
	metrics.ReconcileTimeoutsTotal.WithLabelValues(pairID).Inc()
	r.Log.Warn().Str("pair", pairID).Int("open_orders", len(unfinished)).
		Msg("reconciliation failed, cancelling outstanding legs")

	for _, oid := range unfinished {
		if err := r.Broker.CancelOrder(ctx, oid); err != nil {
			r.Log.Warn().Err(err).Str("order", oid).Msg("cancel failed")
		}
		if ord, err := r.Broker.GetOrderStatus(ctx, oid); err == nil {
			r.applyFills(ctx, ord, sig)
		}
	}

	dropped, err := r.Ledger.Abort(pairID)
	if err != nil {
		// Remnant fills may have settled the transition on their own.
		r.Log.Debug().Err(err).Str("pair", pairID).Msg("nothing to abort")
		return
	}

	sev := alert.SeverityWarning
	msg := fmt.Sprintf("reconciliation timed out for %s, staged transition rolled back", pairID)
	if !dropped {
		sev = alert.SeverityCritical
		msg = fmt.Sprintf("reconciliation timed out for %s with partial fills, position needs attention", pairID)
	}
	r.sendAlert(ctx, alert.Alert{Severity: sev, Title: "reconcile_timeout", Message: msg, PairID: pairID})
}

// afterTick publishes portfolio gauges, journals an equity snapshot
// and persists the ledger.
func (r *Runner) afterTick(ctx context.Context) {
	snap := r.Ledger.Snapshot()
	metrics.GrossExposure.Set(snap.GrossExposure)
	metrics.OpenPairs.Set(float64(snap.OpenPairs))
	metrics.RealizedPL.Set(snap.RealizedPL)

	if r.Journal != nil {
		unreal := r.Ledger.UnrealizedPL(r.collectPrices(ctx))
		eq := journal.EquitySnapshot{
			Time:          snap.Time,
			Equity:        r.Config.StartingCash + snap.RealizedPL + unreal,
			RealizedPL:    snap.RealizedPL,
			UnrealizedPL:  unreal,
			GrossExposure: snap.GrossExposure,
			OpenPairs:     snap.OpenPairs,
		}
		if err := r.Journal.RecordEquity(ctx, eq); err != nil {
			r.Log.Warn().Err(err).Msg("equity journal write failed")
		}
	}

	if r.Config.SnapshotPath != "" {
		if err := r.Ledger.SaveSnapshot(r.Config.SnapshotPath); err != nil {
			r.Log.Warn().Err(err).Str("path", r.Config.SnapshotPath).Msg("ledger snapshot save failed")
		}
	}
}

// collectPrices grabs the latest quote for every configured symbol.
// Symbols with no data are simply absent.
func (r *Runner) collectPrices(ctx context.Context) map[string]float64 {
	prices := make(map[string]float64)
	for _, p := range r.Signals.Pairs() {
		for _, sym := range []string{p.SymbolA, p.SymbolB} {
			if _, ok := prices[sym]; ok {
				continue
			}
			if pp, err := r.Feed.Latest(ctx, sym); err == nil {
				prices[sym] = pp.Price
			}
		}
	}
	return prices
}

func (r *Runner) sendAlert(ctx context.Context, a alert.Alert) {
	if r.Alerts == nil {
		return
	}
	if a.Time.IsZero() {
		a.Time = time.Now().UTC()
	}
	if err := r.Alerts.Send(ctx, a); err != nil {
		r.Log.Warn().Err(err).Str("alert", a.Title).Msg("alert delivery failed")
	}
}

// wait sleeps for d or until ctx ends.
func (r *Runner) wait(ctx context.Context, d time.Duration) error {
	if r.sleep != nil {
		return r.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func draftOrder(pairID string, d risk.Draft) broker.Order {
	return broker.Order{PairID: pairID, Symbol: d.Symbol, Side: d.Side, Qty: d.Qty}
}
