package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairbot/alert"
	"pairbot/broker/paper"
	"pairbot/feed"
	"pairbot/journal"
	"pairbot/ledger"
	"pairbot/market"
	"pairbot/risk"
	"pairbot/strategy"
)

var testPair = strategy.PairParams{
	ID:      "AAPL-MSFT",
	SymbolA: "AAPL",
	SymbolB: "MSFT",
}

// scriptedSignals returns one queued signal per pair and HOLD after
// it is consumed.
type scriptedSignals struct {
	params []strategy.PairParams

	mu   sync.Mutex
	next map[string]strategy.TradeSignal
}

func (s *scriptedSignals) Pairs() []strategy.PairParams { return s.params }

func (s *scriptedSignals) set(sig strategy.TradeSignal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next == nil {
		s.next = make(map[string]strategy.TradeSignal)
	}
	s.next[sig.PairID] = sig
}

func (s *scriptedSignals) Evaluate(pairID string, a, _ market.PricePoint, _ bool) strategy.TradeSignal {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.next[pairID]
	if !ok {
		return strategy.TradeSignal{PairID: pairID, Action: strategy.ActionHold, Time: a.Time, Reason: "scripted_hold"}
	}
	delete(s.next, pairID)
	return sig
}

func (s *scriptedSignals) queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.next)
}

type journalRecorder struct {
	mu     sync.Mutex
	trades []journal.TradeRecord
	equity []journal.EquitySnapshot
}

func (j *journalRecorder) RecordTrade(_ context.Context, rec journal.TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, rec)
	return nil
}

func (j *journalRecorder) RecordEquity(_ context.Context, snap journal.EquitySnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.equity = append(j.equity, snap)
	return nil
}

func (j *journalRecorder) Close() error { return nil }

type alertRecorder struct {
	mu   sync.Mutex
	sent []alert.Alert
}

func (a *alertRecorder) Send(_ context.Context, al alert.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, al)
	return nil
}

func (a *alertRecorder) find(title string) (alert.Alert, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, al := range a.sent {
		if al.Title == title {
			return al, true
		}
	}
	return alert.Alert{}, false
}

func newTestRunner(eng *paper.Engine) (*Runner, *scriptedSignals, *feed.Manual, *journalRecorder, *alertRecorder) {
	log := zerolog.Nop()
	sigs := &scriptedSignals{params: []strategy.PairParams{testPair}}
	src := feed.NewManual()
	jr := &journalRecorder{}
	ar := &alertRecorder{}

	r := &Runner{
		Feed:    src,
		Signals: sigs,
		Risk: risk.NewManager(risk.Policy{
			MaxGrossExposure:  1_000_000,
			MaxPairNotional:   50_000,
			RiskBudgetPerPair: 10_000,
		}, sigs.Pairs(), log),
		Broker:  eng,
		Ledger:  ledger.New(log),
		Journal: jr,
		Alerts:  ar,
		Log:     log,
		Config: Config{
			MaxRetries:       3,
			ReconcileTimeout: 500 * time.Millisecond,
			PollInterval:     time.Millisecond,
			StartingCash:     100_000,
		},
		// Cap every backoff and poll wait at 1ms so tests stay fast.
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(time.Millisecond)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
	return r, sigs, src, jr, ar
}

func setPrices(eng *paper.Engine, src *feed.Manual, priceA, priceB float64) {
	now := time.Now().UTC()
	for sym, px := range map[string]float64{"AAPL": priceA, "MSFT": priceB} {
		pp := market.PricePoint{Symbol: sym, Time: now, Price: px}
		eng.SetPrice(pp)
		src.Set(pp)
	}
}

func enterLong(z float64) strategy.TradeSignal {
	return strategy.TradeSignal{
		PairID:     testPair.ID,
		Action:     strategy.ActionEnterLong,
		ZScore:     z,
		HedgeRatio: 0.5,
		Time:       time.Now().UTC(),
		Reason:     "spread_cheap",
	}
}

func exitSignal(z float64) strategy.TradeSignal {
	return strategy.TradeSignal{
		PairID: testPair.ID,
		Action: strategy.ActionExit,
		ZScore: z,
		Time:   time.Now().UTC(),
		Reason: "reverted",
	}
}

func bookQty(t *testing.T, eng *paper.Engine) map[string]float64 {
	t.Helper()
	reports, err := eng.GetPositions(context.Background())
	require.NoError(t, err)
	book := make(map[string]float64, len(reports))
	for _, rep := range reports {
		book[rep.Symbol] = rep.Qty
	}
	return book
}

func TestOpenCloseRoundTrip(t *testing.T) {
	eng := paper.New(zerolog.Nop(), paper.WithStartCash(100_000))
	r, sigs, src, jr, _ := newTestRunner(eng)
	ctx := context.Background()

	// Budget 10k at AAPL=100 buys 100 shares; the 0.5 ratio hedges
	// with 50 MSFT short.
	setPrices(eng, src, 100, 200)
	sigs.set(enterLong(-2.5))
	r.Tick(ctx)

	snap := r.Ledger.Snapshot()
	pos, ok := snap.Position(testPair.ID)
	require.True(t, ok, "position should be open after the entry tick")
	assert.Equal(t, ledger.StatusOpen, pos.Status)
	assert.InDelta(t, 100.0, pos.LegA.Filled, 1e-9)
	assert.InDelta(t, -50.0, pos.LegB.Filled, 1e-9)
	assert.InDelta(t, -2.5, pos.EntryZ, 1e-9)
	assert.InDelta(t, 20_000.0, snap.GrossExposure, 1e-6)
	assert.Equal(t, StateIdle, r.State(testPair.ID))

	book := bookQty(t, eng)
	assert.InDelta(t, 100.0, book["AAPL"], 1e-9)
	assert.InDelta(t, -50.0, book["MSFT"], 1e-9)

	// Spread reverts: long leg up 2, short leg down 1.
	setPrices(eng, src, 102, 199)
	sigs.set(exitSignal(0.3))
	r.Tick(ctx)

	snap = r.Ledger.Snapshot()
	_, ok = snap.Position(testPair.ID)
	assert.False(t, ok, "position should be archived after the exit tick")
	assert.InDelta(t, 250.0, snap.RealizedPL, 1e-6)
	assert.Zero(t, snap.OpenPairs)
	assert.Empty(t, bookQty(t, eng))
	assert.InDelta(t, 100_250.0, eng.Cash(), 1e-6)

	require.Len(t, jr.trades, 1)
	rec := jr.trades[0]
	assert.Equal(t, testPair.ID, rec.PairID)
	assert.InDelta(t, 250.0, rec.RealizedPL, 1e-6)
	assert.InDelta(t, 0.3, rec.ExitZ, 1e-9)
	assert.Equal(t, "reverted", rec.Reason)

	require.NotEmpty(t, jr.equity)
	last := jr.equity[len(jr.equity)-1]
	assert.InDelta(t, 100_250.0, last.Equity, 1e-6)
	assert.Zero(t, last.OpenPairs)
}

func TestEntryLegFailures(t *testing.T) {
	t.Run("first leg rejected leaves no trace", func(t *testing.T) {
		eng := paper.New(zerolog.Nop())
		r, sigs, src, _, ar := newTestRunner(eng)
		setPrices(eng, src, 100, 200)
		eng.RejectSymbol("AAPL", "trading_halted")

		sigs.set(enterLong(-2.5))
		r.Tick(context.Background())

		snap := r.Ledger.Snapshot()
		assert.Empty(t, snap.Positions)
		assert.Empty(t, bookQty(t, eng))
		al, found := ar.find("order_submit_failed")
		require.True(t, found)
		assert.Equal(t, alert.SeverityWarning, al.Severity)
		assert.Equal(t, StateIdle, r.State(testPair.ID))
	})

	t.Run("second leg rejected triggers compensation", func(t *testing.T) {
		eng := paper.New(zerolog.Nop(), paper.WithStartCash(100_000))
		r, sigs, src, jr, ar := newTestRunner(eng)
		setPrices(eng, src, 100, 200)
		eng.RejectSymbol("MSFT", "no_short_availability")

		sigs.set(enterLong(-2.5))
		r.Tick(context.Background())

		// The first leg filled and was reversed; the ledger never saw
		// any of it.
		snap := r.Ledger.Snapshot()
		assert.Empty(t, snap.Positions)
		assert.Zero(t, snap.GrossExposure)
		assert.Zero(t, snap.RealizedPL)
		assert.Empty(t, r.Ledger.ClosedPositions())
		assert.Empty(t, jr.trades)

		assert.Empty(t, bookQty(t, eng), "compensating close should flatten the accepted leg")
		assert.InDelta(t, 100_000.0, eng.Cash(), 1e-6)

		al, found := ar.find("half_open_hedge")
		require.True(t, found)
		assert.Equal(t, alert.SeverityCritical, al.Severity)
		assert.Equal(t, testPair.ID, al.PairID)
		assert.Equal(t, StateIdle, r.State(testPair.ID))
	})
}

func TestTransientRetries(t *testing.T) {
	t.Run("entry survives transient submit failures", func(t *testing.T) {
		eng := paper.New(zerolog.Nop())
		r, sigs, src, _, _ := newTestRunner(eng)
		setPrices(eng, src, 100, 200)
		eng.FailSubmits("AAPL", 2)

		sigs.set(enterLong(-2.5))
		r.Tick(context.Background())

		pos, ok := r.Ledger.Snapshot().Position(testPair.ID)
		require.True(t, ok, "retries should eventually land the order")
		assert.Equal(t, ledger.StatusOpen, pos.Status)
	})

	t.Run("exhausted retries abandon the entry", func(t *testing.T) {
		eng := paper.New(zerolog.Nop())
		r, sigs, src, _, ar := newTestRunner(eng)
		r.Config.MaxRetries = 2
		setPrices(eng, src, 100, 200)
		eng.FailSubmits("AAPL", 10)

		sigs.set(enterLong(-2.5))
		r.Tick(context.Background())

		assert.Empty(t, r.Ledger.Snapshot().Positions)
		assert.Empty(t, bookQty(t, eng))
		_, found := ar.find("order_submit_failed")
		assert.True(t, found)
	})
}

func TestReconcileTimeout(t *testing.T) {
	// Fills delayed an hour: the orders are accepted but never fill
	// inside the reconcile window.
	eng := paper.New(zerolog.Nop(), paper.WithFillDelay(time.Hour))
	r, sigs, src, jr, ar := newTestRunner(eng)
	r.Config.ReconcileTimeout = 100 * time.Millisecond
	setPrices(eng, src, 100, 200)

	sigs.set(enterLong(-2.5))
	r.Tick(context.Background())

	// The staged position was rolled back and both legs cancelled
	// before anything filled.
	snap := r.Ledger.Snapshot()
	assert.Empty(t, snap.Positions)
	assert.Zero(t, snap.GrossExposure)
	assert.Empty(t, r.Ledger.ClosedPositions())
	assert.Empty(t, jr.trades)
	assert.Empty(t, bookQty(t, eng))

	al, found := ar.find("reconcile_timeout")
	require.True(t, found)
	assert.Equal(t, alert.SeverityWarning, al.Severity)
	assert.Equal(t, StateIdle, r.State(testPair.ID))
}

func TestDelayedFillReconciles(t *testing.T) {
	eng := paper.New(zerolog.Nop(), paper.WithFillDelay(30*time.Millisecond))
	r, sigs, src, _, _ := newTestRunner(eng)
	setPrices(eng, src, 100, 200)

	sigs.set(enterLong(-2.5))
	r.Tick(context.Background())

	// The fills arrived through polling, not the submit response.
	pos, ok := r.Ledger.Snapshot().Position(testPair.ID)
	require.True(t, ok)
	assert.Equal(t, ledger.StatusOpen, pos.Status)
	assert.InDelta(t, 100.0, pos.LegA.Filled, 1e-9)
	assert.InDelta(t, -50.0, pos.LegB.Filled, 1e-9)
}

func TestCloseLegFailureRestoresHedge(t *testing.T) {
	eng := paper.New(zerolog.Nop())
	r, sigs, src, jr, ar := newTestRunner(eng)
	ctx := context.Background()
	setPrices(eng, src, 100, 200)

	sigs.set(enterLong(-2.5))
	r.Tick(ctx)
	_, ok := r.Ledger.Snapshot().Position(testPair.ID)
	require.True(t, ok)

	// The close of the second leg is rejected, so the accepted close
	// of the first leg must be bought back.
	eng.RejectSymbol("MSFT", "trading_halted")
	sigs.set(exitSignal(0.2))
	r.Tick(ctx)

	pos, ok := r.Ledger.Snapshot().Position(testPair.ID)
	require.True(t, ok, "position should remain open after a failed close")
	assert.Equal(t, ledger.StatusOpen, pos.Status)
	assert.InDelta(t, 100.0, pos.LegA.Filled, 1e-9)
	assert.InDelta(t, -50.0, pos.LegB.Filled, 1e-9)
	assert.Empty(t, jr.trades)

	book := bookQty(t, eng)
	assert.InDelta(t, 100.0, book["AAPL"], 1e-9, "hedge should be restored")
	assert.InDelta(t, -50.0, book["MSFT"], 1e-9)

	al, found := ar.find("half_open_hedge")
	require.True(t, found)
	assert.Equal(t, alert.SeverityCritical, al.Severity)

	// The exit can run again once the halt clears.
	eng.ClearReject("MSFT")
	sigs.set(exitSignal(0.1))
	r.Tick(ctx)

	_, ok = r.Ledger.Snapshot().Position(testPair.ID)
	assert.False(t, ok)
	require.Len(t, jr.trades, 1)
	assert.Empty(t, bookQty(t, eng))
}

func TestBusyPairSkipped(t *testing.T) {
	eng := paper.New(zerolog.Nop())
	r, sigs, src, _, _ := newTestRunner(eng)
	ctx := context.Background()
	setPrices(eng, src, 100, 200)

	r.setState(testPair.ID, StateReconciling)
	sigs.set(enterLong(-2.5))
	r.Tick(ctx)

	assert.Empty(t, r.Ledger.Snapshot().Positions, "busy pair must not trade")
	assert.Equal(t, 1, sigs.queued(), "skipped pair should not consume its signal")

	r.setState(testPair.ID, StateIdle)
	r.Tick(ctx)

	_, ok := r.Ledger.Snapshot().Position(testPair.ID)
	assert.True(t, ok)
}

func TestHoldAndMissingData(t *testing.T) {
	t.Run("hold records equity and nothing else", func(t *testing.T) {
		eng := paper.New(zerolog.Nop())
		r, _, src, jr, _ := newTestRunner(eng)
		setPrices(eng, src, 100, 200)

		r.Tick(context.Background())

		assert.Empty(t, r.Ledger.Snapshot().Positions)
		require.Len(t, jr.equity, 1)
		assert.InDelta(t, 100_000.0, jr.equity[0].Equity, 1e-6)
	})

	t.Run("missing quote degrades to hold", func(t *testing.T) {
		eng := paper.New(zerolog.Nop())
		r, sigs, src, _, _ := newTestRunner(eng)
		// Only one side of the pair has data.
		pp := market.PricePoint{Symbol: "AAPL", Time: time.Now().UTC(), Price: 100}
		eng.SetPrice(pp)
		src.Set(pp)

		sigs.set(enterLong(-2.5))
		r.Tick(context.Background())

		assert.Empty(t, r.Ledger.Snapshot().Positions)
		assert.Empty(t, bookQty(t, eng))
	})
}

func TestRunLifecycle(t *testing.T) {
	t.Run("missing dependencies are rejected", func(t *testing.T) {
		r := &Runner{}
		err := r.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Feed is required")
	})

	t.Run("run stops when the context ends", func(t *testing.T) {
		eng := paper.New(zerolog.Nop())
		r, _, src, _, _ := newTestRunner(eng)
		r.Config.TickInterval = 5 * time.Millisecond
		setPrices(eng, src, 100, 200)

		ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
		defer cancel()

		err := r.Run(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
