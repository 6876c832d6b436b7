// Package backtest replays historical bars through the live execution
// loop against the paper venue, so the exact code that trades is the
// code being measured.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"pairbot/broker/paper"
	"pairbot/feed"
	"pairbot/journal"
	"pairbot/ledger"
	"pairbot/risk"
	"pairbot/runner"
	"pairbot/strategy"
)

// BarFeed replays aligned bar data: Step advances every symbol to the
// next row, Latest serves prices at the current row. feed.CSVSource
// implements it.
type BarFeed interface {
	feed.Source
	Step() bool
	Symbols() []string
}

// Options controls how the replay behaves.
type Options struct {
	// StartCash seeds the paper account. Zero means 100000.
	StartCash float64
	// CloseEnd flattens any open position on the last bar so the
	// result reflects realized numbers only.
	CloseEnd    bool
	CloseReason string // defaults to "end_of_data"
}

// Runner drives one replay. Populate the exported fields and call Run.
type Runner struct {
	Feed     BarFeed
	Strategy strategy.SignalSource
	Policy   risk.Policy
	Journal  journal.Journal
	Log      zerolog.Logger
	Options  Options
}

func (r *Runner) startCash() float64 {
	if r.Options.StartCash > 0 {
		return r.Options.StartCash
	}
	return 100_000
}

// Run replays the dataset bar by bar:
//  1. publish the bar's prices to the paper venue
//  2. tick the execution loop
//  3. sample equity
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Feed == nil {
		return Result{}, fmt.Errorf("backtest: Feed is required")
	}
	if r.Strategy == nil {
		return Result{}, fmt.Errorf("backtest: Strategy is required")
	}

	venue := paper.New(r.Log, paper.WithStartCash(r.startCash()))
	led := ledger.New(r.Log)
	loop := &runner.Runner{
		Feed:    r.Feed,
		Signals: r.Strategy,
		Risk:    risk.NewManager(r.Policy, r.Strategy.Pairs(), r.Log),
		Broker:  venue,
		Ledger:  led,
		Journal: r.Journal,
		Log:     r.Log,
		Config: runner.Config{
			MaxRetries:       2,
			ReconcileTimeout: 5 * time.Second,
			PollInterval:     time.Millisecond,
			StartingCash:     r.startCash(),
		},
	}

	var (
		start, end time.Time
		curve      []EquityPoint
		bars       int
		lastPrices map[string]float64
	)

	for r.Feed.Step() {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		bars++

		prices := make(map[string]float64)
		var barTime time.Time
		for _, sym := range r.Feed.Symbols() {
			pp, err := r.Feed.Latest(ctx, sym)
			if err != nil {
				continue
			}
			venue.SetPrice(pp)
			prices[sym] = pp.Price
			if pp.Time.After(barTime) {
				barTime = pp.Time
			}
		}

		loop.Tick(ctx)

		if start.IsZero() {
			start = barTime
		}
		end = barTime
		lastPrices = prices

		snap := led.Snapshot()
		curve = append(curve, EquityPoint{
			Time:   barTime,
			Equity: r.startCash() + snap.RealizedPL + led.UnrealizedPL(prices),
		})
	}

	if r.Options.CloseEnd {
		reason := r.Options.CloseReason
		if reason == "" {
			reason = "end_of_data"
		}
		for _, p := range r.Strategy.Pairs() {
			if err := loop.ClosePair(ctx, p.ID, reason); err != nil {
				r.Log.Warn().Err(err).Str("pair", p.ID).Msg("end-of-data close failed")
			}
		}
		if len(curve) > 0 {
			snap := led.Snapshot()
			curve[len(curve)-1].Equity = r.startCash() + snap.RealizedPL + led.UnrealizedPL(lastPrices)
		}
	}

	return buildResult(r.startCash(), led, curve, start, end, bars), nil
}
