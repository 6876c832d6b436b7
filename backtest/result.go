package backtest

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"pairbot/journal"
	"pairbot/ledger"
)

// EquityPoint is one sample of account equity during the replay.
type EquityPoint struct {
	Time   time.Time
	Equity float64
}

// Result is the summary of one replay.
type Result struct {
	StartCash      float64
	EndEquity      float64
	NetPL          float64
	ReturnPct      float64
	Trades         int
	Wins           int
	Losses         int
	WinRate        float64
	ProfitFactor   float64
	MaxDrawdownPct float64

	Start time.Time
	End   time.Time
	Bars  int

	Equity []EquityPoint
}

func buildResult(startCash float64, led *ledger.Ledger, curve []EquityPoint, start, end time.Time, bars int) Result {
	res := Result{
		StartCash: startCash,
		EndEquity: startCash,
		Start:     start,
		End:       end,
		Bars:      bars,
		Equity:    curve,
	}
	if len(curve) > 0 {
		res.EndEquity = curve[len(curve)-1].Equity
	}
	res.NetPL = res.EndEquity - startCash
	if startCash > 0 {
		res.ReturnPct = res.NetPL / startCash * 100
	}
	res.MaxDrawdownPct = maxDrawdownPct(curve)

	var grossProfit, grossLoss float64
	for _, pos := range led.ClosedPositions() {
		res.Trades++
		switch {
		case pos.RealizedPL > 0:
			res.Wins++
			grossProfit += pos.RealizedPL
		case pos.RealizedPL < 0:
			res.Losses++
			grossLoss += -pos.RealizedPL
		}
	}
	if res.Trades > 0 {
		res.WinRate = float64(res.Wins) / float64(res.Trades)
	}
	if grossLoss > 0 {
		res.ProfitFactor = grossProfit / grossLoss
	}
	return res
}

// maxDrawdownPct is the deepest peak-to-trough equity drop, as a
// percentage of the peak.
func maxDrawdownPct(curve []EquityPoint) float64 {
	peak := math.Inf(-1)
	var maxDD float64
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := (peak - p.Equity) / peak * 100
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// Report shapes the result into a journal run record.
func (res Result) Report(runID, dataset, strategyName string, pairs []string) journal.BacktestRun {
	return journal.BacktestRun{
		RunID:        runID,
		Created:      time.Now().UTC(),
		Dataset:      dataset,
		Pairs:        pairs,
		Strategy:     strategyName,
		Start:        res.Start,
		End:          res.End,
		Trades:       res.Trades,
		Wins:         res.Wins,
		Losses:       res.Losses,
		StartBalance: res.StartCash,
		EndBalance:   res.EndEquity,
		NetPL:        res.NetPL,
		ReturnPct:    res.ReturnPct,
		WinRate:      res.WinRate,
		ProfitFactor: res.ProfitFactor,
		MaxDDPct:     res.MaxDrawdownPct,
	}
}

// PrintBacktestRun writes a console summary of a run record.
func PrintBacktestRun(w io.Writer, r journal.BacktestRun) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintf(w, "Run ID:        %s\n", r.RunID)
	fmt.Fprintf(w, "Created:       %s\n", r.Created.Format(time.RFC3339))
	fmt.Fprintf(w, "Strategy:      %s\n", r.Strategy)
	fmt.Fprintf(w, "Pairs:         %s\n", strings.Join(r.Pairs, ", "))
	fmt.Fprintf(w, "Dataset:       %s\n", r.Dataset)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start:         %s\n", r.Start.Format(time.RFC3339))
	fmt.Fprintf(w, "End:           %s\n", r.End.Format(time.RFC3339))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Trades:        %d\n", r.Trades)
	fmt.Fprintf(w, "Wins:          %d\n", r.Wins)
	fmt.Fprintf(w, "Losses:        %d\n", r.Losses)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", r.WinRate*100)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start Balance: %.2f\n", r.StartBalance)
	fmt.Fprintf(w, "End Balance:   %.2f\n", r.EndBalance)
	fmt.Fprintf(w, "Net P/L:       %.2f\n", r.NetPL)
	fmt.Fprintf(w, "Return:        %.2f%%\n", r.ReturnPct)

	if r.ProfitFactor > 0 {
		fmt.Fprintf(w, "Profit Factor: %.2f\n", r.ProfitFactor)
	}
	if r.MaxDDPct > 0 {
		fmt.Fprintf(w, "Max Drawdown:  %.2f%%\n", r.MaxDDPct)
	}

	if len(r.Notes) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Observations")
		fmt.Fprintln(w, "--------------------------------------------------")
		for _, note := range r.Notes {
			fmt.Fprintf(w, "- %s\n", note)
		}
	}

	if len(r.NextActions) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Next Actions")
		fmt.Fprintln(w, "--------------------------------------------------")
		for _, action := range r.NextActions {
			fmt.Fprintf(w, "- [ ] %s\n", action)
		}
	}

	fmt.Fprintln(w)
}
