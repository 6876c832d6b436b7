package journal

import (
	"context"
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

var tradeHeader = []string{
	"trade_id", "pair_id", "symbol_a", "symbol_b", "qty_a", "qty_b",
	"entry_price_a", "entry_price_b", "exit_price_a", "exit_price_b",
	"entry_z", "exit_z", "open_time", "close_time", "realized_pl", "reason",
}

var equityHeader = []string{
	"time", "equity", "realized_pl", "unrealized_pl", "gross_exposure", "open_pairs",
}

type CSVJournal struct {
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

func NewCSV(tradesPath, equityPath string) (*CSVJournal, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		tf.Close()
		return nil, err
	}

	tw := csv.NewWriter(tf)
	ew := csv.NewWriter(ef)

	if err := tw.Write(tradeHeader); err != nil {
		return nil, err
	}
	if err := ew.Write(equityHeader); err != nil {
		return nil, err
	}

	tw.Flush()
	if err := tw.Error(); err != nil {
		return nil, err
	}
	ew.Flush()
	if err := ew.Error(); err != nil {
		return nil, err
	}

	return &CSVJournal{tw, ew, tf, ef}, nil
}

func (j *CSVJournal) RecordTrade(_ context.Context, t TradeRecord) error {
	j.trades.Write([]string{
		t.TradeID,
		t.PairID,
		t.SymbolA,
		t.SymbolB,
		f(t.QtyA),
		f(t.QtyB),
		f(t.EntryPriceA),
		f(t.EntryPriceB),
		f(t.ExitPriceA),
		f(t.ExitPriceB),
		f(t.EntryZ),
		f(t.ExitZ),
		t.OpenTime.Format(time.RFC3339),
		t.CloseTime.Format(time.RFC3339),
		f(t.RealizedPL),
		t.Reason,
	})
	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSVJournal) RecordEquity(_ context.Context, e EquitySnapshot) error {
	err := j.equity.Write([]string{
		e.Time.Format(time.RFC3339),
		f(e.Equity),
		f(e.RealizedPL),
		f(e.UnrealizedPL),
		f(e.GrossExposure),
		strconv.Itoa(e.OpenPairs),
	})
	if err != nil {
		return err
	}

	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSVJournal) Close() error {
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	if err := j.equity.Error(); err != nil {
		return err
	}

	if err := j.tf.Close(); err != nil {
		return err
	}
	if err := j.ef.Close(); err != nil {
		return err
	}
	return nil
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
