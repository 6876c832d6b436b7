package journal

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

var _ Journal = (*SQLite)(nil)

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(ctx context.Context, t TradeRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO trades
		(trade_id, pair_id, symbol_a, symbol_b, qty_a, qty_b,
		 entry_price_a, entry_price_b, exit_price_a, exit_price_b,
		 entry_z, exit_z, open_time, close_time, realized_pl, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.PairID, t.SymbolA, t.SymbolB, t.QtyA, t.QtyB,
		t.EntryPriceA, t.EntryPriceB, t.ExitPriceA, t.ExitPriceB,
		t.EntryZ, t.ExitZ, t.OpenTime, t.CloseTime, t.RealizedPL, t.Reason,
	)
	return err
}

func (j *SQLite) RecordEquity(ctx context.Context, e EquitySnapshot) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO equity
		(time, equity, realized_pl, unrealized_pl, gross_exposure, open_pairs)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Time, e.Equity, e.RealizedPL, e.UnrealizedPL, e.GrossExposure, e.OpenPairs,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
