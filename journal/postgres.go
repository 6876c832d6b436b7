package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres journals into a shared database, for fleets of bots or
// long-lived paper runs where the dashboard reads the same tables.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Journal = (*Postgres)(nil)

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, PostgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (j *Postgres) RecordTrade(ctx context.Context, t TradeRecord) error {
	_, err := j.pool.Exec(ctx, `
		INSERT INTO trades
		(trade_id, pair_id, symbol_a, symbol_b, qty_a, qty_b,
		 entry_price_a, entry_price_b, exit_price_a, exit_price_b,
		 entry_z, exit_z, open_time, close_time, realized_pl, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		t.TradeID, t.PairID, t.SymbolA, t.SymbolB, t.QtyA, t.QtyB,
		t.EntryPriceA, t.EntryPriceB, t.ExitPriceA, t.ExitPriceB,
		t.EntryZ, t.ExitZ, t.OpenTime, t.CloseTime, t.RealizedPL, t.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", t.TradeID, err)
	}
	return nil
}

func (j *Postgres) RecordEquity(ctx context.Context, e EquitySnapshot) error {
	_, err := j.pool.Exec(ctx, `
		INSERT INTO equity
		(time, equity, realized_pl, unrealized_pl, gross_exposure, open_pairs)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.Time, e.Equity, e.RealizedPL, e.UnrealizedPL, e.GrossExposure, e.OpenPairs,
	)
	if err != nil {
		return fmt.Errorf("insert equity snapshot: %w", err)
	}
	return nil
}

func (j *Postgres) Close() error {
	j.pool.Close()
	return nil
}
