// Package journal persists closed pair trades and periodic equity
// snapshots to CSV, SQLite or Postgres.
package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pairbot/ledger"
)

// TradeRecord is one completed round trip of a pair: both legs opened,
// both legs closed.
type TradeRecord struct {
	TradeID     string
	PairID      string
	SymbolA     string
	SymbolB     string
	QtyA        float64 // signed, + long / - short
	QtyB        float64
	EntryPriceA float64
	EntryPriceB float64
	ExitPriceA  float64
	ExitPriceB  float64
	EntryZ      float64
	ExitZ       float64
	OpenTime    time.Time
	CloseTime   time.Time
	RealizedPL  float64
	Reason      string
}

// EquitySnapshot is a point-in-time view of the book.
type EquitySnapshot struct {
	Time          time.Time
	Equity        float64
	RealizedPL    float64
	UnrealizedPL  float64
	GrossExposure float64
	OpenPairs     int
}

type Journal interface {
	RecordTrade(ctx context.Context, t TradeRecord) error
	RecordEquity(ctx context.Context, e EquitySnapshot) error
	Close() error
}

// Nop discards everything. Used when journaling is disabled.
type Nop struct{}

func (Nop) RecordTrade(context.Context, TradeRecord) error { return nil }

func (Nop) RecordEquity(context.Context, EquitySnapshot) error { return nil }

func (Nop) Close() error { return nil }

const (
	DriverNone     = "none"
	DriverCSV      = "csv"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open builds a Journal for the configured driver. The target is a
// directory for csv, a file path for sqlite and a DSN for postgres.
func Open(ctx context.Context, driver, target string) (Journal, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverNone, "":
		return Nop{}, nil
	case DriverCSV:
		if err := os.MkdirAll(target, 0o755); err != nil {
			return nil, err
		}
		return NewCSV(filepath.Join(target, "trades.csv"), filepath.Join(target, "equity.csv"))
	case DriverSQLite:
		if dir := filepath.Dir(target); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		return NewSQLite(target)
	case DriverPostgres:
		return NewPostgres(ctx, target)
	default:
		return nil, fmt.Errorf("unknown journal driver %q", driver)
	}
}

// FromPosition maps a closed ledger position onto a TradeRecord. The
// exit z-score and reason come from the signal that closed it.
func FromPosition(p ledger.Position, exitZ float64, reason string) TradeRecord {
	return TradeRecord{
		TradeID:     p.ID,
		PairID:      p.PairID,
		SymbolA:     p.LegA.Symbol,
		SymbolB:     p.LegB.Symbol,
		QtyA:        p.LegA.Filled,
		QtyB:        p.LegB.Filled,
		EntryPriceA: p.LegA.EntryPrice,
		EntryPriceB: p.LegB.EntryPrice,
		ExitPriceA:  p.LegA.ExitPrice,
		ExitPriceB:  p.LegB.ExitPrice,
		EntryZ:      p.EntryZ,
		ExitZ:       exitZ,
		OpenTime:    p.OpenedAt,
		CloseTime:   p.ClosedAt,
		RealizedPL:  p.RealizedPL,
		Reason:      reason,
	}
}
