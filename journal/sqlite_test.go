package journal

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	j, err := NewSQLite(path)
	require.NoError(t, err)

	return j, path
}

func sampleTrade(id string, closeTime time.Time, pl float64) TradeRecord {
	return TradeRecord{
		TradeID:     id,
		PairID:      "AAPL-MSFT",
		SymbolA:     "AAPL",
		SymbolB:     "MSFT",
		QtyA:        10,
		QtyB:        -5,
		EntryPriceA: 101.0,
		EntryPriceB: 199.0,
		ExitPriceA:  104.0,
		ExitPriceB:  202.0,
		EntryZ:      2.15,
		ExitZ:       0.31,
		OpenTime:    closeTime.Add(-2 * time.Hour),
		CloseTime:   closeTime,
		RealizedPL:  pl,
		Reason:      "reverted",
	}
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('trades','equity')`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		assert.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	assert.NoError(t, rows.Err())

	assert.True(t, found["trades"])
	assert.True(t, found["equity"])
}

func TestSQLiteRecordTrade(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()
	ctx := context.Background()

	closeT := time.Date(2025, 1, 2, 4, 5, 6, 0, time.UTC)
	rec := sampleTrade("T1", closeT, 45.0)
	require.NoError(t, j.RecordTrade(ctx, rec))

	got, err := j.GetTrade(ctx, "T1")
	require.NoError(t, err)

	assert.Equal(t, rec.TradeID, got.TradeID)
	assert.Equal(t, rec.PairID, got.PairID)
	assert.Equal(t, rec.SymbolA, got.SymbolA)
	assert.Equal(t, rec.SymbolB, got.SymbolB)
	assert.InDelta(t, rec.QtyA, got.QtyA, 1e-9)
	assert.InDelta(t, rec.QtyB, got.QtyB, 1e-9)
	assert.InDelta(t, rec.EntryPriceA, got.EntryPriceA, 1e-9)
	assert.InDelta(t, rec.ExitPriceB, got.ExitPriceB, 1e-9)
	assert.InDelta(t, rec.EntryZ, got.EntryZ, 1e-9)
	assert.InDelta(t, rec.ExitZ, got.ExitZ, 1e-9)
	assert.True(t, got.OpenTime.Equal(rec.OpenTime))
	assert.True(t, got.CloseTime.Equal(rec.CloseTime))
	assert.InDelta(t, rec.RealizedPL, got.RealizedPL, 1e-6)
	assert.Equal(t, rec.Reason, got.Reason)
}

func TestSQLiteRecordEquity(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()
	ctx := context.Background()

	ts := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	rec := EquitySnapshot{
		Time:          ts,
		Equity:        100450.5,
		RealizedPL:    300.5,
		UnrealizedPL:  150.0,
		GrossExposure: 4200.0,
		OpenPairs:     2,
	}
	require.NoError(t, j.RecordEquity(ctx, rec))

	got, err := j.ListEquityBetween(ctx, ts.Add(-time.Hour), ts.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.True(t, got[0].Time.Equal(rec.Time))
	assert.InDelta(t, rec.Equity, got[0].Equity, 1e-6)
	assert.InDelta(t, rec.RealizedPL, got[0].RealizedPL, 1e-6)
	assert.InDelta(t, rec.UnrealizedPL, got[0].UnrealizedPL, 1e-6)
	assert.InDelta(t, rec.GrossExposure, got[0].GrossExposure, 1e-6)
	assert.Equal(t, rec.OpenPairs, got[0].OpenPairs)
}

func TestOpenFactory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("none", func(t *testing.T) {
		j, err := Open(ctx, "none", "")
		require.NoError(t, err)
		assert.IsType(t, Nop{}, j)
	})

	t.Run("empty defaults to nop", func(t *testing.T) {
		j, err := Open(ctx, "", "")
		require.NoError(t, err)
		assert.IsType(t, Nop{}, j)
	})

	t.Run("csv creates the directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "journal")
		j, err := Open(ctx, "csv", dir)
		require.NoError(t, err)
		assert.NoError(t, j.Close())
	})

	t.Run("sqlite", func(t *testing.T) {
		j, err := Open(ctx, "sqlite", filepath.Join(t.TempDir(), "j.db"))
		require.NoError(t, err)
		assert.NoError(t, j.Close())
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := Open(ctx, "oracle", "")
		assert.Error(t, err)
	})
}
