package feed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairbot/market"
)

func TestManualSource(t *testing.T) {
	m := NewManual()
	ctx := context.Background()

	_, err := m.Latest(ctx, "AAPL")
	assert.ErrorIs(t, err, ErrNoData)

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	m.Set(market.PricePoint{Symbol: "AAPL", Time: now, Price: 190})
	pp, err := m.Latest(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 190.0, pp.Price)
}

func TestStubDeterminism(t *testing.T) {
	ctx := context.Background()
	a := NewStub([]string{"AAPL", "MSFT"})
	b := NewStub([]string{"AAPL", "MSFT"})

	for i := 0; i < 10; i++ {
		pa, err := a.Latest(ctx, "AAPL")
		require.NoError(t, err)
		pb, err := b.Latest(ctx, "AAPL")
		require.NoError(t, err)
		assert.Equal(t, pa.Price, pb.Price, "step %d should be deterministic", i)
		assert.Greater(t, pa.Price, 0.0)
	}

	// Different symbols walk from different bases.
	pa, _ := a.Latest(ctx, "AAPL")
	pm, _ := a.Latest(ctx, "MSFT")
	assert.NotEqual(t, pa.Price, pm.Price)

	// Unlisted symbols are admitted lazily.
	pp, err := a.Latest(ctx, "GOOG")
	require.NoError(t, err)
	assert.Greater(t, pp.Price, 0.0)
}

func writeBarFile(t *testing.T, dir, symbol string, closes []float64) {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("time,open,high,low,close,volume\n")
	base := time.Date(2025, 2, 3, 14, 30, 0, 0, time.UTC)
	for i, c := range closes {
		ts := base.Add(time.Duration(i) * time.Minute)
		fmt.Fprintf(&sb, "%s,1,2,0.5,%s,100\n", ts.Format(time.RFC3339), strconv.FormatFloat(c, 'f', -1, 64))
	}
	err := os.WriteFile(filepath.Join(dir, symbol+".csv"), []byte(sb.String()), 0o644)
	require.NoError(t, err)
}

func TestCSVSourceReplay(t *testing.T) {
	dir := t.TempDir()
	writeBarFile(t, dir, "AAPL", []float64{100, 101, 102})
	writeBarFile(t, dir, "MSFT", []float64{200, 199, 198, 197})

	src, err := LoadCSVDir(dir, []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	// Shortest file wins.
	assert.Equal(t, 3, src.Len())

	ctx := context.Background()
	_, err = src.Latest(ctx, "AAPL")
	assert.ErrorIs(t, err, ErrNoData)

	require.True(t, src.Step())
	pa, err := src.Latest(ctx, "AAPL")
	require.NoError(t, err)
	pm, err := src.Latest(ctx, "MSFT")
	require.NoError(t, err)
	assert.Equal(t, 100.0, pa.Price)
	assert.Equal(t, 200.0, pm.Price)
	assert.Equal(t, pa.Time, pm.Time)

	require.True(t, src.Step())
	require.True(t, src.Step())
	assert.False(t, src.Step(), "replay should stop at the shortest file")

	pa, _ = src.Latest(ctx, "AAPL")
	assert.Equal(t, 102.0, pa.Price)

	_, err = src.Latest(ctx, "TSLA")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestLoadCSVDirErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadCSVDir(dir, []string{"AAPL"})
	assert.Error(t, err)

	err = os.WriteFile(filepath.Join(dir, "BAD.csv"), []byte("nope,open\n"), 0o644)
	require.NoError(t, err)
	_, err = LoadCSVDir(dir, []string{"BAD"})
	assert.Error(t, err)
}

func TestNewFactory(t *testing.T) {
	log := zerolog.Nop()

	src, err := New("", []string{"AAPL"}, log)
	require.NoError(t, err)
	assert.IsType(t, &Stub{}, src)

	src, err = New(ProviderBinance, []string{"BTCUSDT"}, log, WithMaxAge(5*time.Second))
	require.NoError(t, err)
	require.IsType(t, &Binance{}, src)
	assert.Equal(t, 5*time.Second, src.(*Binance).maxAge)

	_, err = New(ProviderCSV, []string{"AAPL"}, log)
	assert.Error(t, err, "csv provider requires a directory")

	_, err = New("bogus", nil, log)
	assert.Error(t, err)
}

func TestBinanceStaleness(t *testing.T) {
	b := NewBinance([]string{"BTCUSDT"}, zerolog.Nop())
	ctx := context.Background()

	_, err := b.Latest(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, ErrNoData)

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	b.store.Set(market.PricePoint{Symbol: "BTCUSDT", Time: now.Add(-time.Second), Price: 64000})

	pp, err := b.Latest(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 64000.0, pp.Price)

	// Quotes past maxAge are withheld.
	b.now = func() time.Time { return now.Add(time.Minute) }
	_, err = b.Latest(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, ErrNoData)

	// A longer budget readmits the same quote.
	b.SetMaxAge(2 * time.Minute)
	pp, err = b.Latest(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 64000.0, pp.Price)

	// Non-positive values are ignored.
	b.SetMaxAge(0)
	_, err = b.Latest(ctx, "BTCUSDT")
	require.NoError(t, err)
}
