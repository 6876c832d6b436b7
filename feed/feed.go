// Package feed provides market data sources: a deterministic stub, a
// CSV replayer for backtests and a Binance websocket stream.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pairbot/market"
)

// ErrNoData means the source has no fresh price for the symbol right
// now. Callers hold and try again next tick.
var ErrNoData = errors.New("feed: no fresh data")

const (
	// ProviderStub emits deterministic synthetic prices (useful for
	// tests and offline work).
	ProviderStub = "stub"
	// ProviderCSV replays bar files from disk.
	ProviderCSV = "csv"
	// ProviderBinance streams live trades from Binance public
	// websockets.
	ProviderBinance = "binance"
)

// Source yields the latest observed price per symbol.
type Source interface {
	Latest(ctx context.Context, symbol string) (market.PricePoint, error)
}

// Streamer is implemented by sources that need a background pump.
// Callers should start Run in a goroutine before polling Latest.
type Streamer interface {
	Run(ctx context.Context) error
}

// Option configures source construction.
type Option func(*options)

type options struct {
	csvDir string
	maxAge time.Duration
}

// WithCSVDir points the csv provider at its bar directory.
func WithCSVDir(dir string) Option {
	return func(o *options) { o.csvDir = dir }
}

// WithMaxAge sets the staleness budget for streaming providers.
func WithMaxAge(d time.Duration) Option {
	return func(o *options) { o.maxAge = d }
}

// New constructs the source for the named provider. Unknown names are
// an error so config typos fail fast.
func New(provider string, symbols []string, log zerolog.Logger, opts ...Option) (Source, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	switch strings.ToLower(provider) {
	case "", ProviderStub:
		return NewStub(symbols), nil
	case ProviderCSV:
		if o.csvDir == "" {
			return nil, fmt.Errorf("csv feed requires a data directory")
		}
		return LoadCSVDir(o.csvDir, symbols)
	case ProviderBinance:
		b := NewBinance(symbols, log)
		b.SetMaxAge(o.maxAge)
		return b, nil
	default:
		return nil, fmt.Errorf("unknown feed provider %q", provider)
	}
}

func dedupeSymbols(symbols []string) []string {
	unique := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		sym = strings.TrimSpace(sym)
		if sym == "" {
			continue
		}
		unique[sym] = struct{}{}
	}
	out := make([]string, 0, len(unique))
	for sym := range unique {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
