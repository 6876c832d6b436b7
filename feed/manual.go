package feed

import (
	"context"

	"pairbot/market"
)

// Manual is a map-backed source whose prices are set explicitly.
// Tests and the backtest driver use it to control exactly what the
// signal engine sees.
type Manual struct {
	store *market.QuoteStore
}

func NewManual() *Manual {
	return &Manual{store: market.NewQuoteStore()}
}

// Set publishes pp as the symbol's latest price.
func (m *Manual) Set(pp market.PricePoint) {
	m.store.Set(pp)
}

// Latest returns the last price set for symbol, or ErrNoData when none
// has been set.
func (m *Manual) Latest(_ context.Context, symbol string) (market.PricePoint, error) {
	pp, ok := m.store.Get(symbol)
	if !ok {
		return market.PricePoint{}, ErrNoData
	}
	return pp, nil
}
