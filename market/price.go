// Package market holds the shared market-data types: price points,
// instrument metadata and the rolling pair window the signal engine
// computes its statistics over.
package market

import (
	"sync"
	"time"
)

// PricePoint is a single observed price for one symbol.
type PricePoint struct {
	Symbol string    `json:"symbol"`
	Time   time.Time `json:"time"`
	Price  float64   `json:"price"`
}

// QuoteStore is a concurrency-safe cache of the latest price per symbol.
type QuoteStore struct {
	mu     sync.RWMutex
	quotes map[string]PricePoint
}

func NewQuoteStore() *QuoteStore {
	return &QuoteStore{quotes: make(map[string]PricePoint)}
}

// Set stores pp as the latest quote for its symbol.
func (s *QuoteStore) Set(pp PricePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[pp.Symbol] = pp
}

// Get returns the latest quote for symbol, if one has been stored.
func (s *QuoteStore) Get(symbol string) (PricePoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pp, ok := s.quotes[symbol]
	return pp, ok
}

// Symbols returns the symbols currently held in the store.
func (s *QuoteStore) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.quotes))
	for sym := range s.quotes {
		out = append(out, sym)
	}
	return out
}
