package feed

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"

	"pairbot/market"
)

// Stub generates deterministic synthetic prices. Every symbol rides
// the same slow cycle plus a little idiosyncratic noise, so the
// spread between any two symbols mean-reverts and the strategy has
// something to trade against.
type Stub struct {
	mu    sync.Mutex
	state map[string]*stubSymbol
}

type stubSymbol struct {
	base float64
	step int
	rng  *rand.Rand
}

const (
	stubCyclePeriod = 48
	stubCycleAmp    = 0.03
	stubNoise       = 0.004
)

// NewStub builds a stub source for the given symbols. Unlisted
// symbols are admitted lazily on first request.
func NewStub(symbols []string) *Stub {
	s := &Stub{state: make(map[string]*stubSymbol)}
	for _, sym := range dedupeSymbols(symbols) {
		s.state[sym] = newStubSymbol(sym)
	}
	return s
}

func newStubSymbol(symbol string) *stubSymbol {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	seed := int64(h.Sum64())
	rng := rand.New(rand.NewSource(seed))
	// Base in [40, 440) so pairs have distinct but same-order prices.
	base := 40 + rng.Float64()*400
	return &stubSymbol{base: base, rng: rng}
}

// Latest advances the symbol's walk by one step and returns the new
// price. Calls for different symbols at the same step stay correlated
// through the shared cycle.
func (s *Stub) Latest(_ context.Context, symbol string) (market.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.state[symbol]
	if !ok {
		st = newStubSymbol(symbol)
		s.state[symbol] = st
	}

	cycle := stubCycleAmp * math.Sin(2*math.Pi*float64(st.step)/stubCyclePeriod)
	noise := stubNoise * st.rng.NormFloat64()
	price := st.base * (1 + cycle + noise)
	st.step++

	return market.PricePoint{
		Symbol: symbol,
		Time:   time.Now().UTC(),
		Price:  price,
	}, nil
}
