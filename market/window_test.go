package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPairWindowEviction(t *testing.T) {
	w := NewPairWindow(3)
	assert.Equal(t, 3, w.Cap())
	assert.False(t, w.Full())

	w.Push(1, 10)
	w.Push(2, 20)
	assert.Equal(t, 2, w.Len())
	assert.False(t, w.Full())

	w.Push(3, 30)
	assert.True(t, w.Full())

	// Fourth push evicts the oldest observation.
	w.Push(4, 40)
	assert.True(t, w.Full())
	assert.Equal(t, 3, w.Len())

	a, b := w.Values()
	assert.Equal(t, []float64{2, 3, 4}, a)
	assert.Equal(t, []float64{20, 30, 40}, b)
}

func TestPairWindowStats(t *testing.T) {
	t.Run("not ready until full", func(t *testing.T) {
		w := NewPairWindow(4)
		w.Push(1, 1)
		w.Push(2, 2)
		w.Push(3, 3)
		_, ok := w.Stats()
		assert.False(t, ok)
	})

	t.Run("hand computed regression", func(t *testing.T) {
		w := NewPairWindow(4)
		as := []float64{2.1, 3.9, 6.2, 7.8}
		bs := []float64{1, 2, 3, 4}
		for i := range as {
			w.Push(as[i], bs[i])
		}

		st, ok := w.Stats()
		assert.True(t, ok)
		// cov = 9.7, var(B) = 5 -> slope 1.94
		assert.InDelta(t, 1.94, st.HedgeRatio, 1e-9)
		assert.InDelta(t, 0.15, st.Mean, 1e-9)
		assert.InDelta(t, 0.1431782, st.StdDev, 1e-6)
		assert.InDelta(t, 0.04, st.Spread, 1e-9)
		assert.InDelta(t, -0.7683, st.ZScore, 1e-4)
		assert.False(t, st.Degenerate())
	})

	t.Run("perfect fit is degenerate", func(t *testing.T) {
		w := NewPairWindow(5)
		for i := 1; i <= 5; i++ {
			w.Push(2*float64(i), float64(i))
		}
		st, ok := w.Stats()
		assert.True(t, ok)
		assert.InDelta(t, 2.0, st.HedgeRatio, 1e-12)
		assert.True(t, st.Degenerate())
		assert.Equal(t, 0.0, st.ZScore)
	})

	t.Run("flat leg B has no ratio", func(t *testing.T) {
		w := NewPairWindow(3)
		w.Push(10, 5)
		w.Push(11, 5)
		w.Push(12, 5)
		_, ok := w.Stats()
		assert.False(t, ok)
	})

	t.Run("positive z when A rich", func(t *testing.T) {
		w := NewPairWindow(6)
		bs := []float64{10, 11, 10, 11, 10, 11}
		for i, b := range bs {
			a := b * 1.5
			if i == len(bs)-1 {
				a += 2 // push the last spread above the mean
			}
			w.Push(a, b)
		}
		st, ok := w.Stats()
		assert.True(t, ok)
		assert.Greater(t, st.ZScore, 0.0)
	})

	t.Run("stats track the rolling window", func(t *testing.T) {
		w := NewPairWindow(3)
		w.Push(2, 1)
		w.Push(4.1, 2)
		w.Push(5.9, 3)
		first, ok := w.Stats()
		assert.True(t, ok)

		w.Push(8.2, 4)
		second, ok := w.Stats()
		assert.True(t, ok)
		assert.NotEqual(t, first.HedgeRatio, second.HedgeRatio)
	})
}

func TestQuoteStore(t *testing.T) {
	s := NewQuoteStore()

	_, ok := s.Get("AAPL")
	assert.False(t, ok)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Set(PricePoint{Symbol: "AAPL", Time: now, Price: 187.5})
	s.Set(PricePoint{Symbol: "MSFT", Time: now, Price: 410.25})

	pp, ok := s.Get("AAPL")
	assert.True(t, ok)
	assert.Equal(t, 187.5, pp.Price)
	assert.Equal(t, now, pp.Time)

	// Later quote replaces the earlier one.
	s.Set(PricePoint{Symbol: "AAPL", Time: now.Add(time.Second), Price: 188.0})
	pp, _ = s.Get("AAPL")
	assert.Equal(t, 188.0, pp.Price)

	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, s.Symbols())
}

func TestLookupInstrument(t *testing.T) {
	meta := Lookup("AAPL")
	assert.Equal(t, 1.0, meta.LotStep)

	meta = Lookup("BTCUSDT")
	assert.Equal(t, 0.00001, meta.LotStep)

	// Unknown symbols fall back to whole units.
	meta = Lookup("ZZZ")
	assert.Equal(t, DefaultLotStep, meta.LotStep)
	assert.Equal(t, "ZZZ", meta.Symbol)
}
