package market

import "math"

// StdDevFloor is the smallest spread deviation the z-score is computed
// against. Below it the window is treated as degenerate and callers
// should not trade on it.
const StdDevFloor = 1e-9

// varianceFloor guards the hedge-ratio denominator. A flat leg B makes
// the OLS slope meaningless.
const varianceFloor = 1e-12

// SpreadStats is one evaluation of a full pair window.
type SpreadStats struct {
	HedgeRatio float64 // OLS slope of A on B
	Spread     float64 // newest spread: a - ratio*b
	Mean       float64 // rolling mean of spreads
	StdDev     float64 // population standard deviation of spreads
	ZScore     float64 // (Spread - Mean) / StdDev, 0 when degenerate
}

// Degenerate reports whether the spread deviation is too small for the
// z-score to mean anything.
func (s SpreadStats) Degenerate() bool {
	return s.StdDev < StdDevFloor
}

// PairWindow is a fixed-capacity ring of aligned price observations for
// the two legs of a pair. Once full, each push evicts the oldest
// observation.
type PairWindow struct {
	a    []float64
	b    []float64
	head int
	size int
}

// NewPairWindow returns a window holding up to capacity observations.
// Capacities below 2 are raised to 2 since the statistics need at
// least two points.
func NewPairWindow(capacity int) *PairWindow {
	if capacity < 2 {
		capacity = 2
	}
	return &PairWindow{
		a: make([]float64, capacity),
		b: make([]float64, capacity),
	}
}

// Push appends one aligned observation for legs A and B.
func (w *PairWindow) Push(a, b float64) {
	w.a[w.head] = a
	w.b[w.head] = b
	w.head = (w.head + 1) % len(w.a)
	if w.size < len(w.a) {
		w.size++
	}
}

func (w *PairWindow) Len() int { return w.size }

func (w *PairWindow) Cap() int { return len(w.a) }

func (w *PairWindow) Full() bool { return w.size == len(w.a) }

// at returns the i-th observation, oldest first.
func (w *PairWindow) at(i int) (float64, float64) {
	idx := (w.head - w.size + i + len(w.a)) % len(w.a)
	return w.a[idx], w.b[idx]
}

// Values returns copies of both legs' observations, oldest first.
func (w *PairWindow) Values() (a, b []float64) {
	a = make([]float64, w.size)
	b = make([]float64, w.size)
	for i := 0; i < w.size; i++ {
		a[i], b[i] = w.at(i)
	}
	return a, b
}

// Stats evaluates the window: hedge ratio by ordinary least squares,
// then spread mean, deviation and z-score. It reports ok=false while
// the window is not yet full or when leg B has no variance to regress
// against.
func (w *PairWindow) Stats() (SpreadStats, bool) {
	if !w.Full() {
		return SpreadStats{}, false
	}
	n := float64(w.size)

	var sumA, sumB float64
	for i := 0; i < w.size; i++ {
		a, b := w.at(i)
		sumA += a
		sumB += b
	}
	meanA := sumA / n
	meanB := sumB / n

	var cov, varB float64
	for i := 0; i < w.size; i++ {
		a, b := w.at(i)
		cov += (a - meanA) * (b - meanB)
		varB += (b - meanB) * (b - meanB)
	}
	if varB/n < varianceFloor {
		return SpreadStats{}, false
	}
	ratio := cov / varB

	var sumS float64
	for i := 0; i < w.size; i++ {
		a, b := w.at(i)
		sumS += a - ratio*b
	}
	meanS := sumS / n

	var varS float64
	for i := 0; i < w.size; i++ {
		a, b := w.at(i)
		d := a - ratio*b - meanS
		varS += d * d
	}
	std := math.Sqrt(varS / n)

	lastA, lastB := w.at(w.size - 1)
	st := SpreadStats{
		HedgeRatio: ratio,
		Spread:     lastA - ratio*lastB,
		Mean:       meanS,
		StdDev:     std,
	}
	if !st.Degenerate() {
		st.ZScore = (st.Spread - st.Mean) / st.StdDev
	}
	return st, true
}
