package risk

import "github.com/shopspring/decimal"

// RoundToStep quantizes qty to a multiple of step, always truncating
// toward zero so a rounded order can never exceed the sized amount.
func RoundToStep(qty, step float64) float64 {
	return truncateToStep(decimal.NewFromFloat(qty), step)
}

// HedgeQty sizes the hedge leg: |ratio * qtyA| truncated at step. The
// multiply runs in decimal space so float dust cannot push the result
// across a step boundary before truncation.
func HedgeQty(ratio, qtyA, step float64) float64 {
	q := decimal.NewFromFloat(ratio).Mul(decimal.NewFromFloat(qtyA)).Abs()
	return truncateToStep(q, step)
}

func truncateToStep(q decimal.Decimal, step float64) float64 {
	if step <= 0 {
		f, _ := q.Float64()
		return f
	}
	s := decimal.NewFromFloat(step)
	out, _ := q.Div(s).Truncate(0).Mul(s).Float64()
	return out
}
