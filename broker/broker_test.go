package broker

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSide(t *testing.T) {
	assert.Equal(t, Sell, Buy.Opposite())
	assert.Equal(t, Buy, Sell.Opposite())
}

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusFilled, StatusRejected, StatusCancelled}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}
	open := []Status{StatusPending, StatusSubmitted, StatusPartiallyFilled}
	for _, s := range open {
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}

func TestOrderQuantities(t *testing.T) {
	o := Order{Side: Sell, Qty: 10, FilledQty: 4}
	assert.Equal(t, -10.0, o.SignedQty())
	assert.Equal(t, 6.0, o.Remaining())

	o = Order{Side: Buy, Qty: 3, FilledQty: 3}
	assert.Equal(t, 3.0, o.SignedQty())
	assert.Equal(t, 0.0, o.Remaining())
}

func TestTransientErrors(t *testing.T) {
	base := errors.New("connection reset")
	err := Transient(base)
	assert.True(t, IsTransient(err))
	assert.ErrorIs(t, err, base)

	// Wrapping preserves classification.
	wrapped := fmt.Errorf("submit leg A: %w", err)
	assert.True(t, IsTransient(wrapped))

	assert.False(t, IsTransient(base))
	assert.Nil(t, Transient(nil))
}

func TestRejectErrors(t *testing.T) {
	err := &RejectError{Symbol: "AAPL", Reason: "insufficient buying power"}
	assert.True(t, IsReject(err))
	assert.False(t, IsTransient(err))
	assert.Contains(t, err.Error(), "AAPL")

	wrapped := fmt.Errorf("submit: %w", error(err))
	assert.True(t, IsReject(wrapped))
}
