package runner

import (
	"time"
)

const (
	baseDelay = 250 * time.Millisecond
	maxDelay  = 30 * time.Second
)

// Backoff returns the exponential backoff duration for a given retry
// count: baseDelay * 2^retryCount, capped at maxDelay. Jitter-free so
// retry timing stays deterministic.
func Backoff(retryCount int) time.Duration {
	if retryCount < 0 {
		return baseDelay
	}

	// 2^30 already exceeds maxDelay by orders of magnitude.
	if retryCount > 30 {
		return maxDelay
	}

	backoff := baseDelay * time.Duration(1<<retryCount)

	if backoff > maxDelay {
		return maxDelay
	}

	return backoff
}

// backoffBudget is the total time n retries can spend waiting.
func backoffBudget(n int) time.Duration {
	var total time.Duration
	for i := 0; i < n; i++ {
		total += Backoff(i)
	}
	return total
}
