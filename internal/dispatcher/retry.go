package dispatcher

import (
	"math"
	"math/rand"
	"time"
)

// RetryStrategy defines exponential backoff retry logic for outbound
// dispatch attempts.
type RetryStrategy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Jitter      bool
}

// NewRetryStrategy creates a RetryStrategy with defaults
func NewRetryStrategy() *RetryStrategy {
	return &RetryStrategy{
		MaxAttempts: 3,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  8 * time.Second,
		Jitter:      true,
	}
}

// CalculateBackoff returns the delay before the given attempt number.
// Backoff doubles each attempt: 1s, 2s, 4s, 8s...
func (s *RetryStrategy) CalculateBackoff(attemptNumber int) time.Duration {
	if attemptNumber <= 0 {
		return s.BaseBackoff
	}

	exponent := float64(attemptNumber - 1)
	multiplier := math.Pow(2, exponent)
	backoff := time.Duration(multiplier) * s.BaseBackoff

	if backoff > s.MaxBackoff {
		backoff = s.MaxBackoff
	}

	if s.Jitter {
		// +/- 10% of the computed backoff
		jitterRange := backoff / 10
		jitter := time.Duration(rand.Int63n(int64(2*jitterRange+1))) - jitterRange
		backoff += jitter
	}

	return backoff
}
