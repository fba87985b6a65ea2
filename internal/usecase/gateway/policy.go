package gateway

import (
	"math/rand"
	"time"

	"lexroute/internal/domain"
)

// RetryPolicy controls how failed upstream attempts are retried.
// Only transient and timeout failures are ever retried.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// Jitter adds up to this fraction of the delay at random (0.25 = 0-25%).
	// The result never exceeds MaxBackoff.
	Jitter float64
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
		Multiplier:     2,
		Jitter:         0.25,
	}
}

// Retryable reports whether a failure of the given kind may be retried.
func (p RetryPolicy) Retryable(kind domain.GatewayErrorKind) bool {
	return kind == domain.GatewayTransient || kind == domain.GatewayTimeout
}

// Backoff returns the delay before retry number n (1-based), capped at
// MaxBackoff after jitter is added.
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(p.InitialBackoff)
	for i := 1; i < n; i++ {
		delay *= mult
		if p.MaxBackoff > 0 && delay >= float64(p.MaxBackoff) {
			break
		}
	}
	d := time.Duration(delay)
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	if p.Jitter > 0 && d > 0 {
		d += time.Duration(rand.Int63n(int64(float64(d)*p.Jitter) + 1))
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}
