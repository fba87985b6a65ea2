package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"lexroute/internal/domain"
)

func TestRetryPolicyRetryable(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.True(t, p.Retryable(domain.GatewayTransient))
	assert.True(t, p.Retryable(domain.GatewayTimeout))
	assert.False(t, p.Retryable(domain.GatewayAuth))
	assert.False(t, p.Retryable(domain.GatewayMalformed))
	assert.False(t, p.Retryable(domain.GatewayBackpressure))
	assert.False(t, p.Retryable(domain.GatewayCanceled))
}

func TestRetryPolicyBackoffGrowsAndCaps(t *testing.T) {
	p := RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(3))
	assert.Equal(t, time.Second, p.Backoff(10))
	assert.Equal(t, 100*time.Millisecond, p.Backoff(0))
}

func TestRetryPolicyJitterBounded(t *testing.T) {
	p := RetryPolicy{InitialBackoff: 100 * time.Millisecond, Multiplier: 2, Jitter: 0.25}
	for i := 0; i < 100; i++ {
		d := p.Backoff(1)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}

func TestRetryPolicyJitterRespectsMaxBackoff(t *testing.T) {
	p := RetryPolicy{InitialBackoff: time.Second, MaxBackoff: time.Second, Multiplier: 2, Jitter: 0.25}
	for i := 0; i < 200; i++ {
		assert.LessOrEqual(t, p.Backoff(5), time.Second)
	}

	p = RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 110 * time.Millisecond, Multiplier: 2, Jitter: 0.25}
	for i := 0; i < 200; i++ {
		d := p.Backoff(1)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 110*time.Millisecond)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   domain.GatewayErrorKind
		status int
	}{
		{"rate limit sentinel", fmt.Errorf("%w: API error 429: x", domain.ErrRateLimit), domain.GatewayTransient, 429},
		{"transient sentinel", fmt.Errorf("%w: API error 502: x", domain.ErrUpstreamTransient), domain.GatewayTransient, 502},
		{"auth sentinel", fmt.Errorf("%w: API error 403: x", domain.ErrAuthInvalid), domain.GatewayAuth, 403},
		{"malformed sentinel", fmt.Errorf("%w: API error 400: x", domain.ErrMalformedRequest), domain.GatewayMalformed, 400},
		{"overflow sentinel", domain.ErrContextOverflow, domain.GatewayMalformed, 0},
		{"timeout sentinel", domain.ErrTimeout, domain.GatewayTimeout, 0},
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), domain.GatewayTimeout, 0},
		{"canceled", context.Canceled, domain.GatewayCanceled, 0},
		{"bare 500", errors.New("API error 500: boom"), domain.GatewayTransient, 500},
		{"bare 401", errors.New("API error 401: nope"), domain.GatewayAuth, 401},
		{"bare 408", errors.New("API error 408: slow"), domain.GatewayTimeout, 408},
		{"bare 404", errors.New("API error 404: no model"), domain.GatewayMalformed, 404},
		{"context length text", errors.New("maximum context length is 8192"), domain.GatewayMalformed, 0},
		{"io timeout text", errors.New("dial tcp: i/o timeout"), domain.GatewayTimeout, 0},
		{"connection refused", errors.New("dial tcp 127.0.0.1:1: connection refused"), domain.GatewayTransient, 0},
		{"unknown", errors.New("unexpected EOF"), domain.GatewayTransient, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.err)
			assert.Equal(t, tt.kind, c.Kind)
			assert.Equal(t, tt.status, c.StatusCode)
		})
	}
}

func TestClassifyNil(t *testing.T) {
	assert.Equal(t, Classification{}, Classify(nil))
}
