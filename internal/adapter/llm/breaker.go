package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"lexroute/internal/domain"
	"lexroute/internal/infra/config"
)

// Breaker wraps a provider in a gobreaker circuit. An open circuit answers
// with ErrUpstreamTransient without calling the provider, so the gateway
// treats it like any other retryable upstream failure.
type Breaker struct {
	inner domain.LLMProvider
	cb    *gobreaker.CircuitBreaker[*domain.ChatResponse]
}

// NewBreaker wraps inner. Zero fields in cfg take the package defaults.
func NewBreaker(inner domain.LLMProvider, cfg config.CircuitBreakerConfig, logger *slog.Logger) *Breaker {
	cfg = breakerDefaults(cfg)
	trip := cfg.MaxFailures
	return &Breaker{
		inner: inner,
		cb: gobreaker.NewCircuitBreaker[*domain.ChatResponse](gobreaker.Settings{
			Name:        inner.Name(),
			MaxRequests: 1,
			Interval:    cfg.Interval,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= trip },
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("provider breaker changed state", "provider", name, "from", from.String(), "to", to.String())
			},
			IsSuccessful: upstreamHealthy,
		}),
	}
}

func breakerDefaults(cfg config.CircuitBreakerConfig) config.CircuitBreakerConfig {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}
	return cfg
}

// upstreamHealthy reports whether err leaves the provider's health untouched.
// Bad requests and caller cancellation are the caller's problem.
func upstreamHealthy(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, domain.ErrMalformedRequest), errors.Is(err, domain.ErrContextOverflow):
		return true
	default:
		return errors.Is(err, context.Canceled)
	}
}

func (b *Breaker) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := b.cb.Execute(func() (*domain.ChatResponse, error) {
		return b.inner.Chat(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s breaker %s: %w", domain.ErrUpstreamTransient, b.inner.Name(), b.cb.State(), err)
	}
	return resp, err
}

func (b *Breaker) Name() string { return b.inner.Name() }

// Status snapshots the circuit for health and report output.
func (b *Breaker) Status() BreakerStatus {
	c := b.cb.Counts()
	return BreakerStatus{
		Provider:            b.inner.Name(),
		State:               b.cb.State().String(),
		Requests:            c.Requests,
		TotalFailures:       c.TotalFailures,
		ConsecutiveFailures: c.ConsecutiveFailures,
	}
}

var _ domain.LLMProvider = (*Breaker)(nil)
