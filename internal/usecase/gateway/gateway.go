// Package gateway sends composed prompts to upstream model providers with
// per-call timeouts, bounded retries and admission control.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"lexroute/internal/domain"
	"lexroute/internal/infra/tracer"
)

// Default gateway settings.
const (
	DefaultCallTimeout   = 60 * time.Second
	DefaultMaxConcurrent = 8
	DefaultRetryAfter    = 5 * time.Second
)

// Config configures a Gateway.
type Config struct {
	// CallTimeout bounds each individual attempt.
	CallTimeout time.Duration
	// MaxConcurrent caps in-flight upstream calls across all requests.
	MaxConcurrent int
	// QueueTimeout is how long a request may wait for a free slot.
	// Zero rejects immediately when all slots are busy.
	QueueTimeout time.Duration
	// RetryAfter is the hint returned with backpressure rejections.
	RetryAfter time.Duration
	Retry      RetryPolicy
}

// Gateway is safe for concurrent use.
type Gateway struct {
	providers domain.ProviderResolver
	cfg       Config
	sem       *semaphore.Weighted
	inFlight  atomic.Int64
	logger    *slog.Logger

	// sleep waits for d or until ctx is done; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) bool
}

// New creates a Gateway. Zero config fields take defaults.
func New(providers domain.ProviderResolver, cfg Config, logger *slog.Logger) *Gateway {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = DefaultRetryAfter
	}
	if cfg.Retry.MaxRetries < 0 {
		cfg.Retry.MaxRetries = 0
	}
	return &Gateway{
		providers: providers,
		cfg:       cfg,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger:    logger,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// InFlight returns the number of requests currently holding a slot.
func (g *Gateway) InFlight() int { return int(g.inFlight.Load()) }

// Capacity returns the configured concurrency limit.
func (g *Gateway) Capacity() int { return g.cfg.MaxConcurrent }

// Send delivers req to its provider. Failures are returned as
// *domain.GatewayError carrying the kind, the number of attempts made and
// the correlation id.
func (g *Gateway) Send(ctx context.Context, req domain.ModelRequest) (*domain.ModelResponse, error) {
	id := req.CorrelationID
	if id == "" {
		ctx, id = domain.EnsureCorrelationID(ctx)
	} else if domain.CorrelationIDFromContext(ctx) != id {
		ctx = domain.ContextWithCorrelationID(ctx, id)
	}
	req.CorrelationID = id

	ctx, span := tracer.StartSpan(ctx, "gateway.send")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("agent.id", req.AgentID),
		tracer.IntAttr("prompt.tokens", req.PromptTokens),
	)

	log := g.logger.With("correlation_id", id, "agent_id", req.AgentID)

	provider, err := g.providers.Resolve(req.Provider)
	if err != nil {
		gerr := &domain.GatewayError{Kind: domain.GatewayMalformed, CorrelationID: id, Err: err}
		tracer.RecordError(span, gerr)
		return nil, gerr
	}
	span.SetAttributes(tracer.StringAttr("llm.provider", provider.Name()))

	release, gerr := g.admit(ctx, id)
	if gerr != nil {
		log.Warn("upstream call rejected", "kind", gerr.Kind, "in_flight", g.InFlight())
		tracer.RecordError(span, gerr)
		return nil, gerr
	}
	defer release()

	start := time.Now()
	chatReq := req.ChatRequest()

	var (
		lastErr  error
		lastKind domain.GatewayErrorKind
		attempt  int
	)
	for attempt = 1; ; attempt++ {
		resp, err := g.attempt(ctx, provider, chatReq, attempt)
		if err == nil {
			tracer.SetOK(span)
			span.SetAttributes(tracer.IntAttr("gateway.attempts", attempt))
			latency := time.Since(start)
			log.Debug("upstream call completed",
				"provider", provider.Name(),
				"attempts", attempt,
				"latency", latency,
				"tokens", resp.Usage.TotalTokens,
			)
			return &domain.ModelResponse{
				CorrelationID: id,
				Text:          resp.Message.Content,
				Provider:      provider.Name(),
				Model:         resp.Model,
				Usage:         resp.Usage,
				Latency:       latency,
				Attempts:      attempt,
			}, nil
		}

		lastErr = err
		lastKind = g.kindOf(ctx, err)

		if ctx.Err() != nil || !g.cfg.Retry.Retryable(lastKind) || attempt > g.cfg.Retry.MaxRetries {
			break
		}

		delay := g.cfg.Retry.Backoff(attempt)
		log.Info("retrying upstream call after error",
			"provider", provider.Name(),
			"attempt", attempt,
			"kind", lastKind,
			"delay", delay,
			"error", err,
		)
		if !g.sleep(ctx, delay) {
			break
		}
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		lastKind = domain.GatewayCanceled
	}
	gerr = &domain.GatewayError{Kind: lastKind, Attempts: attempt, CorrelationID: id, Err: lastErr}
	log.Warn("upstream call failed",
		"provider", provider.Name(),
		"attempts", attempt,
		"kind", lastKind,
		"error", lastErr,
	)
	tracer.RecordError(span, gerr)
	return nil, gerr
}

// attempt runs one provider call under the per-call timeout.
func (g *Gateway) attempt(ctx context.Context, provider domain.LLMProvider, req domain.ChatRequest, n int) (*domain.ChatResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	callCtx, span := tracer.StartSpan(callCtx, "gateway.attempt")
	defer span.End()
	span.SetAttributes(tracer.IntAttr("gateway.attempt", n))

	resp, err := provider.Chat(callCtx, req)
	if err != nil {
		// A provider may return a generic error after its context expired.
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: attempt exceeded %s: %w", domain.ErrTimeout, g.cfg.CallTimeout, err)
		}
		tracer.RecordError(span, err)
		return nil, err
	}
	if resp == nil {
		err := fmt.Errorf("%w: provider %q returned no response", domain.ErrUpstreamTransient, provider.Name())
		tracer.RecordError(span, err)
		return nil, err
	}
	tracer.SetOK(span)
	return resp, nil
}

func (g *Gateway) kindOf(ctx context.Context, err error) domain.GatewayErrorKind {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return domain.GatewayCanceled
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return domain.GatewayTimeout
	}
	return Classify(err).Kind
}

// admit takes a concurrency slot, waiting at most QueueTimeout.
func (g *Gateway) admit(ctx context.Context, id string) (func(), *domain.GatewayError) {
	release := func() {
		g.inFlight.Add(-1)
		g.sem.Release(1)
	}

	if g.sem.TryAcquire(1) {
		g.inFlight.Add(1)
		return release, nil
	}

	backpressure := &domain.GatewayError{
		Kind:          domain.GatewayBackpressure,
		CorrelationID: id,
		RetryAfter:    g.cfg.RetryAfter,
		Err:           fmt.Errorf("all %d upstream slots busy", g.cfg.MaxConcurrent),
	}
	if g.cfg.QueueTimeout <= 0 {
		return nil, backpressure
	}

	waitCtx, cancel := context.WithTimeout(ctx, g.cfg.QueueTimeout)
	defer cancel()
	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		switch {
		case errors.Is(ctx.Err(), context.Canceled):
			return nil, &domain.GatewayError{Kind: domain.GatewayCanceled, CorrelationID: id, Err: ctx.Err()}
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, &domain.GatewayError{Kind: domain.GatewayTimeout, CorrelationID: id, Err: ctx.Err()}
		}
		return nil, backpressure
	}
	g.inFlight.Add(1)
	return release, nil
}
