// Package dispatch runs a legal query through classification, prompt
// composition, the model gateway and normalization, tracking each request
// with a domain.Dispatch state machine.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"lexroute/internal/domain"
	"lexroute/internal/infra/tracer"
)

// AgentDirectory resolves agent profiles.
type AgentDirectory interface {
	Lookup(id string) (domain.AgentProfile, error)
}

// Router picks an agent for a query.
type Router interface {
	Classify(q domain.Query) domain.RoutingDecision
}

// PromptComposer builds the model request for an agent.
type PromptComposer interface {
	Compose(agent domain.AgentProfile, q domain.Query) (domain.ModelRequest, error)
}

// ModelSender delivers a model request upstream.
type ModelSender interface {
	Send(ctx context.Context, req domain.ModelRequest) (*domain.ModelResponse, error)
}

// ResponseNormalizer turns a raw answer into a result.
type ResponseNormalizer interface {
	Normalize(raw *domain.ModelResponse, agent domain.AgentProfile) (*domain.LegalAnalysisResult, error)
}

// Observer is notified of every state transition, in order.
type Observer func(ctx context.Context, t domain.Transition)

// Deps holds the collaborators of an Orchestrator.
type Deps struct {
	Agents     AgentDirectory
	Router     Router
	Composer   PromptComposer
	Gateway    ModelSender
	Normalizer ResponseNormalizer
	Logger     *slog.Logger
}

// Config bounds a dispatch.
type Config struct {
	// RequestTimeout caps the whole pipeline on top of the caller's context.
	RequestTimeout time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver adds a transition observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// Orchestrator is safe for concurrent use; each request gets its own
// state machine.
type Orchestrator struct {
	deps      Deps
	cfg       Config
	observers []Observer
	stats     *statsCollector
	now       func() time.Time
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:  deps,
		cfg:   cfg,
		stats: newStatsCollector(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Stats returns per-agent routing statistics sorted by agent id.
func (o *Orchestrator) Stats() []domain.AgentStats { return o.stats.snapshot() }

// Handle runs one request to completion. Every failure is a
// *domain.DispatchError naming the stage that failed.
func (o *Orchestrator) Handle(ctx context.Context, req domain.DispatchRequest) (*domain.LegalAnalysisResult, error) {
	ctx, id := domain.EnsureCorrelationID(ctx)
	if o.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RequestTimeout)
		defer cancel()
	}

	ctx, span := tracer.StartSpan(ctx, "dispatch.handle")
	defer span.End()

	start := o.now()
	d := domain.NewDispatch(id)
	o.emit(ctx, d.History()[0])

	fail := func(err error) (*domain.LegalAnalysisResult, error) {
		t, derr := d.Fail(err)
		o.emit(ctx, t)
		if d.AgentID != "" {
			o.stats.record(d.AgentID, "", o.now().Sub(start))
		}
		o.deps.Logger.Warn("dispatch failed",
			"correlation_id", id,
			"agent_id", d.AgentID,
			"stage", derr.Stage,
			"error", err,
		)
		tracer.RecordError(span, derr)
		return nil, derr
	}

	// Classify.
	var (
		agent    domain.AgentProfile
		decision domain.RoutingDecision
	)
	err := o.stage(ctx, domain.StageClassify, func(context.Context) error {
		var err error
		agent, decision, err = o.classify(req)
		return err
	})
	if err != nil {
		return fail(err)
	}
	d.AgentID = agent.ID
	span.SetAttributes(tracer.StringAttr("agent.id", agent.ID))
	if err := o.advance(ctx, d, domain.StateClassified); err != nil {
		return fail(err)
	}

	// Compose.
	var mreq domain.ModelRequest
	err = o.stage(ctx, domain.StageCompose, func(context.Context) error {
		var err error
		mreq, err = o.deps.Composer.Compose(agent, req.Query)
		return err
	})
	if err != nil {
		return fail(err)
	}
	mreq.CorrelationID = id
	if err := o.advance(ctx, d, domain.StateComposed); err != nil {
		return fail(err)
	}

	// Dispatch.
	var resp *domain.ModelResponse
	err = o.stage(ctx, domain.StageDispatch, func(ctx context.Context) error {
		var err error
		resp, err = o.deps.Gateway.Send(ctx, mreq)
		return err
	})
	if err != nil {
		return fail(err)
	}
	if err := o.advance(ctx, d, domain.StateDispatched); err != nil {
		return fail(err)
	}

	// Normalize.
	var result *domain.LegalAnalysisResult
	err = o.stage(ctx, domain.StageNormalize, func(context.Context) error {
		var err error
		result, err = o.deps.Normalizer.Normalize(resp, agent)
		return err
	})
	if err != nil {
		return fail(err)
	}
	if err := o.advance(ctx, d, domain.StateNormalized); err != nil {
		return fail(err)
	}

	result.ID = id
	result.Query = req.Query
	result.Routing = decision
	if len(mreq.Warnings) > 0 {
		result.Warnings = append(append([]string(nil), mreq.Warnings...), result.Warnings...)
	}

	if err := o.advance(ctx, d, domain.StateCompleted); err != nil {
		return fail(err)
	}

	elapsed := o.now().Sub(start)
	o.stats.record(agent.ID, result.Status, elapsed)
	o.deps.Logger.Info("dispatch completed",
		"correlation_id", id,
		"agent_id", agent.ID,
		"status", result.Status,
		"overridden", decision.Overridden,
		"attempts", resp.Attempts,
		"elapsed", elapsed,
	)
	tracer.SetOK(span)
	return result, nil
}

// classify resolves the agent, honoring an explicit override.
func (o *Orchestrator) classify(req domain.DispatchRequest) (domain.AgentProfile, domain.RoutingDecision, error) {
	if strings.TrimSpace(req.Query.Text) == "" {
		return domain.AgentProfile{}, domain.RoutingDecision{},
			domain.NewDomainError("Orchestrator.classify", domain.ErrInvalidInput, "query text is empty")
	}

	if id := strings.TrimSpace(req.AgentID); id != "" {
		agent, err := o.deps.Agents.Lookup(id)
		if err != nil {
			return domain.AgentProfile{}, domain.RoutingDecision{}, err
		}
		return agent, domain.RoutingDecision{AgentID: agent.ID, Confidence: 1, Overridden: true}, nil
	}

	decision := o.deps.Router.Classify(req.Query)
	agent, err := o.deps.Agents.Lookup(decision.AgentID)
	if err != nil {
		return domain.AgentProfile{}, domain.RoutingDecision{}, fmt.Errorf("routed to unknown agent: %w", err)
	}
	return agent, decision, nil
}

// stage runs fn under a child span and stops early when the request
// context is already done.
func (o *Orchestrator) stage(ctx context.Context, stage domain.Stage, fn func(context.Context) error) error {
	ctx, span := tracer.StartSpan(ctx, "dispatch."+string(stage))
	defer span.End()

	if err := contextErr(ctx); err != nil {
		tracer.RecordError(span, err)
		return err
	}
	if err := fn(ctx); err != nil {
		tracer.RecordError(span, err)
		return err
	}
	tracer.SetOK(span)
	return nil
}

func (o *Orchestrator) advance(ctx context.Context, d *domain.Dispatch, to domain.State) error {
	t, err := d.Advance(to)
	if err != nil {
		return err
	}
	o.emit(ctx, t)
	return nil
}

func (o *Orchestrator) emit(ctx context.Context, t domain.Transition) {
	o.deps.Logger.Debug("dispatch transition",
		"correlation_id", t.CorrelationID,
		"from", t.From,
		"to", t.To,
		"agent_id", t.AgentID,
	)
	for _, obs := range o.observers {
		obs(ctx, t)
	}
}

// contextErr maps a finished context to the domain timeout or cancel error.
func contextErr(ctx context.Context) error {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %w", domain.ErrCanceled, err)
	}
}
