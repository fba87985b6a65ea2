package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexroute/internal/domain"
	"lexroute/internal/usecase/eventbus"
)

type stubAgents map[string]domain.AgentProfile

func (s stubAgents) Lookup(id string) (domain.AgentProfile, error) {
	a, ok := s[id]
	if !ok {
		return domain.AgentProfile{}, domain.NewDomainError("Lookup", domain.ErrAgentNotFound, id)
	}
	return a, nil
}

type stubRouter struct {
	decision domain.RoutingDecision
	calls    atomic.Int32
}

func (r *stubRouter) Classify(domain.Query) domain.RoutingDecision {
	r.calls.Add(1)
	return r.decision
}

type stubComposer struct {
	warnings []string
	err      error
}

func (c stubComposer) Compose(agent domain.AgentProfile, q domain.Query) (domain.ModelRequest, error) {
	if c.err != nil {
		return domain.ModelRequest{}, c.err
	}
	return domain.ModelRequest{
		AgentID:  agent.ID,
		Messages: []domain.Message{{Role: domain.RoleUser, Content: q.Text}},
		Warnings: c.warnings,
	}, nil
}

type stubGateway struct {
	mu    sync.Mutex
	seen  []domain.ModelRequest
	reply func(ctx context.Context) (*domain.ModelResponse, error)
}

func (g *stubGateway) Send(ctx context.Context, req domain.ModelRequest) (*domain.ModelResponse, error) {
	g.mu.Lock()
	g.seen = append(g.seen, req)
	g.mu.Unlock()
	if g.reply != nil {
		return g.reply(ctx)
	}
	return &domain.ModelResponse{CorrelationID: req.CorrelationID, Text: "answer", Attempts: 1}, nil
}

func (g *stubGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

type stubNormalizer struct {
	status domain.Completeness
	err    error
}

func (n stubNormalizer) Normalize(raw *domain.ModelResponse, agent domain.AgentProfile) (*domain.LegalAnalysisResult, error) {
	if n.err != nil {
		return nil, n.err
	}
	status := n.status
	if status == "" {
		status = domain.StatusComplete
	}
	return &domain.LegalAnalysisResult{
		ID:       raw.CorrelationID,
		AgentID:  agent.ID,
		Status:   status,
		Summary:  raw.Text,
		Warnings: []string{"normalizer warning"},
	}, nil
}

var testAgents = stubAgents{
	"criminal_law":  {ID: "criminal_law", Name: "Criminal Law"},
	"general_legal": {ID: "general_legal", Name: "General Legal"},
}

type fixture struct {
	router  *stubRouter
	gateway *stubGateway
	deps    Deps
}

func newFixture() *fixture {
	f := &fixture{
		router:  &stubRouter{decision: domain.RoutingDecision{AgentID: "criminal_law", Score: 4, Confidence: 0.8}},
		gateway: &stubGateway{},
	}
	f.deps = Deps{
		Agents:     testAgents,
		Router:     f.router,
		Composer:   stubComposer{},
		Gateway:    f.gateway,
		Normalizer: stubNormalizer{},
		Logger:     slog.Default(),
	}
	return f
}

func theftQuery() domain.DispatchRequest {
	return domain.DispatchRequest{Query: domain.Query{Text: "My phone was stolen and police refuse to file an FIR"}}
}

func requireDispatchError(t *testing.T, err error, stage domain.Stage) *domain.DispatchError {
	t.Helper()
	var derr *domain.DispatchError
	require.True(t, errors.As(err, &derr), "want *DispatchError, got %T: %v", err, err)
	assert.Equal(t, stage, derr.Stage)
	return derr
}

func TestHandleCompletes(t *testing.T) {
	f := newFixture()
	f.deps.Composer = stubComposer{warnings: []string{"details truncated"}}

	var transitions []domain.Transition
	o := New(f.deps, Config{}, WithObserver(func(_ context.Context, tr domain.Transition) {
		transitions = append(transitions, tr)
	}))

	ctx := domain.ContextWithCorrelationID(context.Background(), "corr-1")
	res, err := o.Handle(ctx, theftQuery())
	require.NoError(t, err)

	assert.Equal(t, "corr-1", res.ID)
	assert.Equal(t, "criminal_law", res.Routing.AgentID)
	assert.False(t, res.Routing.Overridden)
	assert.Equal(t, theftQuery().Query, res.Query)
	assert.Equal(t, []string{"details truncated", "normalizer warning"}, res.Warnings)

	require.Equal(t, 1, f.gateway.calls())
	assert.Equal(t, "corr-1", f.gateway.seen[0].CorrelationID)

	var states []domain.State
	for _, tr := range transitions {
		assert.Equal(t, "corr-1", tr.CorrelationID)
		states = append(states, tr.To)
	}
	assert.Equal(t, []domain.State{
		domain.StateReceived,
		domain.StateClassified,
		domain.StateComposed,
		domain.StateDispatched,
		domain.StateNormalized,
		domain.StateCompleted,
	}, states)
	assert.Equal(t, "criminal_law", transitions[len(transitions)-1].AgentID)
}

func TestHandleGeneratesCorrelationID(t *testing.T) {
	f := newFixture()
	o := New(f.deps, Config{})

	res, err := o.Handle(context.Background(), theftQuery())
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, res.ID, f.gateway.seen[0].CorrelationID)
}

func TestHandleRejectsBlankQuery(t *testing.T) {
	f := newFixture()
	o := New(f.deps, Config{})

	_, err := o.Handle(context.Background(), domain.DispatchRequest{Query: domain.Query{Text: "   "}})
	derr := requireDispatchError(t, err, domain.StageClassify)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, derr.AgentID)
	assert.Zero(t, f.gateway.calls())
	assert.Zero(t, f.router.calls.Load())
	assert.Empty(t, o.Stats())
}

func TestHandleOverride(t *testing.T) {
	f := newFixture()
	o := New(f.deps, Config{})

	req := theftQuery()
	req.AgentID = "general_legal"
	res, err := o.Handle(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, res.Routing.Overridden)
	assert.Equal(t, "general_legal", res.Routing.AgentID)
	assert.Equal(t, 1.0, res.Routing.Confidence)
	assert.Zero(t, f.router.calls.Load())
	assert.Equal(t, "general_legal", f.gateway.seen[0].AgentID)
}

func TestHandleUnknownOverride(t *testing.T) {
	f := newFixture()
	o := New(f.deps, Config{})

	req := theftQuery()
	req.AgentID = "maritime_law"
	_, err := o.Handle(context.Background(), req)
	requireDispatchError(t, err, domain.StageClassify)
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)
	assert.Zero(t, f.gateway.calls())
}

func TestHandleStageFailures(t *testing.T) {
	upstream := fmt.Errorf("%w: 503", domain.ErrUpstreamTransient)

	tests := []struct {
		name  string
		setup func(*fixture)
		stage domain.Stage
		want  error
	}{
		{
			name: "compose",
			setup: func(f *fixture) {
				f.deps.Composer = stubComposer{err: domain.NewDomainError("Compose", domain.ErrConfiguration, "bad template")}
			},
			stage: domain.StageCompose,
			want:  domain.ErrConfiguration,
		},
		{
			name: "dispatch",
			setup: func(f *fixture) {
				f.gateway.reply = func(context.Context) (*domain.ModelResponse, error) { return nil, upstream }
			},
			stage: domain.StageDispatch,
			want:  domain.ErrUpstreamTransient,
		},
		{
			name: "normalize",
			setup: func(f *fixture) {
				f.deps.Normalizer = stubNormalizer{err: domain.NewSubSystemError("normalizer", "Normalize", domain.ErrNormalization, "empty")}
			},
			stage: domain.StageNormalize,
			want:  domain.ErrNormalization,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f)

			var last domain.Transition
			o := New(f.deps, Config{}, WithObserver(func(_ context.Context, tr domain.Transition) { last = tr }))

			_, err := o.Handle(context.Background(), theftQuery())
			derr := requireDispatchError(t, err, tt.stage)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, "criminal_law", derr.AgentID)

			assert.Equal(t, domain.StateFailed, last.To)
			assert.Equal(t, tt.stage, last.Stage)
			assert.NotEmpty(t, last.Error)

			stats := o.Stats()
			require.Len(t, stats, 1)
			assert.Equal(t, int64(1), stats[0].Failed)
			assert.Zero(t, stats[0].SuccessRate)
		})
	}
}

func TestHandleRequestTimeout(t *testing.T) {
	f := newFixture()
	f.gateway.reply = func(ctx context.Context) (*domain.ModelResponse, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %w", domain.ErrTimeout, ctx.Err())
	}
	o := New(f.deps, Config{RequestTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := o.Handle(context.Background(), theftQuery())
	requireDispatchError(t, err, domain.StageDispatch)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestHandleCanceledBeforeStart(t *testing.T) {
	f := newFixture()
	o := New(f.deps, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Handle(ctx, theftQuery())
	requireDispatchError(t, err, domain.StageClassify)
	assert.ErrorIs(t, err, domain.ErrCanceled)
	assert.Zero(t, f.gateway.calls())
}

func TestHandlePublishesToBus(t *testing.T) {
	f := newFixture()
	bus := eventbus.New(slog.Default())
	o := New(f.deps, Config{}, WithObserver(bus.Publish))

	var got []domain.State
	unsub := bus.Subscribe("corr-bus", func(_ context.Context, tr domain.Transition) {
		got = append(got, tr.To)
	})
	defer unsub()

	ctx := domain.ContextWithCorrelationID(context.Background(), "corr-bus")
	_, err := o.Handle(ctx, theftQuery())
	require.NoError(t, err)

	require.Len(t, got, 6)
	assert.Equal(t, domain.StateReceived, got[0])
	assert.Equal(t, domain.StateCompleted, got[5])

	// Another request's transitions do not reach this subscriber.
	_, err = o.Handle(context.Background(), theftQuery())
	require.NoError(t, err)
	assert.Len(t, got, 6)
}

func TestStats(t *testing.T) {
	f := newFixture()
	o := New(f.deps, Config{})
	clock := time.Unix(0, 0)
	o.now = func() time.Time {
		clock = clock.Add(50 * time.Millisecond)
		return clock
	}

	for range 2 {
		_, err := o.Handle(context.Background(), theftQuery())
		require.NoError(t, err)
	}

	f.deps.Normalizer = stubNormalizer{status: domain.StatusPartial}
	o.deps = f.deps
	_, err := o.Handle(context.Background(), theftQuery())
	require.NoError(t, err)

	f.gateway.reply = func(context.Context) (*domain.ModelResponse, error) {
		return nil, domain.ErrRateLimit
	}
	_, err = o.Handle(context.Background(), theftQuery())
	require.Error(t, err)

	req := theftQuery()
	req.AgentID = "general_legal"
	f.gateway.reply = nil
	_, err = o.Handle(context.Background(), req)
	require.NoError(t, err)

	stats := o.Stats()
	require.Len(t, stats, 2)

	crim := stats[0]
	assert.Equal(t, "criminal_law", crim.AgentID)
	assert.Equal(t, int64(4), crim.Total)
	assert.Equal(t, int64(2), crim.Succeeded)
	assert.Equal(t, int64(1), crim.Partial)
	assert.Equal(t, int64(1), crim.Failed)
	assert.InDelta(t, 0.75, crim.SuccessRate, 1e-9)
	assert.Equal(t, 50*time.Millisecond, crim.AvgLatency)

	assert.Equal(t, "general_legal", stats[1].AgentID)
	assert.Equal(t, int64(1), stats[1].Total)
	assert.InDelta(t, 1.0, stats[1].SuccessRate, 1e-9)
}

func TestHandleConcurrent(t *testing.T) {
	f := newFixture()
	o := New(f.deps, Config{})

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Handle(context.Background(), theftQuery())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stats := o.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, int64(20), stats[0].Total)
	assert.Equal(t, 20, f.gateway.calls())
}
