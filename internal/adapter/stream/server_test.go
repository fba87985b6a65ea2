package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"lexroute/internal/adapter/channel"
	"lexroute/internal/domain"
	"lexroute/internal/usecase/classifier"
	"lexroute/internal/usecase/eventbus"
	"lexroute/internal/usecase/registry"
)

// busDispatcher publishes a fixed run of transitions for the request's
// correlation id, like the orchestrator does through its observer.
type busDispatcher struct {
	bus *eventbus.Bus
	err error
}

func (d *busDispatcher) Handle(ctx context.Context, req domain.DispatchRequest) (*domain.LegalAnalysisResult, error) {
	id := domain.CorrelationIDFromContext(ctx)
	dsp := domain.NewDispatch(id)
	d.bus.Publish(ctx, dsp.History()[0])
	dsp.AgentID = "criminal_law"
	for _, s := range []domain.State{domain.StateClassified, domain.StateComposed} {
		tr, err := dsp.Advance(s)
		if err != nil {
			return nil, err
		}
		d.bus.Publish(ctx, tr)
	}
	if d.err != nil {
		tr, derr := dsp.Fail(d.err)
		d.bus.Publish(ctx, tr)
		return nil, derr
	}
	for _, s := range []domain.State{domain.StateDispatched, domain.StateNormalized, domain.StateCompleted} {
		tr, err := dsp.Advance(s)
		if err != nil {
			return nil, err
		}
		d.bus.Publish(ctx, tr)
	}
	return &domain.LegalAnalysisResult{ID: id, AgentID: "criminal_law", Query: req.Query, Status: domain.StatusComplete}, nil
}

func (d *busDispatcher) Stats() []domain.AgentStats {
	return []domain.AgentStats{{AgentID: "criminal_law", Total: 1, Succeeded: 1, SuccessRate: 1}}
}

func newTestConn(t *testing.T, dispatchErr error) (*websocket.Conn, *Handler) {
	t.Helper()
	bus := eventbus.New(slog.Default())
	reg, err := registry.New(registry.Builtin(), registry.FallbackID)
	require.NoError(t, err)
	api := &channel.API{
		Dispatcher: &busDispatcher{bus: bus, err: dispatchErr},
		Router:     classifier.New(reg),
		Agents:     reg,
	}
	h := NewHandler(api, bus, Config{}, slog.Default())
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn, h
}

func call(t *testing.T, conn *websocket.Conn, id uint64, method, payload string) []Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req := Frame{Type: FrameTypeRequest, ID: id, Method: method}
	if payload != "" {
		req.Payload = json.RawMessage(payload)
	}
	require.NoError(t, wsjson.Write(ctx, conn, req))

	var frames []Frame
	for {
		var f Frame
		require.NoError(t, wsjson.Read(ctx, conn, &f))
		frames = append(frames, f)
		if f.Type == FrameTypeResponse {
			return frames
		}
	}
}

func TestAnalyzeStreamsTransitions(t *testing.T) {
	conn, _ := newTestConn(t, nil)

	frames := call(t, conn, 7, MethodAnalyze, `{"query":"Police refused to register my FIR"}`)
	require.Len(t, frames, 7)

	var states []domain.State
	var corrID string
	for _, f := range frames[:6] {
		assert.Equal(t, FrameTypeEvent, f.Type)
		assert.Equal(t, uint64(7), f.ID)
		var tr domain.Transition
		require.NoError(t, json.Unmarshal(f.Payload, &tr))
		states = append(states, tr.To)
		corrID = tr.CorrelationID
	}
	assert.Equal(t, []domain.State{
		domain.StateReceived, domain.StateClassified, domain.StateComposed,
		domain.StateDispatched, domain.StateNormalized, domain.StateCompleted,
	}, states)

	resp := frames[6]
	assert.Equal(t, uint64(7), resp.ID)
	assert.Nil(t, resp.Error)
	var res domain.LegalAnalysisResult
	require.NoError(t, json.Unmarshal(resp.Payload, &res))
	assert.Equal(t, corrID, res.ID)
	assert.Equal(t, "criminal_law", res.AgentID)
}

func TestAnalyzeFailureStreamsFailedEvent(t *testing.T) {
	conn, _ := newTestConn(t, domain.ErrUpstreamTransient)

	frames := call(t, conn, 1, MethodAnalyze, `{"query":"Police refused to register my FIR"}`)
	require.Len(t, frames, 5)

	var last domain.Transition
	require.NoError(t, json.Unmarshal(frames[3].Payload, &last))
	assert.Equal(t, domain.StateFailed, last.To)
	assert.Equal(t, domain.StageDispatch, last.Stage)

	resp := frames[4]
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.CodeUpstreamTransient, resp.Error.Code)
	assert.Equal(t, domain.StageDispatch, resp.Error.Stage)
	assert.Equal(t, last.CorrelationID, resp.Error.CorrelationID)
}

func TestAnalyzeInvalidPayload(t *testing.T) {
	conn, _ := newTestConn(t, nil)

	frames := call(t, conn, 2, MethodAnalyze, `{"query":""}`)
	require.Len(t, frames, 1)
	require.NotNil(t, frames[0].Error)
	assert.Equal(t, domain.CodeInvalidInput, frames[0].Error.Code)
}

func TestRouteAgentsStats(t *testing.T) {
	conn, _ := newTestConn(t, nil)

	frames := call(t, conn, 3, MethodRoute, `{"query":"garbage dumping and air pollution near my house"}`)
	require.Len(t, frames, 1)
	var route channel.RouteResult
	require.NoError(t, json.Unmarshal(frames[0].Payload, &route))
	assert.Equal(t, "environmental_health", route.Decision.AgentID)

	frames = call(t, conn, 4, MethodAgents, "")
	var agents []channel.AgentInfo
	require.NoError(t, json.Unmarshal(frames[0].Payload, &agents))
	assert.Len(t, agents, len(registry.Builtin()))

	frames = call(t, conn, 5, MethodStats, "")
	var stats []domain.AgentStats
	require.NoError(t, json.Unmarshal(frames[0].Payload, &stats))
	require.Len(t, stats, 1)
}

func TestUnknownMethod(t *testing.T) {
	conn, _ := newTestConn(t, nil)

	frames := call(t, conn, 9, "delete_agent", "")
	require.Len(t, frames, 1)
	require.NotNil(t, frames[0].Error)
	assert.Equal(t, domain.CodeInvalidInput, frames[0].Error.Code)
	assert.Contains(t, frames[0].Error.Error, "delete_agent")
}

func TestClientsCount(t *testing.T) {
	conn, h := newTestConn(t, nil)
	call(t, conn, 1, MethodAgents, "")
	assert.Equal(t, 1, h.Clients())

	conn.Close(websocket.StatusNormalClosure, "")
	assert.Eventually(t, func() bool { return h.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
