// Package stream serves the WebSocket endpoint that runs analyses and pushes
// each dispatch state transition to the caller as it happens.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"lexroute/internal/adapter/channel"
	"lexroute/internal/domain"
	"lexroute/internal/usecase/eventbus"
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
	readLimit    = 1 << 20
)

var defaultOrigins = []string{
	"localhost",
	"localhost:*",
	"127.0.0.1",
	"127.0.0.1:*",
	"[::1]",
	"[::1]:*",
}

// Subscriber delivers the transitions of one request.
type Subscriber interface {
	Subscribe(correlationID string, handler eventbus.Handler) func()
}

// Config configures the endpoint.
type Config struct {
	// OriginPatterns allowed to connect from browsers. Empty allows local
	// origins only.
	OriginPatterns []string
}

// clientConn tracks a single WebSocket connection.
type clientConn struct {
	id        uint64
	ws        *websocket.Conn
	sendCh    chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

func (cc *clientConn) close() { cc.closeOnce.Do(func() { close(cc.done) }) }

// Handler is the http.Handler for the /ws endpoint.
type Handler struct {
	api     *channel.API
	bus     Subscriber
	origins []string
	logger  *slog.Logger
	nextID  atomic.Uint64
	clients atomic.Int64
}

// NewHandler creates the endpoint handler.
func NewHandler(api *channel.API, bus Subscriber, cfg Config, logger *slog.Logger) *Handler {
	origins := cfg.OriginPatterns
	if len(origins) == 0 {
		origins = defaultOrigins
	}
	return &Handler{api: api, bus: bus, origins: origins, logger: logger}
}

// Clients returns the number of open connections.
func (h *Handler) Clients() int { return int(h.clients.Load()) }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}
	ws.SetReadLimit(readLimit)

	cc := &clientConn{
		id:     h.nextID.Add(1),
		ws:     ws,
		sendCh: make(chan Frame, sendBuffer),
		done:   make(chan struct{}),
	}
	h.clients.Add(1)
	h.logger.Info("stream client connected", "conn_id", cc.id)

	ctx, cancel := context.WithCancel(r.Context())
	var inflight sync.WaitGroup
	go h.writeLoop(cc)
	h.readLoop(ctx, cc, &inflight)

	// Abandon running dispatches once the client is gone.
	cancel()
	cc.close()
	inflight.Wait()
	h.clients.Add(-1)
	ws.Close(websocket.StatusNormalClosure, "")
	h.logger.Info("stream client disconnected", "conn_id", cc.id)
}

func (h *Handler) readLoop(ctx context.Context, cc *clientConn, wg *sync.WaitGroup) {
	for {
		var frame Frame
		if err := wsjson.Read(ctx, cc.ws, &frame); err != nil {
			return
		}
		if frame.Type != FrameTypeRequest {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.dispatch(ctx, cc, frame)
		}()
	}
}

func (h *Handler) writeLoop(cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		case frame := <-cc.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := wsjson.Write(ctx, cc.ws, frame)
			cancel()
			if err != nil {
				cc.close()
				return
			}
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, cc *clientConn, req Frame) {
	id := domain.NewCorrelationID()
	ctx = domain.ContextWithCorrelationID(ctx, id)

	var (
		result any
		err    error
	)
	switch req.Method {
	case MethodAnalyze:
		result, err = h.analyze(ctx, cc, req)
	case MethodRoute:
		var rreq channel.RouteRequest
		if rreq, err = channel.DecodeRoute(req.Payload); err == nil {
			result = h.api.Route(rreq)
		}
	case MethodAgents:
		result = h.api.ListAgents()
	case MethodStats:
		result = h.api.Stats()
	default:
		err = domain.NewDomainError("stream.dispatch", domain.ErrInvalidInput, fmt.Sprintf("unknown method %q", req.Method))
	}

	resp := Frame{Type: FrameTypeResponse, ID: req.ID, Method: req.Method}
	if err != nil {
		body := channel.ErrorBodyOf(err, id)
		resp.Error = &body
	} else if resp.Payload, err = json.Marshal(result); err != nil {
		body := channel.ErrorBodyOf(err, id)
		resp.Error = &body
	}
	h.send(cc, resp, true)
}

// analyze runs a dispatch and forwards its transitions as event frames.
// The bus delivers synchronously, so every event is queued before the response.
func (h *Handler) analyze(ctx context.Context, cc *clientConn, req Frame) (any, error) {
	areq, err := channel.DecodeAnalyze(req.Payload)
	if err != nil {
		return nil, err
	}

	id := domain.CorrelationIDFromContext(ctx)
	unsubscribe := h.bus.Subscribe(id, func(_ context.Context, t domain.Transition) {
		payload, err := json.Marshal(t)
		if err != nil {
			return
		}
		h.send(cc, Frame{Type: FrameTypeEvent, ID: req.ID, Method: MethodAnalyze, Payload: payload}, false)
	})
	defer unsubscribe()

	return h.api.Analyze(ctx, areq)
}

// send queues a frame. Events are dropped for a slow client; responses wait
// until the connection closes.
func (h *Handler) send(cc *clientConn, f Frame, wait bool) {
	if !wait {
		select {
		case cc.sendCh <- f:
		case <-cc.done:
		default:
			h.logger.Warn("stream: dropped event for slow client", "conn_id", cc.id, "frame_id", f.ID)
		}
		return
	}
	select {
	case cc.sendCh <- f:
	case <-cc.done:
	}
}
