package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"lexroute/internal/adapter/llm"
	"lexroute/internal/domain"
	"lexroute/internal/infra/config"
	"lexroute/internal/infra/middleware"
)

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes = 1 << 20

// CapacityReporter reports gateway load for /health.
type CapacityReporter interface {
	InFlight() int
	Capacity() int
}

// BreakerReporter reports provider circuit breakers for /health.
type BreakerReporter interface {
	Breakers() []llm.BreakerStatus
}

// HTTPDeps holds what the HTTP server serves.
type HTTPDeps struct {
	API       *API
	Renderers map[domain.OutputFormat]domain.Renderer
	// Stream is mounted at /ws when set.
	Stream   http.Handler
	Gateway  CapacityReporter
	Breakers BreakerReporter
	Logger   *slog.Logger
}

// HTTPServer serves the REST API.
type HTTPServer struct {
	cfg    config.HTTPConfig
	deps   HTTPDeps
	logger *slog.Logger

	server    *http.Server
	boundAddr string
	cancel    context.CancelFunc
	started   time.Time
}

// NewHTTPServer creates an HTTP server. Nothing listens until Start.
func NewHTTPServer(cfg config.HTTPConfig, deps HTTPDeps) *HTTPServer {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &HTTPServer{cfg: cfg, deps: deps, logger: deps.Logger, started: time.Now()}
}

// Handler builds the routed handler with middleware. The rate limiter's
// cleanup goroutine stops when ctx is done.
func (h *HTTPServer) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/analyze", h.handleAnalyze)
	mux.HandleFunc("POST /api/v1/route", h.handleRoute)
	mux.HandleFunc("GET /api/v1/agents", h.handleAgents)
	mux.HandleFunc("GET /api/v1/agents/{id}", h.handleAgent)
	mux.HandleFunc("GET /api/v1/stats", h.handleStats)
	mux.HandleFunc("GET /api/v1/health", h.handleHealth)
	if h.deps.Stream != nil {
		mux.Handle("GET /ws", h.deps.Stream)
	}

	mws := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.AccessLog(h.logger),
		middleware.SecurityHeaders,
	}
	if rl := h.cfg.RateLimit; rl.Enabled {
		mws = append(mws, middleware.RateLimit(ctx, middleware.RateLimitConfig{
			RequestsPerMin: rl.RequestsPerMin,
			BurstSize:      rl.Burst,
			TrustedProxies: rl.TrustedProxies,
		}))
	}
	return middleware.Chain(mux, mws...)
}

// Start listens and serves in the background.
func (h *HTTPServer) Start(ctx context.Context) error {
	ctx, h.cancel = context.WithCancel(ctx)

	h.server = &http.Server{
		Addr:              h.cfg.Addr,
		Handler:           h.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	ln, err := net.Listen("tcp", h.cfg.Addr)
	if err != nil {
		h.cancel()
		return fmt.Errorf("listen %s: %w", h.cfg.Addr, err)
	}
	h.boundAddr = ln.Addr().String()

	go func() {
		h.logger.Info("http api started", "addr", h.boundAddr)
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("http server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address after Start.
func (h *HTTPServer) Addr() string { return h.boundAddr }

// Stop gracefully shuts the server down.
func (h *HTTPServer) Stop(ctx context.Context) error {
	if h.cancel != nil {
		h.cancel()
	}
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

func (h *HTTPServer) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.readBody(w, r)
	if !ok {
		return
	}
	req, err := DecodeAnalyze(raw)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dreq, err := req.DispatchRequest()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// Resolve the renderer before spending a model call on an unservable format.
	var renderer domain.Renderer
	if dreq.Query.Format != domain.FormatJSON {
		renderer = h.deps.Renderers[dreq.Query.Format]
		if renderer == nil {
			h.writeError(w, r, domain.NewSubSystemError("render", "HTTPServer.handleAnalyze",
				domain.ErrInvalidInput, fmt.Sprintf("format %q is not enabled", dreq.Query.Format)))
			return
		}
	}

	result, err := h.deps.API.Dispatcher.Handle(r.Context(), dreq)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if renderer == nil {
		writeJSON(w, http.StatusOK, result)
		return
	}

	doc, err := renderer.Render(r.Context(), result)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", renderer.ContentType())
	if dreq.Query.Format == domain.FormatPDF {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="legal-analysis-%s.pdf"`, result.ID))
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (h *HTTPServer) handleRoute(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.readBody(w, r)
	if !ok {
		return
	}
	req, err := DecodeRoute(raw)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.API.Route(req))
}

func (h *HTTPServer) handleAgents(w http.ResponseWriter, _ *http.Request) {
	agents := h.deps.API.ListAgents()
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents, "count": len(agents)})
}

func (h *HTTPServer) handleAgent(w http.ResponseWriter, r *http.Request) {
	info, err := h.deps.API.Agent(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *HTTPServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"agents": h.deps.API.Stats()})
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status": "ok",
		"agents": len(h.deps.API.Agents.All()),
		"uptime": time.Since(h.started).Round(time.Second).String(),
	}
	if g := h.deps.Gateway; g != nil {
		body["in_flight"] = g.InFlight()
		body["capacity"] = g.Capacity()
	}
	if b := h.deps.Breakers; b != nil {
		breakers := b.Breakers()
		for _, s := range breakers {
			if s.State == "open" {
				body["status"] = "degraded"
			}
		}
		body["breakers"] = breakers
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *HTTPServer) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorBody{
				Error:         fmt.Sprintf("request body too large (max %d bytes)", tooLarge.Limit),
				Code:          domain.CodeInvalidInput,
				CorrelationID: domain.CorrelationIDFromContext(r.Context()),
			})
			return nil, false
		}
		h.writeError(w, r, domain.NewDomainError("HTTPServer.readBody", domain.ErrInvalidInput, err.Error()))
		return nil, false
	}
	return raw, true
}

func (h *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	body := ErrorBodyOf(err, domain.CorrelationIDFromContext(r.Context()))
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"correlation_id", body.CorrelationID,
			"code", body.Code,
			"stage", body.Stage,
			"error", err,
		)
	}
	if body.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfterSeconds))
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
