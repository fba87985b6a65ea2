package integration

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"lexroute/internal/adapter/llm"
	"lexroute/internal/adapter/tokenizer"
	"lexroute/internal/domain"
	"lexroute/internal/infra/config"
	"lexroute/internal/usecase/classifier"
	"lexroute/internal/usecase/composer"
	"lexroute/internal/usecase/dispatch"
	"lexroute/internal/usecase/gateway"
	"lexroute/internal/usecase/normalizer"
	"lexroute/internal/usecase/registry"
)

// Config holds integration test configuration from environment
type Config struct {
	NvidiaKey    string
	OpenAIKey    string
	AnthropicKey string
	GeminiKey    string
	TestTimeout  time.Duration
	SkipSlow     bool
}

// LoadConfig loads integration test configuration from environment
func LoadConfig() *Config {
	return &Config{
		NvidiaKey:    os.Getenv("NVIDIA_API_KEY"),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
		GeminiKey:    os.Getenv("GEMINI_API_KEY"),
		TestTimeout:  3 * time.Minute,
		SkipSlow:     os.Getenv("SKIP_SLOW_TESTS") == "1",
	}
}

// SkipIfNoAPIKey skips the test if the required API key is not set
func SkipIfNoAPIKey(t *testing.T, key, name string) {
	t.Helper()
	if key == "" {
		t.Skipf("Skipping %s integration test: %s_API_KEY not set", name, name)
	}
}

// SkipIfShort skips integration tests in short mode
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestContext creates a context with timeout for integration tests
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	ctx = domain.ContextWithCorrelationID(ctx, domain.NewCorrelationID())
	return ctx
}

// Recorder collects dispatch transitions.
type Recorder struct {
	mu          sync.Mutex
	transitions []domain.Transition
}

// Observe is a dispatch.Observer.
func (r *Recorder) Observe(_ context.Context, t domain.Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
}

// States returns the target state of every recorded transition, in order.
func (r *Recorder) States() []domain.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.State, 0, len(r.transitions))
	for _, t := range r.transitions {
		out = append(out, t.To)
	}
	return out
}

// NewPipeline wires the real dispatch pipeline against one upstream provider,
// with the builtin agents and default limits.
func NewPipeline(t *testing.T, provider config.ProviderConfig) (*dispatch.Orchestrator, *Recorder) {
	t.Helper()

	cfg := config.Defaults()
	cfg.LLM.DefaultProvider = provider.Name
	cfg.LLM.Providers = []config.ProviderConfig{provider}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("config: %v", err)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	agents, err := registry.New(registry.Builtin(), registry.FallbackID)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	providers, err := llm.FromConfig(cfg.LLM, log)
	if err != nil {
		t.Fatalf("providers: %v", err)
	}
	counter, err := tokenizer.New(cfg.Composer.Tokenizer, cfg.Composer.Encoding)
	if err != nil {
		t.Fatalf("tokenizer: %v", err)
	}

	gw := gateway.New(providers, gateway.Config{
		CallTimeout:   cfg.Gateway.CallTimeout,
		MaxConcurrent: cfg.Gateway.MaxConcurrent,
		QueueTimeout:  cfg.Gateway.QueueTimeout,
		RetryAfter:    cfg.Gateway.RetryAfter,
		Retry: gateway.RetryPolicy{
			MaxRetries:     cfg.Gateway.MaxRetries,
			InitialBackoff: cfg.Gateway.InitialBackoff,
			MaxBackoff:     cfg.Gateway.MaxBackoff,
			Multiplier:     cfg.Gateway.Multiplier,
			Jitter:         cfg.Gateway.Jitter,
		},
	}, log)

	rec := &Recorder{}
	o := dispatch.New(dispatch.Deps{
		Agents: agents,
		Router: classifier.New(agents),
		Composer: composer.New(composer.Config{
			MaxPromptTokens: cfg.Composer.MaxPromptTokens,
			Temperature:     domain.Float(cfg.Composer.Temperature),
			MaxTokens:       cfg.Composer.MaxTokens,
			TopP:            cfg.Composer.TopP,
		}, counter),
		Gateway:    gw,
		Normalizer: normalizer.New(normalizer.Config{MinResponseChars: cfg.Normalizer.MinResponseChars}, log),
		Logger:     log,
	}, dispatch.Config{RequestTimeout: cfg.Dispatch.RequestTimeout}, dispatch.WithObserver(rec.Observe))
	return o, rec
}
