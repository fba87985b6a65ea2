package main

import (
	"log/slog"

	"lexroute/internal/adapter/channel"
	"lexroute/internal/adapter/llm"
	"lexroute/internal/adapter/render"
	"lexroute/internal/adapter/tokenizer"
	"lexroute/internal/domain"
	"lexroute/internal/infra/config"
	"lexroute/internal/usecase/classifier"
	"lexroute/internal/usecase/composer"
	"lexroute/internal/usecase/dispatch"
	"lexroute/internal/usecase/eventbus"
	"lexroute/internal/usecase/gateway"
	"lexroute/internal/usecase/normalizer"
	"lexroute/internal/usecase/registry"
)

// app holds the wired components shared by every command.
type app struct {
	cfg          *config.Config
	log          *slog.Logger
	agents       *registry.Registry
	router       *classifier.Classifier
	providers    *llm.Registry
	gateway      *gateway.Gateway
	bus          *eventbus.Bus
	orchestrator *dispatch.Orchestrator
	api          *channel.API
	pdf          *render.PDF
}

// catalog builds only what routing needs, so agent listing and routing work
// without touching providers.
func catalog(cfg *config.Config) (*registry.Registry, *classifier.Classifier, error) {
	profiles, err := registry.Profiles(cfg.Agents.File, cfg.Agents.Profiles)
	if err != nil {
		return nil, nil, err
	}
	agents, err := registry.New(profiles, cfg.Agents.Fallback)
	if err != nil {
		return nil, nil, err
	}
	return agents, classifier.New(agents), nil
}

// newApp wires the full dispatch pipeline from configuration.
func newApp(cfg *config.Config, log *slog.Logger) (*app, error) {
	agents, router, err := catalog(cfg)
	if err != nil {
		return nil, err
	}

	providers, err := llm.FromConfig(cfg.LLM, log)
	if err != nil {
		return nil, err
	}

	counter, err := tokenizer.New(cfg.Composer.Tokenizer, cfg.Composer.Encoding)
	if err != nil {
		return nil, err
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

	bus := eventbus.New(log)
	orchestrator := dispatch.New(dispatch.Deps{
		Agents: agents,
		Router: router,
		Composer: composer.New(composer.Config{
			MaxPromptTokens: cfg.Composer.MaxPromptTokens,
			Temperature:     domain.Float(cfg.Composer.Temperature),
			MaxTokens:       cfg.Composer.MaxTokens,
			TopP:            cfg.Composer.TopP,
		}, counter),
		Gateway:    gw,
		Normalizer: normalizer.New(normalizer.Config{MinResponseChars: cfg.Normalizer.MinResponseChars}, log),
		Logger:     log,
	}, dispatch.Config{RequestTimeout: cfg.Dispatch.RequestTimeout}, dispatch.WithObserver(bus.Publish))

	a := &app{
		cfg:          cfg,
		log:          log,
		agents:       agents,
		router:       router,
		providers:    providers,
		gateway:      gw,
		bus:          bus,
		orchestrator: orchestrator,
		api:          &channel.API{Dispatcher: orchestrator, Router: router, Agents: agents},
	}
	if pc := cfg.Render.PDF; pc.Enabled {
		a.pdf = render.NewPDF(render.PDFConfig{
			RemoteURL: pc.RemoteURL,
			ExecPath:  pc.ExecPath,
			Timeout:   pc.Timeout,
		}, log)
	}
	return a, nil
}

// renderers returns the document renderers by output format. PDF is present
// only when enabled.
func (a *app) renderers() map[domain.OutputFormat]domain.Renderer {
	out := map[domain.OutputFormat]domain.Renderer{
		domain.FormatMarkdown: render.Markdown{},
		domain.FormatHTML:     render.NewHTML(),
	}
	if a.pdf != nil {
		out[domain.FormatPDF] = a.pdf
	}
	return out
}

func (a *app) close() {
	if a.pdf != nil {
		a.pdf.Close()
	}
	a.bus.Close()
}
