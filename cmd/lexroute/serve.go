package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"lexroute/internal/adapter/channel"
	"lexroute/internal/adapter/stream"
	"lexroute/internal/infra/tracer"
	"lexroute/internal/usecase/scheduling"
)

const shutdownTimeout = 10 * time.Second

func runServe(args []string) error {
	var c common
	fs := newFlagSet("serve", &c)
	addr := fs.String("addr", "", "listen address (overrides http.addr)")
	if ok, err := parse(fs, args); !ok {
		return err
	}

	// 1. Config & logger
	cfg, log, logCloser, err := setup(c)
	if err != nil {
		return err
	}
	defer logCloser()
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}

	// 2. Tracer
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	// 3. Pipeline
	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	// 4. Scheduler
	if cfg.Scheduler.Enabled {
		sched, err := scheduling.FromConfig(cfg.Scheduler, &scheduling.Reports{
			StatsSource:   a.orchestrator,
			BreakerSource: a.providers,
			Logger:        log,
		}, log)
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	}

	// 5. HTTP API and stage stream
	var ws http.Handler
	if cfg.HTTP.WebSocket.Enabled {
		ws = stream.NewHandler(a.api, a.bus, stream.Config{OriginPatterns: cfg.HTTP.WebSocket.OriginPatterns}, log)
	}
	srv := channel.NewHTTPServer(cfg.HTTP, channel.HTTPDeps{
		API:       a.api,
		Renderers: a.renderers(),
		Stream:    ws,
		Gateway:   a.gateway,
		Breakers:  a.providers,
		Logger:    log,
	})
	if err := srv.Start(ctx); err != nil {
		return err
	}

	log.Info("lexroute started",
		"version", version,
		"addr", srv.Addr(),
		"agents", a.agents.Len(),
		"default_provider", cfg.LLM.DefaultProvider,
		"max_concurrent", a.gateway.Capacity(),
		"pdf", a.pdf != nil,
		"websocket", ws != nil,
		"scheduler", cfg.Scheduler.Enabled,
	)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("http shutdown error", "error", err)
	}
	return nil
}
