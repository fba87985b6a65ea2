package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"lexroute/internal/adapter/mcpserver"
	"lexroute/internal/domain"
	"lexroute/internal/infra/tracer"
)

// runMCP serves the MCP tools on stdin/stdout. Logs must not go to stdout,
// which carries the protocol.
func runMCP(args []string) error {
	var c common
	fs := newFlagSet("mcp", &c)
	if ok, err := parse(fs, args); !ok {
		return err
	}

	cfg, log, logCloser, err := setup(c)
	if err != nil {
		return err
	}
	defer logCloser()
	if cfg.Logger.Output == "stdout" {
		return domain.NewDomainError("cli.mcp", domain.ErrConfiguration, "logger.output must not be stdout while serving MCP")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	return mcpserver.New(a.api, version, log).Serve(ctx, os.Stdin, os.Stdout)
}
