package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"lexroute/internal/adapter/cli/uxerror"
	"lexroute/internal/domain"
	"lexroute/internal/infra/config"
	"lexroute/internal/infra/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		showUsage(os.Stdout)
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "--help", "-h", "help":
		showUsage(os.Stdout)
		return
	case "version", "--version":
		fmt.Println("lexroute", version)
		return
	case "serve":
		err = runServe(args)
	case "analyze":
		err = runAnalyze(args, os.Stdout)
	case "route":
		err = runRoute(args, os.Stdout)
	case "agents":
		err = runAgents(args, os.Stdout)
	case "mcp":
		err = runMCP(args)
	case "encrypt":
		err = runEncrypt(args, os.Stdin, os.Stdout)
	case "doctor":
		err = runDoctor(args, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'lexroute --help' for usage information.\n", cmd)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, uxerror.Humanize(err).Render())
		if verbose(args) {
			fmt.Fprintf(os.Stderr, "\n  %s\n", err)
		}
		os.Exit(1)
	}
}

func showUsage(w io.Writer) {
	fmt.Fprint(w, `lexroute - routes legal questions to specialist agents

USAGE:
    lexroute <COMMAND> [FLAGS]

COMMANDS:
    serve       Run the HTTP API, WebSocket stream and scheduler
    analyze     Analyze a question and print the result
    route       Show which agents fit a question
    agents      List the specialist agents
    mcp         Serve the MCP tools over stdio
    encrypt     Encrypt a secret for the config file
    doctor      Check configuration and dependencies
    version     Print the version

COMMON FLAGS (before any positional argument):
    --config PATH   Config file (default: ./lexroute.yaml, or LEXROUTE_CONFIG)
    --verbose       Print the raw error on failure
    -h              Show the flags of a command

CONFIGURATION:
    Environment: LEXROUTE_* variables override the config file.
    Encrypted values (enc:...) are decrypted with LEXROUTE_CONFIG_KEY.

EXAMPLES:
    lexroute serve
    lexroute analyze --jurisdiction Delhi "Police refused to register my FIR"
    lexroute analyze --format pdf --out report.pdf "RTI reply not received in 30 days"
    lexroute route --limit 5 "My landlord will not return the deposit"
    LEXROUTE_CONFIG_KEY=... lexroute encrypt sk-secret
`)
}

// common holds the flags every command accepts.
type common struct {
	configPath string
	verbose    bool
}

// newFlagSet returns a flag set for a command with the common flags
// registered. Flags must precede positional arguments.
func newFlagSet(name string, c *common) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&c.configPath, "config", "", "config file path")
	fs.BoolVar(&c.verbose, "verbose", false, "print the raw error on failure")
	return fs
}

// path resolves --config, then LEXROUTE_CONFIG, then the default.
func (c common) path() string {
	if c.configPath != "" {
		return c.configPath
	}
	if p := os.Getenv(config.EnvPrefix + "CONFIG"); p != "" {
		return p
	}
	return config.DefaultPath
}

// parse parses args and reports whether the command should continue.
// -h prints the flag set usage and stops without error.
func parse(fs *flag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return false, nil
		}
		return false, domain.NewDomainError("cli."+fs.Name(), domain.ErrInvalidInput, err.Error())
	}
	return true, nil
}

func verbose(args []string) bool {
	for _, a := range args {
		if a == "--verbose" || a == "-verbose" {
			return true
		}
	}
	return false
}

// setup loads config and builds the logger. The returned closer flushes the
// log output.
func setup(c common) (*config.Config, *slog.Logger, func() error, error) {
	cfg, err := config.Load(c.path())
	if err != nil {
		return nil, nil, nil, err
	}
	log, closer, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log, closer, nil
}
