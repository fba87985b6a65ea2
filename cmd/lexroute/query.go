package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"lexroute/internal/adapter/channel"
	"lexroute/internal/adapter/cli/theme"
	"lexroute/internal/adapter/render"
	"lexroute/internal/domain"
	"lexroute/internal/infra/config"
	"lexroute/internal/infra/tracer"
)

// formatTerminal is the CLI-only output format: Markdown styled for the terminal.
const formatTerminal = "terminal"

func runAnalyze(args []string, stdout io.Writer) error {
	var c common
	fs := newFlagSet("analyze", &c)
	agentID := fs.String("agent", "", "skip routing and use this agent id")
	jurisdiction := fs.String("jurisdiction", "", "state or country whose law applies")
	caseType := fs.String("case-type", "", "case type hint, e.g. rti")
	details := fs.String("context", "", "additional facts of the matter")
	format := fs.String("format", formatTerminal, "terminal, markdown, json, html or pdf")
	out := fs.String("out", "", "write the result to this file instead of stdout")
	width := fs.Int("width", render.DefaultTerminalWidth, "terminal word wrap width")
	if ok, err := parse(fs, args); !ok {
		return err
	}

	kind := strings.ToLower(strings.TrimSpace(*format))
	var f domain.OutputFormat
	if kind != formatTerminal {
		var err error
		if f, err = domain.ParseOutputFormat(kind); err != nil {
			return err
		}
		if f == domain.FormatPDF && *out == "" {
			return domain.NewDomainError("cli.analyze", domain.ErrInvalidInput, "pdf output needs --out")
		}
	}

	text, err := queryText(fs.Args(), os.Stdin)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(channel.AnalyzeRequest{
		Query:        text,
		AgentID:      *agentID,
		Jurisdiction: *jurisdiction,
		CaseType:     *caseType,
		Context:      *details,
	})
	if err != nil {
		return err
	}
	req, err := channel.DecodeAnalyze(raw)
	if err != nil {
		return err
	}

	cfg, log, logCloser, err := setup(c)
	if err != nil {
		return err
	}
	defer logCloser()
	if f == domain.FormatPDF {
		// Asked for explicitly, so render even when the server keeps PDF off.
		cfg.Render.PDF.Enabled = true
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
	renderer := pickRenderer(a, kind, f, min(*width, theme.MaxContentWidth))

	ctx = domain.ContextWithCorrelationID(ctx, domain.NewCorrelationID())
	result, err := a.api.Analyze(ctx, req)
	if err != nil {
		return err
	}
	data, err := renderer.Render(ctx, result)
	if err != nil {
		return err
	}
	return emit(stdout, *out, data)
}

func pickRenderer(a *app, kind string, f domain.OutputFormat, width int) domain.Renderer {
	switch {
	case kind == formatTerminal:
		return render.Terminal{Width: width}
	case f == domain.FormatJSON:
		return jsonRenderer{}
	default:
		return a.renderers()[f]
	}
}

// jsonRenderer prints the raw result, indented.
type jsonRenderer struct{}

func (jsonRenderer) ContentType() string { return "application/json" }

func (jsonRenderer) Render(_ context.Context, r *domain.LegalAnalysisResult) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func runRoute(args []string, stdout io.Writer) error {
	var c common
	fs := newFlagSet("route", &c)
	caseType := fs.String("case-type", "", "case type hint, e.g. rti")
	limit := fs.Int("limit", channel.DefaultRouteLimit, "number of recommendations (1-20)")
	asJSON := fs.Bool("json", false, "print JSON")
	if ok, err := parse(fs, args); !ok {
		return err
	}

	text, err := queryText(fs.Args(), os.Stdin)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(channel.RouteRequest{Query: text, CaseType: *caseType, Limit: *limit})
	if err != nil {
		return err
	}
	req, err := channel.DecodeRoute(raw)
	if err != nil {
		return err
	}

	api, err := catalogAPI(c)
	if err != nil {
		return err
	}
	res := api.Route(req)
	if *asJSON {
		return printJSON(stdout, res)
	}

	d := res.Decision
	head := fmt.Sprintf("%s %s  confidence %s", theme.SymbolArrowR, theme.Bold.Render(d.AgentID), theme.Confidence(d.Confidence))
	if d.Fallback {
		head += theme.TextWarning.Render("  (fallback)")
	}
	rows := make([][]string, 0, len(res.Recommendations))
	for _, r := range res.Recommendations {
		rows = append(rows, []string{
			r.AgentID,
			r.AgentName,
			theme.Confidence(r.Confidence),
			string(r.Level),
			strings.Join(r.TopKeywords, ", "),
		})
	}
	fmt.Fprintln(stdout, theme.Title.Render("Routing"))
	fmt.Fprintln(stdout, head)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, theme.Table([]string{"AGENT", "NAME", "CONFIDENCE", "MATCH", "KEYWORDS"}, rows))
	return nil
}

func runAgents(args []string, stdout io.Writer) error {
	var c common
	fs := newFlagSet("agents", &c)
	asJSON := fs.Bool("json", false, "print JSON")
	if ok, err := parse(fs, args); !ok {
		return err
	}

	api, err := catalogAPI(c)
	if err != nil {
		return err
	}

	if id := fs.Arg(0); id != "" {
		info, err := api.Agent(id)
		if err != nil {
			return err
		}
		if *asJSON {
			return printJSON(stdout, info)
		}
		fmt.Fprintln(stdout, agentCard(info))
		return nil
	}

	infos := api.ListAgents()
	if *asJSON {
		return printJSON(stdout, infos)
	}
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, []string{info.ID, info.Name, info.Specialization, fmt.Sprint(len(info.Keywords))})
	}
	fmt.Fprintln(stdout, theme.Title.Render(fmt.Sprintf("%d specialist agents", len(infos))))
	fmt.Fprintln(stdout, theme.Table([]string{"ID", "NAME", "SPECIALIZATION", "KEYWORDS"}, rows))
	return nil
}

func agentCard(info channel.AgentInfo) string {
	var b strings.Builder
	b.WriteString(theme.Bold.Render(info.Name))
	b.WriteString(theme.TextMuted.Render("  " + info.ID))
	fmt.Fprintf(&b, "\n%s", info.Specialization)
	if info.Description != "" {
		fmt.Fprintf(&b, "\n%s", info.Description)
	}
	if info.Jurisdiction != "" {
		fmt.Fprintf(&b, "\n\nJurisdiction: %s", info.Jurisdiction)
	}
	if len(info.Acts) > 0 {
		fmt.Fprintf(&b, "\nActs: %s", strings.Join(info.Acts, "; "))
	}
	fmt.Fprintf(&b, "\nKeywords: %s", strings.Join(info.Keywords, ", "))
	fmt.Fprintf(&b, "\nSections: %s", strings.Join(info.Sections, ", "))
	return theme.Card.Width(theme.MaxContentWidth).Render(b.String())
}

// catalogAPI serves routing and agent listing from the agent profiles alone.
// Provider settings are not validated, so these commands work without keys.
func catalogAPI(c common) (*channel.API, error) {
	cfg, err := config.Read(c.path())
	if err != nil {
		return nil, err
	}
	agents, router, err := catalog(cfg)
	if err != nil {
		return nil, err
	}
	return &channel.API{Router: router, Agents: agents}, nil
}

// queryText joins the positional arguments, or reads stdin when the only
// argument is "-" or there is none.
func queryText(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(io.LimitReader(stdin, channel.DefaultMaxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read query: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func emit(stdout io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(os.Stderr, "%s wrote %s (%d bytes)\n", theme.SymbolSuccess, path, len(data))
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
