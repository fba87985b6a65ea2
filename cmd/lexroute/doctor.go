package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"lexroute/internal/adapter/cli/theme"
	"lexroute/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// chromeBinaries are tried in order when PDF rendering launches a local browser.
var chromeBinaries = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"}

// runDoctor executes all health checks and reports results.
func runDoctor(args []string, stdout io.Writer) error {
	var c common
	fs := newFlagSet("doctor", &c)
	offline := fs.Bool("offline", false, "skip checks that need the network")
	if ok, err := parse(fs, args); !ok {
		return err
	}

	cfgPath := c.path()
	// Read without validation so the remaining checks still run on a bad config.
	cfg, readErr := config.Read(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, readErr)},
		{Name: "Config validation", Fn: checkValidation},
		{Name: "LLM API key", Fn: checkLLMAPIKey},
		{Name: "Agent catalog", Fn: checkAgentCatalog},
		{Name: "Listen address", Fn: checkListenAddr},
		{Name: "PDF renderer", Fn: checkPDF},
	}
	if !*offline {
		checks = append(checks, Check{Name: "LLM connectivity", Fn: checkLLMConnectivity})
	}

	fmt.Fprintln(stdout, theme.Title.Render("lexroute doctor"))

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(stdout, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(stdout, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)
	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return theme.TextSuccess.Render(theme.SymbolSuccess)
	case StatusWarn:
		return theme.TextWarning.Render(theme.SymbolWarning)
	case StatusFail:
		return theme.TextError.Render(theme.SymbolError)
	default:
		return "?"
	}
}

func notLoaded() CheckResult {
	return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
}

// checkConfigFile reports whether the config file exists and parses.
// A missing file is only a warning: defaults apply.
func checkConfigFile(cfgPath string, readErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if readErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config file error: %v", readErr),
				Fix:     "Check the YAML syntax and the file permissions (no group or world write)",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
				Fix:     "Copy lexroute.example.yaml to lexroute.yaml",
			}
		}
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("config loaded from %s", cfgPath)}
	}
}

func checkValidation(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	if err := config.Validate(cfg); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     "Fix the listed settings; the server refuses to start until they pass",
		}
	}
	return CheckResult{Status: StatusPass, Message: "configuration is valid"}
}

// checkLLMAPIKey verifies the providers have credentials.
func checkLLMAPIKey(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	if len(cfg.LLM.Providers) == 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: "no LLM providers configured",
			Fix:     "Add at least one provider under llm.providers",
		}
	}

	var withKey, withoutKey []string
	for _, p := range cfg.LLM.Providers {
		switch {
		case p.APIKey != "", p.Type == "bedrock":
			withKey = append(withKey, p.Name)
		default:
			withoutKey = append(withoutKey, p.Name)
		}
	}

	if len(withKey) == 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("no API keys found for providers: %s", strings.Join(withoutKey, ", ")),
			Fix:     fmt.Sprintf("Set %sLLM_PROVIDER_<NAME>_API_KEY", config.EnvPrefix),
		}
	}
	if len(withoutKey) > 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("keys configured for [%s]; missing for [%s]", strings.Join(withKey, ", "), strings.Join(withoutKey, ", ")),
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("credentials configured for: %s", strings.Join(withKey, ", "))}
}

func checkAgentCatalog(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	agents, _, err := catalog(cfg)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     "Check agents.file and agents.fallback",
		}
	}
	source := "builtin profiles"
	if cfg.Agents.File != "" {
		source = cfg.Agents.File
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%d agents from %s, fallback %s", agents.Len(), source, agents.Fallback().ID),
	}
}

// checkListenAddr verifies the HTTP address is free to bind.
func checkListenAddr(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("cannot bind %s: %v", cfg.HTTP.Addr, err),
			Fix:     "Stop the process using the port or change http.addr",
		}
	}
	ln.Close()
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s is free", cfg.HTTP.Addr)}
}

// checkPDF looks for a local Chrome when PDF output is enabled without a
// remote browser.
func checkPDF(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	pc := cfg.Render.PDF
	switch {
	case !pc.Enabled:
		return CheckResult{Status: StatusPass, Message: "PDF output disabled"}
	case pc.RemoteURL != "":
		return CheckResult{Status: StatusPass, Message: "using remote browser"}
	case pc.ExecPath != "":
		if _, err := os.Stat(pc.ExecPath); err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("render.pdf.exec_path %s: %v", pc.ExecPath, err),
			}
		}
		return CheckResult{Status: StatusPass, Message: pc.ExecPath}
	}
	for _, bin := range chromeBinaries {
		if path, err := exec.LookPath(bin); err == nil {
			return CheckResult{Status: StatusPass, Message: path}
		}
	}
	return CheckResult{
		Status:  StatusWarn,
		Message: "no Chrome or Chromium found, PDF requests will fail",
		Fix:     "Install Chromium, set render.pdf.remote_url, or disable render.pdf",
	}
}

// checkLLMConnectivity tests if the default provider endpoint is reachable.
func checkLLMConnectivity(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}

	var provider *config.ProviderConfig
	for i := range cfg.LLM.Providers {
		if cfg.LLM.Providers[i].Name == cfg.LLM.DefaultProvider {
			provider = &cfg.LLM.Providers[i]
			break
		}
	}
	if provider == nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("default provider %q not found in config", cfg.LLM.DefaultProvider),
		}
	}

	endpoint := providerEndpoint(provider)
	if endpoint == "" {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("no known endpoint for provider type %q, skipping", provider.Type),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	resp, err := http.DefaultClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", endpoint, err),
			Fix:     "Check your network connection and the provider base_url",
		}
	}
	resp.Body.Close()

	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s reachable (latency: %dms)", provider.Name, latency.Milliseconds()),
	}
}

// providerEndpoint returns a URL that answers without credentials.
func providerEndpoint(p *config.ProviderConfig) string {
	if p.BaseURL != "" {
		return strings.TrimRight(p.BaseURL, "/")
	}
	switch p.Type {
	case "openai", "":
		return "https://api.openai.com/v1/models"
	case "anthropic":
		return "https://api.anthropic.com/"
	case "gemini":
		return "https://generativelanguage.googleapis.com/"
	default:
		return ""
	}
}
