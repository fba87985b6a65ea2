package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"lexroute/internal/domain"
)

// ValidationError accumulates config validation errors. It unwraps to
// domain.ErrConfiguration.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

func (v *ValidationError) Unwrap() error { return domain.ErrConfiguration }

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLLM(cfg, ve)
	validateGateway(cfg, ve)
	validateComposer(cfg, ve)
	validateNormalizer(cfg, ve)
	validateDispatch(cfg, ve)
	validateAgents(cfg, ve)
	validateHTTP(cfg, ve)
	validateRender(cfg, ve)
	validateScheduler(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validProviderTypes = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"gemini":    true,
	"bedrock":   true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}
	if len(cfg.LLM.Providers) == 0 {
		ve.Add("llm.providers must list at least one provider")
		return
	}

	seen := make(map[string]bool)
	foundDefault := false
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: openai, anthropic, gemini, bedrock)", i, p.Type)
		}
		if p.APIKey == "" && p.Type != "bedrock" {
			ve.Add("llm.providers[%d] (%s): api_key is empty (set via %sLLM_PROVIDER_%s_API_KEY)",
				i, p.Name, EnvPrefix, providerEnvName(p.Name))
		}
		if p.Type == "bedrock" && p.Region == "" {
			ve.Add("llm.providers[%d] (%s): region is required for bedrock provider", i, p.Name)
		}
		if p.ConnTimeout < 0 || p.RespTimeout < 0 {
			ve.Add("llm.providers[%d] (%s): timeouts must not be negative", i, p.Name)
		}
		if p.Name == cfg.LLM.DefaultProvider {
			foundDefault = true
		}
	}

	if !foundDefault && cfg.LLM.DefaultProvider != "" {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}

	if cb := cfg.LLM.CircuitBreaker; cb.Enabled {
		if cb.MaxFailures == 0 {
			ve.Add("llm.circuit_breaker.max_failures must be > 0 when enabled")
		}
		if cb.Timeout <= 0 {
			ve.Add("llm.circuit_breaker.timeout must be > 0 when enabled")
		}
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	g := cfg.Gateway
	if g.CallTimeout <= 0 {
		ve.Add("gateway.call_timeout must be > 0")
	}
	if g.MaxConcurrent <= 0 {
		ve.Add("gateway.max_concurrent must be > 0")
	}
	if g.QueueTimeout < 0 {
		ve.Add("gateway.queue_timeout must not be negative")
	}
	if g.MaxRetries < 0 {
		ve.Add("gateway.max_retries must not be negative")
	}
	if g.InitialBackoff < 0 || g.MaxBackoff < 0 {
		ve.Add("gateway backoff durations must not be negative")
	}
	if g.Multiplier != 0 && g.Multiplier < 1 {
		ve.Add("gateway.multiplier must be >= 1")
	}
	if g.Jitter < 0 || g.Jitter > 1 {
		ve.Add("gateway.jitter must be between 0 and 1")
	}
}

var validTokenizers = map[string]bool{"": true, "estimate": true, "tiktoken": true}

func validateComposer(cfg *Config, ve *ValidationError) {
	c := cfg.Composer
	if c.MaxPromptTokens < 0 {
		ve.Add("composer.max_prompt_tokens must not be negative")
	}
	if !validTokenizers[c.Tokenizer] {
		ve.Add("composer.tokenizer %q is invalid (want: estimate, tiktoken)", c.Tokenizer)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		ve.Add("composer.temperature must be between 0 and 2")
	}
	if c.MaxTokens < 0 {
		ve.Add("composer.max_tokens must not be negative")
	}
	if c.TopP < 0 || c.TopP > 1 {
		ve.Add("composer.top_p must be between 0 and 1")
	}
}

func validateNormalizer(cfg *Config, ve *ValidationError) {
	if cfg.Normalizer.MinResponseChars < 0 {
		ve.Add("normalizer.min_response_chars must not be negative")
	}
}

func validateDispatch(cfg *Config, ve *ValidationError) {
	if cfg.Dispatch.RequestTimeout < 0 {
		ve.Add("dispatch.request_timeout must not be negative")
	}
	if rt := cfg.Dispatch.RequestTimeout; rt > 0 && rt < cfg.Gateway.CallTimeout {
		ve.Add("dispatch.request_timeout (%s) is shorter than gateway.call_timeout (%s)", rt, cfg.Gateway.CallTimeout)
	}
}

// validateAgents only checks what can be known without building the registry;
// unknown fallback ids are caught when the registry is created.
func validateAgents(cfg *Config, ve *ValidationError) {
	if cfg.Agents.Fallback == "" {
		ve.Add("agents.fallback must not be empty")
	}
	seen := make(map[string]bool)
	for i, p := range cfg.Agents.Profiles {
		if p.ID == "" {
			ve.Add("agents.profiles[%d].id must not be empty", i)
			continue
		}
		if seen[p.ID] {
			ve.Add("agents.profiles[%d]: duplicate agent id %q", i, p.ID)
		}
		seen[p.ID] = true
	}
}

func validateHTTP(cfg *Config, ve *ValidationError) {
	h := cfg.HTTP
	if h.Addr != "" {
		if _, _, err := net.SplitHostPort(h.Addr); err != nil {
			ve.Add("http.addr %q is not a valid host:port", h.Addr)
		}
	}
	if h.MaxBodyBytes < 0 {
		ve.Add("http.max_body_bytes must not be negative")
	}
	if h.RateLimit.Enabled {
		if h.RateLimit.RequestsPerMin <= 0 {
			ve.Add("http.rate_limit.requests_per_min must be > 0 when enabled")
		}
		if h.RateLimit.Burst <= 0 {
			ve.Add("http.rate_limit.burst must be > 0 when enabled")
		}
	}
	for i, p := range h.RateLimit.TrustedProxies {
		if net.ParseIP(p) == nil {
			ve.Add("http.rate_limit.trusted_proxies[%d] %q is not an IP address", i, p)
		}
	}
}

func validateRender(cfg *Config, ve *ValidationError) {
	if cfg.Render.PDF.Enabled && cfg.Render.PDF.Timeout <= 0 {
		ve.Add("render.pdf.timeout must be > 0 when pdf rendering is enabled")
	}
}

var validTaskActions = map[string]bool{"stats_report": true, "breaker_report": true}

func validateScheduler(cfg *Config, ve *ValidationError) {
	if !cfg.Scheduler.Enabled {
		return
	}
	names := make(map[string]bool)
	for i, t := range cfg.Scheduler.Tasks {
		if t.Name == "" {
			ve.Add("scheduler.tasks[%d].name is required", i)
		} else if names[t.Name] {
			ve.Add("scheduler.tasks[%d]: duplicate task name %q", i, t.Name)
		}
		names[t.Name] = true

		if t.Schedule == "" {
			ve.Add("scheduler.tasks[%d].schedule is required", i)
		} else if !validSchedule(t.Schedule) {
			ve.Add("scheduler.tasks[%d].schedule %q is neither a duration nor a cron expression", i, t.Schedule)
		}
		if !validTaskActions[t.Action] {
			ve.Add("scheduler.tasks[%d].action %q is invalid (want: stats_report, breaker_report)", i, t.Action)
		}
	}
}

func validSchedule(s string) bool {
	if d, err := time.ParseDuration(s); err == nil {
		return d > 0
	}
	_, err := cron.ParseStandard(s)
	return err == nil
}
