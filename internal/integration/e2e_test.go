//go:build integration
// +build integration

package integration

import (
	"errors"
	"strings"
	"testing"

	"lexroute/internal/adapter/render"
	"lexroute/internal/domain"
	"lexroute/internal/infra/config"
)

const rtiQuery = "I filed an RTI application with the municipal corporation 45 days ago " +
	"asking for building plan approvals and have received no reply. What can I do?"

func TestE2E_AnalyzeWithNvidia(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	SkipIfNoAPIKey(t, cfg.NvidiaKey, "NVIDIA")

	ctx := NewTestContext(t, cfg.TestTimeout)
	o, rec := NewPipeline(t, config.ProviderConfig{
		Name:    "nvidia",
		Type:    "openai",
		BaseURL: "https://integrate.api.nvidia.com/v1",
		APIKey:  cfg.NvidiaKey,
		Model:   "nvidia/llama-3.1-nemotron-ultra-253b-v1",
	})

	result, err := o.Handle(ctx, domain.DispatchRequest{Query: domain.Query{Text: rtiQuery, Jurisdiction: "Delhi"}})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if result.AgentID != "rti_transparency" {
		t.Errorf("routed to %q, want rti_transparency", result.AgentID)
	}
	if result.Summary == "" && len(result.RemedySteps) == 0 {
		t.Error("result has neither a summary nor remedy steps")
	}
	if len(result.Disclaimers) == 0 {
		t.Error("result carries no disclaimer")
	}

	states := rec.States()
	if len(states) == 0 || states[len(states)-1] != domain.StateCompleted {
		t.Errorf("transitions = %v, want to end in completed", states)
	}
	t.Logf("status=%s provider=%s tokens=%d latency=%s", result.Status, result.Provider, result.Usage.TotalTokens, result.Latency)
}

func TestE2E_AnalyzeWithAnthropic(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	SkipIfNoAPIKey(t, cfg.AnthropicKey, "ANTHROPIC")

	ctx := NewTestContext(t, cfg.TestTimeout)
	o, _ := NewPipeline(t, config.ProviderConfig{
		Name:   "claude",
		Type:   "anthropic",
		APIKey: cfg.AnthropicKey,
		Model:  "claude-3-5-haiku-latest",
	})

	result, err := o.Handle(ctx, domain.DispatchRequest{
		AgentID: "property_violations",
		Query:   domain.Query{Text: "My neighbour is building a fourth floor without sanction"},
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if result.AgentID != "property_violations" {
		t.Errorf("explicit agent ignored: %q", result.AgentID)
	}
}

func TestE2E_AnalyzeWithGemini(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	SkipIfNoAPIKey(t, cfg.GeminiKey, "GEMINI")

	ctx := NewTestContext(t, cfg.TestTimeout)
	o, _ := NewPipeline(t, config.ProviderConfig{
		Name:   "gemini",
		Type:   "gemini",
		APIKey: cfg.GeminiKey,
		Model:  "gemini-2.0-flash",
	})

	result, err := o.Handle(ctx, domain.DispatchRequest{Query: domain.Query{Text: rtiQuery}})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	md, err := render.Markdown{}.Render(ctx, result)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(string(md), "#") {
		t.Errorf("markdown report has no heading:\n%s", md)
	}
}

func TestE2E_InvalidKeyIsAuthError(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	SkipIfNoAPIKey(t, cfg.OpenAIKey, "OPENAI")

	ctx := NewTestContext(t, cfg.TestTimeout)
	o, rec := NewPipeline(t, config.ProviderConfig{
		Name:   "openai",
		Type:   "openai",
		APIKey: "sk-invalid-" + cfg.OpenAIKey[:4],
		Model:  "gpt-4o-mini",
	})

	_, err := o.Handle(ctx, domain.DispatchRequest{Query: domain.Query{Text: rtiQuery}})
	if !errors.Is(err, domain.ErrAuthInvalid) {
		t.Fatalf("expected an auth error, got %v", err)
	}
	var de *domain.DispatchError
	if !errors.As(err, &de) || de.Stage != domain.StageDispatch {
		t.Errorf("expected a dispatch stage error, got %v", err)
	}

	states := rec.States()
	if len(states) == 0 || states[len(states)-1] != domain.StateFailed {
		t.Errorf("transitions = %v, want to end in failed", states)
	}
}
