package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexroute/internal/domain"
	"lexroute/internal/infra/config"
)

func legalChat() domain.ChatRequest {
	return domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "You are a criminal law specialist."},
			{Role: domain.RoleUser, Content: "Police refused to register my FIR."},
		},
		MaxTokens:   6000,
		Temperature: domain.Float(0.1),
		TopP:        0.9,
	}
}

func TestOpenAIChat(t *testing.T) {
	var got openaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer nvapi-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Write([]byte(`{"id":"c1","model":"nemotron","created":1700000000,
			"choices":[{"message":{"role":"assistant","content":"{\"summary\":\"ok\"}"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":12,"completion_tokens":4,"total_tokens":16}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(config.ProviderConfig{Name: "nvidia", BaseURL: srv.URL + "/", APIKey: "nvapi-test"}, newTestLogger())
	resp, err := p.Chat(context.Background(), legalChat())
	require.NoError(t, err)

	assert.Equal(t, DefaultOpenAIModel, got.Model)
	assert.Len(t, got.Messages, 2)
	assert.Equal(t, 6000, got.MaxTokens)
	require.NotNil(t, got.TopP)
	assert.InDelta(t, 0.9, *got.TopP, 1e-9)
	assert.False(t, got.Stream)

	assert.Equal(t, `{"summary":"ok"}`, resp.Message.Content)
	assert.Equal(t, "nemotron", resp.Model)
	assert.Equal(t, 16, resp.Usage.TotalTokens)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, "nvidia", p.Name())
}

func TestOpenAINoChoicesIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"c1","choices":[]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(config.ProviderConfig{Name: "nvidia", BaseURL: srv.URL}, newTestLogger())
	_, err := p.Chat(context.Background(), legalChat())
	assert.ErrorIs(t, err, domain.ErrUpstreamTransient)
}

func TestOpenAIErrorRedactsKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"key nvapi-leaky is invalid"}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(config.ProviderConfig{Name: "nvidia", BaseURL: srv.URL, APIKey: "nvapi-leaky"}, newTestLogger())
	_, err := p.Chat(context.Background(), legalChat())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)
	assert.NotContains(t, err.Error(), "nvapi-leaky")
}

func TestOpenAIRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(config.ProviderConfig{Name: "nvidia", BaseURL: srv.URL}, newTestLogger())
	_, err := p.Chat(context.Background(), legalChat())
	assert.ErrorIs(t, err, domain.ErrRateLimit)
}

func TestAnthropicChat(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("x-api-key"))
		assert.Equal(t, defaultAnthropicVersion, r.Header.Get("anthropic-version"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Write([]byte(`{"id":"m1","model":"claude","content":[{"type":"text","text":"part one "},{"type":"text","text":"part two"}],
			"stop_reason":"end_turn","usage":{"input_tokens":20,"output_tokens":7}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider(config.ProviderConfig{Name: "anthropic", BaseURL: srv.URL, APIKey: "ak-test", Model: "claude"}, newTestLogger())
	resp, err := p.Chat(context.Background(), legalChat())
	require.NoError(t, err)

	assert.Equal(t, "You are a criminal law specialist.", got.System)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, domain.RoleUser, got.Messages[0].Role)
	require.NotNil(t, got.Temperature)
	assert.Nil(t, got.TopP)

	assert.Equal(t, "part one part two", resp.Message.Content)
	assert.Equal(t, 27, resp.Usage.TotalTokens)
}

func TestAnthropicDefaultMaxTokens(t *testing.T) {
	req := toAnthropicRequest(domain.ChatRequest{Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}}})
	assert.Equal(t, defaultAnthropicMaxTokens, req.MaxTokens)
	assert.Empty(t, req.System)
}

func TestZeroTemperatureIsSent(t *testing.T) {
	req := domain.ChatRequest{
		Messages:    []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
		Temperature: domain.Float(0),
		TopP:        0.9,
	}

	oai := toOpenAIRequest(req)
	require.NotNil(t, oai.Temperature)
	assert.Zero(t, *oai.Temperature)

	ant := toAnthropicRequest(req)
	require.NotNil(t, ant.Temperature)
	assert.Zero(t, *ant.Temperature)
	assert.Nil(t, ant.TopP)

	gem := toGeminiRequest(req)
	require.NotNil(t, gem.GenerationConfig)
	require.NotNil(t, gem.GenerationConfig.Temperature)
	assert.Zero(t, *gem.GenerationConfig.Temperature)

	body, err := json.Marshal(oai)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"temperature":0`)
}

func TestUnsetTemperatureIsOmitted(t *testing.T) {
	req := domain.ChatRequest{Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}}, TopP: 0.5}

	assert.Nil(t, toOpenAIRequest(req).Temperature)
	ant := toAnthropicRequest(req)
	assert.Nil(t, ant.Temperature)
	require.NotNil(t, ant.TopP)
	assert.InDelta(t, 0.5, *ant.TopP, 1e-9)
}

func TestGeminiChatSendsKeyInHeader(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-pro:generateContent", r.URL.Path)
		assert.Empty(t, r.URL.RawQuery)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"analysis"}]},"finishReason":"STOP"}],
			"usageMetadata":{"promptTokenCount":9,"candidatesTokenCount":3,"totalTokenCount":12}}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider(config.ProviderConfig{Name: "gemini", BaseURL: srv.URL, APIKey: "g-key", Model: "gemini-pro"}, newTestLogger())
	resp, err := p.Chat(context.Background(), legalChat())
	require.NoError(t, err)

	require.NotNil(t, got.SystemInstruction)
	require.Len(t, got.Contents, 1)
	assert.Equal(t, "user", got.Contents[0].Role)
	require.NotNil(t, got.GenerationConfig)
	assert.Equal(t, 6000, got.GenerationConfig.MaxOutputTokens)
	require.NotNil(t, got.GenerationConfig.TopP)

	assert.Equal(t, "analysis", resp.Message.Content)
	assert.Equal(t, "gemini-pro", resp.Model)
	assert.Equal(t, 12, resp.Usage.TotalTokens)
}

func TestGeminiBlockedPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider(config.ProviderConfig{Name: "gemini", BaseURL: srv.URL, Model: "m"}, newTestLogger())
	_, err := p.Chat(context.Background(), legalChat())
	assert.ErrorIs(t, err, domain.ErrMalformedRequest)
}

func TestGeminiMapsAssistantRole(t *testing.T) {
	req := toGeminiRequest(domain.ChatRequest{Messages: []domain.Message{
		{Role: domain.RoleUser, Content: "q"},
		{Role: domain.RoleAssistant, Content: "a"},
	}})
	require.Len(t, req.Contents, 2)
	assert.Equal(t, "model", req.Contents[1].Role)
	assert.Nil(t, req.GenerationConfig)
}

func TestChatHonorsContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewOpenAIProvider(config.ProviderConfig{Name: "nvidia", BaseURL: srv.URL}, newTestLogger())
	_, err := p.Chat(ctx, legalChat())
	assert.ErrorIs(t, err, context.Canceled)
}
