package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"lexroute/internal/domain"
	"lexroute/internal/infra/config"
	"lexroute/internal/infra/tracer"
)

// GeminiProvider implements domain.LLMProvider for the Gemini generateContent API.
// The key travels in the x-goog-api-key header so it never appears in URLs.
type GeminiProvider struct {
	name    string
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewGeminiProvider creates a Gemini provider.
func NewGeminiProvider(cfg config.ProviderConfig, logger *slog.Logger) *GeminiProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	return &GeminiProvider{
		name:    cfg.Name,
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  NewHTTPClient(cfg),
		logger:  logger,
	}
}

// Chat implements domain.LLMProvider.
func (p *GeminiProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if req.Model == "" {
		req.Model = p.model
	}

	ctx, span := tracer.StartSpan(ctx, "llm.chat",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", req.Model),
		),
	)
	defer span.End()

	body, err := json.Marshal(toGeminiRequest(req))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("%w: marshal request: %w", domain.ErrMalformedRequest, err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, url.PathEscape(req.Model))
	headers := map[string]string{"x-goog-api-key": p.apiKey}

	respBody, err := doJSONRequest(ctx, p.client, endpoint, body, headers, p.apiKey)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var gemResp geminiResponse
	if err := json.Unmarshal(respBody, &gemResp); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("%w: unmarshal response: %w", domain.ErrUpstreamTransient, err)
	}
	if len(gemResp.Candidates) == 0 {
		err := fmt.Errorf("%w: response has no candidates", domain.ErrUpstreamTransient)
		if gemResp.PromptFeedback != nil && gemResp.PromptFeedback.BlockReason != "" {
			err = fmt.Errorf("%w: prompt blocked: %s", domain.ErrMalformedRequest, gemResp.PromptFeedback.BlockReason)
		}
		tracer.RecordError(span, err)
		return nil, err
	}

	result := fromGeminiResponse(gemResp)
	result.Model = req.Model
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, result)

	return result, nil
}

// Name implements domain.LLMProvider.
func (p *GeminiProvider) Name() string { return p.name }

// --- Gemini API wire types ---

type geminiRequest struct {
	Contents          []geminiContent  `json:"contents"`
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiGenConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiResponse struct {
	Candidates     []geminiCandidate     `json:"candidates"`
	UsageMetadata  *geminiUsage          `json:"usageMetadata,omitempty"`
	PromptFeedback *geminiPromptFeedback `json:"promptFeedback,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiPromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

func toGeminiRequest(req domain.ChatRequest) geminiRequest {
	gemReq := geminiRequest{}

	for _, m := range req.Messages {
		if m.Role == domain.RoleSystem {
			gemReq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
			continue
		}
		role := "user"
		if m.Role == domain.RoleAssistant {
			role = "model"
		}
		gemReq.Contents = append(gemReq.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	gc := &geminiGenConfig{MaxOutputTokens: req.MaxTokens}
	if req.Temperature != nil {
		gc.Temperature = domain.Float(*req.Temperature)
	}
	if req.TopP > 0 {
		tp := req.TopP
		gc.TopP = &tp
	}
	if gc.Temperature != nil || gc.TopP != nil || gc.MaxOutputTokens > 0 {
		gemReq.GenerationConfig = gc
	}
	return gemReq
}

func fromGeminiResponse(resp geminiResponse) *domain.ChatResponse {
	result := &domain.ChatResponse{CreatedAt: time.Now()}

	if resp.UsageMetadata != nil {
		result.Usage = domain.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}

	var text strings.Builder
	if len(resp.Candidates) > 0 {
		c := resp.Candidates[0]
		for _, part := range c.Content.Parts {
			text.WriteString(part.Text)
		}
		result.FinishReason = c.FinishReason
	}
	result.Message = domain.Message{
		Role:      domain.RoleAssistant,
		Content:   text.String(),
		Timestamp: result.CreatedAt,
	}
	return result
}
