package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"lexroute/internal/domain"
	"lexroute/internal/infra/tracer"
)

// maxResponseBody is the maximum response body size we read from LLM APIs.
const maxResponseBody = 10 * 1024 * 1024 // 10 MB

// maxErrorBody caps how much of an error body is copied into error messages.
const maxErrorBody = 512

const redacted = "[REDACTED]"

// doJSONRequest performs a JSON POST request and returns the response body.
// Non-200 responses are mapped to domain errors. secret, when non-empty, is
// scrubbed from every returned error.
func doJSONRequest(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string, secret string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, redactError(fmt.Errorf("create request: %w", err), secret)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, redactError(fmt.Errorf("http request: %w", err), secret)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, redactError(fmt.Errorf("%w: read response: %w", domain.ErrUpstreamTransient, err), secret)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, redactError(mapHTTPError(httpResp.StatusCode, respBody), secret)
	}
	return respBody, nil
}

// logChatCompleted logs the standard debug message after a successful LLM chat.
func logChatCompleted(logger *slog.Logger, providerName string, result *domain.ChatResponse) {
	logger.Debug("llm chat completed",
		"provider", providerName,
		"model", result.Model,
		"tokens", result.Usage.TotalTokens,
	)
}

// setUsageAttrs adds token usage attributes to a trace span.
func setUsageAttrs(span trace.Span, usage domain.Usage) {
	span.SetAttributes(
		tracer.IntAttr("llm.prompt_tokens", usage.PromptTokens),
		tracer.IntAttr("llm.completion_tokens", usage.CompletionTokens),
	)
}

// mapHTTPError maps an HTTP status code + response body to a domain error.
// The "API error NNN:" prefix is parsed again by the gateway classifier.
func mapHTTPError(statusCode int, body []byte) error {
	bodyStr := strings.TrimSpace(string(body))
	if len(bodyStr) > maxErrorBody {
		bodyStr = bodyStr[:maxErrorBody] + "..."
	}
	detail := fmt.Sprintf("API error %d: %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimit, detail)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, detail)
	case statusCode == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %s", domain.ErrContextOverflow, detail)
	case statusCode == http.StatusBadRequest, statusCode == http.StatusNotFound, statusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrMalformedRequest, detail)
	case statusCode == http.StatusRequestTimeout:
		return fmt.Errorf("%w: %s", domain.ErrTimeout, detail)
	case statusCode >= 500:
		return fmt.Errorf("%w: %s", domain.ErrUpstreamTransient, detail)
	default:
		return fmt.Errorf("%s", detail)
	}
}

// redactedError hides a credential in the message while keeping the chain.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// redactError removes secret from err's message. errors.Is still matches the
// original chain.
func redactError(err error, secret string) error {
	if err == nil || secret == "" || !strings.Contains(err.Error(), secret) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), secret, redacted), err: err}
}
