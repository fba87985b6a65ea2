package channel

import (
	"errors"
	"math"
	"net/http"

	"lexroute/internal/domain"
)

// statusClientClosed is the de facto status for a caller that went away.
const statusClientClosed = 499

// ErrorBody is the error payload of every API surface.
type ErrorBody struct {
	Error             string           `json:"error"`
	Code              domain.ErrorCode `json:"code"`
	Stage             domain.Stage     `json:"stage,omitempty"`
	CorrelationID     string           `json:"correlation_id,omitempty"`
	RetryAfterSeconds int              `json:"retry_after_seconds,omitempty"`
}

var statusByCode = map[domain.ErrorCode]int{
	domain.CodeInvalidInput:      http.StatusBadRequest,
	domain.CodePromptBudget:      http.StatusBadRequest,
	domain.CodeAgentNotFound:     http.StatusNotFound,
	domain.CodeNotFound:          http.StatusNotFound,
	domain.CodeBackpressure:      http.StatusServiceUnavailable,
	domain.CodeTimeout:           http.StatusGatewayTimeout,
	domain.CodeUpstreamTimeout:   http.StatusGatewayTimeout,
	domain.CodeRenderTimeout:     http.StatusGatewayTimeout,
	domain.CodeCanceled:          statusClientClosed,
	domain.CodeRateLimit:         http.StatusBadGateway,
	domain.CodeUpstreamTransient: http.StatusBadGateway,
	domain.CodeAuthInvalid:       http.StatusBadGateway,
	domain.CodeMalformedRequest:  http.StatusBadGateway,
	domain.CodeContextOverflow:   http.StatusBadGateway,
	domain.CodeNormalization:     http.StatusBadGateway,
	domain.CodeProviderError:     http.StatusBadGateway,
	domain.CodeRender:            http.StatusInternalServerError,
}

// Server-side failures get a fixed message so provider detail never leaks.
var publicMessage = map[domain.ErrorCode]string{
	domain.CodeBackpressure:      "the service is at capacity, retry later",
	domain.CodeTimeout:           "the request timed out",
	domain.CodeUpstreamTimeout:   "the language model did not answer in time",
	domain.CodeRenderTimeout:     "rendering timed out",
	domain.CodeRateLimit:         "the language model provider is rate limiting requests",
	domain.CodeUpstreamTransient: "the language model provider is unavailable",
	domain.CodeAuthInvalid:       "the language model provider rejected the service credentials",
	domain.CodeMalformedRequest:  "the language model provider rejected the request",
	domain.CodeContextOverflow:   "the query is too long for the selected model",
	domain.CodeNormalization:     "the language model answer could not be used",
	domain.CodeProviderError:     "the language model provider failed",
	domain.CodeRender:            "the document could not be rendered",
}

// StatusOf maps an error to an HTTP status.
func StatusOf(err error) int {
	if status, ok := statusByCode[domain.ErrorCodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorBodyOf builds the error payload for err.
func ErrorBodyOf(err error, correlationID string) ErrorBody {
	code := domain.ErrorCodeOf(err)
	body := ErrorBody{Code: code, CorrelationID: correlationID}

	var derr *domain.DispatchError
	if errors.As(err, &derr) {
		body.Stage = derr.Stage
		if derr.CorrelationID != "" {
			body.CorrelationID = derr.CorrelationID
		}
	}

	var gerr *domain.GatewayError
	if errors.As(err, &gerr) && gerr.RetryAfter > 0 {
		body.RetryAfterSeconds = int(math.Ceil(gerr.RetryAfter.Seconds()))
	}

	switch msg, ok := publicMessage[code]; {
	case ok:
		body.Error = msg
	case StatusOf(err) < http.StatusInternalServerError:
		body.Error = clientMessage(err)
	default:
		body.Error = "internal error"
	}
	return body
}

// clientMessage is the detail of a caller error without the dispatch prefix.
func clientMessage(err error) string {
	var derr *domain.DispatchError
	if errors.As(err, &derr) {
		err = derr.Err
	}
	var de *domain.DomainError
	if errors.As(err, &de) && de.Detail != "" {
		return de.Err.Error() + ": " + de.Detail
	}
	return err.Error()
}
