package domain

import (
	"errors"
	"fmt"
	"time"
)

// Category sentinels. Use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrDuplicate     = fmt.Errorf("duplicate")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrLimitReached  = fmt.Errorf("limit reached")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
)

// Sentinel errors for the dispatch engine.
var (
	// ErrConfiguration is fatal and only raised while starting up.
	ErrConfiguration = fmt.Errorf("configuration error")
	ErrConfigLoad    = fmt.Errorf("failed to load configuration")
	ErrDecryption    = fmt.Errorf("decryption failed")

	// Registry / routing.
	ErrAgentNotFound    = fmt.Errorf("agent not found")
	ErrProviderNotFound = fmt.Errorf("llm provider not found")

	// Composer.
	ErrPromptBudget = fmt.Errorf("prompt exceeds token budget")

	// Upstream model errors. ErrRateLimit and ErrUpstreamTransient are retried,
	// ErrAuthInvalid and ErrMalformedRequest never are.
	ErrRateLimit         = fmt.Errorf("rate limit exceeded")
	ErrUpstreamTransient = fmt.Errorf("transient upstream failure")
	ErrAuthInvalid       = fmt.Errorf("authentication failed")
	ErrMalformedRequest  = fmt.Errorf("malformed upstream request")
	ErrContextOverflow   = fmt.Errorf("context window exceeded")
	ErrBackpressure      = fmt.Errorf("too many concurrent upstream calls")
	ErrCanceled          = fmt.Errorf("request canceled")

	// Normalizer / rendering.
	ErrNormalization = fmt.Errorf("model response unusable")
	ErrRender        = fmt.Errorf("render failed")

	// State machine misuse.
	ErrInvalidTransition = fmt.Errorf("invalid dispatch state transition")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Registry.Lookup")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "agent", "render"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient upstream error that may
// succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrUpstreamTransient) ||
		errors.Is(err, ErrTimeout)
}

// GatewayErrorKind classifies a failed upstream call.
type GatewayErrorKind string

const (
	GatewayTransient    GatewayErrorKind = "transient"
	GatewayTimeout      GatewayErrorKind = "timeout"
	GatewayAuth         GatewayErrorKind = "auth"
	GatewayMalformed    GatewayErrorKind = "malformed"
	GatewayBackpressure GatewayErrorKind = "backpressure"
	GatewayCanceled     GatewayErrorKind = "canceled"
)

// Sentinel returns the category sentinel matching the kind.
func (k GatewayErrorKind) Sentinel() error {
	switch k {
	case GatewayTransient:
		return ErrUpstreamTransient
	case GatewayTimeout:
		return ErrTimeout
	case GatewayAuth:
		return ErrAuthInvalid
	case GatewayMalformed:
		return ErrMalformedRequest
	case GatewayBackpressure:
		return ErrBackpressure
	case GatewayCanceled:
		return ErrCanceled
	default:
		return ErrProviderError
	}
}

// GatewayError is the typed failure of a Model Gateway call.
// errors.Is matches both the kind sentinel and the underlying cause.
type GatewayError struct {
	Kind          GatewayErrorKind
	Attempts      int
	CorrelationID string
	// RetryAfter is set for backpressure rejections.
	RetryAfter time.Duration
	Err        error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("gateway %s after %d attempt(s)", e.Kind, e.Attempts)
	if e.CorrelationID != "" {
		msg += " [" + e.CorrelationID + "]"
	}
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.Sentinel()}
	}
	return []error{e.Kind.Sentinel(), e.Err}
}

// DispatchError names the pipeline stage that failed and preserves the cause.
type DispatchError struct {
	Stage         Stage
	CorrelationID string
	AgentID       string
	Err           error
}

func (e *DispatchError) Error() string {
	msg := fmt.Sprintf("dispatch failed at %s stage", e.Stage)
	if e.CorrelationID != "" {
		msg += " [" + e.CorrelationID + "]"
	}
	if e.AgentID != "" {
		msg += " agent=" + e.AgentID
	}
	return msg + ": " + e.Err.Error()
}

func (e *DispatchError) Unwrap() error { return e.Err }

// ErrorCode is a machine-parseable error category for monitoring and API responses.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeConfiguration     ErrorCode = "CONFIGURATION"
	CodeConfigLoad        ErrorCode = "CONFIG_LOAD"
	CodeDecryption        ErrorCode = "DECRYPTION"
	CodeAgentNotFound     ErrorCode = "AGENT_NOT_FOUND"
	CodeAgentDuplicate    ErrorCode = "AGENT_DUPLICATE"
	CodeProviderNotFound  ErrorCode = "PROVIDER_NOT_FOUND"
	CodePromptBudget      ErrorCode = "PROMPT_BUDGET"
	CodeRateLimit         ErrorCode = "RATE_LIMIT"
	CodeUpstreamTransient ErrorCode = "UPSTREAM_TRANSIENT"
	CodeAuthInvalid       ErrorCode = "AUTH_INVALID"
	CodeMalformedRequest  ErrorCode = "MALFORMED_REQUEST"
	CodeContextOverflow   ErrorCode = "CONTEXT_OVERFLOW"
	CodeBackpressure      ErrorCode = "BACKPRESSURE"
	CodeCanceled          ErrorCode = "CANCELED"
	CodeNormalization     ErrorCode = "NORMALIZATION"
	CodeRender            ErrorCode = "RENDER"
	CodeRenderTimeout     ErrorCode = "RENDER_TIMEOUT"
	CodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	CodeUpstreamTimeout   ErrorCode = "UPSTREAM_TIMEOUT"

	// Category error codes, used when no subsystem-specific code matches.
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeDuplicate     ErrorCode = "DUPLICATE"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeLimitReached  ErrorCode = "LIMIT_REACHED"
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeProviderError ErrorCode = "PROVIDER_ERROR"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:      CodeNotFound,
	ErrDuplicate:     CodeDuplicate,
	ErrTimeout:       CodeTimeout,
	ErrLimitReached:  CodeLimitReached,
	ErrInvalidInput:  CodeInvalidInput,
	ErrProviderError: CodeProviderError,

	ErrConfiguration:     CodeConfiguration,
	ErrConfigLoad:        CodeConfigLoad,
	ErrDecryption:        CodeDecryption,
	ErrAgentNotFound:     CodeAgentNotFound,
	ErrProviderNotFound:  CodeProviderNotFound,
	ErrPromptBudget:      CodePromptBudget,
	ErrRateLimit:         CodeRateLimit,
	ErrUpstreamTransient: CodeUpstreamTransient,
	ErrAuthInvalid:       CodeAuthInvalid,
	ErrMalformedRequest:  CodeMalformedRequest,
	ErrContextOverflow:   CodeContextOverflow,
	ErrBackpressure:      CodeBackpressure,
	ErrCanceled:          CodeCanceled,
	ErrNormalization:     CodeNormalization,
	ErrRender:            CodeRender,
	ErrInvalidTransition: CodeInvalidTransition,
}

// codePriority fixes the lookup order when an error chain matches several
// sentinels (a GatewayError unwraps to its kind and its cause).
var codePriority = []error{
	ErrBackpressure,
	ErrCanceled,
	ErrAgentNotFound,
	ErrPromptBudget,
	ErrNormalization,
	ErrRender,
	ErrAuthInvalid,
	ErrMalformedRequest,
	ErrRateLimit,
	ErrContextOverflow,
	ErrUpstreamTransient,
	ErrTimeout,
	ErrConfiguration,
	ErrConfigLoad,
	ErrDecryption,
	ErrProviderNotFound,
	ErrInvalidTransition,
	ErrInvalidInput,
	ErrNotFound,
	ErrDuplicate,
	ErrLimitReached,
	ErrProviderError,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"agent":    CodeAgentNotFound,
		"provider": CodeProviderNotFound,
	},
	ErrDuplicate: {
		"agent": CodeAgentDuplicate,
	},
	ErrTimeout: {
		"gateway": CodeUpstreamTimeout,
		"render":  CodeRenderTimeout,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	var ge *GatewayError
	if errors.As(err, &ge) && ge.Kind == GatewayTimeout {
		return CodeUpstreamTimeout
	}

	for _, sentinel := range codePriority {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
