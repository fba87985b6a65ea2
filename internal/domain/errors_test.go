package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Registry.Lookup", ErrAgentNotFound, "agent 'foo'")
	want := "Registry.Lookup: agent 'foo': agent not found"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Composer.Compose", ErrPromptBudget, "")
	want := "Composer.Compose: prompt exceeds token budget"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Registry.Lookup", ErrAgentNotFound, "x")
	if !errors.Is(err, ErrAgentNotFound) {
		t.Error("errors.Is should match ErrAgentNotFound")
	}
}

func TestWrapOpNil(t *testing.T) {
	assert.NoError(t, WrapOp("op", nil))
	assert.EqualError(t, WrapOp("op", ErrRender), "op: render failed")
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(fmt.Errorf("x: %w", ErrRateLimit)))
	assert.True(t, IsRetryableError(ErrUpstreamTransient))
	assert.True(t, IsRetryableError(ErrTimeout))
	assert.False(t, IsRetryableError(ErrAuthInvalid))
	assert.False(t, IsRetryableError(ErrMalformedRequest))
}

func TestGatewayErrorMatchesKindAndCause(t *testing.T) {
	cause := fmt.Errorf("%w: API error 503: busy", ErrUpstreamTransient)
	err := &GatewayError{Kind: GatewayTimeout, Attempts: 3, CorrelationID: "01ABC", Err: cause}

	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, ErrUpstreamTransient)
	assert.Contains(t, err.Error(), "gateway timeout after 3 attempt(s) [01ABC]")
	assert.Equal(t, CodeUpstreamTimeout, ErrorCodeOf(err))
}

func TestGatewayErrorBackpressure(t *testing.T) {
	err := &GatewayError{Kind: GatewayBackpressure, Attempts: 0, RetryAfter: 2 * time.Second}
	assert.ErrorIs(t, err, ErrBackpressure)
	assert.Contains(t, err.Error(), "retry after 2s")
	assert.Equal(t, CodeBackpressure, ErrorCodeOf(err))
}

func TestDispatchErrorNamesStage(t *testing.T) {
	inner := &GatewayError{Kind: GatewayAuth, Attempts: 1, Err: ErrAuthInvalid}
	err := &DispatchError{Stage: StageDispatch, CorrelationID: "c1", AgentID: "rti_transparency", Err: inner}

	assert.Equal(t, "dispatch failed at dispatch stage [c1] agent=rti_transparency: "+inner.Error(), err.Error())
	assert.ErrorIs(t, err, ErrAuthInvalid)

	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, GatewayAuth, ge.Kind)
	assert.Equal(t, CodeAuthInvalid, ErrorCodeOf(err))
}

// --- ErrorCode tests ---

func TestErrorCodeOf_DirectSentinel(t *testing.T) {
	assert.Equal(t, CodeAgentNotFound, ErrorCodeOf(ErrAgentNotFound))
	assert.Equal(t, CodeRateLimit, ErrorCodeOf(ErrRateLimit))
	assert.Equal(t, CodeNormalization, ErrorCodeOf(ErrNormalization))
}

func TestErrorCodeOf_DomainError(t *testing.T) {
	err := NewSubSystemError("agent", "Registry.Lookup", ErrAgentNotFound, "foo")
	assert.Equal(t, CodeAgentNotFound, ErrorCodeOf(err))
}

func TestErrorCodeOf_SubSystem(t *testing.T) {
	err := NewSubSystemError("agent", "Registry.New", ErrDuplicate, "property_violations")
	assert.Equal(t, CodeAgentDuplicate, ErrorCodeOf(err))
	assert.Equal(t, CodeAgentDuplicate, err.Code())

	err = NewSubSystemError("render", "PDF.Render", ErrTimeout, "")
	assert.Equal(t, CodeRenderTimeout, err.Code())
}

func TestErrorCodeOf_WrappedError(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", ErrBackpressure)
	assert.Equal(t, CodeBackpressure, ErrorCodeOf(wrapped))
}

func TestErrorCodeOf_UnknownError(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(fmt.Errorf("some random error")))
}

func TestErrorCodeOf_Nil(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
}

func TestDomainError_CodeUnknownSentinel(t *testing.T) {
	err := NewDomainError("Op", fmt.Errorf("custom"), "detail")
	assert.Equal(t, CodeUnknown, err.Code())
}

func TestEverySentinelHasCode(t *testing.T) {
	for _, sentinel := range codePriority {
		_, ok := errorCodeMap[sentinel]
		assert.True(t, ok, "sentinel %q has no code", sentinel)
	}
	for sentinel := range errorCodeMap {
		assert.Contains(t, codePriority, sentinel, "sentinel %q missing from codePriority", sentinel)
	}
}
