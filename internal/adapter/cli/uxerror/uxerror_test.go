package uxerror

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"lexroute/internal/domain"
)

func TestHumanizeSentinels(t *testing.T) {
	tests := []struct {
		err   error
		title string
		code  domain.ErrorCode
	}{
		{domain.NewDomainError("api.Analyze", domain.ErrInvalidInput, "query is required"), "Invalid Request", domain.CodeInvalidInput},
		{fmt.Errorf("lookup: %w", domain.ErrAgentNotFound), "Unknown Agent", domain.CodeAgentNotFound},
		{domain.ErrPromptBudget, "Query Too Long", domain.CodePromptBudget},
		{&domain.GatewayError{Kind: domain.GatewayAuth, Attempts: 1}, "Authentication Failed", domain.CodeAuthInvalid},
		{&domain.GatewayError{Kind: domain.GatewayTransient, Attempts: 3}, "Model Unavailable", domain.CodeUpstreamTransient},
		{domain.ErrRender, "Rendering Failed", domain.CodeRender},
		{domain.ErrDecryption, "Secret Decryption Failed", domain.CodeDecryption},
	}
	for _, tt := range tests {
		fe := Humanize(tt.err)
		if fe.Title != tt.title {
			t.Errorf("Humanize(%v).Title = %q, want %q", tt.err, fe.Title, tt.title)
		}
		if fe.Code != tt.code {
			t.Errorf("Humanize(%v).Code = %q, want %q", tt.err, fe.Code, tt.code)
		}
		if fe.Raw != tt.err.Error() {
			t.Errorf("Raw = %q", fe.Raw)
		}
	}
}

func TestHumanizeDispatchError(t *testing.T) {
	err := &domain.DispatchError{
		Stage: domain.StageDispatch,
		Err:   &domain.GatewayError{Kind: domain.GatewayBackpressure, RetryAfter: 5 * time.Second},
	}
	fe := Humanize(err)
	if fe.Title != "Service Busy" {
		t.Errorf("Title = %q", fe.Title)
	}
	if fe.Stage != domain.StageDispatch {
		t.Errorf("Stage = %q", fe.Stage)
	}
	if len(fe.Hints) == 0 || fe.Hints[0] != "Retry after 5s" {
		t.Errorf("Hints = %v", fe.Hints)
	}

	// The shared hint slice must not grow across calls.
	again := Humanize(err)
	if len(again.Hints) != len(fe.Hints) {
		t.Errorf("hints grew: %v", again.Hints)
	}
}

func TestHumanizeStringPatternAndFallback(t *testing.T) {
	fe := Humanize(errors.New("dial tcp 10.0.0.1:443: connection refused"))
	if fe.Title != "Connection Failed" {
		t.Errorf("Title = %q", fe.Title)
	}

	fe = Humanize(errors.New("something odd"))
	if fe.Title != "Unexpected Error" || fe.Message != "something odd" {
		t.Errorf("fallback = %+v", fe)
	}

	if Humanize(nil).Title != "Unknown Error" {
		t.Error("nil error should be Unknown Error")
	}
}

func TestRender(t *testing.T) {
	fe := Humanize(&domain.DispatchError{Stage: domain.StageNormalize, Err: domain.ErrNormalization})
	out := fe.Render()
	for _, want := range []string{"Unusable Answer", string(domain.CodeNormalization), "Failed during: normalize", "Suggestions:"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q:\n%s", want, out)
		}
	}
}
