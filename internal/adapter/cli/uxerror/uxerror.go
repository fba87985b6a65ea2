// Package uxerror translates errors into messages with recovery hints for
// the command line.
package uxerror

import (
	"errors"
	"fmt"
	"strings"

	"lexroute/internal/adapter/cli/theme"
	"lexroute/internal/domain"
)

// FriendlyError is a user-facing error with suggestions for recovery.
type FriendlyError struct {
	Title   string   // short heading, e.g. "Model Unavailable"
	Message string   // one-liner explanation
	Hints   []string // actionable recovery suggestions
	Code    domain.ErrorCode
	Stage   domain.Stage
	Raw     string // original error text, printed with --verbose
}

// Render formats the error for a terminal.
func (fe FriendlyError) Render() string {
	var sb strings.Builder
	sb.WriteString(theme.TextError.Render(theme.SymbolError + " " + fe.Title))
	if fe.Code != "" {
		sb.WriteString(theme.TextMuted.Render(" (" + string(fe.Code) + ")"))
	}
	if fe.Message != "" {
		sb.WriteString("\n  ")
		sb.WriteString(fe.Message)
	}
	if fe.Stage != "" {
		fmt.Fprintf(&sb, "\n  Failed during: %s", fe.Stage)
	}
	if len(fe.Hints) > 0 {
		sb.WriteString("\n  Suggestions:")
		for _, h := range fe.Hints {
			fmt.Fprintf(&sb, "\n    %s %s", theme.SymbolBullet, h)
		}
	}
	return sb.String()
}

type errorPattern struct {
	match   func(err error) bool
	produce func(err error) FriendlyError
}

// Checked in order; sentinel matches come before string matches.
var patterns = []errorPattern{
	{
		match:   is(domain.ErrInvalidInput),
		produce: constantError("Invalid Request", "The query or one of its options was rejected.", []string{"Pass a non-empty question", "Check the --format and --agent values"}),
	},
	{
		match:   is(domain.ErrAgentNotFound),
		produce: constantError("Unknown Agent", "No agent is registered under that id.", []string{"Run 'lexroute agents' to list the agent ids"}),
	},
	{
		match:   is(domain.ErrPromptBudget),
		produce: constantError("Query Too Long", "The composed prompt exceeds the configured token budget.", []string{"Shorten the question or its context", "Raise composer.max_prompt_tokens"}),
	},
	{
		match:   is(domain.ErrBackpressure),
		produce: constantError("Service Busy", "All upstream model slots are in use.", []string{"Retry in a few seconds", "Raise gateway.max_concurrent"}),
	},
	{
		match:   is(domain.ErrAuthInvalid),
		produce: constantError("Authentication Failed", "The model provider rejected the credentials.", []string{"Check LEXROUTE_LLM_PROVIDER_<NAME>_API_KEY", "Verify the key has not expired"}),
	},
	{
		match:   is(domain.ErrTimeout),
		produce: constantError("Request Timed Out", "The analysis did not finish in time.", []string{"Try again", "Raise dispatch.request_timeout or gateway.call_timeout"}),
	},
	{
		match:   is(domain.ErrCanceled),
		produce: constantError("Canceled", "The request was canceled before it finished.", nil),
	},
	{
		match:   is(domain.ErrUpstreamTransient),
		produce: constantError("Model Unavailable", "The model provider failed after all retries.", []string{"Retry shortly", "Run 'lexroute doctor' to check connectivity"}),
	},
	{
		match:   is(domain.ErrMalformedRequest),
		produce: constantError("Request Rejected Upstream", "The model provider refused the request as malformed.", []string{"Check the provider model name in config"}),
	},
	{
		match:   is(domain.ErrNormalization),
		produce: constantError("Unusable Answer", "The model answer could not be turned into an analysis.", []string{"Rephrase the question with more facts", "Try again"}),
	},
	{
		match:   is(domain.ErrRender),
		produce: constantError("Rendering Failed", "The analysis succeeded but could not be rendered.", []string{"Use --format markdown or json", "For PDF, check that Chrome is installed or render.pdf.remote_url is set"}),
	},
	{
		match:   is(domain.ErrConfiguration),
		produce: constantError("Configuration Error", "The configuration is invalid.", []string{"Run 'lexroute doctor'", "Check lexroute.yaml against the example config"}),
	},
	{
		match:   is(domain.ErrDecryption),
		produce: constantError("Secret Decryption Failed", "An enc: value in the config could not be decrypted.", []string{"Check LEXROUTE_CONFIG_KEY", "Re-encrypt the value with 'lexroute encrypt'"}),
	},
	{
		match:   containsAny("connection refused", "dial tcp", "no such host"),
		produce: constantError("Connection Failed", "Could not reach the remote service.", []string{"Check your network connection", "Verify the base_url in config"}),
	},
}

// Humanize converts an error into a FriendlyError with recovery hints.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Raw: "nil"}
	}

	fe := FriendlyError{
		Title:   "Unexpected Error",
		Message: err.Error(),
		Hints:   []string{"Try again", "Run with --verbose for details"},
	}
	for _, p := range patterns {
		if p.match(err) {
			fe = p.produce(err)
			break
		}
	}

	fe.Raw = err.Error()
	fe.Code = domain.ErrorCodeOf(err)
	var de *domain.DispatchError
	if errors.As(err, &de) {
		fe.Stage = de.Stage
	}
	var ge *domain.GatewayError
	if errors.As(err, &ge) && ge.RetryAfter > 0 {
		fe.Hints = append([]string{fmt.Sprintf("Retry after %s", ge.RetryAfter)}, fe.Hints...)
	}
	return fe
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

// containsAny matches when the error text contains any of substrs, ignoring case.
func containsAny(substrs ...string) func(error) bool {
	return func(err error) bool {
		lower := strings.ToLower(err.Error())
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
}

func constantError(title, message string, hints []string) func(error) FriendlyError {
	return func(error) FriendlyError {
		return FriendlyError{
			Title:   title,
			Message: message,
			Hints:   append([]string(nil), hints...),
		}
	}
}
