package domain

import (
	"fmt"
	"strings"
)

// OutputFormat selects how a finished analysis is delivered to the caller.
type OutputFormat string

const (
	FormatJSON     OutputFormat = "json"
	FormatPDF      OutputFormat = "pdf"
	FormatMarkdown OutputFormat = "markdown"
	FormatHTML     OutputFormat = "html"
)

// ParseOutputFormat maps user input to an OutputFormat. Empty input means JSON.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatPDF:
		return FormatPDF, nil
	case FormatMarkdown, "md":
		return FormatMarkdown, nil
	case FormatHTML, "htm":
		return FormatHTML, nil
	default:
		return "", NewDomainError("ParseOutputFormat", ErrInvalidInput, fmt.Sprintf("unknown format %q", s))
	}
}

// Query is a free-text legal question with optional metadata.
type Query struct {
	Text         string `json:"text"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
	// CaseType is a caller hint ("property_violations", "rti", ...) that boosts routing.
	CaseType string       `json:"case_type,omitempty"`
	Context  string       `json:"context,omitempty"`
	Format   OutputFormat `json:"format,omitempty"`
}

// DispatchRequest is the inbound unit of work handed to the orchestrator.
type DispatchRequest struct {
	Query Query `json:"query"`
	// AgentID bypasses classification when set.
	AgentID string `json:"agent_id,omitempty"`
}
