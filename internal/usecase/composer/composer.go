// Package composer turns an agent profile and a query into a model request
// that fits the configured prompt token budget.
package composer

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"lexroute/internal/domain"
)

// TruncationMarker is appended to query text cut to fit the budget.
const TruncationMarker = "\n[... truncated to fit the prompt budget]"

// Defaults taken when Config leaves a field zero.
const (
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 6000
	DefaultTopP        = 0.9
)

// Config holds model parameters and the prompt budget.
type Config struct {
	// MaxPromptTokens caps system plus user message tokens. Zero disables the cap.
	MaxPromptTokens int
	// Temperature is sent as given, zero included. Nil takes DefaultTemperature.
	Temperature *float64
	MaxTokens   int
	TopP        float64
}

// PromptData is the value a system prompt template is executed with.
type PromptData struct {
	AgentName      string
	Specialization string
	Jurisdiction   string
	Sections       []domain.SectionSpec
	Acts           []string
}

// Composer is safe for concurrent use.
type Composer struct {
	cfg     Config
	counter domain.TokenCounter

	mu        sync.Mutex
	templates map[string]*template.Template
}

// New creates a Composer.
func New(cfg Config, counter domain.TokenCounter) *Composer {
	if cfg.Temperature == nil {
		cfg.Temperature = domain.Float(DefaultTemperature)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.TopP <= 0 {
		cfg.TopP = DefaultTopP
	}
	return &Composer{
		cfg:       cfg,
		counter:   counter,
		templates: make(map[string]*template.Template),
	}
}

func (c *Composer) template(agent domain.AgentProfile) (*template.Template, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := agent.ID + "\x00" + agent.SystemPrompt
	if t, ok := c.templates[key]; ok {
		return t, nil
	}
	t, err := agent.ParsePrompt()
	if err != nil {
		return nil, err
	}
	c.templates[key] = t
	return t, nil
}

// SystemPrompt renders the agent's system prompt for the given jurisdiction.
func (c *Composer) SystemPrompt(agent domain.AgentProfile, jurisdiction string) (string, error) {
	t, err := c.template(agent)
	if err != nil {
		return "", domain.NewDomainError("Composer.SystemPrompt", domain.ErrConfiguration,
			fmt.Sprintf("agent %q: %v", agent.ID, err))
	}
	var buf bytes.Buffer
	err = t.Execute(&buf, PromptData{
		AgentName:      agent.Name,
		Specialization: agent.Specialization,
		Jurisdiction:   jurisdiction,
		Sections:       agent.Output.Sections,
		Acts:           agent.Acts,
	})
	if err != nil {
		return "", domain.NewDomainError("Composer.SystemPrompt", domain.ErrConfiguration,
			fmt.Sprintf("agent %q: %v", agent.ID, err))
	}
	return strings.TrimSpace(buf.String()), nil
}

// UserMessage builds the user turn from the query parts.
func UserMessage(text, details, jurisdiction, specialization string) string {
	var b strings.Builder
	b.WriteString("LEGAL QUERY:\n")
	b.WriteString(text)
	if details != "" {
		b.WriteString("\n\nCASE DETAILS:\n")
		b.WriteString(details)
	}
	b.WriteString("\n\nJURISDICTION: ")
	b.WriteString(jurisdiction)
	b.WriteString("\nSPECIALIZATION: ")
	b.WriteString(specialization)
	b.WriteString("\n\nProvide the complete analysis in the JSON structure described in your instructions.")
	return b.String()
}

func jurisdictionFor(agent domain.AgentProfile, q domain.Query) string {
	if j := strings.TrimSpace(q.Jurisdiction); j != "" {
		return j
	}
	if agent.Jurisdiction != "" {
		return agent.Jurisdiction
	}
	return "Not specified"
}

// Compose builds the model request for agent and q. The system prompt is
// never shortened: when the budget is exceeded the case details are cut
// first, then the query text. The result is deterministic for equal inputs.
func (c *Composer) Compose(agent domain.AgentProfile, q domain.Query) (domain.ModelRequest, error) {
	jurisdiction := jurisdictionFor(agent, q)
	system, err := c.SystemPrompt(agent, jurisdiction)
	if err != nil {
		return domain.ModelRequest{}, err
	}

	text := strings.TrimSpace(q.Text)
	details := strings.TrimSpace(q.Context)
	build := func(text, details string) []domain.Message {
		return []domain.Message{
			{Role: domain.RoleSystem, Content: system},
			{Role: domain.RoleUser, Content: UserMessage(text, details, jurisdiction, agent.Specialization)},
		}
	}

	req := domain.ModelRequest{
		AgentID:     agent.ID,
		Provider:    agent.Provider,
		Model:       agent.Model,
		Temperature: domain.Float(*c.cfg.Temperature),
		MaxTokens:   c.cfg.MaxTokens,
		TopP:        c.cfg.TopP,
		Budget:      c.cfg.MaxPromptTokens,
	}

	msgs := build(text, details)
	budget := c.cfg.MaxPromptTokens
	if budget <= 0 || c.counter.CountMessages(msgs) <= budget {
		req.Messages = msgs
		req.PromptTokens = c.counter.CountMessages(msgs)
		return req, nil
	}

	if frame := c.counter.CountMessages(build("", "")); frame > budget {
		return domain.ModelRequest{}, domain.NewDomainError("Composer.Compose", domain.ErrPromptBudget,
			fmt.Sprintf("agent %q: system prompt and frame need %d tokens, budget %d", agent.ID, frame, budget))
	}

	req.Truncated = true
	fits := func(m []domain.Message) bool { return c.counter.CountMessages(m) <= budget }

	if details != "" {
		kept := longestPrefix(details, func(p string) bool { return fits(build(text, p+TruncationMarker)) })
		if kept != "" {
			req.Messages = build(text, kept+TruncationMarker)
			req.Warnings = append(req.Warnings, "case details truncated to fit the prompt budget")
			req.PromptTokens = c.counter.CountMessages(req.Messages)
			return req, nil
		}
		req.Warnings = append(req.Warnings, "case details removed to fit the prompt budget")
		if m := build(text, ""); fits(m) {
			req.Messages = m
			req.PromptTokens = c.counter.CountMessages(m)
			return req, nil
		}
	}

	kept := longestPrefix(text, func(p string) bool { return fits(build(p+TruncationMarker, "")) })
	if kept == "" {
		return domain.ModelRequest{}, domain.NewDomainError("Composer.Compose", domain.ErrPromptBudget,
			fmt.Sprintf("agent %q: no room left for the query within %d tokens", agent.ID, budget))
	}
	req.Messages = build(kept+TruncationMarker, "")
	req.Warnings = append(req.Warnings, "query text truncated to fit the prompt budget")
	req.PromptTokens = c.counter.CountMessages(req.Messages)
	return req, nil
}

// longestPrefix binary searches the longest rune prefix of s accepted by ok.
// It returns "" when no non-empty prefix is accepted.
func longestPrefix(s string, ok func(string) bool) string {
	runes := []rune(s)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if ok(string(runes[:mid])) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return strings.TrimSpace(string(runes[:lo]))
}
