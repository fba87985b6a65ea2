package composer

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexroute/internal/domain"
	"lexroute/internal/usecase/registry"
)

// runeCounter counts four runes per token, plus nothing for framing.
type runeCounter struct{}

func (runeCounter) CountText(s string) int { return (utf8.RuneCountInString(s) + 3) / 4 }
func (r runeCounter) CountMessages(msgs []domain.Message) int {
	n := 0
	for _, m := range msgs {
		n += r.CountText(m.Content)
	}
	return n
}

func rtiAgent(t *testing.T) domain.AgentProfile {
	t.Helper()
	for _, p := range registry.Builtin() {
		if p.ID == "rti_transparency" {
			return p
		}
	}
	t.Fatal("rti agent missing")
	return domain.AgentProfile{}
}

func TestComposeBasic(t *testing.T) {
	c := New(Config{}, runeCounter{})
	agent := rtiAgent(t)

	req, err := c.Compose(agent, domain.Query{
		Text:    "My RTI application was not answered in 30 days.",
		Context: "Filed on 2 January with the municipal PIO.",
	})
	require.NoError(t, err)

	require.Len(t, req.Messages, 2)
	sys, user := req.Messages[0], req.Messages[1]
	assert.Equal(t, domain.RoleSystem, sys.Role)
	assert.Contains(t, sys.Content, "You are RTI & Transparency Specialist")
	assert.Contains(t, sys.Content, "JURISDICTION: India")
	assert.Contains(t, sys.Content, "Right to Information Act, 2005")
	assert.Contains(t, sys.Content, `"landmark_judgments" (required)`)

	assert.Equal(t, domain.RoleUser, user.Role)
	assert.Contains(t, user.Content, "LEGAL QUERY:\nMy RTI application was not answered in 30 days.")
	assert.Contains(t, user.Content, "CASE DETAILS:\nFiled on 2 January with the municipal PIO.")
	assert.Contains(t, user.Content, "SPECIALIZATION: "+agent.Specialization)

	assert.Equal(t, "rti_transparency", req.AgentID)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, DefaultTemperature, *req.Temperature, 1e-9)
	assert.Equal(t, DefaultMaxTokens, req.MaxTokens)
	assert.InDelta(t, DefaultTopP, req.TopP, 1e-9)
	assert.False(t, req.Truncated)
	assert.Equal(t, runeCounter{}.CountMessages(req.Messages), req.PromptTokens)
}

func TestComposeOmitsEmptyDetails(t *testing.T) {
	c := New(Config{}, runeCounter{})
	req, err := c.Compose(rtiAgent(t), domain.Query{Text: "x"})
	require.NoError(t, err)
	assert.NotContains(t, req.Messages[1].Content, "CASE DETAILS")
}

func TestComposeJurisdictionFromQuery(t *testing.T) {
	c := New(Config{}, runeCounter{})
	req, err := c.Compose(rtiAgent(t), domain.Query{Text: "x", Jurisdiction: "Karnataka"})
	require.NoError(t, err)
	assert.Contains(t, req.Messages[0].Content, "JURISDICTION: Karnataka")
	assert.Contains(t, req.Messages[1].Content, "JURISDICTION: Karnataka")
}

func TestComposeAgentOverrides(t *testing.T) {
	c := New(Config{Temperature: domain.Float(0.3), MaxTokens: 1000, TopP: 0.5}, runeCounter{})
	agent := rtiAgent(t)
	agent.Provider = "anthropic"
	agent.Model = "claude-test"

	req, err := c.Compose(agent, domain.Query{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", req.Provider)
	assert.Equal(t, "claude-test", req.Model)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.3, *req.Temperature, 1e-9)
	assert.Equal(t, 1000, req.MaxTokens)
	assert.InDelta(t, 0.5, req.TopP, 1e-9)
}

func TestComposeKeepsZeroTemperature(t *testing.T) {
	c := New(Config{Temperature: domain.Float(0)}, runeCounter{})
	req, err := c.Compose(rtiAgent(t), domain.Query{Text: "x"})
	require.NoError(t, err)
	require.NotNil(t, req.Temperature)
	assert.Zero(t, *req.Temperature)
	assert.Zero(t, *req.ChatRequest().Temperature)
}

func TestComposeDeterministic(t *testing.T) {
	c := New(Config{MaxPromptTokens: frameTokens(t, rtiAgent(t)) + 100}, runeCounter{})
	q := domain.Query{Text: strings.Repeat("pension arrears ", 200), Context: strings.Repeat("details ", 100)}
	first, err := c.Compose(rtiAgent(t), q)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := c.Compose(rtiAgent(t), q)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

// frameTokens is the size of the system prompt plus an empty user frame.
func frameTokens(t *testing.T, agent domain.AgentProfile) int {
	t.Helper()
	req, err := New(Config{}, runeCounter{}).Compose(agent, domain.Query{})
	require.NoError(t, err)
	return req.PromptTokens
}

func TestComposeTruncatesDetailsFirst(t *testing.T) {
	agent := rtiAgent(t)
	text := "Information was denied under section 8."
	base, err := New(Config{}, runeCounter{}).Compose(agent, domain.Query{Text: text})
	require.NoError(t, err)

	budget := base.PromptTokens + 30
	c := New(Config{MaxPromptTokens: budget}, runeCounter{})
	req, err := c.Compose(agent, domain.Query{Text: text, Context: strings.Repeat("long details ", 300)})
	require.NoError(t, err)

	assert.True(t, req.Truncated)
	assert.LessOrEqual(t, req.PromptTokens, budget)
	assert.Equal(t, budget, req.Budget)
	assert.Equal(t, base.Messages[0], req.Messages[0], "system prompt is never cut")
	assert.Contains(t, req.Messages[1].Content, "LEGAL QUERY:\n"+text+"\n")
	assert.Contains(t, req.Messages[1].Content, "CASE DETAILS:\nlong details")
	assert.Contains(t, req.Messages[1].Content, TruncationMarker)
	assert.Equal(t, []string{"case details truncated to fit the prompt budget"}, req.Warnings)
}

func TestComposeTruncatesTextWhenDetailsDoNotFit(t *testing.T) {
	agent := rtiAgent(t)
	frame := frameTokens(t, agent)
	budget := frame + 60

	c := New(Config{MaxPromptTokens: budget}, runeCounter{})
	req, err := c.Compose(agent, domain.Query{
		Text:    strings.Repeat("appeal ", 400),
		Context: strings.Repeat("details ", 400),
	})
	require.NoError(t, err)

	assert.True(t, req.Truncated)
	assert.LessOrEqual(t, req.PromptTokens, budget)
	assert.NotContains(t, req.Messages[1].Content, "CASE DETAILS")
	assert.Contains(t, req.Messages[1].Content, "LEGAL QUERY:\nappeal appeal")
	assert.Contains(t, req.Messages[1].Content, TruncationMarker)
	assert.Equal(t, []string{
		"case details removed to fit the prompt budget",
		"query text truncated to fit the prompt budget",
	}, req.Warnings)
}

func TestComposeBudgetBelowFrame(t *testing.T) {
	agent := rtiAgent(t)
	frame := frameTokens(t, agent)

	c := New(Config{MaxPromptTokens: frame - 1}, runeCounter{})
	_, err := c.Compose(agent, domain.Query{Text: "query"})
	assert.ErrorIs(t, err, domain.ErrPromptBudget)
}

func TestComposeNoRoomForQuery(t *testing.T) {
	agent := rtiAgent(t)
	frame := frameTokens(t, agent)

	// Enough for the frame but not for the truncation marker.
	c := New(Config{MaxPromptTokens: frame + 2}, runeCounter{})
	_, err := c.Compose(agent, domain.Query{Text: strings.Repeat("query ", 100)})
	assert.ErrorIs(t, err, domain.ErrPromptBudget)
}

func TestComposeBadTemplate(t *testing.T) {
	agent := rtiAgent(t)
	agent.SystemPrompt = "{{.Missing}}"
	_, err := New(Config{}, runeCounter{}).Compose(agent, domain.Query{Text: "x"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestLongestPrefix(t *testing.T) {
	got := longestPrefix("abcdefgh", func(s string) bool { return len(s) <= 3 })
	assert.Equal(t, "abc", got)
	assert.Equal(t, "", longestPrefix("abc", func(string) bool { return false }))
	assert.Equal(t, "abc", longestPrefix("abc", func(string) bool { return true }))
}
