package domain

import "time"

// ModelRequest is a composed prompt ready for the Model Gateway.
type ModelRequest struct {
	CorrelationID string    `json:"correlation_id"`
	AgentID       string    `json:"agent_id"`
	Provider      string    `json:"provider,omitempty"`
	Model         string    `json:"model,omitempty"`
	Messages      []Message `json:"messages"`
	Temperature   *float64  `json:"temperature,omitempty"`
	MaxTokens     int       `json:"max_tokens,omitempty"`
	TopP          float64   `json:"top_p,omitempty"`

	// PromptTokens is the counted size of Messages; it never exceeds Budget.
	PromptTokens int      `json:"prompt_tokens"`
	Budget       int      `json:"budget"`
	Truncated    bool     `json:"truncated,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

// ChatRequest converts the model request into a provider request.
func (r ModelRequest) ChatRequest() ChatRequest {
	msgs := make([]Message, len(r.Messages))
	copy(msgs, r.Messages)
	var temp *float64
	if r.Temperature != nil {
		temp = Float(*r.Temperature)
	}
	return ChatRequest{
		Model:       r.Model,
		Messages:    msgs,
		MaxTokens:   r.MaxTokens,
		Temperature: temp,
		TopP:        r.TopP,
	}
}

// ModelResponse is the raw upstream answer.
type ModelResponse struct {
	CorrelationID string        `json:"correlation_id"`
	Text          string        `json:"text"`
	Provider      string        `json:"provider"`
	Model         string        `json:"model"`
	Usage         Usage         `json:"usage"`
	Latency       time.Duration `json:"latency"`
	Attempts      int           `json:"attempts"`
}
