package domain

import "context"

// LLMProvider is the interface for any upstream completion backend.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "nvidia", "anthropic").
	Name() string
}

// ProviderResolver finds the provider that should serve a request.
// An empty name selects the default provider.
type ProviderResolver interface {
	Resolve(name string) (LLMProvider, error)
}
