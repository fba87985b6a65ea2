package llm

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"lexroute/internal/domain"
	"lexroute/internal/infra/config"
)

// Registry holds named LLM providers and resolves the default one.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]domain.LLMProvider
	defaultName string
}

// NewRegistry creates an empty provider registry. defaultName is returned by
// Resolve("").
func NewRegistry(defaultName string) *Registry {
	return &Registry{
		providers:   make(map[string]domain.LLMProvider),
		defaultName: defaultName,
	}
}

// Register adds a provider. Returns error if name already registered.
func (r *Registry) Register(provider domain.LLMProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.providers[name] = provider
	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, domain.NewSubSystemError("provider", "Registry.Get", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// Resolve implements domain.ProviderResolver. An empty name selects the
// default provider.
func (r *Registry) Resolve(name string) (domain.LLMProvider, error) {
	if name == "" {
		name = r.defaultName
	}
	return r.Get(name)
}

// Default returns the name used when an agent pins no provider.
func (r *Registry) Default() string { return r.defaultName }

// Names returns all registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BreakerStatus is a snapshot of one provider's circuit breaker.
type BreakerStatus struct {
	Provider            string `json:"provider"`
	State               string `json:"state"`
	Requests            uint32 `json:"requests"`
	TotalFailures       uint32 `json:"total_failures"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
}

// Breakers reports breaker state for every wrapped provider, sorted by name.
func (r *Registry) Breakers() []BreakerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []BreakerStatus
	for _, p := range r.providers {
		if b, ok := p.(*Breaker); ok {
			out = append(out, b.Status())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

var _ domain.ProviderResolver = (*Registry)(nil)

// FromConfig builds a registry holding one provider per configured entry,
// each wrapped in a circuit breaker when enabled.
func FromConfig(cfg config.LLMConfig, logger *slog.Logger) (*Registry, error) {
	reg := NewRegistry(cfg.DefaultProvider)
	for _, pc := range cfg.Providers {
		p, err := newProvider(pc, logger)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		if cfg.CircuitBreaker.Enabled {
			p = NewBreaker(p, cfg.CircuitBreaker, logger)
		}
		if err := reg.Register(p); err != nil {
			return nil, err
		}
	}
	if _, err := reg.Resolve(""); err != nil {
		return nil, fmt.Errorf("default provider: %w", err)
	}
	return reg, nil
}

func newProvider(pc config.ProviderConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	switch pc.Type {
	case "openai", "":
		return NewOpenAIProvider(pc, logger), nil
	case "anthropic":
		return NewAnthropicProvider(pc, logger), nil
	case "gemini":
		return NewGeminiProvider(pc, logger), nil
	case "bedrock":
		return newBedrock(pc, logger)
	default:
		return nil, domain.NewDomainError("llm.newProvider", domain.ErrConfiguration, "unknown provider type "+pc.Type)
	}
}
