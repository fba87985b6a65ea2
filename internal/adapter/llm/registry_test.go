package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexroute/internal/domain"
	"lexroute/internal/infra/config"
)

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry("nvidia")
	require.NoError(t, reg.Register(&stubProvider{name: "nvidia"}))
	require.NoError(t, reg.Register(&stubProvider{name: "anthropic"}))

	p, err := reg.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "nvidia", p.Name())

	p, err = reg.Resolve("anthropic")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())

	_, err = reg.Resolve("missing")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
	assert.Equal(t, []string{"anthropic", "nvidia"}, reg.Names())
}

func TestRegistryDuplicate(t *testing.T) {
	reg := NewRegistry("nvidia")
	require.NoError(t, reg.Register(&stubProvider{name: "nvidia"}))
	assert.Error(t, reg.Register(&stubProvider{name: "nvidia"}))
}

func TestFromConfig(t *testing.T) {
	cfg := config.LLMConfig{
		DefaultProvider: "nvidia",
		Providers: []config.ProviderConfig{
			{Name: "nvidia", Type: "openai", APIKey: "k"},
			{Name: "claude", Type: "anthropic", APIKey: "k", Model: "claude-sonnet"},
			{Name: "gem", Type: "gemini", APIKey: "k", Model: "gemini-pro"},
		},
		CircuitBreaker: config.CircuitBreakerConfig{Enabled: true},
	}

	reg, err := FromConfig(cfg, newTestLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"claude", "gem", "nvidia"}, reg.Names())

	breakers := reg.Breakers()
	require.Len(t, breakers, 3)
	assert.Equal(t, "claude", breakers[0].Provider)
	assert.Equal(t, "closed", breakers[0].State)
}

func TestFromConfigWithoutBreaker(t *testing.T) {
	cfg := config.LLMConfig{
		DefaultProvider: "nvidia",
		Providers:       []config.ProviderConfig{{Name: "nvidia", Type: "openai"}},
	}
	reg, err := FromConfig(cfg, newTestLogger())
	require.NoError(t, err)
	assert.Empty(t, reg.Breakers())

	p, err := reg.Resolve("")
	require.NoError(t, err)
	assert.IsType(t, &OpenAIProvider{}, p)
}

func TestFromConfigErrors(t *testing.T) {
	_, err := FromConfig(config.LLMConfig{
		DefaultProvider: "x",
		Providers:       []config.ProviderConfig{{Name: "x", Type: "carrier-pigeon"}},
	}, newTestLogger())
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = FromConfig(config.LLMConfig{
		DefaultProvider: "absent",
		Providers:       []config.ProviderConfig{{Name: "nvidia", Type: "openai"}},
	}, newTestLogger())
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}
