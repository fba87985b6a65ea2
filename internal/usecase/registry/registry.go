// Package registry holds the immutable set of specialized legal agents.
package registry

import (
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"lexroute/internal/domain"
)

// Registry indexes agent profiles by id. It is built once at startup and
// never modified, so it is safe for concurrent reads without locking.
type Registry struct {
	profiles []domain.AgentProfile
	index    map[string]int
	fallback int
}

// New validates profiles and indexes them in declaration order.
// Every problem is a configuration error and fatal to startup.
func New(profiles []domain.AgentProfile, fallbackID string) (*Registry, error) {
	r := &Registry{
		profiles: make([]domain.AgentProfile, 0, len(profiles)),
		index:    make(map[string]int, len(profiles)),
	}

	for i, p := range profiles {
		if err := validateProfile(p); err != nil {
			return nil, configError("Registry.New", fmt.Sprintf("profile #%d: %v", i, err))
		}
		if _, dup := r.index[p.ID]; dup {
			return nil, domain.NewSubSystemError("agent", "Registry.New",
				fmt.Errorf("%w: %w", domain.ErrConfiguration, domain.ErrDuplicate),
				fmt.Sprintf("agent id %q declared twice", p.ID))
		}
		r.index[p.ID] = len(r.profiles)
		r.profiles = append(r.profiles, p.Clone())
	}

	if len(r.profiles) == 0 {
		return nil, configError("Registry.New", "no agent profiles configured")
	}

	idx, ok := r.index[fallbackID]
	if !ok {
		return nil, configError("Registry.New", fmt.Sprintf("fallback agent %q is not registered", fallbackID))
	}
	r.fallback = idx
	return r, nil
}

func validateProfile(p domain.AgentProfile) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("empty id")
	}
	if strings.TrimSpace(p.SystemPrompt) == "" {
		return fmt.Errorf("agent %q: empty system prompt", p.ID)
	}
	if _, err := p.ParsePrompt(); err != nil {
		return fmt.Errorf("agent %q: system prompt template: %w", p.ID, err)
	}

	seen := make(map[string]bool, len(p.Output.Sections))
	for _, s := range p.Output.Sections {
		key := domain.NormalizeKey(s.Key)
		if key == "" {
			return fmt.Errorf("agent %q: output section with empty key", p.ID)
		}
		if seen[key] {
			return fmt.Errorf("agent %q: output section %q declared twice", p.ID, s.Key)
		}
		seen[key] = true
	}

	if p.Output.JSONSchema != "" {
		if _, err := jsonschema.NewCompiler().Compile([]byte(p.Output.JSONSchema)); err != nil {
			return fmt.Errorf("agent %q: output json schema: %w", p.ID, err)
		}
	}
	return nil
}

func configError(op, detail string) error {
	return domain.NewDomainError(op, domain.ErrConfiguration, detail)
}

// Lookup returns a copy of the profile with the given id.
func (r *Registry) Lookup(id string) (domain.AgentProfile, error) {
	idx, ok := r.index[id]
	if !ok {
		return domain.AgentProfile{}, domain.NewSubSystemError("agent", "Registry.Lookup",
			domain.ErrAgentNotFound, fmt.Sprintf("agent %q", id))
	}
	return r.profiles[idx].Clone(), nil
}

// All returns copies of every profile in declaration order.
func (r *Registry) All() []domain.AgentProfile {
	out := make([]domain.AgentProfile, len(r.profiles))
	for i, p := range r.profiles {
		out[i] = p.Clone()
	}
	return out
}

// Fallback returns the general agent used when nothing matches.
func (r *Registry) Fallback() domain.AgentProfile {
	return r.profiles[r.fallback].Clone()
}

// Len returns the number of registered agents.
func (r *Registry) Len() int { return len(r.profiles) }
