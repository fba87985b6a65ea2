package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"lexroute/internal/domain"
)

const maxProfileFileSize = 1 << 20

// profileFile is the on-disk layout of an agents file.
type profileFile struct {
	Agents []domain.AgentProfile `yaml:"agents"`
}

// LoadFile reads agent profiles from a YAML file. Profiles without a system
// prompt or output schema get the builtin defaults.
func LoadFile(path string) ([]domain.AgentProfile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, domain.NewDomainError("registry.LoadFile", domain.ErrConfiguration, err.Error())
	}
	if info.Size() > maxProfileFileSize {
		return nil, domain.NewDomainError("registry.LoadFile", domain.ErrConfiguration,
			fmt.Sprintf("%s too large (%d bytes, max %d)", path, info.Size(), maxProfileFileSize))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewDomainError("registry.LoadFile", domain.ErrConfiguration, err.Error())
	}

	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, domain.NewDomainError("registry.LoadFile", domain.ErrConfiguration,
			fmt.Sprintf("parse %s: %v", path, err))
	}
	if len(f.Agents) == 0 {
		return nil, domain.NewDomainError("registry.LoadFile", domain.ErrConfiguration,
			fmt.Sprintf("%s declares no agents", path))
	}

	return WithDefaults(f.Agents), nil
}

// WithDefaults fills empty prompts, output schemas and jurisdictions with
// the builtin defaults.
func WithDefaults(profiles []domain.AgentProfile) []domain.AgentProfile {
	out := make([]domain.AgentProfile, len(profiles))
	for i, p := range profiles {
		p = p.Clone()
		if p.SystemPrompt == "" {
			p.SystemPrompt = DefaultSystemPrompt
		}
		if len(p.Output.Sections) == 0 {
			schema := p.Output.JSONSchema
			p.Output = DefaultOutput()
			if schema != "" {
				p.Output.JSONSchema = schema
			}
		}
		if p.Jurisdiction == "" {
			p.Jurisdiction = DefaultJurisdiction
		}
		if p.Name == "" {
			p.Name = p.ID
		}
		out[i] = p
	}
	return out
}

// Profiles resolves the configured profile set: the file when set, otherwise
// the builtin agents, followed by any inline profiles.
func Profiles(file string, inline []domain.AgentProfile) ([]domain.AgentProfile, error) {
	var base []domain.AgentProfile
	if file != "" {
		loaded, err := LoadFile(file)
		if err != nil {
			return nil, err
		}
		base = loaded
	} else {
		base = Builtin()
	}
	return append(base, WithDefaults(inline)...), nil
}
